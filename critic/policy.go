package critic

import (
	"strings"

	"github.com/BaSui01/askflow/types"
)

// DefaultMaxRetry is the retry ceiling used when none is configured.
const DefaultMaxRetry = 2

// RetryLimitReason is the reason attached when the ceiling forces a failure.
const RetryLimitReason = "retry limit exceeded"

// UnrecoverableReason is used when a verdict asks for no usable action.
const UnrecoverableReason = "unrecoverable"

// Policy maps verdicts to control decisions.
type Policy struct {
	MaxRetry int
}

// DefaultPolicy returns a Policy with DefaultMaxRetry.
func DefaultPolicy() Policy {
	return Policy{MaxRetry: DefaultMaxRetry}
}

// Map turns a raw verdict and the current retry count into a CriticResult.
//
// The ceiling is checked before the verdict is interpreted, so a pass that
// arrives once the ceiling is reached is still rejected. The retry count is
// left untouched in that case, reset to 0 on pass, and incremented by one
// for every other outcome.
func (p Policy) Map(v types.Verdict, retryCount int) types.CriticResult {
	max := p.MaxRetry
	if max <= 0 {
		max = DefaultMaxRetry
	}
	raw := v

	if retryCount >= max {
		return types.CriticResult{
			Decision:   types.Fail{Reason: RetryLimitReason, Kind: types.FailRetryLimit},
			Reason:     RetryLimitReason,
			RetryCount: retryCount,
			Verdict:    &raw,
		}
	}

	if v.Status == types.VerdictPass {
		return types.CriticResult{
			Decision:   types.Pass{},
			Reason:     v.Reason,
			RetryCount: 0,
			Verdict:    &raw,
		}
	}

	rewrite := strings.TrimSpace(v.RewriteQuery)
	switch {
	case v.Action == types.ActionQueryRewrite && rewrite != "":
		return types.CriticResult{
			Decision:   types.RetryWithRewrite{Query: rewrite},
			Reason:     v.Reason,
			RetryCount: retryCount + 1,
			Verdict:    &raw,
		}
	case v.Action == types.ActionRedoRetriever:
		return types.CriticResult{
			Decision:   types.RetryRetrieve{},
			Reason:     v.Reason,
			RetryCount: retryCount + 1,
			Verdict:    &raw,
		}
	}

	reason := UnrecoverableReason
	if r := strings.TrimSpace(v.Reason); r != "" {
		reason = UnrecoverableReason + ": " + r
	}
	return types.CriticResult{
		Decision:   types.Fail{Reason: reason, Kind: types.FailUnrecoverable},
		Reason:     reason,
		RetryCount: retryCount + 1,
		Verdict:    &raw,
	}
}
