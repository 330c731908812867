package types

import (
	"encoding/json"
	"fmt"
)

// =============================================================================
// 原始判定（评审协作方输出）
// =============================================================================

// VerdictStatus is the raw status returned by the judgment collaborator.
type VerdictStatus string

const (
	VerdictPass   VerdictStatus = "pass"
	VerdictRevise VerdictStatus = "revise"
	VerdictFail   VerdictStatus = "fail"
)

// VerdictAction is the follow-up the collaborator suggests. Empty means null.
type VerdictAction string

const (
	ActionNone          VerdictAction = ""
	ActionRedoRetriever VerdictAction = "redo_retriever"
	ActionQueryRewrite  VerdictAction = "query_rewrite"
	ActionStop          VerdictAction = "stop"
)

// Verdict 评审协作方返回的原始判定，尚未经过策略映射。
type Verdict struct {
	Status       VerdictStatus `json:"status"`
	Reason       string        `json:"reason"`
	Action       VerdictAction `json:"action,omitempty"`
	RewriteQuery string        `json:"rewrite_query,omitempty"`
}

// JudgeRequest is the payload handed to the judgment collaborator.
type JudgeRequest struct {
	Query    string        `json:"query"`
	Intent   IntentContext `json:"intent"`
	Evidence []Hit         `json:"evidence_preview"`
	Draft    string        `json:"draft_answer"`
}

// =============================================================================
// 映射后的控制决策（封闭和类型）
// =============================================================================

// CriticStatus is the control decision after policy mapping.
type CriticStatus string

const (
	StatusPass          CriticStatus = "pass"
	StatusReviseRetry   CriticStatus = "revise_retry"
	StatusReviseRewrite CriticStatus = "revise_rewrite"
	StatusFail          CriticStatus = "fail"
)

// AllCriticStatuses lists every mapped status. Graph validation relies on it.
func AllCriticStatuses() []CriticStatus {
	return []CriticStatus{StatusPass, StatusReviseRetry, StatusReviseRewrite, StatusFail}
}

// FailKind tags why a task was terminated.
type FailKind string

const (
	FailRetryLimit    FailKind = "retry_limit_exceeded"
	FailUnrecoverable FailKind = "unrecoverable"
)

// Decision is the closed set of control actions produced by the policy
// mapper. Only the four variants in this file implement it.
type Decision interface {
	Status() CriticStatus
	sealedDecision()
}

// Pass ends the task with the drafted answer.
type Pass struct{}

// RetryRetrieve reruns retrieval with the current query.
type RetryRetrieve struct{}

// RetryWithRewrite opens a new retrieval round with Query.
type RetryWithRewrite struct {
	Query string
}

// Fail routes the task to the fail terminal.
type Fail struct {
	Reason string
	Kind   FailKind
}

func (Pass) Status() CriticStatus             { return StatusPass }
func (RetryRetrieve) Status() CriticStatus    { return StatusReviseRetry }
func (RetryWithRewrite) Status() CriticStatus { return StatusReviseRewrite }
func (Fail) Status() CriticStatus             { return StatusFail }

func (Pass) sealedDecision()             {}
func (RetryRetrieve) sealedDecision()    {}
func (RetryWithRewrite) sealedDecision() {}
func (Fail) sealedDecision()             {}

// CriticResult 持久化的评审结果。
type CriticResult struct {
	Decision   Decision
	Reason     string
	RetryCount int
	// Verdict is the raw collaborator verdict that produced Decision.
	Verdict *Verdict
}

// Status returns the mapped status, or "" when no decision is set.
func (r *CriticResult) Status() CriticStatus {
	if r == nil || r.Decision == nil {
		return ""
	}
	return r.Decision.Status()
}

// Clone returns a deep copy.
func (r *CriticResult) Clone() *CriticResult {
	if r == nil {
		return nil
	}
	cp := *r
	if r.Verdict != nil {
		v := *r.Verdict
		cp.Verdict = &v
	}
	return &cp
}

type criticResultJSON struct {
	Status       CriticStatus `json:"status"`
	Reason       string       `json:"reason"`
	RewriteQuery string       `json:"rewrite_query,omitempty"`
	FailType     FailKind     `json:"fail_type,omitempty"`
	RetryCount   int          `json:"retry_count"`
	Verdict      *Verdict     `json:"verdict,omitempty"`
}

// MarshalJSON flattens the decision into status/rewrite_query/fail_type.
func (r CriticResult) MarshalJSON() ([]byte, error) {
	out := criticResultJSON{
		Reason:     r.Reason,
		RetryCount: r.RetryCount,
		Verdict:    r.Verdict,
	}
	switch d := r.Decision.(type) {
	case Pass:
		out.Status = StatusPass
	case RetryRetrieve:
		out.Status = StatusReviseRetry
	case RetryWithRewrite:
		out.Status = StatusReviseRewrite
		out.RewriteQuery = d.Query
	case Fail:
		out.Status = StatusFail
		out.FailType = d.Kind
	case nil:
		return nil, fmt.Errorf("critic result has no decision")
	}
	return json.Marshal(out)
}

// UnmarshalJSON rebuilds the decision variant from the flattened form.
func (r *CriticResult) UnmarshalJSON(data []byte) error {
	var in criticResultJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	switch in.Status {
	case StatusPass:
		r.Decision = Pass{}
	case StatusReviseRetry:
		r.Decision = RetryRetrieve{}
	case StatusReviseRewrite:
		r.Decision = RetryWithRewrite{Query: in.RewriteQuery}
	case StatusFail:
		r.Decision = Fail{Reason: in.Reason, Kind: in.FailType}
	default:
		return fmt.Errorf("unknown critic status %q", in.Status)
	}
	r.Reason = in.Reason
	r.RetryCount = in.RetryCount
	r.Verdict = in.Verdict
	return nil
}
