package critic

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/BaSui01/askflow/types"
)

// FallbackReasonPrefix starts the reason of every fallback verdict.
const FallbackReasonPrefix = "critic returned invalid response, fallback to revise"

// rawVerdict keeps nullable fields distinguishable while decoding.
type rawVerdict struct {
	Status       *string `json:"status"`
	Reason       *string `json:"reason"`
	Action       *string `json:"action"`
	RewriteQuery *string `json:"rewrite_query"`
}

// ParseVerdict validates a collaborator payload. The payload may carry text
// around the JSON object; the outermost object is extracted first.
func ParseVerdict(payload []byte) (types.Verdict, error) {
	body := ExtractJSON(string(payload))
	if body == "" {
		return types.Verdict{}, fmt.Errorf("no JSON object in critic output")
	}

	var raw rawVerdict
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return types.Verdict{}, fmt.Errorf("decode critic output: %w", err)
	}
	if raw.Status == nil {
		return types.Verdict{}, fmt.Errorf("critic output missing status")
	}

	v := types.Verdict{Status: types.VerdictStatus(strings.ToLower(strings.TrimSpace(*raw.Status)))}
	switch v.Status {
	case types.VerdictPass, types.VerdictRevise, types.VerdictFail:
	default:
		return types.Verdict{}, fmt.Errorf("unknown critic status %q", *raw.Status)
	}

	if raw.Reason != nil {
		v.Reason = strings.TrimSpace(*raw.Reason)
	}
	if raw.Action != nil {
		action := strings.ToLower(strings.TrimSpace(*raw.Action))
		switch types.VerdictAction(action) {
		case types.ActionRedoRetriever, types.ActionQueryRewrite, types.ActionStop:
			v.Action = types.VerdictAction(action)
		case "", "null", "none":
			v.Action = types.ActionNone
		default:
			return types.Verdict{}, fmt.Errorf("unknown critic action %q", *raw.Action)
		}
	}
	if raw.RewriteQuery != nil {
		v.RewriteQuery = strings.TrimSpace(*raw.RewriteQuery)
	}
	return v, nil
}

// FallbackVerdict is the safe verdict used when parsing fails: a bounded
// retry instead of an aborted task.
func FallbackVerdict(cause error) types.Verdict {
	reason := FallbackReasonPrefix
	if cause != nil {
		reason = fmt.Sprintf("%s: %v", FallbackReasonPrefix, cause)
	}
	return types.Verdict{
		Status: types.VerdictRevise,
		Reason: reason,
		Action: types.ActionRedoRetriever,
	}
}

// ParseOrFallback returns the parsed verdict, or the fallback and the parse
// error when the payload is malformed.
func ParseOrFallback(payload []byte) (types.Verdict, error) {
	v, err := ParseVerdict(payload)
	if err != nil {
		return FallbackVerdict(err), err
	}
	return v, nil
}

// EncodeVerdict renders v the way collaborators are expected to answer.
func EncodeVerdict(v types.Verdict) json.RawMessage {
	out := map[string]any{
		"status": v.Status,
		"reason": v.Reason,
		"action": nil,
	}
	if v.Action != types.ActionNone {
		out["action"] = v.Action
	}
	if v.RewriteQuery != "" {
		out["rewrite_query"] = v.RewriteQuery
	}
	b, _ := json.Marshal(out)
	return b
}

// ExtractJSON returns the outermost {...} span of s, or "" when there is none.
func ExtractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end == -1 || end <= start {
		return ""
	}
	return s[start : end+1]
}
