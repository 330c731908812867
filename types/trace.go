package types

import (
	"bytes"
	"encoding/json"
	"time"
)

// TraceStatus is the outcome recorded for one stage execution.
type TraceStatus string

const (
	TraceSuccess TraceStatus = "success"
	TraceWarning TraceStatus = "warning"
	TraceError   TraceStatus = "error"
)

// Snapshot is compact JSON captured when a trace entry is recorded. It is
// normalized on decode so that indented checkpoint files load back to the
// same bytes.
type Snapshot []byte

// NewSnapshot marshals v into a snapshot. A nil v yields a nil snapshot.
func NewSnapshot(v any) (Snapshot, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return Snapshot(b), nil
}

// MarshalJSON implements json.Marshaler.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	if len(s) == 0 {
		return []byte("null"), nil
	}
	return s, nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*s = nil
		return nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, data); err != nil {
		return err
	}
	*s = Snapshot(buf.Bytes())
	return nil
}

// TraceEntry 只追加的执行轨迹条目，按执行顺序排列，是断点续跑的依据。
type TraceEntry struct {
	Seq         int         `json:"seq"`
	Stage       Stage       `json:"step"`
	Tool        string      `json:"tool"`
	Input       Snapshot    `json:"input,omitempty"`
	Output      Snapshot    `json:"output,omitempty"`
	Status      TraceStatus `json:"status"`
	Error       string      `json:"error,omitempty"`
	// CriticRound 记录条目写入时任务记忆中的评审重试计数。
	CriticRound int         `json:"critic_round"`
	NextStep    Stage       `json:"next_step,omitempty"`
	RecordedAt  time.Time   `json:"recorded_at"`
}

// Clone returns a deep copy.
func (e TraceEntry) Clone() TraceEntry {
	e.Input = cloneSlice(e.Input)
	e.Output = cloneSlice(e.Output)
	return e
}
