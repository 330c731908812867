package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/BaSui01/askflow/types"
	"go.uber.org/zap"
)

// Record describes one stage execution before it is frozen into a
// TraceEntry.
type Record struct {
	Stage  types.Stage
	Tool   string
	Input  any
	Output any
	// Status defaults to success, or error when Err is set. An explicit
	// warning keeps Err as detail.
	Status      types.TraceStatus
	Err         error
	CriticRound int
	Next        types.Stage
}

// Recorder appends immutable, ordered trace entries through a Store.
type Recorder struct {
	store  Store
	now    func() time.Time
	logger *zap.Logger
}

// NewRecorder creates a trace recorder.
func NewRecorder(store Store, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{
		store:  store,
		now:    time.Now,
		logger: logger.With(zap.String("component", "trace_recorder")),
	}
}

// WithClock overrides the timestamp source. Used by tests.
func (r *Recorder) WithClock(now func() time.Time) *Recorder {
	r.now = now
	return r
}

// Record snapshots rec and appends it to the task trace.
func (r *Recorder) Record(ctx context.Context, taskID string, rec Record) (types.TraceEntry, error) {
	entry, err := r.build(rec)
	if err != nil {
		return types.TraceEntry{}, err
	}

	stored, err := r.store.AppendTrace(ctx, taskID, entry)
	if err != nil {
		return types.TraceEntry{}, fmt.Errorf("failed to record trace for %s: %w", rec.Stage, err)
	}

	r.logger.Debug("trace recorded",
		zap.String("task_id", taskID),
		zap.Int("seq", stored.Seq),
		zap.String("stage", string(stored.Stage)),
		zap.String("status", string(stored.Status)),
		zap.String("next_step", string(stored.NextStep)),
	)
	return stored, nil
}

// Trace returns the recorded trace for taskID.
func (r *Recorder) Trace(ctx context.Context, taskID string) ([]types.TraceEntry, error) {
	mem, err := r.store.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return mem.Trace, nil
}

func (r *Recorder) build(rec Record) (types.TraceEntry, error) {
	if !rec.Stage.Valid() {
		return types.TraceEntry{}, fmt.Errorf("%w: unknown stage %q", ErrInvalidInput, rec.Stage)
	}

	in, err := types.NewSnapshot(rec.Input)
	if err != nil {
		return types.TraceEntry{}, fmt.Errorf("snapshot input: %w", err)
	}
	out, err := types.NewSnapshot(rec.Output)
	if err != nil {
		return types.TraceEntry{}, fmt.Errorf("snapshot output: %w", err)
	}

	status := rec.Status
	switch {
	case status == "" && rec.Err != nil:
		status = types.TraceError
	case status == "":
		status = types.TraceSuccess
	}
	entry := types.TraceEntry{
		Stage:       rec.Stage,
		Tool:        rec.Tool,
		Input:       in,
		Output:      out,
		Status:      status,
		CriticRound: rec.CriticRound,
		NextStep:    rec.Next,
		RecordedAt:  r.now().UTC(),
	}
	if rec.Err != nil {
		entry.Error = rec.Err.Error()
	}
	return entry, nil
}
