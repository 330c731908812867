package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BaSui01/askflow/types"
	"go.uber.org/zap"
)

// Common errors
var (
	ErrNotFound      = errors.New("checkpoint not found")
	ErrInvalid       = errors.New("invalid checkpoint")
	ErrStoreClosed   = errors.New("checkpoint store is closed")
	ErrInvalidTaskID = errors.New("invalid task id")
)

// Checkpoint is the snapshot written after every completed stage.
type Checkpoint struct {
	TaskID   string           `json:"task_id"`
	LastStep types.Stage      `json:"last_step"`
	NextStep types.Stage      `json:"next_step"`
	State    types.TaskState  `json:"state"`
	Memory   types.TaskMemory `json:"memory"`
}

// Validate checks the invariants a loadable checkpoint must hold.
func (c *Checkpoint) Validate() error {
	switch {
	case c == nil:
		return fmt.Errorf("%w: nil", ErrInvalid)
	case c.TaskID == "":
		return fmt.Errorf("%w: empty task id", ErrInvalid)
	case !c.LastStep.Valid():
		return fmt.Errorf("%w: unknown last_step %q", ErrInvalid, c.LastStep)
	case !c.NextStep.Valid():
		return fmt.Errorf("%w: unknown next_step %q", ErrInvalid, c.NextStep)
	case c.State.TaskID != c.TaskID:
		return fmt.Errorf("%w: state belongs to %q", ErrInvalid, c.State.TaskID)
	case c.Memory.Meta.TaskID != c.TaskID:
		return fmt.Errorf("%w: memory belongs to %q", ErrInvalid, c.Memory.Meta.TaskID)
	}
	return nil
}

// Store persists one checkpoint per task.
type Store interface {
	// Save overwrites the checkpoint of cp.TaskID.
	Save(ctx context.Context, cp *Checkpoint) error
	// Load returns the checkpoint for taskID or ErrNotFound.
	Load(ctx context.Context, taskID string) (*Checkpoint, error)
	// Delete removes the checkpoint. Missing checkpoints are not an error.
	Delete(ctx context.Context, taskID string) error
	Close() error
}

// WriteObserver is notified after every save attempt.
type WriteObserver interface {
	ObserveCheckpointWrite(backend string, duration time.Duration, err error)
}

// Manager 检查点管理器
type Manager struct {
	store    Store
	backend  string
	observer WriteObserver
	logger   *zap.Logger
}

// NewManager 创建检查点管理器。backend 仅用于日志与指标标签。
func NewManager(store Store, backend string, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		store:   store,
		backend: backend,
		logger:  logger.With(zap.String("component", "checkpoint_manager"), zap.String("backend", backend)),
	}
}

// WithObserver attaches a write observer such as the metrics collector.
func (m *Manager) WithObserver(o WriteObserver) *Manager {
	m.observer = o
	return m
}

// Save 保存检查点，覆盖该任务已有的检查点。
func (m *Manager) Save(ctx context.Context, last, next types.Stage, state *types.TaskState, mem *types.TaskMemory) error {
	if state == nil || mem == nil {
		return fmt.Errorf("%w: state and memory are required", ErrInvalid)
	}
	cp := &Checkpoint{
		TaskID:   state.TaskID,
		LastStep: last,
		NextStep: next,
		State:    *state.Clone(),
		Memory:   *mem.Clone(),
	}
	if err := cp.Validate(); err != nil {
		return err
	}

	start := time.Now()
	err := m.store.Save(ctx, cp)
	if m.observer != nil {
		m.observer.ObserveCheckpointWrite(m.backend, time.Since(start), err)
	}
	if err != nil {
		m.logger.Error("checkpoint save failed",
			zap.String("task_id", cp.TaskID),
			zap.String("last_step", string(last)),
			zap.Error(err),
		)
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}

	m.logger.Debug("checkpoint saved",
		zap.String("task_id", cp.TaskID),
		zap.String("last_step", string(last)),
		zap.String("next_step", string(next)),
		zap.Int("trace_len", len(cp.Memory.Trace)),
	)
	return nil
}

// Load 加载检查点。未找到时返回包装了 ErrNotFound 的错误。
func (m *Manager) Load(ctx context.Context, taskID string) (*Checkpoint, error) {
	cp, err := m.store.Load(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	if err := cp.Validate(); err != nil {
		return nil, err
	}
	if cp.TaskID != taskID {
		return nil, fmt.Errorf("%w: requested %q, found %q", ErrInvalid, taskID, cp.TaskID)
	}
	m.logger.Debug("checkpoint loaded",
		zap.String("task_id", taskID),
		zap.String("next_step", string(cp.NextStep)),
	)
	return cp, nil
}

// Delete 删除检查点
func (m *Manager) Delete(ctx context.Context, taskID string) error {
	if err := m.store.Delete(ctx, taskID); err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}

// Close closes the underlying store.
func (m *Manager) Close() error {
	return m.store.Close()
}
