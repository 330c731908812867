package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/BaSui01/askflow/checkpoint"
	"github.com/BaSui01/askflow/critic"
	"github.com/BaSui01/askflow/internal/ctxkeys"
	"github.com/BaSui01/askflow/internal/telemetry"
	"github.com/BaSui01/askflow/memory"
	"github.com/BaSui01/askflow/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultMaxSteps bounds the number of stage executions per call.
const DefaultMaxSteps = 64

// Task outcomes reported to the observer.
const (
	OutcomePass  = "pass"
	OutcomeFail  = "fail"
	OutcomeError = "error"
)

// Resume results reported to the observer.
const (
	ResumeResumed      = "resumed"
	ResumeCompleted    = "already_done"
	ResumeNoCheckpoint = "no_checkpoint"
	ResumeError        = "error"
)

// Observer receives orchestration metrics. *metrics.Collector implements it.
type Observer interface {
	RecordStage(stage, status string, duration time.Duration)
	RecordCriticDecision(status string)
	RecordTaskFinished(outcome string)
	RecordResume(result string)
}

// Options configures an Orchestrator. Store, Checkpoints and the four
// collaborators are required.
type Options struct {
	Store       memory.Store
	Checkpoints *checkpoint.Manager
	Graph       *Graph

	Planner   Planner
	Retriever Retriever
	Judge     Judge
	Generator Generator

	Policy      critic.Policy
	TopK        int
	PreviewSize int
	MaxSteps    int

	Logger      *zap.Logger
	Metrics     Observer
	Instruments *telemetry.StageInstruments
	// Clock stamps trace entries and task metadata. Defaults to time.Now.
	Clock func() time.Time
}

// Orchestrator runs tasks through the stage graph. Different tasks may run
// concurrently; the same task id may only have one active run.
type Orchestrator struct {
	store       memory.Store
	recorder    *memory.Recorder
	checkpoints *checkpoint.Manager
	graph       *Graph
	nodes       map[types.Stage]Node
	maxSteps    int
	metrics     Observer
	instruments *telemetry.StageInstruments
	now         func() time.Time
	logger      *zap.Logger

	activeMu sync.Mutex
	active   map[string]struct{}
}

// New validates opts and builds an orchestrator with the standard nodes.
func New(opts Options) (*Orchestrator, error) {
	switch {
	case opts.Store == nil:
		return nil, types.NewError(types.ErrInvalidConfig, "memory store is required")
	case opts.Checkpoints == nil:
		return nil, types.NewError(types.ErrInvalidConfig, "checkpoint manager is required")
	case opts.Planner == nil, opts.Retriever == nil, opts.Judge == nil, opts.Generator == nil:
		return nil, types.NewError(types.ErrInvalidConfig, "planner, retriever, judge and generator are required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	graph := opts.Graph
	if graph == nil {
		graph = DefaultGraph()
	}
	maxSteps := opts.MaxSteps
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	policy := opts.Policy
	if policy.MaxRetry <= 0 {
		policy = critic.DefaultPolicy()
	}

	o := &Orchestrator{
		store:       opts.Store,
		recorder:    memory.NewRecorder(opts.Store, logger).WithClock(now),
		checkpoints: opts.Checkpoints,
		graph:       graph,
		maxSteps:    maxSteps,
		metrics:     opts.Metrics,
		instruments: opts.Instruments,
		now:         now,
		logger:      logger.With(zap.String("component", "orchestrator")),
		active:      make(map[string]struct{}),
	}
	o.nodes = map[types.Stage]Node{}
	for _, n := range []Node{
		NewPlannerNode(opts.Planner, logger),
		NewRetrieverNode(opts.Retriever, opts.TopK, logger),
		NewExecutorNode(opts.Generator, logger),
		NewCriticNode(opts.Judge, policy, opts.PreviewSize, logger),
		NewRewriteNode(logger),
		NewFailNode(logger),
	} {
		o.nodes[n.Stage()] = n
	}
	for _, s := range graph.Stages() {
		if _, ok := o.nodes[s]; !ok {
			return nil, types.NewError(types.ErrInvalidConfig, fmt.Sprintf("no node for stage %s", s))
		}
	}
	return o, nil
}

// NewTaskID returns a fresh task identifier.
func NewTaskID() string {
	return uuid.NewString()
}

// Start runs a fresh task for query. An empty taskID gets a generated one.
func (o *Orchestrator) Start(ctx context.Context, taskID, query string) (*types.TaskState, error) {
	if taskID == "" {
		taskID = NewTaskID()
	}
	return o.Run(ctx, *types.NewTaskState(taskID, query))
}

// Run executes a task from the graph entry. Any existing memory for the task
// is replaced.
func (o *Orchestrator) Run(ctx context.Context, initial types.TaskState) (*types.TaskState, error) {
	if initial.TaskID == "" {
		return nil, types.NewError(types.ErrInvalidConfig, "task id is required")
	}
	release, err := o.acquire(initial.TaskID)
	if err != nil {
		return nil, err
	}
	defer release()

	state := initial.Clone()
	if state.Retrieval.Round == 0 {
		state.Retrieval = types.RetrievalContext{Round: 1, Query: state.UserQuery, Source: types.SourceUser}
	}

	mem := types.NewTaskMemory(state.TaskID, state.UserQuery, o.now())
	mem.Retrieval = state.Retrieval.Clone()
	if err := o.store.Put(ctx, mem); err != nil {
		return nil, types.NewError(types.ErrStorageFailed, "create task memory").
			WithCause(err).WithTask(state.TaskID)
	}

	o.logger.Info("task started",
		zap.String("task_id", state.TaskID),
		zap.String("query", state.UserQuery),
	)
	return o.loop(ctx, state, o.graph.Entry())
}

// Resume continues a task from its latest checkpoint. A missing checkpoint
// yields an error for which IsNoCheckpoint reports true; callers fall back
// to Start.
func (o *Orchestrator) Resume(ctx context.Context, taskID string) (*types.TaskState, error) {
	release, err := o.acquire(taskID)
	if err != nil {
		return nil, err
	}
	defer release()

	cp, err := o.checkpoints.Load(ctx, taskID)
	if err != nil {
		if errors.Is(err, checkpoint.ErrNotFound) {
			o.recordResume(ResumeNoCheckpoint)
			o.logger.Info("no checkpoint to resume", zap.String("task_id", taskID))
			return nil, types.NewError(types.ErrCheckpointNotFound, "no checkpoint for task").
				WithCause(err).WithTask(taskID)
		}
		o.recordResume(ResumeError)
		return nil, types.NewError(types.ErrInvalidCheckpoint, "load checkpoint").
			WithCause(err).WithTask(taskID)
	}

	if err := o.store.Put(ctx, &cp.Memory); err != nil {
		o.recordResume(ResumeError)
		return nil, types.NewError(types.ErrStorageFailed, "restore task memory").
			WithCause(err).WithTask(taskID)
	}

	state := cp.State.Clone()
	if cp.NextStep.IsTerminal() {
		o.recordResume(ResumeCompleted)
		o.logger.Info("task already finished", zap.String("task_id", taskID))
		return state, nil
	}

	o.recordResume(ResumeResumed)
	o.logger.Info("resuming task",
		zap.String("task_id", taskID),
		zap.String("last_step", string(cp.LastStep)),
		zap.String("next_step", string(cp.NextStep)),
		zap.Int("trace_len", len(cp.Memory.Trace)),
	)
	return o.loop(ctx, state, cp.NextStep)
}

// RunOrResume resumes taskID when a checkpoint exists and starts a fresh
// run otherwise.
func (o *Orchestrator) RunOrResume(ctx context.Context, taskID, query string) (*types.TaskState, error) {
	state, err := o.Resume(ctx, taskID)
	if err == nil || !IsNoCheckpoint(err) {
		return state, err
	}
	return o.Start(ctx, taskID, query)
}

// Trace returns the recorded trace of a task.
func (o *Orchestrator) Trace(ctx context.Context, taskID string) ([]types.TraceEntry, error) {
	return o.recorder.Trace(ctx, taskID)
}

// IsNoCheckpoint reports whether err means the task had nothing to resume.
func IsNoCheckpoint(err error) bool {
	return types.IsErrorCode(err, types.ErrCheckpointNotFound)
}

// loop drives the machine from stage until a terminal stage. A failed stage
// aborts the task without a final state; the last checkpoint still points
// at the failed stage so the task can be resumed.
func (o *Orchestrator) loop(ctx context.Context, state *types.TaskState, stage types.Stage) (*types.TaskState, error) {
	for steps := 0; !stage.IsTerminal(); steps++ {
		if steps >= o.maxSteps {
			o.recordFinished(OutcomeError)
			return nil, types.NewError(types.ErrStepLimit,
				fmt.Sprintf("task did not finish within %d steps", o.maxSteps)).
				WithTask(state.TaskID).WithStage(stage)
		}
		if err := ctx.Err(); err != nil {
			o.recordFinished(OutcomeError)
			return nil, err
		}

		next, err := o.step(ctx, state, stage)
		if err != nil {
			o.recordFinished(OutcomeError)
			o.logger.Error("task aborted",
				zap.String("task_id", state.TaskID),
				zap.String("stage", string(stage)),
				zap.Error(err),
			)
			return nil, err
		}
		stage = next
	}

	outcome := OutcomePass
	if state.Failed() {
		outcome = OutcomeFail
	}
	o.recordFinished(outcome)
	o.logger.Info("task finished",
		zap.String("task_id", state.TaskID),
		zap.String("outcome", outcome),
		zap.Int("trace_len", state.TraceCount),
	)
	return state, nil
}

// step runs one stage and persists memory, trace and checkpoint in that
// order. state is only updated once all three writes succeed.
func (o *Orchestrator) step(ctx context.Context, state *types.TaskState, stage types.Stage) (types.Stage, error) {
	node, ok := o.nodes[stage]
	if !ok {
		return "", types.NewError(types.ErrIllegalTransition, "no node for stage").
			WithTask(state.TaskID).WithStage(stage)
	}

	mem, err := o.store.Get(ctx, state.TaskID)
	if err != nil {
		return "", types.NewError(types.ErrStorageFailed, "load task memory").
			WithCause(err).WithTask(state.TaskID).WithStage(stage)
	}

	work := state.Clone()
	round := work.Retrieval.Round
	retries := mem.RetryCount()
	start := time.Now()

	stageCtx := ctxkeys.WithRound(ctxkeys.WithStage(ctxkeys.WithTaskID(ctx, work.TaskID), string(stage)), round)
	spanCtx, span := o.startSpan(stageCtx, work.TaskID, stage, round)
	res, runErr := node.Run(spanCtx, work, mem)
	if runErr != nil {
		o.recordStage(stage, types.TraceError, time.Since(start))
		o.endSpan(spanCtx, span, types.TraceError, "", runErr)
		return "", o.stageFailure(ctx, state, stage, retries, runErr)
	}

	next, err := o.graph.Next(stage, res.Decision)
	if err == nil && res.Next != "" && res.Next != next {
		err = fmt.Errorf("node declared %s, graph resolved %s", res.Next, next)
	}
	if err != nil {
		o.endSpan(spanCtx, span, types.TraceError, "", err)
		return "", types.NewError(types.ErrIllegalTransition, "resolve successor").
			WithCause(err).WithTask(state.TaskID).WithStage(stage)
	}

	if err := o.store.Put(ctx, mem); err != nil {
		o.endSpan(spanCtx, span, types.TraceError, string(next), err)
		return "", types.NewError(types.ErrStorageFailed, "save task memory").
			WithCause(err).WithTask(state.TaskID).WithStage(stage)
	}

	rec := memory.Record{
		Stage:       stage,
		Tool:        res.Tool,
		Input:       res.Input,
		Output:      res.Output,
		Status:      res.Status,
		CriticRound: mem.RetryCount(),
		Next:        next,
	}
	if res.Warning != "" {
		rec.Err = errors.New(res.Warning)
	}
	if _, err := o.recorder.Record(ctx, work.TaskID, rec); err != nil {
		o.endSpan(spanCtx, span, types.TraceError, string(next), err)
		return "", types.NewError(types.ErrStorageFailed, "record trace").
			WithCause(err).WithTask(state.TaskID).WithStage(stage)
	}
	mem, err = o.store.Get(ctx, work.TaskID)
	if err != nil {
		o.endSpan(spanCtx, span, types.TraceError, string(next), err)
		return "", types.NewError(types.ErrStorageFailed, "reload task memory").
			WithCause(err).WithTask(state.TaskID).WithStage(stage)
	}
	work.TraceCount = len(mem.Trace)
	work.Route = next

	if err := o.checkpoints.Save(ctx, stage, next, work, mem); err != nil {
		o.endSpan(spanCtx, span, types.TraceError, string(next), err)
		return "", types.NewError(types.ErrStorageFailed, "save checkpoint").
			WithCause(err).WithTask(state.TaskID).WithStage(stage)
	}

	status := res.Status
	if status == "" {
		status = types.TraceSuccess
	}
	o.recordStage(stage, status, time.Since(start))
	if res.Decision != nil && o.metrics != nil {
		o.metrics.RecordCriticDecision(string(res.Decision.Status()))
	}
	o.endSpan(spanCtx, span, status, string(next), nil)

	*state = *work
	return next, nil
}

// stageFailure records an error entry for a failed node and returns the
// error to surface. Collaborator errors are wrapped; typed errors pass
// through unchanged. retries is the critic retry count before the stage ran.
func (o *Orchestrator) stageFailure(ctx context.Context, state *types.TaskState, stage types.Stage, retries int, runErr error) error {
	if _, err := o.recorder.Record(ctx, state.TaskID, memory.Record{
		Stage:       stage,
		Tool:        string(stage),
		Err:         runErr,
		CriticRound: retries,
	}); err != nil {
		o.logger.Error("failed to record stage error",
			zap.String("task_id", state.TaskID),
			zap.String("stage", string(stage)),
			zap.Error(err),
		)
	}

	var typed *types.Error
	if errors.As(runErr, &typed) {
		if typed.TaskID == "" {
			typed.TaskID = state.TaskID
		}
		if typed.Stage == "" {
			typed.Stage = stage
		}
		return typed
	}
	return types.NewError(types.ErrCollaboratorFailed, "collaborator call failed").
		WithCause(runErr).WithTask(state.TaskID).WithStage(stage)
}

func (o *Orchestrator) acquire(taskID string) (func(), error) {
	o.activeMu.Lock()
	defer o.activeMu.Unlock()
	if _, busy := o.active[taskID]; busy {
		return nil, types.NewError(types.ErrTaskActive, "task already has an active run").WithTask(taskID)
	}
	o.active[taskID] = struct{}{}
	return func() {
		o.activeMu.Lock()
		delete(o.active, taskID)
		o.activeMu.Unlock()
	}, nil
}

func (o *Orchestrator) startSpan(ctx context.Context, taskID string, stage types.Stage, round int) (context.Context, *telemetry.StageSpan) {
	if o.instruments == nil {
		return ctx, nil
	}
	return o.instruments.Start(ctx, taskID, string(stage), round)
}

func (o *Orchestrator) endSpan(ctx context.Context, span *telemetry.StageSpan, status types.TraceStatus, next string, err error) {
	if span != nil {
		span.End(ctx, string(status), next, err)
	}
}

func (o *Orchestrator) recordStage(stage types.Stage, status types.TraceStatus, d time.Duration) {
	if o.metrics != nil {
		o.metrics.RecordStage(string(stage), string(status), d)
	}
}

func (o *Orchestrator) recordFinished(outcome string) {
	if o.metrics != nil {
		o.metrics.RecordTaskFinished(outcome)
	}
}

func (o *Orchestrator) recordResume(result string) {
	if o.metrics != nil {
		o.metrics.RecordResume(result)
	}
}
