package workflow

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/BaSui01/askflow/checkpoint"
	"github.com/BaSui01/askflow/critic"
	"github.com/BaSui01/askflow/internal/metrics"
	"github.com/BaSui01/askflow/internal/telemetry"
	"github.com/BaSui01/askflow/memory"
	"github.com/BaSui01/askflow/testutil"
	"github.com/BaSui01/askflow/testutil/mocks"
	"github.com/BaSui01/askflow/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

type collaborators struct {
	planner   *mocks.Planner
	retriever *mocks.Retriever
	judge     *mocks.Judge
	generator *mocks.Generator
}

type harness struct {
	orch        *Orchestrator
	store       memory.Store
	checkpoints *checkpoint.Manager
	dir         string
}

func newHarness(t *testing.T, c collaborators, tweak ...func(*Options)) *harness {
	t.Helper()

	dir := t.TempDir()
	fs, err := checkpoint.NewFileStore(dir)
	require.NoError(t, err)

	h := &harness{
		store:       memory.NewInMemoryStore(),
		checkpoints: checkpoint.NewManager(fs, "file", nil),
		dir:         dir,
	}
	h.orch = h.build(t, c, tweak...)
	return h
}

// build creates a fresh orchestrator over the harness stores.
func (h *harness) build(t *testing.T, c collaborators, tweak ...func(*Options)) *Orchestrator {
	t.Helper()
	opts := Options{
		Store:       h.store,
		Checkpoints: h.checkpoints,
		Planner:     c.planner,
		Retriever:   c.retriever,
		Judge:       c.judge,
		Generator:   c.generator,
		Policy:      critic.DefaultPolicy(),
		TopK:        3,
		PreviewSize: 3,
		Clock:       testutil.FixedClock(fixedNow),
	}
	for _, fn := range tweak {
		fn(&opts)
	}
	o, err := New(opts)
	require.NoError(t, err)
	return o
}

func orderIntent() *mocks.Planner {
	return mocks.NewPlanner(types.IntentContext{Topic: "订单", Intent: "qa", TaskPlan: []string{"retrieve", "answer"}})
}

func stagesOf(trace []types.TraceEntry) []types.Stage {
	out := make([]types.Stage, len(trace))
	for i, e := range trace {
		out[i] = e.Stage
	}
	return out
}

func criticRoundsOf(trace []types.TraceEntry) []int {
	out := make([]int, len(trace))
	for i, e := range trace {
		out[i] = e.CriticRound
	}
	return out
}

func TestOrchestrator_ScenarioA_PassOnFirstRound(t *testing.T) {
	ctx := testutil.TestContext(t)
	h := newHarness(t, collaborators{
		planner:   orderIntent(),
		retriever: mocks.NewRetriever(testutil.Hits("订单查询接口", "订单列表查询接口")),
		judge:     mocks.NewJudge(mocks.Pass("evidence matches")),
		generator: mocks.NewGenerator("订单查询接口：GET /api/orders/{order_id}"),
	})

	final, err := h.orch.Start(ctx, "task-a", "查询订单接口说明")
	require.NoError(t, err)

	assert.Equal(t, "订单查询接口：GET /api/orders/{order_id}", final.Answer)
	assert.Equal(t, types.StatusPass, final.Critic.Status())
	assert.Equal(t, 0, final.Critic.RetryCount)
	assert.False(t, final.Failed())
	assert.Equal(t, 1, final.Retrieval.Round)
	assert.Equal(t, types.StageDone, final.Route)

	mem, err := h.store.Get(ctx, "task-a")
	require.NoError(t, err)
	assert.Equal(t, []types.Stage{
		types.StagePlan, types.StageRetrieve, types.StageExecute, types.StageCritique,
	}, stagesOf(mem.Trace))
	assert.Equal(t, 4, final.TraceCount)

	next := []types.Stage{types.StageRetrieve, types.StageExecute, types.StageCritique, types.StageDone}
	for i, e := range mem.Trace {
		assert.Equal(t, i+1, e.Seq)
		assert.Equal(t, next[i], e.NextStep)
		assert.Equal(t, types.TraceSuccess, e.Status)
		assert.Zero(t, e.CriticRound)
		assert.Equal(t, fixedNow, e.RecordedAt)
	}

	cp, err := h.checkpoints.Load(ctx, "task-a")
	require.NoError(t, err)
	assert.Equal(t, types.StageCritique, cp.LastStep)
	assert.Equal(t, types.StageDone, cp.NextStep)
	assert.Equal(t, *mem, cp.Memory)
	assert.Equal(t, *final, cp.State)
}

func TestOrchestrator_ScenarioB_RewriteThenPass(t *testing.T) {
	ctx := testutil.TestContext(t)
	retriever := mocks.NewRetriever(nil).
		On("订单详情布局", testutil.Hits("订单查询接口")).
		On("页面", testutil.Hits("我的订单页面说明"))
	h := newHarness(t, collaborators{
		planner:   mocks.NewPlanner(types.IntentContext{Topic: "页面", Intent: "qa"}),
		retriever: retriever,
		judge:     mocks.NewJudge(mocks.Rewrite("evidence does not cover 页面", "页面"), mocks.Pass("ok")),
		generator: mocks.NewGenerator("我的订单页面展示订单状态与物流信息"),
	})

	final, err := h.orch.Start(ctx, "task-b", "订单详情布局")
	require.NoError(t, err)

	assert.Equal(t, types.StatusPass, final.Critic.Status())
	assert.Equal(t, 0, final.Critic.RetryCount)
	assert.Equal(t, types.RetrievalContext{
		Round:  2,
		Query:  "页面",
		Source: types.SourceQueryRewrite,
		Hits:   testutil.Hits("我的订单页面说明"),
	}, final.Retrieval)

	calls := retriever.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "订单详情布局", calls[0].Query)
	assert.Equal(t, "页面", calls[1].Query)

	mem, err := h.store.Get(ctx, "task-b")
	require.NoError(t, err)
	require.Len(t, mem.RetrievalHistory, 1)
	assert.Equal(t, 1, mem.RetrievalHistory[0].Round)
	assert.Equal(t, "订单详情布局", mem.RetrievalHistory[0].Query)
	assert.Equal(t, types.RetryWithRewrite{Query: "页面"}, mem.RetrievalHistory[0].Critic.Decision)

	assert.Equal(t, []types.Stage{
		types.StagePlan, types.StageRetrieve, types.StageExecute, types.StageCritique,
		types.StageRewrite, types.StageRetrieve, types.StageExecute, types.StageCritique,
	}, stagesOf(mem.Trace))
	// critic_round 记录阶段结束时的重试计数：改写后计数为 1，通过后归零
	assert.Equal(t, []int{0, 0, 0, 1, 1, 1, 1, 0}, criticRoundsOf(mem.Trace))
	assert.Equal(t, types.StageRewrite, mem.Trace[3].NextStep)
}

func TestOrchestrator_ScenarioC_RetryLimitFails(t *testing.T) {
	ctx := testutil.TestContext(t)
	judge := mocks.NewJudge(mocks.Redo("no evidence retrieved"))
	h := newHarness(t, collaborators{
		planner:   orderIntent(),
		retriever: mocks.NewRetriever(nil),
		judge:     judge,
		generator: mocks.NewGenerator("抱歉，没有找到资料"),
	})

	final, err := h.orch.Start(ctx, "task-c", "量子计算")
	require.NoError(t, err)

	assert.True(t, final.Failed())
	assert.Equal(t, types.Fail{Reason: critic.RetryLimitReason, Kind: types.FailRetryLimit}, final.Critic.Decision)
	assert.Contains(t, final.Answer, "retry limit exceeded")
	assert.Equal(t, 3, judge.Calls())

	mem, err := h.store.Get(ctx, "task-c")
	require.NoError(t, err)

	revisions := 0
	for _, e := range mem.Trace {
		if e.Stage != types.StageCritique {
			continue
		}
		var out types.CriticResult
		require.NoError(t, out.UnmarshalJSON(e.Output))
		if out.Status() == types.StatusReviseRetry || out.Status() == types.StatusReviseRewrite {
			revisions++
		}
	}
	assert.LessOrEqual(t, revisions, critic.DefaultMaxRetry)

	// 每次 revise 之后的条目都带上新的重试计数，触顶失败时计数不变
	assert.Equal(t, []int{0, 0, 0, 1, 1, 1, 2, 2, 2, 2, 2}, criticRoundsOf(mem.Trace))
	var critiques []int
	for _, e := range mem.Trace {
		if e.Stage == types.StageCritique {
			critiques = append(critiques, e.CriticRound)
		}
	}
	assert.Equal(t, []int{1, 2, 2}, critiques)

	last := mem.Trace[len(mem.Trace)-1]
	assert.Equal(t, types.StageFail, last.Stage)
	assert.Equal(t, types.TraceWarning, last.Status)
	assert.Equal(t, types.StageDone, last.NextStep)
	assert.Len(t, mem.Trace, 11)
}

func TestOrchestrator_ScenarioD_RewriteWithoutQueryIsFatal(t *testing.T) {
	ctx := testutil.TestContext(t)
	c := collaborators{
		planner:   orderIntent(),
		retriever: mocks.NewRetriever(testutil.Hits("订单查询接口")),
		judge:     mocks.NewJudge(mocks.Pass("ok")),
		generator: mocks.NewGenerator("answer"),
	}
	h := newHarness(t, c)

	// 检查点声明下一步为 rewrite，但评审结果没有 rewrite_query
	state := types.NewTaskState("task-d", "订单")
	state.Critic = &types.CriticResult{Decision: types.RetryRetrieve{}, Reason: "weak", RetryCount: 1}
	mem := types.NewTaskMemory("task-d", "订单", fixedNow)
	mem.Critic = state.Critic.Clone()
	require.NoError(t, h.checkpoints.Save(ctx, types.StageCritique, types.StageRewrite, state, mem))

	final, err := h.orch.Resume(ctx, "task-d")
	require.Error(t, err)
	assert.Nil(t, final)
	assert.True(t, types.IsErrorCode(err, types.ErrContractViolation))

	var typed *types.Error
	require.True(t, errors.As(err, &typed))
	assert.Equal(t, types.StageRewrite, typed.Stage)
	assert.Equal(t, "task-d", typed.TaskID)

	stored, err := h.store.Get(ctx, "task-d")
	require.NoError(t, err)
	require.Len(t, stored.Trace, 1)
	assert.Equal(t, types.TraceError, stored.Trace[0].Status)
	assert.Empty(t, stored.RetrievalHistory)

	// 检查点未被推进
	cp, err := h.checkpoints.Load(ctx, "task-d")
	require.NoError(t, err)
	assert.Equal(t, types.StageRewrite, cp.NextStep)
	assert.Empty(t, cp.State.Answer)
	assert.Zero(t, c.generator.Calls())
}

func TestOrchestrator_ResumeReproducesUninterruptedTrace(t *testing.T) {
	ctx := testutil.TestContext(t)

	newCollaborators := func(gen *mocks.Generator) collaborators {
		return collaborators{
			planner: mocks.NewPlanner(types.IntentContext{Topic: "页面", Intent: "qa"}),
			retriever: mocks.NewRetriever(nil).
				On("订单详情布局", testutil.Hits("订单查询接口")).
				On("页面", testutil.Hits("我的订单页面说明")),
			judge:     mocks.NewJudge(mocks.Rewrite("off topic", "页面"), mocks.Pass("ok")),
			generator: gen,
		}
	}

	// 不中断的参照运行
	ref := newHarness(t, newCollaborators(mocks.NewGenerator("draft")))
	want, err := ref.orch.Start(ctx, "task-r", "订单详情布局")
	require.NoError(t, err)
	wantMem, err := ref.store.Get(ctx, "task-r")
	require.NoError(t, err)

	// 第一次生成失败，任务在 execute 前中断
	flaky := mocks.NewGenerator("draft").WithErrors(mocks.ErrMockUnavailable)
	h := newHarness(t, newCollaborators(flaky))
	_, err = h.orch.Start(ctx, "task-r", "订单详情布局")
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrCollaboratorFailed))
	assert.ErrorIs(t, err, mocks.ErrMockUnavailable)

	cp, err := h.checkpoints.Load(ctx, "task-r")
	require.NoError(t, err)
	assert.Equal(t, types.StageRetrieve, cp.LastStep)
	assert.Equal(t, types.StageExecute, cp.NextStep)

	// 新的编排器实例从检查点继续
	resumed := h.build(t, newCollaborators(flaky))
	got, err := resumed.Resume(ctx, "task-r")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	gotMem, err := h.store.Get(ctx, "task-r")
	require.NoError(t, err)
	assert.Equal(t, wantMem, gotMem)
}

func TestOrchestrator_ResumeWithoutCheckpoint(t *testing.T) {
	ctx := testutil.TestContext(t)
	h := newHarness(t, collaborators{
		planner:   orderIntent(),
		retriever: mocks.NewRetriever(testutil.Hits("订单查询接口")),
		judge:     mocks.NewJudge(mocks.Pass("ok")),
		generator: mocks.NewGenerator("answer"),
	})

	_, err := h.orch.Resume(ctx, "missing")
	require.Error(t, err)
	assert.True(t, IsNoCheckpoint(err))
	assert.ErrorIs(t, err, checkpoint.ErrNotFound)

	final, err := h.orch.RunOrResume(ctx, "missing", "查询订单接口说明")
	require.NoError(t, err)
	assert.Equal(t, "answer", final.Answer)
}

func TestOrchestrator_ResumeFinishedTaskReturnsStoredState(t *testing.T) {
	ctx := testutil.TestContext(t)
	judge := mocks.NewJudge(mocks.Pass("ok"))
	h := newHarness(t, collaborators{
		planner:   orderIntent(),
		retriever: mocks.NewRetriever(testutil.Hits("订单查询接口")),
		judge:     judge,
		generator: mocks.NewGenerator("answer"),
	})

	first, err := h.orch.Start(ctx, "task-f", "查询订单接口说明")
	require.NoError(t, err)

	again, err := h.orch.RunOrResume(ctx, "task-f", "ignored")
	require.NoError(t, err)
	assert.Equal(t, first, again)
	assert.Equal(t, 1, judge.Calls())
}

func TestOrchestrator_RejectsConcurrentRunOfSameTask(t *testing.T) {
	ctx := testutil.TestContext(t)
	h := newHarness(t, collaborators{
		planner:   orderIntent(),
		retriever: mocks.NewRetriever(testutil.Hits("订单查询接口")),
		judge:     mocks.NewJudge(mocks.Pass("ok")),
		generator: mocks.NewGenerator("answer"),
	})

	release, err := h.orch.acquire("busy")
	require.NoError(t, err)

	_, err = h.orch.Start(ctx, "busy", "q")
	assert.True(t, types.IsErrorCode(err, types.ErrTaskActive))
	_, err = h.orch.Resume(ctx, "busy")
	assert.True(t, types.IsErrorCode(err, types.ErrTaskActive))

	release()

	// 不同任务互不影响
	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = h.orch.Start(ctx, "", "查询订单接口说明")
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		assert.NoError(t, err)
	}
}

func TestOrchestrator_StepLimit(t *testing.T) {
	ctx := testutil.TestContext(t)
	h := newHarness(t, collaborators{
		planner:   orderIntent(),
		retriever: mocks.NewRetriever(testutil.Hits("订单查询接口")),
		judge:     mocks.NewJudge(mocks.Pass("ok")),
		generator: mocks.NewGenerator("answer"),
	}, func(o *Options) { o.MaxSteps = 2 })

	_, err := h.orch.Start(ctx, "task-s", "q")
	assert.True(t, types.IsErrorCode(err, types.ErrStepLimit))
}

func TestNew_ValidatesOptions(t *testing.T) {
	_, err := New(Options{})
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidConfig))

	fs, err := checkpoint.NewFileStore(t.TempDir())
	require.NoError(t, err)
	_, err = New(Options{
		Store:       memory.NewInMemoryStore(),
		Checkpoints: checkpoint.NewManager(fs, "file", nil),
		Planner:     orderIntent(),
	})
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidConfig))
}

func TestOrchestrator_ReportsMetricsAndSpans(t *testing.T) {
	ctx := testutil.TestContext(t)
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollectorWithRegistry("askflow", reg, nil)
	instruments, err := telemetry.NewStageInstruments()
	require.NoError(t, err)

	h := newHarness(t, collaborators{
		planner:   orderIntent(),
		retriever: mocks.NewRetriever(testutil.Hits("订单查询接口")),
		judge:     mocks.NewJudge(mocks.Pass("ok")),
		generator: mocks.NewGenerator("answer"),
	}, func(o *Options) {
		o.Metrics = collector
		o.Instruments = instruments
	})
	h.checkpoints.WithObserver(collector)

	_, err = h.orch.Start(ctx, "task-m", "查询订单接口说明")
	require.NoError(t, err)
	_, err = h.orch.Resume(ctx, "none")
	require.Error(t, err)

	families, err := reg.Gather()
	require.NoError(t, err)
	seen := map[string]float64{}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			if c := m.GetCounter(); c != nil {
				seen[mf.GetName()] += c.GetValue()
			}
		}
	}
	assert.Equal(t, 4.0, seen["askflow_stage_executions_total"])
	assert.Equal(t, 1.0, seen["askflow_critic_decisions_total"])
	assert.Equal(t, 4.0, seen["askflow_checkpoint_writes_total"])
	assert.Equal(t, 1.0, seen["askflow_tasks_finished_total"])
	assert.Equal(t, 1.0, seen["askflow_task_resumes_total"])
}
