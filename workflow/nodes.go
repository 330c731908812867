package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/BaSui01/askflow/critic"
	"github.com/BaSui01/askflow/types"
	"go.uber.org/zap"
)

// NoAnswerDraft replaces an empty draft so the judge always has text.
const NoAnswerDraft = "抱歉，暂时无法根据现有资料给出答案。"

// FailMessageFormat renders the answer written by the fail stage.
const FailMessageFormat = "检索失败（终止）\n原因：%s\n类型：%s"

// Node executes one stage on a private copy of the task state. It may
// update mem in place; the orchestrator persists mem after Run returns.
type Node interface {
	Stage() types.Stage
	Run(ctx context.Context, state *types.TaskState, mem *types.TaskMemory) (*Result, error)
}

// Result is what a node reports back to the orchestrator.
type Result struct {
	// Next is the successor the node declares. It must agree with the graph.
	Next types.Stage
	// Decision is set by the critique stage only.
	Decision types.Decision
	Tool     string
	Input    any
	Output   any
	// Status defaults to success.
	Status types.TraceStatus
	// Warning is logged and stored in the trace entry error field.
	Warning string
}

// =============================================================================
// Plan
// =============================================================================

// PlannerNode builds the intent context.
type PlannerNode struct {
	planner Planner
	logger  *zap.Logger
}

// NewPlannerNode creates the plan stage.
func NewPlannerNode(p Planner, logger *zap.Logger) *PlannerNode {
	return &PlannerNode{planner: p, logger: nodeLogger(logger, types.StagePlan)}
}

func (n *PlannerNode) Stage() types.Stage { return types.StagePlan }

func (n *PlannerNode) Run(ctx context.Context, state *types.TaskState, mem *types.TaskMemory) (*Result, error) {
	raw, err := n.planner.Plan(ctx, state.UserQuery)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Next:  types.StageRetrieve,
		Tool:  "planner",
		Input: map[string]any{"query": state.UserQuery},
	}

	intent, perr := parseIntent(raw)
	if perr != nil {
		n.logger.Warn("planner output unparseable, using default intent",
			zap.String("task_id", state.TaskID),
			zap.Error(perr),
		)
		intent = types.DefaultIntent(state.UserQuery)
		res.Status = types.TraceWarning
		res.Warning = perr.Error()
	}

	state.Intent = &intent
	mem.Intent = intent.Clone()
	res.Output = intent
	return res, nil
}

func parseIntent(raw json.RawMessage) (types.IntentContext, error) {
	body := critic.ExtractJSON(string(raw))
	if body == "" {
		return types.IntentContext{}, fmt.Errorf("no JSON object in planner output")
	}
	var intent types.IntentContext
	if err := json.Unmarshal([]byte(body), &intent); err != nil {
		return types.IntentContext{}, fmt.Errorf("decode planner output: %w", err)
	}
	if strings.TrimSpace(intent.Topic) == "" {
		intent.Topic = types.UnknownTopic
	}
	return intent, nil
}

// =============================================================================
// Retrieve
// =============================================================================

// RetrieverNode fetches evidence for the current query.
type RetrieverNode struct {
	retriever Retriever
	topK      int
	logger    *zap.Logger
}

// NewRetrieverNode creates the retrieve stage.
func NewRetrieverNode(r Retriever, topK int, logger *zap.Logger) *RetrieverNode {
	if topK <= 0 {
		topK = 3
	}
	return &RetrieverNode{retriever: r, topK: topK, logger: nodeLogger(logger, types.StageRetrieve)}
}

func (n *RetrieverNode) Stage() types.Stage { return types.StageRetrieve }

func (n *RetrieverNode) Run(ctx context.Context, state *types.TaskState, mem *types.TaskMemory) (*Result, error) {
	query := state.Retrieval.Query
	hits, err := n.retriever.Retrieve(ctx, query, n.topK)
	if err != nil {
		return nil, err
	}
	if hits == nil {
		hits = []types.Hit{}
	}

	state.Retrieval.Hits = hits
	mem.Retrieval = state.Retrieval.Clone()

	n.logger.Debug("evidence retrieved",
		zap.String("task_id", state.TaskID),
		zap.Int("round", state.Retrieval.Round),
		zap.Int("hits", len(hits)),
	)
	return &Result{
		Next:   types.StageExecute,
		Tool:   "retriever",
		Input:  map[string]any{"query": query, "top_k": n.topK},
		Output: hits,
	}, nil
}

// =============================================================================
// Execute
// =============================================================================

// ExecutorNode drafts the answer.
type ExecutorNode struct {
	generator Generator
	logger    *zap.Logger
}

// NewExecutorNode creates the execute stage.
func NewExecutorNode(g Generator, logger *zap.Logger) *ExecutorNode {
	return &ExecutorNode{generator: g, logger: nodeLogger(logger, types.StageExecute)}
}

func (n *ExecutorNode) Stage() types.Stage { return types.StageExecute }

func (n *ExecutorNode) Run(ctx context.Context, state *types.TaskState, mem *types.TaskMemory) (*Result, error) {
	req := types.GenerateRequest{
		Query:    state.Retrieval.Query,
		Intent:   intentOf(state),
		Evidence: state.Retrieval.Hits,
	}
	if req.Evidence == nil {
		req.Evidence = []types.Hit{}
	}

	draft, err := n.generator.Generate(ctx, req)
	if err != nil {
		return nil, err
	}
	res := &Result{
		Next:  types.StageCritique,
		Tool:  "generator",
		Input: map[string]any{"query": req.Query, "evidence_count": len(req.Evidence)},
	}
	if strings.TrimSpace(draft) == "" {
		draft = NoAnswerDraft
		res.Status = types.TraceWarning
		res.Warning = "generator returned an empty draft"
	}

	state.Answer = draft
	res.Output = map[string]any{"answer": draft}
	return res, nil
}

// =============================================================================
// Critique
// =============================================================================

// CriticNode judges the draft and maps the verdict to a decision.
type CriticNode struct {
	judge   Judge
	policy  critic.Policy
	preview int
	logger  *zap.Logger
}

// NewCriticNode creates the critique stage.
func NewCriticNode(j Judge, policy critic.Policy, preview int, logger *zap.Logger) *CriticNode {
	return &CriticNode{judge: j, policy: policy, preview: preview, logger: nodeLogger(logger, types.StageCritique)}
}

func (n *CriticNode) Stage() types.Stage { return types.StageCritique }

func (n *CriticNode) Run(ctx context.Context, state *types.TaskState, mem *types.TaskMemory) (*Result, error) {
	req := types.JudgeRequest{
		Query:    state.Retrieval.Query,
		Intent:   intentOf(state),
		Evidence: critic.Preview(state.Retrieval.Hits, n.preview),
		Draft:    state.Answer,
	}

	raw, err := n.judge.Judge(ctx, req)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Tool:  "critic",
		Input: map[string]any{"query": req.Query, "evidence_count": len(req.Evidence)},
	}
	verdict, perr := critic.ParseOrFallback(raw)
	if perr != nil {
		n.logger.Warn("critic output invalid, falling back to revise",
			zap.String("task_id", state.TaskID),
			zap.Error(perr),
		)
		res.Status = types.TraceWarning
		res.Warning = perr.Error()
	}

	result := n.policy.Map(verdict, mem.RetryCount())
	state.Critic = result.Clone()
	mem.Critic = result.Clone()

	res.Decision = result.Decision
	res.Next = defaultRoutes[result.Decision.Status()]
	res.Output = result

	n.logger.Info("critic decision",
		zap.String("task_id", state.TaskID),
		zap.String("status", string(result.Decision.Status())),
		zap.Int("retry_count", result.RetryCount),
		zap.String("reason", result.Reason),
	)
	return res, nil
}

var defaultRoutes = map[types.CriticStatus]types.Stage{
	types.StatusPass:          types.StageDone,
	types.StatusReviseRetry:   types.StageRetrieve,
	types.StatusReviseRewrite: types.StageRewrite,
	types.StatusFail:          types.StageFail,
}

// =============================================================================
// Rewrite
// =============================================================================

// RewriteNode archives the current round and opens the next one with the
// rewritten query.
type RewriteNode struct {
	logger *zap.Logger
}

// NewRewriteNode creates the rewrite stage.
func NewRewriteNode(logger *zap.Logger) *RewriteNode {
	return &RewriteNode{logger: nodeLogger(logger, types.StageRewrite)}
}

func (n *RewriteNode) Stage() types.Stage { return types.StageRewrite }

func (n *RewriteNode) Run(ctx context.Context, state *types.TaskState, mem *types.TaskMemory) (*Result, error) {
	var (
		rewrite types.RetryWithRewrite
		ok      bool
	)
	if state.Critic != nil {
		rewrite, ok = state.Critic.Decision.(types.RetryWithRewrite)
	}
	query := strings.TrimSpace(rewrite.Query)
	if !ok || query == "" {
		return nil, types.NewError(types.ErrContractViolation,
			"rewrite stage requires a critic result carrying a non-empty rewrite_query")
	}

	prev := state.Retrieval
	mem.RetrievalHistory = append(mem.RetrievalHistory, types.RetrievalRound{
		Round:  prev.Round,
		Query:  prev.Query,
		Source: prev.Source,
		Hits:   archivedHits(prev.Hits),
		Critic: state.Critic.Clone(),
	})

	state.Retrieval = types.RetrievalContext{
		Round:  prev.Round + 1,
		Query:  query,
		Source: types.SourceQueryRewrite,
	}
	mem.Retrieval = state.Retrieval.Clone()

	n.logger.Info("query rewritten",
		zap.String("task_id", state.TaskID),
		zap.Int("round", state.Retrieval.Round),
		zap.String("from", prev.Query),
		zap.String("to", query),
	)
	return &Result{
		Next:   types.StageRetrieve,
		Tool:   "query_rewrite",
		Input:  map[string]any{"query": prev.Query, "round": prev.Round},
		Output: map[string]any{"query": query, "round": state.Retrieval.Round},
	}, nil
}

func archivedHits(hits []types.Hit) []types.Hit {
	if hits == nil {
		return []types.Hit{}
	}
	out := make([]types.Hit, len(hits))
	copy(out, hits)
	return out
}

// =============================================================================
// Fail
// =============================================================================

// FailNode writes the termination message.
type FailNode struct {
	logger *zap.Logger
}

// NewFailNode creates the fail stage.
func NewFailNode(logger *zap.Logger) *FailNode {
	return &FailNode{logger: nodeLogger(logger, types.StageFail)}
}

func (n *FailNode) Stage() types.Stage { return types.StageFail }

func (n *FailNode) Run(ctx context.Context, state *types.TaskState, mem *types.TaskMemory) (*Result, error) {
	reason, kind := "unknown", types.FailUnrecoverable
	if state.Critic != nil {
		if f, ok := state.Critic.Decision.(types.Fail); ok {
			reason, kind = f.Reason, f.Kind
		} else if state.Critic.Reason != "" {
			reason = state.Critic.Reason
		}
	}
	if kind == "" {
		kind = types.FailUnrecoverable
	}

	state.Answer = fmt.Sprintf(FailMessageFormat, reason, kind)

	n.logger.Warn("task terminated",
		zap.String("task_id", state.TaskID),
		zap.String("reason", reason),
		zap.String("fail_type", string(kind)),
	)
	return &Result{
		Next:    types.StageDone,
		Tool:    "fail",
		Input:   map[string]any{"reason": reason, "fail_type": kind},
		Output:  map[string]any{"answer": state.Answer},
		Status:  types.TraceWarning,
		Warning: reason,
	}, nil
}

func intentOf(state *types.TaskState) types.IntentContext {
	if state.Intent == nil {
		return types.DefaultIntent(state.UserQuery)
	}
	return *state.Intent.Clone()
}

func nodeLogger(logger *zap.Logger, stage types.Stage) *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return logger.With(zap.String("component", "node"), zap.String("stage", string(stage)))
}
