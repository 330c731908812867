package mocks

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/BaSui01/askflow/critic"
	"github.com/BaSui01/askflow/types"
)

// script 按调用次序给出结果，用尽后重复最后一个。errs 中非 nil 的项
// 优先于结果返回。
type script[T any] struct {
	mu    sync.Mutex
	steps []T
	errs  []error
	calls int
}

func (s *script[T]) next() (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.calls
	s.calls++

	if n < len(s.errs) && s.errs[n] != nil {
		var zero T
		return zero, s.errs[n]
	}
	if len(s.steps) == 0 {
		var zero T
		return zero, nil
	}
	return s.steps[min(n, len(s.steps)-1)], nil
}

func (s *script[T]) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// =============================================================================
// Planner
// =============================================================================

// Planner 返回脚本化的规划载荷
type Planner struct {
	script[json.RawMessage]
	queries []string
}

// NewPlanner 创建返回给定意图的 Planner
func NewPlanner(intent types.IntentContext) *Planner {
	b, _ := json.Marshal(intent)
	return NewRawPlanner(string(b))
}

// NewRawPlanner 创建原样返回 payloads 的 Planner
func NewRawPlanner(payloads ...string) *Planner {
	p := &Planner{}
	for _, s := range payloads {
		p.steps = append(p.steps, json.RawMessage(s))
	}
	return p
}

// WithErrors 设置按调用次序注入的错误
func (p *Planner) WithErrors(errs ...error) *Planner {
	p.errs = errs
	return p
}

// Plan implements workflow.Planner.
func (p *Planner) Plan(_ context.Context, query string) (json.RawMessage, error) {
	p.mu.Lock()
	p.queries = append(p.queries, query)
	p.mu.Unlock()
	return p.next()
}

// Calls 返回调用次数
func (p *Planner) Calls() int { return p.count() }

// =============================================================================
// Retriever
// =============================================================================

// RetrieveCall 记录单次检索调用
type RetrieveCall struct {
	Query string
	TopK  int
}

// Retriever 按查询返回固定证据，未登记的查询返回 Default。
type Retriever struct {
	mu      sync.Mutex
	byQuery map[string][]types.Hit
	Default []types.Hit
	errs    []error
	calls   []RetrieveCall
}

// NewRetriever 创建对所有查询返回 hits 的 Retriever
func NewRetriever(hits []types.Hit) *Retriever {
	return &Retriever{byQuery: map[string][]types.Hit{}, Default: hits}
}

// On 为特定查询登记证据
func (r *Retriever) On(query string, hits []types.Hit) *Retriever {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byQuery[query] = hits
	return r
}

// WithErrors 设置按调用次序注入的错误
func (r *Retriever) WithErrors(errs ...error) *Retriever {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = errs
	return r
}

// Retrieve implements workflow.Retriever. Results are copies, so repeated
// calls with the same query return equal hit sets.
func (r *Retriever) Retrieve(_ context.Context, query string, topK int) ([]types.Hit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.calls)
	r.calls = append(r.calls, RetrieveCall{Query: query, TopK: topK})
	if n < len(r.errs) && r.errs[n] != nil {
		return nil, r.errs[n]
	}

	hits, ok := r.byQuery[query]
	if !ok {
		hits = r.Default
	}
	if hits == nil {
		return nil, nil
	}
	if topK > 0 && len(hits) > topK {
		hits = hits[:topK]
	}
	out := make([]types.Hit, len(hits))
	copy(out, hits)
	return out, nil
}

// Calls 返回调用记录
func (r *Retriever) Calls() []RetrieveCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]RetrieveCall, len(r.calls))
	copy(out, r.calls)
	return out
}

// =============================================================================
// Judge
// =============================================================================

// Judge 按调用次序返回脚本化的判定
type Judge struct {
	script[json.RawMessage]
	requests []types.JudgeRequest
}

// NewJudge 创建依次返回 verdicts 的 Judge
func NewJudge(verdicts ...types.Verdict) *Judge {
	j := &Judge{}
	for _, v := range verdicts {
		j.steps = append(j.steps, critic.EncodeVerdict(v))
	}
	return j
}

// NewRawJudge 创建原样返回 payloads 的 Judge，用于构造畸形输出
func NewRawJudge(payloads ...string) *Judge {
	j := &Judge{}
	for _, s := range payloads {
		j.steps = append(j.steps, json.RawMessage(s))
	}
	return j
}

// WithErrors 设置按调用次序注入的错误
func (j *Judge) WithErrors(errs ...error) *Judge {
	j.errs = errs
	return j
}

// Judge implements workflow.Judge.
func (j *Judge) Judge(_ context.Context, req types.JudgeRequest) (json.RawMessage, error) {
	j.mu.Lock()
	j.requests = append(j.requests, req)
	j.mu.Unlock()
	return j.next()
}

// Requests 返回收到的请求
func (j *Judge) Requests() []types.JudgeRequest {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]types.JudgeRequest, len(j.requests))
	copy(out, j.requests)
	return out
}

// Calls 返回调用次数
func (j *Judge) Calls() int { return j.count() }

// Pass / Redo / Rewrite / Stop 构造常用判定
func Pass(reason string) types.Verdict {
	return types.Verdict{Status: types.VerdictPass, Reason: reason}
}

func Redo(reason string) types.Verdict {
	return types.Verdict{Status: types.VerdictRevise, Reason: reason, Action: types.ActionRedoRetriever}
}

func Rewrite(reason, query string) types.Verdict {
	return types.Verdict{Status: types.VerdictRevise, Reason: reason, Action: types.ActionQueryRewrite, RewriteQuery: query}
}

func Stop(reason string) types.Verdict {
	return types.Verdict{Status: types.VerdictFail, Reason: reason, Action: types.ActionStop}
}

// =============================================================================
// Generator
// =============================================================================

// Generator 返回脚本化的草稿答案
type Generator struct {
	script[string]
	requests []types.GenerateRequest
}

// NewGenerator 创建依次返回 answers 的 Generator
func NewGenerator(answers ...string) *Generator {
	return &Generator{script: script[string]{steps: answers}}
}

// WithErrors 设置按调用次序注入的错误
func (g *Generator) WithErrors(errs ...error) *Generator {
	g.errs = errs
	return g
}

// Generate implements workflow.Generator.
func (g *Generator) Generate(_ context.Context, req types.GenerateRequest) (string, error) {
	g.mu.Lock()
	g.requests = append(g.requests, req)
	g.mu.Unlock()
	return g.next()
}

// Requests 返回收到的请求
func (g *Generator) Requests() []types.GenerateRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]types.GenerateRequest, len(g.requests))
	copy(out, g.requests)
	return out
}

// Calls 返回调用次数
func (g *Generator) Calls() int { return g.count() }
