package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/BaSui01/askflow/llm/tokenizer"
	"github.com/BaSui01/askflow/types"
	"go.uber.org/zap"
)

// Options 协作方公共参数
type Options struct {
	Model       string
	Temperature float32
	MaxTokens   int
}

// Planner asks the model for an intent context. The raw model output is
// returned unchanged; validation happens in the orchestrator.
type Planner struct {
	provider Provider
	opts     Options
	logger   *zap.Logger
}

// NewPlanner 创建规划协作方
func NewPlanner(p Provider, opts Options, logger *zap.Logger) *Planner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Planner{provider: p, opts: opts, logger: logger.With(zap.String("component", "llm_planner"))}
}

// Plan implements the planning collaborator.
func (p *Planner) Plan(ctx context.Context, query string) (json.RawMessage, error) {
	content, err := complete(ctx, p.provider, p.opts, plannerMessages(query), true)
	if err != nil {
		return nil, fmt.Errorf("planner completion: %w", err)
	}
	p.logger.Debug("plan generated", zap.Int("bytes", len(content)))
	return json.RawMessage(content), nil
}

// Judge asks the model for a verdict on the draft answer.
type Judge struct {
	provider  Provider
	opts      Options
	tokenizer tokenizer.Tokenizer
	budget    int
	logger    *zap.Logger
}

// NewJudge 创建评审协作方。tok 为 nil 或 budget <= 0 时不截断证据。
func NewJudge(p Provider, opts Options, tok tokenizer.Tokenizer, budget int, logger *zap.Logger) *Judge {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Judge{
		provider:  p,
		opts:      opts,
		tokenizer: tok,
		budget:    budget,
		logger:    logger.With(zap.String("component", "llm_judge")),
	}
}

// Judge implements the judgment collaborator. The evidence in req is
// already bounded to the preview size; it is additionally clipped to the
// token budget here.
func (j *Judge) Judge(ctx context.Context, req types.JudgeRequest) (json.RawMessage, error) {
	clipped, err := ClipEvidence(j.tokenizer, req.Evidence, j.budget)
	if err != nil {
		j.logger.Warn("evidence clipping failed, sending preview unclipped", zap.Error(err))
	} else {
		req.Evidence = clipped
	}

	content, err := complete(ctx, j.provider, j.opts, judgeMessages(req), true)
	if err != nil {
		return nil, fmt.Errorf("judge completion: %w", err)
	}
	return json.RawMessage(content), nil
}

// Generator drafts an answer from evidence.
type Generator struct {
	provider Provider
	opts     Options
	logger   *zap.Logger
}

// NewGenerator 创建答案生成协作方
func NewGenerator(p Provider, opts Options, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{provider: p, opts: opts, logger: logger.With(zap.String("component", "llm_generator"))}
}

// Generate implements the generation collaborator.
func (g *Generator) Generate(ctx context.Context, req types.GenerateRequest) (string, error) {
	content, err := complete(ctx, g.provider, g.opts, generatorMessages(req), false)
	if err != nil {
		return "", fmt.Errorf("generator completion: %w", err)
	}
	return strings.TrimSpace(content), nil
}

func complete(ctx context.Context, p Provider, opts Options, msgs []Message, jsonMode bool) (string, error) {
	resp, err := p.Completion(ctx, &ChatRequest{
		Model:       opts.Model,
		Messages:    msgs,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
		JSONMode:    jsonMode,
	})
	if err != nil {
		return "", err
	}
	return resp.Content()
}
