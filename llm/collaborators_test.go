package llm

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/BaSui01/askflow/llm/tokenizer"
	"github.com/BaSui01/askflow/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedProvider returns canned content and captures the last request.
type scriptedProvider struct {
	content string
	err     error
	last    *ChatRequest
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Completion(_ context.Context, req *ChatRequest) (*ChatResponse, error) {
	p.last = req
	if p.err != nil {
		return nil, p.err
	}
	return &ChatResponse{
		Provider: "scripted",
		Choices:  []ChatChoice{{Message: Message{Role: RoleAssistant, Content: p.content}}},
	}, nil
}

func TestPlanner_ReturnsRawContent(t *testing.T) {
	p := &scriptedProvider{content: "sure! {\"topic\":\"订单\"}"}
	planner := NewPlanner(p, Options{Model: "m"}, nil)

	raw, err := planner.Plan(context.Background(), "查询订单接口")
	require.NoError(t, err)
	assert.Equal(t, "sure! {\"topic\":\"订单\"}", string(raw))

	require.NotNil(t, p.last)
	assert.True(t, p.last.JSONMode)
	assert.Equal(t, "m", p.last.Model)
	assert.Contains(t, p.last.Messages[1].Content, "查询订单接口")
}

func TestPlanner_ProviderError(t *testing.T) {
	upstream := &Error{Code: ErrUpstreamError, Message: "down"}
	planner := NewPlanner(&scriptedProvider{err: upstream}, Options{}, nil)

	_, err := planner.Plan(context.Background(), "q")
	assert.ErrorIs(t, err, upstream)
}

func TestJudge_PromptCarriesPreviewAndDraft(t *testing.T) {
	p := &scriptedProvider{content: `{"status":"pass","reason":"ok","action":null}`}
	judge := NewJudge(p, Options{}, nil, 0, nil)

	raw, err := judge.Judge(context.Background(), types.JudgeRequest{
		Query:  "订单查询接口",
		Intent: types.IntentContext{Topic: "订单", Intent: "qa"},
		Evidence: []types.Hit{
			{ID: "orders-api-001", Title: "订单查询接口", Chunk: "GET /api/orders/{order_id}", Score: 1.5},
		},
		Draft: "使用 GET /api/orders/{order_id}",
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"pass","reason":"ok","action":null}`, string(raw))

	prompt := p.last.Messages[1].Content
	assert.Contains(t, prompt, "[订单查询接口]")
	assert.Contains(t, prompt, "GET /api/orders/{order_id}")
	assert.Contains(t, prompt, "使用 GET /api/orders/{order_id}")
	assert.Contains(t, p.last.Messages[0].Content, "rewrite_query")
}

func TestJudge_ClipsEvidenceToBudget(t *testing.T) {
	p := &scriptedProvider{content: `{}`}
	judge := NewJudge(p, Options{}, tokenizer.NewEstimatorTokenizer(), 2, nil)

	_, err := judge.Judge(context.Background(), types.JudgeRequest{
		Evidence: []types.Hit{
			{Title: "a", Chunk: strings.Repeat("x", 400)},
			{Title: "b", Chunk: "dropped"},
		},
	})
	require.NoError(t, err)

	prompt := p.last.Messages[1].Content
	assert.NotContains(t, prompt, strings.Repeat("x", 9))
	assert.NotContains(t, prompt, "dropped")
}

func TestGenerator_TrimsAnswer(t *testing.T) {
	p := &scriptedProvider{content: "\n  订单详情接口为 GET /api/orders/{order_id}  \n"}
	gen := NewGenerator(p, Options{Temperature: 0.2}, nil)

	answer, err := gen.Generate(context.Background(), types.GenerateRequest{
		Query:  "订单详情接口是哪个",
		Intent: types.IntentContext{Topic: "订单", Intent: "查询订单"},
	})
	require.NoError(t, err)
	assert.Equal(t, "订单详情接口为 GET /api/orders/{order_id}", answer)
	assert.False(t, p.last.JSONMode)
	assert.Contains(t, p.last.Messages[1].Content, "(no evidence)")
	assert.Contains(t, p.last.Messages[1].Content, "订单详情接口是哪个")
}

func TestGenerator_EmptyResponse(t *testing.T) {
	gen := NewGenerator(&emptyProvider{}, Options{}, nil)

	_, err := gen.Generate(context.Background(), types.GenerateRequest{})
	var llmErr *Error
	require.True(t, errors.As(err, &llmErr))
	assert.Equal(t, ErrEmptyResponse, llmErr.Code)
}

type emptyProvider struct{}

func (emptyProvider) Name() string { return "empty" }

func (emptyProvider) Completion(context.Context, *ChatRequest) (*ChatResponse, error) {
	return &ChatResponse{Provider: "empty"}, nil
}
