// MockProvider 的 LLM 提供商测试模拟实现。
//
// 支持固定响应、按次脚本响应与错误注入场景。
package mocks

import (
	"context"
	"errors"
	"sync"

	"github.com/BaSui01/askflow/llm"
)

// MockProvider 是 llm.Provider 的模拟实现
type MockProvider struct {
	mu sync.Mutex

	// 响应配置
	response  string
	responses []string
	err       error

	// 调用记录
	calls []*llm.ChatRequest

	// 行为控制
	failAfter int // 在第 N 次调用后失败
}

// NewMockProvider 创建新的 MockProvider
func NewMockProvider() *MockProvider {
	return &MockProvider{response: "Mock response"}
}

// WithResponse 设置固定响应内容
func (m *MockProvider) WithResponse(response string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.response = response
	return m
}

// WithResponses 设置按调用次序返回的响应，用尽后重复最后一个
func (m *MockProvider) WithResponses(responses ...string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = responses
	return m
}

// WithError 设置返回错误
func (m *MockProvider) WithError(err error) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// WithFailAfter 设置在第 N 次调用后失败
func (m *MockProvider) WithFailAfter(n int) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAfter = n
	return m
}

// Name 返回 Provider 名称
func (m *MockProvider) Name() string {
	return "mock"
}

// Completion 返回脚本化响应
func (m *MockProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	n := len(m.calls)
	m.calls = append(m.calls, req)

	if m.err != nil {
		return nil, m.err
	}
	if m.failAfter > 0 && n >= m.failAfter {
		return nil, &llm.Error{Code: llm.ErrUpstreamError, Message: "mock provider failure", Provider: "mock"}
	}

	content := m.response
	if len(m.responses) > 0 {
		content = m.responses[min(n, len(m.responses)-1)]
	}
	return &llm.ChatResponse{
		Provider: "mock",
		Model:    req.Model,
		Choices: []llm.ChatChoice{{
			FinishReason: "stop",
			Message:      llm.Message{Role: llm.RoleAssistant, Content: content},
		}},
	}, nil
}

// Calls 返回调用记录
func (m *MockProvider) Calls() []*llm.ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*llm.ChatRequest, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount 返回调用次数
func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// ErrMockUnavailable is a ready-made collaborator failure.
var ErrMockUnavailable = errors.New("mock collaborator unavailable")
