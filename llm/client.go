package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/BaSui01/askflow/internal/ctxkeys"
	"github.com/BaSui01/askflow/internal/tlsutil"
	"github.com/BaSui01/askflow/llm/retry"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Headers that tie an upstream request to the task stage that issued it.
const (
	HeaderTaskID = "X-AskFlow-Task-ID"
	HeaderStage  = "X-AskFlow-Stage"
)

// RequestObserver is notified after every upstream request.
type RequestObserver interface {
	RecordLLMRequest(model string, duration time.Duration, err error)
}

// ClientConfig OpenAI 兼容客户端配置
type ClientConfig struct {
	// Provider 名称，仅用于日志与错误
	Name string
	// 接口地址，例如 https://api.openai.com
	BaseURL string
	APIKey  string
	// 默认模型，请求未指定时使用
	Model string
	// 请求超时
	Timeout time.Duration
	// 补全接口路径，默认 /v1/chat/completions
	EndpointPath string
	// 每秒请求数，0 表示不限流
	RequestsPerSecond float64
	Burst             int
	// 可重试错误（429、5xx、网络错误）的重试次数
	MaxRetries int
}

// Client 是 OpenAI 兼容的 Chat Completions 客户端
type Client struct {
	cfg      ClientConfig
	http     *http.Client
	limiter  *rate.Limiter
	retry    retry.Policy
	observer RequestObserver
	logger   *zap.Logger
}

// NewClient 创建客户端
func NewClient(cfg ClientConfig, logger *zap.Logger) *Client {
	if cfg.Name == "" {
		cfg.Name = "openai-compatible"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = "/v1/chat/completions"
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Client{
		cfg:    cfg,
		http:   tlsutil.SecureHTTPClient(cfg.Timeout),
		logger: logger.With(zap.String("component", "llm_client"), zap.String("provider", cfg.Name)),
	}
	c.retry = retry.DefaultPolicy()
	c.retry.MaxRetries = cfg.MaxRetries
	c.retry.Retryable = IsRetryable
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return c
}

// WithObserver attaches a request observer such as the metrics collector.
func (c *Client) WithObserver(o RequestObserver) *Client {
	c.observer = o
	return c
}

// WithRetryPolicy replaces the retry policy. The retryable predicate is kept
// when p does not set one.
func (c *Client) WithRetryPolicy(p retry.Policy) *Client {
	if p.Retryable == nil {
		p.Retryable = IsRetryable
	}
	c.retry = p
	return c
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *Client) WithHTTPClient(h *http.Client) *Client {
	c.http = h
	return c
}

func (c *Client) Name() string { return c.cfg.Name }

type completionRequest struct {
	Model          string            `json:"model"`
	Messages       []Message         `json:"messages"`
	MaxTokens      int               `json:"max_tokens,omitempty"`
	Temperature    float32           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

type completionResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []ChatChoice `json:"choices"`
	Usage   *ChatUsage   `json:"usage,omitempty"`
	Created int64        `json:"created,omitempty"`
}

// Completion 发起同步聊天请求
func (c *Client) Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = c.cfg.Model
	}

	start := time.Now()
	resp, err := retry.Do(ctx, c.retry, c.logger, func(ctx context.Context) (*ChatResponse, error) {
		attemptStart := time.Now()
		resp, err := c.do(ctx, model, req)
		if c.observer != nil {
			c.observer.RecordLLMRequest(model, time.Since(attemptStart), err)
		}
		return resp, err
	})
	if err != nil {
		c.logger.Warn("completion failed", zap.String("model", model), zap.Error(err))
		return nil, err
	}

	c.logger.Debug("completion done",
		zap.String("model", resp.Model),
		zap.Int("total_tokens", resp.Usage.TotalTokens),
		zap.Duration("latency", time.Since(start)),
	)
	return resp, nil
}

func (c *Client) do(ctx context.Context, model string, req *ChatRequest) (*ChatResponse, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &Error{Code: ErrRateLimited, Message: err.Error(), Provider: c.cfg.Name}
		}
	}

	body := completionRequest{
		Model:       model,
		Messages:    req.Messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	if req.JSONMode {
		body.ResponseFormat = map[string]string{"type": "json_object"}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + c.cfg.EndpointPath
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	if id, ok := ctxkeys.TaskID(ctx); ok {
		httpReq.Header.Set(HeaderTaskID, id)
	}
	if stage, ok := ctxkeys.Stage(ctx); ok {
		httpReq.Header.Set(HeaderStage, stage)
	}

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		code := ErrUpstreamError
		if errors.Is(err, context.DeadlineExceeded) {
			code = ErrUpstreamTimeout
		}
		return nil, &Error{Code: code, Message: err.Error(), HTTPStatus: http.StatusBadGateway, Retryable: true, Provider: c.cfg.Name}
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode >= 400 {
		return nil, mapHTTPError(httpResp.StatusCode, readErrorMessage(httpResp.Body), c.cfg.Name)
	}

	var out completionResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&out); err != nil {
		return nil, &Error{Code: ErrUpstreamError, Message: err.Error(), HTTPStatus: http.StatusBadGateway, Retryable: true, Provider: c.cfg.Name}
	}

	result := &ChatResponse{
		ID:       out.ID,
		Provider: c.cfg.Name,
		Model:    out.Model,
		Choices:  out.Choices,
	}
	if out.Usage != nil {
		result.Usage = *out.Usage
	}
	if out.Created != 0 {
		result.CreatedAt = time.Unix(out.Created, 0).UTC()
	}
	return result, nil
}

func mapHTTPError(status int, msg string, provider string) *Error {
	e := &Error{Message: msg, HTTPStatus: status, Provider: provider}
	switch {
	case status == http.StatusUnauthorized:
		e.Code = ErrUnauthorized
	case status == http.StatusForbidden:
		e.Code = ErrForbidden
	case status == http.StatusTooManyRequests:
		e.Code = ErrRateLimited
		e.Retryable = true
	case status == http.StatusServiceUnavailable:
		e.Code = ErrProviderUnavailable
		e.Retryable = true
	case status == http.StatusGatewayTimeout:
		e.Code = ErrUpstreamTimeout
		e.Retryable = true
	case status >= 500:
		e.Code = ErrUpstreamError
		e.Retryable = true
	default:
		e.Code = ErrInvalidRequest
	}
	return e
}

func readErrorMessage(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 64<<10))
	if err != nil {
		return "failed to read error response"
	}

	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &errResp); err == nil && errResp.Error.Message != "" {
		if errResp.Error.Type != "" {
			return fmt.Sprintf("%s (type: %s)", errResp.Error.Message, errResp.Error.Type)
		}
		return errResp.Error.Message
	}
	return strings.TrimSpace(string(data))
}
