package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

// Policy 指数退避重试策略
type Policy struct {
	MaxRetries   int           // 最大重试次数（0 表示不重试）
	InitialDelay time.Duration // 首次重试前的等待
	MaxDelay     time.Duration // 单次等待上限
	Multiplier   float64       // 指数退避倍数
	Jitter       bool          // ±25% 随机抖动

	// Retryable 判断错误是否值得重试，为空时所有错误都重试
	Retryable func(error) bool
	// OnRetry 在每次等待前调用
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultPolicy 适用于 LLM 请求的默认策略
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:   2,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

func (p Policy) normalized() Policy {
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = 500 * time.Millisecond
	}
	if p.MaxDelay < p.InitialDelay {
		p.MaxDelay = p.InitialDelay
	}
	if p.Multiplier < 1.0 {
		p.Multiplier = 2.0
	}
	return p
}

// Delay returns the wait before retry number attempt (1-based).
func (p Policy) Delay(attempt int) time.Duration {
	p = p.normalized()
	delay := float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	if delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	if p.Jitter {
		jitter := delay * 0.25
		delay += (rand.Float64()*2 - 1) * jitter
	}
	if delay < float64(p.InitialDelay) {
		delay = float64(p.InitialDelay)
	}
	return time.Duration(delay)
}

// Do runs fn until it succeeds, returns a non-retryable error, or the
// retries are used up. Cancellation of ctx stops the wait between attempts.
func Do[T any](ctx context.Context, p Policy, logger *zap.Logger, fn func(ctx context.Context) (T, error)) (T, error) {
	p = p.normalized()
	if logger == nil {
		logger = zap.NewNop()
	}

	var zero T
	var lastErr error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := p.Delay(attempt)
			logger.Debug("retrying",
				zap.Int("attempt", attempt),
				zap.Int("max_retries", p.MaxRetries),
				zap.Duration("delay", delay),
				zap.Error(lastErr),
			)
			if p.OnRetry != nil {
				p.OnRetry(attempt, lastErr, delay)
			}

			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return zero, fmt.Errorf("retry cancelled: %w", ctx.Err())
			case <-timer.C:
			}
		}

		result, err := fn(ctx)
		if err == nil {
			if attempt > 0 {
				logger.Info("retry succeeded", zap.Int("attempt", attempt))
			}
			return result, nil
		}
		lastErr = err

		if p.Retryable != nil && !p.Retryable(err) {
			return zero, err
		}
	}

	if p.MaxRetries == 0 {
		return zero, lastErr
	}
	logger.Warn("retries exhausted",
		zap.Int("attempts", p.MaxRetries+1),
		zap.Error(lastErr),
	)
	return zero, fmt.Errorf("failed after %d attempts: %w", p.MaxRetries+1, lastErr)
}
