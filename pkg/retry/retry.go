// Package retry 提供外部生成式调用共用的重试策略对象。
package retry

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"time"
)

// Policy 描述一次调用最多尝试几次、每次失败后等待多久、哪些错误值得重试。
type Policy struct {
	MaxAttempts int
	Backoff     func(attempt int) time.Duration
	Retryable   func(err error) bool
}

// DefaultPolicy 3 次尝试，1s 起步指数退避，上限 10s，只重试瞬时错误。
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		Backoff:     ExponentialBackoff(time.Second, 10*time.Second, 2.0, 0.1),
		Retryable:   IsTransient,
	}
}

// ExponentialBackoff 返回第 attempt 次（从 1 开始）失败后的等待时间。
func ExponentialBackoff(initial, max time.Duration, multiplier, jitterFactor float64) func(int) time.Duration {
	return func(attempt int) time.Duration {
		delay := float64(initial)
		for i := 1; i < attempt; i++ {
			delay *= multiplier
			if delay > float64(max) {
				delay = float64(max)
				break
			}
		}
		return applyJitter(time.Duration(delay), jitterFactor)
	}
}

// FixedBackoff 每次等待相同时间。
func FixedBackoff(d time.Duration) func(int) time.Duration {
	return func(int) time.Duration { return d }
}

func applyJitter(delay time.Duration, jitterFactor float64) time.Duration {
	if jitterFactor <= 0 {
		return delay
	}
	jitter := float64(delay) * jitterFactor * (rand.Float64()*2 - 1)
	return time.Duration(float64(delay) + jitter)
}

// Do 执行 fn，遇到可重试错误时按策略等待后重试。
// 不可重试的错误立即返回；等待期间响应 ctx 取消。
func (p Policy) Do(ctx context.Context, fn func() error) error {
	_, err := DoWithResult(ctx, p, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// DoWithResult 与 Do 相同，但返回 fn 的结果。
func DoWithResult[T any](ctx context.Context, p Policy, fn func() (T, error)) (T, error) {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = IsTransient
	}

	var result T
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		r, err := fn()
		if err == nil {
			return r, nil
		}
		result, lastErr = r, err

		if attempt == attempts || !retryable(err) {
			break
		}
		var wait time.Duration
		if p.Backoff != nil {
			wait = p.Backoff(attempt)
		}
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return result, ctx.Err()
		}
	}
	return result, lastErr
}

// RetryableError 允许错误自行声明是否可重试。
type RetryableError interface {
	error
	IsRetryable() bool
}

// IsTransient 判断错误是否属于资源耗尽、限流、超时一类的瞬时错误。
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var r RetryableError
	if errors.As(err, &r) {
		return r.IsRetryable()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	errStr := strings.ToLower(err.Error())
	for _, pattern := range transientPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}

var transientPatterns = []string{
	"connection refused",
	"connection reset",
	"timeout",
	"timed out",
	"temporary failure",
	"429",
	"502",
	"503",
	"504",
	"rate limit",
	"too many requests",
	"resource exhausted",
	"resource_exhausted",
	"quota",
	"overloaded",
	"service unavailable",
}
