package retry

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/eapache/go-resiliency/retrier"
)

const defaultBaseDelay = 100 * time.Millisecond

// Policy 重试策略：最多 MaxAttempts 次，间隔 BaseDelay * 2^(n-1)，不超过 MaxDelay
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Retryable 为空时使用 IsTransient
	Retryable func(error) bool
	// OnRetry 每次重试前回调，用于日志与指标
	OnRetry func(attempt int, err error, delay time.Duration)
}

var ErrInvalidMaxAttempts = errors.New("max attempts must be positive")

// classifier 把 Retryable 适配成 retrier.Classifier；调用方自身的超时与取消一律不重试
type classifier func(error) bool

func (c classifier) Classify(err error) retrier.Action {
	switch {
	case err == nil:
		return retrier.Succeed
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return retrier.Fail
	case c(err):
		return retrier.Retry
	}
	return retrier.Fail
}

// backoff 第 i 次重试前的等待时间，长度为 MaxAttempts-1
func (p Policy) backoff() []time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = defaultBaseDelay
	}
	if p.MaxDelay > 0 {
		return retrier.LimitedExponentialBackoff(p.MaxAttempts-1, base, p.MaxDelay)
	}
	return retrier.ExponentialBackoff(p.MaxAttempts-1, base)
}

// Do 执行 op，遇到可重试错误时指数退避
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	if p.MaxAttempts <= 0 {
		return ErrInvalidMaxAttempts
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = IsTransient
	}
	backoff := p.backoff()
	cls := classifier(retryable)

	var (
		lastErr error
		waiting bool
	)
	err := retrier.New(backoff, cls).RunFn(ctx, func(ctx context.Context, retries int) error {
		waiting = false
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return errors.Join(err, lastErr)
			}
			return err
		}
		lastErr = op(ctx)
		if retries < len(backoff) && cls.Classify(lastErr) == retrier.Retry {
			waiting = true
			if p.OnRetry != nil {
				p.OnRetry(retries+1, lastErr, backoff[retries])
			}
		}
		return lastErr
	})
	// 退避期间 ctx 结束时 retrier 只返回 ctx.Err()，补上最后一次的服务商错误
	if waiting && err != nil {
		return errors.Join(err, lastErr)
	}
	return err
}

var transientMarkers = []string{
	"429",
	"rate limit",
	"rate_limit",
	"too many requests",
	"500 internal server error",
	"502",
	"503",
	"504",
	"bad gateway",
	"service unavailable",
	"gateway timeout",
	"overloaded",
	"connection reset",
	"connection refused",
	"unexpected eof",
	"i/o timeout",
	"tls handshake timeout",
}

// IsTransient 判断服务商错误是否值得重试：限流、5xx、网络抖动。
// 调用方自身的超时与取消不重试。
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, m := range transientMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
