package retry

import (
	"context"
	"time"

	"github.com/ceyewan/capsule/clog"
	"github.com/ceyewan/capsule/metrics"
)

// MetricRetries 发生重试的次数
const MetricRetries = "retry_attempts_total"

// Retrier 按策略执行操作
type Retrier interface {
	// Do 执行 fn 直到成功、遇到不可重试错误或次数用尽。
	// attempt 从 1 开始。等待期间 ctx 取消时返回 ctx.Err()。
	Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) error

	Policy() Policy
}

// New 创建重试器，policy 为 nil 时使用 DefaultPolicy
func New(policy *Policy, opts ...Option) (Retrier, error) {
	p := DefaultPolicy()
	if policy != nil {
		cp := *policy
		cp.SetDefaults()
		p = &cp
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	counter, err := o.meter.Counter(MetricRetries, "Retries performed after a retryable failure.")
	if err != nil {
		return nil, err
	}
	return &retrier{policy: *p, opts: o, retries: counter}, nil
}

type retrier struct {
	policy  Policy
	opts    *options
	retries metrics.Counter
}

func (r *retrier) Policy() Policy { return r.policy }

func (r *retrier) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) error {
	var lastErr error
	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx, attempt)
		if lastErr == nil {
			return nil
		}
		if attempt == r.policy.MaxAttempts || !r.opts.retryIf(lastErr) {
			return lastErr
		}

		delay := r.delay(attempt, lastErr)
		r.opts.logger.DebugContext(ctx, "retrying after failure",
			clog.Int("attempt", attempt),
			clog.Duration("delay", delay),
			clog.Error(lastErr))
		r.retries.Inc(ctx)
		if r.opts.onRetry != nil {
			r.opts.onRetry(Attempt{Number: attempt, Delay: delay, Err: lastErr})
		}

		if err := r.opts.sleep(ctx, delay); err != nil {
			return err
		}
	}
	return lastErr
}

func (r *retrier) delay(attempt int, err error) (d time.Duration) {
	d = r.policy.Delay(attempt, r.opts.rand())
	if r.opts.retryAfter == nil {
		return d
	}
	if ra, ok := r.opts.retryAfter(err); ok && ra > d {
		d = ra
	}
	if d > r.policy.MaxDelay {
		d = r.policy.MaxDelay
	}
	return d
}
