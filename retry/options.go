package retry

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/ceyewan/capsule/clog"
	"github.com/ceyewan/capsule/metrics"
)

// Attempt 描述一次失败后即将进行的重试
type Attempt struct {
	Number int           // 刚失败的尝试序号，从 1 开始
	Delay  time.Duration // 下一次尝试前的等待
	Err    error
}

// Option 重试器选项
type Option func(*options)

type options struct {
	logger     clog.Logger
	meter      metrics.Meter
	retryIf    func(error) bool
	retryAfter func(error) (time.Duration, bool)
	sleep      func(ctx context.Context, d time.Duration) error
	rand       func() float64
	onRetry    func(Attempt)
}

func defaultOptions() *options {
	return &options{
		logger:  clog.Discard(),
		meter:   metrics.Discard(),
		retryIf: func(error) bool { return false },
		sleep:   sleepContext,
		rand:    rand.Float64,
	}
}

// WithLogger 注入日志记录器，自动追加 "retry" 命名空间
func WithLogger(l clog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l.WithNamespace("retry")
		}
	}
}

// WithMeter 注入指标 Meter
func WithMeter(m metrics.Meter) Option {
	return func(o *options) {
		if m != nil {
			o.meter = m
		}
	}
}

// WithRetryIf 设置可重试判定
func WithRetryIf(fn func(error) bool) Option {
	return func(o *options) {
		if fn != nil {
			o.retryIf = fn
		}
	}
}

// WithRetryAfter 从错误中提取服务端要求的最短等待（如 429 的 Retry-After）。
// 实际等待取它与退避时间的较大值，仍受 MaxDelay 约束。
func WithRetryAfter(fn func(error) (time.Duration, bool)) Option {
	return func(o *options) {
		o.retryAfter = fn
	}
}

// WithSleeper 替换等待实现，测试中可用来跳过真实睡眠
func WithSleeper(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(o *options) {
		if fn != nil {
			o.sleep = fn
		}
	}
}

// WithRand 替换抖动的随机源，返回值须在 [0,1)
func WithRand(fn func() float64) Option {
	return func(o *options) {
		if fn != nil {
			o.rand = fn
		}
	}
}

// WithOnRetry 每次决定重试时回调
func WithOnRetry(fn func(Attempt)) Option {
	return func(o *options) {
		o.onRetry = fn
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
