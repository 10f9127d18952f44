package auth

import (
	"context"
	"time"

	"github.com/ceyewan/capsule/clog"
	"github.com/ceyewan/capsule/metrics"
)

// Option 配置选项函数
type Option func(*options)

// options 内部选项结构
type options struct {
	logger    clog.Logger
	meter     metrics.Meter
	refresher Refresher
	onSignOut func(ctx context.Context, reason string)
	now       func() time.Time
}

// defaultOptions 创建默认选项，使用 Discard() 作为空实现
func defaultOptions() *options {
	return &options{
		logger: clog.Discard(),
		meter:  metrics.Discard(),
		now:    time.Now,
	}
}

// WithLogger 注入日志记录器，自动添加 "auth" 命名空间
func WithLogger(l clog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l.WithNamespace("auth")
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

// WithRefresher 设置刷新令牌的来源。未设置时过期令牌无法续期。
func WithRefresher(r Refresher) Option {
	return func(o *options) {
		o.refresher = r
	}
}

// WithOnSignOut 登出回调，reason 为 "user" 或 "refresh_failed"
func WithOnSignOut(fn func(ctx context.Context, reason string)) Option {
	return func(o *options) {
		o.onSignOut = fn
	}
}

// WithClock 替换时间源
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}
