package offline

import (
	"time"

	"github.com/ceyewan/capsule/clog"
	"github.com/ceyewan/capsule/metrics"
)

// Option 队列选项
type Option func(*options)

type options struct {
	logger clog.Logger
	meter  metrics.Meter
	keep   func(error) bool
	now    func() time.Time
}

func defaultOptions() *options {
	return &options{
		logger: clog.Discard(),
		meter:  metrics.Discard(),
		keep:   func(error) bool { return false },
		now:    time.Now,
	}
}

// WithLogger 注入日志记录器，自动追加 "offline" 命名空间
func WithLogger(l clog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l.WithNamespace("offline")
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

// WithKeep 判定回放失败的条目是否值得保留重试，默认不保留
func WithKeep(keep func(error) bool) Option {
	return func(o *options) {
		if keep != nil {
			o.keep = keep
		}
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
