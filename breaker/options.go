package breaker

import (
	"context"
	"errors"

	"github.com/ceyewan/capsule/clog"
	"github.com/ceyewan/capsule/metrics"
)

// Option 熔断器选项
type Option func(*options)

type options struct {
	logger    clog.Logger
	meter     metrics.Meter
	isFailure func(error) bool
	isIgnored func(error) bool
}

func defaultOptions() *options {
	return &options{
		logger:    clog.Discard(),
		meter:     metrics.Discard(),
		isFailure: func(err error) bool { return err != nil },
		isIgnored: func(err error) bool {
			return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
	}
}

// WithLogger 注入日志记录器，自动追加 "breaker" 命名空间
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger.WithNamespace("breaker")
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

// WithFailurePredicate 指定哪些错误计入失败。
// 返回 false 的错误按成功处理：调用已得到后端应答，不代表后端故障。
func WithFailurePredicate(isFailure func(error) bool) Option {
	return func(o *options) {
		if isFailure != nil {
			o.isFailure = isFailure
		}
	}
}

// WithIgnorePredicate 指定哪些错误视为调用被放弃（如调用方取消），默认是 context 错误。
// 闭合状态下这类结果既不算成功也不算失败；半开状态下按探测失败处理。
func WithIgnorePredicate(isIgnored func(error) bool) Option {
	return func(o *options) {
		if isIgnored != nil {
			o.isIgnored = isIgnored
		}
	}
}
