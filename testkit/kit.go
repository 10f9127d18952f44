// Package testkit 提供 capsule 各组件测试共用的依赖与替身。
package testkit

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ceyewan/capsule/clog"
	"github.com/ceyewan/capsule/metrics"
)

// Kit 包含通用的测试依赖
type Kit struct {
	Ctx    context.Context
	Logger clog.Logger
	Meter  metrics.Meter
}

// NewKit 返回一个包含默认依赖的测试工具包，ctx 随测试结束取消
func NewKit(t *testing.T) *Kit {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return &Kit{
		Ctx:    ctx,
		Logger: NewLogger(),
		Meter:  NewMeter(t),
	}
}

// NewLogger 返回一个用于测试的 logger
// 输出到开发环境格式，适合本地调试
func NewLogger() clog.Logger {
	logger, err := clog.New(clog.NewDevDefaultConfig("capsule"))
	if err != nil {
		return clog.Discard()
	}
	return logger
}

// NewMeter 返回一个启用的 meter，但不监听端口
func NewMeter(t *testing.T) metrics.Meter {
	t.Helper()
	meter, err := metrics.New(&metrics.Config{Enabled: true, ServiceName: "capsule-test"})
	if err != nil {
		return metrics.Discard()
	}
	t.Cleanup(func() { _ = meter.Shutdown(context.Background()) })
	return meter
}

// NewContext 返回一个带有超时的测试上下文
func NewContext(t *testing.T, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}

// NewID 返回一个唯一的测试 ID (UUID v4 前 8 位)
func NewID() string {
	return uuid.New().String()[0:8]
}

// NoSleep 立即返回的等待函数，用于跳过重试退避
func NoSleep(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}
