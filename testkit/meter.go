package testkit

import (
	"context"
	"sync"

	"github.com/ceyewan/capsule/metrics"
)

// CountingMeter 按名称累计计数器取值的 Meter 替身，忽略标签。Gauge 与 Histogram 直接丢弃。
type CountingMeter struct {
	mu     sync.Mutex
	totals map[string]float64
}

// NewCountingMeter 创建计数 Meter
func NewCountingMeter() *CountingMeter {
	return &CountingMeter{totals: make(map[string]float64)}
}

func (m *CountingMeter) Counter(name, _ string, _ ...metrics.MetricOption) (metrics.Counter, error) {
	return &countingCounter{m: m, name: name}, nil
}

func (m *CountingMeter) Gauge(name, desc string, opts ...metrics.MetricOption) (metrics.Gauge, error) {
	return metrics.Discard().Gauge(name, desc, opts...)
}

func (m *CountingMeter) Histogram(name, desc string, opts ...metrics.MetricOption) (metrics.Histogram, error) {
	return metrics.Discard().Histogram(name, desc, opts...)
}

func (m *CountingMeter) Shutdown(context.Context) error { return nil }

// Value 返回计数器 name 的累计值
func (m *CountingMeter) Value(name string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totals[name]
}

type countingCounter struct {
	m    *CountingMeter
	name string
}

func (c *countingCounter) Inc(ctx context.Context, labels ...metrics.Label) {
	c.Add(ctx, 1, labels...)
}

func (c *countingCounter) Add(_ context.Context, val float64, _ ...metrics.Label) {
	c.m.mu.Lock()
	c.m.totals[c.name] += val
	c.m.mu.Unlock()
}
