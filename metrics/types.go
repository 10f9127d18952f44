// Package metrics 为 capsule 提供统一的指标接口。
//
// 实现基于 OpenTelemetry SDK，经 Prometheus exporter 暴露。每个 Meter 使用独立的
// prometheus.Registry，同一进程可以创建多个 Meter 而不发生重复注册。
//
//	meter, _ := metrics.New(&metrics.Config{Enabled: true, ServiceName: "capsule"})
//	defer meter.Shutdown(ctx)
//	hits, _ := meter.Counter("cache_hits_total", "缓存命中次数")
//	hits.Inc(ctx, metrics.L("mode", "fresh"))
package metrics

import "context"

// Counter 只增不减的累计值
type Counter interface {
	Inc(ctx context.Context, labels ...Label)
	Add(ctx context.Context, val float64, labels ...Label)
}

// Gauge 可任意增减的瞬时值，例如离线队列长度
type Gauge interface {
	Set(ctx context.Context, val float64, labels ...Label)
	Inc(ctx context.Context, labels ...Label)
	Dec(ctx context.Context, labels ...Label)
}

// Histogram 记录值的分布，例如请求耗时
type Histogram interface {
	Record(ctx context.Context, val float64, labels ...Label)
}

// Meter 指标工厂。创建出的指标可并发使用。
type Meter interface {
	Counter(name string, desc string, opts ...MetricOption) (Counter, error)
	Gauge(name string, desc string, opts ...MetricOption) (Gauge, error)
	Histogram(name string, desc string, opts ...MetricOption) (Histogram, error)

	// Shutdown 刷新并关闭底层 MeterProvider
	Shutdown(ctx context.Context) error
}

// MetricOption 创建指标时的附加配置
type MetricOption func(*MetricOptions)

// MetricOptions 指标选项
type MetricOptions struct {
	Unit    string
	Buckets []float64
}

// WithUnit 设置单位，如 "s"、"By"
func WithUnit(unit string) MetricOption {
	return func(o *MetricOptions) {
		o.Unit = unit
	}
}

// WithBuckets 设置直方图的桶边界，仅对 Histogram 生效
func WithBuckets(buckets []float64) MetricOption {
	return func(o *MetricOptions) {
		o.Buckets = append([]float64(nil), buckets...)
	}
}
