package ratelimit

const (
	// MetricDenied 未能获得令牌的请求数 (Counter)
	MetricDenied = "ratelimit_denied_total"

	// MetricWaitDuration 等待令牌的耗时 (Histogram)
	MetricWaitDuration = "ratelimit_wait_duration_seconds"

	// LabelKey 限流键标签
	LabelKey = "key"
)
