package netclient

import (
	"github.com/ceyewan/capsule/metrics"
)

const (
	// MetricRequests 逻辑调用数，标签 method、outcome（success 或错误类别）
	MetricRequests = "netclient_requests_total"

	// MetricRequestDuration 逻辑调用耗时，包含重试与退避
	MetricRequestDuration = "netclient_request_duration_seconds"

	// MetricCacheHits 缓存命中，标签 mode=fresh|stale
	MetricCacheHits = "netclient_cache_hits_total"

	MetricCacheMisses = "netclient_cache_misses_total"

	// MetricDedupShared 与其它调用者共享结果的 GET 数
	MetricDedupShared = "netclient_dedup_shared_total"

	MetricOfflineEnqueued = "netclient_offline_enqueued_total"

	MetricRetries = "netclient_retries_total"

	LabelMode = "mode"
)

type clientMetrics struct {
	requests    metrics.Counter
	duration    metrics.Histogram
	cacheHits   metrics.Counter
	cacheMisses metrics.Counter
	shared      metrics.Counter
	enqueued    metrics.Counter
	retries     metrics.Counter
}

func newClientMetrics(m metrics.Meter) (*clientMetrics, error) {
	var (
		cm  clientMetrics
		err error
	)
	if cm.requests, err = m.Counter(MetricRequests, "Logical network client calls."); err != nil {
		return nil, err
	}
	if cm.duration, err = m.Histogram(MetricRequestDuration, "Logical call duration including retries.",
		metrics.WithUnit("s")); err != nil {
		return nil, err
	}
	if cm.cacheHits, err = m.Counter(MetricCacheHits, "GET calls served from the response cache."); err != nil {
		return nil, err
	}
	if cm.cacheMisses, err = m.Counter(MetricCacheMisses, "GET calls not found in the response cache."); err != nil {
		return nil, err
	}
	if cm.shared, err = m.Counter(MetricDedupShared, "GET calls that shared an in-flight result."); err != nil {
		return nil, err
	}
	if cm.enqueued, err = m.Counter(MetricOfflineEnqueued, "GET calls queued while offline."); err != nil {
		return nil, err
	}
	if cm.retries, err = m.Counter(MetricRetries, "Transport attempts retried after a retryable failure."); err != nil {
		return nil, err
	}
	return &cm, nil
}
