package metrics

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/ceyewan/capsule/xerrors"
)

const (
	MetricHTTPClientRequestTotal    = "http_client_requests_total"
	MetricHTTPClientDurationSeconds = "http_client_request_duration_seconds"
)

var defaultHTTPDurationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

// HTTPClientMetrics 出站 HTTP 请求的 RED 指标集
//
// 每次传输尝试记录一次，重试会产生多条记录；逻辑调用级别的统计由调用方自行记录。
type HTTPClientMetrics struct {
	requestTotal Counter
	duration     Histogram
	staticLabels []Label
}

// NewHTTPClientMetrics 在 m 上注册出站请求计数与耗时直方图
func NewHTTPClientMetrics(m Meter, staticLabels ...Label) (*HTTPClientMetrics, error) {
	if m == nil {
		return nil, xerrors.Wrap(xerrors.ErrInvalidInput, "metrics: meter is nil")
	}
	counter, err := m.Counter(MetricHTTPClientRequestTotal, "Total number of outgoing HTTP requests.")
	if err != nil {
		return nil, xerrors.Wrap(err, "create http client counter")
	}
	duration, err := m.Histogram(MetricHTTPClientDurationSeconds, "Outgoing HTTP request duration in seconds.",
		WithUnit("s"), WithBuckets(defaultHTTPDurationBuckets))
	if err != nil {
		return nil, xerrors.Wrap(err, "create http client histogram")
	}
	return &HTTPClientMetrics{
		requestTotal: counter,
		duration:     duration,
		staticLabels: append([]Label(nil), staticLabels...),
	}, nil
}

// Observe 记录一次传输尝试。status 为 0 表示没有拿到响应。
func (m *HTTPClientMetrics) Observe(ctx context.Context, method, host string, status int, d time.Duration) {
	if m == nil {
		return
	}
	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		method = http.MethodGet
	}
	outcome := OutcomeSuccess
	if status == 0 || status >= 400 {
		outcome = OutcomeError
	}

	labels := make([]Label, 0, len(m.staticLabels)+4)
	labels = append(labels, m.staticLabels...)
	labels = append(labels,
		L(LabelMethod, method),
		L(LabelHost, host),
		L(LabelStatusClass, HTTPStatusClass(status)),
		L(LabelOutcome, outcome),
	)
	m.requestTotal.Inc(ctx, labels...)
	m.duration.Record(ctx, d.Seconds(), labels...)
}
