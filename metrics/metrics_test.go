package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/capsule/clog"
)

func scrape(t *testing.T, m Meter) string {
	t.Helper()
	rec := httptest.NewRecorder()
	HTTPHandler(m).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestNew(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)

	m, err := New(&Config{Enabled: false})
	require.NoError(t, err)
	assert.IsType(t, noopMeter{}, m)

	m, err = New(&Config{Enabled: true, ServiceName: "capsule-test"}, WithLogger(clog.Discard()))
	require.NoError(t, err)
	assert.NoError(t, m.Shutdown(context.Background()))
}

func TestMeter_MultipleInstances(t *testing.T) {
	// 每个 Meter 使用独立 registry，不应发生重复注册
	for i := 0; i < 2; i++ {
		m, err := New(&Config{Enabled: true, ServiceName: "capsule-test"})
		require.NoError(t, err)
		c, err := m.Counter("dup_total", "dup")
		require.NoError(t, err)
		c.Inc(context.Background())
		require.NoError(t, m.Shutdown(context.Background()))
	}
}

func TestMeter_Export(t *testing.T) {
	ctx := context.Background()
	m, err := New(&Config{Enabled: true, ServiceName: "capsule-test"})
	require.NoError(t, err)
	defer m.Shutdown(ctx)

	counter, err := m.Counter("cache_hits_total", "hits")
	require.NoError(t, err)
	counter.Inc(ctx, L("mode", "fresh"))
	counter.Add(ctx, 2, L("mode", "fresh"))

	gauge, err := m.Gauge("offline_queue_size", "size")
	require.NoError(t, err)
	gauge.Set(ctx, 5)
	gauge.Inc(ctx)
	gauge.Dec(ctx)
	gauge.Dec(ctx)

	hist, err := m.Histogram("latency_seconds", "latency", WithUnit("s"), WithBuckets([]float64{0.1, 1}))
	require.NoError(t, err)
	hist.Record(ctx, 0.5)

	out := scrape(t, m)
	assert.Contains(t, out, `cache_hits_total{mode="fresh"`)
	assert.True(t, strings.Contains(out, "offline_queue_size"))
	assert.Contains(t, out, "latency_seconds_bucket")
}

func TestHTTPClientMetrics(t *testing.T) {
	ctx := context.Background()
	m, err := New(&Config{Enabled: true, ServiceName: "capsule-test"})
	require.NoError(t, err)
	defer m.Shutdown(ctx)

	cm, err := NewHTTPClientMetrics(m, L("client", "test"))
	require.NoError(t, err)
	cm.Observe(ctx, "get", "api.example.com", 503, 20*time.Millisecond)
	cm.Observe(ctx, "", "api.example.com", 0, time.Millisecond)

	out := scrape(t, m)
	assert.Contains(t, out, MetricHTTPClientRequestTotal)
	assert.Contains(t, out, `status_class="5xx"`)
	assert.Contains(t, out, `status_class="unknown"`)

	var nilMetrics *HTTPClientMetrics
	nilMetrics.Observe(ctx, "GET", "h", 200, 0)

	_, err = NewHTTPClientMetrics(nil)
	assert.Error(t, err)
}

func TestHTTPStatusClass(t *testing.T) {
	assert.Equal(t, "2xx", HTTPStatusClass(204))
	assert.Equal(t, "4xx", HTTPStatusClass(429))
	assert.Equal(t, "unknown", HTTPStatusClass(0))
	assert.Equal(t, "unknown", HTTPStatusClass(700))
}

func TestDiscard(t *testing.T) {
	ctx := context.Background()
	m := Discard()
	c, _ := m.Counter("x", "x")
	c.Inc(ctx)
	g, _ := m.Gauge("y", "y")
	g.Set(ctx, 1)
	h, _ := m.Histogram("z", "z")
	h.Record(ctx, 1)
	assert.NoError(t, m.Shutdown(ctx))

	rec := httptest.NewRecorder()
	HTTPHandler(m).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
