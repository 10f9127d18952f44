package netclient

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/ceyewan/capsule/testkit"
)

type recording struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt Timestamp `json:"created_at"`
}

// newBackend 启动一个 gin 假后端，返回服务与 /flaky 的命中计数
func newBackend(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	var flaky atomic.Int32

	api := r.Group("/v1")
	api.Use(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/v1/auth/") {
			c.Next()
			return
		}
		if c.GetHeader("Authorization") != "Bearer secret" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	})
	api.GET("/recordings/:id", func(c *gin.Context) {
		if c.Param("id") == "missing" {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"id":         c.Param("id"),
			"title":      c.Query("title"),
			"created_at": "2024-05-06T07:08:09.000123Z",
		})
	})
	api.GET("/flaky", func(c *gin.Context) {
		if flaky.Add(1) == 1 {
			c.Status(http.StatusServiceUnavailable)
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": "ok"})
	})
	api.POST("/auth/login", func(c *gin.Context) {
		var body struct {
			User string `json:"user"`
		}
		if err := c.ShouldBindJSON(&body); err != nil || body.User == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"access_token": "secret"})
	})
	api.POST("/recordings", func(c *gin.Context) {
		fh, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		f, err := fh.Open()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		c.JSON(http.StatusCreated, gin.H{
			"id":           "rec-" + c.PostForm("title"),
			"title":        fh.Filename,
			"content_type": fh.Header.Get("Content-Type"),
			"size":         len(data),
			"created_at":   FormatTimestamp(time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)),
		})
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, &flaky
}

func newBackendClient(t *testing.T, srv *httptest.Server, token string) Client {
	t.Helper()
	cfg := testConfig()
	cfg.BaseURL = srv.URL + "/v1"
	kit := testkit.NewKit(t)
	c, err := New(cfg,
		WithTransport(NewHTTPTransport(srv.Client())),
		WithTokenProvider(StaticToken(token)),
		WithRetrySleeper(testkit.NoSleep),
		WithLogger(kit.Logger),
		WithMeter(kit.Meter))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestIntegration_GetDecodesTimestamps(t *testing.T) {
	srv, _ := newBackend(t)
	c := newBackendClient(t, srv, "secret")

	rec, err := GetAs[recording](context.Background(), c, "/recordings/42?title=standup")
	require.NoError(t, err)
	assert.Equal(t, "42", rec.ID)
	assert.Equal(t, "standup", rec.Title)
	assert.True(t, time.Date(2024, 5, 6, 7, 8, 9, 123000, time.UTC).Equal(rec.CreatedAt.Time))
}

func TestIntegration_StatusMapping(t *testing.T) {
	srv, flaky := newBackend(t)
	ctx := context.Background()

	c := newBackendClient(t, srv, "secret")
	assert.ErrorIs(t, c.Get(ctx, "/recordings/missing", nil), ErrNotFound)

	require.NoError(t, c.Get(ctx, "/flaky", nil))
	assert.EqualValues(t, 2, flaky.Load())

	wrong := newBackendClient(t, srv, "expired")
	err := wrong.Get(ctx, "/recordings/1", nil)
	assert.ErrorIs(t, err, ErrUnauthorized)
	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, http.StatusUnauthorized, e.StatusCode)
}

func TestIntegration_AuthPathAndUpload(t *testing.T) {
	srv, _ := newBackend(t)
	ctx := context.Background()
	c := newBackendClient(t, srv, "secret")

	login, err := PostAs[map[string]string](ctx, c, "/auth/login", map[string]string{"user": "ann"})
	require.NoError(t, err)
	assert.Equal(t, "secret", login["access_token"])

	assert.ErrorIs(t, c.Post(ctx, "/auth/login", map[string]string{}, nil), ErrClientError)

	type uploaded struct {
		ID          string    `json:"id"`
		Title       string    `json:"title"`
		ContentType string    `json:"content_type"`
		Size        int       `json:"size"`
		CreatedAt   Timestamp `json:"created_at"`
	}
	up, err := UploadAs[uploaded](ctx, c, "/recordings",
		UploadFile{Name: "/tmp/memo.wav", Reader: strings.NewReader("RIFFdata")},
		map[string]string{"title": "memo"})
	require.NoError(t, err)
	assert.Equal(t, "rec-memo", up.ID)
	assert.Equal(t, "memo.wav", up.Title)
	assert.Equal(t, "audio/wav", up.ContentType)
	assert.Equal(t, 8, up.Size)
	assert.False(t, up.CreatedAt.IsZero())
}

func TestIntegration_TracePropagatesToBackend(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(otelgin.Middleware("backend",
		otelgin.WithTracerProvider(tp),
		otelgin.WithPropagators(propagation.TraceContext{})))
	var serverTrace atomic.Value
	r.GET("/v1/ping", func(c *gin.Context) {
		serverTrace.Store(oteltrace.SpanContextFromContext(c.Request.Context()).TraceID())
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	cfg := testConfig()
	cfg.BaseURL = srv.URL + "/v1"
	c, err := New(cfg,
		WithTransport(NewHTTPTransport(srv.Client())),
		WithTokenProvider(StaticToken("secret")),
		WithTracerProvider(tp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	require.NoError(t, c.Get(context.Background(), "/ping", nil))

	var client sdktrace.ReadOnlySpan
	for _, s := range recorder.Ended() {
		if s.SpanKind() == oteltrace.SpanKindClient {
			client = s
		}
	}
	require.NotNil(t, client)
	assert.Equal(t, client.SpanContext().TraceID(), serverTrace.Load())
}

func TestOffline_ReplaySpanLinksQueuedRequest(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	mon := &switchMonitor{}
	mock := testkit.NewMockTransport(testkit.JSON(successBody))
	c := newTestClient(t, nil, mock, WithMonitor(mon), WithTracerProvider(tp))
	ctx := context.Background()

	require.ErrorIs(t, c.Get(ctx, "/test", nil), ErrNetworkUnavailable)
	queued := recorder.Ended()
	require.Len(t, queued, 1)

	mon.on.Store(true)
	_, err := c.DrainOfflineQueue(ctx)
	require.NoError(t, err)

	var replay sdktrace.ReadOnlySpan
	for _, s := range recorder.Ended() {
		if s.Name() == "offline.replay" {
			replay = s
		}
	}
	require.NotNil(t, replay)
	require.Len(t, replay.Links(), 1)
	assert.Equal(t, queued[0].SpanContext().TraceID(), replay.Links()[0].SpanContext.TraceID())
}
