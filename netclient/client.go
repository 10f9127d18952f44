// Package netclient 是带韧性能力的 JSON API 客户端。
//
// 每次调用依次经过：构建请求（含令牌）、计算指纹、GET 去重、新鲜缓存、
// 联网检查（断网时读过期缓存或进入离线队列）、熔断器、重试循环、状态码校验、
// 响应校验与缓存写入。所有错误都是 *Error，可按类别用 errors.Is 判定。
//
//	c, _ := netclient.New(&netclient.Config{BaseURL: "https://api.example.com/v1"},
//	    netclient.WithTokenProvider(session),
//	    netclient.WithMonitor(monitor),
//	    netclient.WithLogger(logger))
//	defer c.Close()
//	user, err := netclient.GetAs[User](ctx, c, "/users/me")
package netclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ceyewan/capsule/breaker"
	"github.com/ceyewan/capsule/cache"
	"github.com/ceyewan/capsule/clog"
	"github.com/ceyewan/capsule/connectivity"
	"github.com/ceyewan/capsule/dedup"
	"github.com/ceyewan/capsule/metrics"
	"github.com/ceyewan/capsule/offline"
	"github.com/ceyewan/capsule/ratelimit"
	"github.com/ceyewan/capsule/retry"
	capsuletrace "github.com/ceyewan/capsule/trace"
	"github.com/ceyewan/capsule/xerrors"
)

const tracerName = "github.com/ceyewan/capsule/netclient"

// Client 网络客户端，所有方法并发安全
type Client interface {
	// Get 发起 GET 并把 JSON 响应解码到 dest。dest 为 nil 时丢弃响应体。
	Get(ctx context.Context, path string, dest any) error

	// Post 以 JSON 编码 body 发起 POST。body 为 []byte 或 json.RawMessage 时原样发送。
	Post(ctx context.Context, path string, body any, dest any) error

	// Upload 以 multipart/form-data 上传文件，使用上传专用的超时与重试策略
	Upload(ctx context.Context, path string, file UploadFile, fields map[string]string, dest any, opts ...UploadOption) error

	// DrainOfflineQueue 回放断网期间排队的 GET。恢复联网时客户端会自动调用。
	DrainOfflineQueue(ctx context.Context) (offline.DrainResult, error)

	Close() error
}

type client struct {
	cfg        Config
	base       *url.URL
	breakerKey string

	logger    clog.Logger
	transport Transport
	tokens    TokenProvider
	monitor   connectivity.Monitor
	cache     cache.Cache
	breaker   breaker.Breaker
	queue     offline.Queue
	group     *dedup.Group
	limiter   ratelimit.Limiter
	limit     ratelimit.Limit
	limitKey  string
	tracer    trace.Tracer
	now       func() time.Time

	retrier       retry.Retrier
	uploadRetrier retry.Retrier

	httpMetrics *metrics.HTTPClientMetrics
	m           *clientMetrics

	ownMonitor bool
	ownCache   bool
	ownLimit   bool

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closed    atomic.Bool
	closeOnce sync.Once
}

// New 创建客户端。cfg.BaseURL 必填，其余字段使用默认值。
func New(cfg *Config, opts ...Option) (Client, error) {
	if cfg == nil {
		return nil, xerrors.Wrap(ErrInvalidConfig, "config is nil")
	}
	c := &client{cfg: *cfg}
	c.cfg.setDefaults()
	base, err := c.cfg.validate()
	if err != nil {
		return nil, err
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	c.base = base
	c.breakerKey = base.Host
	c.logger = o.logger.WithNamespace("netclient")
	c.transport = o.transport
	c.tokens = o.tokens
	c.now = time.Now
	c.group = dedup.New(dedup.WithLogger(o.logger))

	if c.transport == nil {
		c.transport = NewHTTPTransport(nil)
	}
	if c.monitor = o.monitor; c.monitor == nil {
		c.monitor = connectivity.NewStatic(true)
		c.ownMonitor = true
	}
	if c.breaker = o.breaker; c.breaker == nil {
		c.breaker, err = NewBreaker(&c.cfg.Breaker,
			breaker.WithLogger(o.logger),
			breaker.WithMeter(o.meter))
		if err != nil {
			return nil, err
		}
	}
	if c.queue = o.queue; c.queue == nil {
		c.queue, err = offline.New(&c.cfg.Offline,
			offline.WithLogger(o.logger),
			offline.WithMeter(o.meter),
			offline.WithKeep(keepQueued))
		if err != nil {
			return nil, err
		}
	}
	if c.m, err = newClientMetrics(o.meter); err != nil {
		return nil, err
	}
	if c.httpMetrics, err = metrics.NewHTTPClientMetrics(o.meter); err != nil {
		return nil, err
	}

	retryOpts := []retry.Option{
		retry.WithLogger(o.logger),
		retry.WithMeter(o.meter),
		retry.WithRetryIf(IsRetryable),
		retry.WithRetryAfter(retryAfterOf),
		retry.WithOnRetry(func(retry.Attempt) { c.m.retries.Inc(context.Background()) }),
	}
	if o.sleep != nil {
		retryOpts = append(retryOpts, retry.WithSleeper(o.sleep))
	}
	if c.retrier, err = retry.New(&c.cfg.Retry, retryOpts...); err != nil {
		return nil, err
	}
	if c.uploadRetrier, err = retry.New(&c.cfg.UploadRetry, retryOpts...); err != nil {
		return nil, err
	}

	c.limit = ratelimit.Limit{Rate: c.cfg.RateLimit.RPS, Burst: c.cfg.RateLimit.Burst}
	c.limitKey = base.Host
	if c.limiter = o.limiter; c.limiter == nil && c.limit.Enabled() {
		if c.limiter, err = ratelimit.New(nil, ratelimit.WithLogger(o.logger), ratelimit.WithMeter(o.meter)); err != nil {
			return nil, err
		}
		c.ownLimit = true
	}

	tp := o.tracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	c.tracer = tp.Tracer(tracerName)

	// 缓存最后创建，之前的步骤失败时无需回收
	if c.cache = o.cache; c.cache == nil {
		c.cache, err = cache.New(&c.cfg.Cache, cache.WithLogger(o.logger), cache.WithMeter(o.meter))
		if err != nil {
			return nil, err
		}
		c.ownCache = true
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	events := c.monitor.Subscribe(ctx)
	c.wg.Add(1)
	go c.watchConnectivity(ctx, events)

	c.logger.Info("network client created",
		clog.String("base_url", base.String()),
		clog.Duration("request_timeout", c.cfg.RequestTimeout),
		clog.Int("max_attempts", c.cfg.Retry.MaxAttempts))
	return c, nil
}

// keepQueued 回放失败后仍值得保留的错误
func keepQueued(err error) bool {
	return IsRecoverable(err) || IsRetryable(err) || KindOf(err) == KindCircuitOpen
}

func (c *client) Get(ctx context.Context, path string, dest any) error {
	return c.observe(ctx, http.MethodGet, path, func(ctx context.Context) error {
		body, err := c.get(ctx, path, false)
		if err != nil {
			return err
		}
		return decode(body, dest, http.MethodGet, path)
	})
}

func (c *client) Post(ctx context.Context, path string, body any, dest any) error {
	return c.observe(ctx, http.MethodPost, path, func(ctx context.Context) error {
		cl, err := c.newCall(ctx, http.MethodPost, path)
		if err != nil {
			return err
		}
		if cl.body, err = encodeJSON(body); err != nil {
			return newError(KindUnknown, http.MethodPost, path, err)
		}
		if cl.body != nil {
			cl.header.Set("Content-Type", "application/json")
		}
		if !c.monitor.IsConnected() {
			return newError(KindNetworkUnavailable, http.MethodPost, path, nil)
		}
		resp, err := c.send(ctx, cl)
		if err != nil {
			return err
		}
		return decode(resp, dest, http.MethodPost, path)
	})
}

func (c *client) Upload(ctx context.Context, path string, file UploadFile, fields map[string]string, dest any, opts ...UploadOption) error {
	uo := &uploadOptions{}
	for _, opt := range opts {
		opt(uo)
	}
	return c.observe(ctx, http.MethodPost, path, func(ctx context.Context) error {
		cl, err := c.newCall(ctx, http.MethodPost, path)
		if err != nil {
			return err
		}
		form, err := encodeMultipart(file, fields)
		if err != nil {
			return newError(KindUnknown, http.MethodPost, path, xerrors.Wrap(xerrors.ErrInvalidInput, err.Error()))
		}
		cl.body = form.data
		cl.header.Set("Content-Type", form.contentType)
		cl.progress = uo.progress
		cl.timeout = c.cfg.ResourceTimeout
		cl.retrier = c.uploadRetrier
		if !c.monitor.IsConnected() {
			return newError(KindNetworkUnavailable, http.MethodPost, path, nil)
		}
		resp, err := c.send(ctx, cl)
		if err != nil {
			return err
		}
		return decode(resp, dest, http.MethodPost, path)
	})
}

func (c *client) DrainOfflineQueue(ctx context.Context) (offline.DrainResult, error) {
	return c.queue.Drain(ctx, func(ctx context.Context, req offline.Request) error {
		if req.Method != http.MethodGet {
			return newError(KindClientError, req.Method, req.Path, xerrors.ErrInvalidInput)
		}
		ctx, span := capsuletrace.StartReplaySpan(ctx, c.tracer, req.Header,
			attribute.String(capsuletrace.AttrReplayPath, req.Path),
			attribute.String(capsuletrace.AttrReplayFingerprint, req.Fingerprint))
		defer span.End()
		return c.observe(ctx, http.MethodGet, req.Path, func(ctx context.Context) error {
			_, err := c.get(ctx, req.Path, true)
			return err
		})
	})
}

func (c *client) Close() error {
	var errs []error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.cancel()
		c.wg.Wait()
		if c.ownMonitor {
			errs = append(errs, c.monitor.Close())
		}
		if c.ownCache {
			errs = append(errs, c.cache.Close())
		}
		if c.ownLimit {
			errs = append(errs, c.limiter.Close())
		}
		if t, ok := c.transport.(interface{ CloseIdleConnections() }); ok {
			t.CloseIdleConnections()
		}
		c.logger.Info("network client closed")
	})
	return xerrors.Combine(errs...)
}

// observe 为一次逻辑调用记录 span、指标与日志
func (c *client) observe(ctx context.Context, method, path string, fn func(ctx context.Context) error) error {
	ctx, span := c.tracer.Start(ctx, "HTTP "+method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.path", path),
		))
	defer span.End()

	start := c.now()
	var err error
	if c.closed.Load() {
		err = newError(KindCanceled, method, path, xerrors.ErrClosed)
	} else {
		err = fn(ctx)
	}

	outcome := metrics.OutcomeSuccess
	if err != nil {
		kind := KindOf(err)
		outcome = string(kind)
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		if kind == KindCanceled {
			c.logger.DebugContext(ctx, "request canceled", clog.String("method", method), clog.String("path", path))
		} else {
			c.logger.WarnContext(ctx, "request failed",
				clog.String("method", method),
				clog.String("path", path),
				clog.String("kind", outcome),
				clog.Error(err))
		}
	}
	labels := []metrics.Label{metrics.L(metrics.LabelMethod, method), metrics.L(metrics.LabelOutcome, outcome)}
	c.m.requests.Inc(ctx, labels...)
	c.m.duration.Record(ctx, c.now().Sub(start).Seconds(), labels...)
	return err
}

// call 一次逻辑调用的请求描述，重试时据此重建 *http.Request
type call struct {
	method   string
	path     string
	url      string
	header   http.Header
	body     []byte
	progress chan<- Progress
	timeout  time.Duration
	retrier  retry.Retrier
}

func (c *client) newCall(ctx context.Context, method, path string) (*call, error) {
	u, refPath, err := c.resolve(path)
	if err != nil {
		return nil, newError(KindUnknown, method, path, err)
	}

	h := make(http.Header)
	h.Set("Accept", "application/json")
	h.Set("User-Agent", "capsule/"+c.cfg.AppVersion)
	h.Set("X-Platform", c.cfg.Platform)
	h.Set("X-App-Version", c.cfg.AppVersion)
	h.Set("X-Request-ID", uuid.NewString())

	if !strings.HasPrefix(refPath, c.cfg.AuthPathPrefix) {
		token, err := c.token(ctx)
		if err != nil {
			return nil, newError(KindUnauthorized, method, path, err)
		}
		h.Set("Authorization", "Bearer "+token)
	}

	return &call{
		method:  method,
		path:    path,
		url:     u,
		header:  h,
		timeout: c.cfg.RequestTimeout,
		retrier: c.retrier,
	}, nil
}

// resolve 把相对路径（可带查询串）拼到 BaseURL 之后，返回绝对 URL 与规范化路径
func (c *client) resolve(path string) (string, string, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return "", "", xerrors.Wrapf(xerrors.ErrInvalidInput, "path %q: %v", path, err)
	}
	if ref.Scheme != "" || ref.Host != "" {
		return "", "", xerrors.Wrapf(xerrors.ErrInvalidInput, "path %q must be relative to base url", path)
	}
	refPath := "/" + strings.TrimPrefix(ref.Path, "/")
	u := *c.base
	u.Path = c.base.Path + refPath
	u.RawPath = ""
	u.RawQuery = ref.RawQuery
	u.Fragment = ""
	return u.String(), refPath, nil
}

func (c *client) token(ctx context.Context) (string, error) {
	if c.tokens == nil {
		return "", xerrors.Wrap(xerrors.ErrUnauthorized, "no token provider")
	}
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return "", err
	}
	if token == "" {
		return "", xerrors.Wrap(xerrors.ErrUnauthorized, "empty access token")
	}
	return token, nil
}

// get 是 GET 管线，replay 为 true 时断网也不再入队
func (c *client) get(ctx context.Context, path string, replay bool) ([]byte, error) {
	cl, err := c.newCall(ctx, http.MethodGet, path)
	if err != nil {
		return nil, err
	}
	fp := Fingerprint(http.MethodGet, cl.url)

	body, shared, err := dedup.Run(ctx, c.group, fp, func(ctx context.Context) ([]byte, error) {
		return c.fetch(ctx, cl, fp, replay)
	})
	if shared {
		c.m.shared.Inc(ctx)
	}
	if err != nil {
		return nil, normalize(ctx, err, http.MethodGet, path)
	}
	return body, nil
}

// fetch 在联网时只接受新鲜缓存；断网时忽略过期时间读取，未命中则入队。
// 联网时的过期读取会淘汰条目，所以必须先判断连通性再查缓存。
func (c *client) fetch(ctx context.Context, cl *call, fp string, replay bool) ([]byte, error) {
	if c.monitor.IsConnected() {
		if b, ok := c.cache.Get(ctx, fp, false); ok {
			c.m.cacheHits.Inc(ctx, metrics.L(LabelMode, "fresh"))
			return b, nil
		}
	} else {
		if b, ok := c.cache.Get(ctx, fp, true); ok {
			c.m.cacheHits.Inc(ctx, metrics.L(LabelMode, "stale"))
			c.logger.DebugContext(ctx, "offline, serving stale response", clog.String("path", cl.path))
			return b, nil
		}
		c.m.cacheMisses.Inc(ctx)
		if !replay {
			c.enqueue(ctx, cl, fp)
		}
		return nil, newError(KindNetworkUnavailable, cl.method, cl.path, nil)
	}
	c.m.cacheMisses.Inc(ctx)

	body, err := c.send(ctx, cl)
	if err != nil {
		return nil, err
	}
	c.cache.Put(ctx, fp, body)
	return body, nil
}

func (c *client) enqueue(ctx context.Context, cl *call, fp string) {
	h := cl.header.Clone()
	h.Del("Authorization")
	capsuletrace.Inject(ctx, h)
	err := c.queue.Enqueue(ctx, offline.Request{
		Method:      cl.method,
		Path:        cl.path,
		Fingerprint: fp,
		Header:      h,
	})
	if err != nil {
		c.logger.WarnContext(ctx, "enqueue offline request failed", clog.String("path", cl.path), clog.Error(err))
		return
	}
	c.m.enqueued.Inc(ctx)
	c.logger.InfoContext(ctx, "offline, request queued for replay", clog.String("path", cl.path))
}

// send 熔断器包裹整个重试循环，一次逻辑调用只计一次成败
func (c *client) send(ctx context.Context, cl *call) ([]byte, error) {
	v, err := c.breaker.Execute(ctx, c.breakerKey, func() (any, error) {
		var body []byte
		err := cl.retrier.Do(ctx, func(ctx context.Context, attempt int) error {
			b, err := c.attempt(ctx, cl, attempt)
			if err != nil {
				return err
			}
			body = b
			return nil
		})
		if err != nil {
			return nil, normalize(ctx, err, cl.method, cl.path)
		}
		return body, nil
	})
	if err != nil {
		if errors.Is(err, breaker.ErrOpenState) {
			return nil, newError(KindCircuitOpen, cl.method, cl.path, err)
		}
		return nil, normalize(ctx, err, cl.method, cl.path)
	}
	body, _ := v.([]byte)
	return body, nil
}

// attempt 一次传输尝试
func (c *client) attempt(ctx context.Context, cl *call, n int) ([]byte, error) {
	if c.limiter != nil && c.limit.Enabled() {
		// 令牌无法在调用方截止时间前到达时同样视为取消
		if err := c.limiter.Wait(ctx, c.limitKey, c.limit); err != nil {
			return nil, newError(KindCanceled, cl.method, cl.path, err)
		}
	}

	actx, cancel := context.WithTimeout(ctx, cl.timeout)
	defer cancel()

	var body io.Reader
	if cl.body != nil {
		var r io.Reader = bytes.NewReader(cl.body)
		if cl.progress != nil {
			r = &progressReader{r: r, total: int64(len(cl.body)), ch: cl.progress}
		}
		body = r
	}
	req, err := http.NewRequestWithContext(actx, cl.method, cl.url, body)
	if err != nil {
		return nil, newError(KindUnknown, cl.method, cl.path, err)
	}
	req.Header = cl.header.Clone()
	if cl.body != nil {
		req.ContentLength = int64(len(cl.body))
	}
	capsuletrace.Inject(actx, req.Header)

	start := c.now()
	resp, err := c.transport.Do(actx, req)
	if err != nil {
		c.httpMetrics.Observe(ctx, cl.method, c.breakerKey, 0, c.now().Sub(start))
		c.logger.DebugContext(ctx, "transport attempt failed",
			clog.String("path", cl.path), clog.Int("attempt", n), clog.Error(err))
		return nil, transportError(ctx, err, cl.method, cl.path)
	}
	if resp == nil {
		return nil, newError(KindInvalidResponse, cl.method, cl.path, nil)
	}
	defer resp.Body.Close()
	c.httpMetrics.Observe(ctx, cl.method, c.breakerKey, resp.StatusCode, c.now().Sub(start))

	if err := statusError(resp, cl.method, cl.path, c.now()); err != nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return nil, err
	}

	payload, err := io.ReadAll(io.LimitReader(resp.Body, c.cfg.MaxResponseSize+1))
	if err != nil {
		return nil, transportError(ctx, err, cl.method, cl.path)
	}
	if int64(len(payload)) > c.cfg.MaxResponseSize {
		return nil, newError(KindInvalidResponse, cl.method, cl.path,
			xerrors.Wrapf(xerrors.ErrInvalidInput, "response exceeds %d bytes", c.cfg.MaxResponseSize))
	}
	if trimmed := bytes.TrimSpace(payload); len(trimmed) > 0 && !json.Valid(trimmed) {
		e := newError(KindDecoding, cl.method, cl.path, xerrors.New("response body is not valid JSON"))
		e.StatusCode = resp.StatusCode
		return nil, e
	}
	return payload, nil
}

func (c *client) watchConnectivity(ctx context.Context, events <-chan connectivity.Event) {
	defer c.wg.Done()
	for ev := range events {
		if !ev.Reconnected() || c.queue.Len() == 0 {
			continue
		}
		res, err := c.DrainOfflineQueue(ctx)
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, offline.ErrDrainInProgress) {
				c.logger.Warn("drain offline queue failed", clog.Error(err))
			}
			continue
		}
		c.logger.Info("offline queue drained",
			clog.Int("replayed", res.Replayed),
			clog.Int("coalesced", res.Coalesced),
			clog.Int("requeued", res.Requeued),
			clog.Int("dropped", res.Dropped))
	}
}

// normalize 保证返回 *Error
func normalize(ctx context.Context, err error, method, path string) error {
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return newError(KindCanceled, method, path, err)
	}
	return newError(KindUnknown, method, path, err)
}

func encodeJSON(body any) ([]byte, error) {
	switch v := body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case json.RawMessage:
		return v, nil
	}
	b, err := json.Marshal(body)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.ErrInvalidInput, err.Error())
	}
	return b, nil
}

func decode(body []byte, dest any, method, path string) error {
	if dest == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if raw, ok := dest.(*[]byte); ok {
		*raw = append((*raw)[:0], body...)
		return nil
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return newError(KindDecoding, method, path, err)
	}
	return nil
}
