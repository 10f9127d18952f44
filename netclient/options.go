package netclient

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/ceyewan/capsule/breaker"
	"github.com/ceyewan/capsule/cache"
	"github.com/ceyewan/capsule/clog"
	"github.com/ceyewan/capsule/connectivity"
	"github.com/ceyewan/capsule/metrics"
	"github.com/ceyewan/capsule/offline"
	"github.com/ceyewan/capsule/ratelimit"
)

// Option 客户端选项
type Option func(*options)

type options struct {
	logger         clog.Logger
	meter          metrics.Meter
	transport      Transport
	tokens         TokenProvider
	monitor        connectivity.Monitor
	cache          cache.Cache
	breaker        breaker.Breaker
	queue          offline.Queue
	limiter        ratelimit.Limiter
	sleep          func(ctx context.Context, d time.Duration) error
	tracerProvider trace.TracerProvider
}

func defaultOptions() *options {
	return &options{
		logger: clog.Discard(),
		meter:  metrics.Discard(),
	}
}

// WithLogger 注入日志记录器。客户端使用 "netclient" 命名空间，
// 内部创建的缓存、熔断器、重试器与队列各自追加自己的命名空间。
func WithLogger(l clog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMeter 注入指标 Meter，同时传给内部创建的缓存、熔断器与队列
func WithMeter(m metrics.Meter) Option {
	return func(o *options) {
		if m != nil {
			o.meter = m
		}
	}
}

// WithTransport 替换底层传输，默认 NewHTTPTransport(nil)
func WithTransport(t Transport) Option {
	return func(o *options) {
		o.transport = t
	}
}

// WithTokenProvider 设置访问令牌来源。未设置时，非认证路径的请求一律返回 ErrUnauthorized。
func WithTokenProvider(p TokenProvider) Option {
	return func(o *options) {
		o.tokens = p
	}
}

// WithMonitor 设置联网状态来源，默认始终在线。客户端会订阅其事件，恢复联网时回放离线队列。
func WithMonitor(m connectivity.Monitor) Option {
	return func(o *options) {
		o.monitor = m
	}
}

// WithCache 使用外部缓存实例，Close 时不会关闭它
func WithCache(c cache.Cache) Option {
	return func(o *options) {
		o.cache = c
	}
}

// WithBreaker 使用外部熔断器。多个客户端共享时用 NewBreaker 创建，以沿用本包的失败判定。
func WithBreaker(b breaker.Breaker) Option {
	return func(o *options) {
		o.breaker = b
	}
}

// WithOfflineQueue 使用外部离线队列
func WithOfflineQueue(q offline.Queue) Option {
	return func(o *options) {
		o.queue = q
	}
}

// WithRetrySleeper 替换重试等待，测试中用于跳过退避
func WithRetrySleeper(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(o *options) {
		o.sleep = fn
	}
}

// WithTracerProvider 指定 TracerProvider，默认使用 otel 全局实例
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		o.tracerProvider = tp
	}
}

// WithRateLimiter 使用外部限流器，便于多个客户端共享配额。
// 规则仍取自 Config.RateLimit，键为 API 主机。
func WithRateLimiter(l ratelimit.Limiter) Option {
	return func(o *options) {
		o.limiter = l
	}
}
