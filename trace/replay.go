package trace

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	oteltrace "go.opentelemetry.io/otel/trace"
)

const (
	AttrReplayPath        = "offline.replay.path"
	AttrReplayFingerprint = "offline.replay.fingerprint"

	SpanNameReplay = "offline.replay"
)

// Inject 将 ctx 中的追踪上下文写入 header
func Inject(ctx context.Context, header http.Header) {
	if ctx == nil || header == nil {
		return
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(header))
}

// Extract 从 header 中解析追踪上下文
func Extract(ctx context.Context, header http.Header) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if header == nil {
		return ctx
	}
	return otel.GetTextMapPropagator().Extract(ctx, propagation.HeaderCarrier(header))
}

// StartReplaySpan 为一次离线重放启动 span。
// 入队时保存在 header 中的上下文以 Link 关联，重放 span 自身位于 ctx 的调用链上。
func StartReplaySpan(ctx context.Context, tracer oteltrace.Tracer, header http.Header, attrs ...attribute.KeyValue) (context.Context, oteltrace.Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	if tracer == nil {
		tracer = otel.Tracer("github.com/ceyewan/capsule/trace")
	}

	opts := []oteltrace.SpanStartOption{
		oteltrace.WithSpanKind(oteltrace.SpanKindInternal),
		oteltrace.WithAttributes(attrs...),
	}
	queued := oteltrace.SpanContextFromContext(Extract(context.Background(), header))
	if queued.IsValid() {
		opts = append(opts, oteltrace.WithLinks(oteltrace.Link{SpanContext: queued}))
	}
	return tracer.Start(ctx, SpanNameReplay, opts...)
}
