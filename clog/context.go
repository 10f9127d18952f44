package clog

import (
	"context"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/trace"
)

// NamespaceKey 是命名空间的字段名
const NamespaceKey = "namespace"

func contextAttrs(ctx context.Context, o *options, attrs []slog.Attr) []slog.Attr {
	if ctx == nil {
		return attrs
	}
	for _, cf := range o.contextFields {
		if v := ctx.Value(cf.Key); v != nil {
			attrs = append(attrs, slog.Any(cf.FieldName, v))
		}
	}
	if o.traceContext {
		if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
			attrs = append(attrs,
				slog.String("trace_id", sc.TraceID().String()),
				slog.String("span_id", sc.SpanID().String()),
			)
		}
	}
	return attrs
}

func namespaceAttr(o *options) (slog.Attr, bool) {
	if len(o.namespaceParts) == 0 {
		return slog.Attr{}, false
	}
	return slog.String(NamespaceKey, strings.Join(o.namespaceParts, ".")), true
}
