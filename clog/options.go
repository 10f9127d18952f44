package clog

import "io"

// ContextField 描述从 Context 中提取字段的规则
type ContextField struct {
	Key       any    // Context 中的键
	FieldName string // 日志中的字段名
}

// Option 配置 Logger 实例
type Option func(*options)

type options struct {
	namespaceParts []string
	contextFields  []ContextField
	traceContext   bool
	writer         io.Writer // 测试用输出
}

// WithNamespace 追加命名空间，以 "." 连接后作为 namespace 字段输出。
func WithNamespace(parts ...string) Option {
	return func(o *options) {
		o.namespaceParts = append(o.namespaceParts, parts...)
	}
}

// WithContextField 从 Context 中按 key 取值，以 fieldName 输出。
func WithContextField(key any, fieldName string) Option {
	return func(o *options) {
		o.contextFields = append(o.contextFields, ContextField{Key: key, FieldName: fieldName})
	}
}

// WithTraceContext 从 Context 中的 OpenTelemetry Span 提取 trace_id 与 span_id。
func WithTraceContext() Option {
	return func(o *options) {
		o.traceContext = true
	}
}

// withWriter 仅供测试使用，将输出重定向到 w
func withWriter(w io.Writer) Option {
	return func(o *options) {
		o.writer = w
	}
}

func applyOptions(opts ...Option) *options {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
