package clog

import "context"

// Logger 结构化日志接口
//
// Context 版本会按 WithContextField/WithTraceContext 的配置从 ctx 中提取字段。
// Fatal 级别输出后进程以状态码 1 退出。
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	Fatal(msg string, fields ...Field)

	DebugContext(ctx context.Context, msg string, fields ...Field)
	InfoContext(ctx context.Context, msg string, fields ...Field)
	WarnContext(ctx context.Context, msg string, fields ...Field)
	ErrorContext(ctx context.Context, msg string, fields ...Field)
	FatalContext(ctx context.Context, msg string, fields ...Field)

	// With 返回带预设字段的子 Logger
	With(fields ...Field) Logger

	// WithNamespace 在现有命名空间后追加，如 "capsule" + "netclient" = "capsule.netclient"
	WithNamespace(parts ...string) Logger

	// SetLevel 运行时调整级别，对共享同一 handler 的所有子 Logger 生效
	SetLevel(level Level) error

	Flush()
}
