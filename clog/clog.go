// Package clog 为 capsule 提供基于 slog 的结构化日志组件。
//
// 各组件通过 WithLogger 注入 Logger，并以 WithNamespace 派生自己的命名空间，
// 例如 netclient、breaker、offline。未注入时组件使用 Discard。
//
// 基本使用：
//
//	logger, _ := clog.New(&clog.Config{Level: "info", Format: "json"})
//	logger.Info("request done", clog.String("path", "/items"))
//
// 带 Context 的日志：
//
//	logger, _ := clog.New(cfg, clog.WithContextField(requestIDKey{}, "request_id"), clog.WithTraceContext())
//	logger.InfoContext(ctx, "replayed")
package clog

import "github.com/ceyewan/capsule/xerrors"

// New 创建 Logger，config 为 nil 时使用开发环境默认配置。
func New(config *Config, opts ...Option) (Logger, error) {
	if config == nil {
		config = NewDevDefaultConfig("")
	}
	if err := config.validate(); err != nil {
		return nil, xerrors.Wrap(err, "invalid config")
	}
	return newLogger(config, applyOptions(opts...))
}
