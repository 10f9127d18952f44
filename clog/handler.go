package clog

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// clogHandler 包装 slog.Handler，持有可动态调整的级别
type clogHandler struct {
	slog.Handler
	levelVar *slog.LevelVar
	closer   io.Closer
}

func newHandler(config *Config, o *options) (*clogHandler, error) {
	var (
		w      io.Writer
		closer io.Closer
	)
	switch {
	case o.writer != nil:
		w = o.writer
	case strings.EqualFold(config.Output, "stdout"):
		w = os.Stdout
	case strings.EqualFold(config.Output, "stderr"):
		w = os.Stderr
	default:
		f, err := os.OpenFile(config.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, err
		}
		w, closer = f, f
	}

	level, _ := ParseLevel(config.Level)
	levelVar := new(slog.LevelVar)
	levelVar.Set(level.slog())

	opts := &slog.HandlerOptions{
		AddSource:   config.AddSource,
		Level:       levelVar,
		ReplaceAttr: replaceAttr(config.SourceRoot),
	}

	var h slog.Handler
	if strings.EqualFold(config.Format, "json") {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return &clogHandler{Handler: h, levelVar: levelVar, closer: closer}, nil
}

// replaceAttr 统一级别名称与时间格式，并把 source 改写为裁剪后的 caller 字段
func replaceAttr(sourceRoot string) func([]string, slog.Attr) slog.Attr {
	return func(_ []string, a slog.Attr) slog.Attr {
		switch a.Key {
		case slog.LevelKey:
			if lv, ok := a.Value.Any().(slog.Level); ok {
				a.Value = slog.StringValue(levelName(lv))
			}
		case slog.TimeKey:
			if a.Value.Kind() == slog.KindTime {
				a.Value = slog.StringValue(a.Value.Time().Format(timeFormat))
			}
		case slog.SourceKey:
			if src, ok := a.Value.Any().(*slog.Source); ok {
				return slog.String("caller", fmt.Sprintf("%s:%d", trimSource(src.File, sourceRoot), src.Line))
			}
		}
		return a
	}
}

func levelName(lv slog.Level) string {
	switch {
	case lv <= slog.LevelDebug:
		return "DEBUG"
	case lv <= slog.LevelInfo:
		return "INFO"
	case lv <= slog.LevelWarn:
		return "WARN"
	case lv <= slog.LevelError:
		return "ERROR"
	}
	return "FATAL"
}

func trimSource(file, root string) string {
	if root != "" {
		if rel, err := filepath.Rel(root, file); err == nil && !strings.HasPrefix(rel, "..") {
			return rel
		}
	}
	if idx := strings.Index(file, "capsule/"); idx != -1 {
		return file[idx:]
	}
	return filepath.Base(file)
}

func (h *clogHandler) setLevel(level Level) {
	h.levelVar.Set(level.slog())
}

func (h *clogHandler) flush() {
	if f, ok := h.closer.(*os.File); ok {
		_ = f.Sync()
	}
}
