package config

import (
	"strings"

	"github.com/ceyewan/capsule/clog"
)

// Config 加载器配置
type Config struct {
	Name      string         // 配置文件名，不含扩展名，默认 "config"
	Paths     []string       // 搜索路径，默认 [".", "./config"]
	FileType  string         // yaml | json | toml，默认 yaml
	EnvPrefix string         // 环境变量前缀，默认 "CAPSULE"
	Defaults  map[string]any // 最低优先级的默认值
}

func (c *Config) setDefaults() {
	if c.Name == "" {
		c.Name = "config"
	}
	if c.Paths == nil {
		c.Paths = []string{".", "./config"}
	}
	if c.FileType == "" {
		c.FileType = "yaml"
	}
	if c.EnvPrefix == "" {
		c.EnvPrefix = "CAPSULE"
	}
	c.EnvPrefix = strings.ToUpper(c.EnvPrefix)
}

// Option 配置加载器实例
type Option func(*options)

type options struct {
	logger clog.Logger
}

// WithLogger 注入日志记录器，自动追加 "config" 命名空间
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger.WithNamespace("config")
		}
	}
}

// New 创建配置加载器，cfg 为 nil 时使用默认配置。需调用 Load 后才能读取。
func New(cfg *Config, opts ...Option) (Loader, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.setDefaults()

	o := &options{logger: clog.Discard()}
	for _, opt := range opts {
		opt(o)
	}
	return newLoader(cfg, o), nil
}
