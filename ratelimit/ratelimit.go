// Package ratelimit 提供按键区分的本地令牌桶限流器，基于 golang.org/x/time/rate。
//
// netclient 以 API 主机为键在每次传输尝试前调用 Wait，使客户端自身不超过服务端配额。
// 同一个 Limiter 可在多个客户端之间共享。
//
//	limiter, _ := ratelimit.New(nil, ratelimit.WithLogger(logger))
//	defer limiter.Close()
//	err := limiter.Wait(ctx, "api.example.com", ratelimit.Limit{Rate: 10, Burst: 20})
package ratelimit

import (
	"context"
	"time"
)

// Limit 令牌桶规则
type Limit struct {
	Rate  float64 // 每秒生成的令牌数
	Burst int     // 桶容量
}

// Enabled Rate 与 Burst 均为正时限流生效
func (l Limit) Enabled() bool { return l.Rate > 0 && l.Burst > 0 }

// Limiter 限流器
type Limiter interface {
	// Allow 非阻塞地获取 1 个令牌
	Allow(ctx context.Context, key string, limit Limit) (bool, error)

	// Wait 阻塞直到获取 1 个令牌，ctx 结束或等待时间超过 ctx 截止时间时返回错误
	Wait(ctx context.Context, key string, limit Limit) error

	// Close 停止空闲桶清理
	Close() error
}

// Config 限流器配置
type Config struct {
	// CleanupInterval 清理空闲令牌桶的周期，默认 1 分钟
	CleanupInterval time.Duration `json:"cleanup_interval" yaml:"cleanup_interval" mapstructure:"cleanup_interval"`

	// IdleTimeout 令牌桶空闲多久后被回收，默认 5 分钟
	IdleTimeout time.Duration `json:"idle_timeout" yaml:"idle_timeout" mapstructure:"idle_timeout"`
}

func (c *Config) setDefaults() {
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = time.Minute
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 5 * time.Minute
	}
}

// New 创建限流器，cfg 可为 nil
func New(cfg *Config, opts ...Option) (Limiter, error) {
	c := Config{}
	if cfg != nil {
		c = *cfg
	}
	c.setDefaults()

	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return newLimiter(c, o)
}
