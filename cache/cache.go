// Package cache 提供有界的进程内响应缓存。
//
// 条目按指纹存放原始响应字节，同时受条目数与总字节数约束，淘汰由 otter 的
// W-TinyLFU 策略按访问频率与占用权重决定，而非先进先出。
// 条目自写入起 TTL 内为新鲜；在线读取遇到过期条目视为未命中并顺带淘汰，
// 离线读取（ignoreExpiry）仍可返回过期条目。
//
//	c, _ := cache.New(&cache.Config{}, cache.WithLogger(logger))
//	c.Put(ctx, fp, body)
//	if payload, ok := c.Get(ctx, fp, false); ok { ... }
package cache

import (
	"context"
	"time"
)

// Entry 缓存条目
type Entry struct {
	Payload  []byte
	StoredAt time.Time
}

// Cache 响应缓存，所有方法并发安全
type Cache interface {
	// Get 返回 key 对应的负载副本。ignoreExpiry 为 false 时过期条目视为不存在。
	Get(ctx context.Context, key string, ignoreExpiry bool) ([]byte, bool)

	// Put 写入负载副本，StoredAt 取当前时间
	Put(ctx context.Context, key string, payload []byte)

	Delete(ctx context.Context, key string)

	// Len 返回当前条目数，统计前会先处理挂起的淘汰
	Len() int

	Clear()

	Close() error
}

// New 创建缓存，cfg 为 nil 时使用默认配置
func New(cfg *Config, opts ...Option) (Cache, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return newStandalone(cfg, o)
}
