// Package config 提供基于 viper 的多源配置加载与热更新。
//
// 来源优先级：环境变量 > .env > config.<env>.yaml > config.yaml > Defaults。
// 环境变量以 EnvPrefix 为前缀，键中的 "." 替换为 "_"，
// 例如 client.base_url 对应 CAPSULE_CLIENT_BASE_URL。
//
//	loader, _ := config.New(&config.Config{Paths: []string{"./configs"}})
//	if err := loader.Load(ctx); err != nil { ... }
//	var cfg netclient.Config
//	_ = loader.UnmarshalKey("client", &cfg)
package config

import (
	"context"
	"time"
)

// Loader 加载、解析并监听配置
type Loader interface {
	Load(ctx context.Context) error
	Get(key string) any
	Unmarshal(v any) error
	UnmarshalKey(key string, v any) error

	// Watch 订阅 key 的变更，ctx 取消后通道关闭
	Watch(ctx context.Context, key string) (<-chan Event, error)

	Validate() error
}

// Event 配置变更事件
type Event struct {
	Key       string
	Value     any
	OldValue  any
	Source    string // "file"
	Timestamp time.Time
}
