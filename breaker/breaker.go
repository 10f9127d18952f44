// Package breaker 提供按键隔离的熔断器，基于 sony/gobreaker。
//
// 每个键（通常是后端主机）拥有独立的状态机：
//
//	Closed   -- 连续失败达到 FailureThreshold --> Open
//	Open     -- 距上次开启超过 RecoveryTimeout，下一次调用时 --> HalfOpen
//	HalfOpen -- 探测成功 --> Closed（计数清零）
//	HalfOpen -- 探测失败 --> Open
//
// Open 到 HalfOpen 的转换在调用或查询状态时惰性求值，不依赖后台定时器。
// 打开状态下 Execute 直接返回 ErrOpenState，不调用 fn。
//
//	brk, _ := breaker.New(&breaker.Config{}, breaker.WithLogger(logger))
//	v, err := brk.Execute(ctx, "api.example.com", func() (any, error) { ... })
package breaker

import (
	"context"
	"time"
)

// Breaker 熔断器
type Breaker interface {
	// Execute 在 key 对应的熔断器保护下执行 fn
	Execute(ctx context.Context, key string, fn func() (any, error)) (any, error)

	// State 返回 key 的当前状态，未使用过的 key 为 StateClosed
	State(key string) State

	// Counts 返回 key 当前统计周期内的计数
	Counts(key string) Counts
}

// State 熔断器状态
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half_open"
	case StateOpen:
		return "open"
	}
	return "unknown"
}

// Counts 统计计数
type Counts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

// Config 熔断器配置
type Config struct {
	// FailureThreshold 连续失败多少次后打开，默认 5
	FailureThreshold uint32 `json:"failure_threshold" yaml:"failure_threshold" mapstructure:"failure_threshold"`

	// RecoveryTimeout 打开后多久允许半开探测，默认 30s
	RecoveryTimeout time.Duration `json:"recovery_timeout" yaml:"recovery_timeout" mapstructure:"recovery_timeout"`

	// HalfOpenMaxRequests 半开状态允许同时通过的探测数，默认 1
	HalfOpenMaxRequests uint32 `json:"half_open_max_requests" yaml:"half_open_max_requests" mapstructure:"half_open_max_requests"`

	// Interval 闭合状态下清空计数的周期，0 表示不清空
	Interval time.Duration `json:"interval" yaml:"interval" mapstructure:"interval"`
}

func (c *Config) setDefaults() {
	if c.FailureThreshold == 0 {
		c.FailureThreshold = 5
	}
	if c.RecoveryTimeout == 0 {
		c.RecoveryTimeout = 30 * time.Second
	}
	if c.HalfOpenMaxRequests == 0 {
		c.HalfOpenMaxRequests = 1
	}
}

// New 创建熔断器，cfg 为 nil 时使用默认配置
func New(cfg *Config, opts ...Option) (Breaker, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.setDefaults()
	if cfg.RecoveryTimeout < 0 || cfg.Interval < 0 {
		return nil, ErrInvalidConfig
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return newBreaker(cfg, o)
}
