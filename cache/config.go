package cache

import (
	"time"

	"github.com/ceyewan/capsule/xerrors"
)

const (
	DefaultMaxEntries = 100
	DefaultMaxBytes   = 50 * 1024 * 1024
	DefaultTTL        = 5 * time.Minute
)

// Config 缓存配置
type Config struct {
	// MaxEntries 条目数上限，默认 100
	MaxEntries int `json:"max_entries" yaml:"max_entries" mapstructure:"max_entries"`

	// MaxBytes 负载总字节上限，默认 50MB
	MaxBytes int64 `json:"max_bytes" yaml:"max_bytes" mapstructure:"max_bytes"`

	// TTL 新鲜期，从写入时刻起算，默认 5 分钟
	TTL time.Duration `json:"ttl" yaml:"ttl" mapstructure:"ttl"`
}

func (c *Config) setDefaults() {
	if c.MaxEntries == 0 {
		c.MaxEntries = DefaultMaxEntries
	}
	if c.MaxBytes == 0 {
		c.MaxBytes = DefaultMaxBytes
	}
	if c.TTL == 0 {
		c.TTL = DefaultTTL
	}
}

func (c *Config) validate() error {
	if c.MaxEntries < 0 || c.MaxBytes < 0 || c.TTL < 0 {
		return xerrors.Wrap(xerrors.ErrInvalidInput, "cache: negative limit")
	}
	if c.MaxBytes < int64(c.MaxEntries) {
		return xerrors.Wrapf(xerrors.ErrInvalidInput, "cache: max_bytes %d smaller than max_entries %d", c.MaxBytes, c.MaxEntries)
	}
	return nil
}

// slotWeight 是每个条目的最小权重。MaximumWeight = MaxBytes 时，
// 任何条目的权重都不小于 slotWeight，因而条目数不会超过 MaxEntries。
func (c *Config) slotWeight() uint64 {
	return uint64(c.MaxBytes) / uint64(c.MaxEntries)
}
