package auth

import (
	"time"

	"github.com/ceyewan/capsule/xerrors"
)

const (
	DefaultRefreshSkew = 30 * time.Second
	DefaultRefreshPath = "/auth/refresh"
)

// Config 会话配置
type Config struct {
	// RefreshSkew 距离过期不足该时长即视为需要刷新，默认 30s
	RefreshSkew time.Duration `json:"refresh_skew" yaml:"refresh_skew" mapstructure:"refresh_skew"`
}

// setDefaults 设置默认值
func (c *Config) setDefaults() {
	if c.RefreshSkew == 0 {
		c.RefreshSkew = DefaultRefreshSkew
	}
}

// validate 验证配置
func (c *Config) validate() error {
	if c.RefreshSkew < 0 {
		return xerrors.Wrapf(ErrInvalidConfig, "refresh_skew must not be negative")
	}
	return nil
}
