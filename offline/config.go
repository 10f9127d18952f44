package offline

import "github.com/ceyewan/capsule/xerrors"

// Config 队列配置
type Config struct {
	// Capacity 队列容量，默认 100
	Capacity int `json:"capacity" yaml:"capacity" mapstructure:"capacity"`

	// MaxRetries 单条请求回放失败后最多重新入队几次，默认 3
	MaxRetries int `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`
}

func (c *Config) setDefaults() {
	if c.Capacity == 0 {
		c.Capacity = 100
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
}

func (c *Config) validate() error {
	if c.Capacity < 1 {
		return xerrors.Wrapf(xerrors.ErrInvalidInput, "offline: capacity %d < 1", c.Capacity)
	}
	if c.MaxRetries < 0 {
		return xerrors.Wrapf(xerrors.ErrInvalidInput, "offline: max_retries %d < 0", c.MaxRetries)
	}
	return nil
}
