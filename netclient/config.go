package netclient

import (
	"net/url"
	"strings"
	"time"

	"github.com/ceyewan/capsule/breaker"
	"github.com/ceyewan/capsule/cache"
	"github.com/ceyewan/capsule/offline"
	"github.com/ceyewan/capsule/retry"
	"github.com/ceyewan/capsule/xerrors"
)

const (
	DefaultPlatform        = "go"
	DefaultAppVersion      = "dev"
	DefaultAuthPathPrefix  = "/auth/"
	DefaultRequestTimeout  = 30 * time.Second
	DefaultResourceTimeout = 300 * time.Second
	DefaultMaxResponseSize = 32 << 20
)

// Config 客户端配置
type Config struct {
	// BaseURL 服务根地址，必填，例如 https://api.example.com/v1
	BaseURL string `json:"base_url" yaml:"base_url" mapstructure:"base_url"`

	// Platform 与 AppVersion 分别写入 X-Platform 与 X-App-Version 请求头
	Platform   string `json:"platform" yaml:"platform" mapstructure:"platform"`
	AppVersion string `json:"app_version" yaml:"app_version" mapstructure:"app_version"`

	// AuthPathPrefix 匹配该前缀的路径不附加 Bearer 令牌
	AuthPathPrefix string `json:"auth_path_prefix" yaml:"auth_path_prefix" mapstructure:"auth_path_prefix"`

	// RequestTimeout 单次 GET/POST 尝试的超时，默认 30s
	RequestTimeout time.Duration `json:"request_timeout" yaml:"request_timeout" mapstructure:"request_timeout"`

	// ResourceTimeout 单次上传尝试的超时，默认 300s
	ResourceTimeout time.Duration `json:"resource_timeout" yaml:"resource_timeout" mapstructure:"resource_timeout"`

	// MaxResponseSize 响应体读取上限，默认 32MB
	MaxResponseSize int64 `json:"max_response_size" yaml:"max_response_size" mapstructure:"max_response_size"`

	Retry       retry.Policy    `json:"retry" yaml:"retry" mapstructure:"retry"`
	UploadRetry retry.Policy    `json:"upload_retry" yaml:"upload_retry" mapstructure:"upload_retry"`
	Breaker     breaker.Config  `json:"breaker" yaml:"breaker" mapstructure:"breaker"`
	Cache       cache.Config    `json:"cache" yaml:"cache" mapstructure:"cache"`
	Offline     offline.Config  `json:"offline" yaml:"offline" mapstructure:"offline"`
	RateLimit   RateLimitConfig `json:"rate_limit" yaml:"rate_limit" mapstructure:"rate_limit"`
}

// RateLimitConfig 客户端侧令牌桶，RPS <= 0 表示不限速
type RateLimitConfig struct {
	RPS   float64 `json:"rps" yaml:"rps" mapstructure:"rps"`
	Burst int     `json:"burst" yaml:"burst" mapstructure:"burst"`
}

func (c *Config) setDefaults() {
	if c.Platform == "" {
		c.Platform = DefaultPlatform
	}
	if c.AppVersion == "" {
		c.AppVersion = DefaultAppVersion
	}
	if c.AuthPathPrefix == "" {
		c.AuthPathPrefix = DefaultAuthPathPrefix
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.ResourceTimeout == 0 {
		c.ResourceTimeout = DefaultResourceTimeout
	}
	if c.MaxResponseSize == 0 {
		c.MaxResponseSize = DefaultMaxResponseSize
	}
	if c.UploadRetry.MaxAttempts == 0 {
		c.UploadRetry.MaxAttempts = retry.UploadPolicy().MaxAttempts
	}
	c.Retry.SetDefaults()
	c.UploadRetry.SetDefaults()
	if c.RateLimit.RPS > 0 && c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = 1
	}
}

func (c *Config) validate() (*url.URL, error) {
	if c.BaseURL == "" {
		return nil, xerrors.Wrap(ErrInvalidConfig, "base_url is required")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return nil, xerrors.Wrapf(ErrInvalidConfig, "base_url: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, xerrors.Wrapf(ErrInvalidConfig, "base_url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, xerrors.Wrap(ErrInvalidConfig, "base_url has no host")
	}
	if c.RequestTimeout < 0 || c.ResourceTimeout < 0 || c.MaxResponseSize < 0 {
		return nil, xerrors.Wrap(ErrInvalidConfig, "negative timeout or size")
	}
	if err := c.Retry.Validate(); err != nil {
		return nil, err
	}
	if err := c.UploadRetry.Validate(); err != nil {
		return nil, err
	}
	u.Path = strings.TrimRight(u.Path, "/")
	return u, nil
}

// ErrInvalidConfig 配置不合法
var ErrInvalidConfig = xerrors.Wrap(xerrors.ErrInvalidInput, "netclient: invalid config")
