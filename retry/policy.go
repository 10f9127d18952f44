// Package retry 提供按错误分类重试的指数退避执行器。
//
// 第 n 次失败后的等待时间为 min(BaseDelay × Multiplier^(n-1), MaxDelay)，
// 再叠加 ±JitterFraction 的均匀抖动。JitterFraction 为指针，nil 表示未设置（补默认 0.1），
// 显式设为 0 表示不抖动。是否重试由 RetryIf 决定，默认不重试任何错误，
// 调用方应按错误类别显式声明可重试的情形。
//
//	r, _ := retry.New(retry.DefaultPolicy(), retry.WithRetryIf(isTransient))
//	err := r.Do(ctx, func(ctx context.Context, attempt int) error { ... })
//
// 次数用尽后返回最后一次的错误原样，不做额外包装。
package retry

import (
	"math"
	"time"

	"github.com/ceyewan/capsule/xerrors"
)

// Policy 重试策略
type Policy struct {
	MaxAttempts    int           `json:"max_attempts" yaml:"max_attempts" mapstructure:"max_attempts"`
	BaseDelay      time.Duration `json:"base_delay" yaml:"base_delay" mapstructure:"base_delay"`
	Multiplier     float64       `json:"multiplier" yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction *float64      `json:"jitter_fraction" yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
	MaxDelay       time.Duration `json:"max_delay" yaml:"max_delay" mapstructure:"max_delay"`
}

// DefaultPolicy 普通请求：3 次尝试，1s 起步，倍率 2，抖动 10%，上限 30s
func DefaultPolicy() *Policy {
	return &Policy{
		MaxAttempts:    3,
		BaseDelay:      time.Second,
		Multiplier:     2.0,
		JitterFraction: Jitter(0.1),
		MaxDelay:       30 * time.Second,
	}
}

// UploadPolicy 上传请求代价更高，只尝试 2 次
func UploadPolicy() *Policy {
	p := DefaultPolicy()
	p.MaxAttempts = 2
	return p
}

// Jitter 返回抖动比例的指针，用于字面量构造 Policy
func Jitter(f float64) *float64 {
	return &f
}

func (p *Policy) jitter() float64 {
	if p.JitterFraction == nil {
		return 0
	}
	return *p.JitterFraction
}

// SetDefaults 以 DefaultPolicy 补齐零值字段，JitterFraction 仅在 nil 时补齐
func (p *Policy) SetDefaults() {
	d := DefaultPolicy()
	if p.MaxAttempts == 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.BaseDelay == 0 {
		p.BaseDelay = d.BaseDelay
	}
	if p.Multiplier == 0 {
		p.Multiplier = d.Multiplier
	}
	if p.JitterFraction == nil {
		p.JitterFraction = d.JitterFraction
	}
	if p.MaxDelay == 0 {
		p.MaxDelay = d.MaxDelay
	}
}

// Validate 检查策略取值
func (p *Policy) Validate() error {
	switch {
	case p.MaxAttempts < 1:
		return xerrors.Wrapf(xerrors.ErrInvalidInput, "retry: max_attempts %d < 1", p.MaxAttempts)
	case p.BaseDelay < 0 || p.MaxDelay < 0:
		return xerrors.Wrap(xerrors.ErrInvalidInput, "retry: negative delay")
	case p.Multiplier < 1:
		return xerrors.Wrapf(xerrors.ErrInvalidInput, "retry: multiplier %v < 1", p.Multiplier)
	case p.jitter() < 0 || p.jitter() > 1:
		return xerrors.Wrapf(xerrors.ErrInvalidInput, "retry: jitter_fraction %v outside [0,1]", p.jitter())
	}
	return nil
}

// Backoff 返回第 n 次失败（从 1 开始）后的未抖动等待时间
func (p *Policy) Backoff(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	d := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(n-1))
	if d > float64(p.MaxDelay) || math.IsInf(d, 0) {
		return p.MaxDelay
	}
	return time.Duration(d)
}

// Delay 在 Backoff(n) 上叠加抖动，r 取自 [0,1)，r=0.5 时无偏移
func (p *Policy) Delay(n int, r float64) time.Duration {
	base := p.Backoff(n)
	offset := float64(base) * p.jitter() * (2*r - 1)
	d := time.Duration(float64(base) + offset)
	if d < 0 {
		return 0
	}
	return d
}
