package config

import "github.com/ceyewan/capsule/xerrors"

// ErrValidationFailed 配置为空或校验失败
var ErrValidationFailed = xerrors.Wrap(xerrors.ErrInvalidInput, "config: validation failed")

// IsInvalidInput 判断 err 是否为配置格式或校验错误
func IsInvalidInput(err error) bool {
	return xerrors.Is(err, xerrors.ErrInvalidInput)
}
