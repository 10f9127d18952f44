// Package xerrors 为 capsule 各组件提供统一的错误包装、错误码与哨兵错误。
//
// 组件在各自的 errors.go 中用 xerrors.New 定义哨兵错误，
// 在边界处用 Wrap/Wrapf 附加上下文，调用方统一用 Is/As 判定。
package xerrors

import (
	"errors"
	"fmt"
)

// 标准库函数再导出，组件只需引入 xerrors 一个包
var (
	New    = errors.New
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	Join   = errors.Join
)

// Wrap 在 err 前附加 msg，err 为 nil 时返回 nil。
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Wrapf 与 Wrap 相同，msg 由 format 生成。
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// CodedError 携带机器可读的错误码，用于日志与指标打标。
type CodedError struct {
	Code  string
	Cause error
}

func (e *CodedError) Error() string {
	if e.Cause == nil {
		return "[" + e.Code + "]"
	}
	return fmt.Sprintf("[%s] %v", e.Code, e.Cause)
}

func (e *CodedError) Unwrap() error { return e.Cause }

// WithCode 为 err 附加错误码。
func WithCode(err error, code string) error {
	if err == nil {
		return nil
	}
	return &CodedError{Code: code, Cause: err}
}

// GetCode 返回错误链上最近的错误码，没有则返回空串。
func GetCode(err error) string {
	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Code
	}
	return ""
}

// MultiError 聚合多个错误，Unwrap 返回全部以便 Is/As 逐个匹配。
type MultiError struct {
	Errors []error
}

func (m *MultiError) Error() string {
	switch len(m.Errors) {
	case 0:
		return "no errors"
	case 1:
		return m.Errors[0].Error()
	}
	return fmt.Sprintf("%v (and %d more errors)", m.Errors[0], len(m.Errors)-1)
}

func (m *MultiError) Unwrap() []error { return m.Errors }

// Combine 过滤 nil 后合并错误：全为 nil 返回 nil，只有一个时原样返回。
func Combine(errs ...error) error {
	var kept []error
	for _, err := range errs {
		if err != nil {
			kept = append(kept, err)
		}
	}
	switch len(kept) {
	case 0:
		return nil
	case 1:
		return kept[0]
	}
	return &MultiError{Errors: kept}
}

// Must 用于初始化阶段，err 非 nil 时 panic。
func Must[T any](v T, err error) T {
	if err != nil {
		panic(fmt.Sprintf("must: %v", err))
	}
	return v
}
