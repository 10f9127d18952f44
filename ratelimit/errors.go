package ratelimit

import "github.com/ceyewan/capsule/xerrors"

var (
	// ErrKeyEmpty 限流键为空
	ErrKeyEmpty = xerrors.Wrap(xerrors.ErrInvalidInput, "ratelimit: key is empty")

	// ErrInvalidLimit Rate 或 Burst 不为正
	ErrInvalidLimit = xerrors.Wrap(xerrors.ErrInvalidInput, "ratelimit: invalid limit")
)
