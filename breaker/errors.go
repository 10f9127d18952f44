package breaker

import "github.com/ceyewan/capsule/xerrors"

var (
	// ErrOpenState 熔断器打开（或半开探测名额已满），调用被拒绝
	ErrOpenState = xerrors.Wrap(xerrors.ErrUnavailable, "breaker: circuit breaker is open")

	ErrKeyEmpty = xerrors.Wrap(xerrors.ErrInvalidInput, "breaker: key is empty")

	ErrInvalidConfig = xerrors.Wrap(xerrors.ErrInvalidInput, "breaker: negative duration")
)
