package offline

import "github.com/ceyewan/capsule/xerrors"

var (
	// ErrDrainInProgress 已有 Drain 在执行
	ErrDrainInProgress = xerrors.New("offline: drain already in progress")

	ErrInvalidRequest = xerrors.Wrap(xerrors.ErrInvalidInput, "offline: request needs method and path")
)
