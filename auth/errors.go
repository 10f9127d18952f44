package auth

import "github.com/ceyewan/capsule/xerrors"

var (
	// ErrNoSession 未登录或已登出
	ErrNoSession = xerrors.Wrap(xerrors.ErrUnauthorized, "auth: no session")

	ErrInvalidToken  = xerrors.New("auth: invalid token")
	ErrNoRefresher   = xerrors.New("auth: no refresher configured")
	ErrInvalidConfig = xerrors.Wrap(xerrors.ErrInvalidInput, "auth: invalid config")
)
