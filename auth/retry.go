package auth

import (
	"context"
	"errors"

	"github.com/ceyewan/capsule/netclient"
)

// RetryOnUnauthorized 执行 fn；遇到 netclient.ErrUnauthorized 时刷新一次令牌后重试。
// 刷新失败时返回 fn 的原始错误；刷新被拒绝的会话已在 Refresh 中登出。
func RetryOnUnauthorized(ctx context.Context, s Session, fn func(ctx context.Context) error) error {
	err := fn(ctx)
	if !errors.Is(err, netclient.ErrUnauthorized) {
		return err
	}
	if _, rerr := s.Refresh(ctx); rerr != nil {
		return err
	}
	return fn(ctx)
}
