// Package dedup 合并同键的并发调用，基于 golang.org/x/sync/singleflight。
//
// 同一键在执行期间到达的调用者共享同一次执行的结果或错误；执行结束后到达的调用者
// 触发新的执行。共享执行使用首个调用者 ctx 的 WithoutCancel 副本运行到结束，
// 某个调用者的 ctx 取消只会让它自己提前返回 ctx.Err() 并丢弃结果。
//
//	g := dedup.New()
//	body, shared, err := dedup.Run(ctx, g, fingerprint, func(ctx context.Context) ([]byte, error) { ... })
package dedup

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/ceyewan/capsule/clog"
)

// Group 键无关的请求合并器，零值不可用，使用 New 创建
type Group struct {
	sf       singleflight.Group
	inFlight atomic.Int64
	logger   clog.Logger
}

// Option 合并器选项
type Option func(*Group)

// WithLogger 注入日志记录器，自动追加 "dedup" 命名空间
func WithLogger(l clog.Logger) Option {
	return func(g *Group) {
		if l != nil {
			g.logger = l.WithNamespace("dedup")
		}
	}
}

// New 创建合并器
func New(opts ...Option) *Group {
	g := &Group{logger: clog.Discard()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Do 以 key 合并执行 fn。shared 表示结果来自其它调用者发起的执行，
// 发起执行的调用者总是得到 false，N 个合并的调用者中恰有 N-1 个为 true。
func (g *Group) Do(ctx context.Context, key string, fn func(ctx context.Context) (any, error)) (v any, shared bool, err error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	runCtx := context.WithoutCancel(ctx)
	var led atomic.Bool
	ch := g.sf.DoChan(key, func() (any, error) {
		led.Store(true)
		g.inFlight.Add(1)
		defer g.inFlight.Add(-1)
		return fn(runCtx)
	})

	select {
	case res := <-ch:
		shared := res.Shared && !led.Load()
		if shared {
			g.logger.DebugContext(ctx, "shared in-flight result", clog.String("key", key))
		}
		return res.Val, shared, res.Err
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

// InFlight 返回正在执行的底层调用数
func (g *Group) InFlight() int {
	return int(g.inFlight.Load())
}

// Forget 让后续同键调用不再等待当前执行
func (g *Group) Forget(key string) {
	g.sf.Forget(key)
}

// Run 是 Do 的泛型版本
func Run[T any](ctx context.Context, g *Group, key string, fn func(ctx context.Context) (T, error)) (T, bool, error) {
	v, shared, err := g.Do(ctx, key, func(ctx context.Context) (any, error) {
		return fn(ctx)
	})
	t, _ := v.(T)
	return t, shared, err
}
