// Package auth 管理客户端会话的访问令牌。
//
// Session 实现 netclient.TokenProvider：令牌临近过期时通过 Refresher 续期，
// 并发的续期请求只会发出一次。续期被服务端拒绝时会话登出。
//
// 基本使用：
//
//	session, _ := auth.New(&auth.Config{}, auth.WithRefresher(auth.NewHTTPRefresher(client, "")))
//	session.SetTokens(auth.Tokens{AccessToken: at, RefreshToken: rt})
//	client := netclient.New(cfg, netclient.WithTokenProvider(session))
package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ceyewan/capsule/clog"
	"github.com/ceyewan/capsule/dedup"
	"github.com/ceyewan/capsule/metrics"
	"github.com/ceyewan/capsule/netclient"
)

// Tokens 一组令牌。ExpiresAt 为零时从 AccessToken 的 exp 声明推断，仍为零则视为永不过期。
type Tokens struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`
}

// Session 客户端会话，方法并发安全
type Session interface {
	// Token 返回有效的访问令牌，必要时先刷新
	Token(ctx context.Context) (string, error)

	// Refresh 强制刷新，并发调用共享同一次请求
	Refresh(ctx context.Context) (Tokens, error)

	SetTokens(t Tokens)

	// Tokens 返回当前令牌，未登录时 ok 为 false
	Tokens() (t Tokens, ok bool)

	SignOut(ctx context.Context)

	SignedIn() bool
}

const (
	reasonUser          = "user"
	reasonRefreshFailed = "refresh_failed"
)

type session struct {
	cfg  *Config
	opts *options

	mu         sync.RWMutex
	tokens     Tokens
	signedIn   bool
	generation uint64

	group     *dedup.Group
	refreshes metrics.Counter
	signOuts  metrics.Counter
}

// New 创建会话，初始为未登录
func New(cfg *Config, opts ...Option) (Session, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	s := &session{
		cfg:   cfg,
		opts:  o,
		group: dedup.New(dedup.WithLogger(o.logger)),
	}
	var err error
	if s.refreshes, err = o.meter.Counter(MetricRefreshes, "Access token refresh attempts."); err != nil {
		return nil, err
	}
	if s.signOuts, err = o.meter.Counter(MetricSignOuts, "Session sign-outs."); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *session) Token(ctx context.Context) (string, error) {
	s.mu.RLock()
	t, ok := s.tokens, s.signedIn
	s.mu.RUnlock()
	if !ok {
		return "", ErrNoSession
	}
	if !s.needsRefresh(t) {
		return t.AccessToken, nil
	}

	nt, err := s.Refresh(ctx)
	if err != nil {
		// 刷新暂时失败但旧令牌尚未过期，继续使用
		if !t.ExpiresAt.IsZero() && s.opts.now().Before(t.ExpiresAt) && s.SignedIn() {
			s.opts.logger.WarnContext(ctx, "token refresh failed, using current token", clog.Error(err))
			return t.AccessToken, nil
		}
		return "", err
	}
	return nt.AccessToken, nil
}

func (s *session) needsRefresh(t Tokens) bool {
	if t.ExpiresAt.IsZero() {
		return false
	}
	return !s.opts.now().Add(s.cfg.RefreshSkew).Before(t.ExpiresAt)
}

func (s *session) Refresh(ctx context.Context) (Tokens, error) {
	nt, _, err := dedup.Run(ctx, s.group, "refresh", s.refresh)
	return nt, err
}

func (s *session) refresh(ctx context.Context) (Tokens, error) {
	s.mu.RLock()
	rt, ok, gen := s.tokens.RefreshToken, s.signedIn, s.generation
	s.mu.RUnlock()
	if !ok {
		return Tokens{}, ErrNoSession
	}
	if s.opts.refresher == nil {
		return Tokens{}, ErrNoRefresher
	}
	if rt == "" {
		return Tokens{}, ErrNoSession
	}

	nt, err := s.opts.refresher.Refresh(ctx, rt)
	if err == nil && nt.AccessToken == "" {
		err = ErrInvalidToken
	}
	if err != nil {
		s.refreshes.Inc(ctx, metrics.L("result", "error"))
		if !transient(err) {
			s.signOut(ctx, reasonRefreshFailed, gen)
		}
		return Tokens{}, err
	}
	if nt.RefreshToken == "" {
		nt.RefreshToken = rt
	}
	nt = s.withExpiry(nt)

	s.mu.Lock()
	if s.generation != gen || !s.signedIn {
		s.mu.Unlock()
		return Tokens{}, ErrNoSession
	}
	s.tokens = nt
	s.generation++
	s.mu.Unlock()

	s.refreshes.Inc(ctx, metrics.L("result", "success"))
	s.opts.logger.InfoContext(ctx, "access token refreshed", clog.Time("expires_at", nt.ExpiresAt))
	return nt, nil
}

// transient 刷新因网络原因失败，刷新令牌本身可能仍然有效
func transient(err error) bool {
	if netclient.IsRetryable(err) {
		return true
	}
	switch netclient.KindOf(err) {
	case netclient.KindNetworkUnavailable, netclient.KindCircuitOpen, netclient.KindCanceled:
		return true
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (s *session) withExpiry(t Tokens) Tokens {
	if t.ExpiresAt.IsZero() {
		if exp, err := ExpiryFromJWT(t.AccessToken); err == nil {
			t.ExpiresAt = exp
		}
	}
	return t
}

func (s *session) SetTokens(t Tokens) {
	t = s.withExpiry(t)
	s.mu.Lock()
	s.tokens = t
	s.signedIn = t.AccessToken != ""
	s.generation++
	s.mu.Unlock()
}

func (s *session) Tokens() (Tokens, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tokens, s.signedIn
}

func (s *session) SignedIn() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.signedIn
}

func (s *session) SignOut(ctx context.Context) {
	s.mu.RLock()
	gen := s.generation
	s.mu.RUnlock()
	s.signOut(ctx, reasonUser, gen)
}

// signOut 仅当会话仍是 gen 代时生效，避免登出覆盖并发的重新登录
func (s *session) signOut(ctx context.Context, reason string, gen uint64) {
	s.mu.Lock()
	if !s.signedIn || s.generation != gen {
		s.mu.Unlock()
		return
	}
	s.tokens = Tokens{}
	s.signedIn = false
	s.generation++
	s.mu.Unlock()

	s.signOuts.Inc(ctx, metrics.L("reason", reason))
	s.opts.logger.InfoContext(ctx, "signed out", clog.String("reason", reason))
	if s.opts.onSignOut != nil {
		s.opts.onSignOut(ctx, reason)
	}
}
