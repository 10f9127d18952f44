package auth

import (
	"context"
	"time"

	"github.com/ceyewan/capsule/netclient"
)

// Refresher 用刷新令牌换取新令牌
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (Tokens, error)
}

// RefresherFunc 函数适配器
type RefresherFunc func(ctx context.Context, refreshToken string) (Tokens, error)

func (f RefresherFunc) Refresh(ctx context.Context, refreshToken string) (Tokens, error) {
	return f(ctx, refreshToken)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type refreshResponse struct {
	AccessToken  string              `json:"access_token"`
	RefreshToken string              `json:"refresh_token"`
	ExpiresIn    int64               `json:"expires_in"`
	ExpiresAt    netclient.Timestamp `json:"expires_at"`
}

type httpRefresher struct {
	client netclient.Client
	path   string
	now    func() time.Time
}

// NewHTTPRefresher 通过 client 向 path（默认 /auth/refresh）提交刷新令牌。
// path 应位于客户端的 AuthPathPrefix 之下，否则请求本身会要求访问令牌。
func NewHTTPRefresher(client netclient.Client, path string) Refresher {
	if path == "" {
		path = DefaultRefreshPath
	}
	return &httpRefresher{client: client, path: path, now: time.Now}
}

func (r *httpRefresher) Refresh(ctx context.Context, refreshToken string) (Tokens, error) {
	var resp refreshResponse
	if err := r.client.Post(ctx, r.path, refreshRequest{RefreshToken: refreshToken}, &resp); err != nil {
		return Tokens{}, err
	}
	t := Tokens{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    resp.ExpiresAt.Time,
	}
	if t.ExpiresAt.IsZero() && resp.ExpiresIn > 0 {
		t.ExpiresAt = r.now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	}
	return t, nil
}
