package netclient

import (
	"context"
	"net"
	"net/http"
	"time"
)

// Transport 发送一次 HTTP 请求。实现必须遵守 ctx 的取消与截止时间。
type Transport interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// TransportFunc 函数适配器
type TransportFunc func(ctx context.Context, req *http.Request) (*http.Response, error)

func (f TransportFunc) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	return f(ctx, req)
}

// HTTPTransport 基于 net/http 的默认传输
type HTTPTransport struct {
	client *http.Client
}

// NewHTTPTransport 包装 hc；hc 为 nil 时使用带连接池调优的默认客户端。
// 超时由调用方的 ctx 控制，这里不设置 http.Client.Timeout。
func NewHTTPTransport(hc *http.Client) *HTTPTransport {
	if hc == nil {
		hc = &http.Client{Transport: defaultRoundTripper()}
	}
	return &HTTPTransport{client: hc}
}

func defaultRoundTripper() http.RoundTripper {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.DialContext = (&net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext
	t.MaxIdleConns = 100
	t.MaxIdleConnsPerHost = 10
	t.IdleConnTimeout = 90 * time.Second
	t.TLSHandshakeTimeout = 10 * time.Second
	return t
}

// Do 实现 Transport
func (t *HTTPTransport) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	return t.client.Do(req.WithContext(ctx))
}

// CloseIdleConnections 释放空闲连接
func (t *HTTPTransport) CloseIdleConnections() {
	t.client.CloseIdleConnections()
}

// TokenProvider 提供当前有效的访问令牌
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// TokenFunc 函数适配器
type TokenFunc func(ctx context.Context) (string, error)

func (f TokenFunc) Token(ctx context.Context) (string, error) { return f(ctx) }

// StaticToken 始终返回同一令牌
func StaticToken(token string) TokenProvider {
	return TokenFunc(func(context.Context) (string, error) { return token, nil })
}
