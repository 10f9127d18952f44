package netclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/ceyewan/capsule/breaker"
	"github.com/ceyewan/capsule/xerrors"
)

// Kind 错误类别
type Kind string

const (
	KindInvalidResponse    Kind = "invalid_response"
	KindUnauthorized       Kind = "unauthorized"
	KindForbidden          Kind = "forbidden"
	KindNotFound           Kind = "not_found"
	KindRateLimited        Kind = "rate_limited"
	KindClientError        Kind = "client_error"
	KindServerError        Kind = "server_error"
	KindNetworkUnavailable Kind = "network_unavailable"
	KindCircuitOpen        Kind = "circuit_open"
	KindTimeout            Kind = "timeout"
	KindConnection         Kind = "connection"
	KindDecoding           Kind = "decoding"
	KindCanceled           Kind = "canceled"
	KindUnknown            Kind = "unknown"
)

// Error 网络客户端返回的所有错误都是 *Error
type Error struct {
	Kind       Kind
	StatusCode int           // 无 HTTP 响应时为 0
	RetryAfter time.Duration // 仅 429 且服务端给出 Retry-After 时非零
	Method     string
	Path       string
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("netclient: ")
	if e.Method != "" {
		b.WriteString(e.Method)
		b.WriteByte(' ')
		b.WriteString(e.Path)
		b.WriteString(": ")
	}
	b.WriteString(string(e.Kind))
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is 让哨兵错误按类别匹配：errors.Is(err, netclient.ErrNotFound)
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Method == "" && t.StatusCode == 0 && t.Err == nil && t.Kind == e.Kind
}

// 按类别匹配的哨兵错误
var (
	ErrInvalidResponse    = &Error{Kind: KindInvalidResponse}
	ErrUnauthorized       = &Error{Kind: KindUnauthorized}
	ErrForbidden          = &Error{Kind: KindForbidden}
	ErrNotFound           = &Error{Kind: KindNotFound}
	ErrRateLimited        = &Error{Kind: KindRateLimited}
	ErrClientError        = &Error{Kind: KindClientError}
	ErrServerError        = &Error{Kind: KindServerError}
	ErrNetworkUnavailable = &Error{Kind: KindNetworkUnavailable}
	ErrCircuitBreakerOpen = &Error{Kind: KindCircuitOpen}
	ErrTimeout            = &Error{Kind: KindTimeout}
	ErrConnection         = &Error{Kind: KindConnection}
	ErrDecoding           = &Error{Kind: KindDecoding}
	ErrCanceled           = &Error{Kind: KindCanceled}
	ErrUnknown            = &Error{Kind: KindUnknown}
)

// kindCause 使错误链上同时带有 xerrors 的通用哨兵，便于跨组件粗粒度判定
var kindCause = map[Kind]error{
	KindUnauthorized:       xerrors.ErrUnauthorized,
	KindForbidden:          xerrors.ErrForbidden,
	KindNotFound:           xerrors.ErrNotFound,
	KindNetworkUnavailable: xerrors.ErrUnavailable,
	KindCircuitOpen:        xerrors.ErrUnavailable,
	KindTimeout:            xerrors.ErrTimeout,
}

func newError(kind Kind, method, path string, cause error) *Error {
	if cause == nil {
		cause = kindCause[kind]
	}
	return &Error{Kind: kind, Method: method, Path: path, Err: cause}
}

// KindOf 返回 err 的类别；非 *Error 的错误为 KindUnknown，nil 为空串
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsRetryable 重试循环内可重试：5xx、429、超时、连接错误
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindServerError, KindRateLimited, KindTimeout, KindConnection:
		return true
	}
	return false
}

// IsRecoverable 调用方可自动恢复的类别：断网（等待重连）与未授权（刷新令牌）
func IsRecoverable(err error) bool {
	switch KindOf(err) {
	case KindNetworkUnavailable, KindUnauthorized:
		return true
	}
	return false
}

// NewBreaker 创建按本包错误类别判定成败的熔断器：
// 5xx、超时与连接错误计为失败，调用方取消不计数，其余应答计为成功。
func NewBreaker(cfg *breaker.Config, opts ...breaker.Option) (breaker.Breaker, error) {
	return breaker.New(cfg, append(opts,
		breaker.WithFailurePredicate(countsAsBreakerFailure),
		breaker.WithIgnorePredicate(abandonedByCaller))...)
}

// countsAsBreakerFailure 只有真实的传输失败计入熔断
func countsAsBreakerFailure(err error) bool {
	switch KindOf(err) {
	case KindServerError, KindTimeout, KindConnection:
		return true
	}
	return false
}

// abandonedByCaller 调用方取消或截止，熔断器不把它当作后端的应答
func abandonedByCaller(err error) bool {
	return KindOf(err) == KindCanceled
}

// retryAfterOf 提取 429 携带的等待时间
func retryAfterOf(err error) (time.Duration, bool) {
	var e *Error
	if errors.As(err, &e) && e.RetryAfter > 0 {
		return e.RetryAfter, true
	}
	return 0, false
}

// statusError 把非 2xx 响应映射为错误，2xx 返回 nil
func statusError(resp *http.Response, method, path string, now time.Time) error {
	code := resp.StatusCode
	var kind Kind
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusUnauthorized:
		kind = KindUnauthorized
	case code == http.StatusForbidden:
		kind = KindForbidden
	case code == http.StatusNotFound:
		kind = KindNotFound
	case code == http.StatusTooManyRequests:
		kind = KindRateLimited
	case code >= 400 && code < 500:
		kind = KindClientError
	case code >= 500 && code < 600:
		kind = KindServerError
	default:
		kind = KindUnknown
	}
	e := newError(kind, method, path, nil)
	e.StatusCode = code
	if kind == KindRateLimited {
		e.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"), now)
	}
	return e
}

// parseRetryAfter 支持秒数与 HTTP 日期两种形式
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

// transportError 对没有拿到 HTTP 响应的失败分类。parent 是调用方的 ctx，
// 用于区分调用方主动取消与单次尝试超时。
func transportError(parent context.Context, err error, method, path string) *Error {
	if parent.Err() != nil {
		return newError(KindCanceled, method, path, err)
	}
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr) && netErr.Timeout():
		return newError(KindTimeout, method, path, err)
	case isConnectionError(err):
		return newError(KindConnection, method, path, err)
	case errors.Is(err, context.Canceled):
		return newError(KindCanceled, method, path, err)
	}
	return newError(KindUnknown, method, path, err)
}

func isConnectionError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	return errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF)
}
