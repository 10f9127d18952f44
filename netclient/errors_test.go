package netclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ceyewan/capsule/xerrors"
)

func TestStatusError_Mapping(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		status int
		kind   Kind
	}{
		{200, ""},
		{204, ""},
		{401, KindUnauthorized},
		{403, KindForbidden},
		{404, KindNotFound},
		{429, KindRateLimited},
		{400, KindClientError},
		{422, KindClientError},
		{500, KindServerError},
		{503, KindServerError},
		{302, KindUnknown},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			err := statusError(&http.Response{StatusCode: tt.status, Header: http.Header{}}, "GET", "/x", now)
			assert.Equal(t, tt.kind, KindOf(err))
			if err != nil {
				var e *Error
				assert.True(t, errors.As(err, &e))
				assert.Equal(t, tt.status, e.StatusCode)
			}
		})
	}
}

func TestStatusError_RetryAfter(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	h := http.Header{}
	h.Set("Retry-After", "7")
	err := statusError(&http.Response{StatusCode: 429, Header: h}, "GET", "/x", now)
	d, ok := retryAfterOf(err)
	assert.True(t, ok)
	assert.Equal(t, 7*time.Second, d)

	// 非 429 忽略 Retry-After
	err = statusError(&http.Response{StatusCode: 503, Header: h}, "GET", "/x", now)
	_, ok = retryAfterOf(err)
	assert.False(t, ok)
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 3*time.Second, parseRetryAfter("3", now))
	assert.Equal(t, time.Duration(0), parseRetryAfter("-1", now))
	assert.Equal(t, time.Duration(0), parseRetryAfter("", now))
	assert.Equal(t, time.Duration(0), parseRetryAfter("soon", now))
	assert.Equal(t, 90*time.Second, parseRetryAfter(now.Add(90*time.Second).Format(http.TimeFormat), now))
	assert.Equal(t, time.Duration(0), parseRetryAfter(now.Add(-time.Minute).Format(http.TimeFormat), now))
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestTransportError_Classification(t *testing.T) {
	live := context.Background()
	canceled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name   string
		parent context.Context
		err    error
		kind   Kind
	}{
		{"attempt deadline", live, context.DeadlineExceeded, KindTimeout},
		{"net timeout", live, timeoutErr{}, KindTimeout},
		{"refused", live, &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}, KindConnection},
		{"reset", live, fmt.Errorf("read: %w", syscall.ECONNRESET), KindConnection},
		{"eof", live, io.ErrUnexpectedEOF, KindConnection},
		{"dns", live, &net.DNSError{Err: "no such host", Name: "x"}, KindConnection},
		{"caller canceled", canceled, context.Canceled, KindCanceled},
		{"caller canceled wins over timeout", canceled, context.DeadlineExceeded, KindCanceled},
		{"other", live, errors.New("boom"), KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := transportError(tt.parent, tt.err, "GET", "/x")
			assert.Equal(t, tt.kind, err.Kind)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestError_IsMatchesKind(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", &Error{Kind: KindNotFound, StatusCode: 404, Method: "GET", Path: "/a", Err: xerrors.ErrNotFound})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, err, xerrors.ErrNotFound)
	assert.NotErrorIs(t, err, ErrServerError)
	assert.Contains(t, err.Error(), "GET /a: not_found (status 404)")

	assert.ErrorIs(t, newError(KindCircuitOpen, "GET", "/a", nil), xerrors.ErrUnavailable)
	assert.ErrorIs(t, newError(KindTimeout, "GET", "/a", nil), xerrors.ErrTimeout)
}

func TestErrorPredicates(t *testing.T) {
	retryable := []Kind{KindServerError, KindRateLimited, KindTimeout, KindConnection}
	counted := []Kind{KindServerError, KindTimeout, KindConnection}
	recoverable := []Kind{KindNetworkUnavailable, KindUnauthorized}
	all := []Kind{
		KindInvalidResponse, KindUnauthorized, KindForbidden, KindNotFound, KindRateLimited,
		KindClientError, KindServerError, KindNetworkUnavailable, KindCircuitOpen, KindTimeout,
		KindConnection, KindDecoding, KindCanceled, KindUnknown,
	}
	for _, k := range all {
		err := &Error{Kind: k}
		assert.Equal(t, contains(retryable, k), IsRetryable(err), "retryable %s", k)
		assert.Equal(t, contains(counted, k), countsAsBreakerFailure(err), "breaker %s", k)
		assert.Equal(t, contains(recoverable, k), IsRecoverable(err), "recoverable %s", k)
	}
	assert.Equal(t, KindUnknown, KindOf(errors.New("plain")))
	assert.Equal(t, Kind(""), KindOf(nil))
	assert.False(t, IsRetryable(nil))
}

func contains(kinds []Kind, k Kind) bool {
	for _, x := range kinds {
		if x == k {
			return true
		}
	}
	return false
}
