package testkit

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// Reply 一次脚本化的响应。Err 非空时模拟传输层失败，不产生响应。
type Reply struct {
	Status int
	Header http.Header
	Body   string
	Err    error
	Delay  time.Duration // 返回前的延迟，期间遵守 ctx 取消
}

// JSON 构造 200 JSON 响应
func JSON(body string) Reply {
	return Reply{Status: http.StatusOK, Body: body, Header: http.Header{"Content-Type": {"application/json"}}}
}

// Status 构造只有状态码的响应
func Status(code int) Reply {
	return Reply{Status: code}
}

// TooManyRequests 构造带 Retry-After 的 429
func TooManyRequests(retryAfter time.Duration) Reply {
	h := http.Header{}
	h.Set("Retry-After", strconv.Itoa(int(retryAfter/time.Second)))
	return Reply{Status: http.StatusTooManyRequests, Header: h}
}

// Fail 构造传输层失败
func Fail(err error) Reply {
	return Reply{Err: err}
}

// Call 记录收到的一次请求
type Call struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// MockTransport 按脚本依次返回响应的传输层替身，可并发使用。
// 脚本耗尽后重复最后一条；未设置任何脚本时返回 200 "{}"。
type MockTransport struct {
	mu      sync.Mutex
	script  []Reply
	routes  map[string][]Reply
	calls   []Call
	handler func(*http.Request) Reply
}

// NewMockTransport 创建按顺序返回 replies 的替身
func NewMockTransport(replies ...Reply) *MockTransport {
	return &MockTransport{script: replies, routes: make(map[string][]Reply)}
}

// On 为某个路径单独设置脚本，优先于全局脚本
func (m *MockTransport) On(path string, replies ...Reply) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routes[path] = append(m.routes[path], replies...)
	return m
}

// Handle 用函数动态生成响应，优先级最高
func (m *MockTransport) Handle(fn func(*http.Request) Reply) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = fn
	return m
}

// Do 实现 netclient.Transport
func (m *MockTransport) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	var body []byte
	if req.Body != nil {
		body, _ = io.ReadAll(req.Body)
		_ = req.Body.Close()
	}

	m.mu.Lock()
	m.calls = append(m.calls, Call{
		Method: req.Method,
		URL:    req.URL.String(),
		Header: req.Header.Clone(),
		Body:   body,
	})
	reply := m.next(req)
	m.mu.Unlock()

	if reply.Delay > 0 {
		timer := time.NewTimer(reply.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if reply.Err != nil {
		return nil, reply.Err
	}

	header := reply.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	status := reply.Status
	if status == 0 {
		status = http.StatusOK
	}
	return &http.Response{
		StatusCode:    status,
		Status:        strconv.Itoa(status) + " " + http.StatusText(status),
		Header:        header,
		Body:          io.NopCloser(bytes.NewBufferString(reply.Body)),
		ContentLength: int64(len(reply.Body)),
		Request:       req,
	}, nil
}

// next 需持有锁
func (m *MockTransport) next(req *http.Request) Reply {
	if m.handler != nil {
		return m.handler(req)
	}
	if replies, ok := m.routes[req.URL.Path]; ok && len(replies) > 0 {
		r := replies[0]
		if len(replies) > 1 {
			m.routes[req.URL.Path] = replies[1:]
		}
		return r
	}
	if len(m.script) == 0 {
		return JSON("{}")
	}
	r := m.script[0]
	if len(m.script) > 1 {
		m.script = m.script[1:]
	}
	return r
}

// Calls 返回收到的全部请求副本
func (m *MockTransport) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

// CallCount 返回收到的请求数
func (m *MockTransport) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// LastCall 返回最后一次请求，无请求时 ok 为 false
func (m *MockTransport) LastCall() (Call, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return Call{}, false
	}
	return m.calls[len(m.calls)-1], true
}

// Reset 清空调用记录
func (m *MockTransport) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}
