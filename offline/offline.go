// Package offline 缓存断网期间无法发出的请求，并在恢复联网后回放。
//
// 只有幂等请求会进入队列。入队只追加，达到容量时丢弃最旧的条目。
// Drain 逐条调用回放函数（即完整的请求管线），回放结束后才移除条目；
// 回放失败且被判定为可保留的条目以 RetryCount+1 重新入队，直到 MaxRetries。
// 同一次 Drain 中指纹相同的条目只回放一次。
package offline

import (
	"context"
	"net/http"
	"time"
)

// Request 可回放的请求描述
type Request struct {
	Method      string      `msgpack:"method"`
	Path        string      `msgpack:"path"`
	Fingerprint string      `msgpack:"fingerprint"`
	Header      http.Header `msgpack:"header,omitempty"`
}

// QueuedRequest 队列条目，Payload 为 msgpack 编码的 Request
type QueuedRequest struct {
	Payload    []byte
	EnqueuedAt time.Time
	RetryCount int
}

// Decode 解出条目中的 Request
func (q QueuedRequest) Decode() (Request, error) {
	return decodeRequest(q.Payload)
}

// ReplayFunc 回放一条请求
type ReplayFunc func(ctx context.Context, req Request) error

// DrainResult 一次 Drain 的统计
type DrainResult struct {
	Replayed  int // 回放成功
	Coalesced int // 与同批次条目指纹重复而跳过
	Requeued  int // 失败后重新入队
	Dropped   int // 失败且不再保留，或无法解码
}

// Queue 离线请求队列，方法并发安全
type Queue interface {
	// Enqueue 追加请求，队满时丢弃最旧条目
	Enqueue(ctx context.Context, req Request) error

	// Drain 回放当前队列中的所有条目。同一时刻只允许一个 Drain。
	Drain(ctx context.Context, replay ReplayFunc) (DrainResult, error)

	Len() int

	// Snapshot 返回条目副本，按入队顺序
	Snapshot() []QueuedRequest
}
