// Package connectivity 报告网络可达性并广播变化。
//
// Monitor 只回答两个问题：当前是否联网，以及状态何时变化。网络客户端用前者决定
// 是否发起请求，用后者在恢复连接时回放离线队列。
//
//	m, _ := connectivity.NewProber(&connectivity.ProbeConfig{Target: "api.example.com:443"})
//	defer m.Close()
//	for ev := range m.Subscribe(ctx) {
//	    if ev.Reconnected() { ... }
//	}
package connectivity

import (
	"context"
	"time"
)

// Status 网络状态快照
type Status struct {
	Connected bool
	Interface string // 本地出口网卡名，无法解析时为空
	Since     time.Time
}

// Event 状态变化事件
type Event struct {
	Previous Status
	Current  Status
}

// Reconnected 是否为 断开 -> 联网 的转换
func (e Event) Reconnected() bool {
	return !e.Previous.Connected && e.Current.Connected
}

// Monitor 连通性监视器，所有方法并发安全
type Monitor interface {
	IsConnected() bool
	Status() Status

	// Subscribe 返回变化事件流，ctx 取消或 Monitor 关闭时通道关闭。
	// 订阅者消费过慢时丢弃最旧的事件。
	Subscribe(ctx context.Context) <-chan Event

	Close() error
}
