package connectivity

import (
	"context"
	"time"
)

// Static 由外部显式设置状态的 Monitor，适用于宿主已有可达性来源的场景和测试
type Static struct {
	hub *hub
}

// NewStatic 创建初始状态为 connected 的 Static
func NewStatic(connected bool) *Static {
	return &Static{hub: newHub(connected, time.Now)}
}

// Set 更新连通性，状态变化时通知订阅者
func (s *Static) Set(connected bool) {
	s.hub.set(connected, "")
}

func (s *Static) IsConnected() bool { return s.hub.current().Connected }

func (s *Static) Status() Status { return s.hub.current() }

func (s *Static) Subscribe(ctx context.Context) <-chan Event { return s.hub.subscribe(ctx) }

func (s *Static) Close() error {
	s.hub.close()
	return nil
}
