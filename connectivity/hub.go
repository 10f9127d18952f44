package connectivity

import (
	"context"
	"sync"
	"time"
)

const subscriberBuffer = 8

// hub 持有当前状态并向订阅者广播变化
type hub struct {
	mu     sync.Mutex
	status Status
	subs   map[chan Event]struct{}
	closed bool
	done   chan struct{}
	wg     sync.WaitGroup
	now    func() time.Time
}

func newHub(connected bool, now func() time.Time) *hub {
	return &hub{
		status: Status{Connected: connected, Since: now()},
		subs:   make(map[chan Event]struct{}),
		done:   make(chan struct{}),
		now:    now,
	}
}

func (h *hub) current() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

// set 更新状态，连通性未变时只刷新网卡名，返回是否发生了转换
func (h *hub) set(connected bool, iface string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	if h.status.Connected == connected {
		if iface != "" {
			h.status.Interface = iface
		}
		return false
	}

	ev := Event{Previous: h.status}
	h.status = Status{Connected: connected, Interface: iface, Since: h.now()}
	ev.Current = h.status
	for ch := range h.subs {
		publish(ch, ev)
	}
	return true
}

func publish(ch chan Event, ev Event) {
	for {
		select {
		case ch <- ev:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

func (h *hub) subscribe(ctx context.Context) <-chan Event {
	ch := make(chan Event, subscriberBuffer)
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch
	}
	h.subs[ch] = struct{}{}
	h.wg.Add(1)
	h.mu.Unlock()

	go func() {
		defer h.wg.Done()
		select {
		case <-ctx.Done():
			h.unsubscribe(ch)
		case <-h.done:
		}
	}()
	return ch
}

func (h *hub) unsubscribe(ch chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[ch]; ok {
		delete(h.subs, ch)
		close(ch)
	}
}

// close 关闭所有订阅，并等待各订阅的取消监听协程退出
func (h *hub) close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	close(h.done)
	for ch := range h.subs {
		delete(h.subs, ch)
		close(ch)
	}
	h.mu.Unlock()
	h.wg.Wait()
}
