package connectivity

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/capsule/clog"
	"github.com/ceyewan/capsule/xerrors"
)

func recv(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "channel closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no event")
	}
	return Event{}
}

func TestStatic_Transitions(t *testing.T) {
	m := NewStatic(true)
	defer m.Close()
	assert.True(t, m.IsConnected())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := m.Subscribe(ctx)

	m.Set(true) // 无变化，不产生事件
	m.Set(false)
	ev := recv(t, ch)
	assert.True(t, ev.Previous.Connected)
	assert.False(t, ev.Current.Connected)
	assert.False(t, ev.Reconnected())
	assert.False(t, m.IsConnected())

	m.Set(true)
	ev = recv(t, ch)
	assert.True(t, ev.Reconnected())
	assert.False(t, m.Status().Since.IsZero())
}

func TestStatic_UnsubscribeOnCancel(t *testing.T) {
	m := NewStatic(true)
	ctx, cancel := context.WithCancel(context.Background())
	ch := m.Subscribe(ctx)
	cancel()

	assert.Eventually(t, func() bool {
		_, ok := <-ch
		return !ok
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, m.Close())
	_, ok := <-m.Subscribe(context.Background())
	assert.False(t, ok, "subscribe after close yields a closed channel")
}

func TestHub_CloseReleasesUncanceledSubscribers(t *testing.T) {
	h := newHub(true, time.Now)
	chans := make([]<-chan Event, 3)
	for i := range chans {
		chans[i] = h.subscribe(context.Background())
	}

	closed := make(chan struct{})
	go func() {
		h.close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("close did not wait out the subscriber watchers")
	}
	for _, ch := range chans {
		_, ok := <-ch
		assert.False(t, ok)
	}
	h.close()
}

func TestHub_SlowSubscriberKeepsNewest(t *testing.T) {
	m := NewStatic(true)
	defer m.Close()
	ch := m.Subscribe(context.Background())

	for i := 0; i < subscriberBuffer*3; i++ {
		m.Set(i%2 == 1)
	}
	var last Event
	for len(ch) > 0 {
		last = <-ch
	}
	assert.Equal(t, m.IsConnected(), last.Current.Connected)
}

type toggleDialer struct {
	up atomic.Bool
}

func (d *toggleDialer) DialContext(context.Context, string, string) (net.Conn, error) {
	if !d.up.Load() {
		return nil, errors.New("connect: network is unreachable")
	}
	c1, c2 := net.Pipe()
	_ = c2.Close()
	return c1, nil
}

func TestProber_DetectsTransitions(t *testing.T) {
	d := &toggleDialer{}
	d.up.Store(true)

	p, err := NewProber(&ProbeConfig{
		Target:           "api.example.com:443",
		Interval:         10 * time.Millisecond,
		Timeout:          50 * time.Millisecond,
		FailureThreshold: 2,
	}, WithDialer(d), WithLogger(clog.Discard()))
	require.NoError(t, err)
	defer p.Close()
	assert.True(t, p.IsConnected())

	ch := p.Subscribe(context.Background())
	d.up.Store(false)
	ev := recv(t, ch)
	assert.False(t, ev.Current.Connected)

	d.up.Store(true)
	ev = recv(t, ch)
	assert.True(t, ev.Reconnected())
}

func TestProber_InitialFailure(t *testing.T) {
	d := &toggleDialer{}
	p, err := NewProber(&ProbeConfig{Target: "api.example.com:443", Interval: time.Hour}, WithDialer(d))
	require.NoError(t, err)
	defer p.Close()
	assert.False(t, p.IsConnected())
}

func TestProber_RealListener(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			_ = c.Close()
		}
	}()

	p, err := NewProber(&ProbeConfig{Target: ln.Addr().String(), Interval: 10 * time.Millisecond, FailureThreshold: 1})
	require.NoError(t, err)
	defer p.Close()
	assert.True(t, p.IsConnected())

	ch := p.Subscribe(context.Background())
	require.NoError(t, ln.Close())
	ev := recv(t, ch)
	assert.False(t, ev.Current.Connected)
}

func TestNewProber_Validation(t *testing.T) {
	_, err := NewProber(nil)
	assert.ErrorIs(t, err, xerrors.ErrInvalidInput)
	_, err = NewProber(&ProbeConfig{Target: "no-port"})
	assert.ErrorIs(t, err, xerrors.ErrInvalidInput)
}

func TestProber_CloseIsIdempotent(t *testing.T) {
	d := &toggleDialer{}
	d.up.Store(true)
	p, err := NewProber(&ProbeConfig{Target: "h:1", Interval: time.Millisecond}, WithDialer(d))
	require.NoError(t, err)
	ch := p.Subscribe(context.Background())
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	_, ok := <-ch
	assert.False(t, ok)
}
