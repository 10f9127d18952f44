package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/ceyewan/capsule/clog"
	"github.com/ceyewan/capsule/metrics"
)

// bucket 包装 rate.Limiter 并记录最后访问时间
type bucket struct {
	limiter  *rate.Limiter
	mu       sync.Mutex
	lastSeen time.Time
}

func (b *bucket) touch(now time.Time) {
	b.mu.Lock()
	b.lastSeen = now
	b.mu.Unlock()
}

type limiter struct {
	cfg    Config
	logger clog.Logger
	now    func() time.Time

	buckets sync.Map // map[string]*bucket

	denied metrics.Counter
	waited metrics.Histogram

	stopCh    chan struct{}
	closeOnce sync.Once
}

func newLimiter(cfg Config, o *options) (*limiter, error) {
	l := &limiter{
		cfg:    cfg,
		logger: o.logger,
		now:    o.now,
		stopCh: make(chan struct{}),
	}
	var err error
	if l.denied, err = o.meter.Counter(MetricDenied, "Requests rejected by the client-side rate limiter."); err != nil {
		return nil, err
	}
	if l.waited, err = o.meter.Histogram(MetricWaitDuration, "Time spent waiting for a rate limiter token.",
		metrics.WithUnit("s")); err != nil {
		return nil, err
	}

	go l.cleanup()
	return l, nil
}

func (l *limiter) Allow(ctx context.Context, key string, limit Limit) (bool, error) {
	b, err := l.bucket(key, limit)
	if err != nil {
		return false, err
	}
	now := l.now()
	b.touch(now)
	if b.limiter.AllowN(now, 1) {
		return true, nil
	}
	l.denied.Inc(ctx, metrics.L(LabelKey, key))
	l.logger.DebugContext(ctx, "rate limit exceeded", clog.String("key", key))
	return false, nil
}

func (l *limiter) Wait(ctx context.Context, key string, limit Limit) error {
	b, err := l.bucket(key, limit)
	if err != nil {
		return err
	}
	start := l.now()
	b.touch(start)
	// rate.Limiter 自身并发安全，等待期间不持有 bucket 锁
	if err := b.limiter.Wait(ctx); err != nil {
		l.denied.Inc(ctx, metrics.L(LabelKey, key))
		return err
	}
	if d := l.now().Sub(start); d > time.Millisecond {
		l.waited.Record(ctx, d.Seconds(), metrics.L(LabelKey, key))
		l.logger.DebugContext(ctx, "rate limit wait", clog.String("key", key), clog.Duration("waited", d))
	}
	return nil
}

// bucket 获取或创建 key 对应的令牌桶，规则变化时使用新桶
func (l *limiter) bucket(key string, limit Limit) (*bucket, error) {
	if key == "" {
		return nil, ErrKeyEmpty
	}
	if !limit.Enabled() {
		return nil, ErrInvalidLimit
	}
	cacheKey := fmt.Sprintf("%s:%v:%d", key, limit.Rate, limit.Burst)
	if v, ok := l.buckets.Load(cacheKey); ok {
		return v.(*bucket), nil
	}
	b := &bucket{
		limiter:  rate.NewLimiter(rate.Limit(limit.Rate), limit.Burst),
		lastSeen: l.now(),
	}
	actual, _ := l.buckets.LoadOrStore(cacheKey, b)
	return actual.(*bucket), nil
}

func (l *limiter) cleanup() {
	ticker := time.NewTicker(l.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n := l.sweep(l.now()); n > 0 {
				l.logger.Debug("cleaned up idle buckets", clog.Int("count", n))
			}
		case <-l.stopCh:
			return
		}
	}
}

// sweep 删除空闲超过 IdleTimeout 的令牌桶
func (l *limiter) sweep(now time.Time) int {
	count := 0
	l.buckets.Range(func(k, v any) bool {
		b := v.(*bucket)
		b.mu.Lock()
		idle := now.Sub(b.lastSeen)
		b.mu.Unlock()
		if idle > l.cfg.IdleTimeout {
			l.buckets.Delete(k)
			count++
		}
		return true
	})
	return count
}

func (l *limiter) Close() error {
	l.closeOnce.Do(func() { close(l.stopCh) })
	return nil
}
