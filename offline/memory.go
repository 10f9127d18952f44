package offline

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/ceyewan/capsule/clog"
	"github.com/ceyewan/capsule/metrics"
)

const (
	MetricQueueSize = "offline_queue_size"
	MetricEnqueued  = "offline_enqueued_total"
	MetricDrained   = "offline_drained_total" // 标签 result=replayed|coalesced|requeued|dropped
	MetricEvicted   = "offline_evicted_total"
)

type entry struct {
	id uint64
	QueuedRequest
}

type memoryQueue struct {
	cfg    *Config
	opts   *options
	logger clog.Logger

	mu      sync.Mutex
	entries []entry
	nextID  uint64

	draining atomic.Bool

	size     metrics.Gauge
	enqueued metrics.Counter
	drained  metrics.Counter
	evicted  metrics.Counter
}

// New 创建内存离线队列，cfg 为 nil 时使用默认配置
func New(cfg *Config, opts ...Option) (Queue, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	q := &memoryQueue{cfg: cfg, opts: o, logger: o.logger}
	var err error
	if q.size, err = o.meter.Gauge(MetricQueueSize, "Requests waiting in the offline queue."); err != nil {
		return nil, err
	}
	if q.enqueued, err = o.meter.Counter(MetricEnqueued, "Requests queued while offline."); err != nil {
		return nil, err
	}
	if q.drained, err = o.meter.Counter(MetricDrained, "Queued requests processed by drain."); err != nil {
		return nil, err
	}
	if q.evicted, err = o.meter.Counter(MetricEvicted, "Queued requests dropped because the queue was full."); err != nil {
		return nil, err
	}
	return q, nil
}

func (q *memoryQueue) Enqueue(ctx context.Context, req Request) error {
	if req.Method == "" || req.Path == "" {
		return ErrInvalidRequest
	}
	payload, err := encodeRequest(req)
	if err != nil {
		return err
	}
	q.push(ctx, QueuedRequest{Payload: payload, EnqueuedAt: q.opts.now()})
	q.enqueued.Inc(ctx)
	q.logger.DebugContext(ctx, "request queued", clog.String("method", req.Method), clog.String("path", req.Path))
	return nil
}

func (q *memoryQueue) push(ctx context.Context, item QueuedRequest) {
	q.mu.Lock()
	var evicted int
	for len(q.entries) >= q.cfg.Capacity {
		q.entries = q.entries[1:]
		evicted++
	}
	q.nextID++
	q.entries = append(q.entries, entry{id: q.nextID, QueuedRequest: item})
	n := len(q.entries)
	q.mu.Unlock()

	if evicted > 0 {
		q.evicted.Add(ctx, float64(evicted))
		q.logger.WarnContext(ctx, "offline queue full, dropped oldest", clog.Int("dropped", evicted))
	}
	q.size.Set(ctx, float64(n))
}

func (q *memoryQueue) Drain(ctx context.Context, replay ReplayFunc) (DrainResult, error) {
	if !q.draining.CompareAndSwap(false, true) {
		return DrainResult{}, ErrDrainInProgress
	}
	defer q.draining.Store(false)

	q.mu.Lock()
	ids := make([]uint64, len(q.entries))
	for i, e := range q.entries {
		ids[i] = e.id
	}
	q.mu.Unlock()

	var (
		res  DrainResult
		seen = make(map[string]struct{}, len(ids))
	)
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			q.logger.InfoContext(ctx, "drain interrupted", clog.Int("remaining", q.Len()))
			return res, err
		}

		item, ok := q.get(id)
		if !ok {
			continue // 已被挤出队列
		}
		req, err := item.Decode()
		if err != nil {
			q.remove(ctx, id)
			res.Dropped++
			q.drained.Inc(ctx, metrics.L("result", "dropped"))
			q.logger.ErrorContext(ctx, "drop undecodable entry", clog.Error(err))
			continue
		}

		key := req.Fingerprint
		if key == "" {
			key = req.Method + " " + req.Path
		}
		if _, dup := seen[key]; dup {
			q.remove(ctx, id)
			res.Coalesced++
			q.drained.Inc(ctx, metrics.L("result", "coalesced"))
			continue
		}
		seen[key] = struct{}{}

		err = replay(ctx, req)
		q.remove(ctx, id)
		switch {
		case err == nil:
			res.Replayed++
			q.drained.Inc(ctx, metrics.L("result", "replayed"))
		case q.opts.keep(err) && item.RetryCount < q.cfg.MaxRetries:
			item.RetryCount++
			q.push(ctx, item)
			res.Requeued++
			q.drained.Inc(ctx, metrics.L("result", "requeued"))
			q.logger.InfoContext(ctx, "replay failed, requeued",
				clog.String("path", req.Path), clog.Int("retry_count", item.RetryCount), clog.Error(err))
		default:
			res.Dropped++
			q.drained.Inc(ctx, metrics.L("result", "dropped"))
			q.logger.WarnContext(ctx, "replay failed, dropped",
				clog.String("path", req.Path), clog.Int("retry_count", item.RetryCount), clog.Error(err))
		}
	}

	q.logger.InfoContext(ctx, "offline queue drained",
		clog.Int("replayed", res.Replayed),
		clog.Int("coalesced", res.Coalesced),
		clog.Int("requeued", res.Requeued),
		clog.Int("dropped", res.Dropped))
	return res, nil
}

func (q *memoryQueue) get(id uint64) (QueuedRequest, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, e := range q.entries {
		if e.id == id {
			return e.QueuedRequest, true
		}
	}
	return QueuedRequest{}, false
}

func (q *memoryQueue) remove(ctx context.Context, id uint64) {
	q.mu.Lock()
	for i, e := range q.entries {
		if e.id == id {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			break
		}
	}
	n := len(q.entries)
	q.mu.Unlock()
	q.size.Set(ctx, float64(n))
}

func (q *memoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

func (q *memoryQueue) Snapshot() []QueuedRequest {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]QueuedRequest, len(q.entries))
	for i, e := range q.entries {
		out[i] = e.QueuedRequest
	}
	return out
}
