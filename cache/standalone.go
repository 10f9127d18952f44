package cache

import (
	"context"
	"time"

	"github.com/maypok86/otter/v2"

	"github.com/ceyewan/capsule/clog"
	"github.com/ceyewan/capsule/metrics"
	"github.com/ceyewan/capsule/xerrors"
)

type standaloneCache struct {
	cache  *otter.Cache[string, *Entry]
	cfg    *Config
	logger clog.Logger
	now    func() time.Time

	lookups  metrics.Counter
	expired  metrics.Counter
	rejected metrics.Counter
}

func newStandalone(cfg *Config, o *options) (Cache, error) {
	slot := cfg.slotWeight()
	c, err := otter.New(&otter.Options[string, *Entry]{
		MaximumWeight: uint64(cfg.MaxBytes),
		Weigher: func(_ string, e *Entry) uint32 {
			w := uint64(len(e.Payload))
			if w < slot {
				w = slot
			}
			return uint32(w)
		},
	})
	if err != nil {
		return nil, xerrors.Wrap(err, "cache: build otter cache")
	}

	s := &standaloneCache{
		cache:  c,
		cfg:    cfg,
		logger: o.logger,
		now:    o.now,
	}
	if s.lookups, err = o.meter.Counter(MetricLookups, "Response cache lookups."); err != nil {
		return nil, err
	}
	if s.expired, err = o.meter.Counter(MetricExpired, "Entries evicted on lookup because they expired."); err != nil {
		return nil, err
	}
	if s.rejected, err = o.meter.Counter(MetricRejected, "Payloads larger than the byte budget."); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *standaloneCache) Get(ctx context.Context, key string, ignoreExpiry bool) ([]byte, bool) {
	e, ok := s.cache.GetIfPresent(key)
	if !ok {
		s.lookups.Inc(ctx, metrics.L("result", "miss"))
		return nil, false
	}

	if s.now().Sub(e.StoredAt) > s.cfg.TTL {
		if !ignoreExpiry {
			s.cache.Invalidate(key)
			s.expired.Inc(ctx)
			s.lookups.Inc(ctx, metrics.L("result", "miss"))
			return nil, false
		}
		s.lookups.Inc(ctx, metrics.L("result", "stale"))
		return clone(e.Payload), true
	}

	s.lookups.Inc(ctx, metrics.L("result", "hit"))
	return clone(e.Payload), true
}

func (s *standaloneCache) Put(ctx context.Context, key string, payload []byte) {
	if int64(len(payload)) > s.cfg.MaxBytes {
		// 旧值已不再代表最新响应
		s.cache.Invalidate(key)
		s.rejected.Inc(ctx)
		s.logger.WarnContext(ctx, "payload exceeds cache byte budget",
			clog.Int("size", len(payload)), clog.Int64("max_bytes", s.cfg.MaxBytes))
		return
	}
	s.cache.Set(key, &Entry{Payload: clone(payload), StoredAt: s.now()})
}

func (s *standaloneCache) Delete(_ context.Context, key string) {
	s.cache.Invalidate(key)
}

func (s *standaloneCache) Len() int {
	s.cache.CleanUp()
	return s.cache.EstimatedSize()
}

func (s *standaloneCache) Clear() {
	s.cache.InvalidateAll()
}

func (s *standaloneCache) Close() error {
	s.cache.InvalidateAll()
	s.cache.StopAllGoroutines()
	return nil
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
