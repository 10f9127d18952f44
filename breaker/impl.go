package breaker

import (
	"context"
	"sync"

	"github.com/sony/gobreaker/v2"

	"github.com/ceyewan/capsule/clog"
	"github.com/ceyewan/capsule/metrics"
)

type circuitBreaker struct {
	cfg       *Config
	logger    clog.Logger
	isFailure func(error) bool
	isIgnored func(error) bool

	requests     metrics.Counter
	stateChanges metrics.Counter

	breakers sync.Map // map[string]*gobreaker.TwoStepCircuitBreaker[any]
}

func newBreaker(cfg *Config, o *options) (Breaker, error) {
	requests, err := o.meter.Counter(MetricRequestsTotal, "Calls passing through the circuit breaker.")
	if err != nil {
		return nil, err
	}
	stateChanges, err := o.meter.Counter(MetricStateChanges, "Circuit breaker state transitions.")
	if err != nil {
		return nil, err
	}

	return &circuitBreaker{
		cfg:          cfg,
		logger:       o.logger,
		isFailure:    o.isFailure,
		isIgnored:    o.isIgnored,
		requests:     requests,
		stateChanges: stateChanges,
	}, nil
}

func (cb *circuitBreaker) Execute(ctx context.Context, key string, fn func() (any, error)) (any, error) {
	if key == "" {
		return nil, ErrKeyEmpty
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b := cb.get(key)
	done, err := b.Allow()
	if err != nil {
		cb.requests.Inc(ctx, metrics.L(LabelKey, key), metrics.L(LabelResult, "rejected"))
		cb.logger.DebugContext(ctx, "call rejected", clog.String("key", key), clog.Error(err))
		return nil, ErrOpenState
	}

	defer func() {
		if e := recover(); e != nil {
			done(false)
			panic(e)
		}
	}()

	result, err := fn()
	switch {
	case err == nil:
		done(true)
		cb.requests.Inc(ctx, metrics.L(LabelKey, key), metrics.L(LabelResult, "success"))
	case cb.isIgnored(err):
		// 被放弃的调用不证明后端已恢复：闭合时不计数，半开时按探测失败重新打开
		if b.State() == gobreaker.StateHalfOpen {
			done(false)
		}
		cb.requests.Inc(ctx, metrics.L(LabelKey, key), metrics.L(LabelResult, "ignored"))
	case cb.isFailure(err):
		done(false)
		cb.requests.Inc(ctx, metrics.L(LabelKey, key), metrics.L(LabelResult, "failure"))
	default:
		done(true)
		cb.requests.Inc(ctx, metrics.L(LabelKey, key), metrics.L(LabelResult, "success"))
	}
	return result, err
}

func (cb *circuitBreaker) State(key string) State {
	v, ok := cb.breakers.Load(key)
	if !ok {
		return StateClosed
	}
	return fromGobreaker(v.(*gobreaker.TwoStepCircuitBreaker[any]).State())
}

func (cb *circuitBreaker) Counts(key string) Counts {
	v, ok := cb.breakers.Load(key)
	if !ok {
		return Counts{}
	}
	c := v.(*gobreaker.TwoStepCircuitBreaker[any]).Counts()
	return Counts{
		Requests:             c.Requests,
		TotalSuccesses:       c.TotalSuccesses,
		TotalFailures:        c.TotalFailures,
		ConsecutiveSuccesses: c.ConsecutiveSuccesses,
		ConsecutiveFailures:  c.ConsecutiveFailures,
	}
}

func (cb *circuitBreaker) get(key string) *gobreaker.TwoStepCircuitBreaker[any] {
	if v, ok := cb.breakers.Load(key); ok {
		return v.(*gobreaker.TwoStepCircuitBreaker[any])
	}

	threshold := cb.cfg.FailureThreshold
	b := gobreaker.NewTwoStepCircuitBreaker[any](gobreaker.Settings{
		Name:        key,
		MaxRequests: cb.cfg.HalfOpenMaxRequests,
		Interval:    cb.cfg.Interval,
		Timeout:     cb.cfg.RecoveryTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= threshold
		},
		OnStateChange: cb.onStateChange,
	})

	actual, _ := cb.breakers.LoadOrStore(key, b)
	return actual.(*gobreaker.TwoStepCircuitBreaker[any])
}

func (cb *circuitBreaker) onStateChange(key string, from, to gobreaker.State) {
	f, t := fromGobreaker(from), fromGobreaker(to)
	cb.stateChanges.Inc(context.Background(),
		metrics.L(LabelKey, key),
		metrics.L(LabelFromState, f.String()),
		metrics.L(LabelToState, t.String()),
	)

	fields := []clog.Field{clog.String("key", key), clog.String("from", f.String()), clog.String("to", t.String())}
	if t == StateOpen {
		cb.logger.Warn("circuit breaker opened", append(fields, clog.Duration("recovery_timeout", cb.cfg.RecoveryTimeout))...)
		return
	}
	cb.logger.Info("circuit breaker state changed", fields...)
}

func fromGobreaker(s gobreaker.State) State {
	switch s {
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	case gobreaker.StateOpen:
		return StateOpen
	}
	return StateClosed
}
