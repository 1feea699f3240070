package sink

import (
	"context"
	"errors"
	"fmt"
	"time"

	"marketstream/internal/metrics"
	"marketstream/internal/model"
	"marketstream/pkg/storage/cache"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Sink names used in faults, logs and metrics.
const (
	SinkDurable = "durable"
	SinkCache   = "cache"
)

// DurableStore is the append side of the durable record store.
type DurableStore interface {
	Append(ctx context.Context, ev model.Event) error
}

// WriteFault reports one failed sink write for one event.
type WriteFault struct {
	Sink   string // SinkDurable or SinkCache
	Kind   model.Kind
	Symbol model.Symbol
	Err    error
}

func (f *WriteFault) Error() string {
	return fmt.Sprintf("write %s %s to %s: %v", f.Symbol, f.Kind, f.Sink, f.Err)
}

func (f *WriteFault) Unwrap() error { return f.Err }

type Options struct {
	TTLs                TTLs
	CacheWriteTimeout   time.Duration
	DurableWriteTimeout time.Duration
}

// Writer persists every event to the durable store and the expiring cache.
// The two sinks fail independently.
type Writer struct {
	cache   cache.Store
	durable DurableStore
	breaker *gobreaker.CircuitBreaker
	opts    Options
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewWriter(c cache.Store, durable DurableStore, opts Options, logger *zap.Logger, m *metrics.Metrics) *Writer {
	if opts.CacheWriteTimeout <= 0 {
		opts.CacheWriteTimeout = 2 * time.Second
	}
	if opts.DurableWriteTimeout <= 0 {
		opts.DurableWriteTimeout = 2 * time.Second
	}
	logger = logger.Named("sink")
	return &Writer{
		cache:   c,
		durable: durable,
		breaker: newCircuitBreaker(logger),
		opts:    opts,
		logger:  logger,
		metrics: m,
	}
}

func newCircuitBreaker(logger *zap.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    SinkDurable,
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests > 20 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if to == gobreaker.StateOpen {
				logger.Warn("durable store seems down, stop allowing writes")
			}
			if from == gobreaker.StateOpen && to == gobreaker.StateHalfOpen {
				logger.Info("checking durable store status")
			}
			if from == gobreaker.StateHalfOpen && to == gobreaker.StateClosed {
				logger.Info("durable store seems ok, restart allowing writes")
			}
		},
	})
}

// Write stores ev in the durable store and then in the cache. A failure in
// one sink never prevents the other write; both faults are joined.
func (w *Writer) Write(ctx context.Context, ev model.Event) error {
	var errs []error
	if err := w.writeDurable(ctx, ev); err != nil {
		errs = append(errs, w.fault(SinkDurable, ev, err))
	}
	if err := w.writeCache(ctx, ev); err != nil {
		errs = append(errs, w.fault(SinkCache, ev, err))
	}
	return errors.Join(errs...)
}

func (w *Writer) writeDurable(ctx context.Context, ev model.Event) error {
	ctx, cancel := context.WithTimeout(ctx, w.opts.DurableWriteTimeout)
	defer cancel()

	_, err := w.breaker.Execute(func() (interface{}, error) {
		return nil, w.durable.Append(ctx, ev)
	})
	return err
}

func (w *Writer) writeCache(ctx context.Context, ev model.Event) error {
	payload, err := Payload(ev)
	if err != nil {
		return err
	}
	ttl, ok := w.opts.TTLs[ev.Kind()]
	if !ok || ttl <= 0 {
		return fmt.Errorf("no ttl configured for %s", ev.Kind())
	}

	ctx, cancel := context.WithTimeout(ctx, w.opts.CacheWriteTimeout)
	defer cancel()
	return w.cache.Set(ctx, CacheKey(ev.EventSymbol(), ev.Kind()), payload, ttl)
}

func (w *Writer) fault(sink string, ev model.Event, err error) *WriteFault {
	f := &WriteFault{Sink: sink, Kind: ev.Kind(), Symbol: ev.EventSymbol(), Err: err}
	w.logger.Warn("sink write failed",
		zap.String("sink", sink),
		zap.String("kind", string(f.Kind)),
		zap.String("symbol", f.Symbol.String()),
		zap.Error(err),
	)
	w.metrics.WriteFault(sink)
	return f
}
