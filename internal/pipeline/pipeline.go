package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"marketstream/internal/binance/aggregator"
	"marketstream/internal/binance/stream"
	"marketstream/internal/metrics"
	"marketstream/internal/model"
	"marketstream/pkg/binance"

	"go.uber.org/zap"
)

// Source is one upstream connection yielding raw frames.
type Source interface {
	Next() ([]byte, error)
	Close()
}

// Dialer opens a Source subscribed to the given stream names.
type Dialer interface {
	Dial(ctx context.Context, streams []string) (Source, error)
}

// WSDialer adapts binance.WSClient to Dialer.
type WSDialer struct {
	Client *binance.WSClient
}

func (d WSDialer) Dial(ctx context.Context, streams []string) (Source, error) {
	s, err := d.Client.Connect(ctx, streams)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// EventWriter persists a normalized event.
type EventWriter interface {
	Write(ctx context.Context, ev model.Event) error
}

// Broadcaster fans a normalized event out to subscribers.
type Broadcaster interface {
	Broadcast(symbol model.Symbol, ev model.Event) error
	Clear(symbols ...model.Symbol)
}

// FatalConnectionFault is returned by Run once the reconnect budget is spent.
type FatalConnectionFault struct {
	Pipeline string
	Attempts int
	Err      error
}

func (f *FatalConnectionFault) Error() string {
	return fmt.Sprintf("pipeline %s: giving up after %d reconnect attempts: %v", f.Pipeline, f.Attempts, f.Err)
}

func (f *FatalConnectionFault) Unwrap() error { return f.Err }

// Deps are the shared handles a pipeline works against.
type Deps struct {
	Dialer      Dialer
	Writer      EventWriter
	Broadcaster Broadcaster
	Logger      *zap.Logger
	Metrics     *metrics.Metrics
}

type Options struct {
	Name           string
	Symbols        []model.Symbol
	Streams        []binance.StreamKind
	DepthSpeed     string
	FlushInterval  time.Duration
	QueueSize      int
	EnqueueTimeout time.Duration
	Backoff        binance.Backoff
	Clock          func() time.Time // nil = time.Now
}

// Pipeline ingests one upstream connection's worth of symbols: it reads and
// decodes frames, aggregates trades, and hands every resulting event to a
// single dispatcher that writes it to the sinks and then broadcasts it.
type Pipeline struct {
	deps    Deps
	opts    Options
	streams []string
	logger  *zap.Logger
}

func New(deps Deps, opts Options) (*Pipeline, error) {
	if deps.Dialer == nil || deps.Writer == nil || deps.Broadcaster == nil {
		return nil, errors.New("pipeline: dialer, writer and broadcaster are required")
	}
	if len(opts.Symbols) == 0 || len(opts.Streams) == 0 {
		return nil, errors.New("pipeline: no symbols or streams")
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = time.Second
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1024
	}
	if opts.EnqueueTimeout <= 0 {
		opts.EnqueueTimeout = 250 * time.Millisecond
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if opts.Name == "" {
		opts.Name = opts.Symbols[0].Lower()
	}

	return &Pipeline{
		deps:    deps,
		opts:    opts,
		streams: binance.StreamNames(opts.Symbols, opts.Streams, opts.DepthSpeed),
		logger:  deps.Logger.Named("pipeline").With(zap.String("pipeline", opts.Name)),
	}, nil
}

func (p *Pipeline) Name() string { return p.opts.Name }

func (p *Pipeline) Symbols() []model.Symbol { return p.opts.Symbols }

// Run blocks until ctx is cancelled (returning nil) or the connection cannot
// be re-established (returning *FatalConnectionFault). Every goroutine it
// starts has exited by the time it returns; queued events are drained first.
func (p *Pipeline) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	queue := make(chan model.Event, p.opts.QueueSize)
	agg := aggregator.New(p.opts.FlushInterval, p.opts.Clock)

	var wg sync.WaitGroup

	// Dispatcher: outlives the producers so the final flush is still written.
	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		p.dispatch(context.WithoutCancel(ctx), queue)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		agg.Run(runCtx, func(v model.AggregatedVolume) { p.enqueue(queue, v) })
	}()

	p.logger.Info("pipeline started", zap.Int("symbols", len(p.opts.Symbols)), zap.Int("streams", len(p.streams)))
	err := p.readLoop(runCtx, agg, queue)

	cancel()
	wg.Wait()
	close(queue)
	<-dispatchDone

	// Subscriber entries never outlive the run that owns the symbols.
	p.deps.Broadcaster.Clear(p.opts.Symbols...)
	if ctx.Err() != nil {
		p.logger.Info("pipeline stopped")
		return nil
	}
	return err
}

func (p *Pipeline) readLoop(ctx context.Context, agg *aggregator.Aggregator, queue chan<- model.Event) error {
	attempt := 0
	for {
		delivered, err := p.session(ctx, agg, queue)
		if ctx.Err() != nil {
			return nil
		}

		var fault *binance.ConnectionFault
		if !errors.As(err, &fault) {
			return err
		}

		if delivered {
			attempt = 0
		}
		attempt++
		if p.opts.Backoff.Exhausted(attempt) {
			return &FatalConnectionFault{Pipeline: p.opts.Name, Attempts: attempt - 1, Err: err}
		}

		wait := p.opts.Backoff.Next(attempt)
		p.logger.Warn("connection lost, reconnecting",
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Bool("graceful", fault.Graceful),
			zap.Error(err),
		)
		p.deps.Metrics.Reconnect(p.opts.Name)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// session runs one connection until it fails. delivered reports whether at
// least one event was decoded from it.
func (p *Pipeline) session(ctx context.Context, agg *aggregator.Aggregator, queue chan<- model.Event) (delivered bool, err error) {
	src, err := p.deps.Dialer.Dial(ctx, p.streams)
	if err != nil {
		return false, err
	}
	defer src.Close()

	for {
		raw, err := src.Next()
		if err != nil {
			return delivered, err
		}
		p.deps.Metrics.FrameReceived(p.opts.Name)

		ev, err := stream.Decode(raw)
		if err != nil {
			p.dropFrame(err)
			continue
		}
		delivered = true

		if trade, ok := ev.(model.Trade); ok {
			agg.Add(trade)
			continue
		}
		p.enqueue(queue, ev)
	}
}

func (p *Pipeline) dropFrame(err error) {
	if errors.Is(err, stream.ErrControlFrame) {
		return
	}
	reason := "unknown"
	var fault *stream.DecodeFault
	if errors.As(err, &fault) {
		reason = fault.Reason
	}
	p.logger.Warn("dropping undecodable frame", zap.Error(err))
	p.deps.Metrics.DecodeFault(reason)
}

// enqueue waits at most EnqueueTimeout for room in the queue, then drops ev.
func (p *Pipeline) enqueue(queue chan<- model.Event, ev model.Event) {
	select {
	case queue <- ev:
		return
	default:
	}

	timer := time.NewTimer(p.opts.EnqueueTimeout)
	defer timer.Stop()
	select {
	case queue <- ev:
	case <-timer.C:
		p.logger.Warn("dispatch queue full, dropping event",
			zap.String("kind", string(ev.Kind())),
			zap.String("symbol", ev.EventSymbol().String()),
		)
		p.deps.Metrics.Dropped(string(ev.Kind()))
	}
}

// dispatch is the only consumer of queue, so events for a symbol are written
// and broadcast in the order they were produced.
func (p *Pipeline) dispatch(ctx context.Context, queue <-chan model.Event) {
	for ev := range queue {
		// write faults are logged by the writer
		_ = p.deps.Writer.Write(ctx, ev)

		if err := p.deps.Broadcaster.Broadcast(ev.EventSymbol(), ev); err != nil {
			p.logger.Warn("broadcast failed", zap.String("symbol", ev.EventSymbol().String()), zap.Error(err))
		}
		p.deps.Metrics.Dispatched(string(ev.Kind()))
	}
}
