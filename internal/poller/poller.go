package poller

import (
	"context"
	"sync"
	"time"

	"marketstream/internal/model"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Client fetches REST snapshots. *binance.RESTClient implements it.
type Client interface {
	GetFundingRate(ctx context.Context, symbol model.Symbol) (model.FundingRate, error)
	GetOpenInterest(ctx context.Context, symbol model.Symbol) (model.OpenInterest, error)
	GetOrderBook(ctx context.Context, symbol model.Symbol, limit int) (model.OrderBookDelta, error)
}

// EventWriter persists a polled snapshot.
type EventWriter interface {
	Write(ctx context.Context, ev model.Event) error
}

type Options struct {
	FundingRateInterval  time.Duration // 0 disables the task
	OpenInterestInterval time.Duration
	OrderBookInterval    time.Duration
	OrderBookDepth       int
	Concurrency          int           // max in-flight requests per round
	RequestTimeout       time.Duration // per request
}

// Poller periodically fetches funding rates, open interest and order book
// snapshots for the current symbol set and writes them through the sinks.
type Poller struct {
	client  Client
	writer  EventWriter
	symbols func() []model.Symbol
	opts    Options
	logger  *zap.Logger
}

type task struct {
	name     string
	interval time.Duration
	fetch    func(ctx context.Context, symbol model.Symbol) (model.Event, error)
}

// New creates a Poller. symbols is consulted at the start of every round.
func New(client Client, writer EventWriter, symbols func() []model.Symbol, opts Options, logger *zap.Logger) *Poller {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 5
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 10 * time.Second
	}
	return &Poller{
		client:  client,
		writer:  writer,
		symbols: symbols,
		opts:    opts,
		logger:  logger.Named("poller"),
	}
}

func (p *Poller) tasks() []task {
	all := []task{
		{
			name:     "funding_rate",
			interval: p.opts.FundingRateInterval,
			fetch: func(ctx context.Context, s model.Symbol) (model.Event, error) {
				return p.client.GetFundingRate(ctx, s)
			},
		},
		{
			name:     "open_interest",
			interval: p.opts.OpenInterestInterval,
			fetch: func(ctx context.Context, s model.Symbol) (model.Event, error) {
				return p.client.GetOpenInterest(ctx, s)
			},
		},
		{
			name:     "orderbook",
			interval: p.opts.OrderBookInterval,
			fetch: func(ctx context.Context, s model.Symbol) (model.Event, error) {
				return p.client.GetOrderBook(ctx, s, p.opts.OrderBookDepth)
			},
		},
	}

	enabled := all[:0]
	for _, t := range all {
		if t.interval > 0 {
			enabled = append(enabled, t)
		}
	}
	return enabled
}

// Run polls every enabled task on its own interval until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, t := range p.tasks() {
		t := t
		g.Go(func() error {
			p.loop(ctx, t)
			return nil
		})
	}
	return g.Wait()
}

func (p *Poller) loop(ctx context.Context, t task) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		p.round(ctx, t)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// round fetches t for every symbol, at most Concurrency at a time.
func (p *Poller) round(ctx context.Context, t task) {
	symbols := p.symbols()
	sem := make(chan struct{}, p.opts.Concurrency)
	var wg sync.WaitGroup

	failed := 0
	var mu sync.Mutex

	for _, symbol := range symbols {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return
		}

		wg.Add(1)
		go func(symbol model.Symbol) {
			defer func() { <-sem; wg.Done() }()
			if err := p.pollOne(ctx, t, symbol); err != nil {
				mu.Lock()
				failed++
				mu.Unlock()
			}
		}(symbol)
	}
	wg.Wait()

	if failed > 0 {
		p.logger.Warn("finished with errors", zap.String("task", t.name), zap.Int("failed", failed), zap.Int("symbols", len(symbols)))
	} else {
		p.logger.Debug("completed", zap.String("task", t.name), zap.Int("symbols", len(symbols)))
	}
}

func (p *Poller) pollOne(ctx context.Context, t task, symbol model.Symbol) error {
	reqCtx, cancel := context.WithTimeout(ctx, p.opts.RequestTimeout)
	ev, err := t.fetch(reqCtx, symbol)
	cancel()
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Warn("fetch failed", zap.String("task", t.name), zap.String("symbol", symbol.String()), zap.Error(err))
		}
		return err
	}
	return p.writer.Write(ctx, ev)
}
