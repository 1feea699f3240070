package aggregator

import (
	"context"
	"sort"
	"sync"
	"time"

	"marketstream/internal/model"

	"github.com/shopspring/decimal"
)

// Aggregator sums trade quantities per symbol over fixed flush windows.
//
// Trades for different symbols only share the read side of globalMu; trades
// for the same symbol serialize on that symbol's accumulator mutex. Flush takes
// the write side so every trade lands in exactly one window.
type Aggregator struct {
	interval time.Duration
	clock    func() time.Time

	globalMu    sync.RWMutex
	data        map[model.Symbol]*accumulator
	windowStart time.Time
}

type accumulator struct {
	mu   sync.Mutex
	buy  decimal.Decimal
	sell decimal.Decimal
}

// New creates an Aggregator flushing every interval. A nil clock uses time.Now.
func New(interval time.Duration, clock func() time.Time) *Aggregator {
	if clock == nil {
		clock = time.Now
	}
	return &Aggregator{
		interval:    interval,
		clock:       clock,
		data:        make(map[model.Symbol]*accumulator),
		windowStart: clock().UTC(),
	}
}

// Add accumulates t into its symbol's current window.
func (a *Aggregator) Add(t model.Trade) {
	// Fast path: symbol already known
	a.globalMu.RLock()
	acc, ok := a.data[t.Symbol]
	if !ok {
		// Need to initialize new accumulator (exclusive lock)
		a.globalMu.RUnlock()
		a.globalMu.Lock()
		if acc, ok = a.data[t.Symbol]; !ok {
			acc = &accumulator{}
			a.data[t.Symbol] = acc
		}
		a.globalMu.Unlock()
		a.globalMu.RLock()
	}
	defer a.globalMu.RUnlock()

	// Per-symbol locking
	acc.mu.Lock()
	if t.IsSellerInitiated {
		acc.sell = acc.sell.Add(t.Quantity)
	} else {
		acc.buy = acc.buy.Add(t.Quantity)
	}
	acc.mu.Unlock()
}

// Flush closes the current window at now, returning one AggregatedVolume per
// symbol with nonzero volume sorted by symbol, and resets every accumulator.
func (a *Aggregator) Flush(now time.Time) []model.AggregatedVolume {
	now = now.UTC()

	a.globalMu.Lock()
	defer a.globalMu.Unlock()

	var out []model.AggregatedVolume
	for sym, acc := range a.data {
		acc.mu.Lock()
		if !acc.buy.IsZero() || !acc.sell.IsZero() {
			out = append(out, model.AggregatedVolume{
				Symbol:      sym,
				BuyVolume:   acc.buy.InexactFloat64(),
				SellVolume:  acc.sell.InexactFloat64(),
				WindowStart: a.windowStart,
				WindowEnd:   now,
			})
		}
		acc.buy = decimal.Zero
		acc.sell = decimal.Zero
		acc.mu.Unlock()
	}
	a.windowStart = now

	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Pending returns the volume accumulated so far for symbol in the open window.
func (a *Aggregator) Pending(symbol model.Symbol) (buy, sell decimal.Decimal) {
	a.globalMu.RLock()
	acc, ok := a.data[symbol]
	a.globalMu.RUnlock()
	if !ok {
		return decimal.Zero, decimal.Zero
	}

	acc.mu.Lock()
	defer acc.mu.Unlock()
	return acc.buy, acc.sell
}

// Run flushes every interval and passes each result to emit. When ctx is
// cancelled it performs one final flush before returning.
func (a *Aggregator) Run(ctx context.Context, emit func(model.AggregatedVolume)) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			for _, v := range a.Flush(a.clock()) {
				emit(v)
			}
			return
		case <-ticker.C:
			for _, v := range a.Flush(a.clock()) {
				emit(v)
			}
		}
	}
}
