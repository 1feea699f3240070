package symbolmeta

import (
	"context"
	"time"

	"marketstream/internal/binance/memorystore"
	"marketstream/internal/binance/snapshot"
	"marketstream/internal/model"

	"go.uber.org/zap"
)

// MidnightLoader refreshes the symbol set once at startup, then at every UTC midnight.
type MidnightLoader struct {
	Load   func(ctx context.Context) <-chan model.Symbol
	Logger *zap.Logger
}

func DefaultLoadFn(loader *snapshot.SymbolLoader) func(ctx context.Context) <-chan model.Symbol {
	return func(ctx context.Context) <-chan model.Symbol {
		symbolCh := make(chan model.Symbol, 100)

		go func() {
			if err := loader.LoadSymbols(ctx, symbolCh); err != nil {
				loader.Logger.Error("failed to load symbols", zap.Error(err))
			}
		}()

		return symbolCh
	}
}

// ReplaceInto returns a proc that swaps the store contents with a successful, non-empty load.
func ReplaceInto(store *memorystore.MemorySymbolStore) func(<-chan model.Symbol) {
	return func(ch <-chan model.Symbol) {
		var symbols []model.Symbol
		for s := range ch {
			symbols = append(symbols, s)
		}
		if len(symbols) > 0 {
			store.Replace(symbols)
		}
	}
}

// Start runs proc immediately and then once every 24 hours aligned to UTC
// midnight, until ctx is cancelled.
func (m *MidnightLoader) Start(ctx context.Context, proc func(<-chan model.Symbol)) {
	go func() {
		// Run immediately once at startup
		m.runOnce(ctx, proc)

		// Wait until next UTC midnight
		now := time.Now().UTC()
		nextMidnight := now.Truncate(24 * time.Hour).Add(24 * time.Hour)
		timer := time.NewTimer(time.Until(nextMidnight))
		defer timer.Stop()

		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		// Then run once every 24 hours
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()

		for {
			m.runOnce(ctx, proc)
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

func (m *MidnightLoader) runOnce(ctx context.Context, proc func(<-chan model.Symbol)) {
	symbolCh := m.Load(ctx)
	proc(symbolCh)
	if m.Logger != nil {
		m.Logger.Info("symbol set refreshed")
	}
}
