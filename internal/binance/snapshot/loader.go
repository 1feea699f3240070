package snapshot

import (
	"context"

	"marketstream/internal/model"

	"go.uber.org/zap"
)

// SymbolSource lists tradable symbols. *binance.RESTClient implements it.
type SymbolSource interface {
	GetUSDTPerpetualSymbols(ctx context.Context) ([]model.Symbol, error)
}

type SymbolLoader struct {
	Source     SymbolSource
	MaxSymbols int // 0 = no cap
	Logger     *zap.Logger
}

// LoadSymbols fetches USDT-margined perpetual contracts and streams them into
// the provided channel, closing it when done.
func (l *SymbolLoader) LoadSymbols(ctx context.Context, ch chan<- model.Symbol) error {
	defer close(ch) // Ensure downstream consumers can exit cleanly

	symbols, err := l.Source.GetUSDTPerpetualSymbols(ctx)
	if err != nil {
		l.Logger.Error("failed to load USDT perpetual symbols", zap.Error(err))
		return err
	}
	if l.MaxSymbols > 0 && len(symbols) > l.MaxSymbols {
		symbols = symbols[:l.MaxSymbols]
	}
	l.Logger.Info("loaded symbols", zap.Int("count", len(symbols)))

	for _, symbol := range symbols {
		select {
		case ch <- symbol:
		case <-ctx.Done():
			l.Logger.Warn("symbol streaming interrupted", zap.Error(ctx.Err()))
			return ctx.Err()
		}
	}

	return nil
}

// Load collects every symbol LoadSymbols produces.
func (l *SymbolLoader) Load(ctx context.Context) ([]model.Symbol, error) {
	ch := make(chan model.Symbol, 100)
	errCh := make(chan error, 1)
	go func() { errCh <- l.LoadSymbols(ctx, ch) }()

	var out []model.Symbol
	for s := range ch {
		out = append(out, s)
	}
	if err := <-errCh; err != nil {
		return nil, err
	}
	return out, nil
}
