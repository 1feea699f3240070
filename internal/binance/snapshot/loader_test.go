package snapshot

import (
	"context"
	"errors"
	"testing"

	"marketstream/internal/model"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSource struct {
	symbols []model.Symbol
	err     error
}

func (f fakeSource) GetUSDTPerpetualSymbols(context.Context) ([]model.Symbol, error) {
	return f.symbols, f.err
}

// go test -v --run TestLoadCapsSymbols
func TestLoadCapsSymbols(t *testing.T) {
	loader := &SymbolLoader{
		Source:     fakeSource{symbols: []model.Symbol{"BTCUSDT", "ETHUSDT", "SOLUSDT"}},
		MaxSymbols: 2,
		Logger:     zap.NewNop(),
	}

	got, err := loader.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, []model.Symbol{"BTCUSDT", "ETHUSDT"}, got)
}

// go test -v --run TestLoadSymbolsError
func TestLoadSymbolsError(t *testing.T) {
	boom := errors.New("exchange down")
	loader := &SymbolLoader{Source: fakeSource{err: boom}, Logger: zap.NewNop()}

	ch := make(chan model.Symbol)
	err := loader.LoadSymbols(context.Background(), ch)
	require.ErrorIs(t, err, boom)

	_, open := <-ch
	require.False(t, open, "channel must be closed on error")
}

// go test -v --run TestLoadSymbolsCancelled
func TestLoadSymbolsCancelled(t *testing.T) {
	loader := &SymbolLoader{
		Source: fakeSource{symbols: []model.Symbol{"BTCUSDT", "ETHUSDT"}},
		Logger: zap.NewNop(),
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// unbuffered and never read, so the send loses to ctx.Done
	err := loader.LoadSymbols(ctx, make(chan model.Symbol))
	require.ErrorIs(t, err, context.Canceled)
}
