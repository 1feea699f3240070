package symbolmeta

import (
	"context"
	"testing"
	"time"

	"marketstream/internal/binance/memorystore"
	"marketstream/internal/model"

	"github.com/stretchr/testify/require"
)

// go test -v --run TestMidnightLoaderRunsAtStartup
func TestMidnightLoaderRunsAtStartup(t *testing.T) {
	store := memorystore.NewSymbolStore()
	store.Add("BTCUSDT")

	loader := &MidnightLoader{
		Load: func(context.Context) <-chan model.Symbol {
			ch := make(chan model.Symbol, 2)
			ch <- "ETHUSDT"
			ch <- "SOLUSDT"
			close(ch)
			return ch
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	loader.Start(ctx, ReplaceInto(store))

	require.Eventually(t, func() bool { return store.Len() == 2 }, time.Second, 10*time.Millisecond)
	require.Equal(t, []model.Symbol{"ETHUSDT", "SOLUSDT"}, store.GetAll())
}

// go test -v --run TestReplaceIntoKeepsSetOnEmptyLoad
func TestReplaceIntoKeepsSetOnEmptyLoad(t *testing.T) {
	store := memorystore.NewSymbolStore()
	store.Add("BTCUSDT")

	ch := make(chan model.Symbol)
	close(ch)
	ReplaceInto(store)(ch)

	require.Equal(t, []model.Symbol{"BTCUSDT"}, store.GetAll())
}
