package memory

import (
	"context"
	"testing"
	"time"

	"marketstream/internal/model"
	"marketstream/pkg/storage"

	"github.com/stretchr/testify/require"
)

// go test -v --run TestAppendAndRetrieve
func TestAppendAndRetrieve(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, model.OrderBookDelta{
		Symbol: "BTCUSDT",
		Bids:   []model.PriceLevel{{45000, 0.123}},
	}))
	require.NoError(t, store.Append(ctx, model.AggregatedVolume{Symbol: "BTCUSDT", BuyVolume: 1}))

	records := store.Records()
	t.Log("Stored records: ", records)

	require.Len(t, records, 2)
	require.Equal(t, model.KindOrderBook, records[0].Event.Kind())
	require.False(t, records[0].CreatedAt.IsZero())
	require.Equal(t, 1, store.Count(model.KindTradeVolume))
}

// go test -v --run TestAppendRejectsTrade
func TestAppendRejectsTrade(t *testing.T) {
	store := NewMemoryStore()
	require.Error(t, store.Append(context.Background(), model.Trade{Symbol: "BTCUSDT"}))
	require.Empty(t, store.Records())
}

// go test -v --run TestLatestLiquidation
func TestLatestLiquidation(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.LatestLiquidation(ctx, "BTCUSDT")
	require.ErrorIs(t, err, storage.ErrNotFound)

	first := model.ForcedLiquidation{Symbol: "BTCUSDT", Side: model.SideSell, Price: 1, Quantity: 1, ObservedAt: time.Unix(1, 0)}
	second := model.ForcedLiquidation{Symbol: "BTCUSDT", Side: model.SideBuy, Price: 2, Quantity: 2, ObservedAt: time.Unix(2, 0)}
	other := model.ForcedLiquidation{Symbol: "ETHUSDT", Side: model.SideBuy, Price: 3, Quantity: 3}
	for _, ev := range []model.Event{first, second, other} {
		require.NoError(t, store.Append(ctx, ev))
	}

	got, err := store.LatestLiquidation(ctx, "BTCUSDT")
	require.NoError(t, err)
	require.Equal(t, second, got)
}
