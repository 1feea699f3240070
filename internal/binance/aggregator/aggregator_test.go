package aggregator

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"marketstream/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

func fixedClock(ts time.Time) func() time.Time {
	return func() time.Time { return ts }
}

func trade(symbol string, qty string, seller bool) model.Trade {
	return model.Trade{
		Symbol:            model.Symbol(symbol),
		Price:             decimal.RequireFromString("100"),
		Quantity:          decimal.RequireFromString(qty),
		IsSellerInitiated: seller,
	}
}

// go test -v --run TestFlushBTCUSDTScenario
func TestFlushBTCUSDTScenario(t *testing.T) {
	agg := New(time.Second, fixedClock(t0))
	agg.Add(trade("BTCUSDT", "1.5", false))
	agg.Add(trade("BTCUSDT", "0.5", true))

	out := agg.Flush(t0.Add(time.Second))
	require.Equal(t, []model.AggregatedVolume{{
		Symbol:      "BTCUSDT",
		BuyVolume:   1.5,
		SellVolume:  0.5,
		WindowStart: t0,
		WindowEnd:   t0.Add(time.Second),
	}}, out)
}

// go test -v --run TestFlushResets
func TestFlushResets(t *testing.T) {
	agg := New(time.Second, fixedClock(t0))
	agg.Add(trade("BTCUSDT", "2", false))

	require.Len(t, agg.Flush(t0.Add(time.Second)), 1)

	buy, sell := agg.Pending("BTCUSDT")
	require.True(t, buy.IsZero())
	require.True(t, sell.IsZero())

	// no trades in the second window, nothing emitted
	require.Empty(t, agg.Flush(t0.Add(2*time.Second)))

	// no carry-over into the third window
	agg.Add(trade("BTCUSDT", "0.25", true))
	out := agg.Flush(t0.Add(3 * time.Second))
	require.Len(t, out, 1)
	require.Equal(t, 0.0, out[0].BuyVolume)
	require.Equal(t, 0.25, out[0].SellVolume)
	require.Equal(t, t0.Add(2*time.Second), out[0].WindowStart)
}

// go test -v --run TestFlushSkipsZeroVolume
func TestFlushSkipsZeroVolume(t *testing.T) {
	agg := New(time.Second, fixedClock(t0))
	agg.Add(trade("ETHUSDT", "0", false))
	agg.Add(trade("BTCUSDT", "1", false))

	out := agg.Flush(t0.Add(time.Second))
	require.Len(t, out, 1)
	require.Equal(t, model.Symbol("BTCUSDT"), out[0].Symbol)
}

// go test -v --run TestFlushSortedBySymbol
func TestFlushSortedBySymbol(t *testing.T) {
	agg := New(time.Second, fixedClock(t0))
	for _, s := range []string{"XRPUSDT", "BTCUSDT", "ETHUSDT"} {
		agg.Add(trade(s, "1", false))
	}

	out := agg.Flush(t0.Add(time.Second))
	require.Len(t, out, 3)
	require.Equal(t, model.Symbol("BTCUSDT"), out[0].Symbol)
	require.Equal(t, model.Symbol("ETHUSDT"), out[1].Symbol)
	require.Equal(t, model.Symbol("XRPUSDT"), out[2].Symbol)
}

// go test -v --run TestSumsMatchReference
func TestSumsMatchReference(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	agg := New(time.Second, fixedClock(t0))

	var wantBuy, wantSell float64
	for i := 0; i < 500; i++ {
		qty := decimal.NewFromFloat(rng.Float64() * 3).Round(6)
		seller := rng.Intn(2) == 0
		agg.Add(model.Trade{Symbol: "BTCUSDT", Quantity: qty, IsSellerInitiated: seller})

		f, _ := qty.Float64()
		if seller {
			wantSell += f
		} else {
			wantBuy += f
		}
	}

	out := agg.Flush(t0.Add(time.Second))
	require.Len(t, out, 1)
	require.InEpsilon(t, wantBuy, out[0].BuyVolume, 1e-9)
	require.InEpsilon(t, wantSell, out[0].SellVolume, 1e-9)
}

// go test -v --run TestConcurrentAdd
func TestConcurrentAdd(t *testing.T) {
	agg := New(time.Second, fixedClock(t0))
	symbols := []string{"BTCUSDT", "ETHUSDT", "SOLUSDT", "XRPUSDT"}

	var wg sync.WaitGroup
	for _, s := range symbols {
		for w := 0; w < 4; w++ {
			wg.Add(1)
			go func(symbol string) {
				defer wg.Done()
				for i := 0; i < 250; i++ {
					agg.Add(trade(symbol, "0.1", i%2 == 0))
				}
			}(s)
		}
	}
	wg.Wait()

	out := agg.Flush(t0.Add(time.Second))
	require.Len(t, out, len(symbols))
	for _, v := range out {
		require.InDelta(t, 50.0, v.BuyVolume, 1e-9)
		require.InDelta(t, 50.0, v.SellVolume, 1e-9)
	}
}

// go test -v --run TestRunFinalFlushOnCancel
func TestRunFinalFlushOnCancel(t *testing.T) {
	agg := New(time.Hour, fixedClock(t0))
	agg.Add(trade("BTCUSDT", "3", false))

	ctx, cancel := context.WithCancel(context.Background())
	var got []model.AggregatedVolume
	done := make(chan struct{})
	go func() {
		defer close(done)
		agg.Run(ctx, func(v model.AggregatedVolume) { got = append(got, v) })
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	require.Len(t, got, 1)
	require.Equal(t, 3.0, got[0].BuyVolume)
}

// go test -v --run TestRunTicks
func TestRunTicks(t *testing.T) {
	agg := New(20*time.Millisecond, nil)
	agg.Add(trade("BTCUSDT", "1", true))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	emitted := make(chan model.AggregatedVolume, 4)
	go agg.Run(ctx, func(v model.AggregatedVolume) { emitted <- v })

	select {
	case v := <-emitted:
		require.Equal(t, model.Symbol("BTCUSDT"), v.Symbol)
		require.Equal(t, 1.0, v.SellVolume)
	case <-time.After(time.Second):
		t.Fatal("no flush within a second")
	}
}
