package stream

import (
	"errors"
	"testing"
	"time"

	"marketstream/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// go test -v --run TestDecodeDepthUpdate
func TestDecodeDepthUpdate(t *testing.T) {
	raw := []byte(`{"stream":"btcusdt@depth@100ms","data":{"e":"depthUpdate","E":1700000000123,"T":1700000000120,
		"s":"BTCUSDT","U":10,"u":12,"pu":9,"b":[["50000.0","1.5"]],"a":[["50001.0","2.0"],["50002.5","0"]]}}`)

	ev, err := Decode(raw)
	require.NoError(t, err)

	delta, ok := ev.(model.OrderBookDelta)
	require.True(t, ok)
	require.Equal(t, model.Symbol("BTCUSDT"), delta.Symbol)
	require.Equal(t, []model.PriceLevel{{50000, 1.5}}, delta.Bids)
	require.Equal(t, []model.PriceLevel{{50001, 2}, {50002.5, 0}}, delta.Asks)
	require.Equal(t, int64(10), delta.FirstUpdateID)
	require.Equal(t, int64(12), delta.FinalUpdateID)
	require.Equal(t, time.UnixMilli(1700000000123).UTC(), delta.ObservedAt)
}

// go test -v --run TestDecodeTrade
func TestDecodeTrade(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		wantSeller bool
	}{
		{
			name:       "buyer initiated",
			raw:        `{"stream":"btcusdt@trade","data":{"e":"trade","E":1,"T":2,"s":"BTCUSDT","t":7,"p":"50000.10","q":"0.015","m":false}}`,
			wantSeller: false,
		},
		{
			name:       "seller initiated",
			raw:        `{"stream":"btcusdt@trade","data":{"e":"trade","E":1,"T":2,"s":"BTCUSDT","t":8,"p":"50000.10","q":"0.015","m":true}}`,
			wantSeller: true,
		},
		{
			name:       "aggTrade bare payload",
			raw:        `{"e":"aggTrade","E":1,"T":2,"s":"BTCUSDT","a":5,"p":"50000.10","q":"0.015","m":true}`,
			wantSeller: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := Decode([]byte(tt.raw))
			require.NoError(t, err)

			trade, ok := ev.(model.Trade)
			require.True(t, ok)
			require.Equal(t, model.Symbol("BTCUSDT"), trade.Symbol)
			require.True(t, decimal.RequireFromString("50000.10").Equal(trade.Price))
			require.True(t, decimal.RequireFromString("0.015").Equal(trade.Quantity))
			require.Equal(t, tt.wantSeller, trade.IsSellerInitiated)
			require.Equal(t, time.UnixMilli(2).UTC(), trade.ObservedAt)
		})
	}
}

// go test -v --run TestDecodeForceOrder
func TestDecodeForceOrder(t *testing.T) {
	raw := []byte(`{"stream":"btcusdt@forceOrder","data":{"e":"forceOrder","E":1568014460893,
		"o":{"s":"BTCUSDT","S":"SELL","o":"LIMIT","f":"IOC","q":"0.014","p":"9910","ap":"9910","X":"FILLED","l":"0.014","z":"0.014","T":1568014460893}}}`)

	ev, err := Decode(raw)
	require.NoError(t, err)
	require.Equal(t, model.ForcedLiquidation{
		Symbol:     "BTCUSDT",
		Side:       model.SideSell,
		Price:      9910,
		Quantity:   0.014,
		ObservedAt: time.UnixMilli(1568014460893).UTC(),
	}, ev)
}

// go test -v --run TestDecodeSymbolFromStream
func TestDecodeSymbolFromStream(t *testing.T) {
	raw := []byte(`{"stream":"ethusdt@depth","data":{"e":"depthUpdate","E":1,"b":[],"a":[["3000","1"]]}}`)

	ev, err := Decode(raw)
	require.NoError(t, err)
	require.Equal(t, model.Symbol("ETHUSDT"), ev.EventSymbol())
}

// go test -v --run TestDecodeControlFrame
func TestDecodeControlFrame(t *testing.T) {
	_, err := Decode([]byte(`{"result":null,"id":1}`))
	require.ErrorIs(t, err, ErrControlFrame)
}

// go test -v --run TestDecodeFaults
func TestDecodeFaults(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		reason string
	}{
		{"truncated json", `{"stream":"btcusdt@trade","data":{"e":"trade"`, "malformed json"},
		{"not an object", `[1,2,3]`, "malformed json"},
		{"missing discriminator", `{"stream":"btcusdt@trade","data":{"s":"BTCUSDT"}}`, "missing field"},
		{"unknown discriminator", `{"stream":"btcusdt@kline_1m","data":{"e":"kline","s":"BTCUSDT"}}`, "unknown event type"},
		{"trade without side flag", `{"data":{"e":"trade","s":"BTCUSDT","p":"1","q":"1"}}`, "missing field"},
		{"trade without quantity", `{"data":{"e":"trade","s":"BTCUSDT","p":"1","m":true}}`, "missing field"},
		{"trade bad price", `{"data":{"e":"trade","s":"BTCUSDT","p":"abc","q":"1","m":true}}`, "invalid number in p"},
		{"trade negative quantity", `{"data":{"e":"trade","s":"BTCUSDT","p":"1","q":"-1","m":true}}`, "negative quantity"},
		{"trade numeric price", `{"data":{"e":"trade","s":"BTCUSDT","p":1,"q":"1","m":true}}`, "malformed trade"},
		{"depth without levels", `{"data":{"e":"depthUpdate","s":"BTCUSDT"}}`, "missing field"},
		{"depth bad level", `{"data":{"e":"depthUpdate","s":"BTCUSDT","b":[["x","1"]],"a":[]}}`, "invalid bid level"},
		{"depth short level", `{"data":{"e":"depthUpdate","s":"BTCUSDT","b":[],"a":[["1"]]}}`, "invalid ask level"},
		{"force order without order", `{"data":{"e":"forceOrder","E":1}}`, "missing field"},
		{"force order bad side", `{"data":{"e":"forceOrder","o":{"s":"BTCUSDT","S":"HOLD","p":"1","q":"1"}}}`, "invalid side"},
		{"depth NaN price", `{"data":{"e":"depthUpdate","s":"BTCUSDT","b":[["NaN","1"]],"a":[]}}`, "invalid bid level"},
		{"depth infinite quantity", `{"data":{"e":"depthUpdate","s":"BTCUSDT","b":[],"a":[["1","Inf"]]}}`, "invalid ask level"},
		{"force order NaN price", `{"data":{"e":"forceOrder","o":{"s":"BTCUSDT","S":"SELL","p":"NaN","q":"1"}}}`, "invalid number in p"},
		{"force order overflowing price", `{"data":{"e":"forceOrder","o":{"s":"BTCUSDT","S":"SELL","p":"1e400","q":"1"}}}`, "invalid number in p"},
		{"force order overflowing quantity", `{"data":{"e":"forceOrder","o":{"s":"BTCUSDT","S":"BUY","p":"1","q":"-1e400"}}}`, "invalid number in q"},
		{"trade overflowing quantity", `{"data":{"e":"trade","s":"BTCUSDT","p":"1","q":"1e400","m":true}}`, "invalid number in q"},
		{"no symbol anywhere", `{"data":{"e":"trade","p":"1","q":"1","m":true}}`, "missing field"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var (
				ev  model.Event
				err error
			)
			require.NotPanics(t, func() { ev, err = Decode([]byte(tt.raw)) })
			require.Nil(t, ev)

			var fault *DecodeFault
			require.True(t, errors.As(err, &fault), "expected DecodeFault, got %v", err)
			require.Equal(t, tt.reason, fault.Reason)
		})
	}
}

// go test -v --run TestDecodeFaultCarriesStream
func TestDecodeFaultCarriesStream(t *testing.T) {
	_, err := Decode([]byte(`{"stream":"btcusdt@trade","data":{"e":"trade","s":"BTCUSDT","p":"1","q":"1"}}`))

	var fault *DecodeFault
	require.True(t, errors.As(err, &fault))
	require.Equal(t, "btcusdt@trade", fault.Stream)
	require.Contains(t, err.Error(), "btcusdt@trade")
}
