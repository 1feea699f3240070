package binance

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"marketstream/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestREST(t *testing.T, handler http.HandlerFunc) *RESTClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewRESTClient(srv.URL, 5*time.Second, 0)
}

// go test -v --run TestGetUSDTPerpetualSymbols
func TestGetUSDTPerpetualSymbols(t *testing.T) {
	client := newTestREST(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/fapi/v1/exchangeInfo", r.URL.Path)
		_, _ = w.Write([]byte(`{"timezone":"UTC","serverTime":1,"symbols":[
			{"symbol":"ETHUSDT","status":"TRADING","contractType":"PERPETUAL","baseAsset":"ETH","quoteAsset":"USDT"},
			{"symbol":"BTCUSDT","status":"TRADING","contractType":"PERPETUAL","baseAsset":"BTC","quoteAsset":"USDT"},
			{"symbol":"BTCUSDT_250926","status":"TRADING","contractType":"CURRENT_QUARTER","baseAsset":"BTC","quoteAsset":"USDT"},
			{"symbol":"BTCUSDC","status":"TRADING","contractType":"PERPETUAL","baseAsset":"BTC","quoteAsset":"USDC"},
			{"symbol":"XYZUSDT","status":"SETTLING","contractType":"PERPETUAL","baseAsset":"XYZ","quoteAsset":"USDT"}
		]}`))
	})

	symbols, err := client.GetUSDTPerpetualSymbols(context.Background())
	require.NoError(t, err)
	require.Equal(t, []model.Symbol{"BTCUSDT", "ETHUSDT"}, symbols)
}

// go test -v --run TestGetFundingRate
func TestGetFundingRate(t *testing.T) {
	client := newTestREST(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/fapi/v1/fundingRate", r.URL.Path)
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		assert.Equal(t, "1", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`[{"symbol":"BTCUSDT","fundingRate":"0.00010000","fundingTime":1697059200000,"markPrice":"27000.1"}]`))
	})

	fr, err := client.GetFundingRate(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	require.Equal(t, model.Symbol("BTCUSDT"), fr.Symbol)
	require.InDelta(t, 0.0001, fr.Rate, 1e-12)
	require.Equal(t, time.UnixMilli(1697059200000).UTC(), fr.FundingTime)
}

// go test -v --run TestGetFundingRateEmpty
func TestGetFundingRateEmpty(t *testing.T) {
	client := newTestREST(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})

	_, err := client.GetFundingRate(context.Background(), "BTCUSDT")
	require.Error(t, err)
}

// go test -v --run TestGetOpenInterest
func TestGetOpenInterest(t *testing.T) {
	client := newTestREST(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/fapi/v1/openInterest", r.URL.Path)
		_, _ = w.Write([]byte(`{"openInterest":"10659.509","symbol":"BTCUSDT","time":1589437530011}`))
	})

	oi, err := client.GetOpenInterest(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	require.InDelta(t, 10659.509, oi.OpenInterest, 1e-9)
	require.Equal(t, time.UnixMilli(1589437530011).UTC(), oi.ObservedAt)
}

// go test -v --run TestGetOrderBook
func TestGetOrderBook(t *testing.T) {
	client := newTestREST(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/fapi/v1/depth", r.URL.Path)
		assert.Equal(t, "10", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`{"lastUpdateId":1027024,"E":1589436922972,"T":1589436922959,
			"bids":[["50000.0","1.5"]],"asks":[["50001.0","1.2"]]}`))
	})

	book, err := client.GetOrderBook(context.Background(), "BTCUSDT", 10)
	require.NoError(t, err)
	require.Equal(t, []model.PriceLevel{{50000.0, 1.5}}, book.Bids)
	require.Equal(t, []model.PriceLevel{{50001.0, 1.2}}, book.Asks)
	require.Equal(t, int64(1027024), book.FinalUpdateID)
}

// go test -v --run TestRESTAPIError
func TestRESTAPIError(t *testing.T) {
	client := newTestREST(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":-1121,"msg":"Invalid symbol."}`))
	})

	_, err := client.GetOpenInterest(context.Background(), "NOPE")
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusBadRequest, apiErr.Status)
	require.Equal(t, -1121, apiErr.Code)
	require.Equal(t, "Invalid symbol.", apiErr.Msg)
}
