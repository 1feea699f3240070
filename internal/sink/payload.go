package sink

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"marketstream/config"
	"marketstream/internal/model"
)

// CacheKey derives the cache key for symbol and kind, e.g. "btcusdt_orderbook".
func CacheKey(symbol model.Symbol, kind model.Kind) string {
	return symbol.Lower() + "_" + string(kind)
}

// TTLs maps each cached kind to its expiry.
type TTLs map[model.Kind]time.Duration

// TTLsFromConfig builds the per-kind expiry table.
func TTLsFromConfig(cfg config.TTLConfig) TTLs {
	return TTLs{
		model.KindOrderBook:    cfg.OrderBook,
		model.KindTradeVolume:  cfg.TradeVolume,
		model.KindLiquidation:  cfg.Liquidation,
		model.KindFunding:      cfg.FundingRate,
		model.KindOpenInterest: cfg.OpenInterest,
	}
}

// float renders whole numbers with a trailing ".0", so 50000 encodes as 50000.0.
type float float64

func (f float) MarshalJSON() ([]byte, error) {
	s := strconv.FormatFloat(float64(f), 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return []byte(s), nil
}

type level [2]float

func levels(in []model.PriceLevel) []level {
	out := make([]level, len(in))
	for i, l := range in {
		out[i] = level{float(l.Price()), float(l.Quantity())}
	}
	return out
}

type orderBookPayload struct {
	Bids []level `json:"bids"`
	Asks []level `json:"asks"`
}

type tradeVolumePayload struct {
	BuyVolume  float     `json:"buy_volume"`
	SellVolume float     `json:"sell_volume"`
	Timestamp  time.Time `json:"timestamp"`
}

type liquidationPayload struct {
	Symbol    model.Symbol `json:"symbol"`
	Side      model.Side   `json:"side"`
	Price     float        `json:"price"`
	Quantity  float        `json:"quantity"`
	Timestamp time.Time    `json:"timestamp"`
}

type fundingRatePayload struct {
	Symbol      model.Symbol `json:"symbol"`
	FundingRate float64      `json:"funding_rate"`
	FundingTime time.Time    `json:"funding_time"`
}

type openInterestPayload struct {
	Symbol       model.Symbol `json:"symbol"`
	OpenInterest float        `json:"open_interest"`
	Timestamp    time.Time    `json:"timestamp"`
}

// Payload returns the cache snapshot for ev. Each kind has its own shape.
func Payload(ev model.Event) ([]byte, error) {
	var v any
	switch e := ev.(type) {
	case model.OrderBookDelta:
		v = orderBookPayload{Bids: levels(e.Bids), Asks: levels(e.Asks)}
	case model.AggregatedVolume:
		v = tradeVolumePayload{
			BuyVolume:  float(e.BuyVolume),
			SellVolume: float(e.SellVolume),
			Timestamp:  e.WindowEnd,
		}
	case model.ForcedLiquidation:
		v = liquidationPayload{
			Symbol:    e.Symbol,
			Side:      e.Side,
			Price:     float(e.Price),
			Quantity:  float(e.Quantity),
			Timestamp: e.ObservedAt,
		}
	case model.FundingRate:
		v = fundingRatePayload{Symbol: e.Symbol, FundingRate: e.Rate, FundingTime: e.FundingTime}
	case model.OpenInterest:
		v = openInterestPayload{Symbol: e.Symbol, OpenInterest: float(e.OpenInterest), Timestamp: e.ObservedAt}
	default:
		return nil, fmt.Errorf("no cache payload for event kind %q", ev.Kind())
	}
	return json.Marshal(v)
}

// liquidationFromPayload is the inverse of Payload for liquidations.
func liquidationFromPayload(raw []byte) (model.ForcedLiquidation, error) {
	var p struct {
		Symbol    model.Symbol `json:"symbol"`
		Side      model.Side   `json:"side"`
		Price     float64      `json:"price"`
		Quantity  float64      `json:"quantity"`
		Timestamp time.Time    `json:"timestamp"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return model.ForcedLiquidation{}, err
	}
	return model.ForcedLiquidation{
		Symbol:     p.Symbol,
		Side:       p.Side,
		Price:      p.Price,
		Quantity:   p.Quantity,
		ObservedAt: p.Timestamp,
	}, nil
}
