package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Kind identifies a normalized event type. Its value doubles as the cache key suffix.
type Kind string

const (
	KindOrderBook    Kind = "orderbook"
	KindTrade        Kind = "trade"
	KindTradeVolume  Kind = "realtime_trade_volume"
	KindLiquidation  Kind = "liquidation"
	KindFunding      Kind = "funding_rate"
	KindOpenInterest Kind = "open_interest"
)

// Event is the closed set of normalized events flowing through a pipeline.
type Event interface {
	Kind() Kind
	EventSymbol() Symbol
	isEvent()
}

// PriceLevel is a (price, quantity) pair. It encodes as a two-element JSON array.
type PriceLevel [2]float64

func (l PriceLevel) Price() float64    { return l[0] }
func (l PriceLevel) Quantity() float64 { return l[1] }

// OrderBookDelta is an incremental book update as received; it is never merged into a full book here.
type OrderBookDelta struct {
	Symbol        Symbol       `json:"symbol"`
	Bids          []PriceLevel `json:"bids"`
	Asks          []PriceLevel `json:"asks"`
	FirstUpdateID int64        `json:"first_update_id,omitempty"` // "U" on the wire
	FinalUpdateID int64        `json:"final_update_id,omitempty"` // "u" on the wire
	ObservedAt    time.Time    `json:"observed_at"`
}

// Trade is a single print. It only feeds the aggregator and is never persisted.
type Trade struct {
	Symbol            Symbol          `json:"symbol"`
	Price             decimal.Decimal `json:"price"`
	Quantity          decimal.Decimal `json:"quantity"`
	IsSellerInitiated bool            `json:"is_seller_initiated"` // buyer was the maker ("m": true)
	ObservedAt        time.Time       `json:"observed_at"`
}

// AggregatedVolume sums trade quantities for one symbol over [WindowStart, WindowEnd).
type AggregatedVolume struct {
	Symbol      Symbol    `json:"symbol"`
	BuyVolume   float64   `json:"buy_volume"`
	SellVolume  float64   `json:"sell_volume"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
}

// Total returns BuyVolume + SellVolume.
func (v AggregatedVolume) Total() float64 { return v.BuyVolume + v.SellVolume }

// Side of a forced liquidation order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// ForcedLiquidation is a liquidation order pushed by the exchange.
type ForcedLiquidation struct {
	Symbol     Symbol    `json:"symbol"`
	Side       Side      `json:"side"`
	Price      float64   `json:"price"`
	Quantity   float64   `json:"quantity"`
	ObservedAt time.Time `json:"observed_at"`
}

// FundingRate is a polled funding-rate snapshot.
type FundingRate struct {
	Symbol      Symbol    `json:"symbol"`
	Rate        float64   `json:"funding_rate"`
	FundingTime time.Time `json:"funding_time"`
	ObservedAt  time.Time `json:"observed_at"`
}

// OpenInterest is a polled open-interest snapshot.
type OpenInterest struct {
	Symbol       Symbol    `json:"symbol"`
	OpenInterest float64   `json:"open_interest"`
	ObservedAt   time.Time `json:"observed_at"`
}

func (OrderBookDelta) Kind() Kind    { return KindOrderBook }
func (Trade) Kind() Kind             { return KindTrade }
func (AggregatedVolume) Kind() Kind  { return KindTradeVolume }
func (ForcedLiquidation) Kind() Kind { return KindLiquidation }
func (FundingRate) Kind() Kind       { return KindFunding }
func (OpenInterest) Kind() Kind      { return KindOpenInterest }

func (e OrderBookDelta) EventSymbol() Symbol    { return e.Symbol }
func (e Trade) EventSymbol() Symbol             { return e.Symbol }
func (e AggregatedVolume) EventSymbol() Symbol  { return e.Symbol }
func (e ForcedLiquidation) EventSymbol() Symbol { return e.Symbol }
func (e FundingRate) EventSymbol() Symbol       { return e.Symbol }
func (e OpenInterest) EventSymbol() Symbol      { return e.Symbol }

func (OrderBookDelta) isEvent()    {}
func (Trade) isEvent()             {}
func (AggregatedVolume) isEvent()  {}
func (ForcedLiquidation) isEvent() {}
func (FundingRate) isEvent()       {}
func (OpenInterest) isEvent()      {}
