package binance

import "encoding/json"

// StreamEnvelope wraps every frame of a combined stream.
type StreamEnvelope struct {
	Stream string          `json:"stream"` // e.g. "btcusdt@depth"
	Data   json.RawMessage `json:"data"`   // the event payload
}

// ControlResponse acknowledges a SUBSCRIBE/UNSUBSCRIBE request, e.g. {"result":null,"id":1}.
type ControlResponse struct {
	Result json.RawMessage `json:"result"`
	ID     *uint64         `json:"id"`
}

// EventHeader carries the fields common to every stream payload.
type EventHeader struct {
	EventType string `json:"e"` // "depthUpdate", "trade", "aggTrade", "forceOrder"
	EventTime int64  `json:"E"` // event time (ms since epoch)
	Symbol    string `json:"s"` // absent on forceOrder; carried in the order object instead
}

// DepthUpdate is a diff depth stream payload.
type DepthUpdate struct {
	EventHeader
	TransactionTime int64      `json:"T"`
	FirstUpdateID   int64      `json:"U"`
	FinalUpdateID   int64      `json:"u"`
	PrevFinalID     int64      `json:"pu"`
	Bids            [][]string `json:"b"` // [price, quantity]
	Asks            [][]string `json:"a"` // [price, quantity]
}

// TradePayload covers both "trade" and "aggTrade" payloads.
type TradePayload struct {
	EventHeader
	TradeID      int64  `json:"t"` // absent on aggTrade
	TradeTime    int64  `json:"T"`
	Price        string `json:"p"`
	Quantity     string `json:"q"`
	IsBuyerMaker *bool  `json:"m"` // true when the seller initiated the trade
}

// ForceOrderPayload is a liquidation order stream payload.
type ForceOrderPayload struct {
	EventHeader
	Order *ForceOrder `json:"o"`
}

type ForceOrder struct {
	Symbol       string `json:"s"`
	Side         string `json:"S"`  // "BUY" or "SELL"
	OrderType    string `json:"o"`  // e.g. "LIMIT"
	TimeInForce  string `json:"f"`  // e.g. "IOC"
	Quantity     string `json:"q"`  // original quantity
	Price        string `json:"p"`  // order price
	AveragePrice string `json:"ap"` // average fill price
	Status       string `json:"X"`  // e.g. "FILLED"
	LastFilled   string `json:"l"`
	FilledAccum  string `json:"z"`
	TradeTime    int64  `json:"T"`
}

// ExchangeInfoResponse is the subset of /fapi/v1/exchangeInfo used for symbol discovery.
type ExchangeInfoResponse struct {
	Timezone   string `json:"timezone"`
	ServerTime int64  `json:"serverTime"`
	Symbols    []struct {
		Symbol       string `json:"symbol"`       // e.g. "BTCUSDT"
		Status       string `json:"status"`       // e.g. "TRADING"
		ContractType string `json:"contractType"` // e.g. "PERPETUAL"
		BaseAsset    string `json:"baseAsset"`    // e.g. "BTC"
		QuoteAsset   string `json:"quoteAsset"`   // e.g. "USDT"
		// ... extra
	} `json:"symbols"`
}

// FundingRateResponse is one entry of /fapi/v1/fundingRate.
type FundingRateResponse struct {
	Symbol      string `json:"symbol"`
	FundingRate string `json:"fundingRate"`
	FundingTime int64  `json:"fundingTime"` // ms since epoch
	MarkPrice   string `json:"markPrice"`
}

// OpenInterestResponse is the body of /fapi/v1/openInterest.
type OpenInterestResponse struct {
	Symbol       string `json:"symbol"`
	OpenInterest string `json:"openInterest"`
	Time         int64  `json:"time"` // ms since epoch
}

// DepthResponse is the body of /fapi/v1/depth.
type DepthResponse struct {
	LastUpdateID    int64      `json:"lastUpdateId"`
	EventTime       int64      `json:"E"`
	TransactionTime int64      `json:"T"`
	Bids            [][]string `json:"bids"`
	Asks            [][]string `json:"asks"`
}
