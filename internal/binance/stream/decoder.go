package stream

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"marketstream/internal/model"
	"marketstream/pkg/binance"

	"github.com/shopspring/decimal"
)

// Decode turns one raw frame into a normalized event. It accepts combined
// stream envelopes ({"stream":...,"data":{...}}) and bare payloads.
// Acknowledgements return ErrControlFrame; anything else that cannot be
// decoded returns a *DecodeFault.
func Decode(raw []byte) (model.Event, error) {
	// Step 1: Unwrap the envelope, if any
	var f frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fault("", "malformed json", err)
	}
	payload := []byte(f.Data)
	if len(f.Data) == 0 || string(f.Data) == "null" {
		if f.ID != nil && f.Stream == "" {
			return nil, ErrControlFrame
		}
		payload = raw
	}

	// Step 2: Dispatch on the event type discriminator
	var header binance.EventHeader
	if err := json.Unmarshal(payload, &header); err != nil {
		return nil, fault(f.Stream, "malformed payload", err)
	}
	if header.EventType == "" {
		return nil, missing(f.Stream, "e")
	}

	switch header.EventType {
	case binance.EventDepthUpdate:
		return decodeDepth(f.Stream, payload)
	case binance.EventTrade, binance.EventAggTrade:
		return decodeTrade(f.Stream, payload)
	case binance.EventForceOrder:
		return decodeForceOrder(f.Stream, payload)
	default:
		return nil, fault(f.Stream, "unknown event type", fmt.Errorf("%q", header.EventType))
	}
}

func decodeDepth(stream string, payload []byte) (model.Event, error) {
	var d binance.DepthUpdate
	if err := json.Unmarshal(payload, &d); err != nil {
		return nil, fault(stream, "malformed depth update", err)
	}
	symbol, err := symbolOf(stream, d.Symbol)
	if err != nil {
		return nil, err
	}
	if d.Bids == nil && d.Asks == nil {
		return nil, missing(stream, "b")
	}

	bids, err := binance.ParseLevels(d.Bids)
	if err != nil {
		return nil, fault(stream, "invalid bid level", err)
	}
	asks, err := binance.ParseLevels(d.Asks)
	if err != nil {
		return nil, fault(stream, "invalid ask level", err)
	}

	return model.OrderBookDelta{
		Symbol:        symbol,
		Bids:          bids,
		Asks:          asks,
		FirstUpdateID: d.FirstUpdateID,
		FinalUpdateID: d.FinalUpdateID,
		ObservedAt:    observedAt(d.EventTime),
	}, nil
}

func decodeTrade(stream string, payload []byte) (model.Event, error) {
	var t binance.TradePayload
	if err := json.Unmarshal(payload, &t); err != nil {
		return nil, fault(stream, "malformed trade", err)
	}
	symbol, err := symbolOf(stream, t.Symbol)
	if err != nil {
		return nil, err
	}
	if t.IsBuyerMaker == nil {
		return nil, missing(stream, "m")
	}

	price, err := parseDecimal(stream, "p", t.Price)
	if err != nil {
		return nil, err
	}
	qty, err := parseDecimal(stream, "q", t.Quantity)
	if err != nil {
		return nil, err
	}
	if qty.IsNegative() {
		return nil, fault(stream, "negative quantity", fmt.Errorf("%s", t.Quantity))
	}

	ts := t.TradeTime
	if ts == 0 {
		ts = t.EventTime
	}
	return model.Trade{
		Symbol:            symbol,
		Price:             price,
		Quantity:          qty,
		IsSellerInitiated: *t.IsBuyerMaker,
		ObservedAt:        observedAt(ts),
	}, nil
}

func decodeForceOrder(stream string, payload []byte) (model.Event, error) {
	var p binance.ForceOrderPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fault(stream, "malformed force order", err)
	}
	if p.Order == nil {
		return nil, missing(stream, "o")
	}
	o := p.Order

	symbol, err := symbolOf(stream, o.Symbol)
	if err != nil {
		return nil, err
	}
	side := model.Side(o.Side)
	if side != model.SideBuy && side != model.SideSell {
		return nil, fault(stream, "invalid side", fmt.Errorf("%q", o.Side))
	}

	price, err := parseDecimal(stream, "p", o.Price)
	if err != nil {
		return nil, err
	}
	qty, err := parseDecimal(stream, "q", o.Quantity)
	if err != nil {
		return nil, err
	}

	ts := o.TradeTime
	if ts == 0 {
		ts = p.EventTime
	}
	return model.ForcedLiquidation{
		Symbol:     symbol,
		Side:       side,
		Price:      price.InexactFloat64(),
		Quantity:   qty.InexactFloat64(),
		ObservedAt: observedAt(ts),
	}, nil
}

// symbolOf prefers the payload symbol and falls back to the stream name.
func symbolOf(stream, raw string) (model.Symbol, error) {
	if raw == "" {
		raw = binance.SymbolFromStream(stream).String()
	}
	symbol, err := model.ParseSymbol(raw)
	if err != nil {
		return "", missing(stream, "s")
	}
	return symbol, nil
}

func parseDecimal(stream, field, raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Decimal{}, missing(stream, field)
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, fault(stream, "invalid number in "+field, err)
	}
	if f := d.InexactFloat64(); math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Decimal{}, fault(stream, "invalid number in "+field, fmt.Errorf("%q overflows float64", raw))
	}
	return d, nil
}

func observedAt(ms int64) time.Time {
	if ms <= 0 {
		return time.Now().UTC()
	}
	return time.UnixMilli(ms).UTC()
}
