package binance

import (
	"fmt"
	"strings"

	"marketstream/internal/model"
)

// StreamKind is the suffix of a Binance stream name, e.g. "depth" in "btcusdt@depth".
type StreamKind string

// StreamKindMeta maps a stream kind to the event type it carries.
type StreamKindMeta struct {
	EventType string     // value of the "e" discriminator
	Kind      model.Kind // normalized kind produced downstream
}

const (
	StreamDepth      StreamKind = "depth"
	StreamTrade      StreamKind = "trade"
	StreamAggTrade   StreamKind = "aggTrade"
	StreamForceOrder StreamKind = "forceOrder"
)

// Event type discriminators found in the "e" field of a payload.
const (
	EventDepthUpdate = "depthUpdate"
	EventTrade       = "trade"
	EventAggTrade    = "aggTrade"
	EventForceOrder  = "forceOrder"
)

var validStreamKinds = map[StreamKind]StreamKindMeta{
	StreamDepth:      {EventType: EventDepthUpdate, Kind: model.KindOrderBook},
	StreamTrade:      {EventType: EventTrade, Kind: model.KindTrade},
	StreamAggTrade:   {EventType: EventAggTrade, Kind: model.KindTrade},
	StreamForceOrder: {EventType: EventForceOrder, Kind: model.KindLiquidation},
}

// IsValid checks if the StreamKind is a supported stream.
func (k StreamKind) IsValid() bool {
	_, ok := validStreamKinds[k]
	return ok
}

// ParseStreamKind parses a configured stream name into a StreamKind.
func ParseStreamKind(s string) (StreamKind, error) {
	kind := StreamKind(s)
	if !kind.IsValid() {
		return "", fmt.Errorf("invalid StreamKind: %s", s)
	}
	return kind, nil
}

// ParseStreamKinds parses a list of stream names.
func ParseStreamKinds(list []string) ([]StreamKind, error) {
	out := make([]StreamKind, 0, len(list))
	for _, s := range list {
		kind, err := ParseStreamKind(s)
		if err != nil {
			return nil, err
		}
		out = append(out, kind)
	}
	return out, nil
}

// StreamName builds "<symbol>@<kind>", appending "@<depthSpeed>" to depth streams when set.
func StreamName(symbol model.Symbol, kind StreamKind, depthSpeed string) string {
	name := symbol.Lower() + "@" + string(kind)
	if kind == StreamDepth && depthSpeed != "" {
		name += "@" + depthSpeed
	}
	return name
}

// StreamNames returns every stream name for the cross product of symbols and kinds.
func StreamNames(symbols []model.Symbol, kinds []StreamKind, depthSpeed string) []string {
	names := make([]string, 0, len(symbols)*len(kinds))
	for _, symbol := range symbols {
		for _, kind := range kinds {
			names = append(names, StreamName(symbol, kind, depthSpeed))
		}
	}
	return names
}

// SymbolFromStream extracts the upper-cased symbol from a stream name like "btcusdt@depth@100ms".
func SymbolFromStream(stream string) model.Symbol {
	i := strings.IndexByte(stream, '@')
	if i <= 0 {
		return ""
	}
	return model.Symbol(strings.ToUpper(stream[:i]))
}
