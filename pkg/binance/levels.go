package binance

import (
	"fmt"
	"math"
	"strconv"

	"marketstream/internal/model"
)

// ParseLevels converts Binance [price, quantity] string pairs into price levels.
// A single malformed or non-finite level rejects the whole list.
func ParseLevels(raw [][]string) ([]model.PriceLevel, error) {
	out := make([]model.PriceLevel, 0, len(raw))
	for i, row := range raw {
		if len(row) < 2 {
			return nil, fmt.Errorf("level %d: expected [price, quantity], got %d fields", i, len(row))
		}
		price, err := parseFinite(row[0])
		if err != nil {
			return nil, fmt.Errorf("level %d: price: %w", i, err)
		}
		qty, err := parseFinite(row[1])
		if err != nil {
			return nil, fmt.Errorf("level %d: quantity: %w", i, err)
		}
		out = append(out, model.PriceLevel{price, qty})
	}
	return out, nil
}

func parseFinite(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("non-finite value %q", s)
	}
	return v, nil
}
