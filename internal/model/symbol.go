package model

import (
	"errors"
	"strings"
)

// ErrEmptySymbol is returned by ParseSymbol for blank input.
var ErrEmptySymbol = errors.New("empty symbol")

// Symbol is an uppercase ticker identifier such as "BTCUSDT".
// It partitions aggregation, caching and subscriptions.
type Symbol string

// ParseSymbol trims and upper-cases s.
func ParseSymbol(s string) (Symbol, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return "", ErrEmptySymbol
	}
	return Symbol(s), nil
}

// ParseSymbols parses every entry of list, skipping duplicates while keeping order.
func ParseSymbols(list []string) ([]Symbol, error) {
	seen := make(map[Symbol]bool, len(list))
	out := make([]Symbol, 0, len(list))
	for _, raw := range list {
		sym, err := ParseSymbol(raw)
		if err != nil {
			return nil, err
		}
		if seen[sym] {
			continue
		}
		seen[sym] = true
		out = append(out, sym)
	}
	return out, nil
}

func (s Symbol) String() string { return string(s) }

// Lower returns the lower-case form used in stream names and cache keys.
func (s Symbol) Lower() string { return strings.ToLower(string(s)) }
