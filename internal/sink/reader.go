package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"marketstream/internal/model"
	"marketstream/pkg/storage"
	"marketstream/pkg/storage/cache"
)

// ErrNoRecentData means the cached snapshot is absent or expired. It is a
// normal outcome, not a store failure.
var ErrNoRecentData = errors.New("no recent data")

// LiquidationHistory returns the most recent durable liquidation.
type LiquidationHistory interface {
	LatestLiquidation(ctx context.Context, symbol model.Symbol) (model.ForcedLiquidation, error)
}

// Reader serves the last cached snapshot per symbol and kind.
type Reader struct {
	cache   cache.Store
	history LiquidationHistory // optional
}

func NewReader(c cache.Store, history LiquidationHistory) *Reader {
	return &Reader{cache: c, history: history}
}

// Latest returns the cached payload for symbol and kind, or ErrNoRecentData.
func (r *Reader) Latest(ctx context.Context, symbol model.Symbol, kind model.Kind) (json.RawMessage, error) {
	raw, err := r.cache.Get(ctx, CacheKey(symbol, kind))
	if errors.Is(err, cache.ErrNotFound) {
		return nil, ErrNoRecentData
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", CacheKey(symbol, kind), err)
	}
	return raw, nil
}

// LiquidationView is the realtime liquidation answer. Realtime is false when
// the value came from the durable store because the cache entry had expired.
type LiquidationView struct {
	Realtime    bool
	Liquidation model.ForcedLiquidation
}

// LatestLiquidation prefers the cached liquidation and falls back to the
// newest durable row. ErrNoRecentData is returned when neither exists.
func (r *Reader) LatestLiquidation(ctx context.Context, symbol model.Symbol) (LiquidationView, error) {
	raw, err := r.Latest(ctx, symbol, model.KindLiquidation)
	switch {
	case err == nil:
		liq, err := liquidationFromPayload(raw)
		if err != nil {
			return LiquidationView{}, fmt.Errorf("decode cached liquidation: %w", err)
		}
		return LiquidationView{Realtime: true, Liquidation: liq}, nil
	case !errors.Is(err, ErrNoRecentData):
		return LiquidationView{}, err
	}

	if r.history == nil {
		return LiquidationView{}, ErrNoRecentData
	}
	liq, err := r.history.LatestLiquidation(ctx, symbol)
	if errors.Is(err, storage.ErrNotFound) {
		return LiquidationView{}, ErrNoRecentData
	}
	if err != nil {
		return LiquidationView{}, fmt.Errorf("read durable liquidation: %w", err)
	}
	return LiquidationView{Liquidation: liq}, nil
}
