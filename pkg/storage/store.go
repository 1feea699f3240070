package storage

import (
	"context"
	"errors"

	"marketstream/internal/model"
)

// ErrNotFound is returned by read helpers when no row exists for the symbol.
var ErrNotFound = errors.New("storage: not found")

// Store is the append-only durable record of normalized events.
type Store interface {
	Append(ctx context.Context, ev model.Event) error
	LatestLiquidation(ctx context.Context, symbol model.Symbol) (model.ForcedLiquidation, error)
	Close() error
}
