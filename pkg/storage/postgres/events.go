package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"marketstream/internal/model"
	"marketstream/pkg/storage"

	"gorm.io/gorm"
)

// Append inserts one row for ev into the table matching its kind.
func (p *PostgresClient) Append(ctx context.Context, ev model.Event) error {
	record, err := ToRecord(ev)
	if err != nil {
		return err
	}
	if err := p.DB.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("insert %s: %w", ev.Kind(), err)
	}
	return nil
}

// ToRecord converts a normalized event into its gorm model for insertion.
func ToRecord(ev model.Event) (any, error) {
	switch e := ev.(type) {
	case model.OrderBookDelta:
		bids, err := json.Marshal(levels(e.Bids))
		if err != nil {
			return nil, err
		}
		asks, err := json.Marshal(levels(e.Asks))
		if err != nil {
			return nil, err
		}
		return &OrderBookRecord{
			Symbol:        e.Symbol.String(),
			Timestamp:     e.ObservedAt,
			Bids:          string(bids),
			Asks:          string(asks),
			FirstUpdateID: e.FirstUpdateID,
			FinalUpdateID: e.FinalUpdateID,
		}, nil
	case model.AggregatedVolume:
		return &TradeVolumeRecord{
			Symbol:      e.Symbol.String(),
			Timestamp:   e.WindowEnd,
			WindowStart: e.WindowStart,
			Volume:      e.Total(),
			BuyVolume:   e.BuyVolume,
			SellVolume:  e.SellVolume,
		}, nil
	case model.ForcedLiquidation:
		return &LiquidationRecord{
			Symbol:    e.Symbol.String(),
			Timestamp: e.ObservedAt,
			Side:      string(e.Side),
			Price:     e.Price,
			Quantity:  e.Quantity,
		}, nil
	case model.FundingRate:
		return &FundingRateRecord{
			Symbol:      e.Symbol.String(),
			Timestamp:   e.ObservedAt,
			FundingRate: e.Rate,
			FundingTime: e.FundingTime,
		}, nil
	case model.OpenInterest:
		return &OpenInterestRecord{
			Symbol:       e.Symbol.String(),
			Timestamp:    e.ObservedAt,
			OpenInterest: e.OpenInterest,
		}, nil
	default:
		return nil, fmt.Errorf("no durable record for event kind %q", ev.Kind())
	}
}

// levels keeps an empty side encoded as [] rather than null.
func levels(l []model.PriceLevel) []model.PriceLevel {
	if l == nil {
		return []model.PriceLevel{}
	}
	return l
}

// latest returns the newest n rows of T for symbol, newest first.
func latest[T any](ctx context.Context, db *gorm.DB, symbol model.Symbol, n int) ([]T, error) {
	var rows []T
	err := db.WithContext(ctx).
		Where("symbol = ?", symbol.String()).
		Order("timestamp DESC").
		Limit(n).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (p *PostgresClient) LatestOrderBooks(ctx context.Context, symbol model.Symbol, n int) ([]OrderBookRecord, error) {
	return latest[OrderBookRecord](ctx, p.DB, symbol, n)
}

func (p *PostgresClient) LatestTradeVolumes(ctx context.Context, symbol model.Symbol, n int) ([]TradeVolumeRecord, error) {
	return latest[TradeVolumeRecord](ctx, p.DB, symbol, n)
}

func (p *PostgresClient) LatestFundingRates(ctx context.Context, symbol model.Symbol, n int) ([]FundingRateRecord, error) {
	return latest[FundingRateRecord](ctx, p.DB, symbol, n)
}

func (p *PostgresClient) LatestOpenInterests(ctx context.Context, symbol model.Symbol, n int) ([]OpenInterestRecord, error) {
	return latest[OpenInterestRecord](ctx, p.DB, symbol, n)
}

// LatestLiquidation returns the most recent liquidation for symbol, or storage.ErrNotFound.
func (p *PostgresClient) LatestLiquidation(ctx context.Context, symbol model.Symbol) (model.ForcedLiquidation, error) {
	var rec LiquidationRecord
	err := p.DB.WithContext(ctx).
		Where("symbol = ?", symbol.String()).
		Order("timestamp DESC").
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.ForcedLiquidation{}, storage.ErrNotFound
	}
	if err != nil {
		return model.ForcedLiquidation{}, err
	}
	return model.ForcedLiquidation{
		Symbol:     model.Symbol(rec.Symbol),
		Side:       model.Side(rec.Side),
		Price:      rec.Price,
		Quantity:   rec.Quantity,
		ObservedAt: rec.Timestamp.UTC(),
	}, nil
}
