package postgres

import "time"

// OrderBookRecord stores one order book delta. Levels are kept as JSON arrays of [price, quantity].
type OrderBookRecord struct {
	ID uint `gorm:"primaryKey"`

	Symbol    string    `gorm:"type:text;not null;index:idx_orderbook_symbol_timestamp,priority:1"`
	Timestamp time.Time `gorm:"not null;index:idx_orderbook_symbol_timestamp,priority:2,sort:desc"`

	Bids          string `gorm:"type:jsonb;not null"`
	Asks          string `gorm:"type:jsonb;not null"`
	FirstUpdateID int64
	FinalUpdateID int64

	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// TradeVolumeRecord stores one flushed aggregation window.
type TradeVolumeRecord struct {
	ID uint `gorm:"primaryKey"`

	Symbol    string    `gorm:"type:text;not null;index:idx_trade_volume_symbol_timestamp,priority:1"`
	Timestamp time.Time `gorm:"not null;index:idx_trade_volume_symbol_timestamp,priority:2,sort:desc"` // window end

	WindowStart time.Time `gorm:"not null"`
	Volume      float64   `gorm:"type:numeric;not null"` // buy + sell
	BuyVolume   float64   `gorm:"type:numeric;not null"`
	SellVolume  float64   `gorm:"type:numeric;not null"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// LiquidationRecord stores one forced liquidation order.
type LiquidationRecord struct {
	ID uint `gorm:"primaryKey"`

	Symbol    string    `gorm:"type:text;not null;index:idx_liquidation_symbol_timestamp,priority:1"`
	Timestamp time.Time `gorm:"not null;index:idx_liquidation_symbol_timestamp,priority:2,sort:desc"`

	Side     string  `gorm:"type:varchar(4);not null"` // BUY or SELL
	Price    float64 `gorm:"type:numeric;not null"`
	Quantity float64 `gorm:"type:numeric;not null"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
}

type FundingRateRecord struct {
	ID uint `gorm:"primaryKey"`

	Symbol    string    `gorm:"type:text;not null;index:idx_funding_rate_symbol_timestamp,priority:1"`
	Timestamp time.Time `gorm:"not null;index:idx_funding_rate_symbol_timestamp,priority:2,sort:desc"`

	FundingRate float64   `gorm:"type:numeric;not null"`
	FundingTime time.Time `gorm:"not null"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
}

type OpenInterestRecord struct {
	ID uint `gorm:"primaryKey"`

	Symbol    string    `gorm:"type:text;not null;index:idx_open_interest_symbol_timestamp,priority:1"`
	Timestamp time.Time `gorm:"not null;index:idx_open_interest_symbol_timestamp,priority:2,sort:desc"`

	OpenInterest float64 `gorm:"type:numeric;not null"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// TableName overrides the default table name for GORM.
func (OrderBookRecord) TableName() string    { return "orderbook_record" }
func (TradeVolumeRecord) TableName() string  { return "trade_volume_record" }
func (LiquidationRecord) TableName() string  { return "liquidation_record" }
func (FundingRateRecord) TableName() string  { return "funding_rate_record" }
func (OpenInterestRecord) TableName() string { return "open_interest_record" }

// allRecords lists every model migrated by AutoMigrate.
func allRecords() []any {
	return []any{
		&OrderBookRecord{},
		&TradeVolumeRecord{},
		&LiquidationRecord{},
		&FundingRateRecord{},
		&OpenInterestRecord{},
	}
}
