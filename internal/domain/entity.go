package domain

import (
	"time"
)

// TradeRecord is the persisted row for one trade.
// Column names follow the existing trades table (security/value).
type TradeRecord struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Price     float64   `json:"price"`
	Security  string    `gorm:"index" json:"security"`
	Timestamp float64   `gorm:"index" json:"timestamp"` // Unix seconds
	Value     float64   `json:"value"`                  // Traded volume
	CreatedAt time.Time `json:"created_at"`
}

// TableName pins the table name regardless of gorm naming strategy.
func (TradeRecord) TableName() string {
	return "trades"
}

// NewTradeRecord maps a decoded event onto a row.
func NewTradeRecord(ev TradeEvent) *TradeRecord {
	return &TradeRecord{
		Price:     ev.Price,
		Security:  ev.Symbol,
		Timestamp: ev.TimestampSeconds,
		Value:     ev.Volume,
	}
}
