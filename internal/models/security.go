package models

import (
	"time"
)

// Market classifies where a security trades
type Market string

const (
	MarketTWSE    Market = "twse"    // domestic listed
	MarketTPEx    Market = "tpex"    // domestic OTC
	MarketForeign Market = "foreign" // foreign ticker
	MarketUnknown Market = ""
)

// IsDomestic reports whether the market is one of the local boards
func (m Market) IsDomestic() bool {
	return m == MarketTWSE || m == MarketTPEx
}

// Security represents a tracked equity
type Security struct {
	Code      string    `json:"code" gorm:"primaryKey;size:16"`
	Name      string    `json:"name"`
	Market    Market    `json:"market" gorm:"size:16"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PriceHistory is one daily bar for a security, unique per (security, date)
type PriceHistory struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	SecurityCode string    `json:"security_code" gorm:"size:16;not null;uniqueIndex:idx_history_code_date"`
	TradeDate    string    `json:"trade_date" gorm:"size:10;not null;uniqueIndex:idx_history_code_date"` // 2006-01-02
	Open         float64   `json:"open"`
	High         float64   `json:"high"`
	Low          float64   `json:"low"`
	Close        float64   `json:"close"`
	Volume       int64     `json:"volume"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName keeps the table name singular-free and stable
func (PriceHistory) TableName() string {
	return "price_history"
}

// Setting is one row of the key/value settings table
type Setting struct {
	Key       string    `json:"key" gorm:"primaryKey;size:64"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}
