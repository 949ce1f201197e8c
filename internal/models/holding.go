package models

import (
	"time"
)

// SharesPerLot is the board lot size on the domestic exchanges
const SharesPerLot = 1000

// WatchEntry is a user's subscription to alerts for one security
type WatchEntry struct {
	ID              uint      `json:"id" gorm:"primaryKey"`
	SecurityCode    string    `json:"security_code" gorm:"size:16;not null;uniqueIndex:idx_watch_code_owner"`
	Owner           string    `json:"owner" gorm:"size:64;not null;uniqueIndex:idx_watch_code_owner"`
	AlertThreshold  *float64  `json:"alert_threshold"` // percent; nil uses the global default
	TargetPriceHigh *float64  `json:"target_price_high"`
	TargetPriceLow  *float64  `json:"target_price_low"`
	IsActive        bool      `json:"is_active"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`

	Security Security `json:"security" gorm:"foreignKey:SecurityCode;references:Code"`
}

// NewWatchEntry returns an active watch entry on the global threshold
func NewWatchEntry(code, owner string) *WatchEntry {
	return &WatchEntry{SecurityCode: code, Owner: owner, IsActive: true}
}

// Position represents a held stake in a security
type Position struct {
	ID              uint       `json:"id" gorm:"primaryKey"`
	SecurityCode    string     `json:"security_code" gorm:"size:16;not null;index"`
	Owner           string     `json:"owner" gorm:"size:64;not null;index"`
	Lots            int        `json:"lots"`
	OddShares       int        `json:"odd_shares"`
	CostPrice       float64    `json:"cost_price"`
	IsWon           bool       `json:"is_won"` // false while a subscription draw is pending
	IsSold          bool       `json:"is_sold"`
	SoldPrice       *float64   `json:"sold_price"`
	SoldDate        *time.Time `json:"sold_date"`
	TargetPriceHigh *float64   `json:"target_price_high"`
	TargetPriceLow  *float64   `json:"target_price_low"`
	NotifyEnabled   bool       `json:"notify_enabled"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`

	Security Security `json:"security" gorm:"foreignKey:SecurityCode;references:Code"`
}

// NewPosition returns a settled holding with notifications on
func NewPosition(code, owner string, lots, oddShares int, costPrice float64) *Position {
	return &Position{
		SecurityCode:  code,
		Owner:         owner,
		Lots:          lots,
		OddShares:     oddShares,
		CostPrice:     costPrice,
		IsWon:         true,
		NotifyEnabled: true,
	}
}

// Shares returns the total share count
func (p *Position) Shares() int {
	return p.Lots*SharesPerLot + p.OddShares
}

// IsHeld reports whether the position is a live, settled holding
func (p *Position) IsHeld() bool {
	return p.IsWon && !p.IsSold && p.Shares() > 0
}

// HasTarget reports whether either exit target is armed
func (p *Position) HasTarget() bool {
	return p.TargetPriceHigh != nil || p.TargetPriceLow != nil
}
