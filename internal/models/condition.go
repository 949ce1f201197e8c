package models

import (
	"time"
)

// ConditionType enumerates every alert condition the evaluator can raise
type ConditionType string

const (
	ConditionPriceChange   ConditionType = "PRICE_CHANGE"
	ConditionMABreakout    ConditionType = "MA_BREAKOUT"
	ConditionMABreakdown   ConditionType = "MA_BREAKDOWN"
	ConditionNewHigh       ConditionType = "NEW_HIGH"
	ConditionNewLow        ConditionType = "NEW_LOW"
	ConditionTargetHigh    ConditionType = "TARGET_HIGH"
	ConditionTargetLow     ConditionType = "TARGET_LOW"
	ConditionStopLoss      ConditionType = "STOP_LOSS"
	ConditionTakeProfit    ConditionType = "TAKE_PROFIT"
	ConditionRSIOverbought ConditionType = "RSI_OVERBOUGHT"
	ConditionRSIOversold   ConditionType = "RSI_OVERSOLD"
	ConditionKDGoldenCross ConditionType = "KD_GOLDEN_CROSS"
	ConditionKDDeathCross  ConditionType = "KD_DEATH_CROSS"
	ConditionMACDBullish   ConditionType = "MACD_BULLISH"
	ConditionMACDBearish   ConditionType = "MACD_BEARISH"
	ConditionVolumeSpike   ConditionType = "VOLUME_SPIKE"
	ConditionMACrossUp     ConditionType = "MA_CROSS_UP"
	ConditionMACrossDown   ConditionType = "MA_CROSS_DOWN"
)

// TechnicalConditions lists the rule-configurable conditions in evaluation order
var TechnicalConditions = []ConditionType{
	ConditionRSIOverbought,
	ConditionRSIOversold,
	ConditionKDGoldenCross,
	ConditionKDDeathCross,
	ConditionMACDBullish,
	ConditionMACDBearish,
	ConditionVolumeSpike,
	ConditionMACrossUp,
	ConditionMACrossDown,
}

// IsTechnical reports whether c can back a ConditionRule
func (c ConditionType) IsTechnical() bool {
	for _, t := range TechnicalConditions {
		if t == c {
			return true
		}
	}
	return false
}

// ConditionRule is a persisted technical-indicator alert subscription
type ConditionRule struct {
	ID              uint          `json:"id" gorm:"primaryKey"`
	SecurityCode    string        `json:"security_code" gorm:"size:16;not null;uniqueIndex:idx_rule_code_owner_type"`
	Owner           string        `json:"owner" gorm:"size:64;not null;uniqueIndex:idx_rule_code_owner_type"`
	ConditionType   ConditionType `json:"condition_type" gorm:"size:32;not null;uniqueIndex:idx_rule_code_owner_type"`
	Param           *float64      `json:"param"`
	IsActive        bool          `json:"is_active"`
	LastTriggeredAt *time.Time    `json:"last_triggered_at"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// NewConditionRule returns an active rule using the default threshold
func NewConditionRule(code, owner string, condition ConditionType) *ConditionRule {
	return &ConditionRule{SecurityCode: code, Owner: owner, ConditionType: condition, IsActive: true}
}

// CooldownEntry is the ledger row for one (security, condition) pair
type CooldownEntry struct {
	SecurityCode  string        `json:"security_code" gorm:"primaryKey;size:16"`
	ConditionType ConditionType `json:"condition_type" gorm:"primaryKey;size:32"`
	LastFiredAt   time.Time     `json:"last_fired_at"`
}
