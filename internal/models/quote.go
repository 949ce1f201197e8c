package models

import (
	"time"
)

// Session tells whether a quote was taken during the trading session
type Session string

const (
	SessionIntraday   Session = "intraday"
	SessionAfterHours Session = "after_hours"
)

// Quote is a resolved, repaired snapshot of a security's price. It is never
// persisted directly; it is folded into PriceHistory.
type Quote struct {
	Code          string    `json:"code"`
	Name          string    `json:"name"`
	Market        Market    `json:"market"`
	Price         float64   `json:"price"`
	Open          float64   `json:"open"`
	High          float64   `json:"high"`
	Low           float64   `json:"low"`
	PrevClose     float64   `json:"prev_close"`
	Change        float64   `json:"change"`
	ChangePercent float64   `json:"change_percent"`
	Volume        int64     `json:"volume"`
	Source        string    `json:"source"`
	Session       Session   `json:"session"`
	ResolvedAt    time.Time `json:"resolved_at"`
}

// IndicatorSnapshot carries current and previous-period indicator values so
// crossings can be detected. Has* flags mark values that could be computed.
type IndicatorSnapshot struct {
	Code      string  `json:"code"`
	AsOf      string  `json:"as_of"`
	Points    int     `json:"points"`
	LastClose float64 `json:"last_close"`
	PrevClose float64 `json:"prev_close"`

	MAPeriod int     `json:"ma_period"`
	MA       float64 `json:"ma"`
	PrevMA   float64 `json:"prev_ma"`

	HighLowDays int     `json:"high_low_days"`
	HighN       float64 `json:"high_n"`
	LowN        float64 `json:"low_n"`

	HasRSI  bool    `json:"has_rsi"`
	RSI     float64 `json:"rsi"`
	PrevRSI float64 `json:"prev_rsi"`

	HasKD bool    `json:"has_kd"`
	K     float64 `json:"k"`
	D     float64 `json:"d"`
	PrevK float64 `json:"prev_k"`
	PrevD float64 `json:"prev_d"`

	HasMACD bool    `json:"has_macd"`
	DIF     float64 `json:"dif"`
	DEA     float64 `json:"dea"`
	PrevDIF float64 `json:"prev_dif"`
	Hist    float64 `json:"hist"`

	HasVolumeRatio bool    `json:"has_volume_ratio"`
	VolumeRatio    float64 `json:"volume_ratio"`
}
