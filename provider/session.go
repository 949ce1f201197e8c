package provider

import (
	"time"
)

// Taipei is the exchange clock. Taiwan has no daylight saving.
var Taipei = time.FixedZone("Asia/Taipei", 8*60*60)

// Domestic regular session, local time
const (
	SessionOpenMinute  = 9 * 60
	SessionCloseMinute = 13*60 + 30
)

// IsTradingDay reports whether t falls on a weekday in exchange time
func IsTradingDay(t time.Time) bool {
	switch t.In(Taipei).Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	return true
}

// InSession reports whether t is inside the 09:00–13:30 session on a weekday
func InSession(t time.Time) bool {
	if !IsTradingDay(t) {
		return false
	}
	local := t.In(Taipei)
	minute := local.Hour()*60 + local.Minute()
	return minute >= SessionOpenMinute && minute < SessionCloseMinute
}

// TradeDate returns the exchange-local calendar date of t as 2006-01-02
func TradeDate(t time.Time) string {
	return t.In(Taipei).Format("2006-01-02")
}
