package services

import (
	"context"
	"fmt"
	"time"

	"github.com/Cyvadra/stock-alert/internal/config"
	"github.com/Cyvadra/stock-alert/internal/indicators"
	"github.com/Cyvadra/stock-alert/internal/models"
	"github.com/Cyvadra/stock-alert/provider"
)

const (
	historyWindow = 120 // bars loaded per snapshot

	macdFast   = 12
	macdSlow   = 26
	macdSignal = 9
)

// IndicatorEngine builds indicator snapshots from persisted daily bars
type IndicatorEngine struct {
	history *HistoryService
	now     func() time.Time
}

// NewIndicatorEngine creates an indicator engine over the history store
func NewIndicatorEngine(history *HistoryService) *IndicatorEngine {
	return &IndicatorEngine{history: history, now: time.Now}
}

// Snapshot computes indicators for code. It returns ErrInsufficientHistory
// when fewer than settings.MinHistory() bars exist.
func (e *IndicatorEngine) Snapshot(ctx context.Context, code string, settings config.AlertSettings) (*models.IndicatorSnapshot, error) {
	rows, err := e.history.Recent(ctx, code, historyWindow)
	if err != nil {
		return nil, fmt.Errorf("load history %s: %w", code, err)
	}
	if len(rows) < settings.MinHistory() {
		return nil, fmt.Errorf("%w: %s has %d bars, need %d", ErrInsufficientHistory, code, len(rows), settings.MinHistory())
	}

	// Recent is newest first
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	return ComputeSnapshot(code, rows, settings, provider.TradeDate(e.now()))
}

// ComputeSnapshot derives a snapshot from bars in chronological order. today
// identifies the current trading day, whose bar is left out of the N-day
// high/low window.
func ComputeSnapshot(code string, rows []models.PriceHistory, settings config.AlertSettings, today string) (*models.IndicatorSnapshot, error) {
	n := len(rows)
	if n < settings.MinHistory() || n < 2 {
		return nil, ErrInsufficientHistory
	}

	closes := make([]float64, n)
	highs := make([]float64, n)
	lows := make([]float64, n)
	volumes := make([]float64, n)
	for i, r := range rows {
		closes[i] = r.Close
		highs[i] = nonZero(r.High, r.Close)
		lows[i] = nonZero(r.Low, r.Close)
		volumes[i] = float64(r.Volume)
	}

	snap := &models.IndicatorSnapshot{
		Code:        code,
		AsOf:        rows[n-1].TradeDate,
		Points:      n,
		LastClose:   closes[n-1],
		PrevClose:   closes[n-2],
		MAPeriod:    settings.MAPeriod,
		HighLowDays: settings.HighLowDays,
	}

	ma, err := indicators.SMA(closes, settings.MAPeriod)
	if err != nil {
		return nil, fmt.Errorf("moving average: %w", err)
	}
	snap.MA = ma[n-1]
	snap.PrevMA = snap.MA
	if n-2 >= settings.MAPeriod-1 {
		snap.PrevMA = ma[n-2]
	}

	past := closes
	if rows[n-1].TradeDate == today {
		past = closes[:n-1]
	}
	if len(past) > settings.HighLowDays {
		past = past[len(past)-settings.HighLowDays:]
	}
	snap.HighN = indicators.Highest(past)
	snap.LowN = indicators.Lowest(past)

	if rsi, err := indicators.RSI(closes, settings.RSIPeriod); err == nil {
		snap.HasRSI = true
		snap.RSI = rsi[n-1]
		snap.PrevRSI = snap.RSI
		if n-2 >= settings.RSIPeriod {
			snap.PrevRSI = rsi[n-2]
		}
	}

	if n >= settings.KDPeriod+1 {
		if k, d, err := indicators.KD(highs, lows, closes, settings.KDPeriod); err == nil {
			snap.HasKD = true
			snap.K, snap.D = k[n-1], d[n-1]
			snap.PrevK, snap.PrevD = k[n-2], d[n-2]
		}
	}

	if dif, dea, hist, err := indicators.MACD(closes, macdFast, macdSlow, macdSignal); err == nil {
		snap.HasMACD = true
		snap.DIF, snap.DEA, snap.Hist = dif[n-1], dea[n-1], hist[n-1]
		snap.PrevDIF = dif[n-2]
	}

	if ratio, ok := indicators.VolumeRatio(volumes, settings.VolumeAvgDays); ok {
		snap.HasVolumeRatio = true
		snap.VolumeRatio = ratio
	}
	return snap, nil
}

func nonZero(v, fallback float64) float64 {
	if v > 0 {
		return v
	}
	return fallback
}
