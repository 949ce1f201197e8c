package services

import (
	"context"
	"testing"
	"time"

	"github.com/Cyvadra/stock-alert/internal/config"
	"github.com/Cyvadra/stock-alert/internal/models"
	"github.com/Cyvadra/stock-alert/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bars(start time.Time, closes []float64, volumes []int64) []models.PriceHistory {
	rows := make([]models.PriceHistory, len(closes))
	for i, c := range closes {
		var v int64 = 1000
		if volumes != nil {
			v = volumes[i]
		}
		rows[i] = models.PriceHistory{
			SecurityCode: "2330",
			TradeDate:    provider.TradeDate(start.AddDate(0, 0, i)),
			Open:         c,
			High:         c + 1,
			Low:          c - 1,
			Close:        c,
			Volume:       v,
		}
	}
	return rows
}

func ramp(n int, from, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = from + float64(i)*step
	}
	return out
}

func TestComputeSnapshotInsufficient(t *testing.T) {
	settings := config.DefaultAlertSettings()
	rows := bars(inSession.AddDate(0, 0, -10), ramp(10, 100, 1), nil)
	_, err := ComputeSnapshot("2330", rows, settings, provider.TradeDate(inSession))
	assert.ErrorIs(t, err, ErrInsufficientHistory)
}

func TestComputeSnapshotRamp(t *testing.T) {
	settings := config.DefaultAlertSettings()
	closes := ramp(40, 100, 1) // 100..139, last bar is today
	rows := bars(inSession.AddDate(0, 0, -39), closes, nil)
	today := provider.TradeDate(inSession)
	require.Equal(t, today, rows[len(rows)-1].TradeDate)

	snap, err := ComputeSnapshot("2330", rows, settings, today)
	require.NoError(t, err)

	assert.Equal(t, 40, snap.Points)
	assert.Equal(t, 139.0, snap.LastClose)
	assert.Equal(t, 138.0, snap.PrevClose)
	assert.InDelta(t, 129.5, snap.MA, 1e-9) // mean of 120..139
	assert.InDelta(t, 128.5, snap.PrevMA, 1e-9)

	// today's bar is left out of the N-day window, leaving 119..138
	assert.Equal(t, 138.0, snap.HighN)
	assert.Equal(t, 119.0, snap.LowN)

	assert.True(t, snap.HasRSI)
	assert.Equal(t, 100.0, snap.RSI)
	assert.True(t, snap.HasKD)
	assert.Greater(t, snap.K, 50.0)
	assert.True(t, snap.HasMACD)
	assert.Greater(t, snap.DIF, 0.0)
	assert.True(t, snap.HasVolumeRatio)
	assert.InDelta(t, 1.0, snap.VolumeRatio, 1e-9)
}

func TestComputeSnapshotWithoutToday(t *testing.T) {
	settings := config.DefaultAlertSettings()
	rows := bars(inSession.AddDate(0, 0, -25), ramp(25, 100, 1), nil) // ends yesterday

	snap, err := ComputeSnapshot("2330", rows, settings, provider.TradeDate(inSession))
	require.NoError(t, err)
	assert.Equal(t, 124.0, snap.HighN)
	assert.Equal(t, 105.0, snap.LowN)
	assert.False(t, snap.HasMACD, "25 bars cannot seed MACD")
}

func TestComputeSnapshotVolumeSpike(t *testing.T) {
	settings := config.DefaultAlertSettings()
	volumes := make([]int64, 30)
	for i := range volumes {
		volumes[i] = 1000
	}
	volumes[29] = 3500
	rows := bars(inSession.AddDate(0, 0, -29), make30(50), volumes)

	snap, err := ComputeSnapshot("2330", rows, settings, provider.TradeDate(inSession))
	require.NoError(t, err)
	assert.True(t, snap.HasVolumeRatio)
	assert.InDelta(t, 3.5, snap.VolumeRatio, 1e-9)
	assert.Equal(t, 50.0, snap.RSI)
}

func TestIndicatorEngineSnapshot(t *testing.T) {
	db := newTestDB(t)
	engine := NewIndicatorEngine(NewHistoryService(db))
	engine.now = fixedClock(inSession)
	settings := config.DefaultAlertSettings()

	seedHistory(t, db, "2330", inSession, ramp(10, 100, 1), 1000)
	_, err := engine.Snapshot(context.Background(), "2330", settings)
	assert.ErrorIs(t, err, ErrInsufficientHistory)

	seedHistory(t, db, "2317", inSession, ramp(30, 100, 1), 1000)
	snap, err := engine.Snapshot(context.Background(), "2317", settings)
	require.NoError(t, err)
	assert.Equal(t, 129.0, snap.LastClose)
	assert.Equal(t, 129.0, snap.HighN)
	assert.Equal(t, provider.TradeDate(inSession.AddDate(0, 0, -1)), snap.AsOf)
}
