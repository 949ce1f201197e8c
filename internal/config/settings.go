package config

import (
	"fmt"
	"strconv"
	"time"
)

// Setting keys as stored in the settings table
const (
	KeyDefaultThreshold  = "default_threshold"
	KeyStopLossPercent   = "stop_loss_percent"
	KeyTakeProfitPercent = "take_profit_percent"
	KeyMAPeriod          = "ma_period"
	KeyHighLowDays       = "high_low_days"
	KeyRSIPeriod         = "rsi_period"
	KeyRSIOverbought     = "rsi_overbought"
	KeyRSIOversold       = "rsi_oversold"
	KeyKDPeriod          = "kd_period"
	KeyVolumeSpikeRatio  = "volume_spike_ratio"
	KeyVolumeAvgDays     = "volume_avg_days"
	KeyTechnicalCooldown = "technical_cooldown"
	KeyPriceCooldown     = "price_cooldown"
)

// AlertSettings is the typed view over the settings key/value rows. It is
// parsed once per sweep.
type AlertSettings struct {
	DefaultThreshold  float64 // percent move that triggers PRICE_CHANGE
	StopLossPercent   float64 // negative, profit percent at or below fires STOP_LOSS
	TakeProfitPercent float64 // profit percent at or above fires TAKE_PROFIT
	MAPeriod          int     // moving average and lookback window
	HighLowDays       int     // N for N-day high/low
	RSIPeriod         int
	RSIOverbought     float64
	RSIOversold       float64
	KDPeriod          int
	VolumeSpikeRatio  float64
	VolumeAvgDays     int
	TechnicalCooldown time.Duration // ledger window for technical crossings
	PriceCooldown     time.Duration // ledger window for price change and N-day high/low
}

// DefaultAlertSettings returns the documented defaults
func DefaultAlertSettings() AlertSettings {
	return AlertSettings{
		DefaultThreshold:  3,
		StopLossPercent:   -10,
		TakeProfitPercent: 20,
		MAPeriod:          20,
		HighLowDays:       20,
		RSIPeriod:         14,
		RSIOverbought:     70,
		RSIOversold:       30,
		KDPeriod:          9,
		VolumeSpikeRatio:  2,
		VolumeAvgDays:     5,
		TechnicalCooldown: 4 * time.Hour,
		PriceCooldown:     4 * time.Hour,
	}
}

// MinHistory is the number of daily bars the indicator engine needs
func (s AlertSettings) MinHistory() int {
	n := s.MAPeriod
	if s.RSIPeriod+1 > n {
		n = s.RSIPeriod + 1
	}
	return n
}

// ParseAlertSettings overlays rows on the defaults. Unknown keys are ignored;
// a malformed value keeps its default and is reported in the returned errors.
func ParseAlertSettings(rows map[string]string) (AlertSettings, []error) {
	s := DefaultAlertSettings()
	var errs []error

	float := func(key string, dst *float64) {
		v, ok := rows[key]
		if !ok || v == "" {
			return
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("setting %s=%q: %w", key, v, err))
			return
		}
		*dst = f
	}
	integer := func(key string, dst *int) {
		v, ok := rows[key]
		if !ok || v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			errs = append(errs, fmt.Errorf("setting %s=%q: must be a positive integer", key, v))
			return
		}
		*dst = n
	}
	duration := func(key string, dst *time.Duration) {
		v, ok := rows[key]
		if !ok || v == "" {
			return
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			// bare numbers are hours
			h, ferr := strconv.ParseFloat(v, 64)
			if ferr != nil {
				errs = append(errs, fmt.Errorf("setting %s=%q: %w", key, v, err))
				return
			}
			d = time.Duration(h * float64(time.Hour))
		}
		if d < 0 {
			errs = append(errs, fmt.Errorf("setting %s=%q: negative duration", key, v))
			return
		}
		*dst = d
	}

	float(KeyDefaultThreshold, &s.DefaultThreshold)
	float(KeyStopLossPercent, &s.StopLossPercent)
	float(KeyTakeProfitPercent, &s.TakeProfitPercent)
	integer(KeyMAPeriod, &s.MAPeriod)
	integer(KeyHighLowDays, &s.HighLowDays)
	integer(KeyRSIPeriod, &s.RSIPeriod)
	float(KeyRSIOverbought, &s.RSIOverbought)
	float(KeyRSIOversold, &s.RSIOversold)
	integer(KeyKDPeriod, &s.KDPeriod)
	float(KeyVolumeSpikeRatio, &s.VolumeSpikeRatio)
	integer(KeyVolumeAvgDays, &s.VolumeAvgDays)
	duration(KeyTechnicalCooldown, &s.TechnicalCooldown)
	duration(KeyPriceCooldown, &s.PriceCooldown)

	// stop-loss is a loss threshold; accept "10" as -10
	if s.StopLossPercent > 0 {
		s.StopLossPercent = -s.StopLossPercent
	}
	return s, errs
}
