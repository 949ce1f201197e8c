// Package indicators implements the technical indicators used by the alert
// engine. Every function takes series in chronological order (oldest first)
// and returns a series of the same length; positions before the indicator
// has enough data hold zero.
package indicators

import (
	"errors"
)

var (
	// ErrInsufficientData is returned when there's not enough data for calculation.
	ErrInsufficientData = errors.New("insufficient data for calculation")
	// ErrInvalidPeriod is returned when the period is invalid.
	ErrInvalidPeriod = errors.New("invalid period")
)

// SMA calculates the simple moving average.
func SMA(values []float64, period int) ([]float64, error) {
	if period <= 0 {
		return nil, ErrInvalidPeriod
	}
	if len(values) < period {
		return nil, ErrInsufficientData
	}

	result := make([]float64, len(values))
	var window float64
	for i, v := range values {
		window += v
		if i >= period {
			window -= values[i-period]
		}
		if i >= period-1 {
			result[i] = window / float64(period)
		}
	}
	return result, nil
}

// EMA calculates the exponential moving average, seeded with the SMA of the
// first period values.
func EMA(values []float64, period int) ([]float64, error) {
	if period <= 0 {
		return nil, ErrInvalidPeriod
	}
	if len(values) < period {
		return nil, ErrInsufficientData
	}

	result := make([]float64, len(values))
	result[period-1] = mean(values[:period])
	k := 2.0 / float64(period+1)
	for i := period; i < len(values); i++ {
		result[i] = values[i]*k + result[i-1]*(1-k)
	}
	return result, nil
}

// RSI calculates the Relative Strength Index with Wilder smoothing.
func RSI(closes []float64, period int) ([]float64, error) {
	if period <= 0 {
		return nil, ErrInvalidPeriod
	}
	if len(closes) < period+1 {
		return nil, ErrInsufficientData
	}

	n := len(closes)
	result := make([]float64, n)
	gains := make([]float64, n)
	losses := make([]float64, n)

	for i := 1; i < n; i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			gains[i] = change
		} else {
			losses[i] = -change
		}
	}

	avgGain := mean(gains[1 : period+1])
	avgLoss := mean(losses[1 : period+1])
	result[period] = rsiValue(avgGain, avgLoss)

	for i := period + 1; i < n; i++ {
		avgGain = (avgGain*float64(period-1) + gains[i]) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + losses[i]) / float64(period)
		result[i] = rsiValue(avgGain, avgLoss)
	}
	return result, nil
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		if avgGain == 0 {
			return 50
		}
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// KD calculates the stochastic K and D lines as quoted on the local market:
// RSV over period bars, K = 2/3·K[-1] + 1/3·RSV, D = 2/3·D[-1] + 1/3·K,
// both seeded at 50.
func KD(highs, lows, closes []float64, period int) (k, d []float64, err error) {
	if period <= 0 {
		return nil, nil, ErrInvalidPeriod
	}
	n := len(closes)
	if len(highs) != n || len(lows) != n {
		return nil, nil, ErrInsufficientData
	}
	if n < period {
		return nil, nil, ErrInsufficientData
	}

	k = make([]float64, n)
	d = make([]float64, n)
	prevK, prevD := 50.0, 50.0
	for i := period - 1; i < n; i++ {
		hh := highest(highs[i-period+1 : i+1])
		ll := lowest(lows[i-period+1 : i+1])
		rsv := 50.0
		if hh > ll {
			rsv = 100 * (closes[i] - ll) / (hh - ll)
		}
		k[i] = prevK*2/3 + rsv/3
		d[i] = prevD*2/3 + k[i]/3
		prevK, prevD = k[i], d[i]
	}
	return k, d, nil
}

// MACD calculates DIF (fast EMA − slow EMA), DEA (signal EMA of DIF) and the
// histogram DIF − DEA. Values are valid from index slow+signal-2.
func MACD(closes []float64, fast, slow, signal int) (dif, dea, hist []float64, err error) {
	if fast <= 0 || slow <= 0 || signal <= 0 || fast >= slow {
		return nil, nil, nil, ErrInvalidPeriod
	}
	if len(closes) < slow+signal-1 {
		return nil, nil, nil, ErrInsufficientData
	}

	fastEMA, _ := EMA(closes, fast)
	slowEMA, _ := EMA(closes, slow)

	n := len(closes)
	dif = make([]float64, n)
	for i := slow - 1; i < n; i++ {
		dif[i] = fastEMA[i] - slowEMA[i]
	}

	signalEMA, err := EMA(dif[slow-1:], signal)
	if err != nil {
		return nil, nil, nil, err
	}
	dea = make([]float64, n)
	hist = make([]float64, n)
	for i := slow + signal - 2; i < n; i++ {
		dea[i] = signalEMA[i-slow+1]
		hist[i] = dif[i] - dea[i]
	}
	return dif, dea, hist, nil
}

// Highest returns the maximum value.
func Highest(values []float64) float64 {
	return highest(values)
}

// Lowest returns the minimum value.
func Lowest(values []float64) float64 {
	return lowest(values)
}

// VolumeRatio divides the latest volume by the mean of the avgDays volumes
// before it. ok is false when there is not enough history or the mean is zero.
func VolumeRatio(volumes []float64, avgDays int) (ratio float64, ok bool) {
	if avgDays <= 0 || len(volumes) < avgDays+1 {
		return 0, false
	}
	n := len(volumes)
	avg := mean(volumes[n-1-avgDays : n-1])
	if avg <= 0 {
		return 0, false
	}
	return volumes[n-1] / avg, true
}

func highest(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	h := values[0]
	for _, v := range values[1:] {
		if v > h {
			h = v
		}
	}
	return h
}

func lowest(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	l := values[0]
	for _, v := range values[1:] {
		if v < l {
			l = v
		}
	}
	return l
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var total float64
	for _, v := range values {
		total += v
	}
	return total / float64(len(values))
}
