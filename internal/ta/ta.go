package ta

import "math"

// All indicators return NaN when there is not enough data.

func SMA(closes []float64, n int) float64 {
	if len(closes) < n || n <= 0 {
		return math.NaN()
	}
	sum := 0.0
	for i := len(closes) - n; i < len(closes); i++ {
		sum += closes[i]
	}
	return sum / float64(n)
}

// EMA seeds with the SMA of the first period values and smooths over the rest.
func EMA(closes []float64, period int) float64 {
	if len(closes) < period || period <= 0 {
		return math.NaN()
	}
	k := 2.0 / float64(period+1)
	ema := SMA(closes[:period], period)
	for _, c := range closes[period:] {
		ema = (c-ema)*k + ema
	}
	return ema
}

func RSI(closes []float64, period int) float64 {
	if len(closes) < period+1 || period <= 0 {
		return math.NaN()
	}
	gain, loss := 0.0, 0.0
	for i := len(closes) - period; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	if loss == 0 {
		if gain == 0 {
			return 50.0
		}
		return 100.0
	}
	rs := (gain / float64(period)) / (loss / float64(period))
	return 100.0 - (100.0 / (1.0 + rs))
}

// Momentum is the percent change over the last lookback observations.
func Momentum(closes []float64, lookback int) float64 {
	if len(closes) < lookback+1 || lookback <= 0 {
		return math.NaN()
	}
	base := closes[len(closes)-1-lookback]
	if base == 0 {
		return math.NaN()
	}
	return (closes[len(closes)-1] - base) / base * 100.0
}

func StdDev(vals []float64, n int) float64 {
	if len(vals) < n || n <= 0 {
		return math.NaN()
	}
	m := SMA(vals, n)
	s := 0.0
	for i := len(vals) - n; i < len(vals); i++ {
		d := vals[i] - m
		s += d * d
	}
	return math.Sqrt(s / float64(n))
}
