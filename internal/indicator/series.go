package indicator

import (
	"math"

	"certtrader/internal/model"
)

func closes(bars []model.Bar) []float64 {
	out := make([]float64, len(bars))
	for i := range bars {
		out[i] = bars[i].Close
	}
	return out
}

func highs(bars []model.Bar) []float64 {
	out := make([]float64, len(bars))
	for i := range bars {
		out[i] = bars[i].High
	}
	return out
}

func lows(bars []model.Bar) []float64 {
	out := make([]float64, len(bars))
	for i := range bars {
		out[i] = bars[i].Low
	}
	return out
}

func ema(x []float64, n int) []float64 {
	out := make([]float64, len(x))
	if len(x) == 0 {
		return out
	}
	k := 2.0 / (float64(n) + 1)
	out[0] = x[0]
	for i := 1; i < len(x); i++ {
		out[i] = x[i]*k + out[i-1]*(1-k)
	}
	return out
}

func sma(x []float64, n int) []float64 {
	out := make([]float64, len(x))
	var sum float64
	for i := range x {
		sum += x[i]
		if i >= n {
			sum -= x[i-n]
		}
		if i >= n-1 {
			out[i] = sum / float64(n)
		} else {
			out[i] = sum / float64(i+1)
		}
	}
	return out
}

func trueRange(bars []model.Bar) []float64 {
	out := make([]float64, len(bars))
	if len(bars) == 0 {
		return out
	}
	out[0] = bars[0].High - bars[0].Low
	for i := 1; i < len(bars); i++ {
		hl := bars[i].High - bars[i].Low
		hc := math.Abs(bars[i].High - bars[i-1].Close)
		lc := math.Abs(bars[i].Low - bars[i-1].Close)
		out[i] = math.Max(hl, math.Max(hc, lc))
	}
	return out
}

func atr(bars []model.Bar, n int) []float64 {
	return ema(trueRange(bars), n)
}

func rsi(x []float64, n int) []float64 {
	out := make([]float64, len(x))
	if len(x) < 2 {
		for i := range out {
			out[i] = 50
		}
		return out
	}
	gains := make([]float64, len(x))
	losses := make([]float64, len(x))
	for i := 1; i < len(x); i++ {
		d := x[i] - x[i-1]
		if d > 0 {
			gains[i] = d
		} else {
			losses[i] = -d
		}
	}
	avgGain := ema(gains, n)
	avgLoss := ema(losses, n)
	for i := range x {
		if avgLoss[i] == 0 {
			out[i] = 100
			if avgGain[i] == 0 {
				out[i] = 50
			}
			continue
		}
		rs := avgGain[i] / avgLoss[i]
		out[i] = 100 - 100/(1+rs)
	}
	return out
}

// crossedUp reports whether a series crossed above a level between the
// previous and the current bar, given the stored prev column.
func crossedUp(prev, cur, level float64) bool {
	return prev < level && cur >= level
}

func crossedDown(prev, cur, level float64) bool {
	return prev > level && cur <= level
}
