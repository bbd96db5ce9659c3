package indicator

import (
	"math"

	"certtrader/internal/model"
)

// Columns written by each indicator carry a _PREV twin where the
// predicate needs cross detection, so predicates stay functions of a
// single enriched bar.

func setWithPrev(bars []model.Bar, name string, series []float64) {
	for i := range bars {
		bars[i].Columns[name] = series[i]
		if i > 0 {
			bars[i].Columns[name+"_PREV"] = series[i-1]
		} else {
			bars[i].Columns[name+"_PREV"] = series[i]
		}
	}
}

func rollingSum(x []float64, n int) []float64 {
	out := make([]float64, len(x))
	var sum float64
	for i := range x {
		sum += x[i]
		if i >= n {
			sum -= x[i-n]
		}
		out[i] = sum
	}
	return out
}

func highest(x []float64, n int) []float64 {
	out := make([]float64, len(x))
	for i := range x {
		lo := i - n + 1
		if lo < 0 {
			lo = 0
		}
		m := x[lo]
		for j := lo + 1; j <= i; j++ {
			if x[j] > m {
				m = x[j]
			}
		}
		out[i] = m
	}
	return out
}

func lowest(x []float64, n int) []float64 {
	out := make([]float64, len(x))
	for i := range x {
		lo := i - n + 1
		if lo < 0 {
			lo = 0
		}
		m := x[lo]
		for j := lo + 1; j <= i; j++ {
			if x[j] < m {
				m = x[j]
			}
		}
		out[i] = m
	}
	return out
}

// --- Cycles ---

// ebsw is a simplified even-better-sinewave: the detrended close smoothed
// and normalized into [-1, 1].
type ebsw struct{}

func (*ebsw) Category() Category { return Cycles }
func (*ebsw) Name() string       { return "EBSW" }

func (e *ebsw) Compute(bars []model.Bar) error {
	const warmup = 41
	if len(bars) < warmup {
		return errTooShort(e.Name(), warmup, len(bars))
	}
	cl := closes(bars)
	trendline := ema(cl, 40)
	detrended := make([]float64, len(cl))
	for i := range cl {
		detrended[i] = cl[i] - trendline[i]
	}
	smooth := ema(detrended, 10)
	scale := highest(absSeries(smooth), 40)
	wave := make([]float64, len(cl))
	for i := range smooth {
		if scale[i] > 0 {
			wave[i] = smooth[i] / scale[i]
		}
	}
	setWithPrev(bars, "EBSW", wave)
	return nil
}

func (e *ebsw) Buy(b model.Bar) bool {
	return crossedUp(b.Columns["EBSW_PREV"], b.Columns["EBSW"], -0.5)
}

func (e *ebsw) Sell(b model.Bar) bool {
	return crossedDown(b.Columns["EBSW_PREV"], b.Columns["EBSW"], 0.5)
}

func absSeries(x []float64) []float64 {
	out := make([]float64, len(x))
	for i := range x {
		out[i] = math.Abs(x[i])
	}
	return out
}

// --- Volume ---

type mfi struct{}

func (*mfi) Category() Category { return Volume }
func (*mfi) Name() string       { return "MFI" }

func (m *mfi) Compute(bars []model.Bar) error {
	const n = 14
	if len(bars) < n+1 {
		return errTooShort(m.Name(), n+1, len(bars))
	}
	pos := make([]float64, len(bars))
	neg := make([]float64, len(bars))
	prevTP := typicalPrice(bars[0])
	for i := 1; i < len(bars); i++ {
		tp := typicalPrice(bars[i])
		flow := tp * bars[i].Volume
		if tp > prevTP {
			pos[i] = flow
		} else if tp < prevTP {
			neg[i] = flow
		}
		prevTP = tp
	}
	posSum := rollingSum(pos, n)
	negSum := rollingSum(neg, n)
	out := make([]float64, len(bars))
	for i := range bars {
		if negSum[i] == 0 {
			out[i] = 100
			if posSum[i] == 0 {
				out[i] = 50
			}
			continue
		}
		out[i] = 100 - 100/(1+posSum[i]/negSum[i])
	}
	setWithPrev(bars, "MFI", out)
	return nil
}

func (m *mfi) Buy(b model.Bar) bool {
	return crossedUp(b.Columns["MFI_PREV"], b.Columns["MFI"], 20)
}

func (m *mfi) Sell(b model.Bar) bool {
	return crossedDown(b.Columns["MFI_PREV"], b.Columns["MFI"], 80)
}

func typicalPrice(b model.Bar) float64 {
	return (b.High + b.Low + b.Close) / 3
}

type cmf struct{}

func (*cmf) Category() Category { return Volume }
func (*cmf) Name() string       { return "CMF" }

func (c *cmf) Compute(bars []model.Bar) error {
	const n = 20
	if len(bars) < n {
		return errTooShort(c.Name(), n, len(bars))
	}
	mfv := make([]float64, len(bars))
	vol := make([]float64, len(bars))
	for i := range bars {
		b := bars[i]
		vol[i] = b.Volume
		if rng := b.High - b.Low; rng > 0 {
			mfv[i] = ((b.Close - b.Low) - (b.High - b.Close)) / rng * b.Volume
		}
	}
	mfvSum := rollingSum(mfv, n)
	volSum := rollingSum(vol, n)
	out := make([]float64, len(bars))
	for i := range bars {
		if volSum[i] > 0 {
			out[i] = mfvSum[i] / volSum[i]
		}
	}
	setWithPrev(bars, "CMF", out)
	return nil
}

func (c *cmf) Buy(b model.Bar) bool {
	return crossedUp(b.Columns["CMF_PREV"], b.Columns["CMF"], 0)
}

func (c *cmf) Sell(b model.Bar) bool {
	return crossedDown(b.Columns["CMF_PREV"], b.Columns["CMF"], 0)
}

// --- Volatility ---

// keltner signals on channel breakouts.
type keltner struct{}

func (*keltner) Category() Category { return Volatility }
func (*keltner) Name() string       { return "KC" }

func (k *keltner) Compute(bars []model.Bar) error {
	const n = 20
	if len(bars) < n {
		return errTooShort(k.Name(), n, len(bars))
	}
	mid := ema(closes(bars), n)
	rng := atr(bars, n)
	upper := make([]float64, len(bars))
	lower := make([]float64, len(bars))
	for i := range bars {
		upper[i] = mid[i] + 2*rng[i]
		lower[i] = mid[i] - 2*rng[i]
	}
	setWithPrev(bars, "KC_UPPER", upper)
	setWithPrev(bars, "KC_LOWER", lower)
	return nil
}

func (k *keltner) Buy(b model.Bar) bool {
	return b.Columns["CLOSE_PREV"] <= b.Columns["KC_UPPER_PREV"] && b.Close > b.Columns["KC_UPPER"]
}

func (k *keltner) Sell(b model.Bar) bool {
	return b.Columns["CLOSE_PREV"] >= b.Columns["KC_LOWER_PREV"] && b.Close < b.Columns["KC_LOWER"]
}

// massIndex signals a reversal bulge unwinding; the bar's own direction
// picks the side.
type massIndex struct{}

func (*massIndex) Category() Category { return Volatility }
func (*massIndex) Name() string       { return "MASSI" }

func (m *massIndex) Compute(bars []model.Bar) error {
	const warmup = 34 // 9-period double smoothing plus the 25-bar sum
	if len(bars) < warmup {
		return errTooShort(m.Name(), warmup, len(bars))
	}
	rng := make([]float64, len(bars))
	for i := range bars {
		rng[i] = bars[i].High - bars[i].Low
	}
	single := ema(rng, 9)
	double := ema(single, 9)
	ratio := make([]float64, len(bars))
	for i := range bars {
		if double[i] > 0 {
			ratio[i] = single[i] / double[i]
		}
	}
	setWithPrev(bars, "MASSI", rollingSum(ratio, 25))
	return nil
}

func (m *massIndex) Buy(b model.Bar) bool {
	return crossedDown(b.Columns["MASSI_PREV"], b.Columns["MASSI"], 26.5) && b.Close > b.Open
}

func (m *massIndex) Sell(b model.Bar) bool {
	return crossedDown(b.Columns["MASSI_PREV"], b.Columns["MASSI"], 26.5) && b.Close < b.Open
}

// --- Trend ---

type psar struct{}

func (*psar) Category() Category { return Trend }
func (*psar) Name() string       { return "PSAR" }

func (p *psar) Compute(bars []model.Bar) error {
	if len(bars) < 2 {
		return errTooShort(p.Name(), 2, len(bars))
	}
	const (
		step    = 0.02
		maxStep = 0.2
	)
	out := make([]float64, len(bars))
	rising := bars[1].Close >= bars[0].Close
	af := step
	var ep, sar float64
	if rising {
		sar, ep = bars[0].Low, bars[0].High
	} else {
		sar, ep = bars[0].High, bars[0].Low
	}
	out[0] = sar
	for i := 1; i < len(bars); i++ {
		sar = sar + af*(ep-sar)
		if rising {
			if bars[i].Low < sar {
				rising = false
				sar, ep, af = ep, bars[i].Low, step
			} else if bars[i].High > ep {
				ep = bars[i].High
				af = math.Min(af+step, maxStep)
			}
		} else {
			if bars[i].High > sar {
				rising = true
				sar, ep, af = ep, bars[i].High, step
			} else if bars[i].Low < ep {
				ep = bars[i].Low
				af = math.Min(af+step, maxStep)
			}
		}
		out[i] = sar
	}
	setWithPrev(bars, "PSAR", out)
	return nil
}

func (p *psar) Buy(b model.Bar) bool {
	return b.Close > b.Columns["PSAR"] && b.Columns["CLOSE_PREV"] <= b.Columns["PSAR_PREV"]
}

func (p *psar) Sell(b model.Bar) bool {
	return b.Close < b.Columns["PSAR"] && b.Columns["CLOSE_PREV"] >= b.Columns["PSAR_PREV"]
}

type adx struct{}

func (*adx) Category() Category { return Trend }
func (*adx) Name() string       { return "ADX" }

func (a *adx) Compute(bars []model.Bar) error {
	const n = 14
	if len(bars) < n+1 {
		return errTooShort(a.Name(), n+1, len(bars))
	}
	plusDM := make([]float64, len(bars))
	minusDM := make([]float64, len(bars))
	for i := 1; i < len(bars); i++ {
		up := bars[i].High - bars[i-1].High
		down := bars[i-1].Low - bars[i].Low
		if up > down && up > 0 {
			plusDM[i] = up
		}
		if down > up && down > 0 {
			minusDM[i] = down
		}
	}
	trSmooth := ema(trueRange(bars), n)
	plusSmooth := ema(plusDM, n)
	minusSmooth := ema(minusDM, n)
	dmp := make([]float64, len(bars))
	dmn := make([]float64, len(bars))
	dx := make([]float64, len(bars))
	for i := range bars {
		if trSmooth[i] > 0 {
			dmp[i] = 100 * plusSmooth[i] / trSmooth[i]
			dmn[i] = 100 * minusSmooth[i] / trSmooth[i]
		}
		if sum := dmp[i] + dmn[i]; sum > 0 {
			dx[i] = 100 * math.Abs(dmp[i]-dmn[i]) / sum
		}
	}
	setWithPrev(bars, "ADX", ema(dx, n))
	setWithPrev(bars, "DMP", dmp)
	setWithPrev(bars, "DMN", dmn)
	return nil
}

func (a *adx) Buy(b model.Bar) bool {
	return b.Columns["ADX"] > 25 &&
		b.Columns["DMP"] > b.Columns["DMN"] &&
		b.Columns["DMP_PREV"] <= b.Columns["DMN_PREV"]
}

func (a *adx) Sell(b model.Bar) bool {
	return b.Columns["ADX"] > 25 &&
		b.Columns["DMN"] > b.Columns["DMP"] &&
		b.Columns["DMN_PREV"] <= b.Columns["DMP_PREV"]
}

// --- Overlap ---

type emaCross struct{}

func (*emaCross) Category() Category { return Overlap }
func (*emaCross) Name() string       { return "EMA" }

func (e *emaCross) Compute(bars []model.Bar) error {
	const slow = 21
	if len(bars) < slow+1 {
		return errTooShort(e.Name(), slow+1, len(bars))
	}
	cl := closes(bars)
	setWithPrev(bars, "EMA_FAST", ema(cl, 8))
	setWithPrev(bars, "EMA_SLOW", ema(cl, slow))
	return nil
}

func (e *emaCross) Buy(b model.Bar) bool {
	return b.Columns["EMA_FAST_PREV"] <= b.Columns["EMA_SLOW_PREV"] &&
		b.Columns["EMA_FAST"] > b.Columns["EMA_SLOW"]
}

func (e *emaCross) Sell(b model.Bar) bool {
	return b.Columns["EMA_FAST_PREV"] >= b.Columns["EMA_SLOW_PREV"] &&
		b.Columns["EMA_FAST"] < b.Columns["EMA_SLOW"]
}

type smaCross struct{}

func (*smaCross) Category() Category { return Overlap }
func (*smaCross) Name() string       { return "SMA" }

func (s *smaCross) Compute(bars []model.Bar) error {
	const slow = 30
	if len(bars) < slow+1 {
		return errTooShort(s.Name(), slow+1, len(bars))
	}
	cl := closes(bars)
	setWithPrev(bars, "SMA_FAST", sma(cl, 10))
	setWithPrev(bars, "SMA_SLOW", sma(cl, slow))
	return nil
}

func (s *smaCross) Buy(b model.Bar) bool {
	return b.Columns["SMA_FAST_PREV"] <= b.Columns["SMA_SLOW_PREV"] &&
		b.Columns["SMA_FAST"] > b.Columns["SMA_SLOW"]
}

func (s *smaCross) Sell(b model.Bar) bool {
	return b.Columns["SMA_FAST_PREV"] >= b.Columns["SMA_SLOW_PREV"] &&
		b.Columns["SMA_FAST"] < b.Columns["SMA_SLOW"]
}

// --- Momentum ---

// rsiIndicator reuses the baseline RSI column computed by Enrich.
type rsiIndicator struct{}

func (*rsiIndicator) Category() Category { return Momentum }
func (*rsiIndicator) Name() string       { return "RSI" }

func (r *rsiIndicator) Compute(bars []model.Bar) error {
	if len(bars) < 15 {
		return errTooShort(r.Name(), 15, len(bars))
	}
	for i := range bars {
		if i > 0 {
			bars[i].Columns["RSI_PREV"] = bars[i-1].Columns["RSI"]
		} else {
			bars[i].Columns["RSI_PREV"] = bars[i].Columns["RSI"]
		}
	}
	return nil
}

func (r *rsiIndicator) Buy(b model.Bar) bool {
	return crossedUp(b.Columns["RSI_PREV"], b.Columns["RSI"], 30)
}

func (r *rsiIndicator) Sell(b model.Bar) bool {
	return crossedDown(b.Columns["RSI_PREV"], b.Columns["RSI"], 70)
}

type stochastic struct{}

func (*stochastic) Category() Category { return Momentum }
func (*stochastic) Name() string       { return "STOCH" }

func (s *stochastic) Compute(bars []model.Bar) error {
	const n = 14
	if len(bars) < n+3 {
		return errTooShort(s.Name(), n+3, len(bars))
	}
	hh := highest(highs(bars), n)
	ll := lowest(lows(bars), n)
	k := make([]float64, len(bars))
	for i := range bars {
		if rng := hh[i] - ll[i]; rng > 0 {
			k[i] = 100 * (bars[i].Close - ll[i]) / rng
		} else {
			k[i] = 50
		}
	}
	setWithPrev(bars, "STOCH_K", k)
	setWithPrev(bars, "STOCH_D", sma(k, 3))
	return nil
}

func (s *stochastic) Buy(b model.Bar) bool {
	return b.Columns["STOCH_K"] < 25 &&
		b.Columns["STOCH_K_PREV"] <= b.Columns["STOCH_D_PREV"] &&
		b.Columns["STOCH_K"] > b.Columns["STOCH_D"]
}

func (s *stochastic) Sell(b model.Bar) bool {
	return b.Columns["STOCH_K"] > 75 &&
		b.Columns["STOCH_K_PREV"] >= b.Columns["STOCH_D_PREV"] &&
		b.Columns["STOCH_K"] < b.Columns["STOCH_D"]
}

type cci struct{}

func (*cci) Category() Category { return Momentum }
func (*cci) Name() string       { return "CCI" }

func (c *cci) Compute(bars []model.Bar) error {
	const n = 20
	if len(bars) < n {
		return errTooShort(c.Name(), n, len(bars))
	}
	tp := make([]float64, len(bars))
	for i := range bars {
		tp[i] = typicalPrice(bars[i])
	}
	mean := sma(tp, n)
	out := make([]float64, len(bars))
	for i := range bars {
		lo := i - n + 1
		if lo < 0 {
			lo = 0
		}
		var dev float64
		for j := lo; j <= i; j++ {
			dev += math.Abs(tp[j] - mean[i])
		}
		dev /= float64(i - lo + 1)
		if dev > 0 {
			out[i] = (tp[i] - mean[i]) / (0.015 * dev)
		}
	}
	setWithPrev(bars, "CCI", out)
	return nil
}

func (c *cci) Buy(b model.Bar) bool {
	return crossedUp(b.Columns["CCI_PREV"], b.Columns["CCI"], -100)
}

func (c *cci) Sell(b model.Bar) bool {
	return crossedDown(b.Columns["CCI_PREV"], b.Columns["CCI"], 100)
}
