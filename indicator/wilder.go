package indicator

import (
	"math"

	"github.com/evdnx/trendsweep/types"
)

// trueRange uses high-low for the first bar, which has no previous close.
func trueRange(bars []types.Bar) []float64 {
	tr := make([]float64, len(bars))
	for i, b := range bars {
		if i == 0 {
			tr[i] = b.High - b.Low
			continue
		}
		pc := bars[i-1].Close
		tr[i] = math.Max(b.High-b.Low, math.Max(math.Abs(b.High-pc), math.Abs(b.Low-pc)))
	}
	return tr
}

// rma is Wilder's moving average seeded with the simple mean of the first
// period values of src[from:]. Output before the seed is NaN.
func rma(src []float64, period, from int) []float64 {
	out := nanSlice(len(src))
	seed := from + period - 1
	if period <= 0 || seed >= len(src) {
		return out
	}
	sum := 0.0
	for i := from; i <= seed; i++ {
		sum += src[i]
	}
	avg := sum / float64(period)
	out[seed] = avg
	for i := seed + 1; i < len(src); i++ {
		avg = (avg*float64(period-1) + src[i]) / float64(period)
		out[i] = avg
	}
	return out
}

// ATR returns the Wilder average true range.
func ATR(bars []types.Bar, period int) []float64 {
	return rma(trueRange(bars), period, 0)
}

// SuperTrend returns the trend direction per bar: +1 up, -1 down, 0 while
// the ATR is warming up.
func SuperTrend(bars []types.Bar, period int, multiplier float64) []int {
	n := len(bars)
	dir := make([]int, n)
	atr := ATR(bars, period)
	upper := make([]float64, n)
	lower := make([]float64, n)
	start := period - 1
	if start < 0 || start >= n {
		return dir
	}
	for i := start; i < n; i++ {
		hl2 := (bars[i].High + bars[i].Low) / 2
		upper[i] = hl2 + multiplier*atr[i]
		lower[i] = hl2 - multiplier*atr[i]
	}
	dir[start] = 1
	for i := start + 1; i < n; i++ {
		c := bars[i].Close
		switch {
		case c > upper[i-1]:
			dir[i] = 1
		case c < lower[i-1]:
			dir[i] = -1
		default:
			dir[i] = dir[i-1]
			if dir[i] > 0 && lower[i] < lower[i-1] {
				lower[i] = lower[i-1]
			}
			if dir[i] < 0 && upper[i] > upper[i-1] {
				upper[i] = upper[i-1]
			}
		}
	}
	// the seed bar has no previous band to compare against
	dir[start] = 0
	return dir
}

// ADX returns Wilder's average directional index. The first defined value
// is at index 2*period-1.
func ADX(bars []types.Bar, period int) []float64 {
	n := len(bars)
	out := nanSlice(n)
	if period <= 0 || n < 2*period {
		return out
	}
	tr := trueRange(bars)
	plusDM := make([]float64, n)
	minusDM := make([]float64, n)
	for i := 1; i < n; i++ {
		up := bars[i].High - bars[i-1].High
		down := bars[i-1].Low - bars[i].Low
		if up > down && up > 0 {
			plusDM[i] = up
		}
		if down > up && down > 0 {
			minusDM[i] = down
		}
	}
	sTR := rma(tr, period, 1)
	sPlus := rma(plusDM, period, 1)
	sMinus := rma(minusDM, period, 1)

	dx := nanSlice(n)
	for i := period; i < n; i++ {
		if sTR[i] == 0 || math.IsNaN(sTR[i]) {
			dx[i] = 0
			continue
		}
		pdi := 100 * sPlus[i] / sTR[i]
		mdi := 100 * sMinus[i] / sTR[i]
		if sum := pdi + mdi; sum > 0 {
			dx[i] = 100 * math.Abs(pdi-mdi) / sum
		} else {
			dx[i] = 0
		}
	}
	adx := rma(dx, period, period)
	copy(out, adx)
	return out
}
