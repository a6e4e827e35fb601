package indicators

import "math"

// Bar is one OHLC candle, the unit the volatility math works on.
type Bar struct {
	OpenTimeMs int64
	Open       float64
	High       float64
	Low        float64
	Close      float64
}

// TrueRange returns the range of a bar extended to cover any gap from
// the previous close.
func TrueRange(high, low, prevClose float64) float64 {
	return math.Max(high-low, math.Max(math.Abs(high-prevClose), math.Abs(low-prevClose)))
}

// ATR returns the Average True Range over the last period bars as a
// simple mean. ok is false when fewer than period+1 usable bars are
// available, which callers surface as an absent value rather than zero.
func ATR(bars []Bar, period int) (float64, bool) {
	trs := trueRanges(bars)
	if period <= 0 || len(trs) < period {
		return 0, false
	}
	return average(trs[len(trs)-period:]), true
}

// ATRWilder returns the smoothed Average True Range: seeded with the
// simple mean of the first period true ranges, then
// atr = (prev*(period-1) + tr) / period for each later bar.
func ATRWilder(bars []Bar, period int) (float64, bool) {
	trs := trueRanges(bars)
	if period <= 0 || len(trs) < period {
		return 0, false
	}

	atr := average(trs[:period])
	for i := period; i < len(trs); i++ {
		atr = (atr*float64(period-1) + trs[i]) / float64(period)
	}
	return atr, true
}

// Bands returns reference +/- multiplier*atr.
func Bands(reference, atr, multiplier float64) (upper, lower float64) {
	offset := multiplier * atr
	return reference + offset, reference - offset
}

// trueRanges extracts the true-range series. Bars carrying non-finite
// values are skipped entirely; the finite bars on either side pair up
// for the previous-close link, so one bad candle cannot poison the
// average.
func trueRanges(bars []Bar) []float64 {
	trs := make([]float64, 0, len(bars))
	prevClose := math.NaN()
	for _, b := range bars {
		if !finite(b.High) || !finite(b.Low) || !finite(b.Close) {
			continue
		}
		if !math.IsNaN(prevClose) {
			trs = append(trs, TrueRange(b.High, b.Low, prevClose))
		}
		prevClose = b.Close
	}
	return trs
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func average(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
