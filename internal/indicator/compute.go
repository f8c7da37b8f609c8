package indicator

import (
	"math"
	"time"

	talib "github.com/markcheno/go-talib"

	"ballast/internal/market"
	"ballast/internal/types"
)

// TradingDaysPerYear annualizes realized volatility computed on daily bars.
const TradingDaysPerYear = 252

// Compute evaluates one indicator over a bar series. ok is false when the
// series is too short for the requested period; the caller must then leave
// the indicator out of the snapshot so rules referencing it fail closed.
func Compute(ref types.IndicatorRef, candles []market.Candle) (types.IndicatorValue, bool) {
	ref = ref.Canonical()
	closes := market.Closes(candles)
	var value float64
	switch ref.Kind {
	case types.IndicatorPrice:
		if len(closes) < 1 {
			return types.IndicatorValue{}, false
		}
		value = closes[len(closes)-1]
	case types.IndicatorSMA:
		if ref.Period <= 0 || len(closes) < ref.Period {
			return types.IndicatorValue{}, false
		}
		series := talib.Sma(closes, ref.Period)
		value = series[len(series)-1]
	case types.IndicatorRSI:
		// Wilder RSI needs one extra bar to seed the first gain/loss.
		if ref.Period <= 0 || len(closes) < ref.Period+1 {
			return types.IndicatorValue{}, false
		}
		series := talib.Rsi(closes, ref.Period)
		value = series[len(series)-1]
	case types.IndicatorVolatility:
		if ref.Period <= 0 || len(closes) < ref.Period+1 {
			return types.IndicatorValue{}, false
		}
		returns := logReturns(closes)
		series := talib.StdDev(returns, ref.Period, 1)
		value = series[len(series)-1] * math.Sqrt(TradingDaysPerYear)
	default:
		return types.IndicatorValue{}, false
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return types.IndicatorValue{}, false
	}
	asOf := time.Time{}
	if n := len(candles); n > 0 {
		asOf = time.UnixMilli(candles[n-1].CloseTime).UTC()
	}
	return types.IndicatorValue{Ref: ref, Value: value, AsOf: asOf}, true
}

func logReturns(closes []float64) []float64 {
	if len(closes) < 2 {
		return nil
	}
	out := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		prev, cur := closes[i-1], closes[i]
		if prev <= 0 || cur <= 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, math.Log(cur/prev))
	}
	return out
}
