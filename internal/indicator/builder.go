package indicator

import (
	"time"

	"ballast/internal/logger"
	"ballast/internal/market"
	"ballast/internal/types"
)

// BuildSnapshot computes every requested indicator from the per-symbol bar
// series and assembles an immutable snapshot. Indicators whose series is
// missing or too short are left out rather than guessed.
func BuildSnapshot(asOf time.Time, candles map[string][]market.Candle, refs []types.IndicatorRef) types.MarketSnapshot {
	values := make([]types.IndicatorValue, 0, len(refs))
	for _, ref := range refs {
		ref = ref.Canonical()
		series, ok := candles[ref.Symbol]
		if !ok {
			logger.Debugf("indicator %s unavailable: no bars for symbol", ref)
			continue
		}
		val, ok := Compute(ref, series)
		if !ok {
			logger.Debugf("indicator %s unavailable: %d bars", ref, len(series))
			continue
		}
		values = append(values, val)
	}
	return types.NewMarketSnapshot(asOf, values)
}
