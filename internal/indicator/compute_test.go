package indicator

import (
	"testing"
	"time"

	"ballast/internal/market"
	"ballast/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func candlesFromCloses(closes ...float64) []market.Candle {
	base := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	out := make([]market.Candle, len(closes))
	for i, c := range closes {
		open := base.Add(time.Duration(i) * 24 * time.Hour)
		out[i] = market.Candle{
			OpenTime:  open.UnixMilli(),
			CloseTime: open.Add(24*time.Hour - time.Millisecond).UnixMilli(),
			Open:      c,
			High:      c,
			Low:       c,
			Close:     c,
			Volume:    1000,
		}
	}
	return out
}

func TestComputeSMA(t *testing.T) {
	ref := types.IndicatorRef{Symbol: "SPY", Kind: types.IndicatorSMA, Period: 5}
	val, ok := Compute(ref, candlesFromCloses(1, 2, 3, 4, 5))
	require.True(t, ok)
	assert.InDelta(t, 3.0, val.Value, 1e-9)
	assert.Equal(t, ref, val.Ref)
	assert.False(t, val.AsOf.IsZero())

	// One bar short of the period is unavailable.
	_, ok = Compute(ref, candlesFromCloses(1, 2, 3, 4))
	assert.False(t, ok)
}

func TestComputePriceUsesLastClose(t *testing.T) {
	ref := types.IndicatorRef{Symbol: "SPY", Kind: types.IndicatorPrice, Period: 14}
	val, ok := Compute(ref, candlesFromCloses(500, 510, 523.99))
	require.True(t, ok)
	assert.Equal(t, 523.99, val.Value)
	// Price refs normalize away the period.
	assert.Equal(t, 0, val.Ref.Period)

	_, ok = Compute(ref, nil)
	assert.False(t, ok)
}

func TestComputeRSINeedsSeedBar(t *testing.T) {
	ref := types.IndicatorRef{Symbol: "SPY", Kind: types.IndicatorRSI, Period: 5}

	// Exactly period bars cannot seed the first gain/loss average.
	_, ok := Compute(ref, candlesFromCloses(1, 2, 3, 4, 5))
	assert.False(t, ok)

	// A strictly rising series has no losses, so RSI saturates at 100.
	val, ok := Compute(ref, candlesFromCloses(1, 2, 3, 4, 5, 6))
	require.True(t, ok)
	assert.InDelta(t, 100.0, val.Value, 1e-6)
}

func TestComputeVolatilityOfFlatSeries(t *testing.T) {
	ref := types.IndicatorRef{Symbol: "SPY", Kind: types.IndicatorVolatility, Period: 5}

	_, ok := Compute(ref, candlesFromCloses(100, 100, 100, 100, 100))
	assert.False(t, ok)

	// Constant closes have zero realized volatility.
	val, ok := Compute(ref, candlesFromCloses(100, 100, 100, 100, 100, 100))
	require.True(t, ok)
	assert.InDelta(t, 0.0, val.Value, 1e-12)
}

func TestComputeRejectsBadRefs(t *testing.T) {
	candles := candlesFromCloses(1, 2, 3)

	_, ok := Compute(types.IndicatorRef{Symbol: "SPY", Kind: "macd", Period: 14}, candles)
	assert.False(t, ok)

	_, ok = Compute(types.IndicatorRef{Symbol: "SPY", Kind: types.IndicatorSMA, Period: 0}, candles)
	assert.False(t, ok)
}

func TestBuildSnapshotLeavesOutUnavailable(t *testing.T) {
	asOf := time.Date(2025, 6, 20, 20, 0, 0, 0, time.UTC)
	candles := map[string][]market.Candle{
		"SPY": candlesFromCloses(1, 2, 3, 4, 5),
	}
	refs := []types.IndicatorRef{
		{Symbol: "SPY", Kind: types.IndicatorSMA, Period: 5},
		{Symbol: "SPY", Kind: types.IndicatorSMA, Period: 10},
		{Symbol: "QQQ", Kind: types.IndicatorPrice},
	}

	snap := BuildSnapshot(asOf, candles, refs)
	assert.Equal(t, 1, snap.Len())

	_, ok := snap.Lookup(refs[0])
	assert.True(t, ok)
	_, ok = snap.Lookup(refs[1])
	assert.False(t, ok)
	_, ok = snap.Lookup(refs[2])
	assert.False(t, ok)
	assert.Equal(t, asOf, snap.AsOf())
}
