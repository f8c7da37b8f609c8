package paperbroker

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"ballast/internal/indicator"
	"ballast/internal/market"
	"ballast/internal/types"
)

// MarketFile builds market snapshots from a per-symbol candle dump, standing
// in for the live market data collaborator.
type MarketFile struct {
	candlesPath string
}

// NewMarketFile points at the candle dump file.
func NewMarketFile(candlesPath string) (*MarketFile, error) {
	if strings.TrimSpace(candlesPath) == "" {
		return nil, fmt.Errorf("market file source requires a candles path")
	}
	return &MarketFile{candlesPath: candlesPath}, nil
}

// Snapshot implements engine.SnapshotProvider: every requested indicator is
// computed from the dumped bars or left out when the series is too short.
func (m *MarketFile) Snapshot(ctx context.Context, refs []types.IndicatorRef) (types.MarketSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return types.MarketSnapshot{}, err
	}
	raw, err := os.ReadFile(m.candlesPath)
	if err != nil {
		return types.MarketSnapshot{}, fmt.Errorf("read candle dump failed: %w", err)
	}
	var bySymbol map[string][]market.Candle
	if err := json.Unmarshal(raw, &bySymbol); err != nil {
		return types.MarketSnapshot{}, fmt.Errorf("parse candle dump failed: %w", err)
	}
	normalized := make(map[string][]market.Candle, len(bySymbol))
	for sym, candles := range bySymbol {
		normalized[normalizeSymbol(sym)] = candles
	}
	return indicator.BuildSnapshot(time.Now().UTC(), normalized, refs), nil
}
