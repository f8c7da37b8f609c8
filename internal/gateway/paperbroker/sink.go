package paperbroker

import (
	"context"

	"ballast/internal/logger"
	"ballast/internal/types"
)

// LogSink logs each intent instead of routing it to an execution venue.
type LogSink struct{}

// Submit implements engine.IntentSink.
func (LogSink) Submit(_ context.Context, cycleID string, intents []types.TradeIntent) error {
	if len(intents) == 0 {
		logger.Infof("cycle %s: portfolio already on target, nothing to trade", cycleID)
		return nil
	}
	for _, intent := range intents {
		logger.Infof("cycle %s: %s %s qty=%.6f notional=%.2f",
			cycleID, intent.Side, intent.Symbol, intent.Quantity, intent.EstimatedNotional)
	}
	return nil
}
