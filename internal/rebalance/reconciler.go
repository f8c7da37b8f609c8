package rebalance

import (
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"ballast/internal/types"
)

var (
	// ErrPortfolioValue rejects a non-positive portfolio value.
	ErrPortfolioValue = errors.New("portfolio value invalid")
	// ErrUnknownFractionability rejects a tradeable symbol with no asset
	// metadata.
	ErrUnknownFractionability = errors.New("unknown fractionability")
	// ErrPriceUnavailable rejects a tradeable symbol with no usable last
	// price.
	ErrPriceUnavailable = errors.New("price unavailable")
)

// Reconcile diffs the combined target allocation against current holdings
// and emits the minimal ordered trade list. Prices are the last-known marks
// supplied alongside the positions. The function is pure: identical inputs
// produce an identical, order-stable intent sequence.
func Reconcile(
	target types.AllocationVector,
	positions []types.CurrentPosition,
	prices map[string]float64,
	portfolioValue float64,
	fractionability map[string]types.FractionabilityInfo,
) ([]types.TradeIntent, error) {
	if portfolioValue <= 0 {
		return nil, fmt.Errorf("%w: %v", ErrPortfolioValue, portfolioValue)
	}
	if err := target.Validate(); err != nil {
		return nil, fmt.Errorf("target allocation: %w", err)
	}

	value := decimal.NewFromFloat(portfolioValue)
	current := make(map[string]decimal.Decimal, len(positions))
	for _, pos := range positions {
		if pos.Symbol == "" || pos.Symbol == types.CashSymbol {
			continue
		}
		current[pos.Symbol] = current[pos.Symbol].Add(decimal.NewFromFloat(pos.MarketValue))
	}

	// Union of targeted and held symbols; a held symbol missing from the
	// target carries an implicit zero weight (full liquidation). The cash
	// symbol is residual and never traded.
	symbols := make([]string, 0, len(target)+len(current))
	seen := make(map[string]bool, len(target)+len(current))
	for sym := range target {
		if sym != types.CashSymbol {
			seen[sym] = true
			symbols = append(symbols, sym)
		}
	}
	for sym := range current {
		if !seen[sym] {
			seen[sym] = true
			symbols = append(symbols, sym)
		}
	}
	sort.Strings(symbols)

	intents := make([]types.TradeIntent, 0, len(symbols))
	for _, sym := range symbols {
		targetValue := decimal.NewFromFloat(target[sym]).Mul(value)
		delta := targetValue.Sub(current[sym])
		if delta.IsZero() {
			continue
		}
		info, ok := fractionability[sym]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownFractionability, sym)
		}
		price, ok := prices[sym]
		if !ok || price <= 0 {
			return nil, fmt.Errorf("%w: %s", ErrPriceUnavailable, sym)
		}
		priceDec := decimal.NewFromFloat(price)
		quantity := delta.Div(priceDec)
		if !info.AllowsFractional {
			// Round toward zero to the nearest whole share.
			quantity = quantity.Truncate(0)
		}
		if quantity.IsZero() {
			continue
		}
		notional := quantity.Abs().Mul(priceDec)
		// Deltas too small to execute are dropped by policy, not errored.
		if notional.LessThan(decimal.NewFromFloat(info.MinNotional)) {
			continue
		}
		side := types.SideBuy
		if quantity.IsNegative() {
			side = types.SideSell
		}
		qty, _ := quantity.Abs().Float64()
		est, _ := notional.Float64()
		intents = append(intents, types.TradeIntent{
			Symbol:            sym,
			Side:              side,
			Quantity:          qty,
			EstimatedNotional: est,
		})
	}

	// SELLs first so freed buying power funds the BUYs, then descending
	// notional; the symbol sort above makes exact-notional ties stable.
	sort.SliceStable(intents, func(i, j int) bool {
		if intents[i].Side != intents[j].Side {
			return intents[i].Side == types.SideSell
		}
		return intents[i].EstimatedNotional > intents[j].EstimatedNotional
	})
	return intents, nil
}
