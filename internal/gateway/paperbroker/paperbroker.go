// Package paperbroker adapts local account and market dump files into the
// engine's collaborator interfaces so a full rebalance cycle can run without
// a live broker connection.
package paperbroker

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/tidwall/gjson"

	"ballast/internal/engine"
	"ballast/internal/types"
)

// Broker reads a broker account dump (JSON) on every cycle. Brokers disagree
// on envelope fields, so the dump is read tolerantly with gjson: unknown
// fields are ignored, missing ones default.
type Broker struct {
	accountPath string
}

// NewBroker points at the account dump file.
func NewBroker(accountPath string) (*Broker, error) {
	if strings.TrimSpace(accountPath) == "" {
		return nil, fmt.Errorf("paper broker requires an account file path")
	}
	return &Broker{accountPath: accountPath}, nil
}

// Account implements engine.AccountProvider.
func (b *Broker) Account(ctx context.Context) (engine.Account, error) {
	if err := ctx.Err(); err != nil {
		return engine.Account{}, err
	}
	raw, err := os.ReadFile(b.accountPath)
	if err != nil {
		return engine.Account{}, fmt.Errorf("read account dump failed: %w", err)
	}
	doc := gjson.ParseBytes(raw)
	acct := engine.Account{
		PortfolioValue: doc.Get("portfolio_value").Float(),
		Prices:         make(map[string]float64),
	}
	doc.Get("positions").ForEach(func(_, pos gjson.Result) bool {
		sym := normalizeSymbol(pos.Get("symbol").String())
		if sym == "" {
			return true
		}
		qty := pos.Get("quantity").Float()
		if qty == 0 {
			qty = pos.Get("qty").Float()
		}
		acct.Positions = append(acct.Positions, types.CurrentPosition{
			Symbol:      sym,
			Quantity:    qty,
			MarketValue: pos.Get("market_value").Float(),
		})
		return true
	})
	doc.Get("prices").ForEach(func(key, val gjson.Result) bool {
		sym := normalizeSymbol(key.String())
		if sym != "" && val.Float() > 0 {
			acct.Prices[sym] = val.Float()
		}
		return true
	})
	return acct, nil
}

// Fractionability implements engine.AssetMetadata from the same dump's
// assets section.
func (b *Broker) Fractionability(ctx context.Context, symbols []string) (map[string]types.FractionabilityInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(b.accountPath)
	if err != nil {
		return nil, fmt.Errorf("read account dump failed: %w", err)
	}
	all := make(map[string]types.FractionabilityInfo)
	gjson.ParseBytes(raw).Get("assets").ForEach(func(_, asset gjson.Result) bool {
		sym := normalizeSymbol(asset.Get("symbol").String())
		if sym == "" {
			return true
		}
		all[sym] = types.FractionabilityInfo{
			Symbol:           sym,
			AllowsFractional: asset.Get("fractionable").Bool(),
			MinNotional:      asset.Get("min_notional").Float(),
		}
		return true
	})
	out := make(map[string]types.FractionabilityInfo, len(symbols))
	for _, sym := range symbols {
		sym = normalizeSymbol(sym)
		if info, ok := all[sym]; ok {
			out[sym] = info
		}
	}
	return out, nil
}

func normalizeSymbol(sym string) string {
	return strings.ToUpper(strings.TrimSpace(sym))
}
