package types

// CurrentPosition is one broker holding at the start of a rebalance cycle.
// Read-only input to reconciliation.
type CurrentPosition struct {
	Symbol      string  `json:"symbol"`
	Quantity    float64 `json:"quantity"`
	MarketValue float64 `json:"market_value"`
}

// FractionabilityInfo is per-symbol order sizing metadata from the asset
// metadata collaborator.
type FractionabilityInfo struct {
	Symbol           string  `json:"symbol"`
	AllowsFractional bool    `json:"allows_fractional"`
	MinNotional      float64 `json:"min_notional"`
}

// Side is the direction of a trade intent.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// TradeIntent is one executable order produced by reconciliation. Quantity
// is always positive; Side carries the direction.
type TradeIntent struct {
	Symbol            string  `json:"symbol"`
	Side              Side    `json:"side"`
	Quantity          float64 `json:"quantity"`
	EstimatedNotional float64 `json:"estimated_notional"`
}
