package types

import (
	"fmt"
	"strings"
	"time"
)

// IndicatorKind names a technical indicator family.
type IndicatorKind string

const (
	IndicatorRSI        IndicatorKind = "rsi"
	IndicatorSMA        IndicatorKind = "sma"
	IndicatorVolatility IndicatorKind = "volatility"
	IndicatorPrice      IndicatorKind = "price"
)

// Valid reports whether the kind is one of the supported indicators.
func (k IndicatorKind) Valid() bool {
	switch k {
	case IndicatorRSI, IndicatorSMA, IndicatorVolatility, IndicatorPrice:
		return true
	default:
		return false
	}
}

// IndicatorRef identifies one indicator series: kind, symbol and lookback
// period. IndicatorPrice ignores the period and is stored with period 0.
type IndicatorRef struct {
	Symbol string        `json:"symbol"`
	Kind   IndicatorKind `json:"kind"`
	Period int           `json:"period"`
}

func (r IndicatorRef) String() string {
	if r.Kind == IndicatorPrice {
		return fmt.Sprintf("price(%s)", r.Symbol)
	}
	return fmt.Sprintf("%s(%s,%d)", r.Kind, r.Symbol, r.Period)
}

// Canonical normalizes symbol case and drops the period for price refs so
// that equivalent refs compare equal as map keys.
func (r IndicatorRef) Canonical() IndicatorRef {
	r.Symbol = strings.ToUpper(strings.TrimSpace(r.Symbol))
	if r.Kind == IndicatorPrice {
		r.Period = 0
	}
	return r
}

// IndicatorValue is one computed indicator reading.
type IndicatorValue struct {
	Ref   IndicatorRef `json:"ref"`
	Value float64      `json:"value"`
	AsOf  time.Time    `json:"as_of"`
}

// MarketSnapshot is the immutable per-cycle set of indicator readings. An
// indicator whose underlying bar series was too short is simply absent;
// lookups report availability explicitly so rules can fail closed.
type MarketSnapshot struct {
	asOf   time.Time
	values map[IndicatorRef]IndicatorValue
}

// NewMarketSnapshot copies the given readings into a snapshot.
func NewMarketSnapshot(asOf time.Time, values []IndicatorValue) MarketSnapshot {
	m := make(map[IndicatorRef]IndicatorValue, len(values))
	for _, v := range values {
		v.Ref = v.Ref.Canonical()
		if v.AsOf.IsZero() {
			v.AsOf = asOf
		}
		m[v.Ref] = v
	}
	return MarketSnapshot{asOf: asOf, values: m}
}

// AsOf returns the snapshot's logical timestamp.
func (s MarketSnapshot) AsOf() time.Time { return s.asOf }

// Len returns the number of available indicators.
func (s MarketSnapshot) Len() int { return len(s.values) }

// Lookup resolves a ref; ok is false when the indicator is unavailable.
func (s MarketSnapshot) Lookup(ref IndicatorRef) (IndicatorValue, bool) {
	v, ok := s.values[ref.Canonical()]
	return v, ok
}
