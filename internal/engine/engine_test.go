package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"ballast/internal/ensemble"
	"ballast/internal/strategy"
	"ballast/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockSnapshots struct{ mock.Mock }

func (m *mockSnapshots) Snapshot(ctx context.Context, refs []types.IndicatorRef) (types.MarketSnapshot, error) {
	args := m.Called(ctx, refs)
	return args.Get(0).(types.MarketSnapshot), args.Error(1)
}

type mockBroker struct{ mock.Mock }

func (m *mockBroker) Account(ctx context.Context) (Account, error) {
	args := m.Called(ctx)
	return args.Get(0).(Account), args.Error(1)
}

type mockAssets struct{ mock.Mock }

func (m *mockAssets) Fractionability(ctx context.Context, symbols []string) (map[string]types.FractionabilityInfo, error) {
	args := m.Called(ctx, symbols)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]types.FractionabilityInfo), args.Error(1)
}

type mockSink struct{ mock.Mock }

func (m *mockSink) Submit(ctx context.Context, cycleID string, intents []types.TradeIntent) error {
	args := m.Called(ctx, cycleID, intents)
	return args.Error(0)
}

func rsiRef(symbol string, period int) types.IndicatorRef {
	return types.IndicatorRef{Symbol: symbol, Kind: types.IndicatorRSI, Period: period}
}

func mustStrategy(t *testing.T, name string, root strategy.RuleNode) *strategy.Strategy {
	t.Helper()
	s, err := strategy.NewStrategy(name, root)
	require.NoError(t, err)
	return s
}

// testRegistry holds a required hedger branching on SPY RSI and an optional
// carry leg branching on BIL RSI; "core" weights them 0.7/0.3.
func testRegistry(t *testing.T) *strategy.Registry {
	t.Helper()
	hedger := mustStrategy(t, "hedger", &strategy.Condition{
		Ref:       rsiRef("SPY", 14),
		Op:        strategy.OpGT,
		Threshold: 80,
		IfTrue:    &strategy.Leaf{Allocation: types.AllocationVector{"BIL": 1.0}},
		IfFalse:   &strategy.Leaf{Allocation: types.AllocationVector{"SPY": 1.0}},
	})
	carry := mustStrategy(t, "carry", &strategy.Condition{
		Ref:       rsiRef("BIL", 10),
		Op:        strategy.OpLT,
		Threshold: 50,
		IfTrue:    &strategy.Leaf{Allocation: types.AllocationVector{"BIL": 1.0}},
		IfFalse:   &strategy.Leaf{Allocation: types.AllocationVector{types.CashSymbol: 1.0}},
	})
	reg, err := strategy.NewRegistry(
		[]*strategy.Strategy{hedger, carry},
		[]strategy.EnsembleDef{{
			Name: "core",
			Members: []ensemble.Member{
				{Strategy: "hedger", Weight: 0.7, Required: true},
				{Strategy: "carry", Weight: 0.3},
			},
		}},
	)
	require.NoError(t, err)
	return reg
}

func fullSnapshot() types.MarketSnapshot {
	asOf := time.Date(2025, 6, 20, 20, 0, 0, 0, time.UTC)
	return types.NewMarketSnapshot(asOf, []types.IndicatorValue{
		{Ref: rsiRef("SPY", 14), Value: 45},
		{Ref: rsiRef("BIL", 10), Value: 40},
	})
}

func testAccount() Account {
	return Account{
		PortfolioValue: 10000,
		Positions:      []types.CurrentPosition{{Symbol: "SPY", Quantity: 4, MarketValue: 2000}},
		Prices:         map[string]float64{"SPY": 500, "BIL": 100},
	}
}

func fractionalInfo(symbols ...string) map[string]types.FractionabilityInfo {
	out := make(map[string]types.FractionabilityInfo, len(symbols))
	for _, sym := range symbols {
		out[sym] = types.FractionabilityInfo{Symbol: sym, AllowsFractional: true, MinNotional: 1.0}
	}
	return out
}

func TestNewValidatesCollaborators(t *testing.T) {
	reg := testRegistry(t)
	snaps := new(mockSnapshots)
	broker := new(mockBroker)
	assets := new(mockAssets)

	_, err := New(nil, "core", snaps, broker, assets, nil)
	assert.Error(t, err)

	_, err = New(reg, "core", nil, broker, assets, nil)
	assert.Error(t, err)

	_, err = New(reg, "missing", snaps, broker, assets, nil)
	assert.Error(t, err)

	// The sink is the only optional collaborator.
	_, err = New(reg, "core", snaps, broker, assets, nil)
	assert.NoError(t, err)
}

func TestRunCycleHappyPath(t *testing.T) {
	reg := testRegistry(t)
	snaps := new(mockSnapshots)
	broker := new(mockBroker)
	assets := new(mockAssets)
	sink := new(mockSink)

	snaps.On("Snapshot", mock.Anything, mock.Anything).Return(fullSnapshot(), nil)
	broker.On("Account", mock.Anything).Return(testAccount(), nil)
	assets.On("Fractionability", mock.Anything, []string{"BIL", "SPY"}).Return(fractionalInfo("SPY", "BIL"), nil)
	sink.On("Submit", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	e, err := New(reg, "core", snaps, broker, assets, sink)
	require.NoError(t, err)

	res, err := e.RunCycle(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, res.CycleID)
	assert.Empty(t, res.Skipped)
	assert.Nil(t, res.Warning)

	// 0.7 SPY + 0.3 BIL, applied to a $10k book holding $2k of SPY.
	assert.InDelta(t, 0.7, res.Combined["SPY"], 1e-12)
	assert.InDelta(t, 0.3, res.Combined["BIL"], 1e-12)
	require.Len(t, res.Intents, 2)
	assert.Equal(t, "SPY", res.Intents[0].Symbol)
	assert.Equal(t, types.SideBuy, res.Intents[0].Side)
	assert.InDelta(t, 5000, res.Intents[0].EstimatedNotional, 1e-9)
	assert.Equal(t, "BIL", res.Intents[1].Symbol)
	assert.InDelta(t, 3000, res.Intents[1].EstimatedNotional, 1e-9)

	sink.AssertCalled(t, "Submit", mock.Anything, res.CycleID, res.Intents)
}

func TestRunCycleSkipsOptionalOnMissingIndicator(t *testing.T) {
	reg := testRegistry(t)
	snaps := new(mockSnapshots)
	broker := new(mockBroker)
	assets := new(mockAssets)

	// The carry leg's indicator is missing; only the hedger can evaluate.
	asOf := time.Date(2025, 6, 20, 20, 0, 0, 0, time.UTC)
	partial := types.NewMarketSnapshot(asOf, []types.IndicatorValue{
		{Ref: rsiRef("SPY", 14), Value: 45},
	})
	snaps.On("Snapshot", mock.Anything, mock.Anything).Return(partial, nil)
	broker.On("Account", mock.Anything).Return(testAccount(), nil)
	assets.On("Fractionability", mock.Anything, mock.Anything).Return(fractionalInfo("SPY", "BIL"), nil)

	e, err := New(reg, "core", snaps, broker, assets, nil)
	require.NoError(t, err)

	res, err := e.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"carry"}, res.Skipped)

	// The survivor is reweighted to full weight.
	assert.InDelta(t, 1.0, res.Combined["SPY"], 1e-12)
}

func TestRunCycleFailsWhenRequiredStrategyCannotEvaluate(t *testing.T) {
	reg := testRegistry(t)
	snaps := new(mockSnapshots)
	broker := new(mockBroker)
	assets := new(mockAssets)
	sink := new(mockSink)

	// Only the optional leg's indicator is present.
	asOf := time.Date(2025, 6, 20, 20, 0, 0, 0, time.UTC)
	partial := types.NewMarketSnapshot(asOf, []types.IndicatorValue{
		{Ref: rsiRef("BIL", 10), Value: 40},
	})
	snaps.On("Snapshot", mock.Anything, mock.Anything).Return(partial, nil)

	e, err := New(reg, "core", snaps, broker, assets, sink)
	require.NoError(t, err)

	_, err = e.RunCycle(context.Background())
	require.Error(t, err)
	assert.True(t, strategy.IsIndicatorUnavailable(err))
	sink.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything, mock.Anything)
	broker.AssertNotCalled(t, "Account", mock.Anything)
}

func TestRunCycleSnapshotError(t *testing.T) {
	reg := testRegistry(t)
	snaps := new(mockSnapshots)
	broker := new(mockBroker)
	assets := new(mockAssets)

	snaps.On("Snapshot", mock.Anything, mock.Anything).Return(types.MarketSnapshot{}, errors.New("feed down"))

	e, err := New(reg, "core", snaps, broker, assets, nil)
	require.NoError(t, err)

	_, err = e.RunCycle(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "market snapshot")
}

func TestRunCycleAbandonedOnCancelledContext(t *testing.T) {
	reg := testRegistry(t)
	snaps := new(mockSnapshots)
	broker := new(mockBroker)
	assets := new(mockAssets)
	sink := new(mockSink)

	snaps.On("Snapshot", mock.Anything, mock.Anything).Return(fullSnapshot(), nil)
	broker.On("Account", mock.Anything).Return(testAccount(), nil)
	assets.On("Fractionability", mock.Anything, mock.Anything).Return(fractionalInfo("SPY", "BIL"), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e, err := New(reg, "core", snaps, broker, assets, sink)
	require.NoError(t, err)

	_, err = e.RunCycle(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	sink.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything, mock.Anything)
}

func TestRunCycleSinkErrorSurfaces(t *testing.T) {
	reg := testRegistry(t)
	snaps := new(mockSnapshots)
	broker := new(mockBroker)
	assets := new(mockAssets)
	sink := new(mockSink)

	snaps.On("Snapshot", mock.Anything, mock.Anything).Return(fullSnapshot(), nil)
	broker.On("Account", mock.Anything).Return(testAccount(), nil)
	assets.On("Fractionability", mock.Anything, mock.Anything).Return(fractionalInfo("SPY", "BIL"), nil)
	sink.On("Submit", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("handoff refused"))

	e, err := New(reg, "core", snaps, broker, assets, sink)
	require.NoError(t, err)

	_, err = e.RunCycle(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "intent handoff")
}
