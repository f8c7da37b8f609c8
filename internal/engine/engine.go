package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"ballast/internal/ensemble"
	"ballast/internal/logger"
	"ballast/internal/metrics"
	"ballast/internal/rebalance"
	"ballast/internal/strategy"
	"ballast/internal/types"
)

// SnapshotProvider supplies one MarketSnapshot per cycle, covering every
// indicator the registry references (or explicitly leaving it out).
type SnapshotProvider interface {
	Snapshot(ctx context.Context, refs []types.IndicatorRef) (types.MarketSnapshot, error)
}

// Account is the broker state at the start of a cycle. Prices are last-known
// marks for every symbol the portfolio may touch.
type Account struct {
	PortfolioValue float64
	Positions      []types.CurrentPosition
	Prices         map[string]float64
}

// AccountProvider supplies positions and portfolio value from the broker.
type AccountProvider interface {
	Account(ctx context.Context) (Account, error)
}

// AssetMetadata supplies fractionability info per symbol.
type AssetMetadata interface {
	Fractionability(ctx context.Context, symbols []string) (map[string]types.FractionabilityInfo, error)
}

// IntentSink receives the finished trade list. Fire-and-forget: the engine
// consumes no execution feedback.
type IntentSink interface {
	Submit(ctx context.Context, cycleID string, intents []types.TradeIntent) error
}

const defaultParallelism = 4

// Engine runs the strategy fan-out, ensemble combination and reconciliation
// for one named ensemble.
type Engine struct {
	registry     *strategy.Registry
	ensembleName string
	snapshots    SnapshotProvider
	broker       AccountProvider
	assets       AssetMetadata
	sink         IntentSink
	metrics      *metrics.Metrics
	parallelism  int
}

// Option tweaks engine construction.
type Option func(*Engine)

// WithMetrics attaches instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithParallelism bounds concurrent strategy evaluations per cycle.
func WithParallelism(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.parallelism = n
		}
	}
}

// New wires an engine. All collaborators are required except the sink, which
// may be nil when the caller only wants the computed intents.
func New(reg *strategy.Registry, ensembleName string, snapshots SnapshotProvider, broker AccountProvider, assets AssetMetadata, sink IntentSink, opts ...Option) (*Engine, error) {
	if reg == nil {
		return nil, fmt.Errorf("engine requires a strategy registry")
	}
	if snapshots == nil || broker == nil || assets == nil {
		return nil, fmt.Errorf("engine requires snapshot, broker and asset metadata collaborators")
	}
	if _, err := reg.Ensemble(ensembleName); err != nil {
		return nil, err
	}
	e := &Engine{
		registry:     reg,
		ensembleName: ensembleName,
		snapshots:    snapshots,
		broker:       broker,
		assets:       assets,
		sink:         sink,
		parallelism:  defaultParallelism,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// CycleResult is the outcome of one completed rebalance cycle.
type CycleResult struct {
	CycleID  string
	Combined types.AllocationVector
	Intents  []types.TradeIntent
	Skipped  []string
	Warning  *ensemble.PrecisionWarning
	Elapsed  time.Duration
}

// RunCycle executes one full pass: snapshot, parallel strategy evaluation
// with a fan-in barrier, combination, reconciliation, handoff. Any error
// leaves current positions untouched; a cancelled context abandons the cycle
// before the sink sees anything.
func (e *Engine) RunCycle(ctx context.Context) (CycleResult, error) {
	started := time.Now()
	cycleID := uuid.NewString()
	e.metrics.CycleStarted()

	res, err := e.runCycle(ctx, cycleID)
	if err != nil {
		e.metrics.CycleFailed()
		return CycleResult{CycleID: cycleID}, fmt.Errorf("cycle %s: %w", cycleID, err)
	}
	res.CycleID = cycleID
	res.Elapsed = time.Since(started)
	e.metrics.ObserveCycleDuration(res.Elapsed.Seconds())
	e.metrics.IntentsEmitted(len(res.Intents))
	logger.Infof("cycle %s: %d intents, %d strategies skipped, elapsed=%s",
		cycleID, len(res.Intents), len(res.Skipped), res.Elapsed.Round(time.Millisecond))
	return res, nil
}

func (e *Engine) runCycle(ctx context.Context, cycleID string) (CycleResult, error) {
	def, err := e.registry.Ensemble(e.ensembleName)
	if err != nil {
		return CycleResult{}, err
	}
	snap, err := e.snapshots.Snapshot(ctx, e.registry.IndicatorRefs())
	if err != nil {
		return CycleResult{}, fmt.Errorf("market snapshot: %w", err)
	}

	perStrategy, skipped, err := e.evaluateMembers(ctx, def.Members, snap)
	if err != nil {
		return CycleResult{}, err
	}
	members := def.Members
	if len(skipped) > 0 {
		dropped := make(map[string]bool, len(skipped))
		for _, name := range skipped {
			dropped[name] = true
		}
		members, err = ensemble.Reweight(members, dropped)
		if err != nil {
			return CycleResult{}, err
		}
	}

	combined, warning, err := ensemble.Combine(members, perStrategy)
	if err != nil {
		return CycleResult{}, err
	}
	if warning != nil {
		e.metrics.PrecisionRenormalized()
		logger.Warnf("cycle %s: %s", cycleID, warning)
	}

	account, err := e.broker.Account(ctx)
	if err != nil {
		return CycleResult{}, fmt.Errorf("broker account: %w", err)
	}
	fractionability, err := e.assets.Fractionability(ctx, tradeableSymbols(combined, account.Positions))
	if err != nil {
		return CycleResult{}, fmt.Errorf("asset metadata: %w", err)
	}
	intents, err := rebalance.Reconcile(combined, account.Positions, account.Prices, account.PortfolioValue, fractionability)
	if err != nil {
		return CycleResult{}, err
	}

	// The cycle commits only here; cancellation up to this point discards
	// everything wholesale.
	if err := ctx.Err(); err != nil {
		return CycleResult{}, err
	}
	if e.sink != nil {
		if err := e.sink.Submit(ctx, cycleID, intents); err != nil {
			return CycleResult{}, fmt.Errorf("intent handoff: %w", err)
		}
	}
	return CycleResult{Combined: combined, Intents: intents, Skipped: skipped, Warning: warning}, nil
}

// evaluateMembers fans out the member strategies over the same immutable
// snapshot and waits for all of them before combining. A failed required
// member aborts the cycle; optional failures are collected as skips.
func (e *Engine) evaluateMembers(ctx context.Context, members []ensemble.Member, snap types.MarketSnapshot) (map[string]types.AllocationVector, []string, error) {
	var mu sync.Mutex
	perStrategy := make(map[string]types.AllocationVector, len(members))
	var skipped []string

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(e.parallelism)
	for _, m := range ensemble.SortMembers(members) {
		m := m
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			s, err := e.registry.Get(m.Strategy)
			if err != nil {
				return err
			}
			alloc, err := s.Evaluate(snap)
			if err != nil {
				e.metrics.StrategyFailed(m.Strategy)
				if !m.Required && strategy.IsIndicatorUnavailable(err) {
					logger.Warnf("optional strategy skipped: %v", err)
					mu.Lock()
					skipped = append(skipped, m.Strategy)
					mu.Unlock()
					return nil
				}
				return err
			}
			mu.Lock()
			perStrategy[m.Strategy] = alloc
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, nil, err
	}
	sort.Strings(skipped)
	return perStrategy, skipped, nil
}

func tradeableSymbols(target types.AllocationVector, positions []types.CurrentPosition) []string {
	seen := make(map[string]bool, len(target)+len(positions))
	var out []string
	for _, sym := range target.Symbols() {
		if sym == types.CashSymbol {
			continue
		}
		if !seen[sym] {
			seen[sym] = true
			out = append(out, sym)
		}
	}
	for _, pos := range positions {
		if pos.Symbol == "" || pos.Symbol == types.CashSymbol {
			continue
		}
		if !seen[pos.Symbol] {
			seen[pos.Symbol] = true
			out = append(out, pos.Symbol)
		}
	}
	return out
}
