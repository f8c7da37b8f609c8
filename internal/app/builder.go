package app

import (
	"context"
	"fmt"

	"ballast/internal/config"
	"ballast/internal/engine"
	"ballast/internal/gateway/paperbroker"
	"ballast/internal/metrics"
	"ballast/internal/strategy"
)

// AppBuilder assembles the engine and its collaborators from config. The
// provider funcs are swappable so tests can substitute fakes without a
// broker dump on disk.
type AppBuilder struct {
	cfg *config.Config

	registryFn func(config.StrategiesConfig) (*strategy.Registry, error)
	marketFn   func(config.BrokerConfig) (engine.SnapshotProvider, error)
	brokerFn   func(config.BrokerConfig) (engine.AccountProvider, engine.AssetMetadata, error)

	sinkOverride    engine.IntentSink
	metricsOverride *metrics.Metrics
}

// AppBuilderOption overrides part of the default assembly.
type AppBuilderOption func(*AppBuilder)

// WithIntentSink replaces the logging sink.
func WithIntentSink(sink engine.IntentSink) AppBuilderOption {
	return func(b *AppBuilder) { b.sinkOverride = sink }
}

// WithMetrics replaces the default metrics set.
func WithMetrics(m *metrics.Metrics) AppBuilderOption {
	return func(b *AppBuilder) { b.metricsOverride = m }
}

// WithMarketProvider replaces the candle-file snapshot source.
func WithMarketProvider(fn func(config.BrokerConfig) (engine.SnapshotProvider, error)) AppBuilderOption {
	return func(b *AppBuilder) { b.marketFn = fn }
}

// WithBrokerProvider replaces the account-dump broker.
func WithBrokerProvider(fn func(config.BrokerConfig) (engine.AccountProvider, engine.AssetMetadata, error)) AppBuilderOption {
	return func(b *AppBuilder) { b.brokerFn = fn }
}

// NewAppBuilder seeds the default providers.
func NewAppBuilder(cfg *config.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:        cfg,
		registryFn: buildRegistry,
		marketFn:   buildMarketProvider,
		brokerFn:   buildBroker,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build wires the whole application graph.
func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	if b.cfg == nil {
		return nil, fmt.Errorf("app builder requires config")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	reg, err := b.registryFn(b.cfg.Strategies)
	if err != nil {
		return nil, err
	}
	snapshots, err := b.marketFn(b.cfg.Broker)
	if err != nil {
		return nil, err
	}
	broker, assets, err := b.brokerFn(b.cfg.Broker)
	if err != nil {
		return nil, err
	}
	m := b.metricsOverride
	if m == nil {
		m = metrics.New()
	}
	sink := b.sinkOverride
	if sink == nil {
		sink = paperbroker.LogSink{}
	}
	eng, err := engine.New(reg, b.cfg.Strategies.Ensemble, snapshots, broker, assets, sink,
		engine.WithMetrics(m),
		engine.WithParallelism(b.cfg.Engine.Parallelism),
	)
	if err != nil {
		return nil, err
	}
	return &App{cfg: b.cfg, registry: reg, engine: eng, metrics: m}, nil
}

func buildRegistry(cfg config.StrategiesConfig) (*strategy.Registry, error) {
	return strategy.NewFileRegistry(cfg.Path, cfg.Watch)
}

func buildMarketProvider(cfg config.BrokerConfig) (engine.SnapshotProvider, error) {
	return paperbroker.NewMarketFile(cfg.CandlesPath)
}

func buildBroker(cfg config.BrokerConfig) (engine.AccountProvider, engine.AssetMetadata, error) {
	broker, err := paperbroker.NewBroker(cfg.AccountPath)
	if err != nil {
		return nil, nil, err
	}
	return broker, broker, nil
}
