package app

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"ballast/internal/config"
	"ballast/internal/engine"
	"ballast/internal/logger"
	"ballast/internal/metrics"
	"ballast/internal/strategy"
)

// App owns the rebalance loop and the metrics endpoint.
type App struct {
	cfg      *config.Config
	registry *strategy.Registry
	engine   *engine.Engine
	metrics  *metrics.Metrics
}

// NewApp assembles an application from config.
func NewApp(ctx context.Context, cfg *config.Config, opts ...AppBuilderOption) (*App, error) {
	if len(opts) > 0 {
		return NewAppBuilder(cfg, opts...).Build(ctx)
	}
	return buildAppWithWire(ctx, cfg)
}

// Registry exposes the active strategy registry.
func (a *App) Registry() *strategy.Registry { return a.registry }

// RunCycle executes a single rebalance pass.
func (a *App) RunCycle(ctx context.Context) (engine.CycleResult, error) {
	return a.engine.RunCycle(ctx)
}

// Run starts the metrics endpoint and drives the cycle loop until the
// context ends. With interval_seconds of 0 a single cycle runs and Run
// returns its error.
func (a *App) Run(ctx context.Context) error {
	srv := a.startMetricsServer()
	defer func() {
		if srv != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}
	}()

	if a.cfg.Engine.RunOnce() {
		_, err := a.engine.RunCycle(ctx)
		return err
	}

	interval := time.Duration(a.cfg.Engine.IntervalSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	logger.Infof("rebalance loop started, interval=%s", interval)
	for {
		select {
		case <-ctx.Done():
			logger.Infof("rebalance loop stopped: %v", ctx.Err())
			return nil
		case <-ticker.C:
			if _, err := a.engine.RunCycle(ctx); err != nil {
				if errors.Is(err, context.Canceled) {
					continue
				}
				// A failed cycle leaves positions untouched; keep looping.
				logger.Errorf("cycle failed: %v", err)
			}
		}
	}
}

func (a *App) startMetricsServer() *http.Server {
	addr := strings.TrimSpace(a.cfg.App.MetricsAddr)
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("metrics server failed: %v", err)
		}
	}()
	logger.Infof("metrics listening on %s", addr)
	return srv
}
