package config

import "strings"

// Config is the process-wide configuration. The strategy definitions
// themselves live in the separate declarative file named by
// Strategies.Path; this config only wires collaborators and runtime knobs.
type Config struct {
	App        AppConfig        `toml:"app"`
	Strategies StrategiesConfig `toml:"strategies"`
	Engine     EngineConfig     `toml:"engine"`
	Broker     BrokerConfig     `toml:"broker"`
}

type AppConfig struct {
	Env         string `toml:"env"`
	LogLevel    string `toml:"log_level"`
	LogPath     string `toml:"log_path"`
	MetricsAddr string `toml:"metrics_addr"`
}

// StrategiesConfig locates the declarative strategy/ensemble document.
type StrategiesConfig struct {
	Path     string `toml:"path"`
	Ensemble string `toml:"ensemble"`
	Watch    bool   `toml:"watch"`
}

// EngineConfig controls the rebalance loop. IntervalSeconds of 0 runs a
// single cycle and exits.
type EngineConfig struct {
	IntervalSeconds int `toml:"interval_seconds"`
	Parallelism     int `toml:"parallelism"`
}

// BrokerConfig locates the paper broker's account and candle dump files.
type BrokerConfig struct {
	AccountPath string `toml:"account_path"`
	CandlesPath string `toml:"candles_path"`
}

// RunOnce reports whether the engine should exit after one cycle.
func (e EngineConfig) RunOnce() bool { return e.IntervalSeconds <= 0 }

// keySet tracks which field paths the config file set explicitly.
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

// fieldDefault describes the default rule for one field.
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
