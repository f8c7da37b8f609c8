package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "config.yaml", `
app:
  env: prod
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "prod", cfg.App.Env)
	assert.Equal(t, "info", cfg.App.LogLevel)
	assert.Equal(t, ":9402", cfg.App.MetricsAddr)
	assert.Equal(t, "configs/strategies.yaml", cfg.Strategies.Path)
	assert.Equal(t, "core", cfg.Strategies.Ensemble)
	assert.Equal(t, 4, cfg.Engine.Parallelism)
	assert.Equal(t, 0, cfg.Engine.IntervalSeconds)
	assert.True(t, cfg.Engine.RunOnce())
	assert.Equal(t, "data/account.json", cfg.Broker.AccountPath)
	assert.Equal(t, "data/candles.json", cfg.Broker.CandlesPath)
}

func TestLoadExplicitValuesWin(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "config.yaml", `
app:
  log_level: debug
strategies:
  path: alt/strategies.yaml
  ensemble: aggressive
  watch: true
engine:
  interval_seconds: 300
  parallelism: 8
broker:
  account_path: alt/account.json
  candles_path: alt/candles.json
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.App.LogLevel)
	assert.Equal(t, "alt/strategies.yaml", cfg.Strategies.Path)
	assert.Equal(t, "aggressive", cfg.Strategies.Ensemble)
	assert.True(t, cfg.Strategies.Watch)
	assert.Equal(t, 300, cfg.Engine.IntervalSeconds)
	assert.False(t, cfg.Engine.RunOnce())
	assert.Equal(t, 8, cfg.Engine.Parallelism)
	assert.Equal(t, "alt/account.json", cfg.Broker.AccountPath)
}

func TestLoadMergesIncludes(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "base.yaml", `
app:
  log_level: debug
engine:
  parallelism: 2
`)
	path := writeConfig(t, dir, "config.yaml", `
include:
  - base.yaml
engine:
  interval_seconds: 60
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	// Values from the include survive; the main file layers on top.
	assert.Equal(t, "debug", cfg.App.LogLevel)
	assert.Equal(t, 2, cfg.Engine.Parallelism)
	assert.Equal(t, 60, cfg.Engine.IntervalSeconds)
}

func TestLoadDetectsIncludeCycle(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "a.yaml", "include: [b.yaml]\n")
	path := writeConfig(t, dir, "b.yaml", "include: [a.yaml]\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestLoadValidation(t *testing.T) {
	cases := []struct {
		name string
		doc  string
	}{
		{"bad log level", "app: {log_level: verbose}\n"},
		{"negative interval", "engine: {interval_seconds: -5}\n"},
		{"empty ensemble", "strategies: {ensemble: \"  \"}\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, t.TempDir(), "config.yaml", tc.doc)
			_, err := Load(path)
			assert.Error(t, err)
		})
	}

	_, err := Load("")
	assert.Error(t, err)
	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
