package config

import "strings"

const (
	defaultAppEnv         = "dev"
	defaultAppLogLevel    = "info"
	defaultMetricsAddr    = ":9402"
	defaultStrategiesPath = "configs/strategies.yaml"
	defaultEnsemble       = "core"
	defaultEngineParallel = 4
	defaultBrokerAccount  = "data/account.json"
	defaultBrokerCandles  = "data/candles.json"
)

func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Strategies.applyDefaults(keys)
	c.Engine.applyDefaults(keys)
	c.Broker.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.metrics_addr", &a.MetricsAddr, defaultMetricsAddr),
	)
}

func (s *StrategiesConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("strategies.path", &s.Path, defaultStrategiesPath),
		stringFieldDefault("strategies.ensemble", &s.Ensemble, defaultEnsemble),
	)
}

// Interval zero means run once, so it gets no default of its own.
func (e *EngineConfig) applyDefaults(_ keySet) {
	if e == nil {
		return
	}
	if e.Parallelism <= 0 {
		e.Parallelism = defaultEngineParallel
	}
}

func (b *BrokerConfig) applyDefaults(keys keySet) {
	if b == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("broker.account_path", &b.AccountPath, defaultBrokerAccount),
		stringFieldDefault("broker.candles_path", &b.CandlesPath, defaultBrokerCandles),
	)
}

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}
