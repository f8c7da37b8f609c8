package config

import (
	"fmt"
	"strings"
)

func validate(c *Config) error {
	if err := c.App.validate(); err != nil {
		return err
	}
	if err := c.Strategies.validate(); err != nil {
		return err
	}
	if err := c.Engine.validate(); err != nil {
		return err
	}
	return c.Broker.validate()
}

func (a *AppConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(a.LogLevel)) {
	case "", "debug", "info", "warn", "warning", "error":
		return nil
	default:
		return fmt.Errorf("app.log_level must be one of debug|info|warn|error")
	}
}

func (s *StrategiesConfig) validate() error {
	if strings.TrimSpace(s.Path) == "" {
		return fmt.Errorf("strategies.path cannot be empty")
	}
	if strings.TrimSpace(s.Ensemble) == "" {
		return fmt.Errorf("strategies.ensemble cannot be empty")
	}
	return nil
}

func (e *EngineConfig) validate() error {
	if e.IntervalSeconds < 0 {
		return fmt.Errorf("engine.interval_seconds must be >= 0")
	}
	if e.Parallelism <= 0 {
		return fmt.Errorf("engine.parallelism must be > 0")
	}
	return nil
}

func (b *BrokerConfig) validate() error {
	if strings.TrimSpace(b.AccountPath) == "" {
		return fmt.Errorf("broker.account_path cannot be empty")
	}
	if strings.TrimSpace(b.CandlesPath) == "" {
		return fmt.Errorf("broker.candles_path cannot be empty")
	}
	return nil
}
