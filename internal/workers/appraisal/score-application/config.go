package scoreapplication

import (
	"fmt"
	"time"

	"loan-appraiser/internal/common/config"
)

type Config struct {
	Enabled   bool
	Timeout   time.Duration
	Appraisal config.AppraisalConfig
}

func DefaultConfig() *Config {
	return &Config{
		Enabled: true,
		Timeout: 30 * time.Second,
	}
}

// FromAppConfig reads the worker entry keyed by TaskType and the scoring thresholds.
func FromAppConfig(cfg *config.Config) *Config {
	c := DefaultConfig()
	if wc, ok := cfg.Workers[TaskType]; ok {
		c.Enabled = wc.Enabled
		if wc.Timeout > 0 {
			c.Timeout = time.Duration(wc.Timeout) * time.Millisecond
		}
	}
	c.Appraisal = cfg.Appraisal
	return c
}

func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	return nil
}
