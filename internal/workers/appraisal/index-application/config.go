package indexapplication

import (
	"time"

	"loan-appraiser/internal/common/config"
)

type Config struct {
	Enabled bool
	Index   string
	Timeout time.Duration
}

func DefaultConfig() *Config {
	return &Config{
		Enabled: true,
		Timeout: 10 * time.Second,
	}
}

func FromAppConfig(cfg *config.Config) *Config {
	c := DefaultConfig()
	if wc, ok := cfg.Workers[TaskType]; ok {
		c.Enabled = wc.Enabled
		if wc.Timeout > 0 {
			c.Timeout = time.Duration(wc.Timeout) * time.Millisecond
		}
	}
	c.Index = cfg.Database.Elasticsearch.Index
	return c
}
