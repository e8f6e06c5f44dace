// internal/workers/submission/forward-review/config.go
package forwardreview

import (
	"time"

	"permohonan-service/internal/common/config"
)

type Config struct {
	Backend       string
	URL           string
	RatePerSecond float64
	ProcessID     string
	Timeout       time.Duration
}

func LoadConfig(cfg config.ReviewConfig) *Config {
	c := &Config{
		Backend:       cfg.Backend,
		URL:           cfg.URL,
		RatePerSecond: cfg.RatePerSecond,
		ProcessID:     cfg.ProcessID,
		Timeout:       time.Duration(cfg.RequestTimeout) * time.Millisecond,
	}
	if c.Backend == "" {
		c.Backend = BackendHTTP
	}
	if c.ProcessID == "" {
		c.ProcessID = DefaultProcessID
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	return c
}
