// internal/workers/document/scan-document/config.go
package scandocument

import (
	"time"

	"permohonan-service/internal/common/config"
)

type Config struct {
	URL     string
	Timeout time.Duration
}

func LoadConfig(cfg config.AntivirusConfig) *Config {
	c := &Config{
		URL:     cfg.URL,
		Timeout: time.Duration(cfg.RequestTimeout) * time.Millisecond,
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	return c
}
