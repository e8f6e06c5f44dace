// internal/workers/submission/send-notification/config.go
package sendnotification

import (
	"time"

	"permohonan-service/internal/common/config"
)

type Config struct {
	Backend       string
	URL           string
	RatePerSecond float64
	TopicARN      string
	FromEmail     string
	OfficeEmail   string
	Timeout       time.Duration
}

// LoadConfig maps the notifications section onto the consumer settings.
func LoadConfig(cfg config.NotificationConfig) *Config {
	c := &Config{
		Backend:       cfg.Backend,
		URL:           cfg.URL,
		RatePerSecond: cfg.RatePerSecond,
		TopicARN:      cfg.TopicARN,
		FromEmail:     cfg.FromEmail,
		OfficeEmail:   cfg.OfficeEmail,
		Timeout:       time.Duration(cfg.RequestTimeout) * time.Millisecond,
	}
	if c.Backend == "" {
		c.Backend = BackendHTTP
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	return c
}
