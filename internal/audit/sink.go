// Package audit records append-only audit entries.
package audit

import (
	"context"
	"fmt"

	"permohonan-service/internal/common/config"
	"permohonan-service/internal/common/logger"
	"permohonan-service/internal/models"
)

// Sink is a write-only audit log.
type Sink interface {
	Record(ctx context.Context, entry models.AuditEntry) error
}

// NoopSink discards entries. Used when auditing is disabled.
type NoopSink struct {
	logger logger.Logger
}

func NewNoopSink(log logger.Logger) *NoopSink {
	return &NoopSink{logger: log}
}

func (s *NoopSink) Record(_ context.Context, entry models.AuditEntry) error {
	if s.logger != nil {
		s.logger.Debug("audit disabled, entry dropped", map[string]interface{}{
			"action":   entry.Action,
			"entityId": entry.EntityID,
		})
	}
	return nil
}

// Backends holds the stores a sink may be built on.
type Backends struct {
	Postgres      *PostgresSink
	Elasticsearch *ElasticsearchSink
}

// New selects the sink configured in cfg.
func New(cfg config.AuditConfig, backends Backends, log logger.Logger) (Sink, error) {
	if !cfg.Enabled {
		return NewNoopSink(log), nil
	}
	switch cfg.Backend {
	case "", "postgres":
		if backends.Postgres == nil {
			return nil, fmt.Errorf("audit backend postgres not available")
		}
		return backends.Postgres, nil
	case "elasticsearch":
		if backends.Elasticsearch == nil {
			return nil, fmt.Errorf("audit backend elasticsearch not available")
		}
		return backends.Elasticsearch, nil
	default:
		return nil, fmt.Errorf("unknown audit backend %q", cfg.Backend)
	}
}
