// internal/workers/submission/forward-review/handler.go
package forwardreview

import (
	"context"
	"fmt"

	"permohonan-service/internal/common/errors"
	"permohonan-service/internal/common/logger"
	"permohonan-service/internal/dispatch"
	"permohonan-service/internal/models"
)

const TaskType = dispatch.TaskForwardToReviewQueue

type Poster interface {
	PostJSON(ctx context.Context, url string, payload interface{}, headers map[string]string) error
}

// ProcessStarter starts a review workflow instance (see camunda.Client).
type ProcessStarter interface {
	StartProcess(ctx context.Context, processID string, variables interface{}) (int64, error)
}

type Handler struct {
	config  *Config
	logger  logger.Logger
	http    Poster
	process ProcessStarter
}

func NewHandler(config *Config, http Poster, process ProcessStarter, log logger.Logger) (*Handler, error) {
	switch config.Backend {
	case BackendHTTP:
		if http == nil || config.URL == "" {
			return nil, fmt.Errorf("review backend http requires a url")
		}
	case BackendZeebe:
		if process == nil {
			return nil, fmt.Errorf("review backend zeebe requires a camunda client")
		}
	default:
		return nil, fmt.Errorf("unknown review backend %q", config.Backend)
	}
	return &Handler{
		config:  config,
		logger:  log.WithFields(map[string]interface{}{"taskType": TaskType, "backend": config.Backend}),
		http:    http,
		process: process,
	}, nil
}

func (h *Handler) Handle(ctx context.Context, task dispatch.Task) error {
	var ev models.SubmissionEvent
	if err := task.Decode(&ev); err != nil {
		return errors.NewInvalidTaskPayloadError(task.Type, err)
	}

	ctx, cancel := context.WithTimeout(ctx, h.config.Timeout)
	defer cancel()

	req := reviewRequestFrom(ev)
	if h.config.Backend == BackendZeebe {
		key, err := h.process.StartProcess(ctx, h.config.ProcessID, req)
		if err != nil {
			return err
		}
		h.logger.Info("review process started", map[string]interface{}{
			"applicationId":      ev.ApplicationID,
			"processInstanceKey": key,
		})
		return nil
	}

	if err := h.http.PostJSON(ctx, h.config.URL, req, map[string]string{"Idempotency-Key": ev.EventID}); err != nil {
		return err
	}
	h.logger.Info("forwarded to review queue", map[string]interface{}{"applicationId": ev.ApplicationID})
	return nil
}
