// internal/workers/submission/send-notification/handler.go
package sendnotification

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"permohonan-service/internal/common/errors"
	"permohonan-service/internal/common/logger"
	"permohonan-service/internal/dispatch"
	"permohonan-service/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
)

const TaskType = dispatch.TaskSendSubmissionNotification

// Define interfaces for mocking
type SESService interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

type SNSService interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type Poster interface {
	PostJSON(ctx context.Context, url string, payload interface{}, headers map[string]string) error
}

// Clients holds the transport for whichever backend is configured.
type Clients struct {
	HTTP Poster
	SES  SESService
	SNS  SNSService
}

type Handler struct {
	config  *Config
	logger  logger.Logger
	http    Poster
	ses     SESService
	sns     SNSService
	subject string
	body    string
}

func NewHandler(config *Config, clients Clients, log logger.Logger) (*Handler, error) {
	switch config.Backend {
	case BackendHTTP:
		if clients.HTTP == nil || config.URL == "" {
			return nil, fmt.Errorf("notification backend http requires a url")
		}
	case BackendSNS:
		if clients.SNS == nil || config.TopicARN == "" {
			return nil, fmt.Errorf("notification backend sns requires a topic arn")
		}
	case BackendSES:
		if clients.SES == nil || config.FromEmail == "" || config.OfficeEmail == "" {
			return nil, fmt.Errorf("notification backend ses requires from and office addresses")
		}
	default:
		return nil, fmt.Errorf("unknown notification backend %q", config.Backend)
	}

	return &Handler{
		config:  config,
		logger:  log.WithFields(map[string]interface{}{"taskType": TaskType, "backend": config.Backend}),
		http:    clients.HTTP,
		ses:     clients.SES,
		sns:     clients.SNS,
		subject: "Permohonan {{applicationId}} submitted",
		body:    "Permohonan {{applicationId}} for license type {{licenseTypeId}} was submitted by user {{userId}} (company {{companyId}}) at {{submittedAt}}.",
	}, nil
}

func (h *Handler) Handle(ctx context.Context, task dispatch.Task) error {
	var ev models.SubmissionEvent
	if err := task.Decode(&ev); err != nil {
		return errors.NewInvalidTaskPayloadError(task.Type, err)
	}

	ctx, cancel := context.WithTimeout(ctx, h.config.Timeout)
	defer cancel()

	if err := h.execute(ctx, ev); err != nil {
		return err
	}
	h.logger.Info("submission notification delivered", map[string]interface{}{
		"taskId":        task.ID,
		"applicationId": ev.ApplicationID,
	})
	return nil
}

func (h *Handler) execute(ctx context.Context, ev models.SubmissionEvent) error {
	n := notificationFrom(ev)

	switch h.config.Backend {
	case BackendSNS:
		return h.publish(ctx, ev.EventID, n)
	case BackendSES:
		return h.sendEmail(ctx, n)
	default:
		// the gateway deduplicates on the event id, so replays are harmless
		return h.http.PostJSON(ctx, h.config.URL, n, map[string]string{"Idempotency-Key": ev.EventID})
	}
}

func (h *Handler) publish(ctx context.Context, eventID string, n Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return errors.NewInvalidTaskPayloadError(TaskType, err)
	}
	_, err = h.sns.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(h.config.TopicARN),
		Message:  aws.String(string(body)),
		Subject:  aws.String(renderTemplate(h.subject, n)),
		MessageAttributes: map[string]snstypes.MessageAttributeValue{
			"eventId": {DataType: aws.String("String"), StringValue: aws.String(eventID)},
		},
	})
	if err != nil {
		return errors.NewGatewayError("sns", 0, err)
	}
	return nil
}

func (h *Handler) sendEmail(ctx context.Context, n Notification) error {
	_, err := h.ses.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &types.Destination{
			ToAddresses: []string{h.config.OfficeEmail},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(renderTemplate(h.subject, n))},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(renderTemplate(h.body, n))},
			},
		},
		Source: aws.String(h.config.FromEmail),
	})
	if err != nil {
		return errors.NewGatewayError("ses", 0, err)
	}
	return nil
}

func renderTemplate(tmpl string, n Notification) string {
	return strings.NewReplacer(
		"{{applicationId}}", n.ApplicationID,
		"{{userId}}", n.UserID,
		"{{companyId}}", n.CompanyID,
		"{{licenseTypeId}}", n.LicenseTypeID,
		"{{submittedAt}}", n.SubmittedAt.UTC().Format(time.RFC3339),
	).Replace(tmpl)
}
