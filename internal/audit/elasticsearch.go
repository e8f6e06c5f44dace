package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"permohonan-service/internal/common/errors"
	"permohonan-service/internal/models"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

const DefaultIndex = "permohonan-audit"

// ElasticsearchSink indexes entries as documents. Keyed entries use the key as
// document id so a replay overwrites rather than duplicates.
type ElasticsearchSink struct {
	client *elasticsearch.Client
	index  string
	now    func() time.Time
}

func NewElasticsearchSink(client *elasticsearch.Client, index string) *ElasticsearchSink {
	if index == "" {
		index = DefaultIndex
	}
	return &ElasticsearchSink{client: client, index: index, now: time.Now}
}

type auditDocument struct {
	Action     string                 `json:"action"`
	EntityType string                 `json:"entity_type"`
	EntityID   string                 `json:"entity_id"`
	ActorID    *string                `json:"actor_id,omitempty"`
	Metadata   map[string]interface{} `json:"metadata"`
	OccurredAt time.Time              `json:"@timestamp"`
}

func (s *ElasticsearchSink) Record(ctx context.Context, entry models.AuditEntry) error {
	occurred := entry.OccurredAt
	if occurred.IsZero() {
		occurred = s.now().UTC()
	}
	body, err := json.Marshal(auditDocument{
		Action:     entry.Action,
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID,
		ActorID:    entry.ActorID,
		Metadata:   entryDetails(entry),
		OccurredAt: occurred,
	})
	if err != nil {
		return fmt.Errorf("encode audit document: %w", err)
	}

	req := esapi.IndexRequest{
		Index:      s.index,
		DocumentID: entry.Key,
		Body:       bytes.NewReader(body),
	}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return errors.NewExternalServiceUnavailableError("elasticsearch", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return errors.NewGatewayError("elasticsearch", res.StatusCode, fmt.Errorf("index audit entry: %s", res.Status()))
	}
	return nil
}
