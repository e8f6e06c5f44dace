// Package catalog is a read-through, refresh-bounded cache in front of the
// licensing catalog service.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"permohonan-service/internal/common/config"
	"permohonan-service/internal/common/errors"
	httpclient "permohonan-service/internal/common/http"
	"permohonan-service/internal/common/logger"
	"permohonan-service/internal/models"
)

const serviceName = "catalog"

// Fetcher loads JSON from the upstream catalog.
type Fetcher interface {
	GetJSON(ctx context.Context, url string, out interface{}) error
}

// Service serves license types and document requirements from cache. An entry
// older than the refresh interval is still served as is and refreshed in the
// background, at most one refresh per key at a time. Only a miss waits on the
// upstream, and a miss with a failing upstream surfaces as
// EXTERNAL_SERVICE_UNAVAILABLE.
type Service struct {
	fetcher Fetcher
	cache   Cache
	baseURL string
	refresh time.Duration
	ttl     time.Duration
	prefix  string
	timeout time.Duration
	logger  logger.Logger
	now     func() time.Time

	inflight sync.Map
	wg       sync.WaitGroup
}

type cacheEntry struct {
	FetchedAt time.Time       `json:"fetchedAt"`
	Data      json.RawMessage `json:"data"`
}

func NewService(cfg config.CatalogConfig, cache Cache, log logger.Logger) *Service {
	timeout := config.GetDuration(cfg.Timeout)
	return NewServiceWithFetcher(cfg, httpclient.NewClient(serviceName, timeout, 0), cache, log)
}

func NewServiceWithFetcher(cfg config.CatalogConfig, fetcher Fetcher, cache Cache, log logger.Logger) *Service {
	return &Service{
		fetcher: fetcher,
		cache:   cache,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		refresh: config.GetDuration(cfg.RefreshInterval),
		ttl:     config.GetDuration(cfg.CacheTTL),
		prefix:  cfg.CachePrefix,
		timeout: config.GetDuration(cfg.Timeout),
		logger:  log.WithFields(map[string]interface{}{"component": "catalog-service"}),
		now:     time.Now,
	}
}

func (s *Service) GetLicenseTypes(ctx context.Context) ([]models.LicenseType, error) {
	var types []models.LicenseType
	err := s.readThrough(ctx, s.prefix+"license-types", s.baseURL+"/license-types", &types)
	if err != nil {
		return nil, err
	}
	return types, nil
}

// LookupLicenseType resolves id against the catalog, returning
// INVALID_LICENSE_TYPE when it is not published.
func (s *Service) LookupLicenseType(ctx context.Context, id string) (*models.LicenseType, error) {
	types, err := s.GetLicenseTypes(ctx)
	if err != nil {
		return nil, err
	}
	for i := range types {
		if types[i].ID == id {
			return &types[i], nil
		}
	}
	return nil, errors.NewInvalidLicenseTypeError(id)
}

func (s *Service) GetDocumentRequirements(ctx context.Context, licenseTypeID string) ([]models.DocumentRequirement, error) {
	var reqs []models.DocumentRequirement
	endpoint := fmt.Sprintf("%s/license-types/%s/requirements", s.baseURL, url.PathEscape(licenseTypeID))
	if err := s.readThrough(ctx, s.prefix+"requirements:"+licenseTypeID, endpoint, &reqs); err != nil {
		return nil, err
	}
	for i := range reqs {
		if reqs[i].LicenseTypeID == "" {
			reqs[i].LicenseTypeID = licenseTypeID
		}
	}
	return reqs, nil
}

// Wait blocks until background refreshes have finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) readThrough(ctx context.Context, key, endpoint string, out interface{}) error {
	entry, hit := s.load(ctx, key)
	if hit {
		if s.now().Sub(entry.FetchedAt) >= s.refresh {
			s.refreshInBackground(key, endpoint)
		}
		return json.Unmarshal(entry.Data, out)
	}

	data, err := s.fetch(ctx, key, endpoint)
	if err != nil {
		return errors.NewExternalServiceUnavailableError(serviceName, err)
	}
	return json.Unmarshal(data, out)
}

func (s *Service) load(ctx context.Context, key string) (*cacheEntry, bool) {
	raw, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn("catalog cache read failed", map[string]interface{}{"key": key, "error": err.Error()})
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var entry cacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		s.logger.Warn("discarding corrupt catalog cache entry", map[string]interface{}{"key": key, "error": err.Error()})
		return nil, false
	}
	return &entry, true
}

func (s *Service) fetch(ctx context.Context, key, endpoint string) (json.RawMessage, error) {
	var data json.RawMessage
	if err := s.fetcher.GetJSON(ctx, endpoint, &data); err != nil {
		return nil, err
	}

	raw, err := json.Marshal(cacheEntry{FetchedAt: s.now().UTC(), Data: data})
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, key, raw, s.ttl); err != nil {
		s.logger.Warn("catalog cache write failed", map[string]interface{}{"key": key, "error": err.Error()})
	}
	return data, nil
}

func (s *Service) refreshInBackground(key, endpoint string) {
	if _, busy := s.inflight.LoadOrStore(key, struct{}{}); busy {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.inflight.Delete(key)

		ctx, cancel := context.WithTimeout(context.Background(), s.backgroundTimeout())
		defer cancel()
		if _, err := s.fetch(ctx, key, endpoint); err != nil {
			s.logger.Warn("catalog refresh failed, stale entry kept", map[string]interface{}{"key": key, "error": err.Error()})
		}
	}()
}

func (s *Service) backgroundTimeout() time.Duration {
	if s.timeout > 0 {
		return s.timeout
	}
	return 5 * time.Second
}
