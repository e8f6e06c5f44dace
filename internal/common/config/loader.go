// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

func Load() (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	// DATABASE_POSTGRES_HOST overrides database.postgres.host
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig() // optional per-environment overlay

	return finish(v)
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return finish(v)
}

func finish(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func loadEnvFile() {
	possiblePaths := []string{".env", "../.env", "../../.env"}
	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// Find project root by looking for go.mod
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			// unset variables expand to "" so defaults and validation see them as missing
			if expanded := os.ExpandEnv(strVal); expanded != strVal {
				v.Set(key, expanded)
			}
		}
	}
}

// Direct override if secrets are still empty after expansion
func overrideEmptyConfig(cfg *Config) {
	if cfg.Database.Postgres.User == "" {
		if val := os.Getenv("DB_USER"); val != "" {
			cfg.Database.Postgres.User = val
		}
	}
	if cfg.Database.Postgres.Password == "" {
		if val := os.Getenv("DB_PASSWORD"); val != "" {
			cfg.Database.Postgres.Password = val
		}
	}
	if cfg.Database.Redis.Password == "" {
		if val := os.Getenv("REDIS_PASSWORD"); val != "" {
			cfg.Database.Redis.Password = val
		}
	}
	if cfg.AWS.Region == "" {
		if val := os.Getenv("AWS_REGION"); val != "" {
			cfg.AWS.Region = val
		}
	}
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "permohonan-service"
	}

	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15000
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 30000
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 30000
	}

	if cfg.Camunda.RequestTimeout == 0 {
		cfg.Camunda.RequestTimeout = 10000
	}

	if cfg.Database.Postgres.Port == 0 {
		cfg.Database.Postgres.Port = 5432
	}
	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 25
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 5
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}
	if cfg.Database.Elasticsearch.URL == "" && len(cfg.Database.Elasticsearch.Addresses) > 0 {
		cfg.Database.Elasticsearch.URL = cfg.Database.Elasticsearch.Addresses[0]
	}

	if cfg.Catalog.Timeout == 0 {
		cfg.Catalog.Timeout = 5000
	}
	if cfg.Catalog.RefreshInterval == 0 {
		cfg.Catalog.RefreshInterval = 300000
	}
	if cfg.Catalog.CacheTTL == 0 {
		cfg.Catalog.CacheTTL = 86400000
	}
	if cfg.Catalog.CachePrefix == "" {
		cfg.Catalog.CachePrefix = "catalog:"
	}

	if cfg.Uploads.MaxSizeBytes == 0 {
		cfg.Uploads.MaxSizeBytes = 10 * 1024 * 1024
	}
	if len(cfg.Uploads.AllowedExtensions) == 0 {
		cfg.Uploads.AllowedExtensions = []string{"pdf", "jpg", "jpeg", "png"}
	}

	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "local"
	}
	if cfg.Storage.LocalRoot == "" {
		cfg.Storage.LocalRoot = "./data/documents"
	}

	if cfg.Dispatch.Queue == "" {
		cfg.Dispatch.Queue = "redis"
	}
	if cfg.Dispatch.QueueKey == "" {
		cfg.Dispatch.QueueKey = "permohonan:side-effects"
	}
	if cfg.Dispatch.Concurrency == 0 {
		cfg.Dispatch.Concurrency = 4
	}
	if cfg.Dispatch.MaxAttempts == 0 {
		cfg.Dispatch.MaxAttempts = 3
	}
	if len(cfg.Dispatch.Backoff) == 0 {
		cfg.Dispatch.Backoff = []int{1000, 5000, 15000}
	}
	if cfg.Dispatch.PollTimeout == 0 {
		cfg.Dispatch.PollTimeout = 5000
	}
	if cfg.Dispatch.PromoteInterval == 0 {
		cfg.Dispatch.PromoteInterval = 250
	}

	for key, worker := range cfg.Workers {
		if worker.Timeout == 0 {
			worker.Timeout = 10000
		}
		cfg.Workers[key] = worker
	}

	if cfg.Audit.Backend == "" {
		cfg.Audit.Backend = "postgres"
	}
	if cfg.Audit.Index == "" {
		cfg.Audit.Index = "permohonan-audit"
	}

	if cfg.Notifications.Backend == "" {
		cfg.Notifications.Backend = "http"
	}
	if cfg.Notifications.RequestTimeout == 0 {
		cfg.Notifications.RequestTimeout = 10000
	}
	if cfg.Review.Backend == "" {
		cfg.Review.Backend = "http"
	}
	if cfg.Review.ProcessID == "" {
		cfg.Review.ProcessID = "permohonan-review"
	}
	if cfg.Review.RequestTimeout == 0 {
		cfg.Review.RequestTimeout = 10000
	}
	if cfg.Antivirus.RequestTimeout == 0 {
		cfg.Antivirus.RequestTimeout = 10000
	}

	if cfg.Cleanup.Schedule == "" {
		cfg.Cleanup.Schedule = "@every 15m"
	}
	if cfg.Cleanup.BatchSize == 0 {
		cfg.Cleanup.BatchSize = 100
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Tracing.SampleRatio == 0 {
		cfg.Tracing.SampleRatio = 1
	}
}

// validateConfig validates critical configuration fields
func validateConfig(cfg *Config) error {
	if cfg.Database.Postgres.Host == "" {
		return fmt.Errorf("database.postgres.host is required")
	}
	if cfg.Database.Postgres.Database == "" {
		return fmt.Errorf("database.postgres.database is required")
	}
	if cfg.Database.Postgres.User == "" {
		return fmt.Errorf("database.postgres.user is required")
	}

	if cfg.Catalog.BaseURL == "" {
		return fmt.Errorf("catalog.base_url is required")
	}

	switch cfg.Dispatch.Queue {
	case "redis":
		if cfg.Database.Redis.Address == "" {
			return fmt.Errorf("database.redis.address is required for the redis dispatch queue")
		}
	case "memory":
	default:
		return fmt.Errorf("dispatch.queue must be redis or memory, got %q", cfg.Dispatch.Queue)
	}
	if cfg.Dispatch.MaxAttempts < 1 {
		return fmt.Errorf("dispatch.max_attempts must be at least 1")
	}

	switch cfg.Storage.Backend {
	case "local":
	case "s3":
		if cfg.Storage.S3Bucket == "" {
			return fmt.Errorf("storage.s3_bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("storage.backend must be local or s3, got %q", cfg.Storage.Backend)
	}

	if cfg.Audit.Enabled && cfg.Audit.Backend == "elasticsearch" && cfg.Database.Elasticsearch.GetURL() == "" {
		return fmt.Errorf("database.elasticsearch.addresses or url is required for the elasticsearch audit backend")
	}

	switch cfg.Notifications.Backend {
	case "http":
		if cfg.Notifications.URL == "" {
			return fmt.Errorf("notifications.url is required for the http backend")
		}
	case "sns":
		if cfg.Notifications.TopicARN == "" {
			return fmt.Errorf("notifications.topic_arn is required for the sns backend")
		}
	case "ses":
		if cfg.Notifications.FromEmail == "" || cfg.Notifications.OfficeEmail == "" {
			return fmt.Errorf("notifications.from_email and office_email are required for the ses backend")
		}
	default:
		return fmt.Errorf("unknown notifications.backend %q", cfg.Notifications.Backend)
	}

	switch cfg.Review.Backend {
	case "http":
		if cfg.Review.URL == "" {
			return fmt.Errorf("review.url is required for the http backend")
		}
	case "zeebe":
		if cfg.Camunda.BrokerAddress == "" {
			return fmt.Errorf("camunda.broker_address is required for the zeebe review backend")
		}
	default:
		return fmt.Errorf("unknown review.backend %q", cfg.Review.Backend)
	}

	if cfg.Antivirus.Enabled && cfg.Antivirus.URL == "" {
		return fmt.Errorf("antivirus.url is required when antivirus is enabled")
	}

	return nil
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}

// GetDurations converts a millisecond schedule to durations.
func GetDurations(milliseconds []int) []time.Duration {
	out := make([]time.Duration, len(milliseconds))
	for i, ms := range milliseconds {
		out[i] = GetDuration(ms)
	}
	return out
}

// GetWorkerConfig retrieves consumer-specific configuration with fallback to defaults
func GetWorkerConfig(cfg *Config, taskType string) WorkerConfig {
	if worker, exists := cfg.Workers[taskType]; exists {
		return worker
	}
	return WorkerConfig{
		Enabled: true,
		Timeout: 10000,
	}
}

// IsWorkerEnabled checks if a specific consumer is enabled
func IsWorkerEnabled(cfg *Config, taskType string) bool {
	if worker, exists := cfg.Workers[taskType]; exists {
		return worker.Enabled
	}
	return true
}
