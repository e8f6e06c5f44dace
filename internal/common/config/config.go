// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App           AppConfig               `mapstructure:"app"`
	Server        ServerConfig            `mapstructure:"server"`
	Camunda       CamundaConfig           `mapstructure:"camunda"`
	Database      DatabaseConfig          `mapstructure:"database"`
	Catalog       CatalogConfig           `mapstructure:"catalog"`
	Uploads       UploadConfig            `mapstructure:"uploads"`
	Storage       StorageConfig           `mapstructure:"storage"`
	Dispatch      DispatchConfig          `mapstructure:"dispatch"`
	Workers       map[string]WorkerConfig `mapstructure:"workers"`
	Audit         AuditConfig             `mapstructure:"audit"`
	Notifications NotificationConfig      `mapstructure:"notifications"`
	Review        ReviewConfig            `mapstructure:"review"`
	Antivirus     AntivirusConfig         `mapstructure:"antivirus"`
	Cleanup       CleanupConfig           `mapstructure:"cleanup"`
	AWS           AWSConfig               `mapstructure:"aws"`
	Logging       LoggingConfig           `mapstructure:"logging"`
	Tracing       TracingConfig           `mapstructure:"tracing"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type ServerConfig struct {
	Address         string `mapstructure:"address"`
	ReadTimeout     int    `mapstructure:"read_timeout"`     // milliseconds
	WriteTimeout    int    `mapstructure:"write_timeout"`    // milliseconds
	ShutdownTimeout int    `mapstructure:"shutdown_timeout"` // milliseconds
}

type CamundaConfig struct {
	BrokerAddress  string `mapstructure:"broker_address"`
	Plaintext      bool   `mapstructure:"plaintext"`
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
	AutoMigrate   bool                `mapstructure:"auto_migrate"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	URL       string   `mapstructure:"url"` // Single URL for backwards compatibility
}

// GetURL returns the first address or the URL field
func (e ElasticsearchConfig) GetURL() string {
	if e.URL != "" {
		return e.URL
	}
	if len(e.Addresses) > 0 {
		return e.Addresses[0]
	}
	return ""
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// --- Domain sections ---

// CatalogConfig points at the license-type catalog and bounds its cache.
type CatalogConfig struct {
	BaseURL         string `mapstructure:"base_url"`
	Timeout         int    `mapstructure:"timeout"`          // milliseconds
	RefreshInterval int    `mapstructure:"refresh_interval"` // milliseconds
	CacheTTL        int    `mapstructure:"cache_ttl"`        // milliseconds, hard expiry of stale entries
	CachePrefix     string `mapstructure:"cache_prefix"`
}

type UploadConfig struct {
	MaxSizeBytes      int64    `mapstructure:"max_size_bytes"`
	AllowedExtensions []string `mapstructure:"allowed_extensions"`
}

type StorageConfig struct {
	Backend   string `mapstructure:"backend"` // "local" or "s3"
	LocalRoot string `mapstructure:"local_root"`
	S3Bucket  string `mapstructure:"s3_bucket"`
	S3Prefix  string `mapstructure:"s3_prefix"`
}

type DispatchConfig struct {
	Queue       string `mapstructure:"queue"` // "redis" or "memory"
	QueueKey    string `mapstructure:"queue_key"`
	Concurrency int    `mapstructure:"concurrency"`
	MaxAttempts int    `mapstructure:"max_attempts"`
	Backoff     []int  `mapstructure:"backoff"` // milliseconds between attempts
	PollTimeout int    `mapstructure:"poll_timeout"`
	// PromoteInterval is how often, in milliseconds, due retries are moved
	// back to the ready queue.
	PromoteInterval int `mapstructure:"promote_interval"`
}

// WorkerConfig holds the core settings applicable to every consumer.
type WorkerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Timeout int  `mapstructure:"timeout"` // milliseconds
}

type AuditConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Backend string `mapstructure:"backend"` // "postgres" or "elasticsearch"
	Index   string `mapstructure:"index"`
}

// NotificationConfig holds settings for the submission notification consumer.
type NotificationConfig struct {
	Backend        string  `mapstructure:"backend"` // "http", "sns" or "ses"
	URL            string  `mapstructure:"url"`
	RatePerSecond  float64 `mapstructure:"rate_per_second"`
	TopicARN       string  `mapstructure:"topic_arn"`
	FromEmail      string  `mapstructure:"from_email"`
	OfficeEmail    string  `mapstructure:"office_email"`
	RequestTimeout int     `mapstructure:"request_timeout"` // milliseconds
}

type ReviewConfig struct {
	Backend        string  `mapstructure:"backend"` // "http" or "zeebe"
	URL            string  `mapstructure:"url"`
	RatePerSecond  float64 `mapstructure:"rate_per_second"`
	ProcessID      string  `mapstructure:"process_id"`
	RequestTimeout int     `mapstructure:"request_timeout"` // milliseconds
}

type AntivirusConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	URL            string `mapstructure:"url"`
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
}

type CleanupConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Schedule  string `mapstructure:"schedule"` // cron spec
	BatchSize int    `mapstructure:"batch_size"`
}

type AWSConfig struct {
	Region   string `mapstructure:"region"`
	Endpoint string `mapstructure:"endpoint"` // optional, e.g. LocalStack
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type TracingConfig struct {
	JaegerEndpoint string  `mapstructure:"jaeger_endpoint"`
	SampleRatio    float64 `mapstructure:"sample_ratio"`
}
