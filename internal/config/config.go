// Package config loads connector settings: defaults, then an optional YAML
// file, then environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bit-broker/examples/internal/catalog"
	"github.com/bit-broker/examples/internal/source"
)

// Source kinds.
const (
	SourceFile  = "file"
	SourceRDBMS = "rdbms"
)

// Config holds every connector setting. YAML keys are the lower-case form of
// the environment variable names.
type Config struct {
	// Catalog
	CatalogHost      string  `yaml:"catalog_host"`
	ConnectorID      string  `yaml:"connector_id"`
	AuthorizeKey     string  `yaml:"authorize_key"`
	SessionMode      string  `yaml:"session_mode"`
	BatchPageSize    int     `yaml:"batch_page_size"`
	CatalogRateLimit float64 `yaml:"catalog_rate_limit"`

	// Webhook
	ConnectorName  string `yaml:"connector_name"`
	EntityType     string `yaml:"entity_type"`
	WebhookPort    int    `yaml:"webhook_port"`
	HealthGRPCPort int    `yaml:"health_grpc_port"`

	// Data source
	Source            string `yaml:"source"`
	DataURL           string `yaml:"data_url"`
	DataFormat        string `yaml:"data_format"`
	DataAuthToken     string `yaml:"data_auth_token"`
	ConnectorDatabase string `yaml:"connector_database"`
	Filter            string `yaml:"filter"`
	EntityRefCID      string `yaml:"entity_ref_cid"`
	EntityRefProp     string `yaml:"entity_ref_prop"`
	Timeseries        string `yaml:"timeseries"`

	// Object storage for s3:// data
	S3Endpoint  string `yaml:"s3_endpoint"`
	S3AccessKey string `yaml:"s3_access_key"`
	S3SecretKey string `yaml:"s3_secret_key"`
	S3Region    string `yaml:"s3_region"`
	S3UseSSL    bool   `yaml:"s3_use_ssl"`

	// Enrichment
	EnrichEnabled  bool          `yaml:"enrich_enabled"`
	EnrichRefField string        `yaml:"enrich_ref_field"`
	EnrichTarget   string        `yaml:"enrich_target"`
	WikidataURL    string        `yaml:"wikidata_url"`
	CacheRedisURL  string        `yaml:"cache_redis_url"`
	CacheSize      int           `yaml:"cache_size"`
	CacheTTL       time.Duration `yaml:"cache_ttl"`

	LogLevel string `yaml:"log_level"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		SessionMode:    string(catalog.ModeStream),
		BatchPageSize:  catalog.DefaultPageSize,
		ConnectorName:  "BBK Connector",
		WebhookPort:    8000,
		Source:         SourceFile,
		EnrichRefField: "_wikidata",
		EnrichTarget:   "flag",
		CacheSize:      1024,
		CacheTTL:       24 * time.Hour,
		LogLevel:       "info",
	}
}

// Load reads path (if non-empty) over the defaults, then applies the
// environment.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.CatalogHost = getEnv("CATALOG_HOST", c.CatalogHost)
	c.ConnectorID = getEnv("CONNECTOR_ID", c.ConnectorID)
	c.AuthorizeKey = getEnv("AUTHORIZE_KEY", c.AuthorizeKey)
	c.SessionMode = getEnv("SESSION_MODE", c.SessionMode)
	c.BatchPageSize = getEnvInt("BATCH_PAGE_SIZE", c.BatchPageSize)
	c.CatalogRateLimit = getEnvFloat("CATALOG_RATE_LIMIT", c.CatalogRateLimit)

	c.ConnectorName = getEnv("CONNECTOR_NAME", c.ConnectorName)
	c.EntityType = getEnv("ENTITY_TYPE", c.EntityType)
	c.WebhookPort = getEnvInt("WEBHOOK_PORT", c.WebhookPort)
	c.HealthGRPCPort = getEnvInt("HEALTH_GRPC_PORT", c.HealthGRPCPort)

	c.Source = getEnv("SOURCE", c.Source)
	c.DataURL = getEnv("DATA_URL", c.DataURL)
	c.DataFormat = getEnv("DATA_FORMAT", c.DataFormat)
	c.DataAuthToken = getEnv("DATA_AUTH_TOKEN", c.DataAuthToken)
	c.ConnectorDatabase = getEnv("CONNECTOR_DATABASE", c.ConnectorDatabase)
	c.Filter = getEnv("FILTER", c.Filter)
	c.EntityRefCID = getEnv("ENTITY_REF_CID", c.EntityRefCID)
	c.EntityRefProp = getEnv("ENTITY_REF_PROP", c.EntityRefProp)
	c.Timeseries = getEnv("TIMESERIES", c.Timeseries)

	c.S3Endpoint = getEnv("S3_ENDPOINT", c.S3Endpoint)
	c.S3AccessKey = getEnv("S3_ACCESS_KEY", c.S3AccessKey)
	c.S3SecretKey = getEnv("S3_SECRET_KEY", c.S3SecretKey)
	c.S3Region = getEnv("S3_REGION", c.S3Region)
	c.S3UseSSL = getEnvBool("S3_USE_SSL", c.S3UseSSL)

	c.EnrichEnabled = getEnvBool("ENRICH_ENABLED", c.EnrichEnabled)
	c.EnrichRefField = getEnv("ENRICH_REF_FIELD", c.EnrichRefField)
	c.EnrichTarget = getEnv("ENRICH_TARGET", c.EnrichTarget)
	c.WikidataURL = getEnv("WIKIDATA_URL", c.WikidataURL)
	c.CacheRedisURL = getEnv("CACHE_REDIS_URL", c.CacheRedisURL)
	c.CacheSize = getEnvInt("CACHE_SIZE", c.CacheSize)
	c.CacheTTL = getEnvDuration("CACHE_TTL", c.CacheTTL)

	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidateSync reports settings a sync run cannot do without.
func (c *Config) ValidateSync() error {
	return errors.Join(append(c.validateCatalog(), c.validateSource()...)...)
}

// ValidateWebhook reports settings the webhook cannot do without.
func (c *Config) ValidateWebhook() error {
	return errors.Join(append(c.validateWebhook(), c.validateSource()...)...)
}

// Validate checks everything a combined run needs.
func (c *Config) Validate() error {
	errs := c.validateCatalog()
	errs = append(errs, c.validateWebhook()...)
	errs = append(errs, c.validateSource()...)
	return errors.Join(errs...)
}

func (c *Config) validateCatalog() []error {
	var errs []error
	if c.CatalogHost == "" {
		errs = append(errs, errors.New("CATALOG_HOST is required"))
	}
	if c.ConnectorID == "" {
		errs = append(errs, errors.New("CONNECTOR_ID is required"))
	}
	if c.AuthorizeKey == "" {
		errs = append(errs, errors.New("AUTHORIZE_KEY is required"))
	}
	if _, err := catalog.ParseMode(c.SessionMode); err != nil {
		errs = append(errs, fmt.Errorf("SESSION_MODE: %w", err))
	}
	if c.BatchPageSize < 1 {
		errs = append(errs, fmt.Errorf("BATCH_PAGE_SIZE must be positive, got %d", c.BatchPageSize))
	}
	if _, err := source.ParseFilter(c.Filter); err != nil {
		errs = append(errs, fmt.Errorf("FILTER: %w", err))
	}
	return errs
}

func (c *Config) validateWebhook() []error {
	var errs []error
	if c.WebhookPort < 1 || c.WebhookPort > 65535 {
		errs = append(errs, fmt.Errorf("WEBHOOK_PORT out of range: %d", c.WebhookPort))
	}
	if c.HealthGRPCPort < 0 || c.HealthGRPCPort > 65535 {
		errs = append(errs, fmt.Errorf("HEALTH_GRPC_PORT out of range: %d", c.HealthGRPCPort))
	}
	return errs
}

func (c *Config) validateSource() []error {
	var errs []error
	if c.EntityType == "" {
		errs = append(errs, errors.New("ENTITY_TYPE is required"))
	}
	switch c.Source {
	case SourceFile:
		if c.DataURL == "" {
			errs = append(errs, errors.New("DATA_URL is required for the file source"))
		}
		if _, err := source.ParseFormat(c.DataFormat, c.DataURL); err != nil {
			errs = append(errs, fmt.Errorf("DATA_FORMAT: %w", err))
		}
	case SourceRDBMS:
		if c.ConnectorDatabase == "" {
			errs = append(errs, errors.New("CONNECTOR_DATABASE is required for the rdbms source"))
		}
	default:
		errs = append(errs, fmt.Errorf("SOURCE must be %q or %q, got %q", SourceFile, SourceRDBMS, c.Source))
	}
	if _, err := source.ParseSeriesFields(c.Timeseries); err != nil {
		errs = append(errs, fmt.Errorf("TIMESERIES: %w", err))
	}
	return errs
}

// =============================================================================
// DERIVED SETTINGS
// =============================================================================

// Mode returns the parsed session mode, falling back to stream.
func (c *Config) Mode() catalog.Mode {
	m, err := catalog.ParseMode(c.SessionMode)
	if err != nil {
		return catalog.ModeStream
	}
	return m
}

// WebhookAddr is the webhook listen address.
func (c *Config) WebhookAddr() string {
	return fmt.Sprintf(":%d", c.WebhookPort)
}

// SourceOptions builds the dataset preparation options.
func (c *Config) SourceOptions() (source.Options, error) {
	filter, err := source.ParseFilter(c.Filter)
	if err != nil {
		return source.Options{}, err
	}
	series, err := source.ParseSeriesFields(c.Timeseries)
	if err != nil {
		return source.Options{}, err
	}
	return source.Options{
		Filter:  filter,
		RefProp: c.EntityRefProp,
		RefCID:  c.EntityRefCID,
		Series:  series,
	}, nil
}

// S3 returns the object storage settings.
func (c *Config) S3() source.S3Config {
	return source.S3Config{
		EndpointURL:     c.S3Endpoint,
		AccessKeyID:     c.S3AccessKey,
		SecretAccessKey: c.S3SecretKey,
		Region:          c.S3Region,
		UseSSL:          c.S3UseSSL,
	}
}

// SlogLevel maps LOG_LEVEL to a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// =============================================================================
// ENV HELPERS
// =============================================================================

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
