package config_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bit-broker/examples/internal/catalog"
	"github.com/bit-broker/examples/internal/config"
	"github.com/bit-broker/examples/internal/source"
)

func validEnv(t *testing.T) {
	t.Setenv("CATALOG_HOST", "http://bbk-coordinator:8001/v1/")
	t.Setenv("CONNECTOR_ID", "9afcf3235500836c6fcd9e82110dbc05ffbb734b")
	t.Setenv("AUTHORIZE_KEY", "secret")
	t.Setenv("ENTITY_TYPE", "country")
	t.Setenv("DATA_URL", "https://example.com/countries.json")
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, catalog.ModeStream, cfg.Mode())
	assert.Equal(t, 100, cfg.BatchPageSize)
	assert.Equal(t, ":8000", cfg.WebhookAddr())
	assert.Equal(t, config.SourceFile, cfg.Source)
	assert.Equal(t, "_wikidata", cfg.EnrichRefField)
	assert.Equal(t, 24*time.Hour, cfg.CacheTTL)
	assert.Equal(t, slog.LevelInfo, cfg.SlogLevel())
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "connector.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
catalog_host: http://from-yaml/v1/
entity_type: heritage-site
session_mode: replace
batch_page_size: 50
source: rdbms
connector_database: postgres://bbk@localhost/bbk
cache_ttl: 90m
s3_use_ssl: true
log_level: debug
`), 0o600))

	t.Setenv("CATALOG_HOST", "http://from-env/v1/")
	t.Setenv("BATCH_PAGE_SIZE", "not-a-number")
	t.Setenv("WEBHOOK_PORT", "8123")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://from-env/v1/", cfg.CatalogHost, "env wins over yaml")
	assert.Equal(t, "heritage-site", cfg.EntityType)
	assert.Equal(t, catalog.ModeReplace, cfg.Mode())
	assert.Equal(t, 50, cfg.BatchPageSize, "unparsable env keeps the yaml value")
	assert.Equal(t, 8123, cfg.WebhookPort)
	assert.Equal(t, config.SourceRDBMS, cfg.Source)
	assert.Equal(t, 90*time.Minute, cfg.CacheTTL)
	assert.True(t, cfg.S3UseSSL)
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "none.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	validEnv(t)
	cfg, err := config.Load("")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	cfg.SessionMode = "merge"
	cfg.WebhookPort = 0
	cfg.Filter = "nonsense"
	err = cfg.Validate()
	require.Error(t, err)
	assert.ErrorContains(t, err, "SESSION_MODE")
	assert.ErrorContains(t, err, "WEBHOOK_PORT")
	assert.ErrorContains(t, err, "FILTER")
}

func TestValidate_WebhookOnlyNeedsNoCatalog(t *testing.T) {
	t.Setenv("CATALOG_HOST", "")
	t.Setenv("ENTITY_TYPE", "country")
	t.Setenv("DATA_URL", "/data/countries.json")
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.NoError(t, cfg.ValidateWebhook())
	assert.ErrorContains(t, cfg.ValidateSync(), "CATALOG_HOST")
}

func TestValidate_RDBMSNeedsDatabase(t *testing.T) {
	validEnv(t)
	t.Setenv("SOURCE", "rdbms")
	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.ErrorContains(t, cfg.ValidateSync(), "CONNECTOR_DATABASE")
}

func TestSourceOptions(t *testing.T) {
	validEnv(t)
	t.Setenv("FILTER", "CATEGORY_EQ_NATURAL")
	t.Setenv("TIMESERIES", "population:_population")
	t.Setenv("ENTITY_REF_PROP", "entity.country")
	t.Setenv("ENTITY_REF_CID", "cid-7")
	cfg, err := config.Load("")
	require.NoError(t, err)

	opts, err := cfg.SourceOptions()
	require.NoError(t, err)
	assert.Equal(t, source.Filter{Attr: "category", Value: "natural"}, opts.Filter)
	assert.Equal(t, []source.SeriesField{{ID: "population", Field: "_population"}}, opts.Series)
	assert.Equal(t, "entity.country", opts.RefProp)
	assert.Equal(t, "cid-7", opts.RefCID)
}
