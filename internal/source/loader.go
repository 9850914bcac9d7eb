// Package source loads connector datasets from files, HTTP endpoints and
// object storage, and normalizes them into records.
package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	bbkhttp "github.com/bit-broker/examples/internal/connector/http"
	"github.com/bit-broker/examples/pkg/entity"
)

// Loader produces the dataset for one sync run.
type Loader interface {
	Load(ctx context.Context) (*entity.Dataset, error)
}

// FileConfig locates a dataset.
type FileConfig struct {
	// URL is an http(s):// URL, an s3://bucket/key URL, a file:// URL or a path.
	URL string
	// Format is json, csv or parquet; empty infers it from the URL.
	Format string
	// S3 is used for s3:// URLs when no object store is injected.
	S3 S3Config
	// Timeout per HTTP fetch (default: 60s).
	Timeout time.Duration
	// AuthToken, when set, is sent as a Bearer token on http(s) fetches.
	AuthToken string
}

// FileOption customizes a FileLoader.
type FileOption func(*FileLoader)

// WithObjectStore injects the store used for s3:// URLs.
func WithObjectStore(store ObjectStore) FileOption {
	return func(l *FileLoader) { l.objects = store }
}

// WithLoaderLogger sets the loader logger.
func WithLoaderLogger(logger *slog.Logger) FileOption {
	return func(l *FileLoader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithTransport sets the HTTP transport for http(s) URLs.
func WithTransport(rt http.RoundTripper) FileOption {
	return func(l *FileLoader) { l.transport = rt }
}

// FileLoader fetches and decodes a whole dataset per Load.
type FileLoader struct {
	cfg       FileConfig
	location  *url.URL
	format    Format
	objects   ObjectStore
	transport http.RoundTripper
	logger    *slog.Logger
}

var _ Loader = (*FileLoader)(nil)

// NewFileLoader validates cfg.
func NewFileLoader(cfg FileConfig, opts ...FileOption) (*FileLoader, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("DATA_URL is required")
	}
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid data url: %w", err)
	}
	format, err := ParseFormat(cfg.Format, u.Path)
	if err != nil {
		return nil, err
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	l := &FileLoader{cfg: cfg, location: u, format: format, logger: slog.Default()}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Format returns the resolved data format.
func (l *FileLoader) Format() Format { return l.format }

// Load fetches the data and normalizes every row or item into a record.
func (l *FileLoader) Load(ctx context.Context) (*entity.Dataset, error) {
	l.logger.Info("fetching dataset", "format", l.format, "url", l.cfg.URL)
	data, err := l.fetch(ctx)
	if err != nil {
		return nil, err
	}

	var rows []map[string]any
	normalize := NormalizeRow
	switch l.format {
	case FormatJSON:
		rows, err = DecodeJSON(data)
		normalize = NormalizeItem
	case FormatCSV:
		rows, err = DecodeCSV(data)
	case FormatParquet:
		rows, err = DecodeParquet(data)
	}
	if err != nil {
		return nil, err
	}

	ds := &entity.Dataset{Records: make([]entity.Record, 0, len(rows)), Series: entity.Series{}}
	for i, row := range rows {
		rec, err := normalize(row)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		ds.Records = append(ds.Records, rec)
	}
	l.logger.Info("dataset loaded", "records", len(ds.Records), "bytes", len(data))
	return ds, nil
}

func (l *FileLoader) fetch(ctx context.Context) ([]byte, error) {
	switch l.location.Scheme {
	case "http", "https":
		return l.fetchHTTP(ctx)
	case "s3":
		return l.fetchObject(ctx)
	case "file", "":
		path := l.location.Path
		if l.location.Scheme == "" {
			path = l.cfg.URL
		}
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, wrapError(CodeObjectNotFound, false, err)
			}
			return nil, wrapError(CodeFetchFailed, false, err)
		}
		return data, nil
	default:
		return nil, wrapError(CodeFetchFailed, false, fmt.Errorf("unsupported data url scheme %q", l.location.Scheme))
	}
}

func (l *FileLoader) fetchHTTP(ctx context.Context) ([]byte, error) {
	var auth bbkhttp.AuthConfig = bbkhttp.NoAuth{}
	if l.cfg.AuthToken != "" {
		auth = bbkhttp.BearerToken{Token: l.cfg.AuthToken}
	}
	client := bbkhttp.NewClient(&bbkhttp.ClientConfig{
		BaseURL:    l.cfg.URL,
		Auth:       auth,
		Timeout:    l.cfg.Timeout,
		MaxRetries: 3,
		Transport:  l.transport,
	})
	resp, err := client.Get(ctx, "", nil)
	if err != nil {
		var httpErr *bbkhttp.HTTPError
		if !errors.As(err, &httpErr) {
			return nil, wrapError(CodeFetchFailed, true, err)
		}
		switch {
		case httpErr.IsNotFound():
			return nil, wrapError(CodeObjectNotFound, false, err)
		case httpErr.StatusCode == http.StatusUnauthorized:
			return nil, wrapError(CodeAuthInvalid, false, err)
		case httpErr.StatusCode == http.StatusForbidden:
			return nil, wrapError(CodePermissionDenied, false, err)
		}
		return nil, wrapError(CodeFetchFailed, true, err)
	}
	return resp.Body, nil
}

func (l *FileLoader) fetchObject(ctx context.Context) ([]byte, error) {
	bucket, key, err := splitS3URL(l.location)
	if err != nil {
		return nil, err
	}
	if l.objects == nil {
		client, err := NewS3Client(l.cfg.S3)
		if err != nil {
			return nil, err
		}
		l.objects = client
	}
	return l.objects.GetObject(ctx, bucket, key)
}
