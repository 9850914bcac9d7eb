// Package enrich adds live attributes to webhook responses.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"time"

	bbkhttp "github.com/bit-broker/examples/internal/connector/http"
	"github.com/bit-broker/examples/pkg/entity"
)

// Enricher mutates a record in place with extra attributes.
type Enricher interface {
	Enrich(ctx context.Context, rec *entity.Record) error
}

// ErrInvalidReference is returned for reference ids that are not Wikidata items.
var ErrInvalidReference = errors.New("invalid wikidata reference")

const DefaultWikidataURL = "https://query.wikidata.org/sparql"

var itemID = regexp.MustCompile(`^Q[0-9]+$`)

// WikidataConfig configures the SPARQL lookup.
type WikidataConfig struct {
	// URL is the SPARQL endpoint (default: query.wikidata.org).
	URL string
	// RefField is the private record field holding the item id (default: _wikidata).
	RefField string
	// Target is the entity attribute to set (default: flag).
	Target string
	// Property is the Wikidata property fetched (default: P41, flag image).
	Property string
	// Timeout per query (default: 10s).
	Timeout time.Duration
	// RateLimit caps queries per second (default: 5).
	RateLimit float64
	Transport http.RoundTripper
}

// Wikidata looks up one property of the record's Wikidata item.
type Wikidata struct {
	client *bbkhttp.Client
	cfg    WikidataConfig
	cache  Cache
	logger *slog.Logger
}

var _ Enricher = (*Wikidata)(nil)

// NewWikidata creates the enricher. A nil cache disables caching.
func NewWikidata(cfg WikidataConfig, cache Cache, logger *slog.Logger) *Wikidata {
	if cfg.URL == "" {
		cfg.URL = DefaultWikidataURL
	}
	if cfg.RefField == "" {
		cfg.RefField = "_wikidata"
	}
	if cfg.Target == "" {
		cfg.Target = "flag"
	}
	if cfg.Property == "" {
		cfg.Property = "P41"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 5
	}
	if logger == nil {
		logger = slog.Default()
	}

	client := bbkhttp.NewClient(&bbkhttp.ClientConfig{
		BaseURL:    cfg.URL,
		Timeout:    cfg.Timeout,
		MaxRetries: 1,
		RateLimit:  cfg.RateLimit,
		Headers:    map[string]string{"Accept": "application/sparql-results+json"},
		Transport:  cfg.Transport,
	})
	return &Wikidata{client: client, cfg: cfg, cache: cache, logger: logger.With("enricher", "wikidata")}
}

// Enrich sets the target attribute when the record references a Wikidata
// item that has the property. Records without a reference are left alone.
func (w *Wikidata) Enrich(ctx context.Context, rec *entity.Record) error {
	ref, ok := rec.PrivateString(w.cfg.RefField)
	if !ok {
		return nil
	}
	if !itemID.MatchString(ref) {
		return fmt.Errorf("%w: %q", ErrInvalidReference, ref)
	}

	value, err := w.lookup(ctx, ref)
	if err != nil {
		return err
	}
	if value != "" {
		if rec.Entity == nil {
			rec.Entity = map[string]any{}
		}
		rec.Entity[w.cfg.Target] = value
	}
	return nil
}

func (w *Wikidata) lookup(ctx context.Context, ref string) (string, error) {
	if w.cache != nil {
		v, found, err := w.cache.Get(ctx, ref)
		if err != nil {
			w.logger.Warn("enrichment cache read failed", "ref", ref, "error", err)
		} else if found {
			return v, nil
		}
	}

	value, err := w.query(ctx, ref)
	if err != nil {
		return "", err
	}

	if w.cache != nil {
		if err := w.cache.Set(ctx, ref, value); err != nil {
			w.logger.Warn("enrichment cache write failed", "ref", ref, "error", err)
		}
	}
	return value, nil
}

type sparqlResponse struct {
	Results struct {
		Bindings []map[string]struct {
			Type  string `json:"type"`
			Value string `json:"value"`
		} `json:"bindings"`
	} `json:"results"`
}

func (w *Wikidata) query(ctx context.Context, ref string) (string, error) {
	q := fmt.Sprintf("SELECT ?item ?value WHERE { ?item wdt:%s ?value VALUES ?item { wd:%s } }", w.cfg.Property, ref)
	resp, err := w.client.Get(ctx, "", url.Values{"query": {q}, "format": {"json"}})
	if err != nil {
		return "", fmt.Errorf("wikidata query %s: %w", ref, err)
	}

	var out sparqlResponse
	if err := resp.JSON(&out); err != nil {
		return "", fmt.Errorf("wikidata query %s: decode: %w", ref, err)
	}
	if len(out.Results.Bindings) == 0 {
		return "", nil
	}
	return out.Results.Bindings[0]["value"].Value, nil
}
