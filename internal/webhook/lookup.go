package webhook

import (
	"context"
	"log/slog"
	"time"

	"github.com/bit-broker/examples/internal/enrich"
	"github.com/bit-broker/examples/internal/source"
	"github.com/bit-broker/examples/internal/store"
	"github.com/bit-broker/examples/pkg/entity"
)

// ErrNotFound from LookupEntity is answered with 404.
var ErrNotFound = store.ErrNotFound

// Lookup answers the two pull requests the catalog makes.
type Lookup interface {
	LookupEntity(ctx context.Context, entityType, entityID string) (*entity.Record, error)
	// LookupTimeseries returns an empty slice, not an error, when the entity
	// or the series is unknown.
	LookupTimeseries(ctx context.Context, entityType, entityID, seriesID string, w entity.Window) ([]entity.Point, error)
}

// StoreLookup serves records from a store and enriches entity responses.
//
// Enrichment failure never hides a record: the base record is returned
// without the enrichment field and a warning is logged.
type StoreLookup struct {
	Store    store.Store
	Enricher enrich.Enricher
	// EntityType, when set, limits answers to that type.
	EntityType string
	// RefProp and RefCID rewrite bbk:// references on the way out, so records
	// read live from a database match what the sync uploaded.
	RefProp string
	RefCID  string
	// EnrichTimeout bounds one enrichment call (default: 5s).
	EnrichTimeout time.Duration
	Logger        *slog.Logger
}

var _ Lookup = (*StoreLookup)(nil)

func (l *StoreLookup) logger() *slog.Logger {
	if l.Logger != nil {
		return l.Logger
	}
	return slog.Default()
}

func (l *StoreLookup) servesType(entityType string) bool {
	return l.EntityType == "" || l.EntityType == entityType
}

// LookupEntity loads the record and enriches a copy of it.
func (l *StoreLookup) LookupEntity(ctx context.Context, entityType, entityID string) (*entity.Record, error) {
	if !l.servesType(entityType) {
		return nil, ErrNotFound
	}
	stored, err := l.Store.FindByID(ctx, entityID)
	if err != nil {
		return nil, err
	}
	rec := stored.Clone()
	source.RewriteRef(rec, l.RefProp, l.RefCID)
	if l.Enricher == nil {
		return rec, nil
	}

	timeout := l.EnrichTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	enrichCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	enriched := rec.Clone()
	if err := l.Enricher.Enrich(enrichCtx, enriched); err != nil {
		l.logger().Warn("enrichment failed, serving base record", "type", entityType, "id", entityID, "error", err)
		return rec, nil
	}
	return enriched, nil
}

// LookupTimeseries reads the windowed series from the store.
func (l *StoreLookup) LookupTimeseries(ctx context.Context, entityType, entityID, seriesID string, w entity.Window) ([]entity.Point, error) {
	if !l.servesType(entityType) {
		return []entity.Point{}, nil
	}
	points, err := l.Store.FindTimeseries(ctx, entityID, seriesID, w)
	if err != nil {
		return nil, err
	}
	if points == nil {
		points = []entity.Point{}
	}
	return points, nil
}
