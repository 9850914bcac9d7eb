// Package store holds the records a connector serves from its webhook.
package store

import (
	"context"
	"errors"
	"sync"

	"github.com/bit-broker/examples/pkg/entity"
)

// ErrNotFound is returned when no record has the requested id.
var ErrNotFound = errors.New("record not found")

// Store is the read side the webhook consults.
type Store interface {
	// FindByID returns the record with the given id or ErrNotFound.
	FindByID(ctx context.Context, id string) (*entity.Record, error)
	// FindTimeseries returns the points of one series inside the window. An
	// unknown entity or series yields an empty slice, not an error.
	FindTimeseries(ctx context.Context, id, series string, w entity.Window) ([]entity.Point, error)
}

// Memory is a Store backed by a loaded Dataset.
type Memory struct {
	mu     sync.RWMutex
	byID   map[string]*entity.Record
	series entity.Series
}

// NewMemory creates a store serving ds. A nil dataset yields an empty store.
func NewMemory(ds *entity.Dataset) *Memory {
	m := &Memory{}
	m.Replace(ds)
	return m
}

// Replace swaps the served dataset in one step. Readers see either the old or
// the new dataset, never a mix.
func (m *Memory) Replace(ds *entity.Dataset) {
	byID := make(map[string]*entity.Record)
	series := entity.Series{}
	if ds != nil {
		for i := range ds.Records {
			byID[ds.Records[i].ID] = ds.Records[i].Clone()
		}
		for id, byName := range ds.Series {
			for name, points := range byName {
				series.Add(id, name, points...)
			}
		}
	}

	m.mu.Lock()
	m.byID = byID
	m.series = series
	m.mu.Unlock()
}

// Len returns the number of records served.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byID)
}

// FindByID returns a copy of the stored record.
func (m *Memory) FindByID(ctx context.Context, id string) (*entity.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.Clone(), nil
}

// FindTimeseries applies the window to the stored points.
func (m *Memory) FindTimeseries(ctx context.Context, id, series string, w entity.Window) ([]entity.Point, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	points := m.series[id][series]
	m.mu.RUnlock()
	return w.Apply(points), nil
}
