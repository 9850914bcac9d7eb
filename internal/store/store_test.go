package store_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bit-broker/examples/internal/store"
	"github.com/bit-broker/examples/pkg/entity"
)

func dataset() *entity.Dataset {
	ds := &entity.Dataset{
		Records: []entity.Record{
			{ID: "GB", Name: "United Kingdom", Entity: map[string]any{"capital": "London"}},
			{ID: "FR", Name: "France", Entity: map[string]any{"capital": "Paris"}},
		},
		Series: entity.Series{},
	}
	for year := 1960; year <= 2017; year++ {
		ds.Series.Add("GB", "population", entity.Point{From: entity.YearStart(year), Value: year})
	}
	return ds
}

func TestMemory_FindByID(t *testing.T) {
	m := store.NewMemory(dataset())
	ctx := context.Background()

	rec, err := m.FindByID(ctx, "GB")
	require.NoError(t, err)
	assert.Equal(t, "United Kingdom", rec.Name)

	_, err = m.FindByID(ctx, "XX")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestMemory_FindByIDReturnsCopy(t *testing.T) {
	m := store.NewMemory(dataset())
	ctx := context.Background()

	rec, err := m.FindByID(ctx, "GB")
	require.NoError(t, err)
	rec.Entity["flag"] = "mutated"

	again, err := m.FindByID(ctx, "GB")
	require.NoError(t, err)
	assert.NotContains(t, again.Entity, "flag")
}

func TestMemory_FindTimeseries(t *testing.T) {
	m := store.NewMemory(dataset())
	ctx := context.Background()

	all, err := m.FindTimeseries(ctx, "GB", "population", entity.Window{})
	require.NoError(t, err)
	assert.Len(t, all, 58)

	some, err := m.FindTimeseries(ctx, "GB", "population", entity.Window{
		Start: entity.YearStart(2000), End: entity.YearStart(2010), Limit: 3,
	})
	require.NoError(t, err)
	require.Len(t, some, 3)
	assert.Equal(t, 2000, some[0].Value)

	none, err := m.FindTimeseries(ctx, "FR", "population", entity.Window{})
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestMemory_Replace(t *testing.T) {
	m := store.NewMemory(nil)
	assert.Zero(t, m.Len())

	m.Replace(dataset())
	assert.Equal(t, 2, m.Len())

	m.Replace(&entity.Dataset{Records: []entity.Record{{ID: "DE"}}})
	_, err := m.FindByID(context.Background(), "GB")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestMemory_ConcurrentReadsDuringReplace(t *testing.T) {
	m := store.NewMemory(dataset())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_, _ = m.FindByID(ctx, "GB")
				_, _ = m.FindTimeseries(ctx, "GB", "population", entity.Window{Limit: 5})
			}
		}()
	}
	for i := 0; i < 20; i++ {
		m.Replace(dataset())
	}
	wg.Wait()
	assert.Equal(t, 2, m.Len())
}
