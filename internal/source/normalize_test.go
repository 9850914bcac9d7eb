package source_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bit-broker/examples/internal/source"
)

func TestNormalizeRow_Sections(t *testing.T) {
	rec, err := source.NormalizeRow(map[string]any{
		"id":                float64(7),
		"name":              "Stonehenge",
		"entity/category":   "cultural",
		"instance/visitors": float64(1300000),
		"country":           "GB",
		"longitude":         -1.826,
		"latitude":          51.179,
		"_wikidata":         "Q39671",
	})
	require.NoError(t, err)

	assert.Equal(t, "7", rec.ID)
	assert.Equal(t, "Stonehenge", rec.Name)
	assert.Equal(t, "cultural", rec.Entity["category"])
	assert.Equal(t, "GB", rec.Entity["country"])
	assert.Equal(t, float64(1300000), rec.Instance["visitors"])
	assert.Equal(t, "Q39671", rec.Private["_wikidata"])
	assert.NotContains(t, rec.Entity, "longitude")
	assert.NotContains(t, rec.Entity, "latitude")
	assert.Equal(t, map[string]any{
		"type":        "Point",
		"coordinates": []any{-1.826, 51.179},
	}, rec.Entity["location"])
}

func TestNormalizeRow_RequiresID(t *testing.T) {
	_, err := source.NormalizeRow(map[string]any{"name": "nameless"})
	require.Error(t, err)

	var srcErr *source.Error
	require.ErrorAs(t, err, &srcErr)
	assert.Equal(t, source.CodeInvalidRecord, srcErr.Code)
}

func TestNormalizeItem(t *testing.T) {
	rec, err := source.NormalizeItem(map[string]any{
		"id":          "GB",
		"name":        "United Kingdom",
		"entity":      map[string]any{"capital": "London"},
		"instance":    map[string]any{},
		"currency":    "GBP",
		"_wikidata":   "Q145",
		"_population": []any{},
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"capital": "London", "currency": "GBP"}, rec.Entity)
	assert.Nil(t, rec.Instance, "empty instance is dropped")
	assert.Len(t, rec.Private, 2)
}

func TestItemRoundTrip(t *testing.T) {
	in := map[string]any{
		"id":        "FR",
		"name":      "France",
		"entity":    map[string]any{"capital": "Paris"},
		"instance":  map[string]any{"open": true},
		"_wikidata": "Q142",
	}
	rec, err := source.NormalizeItem(in)
	require.NoError(t, err)
	assert.Equal(t, in, source.Item(&rec))
}
