package enrich_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bit-broker/examples/internal/enrich"
	"github.com/bit-broker/examples/pkg/entity"
)

const flagURL = "http://commons.wikimedia.org/wiki/Special:FilePath/Flag%20of%20the%20United%20Kingdom.svg"

func sparqlServer(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		q := r.URL.Query().Get("query")
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		assert.Contains(t, q, "wdt:P41")

		w.Header().Set("Content-Type", "application/sparql-results+json")
		switch {
		case strings.Contains(q, "wd:Q145"):
			_, _ = w.Write([]byte(`{"head":{"vars":["item","value"]},"results":{"bindings":[
				{"item":{"type":"uri","value":"http://www.wikidata.org/entity/Q145"},
				 "value":{"type":"uri","value":"` + flagURL + `"}}]}}`))
		case strings.Contains(q, "wd:Q500"):
			http.Error(w, "upstream timeout", http.StatusGatewayTimeout)
		default:
			_, _ = w.Write([]byte(`{"head":{"vars":["item","value"]},"results":{"bindings":[]}}`))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func record(ref string) *entity.Record {
	rec := &entity.Record{ID: "GB", Name: "United Kingdom", Entity: map[string]any{"capital": "London"}}
	if ref != "" {
		rec.Private = map[string]any{"_wikidata": ref}
	}
	return rec
}

func TestWikidata_SetsFlag(t *testing.T) {
	var hits atomic.Int32
	srv := sparqlServer(t, &hits)
	w := enrich.NewWikidata(enrich.WikidataConfig{URL: srv.URL}, nil, nil)

	rec := record("Q145")
	require.NoError(t, w.Enrich(context.Background(), rec))
	assert.Equal(t, flagURL, rec.Entity["flag"])
	assert.Equal(t, "London", rec.Entity["capital"])
}

func TestWikidata_CustomTarget(t *testing.T) {
	var hits atomic.Int32
	srv := sparqlServer(t, &hits)
	w := enrich.NewWikidata(enrich.WikidataConfig{URL: srv.URL, RefField: "_qid", Target: "banner"}, nil, nil)

	rec := &entity.Record{ID: "GB", Private: map[string]any{"_qid": "Q145"}}
	require.NoError(t, w.Enrich(context.Background(), rec))
	assert.Equal(t, flagURL, rec.Entity["banner"])
}

func TestWikidata_NoReferenceNoQuery(t *testing.T) {
	var hits atomic.Int32
	srv := sparqlServer(t, &hits)
	w := enrich.NewWikidata(enrich.WikidataConfig{URL: srv.URL}, nil, nil)

	rec := record("")
	require.NoError(t, w.Enrich(context.Background(), rec))
	assert.NotContains(t, rec.Entity, "flag")
	assert.Zero(t, hits.Load())
}

func TestWikidata_RejectsInvalidReference(t *testing.T) {
	var hits atomic.Int32
	srv := sparqlServer(t, &hits)
	w := enrich.NewWikidata(enrich.WikidataConfig{URL: srv.URL}, nil, nil)

	err := w.Enrich(context.Background(), record("Q1 } . ?x ?y ?z"))
	assert.ErrorIs(t, err, enrich.ErrInvalidReference)
	assert.Zero(t, hits.Load())
}

func TestWikidata_UpstreamFailure(t *testing.T) {
	var hits atomic.Int32
	srv := sparqlServer(t, &hits)
	w := enrich.NewWikidata(enrich.WikidataConfig{URL: srv.URL}, nil, nil)

	rec := record("Q500")
	require.Error(t, w.Enrich(context.Background(), rec))
	assert.NotContains(t, rec.Entity, "flag")
}

func TestWikidata_CachesResults(t *testing.T) {
	var hits atomic.Int32
	srv := sparqlServer(t, &hits)
	cache := enrich.NewMemoryCache(16, 0)
	w := enrich.NewWikidata(enrich.WikidataConfig{URL: srv.URL}, cache, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		rec := record("Q145")
		require.NoError(t, w.Enrich(ctx, rec))
		assert.Equal(t, flagURL, rec.Entity["flag"])
	}
	assert.Equal(t, int32(1), hits.Load())

	// known-absent results are cached too
	for i := 0; i < 2; i++ {
		rec := record("Q999")
		require.NoError(t, w.Enrich(ctx, rec))
		assert.NotContains(t, rec.Entity, "flag")
	}
	assert.Equal(t, int32(2), hits.Load())
	assert.Equal(t, 2, cache.Len())
}
