package source_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bit-broker/examples/internal/source"
)

const countriesJSON = `[
  {"id": "GB", "name": "United Kingdom", "entity": {"capital": "London"}, "_wikidata": "Q145",
   "_population": [{"from": 1960, "value": 52400000}, {"from": 1961, "value": 52800000}]},
  {"id": "FR", "name": "France", "entity": {"capital": "Paris"}}
]`

type fakeObjects struct {
	objects map[string][]byte
	calls   int
}

func (f *fakeObjects) GetObject(_ context.Context, bucket, key string) ([]byte, error) {
	f.calls++
	data, ok := f.objects[bucket+"/"+key]
	if !ok {
		return nil, &source.Error{Code: source.CodeObjectNotFound}
	}
	return data, nil
}

func TestFileLoader_HTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/data/countries.json", r.URL.Path)
		_, _ = w.Write([]byte(countriesJSON))
	}))
	defer srv.Close()

	l, err := source.NewFileLoader(source.FileConfig{URL: srv.URL + "/data/countries.json"})
	require.NoError(t, err)
	assert.Equal(t, source.FormatJSON, l.Format())

	ds, err := l.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, ds.Records, 2)
	assert.Equal(t, "GB", ds.Records[0].ID)
	assert.Equal(t, "Q145", ds.Records[0].Private["_wikidata"])
}

func TestFileLoader_HTTPNotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	l, err := source.NewFileLoader(source.FileConfig{URL: srv.URL + "/missing.json"})
	require.NoError(t, err)

	_, err = l.Load(context.Background())
	var srcErr *source.Error
	require.ErrorAs(t, err, &srcErr)
	assert.Equal(t, source.CodeObjectNotFound, srcErr.Code)
	assert.False(t, srcErr.Retryable)
}

func TestFileLoader_LocalCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sites.csv")
	require.NoError(t, os.WriteFile(path, []byte("id,name,category\n1,Stonehenge,cultural\n"), 0o600))

	for _, loc := range []string{path, "file://" + path} {
		l, err := source.NewFileLoader(source.FileConfig{URL: loc})
		require.NoError(t, err)
		assert.Equal(t, source.FormatCSV, l.Format())

		ds, err := l.Load(context.Background())
		require.NoError(t, err)
		require.Len(t, ds.Records, 1)
		assert.Equal(t, "1", ds.Records[0].ID)
		assert.Equal(t, "cultural", ds.Records[0].Entity["category"])
	}
}

func TestFileLoader_MissingFile(t *testing.T) {
	l, err := source.NewFileLoader(source.FileConfig{URL: filepath.Join(t.TempDir(), "none.json")})
	require.NoError(t, err)

	_, err = l.Load(context.Background())
	var srcErr *source.Error
	require.ErrorAs(t, err, &srcErr)
	assert.Equal(t, source.CodeObjectNotFound, srcErr.Code)
}

func TestFileLoader_S3(t *testing.T) {
	objects := &fakeObjects{objects: map[string][]byte{
		"datasets/world/countries.json": []byte(countriesJSON),
	}}
	l, err := source.NewFileLoader(source.FileConfig{URL: "s3://datasets/world/countries.json"},
		source.WithObjectStore(objects))
	require.NoError(t, err)

	ds, err := l.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, ds.Records, 2)
	assert.Equal(t, 1, objects.calls)
}

func TestFileLoader_S3NeedsEndpoint(t *testing.T) {
	l, err := source.NewFileLoader(source.FileConfig{URL: "s3://datasets/countries.json"})
	require.NoError(t, err)

	_, err = l.Load(context.Background())
	var srcErr *source.Error
	require.ErrorAs(t, err, &srcErr)
	assert.Equal(t, source.CodeEndpointUnreachable, srcErr.Code)
}

func TestFileLoader_RejectsBadConfig(t *testing.T) {
	_, err := source.NewFileLoader(source.FileConfig{})
	assert.Error(t, err)
	_, err = source.NewFileLoader(source.FileConfig{URL: "/x.json", Format: "xlsx"})
	assert.Error(t, err)
}

func TestFileLoader_HTTPBearerToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer s3cret" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(countriesJSON))
	}))
	defer srv.Close()

	l, err := source.NewFileLoader(source.FileConfig{URL: srv.URL + "/countries.json", AuthToken: "s3cret"})
	require.NoError(t, err)
	ds, err := l.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, ds.Records, 2)

	l, err = source.NewFileLoader(source.FileConfig{URL: srv.URL + "/countries.json"})
	require.NoError(t, err)
	_, err = l.Load(context.Background())
	var srcErr *source.Error
	require.ErrorAs(t, err, &srcErr)
	assert.Equal(t, source.CodeAuthInvalid, srcErr.Code)
	assert.False(t, srcErr.Retryable)
}
