package http_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bbkhttp "github.com/bit-broker/examples/internal/connector/http"
)

func newClient(baseURL string, retries int) *bbkhttp.Client {
	return bbkhttp.NewClient(&bbkhttp.ClientConfig{
		BaseURL:    baseURL,
		MaxRetries: retries,
		Timeout:    5 * time.Second,
		Auth:       bbkhttp.APIKey{Key: "secret", Header: "x-bbk-auth-token"},
	})
}

func TestClient_GetAppliesAuthAndJoinsPath(t *testing.T) {
	var gotPath, gotToken string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotToken = r.Header.Get("x-bbk-auth-token")
		_, _ = io.WriteString(w, `"sid-1"`)
	}))
	defer srv.Close()

	client := newClient(srv.URL+"/v1/", 0)
	resp, err := client.Get(context.Background(), "/connector/abc/session/open/stream", nil)
	require.NoError(t, err)

	var sid string
	require.NoError(t, resp.JSON(&sid))
	assert.Equal(t, "sid-1", sid)
	assert.Equal(t, "/v1/connector/abc/session/open/stream", gotPath)
	assert.Equal(t, "secret", gotToken)
}

func TestClient_PostSendsJSON(t *testing.T) {
	var contentType, body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		data, _ := io.ReadAll(r.Body)
		body = string(data)
		_, _ = io.WriteString(w, `{}`)
	}))
	defer srv.Close()

	_, err := newClient(srv.URL, 0).Post(context.Background(), "x", []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, "application/json", contentType)
	assert.JSONEq(t, `["a","b"]`, body)
}

func TestClient_NoRetryWhenDisabled(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := newClient(srv.URL, 0).Get(context.Background(), "", nil)
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, http.StatusInternalServerError, bbkhttp.StatusCode(err))
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, `ok`)
	}))
	defer srv.Close()

	resp, err := newClient(srv.URL, 3).Get(context.Background(), "", nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(resp.Body))
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "nope", http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := newClient(srv.URL, 3).Get(context.Background(), "", nil)
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())

	var httpErr *bbkhttp.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, "nope", httpErr.Message)
}

func TestClient_HonorsRetryAfter(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "1")
			http.Error(w, "slow down", http.StatusTooManyRequests)
			return
		}
		_, _ = io.WriteString(w, `ok`)
	}))
	defer srv.Close()

	start := time.Now()
	_, err := newClient(srv.URL, 1).Get(context.Background(), "", nil)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), time.Second)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_RejectsOversizedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "0123456789")
	}))
	defer srv.Close()

	client := bbkhttp.NewClient(&bbkhttp.ClientConfig{BaseURL: srv.URL, MaxBodyBytes: 4})
	_, err := client.Get(context.Background(), "", nil)
	assert.ErrorContains(t, err, "exceeds 4 bytes")
}
