package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFetcher() *Fetcher {
	return New(Options{
		UserAgent: "test-agent",
		Timeout:   5 * time.Second,
	})
}

func TestFetch_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		assert.Equal(t, "token-123", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte("hello world"))
	}))
	defer srv.Close()

	f := newTestFetcher()
	res, err := f.Fetch(context.Background(), srv.URL+"/page", map[string]string{"Authorization": "token-123"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "hello world", string(res.Body))
}

func TestFetch_CertificateFallback(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("served insecurely"))
	}))
	defer srv.Close()

	// The server's self-signed certificate fails the strict attempt; only
	// the relaxed retry reaches the handler.
	f := newTestFetcher()
	res, err := f.Fetch(context.Background(), srv.URL, nil)
	require.NoError(t, err)
	assert.Equal(t, "served insecurely", string(res.Body))
	assert.Equal(t, int32(1), hits.Load())
}

func TestFetch_BothAttemptsFail(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := newTestFetcher()
	_, err := f.Fetch(context.Background(), srv.URL, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTransport))
	// Exactly one retry, no more.
	assert.Equal(t, int32(2), hits.Load())
}

func TestFetch_NonSuccessStatusRetriedOnce(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		_, _ = w.Write([]byte("second time lucky"))
	}))
	defer srv.Close()

	f := newTestFetcher()
	res, err := f.Fetch(context.Background(), srv.URL, nil)
	require.NoError(t, err)
	assert.Equal(t, "second time lucky", string(res.Body))
	assert.Equal(t, int32(2), hits.Load())
}

func TestResult_JSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"name":"acme","count":3}`))
	}))
	defer srv.Close()

	f := newTestFetcher()
	res, err := f.Fetch(context.Background(), srv.URL, nil)
	require.NoError(t, err)

	v, ok, err := res.JSON()
	require.NoError(t, err)
	require.True(t, ok)
	m, isMap := v.(map[string]any)
	require.True(t, isMap)
	assert.Equal(t, "acme", m["name"])
}

func TestResult_JSON_OtherContentType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`{"looks":"like json"}`))
	}))
	defer srv.Close()

	f := newTestFetcher()
	res, err := f.Fetch(context.Background(), srv.URL, nil)
	require.NoError(t, err)

	v, ok, err := res.JSON()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, v)
}

func TestResult_DownloadToFile_RoundTrip(t *testing.T) {
	payload := []byte{0x00, 0x01, 0xFF, 'p', 'd', 'f', 0x7F}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	f := newTestFetcher()
	res, err := f.Fetch(context.Background(), srv.URL, nil)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "out.bin")
	require.NoError(t, res.DownloadToFile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, payload, data)
	assert.Equal(t, res.Body, data)
}

func TestResult_DownloadToFile_BadPath(t *testing.T) {
	res := &Result{Body: []byte("x")}
	err := res.DownloadToFile(filepath.Join(t.TempDir(), "missing", "dir", "out.bin"))
	require.Error(t, err)
}
