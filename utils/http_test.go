package utils

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"restock-monitor/config"
)

func testFetchConfig() config.FetchConfig {
	return config.FetchConfig{
		RequestsPerSecond: 100, // fast for testing
		Burst:             10,
		MaxRetries:        2,
		Timeout:           5 * time.Second,
	}
}

func TestFetcher_Get_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("test response"))
	}))
	defer server.Close()

	fetcher := NewFetcher(testFetchConfig(), "test-agent", logrus.New())

	body, err := fetcher.Get(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, "test response", string(body))
}

func TestFetcher_Get_RetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("eventually"))
	}))
	defer server.Close()

	fetcher := NewFetcher(testFetchConfig(), "test-agent", logrus.New())

	body, err := fetcher.Get(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, "eventually", string(body))
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetcher_Get_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	fetcher := NewFetcher(testFetchConfig(), "test-agent", logrus.New())

	_, err := fetcher.Get(context.Background(), server.URL)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status code: 404")
}

func TestFetcher_Get_ContextCancelled(t *testing.T) {
	fetcher := NewFetcher(testFetchConfig(), "test-agent", logrus.New())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := fetcher.Get(ctx, "http://example.com")
	assert.Error(t, err)
}
