package pricing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRate_LiveFetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/data/price", r.URL.Path)
		assert.Equal(t, "BTC", r.URL.Query().Get("fsym"))
		assert.Equal(t, "USD", r.URL.Query().Get("tsyms"))
		w.Write([]byte(`{"USD": 64250.5}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, 65000)

	rate, err := client.Rate(context.Background())
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.NewFromFloat(64250.5)), "got %s", rate)
}

func TestRate_ServesCacheWithinTTL(t *testing.T) {
	var hits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(`{"USD": 60000}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, 65000)

	for i := 0; i < 3; i++ {
		rate, err := client.Rate(context.Background())
		require.NoError(t, err)
		assert.True(t, rate.Equal(decimal.NewFromInt(60000)))
	}

	assert.Equal(t, int64(1), hits.Load())
}

func TestRate_ServesStaleRateWhenFetchFails(t *testing.T) {
	var broken atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if broken.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"USD": 61000}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, 65000)

	_, err := client.Rate(context.Background())
	require.NoError(t, err)

	// Expire the cache and break the API: the last good rate must win over
	// the configured fallback.
	client.ttl = 0
	broken.Store(true)

	rate, err := client.Rate(context.Background())
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.NewFromInt(61000)), "got %s", rate)
}

func TestRate_FallsBackWhenColdAndUnreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(server.URL, 65000)

	rate, err := client.Rate(context.Background())
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.NewFromInt(65000)), "got %s", rate)
}

func TestRate_ErrorsWhenColdAndNoFallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(server.URL, 0)

	_, err := client.Rate(context.Background())
	require.ErrorIs(t, err, ErrPriceUnavailable)
}

func TestRate_RejectsNonPositiveRate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"USD": 0}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, 65000)

	rate, err := client.Rate(context.Background())
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.NewFromInt(65000)), "zero rate must fall back, got %s", rate)
}

func TestRate_RejectsMalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer server.Close()

	client := NewClient(server.URL, 65000)

	rate, err := client.Rate(context.Background())
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.NewFromInt(65000)), "got %s", rate)
}
