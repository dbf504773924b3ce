package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grail-oracle/config"
	"grail-oracle/utils"
)

func newFXServer(failing *atomic.Bool, hits *atomic.Int32) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if failing.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"rates": {"JPY": 150.0, "GBP": 0.8, "AUD": 1.5}}`))
	}))
}

func newFXClient(endpoint string, ttl time.Duration) *FXClient {
	return NewFXClient(config.FXConfig{
		Endpoint: endpoint,
		CacheTTL: ttl,
		Timeout:  time.Second,
	}, utils.NewLogger("error"))
}

func TestFXRateFetchesAndCaches(t *testing.T) {
	var failing atomic.Bool
	var hits atomic.Int32
	srv := newFXServer(&failing, &hits)
	defer srv.Close()

	fx := newFXClient(srv.URL, time.Hour)

	rate, err := fx.Rate(context.Background(), "JPY")
	require.NoError(t, err)
	assert.Equal(t, 150.0, rate)

	// Second lookup inside the TTL must not hit the endpoint again.
	rate, err = fx.Rate(context.Background(), "GBP")
	require.NoError(t, err)
	assert.Equal(t, 0.8, rate)
	assert.Equal(t, int32(1), hits.Load())
}

func TestFXRateUSDNeedsNoEndpoint(t *testing.T) {
	fx := newFXClient("http://127.0.0.1:1", time.Hour)

	rate, err := fx.Rate(context.Background(), "usd")
	require.NoError(t, err)
	assert.Equal(t, 1.0, rate)
}

func TestFXRateServesStaleOnRefreshFailure(t *testing.T) {
	var failing atomic.Bool
	var hits atomic.Int32
	srv := newFXServer(&failing, &hits)
	defer srv.Close()

	// Zero TTL: every lookup wants a refresh.
	fx := newFXClient(srv.URL, 0)

	rate, err := fx.Rate(context.Background(), "JPY")
	require.NoError(t, err)
	assert.Equal(t, 150.0, rate)

	failing.Store(true)

	rate, err = fx.Rate(context.Background(), "JPY")
	require.NoError(t, err, "stale table must keep serving")
	assert.Equal(t, 150.0, rate)
}

func TestFXRateColdCacheFails(t *testing.T) {
	fx := newFXClient("http://127.0.0.1:1", time.Hour)

	_, err := fx.Rate(context.Background(), "JPY")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRateUnavailable)
}

func TestFXRateUnknownCurrency(t *testing.T) {
	var failing atomic.Bool
	var hits atomic.Int32
	srv := newFXServer(&failing, &hits)
	defer srv.Close()

	fx := newFXClient(srv.URL, time.Hour)

	_, err := fx.Rate(context.Background(), "THB")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRateUnavailable)
}
