package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"grail-oracle/config"
)

// ErrRateUnavailable means no cached rate exists and the live lookup
// failed. Callers skip the sample; they never abort the batch over it.
var ErrRateUnavailable = errors.New("fx rate unavailable")

// RateSource provides units-of-currency-per-USD exchange rates.
type RateSource interface {
	Rate(ctx context.Context, currency string) (float64, error)
}

// FXClient is a RateSource backed by a JSON rates API with an in-memory
// cache refreshed on TTL expiry. A stale cache keeps serving when the
// refresh fails; only a cold cache surfaces ErrRateUnavailable.
type FXClient struct {
	endpoint string
	ttl      time.Duration
	client   *http.Client
	logger   *logrus.Logger

	mu        sync.RWMutex
	rates     map[string]float64
	fetchedAt time.Time
}

// NewFXClient builds an FXClient from config.
func NewFXClient(cfg config.FXConfig, logger *logrus.Logger) *FXClient {
	return &FXClient{
		endpoint: cfg.Endpoint,
		ttl:      cfg.CacheTTL,
		client:   &http.Client{Timeout: cfg.Timeout},
		logger:   logger,
	}
}

// Rate returns how many units of currency one USD buys.
func (f *FXClient) Rate(ctx context.Context, currency string) (float64, error) {
	currency = strings.ToUpper(currency)
	if currency == "USD" {
		return 1, nil
	}

	if rate, ok := f.cached(currency); ok {
		return rate, nil
	}

	if err := f.refresh(ctx); err != nil {
		// A stale table beats no table.
		if rate, ok := f.cachedStale(currency); ok {
			f.logger.WithError(err).Warn("fx: refresh failed, serving stale rate")
			return rate, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRateUnavailable, err)
	}

	if rate, ok := f.cachedStale(currency); ok {
		return rate, nil
	}
	return 0, fmt.Errorf("%w: no rate for %s", ErrRateUnavailable, currency)
}

func (f *FXClient) cached(currency string) (float64, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if time.Since(f.fetchedAt) > f.ttl {
		return 0, false
	}
	rate, ok := f.rates[currency]
	return rate, ok && rate > 0
}

func (f *FXClient) cachedStale(currency string) (float64, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	rate, ok := f.rates[currency]
	return rate, ok && rate > 0
}

func (f *FXClient) refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.endpoint, nil)
	if err != nil {
		return fmt.Errorf("fx: build request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("fx: fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fx: unexpected status %d", resp.StatusCode)
	}

	var payload struct {
		Rates map[string]float64 `json:"rates"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return fmt.Errorf("fx: decode: %w", err)
	}
	if len(payload.Rates) == 0 {
		return fmt.Errorf("fx: empty rate table")
	}

	f.mu.Lock()
	f.rates = payload.Rates
	f.fetchedAt = time.Now()
	f.mu.Unlock()

	f.logger.WithField("currencies", len(payload.Rates)).Info("fx: rate table refreshed")
	return nil
}
