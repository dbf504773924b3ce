package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grail-oracle/config"
)

// stubRates is a fixed units-per-USD table.
type stubRates map[string]float64

func (s stubRates) Rate(_ context.Context, currency string) (float64, error) {
	if currency == "USD" {
		return 1, nil
	}
	rate, ok := s[currency]
	if !ok {
		return 0, ErrRateUnavailable
	}
	return rate, nil
}

func testLandedTable() map[string]config.LandedCost {
	return map[string]config.LandedCost{
		"US": {DutyMultiplier: 1.0, FlatShippingUSD: 0},
		"JP": {DutyMultiplier: 1.10, FlatShippingUSD: 65},
		"UK": {DutyMultiplier: 1.05, FlatShippingUSD: 45},
		"AU": {DutyMultiplier: 1.05, FlatShippingUSD: 55},
	}
}

func TestToLandedUSDDomestic(t *testing.T) {
	n := NewNormalizer(stubRates{}, testLandedTable())

	got, err := n.ToLandedUSD(context.Background(), 100, "USD", "US")
	require.NoError(t, err)
	assert.Equal(t, 100.0, got)
}

func TestToLandedUSDAppliesDutyAndShipping(t *testing.T) {
	n := NewNormalizer(stubRates{}, testLandedTable())

	got, err := n.ToLandedUSD(context.Background(), 100, "USD", "JP")
	require.NoError(t, err)
	assert.Equal(t, 175.0, got) // 100*1.10 + 65
}

func TestToLandedUSDConvertsCurrencyFirst(t *testing.T) {
	n := NewNormalizer(stubRates{"JPY": 150}, testLandedTable())

	got, err := n.ToLandedUSD(context.Background(), 15000, "JPY", "JP")
	require.NoError(t, err)
	assert.InDelta(t, 15000/150.0*1.10+65, got, 1e-9) // 175
}

func TestToLandedUSDRateUnavailable(t *testing.T) {
	n := NewNormalizer(stubRates{}, testLandedTable())

	_, err := n.ToLandedUSD(context.Background(), 100, "THB", "US")
	assert.ErrorIs(t, err, ErrRateUnavailable)
}

func TestToLandedUSDUnknownRegionIsPassthrough(t *testing.T) {
	n := NewNormalizer(stubRates{}, testLandedTable())

	got, err := n.ToLandedUSD(context.Background(), 100, "USD", "BR")
	require.NoError(t, err)
	assert.Equal(t, 100.0, got)
}
