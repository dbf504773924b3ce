package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grail-oracle/models"
)

func offersWithPrices(prices ...float64) []*models.Offer {
	offers := make([]*models.Offer, 0, len(prices))
	for _, p := range prices {
		offers = append(offers, &models.Offer{LandedUSD: p})
	}
	return offers
}

func TestAggregateMedianSmallSample(t *testing.T) {
	// 5 samples: no trimming, the 1000 outlier stays but the median holds.
	res := Aggregate("item-1", offersWithPrices(10, 20, 30, 40, 1000))
	require.NotNil(t, res)
	assert.Equal(t, 30.0, res.CanonicalPrice)
	assert.Equal(t, 5, res.SampleCount)
}

func TestAggregateTrimsOuterTenPercent(t *testing.T) {
	// 12 samples 1..12: one sample trimmed per side, median of 2..11.
	res := Aggregate("item-1", offersWithPrices(1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12))
	require.NotNil(t, res)
	assert.Equal(t, 6.5, res.CanonicalPrice)
	assert.Equal(t, 10, res.SampleCount)
}

func TestAggregateEvenLengthAveragesMiddle(t *testing.T) {
	res := Aggregate("item-1", offersWithPrices(10, 20, 30, 40))
	require.NotNil(t, res)
	assert.Equal(t, 25.0, res.CanonicalPrice)
}

func TestAggregateSingleSample(t *testing.T) {
	res := Aggregate("item-1", offersWithPrices(99.5))
	require.NotNil(t, res)
	assert.Equal(t, 99.5, res.CanonicalPrice)
	assert.Equal(t, 1, res.SampleCount)
}

func TestAggregateEmptyReturnsNil(t *testing.T) {
	assert.Nil(t, Aggregate("item-1", nil))
	assert.Nil(t, Aggregate("item-1", []*models.Offer{}))
}

func TestAggregateIgnoresNonPositivePrices(t *testing.T) {
	res := Aggregate("item-1", offersWithPrices(0, -5, 50))
	require.NotNil(t, res)
	assert.Equal(t, 50.0, res.CanonicalPrice)
	assert.Equal(t, 1, res.SampleCount)

	assert.Nil(t, Aggregate("item-1", offersWithPrices(0, 0)))
}

func TestAggregateIsIdempotent(t *testing.T) {
	offers := offersWithPrices(120, 80, 95, 400, 110, 99, 101, 103)

	first := Aggregate("item-1", offers)
	second := Aggregate("item-1", offers)

	require.NotNil(t, first)
	require.NotNil(t, second)
	assert.Equal(t, first.CanonicalPrice, second.CanonicalPrice)
	assert.Equal(t, first.SampleCount, second.SampleCount)
}
