package services

import (
	"sort"
	"time"

	"grail-oracle/models"
)

// trimFraction is the share trimmed from each end of the sorted sample
// list before taking the median, once enough samples exist.
const trimFraction = 0.10

// minSamplesForTrim is the sample count above which trimming kicks in.
const minSamplesForTrim = 5

// Aggregate fuses all landed USD prices observed for one item in one scan
// cycle into its canonical price: sort, trim the outer 10% per side when
// count > 5, take the median (mean of middle two for even lengths). A pure
// function — the same offers always yield the same price. Empty input
// returns nil: that is "no market data", and the caller prunes the item
// instead of writing a price.
func Aggregate(itemID string, offers []*models.Offer) *models.AggregationResult {
	if len(offers) == 0 {
		return nil
	}

	prices := make([]float64, 0, len(offers))
	for _, o := range offers {
		if o.LandedUSD > 0 {
			prices = append(prices, o.LandedUSD)
		}
	}
	if len(prices) == 0 {
		return nil
	}

	sort.Float64s(prices)

	if len(prices) > minSamplesForTrim {
		trim := int(float64(len(prices)) * trimFraction)
		if trim > 0 {
			prices = prices[trim : len(prices)-trim]
		}
	}

	return &models.AggregationResult{
		ItemID:         itemID,
		CanonicalPrice: median(prices),
		SampleCount:    len(prices),
		ComputedAt:     time.Now(),
	}
}

func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
