package services

import (
	"context"
	"fmt"

	"grail-oracle/config"
)

// Normalizer converts a raw local-currency price into a USD landed cost:
// FX conversion first, then the origin region's duty multiplier and flat
// shipping estimate. Deterministic given a rate-table snapshot.
type Normalizer struct {
	rates  RateSource
	landed map[string]config.LandedCost
}

// NewNormalizer builds a Normalizer over the given rate source and the
// per-region landed-cost table from config.
func NewNormalizer(rates RateSource, landed map[string]config.LandedCost) *Normalizer {
	return &Normalizer{rates: rates, landed: landed}
}

// ToLandedUSD converts amount in currency, observed in originRegion, to a
// USD landed cost. Returns ErrRateUnavailable (wrapped) when the currency
// cannot be converted; the caller skips that sample.
func (n *Normalizer) ToLandedUSD(ctx context.Context, amount float64, currency, originRegion string) (float64, error) {
	rate, err := n.rates.Rate(ctx, currency)
	if err != nil {
		return 0, err
	}
	if rate <= 0 {
		return 0, fmt.Errorf("%w: non-positive rate for %s", ErrRateUnavailable, currency)
	}
	usd := amount / rate

	cost, ok := n.landed[originRegion]
	if !ok {
		// Unknown region contributes the plain USD conversion.
		return usd, nil
	}
	return usd*cost.DutyMultiplier + cost.FlatShippingUSD, nil
}
