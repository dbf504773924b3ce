package models

import "time"

// ConditionGrade is the letter grade the condition classifier assigns to an
// item. NR means the classifier could not rate the item at all.
type ConditionGrade string

const (
	GradeA  ConditionGrade = "A"
	GradeB  ConditionGrade = "B"
	GradeC  ConditionGrade = "C"
	GradeD  ConditionGrade = "D"
	GradeF  ConditionGrade = "F"
	GradeNR ConditionGrade = "NR"
)

// Valid reports whether g is one of the known grades.
func (g ConditionGrade) Valid() bool {
	switch g {
	case GradeA, GradeB, GradeC, GradeD, GradeF, GradeNR:
		return true
	}
	return false
}

// TrackedItem is a canonical asset the oracle prices. CanonicalPrice stays
// nil until the first successful aggregation; Ticker is unique across the
// catalog.
type TrackedItem struct {
	ID             string
	Title          string
	Ticker         string
	CanonicalPrice *float64
	LastUpdated    time.Time
	LastScannedAt  time.Time
	ConditionGrade ConditionGrade
	ConditionScore float64
	AINotes        string
	CreatedAt      time.Time
}

// Offer is one raw price observation for a TrackedItem from one source.
// Offers are immutable once recorded and belong to exactly one scrape
// attempt; they are persisted append-only as the pricing audit log.
type Offer struct {
	ItemID        string
	Source        string
	Region        string
	LocalPrice    float64
	LocalCurrency string
	LandedUSD     float64
	URL           string
	Condition     string
	Title         string
	ImageURL      string
	ObservedAt    time.Time
}

// AggregationResult is the fused output of all offers for one item within
// one scan cycle. CanonicalPrice is the trimmed-median landed USD price.
type AggregationResult struct {
	ItemID         string
	CanonicalPrice float64
	SampleCount    int
	ComputedAt     time.Time
}

// AlertCondition selects which direction a price alert fires on.
type AlertCondition string

const (
	AlertAbove AlertCondition = "above"
	AlertBelow AlertCondition = "below"
)

// PriceAlert is a user-defined one-shot trigger: once satisfied it is
// deactivated and never fires again.
type PriceAlert struct {
	ID          int64
	ItemID      string
	UserID      string
	TargetPrice float64
	Condition   AlertCondition
	IsActive    bool
	CreatedAt   time.Time
}

// Satisfied reports whether price meets the alert condition.
func (a *PriceAlert) Satisfied(price float64) bool {
	switch a.Condition {
	case AlertAbove:
		return price >= a.TargetPrice
	case AlertBelow:
		return price <= a.TargetPrice
	}
	return false
}

// Feed event types consumed by the downstream notification system.
const (
	FeedPriceUpdate = "PRICE_UPDATE"
	FeedPriceAlert  = "PRICE_ALERT"
)

// FeedEvent is an append-only notification row describing a price update or
// a triggered alert.
type FeedEvent struct {
	ID        string
	Type      string
	ItemID    string
	Title     string
	Message   string
	Price     float64
	Ticker    string
	CreatedAt time.Time
}
