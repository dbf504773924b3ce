package storage

import (
	"time"

	"grail-oracle/models"
)

// Store is the persistence surface the catalog manager, scheduler, and API
// depend on. The postgres implementation is the production backend; tests
// substitute fakes.
type Store interface {
	// Tracked items. UpsertItem conflicts on ticker and returns the stored
	// row (existing ID on conflict).
	UpsertItem(item *models.TrackedItem) (*models.TrackedItem, error)
	GetItemByTicker(ticker string) (*models.TrackedItem, error)
	GetItemByTitle(title string) (*models.TrackedItem, error)
	TitleExists(title string) (bool, error)
	StaleItems(limit int) ([]*models.TrackedItem, error)
	UpdatePrice(itemID string, price float64, grade models.ConditionGrade, score float64, notes string) error
	MarkScanned(itemID string, at time.Time) error
	DeleteItem(itemID string) error

	// Offers are append-only audit rows.
	InsertOffers(offers []*models.Offer) error

	// Alerts.
	ActiveAlerts(itemID string) ([]*models.PriceAlert, error)
	DeactivateAlert(id int64) error

	// Feed events are append-only.
	InsertFeedEvent(ev *models.FeedEvent) error

	// Seed generator cursor for this worker shard.
	SeedCursor(shardID int) (int, error)
	SaveSeedCursor(shardID, cursor int) error

	Close() error
}
