package services

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"unicode"

	"github.com/sirupsen/logrus"

	"grail-oracle/models"
	"grail-oracle/storage"
)

// SanityChecker gates whether a generated seed keyword names a real
// product worth scraping.
type SanityChecker interface {
	SanityCheck(ctx context.Context, title string) bool
}

// CatalogManager owns tracked-item creation and deletion: it selects the
// next scan batch, grows the catalog from related-item links, and prunes
// ghost nodes that a full scan cycle yielded no data for.
type CatalogManager struct {
	store  storage.Store
	seeds  *SeedGenerator
	sanity SanityChecker
	logger *logrus.Logger
}

// NewCatalogManager wires the manager over the store, the seed generator,
// and the sanity-check classifier.
func NewCatalogManager(store storage.Store, seeds *SeedGenerator, sanity SanityChecker, logger *logrus.Logger) *CatalogManager {
	return &CatalogManager{store: store, seeds: seeds, sanity: sanity, logger: logger}
}

// NextBatch selects up to batchSize items for the next scan cycle, in
// priority order: the manual keyword if present, then stale items (no
// price first, oldest after), then freshly generated seeds when the stale
// pool runs short. Store failures skip the affected item, never the batch.
func (c *CatalogManager) NextBatch(ctx context.Context, manualKeyword string, batchSize int) []*models.TrackedItem {
	var batch []*models.TrackedItem
	seen := make(map[string]struct{})

	if manualKeyword != "" {
		if item := c.UpsertKeyword(manualKeyword); item != nil {
			batch = append(batch, item)
			seen[item.ID] = struct{}{}
		}
	}

	stale, err := c.store.StaleItems(batchSize)
	if err != nil {
		c.logger.WithError(err).Error("catalog: stale-item query failed")
	}
	for _, item := range stale {
		if len(batch) >= batchSize {
			break
		}
		if _, dup := seen[item.ID]; dup {
			continue
		}
		batch = append(batch, item)
		seen[item.ID] = struct{}{}
	}

	if len(batch) < batchSize {
		batch = append(batch, c.generateSeeds(ctx, batchSize-len(batch))...)
	}

	c.logger.WithField("items", len(batch)).Info("catalog: batch selected")
	return batch
}

// UpsertKeyword upserts a free-text keyword as a tracked item and returns
// the stored row. Returns nil on store failure.
func (c *CatalogManager) UpsertKeyword(keyword string) *models.TrackedItem {
	title := strings.TrimSpace(keyword)
	if title == "" {
		return nil
	}

	stored, err := c.store.UpsertItem(&models.TrackedItem{
		Title:  title,
		Ticker: MakeTicker(title),
	})
	if err != nil {
		c.logger.WithError(err).WithField("keyword", title).Error("catalog: upsert failed")
		return nil
	}
	return stored
}

// Expand upserts related-item titles surfaced during a scrape as new
// unpriced, low-priority tracked items.
func (c *CatalogManager) Expand(relatedTitles []string) {
	for _, raw := range relatedTitles {
		title := strings.TrimSpace(raw)
		if len(title) < 4 {
			continue
		}

		exists, err := c.store.TitleExists(title)
		if err != nil {
			c.logger.WithError(err).Debug("catalog: expand lookup failed")
			continue
		}
		if exists {
			continue
		}

		if _, err := c.store.UpsertItem(&models.TrackedItem{
			Title:  title,
			Ticker: MakeTicker(title),
		}); err != nil {
			c.logger.WithError(err).WithField("title", title).Warn("catalog: expand upsert failed")
			continue
		}
		c.logger.WithField("title", title).Debug("catalog: related item added")
	}
}

// Prune deletes a ghost node: an item whose full scan cycle produced zero
// valid offers is presumed fabricated or unfindable.
func (c *CatalogManager) Prune(item *models.TrackedItem) {
	if err := c.store.DeleteItem(item.ID); err != nil {
		c.logger.WithError(err).WithField("ticker", item.Ticker).Error("catalog: prune failed")
		return
	}
	c.logger.WithFields(logrus.Fields{
		"ticker": item.Ticker,
		"title":  item.Title,
	}).Info("catalog: ghost node pruned")
}

// generateSeeds pulls the next seeds for this shard, filters the ones
// already tracked or failing the sanity check, and upserts the rest.
func (c *CatalogManager) generateSeeds(ctx context.Context, n int) []*models.TrackedItem {
	shardID := c.seeds.cfg.ShardID
	cursor, err := c.store.SeedCursor(shardID)
	if err != nil {
		c.logger.WithError(err).Error("catalog: seed cursor load failed")
		return nil
	}

	var out []*models.TrackedItem
	for len(out) < n {
		keywords, next := c.seeds.Next(cursor, n-len(out))
		if next == cursor {
			break // shard exhausted
		}
		cursor = next

		for _, kw := range keywords {
			exists, err := c.store.TitleExists(kw)
			if err != nil || exists {
				continue
			}
			if !c.sanity.SanityCheck(ctx, kw) {
				c.logger.WithField("seed", kw).Info("catalog: seed rejected by sanity check")
				continue
			}
			if item := c.UpsertKeyword(kw); item != nil {
				out = append(out, item)
			}
		}
	}

	if err := c.store.SaveSeedCursor(shardID, cursor); err != nil {
		c.logger.WithError(err).Error("catalog: seed cursor save failed")
	}
	return out
}

// MakeTicker derives a short unique symbol from a title: condensed
// uppercase words plus a stable hash suffix to keep distinct titles from
// colliding.
func MakeTicker(title string) string {
	var b strings.Builder
	for _, word := range strings.Fields(strings.ToUpper(title)) {
		for _, r := range word {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				b.WriteRune(r)
			}
			if b.Len() >= 12 {
				break
			}
		}
		if b.Len() >= 12 {
			break
		}
	}

	h := fnv.New32a()
	h.Write([]byte(strings.ToLower(strings.TrimSpace(title))))
	return fmt.Sprintf("%s-%04X", b.String(), h.Sum32()&0xFFFF)
}
