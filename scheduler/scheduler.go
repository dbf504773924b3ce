// Package scheduler drives the scan-cycle state machine: batch selection,
// per-item scans across geographic nodes and source adapters, aggregation,
// persistence, and alert evaluation. Failures at any source are isolated;
// nothing in a cycle can crash the process.
package scheduler

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"grail-oracle/config"
	"grail-oracle/models"
	"grail-oracle/scraper"
	"grail-oracle/services"
	"grail-oracle/storage"
	"grail-oracle/utils"
)

// Runner executes one adapter invocation with retries and timeouts. The
// browser-backed executor implements it; tests substitute fakes.
type Runner interface {
	Run(ctx context.Context, adapter scraper.Adapter, keyword string, node config.Node) *scraper.Result
}

// ConditionGrader assigns a grade from listing text.
type ConditionGrader interface {
	Grade(ctx context.Context, title, conditionText string) services.GradeResult
}

// OfferSink receives the cycle's raw offers for flat-file auditing.
type OfferSink interface {
	Append(offers []*models.Offer) error
}

// Scheduler owns the scan-cycle lifecycle.
type Scheduler struct {
	cfg      config.SchedulerConfig
	store    storage.Store
	catalog  *services.CatalogManager
	runner   Runner
	norm     *services.Normalizer
	grader   ConditionGrader
	adapters map[string]scraper.Adapter
	nodes    []config.Node
	offerLog OfferSink
	logger   *logrus.Logger

	// pacer spaces scrape invocations globally, across all concurrent
	// item pipelines, at one start per PacingMin.
	pacer *rate.Limiter

	mu      sync.Mutex
	running bool
	trigger chan string
}

// New wires a Scheduler. offerLog may be nil to disable CSV auditing.
func New(
	cfg config.SchedulerConfig,
	store storage.Store,
	catalog *services.CatalogManager,
	runner Runner,
	norm *services.Normalizer,
	grader ConditionGrader,
	adapters map[string]scraper.Adapter,
	nodes []config.Node,
	offerLog OfferSink,
	logger *logrus.Logger,
) *Scheduler {
	return &Scheduler{
		cfg:      cfg,
		store:    store,
		catalog:  catalog,
		runner:   runner,
		norm:     norm,
		grader:   grader,
		adapters: adapters,
		nodes:    nodes,
		offerLog: offerLog,
		logger:   logger,
		pacer:    rate.NewLimiter(rate.Every(cfg.PacingMin), 1),
		trigger:  make(chan string, 16),
	}
}

// Run loops full cycles on the configured interval and serves on-demand
// keyword triggers between ticks. Blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.CycleInterval)
	defer ticker.Stop()

	s.logger.WithField("interval", s.cfg.CycleInterval).Info("scheduler: loop started")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler: loop stopped")
			return
		case <-ticker.C:
			s.RunCycle(ctx, "")
		case keyword := <-s.trigger:
			s.RunCycle(ctx, keyword)
		}
	}
}

// TriggerCycle queues a full batch cycle with no user keyword. Returns
// false when the queue is full.
func (s *Scheduler) TriggerCycle() bool {
	return s.TriggerKeyword("")
}

// TriggerKeyword queues a cycle that scans keyword first.
func (s *Scheduler) TriggerKeyword(keyword string) bool {
	select {
	case s.trigger <- keyword:
		return true
	default:
		return false
	}
}

// RunCycle executes one full cycle:
// Idle → BatchSelected → PerItemScan → Aggregating → Persisted → AlertCheck.
// Overlapping cycles are collapsed into one.
func (s *Scheduler) RunCycle(ctx context.Context, manualKeyword string) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.Warn("scheduler: cycle already running, skipping")
		return
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	if s.cfg.CycleBudget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.CycleBudget)
		defer cancel()
	}

	started := time.Now()
	batch := s.catalog.NextBatch(ctx, manualKeyword, s.cfg.BatchSize)
	if len(batch) == 0 {
		s.logger.Info("scheduler: nothing to scan")
		return
	}

	// Items run as independent pipelines; the pool caps concurrent
	// browser-heavy scans.
	pool := utils.NewWorkerPool(s.cfg.Concurrency, 0)
	for _, item := range batch {
		it := item
		pool.Submit(ctx, func() {
			s.ScanItem(ctx, it)
		})
	}
	pool.Wait()

	s.logger.WithFields(logrus.Fields{
		"items":   len(batch),
		"elapsed": time.Since(started).Round(time.Second),
	}).Info("scheduler: cycle complete")
}

// ScanItem runs one item's full pipeline: every (node × enabled adapter)
// combination through the runner, normalization, aggregation, then either
// persistence with alert evaluation or ghost pruning. Aggregation only
// happens after all combinations were attempted.
func (s *Scheduler) ScanItem(ctx context.Context, item *models.TrackedItem) {
	log := s.logger.WithFields(logrus.Fields{"ticker": item.Ticker, "title": item.Title})
	log.Info("scheduler: scanning item")

	var offers []*models.Offer
	var related []string
	seenTitles := utils.NewStringSet()

	for _, node := range s.nodes {
		for _, sourceName := range node.Sources {
			adapter, ok := s.adapters[sourceName]
			if !ok {
				log.WithField("source", sourceName).Warn("scheduler: unknown adapter, skipping")
				continue
			}
			if ctx.Err() != nil {
				log.Info("scheduler: cycle budget exhausted, item rolls to next cycle")
				return
			}

			s.pace(ctx)

			res := s.runner.Run(ctx, adapter, item.Title, node)
			if res == nil {
				continue
			}
			offers = append(offers, s.normalize(ctx, item.ID, node, res.Offers)...)
			// Sources repeat each other's suggestions; only the first
			// sighting of a title goes to the catalog.
			for _, title := range res.RelatedTitles {
				if seenTitles.Add(scraper.NormalizeTitle(title)) {
					related = append(related, title)
				}
			}
		}
	}

	if err := s.store.MarkScanned(item.ID, time.Now()); err != nil {
		log.WithError(err).Warn("scheduler: mark-scanned failed")
	}

	if len(offers) == 0 {
		// A full cycle with zero valid offers is a ghost node, not an error.
		s.catalog.Prune(item)
		return
	}

	result := services.Aggregate(item.ID, offers)
	if result == nil {
		s.catalog.Prune(item)
		return
	}

	s.persist(ctx, item, result, offers, log)
	s.checkAlerts(item, result.CanonicalPrice, log)
	s.catalog.Expand(related)
}

// normalize converts raw offers into landed USD, dropping samples whose
// rate lookup failed.
func (s *Scheduler) normalize(ctx context.Context, itemID string, node config.Node, raw []*models.Offer) []*models.Offer {
	out := make([]*models.Offer, 0, len(raw))
	for _, o := range raw {
		landed, err := s.norm.ToLandedUSD(ctx, o.LocalPrice, o.LocalCurrency, node.Region)
		if err != nil {
			s.logger.WithError(err).WithField("currency", o.LocalCurrency).
				Warn("scheduler: sample dropped, rate unavailable")
			continue
		}
		o.ItemID = itemID
		o.LandedUSD = landed
		out = append(out, o)
	}
	return out
}

// persist writes the audit offers and the canonical price; a store failure
// here skips the item without aborting the batch.
func (s *Scheduler) persist(ctx context.Context, item *models.TrackedItem, result *models.AggregationResult, offers []*models.Offer, log *logrus.Entry) {
	if err := s.store.InsertOffers(offers); err != nil {
		log.WithError(err).Error("scheduler: offer insert failed")
	}
	if s.offerLog != nil {
		if err := s.offerLog.Append(offers); err != nil {
			log.WithError(err).Warn("scheduler: offer audit log failed")
		}
	}

	grade := s.grader.Grade(ctx, item.Title, bestConditionText(offers))

	if err := s.store.UpdatePrice(item.ID, result.CanonicalPrice, grade.Grade, grade.Score, grade.Notes); err != nil {
		log.WithError(err).Error("scheduler: price write failed, skipping item")
		return
	}

	log.WithFields(logrus.Fields{
		"price":   result.CanonicalPrice,
		"samples": result.SampleCount,
		"grade":   grade.Grade,
	}).Info("scheduler: canonical price persisted")

	s.emitFeedEvent(&models.FeedEvent{
		Type:    models.FeedPriceUpdate,
		ItemID:  item.ID,
		Title:   item.Title,
		Message: fmt.Sprintf("%s priced at $%.2f from %d offers", item.Title, result.CanonicalPrice, result.SampleCount),
		Price:   result.CanonicalPrice,
		Ticker:  item.Ticker,
	})
}

// checkAlerts fires every satisfied active alert exactly once: emit the
// feed event, then deactivate.
func (s *Scheduler) checkAlerts(item *models.TrackedItem, price float64, log *logrus.Entry) {
	alerts, err := s.store.ActiveAlerts(item.ID)
	if err != nil {
		log.WithError(err).Error("scheduler: alert query failed")
		return
	}

	for _, alert := range alerts {
		if !alert.Satisfied(price) {
			continue
		}

		s.emitFeedEvent(&models.FeedEvent{
			Type:   models.FeedPriceAlert,
			ItemID: item.ID,
			Title:  item.Title,
			Message: fmt.Sprintf("%s hit $%.2f (target: %s $%.2f)",
				item.Title, price, alert.Condition, alert.TargetPrice),
			Price:  price,
			Ticker: item.Ticker,
		})

		if err := s.store.DeactivateAlert(alert.ID); err != nil {
			log.WithError(err).Error("scheduler: alert deactivation failed")
		}
	}
}

func (s *Scheduler) emitFeedEvent(ev *models.FeedEvent) {
	if err := s.store.InsertFeedEvent(ev); err != nil {
		s.logger.WithError(err).Error("scheduler: feed event insert failed")
	}
}

// pace blocks until the shared limiter grants a scrape slot, then sleeps
// an extra jitter so invocations land in [PacingMin, PacingMax] apart.
func (s *Scheduler) pace(ctx context.Context) {
	if err := s.pacer.Wait(ctx); err != nil {
		return
	}
	if span := s.cfg.PacingMax - s.cfg.PacingMin; span > 0 {
		select {
		case <-time.After(time.Duration(rand.Int63n(int64(span)))):
		case <-ctx.Done():
		}
	}
}

// bestConditionText picks the longest condition string across offers,
// falling back to the longest title; more text gives the grader more
// signal.
func bestConditionText(offers []*models.Offer) string {
	var best string
	for _, o := range offers {
		if len(o.Condition) > len(best) {
			best = o.Condition
		}
	}
	if best != "" {
		return best
	}
	for _, o := range offers {
		if len(o.Title) > len(best) {
			best = o.Title
		}
	}
	return best
}
