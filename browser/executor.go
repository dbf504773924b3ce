package browser

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"grail-oracle/config"
	"grail-oracle/scraper"
	"grail-oracle/utils"
)

// Executor wraps one adapter invocation with a page per attempt, a hard
// timeout race, and a bounded jittered retry loop. It never raises to the
// caller: a fully failed invocation is a nil result, so one broken source
// can never abort a batch.
type Executor struct {
	pages          PageFactory
	logger         *logrus.Logger
	attemptTimeout time.Duration
	maxAttempts    int
	backoffMin     time.Duration
	backoffMax     time.Duration
}

// NewExecutor builds an Executor over the given page factory.
func NewExecutor(pages PageFactory, cfg config.BrowserConfig, logger *logrus.Logger) *Executor {
	return &Executor{
		pages:          pages,
		logger:         logger,
		attemptTimeout: cfg.AttemptTimeout,
		maxAttempts:    cfg.MaxAttempts,
		backoffMin:     cfg.BackoffMin,
		backoffMax:     cfg.BackoffMax,
	}
}

// Run executes adapter for (keyword, node). It returns the scrape result,
// or nil once all attempts are exhausted. A parse failure counts as a valid
// empty result: the site answered, its markup just moved.
func (e *Executor) Run(ctx context.Context, adapter scraper.Adapter, keyword string, node config.Node) *scraper.Result {
	log := e.logger.WithFields(logrus.Fields{
		"source":  adapter.Name(),
		"region":  node.Region,
		"keyword": keyword,
	})

	retry := &utils.RetryConfig{
		MaxAttempts: e.maxAttempts,
		BackoffMin:  e.backoffMin,
		BackoffMax:  e.backoffMax,
		Logger:      e.logger,
	}

	var result *scraper.Result
	err := retry.Do(ctx, adapter.Name()+"/"+node.Region, func() error {
		res, err := e.attempt(ctx, adapter, keyword, node)
		if err != nil {
			if errors.Is(err, scraper.ErrParse) {
				log.WithError(err).Warn("executor: markup mismatch, treating as empty")
				result = &scraper.Result{}
				return nil
			}
			if errors.Is(err, scraper.ErrSourceUnavailable) {
				// Bot blocks cool off longer than plain failures.
				e.coolOff(ctx)
			}
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		log.WithError(err).Error("executor: all attempts failed, skipping source")
		return nil
	}

	log.WithField("offers", len(result.Offers)).Debug("executor: scrape complete")
	return result
}

// attempt runs one adapter invocation on a fresh page. The page context is
// cancelled on every exit path; partial results from a timed-out attempt
// are discarded with it.
func (e *Executor) attempt(ctx context.Context, adapter scraper.Adapter, keyword string, node config.Node) (*scraper.Result, error) {
	pageCtx, closePage, err := e.pages.NewPage(ctx)
	if err != nil {
		return nil, scraper.ErrSourceUnavailable
	}
	defer closePage()

	attemptCtx, cancel := context.WithTimeout(pageCtx, e.attemptTimeout)
	defer cancel()

	type outcome struct {
		res *scraper.Result
		err error
	}
	done := make(chan outcome, 1)

	go func() {
		res, err := adapter.Scrape(attemptCtx, keyword, node)
		done <- outcome{res, err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			if attemptCtx.Err() != nil {
				return nil, scraper.ErrTimeout
			}
			return nil, out.err
		}
		return out.res, nil
	case <-attemptCtx.Done():
		// The deferred closePage force-closes the page the adapter is
		// still holding; the stray goroutine unblocks and its result is
		// dropped via the buffered channel.
		return nil, scraper.ErrTimeout
	}
}

func (e *Executor) coolOff(ctx context.Context) {
	select {
	case <-time.After(e.backoffMax):
	case <-ctx.Done():
	}
}
