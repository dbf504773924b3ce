// Package scraper defines the source-adapter contract every marketplace
// integration implements, plus the shared extraction helpers.
package scraper

import (
	"context"
	"errors"

	"grail-oracle/config"
	"grail-oracle/models"
)

// Error kinds an adapter may surface. Anything else is wrapped as a parse
// failure by the fetch executor.
var (
	// ErrSourceUnavailable means the site is unreachable or served a
	// bot-block/CAPTCHA page. Retried with a longer backoff upstream.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrParse means the result markup no longer matches the expected
	// selectors. Treated as a zero-result invocation upstream.
	ErrParse = errors.New("parse error")

	// ErrTimeout means the attempt exceeded its hard deadline.
	ErrTimeout = errors.New("scrape timeout")
)

// Result is the outcome of one adapter invocation. Zero offers with a nil
// error is a valid "no results found" — distinct from a raised error, which
// means the site itself misbehaved.
type Result struct {
	Offers []*models.Offer

	// RelatedTitles are item names the adapter spotted on the same results
	// page (recommendation rails, "similar items"). The catalog manager
	// upserts them as new unpriced tracked items.
	RelatedTitles []string
}

// Adapter turns one marketplace's search results page into offers. The
// passed context is a live chromedp page context owned by the caller;
// adapters navigate and evaluate against it but never close it, and never
// touch storage.
type Adapter interface {
	Name() string
	Scrape(ctx context.Context, keyword string, node config.Node) (*Result, error)
}
