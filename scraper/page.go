package scraper

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
)

// Card is the raw listing shape adapters extract from a results page before
// any cleaning.
type Card struct {
	Title     string `json:"title"`
	Price     string `json:"price"`
	URL       string `json:"url"`
	Image     string `json:"image"`
	Condition string `json:"condition"`
}

// WaitForMarker polls until any of the selectors appears in the DOM, up to
// timeout. A timeout is returned as a plain error so callers can decide
// between "empty page" and "blocked page".
func WaitForMarker(ctx context.Context, timeout time.Duration, selectors ...string) error {
	quoted := make([]string, 0, len(selectors))
	for _, s := range selectors {
		quoted = append(quoted, fmt.Sprintf("%q", s))
	}
	expr := fmt.Sprintf(
		`[%s].some(function(sel){ return document.querySelector(sel) !== null; })`,
		strings.Join(quoted, ","),
	)

	err := chromedp.Run(ctx,
		chromedp.Poll(expr, nil, chromedp.WithPollingTimeout(timeout)),
	)
	if err != nil {
		return fmt.Errorf("marker wait: %w", err)
	}
	return nil
}

// PageText returns the visible text of the current page, used for
// bot-block signature checks.
func PageText(ctx context.Context) (string, error) {
	var text string
	err := chromedp.Run(ctx,
		chromedp.Evaluate(`document.body ? document.body.innerText.slice(0, 4000) : ''`, &text),
	)
	if err != nil {
		return "", fmt.Errorf("page text: %w", err)
	}
	return text, nil
}

// Navigate loads the URL and gives the page a moment to settle, matching
// the render delay dynamic marketplaces need before their cards exist.
func Navigate(ctx context.Context, url string, settle time.Duration) error {
	return chromedp.Run(ctx,
		chromedp.Navigate(url),
		chromedp.Sleep(settle),
	)
}

// ClassifyWaitFailure turns a failed marker wait into the adapter contract:
// a blocked page raises ErrSourceUnavailable, anything else is a valid
// empty result (nil, nil).
func ClassifyWaitFailure(ctx context.Context) (*Result, error) {
	text, err := PageText(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	if IsBotBlocked(text) {
		return nil, fmt.Errorf("%w: challenge page detected", ErrSourceUnavailable)
	}
	return &Result{}, nil
}
