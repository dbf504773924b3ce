// Package grailed scrapes Grailed (grailed.com) feed results. Listing
// cards carry a condition hint in the metadata line, which feeds the
// condition grader downstream.
package grailed

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/chromedp/chromedp"

	"grail-oracle/config"
	"grail-oracle/scraper"
)

const name = "grailed"

// Adapter implements scraper.Adapter for Grailed.
type Adapter struct {
	SelectorWait time.Duration
}

func New(selectorWait time.Duration) *Adapter {
	return &Adapter{SelectorWait: selectorWait}
}

func (a *Adapter) Name() string { return name }

func (a *Adapter) Scrape(ctx context.Context, keyword string, node config.Node) (*scraper.Result, error) {
	searchURL := fmt.Sprintf("https://www.grailed.com/shop?query=%s",
		url.QueryEscape(keyword))

	if err := scraper.Navigate(ctx, searchURL, 4*time.Second); err != nil {
		return nil, fmt.Errorf("%w: navigate: %v", scraper.ErrSourceUnavailable, err)
	}

	if err := scraper.WaitForMarker(ctx, a.SelectorWait,
		".feed-item", "[class*=ListingCard]", ".feed"); err != nil {
		return scraper.ClassifyWaitFailure(ctx)
	}

	var cards []scraper.Card
	var related []string

	err := chromedp.Run(ctx,
		// Feed items lazy-load; one scroll pass fills the first rows.
		chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight / 2)`, nil),
		chromedp.Sleep(2*time.Second),
		chromedp.Evaluate(`
			(function() {
				var results = [];
				var items = document.querySelectorAll('.feed-item, [class*="ListingCard"]');
				for (var i = 0; i < items.length && results.length < 30; i++) {
					var item = items[i];

					var linkEl = item.querySelector('a[href*="/listings/"]') ||
					             (item.tagName === 'A' ? item : null);
					if (!linkEl || !linkEl.href) continue;

					var titleEl = item.querySelector('[class*="listing-title"]') ||
					              item.querySelector('p[class*="title"]') ||
					              item.querySelector('.truncate');
					var title = titleEl ? titleEl.innerText.trim() : '';

					var priceEl = item.querySelector('[class*="price"] span') ||
					              item.querySelector('[class*="Price"]') ||
					              item.querySelector('span[data-testid="Current"]');
					var price = priceEl ? priceEl.innerText.trim() : '';

					var imgEl = item.querySelector('img');
					var img = imgEl ? imgEl.src : '';

					var metaEl = item.querySelector('[class*="metadata"]') ||
					             item.querySelector('[class*="condition"]');
					var cond = metaEl ? metaEl.innerText.trim() : '';

					if (!title && !price) continue;

					results.push({
						title: title,
						price: price,
						url: linkEl.href,
						image: img,
						condition: cond
					});
				}
				return results;
			})()
		`, &cards),
		chromedp.Evaluate(`
			(function() {
				var titles = [];
				var links = document.querySelectorAll('[class*="related"] a, [class*="module-wrapper"] a[href*="query="]');
				for (var i = 0; i < links.length && titles.length < 8; i++) {
					var t = links[i].innerText.trim();
					if (t.length > 3 && t.length < 80) titles.push(t);
				}
				return titles;
			})()
		`, &related),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: extract: %v", scraper.ErrParse, err)
	}

	return &scraper.Result{
		Offers:        scraper.CardsToOffers(cards, name, node),
		RelatedTitles: related,
	}, nil
}
