// Package ebay scrapes eBay search results. The node's TLD selects the
// international site (ebay.com, ebay.co.uk, ebay.com.au).
package ebay

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/chromedp/chromedp"

	"grail-oracle/config"
	"grail-oracle/scraper"
)

const name = "ebay"

// Adapter implements scraper.Adapter for eBay.
type Adapter struct {
	SelectorWait time.Duration
}

// New creates an eBay adapter with the given marker-wait budget.
func New(selectorWait time.Duration) *Adapter {
	return &Adapter{SelectorWait: selectorWait}
}

func (a *Adapter) Name() string { return name }

// Scrape loads the search results for keyword on the node's eBay site and
// extracts listing cards.
func (a *Adapter) Scrape(ctx context.Context, keyword string, node config.Node) (*scraper.Result, error) {
	tld := node.TLD
	if tld == "" {
		tld = "com"
	}
	searchURL := fmt.Sprintf("https://www.ebay.%s/sch/i.html?_nkw=%s&_sop=12",
		tld, url.QueryEscape(keyword))

	if err := scraper.Navigate(ctx, searchURL, 3*time.Second); err != nil {
		return nil, fmt.Errorf("%w: navigate: %v", scraper.ErrSourceUnavailable, err)
	}

	if err := scraper.WaitForMarker(ctx, a.SelectorWait,
		"ul.srp-results", "#srp-river-results"); err != nil {
		return scraper.ClassifyWaitFailure(ctx)
	}

	var cards []scraper.Card
	var related []string

	err := chromedp.Run(ctx,
		chromedp.Evaluate(`
			(function() {
				var results = [];
				var items = document.querySelectorAll('li.s-item, li[data-viewport]');
				for (var i = 0; i < items.length && results.length < 30; i++) {
					var item = items[i];

					var titleEl = item.querySelector('.s-item__title span[role="heading"]') ||
					              item.querySelector('.s-item__title') ||
					              item.querySelector('span.s-item__title');
					var title = titleEl ? titleEl.innerText.trim() : '';
					if (!title || title.toLowerCase() === 'shop on ebay') continue;

					var priceEl = item.querySelector('.s-item__price');
					var price = priceEl ? priceEl.innerText.trim() : '';
					if (price.indexOf(' to ') !== -1) {
						price = price.split(' to ')[0];
					}

					var linkEl = item.querySelector('a.s-item__link') ||
					             item.querySelector('a[href*="/itm/"]');
					var href = linkEl ? linkEl.href : '';

					var imgEl = item.querySelector('.s-item__image img') ||
					            item.querySelector('img');
					var img = imgEl ? (imgEl.src || imgEl.getAttribute('data-src') || '') : '';

					var condEl = item.querySelector('.SECONDARY_INFO') ||
					             item.querySelector('.s-item__subtitle');
					var cond = condEl ? condEl.innerText.trim() : '';

					results.push({
						title: title,
						price: price,
						url: href,
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
				var links = document.querySelectorAll(
					'.srp-related-searches a, .srp-rail__right a[href*="_nkw"]');
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
