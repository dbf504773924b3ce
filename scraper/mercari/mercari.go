// Package mercari scrapes Mercari Japan (jp.mercari.com) search results.
// Prices are extracted in JPY; the node configuration carries the currency.
package mercari

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/chromedp/chromedp"

	"grail-oracle/config"
	"grail-oracle/scraper"
)

const name = "mercari"

// Adapter implements scraper.Adapter for Mercari JP.
type Adapter struct {
	SelectorWait time.Duration
}

func New(selectorWait time.Duration) *Adapter {
	return &Adapter{SelectorWait: selectorWait}
}

func (a *Adapter) Name() string { return name }

func (a *Adapter) Scrape(ctx context.Context, keyword string, node config.Node) (*scraper.Result, error) {
	searchURL := fmt.Sprintf(
		"https://jp.mercari.com/search?keyword=%s&status=on_sale&sort=created_time&order=desc",
		url.QueryEscape(keyword))

	// Mercari is a client-rendered SPA and needs a longer settle.
	if err := scraper.Navigate(ctx, searchURL, 5*time.Second); err != nil {
		return nil, fmt.Errorf("%w: navigate: %v", scraper.ErrSourceUnavailable, err)
	}

	if err := scraper.WaitForMarker(ctx, a.SelectorWait,
		`li[data-testid="item-cell"]`, `div[data-testid="search-results"]`); err != nil {
		return scraper.ClassifyWaitFailure(ctx)
	}

	var cards []scraper.Card

	err := chromedp.Run(ctx,
		chromedp.Evaluate(`
			(function() {
				var results = [];
				var cells = document.querySelectorAll('li[data-testid="item-cell"]');

				// Fallback for markup revisions: any grid of item links.
				if (cells.length === 0) {
					cells = document.querySelectorAll('a[href^="/item/m"]');
				}

				for (var i = 0; i < cells.length && results.length < 30; i++) {
					var cell = cells[i];

					var linkEl = cell.tagName === 'A' ? cell : cell.querySelector('a[href^="/item/"]');
					if (!linkEl) continue;
					var href = linkEl.href;

					var thumb = cell.querySelector('mer-item-thumbnail');
					var title = '', price = '', img = '';

					if (thumb) {
						title = thumb.getAttribute('item-name') || '';
						price = thumb.getAttribute('price') || '';
						img = thumb.getAttribute('src') || '';
					} else {
						var nameEl = cell.querySelector('[data-testid="thumbnail-item-name"]') ||
						             cell.querySelector('span[class*="itemName"]');
						title = nameEl ? nameEl.innerText.trim() : '';

						var priceEl = cell.querySelector('[data-testid="price"]') ||
						              cell.querySelector('span[class*="price"]');
						price = priceEl ? priceEl.innerText.trim() : '';

						var imgEl = cell.querySelector('img');
						img = imgEl ? imgEl.src : '';
					}

					if (!title && !price) continue;

					results.push({
						title: title,
						price: price,
						url: href,
						image: img,
						condition: ''
					});
				}
				return results;
			})()
		`, &cards),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: extract: %v", scraper.ErrParse, err)
	}

	return &scraper.Result{
		Offers: scraper.CardsToOffers(cards, name, node),
	}, nil
}
