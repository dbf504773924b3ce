// Package yahooauctions scrapes Yahoo! Auctions Japan
// (auctions.yahoo.co.jp). Buy-it-now prices are preferred over current bids
// when both are shown.
package yahooauctions

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/chromedp/chromedp"

	"grail-oracle/config"
	"grail-oracle/scraper"
)

const name = "yahooauctions"

// Adapter implements scraper.Adapter for Yahoo! Auctions JP.
type Adapter struct {
	SelectorWait time.Duration
}

func New(selectorWait time.Duration) *Adapter {
	return &Adapter{SelectorWait: selectorWait}
}

func (a *Adapter) Name() string { return name }

func (a *Adapter) Scrape(ctx context.Context, keyword string, node config.Node) (*scraper.Result, error) {
	searchURL := fmt.Sprintf("https://auctions.yahoo.co.jp/search/search?p=%s&s1=new&o1=d",
		url.QueryEscape(keyword))

	if err := scraper.Navigate(ctx, searchURL, 3*time.Second); err != nil {
		return nil, fmt.Errorf("%w: navigate: %v", scraper.ErrSourceUnavailable, err)
	}

	if err := scraper.WaitForMarker(ctx, a.SelectorWait,
		"li.Product", "div.SearchResults", "#AS-m19"); err != nil {
		return scraper.ClassifyWaitFailure(ctx)
	}

	var cards []scraper.Card

	err := chromedp.Run(ctx,
		chromedp.Evaluate(`
			(function() {
				var results = [];
				var items = document.querySelectorAll('li.Product');
				for (var i = 0; i < items.length && results.length < 30; i++) {
					var item = items[i];

					var titleEl = item.querySelector('.Product__titleLink') ||
					              item.querySelector('h3 a');
					var title = titleEl ? titleEl.innerText.trim() : '';
					var href = titleEl ? titleEl.href : '';

					// Prefer the buy-it-now price; fall back to current bid.
					var price = '';
					var bidorbuyEl = item.querySelector('.Product__priceValue--bidorbuy');
					var bidEl = item.querySelector('.Product__priceValue');
					if (bidorbuyEl) {
						price = bidorbuyEl.innerText.trim();
					} else if (bidEl) {
						price = bidEl.innerText.trim();
					}

					var imgEl = item.querySelector('.Product__imageData') ||
					            item.querySelector('img');
					var img = imgEl ? imgEl.src : '';

					if (!title || !href) continue;

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
