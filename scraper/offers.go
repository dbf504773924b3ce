package scraper

import (
	"strings"
	"time"

	"grail-oracle/config"
	"grail-oracle/models"
)

// CardsToOffers converts extracted cards into raw offers, dropping cards
// with no parseable price or no URL. LandedUSD is left unset; the
// normalizer fills it in.
func CardsToOffers(cards []Card, source string, node config.Node) []*models.Offer {
	offers := make([]*models.Offer, 0, len(cards))
	now := time.Now()

	for _, c := range cards {
		url := strings.TrimSpace(c.URL)
		if url == "" {
			continue
		}
		price := CleanPrice(c.Price)
		if price <= 0 {
			continue
		}

		offers = append(offers, &models.Offer{
			Source:        source,
			Region:        node.Region,
			LocalPrice:    price,
			LocalCurrency: node.Currency,
			URL:           url,
			Condition:     NormalizeTitle(c.Condition),
			Title:         NormalizeTitle(c.Title),
			ImageURL:      strings.TrimSpace(c.Image),
			ObservedAt:    now,
		})
	}
	return offers
}
