package scraper

import (
	"testing"

	"grail-oracle/config"
)

func TestCleanPrice(t *testing.T) {
	tests := []struct {
		raw  string
		want float64
	}{
		{"US $1,234.56", 1234.56},
		{"$120", 120},
		{"12,800円", 12800},
		{"£89.99", 89.99},
		{"AU $250.00", 250},
		{"Sold out", 0},
		{"", 0},
		{"¥3,500", 3500},
	}

	for _, tt := range tests {
		got := CleanPrice(tt.raw)
		if got != tt.want {
			t.Errorf("CleanPrice(%q) = %.2f; want %.2f", tt.raw, got, tt.want)
		}
	}
}

func TestNormalizeTitle(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"  Rolex   Submariner\n2020 ", "Rolex Submariner 2020"},
		{"plain", "plain"},
		{"", ""},
	}

	for _, tt := range tests {
		got := NormalizeTitle(tt.raw)
		if got != tt.want {
			t.Errorf("NormalizeTitle(%q) = %q; want %q", tt.raw, got, tt.want)
		}
	}
}

func TestIsBotBlocked(t *testing.T) {
	blocked := []string{
		"Please complete the CAPTCHA to continue",
		"Pardon Our Interruption...",
		"We detected unusual traffic from your network",
	}
	for _, text := range blocked {
		if !IsBotBlocked(text) {
			t.Errorf("IsBotBlocked(%q) = false; want true", text)
		}
	}

	clean := []string{
		"1,234 results for rolex submariner",
		"",
	}
	for _, text := range clean {
		if IsBotBlocked(text) {
			t.Errorf("IsBotBlocked(%q) = true; want false", text)
		}
	}
}

func TestCardsToOffersDropsUnusableCards(t *testing.T) {
	node := config.Node{Region: "JP", Currency: "JPY"}
	cards := []Card{
		{Title: "Leica M6", Price: "¥250,000", URL: "https://example.jp/item/1"},
		{Title: "No price", Price: "-", URL: "https://example.jp/item/2"},
		{Title: "No URL", Price: "¥100"},
	}

	offers := CardsToOffers(cards, "mercari", node)
	if len(offers) != 1 {
		t.Fatalf("expected 1 offer, got %d", len(offers))
	}

	o := offers[0]
	if o.LocalPrice != 250000 || o.LocalCurrency != "JPY" || o.Region != "JP" || o.Source != "mercari" {
		t.Errorf("unexpected offer: %+v", o)
	}
}
