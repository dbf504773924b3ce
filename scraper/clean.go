package scraper

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

var (
	// priceRegexp captures the first numeric value in a price string.
	priceRegexp = regexp.MustCompile(`\d[\d,]*(?:\.\d+)?`)

	// blockSignatures are lowercase substrings that identify a
	// bot-challenge page rather than a results page.
	blockSignatures = []string{
		"captcha",
		"verify you are a human",
		"access to this page has been denied",
		"pardon our interruption",
		"unusual traffic",
		"robot check",
	}
)

// CleanPrice strips currency symbols and thousands separators from raw
// price text and returns the numeric value, or 0 when no number is present.
//
//	"US $1,234.56"  → 1234.56
//	"12,800円"       → 12800
//	"Sold out"      → 0
func CleanPrice(raw string) float64 {
	cleaned := strings.ReplaceAll(raw, ",", "")
	match := priceRegexp.FindString(cleaned)
	if match == "" {
		return 0
	}
	val, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0
	}
	return val
}

// NormalizeTitle collapses whitespace so titles compare stably across
// sources.
func NormalizeTitle(s string) string {
	fields := strings.FieldsFunc(strings.TrimSpace(s), unicode.IsSpace)
	return strings.Join(fields, " ")
}

// IsBotBlocked reports whether page text carries a known challenge-page
// signature.
func IsBotBlocked(pageText string) bool {
	lower := strings.ToLower(pageText)
	for _, sig := range blockSignatures {
		if strings.Contains(lower, sig) {
			return true
		}
	}
	return false
}
