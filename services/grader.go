package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"grail-oracle/config"
	"grail-oracle/models"
)

const gradePrompt = `You grade the condition of second-hand collectible listings.
Look for wear and damage keywords (scratched, cracked, stained, broken, parts, junk)
versus new/sealed/mint signals. Respond with STRICT JSON only, no prose:
{"grade": "A-F or NR", "score": 0.0-1.0, "notes": "one short sentence"}

Title: %s
Condition text: %s`

const sanityPrompt = `Is "%s" a real product that exists and can be bought second-hand?
Respond with STRICT JSON only: {"real": true or false}`

// GradeResult is the classifier's verdict on one listing.
type GradeResult struct {
	Grade models.ConditionGrade `json:"grade"`
	Score float64               `json:"score"`
	Notes string                `json:"notes"`
}

// defaultGrade is the conservative fallback used whenever the classifier
// is unreachable or returns malformed output. Grading failures must never
// block pricing.
var defaultGrade = GradeResult{Grade: models.GradeC, Score: 0.5, Notes: "classifier unavailable"}

// Grader assigns condition grades via an external text-classification
// model, and sanity-checks generated seed keywords before they are scraped.
type Grader struct {
	endpoint string
	model    string
	apiKey   string
	client   *http.Client
	logger   *logrus.Logger
}

// NewGrader builds a Grader from config.
func NewGrader(cfg config.ClassifierConfig, logger *logrus.Logger) *Grader {
	return &Grader{
		endpoint: cfg.Endpoint,
		model:    cfg.Model,
		apiKey:   cfg.APIKey,
		client:   &http.Client{Timeout: cfg.Timeout},
		logger:   logger,
	}
}

// Grade classifies title plus condition/description text. It always
// returns a usable result: classifier failure or malformed JSON degrades
// to the conservative default rather than an error.
func (g *Grader) Grade(ctx context.Context, title, conditionText string) GradeResult {
	prompt := fmt.Sprintf(gradePrompt, title, conditionText)

	raw, err := g.complete(ctx, prompt)
	if err != nil {
		g.logger.WithError(err).Warn("grader: classifier call failed, using default grade")
		return defaultGrade
	}

	var res GradeResult
	if err := json.Unmarshal(extractJSON(raw), &res); err != nil {
		g.logger.WithError(err).Warn("grader: malformed classifier JSON, using default grade")
		return defaultGrade
	}
	if !res.Grade.Valid() || res.Score < 0 || res.Score > 1 {
		return defaultGrade
	}
	return res
}

// SanityCheck gates whether a generated seed keyword refers to a real
// product. Fail-open: a classifier outage answers true, and ghost-node
// pruning catches fabricated seeds one cycle later.
func (g *Grader) SanityCheck(ctx context.Context, title string) bool {
	prompt := fmt.Sprintf(sanityPrompt, title)

	raw, err := g.complete(ctx, prompt)
	if err != nil {
		g.logger.WithError(err).Warn("grader: sanity check unavailable, assuming real")
		return true
	}

	var res struct {
		Real bool `json:"real"`
	}
	if err := json.Unmarshal(extractJSON(raw), &res); err != nil {
		return true
	}
	return res.Real
}

// complete posts the prompt to the classifier endpoint and returns the
// model's raw response text.
func (g *Grader) complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(map[string]any{
		"model":  g.model,
		"prompt": prompt,
		"stream": false,
		"format": "json",
	})
	if err != nil {
		return "", fmt.Errorf("grader: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("grader: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("grader: post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("grader: unexpected status %d", resp.StatusCode)
	}

	var payload struct {
		Response string `json:"response"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("grader: decode: %w", err)
	}
	return payload.Response, nil
}

// extractJSON pulls the first {...} block out of model output that may be
// wrapped in stray prose or code fences.
func extractJSON(raw string) []byte {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end == -1 || end < start {
		return []byte(raw)
	}
	return []byte(raw[start : end+1])
}
