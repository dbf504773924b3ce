package services

import (
	"math/rand"
	"strings"

	"grail-oracle/config"
)

// SeedGenerator produces candidate keywords from the configured
// brand × category × modifier expansion. The sequence is deterministic:
// the full cross product is built in a fixed order, Fisher-Yates shuffled
// with a seeded source, then sharded so parallel workers never scan the
// same seed. Position is an explicit cursor the caller passes in and
// stores; the generator holds no state between calls.
type SeedGenerator struct {
	cfg config.SeedsConfig
}

// NewSeedGenerator builds a generator over the configured word lists.
func NewSeedGenerator(cfg config.SeedsConfig) *SeedGenerator {
	return &SeedGenerator{cfg: cfg}
}

// Next returns up to n seed keywords for this worker's shard starting at
// cursor, plus the cursor to pass next time. The returned cursor equals
// the input when the shard is exhausted.
func (g *SeedGenerator) Next(cursor, n int) ([]string, int) {
	shard := g.shard()
	if cursor < 0 {
		cursor = 0
	}
	if cursor >= len(shard) {
		return nil, cursor
	}

	end := cursor + n
	if end > len(shard) {
		end = len(shard)
	}
	return shard[cursor:end], end
}

// Total returns how many seeds this worker's shard contains.
func (g *SeedGenerator) Total() int {
	return len(g.shard())
}

func (g *SeedGenerator) shard() []string {
	all := g.expand()

	rng := rand.New(rand.NewSource(g.cfg.Salt))
	rng.Shuffle(len(all), func(i, j int) {
		all[i], all[j] = all[j], all[i]
	})

	shardTotal := g.cfg.ShardTotal
	if shardTotal < 1 {
		shardTotal = 1
	}

	var shard []string
	for i, seed := range all {
		if i%shardTotal == g.cfg.ShardID {
			shard = append(shard, seed)
		}
	}
	return shard
}

func (g *SeedGenerator) expand() []string {
	seen := make(map[string]struct{})
	var out []string

	for _, brand := range g.cfg.Brands {
		for _, category := range g.cfg.Categories {
			for _, modifier := range g.cfg.Modifiers {
				parts := []string{brand, category}
				if modifier != "" {
					parts = append(parts, modifier)
				}
				seed := strings.Join(parts, " ")
				if _, dup := seen[seed]; dup {
					continue
				}
				seen[seed] = struct{}{}
				out = append(out, seed)
			}
		}
	}
	return out
}
