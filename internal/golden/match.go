package golden

import (
	"context"
	"strings"

	"github.com/kosarica/catalog-service/internal/database"
	"github.com/kosarica/catalog-service/internal/matching"
)

// MatchConfig configures the AI-assisted matching fallback (§3 supplemented
// feature), grounded on the teacher's internal/matching/ai.go
// AIMatcherConfig but rebased onto chain_products/g_products: there is no
// product_match_queue/product_match_candidates review workflow here, since
// spec.md has no equivalent concept — a candidate either clears
// AutoLinkThreshold or the EAN falls through to LLM synthesis.
type MatchConfig struct {
	AutoLinkThreshold float32 // >= this similarity = treat as the same product
	TrgmPrefilter     int     // stage-1 candidate pool size before rerank
}

// DefaultMatchConfig mirrors the teacher's DefaultAIMatcherConfig defaults.
func DefaultMatchConfig() MatchConfig {
	return MatchConfig{AutoLinkThreshold: 0.95, TrgmPrefilter: 200}
}

// findExistingGProduct runs the two-stage match (pg_trgm prefilter, then
// embedding cosine-similarity rerank) to find a golden product that a
// synthetic-EAN chain product should actually be attached to, rather than
// spawning a duplicate GProduct for every chain that doesn't publish a real
// barcode for the same item. Returns nil if nothing clears the threshold.
func findExistingGProduct(
	ctx context.Context,
	provider matching.EmbeddingProvider,
	cfg MatchConfig,
	name, brand, category, unit string,
) (*database.GProduct, float32, error) {
	normalized := matching.NormalizeForEmbedding(name, brand, category, unit)

	candidates, err := database.TrgmCandidateGProducts(ctx, name, cfg.TrgmPrefilter)
	if err != nil {
		return nil, 0, err
	}
	if len(candidates) == 0 {
		return nil, 0, nil
	}

	embeddings, err := matching.GenerateWithRetry(ctx, provider, []string{normalized}, matching.DefaultEmbeddingRetryConfig())
	if err != nil {
		return nil, 0, err
	}
	target := embeddings[0]

	var best *database.GProduct
	var bestSim float32
	for i := range candidates {
		c := &candidates[i]
		if hasPrivateLabelConflict(brand, c.Brand) {
			continue
		}
		sim := matching.ComputeCosineSimilarity(target, c.Embedding)
		if best == nil || sim > bestSim {
			best, bestSim = c, sim
		}
	}
	if best == nil || bestSim < cfg.AutoLinkThreshold {
		return nil, bestSim, nil
	}
	return best, bestSim, nil
}

// hasPrivateLabelConflict mirrors the teacher's ai.go check: two specific,
// different, non-generic brands are never the same product even if the
// names are textually similar (e.g. two chains' own private-label "muesli").
func hasPrivateLabelConflict(itemBrand string, candidateBrand *string) bool {
	if itemBrand == "" || candidateBrand == nil || *candidateBrand == "" {
		return false
	}
	if matching.IsGenericBrand(itemBrand) || matching.IsGenericBrand(*candidateBrand) {
		return false
	}
	a := strings.ToLower(matching.RemoveDiacritics(itemBrand))
	b := strings.ToLower(matching.RemoveDiacritics(*candidateBrand))
	return a != b
}
