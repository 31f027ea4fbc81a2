package golden

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/kosarica/catalog-service/internal/database"
	"github.com/kosarica/catalog-service/internal/matching"
)

// BatchResult tallies one worker's pass over a product-id batch (§4.E),
// grounded on the teacher's AIMatchResult shape.
type BatchResult struct {
	Processed  int
	Created    int
	AlreadyHad int // GProduct(ean) already existed; source rows still marked processed
	Matched    int // attached to an existing GProduct via the name-matching fallback
	Failed     int
}

// aggregateInput is the per-EAN payload sent to the LLM (§4.F step 1),
// grounded on golden_record/normaliser_gemini.py's normalize_product_with_ai
// input_data shape.
type aggregateInput struct {
	NameVariations []string `json:"name_variations"`
	Brands         []string `json:"brands"`
	Categories     []string `json:"categories"`
	Units          []string `json:"units"`
}

// ProcessBatch runs the normalizer worker (§4.F) over every product in
// [startID, startID+limit) that has no GProduct yet, per §4.E's worker
// contract.
func ProcessBatch(
	ctx context.Context,
	llm LLMProvider,
	embedProvider matching.EmbeddingProvider,
	matchCfg MatchConfig,
	startID int64,
	limit int,
) (*BatchResult, error) {
	products, err := database.UnprocessedProductsInRange(ctx, startID, limit)
	if err != nil {
		return nil, fmt.Errorf("load unprocessed products range: %w", err)
	}

	result := &BatchResult{}
	for _, p := range products {
		if err := normalizeOne(ctx, llm, embedProvider, matchCfg, p, result); err != nil {
			slog.Error("golden record normalization failed", "ean", p.EAN, "error", err)
			result.Failed++
			continue
		}
		result.Processed++
	}
	return result, nil
}

// normalizeOne implements §4.F steps 2-7 for a single EAN group. Any failure
// leaves the EAN's chain products unprocessed for retry on the next pass —
// there is no partial commit (§5's open-question decision extended to the
// whole record, not just the embedding).
func normalizeOne(
	ctx context.Context,
	llm LLMProvider,
	embedProvider matching.EmbeddingProvider,
	matchCfg MatchConfig,
	p database.ProductForNormalization,
	result *BatchResult,
) error {
	chainProductIDs := make([]int64, len(p.ChainProducts))
	for i, cp := range p.ChainProducts {
		chainProductIDs[i] = cp.ID
	}

	// Step 2: an existing GProduct short-circuits straight to step 5/6.
	if existing, err := database.GetGProductByEAN(ctx, p.EAN); err == nil && existing != nil {
		result.AlreadyHad++
		return database.MarkChainProductsProcessed(ctx, chainProductIDs)
	}

	first := p.ChainProducts[0]

	// §3 supplemented feature: before minting a new GProduct, see whether an
	// existing golden product already represents the same item by name —
	// this keeps synthetic "chain:code" EANs from spawning one GProduct per
	// chain for what is really one product.
	if match, sim, err := findExistingGProduct(ctx, embedProvider, matchCfg, first.Name, derefStr(first.Brand), derefStr(first.Category), derefStr(first.Unit)); err != nil {
		slog.Warn("name-matching fallback failed, continuing to LLM synthesis", "ean", p.EAN, "error", err)
	} else if match != nil {
		slog.Info("matched chain product to existing golden product by name", "ean", p.EAN, "matched_ean", match.EAN, "similarity", sim)
		if _, err := database.InsertGProduct(ctx, match, chainProductIDs); err != nil {
			return fmt.Errorf("attach chain products to matched golden product: %w", err)
		}
		result.Matched++
		return nil
	}

	draft, err := canonicalize(ctx, llm, p.ChainProducts)
	if err != nil {
		return fmt.Errorf("canonicalize ean=%s: %w", p.EAN, err)
	}

	embeddings, err := matching.GenerateWithRetry(ctx, embedProvider, []string{draft.TextForEmbedding}, matching.DefaultEmbeddingRetryConfig())
	if err != nil {
		return fmt.Errorf("embed ean=%s: %w", p.EAN, err)
	}

	variantsJSON, err := json.Marshal(draft.Variants)
	if err != nil {
		return fmt.Errorf("marshal variants ean=%s: %w", p.EAN, err)
	}
	variantsStr := string(variantsJSON)

	gp := &database.GProduct{
		EAN:                p.EAN,
		CanonicalName:      draft.CanonicalName,
		Brand:              draft.Brand,
		Category:           &draft.Category,
		BaseUnitType:       database.BaseUnitType(draft.BaseUnitType),
		Variants:           &variantsStr,
		TextForEmbedding:   draft.TextForEmbedding,
		Keywords:           draft.Keywords,
		IsGenericProduct:   draft.IsGenericProduct,
		SeasonalStartMonth: draft.SeasonalStartMonth,
		SeasonalEndMonth:   draft.SeasonalEndMonth,
		Embedding:          embeddings[0],
	}

	if _, err := database.InsertGProduct(ctx, gp, chainProductIDs); err != nil {
		return fmt.Errorf("insert golden product ean=%s: %w", p.EAN, err)
	}
	result.Created++
	return nil
}

// canonicalize invokes the LLM with the aggregated variations (§4.F step 1
// and 3). A response that fails to parse against ProductDraft is retried
// once, then the EAN is failed, per §2.F.
func canonicalize(ctx context.Context, llm LLMProvider, chainProducts []database.ChainProduct) (*ProductDraft, error) {
	input := aggregateInput{}
	for _, cp := range chainProducts {
		input.NameVariations = append(input.NameVariations, cp.Name)
		if cp.Brand != nil && *cp.Brand != "" {
			input.Brands = append(input.Brands, *cp.Brand)
		}
		if cp.Category != nil && *cp.Category != "" {
			input.Categories = append(input.Categories, *cp.Category)
		}
		if cp.Unit != nil && *cp.Unit != "" {
			input.Units = append(input.Units, *cp.Unit)
		}
	}

	userContent, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("marshal aggregate input: %w", err)
	}

	prompt := systemPrompt()
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		raw, err := llm.GenerateStructured(ctx, prompt, string(userContent))
		if err != nil {
			lastErr = err
			continue
		}
		draft, err := parseDraft(raw)
		if err != nil {
			lastErr = err
			continue
		}
		return draft, nil
	}
	return nil, fmt.Errorf("llm response invalid after retry: %w", lastErr)
}

func derefStr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
