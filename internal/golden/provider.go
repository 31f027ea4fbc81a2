package golden

import (
	"context"
	"encoding/json"
	"fmt"
)

// LLMProvider is the provider-agnostic contract for the normalizer's
// canonicalization call, modelled on internal/matching/embedding.go's
// EmbeddingProvider (§4.F) but smaller: one non-batch method plus a
// ModelVersion for audit trails, so OpenAI, Anthropic or a local model all
// implement it the same way.
type LLMProvider interface {
	// GenerateStructured sends systemPrompt + userContent and returns the raw
	// text response. The caller (canonicalize) is responsible for validating
	// it against DraftSchema — a provider that already enforces structured
	// output is free to guarantee it matches, but is not required to.
	GenerateStructured(ctx context.Context, systemPrompt, userContent string) (string, error)

	// ModelVersion returns the model identifier, stored alongside matching
	// candidates the same way EmbeddingProvider.ModelVersion is.
	ModelVersion() string
}

// systemPrompt fixes the LLM's output contract (§4.F step 3, spec.md §6):
// the field list and the reflected JSON Schema are both embedded so a
// provider with weaker structured-output support still has the shape
// spelled out in plain text.
func systemPrompt() string {
	return fmt.Sprintf(`You are a product data normalizer for a Croatian retail price comparison catalog.

You will receive aggregated name/brand/category/unit variations observed for
the same product (same EAN) across different retail chains. Produce a single
canonical product description.

Respond with a JSON object matching exactly this schema:
%s

Rules:
- canonical_name must be in Croatian, include brand and distinguishing detail (flavor, size class), but not the package size itself.
- base_unit_type is WEIGHT for products measured by mass, VOLUME for liquids, COUNT for discrete items.
- variants must have at least one entry; variants[0] is the primary package size.
- keywords must contain exactly 8 lowercase search terms, diacritics removed.
- text_for_embedding is a short, diacritic-free, lowercase string combining name, brand and category, suitable for embedding.
- Only set seasonal_start_month/seasonal_end_month for genuinely seasonal products (e.g. mandarins); omit otherwise.

Respond with the JSON object only, no surrounding prose.`, DraftSchema())
}

// parseDraft unmarshals and minimally validates an LLM response against the
// fields DraftSchema requires, per §4.F step 3's "reject malformed
// responses." A provider's own schema enforcement (if any) does not excuse
// this check — the caller only ever sees what arrives over the wire.
func parseDraft(raw string) (*ProductDraft, error) {
	var d ProductDraft
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return nil, fmt.Errorf("unmarshal product draft: %w", err)
	}
	if d.CanonicalName == "" {
		return nil, fmt.Errorf("product draft missing canonical_name")
	}
	switch d.BaseUnitType {
	case "WEIGHT", "VOLUME", "COUNT":
	default:
		return nil, fmt.Errorf("product draft has invalid base_unit_type %q", d.BaseUnitType)
	}
	if len(d.Variants) == 0 {
		return nil, fmt.Errorf("product draft has no variants")
	}
	if len(d.Keywords) != 8 {
		return nil, fmt.Errorf("product draft has %d keywords, want exactly 8", len(d.Keywords))
	}
	if d.TextForEmbedding == "" {
		return nil, fmt.Errorf("product draft missing text_for_embedding")
	}
	return &d, nil
}
