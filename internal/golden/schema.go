// Package golden is the golden-record orchestrator (§4.E): it owns
// everything that turns a batch of chain-specific ChainProducts into
// GProduct rows — LLM canonicalization, the embedding call, the pg_trgm
// matching fallback for synthetic-EAN products, and the unit-price/
// best-offer updater. internal/matching supplies the schema-agnostic
// building blocks (text normalization, EmbeddingProvider, cosine
// similarity); this package is where they touch chain_products/g_products.
package golden

import (
	"encoding/json"
	"sync"

	"github.com/invopop/jsonschema"
)

// ProductDraft is the shape the normalizer worker requires back from the
// LLM (§4.F step 3). Its json tags double as the canonical field names in
// the system prompt; its jsonschema tags are reflected once into the JSON
// Schema embedded in that prompt, the way cmd/schema-gen/main.go reflects
// handler request/response types for the frontend.
type ProductDraft struct {
	CanonicalName      string    `json:"canonical_name" jsonschema:"required,description=Normalized product name in Croatian, brand and flavor included"`
	Brand              *string   `json:"brand,omitempty" jsonschema:"description=Brand name, omitted for generic/unbranded products"`
	Category           string    `json:"category" jsonschema:"required"`
	BaseUnitType        string   `json:"base_unit_type" jsonschema:"required,enum=WEIGHT,enum=VOLUME,enum=COUNT"`
	Variants           []Variant `json:"variants" jsonschema:"required,minItems=1"`
	TextForEmbedding   string    `json:"text_for_embedding" jsonschema:"required"`
	Keywords           []string  `json:"keywords" jsonschema:"required,minItems=8,maxItems=8,description=Exactly 8 search keywords"`
	IsGenericProduct   bool      `json:"is_generic_product"`
	SeasonalStartMonth *int      `json:"seasonal_start_month,omitempty" jsonschema:"minimum=1,maximum=12"`
	SeasonalEndMonth   *int      `json:"seasonal_end_month,omitempty" jsonschema:"minimum=1,maximum=12"`
}

// Variant is one package-size variant of a golden product — variants[0] is
// the one the unit-price formula (§4.G) always uses.
type Variant struct {
	Unit       string   `json:"unit"`
	Value      float64  `json:"value"`
	PieceCount *float64 `json:"piece_count,omitempty"`
}

var (
	schemaOnce sync.Once
	schemaJSON []byte
)

// DraftSchema returns the JSON Schema for ProductDraft, generated once via
// invopop/jsonschema the same way cmd/schema-gen/main.go reflects request
// and response types — except here the schema is consumed directly by the
// LLM prompt (§4.F), not exported to a shared-schemas directory.
func DraftSchema() []byte {
	schemaOnce.Do(func() {
		reflector := &jsonschema.Reflector{DoNotReference: true}
		s := reflector.Reflect(&ProductDraft{})
		b, err := json.Marshal(s)
		if err != nil {
			panic("golden: marshal product draft schema: " + err.Error())
		}
		schemaJSON = b
	})
	return schemaJSON
}
