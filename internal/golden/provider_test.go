package golden

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDraftSchemaIsValidJSON(t *testing.T) {
	var schema map[string]any
	require.NoError(t, json.Unmarshal(DraftSchema(), &schema))
	assert.Contains(t, schema, "properties")
}

func TestParseDraftAcceptsWellFormedResponse(t *testing.T) {
	raw := `{
		"canonical_name": "Barilla Spaghetti N.5 500g",
		"category": "Tjestenina",
		"base_unit_type": "WEIGHT",
		"variants": [{"unit": "g", "value": 500}],
		"text_for_embedding": "barilla spaghetti n5 tjestenina",
		"keywords": ["barilla","spaghetti","tjestenina","pasta","testenina","n5","500g","italija"],
		"is_generic_product": false
	}`

	d, err := parseDraft(raw)
	require.NoError(t, err)
	assert.Equal(t, "WEIGHT", d.BaseUnitType)
	assert.Len(t, d.Keywords, 8)
}

func TestParseDraftRejectsMalformedResponses(t *testing.T) {
	cases := []string{
		`not json`,
		`{"category":"x","base_unit_type":"WEIGHT","variants":[{"unit":"g","value":1}],"text_for_embedding":"x","keywords":["a","b","c","d","e","f","g","h"]}`,                               // missing canonical_name
		`{"canonical_name":"x","category":"y","base_unit_type":"BOGUS","variants":[{"unit":"g","value":1}],"text_for_embedding":"x","keywords":["a","b","c","d","e","f","g","h"]}`,             // invalid base_unit_type
		`{"canonical_name":"x","category":"y","base_unit_type":"WEIGHT","variants":[],"text_for_embedding":"x","keywords":["a","b","c","d","e","f","g","h"]}`,                                  // empty variants
		`{"canonical_name":"x","category":"y","base_unit_type":"WEIGHT","variants":[{"unit":"g","value":1}],"text_for_embedding":"x","keywords":["a","b"]}`,                                    // wrong keyword count
	}
	for _, raw := range cases {
		_, err := parseDraft(raw)
		assert.Error(t, err, raw)
	}
}
