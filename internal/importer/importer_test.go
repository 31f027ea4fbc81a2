package importer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kosarica/catalog-service/internal/types"
)

func TestChainProductCode(t *testing.T) {
	external := "SKU-123"

	tests := []struct {
		name string
		row  types.NormalizedRow
		want string
	}{
		{"uses external id when present", types.NormalizedRow{ExternalID: &external, RowNumber: 4}, "SKU-123"},
		{"falls back to row number", types.NormalizedRow{RowNumber: 7}, "row-7"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, chainProductCode(tt.row))
		})
	}
}

func TestParseFloatPtr(t *testing.T) {
	valid := "45.81"
	invalid := "not-a-number"

	assert.Nil(t, parseFloatPtr(nil))
	assert.Nil(t, parseFloatPtr(&invalid))

	got := parseFloatPtr(&valid)
	if assert.NotNil(t, got) {
		assert.InDelta(t, 45.81, *got, 0.0001)
	}

	empty := ""
	assert.Nil(t, parseFloatPtr(&empty))
}

func TestIntPtrToInt64Ptr(t *testing.T) {
	assert.Nil(t, intPtrToInt64Ptr(nil))

	v := 299
	got := intPtrToInt64Ptr(&v)
	if assert.NotNil(t, got) {
		assert.Equal(t, int64(299), *got)
	}
}

func TestBulkUpsertPricesChunkedEmpty(t *testing.T) {
	assert.NoError(t, bulkUpsertPricesChunked(nil, nil, 100))
}
