package golden

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kosarica/catalog-service/internal/database"
)

func TestComputeUnitPriceWeight(t *testing.T) {
	// 500g for 250 lipa -> price per kg = 250 / 0.5 = 500
	got := ComputeUnitPrice(250, database.BaseUnitWeight, Variant{Unit: "g", Value: 500})
	require.NotNil(t, got)
	assert.Equal(t, int64(500), *got)

	got = ComputeUnitPrice(500, database.BaseUnitWeight, Variant{Unit: "kg", Value: 2})
	require.NotNil(t, got)
	assert.Equal(t, int64(250), *got)
}

func TestComputeUnitPriceVolume(t *testing.T) {
	got := ComputeUnitPrice(150, database.BaseUnitVolume, Variant{Unit: "ml", Value: 750})
	require.NotNil(t, got)
	assert.Equal(t, int64(200), *got)
}

func TestComputeUnitPriceCountWithPieceCount(t *testing.T) {
	pieces := 6.0
	got := ComputeUnitPrice(600, database.BaseUnitCount, Variant{Unit: "kom", Value: 1, PieceCount: &pieces})
	require.NotNil(t, got)
	assert.Equal(t, int64(100), *got)
}

func TestComputeUnitPriceUnknownCombinationReturnsNil(t *testing.T) {
	assert.Nil(t, ComputeUnitPrice(100, database.BaseUnitWeight, Variant{Unit: "l", Value: 1}))
	assert.Nil(t, ComputeUnitPrice(100, database.BaseUnitWeight, Variant{Unit: "g", Value: 0}))
}

func TestIsInSeason(t *testing.T) {
	start, end := 11, 2
	gp := database.GProduct{SeasonalStartMonth: &start, SeasonalEndMonth: &end}

	assert.True(t, isInSeason(gp, time.Date(2026, time.December, 1, 0, 0, 0, 0, time.UTC)))
	assert.True(t, isInSeason(gp, time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)))
	assert.False(t, isInSeason(gp, time.Date(2026, time.July, 1, 0, 0, 0, 0, time.UTC)))

	noSeason := database.GProduct{}
	assert.False(t, isInSeason(noSeason, time.Now()))
}

func TestParsePrimaryVariant(t *testing.T) {
	raw := `[{"unit":"g","value":500},{"unit":"kg","value":1}]`
	v, err := ParsePrimaryVariant(&raw)
	require.NoError(t, err)
	assert.Equal(t, "g", v.Unit)
	assert.Equal(t, 500.0, v.Value)

	_, err = ParsePrimaryVariant(nil)
	assert.Error(t, err)

	empty := "[]"
	_, err = ParsePrimaryVariant(&empty)
	assert.Error(t, err)
}
