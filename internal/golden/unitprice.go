package golden

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/kosarica/catalog-service/internal/database"
)

// ComputeUnitPrice applies §4.G's deterministic unit-price formula to one
// price observation. price is the price actually charged (special if
// present, else regular, per the caller). variant is variants[0] of the
// product's GProduct — §4.G never looks past the first variant.
//
// Returns nil when the unit type and variant don't combine into a
// comparable unit price (e.g. a WEIGHT product whose variant unit is
// neither "g" nor "kg") — a missing price-per-unit, not a zero one, the
// same NULL-vs-zero distinction internal/pricegroups/hash.go's sentinel
// discipline exists to preserve further downstream.
func ComputeUnitPrice(price int64, baseUnitType database.BaseUnitType, variant Variant) *int64 {
	if variant.Value <= 0 {
		return nil
	}

	switch baseUnitType {
	case database.BaseUnitWeight:
		switch variant.Unit {
		case "g":
			return ptr(scaleToPer1000(price, variant.Value))
		case "kg":
			return ptr(divide(price, variant.Value))
		}
	case database.BaseUnitVolume:
		switch variant.Unit {
		case "ml":
			return ptr(scaleToPer1000(price, variant.Value))
		case "l":
			return ptr(divide(price, variant.Value))
		}
	case database.BaseUnitCount:
		if variant.PieceCount != nil && *variant.PieceCount > 0 {
			return ptr(divide(price, *variant.PieceCount))
		}
		if variant.Unit == "kom" {
			return ptr(divide(price, variant.Value))
		}
	}
	return nil
}

func scaleToPer1000(price int64, value float64) int64 {
	return int64(float64(price) / value * 1000)
}

func divide(price int64, value float64) int64 {
	return int64(float64(price) / value)
}

func ptr(v int64) *int64 { return &v }

// ParsePrimaryVariant decodes a GProduct.Variants JSON array and returns its
// first element, the only one §4.G's formula ever consults. Exported so the
// archive writer can resolve variants[0] for a g_products_map entry without
// duplicating the decode logic.
func ParsePrimaryVariant(variants *string) (*Variant, error) {
	if variants == nil || *variants == "" {
		return nil, fmt.Errorf("no variants")
	}
	var vs []Variant
	if err := json.Unmarshal([]byte(*variants), &vs); err != nil {
		return nil, fmt.Errorf("unmarshal variants: %w", err)
	}
	if len(vs) == 0 {
		return nil, fmt.Errorf("empty variants array")
	}
	return &vs[0], nil
}

// ComputeUnitPriceForProduct applies ComputeUnitPrice using a GProduct's own
// base_unit_type and variants[0]. The archive writer's g_prices.csv
// generation does not go through it: it calls ComputeUnitPrice directly with
// the base_unit_type and variants of a g_products_map entry.
func ComputeUnitPriceForProduct(price int64, gp database.GProduct) (*int64, error) {
	variant, err := ParsePrimaryVariant(gp.Variants)
	if err != nil {
		return nil, fmt.Errorf("unit price for product %d: %w", gp.ID, err)
	}
	return ComputeUnitPrice(price, gp.BaseUnitType, *variant), nil
}

// ProcessBestOfferBatch recomputes the best-offer row for every GProduct in
// [startID, startID+limit), grounded on best_offer_updater.py's
// process_best_offers_batch: for each product, scan every GPrice ordered
// most-recent-first and keep the running minimum of whichever price_per_*
// field matches its base_unit_type. One product's failure (bad variant,
// no prices yet) never aborts the batch — it logs and moves to the next,
// exactly like the original's per-product try/except.
func ProcessBestOfferBatch(ctx context.Context, startID int64, limit int) (int, error) {
	products, err := database.GProductsInRange(ctx, startID, limit)
	if err != nil {
		return 0, fmt.Errorf("load g_products range: %w", err)
	}

	updated := 0
	for _, gp := range products {
		if err := updateBestOfferForProduct(ctx, gp); err != nil {
			slog.Warn("best-offer update failed", "product_id", gp.ID, "error", err)
			continue
		}
		updated++
	}
	return updated, nil
}

func updateBestOfferForProduct(ctx context.Context, gp database.GProduct) error {
	prices, err := database.GPricesForProduct(ctx, gp.ID)
	if err != nil {
		return fmt.Errorf("load g_prices for product %d: %w", gp.ID, err)
	}
	if len(prices) == 0 {
		return nil
	}

	var best *database.GPrice
	var bestUnitPrice int64

	for i := range prices {
		p := &prices[i]
		var current *int64
		switch gp.BaseUnitType {
		case database.BaseUnitWeight:
			current = p.PricePerKg
		case database.BaseUnitVolume:
			current = p.PricePerL
		case database.BaseUnitCount:
			current = p.PricePerPiece
		}
		if current == nil {
			continue
		}
		if best == nil || *current < bestUnitPrice {
			best = p
			bestUnitPrice = *current
		}
	}

	if best == nil {
		return nil
	}

	bo := &database.GProductBestOffer{
		ProductID:        gp.ID,
		BestPriceStoreID: &best.StoreID,
		BestPriceFoundAt: time.Now(),
	}
	switch gp.BaseUnitType {
	case database.BaseUnitWeight:
		bo.BestUnitPricePerKg = &bestUnitPrice
	case database.BaseUnitVolume:
		bo.BestUnitPricePerL = &bestUnitPrice
	case database.BaseUnitCount:
		bo.BestUnitPricePerPiece = &bestUnitPrice
	}
	if isInSeason(gp, best.PriceDate) {
		bo.LowestPriceInSeason = &bestUnitPrice
	}

	return database.UpsertBestOffer(ctx, bo)
}

// isInSeason reports whether date falls within a GProduct's seasonal
// window. A product with no seasonal bounds at all is never "in season" —
// the field only applies to genuinely seasonal goods (§3 supplemented
// feature note on seasonal_start_month/seasonal_end_month).
func isInSeason(gp database.GProduct, date time.Time) bool {
	if gp.SeasonalStartMonth == nil || gp.SeasonalEndMonth == nil {
		return false
	}
	m := int(date.Month())
	start, end := *gp.SeasonalStartMonth, *gp.SeasonalEndMonth
	if start <= end {
		return m >= start && m <= end
	}
	// Wraps across the year boundary, e.g. Nov(11) to Feb(2).
	return m >= start || m <= end
}
