package chat

import (
	"context"
	"fmt"
	"sort"

	"github.com/kosarica/catalog-service/internal/database"
)

// toolDeclarations is the fixed tool set §4.H/§6 names — the same five every
// session's provider call is offered, regardless of conversation state.
func toolDeclarations() []ToolDeclaration {
	return []ToolDeclaration{
		{
			Name: "search_products_v2",
			Description: "Hybrid lexical+vector search over the golden product catalog. " +
				"When sort_by is a value metric, results are restricted to products of the " +
				"matching base_unit_type and ordered by the lowest observed unit price.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"q":          map[string]interface{}{"type": "string", "description": "free-text search query"},
					"store_ids":  map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "integer"}, "description": "restrict value-metric price lookups to these stores"},
					"sort_by":    map[string]interface{}{"type": "string", "enum": []string{"relevance", "best_value_kg", "best_value_l", "best_value_piece"}},
					"category":   map[string]interface{}{"type": "string"},
					"brand":      map[string]interface{}{"type": "string"},
					"limit":      map[string]interface{}{"type": "integer"},
					"offset":     map[string]interface{}{"type": "integer"},
				},
				"required": []string{"q"},
			},
		},
		{
			Name:        "get_product_prices_by_location_v2",
			Description: "Lowest-first prices for one golden product at a given set of stores.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"product_id": map[string]interface{}{"type": "integer"},
					"store_ids":  map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "integer"}},
				},
				"required": []string{"product_id", "store_ids"},
			},
		},
		{
			Name:        "get_product_details_v2",
			Description: "Canonical record and best-offer fields for one golden product.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"product_id": map[string]interface{}{"type": "integer"},
				},
				"required": []string{"product_id"},
			},
		},
		{
			Name:        "find_nearby_stores_v2",
			Description: "Stores within a radius of a point, ordered ascending by distance.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"lat":            map[string]interface{}{"type": "number"},
					"lon":            map[string]interface{}{"type": "number"},
					"radius_meters":  map[string]interface{}{"type": "number"},
					"chain_code":     map[string]interface{}{"type": "string"},
				},
				"required": []string{"lat", "lon", "radius_meters"},
			},
		},
		{
			Name:        "get_user_locations",
			Description: "The caller's saved locations.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"user_id": map[string]interface{}{"type": "integer"},
				},
				"required": []string{"user_id"},
			},
		},
	}
}

// toolHandler executes one named tool against its argument map, returning a
// JSON-marshalable result. Errors surface to the model as a tool_output
// containing {"error": ...} rather than aborting the turn — §4.H only
// terminates the whole request on an unknown tool name, not a tool failure.
type toolHandler func(ctx context.Context, args map[string]interface{}) (interface{}, error)

func toolHandlers() map[string]toolHandler {
	return map[string]toolHandler{
		"search_products_v2":                searchProductsV2,
		"get_product_prices_by_location_v2": getProductPricesByLocationV2,
		"get_product_details_v2":            getProductDetailsV2,
		"find_nearby_stores_v2":             findNearbyStoresV2,
		"get_user_locations":                getUserLocations,
	}
}

func argString(args map[string]interface{}, key string) string {
	v, _ := args[key].(string)
	return v
}

func argStringPtr(args map[string]interface{}, key string) *string {
	v, ok := args[key].(string)
	if !ok || v == "" {
		return nil
	}
	return &v
}

func argFloat(args map[string]interface{}, key string) float64 {
	switch v := args[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}

func argInt(args map[string]interface{}, key string, fallback int) int {
	if v, ok := args[key].(float64); ok {
		return int(v)
	}
	return fallback
}

func argInt64(args map[string]interface{}, key string) int64 {
	return int64(argFloat(args, key))
}

func argInt64Slice(args map[string]interface{}, key string) []int64 {
	raw, ok := args[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]int64, 0, len(raw))
	for _, v := range raw {
		if f, ok := v.(float64); ok {
			out = append(out, int64(f))
		}
	}
	return out
}

type searchHit struct {
	ProductID     int64    `json:"product_id"`
	EAN           string   `json:"ean"`
	CanonicalName string   `json:"canonical_name"`
	Brand         *string  `json:"brand"`
	Category      *string  `json:"category"`
	UnitPrice     *int64   `json:"unit_price,omitempty"`
}

// searchProductsV2 implements §4.H's hybrid search tool. The lexical half is
// database.SearchGProducts' pg_trgm prefilter; when sort_by names a value
// metric, candidates are narrowed to the matching base_unit_type and
// re-ordered by the lowest charged unit price observed at store_ids (or
// anywhere, if store_ids is empty), falling back to the lexical order as a
// relevance tiebreak exactly as §4.H specifies.
func searchProductsV2(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	q := argString(args, "q")
	category := argStringPtr(args, "category")
	brand := argStringPtr(args, "brand")
	limit := argInt(args, "limit", 20)
	offset := argInt(args, "offset", 0)
	sortBy := argString(args, "sort_by")
	storeIDs := argInt64Slice(args, "store_ids")

	candidates, err := database.SearchGProducts(ctx, q, category, brand, limit+offset+50)
	if err != nil {
		return nil, fmt.Errorf("search products: %w", err)
	}

	var wantUnit database.BaseUnitType
	switch sortBy {
	case "best_value_kg":
		wantUnit = database.BaseUnitWeight
	case "best_value_l":
		wantUnit = database.BaseUnitVolume
	case "best_value_piece":
		wantUnit = database.BaseUnitCount
	}

	hits := make([]searchHit, 0, len(candidates))
	for _, gp := range candidates {
		if wantUnit != "" && gp.BaseUnitType != wantUnit {
			continue
		}
		hit := searchHit{ProductID: gp.ID, EAN: gp.EAN, CanonicalName: gp.CanonicalName, Brand: gp.Brand, Category: gp.Category}
		if wantUnit != "" {
			prices, err := database.GPricesForProductAtStores(ctx, gp.ID, storeIDs)
			if err == nil {
				hit.UnitPrice = minUnitPrice(prices, wantUnit)
			}
		}
		hits = append(hits, hit)
	}

	if wantUnit != "" {
		sort.SliceStable(hits, func(i, j int) bool {
			pi, pj := hits[i].UnitPrice, hits[j].UnitPrice
			if pi == nil {
				return false
			}
			if pj == nil {
				return true
			}
			return *pi < *pj
		})
	}

	if offset > len(hits) {
		offset = len(hits)
	}
	end := offset + limit
	if end > len(hits) {
		end = len(hits)
	}
	return hits[offset:end], nil
}

func minUnitPrice(prices []database.GPrice, unit database.BaseUnitType) *int64 {
	var best *int64
	for _, p := range prices {
		var v *int64
		switch unit {
		case database.BaseUnitWeight:
			v = p.PricePerKg
		case database.BaseUnitVolume:
			v = p.PricePerL
		case database.BaseUnitCount:
			v = p.PricePerPiece
		}
		if v == nil {
			continue
		}
		if best == nil || *v < *best {
			best = v
		}
	}
	return best
}

func getProductPricesByLocationV2(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	productID := argInt64(args, "product_id")
	storeIDs := argInt64Slice(args, "store_ids")
	prices, err := database.GPricesForProductAtStores(ctx, productID, storeIDs)
	if err != nil {
		return nil, fmt.Errorf("get prices by location: %w", err)
	}
	return prices, nil
}

type productDetails struct {
	database.GProduct
	BestOffer *database.GProductBestOffer `json:"best_offer,omitempty"`
}

func getProductDetailsV2(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	productID := argInt64(args, "product_id")
	gp, err := database.GetGProductByID(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("get product details: %w", err)
	}
	details := productDetails{GProduct: *gp}
	if bo, err := database.GetBestOffer(ctx, productID); err == nil {
		details.BestOffer = bo
	}
	return details, nil
}

func findNearbyStoresV2(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	lat := argFloat(args, "lat")
	lon := argFloat(args, "lon")
	radius := argFloat(args, "radius_meters")
	chainCode := argStringPtr(args, "chain_code")

	stores, err := database.NearbyStoresWithChain(ctx, lat, lon, radius, chainCode)
	if err != nil {
		return nil, fmt.Errorf("find nearby stores: %w", err)
	}
	return stores, nil
}

func getUserLocations(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	userID := argInt64(args, "user_id")
	loc, err := database.GetUserLocation(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user locations: %w", err)
	}
	if loc == nil {
		return []database.UserLocation{}, nil
	}
	return []database.UserLocation{*loc}, nil
}
