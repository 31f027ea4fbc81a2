package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBExecutor is satisfied by both *pgxpool.Pool and pgx.Tx, matching the
// teacher's internal/matching package so golden-record insert helpers can
// run standalone or as part of a caller's transaction.
type DBExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// InsertGProduct performs the full golden-record insert transactionally: the
// GProduct row plus linking its source ChainProducts, per §4.F step 7. If
// embedding generation already failed, InsertGProduct is simply never called
// for that EAN (§5 open-question decision) — there is no partial-row path.
func InsertGProduct(ctx context.Context, gp *GProduct, sourceChainProductIDs []int64) (*GProduct, error) {
	pool := Pool()

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin golden product insert: %w", err)
	}
	defer tx.Rollback(ctx)

	var out GProduct
	err = tx.QueryRow(ctx, `
		INSERT INTO g_products (
			ean, canonical_name, brand, category, base_unit_type, variants,
			text_for_embedding, keywords, is_generic_product,
			seasonal_start_month, seasonal_end_month, embedding,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW(), NOW())
		ON CONFLICT (ean) DO UPDATE SET
			canonical_name = EXCLUDED.canonical_name,
			brand = EXCLUDED.brand,
			category = EXCLUDED.category,
			base_unit_type = EXCLUDED.base_unit_type,
			variants = EXCLUDED.variants,
			text_for_embedding = EXCLUDED.text_for_embedding,
			keywords = EXCLUDED.keywords,
			is_generic_product = EXCLUDED.is_generic_product,
			seasonal_start_month = EXCLUDED.seasonal_start_month,
			seasonal_end_month = EXCLUDED.seasonal_end_month,
			embedding = EXCLUDED.embedding,
			updated_at = NOW()
		RETURNING id, ean, canonical_name, brand, category, base_unit_type, variants,
			text_for_embedding, keywords, is_generic_product, seasonal_start_month,
			seasonal_end_month, embedding, created_at, updated_at
	`, gp.EAN, gp.CanonicalName, gp.Brand, gp.Category, gp.BaseUnitType, gp.Variants,
		gp.TextForEmbedding, gp.Keywords, gp.IsGenericProduct, gp.SeasonalStartMonth,
		gp.SeasonalEndMonth, gp.Embedding,
	).Scan(
		&out.ID, &out.EAN, &out.CanonicalName, &out.Brand, &out.Category,
		&out.BaseUnitType, &out.Variants, &out.TextForEmbedding, &out.Keywords,
		&out.IsGenericProduct, &out.SeasonalStartMonth, &out.SeasonalEndMonth,
		&out.Embedding, &out.CreatedAt, &out.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert g_product ean=%s: %w", gp.EAN, err)
	}

	if len(sourceChainProductIDs) > 0 {
		batch := &pgx.Batch{}
		for _, cpID := range sourceChainProductIDs {
			batch.Queue(`
				UPDATE chain_products SET product_id = (
					SELECT product_id FROM products WHERE ean = $1 LIMIT 1
				), is_processed = true, updated_at = NOW()
				WHERE id = $2
			`, out.EAN, cpID)
		}
		br := tx.SendBatch(ctx, batch)
		for range sourceChainProductIDs {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return nil, fmt.Errorf("link source chain products for ean=%s: %w", gp.EAN, err)
			}
		}
		if err := br.Close(); err != nil {
			return nil, fmt.Errorf("close batch for ean=%s: %w", gp.EAN, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit golden product insert ean=%s: %w", gp.EAN, err)
	}

	return &out, nil
}

// TrgmCandidateGProducts runs the pg_trgm prefilter (matching's stage 1,
// grounded on the teacher's internal/matching/ai.go getTrgmCandidates) against
// existing golden products' canonical names, returning full rows — including
// embedding — since GProduct carries its embedding on the row instead of a
// separate cache table, the stage-2 rerank needs no extra fetch.
func TrgmCandidateGProducts(ctx context.Context, name string, limit int) ([]GProduct, error) {
	pool := Pool()

	rows, err := pool.Query(ctx, `
		SELECT id, ean, canonical_name, brand, category, base_unit_type, variants,
			text_for_embedding, keywords, is_generic_product, seasonal_start_month,
			seasonal_end_month, embedding, created_at, updated_at
		FROM g_products
		WHERE similarity(lower(canonical_name), lower($1)) > 0.1
		ORDER BY similarity(lower(canonical_name), lower($1)) DESC
		LIMIT $2
	`, name, limit)
	if err != nil {
		return nil, fmt.Errorf("trgm candidate g_products: %w", err)
	}
	defer rows.Close()

	out := make([]GProduct, 0)
	for rows.Next() {
		var gp GProduct
		if err := rows.Scan(
			&gp.ID, &gp.EAN, &gp.CanonicalName, &gp.Brand, &gp.Category,
			&gp.BaseUnitType, &gp.Variants, &gp.TextForEmbedding, &gp.Keywords,
			&gp.IsGenericProduct, &gp.SeasonalStartMonth, &gp.SeasonalEndMonth,
			&gp.Embedding, &gp.CreatedAt, &gp.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan trgm candidate: %w", err)
		}
		out = append(out, gp)
	}
	return out, rows.Err()
}

// GetGProductByEAN retrieves a golden record by its EAN.
func GetGProductByEAN(ctx context.Context, ean string) (*GProduct, error) {
	pool := Pool()

	var gp GProduct
	err := pool.QueryRow(ctx, `
		SELECT id, ean, canonical_name, brand, category, base_unit_type, variants,
			text_for_embedding, keywords, is_generic_product, seasonal_start_month,
			seasonal_end_month, embedding, created_at, updated_at
		FROM g_products WHERE ean = $1
	`, ean).Scan(
		&gp.ID, &gp.EAN, &gp.CanonicalName, &gp.Brand, &gp.Category,
		&gp.BaseUnitType, &gp.Variants, &gp.TextForEmbedding, &gp.Keywords,
		&gp.IsGenericProduct, &gp.SeasonalStartMonth, &gp.SeasonalEndMonth,
		&gp.Embedding, &gp.CreatedAt, &gp.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("get g_product ean=%s: %w", ean, err)
	}
	return &gp, nil
}

// GProductsInRange returns golden products with id in [startID, startID+limit),
// the partitioning unit for the golden-record orchestrator's worker batches.
func GProductsInRange(ctx context.Context, startID int64, limit int) ([]GProduct, error) {
	pool := Pool()

	rows, err := pool.Query(ctx, `
		SELECT id, ean, canonical_name, brand, category, base_unit_type, variants,
			text_for_embedding, keywords, is_generic_product, seasonal_start_month,
			seasonal_end_month, embedding, created_at, updated_at
		FROM g_products
		WHERE id >= $1 AND id < $1 + $2
		ORDER BY id
	`, startID, limit)
	if err != nil {
		return nil, fmt.Errorf("query g_products range: %w", err)
	}
	defer rows.Close()

	out := make([]GProduct, 0)
	for rows.Next() {
		var gp GProduct
		if err := rows.Scan(
			&gp.ID, &gp.EAN, &gp.CanonicalName, &gp.Brand, &gp.Category,
			&gp.BaseUnitType, &gp.Variants, &gp.TextForEmbedding, &gp.Keywords,
			&gp.IsGenericProduct, &gp.SeasonalStartMonth, &gp.SeasonalEndMonth,
			&gp.Embedding, &gp.CreatedAt, &gp.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan g_product: %w", err)
		}
		out = append(out, gp)
	}
	return out, rows.Err()
}

// MaxGProductID returns the highest g_products.id, used to bound the
// orchestrator's partition loop.
func MaxGProductID(ctx context.Context) (int64, error) {
	pool := Pool()

	var maxID *int64
	err := pool.QueryRow(ctx, `SELECT MAX(id) FROM g_products`).Scan(&maxID)
	if err != nil {
		return 0, fmt.Errorf("max g_product id: %w", err)
	}
	if maxID == nil {
		return 0, nil
	}
	return *maxID, nil
}

// GProductMapEntry is the per-EAN projection the archive writer needs to
// compute g_prices.csv (§4.B): just enough of a GProduct to run §4.G's
// unit-price formula without pulling the whole row (embedding included).
type GProductMapEntry struct {
	ID           int64
	BaseUnitType BaseUnitType
	Variants     *string
}

// LoadGProductsMap loads the ean -> {id, base_unit_type, variants} map the
// ingestion orchestrator reads once per crawl (§4.C step 1) and hands to the
// archive writer so it can compute g_prices.csv rows without a DB round trip
// per row.
func LoadGProductsMap(ctx context.Context) (map[string]GProductMapEntry, error) {
	pool := Pool()

	rows, err := pool.Query(ctx, `SELECT ean, id, base_unit_type, variants FROM g_products`)
	if err != nil {
		return nil, fmt.Errorf("load g_products map: %w", err)
	}
	defer rows.Close()

	out := make(map[string]GProductMapEntry)
	for rows.Next() {
		var ean string
		var entry GProductMapEntry
		if err := rows.Scan(&ean, &entry.ID, &entry.BaseUnitType, &entry.Variants); err != nil {
			return nil, fmt.Errorf("scan g_products map row: %w", err)
		}
		out[ean] = entry
	}
	return out, rows.Err()
}

// BulkUpsertGPrices writes a batch of GPrice rows derived from chain-level
// Price rows, deriving is_on_special_offer per §5's literal "presence, not
// comparison" decision.
func BulkUpsertGPrices(ctx context.Context, prices []GPrice) error {
	if len(prices) == 0 {
		return nil
	}
	pool := Pool()
	batch := &pgx.Batch{}

	for _, p := range prices {
		batch.Queue(`
			INSERT INTO g_prices (
				product_id, store_id, price_date, regular_price, special_price,
				price_per_kg, price_per_l, price_per_piece, is_on_special_offer
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (product_id, store_id, price_date) DO UPDATE SET
				regular_price = EXCLUDED.regular_price,
				special_price = EXCLUDED.special_price,
				price_per_kg = EXCLUDED.price_per_kg,
				price_per_l = EXCLUDED.price_per_l,
				price_per_piece = EXCLUDED.price_per_piece,
				is_on_special_offer = EXCLUDED.is_on_special_offer
		`, p.ProductID, p.StoreID, p.PriceDate, p.RegularPrice, p.SpecialPrice,
			p.PricePerKg, p.PricePerL, p.PricePerPiece, p.SpecialPrice != nil)
	}

	br := pool.SendBatch(ctx, batch)
	defer br.Close()
	for i := range prices {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("bulk upsert g_price %d: %w", i, err)
		}
	}
	return br.Close()
}

// GPricesForProduct lists every GPrice observed for a product across all
// stores, ordered most recent first — the input to the best-offer updater's
// running-minimum scan, grounded on best_offer_updater.py's query shape.
func GPricesForProduct(ctx context.Context, productID int64) ([]GPrice, error) {
	pool := Pool()

	rows, err := pool.Query(ctx, `
		SELECT product_id, store_id, price_date, regular_price, special_price,
		       price_per_kg, price_per_l, price_per_piece, is_on_special_offer
		FROM g_prices
		WHERE product_id = $1
		ORDER BY price_date DESC
	`, productID)
	if err != nil {
		return nil, fmt.Errorf("query g_prices for product %d: %w", productID, err)
	}
	defer rows.Close()

	out := make([]GPrice, 0)
	for rows.Next() {
		var p GPrice
		if err := rows.Scan(
			&p.ProductID, &p.StoreID, &p.PriceDate, &p.RegularPrice, &p.SpecialPrice,
			&p.PricePerKg, &p.PricePerL, &p.PricePerPiece, &p.IsOnSpecialOffer,
		); err != nil {
			return nil, fmt.Errorf("scan g_price: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetGProductByID retrieves a golden record by its surrogate id, the lookup
// behind the chat orchestrator's get_product_details_v2 and
// get_product_prices_by_location_v2 tools (§4.H).
func GetGProductByID(ctx context.Context, id int64) (*GProduct, error) {
	pool := Pool()

	var gp GProduct
	err := pool.QueryRow(ctx, `
		SELECT id, ean, canonical_name, brand, category, base_unit_type, variants,
			text_for_embedding, keywords, is_generic_product, seasonal_start_month,
			seasonal_end_month, embedding, created_at, updated_at
		FROM g_products WHERE id = $1
	`, id).Scan(
		&gp.ID, &gp.EAN, &gp.CanonicalName, &gp.Brand, &gp.Category,
		&gp.BaseUnitType, &gp.Variants, &gp.TextForEmbedding, &gp.Keywords,
		&gp.IsGenericProduct, &gp.SeasonalStartMonth, &gp.SeasonalEndMonth,
		&gp.Embedding, &gp.CreatedAt, &gp.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("get g_product id=%d: %w", id, err)
	}
	return &gp, nil
}

// GPricesForProductAtStores is GPricesForProduct restricted to a set of
// stores and ordered lowest-charged-price-first, the query behind
// get_product_prices_by_location_v2 (§4.H). An empty storeIDs means "every
// store that has priced this product."
func GPricesForProductAtStores(ctx context.Context, productID int64, storeIDs []int64) ([]GPrice, error) {
	pool := Pool()

	var rows pgx.Rows
	var err error
	if len(storeIDs) == 0 {
		rows, err = pool.Query(ctx, `
			SELECT product_id, store_id, price_date, regular_price, special_price,
			       price_per_kg, price_per_l, price_per_piece, is_on_special_offer
			FROM g_prices
			WHERE product_id = $1
			ORDER BY COALESCE(special_price, regular_price) ASC
		`, productID)
	} else {
		rows, err = pool.Query(ctx, `
			SELECT product_id, store_id, price_date, regular_price, special_price,
			       price_per_kg, price_per_l, price_per_piece, is_on_special_offer
			FROM g_prices
			WHERE product_id = $1 AND store_id = ANY($2)
			ORDER BY COALESCE(special_price, regular_price) ASC
		`, productID, storeIDs)
	}
	if err != nil {
		return nil, fmt.Errorf("query g_prices by location for product %d: %w", productID, err)
	}
	defer rows.Close()

	out := make([]GPrice, 0)
	for rows.Next() {
		var p GPrice
		if err := rows.Scan(
			&p.ProductID, &p.StoreID, &p.PriceDate, &p.RegularPrice, &p.SpecialPrice,
			&p.PricePerKg, &p.PricePerL, &p.PricePerPiece, &p.IsOnSpecialOffer,
		); err != nil {
			return nil, fmt.Errorf("scan g_price: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SearchGProducts runs the pg_trgm lexical prefilter (the same one
// TrgmCandidateGProducts uses for name-matching) with optional category/brand
// filters, for search_products_v2's lexical half of its hybrid search (§4.H).
// An empty q skips the similarity filter, so category/brand alone narrow the
// rows, ordered by recency instead; a non-empty q keeps only rows with
// similarity above 0.05.
func SearchGProducts(ctx context.Context, q string, category, brand *string, limit int) ([]GProduct, error) {
	pool := Pool()

	rows, err := pool.Query(ctx, `
		SELECT id, ean, canonical_name, brand, category, base_unit_type, variants,
			text_for_embedding, keywords, is_generic_product, seasonal_start_month,
			seasonal_end_month, embedding, created_at, updated_at
		FROM g_products
		WHERE ($1 = '' OR similarity(lower(canonical_name), lower($1)) > 0.05)
			AND ($2::text IS NULL OR lower(category) = lower($2))
			AND ($3::text IS NULL OR lower(brand) = lower($3))
		ORDER BY
			CASE WHEN $1 = '' THEN 0 ELSE similarity(lower(canonical_name), lower($1)) END DESC,
			created_at DESC
		LIMIT $4
	`, q, category, brand, limit)
	if err != nil {
		return nil, fmt.Errorf("search g_products q=%q: %w", q, err)
	}
	defer rows.Close()

	out := make([]GProduct, 0)
	for rows.Next() {
		var gp GProduct
		if err := rows.Scan(
			&gp.ID, &gp.EAN, &gp.CanonicalName, &gp.Brand, &gp.Category,
			&gp.BaseUnitType, &gp.Variants, &gp.TextForEmbedding, &gp.Keywords,
			&gp.IsGenericProduct, &gp.SeasonalStartMonth, &gp.SeasonalEndMonth,
			&gp.Embedding, &gp.CreatedAt, &gp.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan search result: %w", err)
		}
		out = append(out, gp)
	}
	return out, rows.Err()
}

// UpsertBestOffer writes the best-offer row computed by the best-offer
// updater (§4.G), replacing whatever was there for the product.
func UpsertBestOffer(ctx context.Context, bo *GProductBestOffer) error {
	pool := Pool()

	_, err := pool.Exec(ctx, `
		INSERT INTO g_product_best_offers (
			product_id, best_unit_price_per_kg, best_unit_price_per_l,
			best_unit_price_per_piece, lowest_price_in_season,
			best_price_store_id, best_price_found_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (product_id) DO UPDATE SET
			best_unit_price_per_kg = EXCLUDED.best_unit_price_per_kg,
			best_unit_price_per_l = EXCLUDED.best_unit_price_per_l,
			best_unit_price_per_piece = EXCLUDED.best_unit_price_per_piece,
			lowest_price_in_season = EXCLUDED.lowest_price_in_season,
			best_price_store_id = EXCLUDED.best_price_store_id,
			best_price_found_at = EXCLUDED.best_price_found_at
	`, bo.ProductID, bo.BestUnitPricePerKg, bo.BestUnitPricePerL,
		bo.BestUnitPricePerPiece, bo.LowestPriceInSeason, bo.BestPriceStoreID, bo.BestPriceFoundAt)
	if err != nil {
		return fmt.Errorf("upsert best offer for product %d: %w", bo.ProductID, err)
	}
	return nil
}

// GetBestOffer retrieves the best-offer row for a product, if computed.
func GetBestOffer(ctx context.Context, productID int64) (*GProductBestOffer, error) {
	pool := Pool()

	var bo GProductBestOffer
	err := pool.QueryRow(ctx, `
		SELECT product_id, best_unit_price_per_kg, best_unit_price_per_l,
		       best_unit_price_per_piece, lowest_price_in_season,
		       best_price_store_id, best_price_found_at
		FROM g_product_best_offers WHERE product_id = $1
	`, productID).Scan(
		&bo.ProductID, &bo.BestUnitPricePerKg, &bo.BestUnitPricePerL,
		&bo.BestUnitPricePerPiece, &bo.LowestPriceInSeason,
		&bo.BestPriceStoreID, &bo.BestPriceFoundAt,
	)
	if err != nil {
		return nil, fmt.Errorf("get best offer for product %d: %w", productID, err)
	}
	return &bo, nil
}
