package database

import (
	"context"
	"fmt"
)

// UpsertProductByEAN finds or creates the shared Product row for an EAN. A
// nil/empty EAN always creates a new row since there is nothing to dedup on.
func UpsertProductByEAN(ctx context.Context, ean *string, brand *string, name string, quantity, unit *string) (*Product, error) {
	pool := Pool()

	if ean == nil || *ean == "" {
		var p Product
		err := pool.QueryRow(ctx, `
			INSERT INTO products (ean, brand, name, quantity, unit, created_at)
			VALUES (NULL, $1, $2, $3, $4, NOW())
			RETURNING id, ean, brand, name, quantity, unit, created_at
		`, brand, name, quantity, unit).Scan(&p.ID, &p.EAN, &p.Brand, &p.Name, &p.Quantity, &p.Unit, &p.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("insert product %q: %w", name, err)
		}
		return &p, nil
	}

	var p Product
	err := pool.QueryRow(ctx, `
		INSERT INTO products (ean, brand, name, quantity, unit, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (ean) DO UPDATE SET
			brand = COALESCE(EXCLUDED.brand, products.brand),
			name = EXCLUDED.name
		RETURNING id, ean, brand, name, quantity, unit, created_at
	`, ean, brand, name, quantity, unit).Scan(&p.ID, &p.EAN, &p.Brand, &p.Name, &p.Quantity, &p.Unit, &p.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("upsert product ean=%s: %w", *ean, err)
	}
	return &p, nil
}

// UpsertChainProduct inserts or updates a chain's own row for a product,
// keyed by (chain_id, code) — the chain's own SKU/code from its price feed.
func UpsertChainProduct(ctx context.Context, cp *ChainProduct) (*ChainProduct, error) {
	pool := Pool()

	query := `
		INSERT INTO chain_products (
			chain_id, product_id, code, name, brand, category, unit, quantity,
			is_processed, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, false, NOW(), NOW())
		ON CONFLICT (chain_id, code) DO UPDATE SET
			product_id = EXCLUDED.product_id,
			name = EXCLUDED.name,
			brand = EXCLUDED.brand,
			category = EXCLUDED.category,
			unit = EXCLUDED.unit,
			quantity = EXCLUDED.quantity,
			updated_at = NOW()
		RETURNING id, chain_id, product_id, code, name, brand, category, unit, quantity, is_processed, created_at, updated_at
	`

	var out ChainProduct
	err := pool.QueryRow(ctx, query,
		cp.ChainID, cp.ProductID, cp.Code, cp.Name, cp.Brand, cp.Category, cp.Unit, cp.Quantity,
	).Scan(
		&out.ID, &out.ChainID, &out.ProductID, &out.Code, &out.Name, &out.Brand,
		&out.Category, &out.Unit, &out.Quantity, &out.IsProcessed, &out.CreatedAt, &out.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert chain product %d/%s: %w", cp.ChainID, cp.Code, err)
	}
	return &out, nil
}

// UnprocessedChainProducts returns chain products not yet considered by a
// golden-record orchestrator pass, the work queue for §2.E's batches.
func UnprocessedChainProducts(ctx context.Context, limit int) ([]ChainProduct, error) {
	pool := Pool()

	rows, err := pool.Query(ctx, `
		SELECT id, chain_id, product_id, code, name, brand, category, unit, quantity, is_processed, created_at, updated_at
		FROM chain_products
		WHERE is_processed = false
		ORDER BY id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query unprocessed chain products: %w", err)
	}
	defer rows.Close()

	out := make([]ChainProduct, 0)
	for rows.Next() {
		var cp ChainProduct
		if err := rows.Scan(
			&cp.ID, &cp.ChainID, &cp.ProductID, &cp.Code, &cp.Name, &cp.Brand,
			&cp.Category, &cp.Unit, &cp.Quantity, &cp.IsProcessed, &cp.CreatedAt, &cp.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan chain product: %w", err)
		}
		out = append(out, cp)
	}
	return out, rows.Err()
}

// MarkChainProductsProcessed flags a batch of chain products as handled by
// the golden-record orchestrator, so a crashed worker's batch can be safely
// reclaimed (unprocessed rows are the only ones a retry considers).
func MarkChainProductsProcessed(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	pool := Pool()

	_, err := pool.Exec(ctx, `
		UPDATE chain_products SET is_processed = true, updated_at = NOW() WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return fmt.Errorf("mark chain products processed: %w", err)
	}
	return nil
}

// ProductForNormalization is one products-table row whose EAN has no
// GProduct yet, together with every ChainProduct sharing its product_id —
// the per-EAN aggregate the normalizer worker (§4.F step 1) sends to the
// LLM. Since UpsertProductByEAN already dedups on EAN at import time, one
// Product row is already exactly one EAN group; unlike the Python original
// (internal/golden is grounded on golden_record/normaliser_gemini.py's
// GROUP BY p.ean), no grouping query is needed here beyond the join.
type ProductForNormalization struct {
	ProductID     int64
	EAN           string
	ChainProducts []ChainProduct
}

// UnprocessedProductsInRange returns products in [startID, startID+limit)
// that have no corresponding GProduct yet, each with its source chain
// products — the golden-record orchestrator's per-worker batch (§4.E).
func UnprocessedProductsInRange(ctx context.Context, startID int64, limit int) ([]ProductForNormalization, error) {
	pool := Pool()

	rows, err := pool.Query(ctx, `
		SELECT p.id, p.ean, cp.id, cp.chain_id, cp.product_id, cp.code, cp.name,
		       cp.brand, cp.category, cp.unit, cp.quantity, cp.is_processed,
		       cp.created_at, cp.updated_at
		FROM products p
		JOIN chain_products cp ON cp.product_id = p.id
		WHERE p.id >= $1 AND p.id < $1 + $2
		  AND p.ean IS NOT NULL
		  AND NOT EXISTS (SELECT 1 FROM g_products gp WHERE gp.ean = p.ean)
		ORDER BY p.id
	`, startID, limit)
	if err != nil {
		return nil, fmt.Errorf("query unprocessed products range: %w", err)
	}
	defer rows.Close()

	byID := make(map[int64]*ProductForNormalization)
	order := make([]int64, 0)
	for rows.Next() {
		var pID int64
		var ean string
		var cp ChainProduct
		if err := rows.Scan(
			&pID, &ean, &cp.ID, &cp.ChainID, &cp.ProductID, &cp.Code, &cp.Name,
			&cp.Brand, &cp.Category, &cp.Unit, &cp.Quantity, &cp.IsProcessed,
			&cp.CreatedAt, &cp.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan unprocessed product row: %w", err)
		}
		group, ok := byID[pID]
		if !ok {
			group = &ProductForNormalization{ProductID: pID, EAN: ean}
			byID[pID] = group
			order = append(order, pID)
		}
		group.ChainProducts = append(group.ChainProducts, cp)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]ProductForNormalization, 0, len(order))
	for _, id := range order {
		out = append(out, *byID[id])
	}
	return out, nil
}

// MaxProductID returns the highest products.id, bounding the golden-record
// orchestrator's partition loop the way MaxGProductID bounds its own.
func MaxProductID(ctx context.Context) (int64, error) {
	pool := Pool()

	var maxID *int64
	if err := pool.QueryRow(ctx, `SELECT MAX(id) FROM products`).Scan(&maxID); err != nil {
		return 0, fmt.Errorf("max product id: %w", err)
	}
	if maxID == nil {
		return 0, nil
	}
	return *maxID, nil
}

// GetChainProductByID retrieves a single chain product.
func GetChainProductByID(ctx context.Context, id int64) (*ChainProduct, error) {
	pool := Pool()

	var cp ChainProduct
	err := pool.QueryRow(ctx, `
		SELECT id, chain_id, product_id, code, name, brand, category, unit, quantity, is_processed, created_at, updated_at
		FROM chain_products WHERE id = $1
	`, id).Scan(
		&cp.ID, &cp.ChainID, &cp.ProductID, &cp.Code, &cp.Name, &cp.Brand,
		&cp.Category, &cp.Unit, &cp.Quantity, &cp.IsProcessed, &cp.CreatedAt, &cp.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("get chain product %d: %w", id, err)
	}
	return &cp, nil
}
