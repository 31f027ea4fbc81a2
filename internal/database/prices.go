package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// BulkUpsertPrices writes a batch of Price rows for one import run in a
// single round trip via pgx.Batch, grounded on price_groups.go's
// batch-insert-then-check pattern.
func BulkUpsertPrices(ctx context.Context, prices []Price) error {
	if len(prices) == 0 {
		return nil
	}

	pool := Pool()
	batch := &pgx.Batch{}

	for _, p := range prices {
		batch.Queue(`
			INSERT INTO prices (
				chain_product_id, store_id, price_date, regular_price,
				special_price, unit_price, best_price_30, anchor_price
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (chain_product_id, store_id, price_date) DO UPDATE SET
				regular_price = EXCLUDED.regular_price,
				special_price = EXCLUDED.special_price,
				unit_price = EXCLUDED.unit_price,
				best_price_30 = EXCLUDED.best_price_30,
				anchor_price = EXCLUDED.anchor_price
		`, p.ChainProductID, p.StoreID, p.PriceDate, p.RegularPrice,
			p.SpecialPrice, p.UnitPrice, p.BestPrice30, p.AnchorPrice)
	}

	br := pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range prices {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("bulk upsert price %d: %w", i, err)
		}
	}
	return br.Close()
}

// ComputeChainPrices recomputes the ChainPrice aggregate (min/max/avg across
// all stores) for every chain product priced on priceDate, for one chain.
// Grounded on internal/database/price_groups.go's aggregate-update style.
func ComputeChainPrices(ctx context.Context, chainID int64, priceDate time.Time) error {
	pool := Pool()

	_, err := pool.Exec(ctx, `
		INSERT INTO chain_prices (chain_product_id, price_date, min_price, max_price, avg_price)
		SELECT p.chain_product_id, p.price_date,
		       MIN(COALESCE(p.special_price, p.regular_price)),
		       MAX(COALESCE(p.special_price, p.regular_price)),
		       AVG(COALESCE(p.special_price, p.regular_price))
		FROM prices p
		JOIN chain_products cp ON cp.id = p.chain_product_id
		WHERE cp.chain_id = $1 AND p.price_date = $2
		GROUP BY p.chain_product_id, p.price_date
		ON CONFLICT (chain_product_id, price_date) DO UPDATE SET
			min_price = EXCLUDED.min_price,
			max_price = EXCLUDED.max_price,
			avg_price = EXCLUDED.avg_price
	`, chainID, priceDate)
	if err != nil {
		return fmt.Errorf("compute chain prices for chain %d on %s: %w", chainID, priceDate.Format("2006-01-02"), err)
	}
	return nil
}

// ComputeChainStats recomputes the ChainStats rollup (row counts) for a
// chain on a given date, used for crawl health dashboards.
func ComputeChainStats(ctx context.Context, chainID int64, priceDate time.Time) error {
	pool := Pool()

	_, err := pool.Exec(ctx, `
		INSERT INTO chain_stats (chain_id, price_date, price_count, store_count)
		SELECT $1, $2, COUNT(*), COUNT(DISTINCT p.store_id)
		FROM prices p
		JOIN chain_products cp ON cp.id = p.chain_product_id
		WHERE cp.chain_id = $1 AND p.price_date = $2
		ON CONFLICT (chain_id, price_date) DO UPDATE SET
			price_count = EXCLUDED.price_count,
			store_count = EXCLUDED.store_count
	`, chainID, priceDate)
	if err != nil {
		return fmt.Errorf("compute chain stats for chain %d on %s: %w", chainID, priceDate.Format("2006-01-02"), err)
	}
	return nil
}

// GetChainStats retrieves the stats rollup for a chain/date, if it exists.
func GetChainStats(ctx context.Context, chainID int64, priceDate time.Time) (*ChainStats, error) {
	pool := Pool()

	var s ChainStats
	err := pool.QueryRow(ctx, `
		SELECT chain_id, price_date, price_count, store_count
		FROM chain_stats WHERE chain_id = $1 AND price_date = $2
	`, chainID, priceDate).Scan(&s.ChainID, &s.PriceDate, &s.PriceCount, &s.StoreCount)
	if err != nil {
		return nil, fmt.Errorf("get chain stats %d/%s: %w", chainID, priceDate.Format("2006-01-02"), err)
	}
	return &s, nil
}

// PricesForChainProduct lists every store's price for a chain product on a date.
func PricesForChainProduct(ctx context.Context, chainProductID int64, priceDate time.Time) ([]Price, error) {
	pool := Pool()

	rows, err := pool.Query(ctx, `
		SELECT chain_product_id, store_id, price_date, regular_price,
		       special_price, unit_price, best_price_30, anchor_price
		FROM prices
		WHERE chain_product_id = $1 AND price_date = $2
	`, chainProductID, priceDate)
	if err != nil {
		return nil, fmt.Errorf("query prices for chain product %d: %w", chainProductID, err)
	}
	defer rows.Close()

	out := make([]Price, 0)
	for rows.Next() {
		var p Price
		if err := rows.Scan(
			&p.ChainProductID, &p.StoreID, &p.PriceDate, &p.RegularPrice,
			&p.SpecialPrice, &p.UnitPrice, &p.BestPrice30, &p.AnchorPrice,
		); err != nil {
			return nil, fmt.Errorf("scan price: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
