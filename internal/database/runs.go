package database

import (
	"context"
	"fmt"
	"time"
)

// CreateCrawlRun inserts a new crawl run row in STARTED status.
func CreateCrawlRun(ctx context.Context, chainName string, crawlDate time.Time) (*CrawlRun, error) {
	pool := Pool()

	var r CrawlRun
	err := pool.QueryRow(ctx, `
		INSERT INTO crawl_runs (chain_name, crawl_date, status, n_stores, n_products, n_prices, elapsed_time, timestamp)
		VALUES ($1, $2, $3, 0, 0, 0, 0, NOW())
		RETURNING id, chain_name, crawl_date, status, error, n_stores, n_products, n_prices, elapsed_time, timestamp
	`, chainName, crawlDate, RunStatusStarted).Scan(
		&r.ID, &r.ChainName, &r.CrawlDate, &r.Status, &r.Error,
		&r.NStores, &r.NProducts, &r.NPrices, &r.ElapsedSecs, &r.Timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("create crawl run %s/%s: %w", chainName, crawlDate.Format("2006-01-02"), err)
	}
	return &r, nil
}

// FinishCrawlRun records the terminal status and counters of a crawl run.
func FinishCrawlRun(ctx context.Context, id int64, status RunStatus, errMsg *string, nStores, nProducts, nPrices int, elapsed time.Duration) error {
	pool := Pool()

	_, err := pool.Exec(ctx, `
		UPDATE crawl_runs
		SET status = $1, error = $2, n_stores = $3, n_products = $4, n_prices = $5, elapsed_time = $6
		WHERE id = $7
	`, status, errMsg, nStores, nProducts, nPrices, elapsed.Seconds(), id)
	if err != nil {
		return fmt.Errorf("finish crawl run %d: %w", id, err)
	}
	return nil
}

// LatestCrawlRun returns the most recent crawl run for a chain/date, if any.
// Used to decide whether a run should be SKIPPED (§5 open question: only
// FAILED/STARTED runs are retry-eligible, a SUCCESS or SKIPPED re-skips).
func LatestCrawlRun(ctx context.Context, chainName string, crawlDate time.Time) (*CrawlRun, error) {
	pool := Pool()

	var r CrawlRun
	err := pool.QueryRow(ctx, `
		SELECT id, chain_name, crawl_date, status, error, n_stores, n_products, n_prices, elapsed_time, timestamp
		FROM crawl_runs
		WHERE chain_name = $1 AND crawl_date = $2
		ORDER BY timestamp DESC
		LIMIT 1
	`, chainName, crawlDate).Scan(
		&r.ID, &r.ChainName, &r.CrawlDate, &r.Status, &r.Error,
		&r.NStores, &r.NProducts, &r.NPrices, &r.ElapsedSecs, &r.Timestamp,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// GetCrawlRunByID retrieves a crawl run by ID, for control-plane status polls.
func GetCrawlRunByID(ctx context.Context, id int64) (*CrawlRun, error) {
	pool := Pool()

	var r CrawlRun
	err := pool.QueryRow(ctx, `
		SELECT id, chain_name, crawl_date, status, error, n_stores, n_products, n_prices, elapsed_time, timestamp
		FROM crawl_runs WHERE id = $1
	`, id).Scan(
		&r.ID, &r.ChainName, &r.CrawlDate, &r.Status, &r.Error,
		&r.NStores, &r.NProducts, &r.NPrices, &r.ElapsedSecs, &r.Timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("get crawl run %d: %w", id, err)
	}
	return &r, nil
}

// CreateImportRun inserts a new import run row in STARTED status, upserting
// on (chain_name, import_date) so a rerun replaces rather than duplicates.
func CreateImportRun(ctx context.Context, crawlRunID *int64, chainName string, importDate time.Time) (*ImportRun, error) {
	pool := Pool()

	var r ImportRun
	err := pool.QueryRow(ctx, `
		INSERT INTO import_runs (crawl_run_id, chain_name, import_date, status, n_stores, n_products, n_prices, elapsed_time, timestamp)
		VALUES ($1, $2, $3, $4, 0, 0, 0, 0, NOW())
		ON CONFLICT (chain_name, import_date) DO UPDATE SET
			crawl_run_id = EXCLUDED.crawl_run_id,
			status = EXCLUDED.status,
			timestamp = NOW()
		RETURNING id, crawl_run_id, chain_name, import_date, status, error, n_stores, n_products, n_prices, elapsed_time, timestamp, unzipped_path
	`, crawlRunID, chainName, importDate, RunStatusStarted).Scan(
		&r.ID, &r.CrawlRunID, &r.ChainName, &r.ImportDate, &r.Status, &r.Error,
		&r.NStores, &r.NProducts, &r.NPrices, &r.ElapsedSecs, &r.Timestamp, &r.UnzippedPath,
	)
	if err != nil {
		return nil, fmt.Errorf("create import run %s/%s: %w", chainName, importDate.Format("2006-01-02"), err)
	}
	return &r, nil
}

// FinishImportRun records the terminal status and counters of an import run.
func FinishImportRun(ctx context.Context, id int64, status RunStatus, errMsg *string, nStores, nProducts, nPrices int, elapsed time.Duration) error {
	pool := Pool()

	_, err := pool.Exec(ctx, `
		UPDATE import_runs
		SET status = $1, error = $2, n_stores = $3, n_products = $4, n_prices = $5, elapsed_time = $6
		WHERE id = $7
	`, status, errMsg, nStores, nProducts, nPrices, elapsed.Seconds(), id)
	if err != nil {
		return fmt.Errorf("finish import run %d: %w", id, err)
	}
	return nil
}

// UpsertCrawlRunStatus is POST /v1/crawler/status's idempotent upsert for
// (chain_name, crawl_date) — the crawler container's out-of-process status
// report, as distinct from CreateCrawlRun/FinishCrawlRun which the in-process
// orchestrator uses when it owns the run end to end.
func UpsertCrawlRunStatus(ctx context.Context, chainName string, crawlDate time.Time, status RunStatus, errMsg *string, nStores, nProducts, nPrices int, elapsed time.Duration) (*CrawlRun, error) {
	pool := Pool()

	var r CrawlRun
	err := pool.QueryRow(ctx, `
		INSERT INTO crawl_runs (chain_name, crawl_date, status, error, n_stores, n_products, n_prices, elapsed_time, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (chain_name, crawl_date) DO UPDATE SET
			status = EXCLUDED.status,
			error = EXCLUDED.error,
			n_stores = EXCLUDED.n_stores,
			n_products = EXCLUDED.n_products,
			n_prices = EXCLUDED.n_prices,
			elapsed_time = EXCLUDED.elapsed_time,
			timestamp = NOW()
		RETURNING id, chain_name, crawl_date, status, error, n_stores, n_products, n_prices, elapsed_time, timestamp
	`, chainName, crawlDate, status, errMsg, nStores, nProducts, nPrices, elapsed.Seconds()).Scan(
		&r.ID, &r.ChainName, &r.CrawlDate, &r.Status, &r.Error,
		&r.NStores, &r.NProducts, &r.NPrices, &r.ElapsedSecs, &r.Timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert crawl run status %s/%s: %w", chainName, crawlDate.Format("2006-01-02"), err)
	}
	return &r, nil
}

// ListCrawlRunsByDateStatus returns every crawl run on a date whose status is
// in statuses, backing both `/v1/crawler/successful_runs/{date}` (status =
// SUCCESS) and `/v1/crawler/failed_or_started_runs/{date}` (status in
// FAILED, STARTED).
func ListCrawlRunsByDateStatus(ctx context.Context, date time.Time, statuses []RunStatus) ([]CrawlRun, error) {
	pool := Pool()

	rows, err := pool.Query(ctx, `
		SELECT id, chain_name, crawl_date, status, error, n_stores, n_products, n_prices, elapsed_time, timestamp
		FROM crawl_runs
		WHERE crawl_date = $1 AND status = ANY($2)
		ORDER BY chain_name
	`, date, statuses)
	if err != nil {
		return nil, fmt.Errorf("list crawl runs for %s: %w", date.Format("2006-01-02"), err)
	}
	defer rows.Close()

	runs := make([]CrawlRun, 0)
	for rows.Next() {
		var r CrawlRun
		if err := rows.Scan(
			&r.ID, &r.ChainName, &r.CrawlDate, &r.Status, &r.Error,
			&r.NStores, &r.NProducts, &r.NPrices, &r.ElapsedSecs, &r.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("scan crawl run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// UpsertImportRunStatus is POST /v1/importer/status's idempotent upsert,
// mirroring UpsertCrawlRunStatus for the import side.
func UpsertImportRunStatus(ctx context.Context, chainName string, importDate time.Time, status RunStatus, errMsg *string, nStores, nProducts, nPrices int, elapsed time.Duration) (*ImportRun, error) {
	pool := Pool()

	var r ImportRun
	err := pool.QueryRow(ctx, `
		INSERT INTO import_runs (chain_name, import_date, status, error, n_stores, n_products, n_prices, elapsed_time, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (chain_name, import_date) DO UPDATE SET
			status = EXCLUDED.status,
			error = EXCLUDED.error,
			n_stores = EXCLUDED.n_stores,
			n_products = EXCLUDED.n_products,
			n_prices = EXCLUDED.n_prices,
			elapsed_time = EXCLUDED.elapsed_time,
			timestamp = NOW()
		RETURNING id, crawl_run_id, chain_name, import_date, status, error, n_stores, n_products, n_prices, elapsed_time, timestamp, unzipped_path
	`, chainName, importDate, status, errMsg, nStores, nProducts, nPrices, elapsed.Seconds()).Scan(
		&r.ID, &r.CrawlRunID, &r.ChainName, &r.ImportDate, &r.Status, &r.Error,
		&r.NStores, &r.NProducts, &r.NPrices, &r.ElapsedSecs, &r.Timestamp, &r.UnzippedPath,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert import run status %s/%s: %w", chainName, importDate.Format("2006-01-02"), err)
	}
	return &r, nil
}

// GetImportRunByChainDate retrieves a single import run for /v1/importer/status/{chain}/{date}.
func GetImportRunByChainDate(ctx context.Context, chainName string, importDate time.Time) (*ImportRun, error) {
	return LatestImportRun(ctx, chainName, importDate)
}

// ListImportRunsByDateStatus mirrors ListCrawlRunsByDateStatus for import runs.
func ListImportRunsByDateStatus(ctx context.Context, date time.Time, statuses []RunStatus) ([]ImportRun, error) {
	pool := Pool()

	rows, err := pool.Query(ctx, `
		SELECT id, crawl_run_id, chain_name, import_date, status, error, n_stores, n_products, n_prices, elapsed_time, timestamp, unzipped_path
		FROM import_runs
		WHERE import_date = $1 AND status = ANY($2)
		ORDER BY chain_name
	`, date, statuses)
	if err != nil {
		return nil, fmt.Errorf("list import runs for %s: %w", date.Format("2006-01-02"), err)
	}
	defer rows.Close()

	runs := make([]ImportRun, 0)
	for rows.Next() {
		var r ImportRun
		if err := rows.Scan(
			&r.ID, &r.CrawlRunID, &r.ChainName, &r.ImportDate, &r.Status, &r.Error,
			&r.NStores, &r.NProducts, &r.NPrices, &r.ElapsedSecs, &r.Timestamp, &r.UnzippedPath,
		); err != nil {
			return nil, fmt.Errorf("scan import run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// LatestImportRun returns the most recent import run for a chain/date, if any.
func LatestImportRun(ctx context.Context, chainName string, importDate time.Time) (*ImportRun, error) {
	pool := Pool()

	var r ImportRun
	err := pool.QueryRow(ctx, `
		SELECT id, crawl_run_id, chain_name, import_date, status, error, n_stores, n_products, n_prices, elapsed_time, timestamp, unzipped_path
		FROM import_runs
		WHERE chain_name = $1 AND import_date = $2
	`, chainName, importDate).Scan(
		&r.ID, &r.CrawlRunID, &r.ChainName, &r.ImportDate, &r.Status, &r.Error,
		&r.NStores, &r.NProducts, &r.NPrices, &r.ElapsedSecs, &r.Timestamp, &r.UnzippedPath,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}
