// Package ingest is the ingestion orchestrator (§2.C): for one chain and one
// target date it runs discover -> fetch/parse -> archive -> report, recording
// a CrawlRun the whole way. Grounded on internal/pipeline/pipeline.go's phase
// structure, adapted because this package's boundary is "archive," not
// "persist to catalog DB" — that is internal/importer's job.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/kosarica/catalog-service/internal/adapters"
	"github.com/kosarica/catalog-service/internal/adapters/config"
	"github.com/kosarica/catalog-service/internal/adapters/registry"
	"github.com/kosarica/catalog-service/internal/archive"
	"github.com/kosarica/catalog-service/internal/database"
	"github.com/kosarica/catalog-service/internal/storage"
)

// Result summarizes one chain's crawl, mirroring the original source's
// CrawlResult dataclass (elapsed_time, n_stores, n_products, n_prices).
type Result struct {
	CrawlRunID int64
	Status     database.RunStatus
	NStores    int
	NProducts  int
	NPrices    int
	Elapsed    time.Duration
	Error      error
}

// Crawl runs the ingestion orchestrator for a single chain on targetDate.
// If an existing run for this chain/date already SUCCEEDED or was SKIPPED,
// it is skipped without re-fetching (§5 open question: only FAILED/STARTED
// runs are retry-eligible).
func Crawl(ctx context.Context, store storage.Storage, chainID config.ChainID, targetDate time.Time) (*Result, error) {
	if !config.IsValidChainID(string(chainID)) {
		return nil, fmt.Errorf("invalid chain id: %s", chainID)
	}

	if prior, err := database.LatestCrawlRun(ctx, string(chainID), targetDate); err == nil {
		if prior.Status == database.RunStatusSuccess || prior.Status == database.RunStatusSkipped {
			fmt.Printf("[INFO] crawl %s/%s already %s, skipping\n", chainID, targetDate.Format("2006-01-02"), prior.Status)
			return &Result{CrawlRunID: prior.ID, Status: database.RunStatusSkipped}, nil
		}
	}

	run, err := database.CreateCrawlRun(ctx, string(chainID), targetDate)
	if err != nil {
		return nil, fmt.Errorf("create crawl run: %w", err)
	}

	start := time.Now()
	result := &Result{CrawlRunID: run.ID}

	adapter, err := registry.GetAdapter(chainID)
	if err != nil {
		result.Error = err
		result.Status = database.RunStatusFailed
		errMsg := err.Error()
		_ = database.FinishCrawlRun(ctx, run.ID, database.RunStatusFailed, &errMsg, 0, 0, 0, time.Since(start))
		return result, nil
	}

	fmt.Printf("[INFO] crawl %s: discovering for %s\n", chainID, targetDate.Format("2006-01-02"))
	storeProducts, err := adapters.GetAllProducts(adapter, targetDate)
	if err != nil {
		result.Error = err
		result.Status = database.RunStatusFailed
		errMsg := err.Error()
		_ = database.FinishCrawlRun(ctx, run.ID, database.RunStatusFailed, &errMsg, 0, 0, 0, time.Since(start))
		return result, nil
	}

	nProducts, nPrices := 0, 0
	for _, sp := range storeProducts {
		nProducts += len(sp.Rows)
		nPrices += len(sp.Rows)
	}
	result.NStores = len(storeProducts)
	result.NProducts = nProducts
	result.NPrices = nPrices

	fmt.Printf("[INFO] crawl %s: %d stores, %d rows, archiving\n", chainID, len(storeProducts), nProducts)

	gProductsMap, err := database.LoadGProductsMap(ctx)
	if err != nil {
		fmt.Printf("[WARN] crawl %s: failed to load g_products_map, g_prices.csv will be empty: %v\n", chainID, err)
		gProductsMap = map[string]database.GProductMapEntry{}
	}

	data, err := archive.Build(string(chainID), storeProducts, gProductsMap, targetDate)
	if err != nil {
		result.Error = err
		result.Status = database.RunStatusFailed
		errMsg := err.Error()
		_ = database.FinishCrawlRun(ctx, run.ID, database.RunStatusFailed, &errMsg, result.NStores, nProducts, nPrices, time.Since(start))
		return result, nil
	}

	key, checksum, err := archive.StoreAndLink(ctx, store, string(chainID), targetDate, data)
	if err != nil {
		result.Error = err
		result.Status = database.RunStatusFailed
		errMsg := err.Error()
		_ = database.FinishCrawlRun(ctx, run.ID, database.RunStatusFailed, &errMsg, result.NStores, nProducts, nPrices, time.Since(start))
		return result, nil
	}

	archiveRecord := &database.Archive{
		ID:          database.GenerateArchiveID(),
		ChainName:   string(chainID),
		CrawlRunID:  &run.ID,
		CrawlDate:   targetDate,
		ArchivePath: key,
		ArchiveType: "local",
		FileSize:    int64(len(data)),
		Checksum:    checksum,
	}
	if err := database.CreateArchive(ctx, archiveRecord); err != nil {
		fmt.Printf("[WARN] crawl %s: failed to record archive metadata: %v\n", chainID, err)
	}

	result.Status = database.RunStatusSuccess
	result.Elapsed = time.Since(start)

	if err := database.FinishCrawlRun(ctx, run.ID, database.RunStatusSuccess, nil, result.NStores, nProducts, nPrices, result.Elapsed); err != nil {
		fmt.Printf("[WARN] crawl %s: failed to finish crawl run: %v\n", chainID, err)
	}

	fmt.Printf("[INFO] crawl %s complete in %s\n", chainID, result.Elapsed)
	return result, nil
}

// CrawlAll runs Crawl sequentially for every chain in config.ChainIDs,
// continuing past a single chain's failure so one bad portal doesn't block
// the rest — matching the original crawler's per-chain isolation.
func CrawlAll(ctx context.Context, store storage.Storage, targetDate time.Time) []Result {
	results := make([]Result, 0, len(config.ChainIDs))
	for _, chainID := range config.ChainIDs {
		res, err := Crawl(ctx, store, chainID, targetDate)
		if err != nil {
			results = append(results, Result{Status: database.RunStatusFailed, Error: err})
			continue
		}
		results = append(results, *res)
	}
	return results
}
