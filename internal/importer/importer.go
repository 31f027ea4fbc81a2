// Package importer is the import engine (§2.D): it takes one chain's
// discovered rows for a date (already expanded from an archive by the
// ingestion orchestrator) and upserts Stores, Products, ChainProducts and
// Prices, then recomputes the ChainPrice/ChainStats aggregates.
//
// Concurrency is bounded with golang.org/x/sync/errgroup + semaphore.Weighted,
// grounded on internal/optimizer/cache.go's warmup semaphore — one goroutine
// per store, never more than Concurrency in flight at once. The aggregate
// recompute pass is serialized behind a package mutex the same way
// price_groups.go treats its aggregate updates as a single-writer section,
// since two concurrent imports for the same chain/date would otherwise race
// on the same chain_prices/chain_stats rows.
package importer

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/kosarica/catalog-service/internal/adapters"
	"github.com/kosarica/catalog-service/internal/database"
	"github.com/kosarica/catalog-service/internal/types"
)

// DefaultConcurrency bounds how many stores are upserted in parallel for a
// single import run.
const DefaultConcurrency = 8

// computeMu serializes the chain_prices/chain_stats aggregate recompute
// across concurrent import runs, so two imports for the same chain never
// interleave writes to the same aggregate row.
var computeMu sync.Mutex

// Result summarizes one chain's import.
type Result struct {
	ImportRunID int64
	Status      database.RunStatus
	NStores     int
	NProducts   int
	NPrices     int
	Elapsed     time.Duration
	Error       error
}

// Import materializes one chain's store products for importDate into the
// catalog tables. crawlRunID links back to the crawl that produced the
// archive this import reads, or nil for a standalone/backfill import.
func Import(ctx context.Context, chainCode string, crawlRunID *int64, importDate time.Time, storeProducts []adapters.StoreProducts) (*Result, error) {
	return ImportWithConcurrency(ctx, chainCode, crawlRunID, importDate, storeProducts, DefaultConcurrency)
}

// ImportWithConcurrency is Import with an explicit worker bound, exposed for
// tests and for callers importing many chains at once who want to share a
// smaller per-chain budget.
func ImportWithConcurrency(ctx context.Context, chainCode string, crawlRunID *int64, importDate time.Time, storeProducts []adapters.StoreProducts, concurrency int64) (*Result, error) {
	chain, err := database.UpsertChain(ctx, chainCode, chainCode, nil)
	if err != nil {
		return nil, fmt.Errorf("upsert chain %s: %w", chainCode, err)
	}

	run, err := database.CreateImportRun(ctx, crawlRunID, chainCode, importDate)
	if err != nil {
		return nil, fmt.Errorf("create import run: %w", err)
	}

	start := time.Now()
	result := &Result{ImportRunID: run.ID}

	var (
		mu        sync.Mutex
		allPrices []database.Price
		nProducts int
	)

	sem := semaphore.NewWeighted(concurrency)
	g, gctx := errgroup.WithContext(ctx)

	for _, sp := range storeProducts {
		sp := sp
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)

			prices, err := importStore(gctx, chain.ID, importDate, sp)
			if err != nil {
				fmt.Printf("[WARN] import %s: store %s: %v\n", chainCode, sp.Store.ID, err)
				return nil
			}

			mu.Lock()
			allPrices = append(allPrices, prices...)
			nProducts += len(prices)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		result.Error = err
		result.Status = database.RunStatusFailed
		errMsg := err.Error()
		_ = database.FinishImportRun(ctx, run.ID, database.RunStatusFailed, &errMsg, len(storeProducts), nProducts, 0, time.Since(start))
		return result, nil
	}

	if err := bulkUpsertPricesChunked(ctx, allPrices, 1000); err != nil {
		result.Error = err
		result.Status = database.RunStatusFailed
		errMsg := err.Error()
		_ = database.FinishImportRun(ctx, run.ID, database.RunStatusFailed, &errMsg, len(storeProducts), nProducts, len(allPrices), time.Since(start))
		return result, nil
	}

	computeMu.Lock()
	cErr := database.ComputeChainPrices(ctx, chain.ID, importDate)
	if cErr == nil {
		cErr = database.ComputeChainStats(ctx, chain.ID, importDate)
	}
	computeMu.Unlock()
	if cErr != nil {
		fmt.Printf("[WARN] import %s: aggregate recompute failed: %v\n", chainCode, cErr)
	}

	result.NStores = len(storeProducts)
	result.NProducts = nProducts
	result.NPrices = len(allPrices)
	result.Status = database.RunStatusSuccess
	result.Elapsed = time.Since(start)

	if err := database.FinishImportRun(ctx, run.ID, database.RunStatusSuccess, nil, result.NStores, nProducts, len(allPrices), result.Elapsed); err != nil {
		fmt.Printf("[WARN] import %s: failed to finish import run: %v\n", chainCode, err)
	}

	return result, nil
}

// importStore upserts one store and its rows' products/chain products,
// returning the Price rows to be bulk-written by the caller.
func importStore(ctx context.Context, chainID int64, priceDate time.Time, sp adapters.StoreProducts) ([]database.Price, error) {
	store, err := database.UpsertStore(ctx, &database.Store{
		ChainID: chainID,
		Code:    sp.Store.ID,
		Address: sp.Store.Address,
		City:    sp.Store.City,
		ZipCode: sp.Store.PostalCode,
		Lat:     parseFloatPtr(sp.Store.Latitude),
		Lon:     parseFloatPtr(sp.Store.Longitude),
	})
	if err != nil {
		return nil, fmt.Errorf("upsert store %s: %w", sp.Store.ID, err)
	}

	prices := make([]database.Price, 0, len(sp.Rows))
	for _, row := range sp.Rows {
		var ean *string
		if len(row.Barcodes) > 0 && row.Barcodes[0] != "" {
			ean = &row.Barcodes[0]
		}

		product, err := database.UpsertProductByEAN(ctx, ean, row.Brand, row.Name, row.UnitQuantity, row.Unit)
		if err != nil {
			continue
		}

		cp, err := database.UpsertChainProduct(ctx, &database.ChainProduct{
			ChainID:   chainID,
			ProductID: product.ID,
			Code:      chainProductCode(row),
			Name:      row.Name,
			Brand:     row.Brand,
			Category:  row.Category,
			Unit:      row.Unit,
			Quantity:  row.UnitQuantity,
		})
		if err != nil {
			continue
		}

		prices = append(prices, database.Price{
			ChainProductID: cp.ID,
			StoreID:        store.ID,
			PriceDate:      priceDate,
			RegularPrice:   int64(row.Price),
			SpecialPrice:   intPtrToInt64Ptr(row.DiscountPrice),
			UnitPrice:      intPtrToInt64Ptr(row.UnitPrice),
			BestPrice30:    intPtrToInt64Ptr(row.LowestPrice30d),
			AnchorPrice:    intPtrToInt64Ptr(row.AnchorPrice),
		})
	}
	return prices, nil
}

// chainProductCode picks the stable per-chain SKU a row's ChainProduct is
// keyed on: the feed's own external ID when present, falling back to the
// row's position in the file for feeds that don't publish one.
func chainProductCode(row types.NormalizedRow) string {
	if row.ExternalID != nil && *row.ExternalID != "" {
		return *row.ExternalID
	}
	return fmt.Sprintf("row-%d", row.RowNumber)
}

func bulkUpsertPricesChunked(ctx context.Context, prices []database.Price, chunkSize int) error {
	for i := 0; i < len(prices); i += chunkSize {
		end := i + chunkSize
		if end > len(prices) {
			end = len(prices)
		}
		if err := database.BulkUpsertPrices(ctx, prices[i:end]); err != nil {
			return err
		}
	}
	return nil
}

func parseFloatPtr(s *string) *float64 {
	if s == nil || *s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(*s, 64)
	if err != nil {
		return nil
	}
	return &f
}

func intPtrToInt64Ptr(i *int) *int64 {
	if i == nil {
		return nil
	}
	v := int64(*i)
	return &v
}
