// Package archive writes a chain's discovered products for one crawl date
// into a single deterministic ZIP bundle of four fixed CSVs (stores,
// products, prices, g_prices), deflate level 9. It is the inverse of
// internal/ingestion/zip/expand.go (which expands an externally-sourced
// ZIP); this package produces one, so it mirrors that file's safety
// conventions — explicit file list, no directory entries, stable iteration
// order — rather than reusing its code directly.
package archive

import (
	"archive/zip"
	"bytes"
	"compress/flate"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/kosarica/catalog-service/internal/adapters"
	"github.com/kosarica/catalog-service/internal/database"
	"github.com/kosarica/catalog-service/internal/golden"
	"github.com/kosarica/catalog-service/internal/storage"
	"github.com/kosarica/catalog-service/internal/types"
)

var (
	storesColumns   = []string{"store_id", "type", "address", "city", "zipcode"}
	productsColumns = []string{"product_id", "barcode", "name", "brand", "category", "unit", "quantity"}
	pricesColumns   = []string{"store_id", "product_id", "price", "unit_price", "best_price_30", "anchor_price", "special_price"}
	gPricesColumns  = []string{"g_product_id", "store_id", "price_date", "regular_price", "special_price", "price_per_kg", "price_per_l", "price_per_piece", "is_on_special_offer"}
)

// product is one barcode-deduped product row local to this archive, keyed by
// a sequential id assigned in deterministic (store, row) order — an archive
// has no database connection of its own, so product_id here is scoped to
// this ZIP, not a catalog database id.
type product struct {
	id       int
	barcode  string
	name     string
	brand    *string
	category *string
	unit     *string
	quantity *string
}

// priceRow is one resolved price observation: a store, the product it
// refers to in this archive's local id space, and the source row.
type priceRow struct {
	storeID string
	prod    product
	row     types.NormalizedRow
}

// Build packages one chain's GetAllProducts result into a ZIP archive of
// four fixed CSVs per §4.B/§6: stores.csv, products.csv, prices.csv,
// g_prices.csv. gProductsMap is the ean -> golden-product projection loaded
// once by the ingestion orchestrator (§4.C step 1); g_prices rows for a
// barcode absent from the map are skipped with a logged warning, never
// written with arbitrary/partial columns.
func Build(chainSlug string, storeProducts []adapters.StoreProducts, gProductsMap map[string]database.GProductMapEntry, priceDate time.Time) ([]byte, error) {
	sorted := make([]adapters.StoreProducts, len(storeProducts))
	copy(sorted, storeProducts)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Store.ID < sorted[j].Store.ID })

	products := make([]product, 0)
	productIDs := make(map[string]int) // barcode -> product_id

	resolveProduct := func(chainSlug string, row types.NormalizedRow) product {
		bc := cleanBarcode(chainSlug, row)
		if id, ok := productIDs[bc]; ok {
			return products[id-1]
		}
		p := product{
			id:       len(products) + 1,
			barcode:  bc,
			name:     row.Name,
			brand:    row.Brand,
			category: row.Category,
			unit:     row.Unit,
			quantity: row.UnitQuantity,
		}
		productIDs[bc] = p.id
		products = append(products, p)
		return p
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.BestCompression)
	})

	// Pre-resolve every row's product so products.csv/prices.csv/g_prices.csv
	// all see the same barcode-deduped id space regardless of write order.
	priceRows := make([]priceRow, 0)
	for _, sp := range sorted {
		for _, row := range sp.Rows {
			p := resolveProduct(chainSlug, row)
			priceRows = append(priceRows, priceRow{storeID: sp.Store.ID, prod: p, row: row})
		}
	}

	if err := writeCSVEntry(zw, "stores.csv", storesColumns, func(cw *csv.Writer) error {
		for _, sp := range sorted {
			if err := cw.Write([]string{
				sp.Store.ID, "", derefStr(sp.Store.Address), derefStr(sp.Store.City), derefStr(sp.Store.PostalCode),
			}); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return nil, err
	}

	if err := writeCSVEntry(zw, "products.csv", productsColumns, func(cw *csv.Writer) error {
		for _, p := range products {
			if err := cw.Write([]string{
				strconv.Itoa(p.id), p.barcode, p.name, derefStr(p.brand), derefStr(p.category),
				derefStr(p.unit), derefStr(p.quantity),
			}); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return nil, err
	}

	if err := writeCSVEntry(zw, "prices.csv", pricesColumns, func(cw *csv.Writer) error {
		for _, pr := range priceRows {
			if err := cw.Write([]string{
				pr.storeID, strconv.Itoa(pr.prod.id), strconv.Itoa(pr.row.Price),
				derefIntStr(pr.row.UnitPrice), derefIntStr(pr.row.LowestPrice30d),
				derefIntStr(pr.row.AnchorPrice), derefIntStr(pr.row.DiscountPrice),
			}); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return nil, err
	}

	gPriceRecords := buildGPriceRecords(chainSlug, priceRows, gProductsMap, priceDate)
	if err := writeCSVEntry(zw, "g_prices.csv", gPricesColumns, func(cw *csv.Writer) error {
		for _, rec := range gPriceRecords {
			if err := cw.Write(rec); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return nil, err
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close zip writer for chain %s: %w", chainSlug, err)
	}

	return buf.Bytes(), nil
}

// buildGPriceRecords computes one g_prices.csv row per price observation
// whose barcode resolves in gProductsMap, applying §4.G's unit-price formula
// via golden.ComputeUnitPrice. Rows for unmatched barcodes are skipped with a
// logged warning, per §4.B.
func buildGPriceRecords(chainSlug string, priceRows []priceRow, gProductsMap map[string]database.GProductMapEntry, priceDate time.Time) [][]string {
	out := make([][]string, 0, len(priceRows))
	for _, pr := range priceRows {
		entry, ok := gProductsMap[pr.prod.barcode]
		if !ok {
			slog.Warn("archive: no golden product for barcode, skipping g_prices row",
				"chain", chainSlug, "barcode", pr.prod.barcode)
			continue
		}

		variant, err := golden.ParsePrimaryVariant(entry.Variants)
		if err != nil {
			slog.Warn("archive: golden product has no usable variant, skipping g_prices row",
				"chain", chainSlug, "barcode", pr.prod.barcode, "error", err)
			continue
		}

		regular := int64(pr.row.Price)
		var special *int64
		if pr.row.DiscountPrice != nil {
			v := int64(*pr.row.DiscountPrice)
			special = &v
		}

		chargedPrice := regular
		if special != nil {
			chargedPrice = *special
		}
		unitPrice := golden.ComputeUnitPrice(chargedPrice, entry.BaseUnitType, *variant)

		var perKg, perL, perPiece *int64
		switch entry.BaseUnitType {
		case database.BaseUnitWeight:
			perKg = unitPrice
		case database.BaseUnitVolume:
			perL = unitPrice
		case database.BaseUnitCount:
			perPiece = unitPrice
		}

		out = append(out, []string{
			strconv.FormatInt(entry.ID, 10),
			pr.storeID,
			priceDate.Format("2006-01-02"),
			strconv.FormatInt(regular, 10),
			derefInt64Str(special),
			derefInt64Str(perKg),
			derefInt64Str(perL),
			derefInt64Str(perPiece),
			strconv.FormatBool(special != nil),
		})
	}
	return out
}

// cleanBarcode implements §4.D step 5's accepted-barcode rule: a barcode is
// accepted as-is if it is already a synthetic "chain:code" key or at least 8
// decimal digits; otherwise a synthetic "<chain>:<code>" key is produced so
// every row still gets a stable per-chain identity.
func cleanBarcode(chainSlug string, row types.NormalizedRow) string {
	if len(row.Barcodes) > 0 && row.Barcodes[0] != "" && isAcceptedBarcode(row.Barcodes[0]) {
		return row.Barcodes[0]
	}
	code := ""
	if row.ExternalID != nil && *row.ExternalID != "" {
		code = *row.ExternalID
	} else {
		code = fmt.Sprintf("row-%d", row.RowNumber)
	}
	return fmt.Sprintf("%s:%s", chainSlug, code)
}

func isAcceptedBarcode(bc string) bool {
	if len(bc) < 8 {
		return false
	}
	for _, r := range bc {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func writeCSVEntry(zw *zip.Writer, name string, columns []string, writeRows func(*csv.Writer) error) error {
	w, err := zw.CreateHeader(&zip.FileHeader{
		Name:   name,
		Method: zip.Deflate,
	})
	if err != nil {
		return fmt.Errorf("create zip entry %s: %w", name, err)
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(columns); err != nil {
		return fmt.Errorf("write header for %s: %w", name, err)
	}
	if err := writeRows(cw); err != nil {
		return fmt.Errorf("write rows for %s: %w", name, err)
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush %s: %w", name, err)
	}
	return nil
}

func derefStr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefIntStr(i *int) string {
	if i == nil {
		return ""
	}
	return strconv.Itoa(*i)
}

func derefInt64Str(i *int64) string {
	if i == nil {
		return ""
	}
	return strconv.FormatInt(*i, 10)
}

// StoreAndLink writes the archive to storage and returns its key and
// checksum, for the caller to persist as a database.Archive row linked to a
// CrawlRun.
func StoreAndLink(ctx context.Context, store storage.Storage, chainSlug string, crawlDate time.Time, data []byte) (key, checksum string, err error) {
	checksum = storage.ComputeChecksum(data)
	key = storage.BuildArchiveKey(chainSlug, crawlDate, fmt.Sprintf("%s_%s.zip", chainSlug, crawlDate.Format("2006-01-02")))

	meta := &storage.Metadata{
		ContentType:  "application/zip",
		OriginalName: key,
		ChainSlug:    chainSlug,
		DownloadedAt: time.Now(),
	}
	if err := store.Put(ctx, key, data, meta); err != nil {
		return "", "", fmt.Errorf("store archive for %s/%s: %w", chainSlug, crawlDate.Format("2006-01-02"), err)
	}
	return key, checksum, nil
}
