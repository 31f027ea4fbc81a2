// Package adapters composes the per-chain discover/fetch/parse primitives
// (internal/adapters/base, internal/adapters/chains) into the single
// operation the ingestion orchestrator needs: GetAllProducts, grounded on
// internal/pipeline/pipeline.go's discover->fetch->parse phase sequence.
package adapters

import (
	"fmt"
	"time"

	"github.com/kosarica/catalog-service/internal/adapters/registry"
	"github.com/kosarica/catalog-service/internal/types"
)

// StoreProducts groups the rows parsed from one discovered file under the
// store that published it, the unit of work §4.A's GetAllProducts returns.
type StoreProducts struct {
	Store types.StoreDescriptor
	Rows  []types.NormalizedRow
}

// GetAllProducts runs Discover -> Fetch -> Parse for every file an adapter's
// portal publishes for targetDate, grouping rows by the store each file
// belongs to. Adapters are pure w.r.t. the database: nothing here touches
// internal/database, matching §4.A's "adapters are pure" invariant.
func GetAllProducts(adapter registry.ChainAdapter, targetDate time.Time) ([]StoreProducts, error) {
	dateStr := targetDate.Format("2006-01-02")

	files, err := adapter.Discover(dateStr)
	if err != nil {
		return nil, fmt.Errorf("%s: discover failed: %w", adapter.Slug(), err)
	}

	results := make([]StoreProducts, 0, len(files))
	for _, file := range files {
		fetched, err := adapter.Fetch(file)
		if err != nil {
			// one store's fetch failure does not abort the whole chain
			continue
		}

		parsed, err := adapter.Parse(fetched.Content, file.Filename, nil)
		if err != nil || parsed == nil {
			continue
		}

		store := types.StoreDescriptor{
			ChainSlug: adapter.Slug(),
		}
		if meta := adapter.ExtractStoreMetadata(file); meta != nil {
			store.Name = meta.Name
			if meta.Address != "" {
				store.Address = &meta.Address
			}
			if meta.City != "" {
				store.City = &meta.City
			}
			if meta.PostalCode != "" {
				store.PostalCode = &meta.PostalCode
			}
		}
		if ident := adapter.ExtractStoreIdentifier(file); ident != nil {
			store.ID = ident.Value
			if store.Name == "" {
				store.Name = fmt.Sprintf("%s %s", adapter.Name(), ident.Value)
			}
		}

		results = append(results, StoreProducts{
			Store: store,
			Rows:  parsed.Rows,
		})
	}

	return results, nil
}
