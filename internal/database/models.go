package database

import "time"

// Chain represents a retail chain (Konzum, Lidl, etc.)
type Chain struct {
	ID        int64     `json:"id"`
	Code      string    `json:"code"` // konzum, lidl, plodine, etc.
	Name      string    `json:"name"`
	Website   *string   `json:"website"`
	CreatedAt time.Time `json:"created_at"`
}

// Store represents a physical or virtual store location
type Store struct {
	ID        int64     `json:"id"`
	ChainID   int64     `json:"chain_id"`
	Code      string    `json:"code"`
	Type      string    `json:"type"` // SUPERMARKET, HIPERMARKET, CONVENIENCE, ...
	Address   *string   `json:"address"`
	City      *string   `json:"city"`
	ZipCode   *string   `json:"zipcode"`
	Lat       *float64  `json:"lat"`
	Lon       *float64  `json:"lon"`
	Phone     *string   `json:"phone"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Product is the EAN-level canonical product identity, prior to golden-record
// normalization. It lets a ChainProduct be deduplicated across imports of the
// same chain even before a GProduct has been synthesized for it.
type Product struct {
	ID        int64     `json:"id"`
	EAN       *string   `json:"ean"`
	Brand     *string   `json:"brand"`
	Name      string    `json:"name"`
	Quantity  *string   `json:"quantity"`
	Unit      *string   `json:"unit"`
	CreatedAt time.Time `json:"created_at"`
}

// ChainProduct is a chain's own row for a product: its local code, category
// and naming as it actually appears in that chain's price list, linked to the
// shared Product identity once one can be determined.
type ChainProduct struct {
	ID          int64     `json:"id"`
	ChainID     int64     `json:"chain_id"`
	ProductID   int64     `json:"product_id"`
	Code        string    `json:"code"`
	Name        string    `json:"name"`
	Brand       *string   `json:"brand"`
	Category    *string   `json:"category"`
	Unit        *string   `json:"unit"`
	Quantity    *string   `json:"quantity"`
	IsProcessed bool      `json:"is_processed"` // true once a golden-record pass has considered it
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Price is one chain product's price at one store on one date. Prices are
// stored in cents/lipa to avoid floating-point drift.
type Price struct {
	ChainProductID int64     `json:"chain_product_id"`
	StoreID        int64     `json:"store_id"`
	PriceDate      time.Time `json:"price_date"`
	RegularPrice   int64     `json:"regular_price"`
	SpecialPrice   *int64    `json:"special_price"`
	UnitPrice      *int64    `json:"unit_price"`
	BestPrice30    *int64    `json:"best_price_30"`
	AnchorPrice    *int64    `json:"anchor_price"`
}

// ChainPrice is the per-day min/max/avg across all stores of a chain for one
// chain product, a derived aggregate recomputed by the import engine.
type ChainPrice struct {
	ChainProductID int64     `json:"chain_product_id"`
	PriceDate      time.Time `json:"price_date"`
	MinPrice       int64     `json:"min_price"`
	MaxPrice       int64     `json:"max_price"`
	AvgPrice       float64   `json:"avg_price"`
}

// ChainStats is a per-chain, per-day rollup of row counts, used for crawl
// health dashboards and regression detection between runs.
type ChainStats struct {
	ChainID    int64     `json:"chain_id"`
	PriceDate  time.Time `json:"price_date"`
	PriceCount int64     `json:"price_count"`
	StoreCount int64     `json:"store_count"`
}

// BaseUnitType classifies a GProduct's natural comparison unit so the
// best-offer updater knows which per-unit price to compare across chains.
type BaseUnitType string

const (
	BaseUnitWeight BaseUnitType = "WEIGHT"
	BaseUnitVolume BaseUnitType = "VOLUME"
	BaseUnitCount  BaseUnitType = "COUNT"
)

// GProduct is a golden record: one row per EAN (or synthetic "chain:code" key
// when no real barcode exists), produced by the normalizer worker from one or
// more ChainProducts that an LLM judged to be the same product.
type GProduct struct {
	ID                 int64        `json:"id"`
	EAN                string       `json:"ean"`
	CanonicalName      string       `json:"canonical_name"`
	Brand              *string      `json:"brand"`
	Category           *string      `json:"category"`
	BaseUnitType       BaseUnitType `json:"base_unit_type"`
	Variants           *string      `json:"variants"`
	TextForEmbedding   string       `json:"text_for_embedding"`
	Keywords           []string     `json:"keywords"` // exactly 8
	IsGenericProduct   bool         `json:"is_generic_product"`
	SeasonalStartMonth *int         `json:"seasonal_start_month"` // 1-12
	SeasonalEndMonth   *int         `json:"seasonal_end_month"`
	Embedding          []float32    `json:"embedding,omitempty"` // 768-dim
	CreatedAt          time.Time    `json:"created_at"`
	UpdatedAt          time.Time    `json:"updated_at"`
}

// GPrice is one golden product's observed price at one store on one date,
// derived from the Price rows of its linked ChainProducts.
type GPrice struct {
	ProductID        int64     `json:"product_id"`
	StoreID          int64     `json:"store_id"`
	PriceDate        time.Time `json:"price_date"`
	RegularPrice     int64     `json:"regular_price"`
	SpecialPrice     *int64    `json:"special_price"`
	PricePerKg       *int64    `json:"price_per_kg"`
	PricePerL        *int64    `json:"price_per_l"`
	PricePerPiece    *int64    `json:"price_per_piece"`
	IsOnSpecialOffer bool      `json:"is_on_special_offer"`
}

// GProductBestOffer tracks, per golden product, the single best per-unit
// price observed across all chains and stores, recomputed incrementally by
// the best-offer updater as new GPrice rows arrive.
type GProductBestOffer struct {
	ProductID             int64     `json:"product_id"`
	BestUnitPricePerKg    *int64    `json:"best_unit_price_per_kg"`
	BestUnitPricePerL     *int64    `json:"best_unit_price_per_l"`
	BestUnitPricePerPiece *int64    `json:"best_unit_price_per_piece"`
	LowestPriceInSeason   *int64    `json:"lowest_price_in_season"`
	BestPriceStoreID      *int64    `json:"best_price_store_id"`
	BestPriceFoundAt      time.Time `json:"best_price_found_at"`
}

// RunStatus is the lifecycle state of a CrawlRun or ImportRun.
type RunStatus string

const (
	RunStatusStarted RunStatus = "STARTED"
	RunStatusSuccess RunStatus = "SUCCESS"
	RunStatusFailed  RunStatus = "FAILED"
	RunStatusSkipped RunStatus = "SKIPPED"
)

// CrawlRun records one ingestion orchestrator pass for one chain on one
// target date: what was discovered, fetched and archived, and how it went.
type CrawlRun struct {
	ID          int64     `json:"id"`
	ChainName   string    `json:"chain_name"`
	CrawlDate   time.Time `json:"crawl_date"`
	Status      RunStatus `json:"status"`
	Error       *string   `json:"error"`
	NStores     int       `json:"n_stores"`
	NProducts   int       `json:"n_products"`
	NPrices     int       `json:"n_prices"`
	ElapsedSecs float64   `json:"elapsed_time"`
	Timestamp   time.Time `json:"timestamp"`
}

// ImportRun records one import engine pass that consumed a CrawlRun's
// archive and materialized Price/ChainPrice/ChainStats rows. Unique on
// (chain_name, import_date) so reruns upsert rather than duplicate.
type ImportRun struct {
	ID           int64     `json:"id"`
	CrawlRunID   *int64    `json:"crawl_run_id"`
	ChainName    string    `json:"chain_name"`
	ImportDate   time.Time `json:"import_date"`
	Status       RunStatus `json:"status"`
	Error        *string   `json:"error"`
	NStores      int       `json:"n_stores"`
	NProducts    int       `json:"n_products"`
	NPrices      int       `json:"n_prices"`
	ElapsedSecs  float64   `json:"elapsed_time"`
	Timestamp    time.Time `json:"timestamp"`
	UnzippedPath *string   `json:"unzipped_path"`
}

// IngestionError is a per-row audit record for a price row that an ImportRun
// skipped, kept so operators can inspect why without re-parsing the archive.
// No job in internal/jobs deletes these rows; cleanup_exceptions.go removes
// only expired store price exceptions and orphaned price groups.
type IngestionError struct {
	ID           int64     `json:"id"`
	ImportRunID  int64     `json:"import_run_id"`
	RowNumber    *int      `json:"row_number"`
	ErrorType    string    `json:"error_type"` // 'parse', 'validation', 'store_resolution', 'persist'
	ErrorMessage string    `json:"error_message"`
	RawRow       *string   `json:"raw_row"`
	Severity     string    `json:"severity"` // 'warning', 'error', 'critical'
	CreatedAt    time.Time `json:"created_at"`
}

// User is an end-user account; auth/password mechanics are out of scope and
// handled upstream — this row is a contract target for the JWT bearer
// middleware and shopping-list ownership.
type User struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// UserLocation is a user's last-known coordinates, used for "nearby stores"
// chat tool calls and shopping-list optimization defaults. Filled lazily by
// the geocoding batch job when only an address is on file.
type UserLocation struct {
	UserID    int64     `json:"user_id"`
	Lat       float64   `json:"lat"`
	Lon       float64   `json:"lon"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ChatRole distinguishes chat transcript entries.
type ChatRole string

const (
	ChatRoleUser      ChatRole = "user"
	ChatRoleAssistant ChatRole = "assistant"
	ChatRoleTool      ChatRole = "tool"
)

// ChatMessage is one turn in a chat session's transcript. A new session_id
// always starts with empty history — it never inherits another session's.
type ChatMessage struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	UserID    *int64    `json:"user_id"`
	Role      ChatRole  `json:"role"`
	Content   string    `json:"content"`
	ToolCalls *string   `json:"tool_calls"` // JSON-encoded, if any
	CreatedAt time.Time `json:"created_at"`
}

// ShoppingList is a named collection of items a user wants priced/optimized.
type ShoppingList struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ShoppingListItem is one line of a ShoppingList, referencing a golden
// product once resolved from free-text by the chat orchestrator.
type ShoppingListItem struct {
	ID             int64  `json:"id"`
	ShoppingListID int64  `json:"shopping_list_id"`
	ProductID      *int64 `json:"product_id"`
	RawText        string `json:"raw_text"`
	Quantity       int    `json:"quantity"`
}
