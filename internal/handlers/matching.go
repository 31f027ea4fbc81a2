package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kosarica/catalog-service/internal/golden"
	"github.com/kosarica/catalog-service/internal/matching"
	"github.com/kosarica/catalog-service/internal/taskqueue"
)

// MatchingHandler exposes the golden-record pipeline (§4.E/§4.F) as
// control-plane endpoints: scheduling normalization/best-offer batches and
// reporting queue/catalog progress.
type MatchingHandler struct {
	db       *pgxpool.Pool
	queue    *taskqueue.TaskQueue
	provider matching.EmbeddingProvider
}

// NewMatchingHandler creates a new matching handler
func NewMatchingHandler(db *pgxpool.Pool, queue *taskqueue.TaskQueue, provider matching.EmbeddingProvider) *MatchingHandler {
	return &MatchingHandler{
		db:       db,
		queue:    queue,
		provider: provider,
	}
}

// ScheduleBatchesRequest is the body for both batch-scheduling endpoints.
type ScheduleBatchesRequest struct {
	BatchSize int `json:"batchSize" binding:"min=0,max=100000"`
}

// ScheduleBatchesResponse reports how many batch tasks were enqueued.
type ScheduleBatchesResponse struct {
	Scheduled int `json:"scheduled"`
}

// TriggerGoldenRecordBatches enqueues one golden_record task per product-id
// window over product ids 1..MaxProductID (§4.E); each batch skips products
// that already have a g_product.
// POST /internal/matching/golden-record
func (h *MatchingHandler) TriggerGoldenRecordBatches(c *gin.Context) {
	var req ScheduleBatchesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		req.BatchSize = golden.DefaultBatchSize
	}

	ctx := c.Request.Context()
	scheduled, err := golden.ScheduleBatches(ctx, h.queue, req.BatchSize)
	if err != nil {
		slog.Error("schedule golden-record batches failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "schedule golden-record batches: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, ScheduleBatchesResponse{Scheduled: scheduled})
}

// TriggerBestOfferBatches enqueues one best_offer task per g_product-id
// window, recomputing the cheapest-offer cache (§4.E, §4.G).
// POST /internal/matching/best-offer
func (h *MatchingHandler) TriggerBestOfferBatches(c *gin.Context) {
	var req ScheduleBatchesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		req.BatchSize = golden.DefaultBatchSize
	}

	ctx := c.Request.Context()
	scheduled, err := golden.ScheduleBestOfferBatches(ctx, h.queue, req.BatchSize)
	if err != nil {
		slog.Error("schedule best-offer batches failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "schedule best-offer batches: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, ScheduleBatchesResponse{Scheduled: scheduled})
}

// GetMatchingStatus reports golden-record coverage: how many source rows
// have been normalized into golden products versus still awaiting a batch.
// GET /internal/matching/status
func (h *MatchingHandler) GetMatchingStatus(c *gin.Context) {
	ctx := c.Request.Context()

	var gProductCount, chainProductCount, unmatchedChainProductCount int64
	_ = h.db.QueryRow(ctx, `SELECT COUNT(*) FROM g_products`).Scan(&gProductCount)
	_ = h.db.QueryRow(ctx, `SELECT COUNT(*) FROM chain_products`).Scan(&chainProductCount)
	_ = h.db.QueryRow(ctx, `SELECT COUNT(*) FROM chain_products WHERE product_id IS NULL`).Scan(&unmatchedChainProductCount)

	var pendingGolden, pendingBestOffer int64
	_ = h.db.QueryRow(ctx, `SELECT COUNT(*) FROM tasks WHERE task_type = $1 AND status IN ('pending','claimed','processing')`,
		string(taskqueue.TaskTypeGoldenRecord)).Scan(&pendingGolden)
	_ = h.db.QueryRow(ctx, `SELECT COUNT(*) FROM tasks WHERE task_type = $1 AND status IN ('pending','claimed','processing')`,
		string(taskqueue.TaskTypeBestOffer)).Scan(&pendingBestOffer)

	c.JSON(http.StatusOK, gin.H{
		"goldenProducts":         gProductCount,
		"chainProducts":          chainProductCount,
		"unlinkedChainProducts":  unmatchedChainProductCount,
		"pendingGoldenBatches":   pendingGolden,
		"pendingBestOfferBatches": pendingBestOffer,
	})
}

// RegisterMatchingRoutes registers matching routes with the Gin router
func RegisterMatchingRoutes(r *gin.RouterGroup, db *pgxpool.Pool, queue *taskqueue.TaskQueue, provider matching.EmbeddingProvider) {
	handler := NewMatchingHandler(db, queue, provider)

	r.POST("/matching/golden-record", handler.TriggerGoldenRecordBatches)
	r.POST("/matching/best-offer", handler.TriggerBestOfferBatches)
	r.GET("/matching/status", handler.GetMatchingStatus)
}
