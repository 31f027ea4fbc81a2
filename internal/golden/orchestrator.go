package golden

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime"

	"github.com/kosarica/catalog-service/internal/database"
	"github.com/kosarica/catalog-service/internal/matching"
	"github.com/kosarica/catalog-service/internal/taskqueue"
)

// DefaultBatchSize is the product-id span each golden-record worker claims
// per task, mirroring orchestrator_best_offers.py's default --batch-size.
const DefaultBatchSize = 1000

// batchPayload is the JSON body of a TaskTypeGoldenRecord task.
type batchPayload struct {
	StartID int64 `json:"startId"`
	Limit   int   `json:"limit"`
}

// ScheduleBatches partitions the product-id space into DefaultBatchSize
// windows and enqueues one taskqueue task per window, per §4.E's "partition
// product-id space in batches of configurable size" — the partitioning the
// teacher's orchestrate_best_offers.py does with bare subprocesses, done
// here with crash-safe taskqueue claims instead.
func ScheduleBatches(ctx context.Context, queue *taskqueue.TaskQueue, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	maxID, err := database.MaxProductID(ctx)
	if err != nil {
		return 0, fmt.Errorf("max product id: %w", err)
	}
	if maxID == 0 {
		return 0, nil
	}

	scheduled := 0
	for start := int64(1); start <= maxID; start += int64(batchSize) {
		res := queue.ScheduleTask(ctx, taskqueue.ScheduleTaskInput{
			TaskType: string(taskqueue.TaskTypeGoldenRecord),
			Payload:  batchPayload{StartID: start, Limit: batchSize},
		})
		if res.Err != nil {
			return scheduled, fmt.Errorf("schedule golden-record batch start=%d: %w", start, res.Err)
		}
		scheduled++
	}
	return scheduled, nil
}

// NumWorkers returns the default worker count for the golden-record pool
// (§4.E: "W parallel workers, default = host CPUs").
func NumWorkers() int {
	return runtime.NumCPU()
}

// ScheduleBestOfferBatches partitions the GProduct-id space into batches and
// enqueues one TaskTypeBestOffer task per window — the "separate
// orchestration pass" §4.E calls for, grounded on
// orchestrator_best_offers.py's get_min_max_product_ids + batch loop over
// g_products instead of products.
func ScheduleBestOfferBatches(ctx context.Context, queue *taskqueue.TaskQueue, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	maxID, err := database.MaxGProductID(ctx)
	if err != nil {
		return 0, fmt.Errorf("max g_product id: %w", err)
	}
	if maxID == 0 {
		return 0, nil
	}

	scheduled := 0
	for start := int64(1); start <= maxID; start += int64(batchSize) {
		res := queue.ScheduleTask(ctx, taskqueue.ScheduleTaskInput{
			TaskType: string(taskqueue.TaskTypeBestOffer),
			Payload:  batchPayload{StartID: start, Limit: batchSize},
		})
		if res.Err != nil {
			return scheduled, fmt.Errorf("schedule best-offer batch start=%d: %w", start, res.Err)
		}
		scheduled++
	}
	return scheduled, nil
}

// NewBestOfferBatchHandler adapts ProcessBestOfferBatch into the
// internal/workers.Worker handler signature.
func NewBestOfferBatchHandler() func(context.Context, []byte) error {
	return func(ctx context.Context, payload []byte) error {
		var p batchPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return fmt.Errorf("unmarshal best-offer batch payload: %w", err)
		}
		_, err := ProcessBestOfferBatch(ctx, p.StartID, p.Limit)
		return err
	}
}

// NewBatchHandler adapts ProcessBatch into the internal/workers.Worker
// handler signature, so the same poll-loop/worker-pool machinery that
// drives ingestion tasks drives golden-record batches too.
func NewBatchHandler(llm LLMProvider, embedProvider matching.EmbeddingProvider) func(context.Context, []byte) error {
	cfg := DefaultMatchConfig()
	return func(ctx context.Context, payload []byte) error {
		var p batchPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return fmt.Errorf("unmarshal golden-record batch payload: %w", err)
		}
		result, err := ProcessBatch(ctx, llm, embedProvider, cfg, p.StartID, p.Limit)
		if err != nil {
			return err
		}
		if result.Failed > 0 && result.Processed == 0 {
			return fmt.Errorf("golden-record batch start=%d failed entirely: %d failures", p.StartID, result.Failed)
		}
		return nil
	}
}
