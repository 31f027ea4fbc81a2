package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/kosarica/catalog-service/internal/adapters/config"
	"github.com/kosarica/catalog-service/internal/golden"
	"github.com/kosarica/catalog-service/internal/ingest"
	"github.com/kosarica/catalog-service/internal/matching"
	"github.com/kosarica/catalog-service/internal/storage"
	"github.com/kosarica/catalog-service/internal/taskqueue"
	"github.com/rs/zerolog"
)

var log = zerolog.New(os.Stdout).With().Timestamp().Str("component", "worker").Logger()

// StartIngestionWorker starts the worker pool that drains "ingestion" and
// "rerun" tasks, each one crawl of a single chain for a single date (§2.C).
func StartIngestionWorker(ctx context.Context, queue *taskqueue.TaskQueue, store storage.Storage) error {
	cfg := WorkerConfig{
		WorkerID:  "ingestion-worker-1",
		TaskTypes: []string{string(taskqueue.TaskTypeIngestion), string(taskqueue.TaskTypeRerun)},
		MaxTasks:  5,
		PollDelay: 5 * time.Second,
	}

	worker := New(queue, cfg)
	worker.RegisterHandler(string(taskqueue.TaskTypeIngestion), NewIngestionHandler(store))
	worker.RegisterHandler(string(taskqueue.TaskTypeRerun), NewIngestionHandler(store))

	log.Info().Msg("starting ingestion worker")
	worker.Start(ctx)

	return nil
}

// crawlRequest is the payload for both "ingestion" and "rerun" tasks — a
// rerun is just a crawl invoked again for a chain/date whose run previously
// FAILED (§5's retry-eligibility decision), so both share one handler.
type crawlRequest struct {
	Chain string `json:"chain"`
	Date  string `json:"date"` // YYYY-MM-DD
}

// NewIngestionHandler adapts ingest.Crawl into the Worker handler signature.
func NewIngestionHandler(store storage.Storage) func(context.Context, []byte) error {
	return func(ctx context.Context, payload []byte) error {
		var req crawlRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return fmt.Errorf("unmarshal crawl payload: %w", err)
		}

		targetDate, err := time.Parse("2006-01-02", req.Date)
		if err != nil {
			return fmt.Errorf("parse crawl date %q: %w", req.Date, err)
		}

		result, err := ingest.Crawl(ctx, store, config.ChainID(req.Chain), targetDate)
		if err != nil {
			return err
		}
		if result.Status == "FAILED" {
			return fmt.Errorf("crawl of %s/%s failed: %v", req.Chain, req.Date, result.Error)
		}
		return nil
	}
}

// StartGoldenRecordWorker starts the worker pool that drains "golden_record"
// batch tasks (§2.E/§4.E), NumWorkers() of them by default — host CPUs,
// unless the caller wants a different pool size for this process.
func StartGoldenRecordWorker(ctx context.Context, queue *taskqueue.TaskQueue, llm golden.LLMProvider, embedProvider matching.EmbeddingProvider) error {
	cfg := WorkerConfig{
		WorkerID:   "golden-record-worker-1",
		TaskTypes:  []string{string(taskqueue.TaskTypeGoldenRecord)},
		MaxTasks:   1,
		NumWorkers: golden.NumWorkers(),
		PollDelay:  5 * time.Second,
	}

	worker := New(queue, cfg)
	worker.RegisterHandler(string(taskqueue.TaskTypeGoldenRecord), golden.NewBatchHandler(llm, embedProvider))

	log.Info().Int("workers", cfg.NumWorkers).Msg("starting golden-record worker")
	worker.Start(ctx)

	return nil
}

// StartBestOfferWorker starts the worker pool that drains "best_offer"
// batch tasks — §4.E's separate recompute pass over existing GProducts,
// run independently of (and safely in parallel with) golden-record
// creation since best-offer updates serialize per product_id at the SQL
// upsert, not at the worker-pool level.
func StartBestOfferWorker(ctx context.Context, queue *taskqueue.TaskQueue) error {
	cfg := WorkerConfig{
		WorkerID:   "best-offer-worker-1",
		TaskTypes:  []string{string(taskqueue.TaskTypeBestOffer)},
		MaxTasks:   1,
		NumWorkers: golden.NumWorkers(),
		PollDelay:  5 * time.Second,
	}

	worker := New(queue, cfg)
	worker.RegisterHandler(string(taskqueue.TaskTypeBestOffer), golden.NewBestOfferBatchHandler())

	log.Info().Int("workers", cfg.NumWorkers).Msg("starting best-offer worker")
	worker.Start(ctx)

	return nil
}

func CleanupOldRuns(ctx context.Context, queue *taskqueue.TaskQueue) error {
	count, err := queue.CleanupOldTasks(ctx, 7) // Keep 7 days
	if err != nil {
		return fmt.Errorf("failed to cleanup old tasks: %w", err)
	}

	log.Info().Int("count", count).Msg("cleaned up old tasks")
	return nil
}
