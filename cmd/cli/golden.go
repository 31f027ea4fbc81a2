package main

import (
	"context"
	"fmt"

	"github.com/kosarica/catalog-service/config"
	"github.com/kosarica/catalog-service/internal/database"
	"github.com/kosarica/catalog-service/internal/golden"
	"github.com/kosarica/catalog-service/internal/providers/gemini"
	"github.com/kosarica/catalog-service/internal/taskqueue"
	"github.com/kosarica/catalog-service/internal/workers"
	"github.com/spf13/cobra"
)

var batchSize int

// goldenRecordCmd is the §4.E orchestrator's CLI entry point: schedule
// partitions the product-id space into taskqueue batches, worker drains them.
var goldenRecordCmd = &cobra.Command{
	Use:   "golden-record",
	Short: "Golden-record normalizer orchestration (§4.E/§4.F)",
}

var goldenRecordScheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Partition the product-id space and enqueue normalizer batches",
	RunE:  runGoldenRecordSchedule,
}

var goldenRecordWorkerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the golden-record normalizer worker pool",
	RunE:  runGoldenRecordWorker,
}

// bestOfferCmd is the separate recompute pass §4.E calls for, over
// g_products rather than products.
var bestOfferCmd = &cobra.Command{
	Use:   "best-offer",
	Short: "Best-offer recompute orchestration (§4.G)",
}

var bestOfferScheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Partition the g_product-id space and enqueue best-offer batches",
	RunE:  runBestOfferSchedule,
}

var bestOfferWorkerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the best-offer recompute worker pool",
	RunE:  runBestOfferWorker,
}

func init() {
	rootCmd.AddCommand(goldenRecordCmd)
	goldenRecordCmd.AddCommand(goldenRecordScheduleCmd, goldenRecordWorkerCmd)
	goldenRecordScheduleCmd.Flags().IntVar(&batchSize, "batch-size", golden.DefaultBatchSize, "product-id span per batch")

	rootCmd.AddCommand(bestOfferCmd)
	bestOfferCmd.AddCommand(bestOfferScheduleCmd, bestOfferWorkerCmd)
	bestOfferScheduleCmd.Flags().IntVar(&batchSize, "batch-size", golden.DefaultBatchSize, "g_product-id span per batch")
}

// needsDBAndQueue connects to the database (golden-record/best-offer
// commands aren't in persistentPreRun's "ingest"/"run" allowlist, so they
// bring up their own connection the way ingestCmd's siblings would).
func needsDBAndQueue() (*taskqueue.TaskQueue, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config required but not loaded")
	}
	if err := initDatabase(); err != nil {
		return nil, fmt.Errorf("database initialization failed: %w", err)
	}
	return taskqueue.New(database.Pool()), nil
}

func runGoldenRecordSchedule(cmd *cobra.Command, args []string) error {
	queue, err := needsDBAndQueue()
	if err != nil {
		return err
	}
	n, err := golden.ScheduleBatches(context.Background(), queue, batchSize)
	if err != nil {
		return fmt.Errorf("schedule golden-record batches: %w", err)
	}
	logger.Info().Int("batches", n).Msg("scheduled golden-record batches")
	return nil
}

func runGoldenRecordWorker(cmd *cobra.Command, args []string) error {
	queue, err := needsDBAndQueue()
	if err != nil {
		return err
	}
	llmCfg := config.GetLLMConfig()
	if llmCfg.APIKey == "" {
		return fmt.Errorf("LLM_API_KEY not set")
	}
	provider := gemini.New(llmCfg)
	return workers.StartGoldenRecordWorker(context.Background(), queue, provider, provider)
}

func runBestOfferSchedule(cmd *cobra.Command, args []string) error {
	queue, err := needsDBAndQueue()
	if err != nil {
		return err
	}
	n, err := golden.ScheduleBestOfferBatches(context.Background(), queue, batchSize)
	if err != nil {
		return fmt.Errorf("schedule best-offer batches: %w", err)
	}
	logger.Info().Int("batches", n).Msg("scheduled best-offer batches")
	return nil
}

func runBestOfferWorker(cmd *cobra.Command, args []string) error {
	queue, err := needsDBAndQueue()
	if err != nil {
		return err
	}
	return workers.StartBestOfferWorker(context.Background(), queue)
}
