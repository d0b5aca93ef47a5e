package pipeline

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/proxycrawl/internal/model"
)

// ShardPipelineFactory builds the pipeline of one shard. shard is the
// zero-based shard index and seeds are the seeds assigned to it.
type ShardPipelineFactory func(shard int, seeds []string) *Pipeline

// BatchProcessor runs independent shards of a seed list concurrently.
// Each shard gets a fresh pipeline, and through it its own pair of browser
// sessions; shards share nothing but the context.
// At most concurrency shards run at once.
type BatchProcessor struct {
	// pipelineFactory creates the pipeline of each shard.
	pipelineFactory ShardPipelineFactory

	// concurrency is the maximum number of shards running at once.
	concurrency int

	// workerID and proxyBase stamp every shard report.
	workerID  string
	proxyBase string

	// logger is used for batch-level logging.
	logger *slog.Logger
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*BatchProcessor)

// WithBatchLogger sets a custom logger for batch processing.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *BatchProcessor) {
		b.logger = logger
	}
}

// WithConcurrency sets the maximum number of concurrent shards.
// Default is 1 if not specified.
func WithConcurrency(n int) BatchOption {
	return func(b *BatchProcessor) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// WithRunIdentity sets the worker ID and proxy base of every shard report.
func WithRunIdentity(workerID, proxyBase string) BatchOption {
	return func(b *BatchProcessor) {
		b.workerID = workerID
		b.proxyBase = proxyBase
	}
}

// NewBatchProcessor creates a new BatchProcessor.
func NewBatchProcessor(pipelineFactory ShardPipelineFactory, opts ...BatchOption) *BatchProcessor {
	bp := &BatchProcessor{
		pipelineFactory: pipelineFactory,
		concurrency:     1,
	}

	for _, opt := range opts {
		opt(bp)
	}

	if bp.logger == nil {
		bp.logger = slog.Default()
	}

	return bp
}

// ProcessShards runs one pipeline per shard and returns one report per
// shard, in shard order. A shard whose pipeline fails still yields its
// report with the error recorded; such failures never stop other shards.
//
// The returned error is the context error if the batch was cancelled.
func (bp *BatchProcessor) ProcessShards(ctx context.Context, shards [][]string) ([]*model.RunReport, error) {
	bp.logger.Info("starting shards",
		"shards", len(shards),
		"concurrency", bp.concurrency,
	)

	startTime := time.Now()
	results := make([]*model.RunReport, len(shards))

	// Each goroutine writes only its own index.
	var g errgroup.Group
	g.SetLimit(bp.concurrency)

	for i, seeds := range shards {
		g.Go(func() error {
			report := model.NewRunReport(bp.workerID, bp.proxyBase)
			results[i] = report

			if err := ctx.Err(); err != nil {
				report.Cancelled = true
				report.SetError(err)
				report.Finish()
				return nil
			}

			bp.logger.Info("shard started",
				"shard", i,
				"seeds", len(seeds),
			)

			pipeline := bp.pipelineFactory(i, seeds)
			if err := pipeline.Execute(ctx, report); err != nil {
				bp.logger.Warn("shard failed",
					"shard", i,
					"error", err,
				)
				if report.FinishedAt.IsZero() {
					report.Finish()
				}
				return nil
			}

			bp.logger.Info("shard completed",
				"shard", i,
				"seeds", len(report.Seeds),
			)
			return nil
		})
	}

	_ = g.Wait() //nolint:errcheck // shard goroutines never return errors

	bp.logger.Info("shards complete",
		"shards", len(shards),
		"elapsed", time.Since(startTime),
	)

	return results, ctx.Err()
}
