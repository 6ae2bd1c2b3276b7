package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/spigell/company-scout/internal/ai"
	"github.com/spigell/company-scout/internal/company"
	"github.com/spigell/company-scout/internal/report"
	"github.com/spigell/company-scout/internal/utils"
)

const topSummarySize = 10

// Saver persists the accumulated results. *report.Writer satisfies it.
type Saver interface {
	Save(results []ai.ScoredCompany) error
	Path() string
}

// Runner drives the whole batched analysis to completion. A failed batch is
// logged and skipped, it never aborts the run.
type Runner struct {
	analyzer ai.Analyzer
	sink     Saver
	logger   *zap.Logger

	batchSize    int
	pacing       time.Duration
	costPerBatch float64
}

func New(analyzer ai.Analyzer, sink Saver, batchSize int, pacing time.Duration, costPerBatch float64, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Runner{
		analyzer:     analyzer,
		sink:         sink,
		logger:       logger,
		batchSize:    batchSize,
		pacing:       pacing,
		costPerBatch: costPerBatch,
	}
}

// Run processes all companies in order and returns the final sorted results.
// Cancelling the context stops the run between batches; checkpoints written
// so far stay on disk.
func (r *Runner) Run(ctx context.Context, companies *company.Companies, job string) ([]ai.ScoredCompany, error) {
	batches := companies.Batches(r.batchSize)

	r.logger.Info("starting analysis",
		zap.Int("companies", companies.Len()),
		zap.Int("batches", len(batches)),
		zap.Int("batch_size", r.batchSize),
	)

	results := make([]ai.ScoredCompany, 0, companies.Len())
	processed := 0

	for i, batch := range batches {
		batchNum := i + 1

		r.logger.Info("processing batch",
			zap.Int("batch", batchNum),
			zap.Int("companies", len(batch)),
		)

		analysis, err := r.analyzer.Analyze(ctx, batch, job, batchNum)
		if err != nil {
			r.logger.Error("analyzing batch",
				zap.Int("batch", batchNum),
				zap.Error(err),
			)
		} else {
			results = append(results, analysis.Scores...)

			if err := r.sink.Save(results); err != nil {
				return nil, eris.Wrapf(err, "runner: checkpoint after batch %d", batchNum)
			}

			r.logger.Info("processed batch",
				zap.Int("batch", batchNum),
				zap.Int("accumulated", len(results)),
			)
		}

		processed += len(batch)

		if batchNum < len(batches) {
			r.logCostEstimate(processed)
			if err := utils.WaitFor(ctx, r.pacing); err != nil {
				return nil, eris.Wrap(err, "runner: pacing interrupted")
			}
		}
	}

	report.SortByScore(results)

	if err := r.sink.Save(results); err != nil {
		return nil, eris.Wrap(err, "runner: save final results")
	}

	r.logger.Info("results saved", zap.String("filename", r.sink.Path()))
	r.logTopResults(results)

	return results, nil
}

// logCostEstimate reports a rough spend figure. The per-batch constant is a
// placeholder, not an exact price.
func (r *Runner) logCostEstimate(processed int) {
	if r.batchSize <= 0 || r.costPerBatch <= 0 {
		return
	}

	estimated := float64(processed) / float64(r.batchSize) * r.costPerBatch
	r.logger.Info("estimated cost so far",
		zap.String("cost", fmt.Sprintf("$%.2f", estimated)),
		zap.Int("companies_processed", processed),
	)
}

func (r *Runner) logTopResults(results []ai.ScoredCompany) {
	top := report.Top(results, topSummarySize)
	if len(top) == 0 {
		r.logger.Info("no results to report")
		return
	}

	r.logger.Info("top companies", zap.Int("count", len(top)))
	for _, result := range top {
		r.logger.Info("company",
			zap.String("name", result.CompanyName),
			zap.Float64("score", result.Score),
			zap.String("explanation", result.Explanation),
		)
	}
}
