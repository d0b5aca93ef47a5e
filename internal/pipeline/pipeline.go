package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/nao1215/proxycrawl/internal/metrics"
	"github.com/nao1215/proxycrawl/internal/model"
)

// Step is one stage of a run. Steps share a single run report: the crawl
// step fills in seed results, later steps read them.
//
// A step returns an error only when the run itself cannot go on. A seed that
// times out is a result, not an error.
type Step interface {
	Do(ctx context.Context, report *model.RunReport) error
	Name() string
}

// Pipeline runs steps in the order they were added.
type Pipeline struct {
	steps  []Step
	logger *slog.Logger

	// continueOnError keeps later steps running after a failure. The
	// finishing pipeline sets it so a report is still written when the
	// database is unavailable.
	continueOnError bool
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger used for step progress.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithContinueOnError makes the pipeline record a failed step on the report
// and move on instead of returning.
func WithContinueOnError(continueOnError bool) Option {
	return func(p *Pipeline) {
		p.continueOnError = continueOnError
	}
}

// New creates an empty Pipeline.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// AddStep appends a step.
func (p *Pipeline) AddStep(step Step) {
	p.steps = append(p.steps, step)
}

// AddSteps appends several steps.
func (p *Pipeline) AddSteps(steps ...Step) {
	p.steps = append(p.steps, steps...)
}

// Execute runs every step against report.
//
// ctx is checked between steps only; a running step watches ctx on its own.
// When ctx is done before a step starts, the report is marked cancelled and
// ctx.Err() is returned. Every step's wall time is observed in metrics.
func (p *Pipeline) Execute(ctx context.Context, report *model.RunReport) error {
	for _, step := range p.steps {
		if err := ctx.Err(); err != nil {
			p.logger.Warn("run cancelled before step",
				"step", step.Name(),
				"run", report.ID,
				"reason", err,
			)
			report.Cancelled = true
			if report.Error == nil {
				report.SetError(err)
			}
			return err
		}

		p.logger.Info("executing step", "step", step.Name(), "run", report.ID)

		start := time.Now()
		err := step.Do(ctx, report)
		elapsed := time.Since(start)

		if err != nil {
			metrics.RecordStep(step.Name(), stepOutcome(err), elapsed)
			p.logger.Error("step failed",
				"step", step.Name(),
				"run", report.ID,
				"elapsed", elapsed,
				"error", err,
			)
			report.SetError(err)
			if !p.continueOnError {
				return err
			}
			continue
		}

		metrics.RecordStep(step.Name(), metrics.OutcomeCompleted, elapsed)
		p.logger.Debug("step completed", "step", step.Name(), "run", report.ID, "elapsed", elapsed)
	}
	return nil
}

func stepOutcome(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return metrics.OutcomeTimeout
	}
	return metrics.OutcomeError
}

// StepCount returns the number of steps.
func (p *Pipeline) StepCount() int {
	return len(p.steps)
}

// StepNames returns the step names in execution order.
func (p *Pipeline) StepNames() []string {
	names := make([]string, len(p.steps))
	for i, step := range p.steps {
		names[i] = step.Name()
	}
	return names
}
