// Package extract drives one extraction cycle for a data source:
// select candidates from the watermark store, fetch and land each
// symbol across a worker pool, then apply the outcomes back in one
// batch.
package extract

import (
	"context"
	"sync"
	"time"

	"github.com/avflow/avflow/internal/external/alphavantage"
	"github.com/avflow/avflow/internal/sources"
	"github.com/avflow/avflow/internal/watermark"
	"github.com/avflow/avflow/pkg/logger"
)

type fetcher interface {
	Fetch(ctx context.Context, spec sources.Spec, symbol string, mode watermark.Mode) (*alphavantage.Payload, error)
}

type lander interface {
	Put(ctx context.Context, tableName, symbol, format string, body []byte, extractedAt time.Time) (string, error)
}

type selector interface {
	SelectCandidates(ctx context.Context, tableName string, policy watermark.ModePolicy, opts watermark.Options) ([]watermark.Candidate, error)
}

type applier interface {
	ApplyResults(ctx context.Context, tableName string, results []watermark.Outcome) (*watermark.UpdateSummary, error)
}

// Report describes one completed extraction cycle.
type Report struct {
	TableName  string
	Candidates int
	Succeeded  int
	Failed     int
	Landed     int
	Summary    *watermark.UpdateSummary
	Duration   time.Duration
}

// Runner runs extraction cycles.
type Runner struct {
	client  fetcher
	landing lander
	filter  selector
	updater applier
	workers int
	dryRun  bool
	now     func() time.Time
	logger  *logger.Logger
}

// NewRunner wires an extraction runner. workers below 1 is clamped
// to 1.
func NewRunner(client fetcher, landing lander, filter selector, updater applier, workers int, log *logger.Logger) *Runner {
	if workers < 1 {
		workers = 1
	}
	return &Runner{
		client:  client,
		landing: landing,
		filter:  filter,
		updater: updater,
		workers: workers,
		now:     time.Now,
		logger:  log.WithField("module", "extract"),
	}
}

// WithClock pins the runner's clock.
func (r *Runner) WithClock(now func() time.Time) *Runner {
	r.now = now
	return r
}

// DryRun selects candidates and reports them without fetching,
// landing, or touching watermarks.
func (r *Runner) DryRun() *Runner {
	r.dryRun = true
	return r
}

// Run executes one cycle for a source. Individual symbol failures are
// recorded as failure outcomes, never as a cycle error; the cycle
// fails only when selection or the final batch apply fails.
func (r *Runner) Run(ctx context.Context, spec sources.Spec, opts watermark.Options) (*Report, error) {
	start := r.now()
	if opts.StalenessDays == 0 {
		opts.StalenessDays = spec.StalenessDays
	}

	log := r.logger.WithField("table", spec.TableName)

	candidates, err := r.filter.SelectCandidates(ctx, spec.TableName, spec.Policy, opts)
	if err != nil {
		return nil, err
	}

	report := &Report{TableName: spec.TableName, Candidates: len(candidates)}
	if r.dryRun || len(candidates) == 0 {
		report.Duration = r.now().Sub(start)
		log.WithFields(map[string]interface{}{
			"candidates": len(candidates),
			"dry_run":    r.dryRun,
		}).Info("Extraction cycle selected")
		return report, nil
	}

	extractedAt := r.now()
	outcomes := r.collect(ctx, spec, candidates, extractedAt, report)

	summary, err := r.updater.ApplyResults(ctx, spec.TableName, outcomes)
	if err != nil {
		return nil, err
	}
	report.Summary = summary
	report.Duration = r.now().Sub(start)

	log.WithFields(map[string]interface{}{
		"candidates": report.Candidates,
		"succeeded":  report.Succeeded,
		"failed":     report.Failed,
		"missing":    len(summary.Missing),
		"duration":   report.Duration,
	}).Info("Extraction cycle completed")

	return report, nil
}

// collect fans candidates out over the worker pool and gathers one
// outcome per candidate.
func (r *Runner) collect(ctx context.Context, spec sources.Spec, candidates []watermark.Candidate, extractedAt time.Time, report *Report) []watermark.Outcome {
	jobs := make(chan watermark.Candidate)
	results := make(chan watermark.Outcome)

	var wg sync.WaitGroup
	for i := 0; i < r.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for c := range jobs {
				results <- r.extractOne(ctx, spec, c, extractedAt)
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, c := range candidates {
			select {
			case jobs <- c:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	outcomes := make([]watermark.Outcome, 0, len(candidates))
	for outcome := range results {
		if outcome.Succeeded {
			report.Succeeded++
		} else {
			report.Failed++
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}

// extractOne fetches and lands a single symbol. A context cancelled
// mid-cycle surfaces as a failure outcome for the remaining symbols.
func (r *Runner) extractOne(ctx context.Context, spec sources.Spec, c watermark.Candidate, extractedAt time.Time) watermark.Outcome {
	log := r.logger.WithFields(map[string]interface{}{
		"table":  spec.TableName,
		"symbol": c.Symbol,
		"mode":   string(c.Mode),
	})

	payload, err := r.client.Fetch(ctx, spec, c.Symbol, c.Mode)
	if err != nil {
		log.WithError(err).Warn("Fetch failed")
		return watermark.Failure(c.SymbolID, "fetch")
	}

	if _, err := r.landing.Put(ctx, spec.TableName, c.Symbol, payload.Format, payload.Body, extractedAt); err != nil {
		// Fetched but not landed is still a failure: the watermark must
		// not advance past data the warehouse never saw.
		log.WithError(err).Warn("Landing write failed")
		return watermark.Failure(c.SymbolID, "landing")
	}

	return watermark.Success(c.SymbolID, payload.MinFiscalDate, payload.MaxFiscalDate)
}
