// Package jobs holds the scheduled pipeline jobs.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/avflow/avflow/internal/extract"
	"github.com/avflow/avflow/internal/sources"
	"github.com/avflow/avflow/internal/symbols"
	"github.com/avflow/avflow/internal/watermark"
	"github.com/avflow/avflow/pkg/logger"
)

type cycleRunner interface {
	Run(ctx context.Context, spec sources.Spec, opts watermark.Options) (*extract.Report, error)
}

// ExtractionJob runs extraction cycles for a set of sources on one
// schedule.
type ExtractionJob struct {
	name     string
	schedule string
	runner   cycleRunner
	specs    []sources.Spec
	opts     watermark.Options
	logger   *logger.Logger
}

// NewExtractionJob builds a job covering the given sources.
func NewExtractionJob(name, schedule string, runner cycleRunner, specs []sources.Spec, opts watermark.Options, log *logger.Logger) *ExtractionJob {
	return &ExtractionJob{
		name:     name,
		schedule: schedule,
		runner:   runner,
		specs:    specs,
		opts:     opts,
		logger:   log,
	}
}

func (j *ExtractionJob) Name() string     { return j.name }
func (j *ExtractionJob) Schedule() string { return j.schedule }

// Run extracts every source in order. One source failing does not
// stop the others; the job reports the first error at the end.
func (j *ExtractionJob) Run(ctx context.Context) error {
	var firstErr error
	for _, spec := range j.specs {
		report, err := j.runner.Run(ctx, spec, j.opts)
		if err != nil {
			j.logger.WithError(err).WithField("table", spec.TableName).Error("Extraction cycle failed")
			if firstErr == nil {
				firstErr = fmt.Errorf("extract %s: %w", spec.TableName, err)
			}
			continue
		}
		j.logger.WithFields(map[string]interface{}{
			"table":     report.TableName,
			"succeeded": report.Succeeded,
			"failed":    report.Failed,
		}).Info("Extraction cycle finished")
	}
	return firstErr
}

type listingFetcher interface {
	ListingStatus(ctx context.Context, state string) ([]symbols.Listing, error)
}

type universeStore interface {
	Sync(ctx context.Context, listings []symbols.Listing) (int, error)
	Base(ctx context.Context) ([]watermark.BaseSymbol, error)
}

type onboarder interface {
	InitializeSource(ctx context.Context, tableName string, base []watermark.BaseSymbol, eligible watermark.EligibilityPredicate) (int, error)
}

// SymbolSyncJob refreshes the symbol universe from the listing
// snapshot and re-onboards every source so new listings get
// watermarks.
type SymbolSyncJob struct {
	schedule string
	client   listingFetcher
	universe universeStore
	store    onboarder
	logger   *logger.Logger
}

// NewSymbolSyncJob builds the weekly universe refresh job.
func NewSymbolSyncJob(schedule string, client listingFetcher, universe universeStore, store onboarder, log *logger.Logger) *SymbolSyncJob {
	return &SymbolSyncJob{
		schedule: schedule,
		client:   client,
		universe: universe,
		store:    store,
		logger:   log,
	}
}

func (j *SymbolSyncJob) Name() string     { return "symbol_sync" }
func (j *SymbolSyncJob) Schedule() string { return j.schedule }

// Run downloads both listing states, syncs the universe, and
// re-initializes every source's watermarks from it.
func (j *SymbolSyncJob) Run(ctx context.Context) error {
	var listings []symbols.Listing
	for _, state := range []string{"active", "delisted"} {
		batch, err := j.client.ListingStatus(ctx, state)
		if err != nil {
			return fmt.Errorf("listing status %s: %w", state, err)
		}
		listings = append(listings, batch...)
	}

	synced, err := j.universe.Sync(ctx, listings)
	if err != nil {
		return fmt.Errorf("sync universe: %w", err)
	}
	j.logger.WithField("symbols", synced).Info("Universe refreshed")

	base, err := j.universe.Base(ctx)
	if err != nil {
		return fmt.Errorf("load universe: %w", err)
	}

	for _, spec := range sources.All() {
		if _, err := j.store.InitializeSource(ctx, spec.TableName, base, spec.Eligible); err != nil {
			return fmt.Errorf("onboard %s: %w", spec.TableName, err)
		}
	}

	return nil
}

type partitionCleaner interface {
	Cleanup(ctx context.Context, tableName string, retentionDays int, now time.Time) (int, error)
}

// CleanupJob prunes expired landing partitions for every source.
type CleanupJob struct {
	schedule      string
	landing       partitionCleaner
	retentionDays int
	logger        *logger.Logger
}

// NewCleanupJob builds the landing retention job.
func NewCleanupJob(schedule string, landing partitionCleaner, retentionDays int, log *logger.Logger) *CleanupJob {
	return &CleanupJob{
		schedule:      schedule,
		landing:       landing,
		retentionDays: retentionDays,
		logger:        log,
	}
}

func (j *CleanupJob) Name() string     { return "landing_cleanup" }
func (j *CleanupJob) Schedule() string { return j.schedule }

// Run prunes every source's partitions past retention.
func (j *CleanupJob) Run(ctx context.Context) error {
	total := 0
	for _, spec := range sources.All() {
		deleted, err := j.landing.Cleanup(ctx, spec.TableName, j.retentionDays, time.Now())
		if err != nil {
			return fmt.Errorf("cleanup %s: %w", spec.TableName, err)
		}
		total += deleted
	}
	j.logger.WithField("deleted", total).Info("Landing cleanup finished")
	return nil
}
