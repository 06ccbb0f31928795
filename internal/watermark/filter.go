package watermark

import (
	"context"
	"time"

	"github.com/avflow/avflow/pkg/logger"
)

// recordQuerier is the slice of Store the filter needs.
type recordQuerier interface {
	Query(ctx context.Context, tableName string, filter QueryFilter) ([]Record, error)
}

// Filter selects which (table, symbol) pairs should be attempted in the
// current extraction run, and the processing mode for each. Read-only;
// it never mutates watermark state.
type Filter struct {
	store  recordQuerier
	now    func() time.Time
	logger *logger.Logger
}

// NewFilter creates a new Filter instance
func NewFilter(store recordQuerier, log *logger.Logger) *Filter {
	return &Filter{
		store:  store,
		now:    time.Now,
		logger: log.WithField("module", "eligibility"),
	}
}

// WithClock overrides the time source. Used by tests.
func (f *Filter) WithClock(now func() time.Time) *Filter {
	f.now = now
	return f
}

// SelectCandidates returns the symbols to attempt for tableName under
// the given policy and options, ordered by symbol. It either returns a
// complete candidate list or an error; never partial results.
func (f *Filter) SelectCandidates(ctx context.Context, tableName string, policy ModePolicy, opts Options) ([]Candidate, error) {
	if tableName == "" {
		return nil, configErrorf("table name is required")
	}
	if opts.MaxCandidates < 0 {
		return nil, configErrorf("maxCandidates must not be negative, got %d", opts.MaxCandidates)
	}
	if opts.SkipRecentHours < 0 {
		return nil, configErrorf("skipRecentHours must not be negative, got %d", opts.SkipRecentHours)
	}
	if opts.StalenessDays <= 0 {
		return nil, configErrorf("stalenessDays must be positive, got %d", opts.StalenessDays)
	}

	records, err := f.store.Query(ctx, tableName, QueryFilter{
		Eligible: EligibilityYes,
		Exchange: opts.Exchange,
	})
	if err != nil {
		return nil, err
	}

	now := f.now()
	staleCutoff := now.AddDate(0, 0, -opts.StalenessDays)

	var recentCutoff time.Time
	if opts.SkipRecentHours > 0 {
		recentCutoff = now.Add(-time.Duration(opts.SkipRecentHours) * time.Hour)
	}

	candidates := make([]Candidate, 0, len(records))
	for i := range records {
		rec := &records[i]

		// The store query already filters on eligibility; re-check so
		// the selection rule holds regardless of the record source.
		if rec.APIEligible != EligibilityYes {
			continue
		}

		// Never-attempted symbols are always eligible on the recency
		// axis, irrespective of skipRecentHours.
		if opts.SkipRecentHours > 0 && rec.LastSuccessfulRun != nil && rec.LastSuccessfulRun.After(recentCutoff) {
			continue
		}

		var mode Mode
		switch policy {
		case PolicyIncremental:
			mode = decideMode(rec, staleCutoff)
		case PolicyFullOnly:
			// Staleness acts as an exclusion filter: skip symbols whose
			// captured data is still fresh enough.
			if rec.LastFiscalDate != nil && rec.LastFiscalDate.After(staleCutoff) {
				continue
			}
			mode = ModeFull
		default:
			return nil, configErrorf("unknown mode policy %d", policy)
		}

		candidates = append(candidates, Candidate{
			SymbolID: rec.SymbolID,
			Symbol:   rec.Symbol,
			Mode:     mode,
		})

		if opts.MaxCandidates > 0 && len(candidates) == opts.MaxCandidates {
			break
		}
	}

	f.logger.WithFields(map[string]interface{}{
		"table":      tableName,
		"scanned":    len(records),
		"candidates": len(candidates),
	}).Debug("Selected candidates")

	return candidates, nil
}

// decideMode picks compact or full for an incremental source. A symbol
// with no capture history, or a watermark past the staleness cutoff,
// warrants a complete refresh.
func decideMode(rec *Record, staleCutoff time.Time) Mode {
	if rec.LastFiscalDate == nil {
		return ModeFull
	}
	if rec.LastFiscalDate.Before(staleCutoff) {
		return ModeFull
	}
	return ModeCompact
}
