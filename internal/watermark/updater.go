package watermark

import (
	"context"
	"sort"
	"time"

	"github.com/avflow/avflow/pkg/logger"
)

// resultApplier is the slice of Store the updater needs.
type resultApplier interface {
	BulkApply(ctx context.Context, tableName string, outcomes []Outcome, now time.Time) ([]int64, error)
}

// Updater computes and persists new watermark state from extraction
// outcomes. The whole batch goes to the store in one bulk round-trip;
// there are no per-row updates.
type Updater struct {
	store  resultApplier
	now    func() time.Time
	logger *logger.Logger
}

// NewUpdater creates a new Updater instance
func NewUpdater(store resultApplier, log *logger.Logger) *Updater {
	return &Updater{
		store:  store,
		now:    time.Now,
		logger: log.WithField("module", "watermark-updater"),
	}
}

// WithClock overrides the time source. Used by tests.
func (u *Updater) WithClock(now func() time.Time) *Updater {
	u.now = now
	return u
}

// ApplyResults applies a batch of extraction outcomes for tableName.
// Symbols with no initialized watermark are reported in the summary's
// Missing list instead of failing the batch; one bad id must not lose
// the rest. The whole batch is stamped with a single timestamp so a
// replay with the same clock is idempotent.
func (u *Updater) ApplyResults(ctx context.Context, tableName string, results []Outcome) (*UpdateSummary, error) {
	if tableName == "" {
		return nil, configErrorf("table name is required")
	}
	if err := validateOutcomes(results); err != nil {
		return nil, err
	}

	now := u.now()
	summary := &UpdateSummary{
		TableName: tableName,
		AppliedAt: now,
	}
	if len(results) == 0 {
		return summary, nil
	}

	updated, err := u.store.BulkApply(ctx, tableName, results, now)
	if err != nil {
		return nil, err
	}

	applied := make(map[int64]bool, len(updated))
	for _, id := range updated {
		applied[id] = true
	}

	for _, o := range results {
		if !applied[o.SymbolID] {
			summary.Missing = append(summary.Missing, o.SymbolID)
			continue
		}
		summary.Applied++
		if o.Succeeded {
			summary.Succeeded++
			summary.SucceededSymbols = append(summary.SucceededSymbols, o.SymbolID)
		} else {
			summary.Failed++
			summary.FailedSymbols = append(summary.FailedSymbols, FailedSymbol{SymbolID: o.SymbolID, ErrorKind: o.ErrorKind})
		}
	}
	sort.Slice(summary.SucceededSymbols, func(i, j int) bool { return summary.SucceededSymbols[i] < summary.SucceededSymbols[j] })
	sort.Slice(summary.FailedSymbols, func(i, j int) bool { return summary.FailedSymbols[i].SymbolID < summary.FailedSymbols[j].SymbolID })
	sort.Slice(summary.Missing, func(i, j int) bool { return summary.Missing[i] < summary.Missing[j] })

	log := u.logger.WithFields(map[string]interface{}{
		"table":     tableName,
		"applied":   summary.Applied,
		"succeeded": summary.Succeeded,
		"failed":    summary.Failed,
	})
	if len(summary.Missing) > 0 {
		log.WithField("missing", summary.Missing).Warn("Applied results with uninitialized watermarks")
	} else {
		log.Info("Applied results")
	}

	return summary, nil
}

// validateOutcomes rejects batches the store cannot stage: duplicate
// symbols, inverted date ranges, or half-open ranges.
func validateOutcomes(results []Outcome) error {
	seen := make(map[int64]bool, len(results))
	for _, o := range results {
		if seen[o.SymbolID] {
			return configErrorf("duplicate symbol %d in result batch", o.SymbolID)
		}
		seen[o.SymbolID] = true

		if !o.Succeeded {
			if o.MinObservedDate != nil || o.MaxObservedDate != nil {
				return configErrorf("failure outcome for symbol %d carries observed dates", o.SymbolID)
			}
			continue
		}

		if (o.MinObservedDate == nil) != (o.MaxObservedDate == nil) {
			return configErrorf("symbol %d has a half-open observed date range", o.SymbolID)
		}
		if o.MinObservedDate != nil && o.MinObservedDate.After(*o.MaxObservedDate) {
			return configErrorf("symbol %d has min observed date after max", o.SymbolID)
		}
	}
	return nil
}
