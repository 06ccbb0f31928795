package extract

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avflow/avflow/internal/external/alphavantage"
	"github.com/avflow/avflow/internal/sources"
	"github.com/avflow/avflow/internal/watermark"
	"github.com/avflow/avflow/pkg/config"
	"github.com/avflow/avflow/pkg/logger"
)

var testNow = time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

func testLogger() *logger.Logger {
	return logger.New(&config.Config{Env: "test", LogLevel: "error"})
}

func datePtr(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

type fakeFetcher struct {
	mu       sync.Mutex
	failing  map[string]error
	payloads map[string]*alphavantage.Payload
	modes    map[string]watermark.Mode
}

func (f *fakeFetcher) Fetch(_ context.Context, _ sources.Spec, symbol string, mode watermark.Mode) (*alphavantage.Payload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.modes == nil {
		f.modes = make(map[string]watermark.Mode)
	}
	f.modes[symbol] = mode
	if err, ok := f.failing[symbol]; ok {
		return nil, err
	}
	if p, ok := f.payloads[symbol]; ok {
		return p, nil
	}
	return &alphavantage.Payload{Body: []byte("{}"), Format: "json"}, nil
}

type fakeLander struct {
	mu      sync.Mutex
	failing map[string]error
	keys    []string
}

func (f *fakeLander) Put(_ context.Context, tableName, symbol, format string, _ []byte, extractedAt time.Time) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failing[symbol]; ok {
		return "", err
	}
	key := tableName + "/" + extractedAt.Format("2006-01-02") + "/" + symbol + "." + format
	f.keys = append(f.keys, key)
	return key, nil
}

type fakeSelector struct {
	candidates []watermark.Candidate
	err        error
	lastOpts   watermark.Options
}

func (f *fakeSelector) SelectCandidates(_ context.Context, _ string, _ watermark.ModePolicy, opts watermark.Options) ([]watermark.Candidate, error) {
	f.lastOpts = opts
	return f.candidates, f.err
}

type fakeUpdaterApplier struct {
	lastOutcomes []watermark.Outcome
	err          error
	calls        int
}

func (f *fakeUpdaterApplier) ApplyResults(_ context.Context, tableName string, results []watermark.Outcome) (*watermark.UpdateSummary, error) {
	f.calls++
	f.lastOutcomes = results
	if f.err != nil {
		return nil, f.err
	}
	summary := &watermark.UpdateSummary{TableName: tableName, Applied: len(results), AppliedAt: testNow}
	for _, o := range results {
		if o.Succeeded {
			summary.Succeeded++
		} else {
			summary.Failed++
		}
	}
	return summary, nil
}

func spec(t *testing.T, name string) sources.Spec {
	t.Helper()
	s, err := sources.Get(name)
	require.NoError(t, err)
	return s
}

func TestRun_MixedOutcomes(t *testing.T) {
	fetcher := &fakeFetcher{
		failing: map[string]error{"BAD": errors.New("api throttled")},
		payloads: map[string]*alphavantage.Payload{
			"IBM": {Body: []byte("{}"), Format: "json", MinFiscalDate: datePtr(2020, 3, 31), MaxFiscalDate: datePtr(2026, 6, 30)},
		},
	}
	landing := &fakeLander{failing: map[string]error{"NOSPACE": errors.New("access denied")}}
	filter := &fakeSelector{candidates: []watermark.Candidate{
		{SymbolID: 1, Symbol: "IBM", Mode: watermark.ModeFull},
		{SymbolID: 2, Symbol: "BAD", Mode: watermark.ModeFull},
		{SymbolID: 3, Symbol: "NOSPACE", Mode: watermark.ModeFull},
	}}
	updater := &fakeUpdaterApplier{}

	runner := NewRunner(fetcher, landing, filter, updater, 2, testLogger()).WithClock(fixedClock)
	report, err := runner.Run(context.Background(), spec(t, "BALANCE_SHEET"), watermark.Options{})
	require.NoError(t, err)

	assert.Equal(t, 3, report.Candidates)
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 2, report.Failed, "fetch and landing failures both count")
	require.NotNil(t, report.Summary)
	assert.Equal(t, 3, report.Summary.Applied)

	require.Len(t, updater.lastOutcomes, 3)
	bySymbol := map[int64]watermark.Outcome{}
	for _, o := range updater.lastOutcomes {
		bySymbol[o.SymbolID] = o
	}
	assert.True(t, bySymbol[1].Succeeded)
	assert.Equal(t, datePtr(2026, 6, 30), bySymbol[1].MaxObservedDate)
	assert.Equal(t, "fetch", bySymbol[2].ErrorKind)
	assert.Equal(t, "landing", bySymbol[3].ErrorKind, "fetched but unlanded must not advance the watermark")

	assert.Equal(t, []string{"BALANCE_SHEET/2026-08-20/IBM.json"}, landing.keys)
}

func TestRun_StalenessDefaultFromSource(t *testing.T) {
	filter := &fakeSelector{}
	runner := NewRunner(&fakeFetcher{}, &fakeLander{}, filter, &fakeUpdaterApplier{}, 1, testLogger()).WithClock(fixedClock)

	_, err := runner.Run(context.Background(), spec(t, "COMPANY_OVERVIEW"), watermark.Options{})
	require.NoError(t, err)
	assert.Equal(t, 365, filter.lastOpts.StalenessDays, "zero staleness falls back to the source default")

	_, err = runner.Run(context.Background(), spec(t, "COMPANY_OVERVIEW"), watermark.Options{StalenessDays: 30})
	require.NoError(t, err)
	assert.Equal(t, 30, filter.lastOpts.StalenessDays, "explicit staleness wins")
}

func TestRun_ModePassedThrough(t *testing.T) {
	fetcher := &fakeFetcher{}
	filter := &fakeSelector{candidates: []watermark.Candidate{
		{SymbolID: 1, Symbol: "FRESH", Mode: watermark.ModeCompact},
		{SymbolID: 2, Symbol: "STALE", Mode: watermark.ModeFull},
	}}
	updater := &fakeUpdaterApplier{}

	runner := NewRunner(fetcher, &fakeLander{}, filter, updater, 4, testLogger()).WithClock(fixedClock)
	_, err := runner.Run(context.Background(), spec(t, "TIME_SERIES_DAILY_ADJUSTED"), watermark.Options{})
	require.NoError(t, err)

	assert.Equal(t, watermark.ModeCompact, fetcher.modes["FRESH"])
	assert.Equal(t, watermark.ModeFull, fetcher.modes["STALE"])
}

func TestRun_DryRun(t *testing.T) {
	fetcher := &fakeFetcher{}
	landing := &fakeLander{}
	filter := &fakeSelector{candidates: []watermark.Candidate{{SymbolID: 1, Symbol: "IBM", Mode: watermark.ModeFull}}}
	updater := &fakeUpdaterApplier{}

	runner := NewRunner(fetcher, landing, filter, updater, 2, testLogger()).WithClock(fixedClock).DryRun()
	report, err := runner.Run(context.Background(), spec(t, "BALANCE_SHEET"), watermark.Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Candidates)
	assert.Zero(t, report.Succeeded)
	assert.Empty(t, landing.keys, "dry run never lands")
	assert.Zero(t, updater.calls, "dry run never touches watermarks")
	assert.Empty(t, fetcher.modes, "dry run never fetches")
}

func TestRun_NoCandidates(t *testing.T) {
	updater := &fakeUpdaterApplier{}
	runner := NewRunner(&fakeFetcher{}, &fakeLander{}, &fakeSelector{}, updater, 2, testLogger()).WithClock(fixedClock)

	report, err := runner.Run(context.Background(), spec(t, "CASH_FLOW"), watermark.Options{})
	require.NoError(t, err)
	assert.Zero(t, report.Candidates)
	assert.Zero(t, updater.calls, "empty selection skips the batch apply")
}

func TestRun_SelectionErrorAborts(t *testing.T) {
	filter := &fakeSelector{err: errors.New("connection refused")}
	runner := NewRunner(&fakeFetcher{}, &fakeLander{}, filter, &fakeUpdaterApplier{}, 2, testLogger()).WithClock(fixedClock)

	_, err := runner.Run(context.Background(), spec(t, "CASH_FLOW"), watermark.Options{})
	require.Error(t, err)
}

func TestRun_ApplyErrorAborts(t *testing.T) {
	filter := &fakeSelector{candidates: []watermark.Candidate{{SymbolID: 1, Symbol: "IBM", Mode: watermark.ModeFull}}}
	updater := &fakeUpdaterApplier{err: errors.New("deadlock detected")}
	runner := NewRunner(&fakeFetcher{}, &fakeLander{}, filter, updater, 2, testLogger()).WithClock(fixedClock)

	report, err := runner.Run(context.Background(), spec(t, "CASH_FLOW"), watermark.Options{})
	require.Error(t, err)
	assert.Nil(t, report, "outcomes that never reached the store are not reported as applied")
}

func TestRun_AllCandidatesGetOutcomes(t *testing.T) {
	// More candidates than workers: every candidate still produces
	// exactly one outcome.
	var candidates []watermark.Candidate
	for i := int64(1); i <= 20; i++ {
		candidates = append(candidates, watermark.Candidate{SymbolID: i, Symbol: "S", Mode: watermark.ModeFull})
	}
	filter := &fakeSelector{candidates: candidates}
	updater := &fakeUpdaterApplier{}

	runner := NewRunner(&fakeFetcher{}, &fakeLander{}, filter, updater, 3, testLogger()).WithClock(fixedClock)
	report, err := runner.Run(context.Background(), spec(t, "INCOME_STATEMENT"), watermark.Options{})
	require.NoError(t, err)

	assert.Equal(t, 20, report.Succeeded)
	require.Len(t, updater.lastOutcomes, 20)

	var ids []int64
	for _, o := range updater.lastOutcomes {
		ids = append(ids, o.SymbolID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for i := int64(1); i <= 20; i++ {
		assert.Equal(t, i, ids[i-1])
	}
}
