package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avflow/avflow/internal/extract"
	"github.com/avflow/avflow/internal/sources"
	"github.com/avflow/avflow/internal/symbols"
	"github.com/avflow/avflow/internal/watermark"
	"github.com/avflow/avflow/pkg/config"
	"github.com/avflow/avflow/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(&config.Config{Env: "test", LogLevel: "error"})
}

type fakeRunner struct {
	failing map[string]error
	ran     []string
}

func (f *fakeRunner) Run(_ context.Context, spec sources.Spec, _ watermark.Options) (*extract.Report, error) {
	f.ran = append(f.ran, spec.TableName)
	if err, ok := f.failing[spec.TableName]; ok {
		return nil, err
	}
	return &extract.Report{TableName: spec.TableName}, nil
}

func TestExtractionJob_RunsAllSources(t *testing.T) {
	runner := &fakeRunner{}
	job := NewExtractionJob("fundamentals", "@weekly", runner, sources.Fundamentals(), watermark.Options{}, testLogger())

	assert.Equal(t, "fundamentals", job.Name())
	assert.Equal(t, "@weekly", job.Schedule())

	require.NoError(t, job.Run(context.Background()))
	assert.Len(t, runner.ran, 5)
}

func TestExtractionJob_FailureDoesNotStopOthers(t *testing.T) {
	runner := &fakeRunner{failing: map[string]error{"BALANCE_SHEET": errors.New("boom")}}
	job := NewExtractionJob("fundamentals", "@weekly", runner, sources.Fundamentals(), watermark.Options{}, testLogger())

	err := job.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BALANCE_SHEET")
	assert.Len(t, runner.ran, 5, "remaining sources still run")
}

type fakeListingClient struct {
	byState map[string][]symbols.Listing
	err     error
}

func (f *fakeListingClient) ListingStatus(_ context.Context, state string) ([]symbols.Listing, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.byState[state], nil
}

type fakeUniverse struct {
	synced []symbols.Listing
	base   []watermark.BaseSymbol
}

func (f *fakeUniverse) Sync(_ context.Context, listings []symbols.Listing) (int, error) {
	f.synced = listings
	return len(listings), nil
}

func (f *fakeUniverse) Base(_ context.Context) ([]watermark.BaseSymbol, error) {
	return f.base, nil
}

type fakeOnboarder struct {
	tables []string
}

func (f *fakeOnboarder) InitializeSource(_ context.Context, tableName string, _ []watermark.BaseSymbol, _ watermark.EligibilityPredicate) (int, error) {
	f.tables = append(f.tables, tableName)
	return 0, nil
}

func TestSymbolSyncJob(t *testing.T) {
	client := &fakeListingClient{byState: map[string][]symbols.Listing{
		"active":   {{Symbol: "IBM", AssetType: "Stock", Status: "Active"}},
		"delisted": {{Symbol: "TWTR", AssetType: "Stock", Status: "Delisted"}},
	}}
	universe := &fakeUniverse{base: []watermark.BaseSymbol{{SymbolID: 1, Symbol: "IBM"}}}
	store := &fakeOnboarder{}

	job := NewSymbolSyncJob("@weekly", client, universe, store, testLogger())
	assert.Equal(t, "symbol_sync", job.Name())

	require.NoError(t, job.Run(context.Background()))
	assert.Len(t, universe.synced, 2, "active and delisted states both synced")
	assert.ElementsMatch(t, sources.Names(), store.tables, "every source re-onboarded")
}

func TestSymbolSyncJob_ListingErrorAborts(t *testing.T) {
	client := &fakeListingClient{err: errors.New("quota exceeded")}
	universe := &fakeUniverse{}
	store := &fakeOnboarder{}

	job := NewSymbolSyncJob("@weekly", client, universe, store, testLogger())
	require.Error(t, job.Run(context.Background()))
	assert.Empty(t, universe.synced)
	assert.Empty(t, store.tables)
}

type fakeCleaner struct {
	cleaned   map[string]int
	retention int
}

func (f *fakeCleaner) Cleanup(_ context.Context, tableName string, retentionDays int, _ time.Time) (int, error) {
	if f.cleaned == nil {
		f.cleaned = make(map[string]int)
	}
	f.cleaned[tableName] = retentionDays
	f.retention = retentionDays
	return 2, nil
}

func TestCleanupJob(t *testing.T) {
	cleaner := &fakeCleaner{}
	job := NewCleanupJob("@daily", cleaner, 14, testLogger())

	assert.Equal(t, "landing_cleanup", job.Name())
	require.NoError(t, job.Run(context.Background()))

	assert.Len(t, cleaner.cleaned, 6, "every source gets a cleanup pass")
	assert.Equal(t, 14, cleaner.retention)
}
