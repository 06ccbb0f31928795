package warehouse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avflow/avflow/internal/sources"
)

func testLoader() *Loader {
	return &Loader{
		stage:    "AV_LANDING_STAGE",
		database: "MARKETDATA",
		schema:   "RAW",
	}
}

func TestCopyStatement_JSON(t *testing.T) {
	spec, err := sources.Get("BALANCE_SHEET")
	require.NoError(t, err)

	stmt := testLoader().copyStatement(spec, time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC))

	assert.Contains(t, stmt, "COPY INTO MARKETDATA.RAW.BALANCE_SHEET_STAGE")
	assert.Contains(t, stmt, "@AV_LANDING_STAGE/BALANCE_SHEET/2026-08-20/")
	assert.Contains(t, stmt, "TYPE = 'JSON'")
	assert.Contains(t, stmt, "metadata$filename")
	assert.Contains(t, stmt, "'2026-08-20'::date")
}

func TestCopyStatement_CSV(t *testing.T) {
	spec, err := sources.Get("TIME_SERIES_DAILY_ADJUSTED")
	require.NoError(t, err)

	stmt := testLoader().copyStatement(spec, time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC))

	assert.Contains(t, stmt, "COPY INTO MARKETDATA.RAW.TIME_SERIES_DAILY_ADJUSTED_STAGE")
	assert.Contains(t, stmt, "@AV_LANDING_STAGE/TIME_SERIES_DAILY_ADJUSTED/2026-08-20/")
	assert.Contains(t, stmt, "TYPE = 'CSV' SKIP_HEADER = 1")
	assert.Contains(t, stmt, "split_coefficient")
}

func TestCopyStatement_SymbolStripsOnlyFinalExtension(t *testing.T) {
	// BRK.B.csv must stage as BRK.B, not BRK: the symbol expression
	// strips the trailing extension instead of splitting on the first
	// dot.
	want := `regexp_replace(split_part(metadata$filename, '/', -1), '\\.[^.]+$', '')`
	when := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)

	for _, name := range []string{"TIME_SERIES_DAILY_ADJUSTED", "BALANCE_SHEET"} {
		spec, err := sources.Get(name)
		require.NoError(t, err)

		stmt := testLoader().copyStatement(spec, when)
		assert.Contains(t, stmt, want, name)
		assert.NotContains(t, stmt, "'.', 1", name)
	}
}

func TestMergeStatement_JSONKeysOnSymbol(t *testing.T) {
	spec, err := sources.Get("CASH_FLOW")
	require.NoError(t, err)

	stmt := testLoader().mergeStatement(spec)

	assert.Contains(t, stmt, "MERGE INTO MARKETDATA.RAW.CASH_FLOW_RAW t")
	assert.Contains(t, stmt, "USING MARKETDATA.RAW.CASH_FLOW_STAGE s")
	assert.Contains(t, stmt, "ON t.symbol = s.symbol")
	assert.NotContains(t, stmt, "trade_date", "json documents key on symbol only")
	assert.Contains(t, stmt, "WHEN MATCHED THEN UPDATE")
	assert.Contains(t, stmt, "WHEN NOT MATCHED THEN INSERT")
}

func TestMergeStatement_CSVKeysOnSymbolAndDate(t *testing.T) {
	spec, err := sources.Get("TIME_SERIES_DAILY_ADJUSTED")
	require.NoError(t, err)

	stmt := testLoader().mergeStatement(spec)

	assert.Contains(t, stmt, "ON t.symbol = s.symbol AND t.trade_date = s.trade_date")
	assert.Contains(t, stmt, "t.adjusted_close = s.adjusted_close")
	assert.NotContains(t, stmt, "t.symbol = s.symbol,", "merge keys are never updated")
}

func TestCreateStatements(t *testing.T) {
	loader := testLoader()

	for _, spec := range sources.All() {
		stmts := loader.createStatements(spec)
		require.Len(t, stmts, 2, spec.TableName)
		assert.Contains(t, stmts[0], spec.TableName+"_STAGE")
		assert.Contains(t, stmts[1], spec.TableName+"_RAW")
		assert.Contains(t, stmts[1], "loaded_at")
		assert.NotContains(t, stmts[0], "loaded_at", "staging carries no load timestamp")

		if spec.Format == "json" {
			assert.Contains(t, stmts[0], "variant")
		} else {
			assert.Contains(t, stmts[0], "adjusted_close")
		}
	}
}

func TestTruncateStatement(t *testing.T) {
	spec, err := sources.Get("COMPANY_OVERVIEW")
	require.NoError(t, err)
	assert.Equal(t, "TRUNCATE TABLE MARKETDATA.RAW.COMPANY_OVERVIEW_STAGE", testLoader().truncateStatement(spec))
}
