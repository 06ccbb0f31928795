package watermark

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/avflow/avflow/pkg/logger"
)

// Store is the data-access boundary for watermark rows. It is the only
// component that mutates etl.watermarks; everything else goes through
// the three operations below.
type Store struct {
	db     *pgxpool.Pool
	logger *logger.Logger
}

// NewStore creates a new Store instance
func NewStore(db *pgxpool.Pool, log *logger.Logger) *Store {
	return &Store{
		db:     db,
		logger: log.WithField("module", "watermark"),
	}
}

const schemaSQL = `
CREATE SCHEMA IF NOT EXISTS etl;

CREATE TABLE IF NOT EXISTS etl.watermarks (
	table_name           text        NOT NULL,
	symbol_id            bigint      NOT NULL,
	symbol               text        NOT NULL,
	exchange             text        NOT NULL DEFAULT '',
	asset_type           text        NOT NULL DEFAULT '',
	status               text        NOT NULL DEFAULT '',
	api_eligible         text        NOT NULL DEFAULT 'YES'
		CHECK (api_eligible IN ('YES', 'NO', 'DEL')),
	ipo_date             date,
	delisting_date       date,
	first_fiscal_date    date,
	last_fiscal_date     date,
	last_successful_run  timestamptz,
	consecutive_failures integer     NOT NULL DEFAULT 0,
	created_at           timestamptz NOT NULL DEFAULT now(),
	updated_at           timestamptz NOT NULL DEFAULT now(),
	PRIMARY KEY (table_name, symbol_id)
);

CREATE INDEX IF NOT EXISTS idx_watermarks_eligible
	ON etl.watermarks (table_name, api_eligible);
`

// EnsureSchema creates the watermark table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaSQL); err != nil {
		return storageError("ensure schema", err)
	}
	return nil
}

// InitializeSource creates one watermark record per base symbol for
// tableName, with api_eligible computed by the predicate. Re-running is
// safe: existing progress (fiscal dates, last run, failure count) and
// the current api_eligible flag survive; only descriptive fields are
// refreshed from the base records. Preserving api_eligible keeps the
// DEL transition one-way across re-onboarding.
func (s *Store) InitializeSource(ctx context.Context, tableName string, base []BaseSymbol, pred EligibilityPredicate) (int, error) {
	if tableName == "" {
		return 0, configErrorf("table name is required")
	}
	if pred == nil {
		return 0, configErrorf("eligibility predicate is required")
	}
	if len(base) == 0 {
		return 0, nil
	}

	rows := make([][]interface{}, 0, len(base))
	for _, b := range base {
		eligible := EligibilityNo
		if pred(b) {
			eligible = EligibilityYes
		}
		rows = append(rows, []interface{}{
			b.SymbolID, b.Symbol, b.Exchange, b.AssetType, b.Status,
			string(eligible), b.IPODate, b.DelistingDate,
		})
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, storageError("begin transaction", err)
	}
	defer tx.Rollback(ctx)

	// Stage the universe, then merge in a single statement. Row-by-row
	// upserts are too slow for a full symbol universe.
	_, err = tx.Exec(ctx, `
		CREATE TEMP TABLE wm_onboard_stage (
			symbol_id      bigint PRIMARY KEY,
			symbol         text NOT NULL,
			exchange       text NOT NULL,
			asset_type     text NOT NULL,
			status         text NOT NULL,
			api_eligible   text NOT NULL,
			ipo_date       date,
			delisting_date date
		) ON COMMIT DROP
	`)
	if err != nil {
		return 0, storageError("create staging table", err)
	}

	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"wm_onboard_stage"},
		[]string{"symbol_id", "symbol", "exchange", "asset_type", "status", "api_eligible", "ipo_date", "delisting_date"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return 0, storageError("copy to staging table", err)
	}

	tag, err := tx.Exec(ctx, `
		INSERT INTO etl.watermarks (
			table_name, symbol_id, symbol, exchange, asset_type, status,
			api_eligible, ipo_date, delisting_date, created_at, updated_at
		)
		SELECT $1, s.symbol_id, s.symbol, s.exchange, s.asset_type, s.status,
		       s.api_eligible, s.ipo_date, s.delisting_date, now(), now()
		FROM wm_onboard_stage s
		ON CONFLICT (table_name, symbol_id) DO UPDATE SET
			symbol         = EXCLUDED.symbol,
			exchange       = EXCLUDED.exchange,
			asset_type     = EXCLUDED.asset_type,
			status         = EXCLUDED.status,
			ipo_date       = EXCLUDED.ipo_date,
			delisting_date = EXCLUDED.delisting_date,
			updated_at     = now()
	`, tableName)
	if err != nil {
		return 0, storageError("merge staging table", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, storageError("commit transaction", err)
	}

	count := int(tag.RowsAffected())
	s.logger.WithFields(map[string]interface{}{
		"table":   tableName,
		"symbols": count,
	}).Info("Source initialized")

	return count, nil
}

// QueryFilter restricts a watermark scan.
type QueryFilter struct {
	Eligible Eligibility // empty means any
	Exchange string      // empty means any
}

// Query returns watermark records for tableName matching the filter,
// ordered by symbol for reproducible batches.
func (s *Store) Query(ctx context.Context, tableName string, filter QueryFilter) ([]Record, error) {
	query := `
		SELECT table_name, symbol_id, symbol, exchange, asset_type, status,
		       api_eligible, ipo_date, delisting_date,
		       first_fiscal_date, last_fiscal_date, last_successful_run,
		       consecutive_failures, created_at, updated_at
		FROM etl.watermarks
		WHERE table_name = $1
	`
	args := []interface{}{tableName}

	if filter.Eligible != "" {
		args = append(args, string(filter.Eligible))
		query += fmt.Sprintf(" AND api_eligible = $%d", len(args))
	}
	if filter.Exchange != "" {
		args = append(args, filter.Exchange)
		query += fmt.Sprintf(" AND exchange = $%d", len(args))
	}

	query += " ORDER BY symbol, symbol_id"

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, storageError("query watermarks", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		var eligible string
		if err := rows.Scan(
			&r.TableName, &r.SymbolID, &r.Symbol, &r.Exchange, &r.AssetType, &r.Status,
			&eligible, &r.IPODate, &r.DelistingDate,
			&r.FirstFiscalDate, &r.LastFiscalDate, &r.LastSuccessfulRun,
			&r.ConsecutiveFailures, &r.CreatedAt, &r.UpdatedAt,
		); err != nil {
			return nil, storageError("scan watermark", err)
		}
		r.APIEligible = Eligibility(eligible)
		records = append(records, r)
	}

	if err := rows.Err(); err != nil {
		return nil, storageError("iterate watermarks", err)
	}

	return records, nil
}

// Get returns a single watermark record.
func (s *Store) Get(ctx context.Context, tableName string, symbolID int64) (*Record, error) {
	query := `
		SELECT table_name, symbol_id, symbol, exchange, asset_type, status,
		       api_eligible, ipo_date, delisting_date,
		       first_fiscal_date, last_fiscal_date, last_successful_run,
		       consecutive_failures, created_at, updated_at
		FROM etl.watermarks
		WHERE table_name = $1 AND symbol_id = $2
	`

	var r Record
	var eligible string
	err := s.db.QueryRow(ctx, query, tableName, symbolID).Scan(
		&r.TableName, &r.SymbolID, &r.Symbol, &r.Exchange, &r.AssetType, &r.Status,
		&eligible, &r.IPODate, &r.DelistingDate,
		&r.FirstFiscalDate, &r.LastFiscalDate, &r.LastSuccessfulRun,
		&r.ConsecutiveFailures, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrWatermarkNotFound
		}
		return nil, storageError("get watermark", err)
	}
	r.APIEligible = Eligibility(eligible)

	return &r, nil
}

// BulkApply persists a batch of extraction outcomes in one storage
// round-trip: outcomes are staged with CopyFrom, then a single UPDATE
// merges them into the watermark table. Returns the symbol ids that
// matched an existing record; callers diff against their input to find
// uninitialized symbols.
//
// The success arm uses COALESCE/GREATEST rather than raw overwrite, so
// replaying the same batch with the same "now" is idempotent and
// last_fiscal_date never regresses.
func (s *Store) BulkApply(ctx context.Context, tableName string, outcomes []Outcome, now time.Time) ([]int64, error) {
	if len(outcomes) == 0 {
		return nil, nil
	}

	rows := make([][]interface{}, 0, len(outcomes))
	for _, o := range outcomes {
		rows = append(rows, []interface{}{
			o.SymbolID, o.Succeeded, o.MinObservedDate, o.MaxObservedDate,
		})
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, storageError("begin transaction", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		CREATE TEMP TABLE wm_result_stage (
			symbol_id bigint PRIMARY KEY,
			succeeded boolean NOT NULL,
			min_date  date,
			max_date  date
		) ON COMMIT DROP
	`)
	if err != nil {
		return nil, storageError("create staging table", err)
	}

	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"wm_result_stage"},
		[]string{"symbol_id", "succeeded", "min_date", "max_date"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return nil, storageError("copy to staging table", err)
	}

	// GREATEST and COALESCE ignore NULL operands in Postgres, which is
	// exactly the merge semantics needed here. The delisting check runs
	// opportunistically on every successful update; DEL is never
	// reverted by this statement.
	result, err := tx.Query(ctx, `
		UPDATE etl.watermarks w SET
			first_fiscal_date = CASE WHEN s.succeeded
				THEN COALESCE(w.first_fiscal_date, s.min_date)
				ELSE w.first_fiscal_date END,
			last_fiscal_date = CASE WHEN s.succeeded
				THEN GREATEST(w.last_fiscal_date, s.max_date)
				ELSE w.last_fiscal_date END,
			last_successful_run = CASE WHEN s.succeeded
				THEN $2
				ELSE w.last_successful_run END,
			consecutive_failures = CASE WHEN s.succeeded
				THEN 0
				ELSE w.consecutive_failures + 1 END,
			api_eligible = CASE WHEN s.succeeded
					AND w.api_eligible = 'YES'
					AND w.delisting_date IS NOT NULL
					AND w.delisting_date <= $3::date
				THEN 'DEL'
				ELSE w.api_eligible END,
			updated_at = $2
		FROM wm_result_stage s
		WHERE w.table_name = $1 AND w.symbol_id = s.symbol_id
		RETURNING w.symbol_id
	`, tableName, now, now.UTC())
	if err != nil {
		return nil, storageError("merge staging table", err)
	}

	var updated []int64
	for result.Next() {
		var id int64
		if err := result.Scan(&id); err != nil {
			result.Close()
			return nil, storageError("scan updated id", err)
		}
		updated = append(updated, id)
	}
	if err := result.Err(); err != nil {
		return nil, storageError("iterate updated ids", err)
	}
	result.Close()

	if err := tx.Commit(ctx); err != nil {
		return nil, storageError("commit transaction", err)
	}

	return updated, nil
}

// SourceStats summarizes the watermark state of one data source.
type SourceStats struct {
	TableName      string     `json:"table_name"`
	Total          int        `json:"total"`
	Eligible       int        `json:"eligible"`
	Ineligible     int        `json:"ineligible"`
	Delisted       int        `json:"delisted"`
	NeverProcessed int        `json:"never_processed"`
	Failing        int        `json:"failing"`
	OldestRun      *time.Time `json:"oldest_run,omitempty"`
	NewestRun      *time.Time `json:"newest_run,omitempty"`
}

// Stats returns aggregate watermark counts for tableName.
func (s *Store) Stats(ctx context.Context, tableName string) (*SourceStats, error) {
	query := `
		SELECT
			count(*),
			count(*) FILTER (WHERE api_eligible = 'YES'),
			count(*) FILTER (WHERE api_eligible = 'NO'),
			count(*) FILTER (WHERE api_eligible = 'DEL'),
			count(*) FILTER (WHERE api_eligible = 'YES' AND last_successful_run IS NULL),
			count(*) FILTER (WHERE api_eligible = 'YES' AND consecutive_failures > 0),
			min(last_successful_run),
			max(last_successful_run)
		FROM etl.watermarks
		WHERE table_name = $1
	`

	stats := &SourceStats{TableName: tableName}
	err := s.db.QueryRow(ctx, query, tableName).Scan(
		&stats.Total, &stats.Eligible, &stats.Ineligible, &stats.Delisted,
		&stats.NeverProcessed, &stats.Failing,
		&stats.OldestRun, &stats.NewestRun,
	)
	if err != nil {
		return nil, storageError("query stats", err)
	}

	return stats, nil
}

// Laggards returns the eligible records with the oldest watermarks,
// never-processed symbols first.
func (s *Store) Laggards(ctx context.Context, tableName string, limit int) ([]Record, error) {
	query := `
		SELECT table_name, symbol_id, symbol, exchange, asset_type, status,
		       api_eligible, ipo_date, delisting_date,
		       first_fiscal_date, last_fiscal_date, last_successful_run,
		       consecutive_failures, created_at, updated_at
		FROM etl.watermarks
		WHERE table_name = $1 AND api_eligible = 'YES'
		ORDER BY last_fiscal_date ASC NULLS FIRST, symbol
		LIMIT $2
	`

	rows, err := s.db.Query(ctx, query, tableName, limit)
	if err != nil {
		return nil, storageError("query laggards", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		var eligible string
		if err := rows.Scan(
			&r.TableName, &r.SymbolID, &r.Symbol, &r.Exchange, &r.AssetType, &r.Status,
			&eligible, &r.IPODate, &r.DelistingDate,
			&r.FirstFiscalDate, &r.LastFiscalDate, &r.LastSuccessfulRun,
			&r.ConsecutiveFailures, &r.CreatedAt, &r.UpdatedAt,
		); err != nil {
			return nil, storageError("scan laggard", err)
		}
		r.APIEligible = Eligibility(eligible)
		records = append(records, r)
	}

	if err := rows.Err(); err != nil {
		return nil, storageError("iterate laggards", err)
	}

	return records, nil
}
