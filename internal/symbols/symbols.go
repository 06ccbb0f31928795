// Package symbols owns the symbol reference universe. The watermark
// engine treats symbol ids as opaque pre-computed values; this package
// is the one place that derives them.
package symbols

import (
	"context"
	"hash/fnv"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/avflow/avflow/internal/watermark"
	"github.com/avflow/avflow/pkg/logger"
)

// ID derives the stable numeric identifier for a ticker. FNV-1a 64,
// masked to a non-negative int64. This is a cross-system join key: the
// warehouse computes the same value, so the algorithm must never
// change.
func ID(symbol string) int64 {
	h := fnv.New64a()
	h.Write([]byte(symbol))
	return int64(h.Sum64() & 0x7fffffffffffffff)
}

// Listing is one row of the exchange listing snapshot.
type Listing struct {
	Symbol        string
	Name          string
	Exchange      string
	AssetType     string
	Status        string // Active or Delisted
	IPODate       *time.Time
	DelistingDate *time.Time
}

// Universe persists the symbol reference list in Postgres and serves
// base records to watermark onboarding.
type Universe struct {
	db     *pgxpool.Pool
	logger *logger.Logger
}

// NewUniverse creates a new Universe instance
func NewUniverse(db *pgxpool.Pool, log *logger.Logger) *Universe {
	return &Universe{
		db:     db,
		logger: log.WithField("module", "symbols"),
	}
}

const schemaSQL = `
CREATE SCHEMA IF NOT EXISTS etl;

CREATE TABLE IF NOT EXISTS etl.symbols (
	symbol_id      bigint PRIMARY KEY,
	symbol         text        NOT NULL UNIQUE,
	name           text        NOT NULL DEFAULT '',
	exchange       text        NOT NULL DEFAULT '',
	asset_type     text        NOT NULL DEFAULT '',
	status         text        NOT NULL DEFAULT '',
	ipo_date       date,
	delisting_date date,
	created_at     timestamptz NOT NULL DEFAULT now(),
	updated_at     timestamptz NOT NULL DEFAULT now()
);
`

// EnsureSchema creates the symbols table if it does not exist.
func (u *Universe) EnsureSchema(ctx context.Context) error {
	if _, err := u.db.Exec(ctx, schemaSQL); err != nil {
		return err
	}
	return nil
}

// dedupe collapses a listing snapshot to one row per symbol id. The
// concatenated active+delisted snapshots repeat tickers: a relisted
// symbol appears in both, and a reused ticker carries one delisting
// row per round trip. Active wins over delisted; among delisted rows
// the latest delisting date wins. Output is sorted by symbol.
func dedupe(listings []Listing) []Listing {
	best := make(map[int64]Listing, len(listings))
	for _, l := range listings {
		id := ID(l.Symbol)
		current, ok := best[id]
		if !ok || supersedes(l, current) {
			best[id] = l
		}
	}

	out := make([]Listing, 0, len(best))
	for _, l := range best {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })

	return out
}

// supersedes reports whether candidate should replace current for the
// same symbol id.
func supersedes(candidate, current Listing) bool {
	candidateActive := strings.EqualFold(candidate.Status, "Active")
	currentActive := strings.EqualFold(current.Status, "Active")
	if candidateActive != currentActive {
		return candidateActive
	}
	if candidate.DelistingDate == nil {
		return false
	}
	if current.DelistingDate == nil {
		return true
	}
	return candidate.DelistingDate.After(*current.DelistingDate)
}

// Sync upserts a listing snapshot into etl.symbols. Staged via
// CopyFrom and merged in one statement; a full universe is ~20k rows.
// The snapshot is deduplicated first: the staging table keys on
// symbol_id, and the raw snapshot repeats tickers.
func (u *Universe) Sync(ctx context.Context, listings []Listing) (int, error) {
	listings = dedupe(listings)
	if len(listings) == 0 {
		return 0, nil
	}

	rows := make([][]interface{}, 0, len(listings))
	for _, l := range listings {
		rows = append(rows, []interface{}{
			ID(l.Symbol), l.Symbol, l.Name, l.Exchange, l.AssetType, l.Status,
			l.IPODate, l.DelistingDate,
		})
	}

	tx, err := u.db.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		CREATE TEMP TABLE symbols_stage (
			symbol_id      bigint PRIMARY KEY,
			symbol         text NOT NULL,
			name           text NOT NULL,
			exchange       text NOT NULL,
			asset_type     text NOT NULL,
			status         text NOT NULL,
			ipo_date       date,
			delisting_date date
		) ON COMMIT DROP
	`)
	if err != nil {
		return 0, err
	}

	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"symbols_stage"},
		[]string{"symbol_id", "symbol", "name", "exchange", "asset_type", "status", "ipo_date", "delisting_date"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return 0, err
	}

	tag, err := tx.Exec(ctx, `
		INSERT INTO etl.symbols (
			symbol_id, symbol, name, exchange, asset_type, status,
			ipo_date, delisting_date, created_at, updated_at
		)
		SELECT s.symbol_id, s.symbol, s.name, s.exchange, s.asset_type, s.status,
		       s.ipo_date, s.delisting_date, now(), now()
		FROM symbols_stage s
		ON CONFLICT (symbol_id) DO UPDATE SET
			symbol         = EXCLUDED.symbol,
			name           = EXCLUDED.name,
			exchange       = EXCLUDED.exchange,
			asset_type     = EXCLUDED.asset_type,
			status         = EXCLUDED.status,
			ipo_date       = EXCLUDED.ipo_date,
			delisting_date = EXCLUDED.delisting_date,
			updated_at     = now()
	`)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}

	count := int(tag.RowsAffected())
	u.logger.WithField("symbols", count).Info("Symbol universe synced")

	return count, nil
}

// Base returns the full universe as watermark base records.
func (u *Universe) Base(ctx context.Context) ([]watermark.BaseSymbol, error) {
	rows, err := u.db.Query(ctx, `
		SELECT symbol_id, symbol, exchange, asset_type, status, ipo_date, delisting_date
		FROM etl.symbols
		ORDER BY symbol
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var base []watermark.BaseSymbol
	for rows.Next() {
		var b watermark.BaseSymbol
		if err := rows.Scan(&b.SymbolID, &b.Symbol, &b.Exchange, &b.AssetType, &b.Status, &b.IPODate, &b.DelistingDate); err != nil {
			return nil, err
		}
		base = append(base, b)
	}

	return base, rows.Err()
}
