package warehouse

import (
	"fmt"
	"strings"
	"time"

	"github.com/avflow/avflow/internal/sources"
)

// Object names follow {database}.{schema}.{TABLE}_{suffix}. The
// staging table is truncated and reloaded per partition; the MERGE
// keys on (symbol, fiscal partition) so replays are idempotent.

func (l *Loader) qualified(name string) string {
	return fmt.Sprintf("%s.%s.%s", l.database, l.schema, name)
}

func (l *Loader) stagingTable(spec sources.Spec) string {
	return l.qualified(spec.TableName + "_STAGE")
}

func (l *Loader) rawTable(spec sources.Spec) string {
	return l.qualified(spec.TableName + "_RAW")
}

// createStatements returns the DDL for one source's staging and raw
// tables. JSON sources land a VARIANT document per symbol; the CSV
// time series lands typed rows.
func (l *Loader) createStatements(spec sources.Spec) []string {
	if spec.Format == "csv" {
		columns := `
	symbol            varchar NOT NULL,
	trade_date        date NOT NULL,
	open              double,
	high              double,
	low               double,
	close             double,
	adjusted_close    double,
	volume            number,
	dividend_amount   double,
	split_coefficient double,
	extracted_date    date NOT NULL,
	source_file       varchar`
		return []string{
			fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s\n)", l.stagingTable(spec), columns),
			fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s,\n\tloaded_at timestamp_tz DEFAULT current_timestamp()\n)", l.rawTable(spec), columns),
		}
	}

	columns := `
	symbol         varchar NOT NULL,
	payload        variant NOT NULL,
	extracted_date date NOT NULL,
	source_file    varchar`
	return []string{
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s\n)", l.stagingTable(spec), columns),
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s,\n\tloaded_at timestamp_tz DEFAULT current_timestamp()\n)", l.rawTable(spec), columns),
	}
}

// copyStatement loads one landing partition into the staging table.
// The symbol comes out of the file name, the partition date out of the
// path, both via METADATA$FILENAME. Only the final extension is
// stripped from the file name; dotted tickers like BRK.B keep their
// dots.
func (l *Loader) copyStatement(spec sources.Spec, partition time.Time) string {
	date := partition.UTC().Format("2006-01-02")
	location := fmt.Sprintf("@%s/%s/%s/", l.stage, spec.TableName, date)

	if spec.Format == "csv" {
		return fmt.Sprintf(`COPY INTO %s (symbol, trade_date, open, high, low, close, adjusted_close, volume, dividend_amount, split_coefficient, extracted_date, source_file)
FROM (
	SELECT regexp_replace(split_part(metadata$filename, '/', -1), '\\.[^.]+$', ''),
	       $1::date, $2, $3, $4, $5, $6, $7, $8, $9,
	       '%s'::date, metadata$filename
	FROM %s
)
FILE_FORMAT = (TYPE = 'CSV' SKIP_HEADER = 1)
ON_ERROR = 'ABORT_STATEMENT'`, l.stagingTable(spec), date, location)
	}

	return fmt.Sprintf(`COPY INTO %s (symbol, payload, extracted_date, source_file)
FROM (
	SELECT regexp_replace(split_part(metadata$filename, '/', -1), '\\.[^.]+$', ''),
	       $1,
	       '%s'::date, metadata$filename
	FROM %s
)
FILE_FORMAT = (TYPE = 'JSON')
ON_ERROR = 'ABORT_STATEMENT'`, l.stagingTable(spec), date, location)
}

// mergeStatement upserts the staged partition into the raw table.
func (l *Loader) mergeStatement(spec sources.Spec) string {
	if spec.Format == "csv" {
		cols := []string{"symbol", "trade_date", "open", "high", "low", "close", "adjusted_close", "volume", "dividend_amount", "split_coefficient", "extracted_date", "source_file"}
		updates := make([]string, 0, len(cols))
		inserts := make([]string, 0, len(cols))
		for _, c := range cols {
			if c != "symbol" && c != "trade_date" {
				updates = append(updates, fmt.Sprintf("t.%s = s.%s", c, c))
			}
			inserts = append(inserts, "s."+c)
		}
		return fmt.Sprintf(`MERGE INTO %s t
USING %s s
ON t.symbol = s.symbol AND t.trade_date = s.trade_date
WHEN MATCHED THEN UPDATE SET %s, t.loaded_at = current_timestamp()
WHEN NOT MATCHED THEN INSERT (%s, loaded_at) VALUES (%s, current_timestamp())`,
			l.rawTable(spec), l.stagingTable(spec),
			strings.Join(updates, ", "),
			strings.Join(cols, ", "), strings.Join(inserts, ", "))
	}

	// One document per symbol; a newer extraction replaces the older one.
	return fmt.Sprintf(`MERGE INTO %s t
USING %s s
ON t.symbol = s.symbol
WHEN MATCHED THEN UPDATE SET t.payload = s.payload, t.extracted_date = s.extracted_date, t.source_file = s.source_file, t.loaded_at = current_timestamp()
WHEN NOT MATCHED THEN INSERT (symbol, payload, extracted_date, source_file, loaded_at) VALUES (s.symbol, s.payload, s.extracted_date, s.source_file, current_timestamp())`,
		l.rawTable(spec), l.stagingTable(spec))
}

func (l *Loader) truncateStatement(spec sources.Spec) string {
	return "TRUNCATE TABLE " + l.stagingTable(spec)
}
