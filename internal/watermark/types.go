package watermark

import "time"

// Eligibility gates whether automated extraction may attempt a symbol
// for a data source.
type Eligibility string

const (
	// EligibilityYes marks a record as eligible for processing.
	EligibilityYes Eligibility = "YES"
	// EligibilityNo marks a record as permanently out of scope for the
	// source (e.g. an ETF when the source is stock-only fundamentals).
	EligibilityNo Eligibility = "NO"
	// EligibilityDelisted marks a record whose symbol delisted after its
	// final data was captured. The transition is one-way; only an
	// operator may flip it back.
	EligibilityDelisted Eligibility = "DEL"
)

// Mode is the fetch granularity for incrementally-updatable sources.
type Mode string

const (
	// ModeCompact fetches only recent data points.
	ModeCompact Mode = "compact"
	// ModeFull fetches the complete available history.
	ModeFull Mode = "full"
)

// ModePolicy describes how a data source interprets staleness.
type ModePolicy int

const (
	// PolicyIncremental sources support compact/full fetches; staleness
	// decides which mode to use.
	PolicyIncremental ModePolicy = iota
	// PolicyFullOnly sources always fetch the complete history;
	// staleness instead excludes symbols whose data is still fresh.
	PolicyFullOnly
)

func (p ModePolicy) String() string {
	switch p {
	case PolicyIncremental:
		return "incremental"
	case PolicyFullOnly:
		return "full_only"
	default:
		return "unknown"
	}
}

// Record is one watermark row: the processing state of one
// (data source, symbol) pair.
type Record struct {
	TableName           string      `json:"table_name"`
	SymbolID            int64       `json:"symbol_id"`
	Symbol              string      `json:"symbol"`
	Exchange            string      `json:"exchange"`
	AssetType           string      `json:"asset_type"`
	Status              string      `json:"status"`
	APIEligible         Eligibility `json:"api_eligible"`
	IPODate             *time.Time  `json:"ipo_date,omitempty"`
	DelistingDate       *time.Time  `json:"delisting_date,omitempty"`
	FirstFiscalDate     *time.Time  `json:"first_fiscal_date,omitempty"`
	LastFiscalDate      *time.Time  `json:"last_fiscal_date,omitempty"`
	LastSuccessfulRun   *time.Time  `json:"last_successful_run,omitempty"`
	ConsecutiveFailures int         `json:"consecutive_failures"`
	CreatedAt           time.Time   `json:"created_at"`
	UpdatedAt           time.Time   `json:"updated_at"`
}

// NeverProcessed reports whether the record has no successful
// extraction on file.
func (r *Record) NeverProcessed() bool {
	return r.FirstFiscalDate == nil && r.LastFiscalDate == nil
}

// BaseSymbol is one row of the symbol reference universe, supplied by
// the symbol reference source at onboarding time. SymbolID is an opaque
// pre-computed identifier; this package never derives it.
type BaseSymbol struct {
	SymbolID      int64
	Symbol        string
	Exchange      string
	AssetType     string
	Status        string
	IPODate       *time.Time
	DelistingDate *time.Time
}

// EligibilityPredicate decides the initial api_eligible flag for a base
// symbol when a source is onboarded.
type EligibilityPredicate func(BaseSymbol) bool

// Candidate is one (symbol, mode) pair selected for the current run.
type Candidate struct {
	SymbolID int64
	Symbol   string
	Mode     Mode
}

// Options configures candidate selection for one run.
type Options struct {
	// Exchange restricts candidates to one exchange; empty means all.
	Exchange string
	// MaxCandidates caps the number of candidates; 0 means unbounded.
	MaxCandidates int
	// SkipRecentHours excludes symbols successfully processed within
	// this many hours; 0 means no time-based exclusion.
	SkipRecentHours int
	// StalenessDays is the source-specific threshold driving the
	// compact/full decision (incremental sources) or the freshness
	// exclusion (full-only sources). Must be positive.
	StalenessDays int
}

// Outcome is the per-symbol result of one extraction attempt.
type Outcome struct {
	SymbolID  int64
	Succeeded bool

	// Observed data-point date range for a successful extraction.
	// Both nil is valid: "no data found" is still a success.
	MinObservedDate *time.Time
	MaxObservedDate *time.Time

	// ErrorKind classifies a failure (e.g. "http", "parse", "api").
	// Informational only; it is not persisted.
	ErrorKind string
}

// Success builds a successful outcome with the observed date range.
func Success(symbolID int64, minDate, maxDate *time.Time) Outcome {
	return Outcome{SymbolID: symbolID, Succeeded: true, MinObservedDate: minDate, MaxObservedDate: maxDate}
}

// Failure builds a failed outcome.
func Failure(symbolID int64, errorKind string) Outcome {
	return Outcome{SymbolID: symbolID, ErrorKind: errorKind}
}

// FailedSymbol identifies one failed symbol and its error class.
type FailedSymbol struct {
	SymbolID  int64  `json:"symbol_id"`
	ErrorKind string `json:"error_kind,omitempty"`
}

// UpdateSummary describes what a bulk result application did, down to
// the individual symbol. Every symbol in the batch lands in exactly
// one of SucceededSymbols, FailedSymbols, or Missing; none is silently
// dropped. All three lists are sorted by symbol id.
type UpdateSummary struct {
	TableName        string         `json:"table_name"`
	Applied          int            `json:"applied"`
	Succeeded        int            `json:"succeeded"`
	Failed           int            `json:"failed"`
	SucceededSymbols []int64        `json:"succeeded_symbols,omitempty"`
	FailedSymbols    []FailedSymbol `json:"failed_symbols,omitempty"`
	Missing          []int64        `json:"missing,omitempty"`
	AppliedAt        time.Time      `json:"applied_at"`
}

// Date truncates a timestamp to midnight UTC. Fiscal dates carry no
// time component.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
