// Package sources is the registry of Alpha Vantage data sources the
// pipeline extracts. Each source binds a watermark table name to its
// API function, staleness threshold, mode semantics, and onboarding
// eligibility rule.
package sources

import (
	"fmt"
	"sort"
	"strings"

	"github.com/avflow/avflow/internal/watermark"
)

// Spec describes one data source.
type Spec struct {
	// TableName identifies the source in the watermark store and the
	// warehouse (e.g. "BALANCE_SHEET").
	TableName string
	// Function is the Alpha Vantage API function parameter.
	Function string
	// Policy controls how staleness is interpreted during selection.
	Policy watermark.ModePolicy
	// StalenessDays is the default staleness threshold for selection.
	StalenessDays int
	// Format is the landed payload format ("csv" or "json").
	Format string
	// Eligible computes the initial api_eligible flag at onboarding.
	Eligible watermark.EligibilityPredicate
}

// stockActive restricts fundamentals-style sources to active common
// stock; ETFs and already-delisted symbols never qualify.
func stockActive(b watermark.BaseSymbol) bool {
	return strings.EqualFold(b.AssetType, "Stock") && strings.EqualFold(b.Status, "Active")
}

// anyListed accepts every symbol in the reference universe.
func anyListed(watermark.BaseSymbol) bool {
	return true
}

var registry = map[string]Spec{
	"TIME_SERIES_DAILY_ADJUSTED": {
		TableName:     "TIME_SERIES_DAILY_ADJUSTED",
		Function:      "TIME_SERIES_DAILY_ADJUSTED",
		Policy:        watermark.PolicyIncremental,
		StalenessDays: 5,
		Format:        "csv",
		Eligible:      anyListed,
	},
	"BALANCE_SHEET": {
		TableName:     "BALANCE_SHEET",
		Function:      "BALANCE_SHEET",
		Policy:        watermark.PolicyFullOnly,
		StalenessDays: 135,
		Format:        "json",
		Eligible:      stockActive,
	},
	"CASH_FLOW": {
		TableName:     "CASH_FLOW",
		Function:      "CASH_FLOW",
		Policy:        watermark.PolicyFullOnly,
		StalenessDays: 135,
		Format:        "json",
		Eligible:      stockActive,
	},
	"INCOME_STATEMENT": {
		TableName:     "INCOME_STATEMENT",
		Function:      "INCOME_STATEMENT",
		Policy:        watermark.PolicyFullOnly,
		StalenessDays: 135,
		Format:        "json",
		Eligible:      stockActive,
	},
	"COMPANY_OVERVIEW": {
		TableName:     "COMPANY_OVERVIEW",
		Function:      "OVERVIEW",
		Policy:        watermark.PolicyFullOnly,
		StalenessDays: 365,
		Format:        "json",
		Eligible:      stockActive,
	},
	"INSIDER_TRANSACTIONS": {
		TableName:     "INSIDER_TRANSACTIONS",
		Function:      "INSIDER_TRANSACTIONS",
		Policy:        watermark.PolicyFullOnly,
		StalenessDays: 90,
		Format:        "json",
		Eligible:      stockActive,
	},
}

// Get returns the spec for a table name. Unknown names are a
// configuration problem, not a transient failure.
func Get(tableName string) (Spec, error) {
	spec, ok := registry[strings.ToUpper(tableName)]
	if !ok {
		return Spec{}, &watermark.ConfigurationError{
			Reason: fmt.Sprintf("unknown data source %q (valid: %s)", tableName, strings.Join(Names(), ", ")),
		}
	}
	return spec, nil
}

// Names returns all registered table names, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns all registered specs, sorted by table name.
func All() []Spec {
	specs := make([]Spec, 0, len(registry))
	for _, name := range Names() {
		specs = append(specs, registry[name])
	}
	return specs
}

// Fundamentals returns the sources covered by the weekly fundamentals
// schedule (everything except the daily time series).
func Fundamentals() []Spec {
	var specs []Spec
	for _, s := range All() {
		if s.Policy == watermark.PolicyFullOnly {
			specs = append(specs, s)
		}
	}
	return specs
}
