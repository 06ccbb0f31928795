package alphavantage

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/avflow/avflow/internal/symbols"
)

const dateLayout = "2006-01-02"

// softError is the shape Alpha Vantage uses to report problems inside
// a 200 response: throttling notes, invalid symbols, bad parameters.
type softError struct {
	Note         string `json:"Note"`
	Information  string `json:"Information"`
	ErrorMessage string `json:"Error Message"`
}

// checkSoftError rejects JSON bodies that are API error envelopes
// rather than data.
func checkSoftError(body []byte) error {
	var soft softError
	if err := json.Unmarshal(body, &soft); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	switch {
	case soft.Note != "":
		return fmt.Errorf("api throttled: %s", soft.Note)
	case soft.Information != "":
		return fmt.Errorf("api rejected request: %s", soft.Information)
	case soft.ErrorMessage != "":
		return fmt.Errorf("api error: %s", soft.ErrorMessage)
	}

	return nil
}

// observe widens the payload's fiscal-date range with one parsed date.
func observe(p *Payload, raw string) {
	d, err := time.Parse(dateLayout, strings.TrimSpace(raw))
	if err != nil {
		return // "None" and empty dates are common in fundamentals
	}

	p.Records++
	if p.MinFiscalDate == nil || d.Before(*p.MinFiscalDate) {
		min := d
		p.MinFiscalDate = &min
	}
	if p.MaxFiscalDate == nil || d.After(*p.MaxFiscalDate) {
		max := d
		p.MaxFiscalDate = &max
	}
}

// parseFiscalDates extracts the observed fiscal-date range from a
// fundamentals JSON document. Each source keeps its dates in a
// different spot.
func parseFiscalDates(tableName string, body []byte, p *Payload) error {
	switch tableName {
	case "BALANCE_SHEET", "CASH_FLOW", "INCOME_STATEMENT":
		var doc struct {
			AnnualReports []struct {
				FiscalDateEnding string `json:"fiscalDateEnding"`
			} `json:"annualReports"`
			QuarterlyReports []struct {
				FiscalDateEnding string `json:"fiscalDateEnding"`
			} `json:"quarterlyReports"`
		}
		if err := json.Unmarshal(body, &doc); err != nil {
			return fmt.Errorf("decode %s: %w", tableName, err)
		}
		for _, r := range doc.AnnualReports {
			observe(p, r.FiscalDateEnding)
		}
		for _, r := range doc.QuarterlyReports {
			observe(p, r.FiscalDateEnding)
		}

	case "COMPANY_OVERVIEW":
		var doc struct {
			LatestQuarter string `json:"LatestQuarter"`
		}
		if err := json.Unmarshal(body, &doc); err != nil {
			return fmt.Errorf("decode %s: %w", tableName, err)
		}
		observe(p, doc.LatestQuarter)

	case "INSIDER_TRANSACTIONS":
		var doc struct {
			Data []struct {
				TransactionDate string `json:"transaction_date"`
			} `json:"data"`
		}
		if err := json.Unmarshal(body, &doc); err != nil {
			return fmt.Errorf("decode %s: %w", tableName, err)
		}
		for _, r := range doc.Data {
			observe(p, r.TransactionDate)
		}

	default:
		return fmt.Errorf("no fiscal date parser for %s", tableName)
	}

	return nil
}

// parseSeriesDates extracts the timestamp range from a time-series CSV
// body. The API also reports errors for csv requests as a JSON body,
// so a leading brace means a soft error.
func parseSeriesDates(body []byte, p *Payload) error {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		if err := checkSoftError(trimmed); err != nil {
			return err
		}
		return fmt.Errorf("expected csv, got json body")
	}

	reader := csv.NewReader(bytes.NewReader(body))
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return fmt.Errorf("read csv header: %w", err)
	}
	if len(header) == 0 || !strings.EqualFold(header[0], "timestamp") {
		return fmt.Errorf("unexpected csv header %v", header)
	}

	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read csv row: %w", err)
		}
		if len(row) > 0 {
			observe(p, row[0])
		}
	}

	return nil
}

// parseListingCSV decodes a LISTING_STATUS snapshot.
// Columns: symbol,name,exchange,assetType,ipoDate,delistingDate,status
func parseListingCSV(body []byte) ([]symbols.Listing, error) {
	reader := csv.NewReader(bytes.NewReader(body))
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	if len(header) < 7 || !strings.EqualFold(header[0], "symbol") {
		return nil, fmt.Errorf("unexpected listing header %v", header)
	}

	var listings []symbols.Listing
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row: %w", err)
		}
		if len(row) < 7 || row[0] == "" {
			continue
		}

		listings = append(listings, symbols.Listing{
			Symbol:        row[0],
			Name:          row[1],
			Exchange:      row[2],
			AssetType:     row[3],
			IPODate:       parseOptionalDate(row[4]),
			DelistingDate: parseOptionalDate(row[5]),
			Status:        row[6],
		})
	}

	return listings, nil
}

func parseOptionalDate(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, "null") || strings.EqualFold(raw, "None") {
		return nil
	}
	d, err := time.Parse(dateLayout, raw)
	if err != nil {
		return nil
	}
	return &d
}
