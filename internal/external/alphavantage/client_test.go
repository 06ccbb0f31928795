package alphavantage

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avflow/avflow/internal/sources"
	"github.com/avflow/avflow/internal/watermark"
	"github.com/avflow/avflow/pkg/config"
	"github.com/avflow/avflow/pkg/logger"
)

func newTestClient(t *testing.T, serverURL string) *Client {
	t.Helper()
	cfg := &config.Config{
		Env:      "test",
		LogLevel: "error",
	}
	cfg.AlphaVantage.APIKey = "testkey"
	cfg.AlphaVantage.BaseURL = serverURL
	cfg.AlphaVantage.RequestsPerMinute = 6000 // no limiter stalls in tests
	return NewClient(cfg, logger.New(cfg))
}

const balanceSheetBody = `{
	"symbol": "IBM",
	"annualReports": [
		{"fiscalDateEnding": "2024-12-31", "totalAssets": "135241000000"},
		{"fiscalDateEnding": "2023-12-31", "totalAssets": "132213000000"}
	],
	"quarterlyReports": [
		{"fiscalDateEnding": "2025-06-30", "totalAssets": "136000000000"}
	]
}`

func TestFetch_BalanceSheet(t *testing.T) {
	var gotQuery url.Values
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		w.Write([]byte(balanceSheetBody))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	spec, err := sources.Get("BALANCE_SHEET")
	require.NoError(t, err)

	payload, err := client.Fetch(context.Background(), spec, "IBM", watermark.ModeFull)
	require.NoError(t, err)

	assert.Equal(t, "BALANCE_SHEET", gotQuery.Get("function"))
	assert.Equal(t, "IBM", gotQuery.Get("symbol"))
	assert.Equal(t, "testkey", gotQuery.Get("apikey"))
	assert.Empty(t, gotQuery.Get("outputsize"), "fundamentals have no outputsize")

	assert.Equal(t, "json", payload.Format)
	assert.Equal(t, 3, payload.Records)
	require.NotNil(t, payload.MinFiscalDate)
	require.NotNil(t, payload.MaxFiscalDate)
	assert.Equal(t, "2023-12-31", payload.MinFiscalDate.Format("2006-01-02"))
	assert.Equal(t, "2025-06-30", payload.MaxFiscalDate.Format("2006-01-02"))
}

func TestFetch_TimeSeriesOutputsize(t *testing.T) {
	csvBody := "timestamp,open,high,low,close,adjusted_close,volume,dividend_amount,split_coefficient\n" +
		"2025-08-22,100,101,99,100.5,100.5,1000000,0.0,1.0\n" +
		"2025-08-21,99,100,98,100,100,900000,0.0,1.0\n"

	var gotQuery url.Values
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		w.Write([]byte(csvBody))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	spec, err := sources.Get("TIME_SERIES_DAILY_ADJUSTED")
	require.NoError(t, err)

	payload, err := client.Fetch(context.Background(), spec, "IBM", watermark.ModeCompact)
	require.NoError(t, err)
	assert.Equal(t, "compact", gotQuery.Get("outputsize"))
	assert.Equal(t, "csv", gotQuery.Get("datatype"))

	assert.Equal(t, 2, payload.Records)
	assert.Equal(t, "2025-08-21", payload.MinFiscalDate.Format("2006-01-02"))
	assert.Equal(t, "2025-08-22", payload.MaxFiscalDate.Format("2006-01-02"))

	_, err = client.Fetch(context.Background(), spec, "IBM", watermark.ModeFull)
	require.NoError(t, err)
	assert.Equal(t, "full", gotQuery.Get("outputsize"))
}

func TestFetch_SoftErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"throttle note", `{"Note": "Thank you for using Alpha Vantage! Our standard API rate limit is 25 requests per day."}`},
		{"information", `{"Information": "Invalid inputs."}`},
		{"error message", `{"Error Message": "Invalid API call."}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := newTestClient(t, server.URL)
			spec, err := sources.Get("CASH_FLOW")
			require.NoError(t, err)

			_, err = client.Fetch(context.Background(), spec, "IBM", watermark.ModeFull)
			require.Error(t, err, "a 200 response carrying an API error is still a failure")
		})
	}
}

func TestFetch_TimeSeriesSoftErrorAsJSON(t *testing.T) {
	// The csv endpoints report throttling as a JSON body too.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Note": "rate limited"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	spec, err := sources.Get("TIME_SERIES_DAILY_ADJUSTED")
	require.NoError(t, err)

	_, err = client.Fetch(context.Background(), spec, "IBM", watermark.ModeCompact)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "throttled")
}

func TestFetch_EmptyFundamentals(t *testing.T) {
	// ETFs and fresh listings come back as an empty object; that is a
	// success with no observed dates.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	spec, err := sources.Get("INCOME_STATEMENT")
	require.NoError(t, err)

	payload, err := client.Fetch(context.Background(), spec, "SPY", watermark.ModeFull)
	require.NoError(t, err)
	assert.Zero(t, payload.Records)
	assert.Nil(t, payload.MinFiscalDate)
	assert.Nil(t, payload.MaxFiscalDate)
}

func TestFetch_InsiderTransactions(t *testing.T) {
	body := `{"data": [
		{"transaction_date": "2025-07-01", "ticker": "IBM"},
		{"transaction_date": "2025-05-15", "ticker": "IBM"},
		{"transaction_date": "", "ticker": "IBM"}
	]}`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	spec, err := sources.Get("INSIDER_TRANSACTIONS")
	require.NoError(t, err)

	payload, err := client.Fetch(context.Background(), spec, "IBM", watermark.ModeFull)
	require.NoError(t, err)
	assert.Equal(t, 2, payload.Records, "undated rows are skipped")
	assert.Equal(t, "2025-05-15", payload.MinFiscalDate.Format("2006-01-02"))
	assert.Equal(t, "2025-07-01", payload.MaxFiscalDate.Format("2006-01-02"))
}

func TestListingStatus(t *testing.T) {
	body := "symbol,name,exchange,assetType,ipoDate,delistingDate,status\n" +
		"IBM,International Business Machines Corp,NYSE,Stock,1962-01-02,null,Active\n" +
		"SPY,SPDR S&P 500 ETF Trust,NYSE ARCA,ETF,1993-01-29,null,Active\n" +
		"TWTR,Twitter Inc,NYSE,Stock,2013-11-07,2022-10-28,Delisted\n"

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "LISTING_STATUS", r.URL.Query().Get("function"))
		w.Write([]byte(body))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	listings, err := client.ListingStatus(context.Background(), "active")
	require.NoError(t, err)
	require.Len(t, listings, 3)

	assert.Equal(t, "IBM", listings[0].Symbol)
	assert.Equal(t, "Stock", listings[0].AssetType)
	assert.Nil(t, listings[0].DelistingDate)
	require.NotNil(t, listings[0].IPODate)

	require.NotNil(t, listings[2].DelistingDate)
	assert.Equal(t, "2022-10-28", listings[2].DelistingDate.Format("2006-01-02"))
	assert.Equal(t, "Delisted", listings[2].Status)
}

func TestFetch_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	client.http.DisableRetry() // no backoff stalls in tests

	spec, err := sources.Get("BALANCE_SHEET")
	require.NoError(t, err)

	_, err = client.Fetch(context.Background(), spec, "IBM", watermark.ModeFull)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}