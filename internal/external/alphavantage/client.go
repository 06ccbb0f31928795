// Package alphavantage wraps the Alpha Vantage HTTP API for the
// sources the pipeline extracts. Rate limiting happens here: a local
// per-minute limiter always applies, and when Redis is enabled a
// shared daily quota is enforced across processes.
package alphavantage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/avflow/avflow/internal/sources"
	"github.com/avflow/avflow/internal/symbols"
	"github.com/avflow/avflow/internal/watermark"
	"github.com/avflow/avflow/pkg/config"
	"github.com/avflow/avflow/pkg/httputil"
	"github.com/avflow/avflow/pkg/logger"
	"github.com/avflow/avflow/pkg/redis"
)

// Payload is one fetched document plus the fiscal-date range observed
// in it. Dates are nil when the document holds no dated records.
type Payload struct {
	Body          []byte
	Format        string // "csv" or "json"
	MinFiscalDate *time.Time
	MaxFiscalDate *time.Time
	Records       int
}

// Client talks to the Alpha Vantage API.
type Client struct {
	http    *httputil.Client
	baseURL string
	apiKey  string
	limiter *rate.Limiter
	logger  *logger.Logger
}

// NewClient creates an Alpha Vantage client from config.
func NewClient(cfg *config.Config, log *logger.Logger) *Client {
	httpClient := httputil.NewWithTimeout(cfg, log, 60*time.Second)

	return &Client{
		http:    httpClient,
		baseURL: cfg.AlphaVantage.BaseURL,
		apiKey:  cfg.AlphaVantage.APIKey,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.AlphaVantage.RequestsPerMinute)), 1),
		logger:  log.WithField("module", "alphavantage"),
	}
}

// WithDailyQuota shares the daily request budget through Redis. A
// quota of 0 disables the shared budget.
func (c *Client) WithDailyQuota(limiter *redis.RateLimiter, quota int) *Client {
	if quota > 0 {
		c.http.WithRateLimiter(limiter, redis.AlphaVantageDailyQuota(quota))
	}
	return c
}

// Fetch retrieves one symbol's document for a source. For the daily
// time series the watermark mode picks the outputsize; fundamentals
// ignore it.
func (c *Client) Fetch(ctx context.Context, spec sources.Spec, symbol string, mode watermark.Mode) (*Payload, error) {
	params := url.Values{}
	params.Set("function", spec.Function)
	params.Set("symbol", symbol)

	switch spec.TableName {
	case "TIME_SERIES_DAILY_ADJUSTED":
		params.Set("datatype", "csv")
		if mode == watermark.ModeCompact {
			params.Set("outputsize", "compact")
		} else {
			params.Set("outputsize", "full")
		}
	}

	body, err := c.get(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("fetch %s %s: %w", spec.TableName, symbol, err)
	}

	payload := &Payload{Body: body, Format: spec.Format}
	if spec.Format == "csv" {
		err = parseSeriesDates(body, payload)
	} else {
		if err = checkSoftError(body); err == nil {
			err = parseFiscalDates(spec.TableName, body, payload)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("fetch %s %s: %w", spec.TableName, symbol, err)
	}

	return payload, nil
}

// ListingStatus downloads the exchange listing snapshot. state is
// "active" or "delisted".
func (c *Client) ListingStatus(ctx context.Context, state string) ([]symbols.Listing, error) {
	params := url.Values{}
	params.Set("function", "LISTING_STATUS")
	params.Set("state", state)

	body, err := c.get(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("listing status (%s): %w", state, err)
	}

	listings, err := parseListingCSV(body)
	if err != nil {
		return nil, fmt.Errorf("listing status (%s): %w", state, err)
	}

	c.logger.WithFields(map[string]interface{}{
		"state":    state,
		"listings": len(listings),
	}).Info("Listing status downloaded")

	return listings, nil
}

func (c *Client) get(ctx context.Context, params url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	params.Set("apikey", c.apiKey)

	resp, err := c.http.Get(ctx, c.baseURL+"?"+params.Encode())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	return body, nil
}
