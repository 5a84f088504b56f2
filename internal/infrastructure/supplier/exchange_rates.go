package supplier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/storefront/backend/internal/domain/sync"
)

// ExchangeRateAPIURL is the production endpoint of the free rate API
const ExchangeRateAPIURL = "https://api.exchangerate-api.com"

// ErrRatesConfigMissingBaseURL indicates a misconfigured rate client
var ErrRatesConfigMissingBaseURL = errors.New("rates: base url is required")

// ExchangeRateConfig holds configuration for the exchange-rate API client
type ExchangeRateConfig struct {
	// APIBaseURL is the base URL for the rate API
	APIBaseURL string
	// RequestTimeout is the per-request HTTP timeout
	RequestTimeout time.Duration
	// MaxRetries is the retry budget for transient failures
	MaxRetries int
	// InitialBackoff is the first retry delay; it doubles per attempt
	InitialBackoff time.Duration
	// MaxBackoff caps the exponential backoff delay
	MaxBackoff time.Duration
}

// NewExchangeRateConfig creates a rate client configuration with defaults
func NewExchangeRateConfig() *ExchangeRateConfig {
	return &ExchangeRateConfig{
		APIBaseURL:     ExchangeRateAPIURL,
		RequestTimeout: 15 * time.Second,
		MaxRetries:     3,
		InitialBackoff: time.Second,
		MaxBackoff:     15 * time.Second,
	}
}

// Validate validates the rate client configuration
func (c *ExchangeRateConfig) Validate() error {
	if c.APIBaseURL == "" {
		return ErrRatesConfigMissingBaseURL
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 15 * time.Second
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = time.Second
	}
	if c.MaxBackoff < c.InitialBackoff {
		c.MaxBackoff = 15 * time.Second
	}
	return nil
}

// ExchangeRateClient implements the rate source port against the
// exchangerate-api.com latest-rates endpoint.
type ExchangeRateClient struct {
	config     *ExchangeRateConfig
	httpClient *http.Client
	retry      RetryPolicy
	logger     *zap.Logger
}

var _ sync.RateSource = (*ExchangeRateClient)(nil)

// NewExchangeRateClient creates a new rate client with the given configuration
func NewExchangeRateClient(config *ExchangeRateConfig, logger *zap.Logger) (*ExchangeRateClient, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &ExchangeRateClient{
		config:     config,
		httpClient: &http.Client{Timeout: config.RequestTimeout},
		retry: RetryPolicy{
			MaxRetries:     config.MaxRetries,
			InitialBackoff: config.InitialBackoff,
			MaxBackoff:     config.MaxBackoff,
		},
		logger: logger.Named("rates"),
	}, nil
}

// latestRatesResponse mirrors the /v4/latest/{base} payload. Rates decode
// through json.Number so no float64 rounding enters the pipeline.
type latestRatesResponse struct {
	Base            string                 `json:"base"`
	TimeLastUpdated int64                  `json:"time_last_updated"`
	Rates           map[string]json.Number `json:"rates"`
}

// FetchRates returns current quotes against the base currency and the
// source's batch timestamp.
func (c *ExchangeRateClient) FetchRates(ctx context.Context, base string) ([]sync.RateQuote, time.Time, error) {
	var payload latestRatesResponse

	err := c.retry.Do(ctx, func() error {
		url := fmt.Sprintf("%s/v4/latest/%s", c.config.APIBaseURL, base)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return transient(err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
		if err != nil {
			return transient(err)
		}

		switch {
		case resp.StatusCode == http.StatusOK:
		case resp.StatusCode == http.StatusTooManyRequests:
			return transientAfter(
				fmt.Errorf("rates: throttled fetching %s rates", base),
				parseRetryAfter(resp, body),
			)
		case resp.StatusCode >= 500:
			return transient(fmt.Errorf("rates: status %d fetching %s rates", resp.StatusCode, base))
		default:
			return fmt.Errorf("rates: status %d fetching %s rates", resp.StatusCode, base)
		}

		if err := json.Unmarshal(body, &payload); err != nil {
			return fmt.Errorf("%w: rates: %v", sync.ErrMalformedPage, err)
		}
		if len(payload.Rates) == 0 {
			return fmt.Errorf("%w: rates: response carries no rates", sync.ErrMalformedPage)
		}
		return nil
	})
	if err != nil {
		return nil, time.Time{}, err
	}

	fetchedAt := time.Unix(payload.TimeLastUpdated, 0).UTC()
	if payload.TimeLastUpdated == 0 {
		fetchedAt = time.Now().UTC()
	}

	quotes := make([]sync.RateQuote, 0, len(payload.Rates))
	for currency, num := range payload.Rates {
		if currency == base {
			continue
		}
		rate, err := decimal.NewFromString(num.String())
		if err != nil {
			c.logger.Warn("Skipping unparseable rate",
				zap.String("currency", currency),
				zap.String("value", num.String()))
			continue
		}
		quotes = append(quotes, sync.RateQuote{QuoteCurrency: currency, Rate: rate})
	}

	c.logger.Debug("Fetched exchange rates",
		zap.String("base", base),
		zap.Int("count", len(quotes)),
		zap.Time("fetched_at", fetchedAt))
	return quotes, fetchedAt, nil
}
