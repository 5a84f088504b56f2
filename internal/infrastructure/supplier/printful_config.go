package supplier

import (
	"errors"
	"time"
)

// PrintfulConfig holds configuration for the Printful catalog API client
type PrintfulConfig struct {
	// APIKey is the bearer token issued by the supplier
	APIKey string
	// APIBaseURL is the base URL for the Printful API
	APIBaseURL string
	// RequestTimeout is the per-request HTTP timeout
	RequestTimeout time.Duration
	// PageSize is the product listing page size (the API caps it at 100)
	PageSize int
	// Concurrency is the number of parallel product detail fetches.
	// The supplier tolerates at most 4 concurrent requests per token.
	Concurrency int
	// RequestsPerSecond is the client-side token bucket refill rate
	RequestsPerSecond float64
	// Burst is the token bucket size
	Burst int
	// MaxRetries is the retry budget for transient failures
	MaxRetries int
	// InitialBackoff is the first retry delay; it doubles per attempt
	InitialBackoff time.Duration
	// MaxBackoff caps the exponential backoff delay
	MaxBackoff time.Duration
}

const (
	// PrintfulAPIURL is the production API endpoint
	PrintfulAPIURL = "https://api.printful.com"

	// maxPageSize is the listing page size ceiling imposed by the API
	maxPageSize = 100
	// maxConcurrency is the parallel request ceiling tolerated per token
	maxConcurrency = 4
)

// Errors for Printful configuration
var (
	ErrPrintfulConfigMissingAPIKey = errors.New("printful: api key is required")
	ErrPrintfulConfigPageSize      = errors.New("printful: page size must be between 1 and 100")
	ErrPrintfulConfigConcurrency   = errors.New("printful: concurrency must be between 1 and 4")
)

// NewPrintfulConfig creates a new Printful configuration with defaults
func NewPrintfulConfig(apiKey string) *PrintfulConfig {
	return &PrintfulConfig{
		APIKey:            apiKey,
		APIBaseURL:        PrintfulAPIURL,
		RequestTimeout:    30 * time.Second,
		PageSize:          maxPageSize,
		Concurrency:       maxConcurrency,
		RequestsPerSecond: 2,
		Burst:             4,
		MaxRetries:        4,
		InitialBackoff:    time.Second,
		MaxBackoff:        30 * time.Second,
	}
}

// Validate validates the Printful configuration
func (c *PrintfulConfig) Validate() error {
	if c.APIKey == "" {
		return ErrPrintfulConfigMissingAPIKey
	}
	if c.APIBaseURL == "" {
		c.APIBaseURL = PrintfulAPIURL
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.PageSize == 0 {
		c.PageSize = maxPageSize
	}
	if c.PageSize < 1 || c.PageSize > maxPageSize {
		return ErrPrintfulConfigPageSize
	}
	if c.Concurrency == 0 {
		c.Concurrency = maxConcurrency
	}
	if c.Concurrency < 1 || c.Concurrency > maxConcurrency {
		return ErrPrintfulConfigConcurrency
	}
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = 2
	}
	if c.Burst <= 0 {
		c.Burst = 4
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = time.Second
	}
	if c.MaxBackoff < c.InitialBackoff {
		c.MaxBackoff = 30 * time.Second
	}
	return nil
}
