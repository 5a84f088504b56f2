package sync

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// RecordKind identifies what a raw supplier record describes
type RecordKind string

const (
	RecordKindCategory RecordKind = "category"
	RecordKindProduct  RecordKind = "product"
	RecordKindVariant  RecordKind = "variant"
)

// RawRecord is one undecoded supplier payload. The normalizer owns the
// mapping from supplier field names to canonical entities; the catalog
// source only classifies and pages.
type RawRecord struct {
	Kind RecordKind
	Data json.RawMessage
}

// RawPage is one page of supplier records
type RawPage struct {
	Kind    RecordKind
	Number  int
	Records []RawRecord
}

// PageResult carries either a fetched page or the fetch error for it.
// Pages arrive on a channel because product listings are pulled by a
// bounded worker pool.
type PageResult struct {
	Page *RawPage
	Err  error
}

// CatalogSource is the port to the supplier catalog API. Implementations
// own authentication, pagination, rate limiting and retry/backoff; they
// are stateless between calls apart from limiter token state.
type CatalogSource interface {
	// ProviderName returns the supplier name used to look up the provider
	// row during a run
	ProviderName() string

	// FetchCategories returns the full category listing for a locale.
	// Suppliers report categories as a single unpaginated page.
	FetchCategories(ctx context.Context, locale string) (*RawPage, error)

	// FetchProducts streams product pages for a locale until the source
	// reports no further pages. Each product record arrives enriched with
	// its variants (the supplier exposes them on the detail endpoint).
	// The channel is closed after the final page or first page-level
	// error.
	FetchProducts(ctx context.Context, locale string) <-chan PageResult
}

// RateQuote is one fetched currency-pair rate
type RateQuote struct {
	QuoteCurrency string
	Rate          decimal.Decimal
}

// RateSource is the port to the exchange-rate API
type RateSource interface {
	// FetchRates returns current quotes against the base currency and the
	// source's timestamp for the batch
	FetchRates(ctx context.Context, base string) ([]RateQuote, time.Time, error)
}
