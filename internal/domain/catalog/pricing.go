package catalog

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/storefront/backend/internal/domain/shared"
)

// ExchangeRate is a timestamped snapshot of a currency-pair rate.
// Rows accumulate over time; only the most recently fetched rate per pair
// is authoritative for pricing.
type ExchangeRate struct {
	shared.BaseEntity
	BaseCurrency  string          `gorm:"type:varchar(3);not null;index:idx_rate_pair,priority:1"`
	QuoteCurrency string          `gorm:"type:varchar(3);not null;index:idx_rate_pair,priority:2"`
	Rate          decimal.Decimal `gorm:"type:numeric(18,8);not null"`
	FetchedAt     time.Time       `gorm:"not null;index"`
}

// TableName returns the table name for GORM
func (ExchangeRate) TableName() string {
	return "exchange_rates"
}

// NewExchangeRate creates a rate snapshot for a currency pair
func NewExchangeRate(base, quote string, rate decimal.Decimal, fetchedAt time.Time) (*ExchangeRate, error) {
	if err := validateCurrency(base); err != nil {
		return nil, err
	}
	if err := validateCurrency(quote); err != nil {
		return nil, err
	}
	if !rate.IsPositive() {
		return nil, shared.NewDomainError("INVALID_RATE", "Exchange rate must be positive")
	}
	if fetchedAt.IsZero() {
		fetchedAt = time.Now()
	}

	return &ExchangeRate{
		BaseEntity:    shared.NewBaseEntity(),
		BaseCurrency:  base,
		QuoteCurrency: quote,
		Rate:          rate,
		FetchedAt:     fetchedAt,
	}, nil
}

// PriceEntry is a derived, recomputable cache of a variant's price in a
// target currency. It is never a source of truth: the value is always
// derivable from the variant's base price and the latest exchange rate.
type PriceEntry struct {
	shared.BaseEntity
	VariantID           uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_price_variant_currency,priority:1"`
	Currency            string    `gorm:"type:varchar(3);not null;uniqueIndex:idx_price_variant_currency,priority:2"`
	ConvertedMinorUnits int64     `gorm:"not null"`
	RateTimestamp       time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (PriceEntry) TableName() string {
	return "price_entries"
}

// NewPriceEntry derives a price entry for a variant in the given currency
func NewPriceEntry(variantID uuid.UUID, currency string, converted int64, rateTimestamp time.Time) (*PriceEntry, error) {
	if variantID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_VARIANT", "Price entry requires a variant")
	}
	if err := validateCurrency(currency); err != nil {
		return nil, err
	}

	return &PriceEntry{
		BaseEntity:          shared.NewBaseEntity(),
		VariantID:           variantID,
		Currency:            currency,
		ConvertedMinorUnits: converted,
		RateTimestamp:       rateTimestamp,
	}, nil
}

// Refresh recomputes the cached value from a new rate snapshot. Returns
// true if the entry changed; recomputing with the same rate is a no-op.
func (p *PriceEntry) Refresh(baseMinorUnits int64, rate *ExchangeRate) bool {
	converted := ConvertMinorUnits(baseMinorUnits, rate.Rate)
	if converted == p.ConvertedMinorUnits && rate.FetchedAt.Equal(p.RateTimestamp) {
		return false
	}
	p.ConvertedMinorUnits = converted
	p.RateTimestamp = rate.FetchedAt
	p.Touch()
	return true
}

// ConvertMinorUnits converts an integer minor-unit amount with a decimal
// exchange rate, rounding half away from zero. All price math stays in
// integers and decimals; floats never enter the calculation.
func ConvertMinorUnits(baseMinorUnits int64, rate decimal.Decimal) int64 {
	return decimal.NewFromInt(baseMinorUnits).Mul(rate).Round(0).IntPart()
}

// MinorUnitsFromDecimalString parses a supplier price string (major
// units, e.g. "19.95") into integer minor units.
func MinorUnitsFromDecimalString(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, shared.NewDomainError("INVALID_PRICE", "Price is not a decimal number")
	}
	if d.IsNegative() {
		return 0, shared.NewDomainError("INVALID_PRICE", "Price cannot be negative")
	}
	return d.Mul(decimal.NewFromInt(100)).Round(0).IntPart(), nil
}
