package persistence

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/storefront/backend/internal/domain/catalog"
)

// GormExchangeRateRepository implements ExchangeRateRepository using GORM.
// Rate rows are append-only; pricing always reads the newest row per pair.
type GormExchangeRateRepository struct {
	db *gorm.DB
}

// NewGormExchangeRateRepository creates a new GormExchangeRateRepository
func NewGormExchangeRateRepository(db *gorm.DB) *GormExchangeRateRepository {
	return &GormExchangeRateRepository{db: db}
}

// SaveAll appends a batch of rate snapshots
func (r *GormExchangeRateRepository) SaveAll(ctx context.Context, rates []catalog.ExchangeRate) error {
	if len(rates) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(rates, 100).Error
}

// LatestByPair returns the most recent rate per quote currency for the
// given base currency
func (r *GormExchangeRateRepository) LatestByPair(ctx context.Context, base string) (map[string]*catalog.ExchangeRate, error) {
	return latestRatesByPair(ctx, r.db, base)
}

// LatestFetchedAt returns the newest fetch timestamp for the base
// currency, or the zero time when no rates exist
func (r *GormExchangeRateRepository) LatestFetchedAt(ctx context.Context, base string) (time.Time, error) {
	var rate catalog.ExchangeRate
	err := r.db.WithContext(ctx).
		Where("base_currency = ?", base).
		Order("fetched_at DESC").
		First(&rate).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return rate.FetchedAt, nil
}

// latestRatesByPair loads the rate history for a base currency newest
// first and keeps the first row seen per quote currency. Shared with the
// store gateway so price refreshes resolve rates the same way.
func latestRatesByPair(ctx context.Context, db *gorm.DB, base string) (map[string]*catalog.ExchangeRate, error) {
	var rows []catalog.ExchangeRate
	if err := db.WithContext(ctx).
		Where("base_currency = ?", base).
		Order("fetched_at DESC, created_at DESC").
		Find(&rows).Error; err != nil {
		return nil, err
	}

	latest := make(map[string]*catalog.ExchangeRate, len(rows))
	for i := range rows {
		row := &rows[i]
		if _, ok := latest[row.QuoteCurrency]; !ok {
			latest[row.QuoteCurrency] = row
		}
	}
	return latest, nil
}

// Ensure GormExchangeRateRepository implements ExchangeRateRepository
var _ catalog.ExchangeRateRepository = (*GormExchangeRateRepository)(nil)
