package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/storefront/backend/internal/domain/catalog"
	"github.com/storefront/backend/internal/domain/shared"
)

// GormProviderRepository implements ProviderRepository using GORM
type GormProviderRepository struct {
	db *gorm.DB
}

// NewGormProviderRepository creates a new GormProviderRepository
func NewGormProviderRepository(db *gorm.DB) *GormProviderRepository {
	return &GormProviderRepository{db: db}
}

// FindByID finds a provider by its ID
func (r *GormProviderRepository) FindByID(ctx context.Context, id uuid.UUID) (*catalog.Provider, error) {
	var provider catalog.Provider
	if err := r.db.WithContext(ctx).First(&provider, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &provider, nil
}

// FindByName finds a provider by its unique name
func (r *GormProviderRepository) FindByName(ctx context.Context, name string) (*catalog.Provider, error) {
	var provider catalog.Provider
	if err := r.db.WithContext(ctx).First(&provider, "name = ?", name).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &provider, nil
}

// Save creates or updates a provider
func (r *GormProviderRepository) Save(ctx context.Context, provider *catalog.Provider) error {
	return r.db.WithContext(ctx).Save(provider).Error
}

// Ensure GormProviderRepository implements ProviderRepository
var _ catalog.ProviderRepository = (*GormProviderRepository)(nil)
