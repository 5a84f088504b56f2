package persistence

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/storefront/backend/internal/domain/catalog"
)

// GormSnapshotReader loads the persisted catalog baseline for a provider.
// Removed rows are loaded along with active ones: the reconciler needs to
// see them so a re-reported external ID revives the existing row instead
// of inserting a duplicate.
type GormSnapshotReader struct {
	db *gorm.DB
}

// NewGormSnapshotReader creates a new GormSnapshotReader
func NewGormSnapshotReader(db *gorm.DB) *GormSnapshotReader {
	return &GormSnapshotReader{db: db}
}

// ReadSnapshot loads all categories, products and variants of a provider
func (r *GormSnapshotReader) ReadSnapshot(ctx context.Context, providerID uuid.UUID) (*catalog.Snapshot, error) {
	snapshot := &catalog.Snapshot{ProviderID: providerID}

	if err := r.db.WithContext(ctx).
		Where("provider_id = ?", providerID).
		Order("created_at ASC").
		Find(&snapshot.Categories).Error; err != nil {
		return nil, fmt.Errorf("failed to load categories: %w", err)
	}

	if err := r.db.WithContext(ctx).
		Where("provider_id = ?", providerID).
		Order("created_at ASC").
		Find(&snapshot.Products).Error; err != nil {
		return nil, fmt.Errorf("failed to load products: %w", err)
	}

	// Variants carry no provider column; scope them through their product.
	productIDs := r.db.Model(&catalog.Product{}).
		Select("id").
		Where("provider_id = ?", providerID)
	if err := r.db.WithContext(ctx).
		Where("product_id IN (?)", productIDs).
		Order("created_at ASC").
		Find(&snapshot.Variants).Error; err != nil {
		return nil, fmt.Errorf("failed to load variants: %w", err)
	}

	return snapshot, nil
}

// Ensure GormSnapshotReader implements SnapshotReader
var _ catalog.SnapshotReader = (*GormSnapshotReader)(nil)
