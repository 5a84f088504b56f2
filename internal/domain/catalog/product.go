package catalog

import (
	"time"

	"github.com/google/uuid"
	"github.com/storefront/backend/internal/domain/shared"
)

// Product represents a supplier catalog product. A product belongs to
// exactly one provider and optionally to one category; its sellable
// configurations are Variants.
type Product struct {
	shared.BaseEntity
	ProviderID         uuid.UUID    `gorm:"type:uuid;not null;index;uniqueIndex:idx_product_provider_ext,priority:1"`
	ExternalID         string       `gorm:"type:varchar(100);not null;uniqueIndex:idx_product_provider_ext,priority:2"`
	CategoryID         *uuid.UUID   `gorm:"type:uuid;index"`
	CategoryExternalID string       `gorm:"type:varchar(100)"`
	Name               string       `gorm:"type:varchar(300);not null"`
	Description        string       `gorm:"type:text"`
	Thumbnail          string       `gorm:"type:text"`
	Status             EntityStatus `gorm:"type:varchar(20);not null;default:'active'"`
	RemovedAt          *time.Time
}

// TableName returns the table name for GORM
func (Product) TableName() string {
	return "products"
}

// NewProduct creates a new product for a provider
func NewProduct(providerID uuid.UUID, externalID, name string) (*Product, error) {
	if providerID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_PROVIDER", "Product requires a provider")
	}
	if err := validateExternalID(externalID); err != nil {
		return nil, err
	}
	if err := validateName(name, 300); err != nil {
		return nil, err
	}

	return &Product{
		BaseEntity: shared.NewBaseEntity(),
		ProviderID: providerID,
		ExternalID: externalID,
		Name:       name,
		Status:     EntityStatusActive,
	}, nil
}

// IsActive returns true if the product has not been soft-deleted
func (p *Product) IsActive() bool {
	return p.Status == EntityStatusActive
}

// AssignCategory links the product to a persisted category
func (p *Product) AssignCategory(categoryID uuid.UUID) {
	p.CategoryID = &categoryID
	p.Touch()
}

// MarkRemoved soft-deletes the product
func (p *Product) MarkRemoved() {
	if p.Status == EntityStatusRemoved {
		return
	}
	now := time.Now()
	p.Status = EntityStatusRemoved
	p.RemovedAt = &now
	p.Touch()
}

// Restore reactivates a previously removed product
func (p *Product) Restore() {
	if p.Status == EntityStatusActive {
		return
	}
	p.Status = EntityStatusActive
	p.RemovedAt = nil
	p.Touch()
}

// MergeFrom applies fields reported by an incoming fetch onto the
// persisted product, leaving unreported fields untouched. Returns true if
// any field changed.
func (p *Product) MergeFrom(in *Product) bool {
	changed := false

	if in.Name != "" && in.Name != p.Name {
		p.Name = in.Name
		changed = true
	}
	if in.Description != "" && in.Description != p.Description {
		p.Description = in.Description
		changed = true
	}
	if in.Thumbnail != "" && in.Thumbnail != p.Thumbnail {
		p.Thumbnail = in.Thumbnail
		changed = true
	}
	if in.CategoryExternalID != "" && in.CategoryExternalID != p.CategoryExternalID {
		p.CategoryExternalID = in.CategoryExternalID
		changed = true
	}
	if p.Status == EntityStatusRemoved {
		p.Restore()
		changed = true
	}

	if changed {
		p.Touch()
	}
	return changed
}
