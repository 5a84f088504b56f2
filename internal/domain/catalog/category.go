package catalog

import (
	"time"

	"github.com/google/uuid"
	"github.com/storefront/backend/internal/domain/shared"
)

// Category represents a classification node in the supplier catalog.
// Categories form a tree via ParentID; a missing parent reference means
// the category is a root. The supplier reports parents by external ID, so
// ParentExternalID is kept alongside the resolved ParentID to allow the
// reconciler to re-link the tree on every run.
type Category struct {
	shared.BaseEntity
	ProviderID       uuid.UUID    `gorm:"type:uuid;not null;index;uniqueIndex:idx_category_provider_ext,priority:1"`
	ExternalID       string       `gorm:"type:varchar(100);not null;uniqueIndex:idx_category_provider_ext,priority:2"`
	Name             string       `gorm:"type:varchar(200);not null"`
	Description      string       `gorm:"type:text"`
	ParentID         *uuid.UUID   `gorm:"type:uuid;index"`
	ParentExternalID string       `gorm:"type:varchar(100)"`
	Thumbnail        string       `gorm:"type:text"`
	SortOrder        int          `gorm:"not null;default:0"`
	Featured         bool         `gorm:"not null;default:false"`
	Status           EntityStatus `gorm:"type:varchar(20);not null;default:'active'"`
	RemovedAt        *time.Time
}

// TableName returns the table name for GORM
func (Category) TableName() string {
	return "categories"
}

// NewCategory creates a new category for a provider
func NewCategory(providerID uuid.UUID, externalID, name string) (*Category, error) {
	if providerID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_PROVIDER", "Category requires a provider")
	}
	if err := validateExternalID(externalID); err != nil {
		return nil, err
	}
	if err := validateName(name, 200); err != nil {
		return nil, err
	}

	return &Category{
		BaseEntity: shared.NewBaseEntity(),
		ProviderID: providerID,
		ExternalID: externalID,
		Name:       name,
		Status:     EntityStatusActive,
	}, nil
}

// IsRoot returns true if the category has no parent reference
func (c *Category) IsRoot() bool {
	return c.ParentExternalID == "" && c.ParentID == nil
}

// IsActive returns true if the category has not been soft-deleted
func (c *Category) IsActive() bool {
	return c.Status == EntityStatusActive
}

// LinkParent resolves the parent reference to a persisted category ID
func (c *Category) LinkParent(parentID uuid.UUID) {
	c.ParentID = &parentID
	c.Touch()
}

// UnlinkParent clears the parent reference, making the category a root
func (c *Category) UnlinkParent() {
	c.ParentID = nil
	c.ParentExternalID = ""
	c.Touch()
}

// MarkRemoved soft-deletes the category
func (c *Category) MarkRemoved() {
	if c.Status == EntityStatusRemoved {
		return
	}
	now := time.Now()
	c.Status = EntityStatusRemoved
	c.RemovedAt = &now
	c.Touch()
}

// Restore reactivates a previously removed category
func (c *Category) Restore() {
	if c.Status == EntityStatusActive {
		return
	}
	c.Status = EntityStatusActive
	c.RemovedAt = nil
	c.Touch()
}

// MergeFrom applies the fields reported by an incoming fetch onto the
// persisted category. Only reported (non-zero) fields are considered, so a
// partial fetch never clobbers data it did not carry. Returns true if any
// field changed.
func (c *Category) MergeFrom(in *Category) bool {
	changed := false

	if in.Name != "" && in.Name != c.Name {
		c.Name = in.Name
		changed = true
	}
	if in.Description != "" && in.Description != c.Description {
		c.Description = in.Description
		changed = true
	}
	if in.Thumbnail != "" && in.Thumbnail != c.Thumbnail {
		c.Thumbnail = in.Thumbnail
		changed = true
	}
	if in.SortOrder != c.SortOrder {
		c.SortOrder = in.SortOrder
		changed = true
	}
	if in.Featured != c.Featured {
		c.Featured = in.Featured
		changed = true
	}
	if in.ParentExternalID != c.ParentExternalID {
		c.ParentExternalID = in.ParentExternalID
		changed = true
	}
	if c.Status == EntityStatusRemoved {
		// Reported by the source again: revive it.
		c.Restore()
		changed = true
	}

	if changed {
		c.Touch()
	}
	return changed
}

// validateExternalID validates a supplier-assigned identifier
func validateExternalID(externalID string) error {
	if externalID == "" {
		return shared.NewDomainError("INVALID_EXTERNAL_ID", "External ID cannot be empty")
	}
	if len(externalID) > 100 {
		return shared.NewDomainError("INVALID_EXTERNAL_ID", "External ID cannot exceed 100 characters")
	}
	return nil
}

// validateName validates an entity display name
func validateName(name string, maxLen int) error {
	if name == "" {
		return shared.NewDomainError("INVALID_NAME", "Name cannot be empty")
	}
	if len(name) > maxLen {
		return shared.NewDomainError("INVALID_NAME", "Name is too long")
	}
	return nil
}
