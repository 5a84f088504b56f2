package catalog

import (
	"strings"

	"github.com/storefront/backend/internal/domain/shared"
)

// Provider represents a catalog source (a single supplier).
// Providers are immutable once created and are looked up by name during
// normalization.
type Provider struct {
	shared.BaseEntity
	ExternalID string `gorm:"type:varchar(100);uniqueIndex"`
	Name       string `gorm:"type:varchar(100);not null;uniqueIndex"`
}

// TableName returns the table name for GORM
func (Provider) TableName() string {
	return "providers"
}

// NewProvider creates a new catalog provider
func NewProvider(externalID, name string) (*Provider, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, shared.NewDomainError("INVALID_NAME", "Provider name cannot be empty")
	}
	if len(name) > 100 {
		return nil, shared.NewDomainError("INVALID_NAME", "Provider name cannot exceed 100 characters")
	}

	return &Provider{
		BaseEntity: shared.NewBaseEntity(),
		ExternalID: externalID,
		Name:       name,
	}, nil
}
