package catalog

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ProviderRepository defines persistence operations for providers
type ProviderRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Provider, error)
	FindByName(ctx context.Context, name string) (*Provider, error)
	Save(ctx context.Context, provider *Provider) error
}

// Snapshot is the persisted catalog state for one provider, used by the
// reconciler as its baseline. Removed entities are included so that a
// re-reported external ID revives the existing row instead of colliding
// with it.
type Snapshot struct {
	ProviderID uuid.UUID
	Categories []Category
	Products   []Product
	Variants   []Variant
}

// CategoryByExternalID indexes the snapshot's categories
func (s *Snapshot) CategoryByExternalID() map[string]*Category {
	m := make(map[string]*Category, len(s.Categories))
	for i := range s.Categories {
		m[s.Categories[i].ExternalID] = &s.Categories[i]
	}
	return m
}

// ProductByExternalID indexes the snapshot's products
func (s *Snapshot) ProductByExternalID() map[string]*Product {
	m := make(map[string]*Product, len(s.Products))
	for i := range s.Products {
		m[s.Products[i].ExternalID] = &s.Products[i]
	}
	return m
}

// VariantByExternalID indexes the snapshot's variants by owning product
// external ID plus variant external ID.
func (s *Snapshot) VariantByExternalID(productExternalIDByID map[uuid.UUID]string) map[string]*Variant {
	m := make(map[string]*Variant, len(s.Variants))
	for i := range s.Variants {
		v := &s.Variants[i]
		m[VariantKey(productExternalIDByID[v.ProductID], v.ExternalID)] = v
	}
	return m
}

// VariantKey builds the reconciliation key for a variant
func VariantKey(productExternalID, variantExternalID string) string {
	return productExternalID + "/" + variantExternalID
}

// SnapshotReader loads the persisted baseline for a provider
type SnapshotReader interface {
	ReadSnapshot(ctx context.Context, providerID uuid.UUID) (*Snapshot, error)
}

// ExchangeRateRepository defines persistence operations for rate snapshots
type ExchangeRateRepository interface {
	// SaveAll appends a batch of rate snapshots
	SaveAll(ctx context.Context, rates []ExchangeRate) error
	// LatestByPair returns the most recent rate per quote currency for the
	// given base currency
	LatestByPair(ctx context.Context, base string) (map[string]*ExchangeRate, error)
	// LatestFetchedAt returns the newest fetch timestamp for the base
	// currency, or the zero time when no rates exist
	LatestFetchedAt(ctx context.Context, base string) (time.Time, error)
}
