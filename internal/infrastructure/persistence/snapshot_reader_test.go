package persistence

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/storefront/backend/internal/domain/catalog"
)

func setupCatalogTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(
		&catalog.Provider{},
		&catalog.Category{},
		&catalog.Product{},
		&catalog.Variant{},
		&catalog.ExchangeRate{},
		&catalog.PriceEntry{},
	)
	require.NoError(t, err)
	return db
}

func seedProvider(t *testing.T, db *gorm.DB, name string) *catalog.Provider {
	t.Helper()
	provider, err := catalog.NewProvider("", name)
	require.NoError(t, err)
	require.NoError(t, db.Create(provider).Error)
	return provider
}

func seedCategory(t *testing.T, db *gorm.DB, providerID uuid.UUID, externalID, name string) *catalog.Category {
	t.Helper()
	category, err := catalog.NewCategory(providerID, externalID, name)
	require.NoError(t, err)
	require.NoError(t, db.Create(category).Error)
	return category
}

func seedProduct(t *testing.T, db *gorm.DB, providerID uuid.UUID, externalID, name string) *catalog.Product {
	t.Helper()
	product, err := catalog.NewProduct(providerID, externalID, name)
	require.NoError(t, err)
	require.NoError(t, db.Create(product).Error)
	return product
}

func seedVariant(t *testing.T, db *gorm.DB, productID uuid.UUID, externalID string, priceMinorUnits int64) *catalog.Variant {
	t.Helper()
	variant, err := catalog.NewVariant(productID, externalID, priceMinorUnits, "USD")
	require.NoError(t, err)
	require.NoError(t, db.Create(variant).Error)
	return variant
}

func TestGormSnapshotReader_ReadSnapshot(t *testing.T) {
	db := setupCatalogTestDB(t)
	reader := NewGormSnapshotReader(db)
	ctx := context.Background()

	provider := seedProvider(t, db, "printful")
	other := seedProvider(t, db, "other-supplier")

	seedCategory(t, db, provider.ID, "24", "T-Shirts")
	seedCategory(t, db, other.ID, "24", "Mugs")

	product := seedProduct(t, db, provider.ID, "71", "Unisex Tee")
	foreign := seedProduct(t, db, other.ID, "99", "Foreign Mug")
	seedVariant(t, db, product.ID, "4011", 1595)
	seedVariant(t, db, foreign.ID, "9001", 899)

	snapshot, err := reader.ReadSnapshot(ctx, provider.ID)
	require.NoError(t, err)

	assert.Equal(t, provider.ID, snapshot.ProviderID)
	require.Len(t, snapshot.Categories, 1)
	assert.Equal(t, "T-Shirts", snapshot.Categories[0].Name)
	require.Len(t, snapshot.Products, 1)
	assert.Equal(t, "71", snapshot.Products[0].ExternalID)
	require.Len(t, snapshot.Variants, 1)
	assert.Equal(t, "4011", snapshot.Variants[0].ExternalID)
}

func TestGormSnapshotReader_IncludesRemovedEntities(t *testing.T) {
	db := setupCatalogTestDB(t)
	reader := NewGormSnapshotReader(db)
	ctx := context.Background()

	provider := seedProvider(t, db, "printful")
	product := seedProduct(t, db, provider.ID, "71", "Unisex Tee")
	product.MarkRemoved()
	require.NoError(t, db.Save(product).Error)

	snapshot, err := reader.ReadSnapshot(ctx, provider.ID)
	require.NoError(t, err)

	// Removed rows stay visible to the reconciler so a re-reported
	// external ID revives the row instead of colliding with it.
	require.Len(t, snapshot.Products, 1)
	assert.Equal(t, catalog.EntityStatusRemoved, snapshot.Products[0].Status)
}

func TestGormSnapshotReader_EmptyProvider(t *testing.T) {
	db := setupCatalogTestDB(t)
	reader := NewGormSnapshotReader(db)

	snapshot, err := reader.ReadSnapshot(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Empty(t, snapshot.Categories)
	assert.Empty(t, snapshot.Products)
	assert.Empty(t, snapshot.Variants)
}
