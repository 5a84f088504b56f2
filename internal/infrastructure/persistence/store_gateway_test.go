package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/storefront/backend/internal/application/pipeline"
	"github.com/storefront/backend/internal/domain/catalog"
)

func TestGormStoreGateway_ApplyInsertsNewEntities(t *testing.T) {
	db := setupCatalogTestDB(t)
	gateway := NewGormStoreGateway(db, zap.NewNop())
	ctx := context.Background()

	provider := seedProvider(t, db, "printful")
	category, err := catalog.NewCategory(provider.ID, "24", "T-Shirts")
	require.NoError(t, err)
	product, err := catalog.NewProduct(provider.ID, "71", "Unisex Tee")
	require.NoError(t, err)
	variant, err := catalog.NewVariant(product.ID, "4011", 1595, "USD")
	require.NoError(t, err)

	stats, err := gateway.Apply(ctx, &pipeline.OperationSet{
		ProviderID:      provider.ID,
		CategoryUpserts: []*catalog.Category{category},
		ProductUpserts:  []*catalog.Product{product},
		VariantUpserts:  []*catalog.Variant{variant},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Upserted)
	assert.Equal(t, 0, stats.SoftDeleted)

	var count int64
	require.NoError(t, db.Model(&catalog.Product{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestGormStoreGateway_ApplyUpdatesExistingRow(t *testing.T) {
	db := setupCatalogTestDB(t)
	gateway := NewGormStoreGateway(db, zap.NewNop())
	ctx := context.Background()

	provider := seedProvider(t, db, "printful")
	product := seedProduct(t, db, provider.ID, "71", "Unisex Tee")

	product.Name = "Unisex Staple Tee"
	_, err := gateway.Apply(ctx, &pipeline.OperationSet{
		ProviderID:     provider.ID,
		ProductUpserts: []*catalog.Product{product},
	})
	require.NoError(t, err)

	var count int64
	require.NoError(t, db.Model(&catalog.Product{}).Count(&count).Error)
	assert.Equal(t, int64(1), count, "update must not duplicate the row")

	var stored catalog.Product
	require.NoError(t, db.First(&stored, "id = ?", product.ID).Error)
	assert.Equal(t, "Unisex Staple Tee", stored.Name)
}

func TestGormStoreGateway_ApplySoftDeletes(t *testing.T) {
	db := setupCatalogTestDB(t)
	gateway := NewGormStoreGateway(db, zap.NewNop())
	ctx := context.Background()

	provider := seedProvider(t, db, "printful")
	product := seedProduct(t, db, provider.ID, "71", "Unisex Tee")
	variant := seedVariant(t, db, product.ID, "4011", 1595)

	product.MarkRemoved()
	variant.MarkRemoved()

	stats, err := gateway.Apply(ctx, &pipeline.OperationSet{
		ProviderID:      provider.ID,
		ProductRemovals: []*catalog.Product{product},
		VariantRemovals: []*catalog.Variant{variant},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.SoftDeleted)

	var stored catalog.Product
	require.NoError(t, db.First(&stored, "id = ?", product.ID).Error)
	assert.Equal(t, catalog.EntityStatusRemoved, stored.Status)
	assert.NotNil(t, stored.RemovedAt)
}

func TestGormStoreGateway_ApplyEmptySetTouchesNothing(t *testing.T) {
	db := setupCatalogTestDB(t)
	gateway := NewGormStoreGateway(db, zap.NewNop())

	stats, err := gateway.Apply(context.Background(), &pipeline.OperationSet{ProviderID: uuid.New()})
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Upserted)
	assert.Equal(t, 0, stats.SoftDeleted)
}

func TestGormStoreGateway_ApplyRollsBackOnFailure(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	dialector := postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	})
	gormDB, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	gateway := NewGormStoreGateway(gormDB, zap.NewNop())

	providerID := uuid.New()
	category, err := catalog.NewCategory(providerID, "24", "T-Shirts")
	require.NoError(t, err)

	boom := errors.New("connection reset")
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "categories"`).WillReturnError(boom)
	mock.ExpectRollback()

	_, err = gateway.Apply(context.Background(), &pipeline.OperationSet{
		ProviderID:      providerID,
		CategoryUpserts: []*catalog.Category{category},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet(), "the transaction must be rolled back, not committed")
}

func TestGormStoreGateway_RefreshPrices(t *testing.T) {
	db := setupCatalogTestDB(t)
	gateway := NewGormStoreGateway(db, zap.NewNop())
	rates := NewGormExchangeRateRepository(db)
	ctx := context.Background()

	provider := seedProvider(t, db, "printful")
	product := seedProduct(t, db, provider.ID, "71", "Unisex Tee")
	variant := seedVariant(t, db, product.ID, "4011", 1000)

	firstFetch := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, rates.SaveAll(ctx, []catalog.ExchangeRate{
		mustRate(t, "USD", "EUR", "0.9", firstFetch),
	}))

	t.Run("creates entries from the latest rate", func(t *testing.T) {
		written, err := gateway.RefreshPrices(ctx, nil, "USD", []string{"EUR"})
		require.NoError(t, err)
		assert.Equal(t, 1, written)

		var entry catalog.PriceEntry
		require.NoError(t, db.First(&entry, "variant_id = ? AND currency = ?", variant.ID, "EUR").Error)
		assert.Equal(t, int64(900), entry.ConvertedMinorUnits)
	})

	t.Run("repeating with the same rate writes nothing", func(t *testing.T) {
		written, err := gateway.RefreshPrices(ctx, nil, "USD", []string{"EUR"})
		require.NoError(t, err)
		assert.Equal(t, 0, written)
	})

	t.Run("a newer rate updates the entry in place", func(t *testing.T) {
		secondFetch := firstFetch.Add(24 * time.Hour)
		require.NoError(t, rates.SaveAll(ctx, []catalog.ExchangeRate{
			mustRate(t, "USD", "EUR", "0.95", secondFetch),
		}))

		written, err := gateway.RefreshPrices(ctx, nil, "USD", []string{"EUR"})
		require.NoError(t, err)
		assert.Equal(t, 1, written)

		var entry catalog.PriceEntry
		require.NoError(t, db.First(&entry, "variant_id = ? AND currency = ?", variant.ID, "EUR").Error)
		assert.Equal(t, int64(950), entry.ConvertedMinorUnits)

		var count int64
		require.NoError(t, db.Model(&catalog.PriceEntry{}).Count(&count).Error)
		assert.Equal(t, int64(1), count)
	})
}

func TestGormStoreGateway_RefreshPricesScoping(t *testing.T) {
	db := setupCatalogTestDB(t)
	gateway := NewGormStoreGateway(db, zap.NewNop())
	rates := NewGormExchangeRateRepository(db)
	ctx := context.Background()

	provider := seedProvider(t, db, "printful")
	product := seedProduct(t, db, provider.ID, "71", "Unisex Tee")
	active := seedVariant(t, db, product.ID, "4011", 1000)
	other := seedVariant(t, db, product.ID, "4012", 2000)
	removed := seedVariant(t, db, product.ID, "4013", 3000)
	removed.MarkRemoved()
	require.NoError(t, db.Save(removed).Error)

	require.NoError(t, rates.SaveAll(ctx, []catalog.ExchangeRate{
		mustRate(t, "USD", "EUR", "0.9", time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)),
	}))

	t.Run("nil IDs refresh only active variants", func(t *testing.T) {
		written, err := gateway.RefreshPrices(ctx, nil, "USD", []string{"EUR"})
		require.NoError(t, err)
		assert.Equal(t, 2, written)

		var count int64
		require.NoError(t, db.Model(&catalog.PriceEntry{}).
			Where("variant_id = ?", removed.ID).Count(&count).Error)
		assert.Equal(t, int64(0), count)
	})

	t.Run("explicit IDs limit the refresh", func(t *testing.T) {
		secondFetch := time.Date(2026, 8, 2, 12, 0, 0, 0, time.UTC)
		require.NoError(t, rates.SaveAll(ctx, []catalog.ExchangeRate{
			mustRate(t, "USD", "EUR", "0.95", secondFetch),
		}))

		written, err := gateway.RefreshPrices(ctx, []uuid.UUID{active.ID}, "USD", []string{"EUR"})
		require.NoError(t, err)
		assert.Equal(t, 1, written)

		var untouched catalog.PriceEntry
		require.NoError(t, db.First(&untouched, "variant_id = ?", other.ID).Error)
		assert.Equal(t, int64(1800), untouched.ConvertedMinorUnits, "variant outside the ID list keeps the old rate")
	})

	t.Run("explicit IDs still exclude removed variants", func(t *testing.T) {
		written, err := gateway.RefreshPrices(ctx, []uuid.UUID{active.ID, removed.ID}, "USD", []string{"EUR"})
		require.NoError(t, err)
		assert.Equal(t, 0, written, "active variant is current, removed variant is out of scope")

		var count int64
		require.NoError(t, db.Model(&catalog.PriceEntry{}).
			Where("variant_id = ?", removed.ID).Count(&count).Error)
		assert.Equal(t, int64(0), count)
	})

	t.Run("missing rate for a currency is skipped", func(t *testing.T) {
		written, err := gateway.RefreshPrices(ctx, []uuid.UUID{active.ID}, "USD", []string{"GBP"})
		require.NoError(t, err)
		assert.Equal(t, 0, written)
	})
}
