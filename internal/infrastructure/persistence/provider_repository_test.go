package persistence

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/storefront/backend/internal/domain/shared"
)

// newMockProviderRepository creates a GormProviderRepository with a mocked SQL connection
func newMockProviderRepository(t *testing.T) (*GormProviderRepository, sqlmock.Sqlmock, *sql.DB) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	dialector := postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	})

	gormDB, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	return NewGormProviderRepository(gormDB), mock, mockDB
}

func TestGormProviderRepository_FindByID(t *testing.T) {
	t.Run("finds existing provider", func(t *testing.T) {
		repo, mock, mockDB := newMockProviderRepository(t)
		defer mockDB.Close()

		providerID := uuid.New()
		rows := sqlmock.NewRows([]string{"id", "external_id", "name"}).
			AddRow(providerID, "", "printful")

		mock.ExpectQuery(`SELECT \* FROM "providers" WHERE id = \$1 ORDER BY .* LIMIT .*`).
			WithArgs(providerID, 1).
			WillReturnRows(rows)

		provider, err := repo.FindByID(context.Background(), providerID)

		require.NoError(t, err)
		assert.Equal(t, providerID, provider.ID)
		assert.Equal(t, "printful", provider.Name)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns ErrNotFound for missing provider", func(t *testing.T) {
		repo, mock, mockDB := newMockProviderRepository(t)
		defer mockDB.Close()

		providerID := uuid.New()
		mock.ExpectQuery(`SELECT \* FROM "providers" WHERE id = \$1 ORDER BY .* LIMIT .*`).
			WithArgs(providerID, 1).
			WillReturnError(gorm.ErrRecordNotFound)

		_, err := repo.FindByID(context.Background(), providerID)

		assert.ErrorIs(t, err, shared.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormProviderRepository_FindByName(t *testing.T) {
	t.Run("finds provider by name", func(t *testing.T) {
		repo, mock, mockDB := newMockProviderRepository(t)
		defer mockDB.Close()

		providerID := uuid.New()
		rows := sqlmock.NewRows([]string{"id", "external_id", "name"}).
			AddRow(providerID, "", "printful")

		mock.ExpectQuery(`SELECT \* FROM "providers" WHERE name = \$1 ORDER BY .* LIMIT .*`).
			WithArgs("printful", 1).
			WillReturnRows(rows)

		provider, err := repo.FindByName(context.Background(), "printful")

		require.NoError(t, err)
		assert.Equal(t, "printful", provider.Name)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns ErrNotFound for unknown name", func(t *testing.T) {
		repo, mock, mockDB := newMockProviderRepository(t)
		defer mockDB.Close()

		mock.ExpectQuery(`SELECT \* FROM "providers" WHERE name = \$1 ORDER BY .* LIMIT .*`).
			WithArgs("nope", 1).
			WillReturnError(gorm.ErrRecordNotFound)

		_, err := repo.FindByName(context.Background(), "nope")

		assert.ErrorIs(t, err, shared.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
