package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	// Save original env vars and restore after tests
	originalEnv := map[string]string{
		"STOREFRONT_APP_NAME":                os.Getenv("STOREFRONT_APP_NAME"),
		"STOREFRONT_APP_ENV":                 os.Getenv("STOREFRONT_APP_ENV"),
		"STOREFRONT_APP_PORT":                os.Getenv("STOREFRONT_APP_PORT"),
		"STOREFRONT_DATABASE_HOST":           os.Getenv("STOREFRONT_DATABASE_HOST"),
		"STOREFRONT_DATABASE_PORT":           os.Getenv("STOREFRONT_DATABASE_PORT"),
		"STOREFRONT_DATABASE_USER":           os.Getenv("STOREFRONT_DATABASE_USER"),
		"STOREFRONT_DATABASE_PASSWORD":       os.Getenv("STOREFRONT_DATABASE_PASSWORD"),
		"STOREFRONT_DATABASE_DBNAME":         os.Getenv("STOREFRONT_DATABASE_DBNAME"),
		"STOREFRONT_DATABASE_SSLMODE":        os.Getenv("STOREFRONT_DATABASE_SSLMODE"),
		"STOREFRONT_DATABASE_MAX_OPEN_CONNS": os.Getenv("STOREFRONT_DATABASE_MAX_OPEN_CONNS"),
		"STOREFRONT_DATABASE_MAX_IDLE_CONNS": os.Getenv("STOREFRONT_DATABASE_MAX_IDLE_CONNS"),
		"STOREFRONT_SUPPLIER_API_KEY":        os.Getenv("STOREFRONT_SUPPLIER_API_KEY"),
		"STOREFRONT_SUPPLIER_PAGE_SIZE":      os.Getenv("STOREFRONT_SUPPLIER_PAGE_SIZE"),
		"STOREFRONT_SUPPLIER_CONCURRENCY":    os.Getenv("STOREFRONT_SUPPLIER_CONCURRENCY"),
		"STOREFRONT_SYNC_LOCK_BACKEND":       os.Getenv("STOREFRONT_SYNC_LOCK_BACKEND"),
	}

	defer func() {
		for k, v := range originalEnv {
			if v == "" {
				os.Unsetenv(k)
			} else {
				os.Setenv(k, v)
			}
		}
	}()

	clearEnv := func() {
		for k := range originalEnv {
			os.Unsetenv(k)
		}
	}

	t.Run("loads default values when env vars not set", func(t *testing.T) {
		clearEnv()

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "storefront-backend", cfg.App.Name)
		assert.Equal(t, "development", cfg.App.Env)
		assert.Equal(t, "8080", cfg.App.Port)
		assert.Equal(t, "localhost", cfg.Database.Host)
		assert.Equal(t, 5432, cfg.Database.Port)
		assert.Equal(t, "storefront", cfg.Database.DBName)
		assert.Equal(t, 25, cfg.Database.MaxOpenConns)
		assert.Equal(t, "https://api.printful.com", cfg.Supplier.BaseURL)
		assert.Equal(t, 100, cfg.Supplier.PageSize)
		assert.Equal(t, 4, cfg.Supplier.Concurrency)
		assert.Equal(t, float64(2), cfg.Supplier.RequestsPerSecond)
		assert.Equal(t, "USD", cfg.Rates.BaseCurrency)
		assert.Equal(t, []string{"en_US"}, cfg.Sync.Locales)
		assert.Equal(t, 10*time.Minute, cfg.Sync.RunTimeout)
		assert.Equal(t, "memory", cfg.Sync.LockBackend)
		assert.Greater(t, cfg.Sync.LockTTL, cfg.Sync.RunTimeout)
	})

	t.Run("loads values from environment variables with STOREFRONT prefix", func(t *testing.T) {
		clearEnv()
		os.Setenv("STOREFRONT_APP_NAME", "test-app")
		os.Setenv("STOREFRONT_APP_PORT", "9000")
		os.Setenv("STOREFRONT_DATABASE_HOST", "testdb.local")
		os.Setenv("STOREFRONT_DATABASE_PORT", "5433")
		os.Setenv("STOREFRONT_SUPPLIER_API_KEY", "pf-test-token")
		os.Setenv("STOREFRONT_SUPPLIER_PAGE_SIZE", "50")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "test-app", cfg.App.Name)
		assert.Equal(t, "9000", cfg.App.Port)
		assert.Equal(t, "testdb.local", cfg.Database.Host)
		assert.Equal(t, 5433, cfg.Database.Port)
		assert.Equal(t, "pf-test-token", cfg.Supplier.APIKey)
		assert.Equal(t, 50, cfg.Supplier.PageSize)
	})

	t.Run("validates MaxIdleConns cannot exceed MaxOpenConns", func(t *testing.T) {
		clearEnv()
		os.Setenv("STOREFRONT_DATABASE_MAX_OPEN_CONNS", "10")
		os.Setenv("STOREFRONT_DATABASE_MAX_IDLE_CONNS", "20")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "max_idle_conns")
		assert.Contains(t, err.Error(), "cannot exceed")
	})

	t.Run("rejects out-of-range page size", func(t *testing.T) {
		clearEnv()
		os.Setenv("STOREFRONT_SUPPLIER_PAGE_SIZE", "500")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "supplier.page_size")
	})

	t.Run("rejects concurrency above the supplier ceiling", func(t *testing.T) {
		clearEnv()
		os.Setenv("STOREFRONT_SUPPLIER_CONCURRENCY", "8")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "supplier.concurrency")
	})

	t.Run("rejects unknown lock backend", func(t *testing.T) {
		clearEnv()
		os.Setenv("STOREFRONT_SYNC_LOCK_BACKEND", "zookeeper")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "sync.lock_backend")
	})
}

func TestLoad_ProductionValidation(t *testing.T) {
	originalEnv := map[string]string{
		"STOREFRONT_APP_ENV":           os.Getenv("STOREFRONT_APP_ENV"),
		"STOREFRONT_SUPPLIER_API_KEY":  os.Getenv("STOREFRONT_SUPPLIER_API_KEY"),
		"STOREFRONT_DATABASE_PASSWORD": os.Getenv("STOREFRONT_DATABASE_PASSWORD"),
		"STOREFRONT_DATABASE_SSLMODE":  os.Getenv("STOREFRONT_DATABASE_SSLMODE"),
		"STOREFRONT_SYNC_LOCK_BACKEND": os.Getenv("STOREFRONT_SYNC_LOCK_BACKEND"),
	}

	defer func() {
		for k, v := range originalEnv {
			if v == "" {
				os.Unsetenv(k)
			} else {
				os.Setenv(k, v)
			}
		}
	}()

	clearEnv := func() {
		for k := range originalEnv {
			os.Unsetenv(k)
		}
	}

	setValidProductionBase := func() {
		os.Setenv("STOREFRONT_APP_ENV", "production")
		os.Setenv("STOREFRONT_SUPPLIER_API_KEY", "pf-live-token")
		os.Setenv("STOREFRONT_DATABASE_PASSWORD", "secure-password")
		os.Setenv("STOREFRONT_DATABASE_SSLMODE", "require")
		os.Setenv("STOREFRONT_SYNC_LOCK_BACKEND", "redis")
	}

	t.Run("requires supplier.api_key in production", func(t *testing.T) {
		clearEnv()
		setValidProductionBase()
		os.Unsetenv("STOREFRONT_SUPPLIER_API_KEY")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "supplier.api_key is required in production")
	})

	t.Run("requires database.password in production", func(t *testing.T) {
		clearEnv()
		setValidProductionBase()
		os.Unsetenv("STOREFRONT_DATABASE_PASSWORD")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.password is required in production")
	})

	t.Run("requires SSL enabled in production", func(t *testing.T) {
		clearEnv()
		setValidProductionBase()
		os.Setenv("STOREFRONT_DATABASE_SSLMODE", "disable")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.sslmode cannot be 'disable' in production")
	})

	t.Run("requires redis lock backend in production", func(t *testing.T) {
		clearEnv()
		setValidProductionBase()
		os.Setenv("STOREFRONT_SYNC_LOCK_BACKEND", "memory")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "sync.lock_backend must be 'redis' in production")
	})

	t.Run("passes validation with valid production config", func(t *testing.T) {
		clearEnv()
		setValidProductionBase()

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "production", cfg.App.Env)
		assert.Equal(t, "redis", cfg.Sync.LockBackend)
	})
}

func TestDatabaseConfig_DSN(t *testing.T) {
	t.Run("generates valid DSN", func(t *testing.T) {
		cfg := DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "testuser",
			Password: "testpass",
			DBName:   "testdb",
			SSLMode:  "disable",
		}

		dsn := cfg.DSN()
		assert.Contains(t, dsn, "localhost")
		assert.Contains(t, dsn, "5432")
		assert.Contains(t, dsn, "testuser")
		assert.Contains(t, dsn, "testdb")
		assert.Contains(t, dsn, "sslmode=disable")
	})

	t.Run("escapes special characters in password", func(t *testing.T) {
		cfg := DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "user",
			Password: "pass@word#123",
			DBName:   "db",
			SSLMode:  "disable",
		}

		dsn := cfg.DSN()
		// URL-encoded password should be in the DSN
		assert.Contains(t, dsn, "pass%40word%23123")
	})

	t.Run("handles empty password", func(t *testing.T) {
		cfg := DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "user",
			Password: "",
			DBName:   "db",
			SSLMode:  "disable",
		}

		dsn := cfg.DSN()
		assert.NotEmpty(t, dsn)
	})
}
