package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Log      LogConfig
	HTTP     HTTPConfig
	Supplier SupplierConfig
	Rates    RatesConfig
	Sync     SyncConfig
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int
	TrustedProxies []string
}

// SupplierConfig holds the supplier catalog API client settings
type SupplierConfig struct {
	BaseURL           string
	APIKey            string
	RequestTimeout    time.Duration
	PageSize          int
	Concurrency       int     // parallel product detail fetches
	RequestsPerSecond float64 // token bucket refill rate
	Burst             int     // token bucket size
	MaxRetries        int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
}

// RatesConfig holds the exchange-rate API client settings
type RatesConfig struct {
	BaseURL          string
	BaseCurrency     string
	TargetCurrencies []string
	MaxAge           time.Duration // stored rates younger than this are not refetched
	RequestTimeout   time.Duration
}

// SyncConfig holds synchronization run settings
type SyncConfig struct {
	Locales     []string
	RunTimeout  time.Duration
	LockBackend string // memory, redis
	LockTTL     time.Duration
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with STOREFRONT_ prefix (e.g., STOREFRONT_SUPPLIER_APIKEY)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	// Set config file settings
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("./backend")
	v.AddConfigPath("/app")

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	// Enable environment variable override
	v.SetEnvPrefix("STOREFRONT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Build config struct
	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:    v.GetDuration("http.read_timeout"),
			WriteTimeout:   v.GetDuration("http.write_timeout"),
			IdleTimeout:    v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes: v.GetInt("http.max_header_bytes"),
			TrustedProxies: v.GetStringSlice("http.trusted_proxies"),
		},
		Supplier: SupplierConfig{
			BaseURL:           v.GetString("supplier.base_url"),
			APIKey:            v.GetString("supplier.api_key"),
			RequestTimeout:    v.GetDuration("supplier.request_timeout"),
			PageSize:          v.GetInt("supplier.page_size"),
			Concurrency:       v.GetInt("supplier.concurrency"),
			RequestsPerSecond: v.GetFloat64("supplier.requests_per_second"),
			Burst:             v.GetInt("supplier.burst"),
			MaxRetries:        v.GetInt("supplier.max_retries"),
			InitialBackoff:    v.GetDuration("supplier.initial_backoff"),
			MaxBackoff:        v.GetDuration("supplier.max_backoff"),
		},
		Rates: RatesConfig{
			BaseURL:          v.GetString("rates.base_url"),
			BaseCurrency:     v.GetString("rates.base_currency"),
			TargetCurrencies: v.GetStringSlice("rates.target_currencies"),
			MaxAge:           v.GetDuration("rates.max_age"),
			RequestTimeout:   v.GetDuration("rates.request_timeout"),
		},
		Sync: SyncConfig{
			Locales:     v.GetStringSlice("sync.locales"),
			RunTimeout:  v.GetDuration("sync.run_timeout"),
			LockBackend: v.GetString("sync.lock_backend"),
			LockTTL:     v.GetDuration("sync.lock_ttl"),
		},
	}

	// Apply defaults for empty values
	applyDefaults(cfg)

	// Validate configuration
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "storefront-backend"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "storefront"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 15 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.Supplier.BaseURL == "" {
		cfg.Supplier.BaseURL = "https://api.printful.com"
	}
	if cfg.Supplier.RequestTimeout == 0 {
		cfg.Supplier.RequestTimeout = 30 * time.Second
	}
	if cfg.Supplier.PageSize == 0 {
		cfg.Supplier.PageSize = 100
	}
	if cfg.Supplier.Concurrency == 0 {
		cfg.Supplier.Concurrency = 4
	}
	if cfg.Supplier.RequestsPerSecond == 0 {
		cfg.Supplier.RequestsPerSecond = 2
	}
	if cfg.Supplier.Burst == 0 {
		cfg.Supplier.Burst = 4
	}
	if cfg.Supplier.MaxRetries == 0 {
		cfg.Supplier.MaxRetries = 4
	}
	if cfg.Supplier.InitialBackoff == 0 {
		cfg.Supplier.InitialBackoff = time.Second
	}
	if cfg.Supplier.MaxBackoff == 0 {
		cfg.Supplier.MaxBackoff = 30 * time.Second
	}
	if cfg.Rates.BaseURL == "" {
		cfg.Rates.BaseURL = "https://api.exchangerate-api.com"
	}
	if cfg.Rates.BaseCurrency == "" {
		cfg.Rates.BaseCurrency = "USD"
	}
	if len(cfg.Rates.TargetCurrencies) == 0 {
		cfg.Rates.TargetCurrencies = []string{"EUR", "GBP", "CAD", "AUD", "JPY"}
	}
	if cfg.Rates.MaxAge == 0 {
		cfg.Rates.MaxAge = time.Hour
	}
	if cfg.Rates.RequestTimeout == 0 {
		cfg.Rates.RequestTimeout = 15 * time.Second
	}
	if len(cfg.Sync.Locales) == 0 {
		cfg.Sync.Locales = []string{"en_US"}
	}
	if cfg.Sync.RunTimeout == 0 {
		cfg.Sync.RunTimeout = 10 * time.Minute
	}
	if cfg.Sync.LockBackend == "" {
		cfg.Sync.LockBackend = "memory"
	}
	if cfg.Sync.LockTTL == 0 {
		// Slightly above the run timeout so a crashed run's lock expires
		// after the run could no longer be alive.
		cfg.Sync.LockTTL = cfg.Sync.RunTimeout + time.Minute
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	// Validate connection pool settings
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	if c.Supplier.PageSize < 1 || c.Supplier.PageSize > 100 {
		return fmt.Errorf("supplier.page_size must be between 1 and 100, got %d", c.Supplier.PageSize)
	}
	if c.Supplier.Concurrency < 1 || c.Supplier.Concurrency > 4 {
		return fmt.Errorf("supplier.concurrency must be between 1 and 4, got %d", c.Supplier.Concurrency)
	}
	if c.Supplier.RequestsPerSecond <= 0 {
		return fmt.Errorf("supplier.requests_per_second must be positive")
	}
	if c.Supplier.InitialBackoff > c.Supplier.MaxBackoff {
		return fmt.Errorf("supplier.initial_backoff (%s) cannot exceed supplier.max_backoff (%s)",
			c.Supplier.InitialBackoff, c.Supplier.MaxBackoff)
	}

	switch c.Sync.LockBackend {
	case "memory", "redis":
	default:
		return fmt.Errorf("sync.lock_backend must be 'memory' or 'redis', got %q", c.Sync.LockBackend)
	}
	if c.Sync.LockTTL <= c.Sync.RunTimeout {
		return fmt.Errorf("sync.lock_ttl (%s) must exceed sync.run_timeout (%s)",
			c.Sync.LockTTL, c.Sync.RunTimeout)
	}

	// Production-specific validations
	if c.App.Env == "production" {
		if c.Supplier.APIKey == "" {
			return fmt.Errorf("supplier.api_key is required in production")
		}
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		if c.Sync.LockBackend != "redis" {
			return fmt.Errorf("sync.lock_backend must be 'redis' in production (in-memory locks do not survive multiple replicas)")
		}
	}

	return nil
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// RedisAddr returns the Redis connection address
func (r *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}
