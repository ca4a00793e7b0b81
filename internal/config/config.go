package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Logger   LoggerConfig
	Auth     AuthConfig
	Checkout CheckoutConfig
	Stock    StockConfig
	Webhook  WebhookConfig
	Jobs     JobsConfig
	S3       S3Config
}

// ServerConfig holds server-related configuration.
type ServerConfig struct {
	Host string
	Port int
}

// DatabaseConfig holds database-related configuration.
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	MaxConnections  int
	MinConnections  int
	MaxConnLifetime int // seconds
}

// LoggerConfig holds logger-related configuration.
type LoggerConfig struct {
	Level  string
	Format string // "json" or "console"
}

// AuthConfig holds authentication configuration.
type AuthConfig struct {
	APIKey string
}

// CheckoutConfig holds cart and pricing knobs.
type CheckoutConfig struct {
	// FreeShippingThreshold is the subtotal at which shipping becomes free.
	FreeShippingThreshold float64

	// FlatShippingFee is charged below the threshold.
	FlatShippingFee float64

	// PromoDiscountPercent is the cart-level discount a valid promo code grants.
	PromoDiscountPercent float64

	// CartTTLHours is how long an untouched cart stays active before the
	// sweep marks it abandoned.
	CartTTLHours int
}

// StockConfig holds inventory configuration.
type StockConfig struct {
	// LowStockDefault is the store-wide low-stock threshold used when
	// neither the unit nor its product sets one.
	LowStockDefault int
}

// WebhookConfig holds webhook gate configuration.
type WebhookConfig struct {
	// Secrets maps a payment provider name to its HMAC signing secret.
	Secrets map[string]string

	// RetentionDays is how long processed events stay in the ledger. It must
	// exceed every provider's maximum redelivery window.
	RetentionDays int
}

// JobsConfig holds job dispatch configuration.
type JobsConfig struct {
	WorkerCount         int
	PollIntervalSeconds int
	MaxAttempts         int
	RetryFloorSeconds   int
	RetryCapSeconds     int
	LockTimeoutSeconds  int
}

// S3Config holds AWS S3 configuration for promo code files.
type S3Config struct {
	Enabled bool
	Bucket  string
	Region  string
	Prefix  string // Path prefix within bucket (e.g., "promos/")
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: getEnvAsInt("SERVER_PORT", 8080),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvAsInt("DB_PORT", 5432),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", ""),
			Database:        getEnv("DB_NAME", "storecore"),
			MaxConnections:  getEnvAsInt("DB_MAX_CONNECTIONS", 25),
			MinConnections:  getEnvAsInt("DB_MIN_CONNECTIONS", 5),
			MaxConnLifetime: getEnvAsInt("DB_MAX_CONN_LIFETIME", 300),
		},
		Logger: LoggerConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Auth: AuthConfig{
			APIKey: getEnv("API_KEY", ""),
		},
		Checkout: CheckoutConfig{
			FreeShippingThreshold: getEnvAsFloat("FREE_SHIPPING_THRESHOLD", 100.0),
			FlatShippingFee:       getEnvAsFloat("FLAT_SHIPPING_FEE", 7.95),
			PromoDiscountPercent:  getEnvAsFloat("PROMO_DISCOUNT_PERCENT", 10.0),
			CartTTLHours:          getEnvAsInt("CART_TTL_HOURS", 72),
		},
		Stock: StockConfig{
			LowStockDefault: getEnvAsInt("LOW_STOCK_DEFAULT", 5),
		},
		Webhook: WebhookConfig{
			Secrets:       parseSecrets(getEnv("WEBHOOK_SECRETS", "")),
			RetentionDays: getEnvAsInt("WEBHOOK_RETENTION_DAYS", 30),
		},
		Jobs: JobsConfig{
			WorkerCount:         getEnvAsInt("JOB_WORKER_COUNT", 4),
			PollIntervalSeconds: getEnvAsInt("JOB_POLL_INTERVAL", 2),
			MaxAttempts:         getEnvAsInt("JOB_MAX_ATTEMPTS", 8),
			RetryFloorSeconds:   getEnvAsInt("JOB_RETRY_FLOOR", 30),
			RetryCapSeconds:     getEnvAsInt("JOB_RETRY_CAP", 900),
			LockTimeoutSeconds:  getEnvAsInt("JOB_LOCK_TIMEOUT", 300),
		},
		S3: S3Config{
			Enabled: getEnvAsBool("S3_ENABLED", false),
			Bucket:  getEnv("S3_BUCKET", ""),
			Region:  getEnv("S3_REGION", "us-east-1"),
			Prefix:  getEnv("S3_PREFIX", "promos/"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("invalid database port: %d", c.Database.Port)
	}

	if c.Database.User == "" {
		return fmt.Errorf("database user is required")
	}

	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	if c.Database.MaxConnections < 1 {
		return fmt.Errorf("database max connections must be at least 1")
	}

	if c.Database.MinConnections < 1 {
		return fmt.Errorf("database min connections must be at least 1")
	}

	if c.Database.MinConnections > c.Database.MaxConnections {
		return fmt.Errorf("database min connections cannot exceed max connections")
	}

	if c.Auth.APIKey == "" {
		return fmt.Errorf("API key is required")
	}

	if c.Checkout.FreeShippingThreshold < 0 {
		return fmt.Errorf("free shipping threshold cannot be negative")
	}

	if c.Checkout.FlatShippingFee < 0 {
		return fmt.Errorf("flat shipping fee cannot be negative")
	}

	if c.Checkout.PromoDiscountPercent < 0 || c.Checkout.PromoDiscountPercent > 100 {
		return fmt.Errorf("promo discount percent must be between 0 and 100")
	}

	if c.Checkout.CartTTLHours < 1 {
		return fmt.Errorf("cart TTL must be at least 1 hour")
	}

	if c.Stock.LowStockDefault < 0 {
		return fmt.Errorf("low stock default cannot be negative")
	}

	if c.Webhook.RetentionDays < 1 {
		return fmt.Errorf("webhook retention must be at least 1 day")
	}

	if c.Jobs.WorkerCount < 1 {
		return fmt.Errorf("job worker count must be at least 1")
	}

	if c.Jobs.MaxAttempts < 1 {
		return fmt.Errorf("job max attempts must be at least 1")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if !validLogLevels[c.Logger.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}

	if c.Logger.Format != "json" && c.Logger.Format != "console" {
		return fmt.Errorf("invalid log format: %s (must be json or console)", c.Logger.Format)
	}

	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			return fmt.Errorf("S3 bucket is required when S3 is enabled")
		}
		if c.S3.Region == "" {
			return fmt.Errorf("S3 region is required when S3 is enabled")
		}
	}

	return nil
}

// ConnectionString returns the PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.User,
		c.Password,
		c.Host,
		c.Port,
		c.Database,
	)
}

// Address returns the server address.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// parseSecrets parses "provider:secret,provider:secret" pairs.
func parseSecrets(raw string) map[string]string {
	secrets := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.SplitN(pair, ":", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			continue
		}
		secrets[parts[0]] = parts[1]
	}
	return secrets
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value.
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvAsFloat retrieves an environment variable as a float or returns a default value.
func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value.
func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
