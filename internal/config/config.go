// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds all configuration for our application
type Config struct {
	App         AppConfig
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	JWT         JWTConfig
	Security    SecurityConfig
	Queue       QueueConfig
	Marketplace MarketplaceConfig
	External    ExternalConfig
	Logging     LoggingConfig
}

// AppConfig contains application-level configuration
type AppConfig struct {
	Name        string
	Version     string
	Environment string
	Debug       bool
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	RequestTimeout time.Duration
}

// DatabaseConfig contains database connection configuration
type DatabaseConfig struct {
	Host         string
	Port         string
	Name         string
	User         string
	Password     string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
	AutoMigrate  bool
	SlowQuery    time.Duration
}

// RedisConfig contains Redis configuration
type RedisConfig struct {
	Host         string
	Port         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
}

// JWTConfig contains JWT token configuration
type JWTConfig struct {
	Secret             string
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration
}

// SecurityConfig contains security-related configuration
type SecurityConfig struct {
	BcryptCost         int
	RateLimitPerMinute int
	CORSAllowedOrigins []string
	CORSAllowedMethods []string
	CORSAllowedHeaders []string
	TrustedProxies     []string
}

// QueueConfig selects and configures the background job transport
type QueueConfig struct {
	Driver         string // redis, kafka or memory
	RedisKey       string
	KafkaBrokers   []string
	KafkaTopic     string
	KafkaGroupID   string
	PollTimeout    time.Duration
	IdempotencyTTL time.Duration
	Workers        int
	ReplayInterval time.Duration
}

// MarketplaceConfig holds the flat business rules applied at checkout and settlement
type MarketplaceConfig struct {
	AccountUserID     uint
	Currency          string
	TaxRate           decimal.Decimal
	DefaultShipping   decimal.Decimal
	DefaultCommission decimal.Decimal
}

// ExternalConfig contains external service configurations
type ExternalConfig struct {
	Payment PaymentConfig
	Email   EmailConfig
}

// PaymentConfig contains webhook secrets keyed by provider name
type PaymentConfig struct {
	WebhookSecrets map[string]string
}

// EmailConfig contains email service configuration
type EmailConfig struct {
	Provider     string // smtp, resend or log
	FromEmail    string
	FromName     string
	ReplyTo      string
	BaseURL      string
	APIKey       string
	APIURL       string
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// Load loads configuration from environment variables and .env file
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found, using environment variables")
	}

	config := &Config{
		App: AppConfig{
			Name:        getEnv("APP_NAME", "Marketplace Backend"),
			Version:     getEnv("APP_VERSION", "1.0.0"),
			Environment: getEnv("APP_ENV", "development"),
			Debug:       getEnvAsBool("APP_DEBUG", true),
		},
		Server: ServerConfig{
			Port:           getEnv("APP_PORT", "8080"),
			ReadTimeout:    getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:   getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:    getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			RequestTimeout: getEnvAsDuration("SERVER_REQUEST_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			Name:         getEnv("DB_NAME", "marketplace_db"),
			User:         getEnv("DB_USER", "marketplace_user"),
			Password:     getEnv("DB_PASSWORD", "marketplace_password"),
			SSLMode:      getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			MaxLifetime:  getEnvAsDuration("DB_MAX_LIFETIME", 300*time.Second),
			AutoMigrate:  getEnvAsBool("DB_AUTO_MIGRATE", false),
			SlowQuery:    getEnvAsDuration("DB_SLOW_QUERY", 200*time.Millisecond),
		},
		Redis: RedisConfig{
			Host:         getEnv("REDIS_HOST", "localhost"),
			Port:         getEnv("REDIS_PORT", "6379"),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getEnvAsInt("REDIS_DB", 0),
			PoolSize:     getEnvAsInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvAsInt("REDIS_MIN_IDLE_CONNS", 5),
		},
		JWT: JWTConfig{
			Secret:             getEnv("JWT_SECRET", "your-super-secret-jwt-key-change-in-production"),
			AccessTokenExpiry:  getEnvAsDuration("JWT_ACCESS_EXPIRE", 24*time.Hour),
			RefreshTokenExpiry: getEnvAsDuration("JWT_REFRESH_EXPIRE", 7*24*time.Hour),
		},
		Security: SecurityConfig{
			BcryptCost:         getEnvAsInt("BCRYPT_COST", 12),
			RateLimitPerMinute: getEnvAsInt("RATE_LIMIT_PER_MINUTE", 100),
			CORSAllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
			CORSAllowedMethods: getEnvAsSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}),
			CORSAllowedHeaders: getEnvAsSlice("CORS_ALLOWED_HEADERS", []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"}),
			TrustedProxies:     getEnvAsSlice("TRUSTED_PROXIES", []string{}),
		},
		Queue: QueueConfig{
			Driver:         getEnv("QUEUE_DRIVER", "redis"),
			RedisKey:       getEnv("QUEUE_REDIS_KEY", "marketplace:jobs"),
			KafkaBrokers:   getEnvAsSlice("KAFKA_BROKERS", []string{"localhost:9092"}),
			KafkaTopic:     getEnv("KAFKA_TOPIC", "marketplace-jobs"),
			KafkaGroupID:   getEnv("KAFKA_GROUP_ID", "marketplace-worker"),
			PollTimeout:    getEnvAsDuration("QUEUE_POLL_TIMEOUT", 5*time.Second),
			IdempotencyTTL: getEnvAsDuration("QUEUE_IDEMPOTENCY_TTL", 7*24*time.Hour),
			Workers:        getEnvAsInt("QUEUE_WORKERS", 4),
			ReplayInterval: getEnvAsDuration("WEBHOOK_REPLAY_INTERVAL", time.Minute),
		},
		Marketplace: MarketplaceConfig{
			AccountUserID:     uint(getEnvAsInt("MARKETPLACE_ACCOUNT_ID", 1)),
			Currency:          getEnv("MARKETPLACE_CURRENCY", "USD"),
			TaxRate:           getEnvAsDecimal("MARKETPLACE_TAX_RATE", decimal.RequireFromString("0.10")),
			DefaultShipping:   getEnvAsDecimal("MARKETPLACE_DEFAULT_SHIPPING", decimal.RequireFromString("10.00")),
			DefaultCommission: getEnvAsDecimal("MARKETPLACE_DEFAULT_COMMISSION", decimal.RequireFromString("15.00")),
		},
		External: ExternalConfig{
			Payment: PaymentConfig{
				WebhookSecrets: getEnvAsMap("PAYMENT_WEBHOOK_SECRETS", map[string]string{}),
			},
			Email: EmailConfig{
				Provider:     getEnv("EMAIL_PROVIDER", "log"),
				FromEmail:    getEnv("FROM_EMAIL", "noreply@example.com"),
				FromName:     getEnv("FROM_NAME", "Marketplace"),
				ReplyTo:      getEnv("REPLY_TO_EMAIL", ""),
				BaseURL:      getEnv("APP_BASE_URL", "http://localhost:3000"),
				APIKey:       getEnv("EMAIL_API_KEY", ""),
				APIURL:       getEnv("EMAIL_API_URL", "https://api.resend.com/emails"),
				SMTPHost:     getEnv("SMTP_HOST", ""),
				SMTPPort:     getEnvAsInt("SMTP_PORT", 587),
				SMTPUsername: getEnv("SMTP_USER", ""),
				SMTPPassword: getEnv("SMTP_PASS", ""),
			},
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "debug"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if len(c.JWT.Secret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters long")
	}

	if c.Database.Host == "" {
		return fmt.Errorf("DB_HOST is required")
	}
	if c.Database.Name == "" {
		return fmt.Errorf("DB_NAME is required")
	}
	if c.Database.User == "" {
		return fmt.Errorf("DB_USER is required")
	}

	if c.Redis.Host == "" {
		return fmt.Errorf("REDIS_HOST is required")
	}

	if c.Server.Port == "" {
		return fmt.Errorf("APP_PORT is required")
	}

	switch c.Queue.Driver {
	case "redis", "memory":
	case "kafka":
		if len(c.Queue.KafkaBrokers) == 0 || c.Queue.KafkaTopic == "" {
			return fmt.Errorf("KAFKA_BROKERS and KAFKA_TOPIC are required for the kafka queue driver")
		}
	default:
		return fmt.Errorf("unsupported QUEUE_DRIVER: %s", c.Queue.Driver)
	}

	switch c.External.Email.Provider {
	case "log", "smtp":
	case "resend":
		if c.External.Email.APIKey == "" {
			return fmt.Errorf("EMAIL_API_KEY is required for the resend email provider")
		}
	default:
		return fmt.Errorf("unsupported EMAIL_PROVIDER: %s", c.External.Email.Provider)
	}

	if c.Marketplace.AccountUserID == 0 {
		return fmt.Errorf("MARKETPLACE_ACCOUNT_ID is required")
	}
	if c.Marketplace.TaxRate.IsNegative() || c.Marketplace.DefaultShipping.IsNegative() {
		return fmt.Errorf("tax rate and default shipping must not be negative")
	}
	if c.Marketplace.DefaultCommission.IsNegative() || c.Marketplace.DefaultCommission.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("MARKETPLACE_DEFAULT_COMMISSION must be between 0 and 100")
	}

	return nil
}

// IsDevelopment returns true if the application is running in development mode
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// IsProduction returns true if the application is running in production mode
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// GetDatabaseDSN returns the database connection string
func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

// GetDatabaseURL returns the connection string in URL form, as expected by pgx and golang-migrate
func (c *Config) GetDatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

// GetRedisAddr returns the Redis address
func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", c.Redis.Host, c.Redis.Port)
}

// Helper functions for environment variable parsing

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}

func getEnvAsDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvAsMap parses "name:value,name2:value2"
func getEnvAsMap(key string, defaultValue map[string]string) map[string]string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	result := make(map[string]string)
	for _, pair := range strings.Split(value, ",") {
		name, secret, ok := strings.Cut(strings.TrimSpace(pair), ":")
		if !ok || name == "" {
			continue
		}
		result[name] = secret
	}
	return result
}
