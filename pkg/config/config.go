// ==============================================================================
// CONFIG PACKAGE - pkg/config/config.go
// ==============================================================================
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Storage   StorageConfig
	Wallet    WalletConfig
	Anchor    AnchorConfig
	Events    EventsConfig
	Security  SecurityConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Host           string
	Port           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxBodyBytes   int64
	AllowedOrigins []string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration time.Duration
}

type StorageConfig struct {
	BasePath      string
	Bucket        string
	PublicBaseURL string
	MaxFileSizeMB int
}

type WalletConfig struct {
	UseMock     bool
	SessionFile string
	SessionTTL  time.Duration
}

type AnchorConfig struct {
	ExchangeRate    decimal.Decimal
	CommissionRate  decimal.Decimal
	StartingBalance decimal.Decimal
	RejectOverdraft bool
	GateDuration    time.Duration
	InlineDelay     time.Duration
	BaseFormDelay   time.Duration
	// VerificationTimeout bounds every simulated or store-backed verification.
	VerificationTimeout time.Duration
	SessionTTL          time.Duration
	// UseRecordStore verifies against the KYC record store instead of timers.
	UseRecordStore bool
}

type SecurityConfig struct {
	// EncryptionKey is hex; when set the KYC data column is sealed.
	EncryptionKey string
	HMACKey       string
}

type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

// Load reads configuration from the environment, after loading a .env file
// when one is present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Host:           getEnv("SERVER_HOST", "0.0.0.0"),
			Port:           getEnv("SERVER_PORT", "8080"),
			ReadTimeout:    getDurationEnv("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getDurationEnv("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:    getDurationEnv("SERVER_IDLE_TIMEOUT", 120*time.Second),
			MaxBodyBytes:   int64(getIntEnv("SERVER_MAX_BODY_MB", 12)) << 20,
			AllowedOrigins: getListEnv("CORS_ALLOWED_ORIGINS"),
		},
		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxOpenConns:    getIntEnv("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getIntEnv("DB_MAX_IDLE_CONNS", 25),
			ConnMaxLifetime: getDurationEnv("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL:      normalizeRedisURL(getEnv("REDIS_URL", "localhost:6379")),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret:     getEnv("JWT_SECRET", "change-this-secret"),
			Expiration: getDurationEnv("JWT_EXPIRATION", 24*time.Hour),
		},
		Storage: StorageConfig{
			BasePath:      getEnv("STORAGE_PATH", "./data/storage"),
			Bucket:        getEnv("STORAGE_BUCKET", "kyc-files"),
			PublicBaseURL: getEnv("STORAGE_PUBLIC_URL", "http://localhost:8080/files"),
			MaxFileSizeMB: getIntEnv("KYC_MAX_FILE_SIZE_MB", 10),
		},
		Wallet: WalletConfig{
			UseMock:     getBoolEnv("USE_MOCK_WALLET", false),
			SessionFile: getEnv("WALLET_SESSION_FILE", ".sak/wallet.json"),
			SessionTTL:  getDurationEnv("WALLET_SESSION_TTL", 24*time.Hour),
		},
		Anchor: AnchorConfig{
			ExchangeRate:        getDecimalEnv("ANCHOR_EXCHANGE_RATE", decimal.RequireFromString("1440.00")),
			CommissionRate:      getDecimalEnv("ANCHOR_COMMISSION_RATE", decimal.RequireFromString("0.005")),
			StartingBalance:     getDecimalEnv("ANCHOR_STARTING_BALANCE", decimal.RequireFromString("95400.00")),
			RejectOverdraft:     getBoolEnv("ANCHOR_REJECT_OVERDRAFT", false),
			GateDuration:        getDurationEnv("ANCHOR_GATE_DURATION", 12*time.Second),
			InlineDelay:         getDurationEnv("ANCHOR_INLINE_DELAY", 4*time.Second),
			BaseFormDelay:       getDurationEnv("ANCHOR_BASE_FORM_DELAY", 4*time.Second),
			VerificationTimeout: getDurationEnv("ANCHOR_VERIFICATION_TIMEOUT", time.Minute),
			SessionTTL:          getDurationEnv("ANCHOR_SESSION_TTL", 30*time.Minute),
			UseRecordStore:      getBoolEnv("ANCHOR_USE_RECORD_STORE", false),
		},
		Events: loadEventsConfig(),
		Security: SecurityConfig{
			EncryptionKey: getEnv("ENCRYPTION_KEY", ""),
			HMACKey:       getEnv("HMAC_KEY", ""),
		},
		RateLimit: RateLimitConfig{
			Requests: getIntEnv("RATE_LIMIT_REQUESTS", 120),
			Window:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func normalizeRedisURL(url string) string {
	if strings.HasPrefix(url, "redis+tls://") {
		return url[len("redis+tls://"):]
	}
	if strings.HasPrefix(url, "redis://") {
		return url[len("redis://"):]
	}
	return url
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return defaultValue
}

func getDecimalEnv(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(strings.TrimSpace(value)); err == nil {
			return d
		}
	}
	return defaultValue
}

func getListEnv(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
