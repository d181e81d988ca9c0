// Package config loads process configuration from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Auth     AuthConfig
	Email    EmailConfig
	Limits   LimitsConfig
	AML      AMLConfig
	Sweeps   SweepConfig
}

type ServerConfig struct {
	Host         string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
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

type AuthConfig struct {
	JWTSecret string
}

type EmailConfig struct {
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
	SMTPUseTLS   bool
}

// LimitsConfig holds the fixed per-role ceilings and lifecycle windows.
type LimitsConfig struct {
	MerchantDailyCollection int64
	CashierDailyTransfer    int64
	TransactionTTL          time.Duration
	QrCodeTTL               time.Duration
}

type AMLConfig struct {
	LargeAmountThreshold int64
	ReportingThreshold   int64
	MaxDailyCount        int
	RapidWindow          time.Duration
	RapidCount           int
}

type SweepConfig struct {
	WalletResetInterval time.Duration
	ExpiryInterval      time.Duration
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnv("SERVER_PORT", "8080"),
			ReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 10*time.Second),
			IdleTimeout:  getDurationEnv("SERVER_IDLE_TIMEOUT", 120*time.Second),
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
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", "change-this-secret"),
		},
		Email: EmailConfig{
			SMTPHost:     getEnv("SMTP_HOST", "smtp.gmail.com"),
			SMTPPort:     getIntEnv("SMTP_PORT", 587),
			SMTPUsername: getEnv("SMTP_USERNAME", ""),
			SMTPPassword: getEnv("SMTP_PASSWORD", ""),
			SMTPFrom:     getEnv("SMTP_FROM", ""),
			SMTPUseTLS:   getBoolEnv("SMTP_USE_TLS", true),
		},
		Limits: LimitsConfig{
			MerchantDailyCollection: getInt64Env("MERCHANT_DAILY_COLLECTION_LIMIT", 1_000_000),
			CashierDailyTransfer:    getInt64Env("CASHIER_DAILY_TRANSFER_LIMIT", 1_000_000),
			TransactionTTL:          getDurationEnv("TRANSACTION_TTL", 120*time.Second),
			QrCodeTTL:               getDurationEnv("QR_CODE_TTL", 120*time.Second),
		},
		AML: AMLConfig{
			LargeAmountThreshold: getInt64Env("AML_LARGE_AMOUNT_THRESHOLD", 500_000),
			ReportingThreshold:   getInt64Env("AML_REPORTING_THRESHOLD", 250_000),
			MaxDailyCount:        getIntEnv("AML_MAX_DAILY_COUNT", 20),
			RapidWindow:          getDurationEnv("AML_RAPID_WINDOW", 5*time.Minute),
			RapidCount:           getIntEnv("AML_RAPID_COUNT", 3),
		},
		Sweeps: SweepConfig{
			WalletResetInterval: getDurationEnv("WALLET_RESET_SWEEP_INTERVAL", 10*time.Minute),
			ExpiryInterval:      getDurationEnv("EXPIRY_SWEEP_INTERVAL", 30*time.Second),
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
	// Strip redis:// or redis+tls:// scheme if present
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

func getInt64Env(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
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
