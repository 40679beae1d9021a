package app

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Issuer string // Issuer label shown in authenticator apps

	DatabaseFile  string // Path to SQLite database file (default: ./twofactor.db)
	MasterKeyPath string // Optional: path to master key file for secret sealing

	ServiceTokenSecret   string // Required: HS256 secret shared with the Caseloop app
	ServiceTokenIssuer   string // Expected iss claim on service tokens
	ServiceTokenAudience string // Expected aud claim on service tokens

	NonceTTL         time.Duration // Verification nonce lifetime (default: 5m)
	TOTPStep         time.Duration // TOTP period length (default: 30s)
	TOTPSkew         int           // Accepted periods either side of now (default: 1)
	TrustTTL         time.Duration // Device-trust grant lifetime (default: 30 days)
	TrustRotateAfter time.Duration // Grant age that triggers rotation (default: 7 days)

	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Housekeeping interval (default: 1h)
}

func LoadConfig() Config {
	cfg := Config{
		Issuer:        getEnvOrDefault("TWOFA_ISSUER", "Caseloop"),
		DatabaseFile:  getEnvOrDefault("TWOFA_DATABASE_FILE", "twofactor.db"),
		MasterKeyPath: os.Getenv("TWOFA_MASTER_KEY_PATH"), // Optional; falls back to TWOFA_MASTER_KEY

		ServiceTokenSecret:   os.Getenv("TWOFA_SERVICE_TOKEN_SECRET"),
		ServiceTokenIssuer:   getEnvOrDefault("TWOFA_SERVICE_TOKEN_ISSUER", "caseloop"),
		ServiceTokenAudience: getEnvOrDefault("TWOFA_SERVICE_TOKEN_AUDIENCE", "caseloop-twofactor"),

		NonceTTL:         getEnvDurationOrDefault("TWOFA_NONCE_TTL", 5*time.Minute),
		TOTPStep:         getEnvDurationOrDefault("TWOFA_TOTP_STEP", 30*time.Second),
		TOTPSkew:         getEnvIntOrDefault("TWOFA_TOTP_SKEW", 1),
		TrustTTL:         getEnvDurationOrDefault("TWOFA_TRUST_TTL", 30*24*time.Hour),
		TrustRotateAfter: getEnvDurationOrDefault("TWOFA_TRUST_ROTATE_AFTER", 7*24*time.Hour),

		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 1*time.Hour),
	}

	return cfg
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Accept duration strings (e.g. "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Accept bare integers as minutes
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}
