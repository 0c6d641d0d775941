// Package config loads engine and server configuration from the
// environment. A .env file is honored when present.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// DefaultSessionLength is the session validity applied when SESSION_LENGTH
// is not configured.
const DefaultSessionLength = 365 * 24 * time.Hour

// Config holds all application configuration.
type Config struct {
	// Server configuration
	AppName         string
	Port            string
	PublicServerURL string
	MasterKey       string

	// Database configuration
	DBType            string // memory, mysql, postgres, sqlite, sqlserver
	DBHost            string
	DBPort            string
	DBDatabase        string
	DBUser            string
	DBPassword        string
	DBConnectionLimit int

	// Engine policy
	AllowClientClassCreation bool
	EnableAnonymousUsers     bool

	// Session policy
	SessionLength                time.Duration
	ExpireInactiveSessions       bool
	RevokeSessionOnPasswordReset bool

	// Email verification policy. A zero validity duration means tokens
	// never expire.
	VerifyUserEmails                 bool
	EmailVerifyTokenValidityDuration time.Duration
}

// Load loads configuration from environment variables, reading .env first
// when one exists.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		AppName:                          getEnv("APP_NAME", "corestore"),
		Port:                             getEnv("PORT", "3000"),
		PublicServerURL:                  getEnv("PUBLIC_SERVER_URL", "http://localhost:3000"),
		MasterKey:                        getEnv("MASTER_KEY", ""),
		DBType:                           getEnv("DB_TYPE", "memory"),
		DBHost:                           getEnv("DB_HOST", "localhost"),
		DBPort:                           getEnv("DB_PORT", "3306"),
		DBDatabase:                       getEnv("DB_DATABASE", ""),
		DBUser:                           getEnv("DB_USER", ""),
		DBPassword:                       getEnv("DB_PASSWORD", ""),
		DBConnectionLimit:                getEnvAsInt("DB_CONNECTION_LIMIT", 5),
		AllowClientClassCreation:         getEnvAsBool("ALLOW_CLIENT_CLASS_CREATION", true),
		EnableAnonymousUsers:             getEnvAsBool("ENABLE_ANONYMOUS_USERS", true),
		SessionLength:                    getEnvAsDuration("SESSION_LENGTH", DefaultSessionLength),
		ExpireInactiveSessions:           getEnvAsBool("EXPIRE_INACTIVE_SESSIONS", true),
		RevokeSessionOnPasswordReset:     getEnvAsBool("REVOKE_SESSION_ON_PASSWORD_RESET", true),
		VerifyUserEmails:                 getEnvAsBool("VERIFY_USER_EMAILS", false),
		EmailVerifyTokenValidityDuration: getEnvAsDuration("EMAIL_VERIFY_TOKEN_VALIDITY_DURATION", 0),
	}

	if cfg.MasterKey == "" {
		return nil, fmt.Errorf("MASTER_KEY is required")
	}
	if cfg.DBType != "memory" && cfg.DBType != "sqlite" && cfg.DBDatabase == "" {
		return nil, fmt.Errorf("DB_DATABASE is required for DB_TYPE=%s", cfg.DBType)
	}

	return cfg, nil
}

// Default returns a configuration suitable for tests and embedded use:
// in-memory storage, open class creation, anonymous users enabled.
func Default() *Config {
	return &Config{
		AppName:                  "corestore",
		Port:                     "3000",
		PublicServerURL:          "http://localhost:3000",
		MasterKey:                "test-master-key",
		DBType:                   "memory",
		AllowClientClassCreation: true,
		EnableAnonymousUsers:     true,
		SessionLength:                DefaultSessionLength,
		ExpireInactiveSessions:       true,
		RevokeSessionOnPasswordReset: true,
	}
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer or returns a default value.
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool gets an environment variable as a boolean or returns a default value.
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a Go duration string
// ("30m", "72h") or returns a default value. Bare integers are seconds.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	if secs, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(secs) * time.Second
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
