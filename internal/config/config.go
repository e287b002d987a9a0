// Package config loads and validates the proxy's configuration from
// environment variables.
//
// Environment variables:
//
// Application settings:
//   - PORT: server port (default: 8080)
//   - LOG_LEVEL: logging level (default: info)
//   - JWT_SECRET: HS256 secret protecting the tags endpoint (optional;
//     endpoint is unauthenticated when unset, minimum 32 characters when set)
//
// Redis (credential store backend):
//   - REDIS_ADDRESS: Redis server address (default: localhost:6379)
//   - REDIS_PASSWORD: Redis password
//   - REDIS_DB: Redis database number 0-15 (default: 0)
//   - REDIS_POOL_SIZE: Redis connection pool size (default: 10)
//   - CREDENTIALS_KEY: hash key of the credential record (default: zoho:credentials)
//
// CRM connection:
//   - ZOHO_API_DOMAIN: CRM API base URL (default: https://www.zohoapis.com)
//   - ZOHO_ACCOUNTS_URL: token endpoint base URL (optional; the credential
//     record's accounts_url wins when this is unset)
//   - ZOHO_REDIRECT_URI: redirect URI of the app registration, sent with the
//     authorization code grant
//
// First-boot credential seeding (written to the store only when no record exists):
//   - ZOHO_CLIENT_ID, ZOHO_CLIENT_SECRET, ZOHO_AUTHORIZATION_CODE
package config

import (
	"os"
	"strconv"

	"crm-tag-proxy/internal/common/errors"
)

// Config holds all configuration values for the proxy.
type Config struct {
	Port     string
	LogLevel string

	// Redis configuration for the credential store
	RedisAddress   string
	RedisPassword  string
	RedisDB        string
	RedisPoolSize  string
	CredentialsKey string

	// CRM connection
	APIDomain   string
	AccountsURL string
	RedirectURI string

	// First-boot credential seeding
	ClientID          string
	ClientSecret      string
	AuthorizationCode string

	// Inbound auth (optional)
	JWTSecret string
}

// Load creates a Config from environment variables. It does not validate;
// call Validate on the result before use.
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		RedisAddress:   getEnv("REDIS_ADDRESS", "localhost:6379"),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		RedisDB:        getEnv("REDIS_DB", "0"),
		RedisPoolSize:  getEnv("REDIS_POOL_SIZE", "10"),
		CredentialsKey: getEnv("CREDENTIALS_KEY", "zoho:credentials"),

		APIDomain:   getEnv("ZOHO_API_DOMAIN", "https://www.zohoapis.com"),
		AccountsURL: getEnv("ZOHO_ACCOUNTS_URL", ""),
		RedirectURI: getEnv("ZOHO_REDIRECT_URI", ""),

		ClientID:          getEnv("ZOHO_CLIENT_ID", ""),
		ClientSecret:      getEnv("ZOHO_CLIENT_SECRET", ""),
		AuthorizationCode: getEnv("ZOHO_AUTHORIZATION_CODE", ""),

		JWTSecret: getEnv("JWT_SECRET", ""),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// RedisDBNumber returns the parsed Redis database number.
func (c *Config) RedisDBNumber() int {
	db, _ := strconv.Atoi(c.RedisDB)
	return db
}

// RedisPoolSizeNumber returns the parsed Redis pool size.
func (c *Config) RedisPoolSizeNumber() int {
	size, _ := strconv.Atoi(c.RedisPoolSize)
	return size
}

// Validate ensures all required values are present and well-formed.
func (c *Config) Validate() error {
	if port, err := strconv.Atoi(c.Port); err != nil || port < 1 || port > 65535 {
		return errors.ConfigError("PORT must be a valid port number between 1 and 65535")
	}

	if db, err := strconv.Atoi(c.RedisDB); err != nil || db < 0 || db > 15 {
		return errors.ConfigError("REDIS_DB must be a number between 0 and 15")
	}

	if size, err := strconv.Atoi(c.RedisPoolSize); err != nil || size < 1 {
		return errors.ConfigError("REDIS_POOL_SIZE must be a positive number")
	}

	if c.JWTSecret != "" && len(c.JWTSecret) < 32 {
		return errors.ConfigError("JWT_SECRET must be at least 32 characters long when set")
	}

	return nil
}
