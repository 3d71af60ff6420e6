// Package config provides configuration management for tidegate services.
package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"
	"time"
)

// Rule source kinds.
const (
	RulesSourceFile = "file"
	RulesSourceDB   = "db"
)

// IP intelligence providers.
const (
	ProviderIPAPI = "ip-api"
	ProviderGeoIP = "geoip"
)

// IP cache backends.
const (
	CacheFile   = "file"
	CacheMemory = "memory"
	CacheRedis  = "redis"
	CacheDB     = "db"
)

// ServerConfig holds HTTP and gRPC listener settings.
type ServerConfig struct {
	Host           string
	HTTPPort       int
	GRPCPort       int
	RequestTimeout time.Duration
	DataDir        string
	AllowedOrigin  string
	MaxBodyBytes   int64
}

// RulesConfig selects where rules are read from on every decision.
type RulesConfig struct {
	Source string
	Path   string
}

// IPIntelConfig configures the IP intelligence resolver.
type IPIntelConfig struct {
	Provider         string
	Endpoint         string
	Fields           int
	Timeout          time.Duration
	Cache            string
	CacheDir         string
	CacheSize        int
	RedisAddr        string
	RedisDB          int
	RedisPrefix      string
	GeoIPCityDB      string
	GeoIPASNDB       string
	GeoIPAnonymousDB string
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level      string
	Format     string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Config is the complete service configuration.
type Config struct {
	Server      ServerConfig
	Rules       RulesConfig
	IPIntel     IPIntelConfig
	Log         LogConfig
	DecisionLog bool
}

// Default returns configuration with default values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			HTTPPort:       8080,
			GRPCPort:       50051,
			RequestTimeout: 30 * time.Second,
			DataDir:        "./data",
			AllowedOrigin:  "*",
			MaxBodyBytes:   1024 * 1024,
		},
		Rules: RulesConfig{
			Source: RulesSourceFile,
			Path:   "./settings.json",
		},
		IPIntel: IPIntelConfig{
			Provider:  ProviderIPAPI,
			Endpoint:  "http://ip-api.com/json/",
			Fields:    66846719,
			Timeout:   2 * time.Second,
			Cache:     CacheFile,
			CacheDir:  "./data/ipcache",
			CacheSize: 10000,
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "json",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
		DecisionLog: true,
	}
}

// RedisPassword reads the Redis password from TG_REDIS_PASSWORD.
// Environment-only, like every other secret.
func RedisPassword() string {
	return os.Getenv("TG_REDIS_PASSWORD")
}

// HMACSecrets extracts HMAC secrets from environment variables.
// Supports TG_HMAC_SECRET (single) and TG_HMAC_SECRET_N (rotation).
// Returns map of secret_id -> decoded secret bytes.
// Secret IDs are UUIDv7 (32 hex chars without hyphens) matching API key format.
func HMACSecrets() (map[string][]byte, error) {
	secrets := make(map[string][]byte)

	// Format: <secret_id>:<base64_secret>
	if val := os.Getenv("TG_HMAC_SECRET"); val != "" {
		secretID, decoded, err := ParseHMACSecretWithID(val)
		if err != nil {
			return nil, fmt.Errorf("TG_HMAC_SECRET: %w", err)
		}
		secrets[secretID] = decoded
	}

	// Numbered secrets keep old and new keys valid during rotation
	for i := 1; ; i++ {
		key := fmt.Sprintf("TG_HMAC_SECRET_%d", i)
		val := os.Getenv(key)
		if val == "" {
			break
		}
		secretID, decoded, err := ParseHMACSecretWithID(val)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		if _, exists := secrets[secretID]; exists {
			return nil, fmt.Errorf("duplicate secret_id '%s' found in environment variables (check TG_HMAC_SECRET and TG_HMAC_SECRET_* for conflicts)", secretID)
		}
		secrets[secretID] = decoded
	}

	return secrets, nil
}

// ParseHMACSecretWithID parses secret_id:base64_secret format.
// Secret ID must be 32 hex chars (UUIDv7 without hyphens).
func ParseHMACSecretWithID(envValue string) (secretID string, secret []byte, err error) {
	parts := strings.SplitN(strings.TrimSpace(envValue), ":", 2)
	if len(parts) != 2 {
		return "", nil, fmt.Errorf("format must be <secret_id>:<base64_secret>")
	}

	secretID = parts[0]
	if len(secretID) != 32 {
		return "", nil, fmt.Errorf("secret_id must be 32 hex chars (UUIDv7 without hyphens)")
	}

	for _, c := range secretID {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return "", nil, fmt.Errorf("secret_id must be hex chars only")
		}
	}

	secret, err = base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return "", nil, fmt.Errorf("invalid base64 encoding: %w", err)
	}

	if len(secret) < 32 {
		return "", nil, fmt.Errorf("secret must be at least 32 bytes, got %d", len(secret))
	}

	return secretID, secret, nil
}
