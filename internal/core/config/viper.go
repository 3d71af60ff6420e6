package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// maxIPLookupTimeout caps the outbound IP lookup on the decision path.
const maxIPLookupTimeout = 2 * time.Second

// LoadConfig loads configuration from file using viper.
// CLI flags > environment > config file > defaults precedence.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	// Bind environment variables with TG_ prefix (server.http_port -> TG_SERVER_HTTP_PORT)
	v.SetEnvPrefix("TG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Secrets must be environment-only
	if err := validateNoSecretsInConfig(v); err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:           v.GetString("server.host"),
			HTTPPort:       v.GetInt("server.http_port"),
			GRPCPort:       v.GetInt("server.grpc_port"),
			RequestTimeout: v.GetDuration("server.request_timeout"),
			DataDir:        v.GetString("server.data_dir"),
			AllowedOrigin:  v.GetString("server.allowed_origin"),
			MaxBodyBytes:   v.GetInt64("server.max_body_bytes"),
		},
		Rules: RulesConfig{
			Source: strings.ToLower(v.GetString("rules.source")),
			Path:   v.GetString("rules.path"),
		},
		IPIntel: IPIntelConfig{
			Provider:         strings.ToLower(v.GetString("ipintel.provider")),
			Endpoint:         v.GetString("ipintel.endpoint"),
			Fields:           v.GetInt("ipintel.fields"),
			Timeout:          v.GetDuration("ipintel.timeout"),
			Cache:            strings.ToLower(v.GetString("ipintel.cache")),
			CacheDir:         v.GetString("ipintel.cache_dir"),
			CacheSize:        v.GetInt("ipintel.cache_size"),
			RedisAddr:        v.GetString("ipintel.redis_addr"),
			RedisDB:          v.GetInt("ipintel.redis_db"),
			RedisPrefix:      v.GetString("ipintel.redis_prefix"),
			GeoIPCityDB:      v.GetString("ipintel.geoip_city_db"),
			GeoIPASNDB:       v.GetString("ipintel.geoip_asn_db"),
			GeoIPAnonymousDB: v.GetString("ipintel.geoip_anonymous_db"),
		},
		Log: LogConfig{
			Level:      v.GetString("log.level"),
			Format:     v.GetString("log.format"),
			File:       v.GetString("log.file"),
			MaxSizeMB:  v.GetInt("log.max_size_mb"),
			MaxBackups: v.GetInt("log.max_backups"),
			MaxAgeDays: v.GetInt("log.max_age_days"),
			Compress:   v.GetBool("log.compress"),
		},
		DecisionLog: v.GetBool("decision_log.enabled"),
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.http_port", d.Server.HTTPPort)
	v.SetDefault("server.grpc_port", d.Server.GRPCPort)
	v.SetDefault("server.request_timeout", d.Server.RequestTimeout.String())
	v.SetDefault("server.data_dir", d.Server.DataDir)
	v.SetDefault("server.allowed_origin", d.Server.AllowedOrigin)
	v.SetDefault("server.max_body_bytes", d.Server.MaxBodyBytes)

	v.SetDefault("rules.source", d.Rules.Source)
	v.SetDefault("rules.path", d.Rules.Path)

	v.SetDefault("ipintel.provider", d.IPIntel.Provider)
	v.SetDefault("ipintel.endpoint", d.IPIntel.Endpoint)
	v.SetDefault("ipintel.fields", d.IPIntel.Fields)
	v.SetDefault("ipintel.timeout", d.IPIntel.Timeout.String())
	v.SetDefault("ipintel.cache", d.IPIntel.Cache)
	v.SetDefault("ipintel.cache_dir", d.IPIntel.CacheDir)
	v.SetDefault("ipintel.cache_size", d.IPIntel.CacheSize)
	v.SetDefault("ipintel.redis_addr", "")
	v.SetDefault("ipintel.redis_db", 0)
	v.SetDefault("ipintel.redis_prefix", "")
	v.SetDefault("ipintel.geoip_city_db", "")
	v.SetDefault("ipintel.geoip_asn_db", "")
	v.SetDefault("ipintel.geoip_anonymous_db", "")

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.max_age_days", d.Log.MaxAgeDays)
	v.SetDefault("log.compress", d.Log.Compress)

	v.SetDefault("decision_log.enabled", d.DecisionLog)
}

// validateConfig checks ports, timeouts and enum values.
func validateConfig(cfg *Config) error {
	if cfg.Server.HTTPPort <= 0 || cfg.Server.HTTPPort > 65535 {
		return fmt.Errorf("http_port must be between 1 and 65535, got %d", cfg.Server.HTTPPort)
	}
	if cfg.Server.GRPCPort <= 0 || cfg.Server.GRPCPort > 65535 {
		return fmt.Errorf("grpc_port must be between 1 and 65535, got %d", cfg.Server.GRPCPort)
	}
	if cfg.Server.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive, got %v", cfg.Server.RequestTimeout)
	}
	if cfg.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("max_body_bytes must be positive, got %d", cfg.Server.MaxBodyBytes)
	}

	switch cfg.Rules.Source {
	case RulesSourceFile:
		if cfg.Rules.Path == "" {
			return fmt.Errorf("rules.path required for file rule source")
		}
	case RulesSourceDB:
	default:
		return fmt.Errorf("rules.source must be %q or %q, got %q", RulesSourceFile, RulesSourceDB, cfg.Rules.Source)
	}

	switch cfg.IPIntel.Provider {
	case ProviderIPAPI:
	case ProviderGeoIP:
		if cfg.IPIntel.GeoIPCityDB == "" {
			return fmt.Errorf("ipintel.geoip_city_db required for geoip provider")
		}
	default:
		return fmt.Errorf("ipintel.provider must be %q or %q, got %q", ProviderIPAPI, ProviderGeoIP, cfg.IPIntel.Provider)
	}
	if cfg.IPIntel.Timeout <= 0 || cfg.IPIntel.Timeout > maxIPLookupTimeout {
		return fmt.Errorf("ipintel.timeout must be in (0, %v], got %v", maxIPLookupTimeout, cfg.IPIntel.Timeout)
	}

	switch cfg.IPIntel.Cache {
	case CacheFile:
		if cfg.IPIntel.CacheDir == "" {
			return fmt.Errorf("ipintel.cache_dir required for file cache")
		}
	case CacheMemory:
		if cfg.IPIntel.CacheSize <= 0 {
			return fmt.Errorf("ipintel.cache_size must be positive, got %d", cfg.IPIntel.CacheSize)
		}
	case CacheRedis:
		if cfg.IPIntel.RedisAddr == "" {
			return fmt.Errorf("ipintel.redis_addr required for redis cache")
		}
	case CacheDB:
	default:
		return fmt.Errorf("ipintel.cache must be one of file, memory, redis, db, got %q", cfg.IPIntel.Cache)
	}

	switch strings.ToLower(cfg.Log.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("log.format must be json or text, got %q", cfg.Log.Format)
	}

	return nil
}

// NeedsDatabase reports whether any configured component reads the database.
func (c *Config) NeedsDatabase() bool {
	return c.Rules.Source == RulesSourceDB || c.IPIntel.Cache == CacheDB
}

// validateNoSecretsInConfig enforces environment-only secrets.
func validateNoSecretsInConfig(v *viper.Viper) error {
	if v.IsSet("hmac_secret") || v.IsSet("server.hmac_secret") {
		return fmt.Errorf("HMAC secrets not allowed in config files (use TG_HMAC_SECRET environment variable)")
	}
	if v.IsSet("ipintel.redis_password") {
		return fmt.Errorf("redis password not allowed in config files (use TG_REDIS_PASSWORD environment variable)")
	}
	return nil
}
