// Package config loads server configuration. Values come from an optional
// YAML file first, then environment variables on top, so a container can
// ship a baseline file and override single values per deployment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds server configuration.
type Config struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"log_level"`
	LogJSON  bool   `yaml:"log_json"`

	// DatabasePath is the SQLite file. ":memory:" is accepted for local
	// experiments but loses everything on restart.
	DatabasePath string `yaml:"database_path"`

	JWTSecret   string `yaml:"jwt_secret"`
	TokenIssuer string `yaml:"token_issuer"`

	AllowedOrigins []string `yaml:"allowed_origins"`

	// OpenAI drafting assistance. Drafting degrades to deterministic
	// placeholders when the key is empty.
	OpenAIAPIKey string `yaml:"openai_api_key"`
	OpenAIModel  string `yaml:"openai_model"`

	// Redis backs the rate limiter across instances. Empty means the
	// per-process in-memory limiter.
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`

	// AuditArchiveDSN is an optional Postgres DSN; when set, audit events
	// are mirrored into a long-retention archive table.
	AuditArchiveDSN string `yaml:"audit_archive_dsn"`

	// OTLPEndpoint enables trace and metric export when non-empty.
	OTLPEndpoint string `yaml:"otlp_endpoint"`
}

func defaults() *Config {
	return &Config{
		Port:         "8080",
		LogLevel:     "INFO",
		DatabasePath: "data/complia.db",
		TokenIssuer:  "complia",
		OpenAIModel:  "gpt-4o-mini",
	}
}

// Load builds the configuration. When COMPLIA_CONFIG names a YAML file it is
// applied over the defaults; environment variables win over both.
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("COMPLIA_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %q: %w", path, err)
		}
	}

	applyEnv(cfg)

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.Port, "PORT")
	setString(&cfg.LogLevel, "LOG_LEVEL")
	if v := os.Getenv("LOG_JSON"); v != "" {
		cfg.LogJSON, _ = strconv.ParseBool(v)
	}
	setString(&cfg.DatabasePath, "DATABASE_PATH")
	setString(&cfg.JWTSecret, "JWT_SECRET")
	setString(&cfg.TokenIssuer, "TOKEN_ISSUER")
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		cfg.AllowedOrigins = splitList(v)
	}
	setString(&cfg.OpenAIAPIKey, "OPENAI_API_KEY")
	setString(&cfg.OpenAIModel, "OPENAI_MODEL")
	setString(&cfg.RedisAddr, "REDIS_ADDR")
	setString(&cfg.RedisPassword, "REDIS_PASSWORD")
	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RedisDB = n
		}
	}
	setString(&cfg.AuditArchiveDSN, "AUDIT_ARCHIVE_DSN")
	setString(&cfg.OTLPEndpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
