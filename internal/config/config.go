// Package config loads the process configuration once at startup.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/triage-ai/palisade/services/sql_guard/internal/database"
	"github.com/triage-ai/palisade/services/sql_guard/internal/permissions"
	"gopkg.in/yaml.v3"
)

// Config is immutable after Load returns.
type Config struct {
	DatabaseURL    string             `yaml:"database_url"`
	AllowMutations bool               `yaml:"allow_mutations"`
	AllowedTables  []string           `yaml:"allowed_tables"`
	DefaultPolicy  permissions.Policy `yaml:"default_policy"`

	// PermissionCacheTTL of zero disables the permission cache.
	PermissionCacheTTL time.Duration `yaml:"permission_cache_ttl"`

	Audit AuditConfig `yaml:"audit"`

	ServerName string `yaml:"server_name"`
	HTTPAddr   string `yaml:"http_addr"` // empty means stdio only
	LogLevel   string `yaml:"log_level"`
}

// AuditConfig configures the audit sinks.
type AuditConfig struct {
	LogPath       string `yaml:"log_path"`
	MaxSizeMB     int    `yaml:"max_size_mb"`
	MaxBackups    int    `yaml:"max_backups"`
	MaxAgeDays    int    `yaml:"max_age_days"`
	Compress      bool   `yaml:"compress"`
	ClickHouseDSN string `yaml:"clickhouse_dsn"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		DatabaseURL:        database.DefaultURL,
		AllowMutations:     true,
		DefaultPolicy:      permissions.DefaultPolicy(),
		PermissionCacheTTL: 5 * time.Second,
		Audit: AuditConfig{
			LogPath:    "audit.log",
			MaxSizeMB:  100,
			MaxBackups: 10,
		},
		ServerName: "mcp-database-connector",
		LogLevel:   "info",
	}
}

// Load builds the configuration. Precedence, lowest first: defaults, the
// YAML file at path (if any), variables from .env, the process environment.
func Load(path string) (Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("Load: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("Load: parse %s: %w", path, err)
		}
	}

	// godotenv never overrides variables already present in the environment.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("Load: .env: %w", err)
	}

	applyEnv(&cfg)
	cfg.AllowedTables = normalizeTables(cfg.AllowedTables)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.DatabaseURL = envOrDefault("DATABASE_URL", cfg.DatabaseURL)
	if v, ok := os.LookupEnv("ALLOW_MUTATIONS"); ok {
		// Only the literal "false" disables mutations.
		cfg.AllowMutations = v != "false"
	}
	if v, ok := os.LookupEnv("ALLOWED_TABLES"); ok {
		cfg.AllowedTables = strings.Split(v, ",")
	}
	cfg.DefaultPolicy.CanRead = envOrDefaultBool("SQL_GUARD_DEFAULT_CAN_READ", cfg.DefaultPolicy.CanRead)
	cfg.DefaultPolicy.CanWrite = envOrDefaultBool("SQL_GUARD_DEFAULT_CAN_WRITE", cfg.DefaultPolicy.CanWrite)
	if v := os.Getenv("SQL_GUARD_PERMISSION_CACHE_TTL_S"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			cfg.PermissionCacheTTL = time.Duration(secs) * time.Second
		}
	}

	cfg.Audit.LogPath = envOrDefault("SQL_GUARD_AUDIT_LOG", cfg.Audit.LogPath)
	cfg.Audit.MaxSizeMB = envOrDefaultInt("SQL_GUARD_AUDIT_MAX_SIZE_MB", cfg.Audit.MaxSizeMB)
	cfg.Audit.MaxBackups = envOrDefaultInt("SQL_GUARD_AUDIT_MAX_BACKUPS", cfg.Audit.MaxBackups)
	cfg.Audit.MaxAgeDays = envOrDefaultInt("SQL_GUARD_AUDIT_MAX_AGE_DAYS", cfg.Audit.MaxAgeDays)
	cfg.Audit.ClickHouseDSN = envOrDefault("CLICKHOUSE_DSN", cfg.Audit.ClickHouseDSN)

	cfg.ServerName = envOrDefault("MCP_SERVER_NAME", cfg.ServerName)
	cfg.HTTPAddr = envOrDefault("SQL_GUARD_HTTP_ADDR", cfg.HTTPAddr)
	cfg.LogLevel = envOrDefault("SQL_GUARD_LOG_LEVEL", cfg.LogLevel)
}

func normalizeTables(tables []string) []string {
	var out []string
	seen := make(map[string]bool, len(tables))
	for _, t := range tables {
		name := permissions.NormalizeName(t)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envOrDefaultInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func envOrDefaultBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}
