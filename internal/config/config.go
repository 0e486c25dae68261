// Package config handles loading application configuration from environment
// variables. All config is centralized here so no other package reads env
// vars directly. Defaults are tuned for running Memz locally.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

// Store backends accepted by STORE_BACKEND.
const (
	BackendMariaDB = "mariadb"
	BackendSQLite  = "sqlite"
	BackendJSON    = "json"
)

// Config holds all application configuration. Populated from environment
// variables at startup and passed to other packages explicitly.
type Config struct {
	// Env is the runtime environment: "development" or "production".
	Env string

	// Port is the HTTP listen port (default: 8080).
	Port int

	// BaseURL is the public-facing URL. Used for CORS and the websocket
	// origin check.
	BaseURL string

	// LogLevel controls log verbosity: "debug", "info", "warn", "error".
	LogLevel string

	// Store selects and configures the persistence backend.
	Store StoreConfig

	// Database holds MariaDB connection settings.
	Database DatabaseConfig

	// Redis holds Redis connection settings. An empty URL disables Redis.
	Redis RedisConfig

	// NATS carries change notifications between instances when set. It
	// takes precedence over Redis for that role; sessions stay in Redis.
	NATS NATSConfig

	// Auth holds sign-in, session and allow-list settings.
	Auth AuthConfig

	// HTTP holds proxy and cross-origin settings.
	HTTP HTTPConfig

	// MetricsEnabled exposes the Prometheus /metrics endpoint.
	MetricsEnabled bool
}

// HTTPConfig holds settings for the HTTP edge.
type HTTPConfig struct {
	// TrustedProxies lists CIDRs whose X-Forwarded-For / X-Real-IP headers
	// are believed when resolving the client IP.
	TrustedProxies []string

	// CORSOrigins lists origins allowed to call the JSON API cross-origin.
	// Empty disables CORS headers.
	CORSOrigins []string
}

// StoreConfig selects where logs and events live.
type StoreConfig struct {
	// Backend is one of "mariadb", "sqlite" or "json".
	Backend string

	// SQLitePath is the database file for the sqlite backend.
	SQLitePath string

	// JSONPath is the document file for the json backend.
	JSONPath string
}

// DatabaseConfig holds MariaDB connection parameters. If DATABASE_URL is set,
// it takes precedence over the individual fields.
type DatabaseConfig struct {
	// Host is the MariaDB address in host:port format (default: "localhost:3306").
	Host string

	// User is the MariaDB username (default: "memz").
	User string

	// Password is the MariaDB password (default: "memz").
	Password string

	// Name is the database name (default: "memz").
	Name string

	// dsnOverride is set when DATABASE_URL is provided.
	dsnOverride string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DSN returns the go-sql-driver/mysql connection string. Migrations run
// multi-statement files, so MultiStatements is always on.
func (d DatabaseConfig) DSN() string {
	if d.dsnOverride != "" {
		return d.dsnOverride
	}
	cfg := mysql.NewConfig()
	cfg.User = d.User
	cfg.Passwd = d.Password
	cfg.Net = "tcp"
	cfg.Addr = ensurePort(d.Host, "3306")
	cfg.DBName = d.Name
	cfg.ParseTime = true
	cfg.MultiStatements = true
	cfg.Loc = time.UTC
	return cfg.FormatDSN()
}

// ensurePort appends the default port if the host string doesn't include one.
func ensurePort(host, defaultPort string) string {
	_, _, err := net.SplitHostPort(host)
	if err != nil {
		return net.JoinHostPort(host, defaultPort)
	}
	return host
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	// URL is the Redis connection URL (e.g., "redis://localhost:6379").
	URL string

	// PoolSize caps connections per instance. Zero keeps go-redis's
	// default of ten per CPU; each live feed holds one for its pub/sub.
	PoolSize int

	// DialTimeout bounds connecting and the startup ping.
	DialTimeout time.Duration
}

// Enabled reports whether a Redis URL was configured.
func (r RedisConfig) Enabled() bool {
	return r.URL != ""
}

// AuthConfig holds authentication settings.
type AuthConfig struct {
	// SessionTTL is how long sessions last before expiring.
	SessionTTL time.Duration

	// AllowedEmails is the static allow-list from ALLOWED_EMAILS.
	AllowedEmails []string

	// AllowlistFile is an optional YAML file with more allowed emails. It is
	// watched and reloaded on change.
	AllowlistFile string

	// OAuth configures the optional single sign-on button.
	OAuth OAuthConfig
}

// OAuthConfig holds an OAuth 2.0 authorization-code provider. The defaults
// point at Google; any provider with a userinfo endpoint returning "email"
// and "email_verified" works.
type OAuthConfig struct {
	// Name labels the sign-in button (default: "Google").
	Name string

	ClientID     string
	ClientSecret string

	AuthURL     string
	TokenURL    string
	UserInfoURL string
	Scopes      []string
}

// Enabled reports whether OAuth sign-in is configured.
func (o OAuthConfig) Enabled() bool {
	return o.ClientID != "" && o.ClientSecret != ""
}

// NATSConfig holds the optional NATS connection used for change
// notifications.
type NATSConfig struct {
	// URL is the NATS server URL. Empty disables NATS.
	URL string
}

// Enabled reports whether NATS is configured.
func (n NATSConfig) Enabled() bool {
	return n.URL != ""
}

// Load reads configuration from environment variables with sensible defaults.
// Returns an error if required variables are missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Env:      getEnv("ENV", "development"),
		Port:     getEnvInt("PORT", 8080),
		BaseURL:  getEnv("BASE_URL", "http://localhost:8080"),
		LogLevel: getEnv("LOG_LEVEL", "debug"),

		Store: StoreConfig{
			Backend:    strings.ToLower(getEnv("STORE_BACKEND", BackendMariaDB)),
			SQLitePath: getEnv("SQLITE_PATH", "./memz.db"),
			JSONPath:   getEnv("JSON_STORE_PATH", "./memz-logs.json"),
		},

		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost:3306"),
			User:            getEnv("DB_USER", "memz"),
			Password:        getEnv("DB_PASSWORD", "memz"),
			Name:            getEnv("DB_NAME", "memz"),
			dsnOverride:     getEnv("DATABASE_URL", ""),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},

		Redis: RedisConfig{
			URL:         getEnv("REDIS_URL", ""),
			PoolSize:    getEnvInt("REDIS_POOL_SIZE", 0),
			DialTimeout: getEnvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
		},

		NATS: NATSConfig{
			URL: getEnv("NATS_URL", ""),
		},

		Auth: AuthConfig{
			SessionTTL:    getEnvDuration("SESSION_TTL", 720*time.Hour),
			AllowedEmails: getEnvList("ALLOWED_EMAILS"),
			AllowlistFile: getEnv("ALLOWLIST_FILE", ""),
			OAuth: OAuthConfig{
				Name:         getEnv("OAUTH_PROVIDER_NAME", "Google"),
				ClientID:     getEnv("OAUTH_CLIENT_ID", ""),
				ClientSecret: getEnv("OAUTH_CLIENT_SECRET", ""),
				AuthURL:      getEnv("OAUTH_AUTH_URL", "https://accounts.google.com/o/oauth2/v2/auth"),
				TokenURL:     getEnv("OAUTH_TOKEN_URL", "https://oauth2.googleapis.com/token"),
				UserInfoURL:  getEnv("OAUTH_USERINFO_URL", "https://openidconnect.googleapis.com/v1/userinfo"),
				Scopes:       getEnvListDefault("OAUTH_SCOPES", []string{"openid", "email"}),
			},
		},

		HTTP: HTTPConfig{
			TrustedProxies: getEnvListDefault("TRUSTED_PROXIES", []string{"127.0.0.1/8", "10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16", "::1/128"}),
			CORSOrigins:    getEnvList("CORS_ALLOWED_ORIGINS"),
		},

		MetricsEnabled: getEnvBool("METRICS_ENABLED", true),
	}

	switch cfg.Store.Backend {
	case BackendMariaDB, BackendSQLite, BackendJSON:
	default:
		return nil, fmt.Errorf("STORE_BACKEND must be one of %s, %s, %s (got %q)",
			BackendMariaDB, BackendSQLite, BackendJSON, cfg.Store.Backend)
	}

	// An empty allow-list would lock everyone out; in production that is a
	// misconfiguration rather than a choice.
	if cfg.IsProduction() && len(cfg.Auth.AllowedEmails) == 0 && cfg.Auth.AllowlistFile == "" {
		return nil, fmt.Errorf("ALLOWED_EMAILS or ALLOWLIST_FILE is required in production")
	}

	if id, secret := cfg.Auth.OAuth.ClientID, cfg.Auth.OAuth.ClientSecret; (id == "") != (secret == "") {
		return nil, fmt.Errorf("OAUTH_CLIENT_ID and OAUTH_CLIENT_SECRET must be set together")
	}

	return cfg, nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	env := strings.ToLower(c.Env)
	return env == "development" || env == "dev"
}

// IsProduction returns true for "production" and "prod" in any case.
func (c *Config) IsProduction() bool {
	env := strings.ToLower(c.Env)
	return env == "production" || env == "prod"
}

// --- Helper functions for reading environment variables ---

func getEnv(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

// getEnvDuration reads a duration env var (e.g., "720h") or returns the default.
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

// getEnvList splits a comma-separated env var, dropping blank items.
func getEnvList(key string) []string {
	val, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// getEnvListDefault is getEnvList with a fallback for an unset variable.
func getEnvListDefault(key string, defaultVal []string) []string {
	if _, ok := os.LookupEnv(key); !ok {
		return defaultVal
	}
	return getEnvList(key)
}
