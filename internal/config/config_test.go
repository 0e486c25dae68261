package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("ENV", "development")
	t.Setenv("STORE_BACKEND", "")
	cfg, err := Load()
	if err == nil {
		t.Fatalf("expected error for empty STORE_BACKEND, got config %+v", cfg.Store)
	}

	t.Setenv("STORE_BACKEND", "json")
	cfg, err = Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != 8080 {
		t.Errorf("expected port 8080, got %d", cfg.Port)
	}
	if cfg.Auth.SessionTTL != 720*time.Hour {
		t.Errorf("expected 720h session TTL, got %s", cfg.Auth.SessionTTL)
	}
	if len(cfg.HTTP.TrustedProxies) == 0 {
		t.Error("expected default trusted proxy ranges")
	}
	if cfg.Redis.Enabled() {
		t.Error("expected redis disabled without REDIS_URL")
	}
}

func TestLoad_BackendCaseInsensitive(t *testing.T) {
	t.Setenv("STORE_BACKEND", "SQLite")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Store.Backend != BackendSQLite {
		t.Errorf("expected sqlite, got %s", cfg.Store.Backend)
	}
}

func TestLoad_UnknownBackend(t *testing.T) {
	t.Setenv("STORE_BACKEND", "firestore")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestLoad_ProductionRequiresAllowList(t *testing.T) {
	t.Setenv("STORE_BACKEND", "json")
	t.Setenv("ENV", "Production")
	t.Setenv("ALLOWED_EMAILS", "")
	t.Setenv("ALLOWLIST_FILE", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for an empty allow-list in production")
	}

	t.Setenv("ALLOWLIST_FILE", "/etc/memz/allow.yaml")
	if _, err := Load(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	t.Setenv("ALLOWLIST_FILE", "")
	t.Setenv("ALLOWED_EMAILS", "me@example.com")
	if _, err := Load(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoad_HTTPLists(t *testing.T) {
	t.Setenv("STORE_BACKEND", "json")
	t.Setenv("TRUSTED_PROXIES", "")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.HTTP.TrustedProxies) != 0 {
		t.Errorf("expected an explicitly empty TRUSTED_PROXIES to trust nothing, got %v", cfg.HTTP.TrustedProxies)
	}
	if len(cfg.HTTP.CORSOrigins) != 2 || cfg.HTTP.CORSOrigins[1] != "https://b.example" {
		t.Errorf("unexpected CORS origins %v", cfg.HTTP.CORSOrigins)
	}
}

func TestLoad_AllowedEmails(t *testing.T) {
	t.Setenv("STORE_BACKEND", "json")
	t.Setenv("ALLOWED_EMAILS", " me@example.com, ,you@example.com ")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Auth.AllowedEmails) != 2 {
		t.Fatalf("expected 2 emails, got %v", cfg.Auth.AllowedEmails)
	}
	if cfg.Auth.AllowedEmails[1] != "you@example.com" {
		t.Errorf("expected trimmed email, got %q", cfg.Auth.AllowedEmails[1])
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", User: "memz", Password: "p@ss:word", Name: "memz"}
	dsn := d.DSN()
	if !strings.Contains(dsn, "tcp(db:3306)") {
		t.Errorf("expected default port in DSN, got %s", dsn)
	}
	if !strings.Contains(dsn, "multiStatements=true") {
		t.Errorf("expected multiStatements in DSN, got %s", dsn)
	}
	if !strings.Contains(dsn, "parseTime=true") {
		t.Errorf("expected parseTime in DSN, got %s", dsn)
	}

	d.dsnOverride = "custom"
	if d.DSN() != "custom" {
		t.Errorf("expected DATABASE_URL override, got %s", d.DSN())
	}
}

func TestLoad_OAuth(t *testing.T) {
	t.Setenv("STORE_BACKEND", "json")
	t.Setenv("OAUTH_CLIENT_ID", "")
	t.Setenv("OAUTH_CLIENT_SECRET", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Auth.OAuth.Enabled() {
		t.Error("expected oauth disabled without a client id")
	}
	if cfg.Auth.OAuth.Name != "Google" || len(cfg.Auth.OAuth.Scopes) != 2 {
		t.Errorf("unexpected oauth defaults %+v", cfg.Auth.OAuth)
	}

	t.Setenv("OAUTH_CLIENT_ID", "client")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for a client id without a secret")
	}

	t.Setenv("OAUTH_CLIENT_SECRET", "secret")
	t.Setenv("OAUTH_SCOPES", "openid,email,profile")
	cfg, err = Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.Auth.OAuth.Enabled() {
		t.Error("expected oauth enabled")
	}
	if len(cfg.Auth.OAuth.Scopes) != 3 {
		t.Errorf("expected 3 scopes, got %v", cfg.Auth.OAuth.Scopes)
	}
}

func TestLoad_NATS(t *testing.T) {
	t.Setenv("STORE_BACKEND", "json")
	t.Setenv("NATS_URL", "nats://localhost:4222")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.NATS.Enabled() {
		t.Error("expected nats enabled")
	}
}
