package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen.Addr != ":8080" {
		t.Fatalf("addr = %q", cfg.Listen.Addr)
	}
	if cfg.Civic.OfficerDomain != "delhi.gov.in" {
		t.Fatalf("officer domain = %q", cfg.Civic.OfficerDomain)
	}
	if cfg.GeocodeTimeout() != 5*time.Second {
		t.Fatalf("geocode timeout = %v", cfg.GeocodeTimeout())
	}
	if cfg.Security.RateLimitRPS != 50 || cfg.Security.RateLimitBurst != 100 {
		t.Fatalf("rate limit = %v/%v", cfg.Security.RateLimitRPS, cfg.Security.RateLimitBurst)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `
[listen]
addr = ":9090"

[store]
sqlite_path = "/tmp/civic.db"

[geocode]
base_url = "http://geo.internal"
timeout = "2s"

[civic]
officer_domain = "city.example.org"

[security]
rate_limit_rps = 10.0
rate_limit_burst = 20
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen.Addr != ":9090" {
		t.Fatalf("addr = %q", cfg.Listen.Addr)
	}
	if cfg.Store.SQLitePath != "/tmp/civic.db" {
		t.Fatalf("sqlite path = %q", cfg.Store.SQLitePath)
	}
	if cfg.Geocode.BaseURL != "http://geo.internal" {
		t.Fatalf("geocode url = %q", cfg.Geocode.BaseURL)
	}
	if cfg.GeocodeTimeout() != 2*time.Second {
		t.Fatalf("geocode timeout = %v", cfg.GeocodeTimeout())
	}
	if cfg.Civic.OfficerDomain != "city.example.org" {
		t.Fatalf("officer domain = %q", cfg.Civic.OfficerDomain)
	}
	if cfg.Security.RateLimitRPS != 10 || cfg.Security.RateLimitBurst != 20 {
		t.Fatalf("rate limit = %v/%v", cfg.Security.RateLimitRPS, cfg.Security.RateLimitBurst)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("[listen]\naddr = \":9090\"\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("CIVIC_LISTEN_ADDR", ":7070")
	t.Setenv("CIVIC_PG_DSN", "postgres://u:p@localhost/civic")
	t.Setenv("CIVIC_GEOCODE_TIMEOUT", "750ms")
	t.Setenv("CIVIC_RATE_LIMIT_RPS", "5")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen.Addr != ":7070" {
		t.Fatalf("addr = %q, env should win", cfg.Listen.Addr)
	}
	if cfg.Store.PostgresDSN != "postgres://u:p@localhost/civic" {
		t.Fatalf("pg dsn = %q", cfg.Store.PostgresDSN)
	}
	if cfg.GeocodeTimeout() != 750*time.Millisecond {
		t.Fatalf("geocode timeout = %v", cfg.GeocodeTimeout())
	}
	if cfg.Security.RateLimitRPS != 5 {
		t.Fatalf("rate limit rps = %v", cfg.Security.RateLimitRPS)
	}
}

func TestLoadMissingFileIsFine(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen.Addr != ":8080" {
		t.Fatalf("addr = %q, want default", cfg.Listen.Addr)
	}
}

func TestLoadRejectsBadTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("listen = {"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected decode error")
	}
}
