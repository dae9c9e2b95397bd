// Package config loads service configuration from an optional TOML file and
// CIVIC_* environment overrides. Environment always wins so deployments can
// keep one config file and vary secrets per instance.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds every runtime knob for the API server.
type Config struct {
	Listen   Listen   `toml:"listen"`
	Store    Store    `toml:"store"`
	Geocode  Geocode  `toml:"geocode"`
	Civic    Civic    `toml:"civic"`
	Security Security `toml:"security"`
}

type Listen struct {
	Addr string `toml:"addr"`
}

// Store selects the backing store. A non-empty Postgres DSN takes precedence
// over the SQLite path; with neither the server runs in-memory.
type Store struct {
	PostgresDSN string `toml:"postgres_dsn"`
	SQLitePath  string `toml:"sqlite_path"`
}

type Geocode struct {
	BaseURL string   `toml:"base_url"`
	Timeout duration `toml:"timeout"`
}

type Civic struct {
	OfficerDomain string `toml:"officer_domain"`
}

type Security struct {
	RateLimitRPS   float64 `toml:"rate_limit_rps"`
	RateLimitBurst int     `toml:"rate_limit_burst"`
}

// duration lets TOML carry values like "5s".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// Default returns the configuration used when no file or overrides are set.
func Default() Config {
	return Config{
		Listen: Listen{Addr: ":8080"},
		Geocode: Geocode{
			BaseURL: "https://nominatim.openstreetmap.org",
			Timeout: duration{5 * time.Second},
		},
		Civic: Civic{OfficerDomain: "delhi.gov.in"},
		Security: Security{
			RateLimitRPS:   50,
			RateLimitBurst: 100,
		},
	}
}

// Load reads the TOML file at path (skipped when path is empty or the file
// does not exist) and then applies environment overrides on top of defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, &cfg); err != nil {
				return Config{}, fmt.Errorf("decode config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("stat config %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.Listen.Addr, "CIVIC_LISTEN_ADDR")
	setString(&cfg.Store.PostgresDSN, "CIVIC_PG_DSN")
	setString(&cfg.Store.SQLitePath, "CIVIC_SQLITE_PATH")
	setString(&cfg.Geocode.BaseURL, "CIVIC_GEOCODE_URL")
	setString(&cfg.Civic.OfficerDomain, "CIVIC_OFFICER_DOMAIN")

	if raw := strings.TrimSpace(os.Getenv("CIVIC_GEOCODE_TIMEOUT")); raw != "" {
		if parsed, err := time.ParseDuration(raw); err == nil && parsed > 0 {
			cfg.Geocode.Timeout = duration{parsed}
		}
	}
	if raw := strings.TrimSpace(os.Getenv("CIVIC_RATE_LIMIT_RPS")); raw != "" {
		if parsed, err := strconv.ParseFloat(raw, 64); err == nil && parsed > 0 {
			cfg.Security.RateLimitRPS = parsed
		}
	}
	if raw := strings.TrimSpace(os.Getenv("CIVIC_RATE_LIMIT_BURST")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			cfg.Security.RateLimitBurst = parsed
		}
	}
}

func setString(dst *string, env string) {
	if v := strings.TrimSpace(os.Getenv(env)); v != "" {
		*dst = v
	}
}

func (c Config) validate() error {
	if strings.TrimSpace(c.Listen.Addr) == "" {
		return fmt.Errorf("listen.addr is required")
	}
	if c.Geocode.Timeout.Duration <= 0 {
		return fmt.Errorf("geocode.timeout must be positive")
	}
	if strings.TrimSpace(c.Civic.OfficerDomain) == "" {
		return fmt.Errorf("civic.officer_domain is required")
	}
	return nil
}

// GeocodeTimeout returns the reverse-geocode request timeout.
func (c Config) GeocodeTimeout() time.Duration {
	return c.Geocode.Timeout.Duration
}
