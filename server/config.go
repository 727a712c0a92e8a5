package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type SessionConfig struct {
	CookieName string        `yaml:"cookie_name"`
	TTL        time.Duration `yaml:"ttl"`
	Secure     bool          `yaml:"secure"`
	SameSite   string        `yaml:"same_site"`
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Config is the server configuration. Values are layered: defaults, then
// the YAML file, then environment variables.
type Config struct {
	Addr        string        `yaml:"addr"`
	DatabaseURL string        `yaml:"database_url"`
	Store       string        `yaml:"store"`
	Timezone    string        `yaml:"timezone"`
	LogLevel    string        `yaml:"log_level"`
	AdminEmails []string      `yaml:"admin_emails"`
	WebDir      string        `yaml:"web_dir"`
	Session     SessionConfig `yaml:"session"`
	CORS        CORSConfig    `yaml:"cors"`
}

func defaultConfig() Config {
	return Config{
		Addr:        ":8080",
		DatabaseURL: "postgres://postgres:postgres@db:5432/taskboard?sslmode=disable",
		Store:       "postgres",
		Timezone:    "UTC",
		LogLevel:    "info",
		WebDir:      "./web",
		Session: SessionConfig{
			CookieName: "taskboard_sess",
			TTL:        14 * 24 * time.Hour,
			SameSite:   "lax",
		},
	}
}

func getenv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

// loadConfig reads path (if non-empty) over the defaults and applies
// environment overrides.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	return cfg, cfg.validate()
}

func (c *Config) applyEnv() error {
	c.Addr = getenv("ADDR", c.Addr)
	c.DatabaseURL = getenv("DATABASE_URL", c.DatabaseURL)
	c.Store = getenv("TASKBOARD_STORE", c.Store)
	c.Timezone = getenv("TASKBOARD_TIMEZONE", c.Timezone)
	c.LogLevel = getenv("LOG_LEVEL", c.LogLevel)
	c.WebDir = getenv("WEB_DIR", c.WebDir)
	c.Session.CookieName = getenv("SESSION_COOKIE_NAME", c.Session.CookieName)
	c.Session.SameSite = getenv("COOKIE_SAMESITE", c.Session.SameSite)
	if v := getenv("SESSION_TTL", ""); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("SESSION_TTL: %w", err)
		}
		c.Session.TTL = d
	}
	if v := getenv("COOKIE_SECURE", ""); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("COOKIE_SECURE: %w", err)
		}
		c.Session.Secure = b
	}
	if v := getenv("CORS_ALLOWED_ORIGINS", ""); v != "" {
		c.CORS.AllowedOrigins = splitList(v)
	}
	if v := getenv("ADMIN_EMAILS", ""); v != "" {
		c.AdminEmails = splitList(v)
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c Config) validate() error {
	switch c.Store {
	case "postgres", "memory":
	default:
		return fmt.Errorf("store must be postgres or memory, got %q", c.Store)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("timezone: %w", err)
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("session ttl must be positive")
	}
	return nil
}

func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (c Config) SameSite() http.SameSite {
	switch strings.ToLower(c.Session.SameSite) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

// IsAdminEmail reports whether registering with email grants the admin role.
func (c Config) IsAdminEmail(email string) bool {
	for _, e := range c.AdminEmails {
		if strings.EqualFold(e, email) {
			return true
		}
	}
	return false
}
