// Package config loads service settings from .env, an optional YAML file and
// the process environment, in that order of precedence (env wins).
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"tripdispatch/internal/auth"
	"tripdispatch/internal/logging"
	"tripdispatch/internal/webhooks"
)

type Config struct {
	Port        string      `yaml:"port"`
	DatabaseURL string      `yaml:"database_url"`
	DBMigrate   bool        `yaml:"db_migrate"`
	RedisURL    string      `yaml:"redis_url"`
	RedisPrefix string      `yaml:"redis_prefix"`
	Auth        auth.Config `yaml:"auth"`

	// DevHeaders lets requests without a bearer token authenticate through
	// X-Tenant-Id / X-Role / X-User-Id / X-Driver-Id. Only honoured in dev auth mode.
	DevHeaders   bool           `yaml:"dev_headers"`
	AllowOrigins []string       `yaml:"allow_origins"`
	RateRPS      float64        `yaml:"rate_rps"`
	RateBurst    int            `yaml:"rate_burst"`
	Log          logging.Config `yaml:"log"`
	Webhooks     Webhooks       `yaml:"webhooks"`
	Dispatch     Dispatch       `yaml:"dispatch"`
}

type Webhooks struct {
	MaxAttempts int                 `yaml:"max_attempts"`
	Endpoints   []webhooks.Endpoint `yaml:"endpoints"`
}

type Dispatch struct {
	AssignKeepsReplacedBusy bool `yaml:"assign_keeps_replaced_busy"`
}

// Default returns the settings used when nothing is configured: in-memory
// store and broker, dev auth, no rate limit.
func Default() Config {
	return Config{
		Port:         "8080",
		DBMigrate:    true,
		RedisPrefix:  "tripdispatch:",
		Auth:         auth.Config{Mode: "dev"},
		DevHeaders:   true,
		AllowOrigins: []string{"*"},
		Log:          logging.Config{Level: "info", Format: "json"},
		Webhooks:     Webhooks{MaxAttempts: 8},
	}
}

// Load reads .env (if present), then CONFIG_FILE, then environment overrides.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using environment")
	}
	return LoadFrom(os.LookupEnv)
}

// LoadFrom is Load without touching .env; lookup supplies the environment.
func LoadFrom(lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	if path, ok := lookup("CONFIG_FILE"); ok && path != "" {
		if err := cfg.readFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) readFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("config file: %w", err)
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		return fmt.Errorf("config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	var errs []error
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}

	str("PORT", &c.Port)
	str("DATABASE_URL", &c.DatabaseURL)
	boolean("DB_MIGRATE", &c.DBMigrate)
	str("REDIS_URL", &c.RedisURL)
	str("REDIS_PREFIX", &c.RedisPrefix)

	str("AUTH_MODE", &c.Auth.Mode)
	str("AUTH_HMAC_SECRET", &c.Auth.HMACSecret)
	str("AUTH_JWKS_URL", &c.Auth.JWKSURL)
	str("AUTH_ISSUER", &c.Auth.Issuer)
	str("AUTH_TENANT_CLAIM", &c.Auth.TenantClaim)
	str("AUTH_ROLE_CLAIM", &c.Auth.RoleClaim)
	str("AUTH_NAME_CLAIM", &c.Auth.NameClaim)
	boolean("AUTH_DEV_HEADERS", &c.DevHeaders)

	if v, ok := lookup("ALLOW_ORIGINS"); ok && v != "" {
		c.AllowOrigins = splitList(v)
	}
	if v, ok := lookup("RATE_RPS"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("RATE_RPS: %w", err))
		} else {
			c.RateRPS = f
		}
	}
	integer("RATE_BURST", &c.RateBurst)

	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	str("LOG_DIR", &c.Log.Dir)

	integer("WEBHOOK_MAX_ATTEMPTS", &c.Webhooks.MaxAttempts)
	// WEBHOOK_URL adds a catch-all endpoint next to any from the file.
	if v, ok := lookup("WEBHOOK_URL"); ok && v != "" {
		secret, _ := lookup("WEBHOOK_SECRET")
		c.Webhooks.Endpoints = append(c.Webhooks.Endpoints, webhooks.Endpoint{URL: v, Secret: secret, Events: []string{"*"}})
	}

	boolean("ASSIGN_KEEPS_REPLACED_BUSY", &c.Dispatch.AssignKeepsReplacedBusy)
	return errors.Join(errs...)
}

func (c Config) Validate() error {
	if c.Port == "" {
		return errors.New("port must be set")
	}
	if c.RateRPS < 0 || c.RateBurst < 0 {
		return errors.New("rate limits must not be negative")
	}
	if c.RateRPS > 0 && c.RateBurst == 0 {
		return errors.New("RATE_BURST must be set when RATE_RPS is")
	}
	for i, ep := range c.Webhooks.Endpoints {
		if ep.URL == "" {
			return fmt.Errorf("webhook endpoint %d: url is required", i)
		}
	}
	return nil
}

// Summary is the non-secret view exposed on /debug/vars.
func (c Config) Summary() map[string]any {
	return map[string]any{
		"port":                       c.Port,
		"auth_mode":                  c.Auth.Mode,
		"dev_headers":                c.DevHeaders,
		"allow_origins":              c.AllowOrigins,
		"rate_rps":                   c.RateRPS,
		"rate_burst":                 c.RateBurst,
		"webhook_endpoints":          len(c.Webhooks.Endpoints),
		"webhook_max_attempts":       c.Webhooks.MaxAttempts,
		"has_database_url":           c.DatabaseURL != "",
		"has_redis_url":              c.RedisURL != "",
		"assign_keeps_replaced_busy": c.Dispatch.AssignKeepsReplacedBusy,
	}
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
