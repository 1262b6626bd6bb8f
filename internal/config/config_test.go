package config

import (
	"os"
	"path/filepath"
	"testing"
)

func env(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestDefaults(t *testing.T) {
	cfg, err := LoadFrom(env(nil))
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Port != "8080" || cfg.Auth.Mode != "dev" || !cfg.DBMigrate {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.DatabaseURL != "" || cfg.RedisURL != "" {
		t.Fatalf("defaults should select in-memory backends")
	}
}

func TestEnvOverrides(t *testing.T) {
	cfg, err := LoadFrom(env(map[string]string{
		"PORT":                       "9000",
		"DB_MIGRATE":                 "false",
		"AUTH_MODE":                  "hmac",
		"AUTH_HMAC_SECRET":           "s3cret",
		"ALLOW_ORIGINS":              "https://a.example, https://b.example",
		"RATE_RPS":                   "5.5",
		"RATE_BURST":                 "10",
		"WEBHOOK_URL":                "https://hooks.example/in",
		"WEBHOOK_SECRET":             "whsec",
		"ASSIGN_KEEPS_REPLACED_BUSY": "true",
	}))
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Port != "9000" || cfg.DBMigrate || cfg.Auth.Mode != "hmac" || cfg.Auth.HMACSecret != "s3cret" {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if len(cfg.AllowOrigins) != 2 || cfg.AllowOrigins[1] != "https://b.example" {
		t.Fatalf("origins: %v", cfg.AllowOrigins)
	}
	if cfg.RateRPS != 5.5 || cfg.RateBurst != 10 {
		t.Fatalf("rate: %v/%v", cfg.RateRPS, cfg.RateBurst)
	}
	if len(cfg.Webhooks.Endpoints) != 1 || cfg.Webhooks.Endpoints[0].Secret != "whsec" {
		t.Fatalf("webhook endpoints: %+v", cfg.Webhooks.Endpoints)
	}
	if !cfg.Dispatch.AssignKeepsReplacedBusy {
		t.Fatalf("dispatch option not applied")
	}
}

func TestBadValuesAreReported(t *testing.T) {
	if _, err := LoadFrom(env(map[string]string{"RATE_BURST": "many"})); err == nil {
		t.Fatalf("expected parse error")
	}
	if _, err := LoadFrom(env(map[string]string{"RATE_RPS": "3"})); err == nil {
		t.Fatalf("expected error for rps without burst")
	}
}

func TestFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `port: "7000"
redis_url: redis://localhost:6379/0
auth:
  mode: hmac
  hmac_secret: from-file
webhooks:
  max_attempts: 3
  endpoints:
    - tenant: t1
      url: https://t1.example/hook
      events: ["trip.*"]
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadFrom(env(map[string]string{"CONFIG_FILE": path, "AUTH_HMAC_SECRET": "from-env"}))
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Port != "7000" || cfg.RedisURL == "" || cfg.Webhooks.MaxAttempts != 3 {
		t.Fatalf("file values missing: %+v", cfg)
	}
	if cfg.Auth.HMACSecret != "from-env" {
		t.Fatalf("env should win over file, got %q", cfg.Auth.HMACSecret)
	}
	if len(cfg.Webhooks.Endpoints) != 1 || cfg.Webhooks.Endpoints[0].Tenant != "t1" {
		t.Fatalf("endpoints: %+v", cfg.Webhooks.Endpoints)
	}
}

func TestUnknownFileKeyRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("prot: 1\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFrom(env(map[string]string{"CONFIG_FILE": path})); err == nil {
		t.Fatalf("typo key accepted")
	}
}
