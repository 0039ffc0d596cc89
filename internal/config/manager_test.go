package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestParseJSON(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.json", `{
		"telegram": {"token": "123:abc", "poll_timeout": "10s"},
		"logging": {"level": "debug", "console": true, "file": {"enabled": false, "path": ""}},
		"storage": {"driver": "file", "path": "./users"},
		"broadcast": {"sweep_interval": "5m", "sweep_max_age": "2h"},
		"joins": {"per_target_min": 10, "per_target_max": 15, "between_min": 5, "between_max": 10}
	}`)

	m := NewManager(path)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.Token != "123:abc" {
		t.Fatalf("token = %q", cfg.Telegram.Token)
	}
	if cfg.Joins.PerTargetMax != 15 {
		t.Fatalf("per_target_max = %d", cfg.Joins.PerTargetMax)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if got := m.Get(); got != cfg {
		t.Fatal("Get should return the committed config")
	}
}

func TestParseYAML(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.yaml", `
telegram:
  token: "123:abc"
  poll_timeout: 10s
logging:
  level: info
  console: true
  file:
    enabled: false
    path: ""
storage:
  driver: file
  path: ./users
broadcast: {}
joins:
  keywords: ["join", "subscribe"]
`)

	cfg, err := NewManager(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Joins.Keywords) != 2 {
		t.Fatalf("keywords = %v", cfg.Joins.Keywords)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.json", `{"telegram": {"token": "x"}, "bogus": true}`)
	if _, err := NewManager(path).Load(); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestReloadRunsValidator(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.json", `{"storage": {"driver": "file", "path": "./users"}}`)

	m := NewManager(path)
	m.SetValidator(func(_ context.Context, c *Config) error { return c.Validate() })
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	bad := `{"storage": {"driver": "file", "path": "./users"}, "broadcast": {"sweep_interval": "nope"}}`
	if err := os.WriteFile(path, []byte(bad), 0o600); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}
	m.reload(context.Background())
	if got := m.Get(); got != cfg {
		t.Fatal("invalid config must not be committed")
	}

	good := `{"storage": {"driver": "file", "path": "./users"}, "broadcast": {"sweep_interval": "5m"}}`
	if err := os.WriteFile(path, []byte(good), 0o600); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}
	m.reload(context.Background())
	if got := m.Get(); got.Broadcast.SweepInterval != "5m" {
		t.Fatalf("valid config not committed, sweep_interval = %q", got.Broadcast.SweepInterval)
	}
}

func TestValidateRejectsBadDuration(t *testing.T) {
	t.Parallel()
	cfg := &Config{}
	cfg.Broadcast.SweepInterval = "not-a-duration"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid duration")
	}
}
