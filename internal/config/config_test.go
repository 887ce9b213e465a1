package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

func tempConfigPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "winsync", "config.yaml")
}

func TestNewManager_CreatesDefaults(t *testing.T) {
	path := tempConfigPath(t)

	m, err := NewManager(path)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected config file to be written: %v", err)
	}

	cfg := m.Get()
	want := Defaults()
	if cfg.Driver != want.Driver || cfg.Server.Port != want.Server.Port || cfg.RequestTimeout != want.RequestTimeout {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if len(cfg.IgnoreWindowTypes) != len(want.IgnoreWindowTypes) {
		t.Fatalf("ignore_window_types = %v", cfg.IgnoreWindowTypes)
	}
	if m.GetConfigPath() != path || m.GetConfigDir() != filepath.Dir(path) {
		t.Fatalf("unexpected paths %q %q", m.GetConfigPath(), m.GetConfigDir())
	}
}

func TestNewManager_ReadsExistingFile(t *testing.T) {
	path := tempConfigPath(t)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	yaml := `
log_level: debug
request_timeout: 750ms
unexpected_errors: invalidate
server:
  port: 9191
  allowed_origins:
    - http://localhost:3000
`
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := NewManager(path)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	cfg := m.Get()
	if cfg.LogLevel != "debug" || cfg.RequestTimeout != 750*time.Millisecond || cfg.UnexpectedErrors != "invalidate" {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.Server.Port != 9191 || len(cfg.Server.AllowedOrigins) != 1 {
		t.Fatalf("server values not applied: %+v", cfg.Server)
	}
	if cfg.Driver != "x11" || !cfg.Server.Enabled {
		t.Fatalf("defaults should fill unset keys: %+v", cfg)
	}
}

func TestNewManager_RejectsInvalidFile(t *testing.T) {
	path := tempConfigPath(t)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("unexpected_errors: abort\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewManager(path); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestEnvironmentOverride(t *testing.T) {
	t.Setenv("WINSYNC_SERVER_PORT", "9999")
	t.Setenv("WINSYNC_LOG_LEVEL", "warn")

	m, err := NewManager(tempConfigPath(t))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	cfg := m.Get()
	if cfg.Server.Port != 9999 || cfg.LogLevel != "warn" {
		t.Fatalf("env overrides not applied: port=%d level=%s", cfg.Server.Port, cfg.LogLevel)
	}
}

func readSaved(t *testing.T, path string) Config {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var saved Config
	if err := yaml.Unmarshal(data, &saved); err != nil {
		t.Fatalf("saved config is not valid yaml: %v", err)
	}
	return saved
}

func TestSave_LeavesEnvironmentOverridesOutOfFile(t *testing.T) {
	t.Setenv("WINSYNC_SERVER_PORT", "9999")
	path := tempConfigPath(t)

	m, err := NewManager(path)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if saved := readSaved(t, path); saved.Server.Port != Defaults().Server.Port {
		t.Fatalf("created file has port %d, want default %d", saved.Server.Port, Defaults().Server.Port)
	}

	if err := m.Set("log_level", "debug"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	saved := readSaved(t, path)
	if saved.Server.Port != Defaults().Server.Port {
		t.Errorf("saved port = %d, environment override leaked into file", saved.Server.Port)
	}
	if saved.LogLevel != "debug" {
		t.Errorf("saved log_level = %q, want debug", saved.LogLevel)
	}
	if cfg := m.Get(); cfg.Server.Port != 9999 || cfg.LogLevel != "debug" {
		t.Errorf("effective config port=%d level=%s", cfg.Server.Port, cfg.LogLevel)
	}
}

func TestBindFlags(t *testing.T) {
	m, err := NewManager(tempConfigPath(t))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.Int("port", 0, "")
	fs.Duration("request-timeout", 0, "")
	if err := fs.Parse([]string{"--port", "7000", "--request-timeout", "2s"}); err != nil {
		t.Fatal(err)
	}
	if err := m.BindFlags(fs); err != nil {
		t.Fatalf("BindFlags: %v", err)
	}

	cfg := m.Get()
	if cfg.Server.Port != 7000 || cfg.RequestTimeout != 2*time.Second {
		t.Fatalf("flags not applied: port=%d timeout=%s", cfg.Server.Port, cfg.RequestTimeout)
	}
}

func TestSet_PersistsTypedValues(t *testing.T) {
	path := tempConfigPath(t)
	m, err := NewManager(path)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	for key, value := range map[string]string{
		"server.port":            "9090",
		"log_pretty":             "true",
		"request_timeout":        "250ms",
		"server.allowed_origins": "http://a, http://b",
	} {
		if err := m.Set(key, value); err != nil {
			t.Fatalf("Set(%s): %v", key, err)
		}
	}

	reloaded, err := NewManager(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	cfg := reloaded.Get()
	if cfg.Server.Port != 9090 || !cfg.LogPretty || cfg.RequestTimeout != 250*time.Millisecond {
		t.Fatalf("persisted values not read back: %+v", cfg)
	}
	if strings.Join(cfg.Server.AllowedOrigins, ",") != "http://a,http://b" {
		t.Fatalf("allowed_origins = %v", cfg.Server.AllowedOrigins)
	}
}

func TestSet_RejectsBadInput(t *testing.T) {
	m, err := NewManager(tempConfigPath(t))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	tests := []struct{ key, value string }{
		{"no_such_key", "x"},
		{"server.port", "eighty"},
		{"server.port", "70000"},
		{"log_level", "loud"},
		{"unexpected_errors", "abort"},
		{"request_timeout", "soon"},
		{"log_pretty", "maybe"},
	}
	for _, tt := range tests {
		if err := m.Set(tt.key, tt.value); err == nil {
			t.Errorf("Set(%s, %s) should fail", tt.key, tt.value)
		}
	}
	if m.Get().Server.Port != Defaults().Server.Port {
		t.Fatalf("rejected Set changed the port to %d", m.Get().Server.Port)
	}
}

func TestGetValue(t *testing.T) {
	m, err := NewManager(tempConfigPath(t))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	v, err := m.GetValue("driver")
	if err != nil || v != "x11" {
		t.Fatalf("GetValue(driver) = %v, %v", v, err)
	}
	if _, err := m.GetValue("nope"); err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestGet_ReturnsCopy(t *testing.T) {
	m, err := NewManager(tempConfigPath(t))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	cfg := m.Get()
	cfg.IgnoreWindowTypes[0] = "mutated"
	cfg.Server.Port = 1
	if again := m.Get(); again.IgnoreWindowTypes[0] == "mutated" || again.Server.Port == 1 {
		t.Fatal("Get must return an independent copy")
	}
}
