package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/bryanchriswhite/winsync/internal/logger"
	"github.com/bryanchriswhite/winsync/internal/state"
)

// EnvPrefix prefixes environment overrides, e.g. WINSYNC_SERVER_PORT.
const EnvPrefix = "WINSYNC"

// Config represents the application configuration
type Config struct {
	Driver             string        `json:"driver" yaml:"driver" mapstructure:"driver"`
	Display            string        `json:"display" yaml:"display" mapstructure:"display"`
	LogLevel           string        `json:"log_level" yaml:"log_level" mapstructure:"log_level"`
	LogPretty          bool          `json:"log_pretty" yaml:"log_pretty" mapstructure:"log_pretty"`
	RequestTimeout     time.Duration `json:"request_timeout" yaml:"request_timeout" mapstructure:"request_timeout"`
	UnexpectedErrors   string        `json:"unexpected_errors" yaml:"unexpected_errors" mapstructure:"unexpected_errors"`
	NotificationBuffer int           `json:"notification_buffer" yaml:"notification_buffer" mapstructure:"notification_buffer"`
	Server             ServerConfig  `json:"server" yaml:"server" mapstructure:"server"`
	IgnoreWindowTypes  []string      `json:"ignore_window_types" yaml:"ignore_window_types" mapstructure:"ignore_window_types"`
}

// ServerConfig represents the HTTP API configuration
type ServerConfig struct {
	Enabled        bool     `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	Port           int      `json:"port" yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `json:"allowed_origins" yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

type keyKind int

const (
	kindString keyKind = iota
	kindBool
	kindInt
	kindDuration
	kindList
)

// keys lists every settable key with its type.
var keys = map[string]keyKind{
	"driver":                 kindString,
	"display":                kindString,
	"log_level":              kindString,
	"log_pretty":             kindBool,
	"request_timeout":        kindDuration,
	"unexpected_errors":      kindString,
	"notification_buffer":    kindInt,
	"server.enabled":         kindBool,
	"server.port":            kindInt,
	"server.allowed_origins": kindList,
	"ignore_window_types":    kindList,
}

// flagKeys maps command-line flag names onto config keys.
var flagKeys = map[string]string{
	"driver":            "driver",
	"display":           "display",
	"log-level":         "log_level",
	"log-pretty":        "log_pretty",
	"request-timeout":   "request_timeout",
	"unexpected-errors": "unexpected_errors",
	"port":              "server.port",
}

// Defaults returns the default configuration.
func Defaults() *Config {
	return &Config{
		Driver:             "x11",
		LogLevel:           string(logger.InfoLevel),
		RequestTimeout:     5 * time.Second,
		UnexpectedErrors:   string(state.PolicyReport),
		NotificationBuffer: 256,
		Server: ServerConfig{
			Enabled:        true,
			Port:           8090,
			AllowedOrigins: []string{},
		},
		IgnoreWindowTypes: []string{
			"_NET_WM_WINDOW_TYPE_DESKTOP",
			"_NET_WM_WINDOW_TYPE_DOCK",
			"_NET_WM_WINDOW_TYPE_SPLASH",
			"_NET_WM_WINDOW_TYPE_NOTIFICATION",
		},
	}
}

// Keys returns the settable configuration keys, sorted.
func Keys() []string {
	out := make([]string, 0, len(keys))
	for k := range keys {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Validate checks that every value is usable.
func (c *Config) Validate() error {
	if c.Driver != "x11" {
		return fmt.Errorf("unsupported driver %q (use: x11)", c.Driver)
	}
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if _, err := state.ParseErrorPolicy(c.UnexpectedErrors); err != nil {
		return err
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("request_timeout must not be negative, got %s", c.RequestTimeout)
	}
	if c.NotificationBuffer <= 0 {
		return fmt.Errorf("notification_buffer must be positive, got %d", c.NotificationBuffer)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	return nil
}

// Manager handles configuration. v layers flags and the environment over
// the file; file holds only defaults, the config file and Set values, and is
// what Save writes.
type Manager struct {
	configPath string
	v          *viper.Viper
	file       *viper.Viper
	config     *Config
	mu         sync.RWMutex
}

// DefaultPath returns $HOME/.config/winsync/config.yaml.
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "winsync", "config.yaml"), nil
}

// NewManager loads configFile, or the default path when empty. A missing
// file is created with defaults.
func NewManager(configFile string) (*Manager, error) {
	actualConfigPath := configFile
	if actualConfigPath == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		actualConfigPath = p
	}

	if err := os.MkdirAll(filepath.Dir(actualConfigPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	v := newLayer(actualConfigPath)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	m := &Manager{configPath: actualConfigPath, v: v, file: newLayer(actualConfigPath)}

	log := logger.WithComponent("config")
	if _, err := os.Stat(actualConfigPath); os.IsNotExist(err) {
		log.Info().
			Str("path", actualConfigPath).
			Msg("Config file not found, creating new config")
		if err := m.reload(); err != nil {
			return nil, err
		}
		if err := m.Save(); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	} else {
		for _, layer := range []*viper.Viper{m.v, m.file} {
			if err := layer.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
		if err := m.reload(); err != nil {
			return nil, err
		}
	}

	log.Debug().
		Str("path", m.configPath).
		Str("driver", m.config.Driver).
		Msg("Config loaded")
	return m, nil
}

func newLayer(path string) *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	return v
}

func setDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("driver", d.Driver)
	v.SetDefault("display", d.Display)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_pretty", d.LogPretty)
	v.SetDefault("request_timeout", d.RequestTimeout)
	v.SetDefault("unexpected_errors", d.UnexpectedErrors)
	v.SetDefault("notification_buffer", d.NotificationBuffer)
	v.SetDefault("server.enabled", d.Server.Enabled)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.allowed_origins", d.Server.AllowedOrigins)
	v.SetDefault("ignore_window_types", d.IgnoreWindowTypes)
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Server.AllowedOrigins == nil {
		cfg.Server.AllowedOrigins = []string{}
	}
	if cfg.IgnoreWindowTypes == nil {
		cfg.IgnoreWindowTypes = []string{}
	}
	return &cfg, nil
}

// reload decodes the layered viper state into a validated Config.
func (m *Manager) reload() error {
	cfg, err := decode(m.v)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config %s: %w", m.configPath, err)
	}

	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
	return nil
}

// Get returns a copy of the current configuration
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.config == nil {
		return Defaults()
	}
	cfg := *m.config
	cfg.Server.AllowedOrigins = append([]string{}, m.config.Server.AllowedOrigins...)
	cfg.IgnoreWindowTypes = append([]string{}, m.config.IgnoreWindowTypes...)
	return &cfg
}

// GetViper exposes the layered settings for key-based access.
func (m *Manager) GetViper() *viper.Viper {
	return m.v
}

// BindFlags layers flags from fs over the file and environment. Flags that
// are not defined in fs are skipped.
func (m *Manager) BindFlags(fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := m.v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("failed to bind flag --%s: %w", name, err)
		}
	}
	return m.reload()
}

// GetValue returns the effective value of a known key.
func (m *Manager) GetValue(key string) (any, error) {
	if _, ok := keys[key]; !ok {
		return nil, fmt.Errorf("configuration key not found: %s", key)
	}
	return m.v.Get(key), nil
}

// Set parses value according to the key's type, validates the result and
// saves it.
func (m *Manager) Set(key, value string) error {
	kind, ok := keys[key]
	if !ok {
		return fmt.Errorf("configuration key not found: %s (known: %s)", key, strings.Join(Keys(), ", "))
	}

	var parsed any
	switch kind {
	case kindString:
		parsed = value
	case kindBool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %s (use: true or false)", value)
		}
		parsed = b
	case kindInt:
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid number: %s", value)
		}
		parsed = n
	case kindDuration:
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration: %s (e.g. 500ms, 5s)", value)
		}
		parsed = d
	case kindList:
		items := []string{}
		for _, item := range strings.Split(value, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		parsed = items
	}

	previous, previousFile := m.v.Get(key), m.file.Get(key)
	m.v.Set(key, parsed)
	m.file.Set(key, parsed)
	if err := m.reload(); err != nil {
		m.v.Set(key, previous)
		m.file.Set(key, previousFile)
		return err
	}
	return m.Save()
}

// Save writes the file layer to disk. Environment and flag overrides are
// not persisted.
func (m *Manager) Save() error {
	cfg, err := decode(m.file)
	if err != nil {
		return err
	}
	log := logger.WithComponent("config")

	log.Debug().
		Str("path", m.configPath).
		Msg("Saving config")

	if err := os.MkdirAll(filepath.Dir(m.configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(m.configPath, data, 0644); err != nil {
		log.Error().
			Err(err).
			Str("path", m.configPath).
			Msg("Failed to write config")
		return err
	}

	log.Info().
		Str("path", m.configPath).
		Msg("Config saved successfully")
	return nil
}

// GetConfigPath returns the path to the config file
func (m *Manager) GetConfigPath() string {
	return m.configPath
}

// GetConfigDir returns the config directory path
func (m *Manager) GetConfigDir() string {
	return filepath.Dir(m.configPath)
}
