package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Gateway GatewayConfig `toml:"gateway"`
	Agent   AgentConfig   `toml:"agent"`
	Admin   AdminConfig   `toml:"admin"`
	Store   StoreConfig   `toml:"store"`
	Log     LogConfig     `toml:"log"`
	Tracing TracingConfig `toml:"tracing"`
}

type GatewayConfig struct {
	Bind        string `toml:"bind"`
	Port        int    `toml:"port"`
	ExternalURL string `toml:"external_url"`
}

// AgentConfig seeds the public agent card. Name and description can be
// overridden at runtime through the admin surface.
type AgentConfig struct {
	Name        string   `toml:"name"`
	Description string   `toml:"description"`
	Version     string   `toml:"version"`
	InputModes  []string `toml:"input_modes"`
	OutputModes []string `toml:"output_modes"`
}

// AdminConfig guards the configure surface. The password is read from
// the named environment variable, never from the file itself.
type AdminConfig struct {
	PasswordEnv string `toml:"password_env"`
}

type StoreConfig struct {
	Driver string `toml:"driver"`
	DSN    string `toml:"dsn"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type TracingConfig struct {
	Enabled  bool   `toml:"enabled"`
	Endpoint string `toml:"endpoint"`
}

func Default() *Config {
	return &Config{
		Gateway: GatewayConfig{
			Bind: "loopback",
			Port: 8080,
		},
		Agent: AgentConfig{
			Name:        "switchboard",
			Description: "Conversational agent backend",
			Version:     "0.1.0",
			InputModes:  []string{"text"},
			OutputModes: []string{"text"},
		},
		Admin: AdminConfig{
			PasswordEnv: "SWITCHBOARD_ADMIN_PASSWORD",
		},
		Store: StoreConfig{
			Driver: "sqlite",
			DSN:    filepath.Join(DataDir(), "switchboard.db"),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

var (
	current *Config
	mu      sync.RWMutex
)

func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if cfg.Store.DSN == "" {
		cfg.Store.DSN = filepath.Join(DataDir(), "switchboard.db")
	}

	mu.Lock()
	current = cfg
	mu.Unlock()

	return cfg, nil
}

func Current() *Config {
	mu.RLock()
	defer mu.RUnlock()
	if current == nil {
		return Default()
	}
	return current
}

// AdminPassword resolves the admin password from the configured
// environment variable. Empty means the admin surface stays locked.
func (c *Config) AdminPassword() string {
	if c.Admin.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(c.Admin.PasswordEnv)
}

func DataDir() string {
	if dir := os.Getenv("SWITCHBOARD_DATA_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".switchboard"
	}
	return filepath.Join(home, ".switchboard")
}

func DefaultConfigPath() string {
	return filepath.Join(DataDir(), "switchboard.toml")
}

func EnsureDataDir() error {
	return os.MkdirAll(DataDir(), 0700)
}
