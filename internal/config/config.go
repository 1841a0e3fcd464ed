// Package config provides configuration management for the testops-mcp server
// and client.
//
// Configuration controls:
//   - Transport: the websocket listen address, the optional stdio channel and
//     the per-call reply timeout
//   - Storage: the test data document, the alerts file and the backup directory
//   - Safety limits: how long to wait for the document's advisory lock
//   - Observability: log level/format and the metrics endpoint
//
// Values are layered: defaults, then a config file (YAML, JSON or TOML by
// extension), then TESTOPS_* environment variables. The CLI binds its flags on
// top of that.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variables that override config keys
const EnvPrefix = "TESTOPS"

// Config holds the server and client configuration
type Config struct {
	// Transport
	ListenAddress string        `mapstructure:"listenAddress"`
	ServerURL     string        `mapstructure:"serverUrl"`
	Stdio         bool          `mapstructure:"stdio"`
	CallTimeout   time.Duration `mapstructure:"callTimeout"`
	DialRetries   int           `mapstructure:"dialRetries"`

	// Storage
	DataFile    string        `mapstructure:"dataFile"`
	AlertsFile  string        `mapstructure:"alertsFile"`
	BackupDir   string        `mapstructure:"backupDir"`
	LockTimeout time.Duration `mapstructure:"lockTimeout"`

	// Observability
	LogLevel       string `mapstructure:"logLevel"`
	LogFormat      string `mapstructure:"logFormat"`
	MetricsEnabled bool   `mapstructure:"metricsEnabled"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		ListenAddress:  "localhost:3001",
		ServerURL:      "ws://localhost:3001",
		Stdio:          false,
		CallTimeout:    30 * time.Second,
		DialRetries:    5,
		DataFile:       "config/config.yaml",
		AlertsFile:     "config/alerts.json",
		BackupDir:      "config",
		LockTimeout:    5 * time.Second,
		LogLevel:       "info",
		LogFormat:      "text",
		MetricsEnabled: true,
	}
}

// NewViper returns a viper instance seeded with the defaults and wired to the
// TESTOPS_* environment. Callers may bind flags onto it before Load.
func NewViper() *viper.Viper {
	v := viper.New()
	d := DefaultConfig()
	v.SetDefault("listenAddress", d.ListenAddress)
	v.SetDefault("serverUrl", d.ServerURL)
	v.SetDefault("stdio", d.Stdio)
	v.SetDefault("callTimeout", d.CallTimeout)
	v.SetDefault("dialRetries", d.DialRetries)
	v.SetDefault("dataFile", d.DataFile)
	v.SetDefault("alertsFile", d.AlertsFile)
	v.SetDefault("backupDir", d.BackupDir)
	v.SetDefault("lockTimeout", d.LockTimeout)
	v.SetDefault("logLevel", d.LogLevel)
	v.SetDefault("logFormat", d.LogFormat)
	v.SetDefault("metricsEnabled", d.MetricsEnabled)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the optional config file at path into v and decodes the result
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfig loads configuration from a file, layered over defaults and env
func LoadConfig(path string) (*Config, error) {
	return Load(NewViper(), path)
}

// Validate rejects values the server cannot run with
func (c *Config) Validate() error {
	if c.CallTimeout <= 0 {
		return fmt.Errorf("callTimeout must be positive, got %v", c.CallTimeout)
	}
	if c.LockTimeout <= 0 {
		return fmt.Errorf("lockTimeout must be positive, got %v", c.LockTimeout)
	}
	if c.DataFile == "" {
		return fmt.Errorf("dataFile is required")
	}
	if c.AlertsFile == "" {
		return fmt.Errorf("alertsFile is required")
	}
	if c.DialRetries < 1 {
		c.DialRetries = 1
	}
	return nil
}
