// Package config loads service configuration from a YAML file with
// environment variable overrides for deploy-time values.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full service configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Chain     ChainConfig     `yaml:"chain"`
	Logging   LoggingConfig   `yaml:"logging"`
	Dispatch  DispatchConfig  `yaml:"dispatch"`
	Reconcile ReconcileConfig `yaml:"reconcile"`
}

// ServerConfig configures the HTTP API listener.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig configures the postgres index store. When URL is empty the
// service runs on the in-memory store, which is intended for development.
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// ChainConfig configures the escrow program client.
type ChainConfig struct {
	RPCURL               string        `yaml:"rpc_url"`
	ProgramID            string        `yaml:"program_id"`
	MainVault            string        `yaml:"main_vault"`
	PlatformFeeRecipient string        `yaml:"platform_fee_recipient"`
	Timeout              time.Duration `yaml:"timeout"`
	RequestsPerSecond    int           `yaml:"requests_per_second"`
	Burst                int           `yaml:"burst"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DispatchConfig configures the notification outbox dispatcher.
type DispatchConfig struct {
	Interval    time.Duration `yaml:"interval"`
	MaxAttempts int           `yaml:"max_attempts"`
	BatchSize   int           `yaml:"batch_size"`
}

// ReconcileConfig configures the drift reconciler.
type ReconcileConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			MaxOpenConns: 16,
			MaxIdleConns: 4,
		},
		Chain: ChainConfig{
			RPCURL:            "http://localhost:8899",
			ProgramID:         "G5gcEvNxXPxsUwKmGNxNheKq2j5nBghciJpCyooPCKdd",
			Timeout:           30 * time.Second,
			RequestsPerSecond: 10,
			Burst:             20,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Dispatch: DispatchConfig{
			Interval:    10 * time.Second,
			MaxAttempts: 5,
			BatchSize:   32,
		},
		Reconcile: ReconcileConfig{
			Interval: 30 * time.Second,
		},
	}
}

// Load reads configuration from path, falling back to defaults when the
// file does not exist, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.Server.Addr, "ESCROW_SERVER_ADDR")
	setString(&c.Database.URL, "ESCROW_DATABASE_URL")
	setString(&c.Chain.RPCURL, "ESCROW_CHAIN_RPC_URL")
	setString(&c.Chain.ProgramID, "ESCROW_CHAIN_PROGRAM_ID")
	setString(&c.Chain.MainVault, "ESCROW_CHAIN_MAIN_VAULT")
	setString(&c.Chain.PlatformFeeRecipient, "ESCROW_CHAIN_FEE_RECIPIENT")
	setString(&c.Logging.Level, "ESCROW_LOG_LEVEL")
	setString(&c.Logging.Format, "ESCROW_LOG_FORMAT")
	setDuration(&c.Reconcile.Interval, "ESCROW_RECONCILE_INTERVAL")
	setDuration(&c.Dispatch.Interval, "ESCROW_DISPATCH_INTERVAL")
}

// Validate checks the fields the service cannot start without.
func (c *Config) Validate() error {
	if c.Chain.RPCURL == "" {
		return fmt.Errorf("chain.rpc_url is required")
	}
	if c.Chain.ProgramID == "" {
		return fmt.Errorf("chain.program_id is required")
	}
	if c.Chain.MainVault == "" {
		return fmt.Errorf("chain.main_vault is required")
	}
	if c.Chain.PlatformFeeRecipient == "" {
		return fmt.Errorf("chain.platform_fee_recipient is required")
	}
	if c.Dispatch.MaxAttempts <= 0 {
		return fmt.Errorf("dispatch.max_attempts must be positive")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if d, err := time.ParseDuration(v); err == nil {
		*dst = d
		return
	}
	if secs, err := strconv.Atoi(v); err == nil {
		*dst = time.Duration(secs) * time.Second
	}
}
