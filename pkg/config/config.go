package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Logging  LoggingConfig  `mapstructure:"logging"`
	Server   ServerConfig   `mapstructure:"server"`
	Stream   StreamConfig   `mapstructure:"stream"`
	Session  SessionConfig  `mapstructure:"session"`
	Research ResearchConfig `mapstructure:"research"`
}

// LoggingConfig holds logging-related configuration
type LoggingConfig struct {
	LogFile  string `mapstructure:"log_file"`
	Preserve bool   `mapstructure:"preserve"`
	Level    string `mapstructure:"level"`
}

// ServerConfig holds research server connection configuration
type ServerConfig struct {
	URL              string        `mapstructure:"url"`
	StatusTimeout    time.Duration `mapstructure:"-"`
	StatusTimeoutStr string        `mapstructure:"status_timeout"`
}

// StreamConfig holds stream consumption configuration
type StreamConfig struct {
	FlushInterval    time.Duration `mapstructure:"-"`
	FlushIntervalStr string        `mapstructure:"flush_interval"`
	BufferSize       int           `mapstructure:"buffer_size"`
}

// SessionConfig holds local session persistence configuration
type SessionConfig struct {
	StateFile    string `mapstructure:"state_file"`
	HistoryLimit int    `mapstructure:"history_limit"`
}

// ResearchConfig holds run configuration forwarded to the server on each
// new turn. The server interprets these; the client treats them as opaque.
type ResearchConfig struct {
	MaxPlanIterations int  `mapstructure:"max_plan_iterations"`
	MaxSearchResults  int  `mapstructure:"max_search_results"`
	AutoAcceptPlan    bool `mapstructure:"auto_accept_plan"`
}

// Global config instance
var cfg *Config

// Get returns the global config instance
func Get() *Config {
	if cfg == nil {
		panic("config not initialized")
	}
	return cfg
}

// Load loads configuration from file and environment
func Load(cfgFile string) (*Config, error) {
	setDefaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}

		xdgConfigHome := os.Getenv("XDG_CONFIG_HOME")
		if xdgConfigHome == "" {
			xdgConfigHome = filepath.Join(home, ".config")
		}

		viper.AddConfigPath("./.tidewatch")
		viper.AddConfigPath(filepath.Join(xdgConfigHome, ".tidewatch"))
		viper.SetConfigType("yaml")
		viper.SetConfigName("settings")
	}

	viper.AutomaticEnv()
	bindEnvironmentVariables()

	// Missing config file is fine, defaults cover everything
	_ = viper.ReadInConfig()

	cfg = &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := processDurations(cfg); err != nil {
		return nil, fmt.Errorf("failed to process durations: %w", err)
	}

	return cfg, nil
}

// setDefaults sets all default configuration values
func setDefaults() {
	viper.SetDefault("server.url", "http://localhost:8000")
	viper.SetDefault("server.status_timeout", "5s")

	viper.SetDefault("stream.flush_interval", "33ms")
	viper.SetDefault("stream.buffer_size", 100)

	viper.SetDefault("session.state_file", "./.tidewatch/session.json")
	viper.SetDefault("session.history_limit", 1000)

	viper.SetDefault("research.max_plan_iterations", 1)
	viper.SetDefault("research.max_search_results", 3)
	viper.SetDefault("research.auto_accept_plan", false)

	viper.SetDefault("logging.log_file", "./.tidewatch/system.log")
	viper.SetDefault("logging.preserve", false)
	viper.SetDefault("logging.level", "info")
}

// bindEnvironmentVariables binds specific environment variables to Viper keys
func bindEnvironmentVariables() {
	viper.BindEnv("server.url", "TIDEWATCH_SERVER_URL")
	viper.BindEnv("server.status_timeout", "TIDEWATCH_STATUS_TIMEOUT")
	viper.BindEnv("session.state_file", "TIDEWATCH_STATE_FILE")
	viper.BindEnv("logging.log_file", "TIDEWATCH_LOG_FILE")
	viper.BindEnv("logging.level", "TIDEWATCH_LOG_LEVEL")
}

// processDurations converts string durations to time.Duration
func processDurations(cfg *Config) error {
	if cfg.Server.StatusTimeoutStr != "" {
		d, err := time.ParseDuration(cfg.Server.StatusTimeoutStr)
		if err != nil {
			return fmt.Errorf("invalid server.status_timeout: %w", err)
		}
		cfg.Server.StatusTimeout = d
	} else {
		cfg.Server.StatusTimeout = 5 * time.Second
	}

	if cfg.Stream.FlushIntervalStr != "" {
		d, err := time.ParseDuration(cfg.Stream.FlushIntervalStr)
		if err != nil {
			return fmt.Errorf("invalid stream.flush_interval: %w", err)
		}
		cfg.Stream.FlushInterval = d
	} else {
		cfg.Stream.FlushInterval = 33 * time.Millisecond
	}

	return nil
}

// GetConfigFileUsed returns the path to the config file being used
func GetConfigFileUsed() string {
	return viper.ConfigFileUsed()
}

// Set replaces the global config instance (useful for tests)
func Set(c *Config) {
	cfg = c
}
