// Package config provides configuration management for the quant replay
// application.
package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

const defaultConfigPath = "config/config.yaml"

// Load reads and parses the configuration from file and environment
// variables. Environment variable placeholders in the YAML file (${VAR})
// are expanded before parsing.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = defaultConfigPath
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found at %s: %w", configPath, err)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	v := newViper()
	if err := v.ReadConfig(bytes.NewBufferString(expanded)); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	return cfg, nil
}

// LoadWithDefaults loads configuration with default values for optional
// fields. A missing config file is not an error; defaults and environment
// variables apply.
func LoadWithDefaults(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = defaultConfigPath
	}

	v := newViper()
	setDefaults(v)

	if data, err := os.ReadFile(configPath); err == nil {
		expanded := os.ExpandEnv(string(data))
		if err := v.ReadConfig(bytes.NewBufferString(expanded)); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	return cfg, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("QUANT_REPLAY")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "quant-replay")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("audit.log_path", "var/audit/audit_log.jsonl")
	v.SetDefault("backtest.initial_capital", 10_000.0)
	v.SetDefault("backtest.risk_per_trade", 0.01)
	v.SetDefault("backtest.slippage", 0.0)
	v.SetDefault("strategy.threshold", 0.001)
	v.SetDefault("strategy.learning_rate", 0.25)
	v.SetDefault("strategy.min_threshold", 0.0005)
	v.SetDefault("strategy.max_threshold", 0.01)
	v.SetDefault("strategy.state_path", "var/strategy/adaptive_state.json")
	v.SetDefault("optimizer.input_size", 3)
	v.SetDefault("optimizer.learning_rate", 0.1)
	v.SetDefault("optimizer.gamma", 0.95)
	v.SetDefault("optimizer.epsilon", 0.1)
	v.SetDefault("optimizer.state_path", "var/rl/adaptive_optimizer.json")
	v.SetDefault("optimizer.buffer_path", "var/rl/replay_buffer.json")
	v.SetDefault("datastore.backend", "file")
	v.SetDefault("datastore.base_dir", "var/backtests")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("scheduler.integrity_sweep_cron", "@every 1h")
}
