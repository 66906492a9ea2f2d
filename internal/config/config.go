// Package config provides configuration management for the quant replay
// application.
package config

import (
	"fmt"
)

// Config represents the complete application configuration
type Config struct {
	App       AppConfig       `mapstructure:"app" validate:"required"`
	Audit     AuditConfig     `mapstructure:"audit" validate:"required"`
	Backtest  BacktestConfig  `mapstructure:"backtest" validate:"required"`
	Strategy  StrategyConfig  `mapstructure:"strategy" validate:"required"`
	Optimizer OptimizerConfig `mapstructure:"optimizer" validate:"required"`
	Predictor PredictorConfig `mapstructure:"predictor"`
	Datastore DatastoreConfig `mapstructure:"datastore" validate:"required"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Validator ValidatorConfig `mapstructure:"validator"`
	Metrics   MetricsConfig   `mapstructure:"metrics" validate:"required"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// AppConfig represents application-level configuration
type AppConfig struct {
	Name        string `mapstructure:"name" validate:"required"`
	Environment string `mapstructure:"environment" validate:"required,environment"`
	LogLevel    string `mapstructure:"log_level" validate:"required,loglevel"`
}

// AuditConfig represents signed audit trail configuration. SigningKey is
// normally left empty in files and supplied through the environment or the
// secrets overlay.
type AuditConfig struct {
	LogPath    string `mapstructure:"log_path" validate:"required"`
	SigningKey string `mapstructure:"signing_key"`
}

// BacktestConfig represents replay engine configuration
type BacktestConfig struct {
	InitialCapital float64 `mapstructure:"initial_capital" validate:"required,gt=0"`
	RiskPerTrade   float64 `mapstructure:"risk_per_trade" validate:"required,gt=0,lte=1"`
	Slippage       float64 `mapstructure:"slippage" validate:"gte=0"`
}

// StrategyConfig represents adaptive strategy configuration
type StrategyConfig struct {
	Threshold    float64 `mapstructure:"threshold" validate:"required,gt=0"`
	LearningRate float64 `mapstructure:"learning_rate" validate:"required,gt=0,lte=1"`
	MinThreshold float64 `mapstructure:"min_threshold" validate:"required,gt=0"`
	MaxThreshold float64 `mapstructure:"max_threshold" validate:"required,gt=0"`
	StatePath    string  `mapstructure:"state_path" validate:"required"`
}

// OptimizerConfig represents RL optimizer configuration
type OptimizerConfig struct {
	InputSize    int     `mapstructure:"input_size" validate:"required,gt=0"`
	LearningRate float64 `mapstructure:"learning_rate" validate:"required,gt=0"`
	Gamma        float64 `mapstructure:"gamma" validate:"gte=0,lte=1"`
	Epsilon      float64 `mapstructure:"epsilon" validate:"gte=0,lte=1"`
	StatePath    string  `mapstructure:"state_path" validate:"required"`
	BufferPath   string  `mapstructure:"buffer_path"`
}

// PredictorConfig represents the external prediction service configuration
type PredictorConfig struct {
	Enabled            bool    `mapstructure:"enabled"`
	URL                string  `mapstructure:"url" validate:"omitempty,url"`
	TimeoutSeconds     int     `mapstructure:"timeout_seconds" validate:"omitempty,gt=0"`
	RetryAttempts      int     `mapstructure:"retry_attempts" validate:"gte=0"`
	CacheTTLSeconds    int     `mapstructure:"cache_ttl_seconds" validate:"omitempty,gt=0"`
	RequestsPerSecond  float64 `mapstructure:"requests_per_second" validate:"omitempty,gt=0"`
	InputSize          int     `mapstructure:"input_size" validate:"omitempty,gt=0"`
}

// DatastoreConfig represents run artifact persistence configuration
type DatastoreConfig struct {
	Backend string `mapstructure:"backend" validate:"required,oneof=file postgres"`
	BaseDir string `mapstructure:"base_dir"`
}

// DatabaseConfig represents database connection configuration, required only
// when the datastore backend is postgres
type DatabaseConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port" validate:"omitempty,min=1,max=65535"`
	Name           string `mapstructure:"name"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	SSLMode        string `mapstructure:"ssl_mode" validate:"omitempty,oneof=disable require verify-full"`
	MaxConnections int    `mapstructure:"max_connections" validate:"omitempty,gt=0"`
}

// ValidatorConfig represents distributed validation configuration
type ValidatorConfig struct {
	MaxWorkers int `mapstructure:"max_workers" validate:"gte=0"`
}

// MetricsConfig represents metrics and monitoring configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port" validate:"required,min=1,max=65535"`
	Path    string `mapstructure:"path" validate:"required"`
}

// SchedulerConfig represents the periodic audit integrity sweep
type SchedulerConfig struct {
	Enabled            bool   `mapstructure:"enabled"`
	IntegritySweepCron string `mapstructure:"integrity_sweep_cron"`
}

// IsDevelopment checks if the application is running in development mode
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// IsProduction checks if the application is running in production mode
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// GetDatabaseDSN returns a PostgreSQL DSN string
func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
		c.Database.SSLMode,
	)
}
