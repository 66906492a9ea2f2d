package backtest

import (
	"github.com/yourusername/quant-replay/internal/models"
)

// Config holds the engine parameters for one replay session.
type Config struct {
	InitialCapital float64
	RiskPerTrade   float64
	Slippage       float64
}

// DefaultConfig returns the standard engine parameters.
func DefaultConfig() Config {
	return Config{
		InitialCapital: 10_000,
		RiskPerTrade:   0.01,
		Slippage:       0,
	}
}

// Validate validates engine config parameters
func (c Config) Validate() error {
	if c.InitialCapital <= 0 {
		return models.NewConfigurationError("initial_capital", "must be positive")
	}
	if c.RiskPerTrade <= 0 || c.RiskPerTrade > 1 {
		return models.NewConfigurationError("risk_per_trade", "must be between 0 and 1")
	}
	if c.Slippage < 0 {
		return models.NewConfigurationError("slippage", "cannot be negative")
	}
	return nil
}
