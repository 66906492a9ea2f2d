// Package strategy defines the trading strategy contract and the built-in
// strategies, including the threshold-adaptive momentum strategy.
package strategy

import (
	"github.com/yourusername/quant-replay/internal/models"
)

// Strategy maps each bar to a signal in {-1, 0, 1}. Every strategy exposes
// the lifecycle hooks; stateless strategies inherit the no-op defaults from
// BaseStrategy rather than being probed for optional methods.
type Strategy interface {
	Name() string
	Signal(bar models.Bar) (int, error)
	OnTradeClose(trade models.Trade) error
	OnSessionEnd() error
}

// BaseStrategy supplies no-op lifecycle hooks for stateless strategies.
type BaseStrategy struct{}

// OnTradeClose is a no-op.
func (BaseStrategy) OnTradeClose(models.Trade) error { return nil }

// OnSessionEnd is a no-op.
func (BaseStrategy) OnSessionEnd() error { return nil }

// Func adapts a plain signal function into a stateless Strategy.
type Func struct {
	BaseStrategy
	StrategyName string
	Fn           func(bar models.Bar) (int, error)
}

// Name returns the configured name, defaulting to "func".
func (f Func) Name() string {
	if f.StrategyName == "" {
		return "func"
	}
	return f.StrategyName
}

// Signal delegates to the wrapped function.
func (f Func) Signal(bar models.Bar) (int, error) {
	return f.Fn(bar)
}
