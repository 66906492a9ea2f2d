// Package backtest drives the position state machine over ordered price
// sequences and computes run performance.
package backtest

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/quant-replay/internal/audit"
	"github.com/yourusername/quant-replay/internal/datastore"
	"github.com/yourusername/quant-replay/internal/metrics"
	"github.com/yourusername/quant-replay/internal/models"
	"github.com/yourusername/quant-replay/internal/strategy"
)

// TradeObserver is notified of every closed trade and of run end. RL
// components attach through this interface rather than being probed for
// optional methods.
type TradeObserver interface {
	ObserveTrade(trade models.Trade) error
	EndSession() error
}

// HookOutcome is the result of one best-effort hook invocation. Warn
// outcomes are logged by the engine and never abort the run.
type HookOutcome struct {
	Hook   string
	OK     bool
	Reason string
}

// Engine replays bars through a strategy, one position slot at a time.
type Engine struct {
	config    Config
	strategy  strategy.Strategy
	writer    *audit.Writer
	store     datastore.RunStore
	tracker   *metrics.AdaptiveTracker
	observers []TradeObserver
	logger    *logrus.Logger
	sessionID string
}

// Option configures an Engine.
type Option func(*Engine)

// WithAuditWriter attaches the signed audit trail.
func WithAuditWriter(writer *audit.Writer) Option {
	return func(e *Engine) { e.writer = writer }
}

// WithRunStore attaches the run artifact sink.
func WithRunStore(store datastore.RunStore) Option {
	return func(e *Engine) { e.store = store }
}

// WithTracker attaches the adaptive KPI tracker fed with equity samples.
func WithTracker(tracker *metrics.AdaptiveTracker) Option {
	return func(e *Engine) { e.tracker = tracker }
}

// WithObserver attaches a trade observer. May be given multiple times.
func WithObserver(observer TradeObserver) Option {
	return func(e *Engine) {
		if observer != nil {
			e.observers = append(e.observers, observer)
		}
	}
}

// WithLogger sets the operational logger.
func WithLogger(logger *logrus.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithSessionID keys persisted artifacts and audit entries.
func WithSessionID(sessionID string) Option {
	return func(e *Engine) { e.sessionID = sessionID }
}

// NewEngine creates a backtesting engine.
func NewEngine(cfg Config, strat strategy.Strategy, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if strat == nil {
		return nil, models.NewConfigurationError("strategy", "is required")
	}
	e := &Engine{
		config:   cfg,
		strategy: strat,
		logger:   logrus.New(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Config returns the engine configuration.
func (e *Engine) Config() Config {
	return e.config
}

// Run replays the bars through the strategy. A DataError from a malformed
// bar or an out-of-range signal aborts the run; hook failures never do.
// Each run owns its position state exclusively.
func (e *Engine) Run(ctx context.Context, bars []models.Bar) (*Result, error) {
	result := NewResult()
	equity := e.config.InitialCapital
	position := 0
	entryPrice := 0.0

	for idx, bar := range bars {
		if err := bar.Validate(); err != nil {
			return nil, err
		}
		signal, err := e.strategy.Signal(bar)
		if err != nil {
			return nil, err
		}
		if !models.ValidSignal(signal) {
			return nil, models.NewDataError("strategy must return -1, 0, or 1, got %d", signal)
		}
		e.logger.WithFields(logrus.Fields{
			"bar": idx, "signal": signal, "position": position,
		}).Debug("Processing bar")

		// Exit when the signal flips away from the open position
		if position != 0 && signal != position {
			pnl := (bar.Open-entryPrice)*float64(position) - e.config.Slippage
			equity += pnl
			trade := models.Trade{
				Index:     idx,
				Direction: position,
				Entry:     entryPrice,
				Exit:      bar.Open,
				PnL:       pnl,
			}
			result.AddTrade(trade)
			e.notifyTradeClose(trade)
			position = 0
		}

		// Enter a new position when flat
		if position == 0 && signal != 0 {
			riskAmount := equity * e.config.RiskPerTrade
			position = signal
			entryPrice = bar.Open
			e.logger.WithFields(logrus.Fields{
				"direction": position, "entry": entryPrice, "risk": riskAmount,
			}).Debug("Opening position")
		}

		result.EquityCurve = append(result.EquityCurve, equity)
		if e.tracker != nil {
			e.tracker.RecordEquity(equity)
		}
	}

	// Force-close any open position at the final close price
	if position != 0 && len(bars) > 0 {
		finalBar := bars[len(bars)-1]
		pnl := (finalBar.Close-entryPrice)*float64(position) - e.config.Slippage
		equity += pnl
		trade := models.Trade{
			Index:     len(bars) - 1,
			Direction: position,
			Entry:     entryPrice,
			Exit:      finalBar.Close,
			PnL:       pnl,
		}
		result.AddTrade(trade)
		e.notifyTradeClose(trade)
		result.EquityCurve[len(result.EquityCurve)-1] = equity
		if e.tracker != nil {
			e.tracker.RecordEquity(equity)
		}
	}

	result.Metrics["starting_equity"] = e.config.InitialCapital
	result.Metrics["ending_equity"] = equity
	result.Metrics["net_return"] = equity/e.config.InitialCapital - 1
	result.Summarize()

	metrics.BacktestRunsTotal.Inc()
	metrics.CurrentEquity.Set(equity)

	e.finishRun(ctx, bars, result)
	return result, nil
}

// finishRun performs the best-effort side effects: artifact persistence, the
// signed summary audit entry, KPI logging and observer finalization. Every
// failure here is logged and swallowed; accumulated run state is already
// complete.
func (e *Engine) finishRun(ctx context.Context, bars []models.Bar, result *Result) {
	e.logHook(e.runHook("strategy.on_session_end", e.strategy.OnSessionEnd))
	for _, observer := range e.observers {
		e.logHook(e.runHook("observer.end_session", observer.EndSession))
	}

	artifactPath := ""
	if e.store != nil {
		path, err := e.store.SaveRun(ctx, e.sessionID, bars, result, map[string]interface{}{
			"strategy": e.strategy.Name(),
			"bars":     len(bars),
		})
		if err != nil {
			e.logger.WithError(err).Warn("Failed to persist run artifact")
		} else {
			artifactPath = path
		}
	}

	if e.tracker != nil {
		var recorder metrics.EventRecorder
		if e.writer != nil {
			recorder = e.writer
		}
		if _, err := e.tracker.LogUpdate(recorder); err != nil {
			e.logger.WithError(err).Warn("Failed to log adaptive KPI update")
		}
	}

	if e.writer != nil {
		payload := map[string]interface{}{
			"total_trades": len(result.Trades),
			"net_return":   result.Metrics["net_return"],
		}
		if artifactPath != "" {
			payload["artifact_path"] = artifactPath
		}
		if err := e.writer.Append("quantreplay.backtester", "run_complete", payload); err != nil {
			e.logger.WithError(err).Warn("Failed to append backtest audit entry")
		}
	}
}

func (e *Engine) notifyTradeClose(trade models.Trade) {
	metrics.TradesClosedTotal.Inc()
	e.logger.WithFields(logrus.Fields{
		"index": trade.Index, "direction": trade.Direction, "pnl": trade.PnL,
	}).Debug("Closed trade")

	e.logHook(e.runHook("strategy.on_trade_close", func() error {
		return e.strategy.OnTradeClose(trade)
	}))
	for _, observer := range e.observers {
		e.logHook(e.runHook("observer.observe_trade", func() error {
			return observer.ObserveTrade(trade)
		}))
	}
}

// runHook invokes one best-effort callback, converting both errors and
// panics into Warn outcomes.
func (e *Engine) runHook(name string, fn func() error) (outcome HookOutcome) {
	outcome = HookOutcome{Hook: name, OK: true}
	defer func() {
		if r := recover(); r != nil {
			outcome.OK = false
			outcome.Reason = fmt.Sprintf("panic: %v", r)
		}
	}()
	if err := fn(); err != nil {
		outcome.OK = false
		outcome.Reason = err.Error()
	}
	return outcome
}

func (e *Engine) logHook(outcome HookOutcome) {
	if outcome.OK {
		return
	}
	metrics.HookWarningsTotal.Inc()
	e.logger.WithFields(logrus.Fields{
		"hook": outcome.Hook, "reason": outcome.Reason,
	}).Warn("Hook invocation failed")
}
