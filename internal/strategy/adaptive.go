package strategy

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/quant-replay/internal/audit"
	"github.com/yourusername/quant-replay/internal/metrics"
	"github.com/yourusername/quant-replay/internal/models"
)

const (
	historyLimit = 20
	priceEpsilon = 1e-9
	entryEpsilon = 1e-6
)

// AdaptiveState is the persistable control state of an AdaptiveStrategy.
// Owned by exactly one strategy instance; single writer assumed.
type AdaptiveState struct {
	Threshold    float64   `json:"threshold"`
	LearningRate float64   `json:"learning_rate"`
	MinThreshold float64   `json:"min_threshold"`
	MaxThreshold float64   `json:"max_threshold"`
	History      []float64 `json:"history"`
}

// AdaptiveConfig holds AdaptiveStrategy constructor parameters.
type AdaptiveConfig struct {
	InitialThreshold float64
	LearningRate     float64
	MinThreshold     float64
	MaxThreshold     float64
	PersistencePath  string
}

// DefaultAdaptiveConfig returns the standard adaptive parameters.
func DefaultAdaptiveConfig() AdaptiveConfig {
	return AdaptiveConfig{
		InitialThreshold: 0.001,
		LearningRate:     0.25,
		MinThreshold:     0.0005,
		MaxThreshold:     0.01,
	}
}

// AdaptiveStrategy is a momentum strategy whose threshold self-tunes after
// every realized trade: wins relax it toward MinThreshold, losses tighten it
// toward MaxThreshold. State persists across sessions through a JSON file.
type AdaptiveStrategy struct {
	state  AdaptiveState
	path   string
	writer *audit.Writer
	logger *logrus.Logger
}

// NewAdaptiveStrategy validates the configuration, restores any persisted
// state and emits an init audit event. A corrupt or unreadable state file is
// silently ignored and constructor defaults are retained.
func NewAdaptiveStrategy(cfg AdaptiveConfig, writer *audit.Writer, log *logrus.Logger) (*AdaptiveStrategy, error) {
	if cfg.MinThreshold <= 0 || cfg.MinThreshold > cfg.MaxThreshold {
		return nil, models.NewConfigurationError("min_threshold",
			"must be > 0 and <= max_threshold")
	}
	if cfg.LearningRate <= 0 || cfg.LearningRate > 1 {
		return nil, models.NewConfigurationError("learning_rate",
			"must be between 0 and 1")
	}
	if log == nil {
		log = logrus.New()
	}

	s := &AdaptiveStrategy{
		state: AdaptiveState{
			Threshold:    cfg.InitialThreshold,
			LearningRate: cfg.LearningRate,
			MinThreshold: cfg.MinThreshold,
			MaxThreshold: cfg.MaxThreshold,
		},
		path:   cfg.PersistencePath,
		writer: writer,
		logger: log,
	}
	s.loadState()

	if writer != nil {
		_ = writer.Append("quantreplay.strategy", "adaptive_init", map[string]interface{}{
			"threshold":     s.state.Threshold,
			"learning_rate": cfg.LearningRate,
		})
	}
	return s, nil
}

// Name identifies the strategy.
func (s *AdaptiveStrategy) Name() string {
	return "adaptive_momentum"
}

// State returns a copy of the current control state.
func (s *AdaptiveStrategy) State() AdaptiveState {
	state := s.state
	state.History = append([]float64(nil), s.state.History...)
	return state
}

// Signal returns 1 when bar momentum exceeds the threshold, -1 below the
// negative threshold, otherwise 0.
func (s *AdaptiveStrategy) Signal(bar models.Bar) (int, error) {
	if err := bar.Validate(); err != nil {
		return 0, err
	}
	momentum := (bar.Close - bar.Open) / math.Max(bar.Open, priceEpsilon)
	switch {
	case momentum > s.state.Threshold:
		return models.SignalLong, nil
	case momentum < -s.state.Threshold:
		return models.SignalShort, nil
	default:
		return models.SignalFlat, nil
	}
}

// OnTradeClose adapts the threshold from the realized pnl and rewrites the
// persisted state. Zero-pnl trades leave the threshold untouched.
func (s *AdaptiveStrategy) OnTradeClose(trade models.Trade) error {
	s.state.History = append(s.state.History, trade.PnL)
	if len(s.state.History) > historyLimit {
		s.state.History = s.state.History[len(s.state.History)-historyLimit:]
	}

	adjustment := s.state.LearningRate * math.Abs(trade.PnL) / math.Max(math.Abs(trade.Entry), entryEpsilon)
	switch {
	case trade.PnL > 0:
		s.state.Threshold = math.Max(s.state.MinThreshold, s.state.Threshold*(1-adjustment))
	case trade.PnL < 0:
		s.state.Threshold = math.Min(s.state.MaxThreshold, s.state.Threshold*(1+adjustment))
	}
	metrics.AdaptiveThreshold.Set(s.state.Threshold)
	return s.persistState()
}

// OnSessionEnd rewrites the persisted state.
func (s *AdaptiveStrategy) OnSessionEnd() error {
	return s.persistState()
}

func (s *AdaptiveStrategy) persistState() error {
	if s.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize adaptive state: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write adaptive state: %w", err)
	}
	return nil
}

func (s *AdaptiveStrategy) loadState() {
	if s.path == "" {
		return
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return
	}
	var stored AdaptiveState
	if err := json.Unmarshal(data, &stored); err != nil {
		s.logger.WithError(err).Debug("Ignoring corrupt adaptive state")
		return
	}
	if stored.Threshold > 0 {
		s.state.Threshold = stored.Threshold
	}
	if stored.LearningRate > 0 {
		s.state.LearningRate = stored.LearningRate
	}
	if stored.MinThreshold > 0 {
		s.state.MinThreshold = stored.MinThreshold
	}
	if stored.MaxThreshold > 0 {
		s.state.MaxThreshold = stored.MaxThreshold
	}
	if len(stored.History) > historyLimit {
		stored.History = stored.History[len(stored.History)-historyLimit:]
	}
	s.state.History = stored.History
}
