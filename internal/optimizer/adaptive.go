package optimizer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/quant-replay/internal/audit"
	"github.com/yourusername/quant-replay/internal/models"
)

const saveEvery = 10

// AdaptiveConfig holds RLAdaptiveOptimizer constructor parameters.
type AdaptiveConfig struct {
	InputSize       int
	LearningRate    float64
	Gamma           float64
	Epsilon         float64
	MinLearningRate float64
	MaxLearningRate float64
	Smoothing       float64
	StatePath       string
}

// DefaultAdaptiveConfig returns the standard parameters for inputSize
// features.
func DefaultAdaptiveConfig(inputSize int) AdaptiveConfig {
	return AdaptiveConfig{
		InputSize:       inputSize,
		LearningRate:    0.1,
		Gamma:           0.95,
		Epsilon:         0.1,
		MinLearningRate: 0.01,
		MaxLearningRate: 0.5,
		Smoothing:       0.25,
		StatePath:       filepath.Join("var", "rl", "adaptive_optimizer.json"),
	}
}

// UpdateMetrics reports the outcome of one adaptive update.
type UpdateMetrics struct {
	LearningRate float64 `json:"learning_rate"`
	Prediction   float64 `json:"prediction"`
	MeanReward   float64 `json:"mean_reward"`
	Volatility   float64 `json:"volatility"`
	MemorySize   int     `json:"memory_size"`
}

// RLAdaptiveOptimizer wraps an Optimizer with a volatility-responsive
// experience buffer and learning-rate auto-tuning. State is persisted every
// ten updates and on Finalize; a missing or corrupt state file falls back to
// constructor defaults.
type RLAdaptiveOptimizer struct {
	base      *Optimizer
	memory    *AdaptiveMemory
	writer    *audit.Writer
	logger    *logrus.Logger
	statePath string

	initialLR float64
	minLR     float64
	maxLR     float64
	smoothing float64
	steps     int
}

type adaptiveSnapshot struct {
	LearningRate float64      `json:"learning_rate"`
	Epsilon      float64      `json:"epsilon"`
	Gamma        float64      `json:"gamma"`
	Memory       []Experience `json:"memory"`
}

// NewRLAdaptiveOptimizer constructs the wrapper and loads any persisted
// state.
func NewRLAdaptiveOptimizer(cfg AdaptiveConfig, writer *audit.Writer, log *logrus.Logger) (*RLAdaptiveOptimizer, error) {
	if cfg.InputSize <= 0 {
		return nil, models.NewConfigurationError("input_size", "must be positive")
	}
	if log == nil {
		log = logrus.New()
	}
	base, err := New(Config{
		InputSize:    cfg.InputSize,
		LearningRate: cfg.LearningRate,
		Gamma:        cfg.Gamma,
		Epsilon:      cfg.Epsilon,
	}, nil)
	if err != nil {
		return nil, err
	}

	o := &RLAdaptiveOptimizer{
		base:      base,
		memory:    NewAdaptiveMemory(),
		writer:    writer,
		logger:    log,
		statePath: cfg.StatePath,
		initialLR: cfg.LearningRate,
		minLR:     cfg.MinLearningRate,
		maxLR:     cfg.MaxLearningRate,
		smoothing: cfg.Smoothing,
	}
	o.loadState()
	o.logEvent("adaptive_init", map[string]interface{}{
		"learning_rate": o.base.LearningRate,
		"memory_size":   o.memory.Len(),
		"min_lr":        o.minLR,
		"max_lr":        o.maxLR,
	})
	return o, nil
}

// LearningRate returns the currently applied learning rate.
func (o *RLAdaptiveOptimizer) LearningRate() float64 {
	return o.base.LearningRate
}

// Memory exposes the experience buffer.
func (o *RLAdaptiveOptimizer) Memory() *AdaptiveMemory {
	return o.memory
}

// Update appends one sample, retunes capacity and learning rate, and trains
// the base policy.
func (o *RLAdaptiveOptimizer) Update(state []float64, reward float64) (UpdateMetrics, error) {
	o.memory.Append(state, reward)
	stats := o.memory.Summary()
	o.memory.AdaptCapacity(stats.Volatility)

	target := o.targetLearningRate(stats)
	tuned := o.base.LearningRate*o.smoothing + target*(1.0-o.smoothing)
	o.base.LearningRate = tuned

	prediction, err := o.base.TrainStep(state, reward)
	if err != nil {
		return UpdateMetrics{}, err
	}

	o.steps++
	result := UpdateMetrics{
		LearningRate: tuned,
		Prediction:   prediction,
		MeanReward:   stats.MeanReward,
		Volatility:   stats.Volatility,
		MemorySize:   stats.Count,
	}
	o.logEvent("adaptive_update", map[string]interface{}{
		"learning_rate": result.LearningRate,
		"prediction":    result.Prediction,
		"mean_reward":   result.MeanReward,
		"volatility":    result.Volatility,
		"memory_size":   result.MemorySize,
	})
	if o.steps%saveEvery == 0 {
		if err := o.SaveState(); err != nil {
			o.logger.WithError(err).Warn("Failed to persist adaptive optimizer state")
		}
	}
	return result, nil
}

// ObserveTrade derives features [entry, exit-entry, pnl] and reward pnl from
// a closed trade, then updates.
func (o *RLAdaptiveOptimizer) ObserveTrade(trade models.Trade) error {
	features := []float64{trade.Entry, trade.Exit - trade.Entry, trade.PnL}
	_, err := o.Update(features, trade.PnL)
	return err
}

// Suggest delegates to the base policy deadband.
func (o *RLAdaptiveOptimizer) Suggest(features []float64) (int, error) {
	return o.base.Suggest(features)
}

// EndSession persists the full state at run end.
func (o *RLAdaptiveOptimizer) EndSession() error {
	return o.Finalize()
}

// Finalize persists the full state.
func (o *RLAdaptiveOptimizer) Finalize() error {
	return o.SaveState()
}

// SaveState rewrites the state file wholesale.
func (o *RLAdaptiveOptimizer) SaveState() error {
	if o.statePath == "" {
		return nil
	}
	snapshot := adaptiveSnapshot{
		LearningRate: o.base.LearningRate,
		Epsilon:      o.base.State.Epsilon,
		Gamma:        o.base.State.Gamma,
		Memory:       o.memory.Snapshot(),
	}
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize adaptive optimizer state: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(o.statePath), 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	if err := os.WriteFile(o.statePath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write adaptive optimizer state: %w", err)
	}
	return nil
}

// loadState restores persisted state. Missing or corrupt files are ignored;
// construction never fails on bad state.
func (o *RLAdaptiveOptimizer) loadState() {
	if o.statePath == "" {
		return
	}
	data, err := os.ReadFile(o.statePath)
	if err != nil {
		return
	}
	var snapshot adaptiveSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		o.logger.WithError(err).Debug("Ignoring corrupt adaptive optimizer state")
		return
	}
	if snapshot.LearningRate > 0 {
		o.base.LearningRate = snapshot.LearningRate
	}
	if snapshot.Epsilon > 0 {
		o.base.State.Epsilon = snapshot.Epsilon
	}
	if snapshot.Gamma > 0 {
		o.base.State.Gamma = snapshot.Gamma
	}
	o.memory.LoadSnapshot(snapshot.Memory)
}

func (o *RLAdaptiveOptimizer) targetLearningRate(stats MemorySummary) float64 {
	tilt := stats.MeanReward / (1.0 + stats.Volatility)
	target := o.initialLR * (1.0 + 0.5*tilt)
	if target < o.minLR {
		return o.minLR
	}
	if target > o.maxLR {
		return o.maxLR
	}
	return target
}

func (o *RLAdaptiveOptimizer) logEvent(event string, payload map[string]interface{}) {
	if o.writer == nil {
		return
	}
	if err := o.writer.Append("quantreplay.optimizer", event, payload); err != nil {
		o.logger.WithError(err).Warn("Failed to append optimizer audit entry")
	}
}
