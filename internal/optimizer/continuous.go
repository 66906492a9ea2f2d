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

const defaultBatchSize = 32

// ContinuousConfig holds RLContinuousAgent constructor parameters.
type ContinuousConfig struct {
	InputSize  int
	MaxBuffer  int
	StatePath  string
	ReplayPath string
}

// DefaultContinuousConfig returns the standard parameters for inputSize
// features.
func DefaultContinuousConfig(inputSize int) ContinuousConfig {
	return ContinuousConfig{
		InputSize:  inputSize,
		MaxBuffer:  1024,
		StatePath:  filepath.Join("var", "rl", "continuous_state.json"),
		ReplayPath: filepath.Join("var", "rl", "replay_buffer.json"),
	}
}

// TrainResult reports one training pass.
type TrainResult struct {
	Updates int     `json:"updates"`
	Epsilon float64 `json:"epsilon"`
}

// RLContinuousAgent keeps a simple most-recent-N replay buffer that persists
// between runs, feeding the same linear policy. Unlike the adaptive wrapper
// the buffer capacity is fixed.
type RLContinuousAgent struct {
	optimizer  *Optimizer
	writer     *audit.Writer
	logger     *logrus.Logger
	statePath  string
	replayPath string
	maxBuffer  int
	buffer     []Experience
}

type continuousSnapshot struct {
	Epsilon float64   `json:"epsilon"`
	Weights []float64 `json:"weights"`
}

// NewRLContinuousAgent constructs the agent and restores persisted policy
// state and replay buffer. Corrupt files are ignored.
func NewRLContinuousAgent(cfg ContinuousConfig, writer *audit.Writer, log *logrus.Logger) (*RLContinuousAgent, error) {
	if cfg.InputSize <= 0 {
		return nil, models.NewConfigurationError("input_size", "must be positive")
	}
	if cfg.MaxBuffer <= 0 {
		cfg.MaxBuffer = 1024
	}
	if log == nil {
		log = logrus.New()
	}
	base, err := New(DefaultConfig(cfg.InputSize), writer)
	if err != nil {
		return nil, err
	}

	agent := &RLContinuousAgent{
		optimizer:  base,
		writer:     writer,
		logger:     log,
		statePath:  cfg.StatePath,
		replayPath: cfg.ReplayPath,
		maxBuffer:  cfg.MaxBuffer,
	}
	agent.loadState()

	if writer != nil {
		_ = writer.Append("quantreplay.rl", "continuous_init", map[string]interface{}{
			"buffer_size": len(agent.buffer),
			"epsilon":     agent.optimizer.State.Epsilon,
		})
	}
	return agent, nil
}

// BufferLen returns the replay buffer size.
func (a *RLContinuousAgent) BufferLen() int {
	return len(a.buffer)
}

// Epsilon returns the current exploration deadband.
func (a *RLContinuousAgent) Epsilon() float64 {
	return a.optimizer.State.Epsilon
}

// AppendExperience stores one sample, evicting the oldest beyond MaxBuffer.
func (a *RLContinuousAgent) AppendExperience(state []float64, reward float64) {
	copied := make([]float64, len(state))
	copy(copied, state)
	a.buffer = append(a.buffer, Experience{State: copied, Reward: reward})
	if over := len(a.buffer) - a.maxBuffer; over > 0 {
		a.buffer = a.buffer[over:]
	}
}

// ObserveTrade appends the trade-derived sample [entry, exit-entry, pnl].
func (a *RLContinuousAgent) ObserveTrade(trade models.Trade) error {
	a.AppendExperience([]float64{trade.Entry, trade.Exit - trade.Entry, trade.PnL}, trade.PnL)
	return nil
}

// Train replays exactly the most recent batchSize experiences in their
// original chronological order. Never resampled, never shuffled.
func (a *RLContinuousAgent) Train(batchSize int) (TrainResult, error) {
	if len(a.buffer) == 0 {
		return TrainResult{}, nil
	}
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	start := len(a.buffer) - batchSize
	if start < 0 {
		start = 0
	}
	updates := 0
	for _, exp := range a.buffer[start:] {
		if _, err := a.optimizer.TrainStep(exp.State, exp.Reward); err != nil {
			return TrainResult{Updates: updates, Epsilon: a.optimizer.State.Epsilon}, err
		}
		updates++
	}
	return TrainResult{Updates: updates, Epsilon: a.optimizer.State.Epsilon}, nil
}

// EndSession closes the episode at backtest run end.
func (a *RLContinuousAgent) EndSession() error {
	_, err := a.EndEpisode()
	return err
}

// EndEpisode trains on the most recent batch, persists policy state and the
// replay buffer, and emits one audit entry carrying the update count. The
// entry is skipped entirely when no updates occurred.
func (a *RLContinuousAgent) EndEpisode() (TrainResult, error) {
	result, err := a.Train(defaultBatchSize)
	if err != nil {
		return result, err
	}
	if err := a.SaveState(); err != nil {
		return result, err
	}
	if a.writer != nil && result.Updates > 0 {
		if err := a.writer.Append("quantreplay.rl", "continuous_update", map[string]interface{}{
			"metrics": map[string]interface{}{
				"updates": result.Updates,
				"epsilon": result.Epsilon,
			},
			"buffer_size": len(a.buffer),
		}); err != nil {
			a.logger.WithError(err).Warn("Failed to append episode audit entry")
		}
	}
	return result, nil
}

// SaveState rewrites the policy state file and the replay buffer file, each
// wholesale.
func (a *RLContinuousAgent) SaveState() error {
	state, err := json.MarshalIndent(continuousSnapshot{
		Epsilon: a.optimizer.State.Epsilon,
		Weights: a.optimizer.State.Weights,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize policy state: %w", err)
	}
	replay, err := json.MarshalIndent(a.buffer, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize replay buffer: %w", err)
	}
	for path, data := range map[string][]byte{
		a.statePath:  state,
		a.replayPath: replay,
	} {
		if path == "" {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("failed to create state directory: %w", err)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
	}
	return nil
}

func (a *RLContinuousAgent) loadState() {
	if a.statePath != "" {
		if data, err := os.ReadFile(a.statePath); err == nil {
			var snapshot continuousSnapshot
			if err := json.Unmarshal(data, &snapshot); err == nil {
				if snapshot.Epsilon > 0 {
					a.optimizer.State.Epsilon = snapshot.Epsilon
				}
				if len(snapshot.Weights) == len(a.optimizer.State.Weights) {
					a.optimizer.State.Weights = snapshot.Weights
				}
			} else {
				a.logger.WithError(err).Debug("Ignoring corrupt policy state")
			}
		}
	}
	if a.replayPath != "" {
		if data, err := os.ReadFile(a.replayPath); err == nil {
			var buffer []Experience
			if err := json.Unmarshal(data, &buffer); err == nil {
				a.buffer = buffer
			} else {
				a.logger.WithError(err).Debug("Ignoring corrupt replay buffer")
			}
		}
	}
	if over := len(a.buffer) - a.maxBuffer; over > 0 {
		a.buffer = a.buffer[over:]
	}
}
