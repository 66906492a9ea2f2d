// Package optimizer implements the linear reinforcement policy and the two
// adaptive wrappers that self-tune it from realized trade outcomes.
package optimizer

import (
	"github.com/yourusername/quant-replay/internal/audit"
	"github.com/yourusername/quant-replay/internal/models"
)

const (
	epsilonDecay = 0.99
	epsilonFloor = 0.01
)

// State holds the persistable policy parameters. Epsilon doubles as the
// exploration decay target and the decision deadband. Gamma is persisted and
// restored but consumed by no update rule; it is reserved.
type State struct {
	Weights []float64 `json:"weights"`
	Epsilon float64   `json:"epsilon"`
	Gamma   float64   `json:"gamma"`
}

// Optimizer is a linear policy trained by advantage updates.
type Optimizer struct {
	LearningRate float64
	State        State
}

// Config holds Optimizer constructor parameters.
type Config struct {
	InputSize    int
	LearningRate float64
	Gamma        float64
	Epsilon      float64
}

// DefaultConfig returns the standard parameters for inputSize features.
func DefaultConfig(inputSize int) Config {
	return Config{
		InputSize:    inputSize,
		LearningRate: 0.1,
		Gamma:        0.95,
		Epsilon:      0.1,
	}
}

// New creates an Optimizer. An audit writer, when given, receives one init
// event.
func New(cfg Config, writer *audit.Writer) (*Optimizer, error) {
	if cfg.InputSize <= 0 {
		return nil, models.NewConfigurationError("input_size", "must be positive")
	}
	opt := &Optimizer{
		LearningRate: cfg.LearningRate,
		State: State{
			Weights: make([]float64, cfg.InputSize),
			Epsilon: cfg.Epsilon,
			Gamma:   cfg.Gamma,
		},
	}
	if writer != nil {
		_ = writer.Append("quantreplay.optimizer", "init", map[string]interface{}{
			"learning_rate": cfg.LearningRate,
			"gamma":         cfg.Gamma,
			"epsilon":       cfg.Epsilon,
		})
	}
	return opt, nil
}

// Policy returns the dot product of the weights and features.
func (o *Optimizer) Policy(features []float64) (float64, error) {
	if len(features) != len(o.State.Weights) {
		return 0, models.NewDataError("feature length %d does not match weight vector %d",
			len(features), len(o.State.Weights))
	}
	score := 0.0
	for i, w := range o.State.Weights {
		score += w * features[i]
	}
	return score, nil
}

// TrainStep applies one advantage update and decays epsilon. It returns the
// post-update prediction estimate.
func (o *Optimizer) TrainStep(features []float64, reward float64) (float64, error) {
	prediction, err := o.Policy(features)
	if err != nil {
		return 0, err
	}
	advantage := reward - prediction
	delta := o.LearningRate * advantage
	for i := range o.State.Weights {
		o.State.Weights[i] += delta * features[i]
	}
	o.decayEpsilon()
	return prediction + delta, nil
}

func (o *Optimizer) decayEpsilon() {
	o.State.Epsilon *= epsilonDecay
	if o.State.Epsilon < epsilonFloor {
		o.State.Epsilon = epsilonFloor
	}
}

// Suggest maps the policy score through the epsilon deadband: 1 when the
// score reaches epsilon, -1 at or below -epsilon, otherwise 0.
func (o *Optimizer) Suggest(features []float64) (int, error) {
	score, err := o.Policy(features)
	if err != nil {
		return 0, err
	}
	switch {
	case score >= o.State.Epsilon:
		return models.SignalLong, nil
	case score <= -o.State.Epsilon:
		return models.SignalShort, nil
	default:
		return models.SignalFlat, nil
	}
}
