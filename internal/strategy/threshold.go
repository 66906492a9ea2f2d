package strategy

import (
	"github.com/yourusername/quant-replay/internal/models"
)

// ThresholdCrossStrategy enters short when the close reaches the upper band
// and long at or below the lower band. Mean-reversion on absolute price
// levels.
type ThresholdCrossStrategy struct {
	BaseStrategy
	Upper float64
	Lower float64
}

// NewThresholdCrossStrategy validates the band ordering.
func NewThresholdCrossStrategy(upper, lower float64) (*ThresholdCrossStrategy, error) {
	if lower >= upper {
		return nil, models.NewConfigurationError("lower", "must be < upper threshold")
	}
	return &ThresholdCrossStrategy{Upper: upper, Lower: lower}, nil
}

// Name identifies the strategy.
func (s *ThresholdCrossStrategy) Name() string {
	return "threshold_cross"
}

// Signal compares the close price against the bands.
func (s *ThresholdCrossStrategy) Signal(bar models.Bar) (int, error) {
	if err := bar.Validate(); err != nil {
		return 0, err
	}
	switch {
	case bar.Close >= s.Upper:
		return models.SignalShort, nil
	case bar.Close <= s.Lower:
		return models.SignalLong, nil
	default:
		return models.SignalFlat, nil
	}
}
