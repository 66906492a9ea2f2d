package strategy

import (
	"context"

	"github.com/yourusername/quant-replay/internal/audit"
	"github.com/yourusername/quant-replay/internal/models"
	"github.com/yourusername/quant-replay/internal/predict"
)

// PredictorThresholdStrategy turns model scores into signals using upper and
// lower score bands. Bars must carry a feature vector of the predictor's
// advertised length.
type PredictorThresholdStrategy struct {
	BaseStrategy
	predictor predict.Predictor
	upper     float64
	lower     float64
	writer    *audit.Writer
}

// NewPredictorThresholdStrategy validates the band ordering.
func NewPredictorThresholdStrategy(predictor predict.Predictor, upper, lower float64, writer *audit.Writer) (*PredictorThresholdStrategy, error) {
	if predictor == nil {
		return nil, models.NewConfigurationError("predictor", "is required")
	}
	if lower >= upper {
		return nil, models.NewConfigurationError("lower", "must be < upper threshold")
	}
	return &PredictorThresholdStrategy{
		predictor: predictor,
		upper:     upper,
		lower:     lower,
		writer:    writer,
	}, nil
}

// Name identifies the strategy.
func (s *PredictorThresholdStrategy) Name() string {
	return "predictor_threshold"
}

// Signal scores the bar's features and maps the score through the bands.
func (s *PredictorThresholdStrategy) Signal(bar models.Bar) (int, error) {
	if bar.Features == nil {
		return 0, models.NewDataError("bar must include a features vector for predictor-driven strategy")
	}
	if len(bar.Features) != s.predictor.InputSize() {
		return 0, models.NewDataError("strategy expected %d features, received %d",
			s.predictor.InputSize(), len(bar.Features))
	}
	score, err := s.predictor.Predict(context.Background(), bar.Features)
	if err != nil {
		return 0, err
	}
	if s.writer != nil {
		_ = s.writer.Append("quantreplay.predictor", "prediction", map[string]interface{}{
			"features":   bar.Features,
			"prediction": score,
		})
	}
	switch {
	case score >= s.upper:
		return models.SignalLong, nil
	case score <= s.lower:
		return models.SignalShort, nil
	default:
		return models.SignalFlat, nil
	}
}
