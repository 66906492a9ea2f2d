// Package predict defines the scoring-model contract consumed by
// predictor-driven strategies, together with an HTTP transport and a cached
// wrapper. The numeric architecture behind the score is opaque to this core.
package predict

import "context"

// Predictor scores a feature vector into [-1, 1].
type Predictor interface {
	// Predict returns the model score for the features. Implementations
	// must reject feature vectors whose length differs from InputSize.
	Predict(ctx context.Context, features []float64) (float64, error)
	// InputSize advertises the expected feature-vector length.
	InputSize() int
}
