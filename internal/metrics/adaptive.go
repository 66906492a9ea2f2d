package metrics

import (
	"math"
)

// EventRecorder is the audit sink consumed by the tracker. The concrete
// implementation lives in the audit package.
type EventRecorder interface {
	Append(module, event string, payload map[string]interface{}) error
}

// KPIs is one adaptive snapshot: predictor stability, equity volatility and
// their combined score.
type KPIs struct {
	Stability     float64 `json:"stability"`
	Volatility    float64 `json:"volatility"`
	AdaptiveScore float64 `json:"adaptive_score"`
}

// ToMap renders the snapshot as an audit payload.
func (k KPIs) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"stability":      k.Stability,
		"volatility":     k.Volatility,
		"adaptive_score": k.AdaptiveScore,
	}
}

// AdaptiveTracker keeps a bounded rolling window of stability scores and an
// unbounded equity sample sequence. Single-threaded, owned by one session.
type AdaptiveTracker struct {
	window    int
	stability []float64
	equity    []float64
}

// NewAdaptiveTracker creates a tracker with the given stability window size.
func NewAdaptiveTracker(window int) *AdaptiveTracker {
	if window <= 0 {
		window = 20
	}
	return &AdaptiveTracker{window: window}
}

// UpdateStability records one externally supplied stability score, evicting
// the oldest once the window is full.
func (t *AdaptiveTracker) UpdateStability(value float64) {
	t.stability = append(t.stability, value)
	if len(t.stability) > t.window {
		t.stability = t.stability[len(t.stability)-t.window:]
	}
}

// RecordEquity appends one equity sample.
func (t *AdaptiveTracker) RecordEquity(value float64) {
	t.equity = append(t.equity, value)
}

// Compute derives the current KPI snapshot. Pure and repeatable.
func (t *AdaptiveTracker) Compute() KPIs {
	stability := mean(t.stability)
	volatility := t.equityVolatility()
	return KPIs{
		Stability:     stability,
		Volatility:    volatility,
		AdaptiveScore: stability / (1.0 + volatility),
	}
}

// LogUpdate computes the KPI snapshot and emits it as one signed audit entry.
func (t *AdaptiveTracker) LogUpdate(recorder EventRecorder) (KPIs, error) {
	kpis := t.Compute()
	AdaptiveScore.Set(kpis.AdaptiveScore)
	if recorder == nil {
		return kpis, nil
	}
	err := recorder.Append("quantreplay.metrics", "adaptive_update", map[string]interface{}{
		"metrics": kpis.ToMap(),
	})
	return kpis, err
}

// equityVolatility is the population stdev of first differences, zero with
// fewer than two samples.
func (t *AdaptiveTracker) equityVolatility() float64 {
	if len(t.equity) < 2 {
		return 0
	}
	diffs := make([]float64, 0, len(t.equity)-1)
	for i := 1; i < len(t.equity); i++ {
		diffs = append(diffs, t.equity[i]-t.equity[i-1])
	}
	return stddev(diffs)
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stddev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m := mean(values)
	variance := 0.0
	for _, v := range values {
		diff := v - m
		variance += diff * diff
	}
	variance /= float64(len(values))
	return math.Sqrt(variance)
}
