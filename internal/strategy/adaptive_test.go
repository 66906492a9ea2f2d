package strategy

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/quant-replay/internal/models"
)

func newAdaptive(t *testing.T, cfg AdaptiveConfig) *AdaptiveStrategy {
	t.Helper()
	strat, err := NewAdaptiveStrategy(cfg, nil, nil)
	require.NoError(t, err)
	return strat
}

func TestAdaptiveConfigValidation(t *testing.T) {
	cfg := DefaultAdaptiveConfig()
	cfg.MinThreshold = 0
	_, err := NewAdaptiveStrategy(cfg, nil, nil)
	require.Error(t, err)
	assert.True(t, models.IsConfigurationError(err))

	cfg = DefaultAdaptiveConfig()
	cfg.MinThreshold = 0.02
	cfg.MaxThreshold = 0.01
	_, err = NewAdaptiveStrategy(cfg, nil, nil)
	require.Error(t, err)

	cfg = DefaultAdaptiveConfig()
	cfg.LearningRate = 1.5
	_, err = NewAdaptiveStrategy(cfg, nil, nil)
	require.Error(t, err)
}

func TestAdaptiveSignal(t *testing.T) {
	strat := newAdaptive(t, DefaultAdaptiveConfig())

	// momentum 0.01 over threshold 0.001
	signal, err := strat.Signal(models.Bar{Open: 100, Close: 101})
	require.NoError(t, err)
	assert.Equal(t, models.SignalLong, signal)

	signal, err = strat.Signal(models.Bar{Open: 100, Close: 99})
	require.NoError(t, err)
	assert.Equal(t, models.SignalShort, signal)

	// momentum well inside the deadband
	signal, err = strat.Signal(models.Bar{Open: 100, Close: 100.00001})
	require.NoError(t, err)
	assert.Equal(t, models.SignalFlat, signal)
}

func TestAdaptiveSignalRejectsBadBar(t *testing.T) {
	strat := newAdaptive(t, DefaultAdaptiveConfig())
	_, err := strat.Signal(models.Bar{Open: -1, Close: 100})
	require.Error(t, err)
	assert.True(t, models.IsDataError(err))
}

func TestWinRelaxesThreshold(t *testing.T) {
	strat := newAdaptive(t, DefaultAdaptiveConfig())
	before := strat.State().Threshold

	require.NoError(t, strat.OnTradeClose(models.Trade{Entry: 100, Exit: 104, PnL: 4}))
	after := strat.State().Threshold
	assert.Less(t, after, before)
	assert.GreaterOrEqual(t, after, strat.State().MinThreshold)
}

func TestLossTightensThreshold(t *testing.T) {
	strat := newAdaptive(t, DefaultAdaptiveConfig())
	before := strat.State().Threshold

	require.NoError(t, strat.OnTradeClose(models.Trade{Entry: 100, Exit: 97, PnL: -3}))
	after := strat.State().Threshold
	assert.Greater(t, after, before)
	assert.LessOrEqual(t, after, strat.State().MaxThreshold)
}

func TestZeroPnLLeavesThresholdUntouched(t *testing.T) {
	strat := newAdaptive(t, DefaultAdaptiveConfig())
	before := strat.State().Threshold

	require.NoError(t, strat.OnTradeClose(models.Trade{Entry: 100, Exit: 100, PnL: 0}))
	assert.InDelta(t, before, strat.State().Threshold, 1e-12)
	assert.Len(t, strat.State().History, 1)
}

func TestThresholdStaysWithinBounds(t *testing.T) {
	cfg := DefaultAdaptiveConfig()
	strat := newAdaptive(t, cfg)

	for i := 0; i < 50; i++ {
		require.NoError(t, strat.OnTradeClose(models.Trade{Entry: 100, Exit: 150, PnL: 50}))
	}
	assert.InDelta(t, cfg.MinThreshold, strat.State().Threshold, 1e-12)

	for i := 0; i < 50; i++ {
		require.NoError(t, strat.OnTradeClose(models.Trade{Entry: 100, Exit: 50, PnL: -50}))
	}
	assert.InDelta(t, cfg.MaxThreshold, strat.State().Threshold, 1e-12)
}

func TestHistoryBounded(t *testing.T) {
	strat := newAdaptive(t, DefaultAdaptiveConfig())
	for i := 0; i < 30; i++ {
		require.NoError(t, strat.OnTradeClose(models.Trade{Entry: 100, Exit: 101, PnL: 1}))
	}
	assert.Len(t, strat.State().History, historyLimit)
}

func TestStatePersistenceRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "adaptive.json")
	cfg := DefaultAdaptiveConfig()
	cfg.PersistencePath = path

	first := newAdaptive(t, cfg)
	require.NoError(t, first.OnTradeClose(models.Trade{Entry: 100, Exit: 105, PnL: 5}))
	require.NoError(t, first.OnSessionEnd())
	saved := first.State()

	second := newAdaptive(t, cfg)
	restored := second.State()
	assert.InDelta(t, saved.Threshold, restored.Threshold, 1e-12)
	assert.Equal(t, saved.History, restored.History)
}

func TestCorruptStateFileIgnored(t *testing.T) {
	path := filepath.Join(t.TempDir(), "adaptive.json")
	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0o644))

	cfg := DefaultAdaptiveConfig()
	cfg.PersistencePath = path
	strat := newAdaptive(t, cfg)
	assert.InDelta(t, cfg.InitialThreshold, strat.State().Threshold, 1e-12)
}

func TestThresholdCrossStrategy(t *testing.T) {
	_, err := NewThresholdCrossStrategy(10, 20)
	require.Error(t, err)
	assert.True(t, models.IsConfigurationError(err))

	strat, err := NewThresholdCrossStrategy(110, 90)
	require.NoError(t, err)

	signal, err := strat.Signal(models.Bar{Open: 100, Close: 115})
	require.NoError(t, err)
	assert.Equal(t, models.SignalShort, signal)

	signal, err = strat.Signal(models.Bar{Open: 100, Close: 85})
	require.NoError(t, err)
	assert.Equal(t, models.SignalLong, signal)

	signal, err = strat.Signal(models.Bar{Open: 100, Close: 100})
	require.NoError(t, err)
	assert.Equal(t, models.SignalFlat, signal)
}

type stubPredictor struct {
	score     float64
	inputSize int
	calls     int
}

func (p *stubPredictor) Predict(ctx context.Context, features []float64) (float64, error) {
	p.calls++
	return p.score, nil
}

func (p *stubPredictor) InputSize() int { return p.inputSize }

func TestPredictorThresholdStrategy(t *testing.T) {
	predictor := &stubPredictor{score: 0.8, inputSize: 2}
	strat, err := NewPredictorThresholdStrategy(predictor, 0.5, -0.5, nil)
	require.NoError(t, err)

	signal, err := strat.Signal(models.Bar{Open: 100, Close: 101, Features: []float64{1, 2}})
	require.NoError(t, err)
	assert.Equal(t, models.SignalLong, signal)

	predictor.score = -0.9
	signal, err = strat.Signal(models.Bar{Open: 100, Close: 101, Features: []float64{1, 2}})
	require.NoError(t, err)
	assert.Equal(t, models.SignalShort, signal)

	predictor.score = 0.1
	signal, err = strat.Signal(models.Bar{Open: 100, Close: 101, Features: []float64{1, 2}})
	require.NoError(t, err)
	assert.Equal(t, models.SignalFlat, signal)
}

func TestPredictorThresholdStrategyFeatureErrors(t *testing.T) {
	predictor := &stubPredictor{score: 0.8, inputSize: 2}
	strat, err := NewPredictorThresholdStrategy(predictor, 0.5, -0.5, nil)
	require.NoError(t, err)

	_, err = strat.Signal(models.Bar{Open: 100, Close: 101})
	require.Error(t, err)
	assert.True(t, models.IsDataError(err))

	_, err = strat.Signal(models.Bar{Open: 100, Close: 101, Features: []float64{1}})
	require.Error(t, err)
	assert.True(t, models.IsDataError(err))
	assert.Zero(t, predictor.calls)
}
