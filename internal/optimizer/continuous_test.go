package optimizer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/quant-replay/internal/models"
)

func newContinuousAgent(t *testing.T, dir string) *RLContinuousAgent {
	t.Helper()
	cfg := DefaultContinuousConfig(3)
	if dir == "" {
		cfg.StatePath = ""
		cfg.ReplayPath = ""
	} else {
		cfg.StatePath = filepath.Join(dir, "state.json")
		cfg.ReplayPath = filepath.Join(dir, "replay.json")
	}
	agent, err := NewRLContinuousAgent(cfg, nil, nil)
	require.NoError(t, err)
	return agent
}

func TestContinuousAgentRejectsBadInputSize(t *testing.T) {
	_, err := NewRLContinuousAgent(DefaultContinuousConfig(0), nil, nil)
	require.Error(t, err)
	assert.True(t, models.IsConfigurationError(err))
}

func TestBufferEvictsOldest(t *testing.T) {
	cfg := DefaultContinuousConfig(1)
	cfg.MaxBuffer = 5
	cfg.StatePath = ""
	cfg.ReplayPath = ""
	agent, err := NewRLContinuousAgent(cfg, nil, nil)
	require.NoError(t, err)

	for i := 0; i < 8; i++ {
		agent.AppendExperience([]float64{float64(i)}, 0)
	}
	assert.Equal(t, 5, agent.BufferLen())
	assert.InDelta(t, 3.0, agent.buffer[0].State[0], 1e-12)
	assert.InDelta(t, 7.0, agent.buffer[4].State[0], 1e-12)
}

func TestTrainUsesMostRecentBatch(t *testing.T) {
	agent := newContinuousAgent(t, "")
	for i := 0; i < 10; i++ {
		agent.AppendExperience([]float64{1, 0, 0}, float64(i))
	}

	result, err := agent.Train(4)
	require.NoError(t, err)
	assert.Equal(t, 4, result.Updates)
	// epsilon decayed once per update
	assert.InDelta(t, 0.1*0.99*0.99*0.99*0.99, result.Epsilon, 1e-9)
}

func TestTrainEmptyBufferNoOp(t *testing.T) {
	agent := newContinuousAgent(t, "")
	result, err := agent.Train(10)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Updates)
}

func TestTrainDefaultsBatchSize(t *testing.T) {
	agent := newContinuousAgent(t, "")
	for i := 0; i < defaultBatchSize+10; i++ {
		agent.AppendExperience([]float64{0, 0, 0}, 0)
	}
	result, err := agent.Train(0)
	require.NoError(t, err)
	assert.Equal(t, defaultBatchSize, result.Updates)
}

func TestObserveTradeAppends(t *testing.T) {
	agent := newContinuousAgent(t, "")
	require.NoError(t, agent.ObserveTrade(models.Trade{Entry: 50, Exit: 55, PnL: 5}))
	require.Equal(t, 1, agent.BufferLen())
	assert.Equal(t, []float64{50, 5, 5}, agent.buffer[0].State)
}

func TestEndEpisodePersistsBothFiles(t *testing.T) {
	dir := t.TempDir()
	agent := newContinuousAgent(t, dir)
	agent.AppendExperience([]float64{1, 2, 3}, 1.0)

	result, err := agent.EndEpisode()
	require.NoError(t, err)
	assert.Equal(t, 1, result.Updates)

	for _, name := range []string{"state.json", "replay.json"} {
		_, statErr := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, statErr)
	}
}

func TestReplayBufferSurvivesRestart(t *testing.T) {
	dir := t.TempDir()

	first := newContinuousAgent(t, dir)
	for i := 0; i < 3; i++ {
		first.AppendExperience([]float64{float64(i), 0, 0}, float64(i))
	}
	_, err := first.EndEpisode()
	require.NoError(t, err)
	epsilon := first.Epsilon()

	second := newContinuousAgent(t, dir)
	assert.Equal(t, 3, second.BufferLen())
	assert.InDelta(t, epsilon, second.Epsilon(), 1e-12)
	assert.Equal(t, first.optimizer.State.Weights, second.optimizer.State.Weights)
}

func TestContinuousCorruptFilesIgnored(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "state.json"), []byte("{oops"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "replay.json"), []byte("[broken"), 0o644))

	agent := newContinuousAgent(t, dir)
	assert.Equal(t, 0, agent.BufferLen())
	assert.InDelta(t, 0.1, agent.Epsilon(), 1e-12)
}

func TestLoadStateTrimsOversizedBuffer(t *testing.T) {
	dir := t.TempDir()
	first := newContinuousAgent(t, dir)
	for i := 0; i < 20; i++ {
		first.AppendExperience([]float64{float64(i), 0, 0}, 0)
	}
	require.NoError(t, first.SaveState())

	cfg := DefaultContinuousConfig(3)
	cfg.MaxBuffer = 5
	cfg.StatePath = filepath.Join(dir, "state.json")
	cfg.ReplayPath = filepath.Join(dir, "replay.json")
	second, err := NewRLContinuousAgent(cfg, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 5, second.BufferLen())
	assert.InDelta(t, 15.0, second.buffer[0].State[0], 1e-12)
}
