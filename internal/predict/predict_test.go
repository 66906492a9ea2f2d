package predict

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/quant-replay/internal/models"
)

type countingPredictor struct {
	score float64
	err   error
	calls int
}

func (p *countingPredictor) Predict(ctx context.Context, features []float64) (float64, error) {
	p.calls++
	return p.score, p.err
}

func (p *countingPredictor) InputSize() int { return 2 }

func TestCachedPredictorMemoizes(t *testing.T) {
	inner := &countingPredictor{score: 0.4}
	cached := NewCachedPredictor(inner, time.Minute)

	first, err := cached.Predict(context.Background(), []float64{1, 2})
	require.NoError(t, err)
	second, err := cached.Predict(context.Background(), []float64{1, 2})
	require.NoError(t, err)

	assert.InDelta(t, 0.4, first, 1e-9)
	assert.InDelta(t, 0.4, second, 1e-9)
	assert.Equal(t, 1, inner.calls)
}

func TestCachedPredictorDistinguishesFeatures(t *testing.T) {
	inner := &countingPredictor{score: 0.4}
	cached := NewCachedPredictor(inner, time.Minute)

	_, err := cached.Predict(context.Background(), []float64{1, 2})
	require.NoError(t, err)
	_, err = cached.Predict(context.Background(), []float64{2, 1})
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestCachedPredictorErrorsNotCached(t *testing.T) {
	inner := &countingPredictor{err: errors.New("down")}
	cached := NewCachedPredictor(inner, time.Minute)

	_, err := cached.Predict(context.Background(), []float64{1, 2})
	require.Error(t, err)
	_, err = cached.Predict(context.Background(), []float64{1, 2})
	require.Error(t, err)
	assert.Equal(t, 2, inner.calls)
}

func newPredictServer(t *testing.T, score float64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/v1/predict", r.URL.Path)

		var req predictRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.NotEmpty(t, req.Features)

		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(predictResponse{Score: score}))
	}))
}

func TestHTTPPredictorScores(t *testing.T) {
	server := newPredictServer(t, 0.75)
	defer server.Close()

	predictor, err := NewHTTPPredictor(DefaultHTTPConfig(server.URL, 2), nil)
	require.NoError(t, err)

	score, err := predictor.Predict(context.Background(), []float64{1, 2})
	require.NoError(t, err)
	assert.InDelta(t, 0.75, score, 1e-9)
}

func TestHTTPPredictorClampsScore(t *testing.T) {
	server := newPredictServer(t, 3.5)
	defer server.Close()

	predictor, err := NewHTTPPredictor(DefaultHTTPConfig(server.URL, 1), nil)
	require.NoError(t, err)

	score, err := predictor.Predict(context.Background(), []float64{1})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, score, 1e-9)
}

func TestHTTPPredictorRejectsFeatureMismatch(t *testing.T) {
	predictor, err := NewHTTPPredictor(DefaultHTTPConfig("http://localhost:1", 3), nil)
	require.NoError(t, err)

	_, err = predictor.Predict(context.Background(), []float64{1})
	require.Error(t, err)
	assert.True(t, models.IsDataError(err))
}

func TestHTTPPredictorServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model unavailable", http.StatusInternalServerError)
	}))
	defer server.Close()

	cfg := DefaultHTTPConfig(server.URL, 1)
	cfg.MaxRetries = 0
	cfg.RetryWaitMin = time.Millisecond
	cfg.RetryWaitMax = time.Millisecond
	predictor, err := NewHTTPPredictor(cfg, nil)
	require.NoError(t, err)

	_, err = predictor.Predict(context.Background(), []float64{1})
	require.Error(t, err)
}

func TestHTTPPredictorConfigValidation(t *testing.T) {
	_, err := NewHTTPPredictor(DefaultHTTPConfig("", 2), nil)
	require.Error(t, err)
	assert.True(t, models.IsConfigurationError(err))

	_, err = NewHTTPPredictor(DefaultHTTPConfig("http://localhost", 0), nil)
	require.Error(t, err)
}
