package predict

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/yourusername/quant-replay/internal/models"
)

// HTTPConfig holds configuration for the HTTP scoring client.
type HTTPConfig struct {
	BaseURL      string
	InputSize    int
	Timeout      time.Duration
	MaxRetries   int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	RateLimit    float64 // requests per second
}

// DefaultHTTPConfig returns recommended defaults for a scoring service at
// baseURL expecting inputSize features.
func DefaultHTTPConfig(baseURL string, inputSize int) HTTPConfig {
	return HTTPConfig{
		BaseURL:      baseURL,
		InputSize:    inputSize,
		Timeout:      30 * time.Second,
		MaxRetries:   3,
		RetryWaitMin: 100 * time.Millisecond,
		RetryWaitMax: 5 * time.Second,
		RateLimit:    10.0,
	}
}

// HTTPPredictor scores features against a remote model service with retries
// and client-side rate limiting.
type HTTPPredictor struct {
	client    *retryablehttp.Client
	limiter   *rate.Limiter
	baseURL   string
	inputSize int
	logger    *logrus.Logger
}

type predictRequest struct {
	Features []float64 `json:"features"`
}

type predictResponse struct {
	Score float64 `json:"score"`
}

// NewHTTPPredictor creates an HTTPPredictor.
func NewHTTPPredictor(cfg HTTPConfig, logger *logrus.Logger) (*HTTPPredictor, error) {
	if cfg.BaseURL == "" {
		return nil, models.NewConfigurationError("base_url", "is required")
	}
	if cfg.InputSize <= 0 {
		return nil, models.NewConfigurationError("input_size", "must be positive")
	}
	if logger == nil {
		logger = logrus.New()
	}

	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient.Timeout = cfg.Timeout
	retryClient.RetryMax = cfg.MaxRetries
	retryClient.RetryWaitMin = cfg.RetryWaitMin
	retryClient.RetryWaitMax = cfg.RetryWaitMax
	retryClient.Logger = nil

	return &HTTPPredictor{
		client:    retryClient,
		limiter:   rate.NewLimiter(rate.Limit(cfg.RateLimit), 1),
		baseURL:   cfg.BaseURL,
		inputSize: cfg.InputSize,
		logger:    logger,
	}, nil
}

// InputSize returns the expected feature-vector length.
func (p *HTTPPredictor) InputSize() int {
	return p.inputSize
}

// Predict posts the features to the scoring endpoint. Scores outside [-1, 1]
// are clamped.
func (p *HTTPPredictor) Predict(ctx context.Context, features []float64) (float64, error) {
	if len(features) != p.inputSize {
		return 0, models.NewDataError("predictor expected %d features, received %d",
			p.inputSize, len(features))
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return 0, fmt.Errorf("rate limiter error: %w", err)
	}

	body, err := json.Marshal(predictRequest{Features: features})
	if err != nil {
		return 0, fmt.Errorf("failed to marshal predict request: %w", err)
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost,
		p.baseURL+"/api/v1/predict", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("predict request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(resp.Body)
		return 0, fmt.Errorf("predict request failed with status %d: %s",
			resp.StatusCode, string(payload))
	}

	var parsed predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return 0, fmt.Errorf("failed to decode predict response: %w", err)
	}

	p.logger.WithFields(logrus.Fields{
		"score":    parsed.Score,
		"duration": time.Since(start),
	}).Debug("Prediction received")

	return clampScore(parsed.Score), nil
}

func clampScore(score float64) float64 {
	if score > 1 {
		return 1
	}
	if score < -1 {
		return -1
	}
	return score
}
