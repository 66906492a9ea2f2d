package predict

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
	"time"

	cache "github.com/patrickmn/go-cache"
)

// CachedPredictor memoizes scores of an underlying predictor with a TTL.
// Identical feature vectors within the TTL hit the cache.
type CachedPredictor struct {
	inner Predictor
	cache *cache.Cache
}

// NewCachedPredictor wraps inner with a TTL cache.
func NewCachedPredictor(inner Predictor, ttl time.Duration) *CachedPredictor {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedPredictor{
		inner: inner,
		cache: cache.New(ttl, 2*ttl),
	}
}

// InputSize returns the wrapped predictor's expected feature length.
func (p *CachedPredictor) InputSize() int {
	return p.inner.InputSize()
}

// Predict returns a cached score when available, otherwise delegates and
// stores the result.
func (p *CachedPredictor) Predict(ctx context.Context, features []float64) (float64, error) {
	key := featureKey(features)
	if cached, found := p.cache.Get(key); found {
		if score, ok := cached.(float64); ok {
			return score, nil
		}
	}
	score, err := p.inner.Predict(ctx, features)
	if err != nil {
		return 0, err
	}
	p.cache.Set(key, score, cache.DefaultExpiration)
	return score, nil
}

func featureKey(features []float64) string {
	hasher := sha256.New()
	buf := make([]byte, 8)
	for _, f := range features {
		binary.BigEndian.PutUint64(buf, math.Float64bits(f))
		hasher.Write(buf)
	}
	return hex.EncodeToString(hasher.Sum(nil))
}
