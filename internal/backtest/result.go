package backtest

import (
	"math"
	"sort"

	"github.com/yourusername/quant-replay/internal/models"
)

// Result owns the trade list, the per-bar equity curve and the metrics map of
// one run. Metrics pre-seeded by callers are never overwritten by Summarize.
type Result struct {
	Trades      []models.Trade     `json:"trades"`
	EquityCurve []float64          `json:"equity_curve"`
	Metrics     map[string]float64 `json:"metrics"`
}

// NewResult creates an empty result.
func NewResult() *Result {
	return &Result{Metrics: make(map[string]float64)}
}

// AddTrade appends one closed trade.
func (r *Result) AddTrade(trade models.Trade) {
	r.Trades = append(r.Trades, trade)
}

// Summarize computes the summary metrics from the trades and equity curve
// and merges them into the metrics map, preferring existing values.
// Idempotent and side-effect-free beyond the insert-if-absent merge.
func (r *Result) Summarize() map[string]float64 {
	if r.Metrics == nil {
		r.Metrics = make(map[string]float64)
	}
	mergePreferExisting(r.Metrics, r.computeMetrics())
	return r.Metrics
}

func (r *Result) computeMetrics() map[string]float64 {
	wins := 0
	pnlSum := 0.0
	for _, trade := range r.Trades {
		if trade.PnL > 0 {
			wins++
		}
		pnlSum += trade.PnL
	}
	total := len(r.Trades)
	denominator := total
	if denominator == 0 {
		denominator = 1
	}

	computed := map[string]float64{
		"total_trades": float64(total),
		"wins":         float64(wins),
		"losses":       float64(total - wins),
		"win_rate":     float64(wins) / float64(denominator),
		"max_drawdown": maxDrawdown(r.EquityCurve),
		"sharpe_ratio": sharpeRatio(r.EquityCurve),
	}
	if total > 0 {
		computed["avg_trade_pnl"] = pnlSum / float64(total)
	} else {
		computed["avg_trade_pnl"] = 0
	}
	if len(r.EquityCurve) > 0 {
		starting := r.EquityCurve[0]
		ending := r.EquityCurve[len(r.EquityCurve)-1]
		computed["ending_equity"] = ending
		if starting != 0 {
			computed["net_return"] = ending/starting - 1
		}
	}
	return computed
}

// MetricKeys returns the metric names in sorted order.
func (r *Result) MetricKeys() []string {
	keys := make([]string, 0, len(r.Metrics))
	for key := range r.Metrics {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// mergePreferExisting inserts computed values only where the existing map
// has no entry. Callers may pre-seed metrics that must survive Summarize.
func mergePreferExisting(existing, computed map[string]float64) {
	for key, value := range computed {
		if _, ok := existing[key]; !ok {
			existing[key] = value
		}
	}
}

// maxDrawdown is the largest running-peak relative decline of the equity
// curve, reported as a positive magnitude.
func maxDrawdown(curve []float64) float64 {
	maxDD := 0.0
	peak := 0.0
	for _, value := range curve {
		if value > peak {
			peak = value
		}
		if peak == 0 {
			continue
		}
		drawdown := (peak - value) / peak
		if drawdown > maxDD {
			maxDD = drawdown
		}
	}
	return maxDD
}

// sharpeRatio is mean/stdev of per-step equity deltas scaled by sqrt(n),
// zero when the deltas do not vary.
func sharpeRatio(curve []float64) float64 {
	if len(curve) < 2 {
		return 0
	}
	deltas := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		deltas = append(deltas, curve[i]-curve[i-1])
	}
	mean := 0.0
	for _, d := range deltas {
		mean += d
	}
	mean /= float64(len(deltas))

	variance := 0.0
	for _, d := range deltas {
		diff := d - mean
		variance += diff * diff
	}
	variance /= float64(len(deltas))
	std := math.Sqrt(variance)
	if std == 0 {
		return 0
	}
	return mean / std * math.Sqrt(float64(len(deltas)))
}
