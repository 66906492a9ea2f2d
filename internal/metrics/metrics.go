// Package metrics provides the centralized Prometheus registry plus the
// rolling adaptive KPI tracker used by replay sessions.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Global registry instance
var (
	registry *prometheus.Registry
	once     sync.Once
)

// Counter metrics
var (
	BacktestRunsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "quant_replay",
		Name:      "backtest_runs_total",
		Help:      "Total number of backtest runs executed",
	})
	TradesClosedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "quant_replay",
		Name:      "trades_closed_total",
		Help:      "Total number of trades closed across all runs",
	})
	HookWarningsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "quant_replay",
		Name:      "hook_warnings_total",
		Help:      "Total number of best-effort hook invocations that failed",
	})
	AuditEntriesWrittenTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "quant_replay",
		Name:      "audit_entries_written_total",
		Help:      "Total number of audit entries appended",
	})
	ValidationBatchesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "quant_replay",
		Name:      "validation_batches_total",
		Help:      "Total number of distributed validation batches run",
	})
	ValidationNodeFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "quant_replay",
		Name:      "validation_node_failures_total",
		Help:      "Total number of validation nodes that returned errors",
	})
)

// Gauge metrics
var (
	CurrentEquity = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "quant_replay",
		Name:      "current_equity",
		Help:      "Equity of the most recent backtest step",
	})
	AdaptiveThreshold = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "quant_replay",
		Name:      "adaptive_threshold",
		Help:      "Current adaptive strategy momentum threshold",
	})
	AdaptiveScore = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "quant_replay",
		Name:      "adaptive_score",
		Help:      "Stability over volatility score of the active session",
	})
	AuditVerifiedLines = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "quant_replay",
		Name:      "audit_verified_lines",
		Help:      "Lines verified by the most recent integrity sweep",
	})
	AuditFailedLines = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "quant_replay",
		Name:      "audit_failed_lines",
		Help:      "Lines that failed the most recent integrity sweep",
	})
)

// Registry returns the global metrics registry, initializing it on first use.
func Registry() *prometheus.Registry {
	once.Do(func() {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			BacktestRunsTotal,
			TradesClosedTotal,
			HookWarningsTotal,
			AuditEntriesWrittenTotal,
			ValidationBatchesTotal,
			ValidationNodeFailuresTotal,
			CurrentEquity,
			AdaptiveThreshold,
			AdaptiveScore,
			AuditVerifiedLines,
			AuditFailedLines,
		)
	})
	return registry
}

// Handler returns an HTTP handler exposing the registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry(), promhttp.HandlerOpts{})
}
