package backtest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"
)

// GenerateConsoleReport formats run metrics for terminal output. Monetary
// figures go through decimal so the report never shows float artifacts.
func GenerateConsoleReport(sessionID string, result *Result) string {
	var builder strings.Builder
	builder.WriteString("Backtest Report\n")
	builder.WriteString("================\n")
	builder.WriteString(fmt.Sprintf("Session: %s\n", sessionID))
	builder.WriteString(fmt.Sprintf("Total Trades: %d\n", len(result.Trades)))
	builder.WriteString(fmt.Sprintf("Starting Equity: %s\n", money(result.Metrics["starting_equity"])))
	builder.WriteString(fmt.Sprintf("Ending Equity: %s\n", money(result.Metrics["ending_equity"])))
	builder.WriteString(fmt.Sprintf("Net Return: %.2f%%\n", result.Metrics["net_return"]*100))
	builder.WriteString(fmt.Sprintf("Win Rate: %.2f%%\n", result.Metrics["win_rate"]*100))
	builder.WriteString(fmt.Sprintf("Sharpe Ratio: %.2f\n", result.Metrics["sharpe_ratio"]))
	builder.WriteString(fmt.Sprintf("Max Drawdown: %s\n", money(result.Metrics["max_drawdown"])))
	builder.WriteString(fmt.Sprintf("Avg Trade PnL: %s\n", money(result.Metrics["avg_trade_pnl"])))
	return builder.String()
}

// GenerateCSVExport writes the metric map for spreadsheets, one sorted row
// per metric.
func GenerateCSVExport(result *Result, outputPath string) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	var builder strings.Builder
	builder.WriteString("metric,value\n")
	for _, key := range result.MetricKeys() {
		builder.WriteString(fmt.Sprintf("%s,%.6f\n", key, result.Metrics[key]))
	}
	return os.WriteFile(outputPath, []byte(builder.String()), 0o644)
}

func money(value float64) string {
	return decimal.NewFromFloat(value).Round(2).StringFixed(2)
}
