// Package main provides the distributed replay validation CLI. It replays
// the same price series through identical engines on concurrent nodes and
// checks that every node produced byte-identical metrics.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/yourusername/quant-replay/internal/audit"
	"github.com/yourusername/quant-replay/internal/backtest"
	"github.com/yourusername/quant-replay/internal/config"
	"github.com/yourusername/quant-replay/internal/logger"
	"github.com/yourusername/quant-replay/internal/models"
	"github.com/yourusername/quant-replay/internal/strategy"
	"github.com/yourusername/quant-replay/internal/validator"
)

const hmacKeyEnv = "QUANT_REPLAY_HMAC_KEY"

var (
	configFile string
	inputPath  string
	nodeCount  int
	maxWorkers int
	appLogger  *logrus.Logger
	cfg        *config.Config
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "config/config.yaml", "Path to configuration file")
	rootCmd.Flags().StringVarP(&inputPath, "input", "i", "", "Path to JSON price bars file")
	rootCmd.Flags().IntVarP(&nodeCount, "nodes", "n", 3, "Number of redundant validation nodes")
	rootCmd.Flags().IntVarP(&maxWorkers, "workers", "w", 0, "Worker cap, 0 means one per node")
	_ = rootCmd.MarkFlagRequired("input")
}

var rootCmd = &cobra.Command{
	Use:   "validate",
	Short: "Run redundant replay validation across concurrent nodes",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.LoadWithDefaults(configFile)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		appLogger = logger.NewLogger(cfg.App.LogLevel)
		if key := resolveKey(); key != "" {
			audit.SetFallbackKey(key)
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runValidation()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func resolveKey() string {
	if cfg.Audit.SigningKey != "" {
		return cfg.Audit.SigningKey
	}
	return os.Getenv(hmacKeyEnv)
}

func runValidation() error {
	data, err := os.ReadFile(inputPath)
	if err != nil {
		return fmt.Errorf("failed to read bars file: %w", err)
	}
	var bars []models.Bar
	if err := json.Unmarshal(data, &bars); err != nil {
		return fmt.Errorf("failed to parse bars file: %w", err)
	}

	session := uuid.New().String()
	writer, err := audit.NewWriter(cfg.Audit.LogPath, audit.WithSessionID(session), audit.WithLogger(appLogger))
	if err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}

	workers := maxWorkers
	if workers == 0 {
		workers = cfg.Validator.MaxWorkers
	}
	v := validator.New(
		validator.WithAuditWriter(writer),
		validator.WithMaxWorkers(workers),
		validator.WithLogger(appLogger),
	)

	tasks := make([]validator.Task, nodeCount)
	for i := range tasks {
		tasks[i] = validator.Task{
			NodeID: fmt.Sprintf("replay-node-%d", i),
			Run: func(ctx context.Context) (interface{}, error) {
				return replayOnce(ctx, bars)
			},
		}
	}

	results := v.RunValidationBatch(context.Background(), tasks)
	summary := v.ConsolidateResults()

	fmt.Printf("Distributed Validation Report\n")
	fmt.Printf("=============================\n")
	fmt.Printf("Session: %s\n", session)
	fmt.Printf("Nodes: %d\n", len(results))
	fmt.Printf("Consistent: %t\n", summary.Consistent)
	if len(summary.FailedNodes) > 0 {
		fmt.Printf("Failed Nodes: %v\n", summary.FailedNodes)
	}
	if len(summary.MismatchedNodes) > 0 {
		fmt.Printf("Mismatched Nodes: %v\n", summary.MismatchedNodes)
	}

	if !summary.Consistent {
		return fmt.Errorf("validation batch inconsistent")
	}
	fmt.Println("OK")
	return nil
}

// replayOnce runs a deterministic replay with no persistence or adaptation
// so that every node's output is comparable byte for byte.
func replayOnce(ctx context.Context, bars []models.Bar) (interface{}, error) {
	strat, err := strategy.NewThresholdCrossStrategy(cfg.Strategy.MaxThreshold, cfg.Strategy.MinThreshold)
	if err != nil {
		return nil, err
	}
	engine, err := backtest.NewEngine(backtest.Config{
		InitialCapital: cfg.Backtest.InitialCapital,
		RiskPerTrade:   cfg.Backtest.RiskPerTrade,
		Slippage:       cfg.Backtest.Slippage,
	}, strat, backtest.WithLogger(appLogger))
	if err != nil {
		return nil, err
	}
	result, err := engine.Run(ctx, bars)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"metrics":      result.Metrics,
		"total_trades": len(result.Trades),
	}, nil
}
