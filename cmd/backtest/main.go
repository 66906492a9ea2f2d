// Package main provides the entry point for the replay backtesting CLI tool.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/quant-replay/internal/audit"
	"github.com/yourusername/quant-replay/internal/backtest"
	"github.com/yourusername/quant-replay/internal/config"
	"github.com/yourusername/quant-replay/internal/database"
	"github.com/yourusername/quant-replay/internal/datastore"
	"github.com/yourusername/quant-replay/internal/logger"
	"github.com/yourusername/quant-replay/internal/metrics"
	"github.com/yourusername/quant-replay/internal/models"
	"github.com/yourusername/quant-replay/internal/optimizer"
	"github.com/yourusername/quant-replay/internal/predict"
	"github.com/yourusername/quant-replay/internal/strategy"
)

const hmacKeyEnv = "QUANT_REPLAY_HMAC_KEY"

func main() {
	var (
		configPath   = flag.String("config", "config/config.yaml", "Path to config file")
		inputPath    = flag.String("input", "", "Path to JSON price bars file")
		strategyName = flag.String("strategy", "adaptive", "Strategy name: adaptive, threshold, predictor")
		sessionID    = flag.String("session", "", "Session identifier (generated when empty)")
		rlMode       = flag.String("rl", "none", "RL observer: none, adaptive, continuous")
		csvOutput    = flag.String("csv", "", "Optional CSV metrics export path")
	)
	flag.Parse()

	cfg := loadConfigWithSecrets(*configPath)
	log := logger.NewLogger(cfg.App.LogLevel)
	bootstrapSigningKey(cfg)

	if *inputPath == "" {
		log.Fatal("missing required -input flag")
	}
	bars, err := loadBars(*inputPath)
	if err != nil {
		log.Fatalf("Failed to load price bars: %v", err)
	}

	session := *sessionID
	if session == "" {
		session = uuid.New().String()
	}
	sessionLog := logger.NewSessionLogger(log, session)

	writer, err := audit.NewWriter(cfg.Audit.LogPath, audit.WithSessionID(session), audit.WithLogger(log))
	if err != nil {
		log.Fatalf("Failed to open audit log: %v", err)
	}

	ctx := context.Background()
	strat := buildStrategy(cfg, *strategyName, writer, log)
	store := buildStore(ctx, cfg, log)
	observers := buildObservers(cfg, *rlMode, writer, log)
	tracker := metrics.NewAdaptiveTracker(20)

	if cfg.Metrics.Enabled {
		startMetricsServer(cfg, log)
	}

	opts := []backtest.Option{
		backtest.WithAuditWriter(writer),
		backtest.WithTracker(tracker),
		backtest.WithLogger(log),
		backtest.WithSessionID(session),
	}
	if store != nil {
		opts = append(opts, backtest.WithRunStore(store))
	}
	for _, observer := range observers {
		opts = append(opts, backtest.WithObserver(observer))
	}

	engineCfg := backtest.Config{
		InitialCapital: cfg.Backtest.InitialCapital,
		RiskPerTrade:   cfg.Backtest.RiskPerTrade,
		Slippage:       cfg.Backtest.Slippage,
	}
	engine, err := backtest.NewEngine(engineCfg, strat, opts...)
	if err != nil {
		log.Fatalf("Failed to build engine: %v", err)
	}

	sessionLog.WithFields(logrus.Fields{
		"strategy": strat.Name(), "bars": len(bars),
	}).Info("Starting replay")

	result, err := engine.Run(ctx, bars)
	if err != nil {
		log.Fatalf("Replay failed: %v", err)
	}

	fmt.Print(backtest.GenerateConsoleReport(session, result))
	if *csvOutput != "" {
		if err := backtest.GenerateCSVExport(result, *csvOutput); err != nil {
			log.Warnf("Failed to write CSV export: %v", err)
		}
	}
}

func loadConfigWithSecrets(path string) *config.Config {
	boot := logrus.New()
	cfg, err := config.LoadWithDefaults(path)
	if err != nil {
		boot.Fatalf("Failed to load config: %v", err)
	}
	if os.Getenv("AWS_SECRETS_ENABLED") == "true" {
		region := os.Getenv("AWS_REGION")
		secretName := os.Getenv("AWS_SECRET_NAME")
		if region == "" || secretName == "" {
			boot.Fatal("AWS_REGION and AWS_SECRET_NAME must be set when AWS_SECRETS_ENABLED is true")
		}
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := config.LoadSecretsFromAWS(ctx, cfg, region, secretName); err != nil {
			boot.Fatalf("Failed to load secrets: %v", err)
		}
	}
	if err := config.Validate(cfg); err != nil {
		boot.Fatalf("Invalid configuration: %v", err)
	}
	return cfg
}

// bootstrapSigningKey resolves the audit signing key once, config first then
// environment, and installs it as the process fallback.
func bootstrapSigningKey(cfg *config.Config) {
	key := cfg.Audit.SigningKey
	if key == "" {
		key = os.Getenv(hmacKeyEnv)
	}
	if key != "" {
		audit.SetFallbackKey(key)
	}
}

func loadBars(path string) ([]models.Bar, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read bars file: %w", err)
	}
	var bars []models.Bar
	if err := json.Unmarshal(data, &bars); err != nil {
		return nil, fmt.Errorf("failed to parse bars file: %w", err)
	}
	return bars, nil
}

func buildStrategy(cfg *config.Config, name string, writer *audit.Writer, log *logrus.Logger) strategy.Strategy {
	switch name {
	case "threshold":
		strat, err := strategy.NewThresholdCrossStrategy(cfg.Strategy.MaxThreshold, cfg.Strategy.MinThreshold)
		if err != nil {
			log.Fatalf("Invalid threshold strategy config: %v", err)
		}
		return strat
	case "adaptive":
		strat, err := strategy.NewAdaptiveStrategy(strategy.AdaptiveConfig{
			InitialThreshold: cfg.Strategy.Threshold,
			LearningRate:     cfg.Strategy.LearningRate,
			MinThreshold:     cfg.Strategy.MinThreshold,
			MaxThreshold:     cfg.Strategy.MaxThreshold,
			PersistencePath:  cfg.Strategy.StatePath,
		}, writer, log)
		if err != nil {
			log.Fatalf("Invalid adaptive strategy config: %v", err)
		}
		return strat
	case "predictor":
		if !cfg.Predictor.Enabled {
			log.Fatal("predictor strategy requires predictor.enabled in the config")
		}
		httpCfg := predict.DefaultHTTPConfig(cfg.Predictor.URL, cfg.Predictor.InputSize)
		if cfg.Predictor.TimeoutSeconds > 0 {
			httpCfg.Timeout = time.Duration(cfg.Predictor.TimeoutSeconds) * time.Second
		}
		if cfg.Predictor.RetryAttempts > 0 {
			httpCfg.MaxRetries = cfg.Predictor.RetryAttempts
		}
		if cfg.Predictor.RequestsPerSecond > 0 {
			httpCfg.RateLimit = cfg.Predictor.RequestsPerSecond
		}
		httpPredictor, err := predict.NewHTTPPredictor(httpCfg, log)
		if err != nil {
			log.Fatalf("Invalid predictor config: %v", err)
		}
		ttl := 5 * time.Minute
		if cfg.Predictor.CacheTTLSeconds > 0 {
			ttl = time.Duration(cfg.Predictor.CacheTTLSeconds) * time.Second
		}
		cached := predict.NewCachedPredictor(httpPredictor, ttl)
		strat, err := strategy.NewPredictorThresholdStrategy(cached, cfg.Strategy.MaxThreshold, cfg.Strategy.MinThreshold, writer)
		if err != nil {
			log.Fatalf("Invalid predictor strategy config: %v", err)
		}
		return strat
	default:
		log.Fatalf("Unknown strategy: %s", name)
		return nil
	}
}

func buildStore(ctx context.Context, cfg *config.Config, log *logrus.Logger) datastore.RunStore {
	switch cfg.Datastore.Backend {
	case "postgres":
		db, err := database.NewDB(ctx, database.Config{
			Host:           cfg.Database.Host,
			Port:           cfg.Database.Port,
			Name:           cfg.Database.Name,
			User:           cfg.Database.User,
			Password:       cfg.Database.Password,
			SSLMode:        cfg.Database.SSLMode,
			MaxConnections: cfg.Database.MaxConnections,
		})
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		store, err := datastore.NewPostgresStore(ctx, db)
		if err != nil {
			log.Fatalf("Failed to initialize postgres datastore: %v", err)
		}
		return store
	default:
		store, err := datastore.NewStore(cfg.Datastore.BaseDir)
		if err != nil {
			log.Fatalf("Failed to initialize datastore: %v", err)
		}
		return store
	}
}

func buildObservers(cfg *config.Config, rlMode string, writer *audit.Writer, log *logrus.Logger) []backtest.TradeObserver {
	switch rlMode {
	case "none":
		return nil
	case "adaptive":
		rlCfg := optimizer.DefaultAdaptiveConfig(cfg.Optimizer.InputSize)
		rlCfg.LearningRate = cfg.Optimizer.LearningRate
		if cfg.Optimizer.StatePath != "" {
			rlCfg.StatePath = cfg.Optimizer.StatePath
		}
		opt, err := optimizer.NewRLAdaptiveOptimizer(rlCfg, writer, log)
		if err != nil {
			log.Fatalf("Failed to build adaptive optimizer: %v", err)
		}
		return []backtest.TradeObserver{opt}
	case "continuous":
		rlCfg := optimizer.DefaultContinuousConfig(cfg.Optimizer.InputSize)
		if cfg.Optimizer.BufferPath != "" {
			rlCfg.ReplayPath = cfg.Optimizer.BufferPath
		}
		agent, err := optimizer.NewRLContinuousAgent(rlCfg, writer, log)
		if err != nil {
			log.Fatalf("Failed to build continuous agent: %v", err)
		}
		return []backtest.TradeObserver{agent}
	default:
		log.Fatalf("Unknown rl mode: %s", rlMode)
		return nil
	}
}

func startMetricsServer(cfg *config.Config, log *logrus.Logger) {
	mux := http.NewServeMux()
	mux.Handle(cfg.Metrics.Path, metrics.Handler())
	addr := fmt.Sprintf(":%d", cfg.Metrics.Port)
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.WithError(err).Warn("Metrics server stopped")
		}
	}()
	log.WithField("addr", addr).Info("Metrics server listening")
}
