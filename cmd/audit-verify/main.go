// Package main provides the audit trail verification CLI.
package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/yourusername/quant-replay/internal/audit"
	"github.com/yourusername/quant-replay/internal/config"
	"github.com/yourusername/quant-replay/internal/logger"
	"github.com/yourusername/quant-replay/internal/scheduler"
)

const hmacKeyEnv = "QUANT_REPLAY_HMAC_KEY"

var (
	configFile string
	auditPath  string
	signingKey string
	appLogger  *logrus.Logger
	cfg        *config.Config
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "config/config.yaml", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&auditPath, "path", "", "Audit log path (overrides config)")
	rootCmd.PersistentFlags().StringVar(&signingKey, "key", "", "HMAC signing key (overrides config and environment)")
	rootCmd.AddCommand(watchCmd)
}

var rootCmd = &cobra.Command{
	Use:   "audit-verify",
	Short: "Verify signed audit trail integrity",
	Long:  `Recomputes the HMAC signature of every audit log line and reports tampered, unsigned or malformed entries.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.LoadWithDefaults(configFile)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		appLogger = logger.NewLogger(cfg.App.LogLevel)
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runVerify()
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run periodic integrity sweeps",
	Long:  `Schedules a recurring verification pass over the audit log and keeps running until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWatch()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func resolvePath() string {
	if auditPath != "" {
		return auditPath
	}
	return cfg.Audit.LogPath
}

func resolveKey() string {
	if signingKey != "" {
		return signingKey
	}
	if cfg.Audit.SigningKey != "" {
		return cfg.Audit.SigningKey
	}
	return os.Getenv(hmacKeyEnv)
}

func runVerify() error {
	key := resolveKey()
	if key == "" {
		return fmt.Errorf("no signing key: use --key, the config file, or %s", hmacKeyEnv)
	}

	report, err := audit.VerifyFile(resolvePath(), key)
	if err != nil {
		return fmt.Errorf("failed to verify audit log: %w", err)
	}

	fmt.Printf("Audit Verification Report\n")
	fmt.Printf("=========================\n")
	fmt.Printf("Path: %s\n", resolvePath())
	fmt.Printf("Total Lines: %d\n", report.Total)
	fmt.Printf("Verified: %d\n", report.Verified)
	fmt.Printf("Failed: %d\n", report.Failed())
	for _, failure := range report.Failures {
		fmt.Printf("  line %d: %s (%s)\n", failure.Line, failure.Reason, failure.Preview)
	}

	if !report.Clean() {
		return fmt.Errorf("audit log failed verification: %d bad lines", report.Failed())
	}
	fmt.Println("OK")
	return nil
}

func runWatch() error {
	key := resolveKey()
	if key == "" {
		return fmt.Errorf("no signing key: use --key, the config file, or %s", hmacKeyEnv)
	}
	cronExpr := cfg.Scheduler.IntegritySweepCron
	if cronExpr == "" {
		cronExpr = "@every 1h"
	}

	sched := scheduler.NewScheduler(appLogger)
	if err := sched.ScheduleIntegritySweep(cronExpr, resolvePath(), key); err != nil {
		return fmt.Errorf("failed to schedule integrity sweep: %w", err)
	}
	if err := sched.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("Shutting down integrity watcher")
	return sched.Stop()
}
