package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"marketstream/config"
	"marketstream/internal/binance/collector"
	"marketstream/logger"
	"marketstream/pkg/storage/postgres"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"

	configPath string

	app = &cobra.Command{
		Use:           "collector",
		Short:         "Binance futures market data collector",
		Long:          "collector streams Binance futures market data into a cache and a durable store and fans it out to WebSocket subscribers",
		Version:       formatVersion(),
		RunE:          runAction,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "run the collector until interrupted",
		RunE:  runAction,
	}

	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "create the database if needed and migrate every table",
		RunE:  migrateAction,
	}
)

func init() {
	app.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.yaml (default: ./config/config.yaml)")
	app.AddCommand(runCmd, migrateCmd)
}

func main() {
	if err := app.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setup() (*config.Config, *zap.Logger, error) {
	// viper config
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}

	// zap logger
	log, err := logger.New(cfg.Log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return cfg, log, nil
}

func runAction(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := collector.NewService(cfg, log)
	if err != nil {
		log.Error("failed to start collector", zap.Error(err))
		return err
	}
	defer svc.Close()

	log.Info("collector starting", zap.String("version", version))
	if err := svc.Run(ctx); err != nil {
		log.Error("collector failed", zap.Error(err))
		return err
	}
	log.Info("collector stopped")
	return nil
}

func migrateAction(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	start := time.Now()
	log.Info("starting migration...")

	client, err := postgres.InitializeAndMigrate(cfg.Postgres, cfg.Log.Environment, true)
	if err != nil {
		log.Error("migration failed", zap.Error(err))
		return err
	}
	defer client.Close()

	log.Info("migration ended", zap.Duration("elapsed", time.Since(start)))
	return nil
}

func formatVersion() string {
	return fmt.Sprintf(
		"Version: %s\nCommit: %s\nDate: %s",
		version, commit, date,
	)
}
