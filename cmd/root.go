package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/scalarorg/cosmos-gmp-relayer/config"
	"github.com/scalarorg/cosmos-gmp-relayer/internal/relayer"
	"github.com/scalarorg/cosmos-gmp-relayer/pkg/db"
	"github.com/scalarorg/cosmos-gmp-relayer/pkg/events"
	"github.com/scalarorg/cosmos-gmp-relayer/pkg/tracing"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	environment string
	configDir   string
	rootCmd     = &cobra.Command{
		Use:   "relayer",
		Short: "Cosmos GMP Relayer",
		RunE:  run,
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func run(cmd *cobra.Command, args []string) error {
	if err := config.LoadEnv(); err != nil {
		return err
	}
	config.InitLogger()
	cfg, err := config.Load(viper.GetString("env"), viper.GetString("config_dir"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if viper.GetBool("dev") {
		cfg.IsDev = true
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, config.APP_NAME, cfg.OtelEndpoint)
	if err != nil {
		return fmt.Errorf("failed to init tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Warn().Err(err).Msg("failed to flush traces")
		}
	}()

	dbAdapter, err := db.NewDatabaseAdapter(ctx, &cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to create database adapter: %w", err)
	}
	eventBus := events.NewEventBus(cfg.EventBuffer)
	service, err := relayer.NewService(cfg, dbAdapter, eventBus)
	if err != nil {
		return fmt.Errorf("failed to create relayer service: %w", err)
	}
	defer service.Stop()

	// Start returns when a signal arrives or a listener gave up
	if err := service.Start(ctx); err != nil {
		log.Error().Err(err).Msg("relayer service stopped with error")
		return err
	}
	log.Info().Msg("Shutting down relayer...")
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&environment, "env", "local", "Environment name of the configuration")
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "Directory of the json configs, ./data/<env> by default")
	rootCmd.PersistentFlags().Bool("dev", false, "Development mode")
	viper.BindPFlag("env", rootCmd.PersistentFlags().Lookup("env"))               //nolint:errcheck
	viper.BindPFlag("config_dir", rootCmd.PersistentFlags().Lookup("config-dir")) //nolint:errcheck
	viper.BindPFlag("dev", rootCmd.PersistentFlags().Lookup("dev"))               //nolint:errcheck
}
