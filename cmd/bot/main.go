// cmd/bot/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rovshanmuradov/solana-sniper/internal/bot"
	"github.com/rovshanmuradov/solana-sniper/internal/config"
	"github.com/rovshanmuradov/solana-sniper/internal/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cfgFile string
	envFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "sniper",
		Short:         "Solana new-token sniper",
		Long:          `Discovers freshly listed Solana tokens, filters them, buys the survivors and exits on take-profit or stop-loss`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "configs/config.json", "config file (JSON or YAML)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "dotenv file with SNIPER_* overrides")

	rootCmd.AddCommand(newRunCmd(), newTUICmd(), newExportCmd(), newInitCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	if err := config.LoadDotEnv(envFile); err != nil {
		return nil, err
	}
	return config.LoadConfig(cfgFile)
}

func newLogger(cfg *config.Config, console bool) *zap.Logger {
	lc := logger.DefaultConfig()
	lc.LogFile = cfg.LogFile
	lc.Debug = cfg.DebugLogging
	lc.Console = console
	return logger.New(lc, nil)
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Trade headless until the session ends or a signal arrives",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			log := newLogger(cfg, true)
			log.Info("Starting sniper bot")

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			runner, err := bot.NewRunner(ctx, cfg, log, bot.Options{})
			if err != nil {
				return err
			}
			defer func() {
				if err := runner.Shutdown(context.Background()); err != nil {
					log.Error("Shutdown finished with errors", zap.Error(err))
				}
			}()

			if err := runner.ValidateLicense(ctx); err != nil {
				return err
			}
			if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}

func newInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration to --config",
		RunE: func(_ *cobra.Command, _ []string) error {
			if _, err := os.Stat(cfgFile); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", cfgFile)
			}
			cfg, err := config.Default()
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(cfgFile), 0755); err != nil {
				return err
			}
			if err := config.Save(cfgFile, cfg); err != nil {
				return err
			}
			fmt.Println("Wrote", cfgFile)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}
