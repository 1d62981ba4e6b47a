package main

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rovshanmuradov/solana-sniper/internal/bot"
	"github.com/rovshanmuradov/solana-sniper/internal/events"
	"github.com/rovshanmuradov/solana-sniper/internal/ui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newTUICmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Open the interactive trading dashboard",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			// the dashboard owns the terminal, logs go to the file and the log pane
			log := newLogger(cfg, false)
			log.Info("Starting sniper dashboard")

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			sender := ui.NewUpdateSender(1024, log)
			defer sender.Close()

			runner, err := bot.NewRunner(ctx, cfg, log, bot.Options{LogCallback: sender.LogSink, ConfigPath: cfgFile})
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

			sub := runner.Bus().Subscribe(events.Any, sender.EventHandler())
			defer sub.Unsubscribe()
			runner.StartListener(ctx)

			model := ui.NewModel(ctx, runner.Session(), runner.Market(), sender.Updates())
			program := tea.NewProgram(
				ui.NewSafeModel(model, log),
				tea.WithAltScreen(),
				tea.WithContext(ctx),
			)
			if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
				log.Error("TUI application failed", zap.Error(err))
				return err
			}
			return nil
		},
	}
}
