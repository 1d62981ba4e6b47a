package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rovshanmuradov/solana-sniper/internal/config"
	"github.com/rovshanmuradov/solana-sniper/internal/export"
	"github.com/rovshanmuradov/solana-sniper/internal/ledger"
	"github.com/rovshanmuradov/solana-sniper/internal/storage/postgres"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const maxExportRows = 100_000

type exportFlags struct {
	format string
	source string
	mint   string
	reason string
	from   string
	to     string
	out    string
	daily  string
}

func newExportCmd() *cobra.Command {
	var f exportFlags
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export closed trades to CSV or JSON",
		Example: `  sniper export --format json --from 2025-03-01 --reason TAKE_PROFIT
  sniper export --daily 2025-03-01`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			log := newLogger(cfg, true)
			defer log.Sync()

			trades, err := loadTrades(cmd.Context(), cfg, f.source, log)
			if err != nil {
				return err
			}
			exporter := export.NewExporter(log)
			out := f.out
			if out == "" {
				out = filepath.Join(cfg.DataDir, "exports")
			}

			if f.daily != "" {
				day, err := parseDate(f.daily)
				if err != nil {
					return err
				}
				path, err := exporter.ExportDailyReport(trades, day, out)
				if err != nil {
					return err
				}
				if path == "" {
					fmt.Println("No trades on", day.Format(time.DateOnly))
					return nil
				}
				fmt.Println("Wrote", path)
				return nil
			}

			opts, err := f.options(out)
			if err != nil {
				return err
			}
			path, err := exporter.Export(trades, opts)
			if err != nil {
				return err
			}
			fmt.Println("Wrote", path)
			return nil
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.format, "format", "csv", "output format: csv or json")
	fl.StringVar(&f.source, "source", "journal", "trade source: journal or postgres")
	fl.StringVar(&f.mint, "mint", "", "only trades of this mint")
	fl.StringVar(&f.reason, "reason", "", "only trades with this exit reason (TAKE_PROFIT, STOP_LOSS, MANUAL)")
	fl.StringVar(&f.from, "from", "", "earliest exit time (YYYY-MM-DD or RFC3339)")
	fl.StringVar(&f.to, "to", "", "latest exit time (YYYY-MM-DD or RFC3339)")
	fl.StringVar(&f.out, "out", "", "output directory (default <data_dir>/exports)")
	fl.StringVar(&f.daily, "daily", "", "write the daily report for this date instead")
	return cmd
}

func (f exportFlags) options(out string) (export.Options, error) {
	format, err := export.ParseFormat(f.format)
	if err != nil {
		return export.Options{}, err
	}
	opts := export.Options{
		Format:    format,
		Mint:      f.mint,
		Reason:    ledger.ExitReason(strings.ToUpper(f.reason)),
		OutputDir: out,
	}
	if f.from != "" {
		if opts.StartTime, err = parseDate(f.from); err != nil {
			return export.Options{}, err
		}
	}
	if f.to != "" {
		if opts.EndTime, err = parseDate(f.to); err != nil {
			return export.Options{}, err
		}
		if len(f.to) == len(time.DateOnly) {
			opts.EndTime = opts.EndTime.Add(24*time.Hour - time.Nanosecond)
		}
	}
	return opts, nil
}

func loadTrades(ctx context.Context, cfg *config.Config, source string, log *zap.Logger) ([]ledger.ClosedTrade, error) {
	switch source {
	case "journal", "":
		return export.ReadJournal(cfg.TradesPath())
	case "postgres":
		if cfg.PostgresURL == "" {
			return nil, errors.New("postgres_url is not configured")
		}
		store, err := postgres.NewStore(ctx, cfg.PostgresURL, log)
		if err != nil {
			return nil, err
		}
		defer store.Close()
		return store.RecentTrades(ctx, maxExportRows)
	default:
		return nil, fmt.Errorf("unknown trade source %q", source)
	}
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.ParseInLocation(time.DateOnly, s, time.Local); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD or RFC3339", s)
	}
	return t, nil
}
