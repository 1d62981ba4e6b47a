// internal/bot/runner.go
package bot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rovshanmuradov/solana-sniper/internal/blockchain"
	"github.com/rovshanmuradov/solana-sniper/internal/blockchain/solbc"
	"github.com/rovshanmuradov/solana-sniper/internal/config"
	"github.com/rovshanmuradov/solana-sniper/internal/dex/raydium"
	"github.com/rovshanmuradov/solana-sniper/internal/eventlistener"
	"github.com/rovshanmuradov/solana-sniper/internal/events"
	"github.com/rovshanmuradov/solana-sniper/internal/export"
	"github.com/rovshanmuradov/solana-sniper/internal/filter"
	"github.com/rovshanmuradov/solana-sniper/internal/license"
	"github.com/rovshanmuradov/solana-sniper/internal/logger"
	"github.com/rovshanmuradov/solana-sniper/internal/marketdata"
	"github.com/rovshanmuradov/solana-sniper/internal/session"
	"github.com/rovshanmuradov/solana-sniper/internal/storage"
	"github.com/rovshanmuradov/solana-sniper/internal/storage/postgres"
	"github.com/rovshanmuradov/solana-sniper/internal/swap"
	"github.com/rovshanmuradov/solana-sniper/internal/wallet"
	"go.uber.org/zap"
)

const (
	shutdownTimeout    = 30 * time.Second
	journalFlush       = 5 * time.Second
	licenseHeartbeat   = time.Hour
	logOverflowFile    = "session_logs.jsonl"
	eventBufferSize    = 1024
	postgresInitWindow = 15 * time.Second
)

// Options adjust how a Runner is wired.
type Options struct {
	// LogCallback receives every session log line, e.g. for the dashboard.
	LogCallback func(line string)
	// ConfigPath is rewritten when settings change at runtime. Empty keeps
	// changes in memory.
	ConfigPath string
}

// Runner owns every long-lived component of one trading process.
type Runner struct {
	logger   *zap.Logger
	config   *config.Config
	session  *session.Session
	market   *marketdata.Client
	bus      *events.Bus
	listener *eventlistener.EventListener
	shutdown *ShutdownHandler

	// guards config writes from settings updates
	cfgMu sync.Mutex
}

// NewRunner builds the component graph described by cfg.
func NewRunner(ctx context.Context, cfg *config.Config, log *zap.Logger, opts Options) (*Runner, error) {
	r := &Runner{
		logger:   log.Named("runner"),
		config:   cfg,
		shutdown: NewShutdownHandler(log, shutdownTimeout),
	}
	if err := r.build(ctx, log, opts); err != nil {
		if sErr := r.shutdown.Shutdown(context.Background()); sErr != nil {
			err = errors.Join(err, sErr)
		}
		return nil, err
	}
	return r, nil
}

func (r *Runner) build(ctx context.Context, log *zap.Logger, opts Options) error {
	cfg := r.config
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	limiters := cfg.Limiters()
	mdCfg := cfg.MarketDataConfig()
	r.market = marketdata.NewClient(mdCfg, limiters, log)

	var (
		chain    blockchain.Client
		balances session.BalanceReader
		holders  filter.HolderInfo
		direct   swap.DirectSwapper
		w        *wallet.Wallet
	)
	if len(cfg.RPCList) > 0 {
		client, err := solbc.NewClient(cfg.RPCList, log)
		if err != nil {
			return fmt.Errorf("failed to create RPC client: %w", err)
		}
		chain, balances = client, client
		holders = filter.NewChainHolderInfo(client, log)
	}
	if cfg.WalletPath != "" {
		var err error
		if w, err = wallet.LoadKeypairFile(cfg.WalletPath); err != nil {
			return err
		}
		r.logger.Info("Wallet loaded: " + w.PublicKey.String())
	}
	if chain != nil && w != nil {
		direct = raydium.NewClient(chain, w, cfg.RaydiumConfig(), log)
	}

	jupiter := swap.NewJupiterClient(cfg.JupiterURL, mdCfg.Timeout, limiters.Jupiter, log)
	executor, err := swap.NewExecutor(cfg.SwapConfig(), jupiter, direct, chain, w, log)
	if err != nil {
		return fmt.Errorf("failed to create swap executor: %w", err)
	}

	r.bus = events.NewBus(log, eventBufferSize)
	journal, err := export.NewCSVJournal(cfg.TradesPath(), journalFlush, log)
	if err != nil {
		return err
	}
	r.shutdown.Add("trade journal", journal)
	r.bus.Subscribe(events.PositionClosed, storage.JournalHandler(journal, log))

	if cfg.PostgresURL != "" {
		pgCtx, cancel := context.WithTimeout(ctx, postgresInitWindow)
		store, err := postgres.NewStore(pgCtx, cfg.PostgresURL, log)
		cancel()
		if err != nil {
			return err
		}
		r.shutdown.Add("postgres", store)
		r.bus.Subscribe(events.PositionClosed, storage.JournalHandler(store, log))
	}
	// registered after the journals so it drains into them before they close
	r.shutdown.AddFunc("event bus", func() error {
		return r.bus.Shutdown(context.Background())
	})

	logs, err := logger.NewLogBuffer(cfg.Trading.MaxLogLines, filepath.Join(cfg.DataDir, logOverflowFile))
	if err != nil {
		return err
	}
	r.shutdown.Add("log buffer", logs)

	var save func(session.Settings) error
	if opts.ConfigPath != "" {
		save = r.settingsSaver(opts.ConfigPath)
	}
	r.session, err = session.New(cfg.SessionSettings(), session.Deps{
		Market:       r.market,
		Swapper:      executor,
		Filter:       filter.NewEngine(holders, log),
		Balance:      balances,
		Wallet:       w,
		Store:        session.NewPositionStore(cfg.PositionsPath()),
		Events:       r.bus,
		Logs:         logs,
		Logger:       log,
		LogCallback:  opts.LogCallback,
		SaveSettings: save,
	})
	if err != nil {
		return err
	}
	r.shutdown.AddFunc("session", func() error {
		r.session.Stop()
		return nil
	})

	if cfg.WebSocketURL != "" {
		if r.listener, err = eventlistener.NewEventListener(cfg.WebSocketURL, eventlistener.DefaultConfig(), log); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) settingsSaver(path string) func(session.Settings) error {
	return func(settings session.Settings) error {
		r.cfgMu.Lock()
		defer r.cfgMu.Unlock()
		r.config.ApplySettings(settings)
		if err := config.Save(path, r.config); err != nil {
			return err
		}
		r.logger.Info("Settings saved to " + path)
		return nil
	}
}

// Session is the trading session driven by this runner.
func (r *Runner) Session() *session.Session { return r.session }

// Market resolves mints for manual buys.
func (r *Runner) Market() *marketdata.Client { return r.market }

// Bus carries session events to extra subscribers such as the dashboard.
func (r *Runner) Bus() *events.Bus { return r.bus }

// ValidateLicense checks the configured key. Keygen keys are revalidated
// hourly until ctx ends.
func (r *Runner) ValidateLicense(ctx context.Context) error {
	if r.config.License == "" && r.config.Keygen.AccountID == "" {
		return nil
	}
	validator := license.NewValidator(r.config.Keygen, r.logger)
	if err := validator.Validate(ctx, r.config.License); err != nil {
		return fmt.Errorf("license validation failed: %w", err)
	}
	if kv, ok := validator.(*license.KeygenValidator); ok {
		go kv.KeepAlive(ctx, r.config.License, licenseHeartbeat)
	}
	return nil
}

// StartListener subscribes to pool creations so discovery polls early.
// It is a no-op without a websocket URL.
func (r *Runner) StartListener(ctx context.Context) {
	if r.listener == nil {
		return
	}
	handler := eventlistener.TriggerOnPoolInit(r.session.TriggerPoll, r.logger)
	go func() {
		if err := r.listener.Run(ctx, handler); err != nil && !errors.Is(err, context.Canceled) {
			r.logger.Error("Pool listener stopped", zap.Error(err))
		}
	}()
}

// Run trades headless until the session ends or ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.StartListener(ctx)
	return r.session.Start(ctx)
}

// Shutdown stops the session and closes every component.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.logger.Info("Bot shutting down gracefully")
	err := r.shutdown.Shutdown(ctx)
	SyncLogger(r.logger)
	return err
}

// SyncLogger flushes log, ignoring the errors terminals return for stdout.
func SyncLogger(log *zap.Logger) {
	if err := log.Sync(); err != nil {
		if !os.IsNotExist(err) &&
			err.Error() != "sync /dev/stdout: invalid argument" &&
			err.Error() != "sync /dev/stderr: inappropriate ioctl for device" &&
			err.Error() != "sync /dev/stdout: inappropriate ioctl for device" {
			fmt.Fprintf(os.Stderr, "failed to sync logger during shutdown: %v\n", err)
		}
	}
}
