// internal/session/session.go
package session

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/rovshanmuradov/solana-sniper/internal/events"
	"github.com/rovshanmuradov/solana-sniper/internal/filter"
	"github.com/rovshanmuradov/solana-sniper/internal/ledger"
	"github.com/rovshanmuradov/solana-sniper/internal/logger"
	"github.com/rovshanmuradov/solana-sniper/internal/marketdata"
	"github.com/rovshanmuradov/solana-sniper/internal/swap"
	"github.com/rovshanmuradov/solana-sniper/internal/wallet"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Status is the externally visible session state.
type Status string

const (
	StatusStopped Status = "Stopped"
	StatusRunning Status = "Running"
	StatusError   Status = "Error"
)

const (
	stopGrace         = 5 * time.Second
	iterationBackoff  = time.Second
	errorLogInterval  = 30 * time.Second
	lamportsPerSOL    = 1_000_000_000
	manualBuyWarning  = "Warning: Manual buy ignores all filters and settings. Proceed with caution!"
	unknownTokenLabel = "unknown (?)"
)

var (
	ErrAlreadyRunning      = errors.New("session already running")
	ErrNotRunning          = errors.New("session is not running")
	ErrNoReferencePrice    = errors.New("SOL/USD reference price unavailable")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrNoBalanceSource     = errors.New("live session requires a wallet and a balance source")
	ErrNoPrice             = errors.New("token has no valid price")
	ErrSellInProgress      = errors.New("sell already in progress")
)

// MarketData supplies discovery profiles, pool snapshots and the SOL/USD price.
type MarketData interface {
	FetchReferencePrice(ctx context.Context) (float64, bool)
	FetchPoolSnapshot(ctx context.Context, mint string) *marketdata.TokenSnapshot
	FetchDiscoveryBatch(ctx context.Context) []marketdata.TokenProfile
}

// Swapper executes buys (SOL in) and sells (tokens in).
type Swapper interface {
	Buy(ctx context.Context, req swap.Request) (swap.Result, error)
	Sell(ctx context.Context, req swap.Request) (swap.Result, error)
}

// Filter decides whether a discovered token may be bought.
type Filter interface {
	Evaluate(ctx context.Context, snap *marketdata.TokenSnapshot, cfg filter.Config, now time.Time) filter.Result
}

// BalanceReader reads the wallet SOL balance in lamports.
type BalanceReader interface {
	GetBalance(ctx context.Context, account solana.PublicKey) (uint64, error)
}

// Publisher receives session events.
type Publisher interface {
	Publish(event events.Event) error
}

// Deps are the collaborators of a session. Market, Swapper and Filter are required.
type Deps struct {
	Market  MarketData
	Swapper Swapper
	Filter  Filter

	// Live mode only.
	Balance BalanceReader
	Wallet  *wallet.Wallet

	Store  *PositionStore
	Events Publisher
	Logs   *logger.LogBuffer
	Logger *zap.Logger

	LogCallback    func(line string)
	StatusCallback func(status Status)

	// SaveSettings persists settings accepted by UpdateSettings.
	SaveSettings func(Settings) error

	Now func() time.Time
}

// Summary is a point-in-time view of session performance. Balances are in SOL, PnL in USD.
type Summary struct {
	Wallet         string
	InitialBalance float64
	CurrentBalance float64
	SOLPriceUSD    float64
	PnL            float64
	RealizedPnL    float64
	UnrealizedPnL  float64
	WinRate        float64
	Trades         int
	OpenPositions  int
	StartTime      time.Time
	EndTime        time.Time
	LastUpdated    time.Time
}

// Session orchestrates discovery, filtering, buying and exit management.
type Session struct {
	market   MarketData
	swapper  Swapper
	filter   Filter
	balances BalanceReader
	store    *PositionStore
	events   Publisher
	onStatus func(Status)
	onSave   func(Settings) error

	ledger *ledger.Ledger
	seen   *seenSet
	logs   *logger.LogBuffer
	logger *zap.Logger
	now    func() time.Time

	// buyMu serializes the balance check and debit of every buy.
	buyMu sync.Mutex

	mu             sync.RWMutex
	settings       Settings
	status         Status
	running        bool
	wallet         *wallet.Wallet
	solUSD         float64
	balance        float64
	initialBalance float64
	startTime      time.Time
	endTime        time.Time
	lastUpdated    time.Time
	selling        map[string]struct{}
	cancel         context.CancelFunc
	done           chan struct{}

	trigger chan struct{}

	// worker panics and price warnings are throttled independently
	panicLog rate.Sometimes
	priceLog rate.Sometimes
}

// New creates a stopped session and reloads persisted open positions.
func New(settings Settings, deps Deps) (*Session, error) {
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	if deps.Market == nil || deps.Swapper == nil || deps.Filter == nil {
		return nil, errors.New("session requires market data, swapper and filter")
	}
	if !settings.Simulation && (deps.Wallet == nil || deps.Balance == nil) {
		return nil, ErrNoBalanceSource
	}
	base := deps.Logger
	if base == nil {
		base = zap.NewNop()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	logs := deps.Logs
	if logs == nil {
		var err error
		if logs, err = logger.NewLogBuffer(settings.MaxLogLines, ""); err != nil {
			return nil, err
		}
	}
	if deps.LogCallback != nil {
		logs.SetSink(deps.LogCallback)
	}
	bufferCore := zapcore.NewCore(logger.PlainEncoder(), zapcore.AddSync(logs), zapcore.InfoLevel)

	s := &Session{
		market:   deps.Market,
		swapper:  deps.Swapper,
		filter:   deps.Filter,
		balances: deps.Balance,
		store:    deps.Store,
		events:   deps.Events,
		onStatus: deps.StatusCallback,
		onSave:   deps.SaveSettings,
		ledger:   ledger.New(settings.MaxTradesHistory, settings.SellFee),
		seen:     newSeenSet(settings.MaxSeenTokens),
		logs:     logs,
		logger:   zap.New(zapcore.NewTee(base.Core(), bufferCore)).Named("session"),
		now:      now,
		settings: settings,
		status:   StatusStopped,
		wallet:   deps.Wallet,
		selling:  make(map[string]struct{}),
		trigger:  make(chan struct{}, 1),
		panicLog: rate.Sometimes{Interval: errorLogInterval},
		priceLog: rate.Sometimes{Interval: errorLogInterval},
	}
	s.restorePositions()
	return s, nil
}

func (s *Session) restorePositions() {
	if s.store == nil {
		return
	}
	positions, err := s.store.Load()
	if err != nil {
		s.logger.Error("[ERROR] Failed to load saved positions", zap.Error(err))
		return
	}
	if n := s.ledger.Restore(positions); n > 0 {
		s.logger.Info(fmt.Sprintf("Restored %d open positions from %s", n, s.store.Path()))
	}
}

// Start validates preconditions, launches the workers and blocks until the
// session duration elapses, Stop is called or ctx is cancelled.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.running = true
	settings := s.settings
	s.mu.Unlock()

	solUSD, ok := s.market.FetchReferencePrice(ctx)
	if !ok || solUSD <= 0 || math.IsNaN(solUSD) {
		s.logger.Error("[ERROR] Could not fetch SOL/USD price, session not started")
		return s.abortStart(ErrNoReferencePrice)
	}

	w, balance, err := s.initWallet(ctx, settings, solUSD)
	if err != nil {
		s.logger.Error("[ERROR] Wallet initialization failed", zap.Error(err))
		return s.abortStart(err)
	}
	if balance <= 0 || balance*solUSD < settings.PositionSizeUSD {
		s.logger.Error(fmt.Sprintf("[BALANCE] Insufficient balance: %.4f SOL ($%.2f) < position size $%.2f",
			balance, balance*solUSD, settings.PositionSizeUSD))
		return s.abortStart(ErrInsufficientBalance)
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	start := s.now()

	s.mu.Lock()
	s.wallet = w
	s.solUSD = solUSD
	s.balance = balance
	s.initialBalance = balance
	s.startTime = start
	s.endTime = start.Add(settings.Duration)
	s.lastUpdated = start
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	mode := "LIVE"
	if settings.Simulation {
		mode = "SIMULATION"
	}
	s.logger.Info(fmt.Sprintf("Session started (%s) wallet %s balance %.4f SOL @ $%.2f, ends %s",
		mode, w.PublicKey, balance, solUSD, s.endTime.Format(time.RFC3339)))
	s.setStatus(StatusRunning)

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		s.discoveryLoop(gctx)
		return nil
	})
	g.Go(func() error {
		s.priceLoop(gctx)
		return nil
	})

	s.supervise(runCtx, settings)

	cancel()
	s.waitWorkers(g)
	s.logSummary("Final")
	s.persist()

	s.mu.Lock()
	s.running = false
	s.cancel = nil
	s.mu.Unlock()
	s.setStatus(StatusStopped)
	close(done)
	return nil
}

func (s *Session) abortStart(err error) error {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	s.setStatus(StatusError)
	return err
}

func (s *Session) initWallet(ctx context.Context, settings Settings, solUSD float64) (*wallet.Wallet, float64, error) {
	if settings.Simulation {
		s.mu.RLock()
		w := s.wallet
		s.mu.RUnlock()
		if w == nil {
			var err error
			if w, err = wallet.NewRandomWallet(); err != nil {
				return nil, 0, err
			}
		}
		return w, settings.StartingUSD / solUSD, nil
	}

	s.mu.RLock()
	w := s.wallet
	s.mu.RUnlock()
	lamports, err := s.balances.GetBalance(ctx, w.PublicKey)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read wallet balance: %w", err)
	}
	return w, float64(lamports) / lamportsPerSOL, nil
}

// supervise logs a summary every SummaryInterval until the session ends.
func (s *Session) supervise(ctx context.Context, settings Settings) {
	ticker := time.NewTicker(settings.SummaryInterval)
	defer ticker.Stop()
	end := time.NewTimer(settings.Duration)
	defer end.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-end.C:
			s.logger.Info("Session duration reached, stopping")
			return
		case <-ticker.C:
			s.logSummary("Periodic")
		}
	}
}

func (s *Session) waitWorkers(g *errgroup.Group) {
	finished := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(stopGrace):
		s.logger.Warn("Timeout waiting for workers to finish")
	}
}

// Stop cancels the workers and waits up to the grace period for Start to return.
func (s *Session) Stop() {
	s.mu.RLock()
	cancel, done := s.cancel, s.done
	s.mu.RUnlock()
	if cancel == nil {
		return
	}

	s.logger.Info("Stopping session...")
	cancel()
	select {
	case <-done:
	case <-time.After(stopGrace):
		s.logger.Warn("Session did not stop within the grace period")
	}
}

// TriggerPoll requests an immediate discovery poll.
func (s *Session) TriggerPoll() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *Session) setStatus(st Status) {
	s.mu.Lock()
	changed := s.status != st
	s.status = st
	s.mu.Unlock()
	if !changed {
		return
	}

	s.logger.Info("Status: " + string(st))
	if s.onStatus != nil {
		s.onStatus(st)
	}
	s.publish(events.StatusChangedEvent{BaseEvent: events.New(events.StatusChanged, s.now()), Status: string(st)})
}

// Settings returns the current settings.
func (s *Session) Settings() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// UpdateSettings replaces the settings. Running workers pick them up on their
// next iteration. The trading mode cannot change while running.
func (s *Session) UpdateSettings(settings Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	if s.running && settings.Simulation != s.settings.Simulation {
		s.mu.Unlock()
		return errors.New("cannot switch simulation mode while running")
	}
	s.settings = settings
	s.mu.Unlock()

	s.ledger.SetSellFee(settings.SellFee)
	s.logger.Info(fmt.Sprintf("Settings updated: size $%.2f, TP %.1f%%, SL %.1f%%, max price %g",
		settings.PositionSizeUSD, settings.TakeProfitPct, settings.StopLossPct, settings.Filter.MaxPrice))

	if s.onSave != nil {
		if err := s.onSave(settings); err != nil {
			s.logger.Error("[ERROR] Failed to save settings", zap.Error(err))
			return fmt.Errorf("settings applied but not saved: %w", err)
		}
	}
	return nil
}

// OpenPositions returns copies of the open positions, oldest first.
func (s *Session) OpenPositions() []ledger.Position {
	return s.ledger.OpenPositions()
}

// ClosedTrades returns the retained trade history, oldest first.
func (s *Session) ClosedTrades() []ledger.ClosedTrade {
	return s.ledger.ClosedTrades()
}

// Logs returns up to n recent session log lines. n <= 0 returns all retained lines.
func (s *Session) Logs(n int) []string {
	return s.logs.Lines(n)
}

func (s *Session) Summary() Summary {
	stats := s.ledger.Stats()
	unrealized := s.ledger.UnrealizedPnL()

	s.mu.RLock()
	defer s.mu.RUnlock()
	sum := Summary{
		InitialBalance: s.initialBalance,
		CurrentBalance: s.balance,
		SOLPriceUSD:    s.solUSD,
		RealizedPnL:    stats.RealizedPnL,
		UnrealizedPnL:  unrealized,
		PnL:            stats.RealizedPnL + unrealized,
		WinRate:        s.ledger.WinRate(),
		Trades:         stats.Trades,
		OpenPositions:  stats.Open,
		StartTime:      s.startTime,
		EndTime:        s.endTime,
		LastUpdated:    s.lastUpdated,
	}
	if s.wallet != nil {
		sum.Wallet = s.wallet.PublicKey.String()
	}
	return sum
}

func (s *Session) logSummary(label string) {
	stats := s.ledger.Stats()
	sum := s.Summary()
	s.logger.Info(fmt.Sprintf("[SUMMARY] %s: trades %d | wins %d | losses %d | realized $%.2f | unrealized $%.2f | balance %.4f SOL (start %.4f) | open %d",
		label, stats.Trades, stats.Wins, stats.Losses, sum.RealizedPnL, sum.UnrealizedPnL,
		sum.CurrentBalance, sum.InitialBalance, sum.OpenPositions))
}

func (s *Session) solPrice() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.solUSD
}

func (s *Session) setSOLPrice(price float64) {
	s.mu.Lock()
	s.solUSD = price
	s.lastUpdated = s.now()
	s.mu.Unlock()
}

func (s *Session) persist() {
	if s.store == nil {
		return
	}
	if err := s.store.Save(s.ledger.OpenPositions()); err != nil {
		s.logger.Error("[ERROR] Failed to save positions", zap.Error(err))
	}
}

func (s *Session) publish(e events.Event) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(e); err != nil {
		s.logger.Debug("Event dropped", zap.String("type", string(e.Type())), zap.Error(err))
	}
}
