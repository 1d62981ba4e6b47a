// internal/swap/executor.go
package swap

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/rovshanmuradov/solana-sniper/internal/blockchain"
	"github.com/rovshanmuradov/solana-sniper/internal/wallet"
	"go.uber.org/zap"
)

var wrappedSOL = solana.MPK("So11111111111111111111111111111111111111112")

// Aggregator quotes routes and builds unsigned swap transactions.
type Aggregator interface {
	Quote(ctx context.Context, p QuoteParams) (*Quote, error)
	SwapTransaction(ctx context.Context, q *Quote, user solana.PublicKey, priorityFeeLamports uint64) ([]byte, error)
}

// DirectSwapper swaps against a single AMM pool.
type DirectSwapper interface {
	SwapBaseIn(ctx context.Context, pool, inputMint solana.PublicKey, amountIn uint64, slippageBps int) (solana.Signature, error)
}

// Config tunes the swap pipeline.
type Config struct {
	Simulation          bool
	SlippageBps         int
	PriorityFeeLamports uint64
	MaxAttempts         uint
	InitialBackoff      time.Duration
	MaxBackoff          time.Duration
	ConfirmTimeout      time.Duration
	DirectFallback      bool
}

// DefaultConfig returns live-mode defaults.
func DefaultConfig() Config {
	return Config{
		SlippageBps:         100,
		PriorityFeeLamports: 100_000,
		MaxAttempts:         3,
		InitialBackoff:      time.Second,
		MaxBackoff:          5 * time.Second,
		ConfirmTimeout:      30 * time.Second,
		DirectFallback:      true,
	}
}

// Executor runs QUOTE, BUILD, SIGN, SUBMIT and CONFIRM against the aggregator,
// retrying with backoff before falling back to a direct pool swap.
type Executor struct {
	cfg        Config
	aggregator Aggregator
	direct     DirectSwapper
	chain      blockchain.Client
	wallet     *wallet.Wallet
	logger     *zap.Logger
}

// NewExecutor wires the swap pipeline. In simulation only logger is required.
func NewExecutor(
	cfg Config,
	aggregator Aggregator,
	direct DirectSwapper,
	chain blockchain.Client,
	w *wallet.Wallet,
	logger *zap.Logger,
) (*Executor, error) {
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = 30 * time.Second
	}
	if !cfg.Simulation {
		if w == nil {
			return nil, ErrNoWallet
		}
		if aggregator == nil || chain == nil {
			return nil, errors.New("live swaps require an aggregator and a chain client")
		}
	}
	return &Executor{
		cfg:        cfg,
		aggregator: aggregator,
		direct:     direct,
		chain:      chain,
		wallet:     w,
		logger:     logger.Named("swap"),
	}, nil
}

// Simulation reports whether swaps are short-circuited.
func (e *Executor) Simulation() bool { return e.cfg.Simulation }

// Buy spends req.Amount SOL on req.Mint.
func (e *Executor) Buy(ctx context.Context, req Request) (Result, error) {
	if req.Amount <= 0 || math.IsNaN(req.Amount) || math.IsInf(req.Amount, 0) {
		return Result{}, ErrInvalidAmount
	}
	if e.cfg.Simulation {
		return e.simulate(Buy, req), nil
	}

	mint, err := solana.PublicKeyFromBase58(req.Mint)
	if err != nil {
		return Result{}, fmt.Errorf("invalid mint %q: %w", req.Mint, err)
	}
	lamports := uint64(math.Round(req.Amount * lamportsPerSOL))
	return e.execute(ctx, Buy, req, wrappedSOL, mint, lamports)
}

// Sell sells req.Amount tokens of req.Mint for SOL. Live sells fail closed
// when the mint decimals cannot be read and never offer more than the
// wallet's token account holds.
func (e *Executor) Sell(ctx context.Context, req Request) (Result, error) {
	if req.Amount <= 0 || math.IsNaN(req.Amount) || math.IsInf(req.Amount, 0) {
		return Result{}, ErrInvalidAmount
	}
	if e.cfg.Simulation {
		return e.simulate(Sell, req), nil
	}

	mint, err := solana.PublicKeyFromBase58(req.Mint)
	if err != nil {
		return Result{}, fmt.Errorf("invalid mint %q: %w", req.Mint, err)
	}
	decimals, err := e.chain.MintDecimals(ctx, mint)
	if err != nil {
		e.logger.Error("[SELL] Could not determine decimals", zap.String("mint", req.Mint), zap.Error(err))
		return Result{}, fmt.Errorf("%w: %v", ErrDecimalsUnavailable, err)
	}
	atomic := ToAtomic(req.Amount, decimals)
	if atomic == 0 {
		return Result{}, ErrInvalidAmount
	}

	held, err := e.tokenBalance(ctx, mint)
	switch {
	case err != nil:
		e.logger.Warn("[SELL] Could not read token balance, selling the estimate",
			zap.String("mint", req.Mint), zap.Uint64("estimate", atomic), zap.Error(err))
	case held == 0:
		return Result{}, fmt.Errorf("%w: %s", ErrNoTokenBalance, req.Mint)
	case held < atomic:
		e.logger.Info(fmt.Sprintf("[SELL] Wallet holds %d of estimated %d base units, selling the balance", held, atomic),
			zap.String("mint", req.Mint))
		atomic = held
	}
	return e.execute(ctx, Sell, req, mint, wrappedSOL, atomic)
}

// tokenBalance reads the wallet's associated token account balance in base units.
func (e *Executor) tokenBalance(ctx context.Context, mint solana.PublicKey) (uint64, error) {
	ata, err := e.wallet.GetATA(mint)
	if err != nil {
		return 0, err
	}
	res, err := e.chain.GetTokenAccountBalance(ctx, ata)
	if err != nil {
		return 0, fmt.Errorf("failed to get token balance: %w", err)
	}
	if res == nil || res.Value == nil {
		return 0, errors.New("empty token balance response")
	}
	balance, err := strconv.ParseUint(res.Value.Amount, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse token balance: %w", err)
	}
	return balance, nil
}

// ToAtomic converts a UI amount to base units, rounding down.
func ToAtomic(amount float64, decimals uint8) uint64 {
	if amount <= 0 {
		return 0
	}
	return uint64(math.Floor(amount * math.Pow10(int(decimals))))
}

func (e *Executor) simulate(dir Direction, req Request) Result {
	amountIn := uint64(math.Round(req.Amount * lamportsPerSOL))
	if dir == Sell {
		amountIn = ToAtomic(req.Amount, SimulatedDecimals)
	}
	e.logger.Info(fmt.Sprintf("[SWAP] SIMULATION: %s %s", dir, short(req.Mint)),
		zap.Float64("amount", req.Amount), zap.Uint64("amount_in", amountIn))
	return Result{
		Signature: "SIM-" + uuid.NewString(),
		Route:     RouteSimulation,
		AmountIn:  amountIn,
	}
}

func (e *Executor) execute(
	ctx context.Context,
	dir Direction,
	req Request,
	input, output solana.PublicKey,
	amount uint64,
) (Result, error) {
	start := time.Now()
	logger := e.logger.With(
		zap.String("direction", dir.String()),
		zap.String("mint", req.Mint),
		zap.Uint64("amount_in", amount))

	attempts := 0
	op := func() (solana.Signature, error) {
		attempts++
		logger.Info(fmt.Sprintf("[SWAP] Attempting Jupiter %s for %s (attempt %d/%d)",
			dir, short(req.Mint), attempts, e.cfg.MaxAttempts))
		return e.aggregatorAttempt(ctx, input, output, amount)
	}
	notify := func(err error, d time.Duration) {
		logger.Warn("[SWAP] Jupiter attempt failed, retrying", zap.Error(err), zap.Duration("backoff", d))
	}

	sig, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(e.newBackOff()),
		backoff.WithMaxTries(e.cfg.MaxAttempts),
		backoff.WithNotify(notify))
	if err == nil {
		logger.Info("[SWAP] Jupiter swap confirmed", zap.String("signature", sig.String()))
		return Result{
			Signature: sig.String(),
			Route:     RouteAggregator,
			Attempts:  attempts,
			AmountIn:  amount,
			Duration:  time.Since(start),
		}, nil
	}
	if ctx.Err() != nil {
		return Result{Attempts: attempts}, ctx.Err()
	}

	logger.Warn(fmt.Sprintf("[SWAP] Jupiter %s failed after %d attempts for %s, falling back to direct Raydium swap",
		dir, attempts, short(req.Mint)), zap.Error(err))

	sig, directErr := e.directSwap(ctx, req, input, amount)
	if directErr != nil {
		logger.Error("[SWAP] Direct swap failed", zap.Error(directErr))
		return Result{Attempts: attempts, AmountIn: amount}, fmt.Errorf("aggregator: %w; direct: %w", err, directErr)
	}
	logger.Info("[SWAP] Direct swap confirmed", zap.String("signature", sig.String()))
	return Result{
		Signature: sig.String(),
		Route:     RouteDirect,
		Attempts:  attempts,
		AmountIn:  amount,
		Duration:  time.Since(start),
	}, nil
}

// aggregatorAttempt is one QUOTE through CONFIRM cycle.
func (e *Executor) aggregatorAttempt(ctx context.Context, input, output solana.PublicKey, amount uint64) (solana.Signature, error) {
	quote, err := e.aggregator.Quote(ctx, QuoteParams{
		InputMint:   input.String(),
		OutputMint:  output.String(),
		Amount:      amount,
		SlippageBps: e.cfg.SlippageBps,
	})
	if err != nil {
		return solana.Signature{}, err
	}

	raw, err := e.aggregator.SwapTransaction(ctx, quote, e.wallet.PublicKey, e.cfg.PriorityFeeLamports)
	if err != nil {
		return solana.Signature{}, err
	}

	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to decode swap transaction: %w", err)
	}
	if _, err := e.wallet.SignPartial(tx); err != nil {
		if errors.Is(err, wallet.ErrSignerNotRequired) {
			return solana.Signature{}, backoff.Permanent(err)
		}
		return solana.Signature{}, fmt.Errorf("failed to sign swap transaction: %w", err)
	}
	signed, err := tx.MarshalBinary()
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to serialize signed transaction: %w", err)
	}

	sig, err := e.chain.SendRawTransaction(ctx, signed)
	if err != nil {
		return solana.Signature{}, err
	}
	if sig.IsZero() {
		return solana.Signature{}, blockchain.ErrEmptySignature
	}
	e.logger.Info("[SWAP] Submitted transaction, awaiting confirmation", zap.String("signature", sig.String()))

	if err := e.chain.WaitForConfirmation(ctx, sig, e.cfg.ConfirmTimeout); err != nil {
		return solana.Signature{}, err
	}
	return sig, nil
}

func (e *Executor) directSwap(ctx context.Context, req Request, input solana.PublicKey, amount uint64) (solana.Signature, error) {
	if !e.cfg.DirectFallback || e.direct == nil {
		return solana.Signature{}, ErrFallbackDisabled
	}
	if req.Pool == "" {
		return solana.Signature{}, ErrNoPool
	}
	pool, err := solana.PublicKeyFromBase58(req.Pool)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("invalid pool %q: %w", req.Pool, err)
	}
	return e.direct.SwapBaseIn(ctx, pool, input, amount, e.cfg.SlippageBps)
}

func (e *Executor) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if e.cfg.InitialBackoff > 0 {
		b.InitialInterval = e.cfg.InitialBackoff
	}
	if e.cfg.MaxBackoff > 0 {
		b.MaxInterval = e.cfg.MaxBackoff
	}
	return b
}

func short(mint string) string {
	if len(mint) <= 8 {
		return mint
	}
	return mint[:8] + "..."
}
