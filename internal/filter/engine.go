// internal/filter/engine.go
package filter

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rovshanmuradov/solana-sniper/internal/marketdata"
	"go.uber.org/zap"
)

// Check numbers, in evaluation order.
const (
	CheckPrice = iota + 1
	CheckMaxPrice
	CheckLiquidity
	CheckVolume
	CheckBuys
	CheckBuySellRatio
	CheckPairAge
	CheckExtended
)

// Failure reasons.
const (
	ReasonMissingPrice   = "missing or zero price"
	ReasonPriceTooHigh   = "price exceeds max"
	ReasonLowLiquidity   = "liquidity below min"
	ReasonLowVolume      = "volume below min"
	ReasonFewBuys        = "buys below min"
	ReasonLowRatio       = "buy/sell ratio below min"
	ReasonPairTooNew     = "pair too new"
	ReasonPairTooOld     = "pair too old"
	ReasonNoSocials      = "no socials"
	ReasonLowBurn        = "burned percent below min"
	ReasonMutable        = "metadata is mutable"
	ReasonTopHolders     = "top holders percent above max"
	ReasonRiskyWallet    = "risky wallet in top holders"
	ReasonProviderFailed = "holder info unavailable"
)

// Config holds the filter thresholds.
type Config struct {
	MaxPrice        float64
	MinLiquidity    float64
	MinVolume5m     float64
	MinBuys5m       int
	MinBuySellRatio float64
	MinPairAge      time.Duration
	MaxPairAge      time.Duration

	RequireSocials       bool
	MinPercentBurned     float64
	RequireImmutable     bool
	MaxPercentTopHolders float64
	BlockRiskyWallets    bool
	RiskyWallets         []string
	TopHolders           int

	// FailClosed makes provider errors fail the extended check.
	FailClosed bool
}

// DefaultConfig returns the stock thresholds.
func DefaultConfig() Config {
	return Config{
		MaxPrice:             10,
		MinLiquidity:         100,
		MinVolume5m:          200,
		MinBuys5m:            20,
		MinBuySellRatio:      0.5,
		MinPairAge:           2 * time.Second,
		MaxPairAge:           1800 * time.Second,
		MaxPercentTopHolders: 100,
		TopHolders:           5,
		FailClosed:           true,
	}
}

// WithoutInitialChecks returns a copy where checks 1-7 admit every priced token.
func (c Config) WithoutInitialChecks() Config {
	c.MaxPrice = math.Inf(1)
	c.MinLiquidity = 0
	c.MinVolume5m = 0
	c.MinBuys5m = 0
	c.MinBuySellRatio = 0
	c.MinPairAge = 0
	c.MaxPairAge = time.Duration(math.MaxInt64)
	return c
}

func (c Config) extendedEnabled() bool {
	return c.RequireSocials || c.MinPercentBurned > 0 || c.RequireImmutable ||
		(c.MaxPercentTopHolders > 0 && c.MaxPercentTopHolders < 100) || c.BlockRiskyWallets
}

// Result is the outcome of an evaluation.
type Result struct {
	Passed bool
	Check  int
	Reason string
	Detail string
}

func pass() Result { return Result{Passed: true} }

func fail(check int, reason, detail string) Result {
	return Result{Check: check, Reason: reason, Detail: detail}
}

// String renders the result for logs.
func (r Result) String() string {
	if r.Passed {
		return "pass"
	}
	if r.Detail == "" {
		return r.Reason
	}
	return r.Reason + ": " + r.Detail
}

// Engine evaluates token snapshots against a Config.
type Engine struct {
	holders HolderInfo
	logger  *zap.Logger
}

// NewEngine creates an engine. holders may be nil when extended checks are unused.
func NewEngine(holders HolderInfo, logger *zap.Logger) *Engine {
	return &Engine{
		holders: holders,
		logger:  logger.Named("filter"),
	}
}

// Evaluate runs the checks in order and stops at the first failure.
func (e *Engine) Evaluate(ctx context.Context, snap *marketdata.TokenSnapshot, cfg Config, now time.Time) Result {
	if res := EvaluateBasic(snap, cfg, now); !res.Passed {
		return res
	}
	if !cfg.extendedEnabled() {
		return pass()
	}
	return e.evaluateExtended(ctx, snap, cfg)
}

// EvaluateBasic runs checks 1-7 only. It performs no I/O.
func EvaluateBasic(snap *marketdata.TokenSnapshot, cfg Config, now time.Time) Result {
	if snap == nil || snap.PriceUSD <= 0 || math.IsNaN(snap.PriceUSD) {
		return fail(CheckPrice, ReasonMissingPrice, "")
	}
	if snap.PriceUSD > cfg.MaxPrice {
		return fail(CheckMaxPrice, ReasonPriceTooHigh,
			fmt.Sprintf("$%.8f > $%.8f", snap.PriceUSD, cfg.MaxPrice))
	}
	if snap.LiquidityUSD < cfg.MinLiquidity {
		return fail(CheckLiquidity, ReasonLowLiquidity,
			fmt.Sprintf("$%.2f < $%.2f", snap.LiquidityUSD, cfg.MinLiquidity))
	}
	if snap.Volume5mUSD < cfg.MinVolume5m {
		return fail(CheckVolume, ReasonLowVolume,
			fmt.Sprintf("$%.2f < $%.2f", snap.Volume5mUSD, cfg.MinVolume5m))
	}
	if snap.Buys5m < cfg.MinBuys5m {
		return fail(CheckBuys, ReasonFewBuys, fmt.Sprintf("%d < %d", snap.Buys5m, cfg.MinBuys5m))
	}
	if snap.Sells5m > 0 {
		ratio := float64(snap.Buys5m) / float64(snap.Sells5m)
		if ratio < cfg.MinBuySellRatio {
			return fail(CheckBuySellRatio, ReasonLowRatio,
				fmt.Sprintf("%.2f < %.2f", ratio, cfg.MinBuySellRatio))
		}
	}
	age := snap.PairAge(now)
	if age < cfg.MinPairAge {
		return fail(CheckPairAge, ReasonPairTooNew, fmt.Sprintf("%s < %s", age.Round(time.Second), cfg.MinPairAge))
	}
	if age > cfg.MaxPairAge {
		return fail(CheckPairAge, ReasonPairTooOld, fmt.Sprintf("%s > %s", age.Round(time.Second), cfg.MaxPairAge))
	}
	return pass()
}

func (e *Engine) evaluateExtended(ctx context.Context, snap *marketdata.TokenSnapshot, cfg Config) Result {
	if cfg.RequireSocials && len(snap.Socials) == 0 {
		return fail(CheckExtended, ReasonNoSocials, "")
	}

	needHolders := cfg.MinPercentBurned > 0 ||
		(cfg.MaxPercentTopHolders > 0 && cfg.MaxPercentTopHolders < 100) ||
		cfg.BlockRiskyWallets
	if !needHolders && !cfg.RequireImmutable {
		return pass()
	}
	if e.holders == nil {
		return e.providerFailure(cfg, fmt.Errorf("no holder info provider"))
	}

	if needHolders {
		holders, err := e.holders.TopHolders(ctx, snap.Mint, cfg.topN())
		if err != nil {
			if res, stop := e.checkProviderErr(cfg, snap, err); stop {
				return res
			}
		} else if res := checkHolders(snap, holders, cfg); !res.Passed {
			return res
		}
	}

	if cfg.RequireImmutable {
		mutable, err := e.holders.IsMutable(ctx, snap.Mint)
		if err != nil {
			if res, stop := e.checkProviderErr(cfg, snap, err); stop {
				return res
			}
		} else if mutable {
			return fail(CheckExtended, ReasonMutable, "")
		}
	}
	return pass()
}

func (e *Engine) checkProviderErr(cfg Config, snap *marketdata.TokenSnapshot, err error) (Result, bool) {
	e.logger.Warn("Holder info provider error",
		zap.String("mint", snap.Mint),
		zap.Bool("fail_closed", cfg.FailClosed),
		zap.Error(err))
	if cfg.FailClosed {
		return fail(CheckExtended, ReasonProviderFailed, err.Error()), true
	}
	return Result{}, false
}

func (e *Engine) providerFailure(cfg Config, err error) Result {
	if cfg.FailClosed {
		return fail(CheckExtended, ReasonProviderFailed, err.Error())
	}
	return pass()
}

func (c Config) topN() int {
	if c.TopHolders <= 0 {
		return 5
	}
	return c.TopHolders
}

func checkHolders(snap *marketdata.TokenSnapshot, holders Holders, cfg Config) Result {
	supply := snap.TotalSupply
	if holders.Supply > 0 {
		supply = holders.Supply
	}

	if cfg.MinPercentBurned > 0 {
		burned := BurnedPercent(holders.Accounts, supply)
		if burned < cfg.MinPercentBurned {
			return fail(CheckExtended, ReasonLowBurn, fmt.Sprintf("%.2f%% < %.2f%%", burned, cfg.MinPercentBurned))
		}
	}
	if cfg.MaxPercentTopHolders > 0 && cfg.MaxPercentTopHolders < 100 {
		top := TopHoldersPercent(holders.Accounts, supply, cfg.topN())
		if top > cfg.MaxPercentTopHolders {
			return fail(CheckExtended, ReasonTopHolders, fmt.Sprintf("%.2f%% > %.2f%%", top, cfg.MaxPercentTopHolders))
		}
	}
	if cfg.BlockRiskyWallets {
		if owner, ok := HasRiskyWallet(holders.Accounts, cfg.RiskyWallets); ok {
			return fail(CheckExtended, ReasonRiskyWallet, owner)
		}
	}
	return pass()
}
