package config

import (
	"path/filepath"
	"time"

	"github.com/rovshanmuradov/solana-sniper/internal/dex/raydium"
	"github.com/rovshanmuradov/solana-sniper/internal/filter"
	"github.com/rovshanmuradov/solana-sniper/internal/marketdata"
	"github.com/rovshanmuradov/solana-sniper/internal/ratelimit"
	"github.com/rovshanmuradov/solana-sniper/internal/session"
	"github.com/rovshanmuradov/solana-sniper/internal/swap"
)

const httpTimeout = 10 * time.Second

// SessionSettings maps the trading and filter sections onto session settings.
func (c *Config) SessionSettings() session.Settings {
	t := c.Trading
	return session.Settings{
		Simulation:            c.Simulation,
		StartingUSD:           t.StartingUSD,
		PositionSizeUSD:       t.PositionSizeUSD,
		BuyFee:                t.BuyFee,
		SellFee:               t.SellFee,
		TakeProfitPct:         t.TakeProfitPct,
		StopLossPct:           t.StopLossPct,
		Duration:              t.Duration,
		DexPollInterval:       t.DexPollInterval,
		PriceCheckInterval:    t.PriceCheckInterval,
		SummaryInterval:       t.SummaryInterval,
		MaxTokensPerPoll:      t.MaxTokensPerPoll,
		MaxTokenAge:           t.MaxTokenAge,
		MaxSeenTokens:         t.MaxSeenTokens,
		MaxTradesHistory:      t.MaxTradesHistory,
		MaxLogLines:           t.MaxLogLines,
		DisableInitialFilters: t.DisableInitialFilters,
		Filter:                c.FilterConfig(),
	}
}

func (c *Config) FilterConfig() filter.Config {
	f := c.Filters
	return filter.Config{
		MaxPrice:             f.MaxPrice,
		MinLiquidity:         f.MinLiquidity,
		MinVolume5m:          f.MinVolume5m,
		MinBuys5m:            f.MinBuys5m,
		MinBuySellRatio:      f.MinBuySellRatio,
		MinPairAge:           f.MinPairAge,
		MaxPairAge:           f.MaxPairAge,
		RequireSocials:       f.RequireSocials,
		MinPercentBurned:     f.MinPercentBurned,
		RequireImmutable:     f.RequireImmutable,
		MaxPercentTopHolders: f.MaxPercentTopHolders,
		BlockRiskyWallets:    f.BlockRiskyWallets,
		RiskyWallets:         append([]string(nil), f.RiskyWallets...),
		TopHolders:           f.TopHolders,
		FailClosed:           f.FailClosed,
	}
}

func (c *Config) SwapConfig() swap.Config {
	s := c.Swap
	return swap.Config{
		Simulation:          c.Simulation,
		SlippageBps:         s.SlippageBps,
		PriorityFeeLamports: s.PriorityFeeLamports,
		MaxAttempts:         uint(s.MaxAttempts),
		InitialBackoff:      s.InitialBackoff,
		MaxBackoff:          s.MaxBackoff,
		ConfirmTimeout:      s.ConfirmTimeout,
		DirectFallback:      s.DirectFallback,
	}
}

func (c *Config) RaydiumConfig() raydium.Config {
	return raydium.Config{
		ComputeUnitPrice: c.Swap.ComputeUnitPrice,
		ComputeUnitLimit: c.Swap.ComputeUnitLimit,
		ConfirmTimeout:   c.Swap.ConfirmTimeout,
	}
}

func (c *Config) MarketDataConfig() marketdata.Config {
	return marketdata.Config{
		DexScreenerURL: c.DexScreenerURL,
		CoinGeckoURL:   c.CoinGeckoURL,
		Timeout:        httpTimeout,
	}
}

// Limiters builds one limiter per external API class.
func (c *Config) Limiters(opts ...ratelimit.Option) ratelimit.Set {
	r := c.RateLimits
	return ratelimit.NewSet(r.DexScreener, r.CoinGecko, r.Jupiter, opts...)
}

// PositionsPath is the restart cache for open positions.
func (c *Config) PositionsPath() string {
	return filepath.Join(c.DataDir, "positions.json")
}

// TradesPath is the CSV trade journal.
func (c *Config) TradesPath() string {
	return filepath.Join(c.DataDir, "trades.csv")
}

// ApplySettings copies session settings back so Save persists runtime edits.
func (c *Config) ApplySettings(s session.Settings) {
	c.Simulation = s.Simulation
	c.Trading = Trading{
		StartingUSD:           s.StartingUSD,
		PositionSizeUSD:       s.PositionSizeUSD,
		BuyFee:                s.BuyFee,
		SellFee:               s.SellFee,
		TakeProfitPct:         s.TakeProfitPct,
		StopLossPct:           s.StopLossPct,
		Duration:              s.Duration,
		DexPollInterval:       s.DexPollInterval,
		PriceCheckInterval:    s.PriceCheckInterval,
		SummaryInterval:       s.SummaryInterval,
		MaxTokensPerPoll:      s.MaxTokensPerPoll,
		MaxTokenAge:           s.MaxTokenAge,
		MaxSeenTokens:         s.MaxSeenTokens,
		MaxTradesHistory:      s.MaxTradesHistory,
		MaxLogLines:           s.MaxLogLines,
		DisableInitialFilters: s.DisableInitialFilters,
	}
	f := s.Filter
	c.Filters = Filters{
		MaxPrice:             f.MaxPrice,
		MinLiquidity:         f.MinLiquidity,
		MinVolume5m:          f.MinVolume5m,
		MinBuys5m:            f.MinBuys5m,
		MinBuySellRatio:      f.MinBuySellRatio,
		MinPairAge:           f.MinPairAge,
		MaxPairAge:           f.MaxPairAge,
		RequireSocials:       f.RequireSocials,
		MinPercentBurned:     f.MinPercentBurned,
		RequireImmutable:     f.RequireImmutable,
		MaxPercentTopHolders: f.MaxPercentTopHolders,
		BlockRiskyWallets:    f.BlockRiskyWallets,
		RiskyWallets:         append([]string(nil), f.RiskyWallets...),
		TopHolders:           f.TopHolders,
		FailClosed:           f.FailClosed,
	}
}
