// =================================
// File: internal/config/config.go
// =================================
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/rovshanmuradov/solana-sniper/internal/license"
	"github.com/spf13/viper"
)

const EnvPrefix = "SNIPER"

type Config struct {
	License      string   `mapstructure:"license"`
	RPCList      []string `mapstructure:"rpc_list"`
	WebSocketURL string   `mapstructure:"websocket_url"`
	PostgresURL  string   `mapstructure:"postgres_url"`
	WalletPath   string   `mapstructure:"wallet_path"`
	Simulation   bool     `mapstructure:"simulation"`
	DebugLogging bool     `mapstructure:"debug_logging"`
	LogFile      string   `mapstructure:"log_file"`
	DataDir      string   `mapstructure:"data_dir"`

	DexScreenerURL string `mapstructure:"dexscreener_url"`
	CoinGeckoURL   string `mapstructure:"coingecko_url"`
	JupiterURL     string `mapstructure:"jupiter_url"`

	Keygen     license.Config `mapstructure:"keygen"`
	RateLimits RateLimits     `mapstructure:"rate_limits"`
	Trading    Trading        `mapstructure:"trading"`
	Filters    Filters        `mapstructure:"filters"`
	Swap       Swap           `mapstructure:"swap"`
}

// RateLimits are calls per second for each external API class.
type RateLimits struct {
	DexScreener float64 `mapstructure:"dexscreener"`
	CoinGecko   float64 `mapstructure:"coingecko"`
	Jupiter     float64 `mapstructure:"jupiter"`
}

type Trading struct {
	StartingUSD           float64       `mapstructure:"starting_usd"`
	PositionSizeUSD       float64       `mapstructure:"position_size_usd"`
	BuyFee                float64       `mapstructure:"buy_fee"`
	SellFee               float64       `mapstructure:"sell_fee"`
	TakeProfitPct         float64       `mapstructure:"take_profit_pct"`
	StopLossPct           float64       `mapstructure:"stop_loss_pct"`
	Duration              time.Duration `mapstructure:"duration"`
	DexPollInterval       time.Duration `mapstructure:"dex_poll_interval"`
	PriceCheckInterval    time.Duration `mapstructure:"price_check_interval"`
	SummaryInterval       time.Duration `mapstructure:"summary_interval"`
	MaxTokensPerPoll      int           `mapstructure:"max_tokens_per_poll"`
	MaxTokenAge           time.Duration `mapstructure:"max_token_age"`
	MaxSeenTokens         int           `mapstructure:"max_seen_tokens"`
	MaxTradesHistory      int           `mapstructure:"max_trades_history"`
	MaxLogLines           int           `mapstructure:"max_log_lines"`
	DisableInitialFilters bool          `mapstructure:"disable_initial_filters"`
}

type Filters struct {
	MaxPrice             float64       `mapstructure:"max_price"`
	MinLiquidity         float64       `mapstructure:"min_liquidity"`
	MinVolume5m          float64       `mapstructure:"min_volume_5m"`
	MinBuys5m            int           `mapstructure:"min_buys_5m"`
	MinBuySellRatio      float64       `mapstructure:"min_buy_sell_ratio"`
	MinPairAge           time.Duration `mapstructure:"min_pair_age"`
	MaxPairAge           time.Duration `mapstructure:"max_pair_age"`
	RequireSocials       bool          `mapstructure:"require_socials"`
	MinPercentBurned     float64       `mapstructure:"min_percent_burned"`
	RequireImmutable     bool          `mapstructure:"require_immutable"`
	MaxPercentTopHolders float64       `mapstructure:"max_percent_top_holders"`
	BlockRiskyWallets    bool          `mapstructure:"block_risky_wallets"`
	RiskyWallets         []string      `mapstructure:"risky_wallets"`
	TopHolders           int           `mapstructure:"top_holders"`
	FailClosed           bool          `mapstructure:"fail_closed"`
}

type Swap struct {
	SlippageBps         int           `mapstructure:"slippage_bps"`
	PriorityFeeLamports uint64        `mapstructure:"priority_fee_lamports"`
	MaxAttempts         int           `mapstructure:"max_attempts"`
	InitialBackoff      time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff          time.Duration `mapstructure:"max_backoff"`
	ConfirmTimeout      time.Duration `mapstructure:"confirm_timeout"`
	DirectFallback      bool          `mapstructure:"direct_fallback"`
	ComputeUnitPrice    uint64        `mapstructure:"compute_unit_price"`
	ComputeUnitLimit    uint32        `mapstructure:"compute_unit_limit"`
}

const (
	DefaultDexScreenerURL = "https://api.dexscreener.com"
	DefaultCoinGeckoURL   = "https://api.coingecko.com/api/v3"
	DefaultJupiterURL     = "https://public.jupiterapi.com"
	DefaultLogFile        = "logs/sniper.log"
	DefaultDataDir        = "data"
)

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"simulation":      true,
		"log_file":        DefaultLogFile,
		"data_dir":        DefaultDataDir,
		"dexscreener_url": DefaultDexScreenerURL,
		"coingecko_url":   DefaultCoinGeckoURL,
		"jupiter_url":     DefaultJupiterURL,
		"license":         "",
		"rpc_list":        []string{},
		"websocket_url":   "",
		"postgres_url":    "",
		"wallet_path":     "",
		"debug_logging":   false,

		"keygen.account_id":    "",
		"keygen.product_id":    "",
		"keygen.product_token": "",

		"rate_limits.dexscreener": 1.0,
		"rate_limits.coingecko":   1.0,
		"rate_limits.jupiter":     10.0,

		"trading.starting_usd":            100.0,
		"trading.position_size_usd":       20.0,
		"trading.buy_fee":                 0.005,
		"trading.sell_fee":                0.005,
		"trading.take_profit_pct":         30.0,
		"trading.stop_loss_pct":           15.0,
		"trading.duration":                2 * time.Hour,
		"trading.dex_poll_interval":       time.Second,
		"trading.price_check_interval":    15 * time.Second,
		"trading.summary_interval":        300 * time.Second,
		"trading.max_tokens_per_poll":     500,
		"trading.max_token_age":           1800 * time.Second,
		"trading.max_seen_tokens":         10000,
		"trading.max_trades_history":      1000,
		"trading.max_log_lines":           5000,
		"trading.disable_initial_filters": false,

		"filters.max_price":               10.0,
		"filters.min_liquidity":           100.0,
		"filters.min_volume_5m":           200.0,
		"filters.min_buys_5m":             20,
		"filters.min_buy_sell_ratio":      0.5,
		"filters.min_pair_age":            2 * time.Second,
		"filters.max_pair_age":            1800 * time.Second,
		"filters.require_socials":         false,
		"filters.min_percent_burned":      0.0,
		"filters.require_immutable":       false,
		"filters.max_percent_top_holders": 100.0,
		"filters.block_risky_wallets":     false,
		"filters.risky_wallets":           []string{},
		"filters.top_holders":             5,
		"filters.fail_closed":             true,

		"swap.slippage_bps":          100,
		"swap.priority_fee_lamports": 100000,
		"swap.max_attempts":          3,
		"swap.initial_backoff":       time.Second,
		"swap.max_backoff":           5 * time.Second,
		"swap.confirm_timeout":       30 * time.Second,
		"swap.direct_fallback":       true,
		"swap.compute_unit_price":    1000000,
		"swap.compute_unit_limit":    200000,
	}
}

func newViper() *viper.Viper {
	v := viper.New()
	for key, value := range defaults() {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Default returns the built-in configuration with environment overrides applied.
func Default() (*Config, error) {
	return decode(newViper())
}

// LoadDotEnv copies KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. A missing file is fine.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// LoadConfig reads path (JSON or YAML by extension). A missing file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	loadEnvironmentVariables(v, &cfg)
	return &cfg, nil
}

// Save writes cfg to path; the format follows the file extension.
func Save(path string, cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	v := viper.New()
	for key, value := range cfg.flatten() {
		v.Set(key, value)
	}
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config %s: %w", path, err)
	}
	return nil
}

func (c *Config) flatten() map[string]interface{} {
	t, f, s := c.Trading, c.Filters, c.Swap
	return map[string]interface{}{
		"license":         c.License,
		"rpc_list":        c.RPCList,
		"websocket_url":   c.WebSocketURL,
		"postgres_url":    c.PostgresURL,
		"wallet_path":     c.WalletPath,
		"simulation":      c.Simulation,
		"debug_logging":   c.DebugLogging,
		"log_file":        c.LogFile,
		"data_dir":        c.DataDir,
		"dexscreener_url": c.DexScreenerURL,
		"coingecko_url":   c.CoinGeckoURL,
		"jupiter_url":     c.JupiterURL,

		"keygen.account_id":    c.Keygen.AccountID,
		"keygen.product_id":    c.Keygen.ProductID,
		"keygen.product_token": c.Keygen.ProductToken,

		"rate_limits.dexscreener": c.RateLimits.DexScreener,
		"rate_limits.coingecko":   c.RateLimits.CoinGecko,
		"rate_limits.jupiter":     c.RateLimits.Jupiter,

		"trading.starting_usd":            t.StartingUSD,
		"trading.position_size_usd":       t.PositionSizeUSD,
		"trading.buy_fee":                 t.BuyFee,
		"trading.sell_fee":                t.SellFee,
		"trading.take_profit_pct":         t.TakeProfitPct,
		"trading.stop_loss_pct":           t.StopLossPct,
		"trading.duration":                t.Duration.String(),
		"trading.dex_poll_interval":       t.DexPollInterval.String(),
		"trading.price_check_interval":    t.PriceCheckInterval.String(),
		"trading.summary_interval":        t.SummaryInterval.String(),
		"trading.max_tokens_per_poll":     t.MaxTokensPerPoll,
		"trading.max_token_age":           t.MaxTokenAge.String(),
		"trading.max_seen_tokens":         t.MaxSeenTokens,
		"trading.max_trades_history":      t.MaxTradesHistory,
		"trading.max_log_lines":           t.MaxLogLines,
		"trading.disable_initial_filters": t.DisableInitialFilters,

		"filters.max_price":               f.MaxPrice,
		"filters.min_liquidity":           f.MinLiquidity,
		"filters.min_volume_5m":           f.MinVolume5m,
		"filters.min_buys_5m":             f.MinBuys5m,
		"filters.min_buy_sell_ratio":      f.MinBuySellRatio,
		"filters.min_pair_age":            f.MinPairAge.String(),
		"filters.max_pair_age":            f.MaxPairAge.String(),
		"filters.require_socials":         f.RequireSocials,
		"filters.min_percent_burned":      f.MinPercentBurned,
		"filters.require_immutable":       f.RequireImmutable,
		"filters.max_percent_top_holders": f.MaxPercentTopHolders,
		"filters.block_risky_wallets":     f.BlockRiskyWallets,
		"filters.risky_wallets":           f.RiskyWallets,
		"filters.top_holders":             f.TopHolders,
		"filters.fail_closed":             f.FailClosed,

		"swap.slippage_bps":          s.SlippageBps,
		"swap.priority_fee_lamports": s.PriorityFeeLamports,
		"swap.max_attempts":          s.MaxAttempts,
		"swap.initial_backoff":       s.InitialBackoff.String(),
		"swap.max_backoff":           s.MaxBackoff.String(),
		"swap.confirm_timeout":       s.ConfirmTimeout.String(),
		"swap.direct_fallback":       s.DirectFallback,
		"swap.compute_unit_price":    s.ComputeUnitPrice,
		"swap.compute_unit_limit":    s.ComputeUnitLimit,
	}
}

// Validate rejects malformed URLs, intervals and percentages.
func (c *Config) Validate() error {
	if !c.Simulation {
		if len(c.RPCList) == 0 {
			return errors.New("rpc_list is empty")
		}
		if c.WalletPath == "" {
			return errors.New("wallet_path is required in live mode")
		}
	}
	for _, rpcURL := range c.RPCList {
		if err := validateURLWithCache(rpcURL, "http"); err != nil {
			return fmt.Errorf("invalid RPC URL %q: %w", rpcURL, err)
		}
	}
	if c.WebSocketURL != "" {
		if err := validateURLWithCache(c.WebSocketURL, "ws"); err != nil {
			return fmt.Errorf("invalid WebSocket URL: %w", err)
		}
	}
	for name, u := range map[string]string{
		"dexscreener_url": c.DexScreenerURL,
		"coingecko_url":   c.CoinGeckoURL,
		"jupiter_url":     c.JupiterURL,
	} {
		if err := validateURLWithCache(u, "http"); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}
	if c.PostgresURL != "" {
		if err := validateURLWithCache(c.PostgresURL, "postgres"); err != nil {
			return fmt.Errorf("invalid postgres_url: %w", err)
		}
	}
	if c.RateLimits.DexScreener <= 0 || c.RateLimits.CoinGecko <= 0 || c.RateLimits.Jupiter <= 0 {
		return errors.New("rate limits must be positive")
	}
	if err := validateTrading(&c.Trading); err != nil {
		return err
	}
	if err := validateFilters(&c.Filters); err != nil {
		return err
	}
	return validateSwap(&c.Swap)
}

func validateTrading(t *Trading) error {
	switch {
	case t.StartingUSD <= 0:
		return errors.New("invalid trading.starting_usd")
	case t.PositionSizeUSD <= 0:
		return errors.New("invalid trading.position_size_usd")
	case t.BuyFee < 0 || t.BuyFee >= 1:
		return errors.New("trading.buy_fee must be in [0, 1)")
	case t.SellFee < 0 || t.SellFee >= 1:
		return errors.New("trading.sell_fee must be in [0, 1)")
	case t.TakeProfitPct <= 0:
		return errors.New("invalid trading.take_profit_pct")
	case t.StopLossPct <= 0 || t.StopLossPct >= 100:
		return errors.New("trading.stop_loss_pct must be in (0, 100)")
	case t.Duration <= 0:
		return errors.New("invalid trading.duration")
	case t.DexPollInterval <= 0 || t.PriceCheckInterval <= 0 || t.SummaryInterval <= 0:
		return errors.New("trading intervals must be positive")
	case t.MaxTokensPerPoll <= 0 || t.MaxSeenTokens <= 0 || t.MaxTradesHistory <= 0 || t.MaxLogLines <= 0:
		return errors.New("trading caps must be positive")
	case t.MaxTokenAge < 0:
		return errors.New("invalid trading.max_token_age")
	}
	return nil
}

func validateFilters(f *Filters) error {
	switch {
	case f.MaxPrice <= 0:
		return errors.New("invalid filters.max_price")
	case f.MinLiquidity < 0 || f.MinVolume5m < 0 || f.MinBuys5m < 0 || f.MinBuySellRatio < 0:
		return errors.New("filter minimums must not be negative")
	case f.MinPairAge < 0 || f.MaxPairAge < f.MinPairAge:
		return errors.New("invalid filters pair age window")
	case f.MinPercentBurned < 0 || f.MinPercentBurned > 100:
		return errors.New("filters.min_percent_burned must be in [0, 100]")
	case f.MaxPercentTopHolders < 0 || f.MaxPercentTopHolders > 100:
		return errors.New("filters.max_percent_top_holders must be in [0, 100]")
	case f.TopHolders < 0:
		return errors.New("invalid filters.top_holders")
	}
	return nil
}

func validateSwap(s *Swap) error {
	switch {
	case s.SlippageBps <= 0 || s.SlippageBps > 10_000:
		return errors.New("swap.slippage_bps must be in (0, 10000]")
	case s.MaxAttempts <= 0:
		return errors.New("invalid swap.max_attempts")
	case s.ConfirmTimeout <= 0:
		return errors.New("invalid swap.confirm_timeout")
	case s.InitialBackoff < 0 || s.MaxBackoff < 0:
		return errors.New("swap backoff must not be negative")
	}
	return nil
}

var urlCache sync.Map

func validateURLWithCache(rawURL string, protocol string) error {
	if _, ok := urlCache.Load(rawURL); ok {
		return nil
	}
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return errors.New("invalid URL format")
	}
	if !strings.HasPrefix(parsed.Scheme, protocol) {
		return errors.New("invalid URL protocol")
	}
	urlCache.Store(rawURL, parsed)
	return nil
}

// loadEnvironmentVariables handles values viper cannot split on its own.
func loadEnvironmentVariables(v *viper.Viper, cfg *Config) {
	if list := splitList(v.GetString("RPC_LIST")); len(list) > 0 {
		cfg.RPCList = list
	}
	if list := splitList(v.GetString("FILTERS_RISKY_WALLETS")); len(list) > 0 {
		cfg.Filters.RiskyWallets = list
	}
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if clean := strings.TrimSpace(item); clean != "" {
			out = append(out, clean)
		}
	}
	return out
}
