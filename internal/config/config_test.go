package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rovshanmuradov/solana-sniper/internal/filter"
	"github.com/rovshanmuradov/solana-sniper/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)

	assert.True(t, cfg.Simulation)
	assert.Equal(t, 100.0, cfg.Trading.StartingUSD)
	assert.Equal(t, 20.0, cfg.Trading.PositionSizeUSD)
	assert.Equal(t, 0.005, cfg.Trading.BuyFee)
	assert.Equal(t, 2*time.Hour, cfg.Trading.Duration)
	assert.Equal(t, 15*time.Second, cfg.Trading.PriceCheckInterval)
	assert.Equal(t, 300*time.Second, cfg.Trading.SummaryInterval)
	assert.Equal(t, 10000, cfg.Trading.MaxSeenTokens)
	assert.Equal(t, 2*time.Second, cfg.Filters.MinPairAge)
	assert.Equal(t, 20, cfg.Filters.MinBuys5m)
	assert.True(t, cfg.Filters.FailClosed)
	assert.Equal(t, 100, cfg.Swap.SlippageBps)
	assert.Equal(t, uint32(200000), cfg.Swap.ComputeUnitLimit)
	assert.Equal(t, 10.0, cfg.RateLimits.Jupiter)
	assert.Equal(t, DefaultJupiterURL, cfg.JupiterURL)
}

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"simulation": false,
		"wallet_path": "wallet.json",
		"rpc_list": ["https://rpc.example.com"],
		"trading": {"position_size_usd": 50, "take_profit_pct": 40, "duration": "30m"},
		"filters": {"max_price": 1, "min_pair_age": "5s"}
	}`), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.False(t, cfg.Simulation)
	assert.Equal(t, []string{"https://rpc.example.com"}, cfg.RPCList)
	assert.Equal(t, 50.0, cfg.Trading.PositionSizeUSD)
	assert.Equal(t, 40.0, cfg.Trading.TakeProfitPct)
	assert.Equal(t, 30*time.Minute, cfg.Trading.Duration)
	assert.Equal(t, 15.0, cfg.Trading.StopLossPct)
	assert.Equal(t, 1.0, cfg.Filters.MaxPrice)
	assert.Equal(t, 5*time.Second, cfg.Filters.MinPairAge)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("SNIPER_TRADING_POSITION_SIZE_USD", "35")
	t.Setenv("SNIPER_RPC_LIST", " https://a.example.com , https://b.example.com ,")
	t.Setenv("SNIPER_FILTERS_RISKY_WALLETS", "w1,w2")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, 35.0, cfg.Trading.PositionSizeUSD)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.RPCList)
	assert.Equal(t, []string{"w1", "w2"}, cfg.Filters.RiskyWallets)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"live without rpc", func(c *Config) { c.Simulation = false; c.WalletPath = "w.json" }, "rpc_list is empty"},
		{"live without wallet", func(c *Config) {
			c.Simulation = false
			c.RPCList = []string{"https://rpc.example.com"}
		}, "wallet_path"},
		{"bad rpc scheme", func(c *Config) { c.RPCList = []string{"ftp://rpc.example.com"} }, "invalid RPC URL"},
		{"bad websocket", func(c *Config) { c.WebSocketURL = "https://ws.example.com" }, "WebSocket"},
		{"stop loss over 100", func(c *Config) { c.Trading.StopLossPct = 100 }, "stop_loss_pct"},
		{"negative fee", func(c *Config) { c.Trading.SellFee = -0.1 }, "sell_fee"},
		{"zero poll interval", func(c *Config) { c.Trading.DexPollInterval = 0 }, "intervals"},
		{"inverted pair age", func(c *Config) { c.Filters.MaxPairAge = time.Second }, "pair age"},
		{"slippage", func(c *Config) { c.Swap.SlippageBps = 0 }, "slippage_bps"},
		{"rate limit", func(c *Config) { c.RateLimits.CoinGecko = 0 }, "rate limits"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Default()
			require.NoError(t, err)
			tt.mutate(cfg)
			err = cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	cfg, err := Default()
	require.NoError(t, err)
	cfg.Trading.TakeProfitPct = 55
	cfg.Trading.PriceCheckInterval = 20 * time.Second
	cfg.Filters.RiskyWallets = []string{"risky"}
	cfg.Swap.ComputeUnitLimit = 300000

	path := filepath.Join(t.TempDir(), "saved.yaml")
	require.NoError(t, Save(path, cfg))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 55.0, loaded.Trading.TakeProfitPct)
	assert.Equal(t, 20*time.Second, loaded.Trading.PriceCheckInterval)
	assert.Equal(t, []string{"risky"}, loaded.Filters.RiskyWallets)
	assert.Equal(t, uint32(300000), loaded.Swap.ComputeUnitLimit)
}

func TestSaveRejectsInvalid(t *testing.T) {
	cfg, err := Default()
	require.NoError(t, err)
	cfg.Trading.PositionSizeUSD = 0
	assert.Error(t, Save(filepath.Join(t.TempDir(), "x.json"), cfg))
}

func TestDefaultsMatchComponentDefaults(t *testing.T) {
	cfg, err := Default()
	require.NoError(t, err)

	assert.Equal(t, session.DefaultSettings(), cfg.SessionSettings())
	assert.Equal(t, filter.DefaultConfig(), cfg.FilterConfig())

	sw := cfg.SwapConfig()
	assert.True(t, sw.Simulation)
	assert.Equal(t, uint(3), sw.MaxAttempts)
	assert.True(t, sw.DirectFallback)

	assert.Equal(t, filepath.Join(DefaultDataDir, "positions.json"), cfg.PositionsPath())
}

func TestApplySettingsRoundTrip(t *testing.T) {
	cfg, err := Default()
	require.NoError(t, err)

	s := cfg.SessionSettings()
	s.TakeProfitPct = 55
	s.Filter.MaxPrice = 0.5
	s.Filter.RiskyWallets = []string{"Risky1"}
	cfg.ApplySettings(s)

	assert.Equal(t, 55.0, cfg.Trading.TakeProfitPct)
	assert.Equal(t, 0.5, cfg.Filters.MaxPrice)
	assert.Equal(t, s, cfg.SessionSettings())
	require.NoError(t, cfg.Validate())
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, LoadDotEnv(filepath.Join(dir, "absent.env")))

	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("SNIPER_TRADING_TAKE_PROFIT_PCT=45\nSNIPER_LICENSE=ABCD-1234-EFGH\n"), 0600))
	t.Setenv("SNIPER_LICENSE", "FROM-ENVIRONMENT")
	t.Setenv("SNIPER_TRADING_TAKE_PROFIT_PCT", "")
	os.Unsetenv("SNIPER_TRADING_TAKE_PROFIT_PCT")

	// t.Setenv restores the unset state on cleanup
	require.NoError(t, LoadDotEnv(path))

	cfg, err := Default()
	require.NoError(t, err)
	assert.Equal(t, 45.0, cfg.Trading.TakeProfitPct)
	// existing variables win
	assert.Equal(t, "FROM-ENVIRONMENT", cfg.License)
}
