// internal/marketdata/client.go
package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/rovshanmuradov/solana-sniper/internal/ratelimit"
	"go.uber.org/zap"
)

const (
	DefaultDexScreenerURL = "https://api.dexscreener.com"
	DefaultCoinGeckoURL   = "https://api.coingecko.com/api/v3"

	solanaChain    = "solana"
	maxErrBodySize = 200
)

// Config configures the market data client.
type Config struct {
	DexScreenerURL string
	CoinGeckoURL   string
	Timeout        time.Duration
}

// Client fetches discovery profiles, pool snapshots and the SOL/USD price.
// Failures are logged and reported as absent data.
type Client struct {
	http         *http.Client
	dexURL       string
	priceURL     string
	dexLimiter   *ratelimit.Limiter
	priceLimiter *ratelimit.Limiter
	logger       *zap.Logger
	now          func() time.Time
}

// NewClient creates a client guarded by the dexscreener and price-feed limiters.
func NewClient(cfg Config, limiters ratelimit.Set, logger *zap.Logger) *Client {
	if cfg.DexScreenerURL == "" {
		cfg.DexScreenerURL = DefaultDexScreenerURL
	}
	if cfg.CoinGeckoURL == "" {
		cfg.CoinGeckoURL = DefaultCoinGeckoURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		http:         &http.Client{Timeout: cfg.Timeout},
		dexURL:       strings.TrimRight(cfg.DexScreenerURL, "/"),
		priceURL:     strings.TrimRight(cfg.CoinGeckoURL, "/"),
		dexLimiter:   limiters.DexScreener,
		priceLimiter: limiters.CoinGecko,
		logger:       logger.Named("marketdata"),
		now:          time.Now,
	}
}

// FetchReferencePrice returns the SOL/USD price. ok is false on any failure.
func (c *Client) FetchReferencePrice(ctx context.Context) (float64, bool) {
	url := c.priceURL + "/simple/price?ids=solana&vs_currencies=usd"

	c.wait(c.priceLimiter)
	body, err := c.get(ctx, url)
	if err != nil {
		c.logger.Warn("[PRICE] SOL/USD fetch failed", zap.Error(err))
		return 0, false
	}

	var resp map[string]struct {
		USD *float64 `json:"usd"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		c.logger.Warn("[PRICE] SOL/USD decode failed", zap.Error(err))
		return 0, false
	}
	entry, found := resp["solana"]
	if !found || entry.USD == nil {
		c.logger.Warn("[PRICE] SOL/USD missing in response")
		return 0, false
	}
	price := *entry.USD
	if math.IsNaN(price) || math.IsInf(price, 0) || price <= 0 {
		c.logger.Warn("[PRICE] SOL/USD invalid", zap.Float64("price", price))
		return 0, false
	}
	return price, true
}

// FetchPoolSnapshot returns the first pool of mint, or nil.
func (c *Client) FetchPoolSnapshot(ctx context.Context, mint string) *TokenSnapshot {
	if mint == "" {
		c.logger.Warn("[ERROR] Empty mint, cannot fetch pool")
		return nil
	}
	if strings.HasPrefix(mint, "0x") {
		c.logger.Debug("Skipping non-Solana address", zap.String("mint", mint))
		return nil
	}

	primary := fmt.Sprintf("%s/token-pairs/v1/%s/%s", c.dexURL, solanaChain, mint)
	pairs, errPrimary := c.fetchPairs(ctx, primary)
	if len(pairs) == 0 {
		fallback := fmt.Sprintf("%s/pairs/%s/%s", c.dexURL, solanaChain, mint)
		var errFallback error
		pairs, errFallback = c.fetchPairs(ctx, fallback)
		if len(pairs) == 0 {
			c.logger.Warn("[ERROR] No pool data found",
				zap.String("mint", mint),
				zap.NamedError("token_pairs", errPrimary),
				zap.NamedError("pairs", errFallback))
			return nil
		}
	}
	return pairs[0].toSnapshot(mint, c.now())
}

// FetchDiscoveryBatch returns the latest token profiles, or nil if the feed is unusable.
func (c *Client) FetchDiscoveryBatch(ctx context.Context) []TokenProfile {
	url := c.dexURL + "/token-profiles/latest/v1"

	c.wait(c.dexLimiter)
	body, err := c.get(ctx, url)
	if err != nil {
		c.logger.Warn("[ERROR] Token profiles fetch failed", zap.Error(err))
		return nil
	}

	var profiles []TokenProfile
	if err := json.Unmarshal(body, &profiles); err != nil {
		c.logger.Error("[ERROR] Token profiles response is not a list",
			zap.String("body", truncate(body)), zap.Error(err))
		return nil
	}
	return profiles
}

func (c *Client) fetchPairs(ctx context.Context, url string) ([]PairInfo, error) {
	c.wait(c.dexLimiter)
	body, err := c.get(ctx, url)
	if err != nil {
		return nil, err
	}
	pairs, err := decodePairs(body)
	if err != nil {
		return nil, fmt.Errorf("decode pairs: %w", err)
	}
	return pairs, nil
}

func (c *Client) wait(l *ratelimit.Limiter) {
	if l != nil {
		l.Wait()
	}
}

// get performs a GET and returns the body of a 200 response.
func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode, truncate(body))
	}
	return body, nil
}

func truncate(body []byte) string {
	if len(body) > maxErrBodySize {
		return string(body[:maxErrBodySize])
	}
	return string(body)
}
