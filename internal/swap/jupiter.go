// internal/swap/jupiter.go
package swap

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/rovshanmuradov/solana-sniper/internal/ratelimit"
	"go.uber.org/zap"
)

const DefaultJupiterURL = "https://public.jupiterapi.com"

// QuoteParams is a request for a swap route.
type QuoteParams struct {
	InputMint   string
	OutputMint  string
	Amount      uint64
	SlippageBps int
}

// Quote is an aggregator route. Raw is forwarded unchanged to the swap builder.
type Quote struct {
	InputMint      string            `json:"inputMint"`
	OutputMint     string            `json:"outputMint"`
	InAmount       string            `json:"inAmount"`
	OutAmount      string            `json:"outAmount"`
	PriceImpactPct string            `json:"priceImpactPct"`
	SlippageBps    int               `json:"slippageBps"`
	RoutePlan      []json.RawMessage `json:"routePlan"`
	Raw            json.RawMessage   `json:"-"`
}

type swapRequest struct {
	QuoteResponse             json.RawMessage `json:"quoteResponse"`
	UserPublicKey             string          `json:"userPublicKey"`
	WrapAndUnwrapSol          bool            `json:"wrapAndUnwrapSol"`
	DynamicComputeUnitLimit   bool            `json:"dynamicComputeUnitLimit"`
	PrioritizationFeeLamports uint64          `json:"prioritizationFeeLamports"`
}

type swapResponse struct {
	SwapTransaction string `json:"swapTransaction"`
	Error           string `json:"error"`
}

// JupiterClient talks to the Jupiter quote and swap API.
type JupiterClient struct {
	http    *http.Client
	baseURL string
	limiter *ratelimit.Limiter
	logger  *zap.Logger
}

// NewJupiterClient creates a client guarded by the aggregator limiter.
func NewJupiterClient(baseURL string, timeout time.Duration, limiter *ratelimit.Limiter, logger *zap.Logger) *JupiterClient {
	if baseURL == "" {
		baseURL = DefaultJupiterURL
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &JupiterClient{
		http:    &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
		limiter: limiter,
		logger:  logger.Named("jupiter"),
	}
}

// Quote fetches a route. A response without a route plan is ErrNoRoute.
func (j *JupiterClient) Quote(ctx context.Context, p QuoteParams) (*Quote, error) {
	q := url.Values{}
	q.Set("inputMint", p.InputMint)
	q.Set("outputMint", p.OutputMint)
	q.Set("amount", strconv.FormatUint(p.Amount, 10))
	q.Set("slippageBps", strconv.Itoa(p.SlippageBps))
	q.Set("onlyDirectRoutes", "false")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, j.baseURL+"/quote?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create quote request: %w", err)
	}
	body, err := j.do(req)
	if err != nil {
		return nil, fmt.Errorf("quote: %w", err)
	}

	var quote Quote
	if err := json.Unmarshal(body, &quote); err != nil {
		return nil, fmt.Errorf("failed to decode quote: %w", err)
	}
	if len(quote.RoutePlan) == 0 {
		return nil, ErrNoRoute
	}
	quote.Raw = body

	j.logger.Debug("Quote received",
		zap.String("in_amount", quote.InAmount),
		zap.String("out_amount", quote.OutAmount),
		zap.String("price_impact_pct", quote.PriceImpactPct))
	return &quote, nil
}

// SwapTransaction asks the aggregator to build an unsigned transaction for quote.
func (j *JupiterClient) SwapTransaction(
	ctx context.Context,
	quote *Quote,
	user solana.PublicKey,
	priorityFeeLamports uint64,
) ([]byte, error) {
	payload, err := json.Marshal(swapRequest{
		QuoteResponse:             quote.Raw,
		UserPublicKey:             user.String(),
		WrapAndUnwrapSol:          true,
		DynamicComputeUnitLimit:   true,
		PrioritizationFeeLamports: priorityFeeLamports,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode swap request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, j.baseURL+"/swap", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create swap request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	body, err := j.do(req)
	if err != nil {
		return nil, fmt.Errorf("swap: %w", err)
	}

	var resp swapResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode swap response: %w", err)
	}
	if resp.SwapTransaction == "" {
		if resp.Error != "" {
			return nil, fmt.Errorf("%w: %s", ErrEmptyTransaction, resp.Error)
		}
		return nil, ErrEmptyTransaction
	}
	raw, err := base64.StdEncoding.DecodeString(resp.SwapTransaction)
	if err != nil {
		return nil, fmt.Errorf("failed to decode swap transaction: %w", err)
	}
	return raw, nil
}

func (j *JupiterClient) do(req *http.Request) ([]byte, error) {
	if j.limiter != nil {
		j.limiter.Wait()
	}
	resp, err := j.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		if len(body) > 200 {
			body = body[:200]
		}
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, body)
	}
	return body, nil
}
