// internal/swap/types.go
package swap

import (
	"errors"
	"time"
)

var (
	ErrNoRoute             = errors.New("aggregator returned no route")
	ErrEmptyTransaction    = errors.New("aggregator returned no transaction")
	ErrNoPool              = errors.New("no pool address for direct swap")
	ErrDecimalsUnavailable = errors.New("token decimals unavailable")
	ErrInvalidAmount       = errors.New("swap amount must be positive")
	ErrNoWallet            = errors.New("live swaps require a wallet")
	ErrFallbackDisabled    = errors.New("direct swap fallback disabled")
	ErrNoTokenBalance      = errors.New("wallet holds none of the token")
)

// Direction is the side of a swap relative to SOL.
type Direction int

const (
	Buy Direction = iota
	Sell
)

func (d Direction) String() string {
	if d == Sell {
		return "sell"
	}
	return "buy"
}

// Route names the path that settled a swap.
type Route string

const (
	RouteAggregator Route = "jupiter"
	RouteDirect     Route = "raydium"
	RouteSimulation Route = "simulation"
)

// Request describes a swap against SOL.
type Request struct {
	Mint string
	// AMM pool used by the direct fallback, usually the DexScreener pair address.
	Pool string
	// SOL to spend for buys, tokens to sell for sells.
	Amount float64
}

// Result reports how a swap settled.
type Result struct {
	Signature string
	Route     Route
	Attempts  int
	AmountIn  uint64
	Duration  time.Duration
}

// SimulatedDecimals is assumed for token amounts when no chain is consulted.
const SimulatedDecimals = 9

const lamportsPerSOL = 1_000_000_000
