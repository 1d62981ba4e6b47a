package session

import (
	"errors"
	"time"

	"github.com/rovshanmuradov/solana-sniper/internal/filter"
)

// Settings is the immutable trading configuration of a session.
// UpdateSettings swaps the whole value.
type Settings struct {
	Simulation bool

	StartingUSD     float64
	PositionSizeUSD float64
	BuyFee          float64
	SellFee         float64
	TakeProfitPct   float64
	StopLossPct     float64

	Duration           time.Duration
	DexPollInterval    time.Duration
	PriceCheckInterval time.Duration
	SummaryInterval    time.Duration
	MaxTokensPerPoll   int
	MaxTokenAge        time.Duration
	MaxSeenTokens      int
	MaxTradesHistory   int
	MaxLogLines        int

	// DisableInitialFilters admits every priced token through checks 1-7
	// and skips the token age pre-filter.
	DisableInitialFilters bool

	Filter filter.Config
}

// DefaultSettings returns the stock simulation settings.
func DefaultSettings() Settings {
	return Settings{
		Simulation:         true,
		StartingUSD:        100,
		PositionSizeUSD:    20,
		BuyFee:             0.005,
		SellFee:            0.005,
		TakeProfitPct:      30,
		StopLossPct:        15,
		Duration:           2 * time.Hour,
		DexPollInterval:    time.Second,
		PriceCheckInterval: 15 * time.Second,
		SummaryInterval:    300 * time.Second,
		MaxTokensPerPoll:   500,
		MaxTokenAge:        1800 * time.Second,
		MaxSeenTokens:      10000,
		MaxTradesHistory:   1000,
		MaxLogLines:        5000,
		Filter:             filter.DefaultConfig(),
	}
}

// Validate rejects settings the workers cannot run with.
func (s Settings) Validate() error {
	switch {
	case s.PositionSizeUSD <= 0:
		return errors.New("position size must be positive")
	case s.Simulation && s.StartingUSD <= 0:
		return errors.New("starting balance must be positive")
	case s.BuyFee < 0 || s.BuyFee >= 1 || s.SellFee < 0 || s.SellFee >= 1:
		return errors.New("fees must be in [0, 1)")
	case s.TakeProfitPct <= 0:
		return errors.New("take profit must be positive")
	case s.StopLossPct <= 0 || s.StopLossPct >= 100:
		return errors.New("stop loss must be in (0, 100)")
	case s.Duration <= 0 || s.DexPollInterval <= 0 || s.PriceCheckInterval <= 0 || s.SummaryInterval <= 0:
		return errors.New("durations and intervals must be positive")
	case s.MaxTokensPerPoll <= 0 || s.MaxSeenTokens <= 0 || s.MaxTradesHistory <= 0 || s.MaxLogLines <= 0:
		return errors.New("caps must be positive")
	}
	return nil
}

func (s Settings) filterConfig() filter.Config {
	if s.DisableInitialFilters {
		return s.Filter.WithoutInitialChecks()
	}
	return s.Filter
}
