package session

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rovshanmuradov/solana-sniper/internal/filter"
	"github.com/rovshanmuradov/solana-sniper/internal/ledger"
	"github.com/rovshanmuradov/solana-sniper/internal/logger"
	"github.com/rovshanmuradov/solana-sniper/internal/marketdata"
	"go.uber.org/zap"
)

const solanaChainID = "solana"

// discoveryLoop polls the profile feed every DexPollInterval or when triggered.
func (s *Session) discoveryLoop(ctx context.Context) {
	interval := s.Settings().DexPollInterval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		s.runIteration(ctx, "discovery", s.pollOnce)

		if next := s.Settings().DexPollInterval; next != interval {
			interval = next
			ticker.Reset(interval)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-s.trigger:
			s.logger.Debug("[POLL] Triggered by pool initialization")
		}
	}
}

// priceLoop refreshes the SOL price and open positions every PriceCheckInterval.
func (s *Session) priceLoop(ctx context.Context) {
	interval := s.Settings().PriceCheckInterval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		s.runIteration(ctx, "price", s.refreshOnce)

		if next := s.Settings().PriceCheckInterval; next != interval {
			interval = next
			ticker.Reset(interval)
		}
	}
}

// runIteration keeps a worker alive across a panicking iteration.
func (s *Session) runIteration(ctx context.Context, worker string, fn func(context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			s.panicLog.Do(func() {
				s.logger.Error(fmt.Sprintf("[ERROR] %s worker iteration failed: %v", worker, r))
			})
			select {
			case <-ctx.Done():
			case <-time.After(iterationBackoff):
			}
		}
	}()
	fn(ctx)
}

// pollOnce resolves pools for unseen profiles, keeps the newest
// MaxTokensPerPoll young pairs and runs them through the filter. A mint
// without a pool yet is not marked seen so the next poll retries it.
func (s *Session) pollOnce(ctx context.Context) {
	profiles := s.market.FetchDiscoveryBatch(ctx)
	if len(profiles) == 0 {
		return
	}
	settings := s.Settings()
	cfg := settings.filterConfig()
	now := s.now()

	var (
		candidates []*marketdata.TokenSnapshot
		pending    int
	)
	for _, p := range profiles {
		if ctx.Err() != nil {
			return
		}
		mint := p.TokenAddress
		if mint == "" || (p.ChainID != "" && p.ChainID != solanaChainID) {
			continue
		}
		if s.seen.Contains(mint) || s.ledger.IsOpen(mint) {
			continue
		}
		snap := s.poolSnapshot(ctx, p)
		if snap == nil {
			pending++
			continue
		}
		if !settings.DisableInitialFilters && settings.MaxTokenAge > 0 && snap.PairAge(now) > settings.MaxTokenAge {
			// age only grows, never worth fetching again
			s.seen.Add(mint)
			s.logger.Debug("[POLL] Skipping old token", zap.String("mint", mint), zap.Duration("age", snap.PairAge(now)))
			continue
		}
		candidates = append(candidates, snap)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].PairCreatedAt.After(candidates[j].PairCreatedAt)
	})
	if len(candidates) > settings.MaxTokensPerPoll {
		candidates = candidates[:settings.MaxTokensPerPoll]
	}

	fresh := 0
	for _, snap := range candidates {
		if ctx.Err() != nil {
			return
		}
		if !s.seen.Add(snap.Mint) {
			continue
		}
		fresh++
		s.evaluate(ctx, snap, cfg)
	}
	if fresh > 0 || pending > 0 {
		s.logger.Info(fmt.Sprintf("[POLL] %d profiles, %d new, %d awaiting pool, %d seen",
			len(profiles), fresh, pending, s.seen.Len()))
	}
}

// poolSnapshot fetches the pool of p and fills gaps from the profile.
func (s *Session) poolSnapshot(ctx context.Context, p marketdata.TokenProfile) *marketdata.TokenSnapshot {
	snap := s.market.FetchPoolSnapshot(ctx, p.TokenAddress)
	if snap == nil {
		s.logger.Debug("[POLL] No pool yet", zap.String("mint", p.TokenAddress))
		return nil
	}
	if snap.Mint == "" {
		snap.Mint = p.TokenAddress
	}
	if len(snap.Socials) == 0 {
		snap.Socials = p.Socials()
	}
	if snap.Description == "" {
		snap.Description = p.Description
	}
	return snap
}

func (s *Session) evaluate(ctx context.Context, snap *marketdata.TokenSnapshot, cfg filter.Config) {
	res := s.filter.Evaluate(ctx, snap, cfg, s.now())
	if !res.Passed {
		s.logger.Info(fmt.Sprintf("[FILTER FAILED] %s check %d: %s", snap.DisplayName(), res.Check, res))
		return
	}
	s.logger.Info(fmt.Sprintf("[FILTER PASS] %s price $%.10f liq $%.0f vol5m $%.0f buys %d sells %d",
		snap.DisplayName(), snap.PriceUSD, snap.LiquidityUSD, snap.Volume5mUSD, snap.Buys5m, snap.Sells5m))

	if err := s.buy(ctx, snap, false); err != nil {
		s.logger.Debug("[BUY] Skipped "+logger.ShortenAddress(snap.Mint), zap.Error(err))
	}
}

func (s *Session) refreshOnce(ctx context.Context) {
	if price, ok := s.market.FetchReferencePrice(ctx); ok {
		s.setSOLPrice(price)
	} else {
		s.priceLog.Do(func() {
			s.logger.Warn(fmt.Sprintf("[PRICE] SOL/USD refresh failed, keeping $%.2f", s.solPrice()))
		})
	}

	settings := s.Settings()
	for _, pos := range s.ledger.OpenPositions() {
		if ctx.Err() != nil {
			return
		}
		snap := s.market.FetchPoolSnapshot(ctx, pos.Mint)
		if snap == nil || snap.PriceUSD <= 0 {
			continue
		}
		s.ledger.UpdatePrice(pos.Mint, snap.PriceUSD)
		reason, exit := ledger.EvaluateExit(pos.EntryPrice, snap.PriceUSD, settings.TakeProfitPct, settings.StopLossPct)
		if !exit {
			continue
		}
		if _, err := s.sell(ctx, pos.Mint, snap.PriceUSD, reason); err != nil {
			s.logger.Warn(fmt.Sprintf("[SELL] %s exit for %s not completed", reason, logger.ShortenAddress(pos.Mint)), zap.Error(err))
		}
	}

	s.mu.Lock()
	s.lastUpdated = s.now()
	s.mu.Unlock()
}
