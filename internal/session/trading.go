package session

import (
	"context"
	"fmt"
	"math"

	"github.com/rovshanmuradov/solana-sniper/internal/events"
	"github.com/rovshanmuradov/solana-sniper/internal/ledger"
	"github.com/rovshanmuradov/solana-sniper/internal/logger"
	"github.com/rovshanmuradov/solana-sniper/internal/marketdata"
	"github.com/rovshanmuradov/solana-sniper/internal/swap"
	"go.uber.org/zap"
)

// ManualBuy buys snap immediately. It never consults the filter engine.
func (s *Session) ManualBuy(ctx context.Context, snap *marketdata.TokenSnapshot) (bool, string) {
	name := unknownTokenLabel
	if snap != nil {
		name = snap.DisplayName()
	}

	log := logger.WithOperation(s.logger, "manual_buy")
	err := s.requireRunning()
	if err == nil {
		log.Info("[BUY] Manual buy requested for " + name)
		err = s.buy(ctx, snap, true)
	}
	if err != nil {
		log.Warn("[BUY] Manual buy failed for "+name, zap.Error(err))
		return false, fmt.Sprintf("Manual buy FAILED for token: %s\n%s", name, manualBuyWarning)
	}
	return true, fmt.Sprintf("Manual buy SUCCESS for token: %s\n%s", name, manualBuyWarning)
}

// ManualSell closes the open position for mint at the latest price, bypassing exit checks.
func (s *Session) ManualSell(ctx context.Context, mint string) (bool, string) {
	pos, ok := s.ledger.Get(mint)
	if !ok {
		return false, fmt.Sprintf("Manual sell FAILED: no open position for %s", logger.ShortenAddress(mint))
	}
	name := pos.Name + " (" + pos.Symbol + ")"
	if err := s.requireRunning(); err != nil {
		return false, fmt.Sprintf("Manual sell FAILED for token: %s: %v", name, err)
	}

	log := logger.WithOperation(s.logger, "manual_sell")
	log.Info("[SELL] Manual sell requested for " + name)
	price := pos.CurrentPrice
	if snap := s.market.FetchPoolSnapshot(ctx, mint); snap != nil && snap.PriceUSD > 0 {
		price = snap.PriceUSD
		s.ledger.UpdatePrice(mint, price)
	}

	trade, err := s.sell(ctx, mint, price, ledger.ReasonManual)
	if err != nil {
		log.Warn("[SELL] Manual sell failed for "+name, zap.Error(err))
		return false, fmt.Sprintf("Manual sell FAILED for token: %s: %v", name, err)
	}
	return true, fmt.Sprintf("Manual sell SUCCESS for token: %s, PnL $%.2f", name, trade.PnL)
}

func (s *Session) requireRunning() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.running || s.solUSD <= 0 {
		return ErrNotRunning
	}
	return nil
}

// buy spends one position size on snap. Auto and manual buys share buyMu.
func (s *Session) buy(ctx context.Context, snap *marketdata.TokenSnapshot, manual bool) error {
	if snap == nil || snap.Mint == "" || snap.PriceUSD <= 0 || math.IsNaN(snap.PriceUSD) || math.IsInf(snap.PriceUSD, 0) {
		return ErrNoPrice
	}

	s.buyMu.Lock()
	defer s.buyMu.Unlock()

	if s.ledger.IsOpen(snap.Mint) {
		return fmt.Errorf("buy %s: %w", snap.Mint, ledger.ErrPositionExists)
	}

	settings := s.Settings()
	s.mu.RLock()
	solUSD, balance, w := s.solUSD, s.balance, s.wallet
	s.mu.RUnlock()
	if solUSD <= 0 {
		return ErrNoReferencePrice
	}
	if balance*solUSD < settings.PositionSizeUSD {
		s.logger.Warn(fmt.Sprintf("[BALANCE] Insufficient balance for %s: %.4f SOL ($%.2f) < $%.2f",
			snap.DisplayName(), balance, balance*solUSD, settings.PositionSizeUSD))
		return ErrInsufficientBalance
	}

	solAmount := settings.PositionSizeUSD / solUSD
	if !settings.Simulation {
		lamports, err := s.balances.GetBalance(ctx, w.PublicKey)
		if err != nil {
			return fmt.Errorf("failed to read on-chain balance: %w", err)
		}
		if onChain := float64(lamports) / lamportsPerSOL; onChain < solAmount {
			s.logger.Warn(fmt.Sprintf("[BALANCE] On-chain balance %.4f SOL below buy amount %.4f SOL", onChain, solAmount))
			return ErrInsufficientBalance
		}
	}

	s.logger.Info(fmt.Sprintf("[BUY] Buying %s for %.4f SOL ($%.2f)", snap.DisplayName(), solAmount, settings.PositionSizeUSD),
		zap.String("mint", snap.Mint), zap.Bool("manual", manual))

	res, err := s.swapper.Buy(ctx, swap.Request{Mint: snap.Mint, Pool: snap.PairAddress, Amount: solAmount})
	if err != nil {
		s.logger.Error("[BUY] Swap failed for "+snap.DisplayName(), zap.Error(err))
		return err
	}
	s.adjustBalance(ctx, settings, -solAmount)

	invested := settings.PositionSizeUSD * (1 - settings.BuyFee)
	pos, err := s.ledger.Open(snap.Mint, snap, invested, s.now())
	if err != nil {
		s.logger.Error("[ERROR] Position rejected after buy", zap.String("mint", snap.Mint), zap.Error(err))
		return err
	}
	s.ledger.SetBuySignature(snap.Mint, res.Signature)
	pos.BuySignature = res.Signature
	s.seen.Add(snap.Mint)
	s.persist()

	s.logger.Info(fmt.Sprintf("[BUY] Bought %s at $%.10f, invested $%.2f via %s",
		snap.DisplayName(), pos.EntryPrice, invested, res.Route),
		zap.String("signature", res.Signature), zap.Int("attempts", res.Attempts))
	s.publish(events.PositionOpenedEvent{
		BaseEvent: events.New(events.PositionOpened, s.now()),
		Position:  *pos,
		Manual:    manual,
		SOLAmount: solAmount,
	})
	return nil
}

// sell closes the whole position at price. The token amount is the USD left
// in the position at the entry price.
func (s *Session) sell(ctx context.Context, mint string, price float64, reason ledger.ExitReason) (ledger.ClosedTrade, error) {
	if !s.beginSell(mint) {
		return ledger.ClosedTrade{}, ErrSellInProgress
	}
	defer s.endSell(mint)

	// read under the sell slot so a sell that just finished is not repeated
	pos, ok := s.ledger.Get(mint)
	if !ok {
		return ledger.ClosedTrade{}, fmt.Errorf("sell %s: %w", mint, ledger.ErrPositionNotFound)
	}
	if price <= 0 {
		price = pos.CurrentPrice
	}
	if price <= 0 || pos.EntryPrice <= 0 {
		return ledger.ClosedTrade{}, fmt.Errorf("sell %s: %w", mint, ledger.ErrInvalidPrice)
	}
	tokens := pos.AmountLeft / pos.EntryPrice
	if tokens <= 0 {
		return ledger.ClosedTrade{}, fmt.Errorf("sell %s: no tokens left", mint)
	}
	solUSD := s.solPrice()
	if solUSD <= 0 {
		return ledger.ClosedTrade{}, ErrNoReferencePrice
	}

	name := pos.Name + " (" + pos.Symbol + ")"
	s.logger.Info(fmt.Sprintf("[SELL] Selling %s (%s): %.4f tokens at $%.10f", name, reason, tokens, price),
		zap.String("mint", mint))

	res, err := s.swapper.Sell(ctx, swap.Request{Mint: mint, Pool: pos.Pool, Amount: tokens})
	if err != nil {
		s.logger.Error("[SELL] Swap failed for "+name, zap.Error(err))
		return ledger.ClosedTrade{}, err
	}

	settings := s.Settings()
	netUSD := tokens * price * (1 - settings.SellFee)
	s.adjustBalance(ctx, settings, netUSD/solUSD)

	trade, err := s.ledger.Close(mint, price, reason, s.now())
	if err != nil {
		s.logger.Error("[ERROR] Close rejected after sell", zap.String("mint", mint), zap.Error(err))
		return ledger.ClosedTrade{}, err
	}
	s.ledger.SetSellSignature(trade.ID, res.Signature)
	trade.SellSignature = res.Signature
	s.persist()

	s.logger.Info(fmt.Sprintf("[SELL] Sold %s: %s at $%.10f, PnL $%.2f, received $%.2f via %s",
		name, reason, price, trade.PnL, netUSD, res.Route),
		zap.String("signature", res.Signature))
	s.publish(events.PositionClosedEvent{
		BaseEvent: events.New(events.PositionClosed, s.now()),
		Trade:     trade,
	})
	return trade, nil
}

func (s *Session) beginSell(mint string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.selling[mint]; busy {
		return false
	}
	s.selling[mint] = struct{}{}
	return true
}

func (s *Session) endSell(mint string) {
	s.mu.Lock()
	delete(s.selling, mint)
	s.mu.Unlock()
}

// adjustBalance applies deltaSOL in simulation and re-reads the chain balance live.
func (s *Session) adjustBalance(ctx context.Context, settings Settings, deltaSOL float64) {
	s.mu.Lock()
	old := s.balance
	if settings.Simulation {
		s.balance += deltaSOL
	}
	w := s.wallet
	s.mu.Unlock()

	if !settings.Simulation {
		lamports, err := s.balances.GetBalance(ctx, w.PublicKey)
		if err != nil {
			s.logger.Warn("[BALANCE] Could not refresh on-chain balance", zap.Error(err))
			return
		}
		s.mu.Lock()
		s.balance = float64(lamports) / lamportsPerSOL
		s.mu.Unlock()
	}

	s.mu.RLock()
	current := s.balance
	addr := ""
	if w != nil {
		addr = w.PublicKey.String()
	}
	s.mu.RUnlock()

	s.logger.Info(fmt.Sprintf("[BALANCE] %.4f SOL -> %.4f SOL", old, current))
	s.publish(events.BalanceChangedEvent{
		BaseEvent:     events.New(events.BalanceChanged, s.now()),
		WalletAddress: addr,
		OldBalance:    old,
		NewBalance:    current,
	})
}
