// internal/ledger/ledger.go
package ledger

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rovshanmuradov/solana-sniper/internal/marketdata"
)

var (
	ErrPositionExists   = errors.New("position already open")
	ErrPositionNotFound = errors.New("no open position")
	ErrInvalidPrice     = errors.New("invalid price")
)

// ExitReason explains why a position was closed.
type ExitReason string

const (
	ReasonTakeProfit ExitReason = "TAKE_PROFIT"
	ReasonStopLoss   ExitReason = "STOP_LOSS"
	ReasonManual     ExitReason = "MANUAL"
)

// Position is an open holding of one mint.
type Position struct {
	Mint         string    `json:"mint"`
	Name         string    `json:"name"`
	Symbol       string    `json:"symbol"`
	EntryTime    time.Time `json:"entry_time"`
	EntryPrice   float64   `json:"entry_price"`
	Invested     float64   `json:"invested"`
	AmountLeft   float64   `json:"amount_left"`
	CurrentPrice float64   `json:"current_price"`
	Sold         bool      `json:"sold"`
	ExitPrice    float64   `json:"exit_price,omitempty"`
	ExitTime     time.Time `json:"exit_time,omitempty"`
	PnL          float64   `json:"pnl,omitempty"`
	BuySignature string    `json:"buy_signature,omitempty"`
	Pool         string    `json:"pool,omitempty"`
}

// ChangePct returns the price move since entry in percent.
func (p Position) ChangePct() float64 {
	if p.EntryPrice <= 0 || p.CurrentPrice <= 0 {
		return 0
	}
	return (p.CurrentPrice - p.EntryPrice) / p.EntryPrice * 100
}

// ClosedTrade is an immutable record of a completed round trip.
type ClosedTrade struct {
	ID            string     `json:"id"`
	Mint          string     `json:"mint"`
	Name          string     `json:"name"`
	Symbol        string     `json:"symbol"`
	EntryPrice    float64    `json:"entry_price"`
	ExitPrice     float64    `json:"exit_price"`
	Invested      float64    `json:"invested"`
	PnL           float64    `json:"pnl"`
	Reason        ExitReason `json:"reason"`
	EntryTime     time.Time  `json:"entry_time"`
	ExitTime      time.Time  `json:"exit_time"`
	SellSignature string     `json:"sell_signature,omitempty"`
}

// Ledger owns the open positions and the bounded closed-trade history.
// It is safe for concurrent use.
type Ledger struct {
	mu         sync.RWMutex
	open       map[string]*Position
	closed     []ClosedTrade
	maxHistory int
	sellFee    float64
}

// New creates a ledger keeping at most maxHistory closed trades.
func New(maxHistory int, sellFee float64) *Ledger {
	if maxHistory <= 0 {
		maxHistory = 1000
	}
	return &Ledger{
		open:       make(map[string]*Position),
		maxHistory: maxHistory,
		sellFee:    sellFee,
	}
}

// SetSellFee updates the fee used for unrealized PnL.
func (l *Ledger) SetSellFee(fee float64) {
	l.mu.Lock()
	l.sellFee = fee
	l.mu.Unlock()
}

// IsOpen reports whether mint has an open position.
func (l *Ledger) IsOpen(mint string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.open[mint]
	return ok
}

// Open records a new position. investedNet is the USD amount after the buy fee.
func (l *Ledger) Open(mint string, snap *marketdata.TokenSnapshot, investedNet float64, now time.Time) (*Position, error) {
	if snap == nil || snap.PriceUSD <= 0 {
		return nil, fmt.Errorf("open %s: %w", mint, ErrInvalidPrice)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.open[mint]; ok {
		return nil, fmt.Errorf("open %s: %w", mint, ErrPositionExists)
	}
	pos := &Position{
		Mint:         mint,
		Name:         snap.Name,
		Symbol:       snap.Symbol,
		EntryTime:    now,
		EntryPrice:   snap.PriceUSD,
		Invested:     investedNet,
		AmountLeft:   investedNet,
		CurrentPrice: snap.PriceUSD,
		Pool:         snap.PairAddress,
	}
	l.open[mint] = pos
	cp := *pos
	return &cp, nil
}

// SetBuySignature attaches the buy transaction to an open position.
func (l *Ledger) SetBuySignature(mint, sig string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if p, ok := l.open[mint]; ok {
		p.BuySignature = sig
	}
}

// UpdatePrice refreshes the current price of an open position.
func (l *Ledger) UpdatePrice(mint string, price float64) bool {
	if price <= 0 {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.open[mint]
	if !ok {
		return false
	}
	p.CurrentPrice = price
	return true
}

// Get returns a copy of the open position for mint.
func (l *Ledger) Get(mint string) (Position, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.open[mint]
	if !ok {
		return Position{}, false
	}
	return *p, true
}

// Close removes the open position and appends a closed trade.
func (l *Ledger) Close(mint string, exitPrice float64, reason ExitReason, now time.Time) (ClosedTrade, error) {
	if exitPrice <= 0 {
		return ClosedTrade{}, fmt.Errorf("close %s: %w", mint, ErrInvalidPrice)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.open[mint]
	if !ok {
		return ClosedTrade{}, fmt.Errorf("close %s: %w", mint, ErrPositionNotFound)
	}

	pnl := RealizedPnL(p.EntryPrice, exitPrice, p.Invested)
	p.Sold = true
	p.ExitPrice = exitPrice
	p.ExitTime = now
	p.PnL = pnl
	p.AmountLeft = 0

	trade := ClosedTrade{
		ID:         uuid.NewString(),
		Mint:       p.Mint,
		Name:       p.Name,
		Symbol:     p.Symbol,
		EntryPrice: p.EntryPrice,
		ExitPrice:  exitPrice,
		Invested:   p.Invested,
		PnL:        pnl,
		Reason:     reason,
		EntryTime:  p.EntryTime,
		ExitTime:   now,
	}

	delete(l.open, mint)
	l.closed = append(l.closed, trade)
	if over := len(l.closed) - l.maxHistory; over > 0 {
		l.closed = append([]ClosedTrade(nil), l.closed[over:]...)
	}
	return trade, nil
}

// SetSellSignature attaches the sell transaction to a closed trade.
func (l *Ledger) SetSellSignature(tradeID, sig string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(l.closed) - 1; i >= 0; i-- {
		if l.closed[i].ID == tradeID {
			l.closed[i].SellSignature = sig
			return
		}
	}
}

// RealizedPnL is (exit-entry)/entry*invested.
func RealizedPnL(entry, exit, invested float64) float64 {
	if entry <= 0 {
		return 0
	}
	return (exit - entry) / entry * invested
}

// UnrealizedPnL sums the after-fee mark-to-market PnL of open positions.
func (l *Ledger) UnrealizedPnL() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var total float64
	for _, p := range l.open {
		if p.EntryPrice <= 0 || p.CurrentPrice <= 0 {
			continue
		}
		total += (p.CurrentPrice - p.EntryPrice) / p.EntryPrice * p.Invested * (1 - l.sellFee)
	}
	return total
}

// RealizedPnL sums PnL across the retained closed trades.
func (l *Ledger) RealizedPnL() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var total float64
	for _, t := range l.closed {
		total += t.PnL
	}
	return total
}

// TotalPnL is realized plus unrealized.
func (l *Ledger) TotalPnL() float64 {
	return l.RealizedPnL() + l.UnrealizedPnL()
}

// WinRate is the percentage of closed trades with positive PnL.
func (l *Ledger) WinRate() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.closed) == 0 {
		return 0
	}
	wins := 0
	for _, t := range l.closed {
		if t.PnL > 0 {
			wins++
		}
	}
	return float64(wins) / float64(len(l.closed)) * 100
}

// Stats aggregates the closed-trade history.
type Stats struct {
	Trades      int
	Wins        int
	Losses      int
	RealizedPnL float64
	Invested    float64
	Open        int
}

// Stats returns aggregate counters.
func (l *Ledger) Stats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s := Stats{Trades: len(l.closed), Open: len(l.open)}
	for _, t := range l.closed {
		s.RealizedPnL += t.PnL
		s.Invested += t.Invested
		if t.PnL > 0 {
			s.Wins++
		} else {
			s.Losses++
		}
	}
	return s
}

// OpenPositions returns copies of open positions, oldest first.
func (l *Ledger) OpenPositions() []Position {
	l.mu.RLock()
	out := make([]Position, 0, len(l.open))
	for _, p := range l.open {
		out = append(out, *p)
	}
	l.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].EntryTime.Before(out[j].EntryTime) })
	return out
}

// ClosedTrades returns a copy of the retained history, oldest first.
func (l *Ledger) ClosedTrades() []ClosedTrade {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]ClosedTrade, len(l.closed))
	copy(out, l.closed)
	return out
}

// Restore loads previously persisted open positions. Sold or duplicate entries are skipped.
func (l *Ledger) Restore(positions []Position) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, p := range positions {
		if p.Sold || p.Mint == "" || p.EntryPrice <= 0 {
			continue
		}
		if _, ok := l.open[p.Mint]; ok {
			continue
		}
		cp := p
		l.open[p.Mint] = &cp
		n++
	}
	return n
}
