package ledger

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rovshanmuradov/solana-sniper/internal/marketdata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func snap(mint string, price float64) *marketdata.TokenSnapshot {
	return &marketdata.TokenSnapshot{Mint: mint, Name: "Token " + mint, Symbol: "T", PriceUSD: price}
}

func TestOpenRejectsDuplicate(t *testing.T) {
	l := New(10, 0)

	_, err := l.Open("A", snap("A", 1), 100, t0)
	require.NoError(t, err)

	_, err = l.Open("A", snap("A", 2), 100, t0)
	assert.ErrorIs(t, err, ErrPositionExists)
	assert.Len(t, l.OpenPositions(), 1)

	_, err = l.Close("A", 1.1, ReasonManual, t0)
	require.NoError(t, err)
	_, err = l.Open("A", snap("A", 1), 100, t0)
	assert.NoError(t, err, "a closed mint may be bought again")
}

func TestOpenRejectsInvalidPrice(t *testing.T) {
	l := New(10, 0)
	_, err := l.Open("A", snap("A", 0), 100, t0)
	assert.ErrorIs(t, err, ErrInvalidPrice)
	_, err = l.Open("A", nil, 100, t0)
	assert.ErrorIs(t, err, ErrInvalidPrice)
}

func TestPnLRoundTrip(t *testing.T) {
	l := New(10, 0)
	_, err := l.Open("A", snap("A", 1.0), 100, t0)
	require.NoError(t, err)
	require.True(t, l.UpdatePrice("A", 1.3))
	assert.InDelta(t, 30.0, l.UnrealizedPnL(), 1e-9)

	trade, err := l.Close("A", 1.3, ReasonTakeProfit, t0.Add(time.Minute))
	require.NoError(t, err)

	assert.InDelta(t, 30.0, trade.PnL, 1e-9)
	assert.Equal(t, ReasonTakeProfit, trade.Reason)
	assert.NotEmpty(t, trade.ID)
	assert.InDelta(t, 30.0, l.RealizedPnL(), 1e-9)
	assert.Zero(t, l.UnrealizedPnL())
	assert.InDelta(t, 30.0, l.TotalPnL(), 1e-9)
	assert.False(t, l.IsOpen("A"))
	assert.Equal(t, 100.0, l.WinRate())
}

func TestCloseExactlyOnce(t *testing.T) {
	l := New(10, 0)
	_, err := l.Open("A", snap("A", 1.0), 100, t0)
	require.NoError(t, err)

	_, err = l.Close("A", 0.8, ReasonStopLoss, t0)
	require.NoError(t, err)
	_, err = l.Close("A", 0.8, ReasonStopLoss, t0)
	assert.ErrorIs(t, err, ErrPositionNotFound)
	assert.Len(t, l.ClosedTrades(), 1)
	assert.InDelta(t, -20.0, l.RealizedPnL(), 1e-9)
}

func TestUnrealizedAppliesSellFee(t *testing.T) {
	l := New(10, 0.005)
	_, err := l.Open("A", snap("A", 2.0), 100, t0)
	require.NoError(t, err)
	l.UpdatePrice("A", 3.0)

	assert.InDelta(t, 50.0*0.995, l.UnrealizedPnL(), 1e-9)
}

func TestUpdatePriceIgnoresUnknownAndInvalid(t *testing.T) {
	l := New(10, 0)
	assert.False(t, l.UpdatePrice("missing", 1))
	_, _ = l.Open("A", snap("A", 1), 10, t0)
	assert.False(t, l.UpdatePrice("A", 0))
	p, ok := l.Get("A")
	require.True(t, ok)
	assert.Equal(t, 1.0, p.CurrentPrice)
}

func TestHistoryIsBounded(t *testing.T) {
	const capacity = 5
	l := New(capacity, 0)
	for i := 0; i < 12; i++ {
		mint := fmt.Sprintf("M%d", i)
		_, err := l.Open(mint, snap(mint, 1), 10, t0)
		require.NoError(t, err)
		_, err = l.Close(mint, 1.1, ReasonTakeProfit, t0.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
	}

	trades := l.ClosedTrades()
	require.Len(t, trades, capacity)
	for i, tr := range trades {
		assert.Equal(t, fmt.Sprintf("M%d", 7+i), tr.Mint)
	}
}

func TestStatsAndWinRate(t *testing.T) {
	l := New(10, 0)
	for i, exit := range []float64{1.5, 0.5, 2.0, 1.0} {
		mint := fmt.Sprintf("M%d", i)
		_, _ = l.Open(mint, snap(mint, 1), 10, t0)
		_, err := l.Close(mint, exit, ReasonManual, t0)
		require.NoError(t, err)
	}
	s := l.Stats()
	assert.Equal(t, 4, s.Trades)
	assert.Equal(t, 2, s.Wins)
	assert.Equal(t, 2, s.Losses)
	assert.InDelta(t, 10.0, s.RealizedPnL, 1e-9)
	assert.Equal(t, 50.0, l.WinRate())
}

func TestRestore(t *testing.T) {
	l := New(10, 0)
	_, _ = l.Open("A", snap("A", 1), 10, t0)

	n := l.Restore([]Position{
		{Mint: "A", EntryPrice: 1},
		{Mint: "B", EntryPrice: 2, Invested: 10},
		{Mint: "C", EntryPrice: 2, Sold: true},
		{Mint: "", EntryPrice: 2},
	})
	assert.Equal(t, 1, n)
	assert.True(t, l.IsOpen("A"))
	assert.True(t, l.IsOpen("B"))
	assert.Len(t, l.OpenPositions(), 2)
}

func TestConcurrentOpenSameMint(t *testing.T) {
	l := New(10, 0)
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.Open("A", snap("A", 1), 10, t0); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, succeeded)
}

func TestEvaluateExit(t *testing.T) {
	tests := []struct {
		cur    float64
		reason ExitReason
		hit    bool
	}{
		{1.30, ReasonTakeProfit, true},
		{1.50, ReasonTakeProfit, true},
		{0.85, ReasonStopLoss, true},
		{0.50, ReasonStopLoss, true},
		{1.10, "", false},
		{0.86, "", false},
		{1.29, "", false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%.2f", tt.cur), func(t *testing.T) {
			reason, hit := EvaluateExit(1.0, tt.cur, 30, 15)
			assert.Equal(t, tt.hit, hit)
			assert.Equal(t, tt.reason, reason)
		})
	}

	_, hit := EvaluateExit(0, 1, 30, 15)
	assert.False(t, hit)
	assert.InDelta(t, 1.3, TakeProfitTarget(1, 30), 1e-12)
	assert.InDelta(t, 0.85, StopLossTarget(1, 15), 1e-12)
}
