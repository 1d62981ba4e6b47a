package ui

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rovshanmuradov/solana-sniper/internal/ledger"
	"github.com/rovshanmuradov/solana-sniper/internal/marketdata"
	"github.com/rovshanmuradov/solana-sniper/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeController struct {
	mu        sync.Mutex
	status    session.Status
	positions []ledger.Position
	trades    []ledger.ClosedTrade
	startErr  error
	started   int
	stopped   int
	polls     int
	bought    []string
	sold      []string
	settings  *session.Settings
	saveErr   error
}

func (f *fakeController) Start(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started++
	return f.startErr
}

func (f *fakeController) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped++
	f.status = session.StatusStopped
}

func (f *fakeController) TriggerPoll() {
	f.polls++
}

func (f *fakeController) Status() session.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeController) Settings() session.Settings {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.settings == nil {
		return session.DefaultSettings()
	}
	return *f.settings
}

func (f *fakeController) UpdateSettings(s session.Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.settings = &s
	return nil
}

func (f *fakeController) Summary() session.Summary {
	return session.Summary{CurrentBalance: 1, InitialBalance: 1, OpenPositions: len(f.positions)}
}

func (f *fakeController) OpenPositions() []ledger.Position {
	return f.positions
}

func (f *fakeController) ClosedTrades() []ledger.ClosedTrade {
	return f.trades
}

func (f *fakeController) Logs(int) []string {
	return []string{"boot"}
}

func (f *fakeController) ManualBuy(_ context.Context, snap *marketdata.TokenSnapshot) (bool, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bought = append(f.bought, snap.Mint)
	return true, "Bought " + snap.Mint
}

func (f *fakeController) ManualSell(_ context.Context, mint string) (bool, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sold = append(f.sold, mint)
	return true, "Sold " + mint
}

type fakeSnapshots map[string]*marketdata.TokenSnapshot

func (f fakeSnapshots) FetchPoolSnapshot(_ context.Context, mint string) *marketdata.TokenSnapshot {
	return f[mint]
}

func keyPress(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func newTestModel(ctrl *fakeController, snaps fakeSnapshots) *Model {
	m := NewModel(context.Background(), ctrl, snaps, nil)
	m.now = func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }
	m.Update(tea.WindowSizeMsg{Width: 140, Height: 48})
	return m
}

func send(m *Model, msg tea.Msg) tea.Cmd {
	_, cmd := m.Update(msg)
	return cmd
}

func testPositions() []ledger.Position {
	entry := time.Date(2025, 3, 1, 11, 55, 0, 0, time.UTC)
	return []ledger.Position{
		{Mint: "MintAAAAAAAAAAAA", Symbol: "AAA", EntryPrice: 0.01, CurrentPrice: 0.012, Invested: 19.9, EntryTime: entry},
		{Mint: "MintBBBBBBBBBBBB", Symbol: "BBB", EntryPrice: 1, CurrentPrice: 0.9, Invested: 19.9, EntryTime: entry},
	}
}

func TestModelRendersSessionState(t *testing.T) {
	ctrl := &fakeController{
		status:    session.StatusStopped,
		positions: testPositions(),
		trades: []ledger.ClosedTrade{{
			ID: "t1", Mint: "MintCCCCCCCCCCCC", Symbol: "CCC", EntryPrice: 1, ExitPrice: 1.3,
			PnL: 5.97, Reason: ledger.ReasonTakeProfit, ExitTime: time.Now(), SellSignature: "SIM-sell",
		}},
	}
	m := newTestModel(ctrl, nil)

	require.Len(t, m.positions.Rows(), 2)
	assert.Equal(t, "AAA Mint...AAAA", m.positions.Rows()[0][0])
	assert.Equal(t, "+20.0", m.positions.Rows()[0][3])
	assert.Equal(t, "+3.98", m.positions.Rows()[0][5])
	assert.Equal(t, "5m0s", m.positions.Rows()[0][8])
	require.Len(t, m.trades.Rows(), 1)
	assert.Equal(t, string(ledger.ReasonTakeProfit), m.trades.Rows()[0][5])

	view := m.View()
	assert.Contains(t, view, "SOLANA SNIPER")
	assert.Contains(t, view, "SIMULATION")
	assert.Contains(t, view, "boot")
}

func TestModelStartAndStop(t *testing.T) {
	ctrl := &fakeController{status: session.StatusStopped}
	m := newTestModel(ctrl, nil)

	cmd := send(m, keyPress("s"))
	require.NotNil(t, cmd)
	assert.Equal(t, sessionEndedMsg{}, cmd())
	assert.Equal(t, 1, ctrl.started)

	ctrl.startErr = errors.New("no price")
	send(m, send(m, keyPress("s"))())
	assert.Contains(t, m.flash, "no price")
	assert.False(t, m.flashOK)

	ctrl.status = session.StatusRunning
	cmd = send(m, keyPress("s"))
	require.NotNil(t, cmd)
	send(m, cmd())
	assert.Equal(t, 1, ctrl.stopped)
	assert.Equal(t, "Session stopped", m.flash)
}

func TestModelManualBuyPrompt(t *testing.T) {
	ctrl := &fakeController{status: session.StatusRunning}
	snaps := fakeSnapshots{"MintZZZZ": {Mint: "MintZZZZ", PriceUSD: 0.5}}
	m := newTestModel(ctrl, snaps)

	send(m, keyPress("b"))
	require.Equal(t, promptBuy, m.prompt)
	// keys are routed to the input while prompting
	send(m, keyPress("MintZZZZ"))
	assert.Equal(t, "MintZZZZ", m.input.Value())
	assert.Equal(t, 0, ctrl.stopped)

	cmd := send(m, keyPress("enter"))
	require.NotNil(t, cmd)
	assert.Equal(t, promptNone, m.prompt)
	send(m, cmd())
	assert.Equal(t, []string{"MintZZZZ"}, ctrl.bought)
	assert.True(t, m.flashOK)
	assert.Equal(t, "Bought MintZZZZ", m.flash)

	// unknown mint never reaches the session
	send(m, keyPress("b"))
	send(m, keyPress("Nope"))
	send(m, send(m, keyPress("enter"))())
	assert.Len(t, ctrl.bought, 1)
	assert.False(t, m.flashOK)
	assert.Contains(t, m.flash, "No pool data")

	// esc cancels
	send(m, keyPress("b"))
	send(m, keyPress("x"))
	assert.Nil(t, send(m, keyPress("esc")))
	assert.Equal(t, promptNone, m.prompt)
	assert.Empty(t, ctrl.sold)
}

func TestModelEditSettings(t *testing.T) {
	ctrl := &fakeController{}
	m := newTestModel(ctrl, nil)

	send(m, keyPress("e"))
	require.Equal(t, promptSettings, m.prompt)
	send(m, keyPress("tp=45 sl=10 maxprice=0.5"))
	assert.Nil(t, send(m, keyPress("enter")))
	assert.Equal(t, promptNone, m.prompt)
	assert.True(t, m.flashOK)
	assert.Equal(t, "Settings updated", m.flash)

	got := ctrl.Settings()
	assert.Equal(t, 45.0, got.TakeProfitPct)
	assert.Equal(t, 10.0, got.StopLossPct)
	assert.Equal(t, 0.5, got.Filter.MaxPrice)
	assert.Equal(t, 45.0, m.settings.TakeProfitPct)

	send(m, keyPress("e"))
	send(m, keyPress("tp=abc"))
	send(m, keyPress("enter"))
	assert.False(t, m.flashOK)
	assert.Contains(t, m.flash, "invalid value for tp")

	// rejected by validation
	send(m, keyPress("e"))
	send(m, keyPress("sl=150"))
	send(m, keyPress("enter"))
	assert.Contains(t, m.flash, "stop loss")
	assert.Equal(t, 10.0, ctrl.Settings().StopLossPct)

	ctrl.saveErr = errors.New("read-only file")
	send(m, keyPress("e"))
	send(m, keyPress("tp=50"))
	send(m, keyPress("enter"))
	assert.Equal(t, "Settings update failed: read-only file", m.flash)
}

func TestApplySettingsEdit(t *testing.T) {
	base := session.DefaultSettings()
	base.Filter.RiskyWallets = []string{"Risky1"}

	next, err := applySettingsEdit(base, "size=25 minbuys=5 MaxAge=600 ratio=1.5")
	require.NoError(t, err)
	assert.Equal(t, 25.0, next.PositionSizeUSD)
	assert.Equal(t, 5, next.Filter.MinBuys5m)
	assert.Equal(t, 10*time.Minute, next.Filter.MaxPairAge)
	assert.Equal(t, 1.5, next.Filter.MinBuySellRatio)

	next.Filter.RiskyWallets[0] = "changed"
	assert.Equal(t, "Risky1", base.Filter.RiskyWallets[0])
	assert.Equal(t, 20.0, base.PositionSizeUSD)

	for _, input := range []string{"", "tp", "foo=1", "sl=-1"} {
		_, err := applySettingsEdit(base, input)
		assert.Error(t, err, input)
	}
}

func TestModelManualSellSelected(t *testing.T) {
	ctrl := &fakeController{status: session.StatusRunning, positions: testPositions()}
	m := newTestModel(ctrl, nil)

	send(m, keyPress("down"))
	cmd := send(m, keyPress("x"))
	require.NotNil(t, cmd)
	send(m, cmd())
	assert.Equal(t, []string{"MintBBBBBBBBBBBB"}, ctrl.sold)
	assert.Equal(t, "Sold MintBBBBBBBBBBBB", m.flash)

	ctrl.positions = nil
	send(m, TickMsg{})
	assert.Nil(t, send(m, keyPress("x")))
	assert.Equal(t, "No position selected", m.flash)
}

func TestModelLogsAndPoll(t *testing.T) {
	ctrl := &fakeController{}
	m := newTestModel(ctrl, nil)
	m.updates = make(chan tea.Msg)

	for i := 0; i < maxLogPane+10; i++ {
		send(m, LogMsg{Line: "[BUY] line\n"})
	}
	assert.Len(t, m.logs, maxLogPane)
	assert.Equal(t, "[BUY] line", m.logs[0])

	send(m, keyPress("r"))
	assert.Equal(t, 1, ctrl.polls)

	send(m, keyPress("tab"))
	assert.Equal(t, paneTrades, m.focus)
	assert.True(t, m.trades.Focused())
	assert.False(t, m.positions.Focused())
}

func TestModelQuitStopsRunningSession(t *testing.T) {
	ctrl := &fakeController{status: session.StatusRunning}
	m := newTestModel(ctrl, nil)

	cmd := send(m, keyPress("q"))
	require.NotNil(t, cmd)
	assert.Equal(t, tea.QuitMsg{}, cmd())
	assert.Equal(t, 1, ctrl.stopped)
}
