// internal/ui/dashboard.go
package ui

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rovshanmuradov/solana-sniper/internal/ledger"
	"github.com/rovshanmuradov/solana-sniper/internal/marketdata"
	"github.com/rovshanmuradov/solana-sniper/internal/session"
	"github.com/rovshanmuradov/solana-sniper/internal/ui/style"
)

const (
	refreshInterval = time.Second
	maxLogPane      = 200
	recentTrades    = 50
)

// Controller is the session surface the dashboard drives.
type Controller interface {
	Start(ctx context.Context) error
	Stop()
	TriggerPoll()
	Status() session.Status
	Settings() session.Settings
	Summary() session.Summary
	OpenPositions() []ledger.Position
	ClosedTrades() []ledger.ClosedTrade
	Logs(n int) []string
	ManualBuy(ctx context.Context, snap *marketdata.TokenSnapshot) (bool, string)
	ManualSell(ctx context.Context, mint string) (bool, string)
	UpdateSettings(settings session.Settings) error
}

// SnapshotSource resolves a mint typed by the user into pool data.
type SnapshotSource interface {
	FetchPoolSnapshot(ctx context.Context, mint string) *marketdata.TokenSnapshot
}

type pane int

const (
	panePositions pane = iota
	paneTrades
)

type promptKind int

const (
	promptNone promptKind = iota
	promptBuy
	promptSettings
)

// Model is the single-screen trading dashboard.
type Model struct {
	ctx     context.Context
	ctrl    Controller
	snaps   SnapshotSource
	updates <-chan tea.Msg

	keys   KeyMap
	help   help.Model
	styles style.Styles

	positions table.Model
	trades    table.Model
	input     textinput.Model

	focus     pane
	prompt    promptKind
	openMints []string

	status   session.Status
	settings session.Settings
	summary  session.Summary
	logs     []string
	flash    string
	flashOK  bool
	now      func() time.Time

	width  int
	height int
}

// NewModel builds the dashboard. updates may be nil when no bridge is wired.
func NewModel(ctx context.Context, ctrl Controller, snaps SnapshotSource, updates <-chan tea.Msg) *Model {
	st := style.DefaultStyles()
	tableStyles := table.DefaultStyles()
	tableStyles.Header = st.TableHead
	tableStyles.Selected = st.TableSel

	positions := table.New(
		table.WithColumns(positionColumns()),
		table.WithFocused(true),
		table.WithHeight(8),
		table.WithStyles(tableStyles),
	)
	trades := table.New(
		table.WithColumns(tradeColumns()),
		table.WithHeight(8),
		table.WithStyles(tableStyles),
	)

	input := textinput.New()
	input.CharLimit = 128
	input.Width = 64

	m := &Model{
		ctx:       ctx,
		ctrl:      ctrl,
		snaps:     snaps,
		updates:   updates,
		keys:      DefaultKeyMap(),
		help:      help.New(),
		styles:    st,
		positions: positions,
		trades:    trades,
		input:     input,
		now:       time.Now,
	}
	m.logs = ctrl.Logs(maxLogPane)
	m.refresh()
	return m
}

func (m *Model) Init() tea.Cmd {
	cmds := []tea.Cmd{tick(refreshInterval)}
	if m.updates != nil {
		cmds = append(cmds, ListenUpdates(m.updates))
	}
	return tea.Batch(cmds...)
}

func (m *Model) listen() tea.Cmd {
	if m.updates == nil {
		return nil
	}
	return ListenUpdates(m.updates)
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case TickMsg:
		m.refresh()
		return m, tick(refreshInterval)

	case EventMsg:
		m.refresh()
		return m, m.listen()

	case LogMsg:
		m.appendLog(msg.Line)
		return m, m.listen()

	case sessionEndedMsg:
		m.refresh()
		if msg.err != nil {
			m.setFlash(false, "Session failed: "+msg.err.Error())
		}
		return m, nil

	case actionResultMsg:
		m.setFlash(msg.ok, msg.message)
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		if m.prompt != promptNone {
			return m, m.handlePromptKey(msg)
		}
		return m, m.handleKey(msg)
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m.quit()

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return nil

	case key.Matches(msg, m.keys.Tab):
		m.switchFocus()
		return nil

	case key.Matches(msg, m.keys.Toggle):
		if m.ctrl.Status() == session.StatusRunning {
			return m.stopCmd()
		}
		m.setFlash(true, "Starting session...")
		return m.startCmd()

	case key.Matches(msg, m.keys.Poll):
		m.ctrl.TriggerPoll()
		m.setFlash(true, "Discovery poll requested")
		return nil

	case key.Matches(msg, m.keys.Buy):
		return m.openPrompt(promptBuy, "Buy mint > ", "token mint address")

	case key.Matches(msg, m.keys.Edit):
		return m.openPrompt(promptSettings, "Settings > ", settingsUsage())

	case key.Matches(msg, m.keys.Sell):
		mint, ok := m.selectedMint()
		if !ok {
			m.setFlash(false, "No position selected")
			return nil
		}
		return m.sellCmd(mint)
	}

	var cmd tea.Cmd
	if m.focus == panePositions {
		m.positions, cmd = m.positions.Update(msg)
	} else {
		m.trades, cmd = m.trades.Update(msg)
	}
	return cmd
}

func (m *Model) handlePromptKey(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, m.keys.Cancel):
		m.closePrompt()
		return nil
	case key.Matches(msg, m.keys.Confirm):
		value := strings.TrimSpace(m.input.Value())
		kind := m.prompt
		m.closePrompt()
		if kind == promptSettings {
			m.editSettings(value)
			return nil
		}
		if value == "" {
			m.setFlash(false, "Mint address is required")
			return nil
		}
		m.setFlash(true, "Buying "+shortMint(value)+"...")
		return m.buyCmd(value)
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return cmd
}

func (m *Model) openPrompt(kind promptKind, prompt, placeholder string) tea.Cmd {
	m.prompt = kind
	m.input.Prompt = prompt
	m.input.Placeholder = placeholder
	m.input.Reset()
	return m.input.Focus()
}

func (m *Model) closePrompt() {
	m.prompt = promptNone
	m.input.Blur()
	m.input.Reset()
}

func (m *Model) quit() tea.Cmd {
	if m.ctrl.Status() == session.StatusRunning {
		m.ctrl.Stop()
	}
	return tea.Quit
}

func (m *Model) startCmd() tea.Cmd {
	ctx, ctrl := m.ctx, m.ctrl
	return func() tea.Msg {
		err := ctrl.Start(ctx)
		if errors.Is(err, session.ErrAlreadyRunning) {
			return actionResultMsg{ok: false, message: "Session already running"}
		}
		return sessionEndedMsg{err: err}
	}
}

func (m *Model) stopCmd() tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		ctrl.Stop()
		return actionResultMsg{ok: true, message: "Session stopped"}
	}
}

func (m *Model) buyCmd(mint string) tea.Cmd {
	ctx, ctrl, snaps := m.ctx, m.ctrl, m.snaps
	return func() tea.Msg {
		snap := snaps.FetchPoolSnapshot(ctx, mint)
		if snap == nil {
			return actionResultMsg{ok: false, message: "No pool data for " + shortMint(mint)}
		}
		ok, message := ctrl.ManualBuy(ctx, snap)
		return actionResultMsg{ok: ok, message: message}
	}
}

func (m *Model) sellCmd(mint string) tea.Cmd {
	ctx, ctrl := m.ctx, m.ctrl
	return func() tea.Msg {
		ok, message := ctrl.ManualSell(ctx, mint)
		return actionResultMsg{ok: ok, message: message}
	}
}

func (m *Model) editSettings(input string) {
	next, err := applySettingsEdit(m.ctrl.Settings(), input)
	if err == nil {
		err = m.ctrl.UpdateSettings(next)
	}
	if err != nil {
		m.setFlash(false, "Settings update failed: "+err.Error())
		return
	}
	m.setFlash(true, "Settings updated")
	m.refresh()
}

func (m *Model) switchFocus() {
	if m.focus == panePositions {
		m.focus = paneTrades
		m.positions.Blur()
		m.trades.Focus()
		return
	}
	m.focus = panePositions
	m.trades.Blur()
	m.positions.Focus()
}

func (m *Model) selectedMint() (string, bool) {
	i := m.positions.Cursor()
	if i < 0 || i >= len(m.openMints) {
		return "", false
	}
	return m.openMints[i], true
}

// refresh pulls a fresh snapshot of the session into the tables.
func (m *Model) refresh() {
	m.status = m.ctrl.Status()
	m.settings = m.ctrl.Settings()
	m.summary = m.ctrl.Summary()

	open := m.ctrl.OpenPositions()
	m.openMints = m.openMints[:0]
	rows := make([]table.Row, 0, len(open))
	for _, p := range open {
		m.openMints = append(m.openMints, p.Mint)
		rows = append(rows, positionRow(p, m.settings, m.now()))
	}
	m.positions.SetRows(rows)
	if c := m.positions.Cursor(); c >= len(rows) && len(rows) > 0 {
		m.positions.SetCursor(len(rows) - 1)
	}

	closed := m.ctrl.ClosedTrades()
	tradeRows := make([]table.Row, 0, min(len(closed), recentTrades))
	for i := len(closed) - 1; i >= 0 && len(tradeRows) < recentTrades; i-- {
		tradeRows = append(tradeRows, tradeRow(closed[i]))
	}
	m.trades.SetRows(tradeRows)
}

func (m *Model) appendLog(line string) {
	m.logs = append(m.logs, strings.TrimRight(line, "\n"))
	if over := len(m.logs) - maxLogPane; over > 0 {
		m.logs = append(m.logs[:0], m.logs[over:]...)
	}
}

func (m *Model) setFlash(ok bool, message string) {
	m.flashOK = ok
	m.flash = message
}

func (m *Model) resize(width, height int) {
	m.width, m.height = width, height
	m.help.Width = width

	// header 4, help 2, flash 1, pane borders 6, log pane share the rest
	tableHeight := max((height-13)/3, 3)
	m.positions.SetHeight(tableHeight)
	m.trades.SetHeight(tableHeight)
	m.positions.SetWidth(max(width-4, 20))
	m.trades.SetWidth(max(width-4, 20))
}
