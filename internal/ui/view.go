package ui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"
	"github.com/rovshanmuradov/solana-sniper/internal/ledger"
	"github.com/rovshanmuradov/solana-sniper/internal/logger"
	"github.com/rovshanmuradov/solana-sniper/internal/session"
)

func positionColumns() []table.Column {
	return []table.Column{
		{Title: "Token", Width: 22},
		{Title: "Entry", Width: 12},
		{Title: "Current", Width: 12},
		{Title: "Chg %", Width: 8},
		{Title: "Invested", Width: 9},
		{Title: "PnL $", Width: 9},
		{Title: "TP", Width: 12},
		{Title: "SL", Width: 12},
		{Title: "Age", Width: 8},
	}
}

func tradeColumns() []table.Column {
	return []table.Column{
		{Title: "Exit", Width: 9},
		{Title: "Token", Width: 22},
		{Title: "Entry", Width: 12},
		{Title: "Exit price", Width: 12},
		{Title: "PnL $", Width: 9},
		{Title: "Reason", Width: 12},
		{Title: "Signature", Width: 14},
	}
}

func positionRow(p ledger.Position, s session.Settings, now time.Time) table.Row {
	return table.Row{
		tokenLabel(p.Name, p.Symbol, p.Mint),
		price(p.EntryPrice),
		price(p.CurrentPrice),
		fmt.Sprintf("%+.1f", p.ChangePct()),
		fmt.Sprintf("%.2f", p.Invested),
		fmt.Sprintf("%+.2f", ledger.RealizedPnL(p.EntryPrice, p.CurrentPrice, p.Invested)),
		price(ledger.TakeProfitTarget(p.EntryPrice, s.TakeProfitPct)),
		price(ledger.StopLossTarget(p.EntryPrice, s.StopLossPct)),
		now.Sub(p.EntryTime).Truncate(time.Second).String(),
	}
}

func tradeRow(t ledger.ClosedTrade) table.Row {
	return table.Row{
		t.ExitTime.Local().Format("15:04:05"),
		tokenLabel(t.Name, t.Symbol, t.Mint),
		price(t.EntryPrice),
		price(t.ExitPrice),
		fmt.Sprintf("%+.2f", t.PnL),
		string(t.Reason),
		logger.ShortenAddress(t.SellSignature),
	}
}

func tokenLabel(name, symbol, mint string) string {
	if symbol != "" && symbol != "?" {
		return symbol + " " + logger.ShortenAddress(mint)
	}
	if name != "" {
		return name
	}
	return logger.ShortenAddress(mint)
}

func price(v float64) string {
	if v <= 0 {
		return "-"
	}
	return strconv.FormatFloat(v, 'g', 6, 64)
}

func shortMint(mint string) string {
	return logger.ShortenAddress(mint)
}

func (m *Model) View() string {
	var b strings.Builder

	b.WriteString(m.headerView())
	b.WriteString("\n")
	b.WriteString(m.paneView("Open positions", m.positions.View(), m.focus == panePositions))
	b.WriteString("\n")
	b.WriteString(m.paneView("Closed trades", m.trades.View(), m.focus == paneTrades))
	b.WriteString("\n")
	b.WriteString(m.paneView("Log", m.logView(), false))
	b.WriteString("\n")

	if m.prompt != promptNone {
		b.WriteString(m.input.View())
		b.WriteString("\n")
		b.WriteString(m.help.ShortHelpView(m.keys.InputHelp()))
		return b.String()
	}
	if m.flash != "" {
		st := m.styles.Positive
		if !m.flashOK {
			st = m.styles.Negative
		}
		b.WriteString(st.Render(m.flash))
		b.WriteString("\n")
	}
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func (m *Model) headerView() string {
	st := m.styles
	sum := m.summary

	mode := st.Warning.Render("SIMULATION")
	if !m.settings.Simulation {
		mode = st.Negative.Render("LIVE")
	}
	var status string
	switch m.status {
	case session.StatusRunning:
		status = st.Positive.Render(string(m.status))
	case session.StatusError:
		status = st.Negative.Render(string(m.status))
	default:
		status = st.Muted.Render(string(m.status))
	}

	field := func(label, value string) string {
		return st.Label.Render(label+" ") + value
	}
	line1 := strings.Join([]string{
		st.Title.Render("SOLANA SNIPER"),
		status,
		mode,
		field("wallet", st.Value.Render(valueOr(logger.ShortenAddress(sum.Wallet), "-"))),
		field("SOL", st.Value.Render(fmt.Sprintf("$%.2f", sum.SOLPriceUSD))),
	}, "  ")
	line2 := strings.Join([]string{
		field("balance", st.Value.Render(fmt.Sprintf("%.4f SOL", sum.CurrentBalance))),
		field("start", st.Value.Render(fmt.Sprintf("%.4f SOL", sum.InitialBalance))),
		field("PnL", st.USD(sum.PnL)),
		field("realized", st.USD(sum.RealizedPnL)),
		field("unrealized", st.USD(sum.UnrealizedPnL)),
		field("win", st.Value.Render(fmt.Sprintf("%.0f%%", sum.WinRate))),
		field("trades", st.Value.Render(strconv.Itoa(sum.Trades))),
		field("open", st.Value.Render(strconv.Itoa(sum.OpenPositions))),
		field("left", st.Value.Render(m.remaining())),
	}, "  ")

	header := st.Header
	if m.width > 4 {
		header = header.Width(m.width - 4)
	}
	return header.Render(lipgloss.JoinVertical(lipgloss.Left, line1, line2))
}

func (m *Model) remaining() string {
	if m.status != session.StatusRunning || m.summary.EndTime.IsZero() {
		return "-"
	}
	left := m.summary.EndTime.Sub(m.now())
	if left < 0 {
		left = 0
	}
	return left.Truncate(time.Second).String()
}

func (m *Model) paneView(title, body string, active bool) string {
	st := m.styles.Pane
	if active {
		st = m.styles.ActivePane
	}
	if m.width > 4 {
		st = st.Width(m.width - 4)
	}
	return st.Render(m.styles.Title.Render(title) + "\n" + body)
}

func (m *Model) logView() string {
	n := 6
	if m.height > 0 {
		n = max((m.height-13)/3-1, 3)
	}
	lines := m.logs
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	width := m.width - 8
	out := make([]string, len(lines))
	for i, line := range lines {
		if width > 0 && len(line) > width {
			line = line[:width]
		}
		out[i] = m.styleLog(line)
	}
	return strings.Join(out, "\n")
}

func (m *Model) styleLog(line string) string {
	switch {
	case strings.Contains(line, "[ERROR]"), strings.Contains(line, "[FILTER FAILED]"):
		return m.styles.Negative.Render(line)
	case strings.Contains(line, "[BUY]"), strings.Contains(line, "[SELL]"):
		return m.styles.Positive.Render(line)
	case strings.Contains(line, "[SUMMARY]"):
		return m.styles.Warning.Render(line)
	default:
		return m.styles.Muted.Render(line)
	}
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
