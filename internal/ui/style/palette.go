package style

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

// Color palette
var (
	Cyan    = lipgloss.Color("#00E5FF") // Primary highlight
	Magenta = lipgloss.Color("#FF1B6B") // Accent
	Yellow  = lipgloss.Color("#FFB500") // Warnings
	Green   = lipgloss.Color("#2AFFAA") // Positive PnL / success
	Red     = lipgloss.Color("#FF5555") // Negative PnL / errors
	Blue    = lipgloss.Color("#3B82F6") // Info

	Base03 = lipgloss.Color("#1B1D23") // Background
	Base01 = lipgloss.Color("#6C7280") // Muted text
	Base2  = lipgloss.Color("#ECEFF4") // Primary text
	Base1  = lipgloss.Color("#B4BCC8") // Secondary text
)

// Palette provides a centralized color management
type Palette struct {
	Primary   lipgloss.Color
	Secondary lipgloss.Color
	Success   lipgloss.Color
	Error     lipgloss.Color
	Warning   lipgloss.Color
	Info      lipgloss.Color

	Background    lipgloss.Color
	Text          lipgloss.Color
	TextMuted     lipgloss.Color
	TextSecondary lipgloss.Color
}

// DefaultPalette returns the default color palette
func DefaultPalette() Palette {
	return Palette{
		Primary:   Cyan,
		Secondary: Magenta,
		Success:   Green,
		Error:     Red,
		Warning:   Yellow,
		Info:      Blue,

		Background:    Base03,
		Text:          Base2,
		TextMuted:     Base01,
		TextSecondary: Base1,
	}
}

// Styles are the dashboard's rendering styles.
type Styles struct {
	Title      lipgloss.Style
	Header     lipgloss.Style
	Label      lipgloss.Style
	Value      lipgloss.Style
	Muted      lipgloss.Style
	Positive   lipgloss.Style
	Negative   lipgloss.Style
	Warning    lipgloss.Style
	Pane       lipgloss.Style
	ActivePane lipgloss.Style
	TableHead  lipgloss.Style
	TableSel   lipgloss.Style
}

// DefaultStyles builds Styles from DefaultPalette.
func DefaultStyles() Styles {
	p := DefaultPalette()
	pane := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(p.TextMuted).
		Padding(0, 1)

	return Styles{
		Title: lipgloss.NewStyle().
			Foreground(p.Primary).
			Bold(true),
		Header: lipgloss.NewStyle().
			Foreground(p.Text).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(p.Primary).
			Padding(0, 2),
		Label:    lipgloss.NewStyle().Foreground(p.TextSecondary),
		Value:    lipgloss.NewStyle().Foreground(p.Text).Bold(true),
		Muted:    lipgloss.NewStyle().Foreground(p.TextMuted),
		Positive: lipgloss.NewStyle().Foreground(p.Success).Bold(true),
		Negative: lipgloss.NewStyle().Foreground(p.Error).Bold(true),
		Warning:  lipgloss.NewStyle().Foreground(p.Warning),

		Pane:       pane,
		ActivePane: pane.BorderForeground(p.Primary),
		TableHead: lipgloss.NewStyle().
			Foreground(p.Secondary).
			Bold(true).
			BorderStyle(lipgloss.NormalBorder()).
			BorderForeground(p.TextMuted).
			BorderBottom(true),
		TableSel: lipgloss.NewStyle().
			Foreground(p.Background).
			Background(p.Primary),
	}
}

// USD renders a signed dollar amount colored by sign.
func (s Styles) USD(v float64) string {
	text := fmt.Sprintf("%+.2f$", v)
	switch {
	case v > 0:
		return s.Positive.Render(text)
	case v < 0:
		return s.Negative.Render(text)
	default:
		return s.Muted.Render(text)
	}
}
