package ui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rovshanmuradov/solana-sniper/internal/events"
)

// Tea message types for UI communication

// EventMsg wraps a session event.
type EventMsg struct {
	Event events.Event
}

// LogMsg is one session log line.
type LogMsg struct {
	Line string
}

// TickMsg drives the periodic refresh.
type TickMsg time.Time

// sessionEndedMsg is returned when a Start call returns.
type sessionEndedMsg struct {
	err error
}

// actionResultMsg reports the outcome of a manual action.
type actionResultMsg struct {
	ok      bool
	message string
}

// ListenUpdates returns a tea.Cmd that waits for the next bridged message.
// It yields nil once ch is closed.
func ListenUpdates(ch <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return nil
		}
		return msg
	}
}

func tick(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}
