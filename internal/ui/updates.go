package ui

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rovshanmuradov/solana-sniper/internal/events"
	"go.uber.org/zap"
)

// UpdateSender forwards session events and log lines to the UI without
// ever blocking the sender.
type UpdateSender struct {
	msgChan        chan tea.Msg
	droppedUpdates atomic.Uint64
	sentUpdates    atomic.Uint64
	logger         *zap.Logger
	statsInterval  time.Duration
	stopStats      chan struct{}
	closeOnce      sync.Once
}

// NewUpdateSender creates a sender with a buffer of size messages.
func NewUpdateSender(size int, logger *zap.Logger) *UpdateSender {
	if size <= 0 {
		size = 1024
	}
	us := &UpdateSender{
		msgChan:       make(chan tea.Msg, size),
		logger:        logger.Named("ui"),
		statsInterval: 30 * time.Second,
		stopStats:     make(chan struct{}),
	}

	go us.logStats()

	return us
}

// Updates is the channel consumed by ListenUpdates.
func (us *UpdateSender) Updates() <-chan tea.Msg {
	return us.msgChan
}

// SendUpdate sends a message to UI without blocking
func (us *UpdateSender) SendUpdate(msg tea.Msg) {
	select {
	case us.msgChan <- msg:
		us.sentUpdates.Add(1)
	default:
		us.droppedUpdates.Add(1)
	}
}

// EventHandler subscribes the UI to the session event bus.
func (us *UpdateSender) EventHandler() events.Handler {
	return events.HandlerFunc(func(_ context.Context, e events.Event) error {
		us.SendUpdate(EventMsg{Event: e})
		return nil
	})
}

// LogSink is installed as the session log callback.
func (us *UpdateSender) LogSink(line string) {
	us.SendUpdate(LogMsg{Line: line})
}

// GetStats returns current statistics
func (us *UpdateSender) GetStats() (sent, dropped uint64) {
	return us.sentUpdates.Load(), us.droppedUpdates.Load()
}

func (us *UpdateSender) logStats() {
	ticker := time.NewTicker(us.statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			sent, dropped := us.GetStats()
			if dropped > 0 {
				us.logger.Warn("UI update statistics",
					zap.Uint64("sent", sent),
					zap.Uint64("dropped", dropped),
					zap.Float64("drop_rate", float64(dropped)/float64(sent+dropped)*100))
			}
		case <-us.stopStats:
			return
		}
	}
}

// Close stops the stats loop. The update channel stays open so late senders never panic.
func (us *UpdateSender) Close() {
	us.closeOnce.Do(func() { close(us.stopStats) })
}
