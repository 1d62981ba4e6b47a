// internal/events/types.go
package events

import (
	"time"

	"github.com/rovshanmuradov/solana-sniper/internal/ledger"
)

// EventType represents the type of event.
type EventType string

const (
	// Session lifecycle
	StatusChanged EventType = "session.status"

	// Position events
	PositionOpened EventType = "position.opened"
	PositionClosed EventType = "position.closed"

	// Balance events
	BalanceChanged EventType = "balance.changed"
)

// Event is the base interface for all events.
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// BaseEvent provides common fields for all events.
type BaseEvent struct {
	EventType EventType
	EventTime time.Time
}

// Type returns the event type.
func (e BaseEvent) Type() EventType {
	return e.EventType
}

// Timestamp returns when the event occurred.
func (e BaseEvent) Timestamp() time.Time {
	return e.EventTime
}

// StatusChangedEvent is emitted on every session status transition.
type StatusChangedEvent struct {
	BaseEvent
	Status string
}

// PositionOpenedEvent is emitted after a confirmed buy.
type PositionOpenedEvent struct {
	BaseEvent
	Position  ledger.Position
	Manual    bool
	SOLAmount float64
}

// PositionClosedEvent is emitted after a confirmed sell.
type PositionClosedEvent struct {
	BaseEvent
	Trade ledger.ClosedTrade
}

// BalanceChangedEvent is emitted when the session SOL balance moves.
type BalanceChangedEvent struct {
	BaseEvent
	WalletAddress string
	OldBalance    float64
	NewBalance    float64
}

// New stamps a BaseEvent of type t at now.
func New(t EventType, now time.Time) BaseEvent {
	return BaseEvent{EventType: t, EventTime: now}
}
