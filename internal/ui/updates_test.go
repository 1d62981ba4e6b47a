package ui

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rovshanmuradov/solana-sniper/internal/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestUpdateSenderNonBlocking(t *testing.T) {
	sender := NewUpdateSender(10, zap.NewNop())
	defer sender.Close()

	for i := 0; i < 10; i++ {
		sender.LogSink("test")
	}

	// These should be dropped without blocking
	start := time.Now()
	for i := 0; i < 100; i++ {
		sender.LogSink("dropped")
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond)

	sent, dropped := sender.GetStats()
	assert.Equal(t, uint64(10), sent)
	assert.Equal(t, uint64(100), dropped)
}

func TestUpdateSenderConcurrent(t *testing.T) {
	sender := NewUpdateSender(100, zap.NewNop())
	defer sender.Close()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				sender.LogSink("line")
			}
		}()
	}
	wg.Wait()

	sent, dropped := sender.GetStats()
	assert.Equal(t, uint64(1000), sent+dropped)
	assert.Equal(t, uint64(100), sent)
}

func TestUpdateSenderBridgesBusEvents(t *testing.T) {
	sender := NewUpdateSender(8, zap.NewNop())
	defer sender.Close()
	bus := events.NewBus(zap.NewNop(), 8)
	bus.Subscribe(events.Any, sender.EventHandler())

	ev := events.StatusChangedEvent{BaseEvent: events.New(events.StatusChanged, time.Now()), Status: "Running"}
	require.NoError(t, bus.PublishSync(context.Background(), ev))

	msg := ListenUpdates(sender.Updates())()
	got, ok := msg.(EventMsg)
	require.True(t, ok)
	assert.Equal(t, events.StatusChanged, got.Event.Type())
	require.NoError(t, bus.Shutdown(context.Background()))
}

func TestUpdateSenderCloseIsIdempotent(t *testing.T) {
	sender := NewUpdateSender(1, zap.NewNop())
	sender.Close()
	sender.Close()
	sender.LogSink("after close")
	_, dropped := sender.GetStats()
	assert.Zero(t, dropped)
}
