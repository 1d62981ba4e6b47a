package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rovshanmuradov/solana-sniper/internal/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestBusDeliversInOrder(t *testing.T) {
	bus := NewBus(zap.NewNop(), 16)

	var mu sync.Mutex
	var got []string
	bus.SubscribeFunc(StatusChanged, func(_ context.Context, e Event) error {
		mu.Lock()
		got = append(got, e.(StatusChangedEvent).Status)
		mu.Unlock()
		return nil
	})

	for _, st := range []string{"Running", "Error", "Stopped"} {
		require.NoError(t, bus.Publish(StatusChangedEvent{BaseEvent: New(StatusChanged, time.Now()), Status: st}))
	}
	require.NoError(t, bus.Shutdown(context.Background()))

	assert.Equal(t, []string{"Running", "Error", "Stopped"}, got)
	assert.Equal(t, uint64(3), bus.Stats().Published)
}

func TestBusAnyAndUnsubscribe(t *testing.T) {
	bus := NewBus(zap.NewNop(), 16)
	defer bus.Shutdown(context.Background())

	var all, trades int
	sub := bus.SubscribeFunc(Any, func(context.Context, Event) error {
		all++
		return nil
	})
	bus.Subscribe(PositionClosed, TradeHandler(func(_ context.Context, e PositionClosedEvent) error {
		assert.Equal(t, "mint", e.Trade.Mint)
		trades++
		return nil
	}))

	ctx := context.Background()
	require.NoError(t, bus.PublishSync(ctx, PositionClosedEvent{BaseEvent: New(PositionClosed, time.Now()), Trade: ledger.ClosedTrade{Mint: "mint"}}))
	require.NoError(t, bus.PublishSync(ctx, BalanceChangedEvent{BaseEvent: New(BalanceChanged, time.Now())}))
	assert.Equal(t, 2, all)
	assert.Equal(t, 1, trades)

	sub.Unsubscribe()
	sub.Unsubscribe()
	require.NoError(t, bus.PublishSync(ctx, BalanceChangedEvent{BaseEvent: New(BalanceChanged, time.Now())}))
	assert.Equal(t, 2, all)
	assert.Equal(t, map[EventType]int{PositionClosed: 1}, bus.Stats().Handlers)
}

func TestBusHandlerErrors(t *testing.T) {
	bus := NewBus(zap.NewNop(), 4)
	defer bus.Shutdown(context.Background())

	boom := errors.New("boom")
	bus.SubscribeFunc(BalanceChanged, func(context.Context, Event) error { return boom })

	err := bus.PublishSync(context.Background(), BalanceChangedEvent{BaseEvent: New(BalanceChanged, time.Now())})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, uint64(1), bus.Stats().Failed)
}

func TestBusRejectsAfterShutdown(t *testing.T) {
	bus := NewBus(zap.NewNop(), 1)
	require.NoError(t, bus.Shutdown(context.Background()))

	err := bus.Publish(StatusChangedEvent{BaseEvent: New(StatusChanged, time.Now())})
	assert.ErrorIs(t, err, ErrBusClosed)
}

func TestBusDropsWhenFull(t *testing.T) {
	bus := NewBus(zap.NewNop(), 1)
	defer bus.Shutdown(context.Background())

	block := make(chan struct{})
	bus.SubscribeFunc(StatusChanged, func(context.Context, Event) error {
		<-block
		return nil
	})

	e := StatusChangedEvent{BaseEvent: New(StatusChanged, time.Now())}
	var dropped bool
	for i := 0; i < 5; i++ {
		if errors.Is(bus.Publish(e), ErrBusFull) {
			dropped = true
		}
	}
	close(block)
	assert.True(t, dropped)
	assert.NotZero(t, bus.Stats().Dropped)
}
