package events

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestPublishDeliversToSubscribers(t *testing.T) {
	bus := NewBus(zaptest.NewLogger(t), 16)
	defer func() { _ = bus.Shutdown(context.Background()) }()

	var got atomic.Int32
	bus.Subscribe(PositionOpened, func(_ context.Context, e Event) error {
		pe, ok := e.(PositionEvent)
		require.True(t, ok)
		assert.Equal(t, "mintA", pe.Mint)
		got.Add(1)
		return nil
	})

	err := bus.Publish(PositionEvent{Base: NewBase(PositionOpened), Mint: "mintA", Side: "buy"})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return got.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestSubscribersOnlySeeTheirType(t *testing.T) {
	bus := NewBus(zaptest.NewLogger(t), 16)
	defer func() { _ = bus.Shutdown(context.Background()) }()

	var closed atomic.Int32
	bus.Subscribe(PositionClosed, func(context.Context, Event) error {
		closed.Add(1)
		return nil
	})

	require.NoError(t, bus.Publish(PositionEvent{Base: NewBase(PositionOpened), Mint: "mintA"}))
	require.NoError(t, bus.Publish(PositionEvent{Base: NewBase(PositionClosed), Mint: "mintA"}))

	require.Eventually(t, func() bool { return closed.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewBus(zaptest.NewLogger(t), 16)
	defer func() { _ = bus.Shutdown(context.Background()) }()

	var got atomic.Int32
	sub := bus.Subscribe(SignalReceived, func(context.Context, Event) error {
		got.Add(1)
		return nil
	})

	require.NoError(t, bus.Publish(SignalEvent{Base: NewBase(SignalReceived), Mint: "a"}))
	require.Eventually(t, func() bool { return got.Load() == 1 }, time.Second, 5*time.Millisecond)

	sub.Unsubscribe()
	require.NoError(t, bus.Publish(SignalEvent{Base: NewBase(SignalReceived), Mint: "b"}))

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), got.Load())
}

func TestPublishAfterShutdownFails(t *testing.T) {
	bus := NewBus(zaptest.NewLogger(t), 16)
	require.NoError(t, bus.Shutdown(context.Background()))

	err := bus.Publish(SignalEvent{Base: NewBase(SignalReceived), Mint: "a"})
	assert.Error(t, err)
}
