package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/gemini-chat/backend/internal/model/chat"
)

func receive(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "channel closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestBusDeliversEventsInOrder(t *testing.T) {
	bus := NewBus(nil)
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := bus.Subscribe(ctx)
	require.NoError(t, err)

	bus.Publish(TranscriptChanged(chat.Snapshot{Version: 1, Messages: []chat.Message{{ID: "1", Role: chat.RoleUser, Content: "x"}}}))
	bus.Publish(BusyChanged(true, 1))
	bus.Publish(Notify("error", "boom", 2))

	first := receive(t, ch)
	assert.Equal(t, TypeTranscript, first.Type)
	require.NotNil(t, first.Snapshot)
	assert.Equal(t, int64(1), first.Snapshot.Version)
	assert.Equal(t, "x", first.Snapshot.Messages[0].Content)

	second := receive(t, ch)
	assert.Equal(t, TypeBusy, second.Type)
	require.NotNil(t, second.Busy)
	assert.True(t, *second.Busy)
	assert.Equal(t, int64(1), second.Version)

	third := receive(t, ch)
	assert.Equal(t, TypeNotification, third.Type)
	assert.Equal(t, "boom", third.Notification.Text)
	assert.Equal(t, int64(2), third.Version)
}

func TestBusSubscriptionClosesWithContext(t *testing.T) {
	bus := NewBus(nil)
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := bus.Subscribe(ctx)
	require.NoError(t, err)

	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("subscription not closed")
	}
}

func TestPublishWithoutSubscribersDoesNotBlock(t *testing.T) {
	bus := NewBus(nil)
	defer bus.Close()

	done := make(chan struct{})
	go func() {
		bus.Publish(BusyChanged(false, 1))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked without subscribers")
	}
}
