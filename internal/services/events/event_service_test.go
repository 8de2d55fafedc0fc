package events

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/agentstatus/internal/interfaces"
)

func TestPublishDeliversToSubscribers(t *testing.T) {
	service := NewService(arbor.NewLogger())

	var wg sync.WaitGroup
	wg.Add(2)
	var received atomic.Int32
	handler := func(ctx context.Context, event interfaces.Event) error {
		defer wg.Done()
		assert.Equal(t, "/controller/TEST/log.json", event.Payload)
		received.Add(1)
		return nil
	}

	require.NoError(t, service.Subscribe(interfaces.EventLogChanged, handler))
	require.NoError(t, service.Subscribe(interfaces.EventLogChanged, handler))
	require.NoError(t, service.Subscribe(interfaces.EventSnapshotPublished, func(ctx context.Context, event interfaces.Event) error {
		t.Error("unexpected delivery")
		return nil
	}))

	require.NoError(t, service.Publish(context.Background(), interfaces.Event{
		Type:    interfaces.EventLogChanged,
		Payload: "/controller/TEST/log.json",
	}))

	wg.Wait()
	assert.Equal(t, int32(2), received.Load())
	require.NoError(t, service.Close())
}

func TestPublishSyncJoinsErrors(t *testing.T) {
	service := NewService(arbor.NewLogger())
	boom := errors.New("boom")

	require.NoError(t, service.Subscribe(interfaces.EventRefreshRequested, func(ctx context.Context, event interfaces.Event) error {
		return boom
	}))
	require.NoError(t, service.Subscribe(interfaces.EventRefreshRequested, func(ctx context.Context, event interfaces.Event) error {
		return nil
	}))

	err := service.PublishSync(context.Background(), interfaces.Event{Type: interfaces.EventRefreshRequested})
	assert.ErrorIs(t, err, boom)
}

func TestPanickingHandlerIsRecovered(t *testing.T) {
	service := NewService(arbor.NewLogger())

	require.NoError(t, service.Subscribe(interfaces.EventRefreshRequested, func(ctx context.Context, event interfaces.Event) error {
		panic("handler bug")
	}))

	assert.NotPanics(t, func() {
		_ = service.PublishSync(context.Background(), interfaces.Event{Type: interfaces.EventRefreshRequested})
	})
}

func TestCloseWaitsForHandlers(t *testing.T) {
	service := NewService(arbor.NewLogger())

	var done atomic.Bool
	require.NoError(t, service.Subscribe(interfaces.EventLogChanged, func(ctx context.Context, event interfaces.Event) error {
		time.Sleep(20 * time.Millisecond)
		done.Store(true)
		return nil
	}))

	require.NoError(t, service.Publish(context.Background(), interfaces.Event{Type: interfaces.EventLogChanged}))
	require.NoError(t, service.Close())
	assert.True(t, done.Load())

	assert.ErrorIs(t, service.Publish(context.Background(), interfaces.Event{Type: interfaces.EventLogChanged}), ErrClosed)
	assert.ErrorIs(t, service.Subscribe(interfaces.EventLogChanged, func(context.Context, interfaces.Event) error { return nil }), ErrClosed)
}

func TestSubscribeRejectsNil(t *testing.T) {
	service := NewService(arbor.NewLogger())
	assert.Error(t, service.Subscribe(interfaces.EventLogChanged, nil))
}
