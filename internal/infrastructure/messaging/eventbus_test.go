package messaging

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rms-hub/residency-hub/internal/domain/shared"
)

func submitted(id string) shared.Event {
	return shared.NewAssessmentSubmittedEvent(shared.AssessmentID(id), "res-rodriguez", "fac-patel", 5, shared.LevelIndirect,
		time.Date(2025, 1, 20, 11, 0, 0, 0, time.UTC))
}

func TestEventBus_SyncDelivery(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{AsyncMode: false})
	defer bus.Close()

	var typed, all []string
	require.NoError(t, bus.Subscribe(shared.EventAssessmentSubmitted, func(e shared.Event) error {
		typed = append(typed, e.AggregateID())
		return nil
	}))
	require.NoError(t, bus.Subscribe(shared.EventAssessmentDeleted, func(e shared.Event) error {
		t.Fatalf("unexpected delivery of %s", e.EventType())
		return nil
	}))
	require.NoError(t, bus.SubscribeAll(func(e shared.Event) error {
		all = append(all, string(e.EventType()))
		return nil
	}))

	require.NoError(t, bus.Publish(submitted("a-1")))
	require.NoError(t, bus.Publish(shared.NewAssessmentAcknowledgedEvent("a-1", "res-rodriguez", time.Now())))

	assert.Equal(t, []string{"a-1"}, typed)
	assert.Equal(t, []string{"assessment.submitted", "assessment.acknowledged"}, all)

	snap := bus.Metrics().Snapshot()
	assert.Equal(t, int64(1), snap.Published[shared.EventAssessmentSubmitted])
	assert.Equal(t, int64(3), snap.HandlerExecutions)
	assert.Zero(t, snap.HandlerFailures)
}

func TestEventBus_HandlerFailuresAreContained(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{AsyncMode: false})
	defer bus.Close()

	var reached bool
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error { return errors.New("boom") }))
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error { panic("bad handler") }))
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error { reached = true; return nil }))

	assert.NoError(t, bus.Publish(submitted("a-2")))
	assert.True(t, reached)
	assert.Equal(t, int64(2), bus.Metrics().Snapshot().HandlerFailures)
}

func TestEventBus_AsyncWait(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{AsyncMode: true, WorkerPoolSize: 2})

	var n atomic.Int32
	var mu sync.Mutex
	seen := map[string]bool{}
	require.NoError(t, bus.SubscribeAll(func(e shared.Event) error {
		n.Add(1)
		mu.Lock()
		seen[e.AggregateID()] = true
		mu.Unlock()
		return nil
	}))

	for _, id := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, bus.Publish(submitted(id)))
	}
	bus.Wait()
	assert.Equal(t, int32(5), n.Load())
	assert.Len(t, seen, 5)

	require.NoError(t, bus.Close())
	assert.ErrorIs(t, bus.Publish(submitted("late")), ErrEventBusClosed)
	assert.ErrorIs(t, bus.SubscribeAll(func(shared.Event) error { return nil }), ErrEventBusClosed)
}

func TestEventBus_RejectsNil(t *testing.T) {
	bus := NewInMemoryEventBus(DefaultInMemoryEventBusConfig())
	defer bus.Close()
	assert.Error(t, bus.Publish(nil))
	assert.Error(t, bus.Subscribe(shared.EventAssessmentSubmitted, nil))
}

func TestEventBus_SyncSubscribersRunBeforePublishReturns(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{AsyncMode: true, WorkerPoolSize: 1})
	defer bus.Close()

	release := make(chan struct{})
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error {
		<-release
		return nil
	}))
	var invalidated atomic.Bool
	require.NoError(t, bus.SubscribeSync(shared.EventAssessmentSubmitted, func(shared.Event) error {
		invalidated.Store(true)
		return errors.New("cache down")
	}))

	require.NoError(t, bus.Publish(submitted("a-3")))
	assert.True(t, invalidated.Load(), "inline handler finished before Publish returned")

	close(release)
	bus.Wait()
	assert.Equal(t, int64(1), bus.Metrics().Snapshot().HandlerFailures)

	require.NoError(t, bus.Close())
	assert.ErrorIs(t, bus.SubscribeSync(shared.EventAssessmentSubmitted, func(shared.Event) error { return nil }), ErrEventBusClosed)
}
