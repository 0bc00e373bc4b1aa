package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubStore struct {
	mu     sync.Mutex
	events []Event
}

func (s *stubStore) AppendEvent(_ context.Context, ev Event) (Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ev.ID == "" {
		ev.ID = time.Now().Format("150405.000000000")
	}
	s.events = append(s.events, ev)
	return ev, nil
}

func (s *stubStore) ListUndelivered(_ context.Context, limit int) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Event
	for _, ev := range s.events {
		if ev.DeliveredAt == nil && ev.AbandonedAt == nil {
			out = append(out, ev)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *stubStore) MarkDelivered(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.events {
		if s.events[i].ID == id {
			s.events[i].DeliveredAt = &at
			return nil
		}
	}
	return errors.New("event not found")
}

func (s *stubStore) MarkFailed(_ context.Context, id string, attempts int, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.events {
		if s.events[i].ID == id {
			s.events[i].Attempts = attempts
			s.events[i].LastError = lastError
			return nil
		}
	}
	return errors.New("event not found")
}

func (s *stubStore) MarkAbandoned(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.events {
		if s.events[i].ID == id {
			s.events[i].AbandonedAt = &at
			return nil
		}
	}
	return errors.New("event not found")
}

type stubSink struct {
	err   error
	calls int
}

func (s *stubSink) Deliver(context.Context, Event) error {
	s.calls++
	return s.err
}

func TestTickDeliversAndMarks(t *testing.T) {
	store := &stubStore{}
	sink := &stubSink{}
	d := NewDispatcher(store, sink, nil)
	ctx := context.Background()

	_, err := store.AppendEvent(ctx, Event{Kind: EventApplicationAccepted, ApplicationID: "app-1"})
	require.NoError(t, err)

	d.tick(ctx)
	assert.Equal(t, 1, sink.calls)

	pending, err := store.ListUndelivered(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestTickRecordsFailures(t *testing.T) {
	store := &stubStore{}
	sink := &stubSink{err: errors.New("smtp unavailable")}
	d := NewDispatcher(store, sink, nil)
	ctx := context.Background()

	ev, err := store.AppendEvent(ctx, Event{Kind: EventApplicationAccepted, ApplicationID: "app-1"})
	require.NoError(t, err)

	d.tick(ctx)
	pending, err := store.ListUndelivered(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 1, pending[0].Attempts)
	assert.Equal(t, "smtp unavailable", pending[0].LastError)
	assert.Equal(t, ev.ID, pending[0].ID)
}

func TestTickGivesUpAfterMaxAttempts(t *testing.T) {
	store := &stubStore{}
	sink := &stubSink{err: errors.New("smtp unavailable")}
	d := NewDispatcher(store, sink, nil)
	d.Tune(0, 2, 0)
	ctx := context.Background()

	_, err := store.AppendEvent(ctx, Event{Kind: EventApplicationAccepted, ApplicationID: "app-1"})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		d.tick(ctx)
	}
	// Two real attempts, then the event is abandoned and leaves the queue.
	assert.Equal(t, 2, sink.calls)
	pending, err := store.ListUndelivered(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
	require.NotNil(t, store.events[0].AbandonedAt)
}

func TestTickAbandonedEventsDoNotStarveBatch(t *testing.T) {
	store := &stubStore{}
	sink := &stubSink{err: errors.New("smtp unavailable")}
	d := NewDispatcher(store, sink, nil)
	d.Tune(0, 1, 2)
	ctx := context.Background()

	_, err := store.AppendEvent(ctx, Event{Kind: EventApplicationAccepted, ApplicationID: "app-1"})
	require.NoError(t, err)
	_, err = store.AppendEvent(ctx, Event{Kind: EventApplicationAccepted, ApplicationID: "app-2"})
	require.NoError(t, err)

	// Exhaust both events with a broken sink.
	d.tick(ctx)
	d.tick(ctx)

	// A newer event appended afterwards must still fit in the batch once the
	// exhausted pair is out of the way.
	sink.err = nil
	fresh, err := store.AppendEvent(ctx, Event{Kind: EventApplicationAccepted, ApplicationID: "app-3"})
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		d.tick(ctx)
	}

	pending, err := store.ListUndelivered(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
	for _, ev := range store.events {
		if ev.ID == fresh.ID {
			assert.NotNil(t, ev.DeliveredAt, "fresh event must be delivered")
		}
	}
}

func TestStartStop(t *testing.T) {
	store := &stubStore{}
	d := NewDispatcher(store, &stubSink{}, nil)
	d.Tune(time.Hour, 0, 0)
	ctx := context.Background()

	require.NoError(t, d.Start(ctx))
	require.NoError(t, d.Start(ctx), "second start is a no-op")

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, d.Stop(stopCtx))
	require.NoError(t, d.Stop(stopCtx), "second stop is a no-op")
}
