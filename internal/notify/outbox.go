// Package notify decouples best-effort notification delivery from
// funds-affecting transactions. State transitions append an event to an
// outbox; a dispatcher delivers events to a sink with its own retry policy.
// Delivery failure never rolls back a state change.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/coduet-labs/escrow-layer/internal/system"
	"github.com/coduet-labs/escrow-layer/pkg/logger"
)

// EventKind names an outbox event type.
type EventKind string

// EventApplicationAccepted is emitted after an accept transition commits.
const EventApplicationAccepted EventKind = "application_accepted"

// Event is one undelivered (or delivered) notification.
type Event struct {
	ID            string
	Kind          EventKind
	ApplicationID string
	Attempts      int
	LastError     string
	CreatedAt     time.Time
	DeliveredAt   *time.Time
	AbandonedAt   *time.Time
}

// OutboxStore persists outbox events. Abandoned events are terminal: they
// leave the undelivered queue so exhausted retries cannot crowd out newer
// events from the batch window.
type OutboxStore interface {
	AppendEvent(ctx context.Context, ev Event) (Event, error)
	ListUndelivered(ctx context.Context, limit int) ([]Event, error)
	MarkDelivered(ctx context.Context, id string, at time.Time) error
	MarkFailed(ctx context.Context, id string, attempts int, lastError string) error
	MarkAbandoned(ctx context.Context, id string, at time.Time) error
}

// Sink delivers one event to the external notification collaborator.
type Sink interface {
	Deliver(ctx context.Context, ev Event) error
}

// Dispatcher drains the outbox on an interval and delivers events to the
// sink, giving up on an event after maxAttempts.
type Dispatcher struct {
	store       OutboxStore
	sink        Sink
	interval    time.Duration
	maxAttempts int
	batchSize   int
	log         *logger.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

var _ system.Service = (*Dispatcher)(nil)

// NewDispatcher creates an outbox dispatcher.
func NewDispatcher(store OutboxStore, sink Sink, log *logger.Logger) *Dispatcher {
	if log == nil {
		log = logger.NewDefault("notify-dispatcher")
	}
	return &Dispatcher{
		store:       store,
		sink:        sink,
		interval:    10 * time.Second,
		maxAttempts: 5,
		batchSize:   32,
		log:         log,
	}
}

// Tune overrides the loop parameters. Zero or negative values keep the
// current setting. Must be called before Start.
func (d *Dispatcher) Tune(interval time.Duration, maxAttempts, batchSize int) {
	if interval > 0 {
		d.interval = interval
	}
	if maxAttempts > 0 {
		d.maxAttempts = maxAttempts
	}
	if batchSize > 0 {
		d.batchSize = batchSize
	}
}

func (d *Dispatcher) Name() string { return "notify-dispatcher" }

// Start launches the dispatch loop.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.running = true

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ticker := time.NewTicker(d.interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				d.tick(runCtx)
			}
		}
	}()

	d.log.Info("notification dispatcher started")
	return nil
}

// Stop halts the dispatch loop and waits for the in-flight tick.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	cancel := d.cancel
	d.running = false
	d.cancel = nil
	d.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		d.wg.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func (d *Dispatcher) tick(ctx context.Context) {
	events, err := d.store.ListUndelivered(ctx, d.batchSize)
	if err != nil {
		d.log.Warnf("list undelivered events: %v", err)
		return
	}

	for _, ev := range events {
		if ev.Attempts >= d.maxAttempts {
			d.log.Warnf("abandon event %s after %d attempts: %s", ev.ID, ev.Attempts, ev.LastError)
			if err := d.store.MarkAbandoned(ctx, ev.ID, time.Now().UTC()); err != nil {
				d.log.Warnf("mark event %s abandoned: %v", ev.ID, err)
			}
			continue
		}
		if err := d.sink.Deliver(ctx, ev); err != nil {
			ev.Attempts++
			d.log.Warnf("deliver event %s (attempt %d): %v", ev.ID, ev.Attempts, err)
			if markErr := d.store.MarkFailed(ctx, ev.ID, ev.Attempts, err.Error()); markErr != nil {
				d.log.Warnf("mark event %s failed: %v", ev.ID, markErr)
			}
			continue
		}
		if err := d.store.MarkDelivered(ctx, ev.ID, time.Now().UTC()); err != nil {
			d.log.Warnf("mark event %s delivered: %v", ev.ID, err)
		}
	}
}

// LogSink records the notification instead of sending it. The production
// e-mail provider is not configured in this layer; delivery stays
// fire-and-forget either way.
type LogSink struct {
	log *logger.Logger
}

// NewLogSink creates a sink that only logs.
func NewLogSink(log *logger.Logger) *LogSink {
	if log == nil {
		log = logger.NewDefault("notify-sink")
	}
	return &LogSink{log: log}
}

// Deliver logs the event.
func (s *LogSink) Deliver(_ context.Context, ev Event) error {
	s.log.Infof("notification %s for application %s", ev.Kind, ev.ApplicationID)
	return nil
}
