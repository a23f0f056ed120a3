// Package runstream implements the in-process run-stream broker: per-run
// fan-out pub-sub with late-join replay from the persisted event store, and
// a per-run keyed broker with bounded, asynchronous subscriber queues (a
// live Publish must never block on a slow subscriber).
package runstream

import (
	"context"
	"sync"

	"github.com/PIP-Team-3/paper2notebook/entities"
	"github.com/PIP-Team-3/paper2notebook/store"
)

// Event is a single (type, payload) pair delivered to stream consumers.
type Event struct {
	Type    string
	Payload map[string]any
}

// DefaultQueueSize bounds the number of buffered events a subscriber can
// fall behind by before it is dropped. Chosen generously relative to the
// expected event volume of a single notebook run (a handful of events per
// cell, five cells).
const DefaultQueueSize = 256

// Subscription is a live handle returned by Broker.Subscribe. Events is
// closed when the broker closes the run or the subscription is cancelled.
type Subscription struct {
	Events <-chan Event
	// Dropped reports, once Events is closed, whether this subscriber was
	// dropped for falling behind (queue overflow) rather than a normal close.
	Dropped func() bool

	cancel func()
}

// Cancel unregisters the subscription. Safe to call multiple times.
func (s *Subscription) Cancel() {
	if s.cancel != nil {
		s.cancel()
	}
}

type subscriber struct {
	ch      chan Event
	dropped bool
}

type runState struct {
	mu          sync.Mutex
	subscribers map[*subscriber]struct{}
	closed      bool
}

// Broker is an in-process, per-run pub-sub fan-out. Publishes are
// non-blocking for the publisher: a subscriber that cannot keep up is
// dropped rather than stalling the run.
//
// Ordering: events published to a single run are delivered to every live
// subscriber in publish order. There is no ordering guarantee across
// different runs.
type Broker struct {
	events store.Events

	mu   sync.Mutex
	runs map[string]*runState
}

// New constructs a Broker backed by events for replay on late subscribe.
func New(events store.Events) *Broker {
	return &Broker{events: events, runs: make(map[string]*runState)}
}

func (b *Broker) runStateFor(runID string) *runState {
	b.mu.Lock()
	defer b.mu.Unlock()
	rs, ok := b.runs[runID]
	if !ok {
		rs = &runState{subscribers: make(map[*subscriber]struct{})}
		b.runs[runID] = rs
	}
	return rs
}

// Publish delivers event to every live subscriber of runID and persists it
// to the event store. Publish never blocks on a subscriber: a subscriber
// whose queue is full is dropped (its Events channel closes and Dropped
// reports true), per the broker's documented overflow policy.
func (b *Broker) Publish(ctx context.Context, runID string, event Event) error {
	rec := &entities.RunEvent{
		RunID:   runID,
		Type:    event.Type,
		Payload: event.Payload,
	}
	if b.events != nil {
		if err := b.events.Append(ctx, rec); err != nil {
			return err
		}
	}

	rs := b.runStateFor(runID)
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.closed {
		return nil
	}
	for sub := range rs.subscribers {
		select {
		case sub.ch <- event:
		default:
			sub.dropped = true
			close(sub.ch)
			delete(rs.subscribers, sub)
		}
	}
	return nil
}

// Subscribe registers a live consumer for runID. It first replays every
// event already persisted for the run (via the event store), then delivers
// subsequent live publishes. Replay happens synchronously before Subscribe
// returns is not guaranteed; instead replayed events are the first events
// sent on the returned channel, preserving the replay-then-live ordering a
// caller observes by reading from Events in order.
func (b *Broker) Subscribe(ctx context.Context, runID string) (*Subscription, error) {
	sub := &subscriber{ch: make(chan Event, DefaultQueueSize)}

	rs := b.runStateFor(runID)
	rs.mu.Lock()
	if rs.closed {
		rs.mu.Unlock()
		ch := make(chan Event)
		close(ch)
		return &Subscription{Events: ch, Dropped: func() bool { return false }, cancel: func() {}}, nil
	}
	rs.subscribers[sub] = struct{}{}
	rs.mu.Unlock()

	if b.events != nil {
		past, err := b.events.ListByRun(ctx, runID)
		if err != nil {
			return nil, err
		}
		go func() {
			for _, rec := range past {
				select {
				case sub.ch <- Event{Type: rec.Type, Payload: rec.Payload}:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	cancel := func() {
		rs.mu.Lock()
		defer rs.mu.Unlock()
		if _, ok := rs.subscribers[sub]; ok {
			delete(rs.subscribers, sub)
			close(sub.ch)
		}
	}

	return &Subscription{
		Events:  sub.ch,
		Dropped: func() bool { return sub.dropped },
		cancel:  cancel,
	}, nil
}

// Close marks runID finished: remaining live subscribers' channels are
// closed and any future Subscribe call for runID returns an already-closed
// channel without replay. Persisted events are unaffected by Close; callers
// that need the full history of a finished run should read the event store
// directly rather than Subscribe.
func (b *Broker) Close(runID string) {
	rs := b.runStateFor(runID)
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.closed = true
	for sub := range rs.subscribers {
		close(sub.ch)
	}
	rs.subscribers = make(map[*subscriber]struct{})
}
