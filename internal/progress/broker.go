// Package progress fans job progress events out to subscribers. Streams are
// finite: a subscription is closed after it delivers a terminal event.
package progress

import (
	"context"
	"sync"

	"genstudio/internal/domain"
)

// DefaultBuffer is the per-subscription channel capacity.
const DefaultBuffer = 16

// Publisher accepts progress events for delivery.
type Publisher interface {
	Publish(ctx context.Context, ev domain.JobProgress)
}

// Subscription is one consumer's view of a job's events.
type Subscription struct {
	C <-chan domain.JobProgress

	ch     chan domain.JobProgress
	jobID  string
	broker *Broker
	closed bool
}

// Close detaches the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	s.broker.remove(s)
}

// Broker is an in-process pub/sub keyed by job id. A slow consumer loses its
// oldest buffered events, never the terminal one.
type Broker struct {
	buffer int

	mu   sync.Mutex
	subs map[string]map[*Subscription]struct{}
}

// NewBroker creates a broker with the given per-subscription buffer.
func NewBroker(buffer int) *Broker {
	if buffer < 1 {
		buffer = DefaultBuffer
	}
	return &Broker{buffer: buffer, subs: make(map[string]map[*Subscription]struct{})}
}

// Subscribe registers a consumer for jobID. When initial is non-nil it is
// delivered first; a terminal initial snapshot yields an already-finished stream.
func (b *Broker) Subscribe(jobID string, initial *domain.JobProgress) *Subscription {
	ch := make(chan domain.JobProgress, b.buffer)
	sub := &Subscription{C: ch, ch: ch, jobID: jobID, broker: b}

	b.mu.Lock()
	defer b.mu.Unlock()
	if initial != nil {
		ch <- *initial
		if initial.Status.Terminal() {
			sub.closed = true
			close(ch)
			return sub
		}
	}
	set, ok := b.subs[jobID]
	if !ok {
		set = make(map[*Subscription]struct{})
		b.subs[jobID] = set
	}
	set[sub] = struct{}{}
	return sub
}

// Publish delivers ev to every subscriber of its job without blocking.
func (b *Broker) Publish(_ context.Context, ev domain.JobProgress) {
	b.mu.Lock()
	defer b.mu.Unlock()
	set := b.subs[ev.JobID]
	for sub := range set {
		deliver(sub.ch, ev)
		if ev.Status.Terminal() {
			sub.closed = true
			close(sub.ch)
		}
	}
	if ev.Status.Terminal() {
		delete(b.subs, ev.JobID)
	}
}

// Subscribers returns the number of open subscriptions for a job.
func (b *Broker) Subscribers(jobID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[jobID])
}

func (b *Broker) remove(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sub.closed {
		return
	}
	sub.closed = true
	if set, ok := b.subs[sub.jobID]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(b.subs, sub.jobID)
		}
	}
	close(sub.ch)
}

// deliver sends without blocking, evicting the oldest event when full. Only
// called with the broker lock held, so this is the sole sender.
func deliver(ch chan domain.JobProgress, ev domain.JobProgress) {
	for {
		select {
		case ch <- ev:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

// Fanout publishes to several publishers in order.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, ev domain.JobProgress) {
	for _, p := range f {
		if p != nil {
			p.Publish(ctx, ev)
		}
	}
}
