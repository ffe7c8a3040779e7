package events

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/purchase-tracker/internal/logging"
)

// DefaultRetention is how long a closed topic stays subscribable.
const DefaultRetention = 10 * time.Minute

// Relay forwards topic activity to other processes sharing the same store.
type Relay interface {
	Publish(ctx context.Context, env Envelope) error
	Start(ctx context.Context, onEnvelope func(Envelope)) error
	Close() error
}

// Envelope is a topic mutation as carried by a Relay.
type Envelope struct {
	Origin string    `json:"origin"`
	JobID  uuid.UUID `json:"job_id"`
	Event  *Event    `json:"event,omitempty"`
	Closed bool      `json:"closed,omitempty"`
}

type topic struct {
	mu       sync.Mutex
	events   []Event
	closed   bool
	closedAt time.Time
	wake     chan struct{}
}

func newTopic() *topic {
	return &topic{wake: make(chan struct{})}
}

// append adds ev and wakes all waiters. Caller must not hold t.mu.
func (t *topic) append(ev Event) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return false
	}
	t.events = append(t.events, ev)
	close(t.wake)
	t.wake = make(chan struct{})
	return true
}

func (t *topic) close(at time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return false
	}
	t.closed = true
	t.closedAt = at
	close(t.wake)
	return true
}

// Broker owns one append-only topic per job. Subscribers replay from the
// first event, so a late subscriber sees the same ordered sequence as an
// early one.
type Broker struct {
	mu        sync.Mutex
	topics    map[uuid.UUID]*topic
	retention time.Duration
	relay     Relay
	origin    string
	log       *logging.Logger
	now       func() time.Time
}

// BrokerOption configures a Broker.
type BrokerOption func(*Broker)

// WithRetention sets how long closed topics are kept.
func WithRetention(d time.Duration) BrokerOption {
	return func(b *Broker) { b.retention = d }
}

// WithRelay mirrors every local publish to r and applies remote envelopes.
func WithRelay(r Relay) BrokerOption {
	return func(b *Broker) { b.relay = r }
}

// NewBroker creates an empty broker.
func NewBroker(log *logging.Logger, opts ...BrokerOption) *Broker {
	b := &Broker{
		topics:    make(map[uuid.UUID]*topic),
		retention: DefaultRetention,
		origin:    uuid.NewString(),
		log:       logging.OrNop(log).With("component", "events"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Origin identifies this broker on the relay.
func (b *Broker) Origin() string {
	return b.origin
}

// Open creates the topic for jobID if it does not exist.
func (b *Broker) Open(jobID uuid.UUID) {
	b.topicFor(jobID, true)
}

// Publish appends ev to the job's topic. Events published after Close are dropped.
func (b *Broker) Publish(ctx context.Context, jobID uuid.UUID, ev Event) {
	t := b.topicFor(jobID, true)
	if !t.append(ev) {
		return
	}
	b.forward(ctx, Envelope{JobID: jobID, Event: &ev})
}

// Close marks the job's topic complete. Subscribers drain remaining events then see io.EOF.
func (b *Broker) Close(ctx context.Context, jobID uuid.UUID) {
	t := b.topicFor(jobID, true)
	if !t.close(b.now()) {
		return
	}
	b.forward(ctx, Envelope{JobID: jobID, Closed: true})
}

// Subscribe returns a cursor over the job's topic, or false when no topic exists.
func (b *Broker) Subscribe(jobID uuid.UUID) (*Subscription, bool) {
	t := b.topicFor(jobID, false)
	if t == nil {
		return nil, false
	}
	return &Subscription{t: t}, true
}

// Sweep drops closed topics older than the retention period and returns how many were removed.
func (b *Broker) Sweep() int {
	cutoff := b.now().Add(-b.retention)
	b.mu.Lock()
	defer b.mu.Unlock()
	removed := 0
	for id, t := range b.topics {
		t.mu.Lock()
		expired := t.closed && t.closedAt.Before(cutoff)
		t.mu.Unlock()
		if expired {
			delete(b.topics, id)
			removed++
		}
	}
	return removed
}

// StartRelay begins applying envelopes published by other brokers.
func (b *Broker) StartRelay(ctx context.Context) error {
	if b.relay == nil {
		return nil
	}
	return b.relay.Start(ctx, b.apply)
}

func (b *Broker) apply(env Envelope) {
	if env.Origin == b.origin {
		return
	}
	t := b.topicFor(env.JobID, true)
	if env.Event != nil {
		t.append(*env.Event)
	}
	if env.Closed {
		t.close(b.now())
	}
}

func (b *Broker) forward(ctx context.Context, env Envelope) {
	if b.relay == nil {
		return
	}
	env.Origin = b.origin
	if err := b.relay.Publish(context.WithoutCancel(ctx), env); err != nil {
		b.log.Warn("relay publish failed", "job_id", env.JobID, "error", err)
	}
}

func (b *Broker) topicFor(jobID uuid.UUID, create bool) *topic {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.topics[jobID]
	if !ok && create {
		t = newTopic()
		b.topics[jobID] = t
	}
	return t
}

// Subscription is one reader's position in a topic.
type Subscription struct {
	t    *topic
	next int
}

// Next blocks until the next event is available. It returns io.EOF once the
// topic is closed and fully read, or ctx.Err() if ctx ends first.
func (s *Subscription) Next(ctx context.Context) (Event, error) {
	for {
		s.t.mu.Lock()
		if s.next < len(s.t.events) {
			ev := s.t.events[s.next]
			s.next++
			s.t.mu.Unlock()
			return ev, nil
		}
		if s.t.closed {
			s.t.mu.Unlock()
			return Event{}, io.EOF
		}
		wake := s.t.wake
		s.t.mu.Unlock()

		select {
		case <-ctx.Done():
			return Event{}, ctx.Err()
		case <-wake:
		}
	}
}
