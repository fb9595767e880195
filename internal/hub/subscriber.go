package hub

import (
	"chatcord-backend/internal/metrics"
	"sync"
)

// Subscriber receives live events of the topics it subscribed to. Its queue
// is bounded; when it is full the oldest entry is dropped and the subscriber
// is marked as lagging, so publishing never waits on a slow reader.
type Subscriber struct {
	id    int64
	limit int

	mutex   sync.Mutex
	queue   []Event
	lagging bool
	closed  bool
	notify  chan struct{}

	// guarded by the registry mutex
	topics map[string]struct{}
}

func newSubscriber(id int64, limit int) *Subscriber {
	if limit < 1 {
		limit = 1
	}
	return &Subscriber{
		id:     id,
		limit:  limit,
		queue:  make([]Event, 0, limit),
		notify: make(chan struct{}, 1),
		topics: make(map[string]struct{}),
	}
}

func (s *Subscriber) ID() int64 {
	return s.id
}

// push never blocks.
func (s *Subscriber) push(ev Event) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.closed {
		return
	}

	if len(s.queue) >= s.limit {
		copy(s.queue, s.queue[1:])
		s.queue = s.queue[:len(s.queue)-1]
		metrics.DeliveriesDropped.Inc()

		if !s.lagging {
			s.lagging = true
			metrics.LaggingSubscribers.Inc()
		}
	}
	s.queue = append(s.queue, ev)

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Notify is signalled after new events were queued.
func (s *Subscriber) Notify() <-chan struct{} {
	return s.notify
}

// Drain takes every queued event, oldest first. lagged reports whether events
// were dropped since the last Drain; the caller has to reconcile through
// history in that case.
func (s *Subscriber) Drain() (events []Event, lagged bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	events = make([]Event, len(s.queue))
	copy(events, s.queue)
	s.queue = s.queue[:0]

	lagged = s.lagging
	s.lagging = false
	return events, lagged
}

func (s *Subscriber) Lagging() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.lagging
}

func (s *Subscriber) close() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.closed = true
	s.queue = nil
}
