package hub

import (
	"chatcord-backend/internal/metrics"
	"sync"
	"sync/atomic"
)

// Registry maps topics to the local subscribers of this process.
type Registry struct {
	mutex     sync.RWMutex
	topics    map[string]map[*Subscriber]struct{}
	queueSize int
	lastID    atomic.Int64
}

func NewRegistry(queueSize int) *Registry {
	return &Registry{
		topics:    make(map[string]map[*Subscriber]struct{}),
		queueSize: queueSize,
	}
}

func (r *Registry) NewSubscriber() *Subscriber {
	return newSubscriber(r.lastID.Add(1), r.queueSize)
}

func (r *Registry) Subscribe(topic string, sub *Subscriber) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	subs, exists := r.topics[topic]
	if !exists {
		subs = make(map[*Subscriber]struct{})
		r.topics[topic] = subs
	}

	if _, already := subs[sub]; already {
		return
	}
	subs[sub] = struct{}{}
	sub.topics[topic] = struct{}{}
	metrics.ActiveSubscribers.Inc()
}

func (r *Registry) Unsubscribe(topic string, sub *Subscriber) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.unsubscribe(topic, sub)
}

func (r *Registry) unsubscribe(topic string, sub *Subscriber) {
	subs := r.topics[topic]
	if _, exists := subs[sub]; !exists {
		return
	}

	delete(subs, sub)
	delete(sub.topics, topic)
	metrics.ActiveSubscribers.Dec()

	// delete topic from map if nobody is subscribed to it
	if len(subs) == 0 {
		delete(r.topics, topic)
	}
}

// Close unsubscribes sub from everything and discards its queue.
func (r *Registry) Close(sub *Subscriber) {
	r.mutex.Lock()
	for topic := range sub.topics {
		r.unsubscribe(topic, sub)
	}
	r.mutex.Unlock()

	sub.close()
}

// Deliver pushes ev to every local subscriber of its topic and returns how
// many there were.
func (r *Registry) Deliver(ev Event) int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	subs := r.topics[ev.Topic]
	for sub := range subs {
		sub.push(ev)
	}
	return len(subs)
}

func (r *Registry) SubscriberCount(topic string) int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	return len(r.topics[topic])
}
