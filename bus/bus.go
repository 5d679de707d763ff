// Package bus is the topic-addressed event fabric from spec §4.6:
// hierarchical topic strings, per-subscriber demand signalling, synchronous
// delivery order within one topic, and best-effort fan-out that never lets
// a slow subscriber stall a fast one. Grounded on the teacher's
// engine/pubsub.go (a PubSub keyed by subscriber ID with non-blocking
// channel sends), generalized from one flat metric/tag filter to
// hierarchical topic strings plus a per-subscription type set, and from an
// always-open buffered channel to explicit pull-based demand.
package bus

import (
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Bus is the publish/subscribe registry. The zero value is not usable;
// construct with New.
type Bus struct {
	mu      sync.RWMutex
	byTopic map[string][]*Subscription
	nextID  atomic.Uint64

	droppedTotal prometheus.Counter
}

// New builds an empty Bus.
func New() *Bus {
	return &Bus{
		byTopic: make(map[string][]*Subscription),
		droppedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sensorhub",
			Subsystem: "bus",
			Name:      "events_dropped_total",
			Help:      "Events dropped because the target subscription had no outstanding demand.",
		}),
	}
}

// Collector exposes the bus's dropped-event counter to a prometheus
// registry.
func (b *Bus) Collector() prometheus.Collector { return b.droppedTotal }

// Subscribe registers a demand-controlled subscription to topic. types is a
// set of example values whose concrete Go type the subscription accepts; an
// empty set accepts every payload published to topic (spec §4.6: "the bus
// delivers any event whose runtime type is assignable to any registered
// type"). deliver runs synchronously on the Publish call's goroutine, in
// publication order, whenever the subscription has outstanding demand.
func (b *Bus) Subscribe(topic string, types []any, deliver func(Event)) *Subscription {
	typeSet := make(map[reflect.Type]struct{}, len(types))
	for _, t := range types {
		typeSet[reflect.TypeOf(t)] = struct{}{}
	}

	sub := &Subscription{
		id:      b.nextID.Add(1),
		topic:   topic,
		types:   typeSet,
		deliver: deliver,
	}
	sub.cancel = func() { b.unsubscribe(sub) }

	b.mu.Lock()
	b.byTopic[topic] = append(b.byTopic[topic], sub)
	b.mu.Unlock()
	return sub
}

func (b *Bus) unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.byTopic[sub.topic]
	for i, s := range subs {
		if s == sub {
			b.byTopic[sub.topic] = append(append([]*Subscription{}, subs[:i]...), subs[i+1:]...)
			break
		}
	}
}

// Publish fans payload out to every subscription on topic, synchronously,
// in this call's order relative to any other Publish on the same topic.
// Across different topics no ordering is implied. A subscription with zero
// demand has the event dropped and counted rather than blocking this call.
func (b *Bus) Publish(topic string, payload any) {
	b.mu.RLock()
	subs := append([]*Subscription(nil), b.byTopic[topic]...)
	b.mu.RUnlock()

	evt := Event{Topic: topic, Payload: payload}
	for _, sub := range subs {
		if sub.closed.Load() || !sub.accepts(payload) {
			continue
		}
		if !sub.tryDeliver(evt) {
			sub.dropped.Add(1)
			b.droppedTotal.Inc()
		}
	}
}

// SubscriberCount reports how many live subscriptions exist on topic, for
// tests and diagnostics.
func (b *Bus) SubscriberCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.byTopic[topic])
}
