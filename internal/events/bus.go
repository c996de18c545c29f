// Package events is the trading core's in-process pub/sub. Every topic is
// typed: Subscribe and Publish compile against the payload type the topic
// declares, so subscribers receive domain values instead of asserting on a
// bare interface.
package events

import (
	"sync"

	"github.com/DevStudio-infra/the-trade-tracker-sub002/pkg/broker"
	"github.com/DevStudio-infra/the-trade-tracker-sub002/pkg/market"
)

// Topic names an event stream and fixes its payload type.
type Topic[T any] struct {
	name string
}

// Core topics. Payloads are the domain values themselves, not envelopes.
var (
	PriceUpdates    = Topic[market.Snapshot]{name: "price.update"}
	CandlesClosed   = Topic[market.ClosedCandle]{name: "candle.closed"}
	OrderUpdates    = Topic[broker.Order]{name: "order.update"}
	OrdersFilled    = Topic[broker.Order]{name: "order.filled"}
	PositionsOpened = Topic[broker.Position]{name: "position.opened"}
	PositionsClosed = Topic[broker.Position]{name: "position.closed"}
	RiskAlerts      = Topic[string]{name: "risk.alert"}
	StreamFailures  = Topic[error]{name: "stream.fatal"}
)

// Bus fans payloads out to topic subscribers. Publishing never blocks: a
// subscriber whose buffer is full misses that event.
type Bus struct {
	mu   sync.RWMutex
	subs map[string][]any // per topic name; each element is a chan T
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[string][]any)}
}

// Subscribe registers a listener on a topic and returns the receive channel
// plus an unsubscribe function that closes it.
func Subscribe[T any](b *Bus, topic Topic[T], buffer int) (<-chan T, func()) {
	ch := make(chan T, buffer)

	b.mu.Lock()
	b.subs[topic.name] = append(b.subs[topic.name], ch)
	b.mu.Unlock()

	unsub := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subs[topic.name]
		for i, c := range subs {
			if c == any(ch) {
				close(ch)
				b.subs[topic.name] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
	}
	return ch, unsub
}

// Publish delivers payload to every subscriber of the topic without blocking.
func Publish[T any](b *Bus, topic Topic[T], payload T) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs[topic.name] {
		ch, ok := s.(chan T)
		if !ok {
			continue
		}
		select {
		case ch <- payload:
		default:
			// slow subscriber; drop rather than stall the producer
		}
	}
}
