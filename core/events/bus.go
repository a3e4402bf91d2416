package events

import (
	"sync"
	"time"
)

// subscription binds a handler to the event types it wants. An empty type
// set is a wildcard.
type subscription struct {
	id      int
	types   map[Type]struct{}
	handler Handler
}

func (s *subscription) wants(t Type) bool {
	if len(s.types) == 0 {
		return true
	}
	_, ok := s.types[t]
	return ok
}

// Bus is a buffered publish/subscribe channel scoped to the engine. Publish
// never blocks: when the buffer is full the event is dropped, counted in
// Dropped().
type Bus struct {
	mu     sync.RWMutex
	subs   []*subscription
	nextID int

	buffer  chan *Event
	done    chan struct{}
	wg      sync.WaitGroup
	started bool
	closed  bool

	dropped int64
}

// NewBus creates a bus with the given buffer size.
func NewBus(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &Bus{
		buffer: make(chan *Event, bufferSize),
		done:   make(chan struct{}),
	}
}

// Subscribe registers a handler for the given event types (none = all).
// The returned function unsubscribes.
func (b *Bus) Subscribe(handler Handler, types ...Type) func() {
	typeSet := make(map[Type]struct{}, len(types))
	for _, t := range types {
		typeSet[t] = struct{}{}
	}

	b.mu.Lock()
	sub := &subscription{id: b.nextID, types: typeSet, handler: handler}
	b.nextID++
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		kept := b.subs[:0]
		for _, s := range b.subs {
			if s.id != sub.id {
				kept = append(kept, s)
			}
		}
		b.subs = kept
	}
}

// Publish enqueues an event for asynchronous delivery.
func (b *Bus) Publish(event *Event) {
	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case b.buffer <- event:
	default:
		b.mu.Lock()
		b.dropped++
		b.mu.Unlock()
	}
}

// Start launches the dispatch goroutine.
func (b *Bus) Start() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started || b.closed {
		return
	}
	b.started = true

	b.wg.Add(1)
	go b.dispatch()
}

func (b *Bus) dispatch() {
	defer b.wg.Done()

	for {
		select {
		case event := <-b.buffer:
			b.deliver(event)
		case <-b.done:
			// Drain what is already buffered so terminal outcomes are not lost.
			for {
				select {
				case event := <-b.buffer:
					b.deliver(event)
				default:
					return
				}
			}
		}
	}
}

func (b *Bus) deliver(event *Event) {
	b.mu.RLock()
	subs := make([]*subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	for _, sub := range subs {
		if sub.wants(event.Type) {
			sub.handler(event)
		}
	}
}

// Dropped returns the number of events dropped due to a full buffer.
func (b *Bus) Dropped() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.dropped
}

// Close stops dispatch after draining buffered events.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	started := b.started
	b.mu.Unlock()

	close(b.done)
	if started {
		b.wg.Wait()
	}
}
