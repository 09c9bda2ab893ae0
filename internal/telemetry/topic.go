package telemetry

import (
	"sync"
	"sync/atomic"
)

// Topic is a fan-out of one event kind. Each subscriber owns a bounded
// channel; a full channel sheds its oldest event so publishers never block.
type Topic[E any] struct {
	mu     sync.Mutex
	subs   map[*Subscription[E]]struct{}
	closed bool
}

// Subscription is one subscriber's view of a topic. Events arrive on Events()
// until Close is called or the topic shuts down; the channel is closed in
// both cases.
type Subscription[E any] struct {
	topic   *Topic[E]
	ch      chan E
	filter  func(E) bool
	once    sync.Once
	dropped atomic.Uint64
}

// NewTopic constructs an empty topic.
func NewTopic[E any]() *Topic[E] {
	return &Topic[E]{subs: make(map[*Subscription[E]]struct{})}
}

// Subscribe registers a new subscription. filter may be nil to receive every
// event; buffer must be positive. Subscribing to a closed topic returns a
// subscription whose channel is already closed.
func (t *Topic[E]) Subscribe(buffer int, filter func(E) bool) *Subscription[E] {
	if buffer <= 0 {
		buffer = 1
	}
	sub := &Subscription[E]{topic: t, ch: make(chan E, buffer), filter: filter}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		close(sub.ch)
		return sub
	}
	t.subs[sub] = struct{}{}
	return sub
}

// Publish delivers an event to every matching subscription. When a
// subscription's buffer is full, its oldest buffered event is discarded to
// make room.
func (t *Topic[E]) Publish(event E) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	for sub := range t.subs {
		if sub.filter != nil && !sub.filter(event) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			select {
			case <-sub.ch:
				sub.dropped.Add(1)
			default:
			}
			select {
			case sub.ch <- event:
			default:
				sub.dropped.Add(1)
			}
		}
	}
}

// Close ends every subscription. Buffered events remain readable; the
// channels then report closure. Publishing after Close is a no-op.
func (t *Topic[E]) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	for sub := range t.subs {
		close(sub.ch)
		delete(t.subs, sub)
	}
}

// Subscribers reports the current subscription count.
func (t *Topic[E]) Subscribers() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subs)
}

// Events returns the subscription's delivery channel. It is closed exactly
// once, by Close or by topic shutdown.
func (s *Subscription[E]) Events() <-chan E {
	return s.ch
}

// Close unregisters the subscription and closes its channel. Safe to call
// from any goroutine, any number of times.
func (s *Subscription[E]) Close() {
	s.once.Do(func() {
		s.topic.mu.Lock()
		defer s.topic.mu.Unlock()
		if _, ok := s.topic.subs[s]; ok {
			delete(s.topic.subs, s)
			close(s.ch)
		}
	})
}

// Dropped reports how many events were shed because this subscriber fell
// behind.
func (s *Subscription[E]) Dropped() uint64 {
	return s.dropped.Load()
}
