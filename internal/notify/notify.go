// Package notify provides the observer hub sessions use to surface
// protection violations, degraded anchors and desync rebuilds.
//
// Observers subscribe to every event or to one topic and receive a
// callback when a matching event is published. Delivery is synchronous
// by default; WithAsync moves it to a background goroutine.
package notify

import (
	"slices"
	"sync"
)

// Topic classifies an event.
type Topic int

const (
	// TopicProtectionBlocked is published when an edit or caret move was
	// refused because it would touch protected highlight text.
	TopicProtectionBlocked Topic = iota

	// TopicAnchorDegraded is published when a highlight could not be
	// relocated by content and fell back to clamped offsets.
	TopicAnchorDegraded

	// TopicRenderRebuilt is published when the renderer detected a
	// desync and rebuilt the surface from the text store.
	TopicRenderRebuilt

	// TopicFormatChanged is published when formatting ranges or comments
	// change.
	TopicFormatChanged
)

// String returns the topic name.
func (t Topic) String() string {
	switch t {
	case TopicProtectionBlocked:
		return "protection-blocked"
	case TopicAnchorDegraded:
		return "anchor-degraded"
	case TopicRenderRebuilt:
		return "render-rebuilt"
	case TopicFormatChanged:
		return "format-changed"
	default:
		return "unknown"
	}
}

// Event is a single notification.
type Event struct {
	// Topic is the event class.
	Topic Topic

	// HighlightID names the highlight involved, if any.
	HighlightID string

	// Offset is the text offset involved, or -1.
	Offset int

	// Message is user-facing guidance text.
	Message string

	// Err is the underlying error, if any.
	Err error
}

// Observer is called when an event is published.
type Observer func(ev Event)

// Subscription represents an active observer subscription.
type Subscription struct {
	id  uint64
	hub *Hub
}

// Unsubscribe removes this subscription. It is safe to call more than once.
func (s *Subscription) Unsubscribe() {
	if s != nil && s.hub != nil {
		s.hub.unsubscribe(s.id)
	}
}

type entry struct {
	id       uint64
	topic    Topic
	all      bool
	observer Observer
}

// Hub manages subscriptions and delivers events.
type Hub struct {
	mu      sync.RWMutex
	entries []entry
	nextID  uint64

	async  bool
	buffer chan Event
	done   chan struct{}
	wg     sync.WaitGroup
	closed bool
}

// Option configures a Hub.
type Option func(*Hub)

// WithAsync enables asynchronous delivery with the given buffer size.
func WithAsync(bufferSize int) Option {
	return func(h *Hub) {
		if bufferSize > 0 {
			h.async = true
			h.buffer = make(chan Event, bufferSize)
		}
	}
}

// New creates a Hub.
func New(opts ...Option) *Hub {
	h := &Hub{done: make(chan struct{})}
	for _, opt := range opts {
		opt(h)
	}
	if h.async {
		h.wg.Add(1)
		go h.processAsync()
	}
	return h
}

// Subscribe registers an observer for every event.
func (h *Hub) Subscribe(observer Observer) *Subscription {
	return h.add(entry{all: true, observer: observer})
}

// SubscribeTopic registers an observer for one topic.
func (h *Hub) SubscribeTopic(topic Topic, observer Observer) *Subscription {
	return h.add(entry{topic: topic, observer: observer})
}

func (h *Hub) add(e entry) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	e.id = h.nextID
	h.nextID++
	h.entries = append(h.entries, e)
	return &Subscription{id: e.id, hub: h}
}

// Len returns the number of active subscriptions.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}

// Publish delivers ev to every matching observer. Publishing on a
// closed hub does nothing.
func (h *Hub) Publish(ev Event) {
	h.mu.RLock()
	closed := h.closed
	h.mu.RUnlock()
	if closed {
		return
	}

	if h.async {
		select {
		case h.buffer <- ev:
		case <-h.done:
		}
		return
	}
	h.deliver(ev)
}

// Close shuts down the hub. Buffered async events are drained first.
// It is safe to call Close multiple times.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	h.mu.Unlock()

	close(h.done)
	h.wg.Wait()
}

func (h *Hub) unsubscribe(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = slices.DeleteFunc(h.entries, func(e entry) bool { return e.id == id })
}

// deliver calls matching observers in subscription order.
func (h *Hub) deliver(ev Event) {
	h.mu.RLock()
	var observers []Observer
	for _, e := range h.entries {
		if e.all || e.topic == ev.Topic {
			observers = append(observers, e.observer)
		}
	}
	h.mu.RUnlock()

	// Call observers outside the lock
	for _, obs := range observers {
		obs(ev)
	}
}

func (h *Hub) processAsync() {
	defer h.wg.Done()

	for {
		select {
		case ev := <-h.buffer:
			h.deliver(ev)
		case <-h.done:
			for {
				select {
				case ev := <-h.buffer:
					h.deliver(ev)
				default:
					return
				}
			}
		}
	}
}

// Batch collects events and publishes them together on Commit.
type Batch struct {
	hub    *Hub
	mu     sync.Mutex
	events []Event
}

// NewBatch creates a batch bound to the hub.
func (h *Hub) NewBatch() *Batch {
	return &Batch{hub: h}
}

// Add queues an event.
func (b *Batch) Add(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, ev)
}

// Commit publishes all queued events in order.
func (b *Batch) Commit() {
	b.mu.Lock()
	events := b.events
	b.events = nil
	b.mu.Unlock()

	for _, ev := range events {
		b.hub.Publish(ev)
	}
}
