package devserver

import (
	"context"
	"sync"
)

// Hub fans push frames out to every registered socket of an identity.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]map[int64]*hubSubscriber
	nextID      int64
	bufferSize  int
}

type hubSubscriber struct {
	id     int64
	stream chan []byte
}

// NewHub constructs an empty Hub.
func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[string]map[int64]*hubSubscriber),
		bufferSize:  16,
	}
}

// Subscribe registers a frame stream for the identity. The stream is removed
// when the context is done or the cleanup function is called.
func (h *Hub) Subscribe(ctx context.Context, email string) (<-chan []byte, func()) {
	if email == "" {
		stream := make(chan []byte)
		close(stream)
		return stream, func() {}
	}
	subscriber := &hubSubscriber{
		id:     h.nextSequence(),
		stream: make(chan []byte, h.bufferSize),
	}
	h.registerSubscriber(email, subscriber)
	cleanup := func() {
		h.unregisterSubscriber(email, subscriber.id)
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

// Publish delivers one frame to every subscriber of the identity. Slow
// subscribers drop frames rather than block the sender.
func (h *Hub) Publish(email string, frame []byte) {
	if email == "" || len(frame) == 0 {
		return
	}
	h.mu.RLock()
	subscribers := h.subscribers[email]
	if len(subscribers) == 0 {
		h.mu.RUnlock()
		return
	}
	copies := make([]*hubSubscriber, 0, len(subscribers))
	for _, subscriber := range subscribers {
		copies = append(copies, subscriber)
	}
	h.mu.RUnlock()
	for _, subscriber := range copies {
		select {
		case subscriber.stream <- frame:
		default:
		}
	}
}

func (h *Hub) nextSequence() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	return h.nextID
}

func (h *Hub) registerSubscriber(email string, subscriber *hubSubscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subscribers[email]; !ok {
		h.subscribers[email] = make(map[int64]*hubSubscriber)
	}
	h.subscribers[email][subscriber.id] = subscriber
}

func (h *Hub) unregisterSubscriber(email string, subscriberID int64) {
	h.mu.Lock()
	subscribers := h.subscribers[email]
	if subscribers != nil {
		delete(subscribers, subscriberID)
		if len(subscribers) == 0 {
			delete(h.subscribers, email)
		}
	}
	h.mu.Unlock()
}
