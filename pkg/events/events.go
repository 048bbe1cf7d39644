// Package events fans out graph mutation notifications. Every successful
// mutating primitive produces one typed event; in-process subscribers get
// it over channels and, when a PUB address is configured, external
// observers get it over a mangos PUB socket without polling the graph.
package events

import (
	"context"
	"sync"
	"time"
)

// Kind identifies the mutation an event describes.
type Kind string

const (
	KindPinConnected    Kind = "pin_connected"
	KindPinDisconnected Kind = "pin_disconnected"
	KindLinksBroken     Kind = "links_broken"
	KindPinSplit        Kind = "pin_split"
	KindPinRecombined   Kind = "pin_recombined"
	KindDefaultChanged  Kind = "default_changed"
)

// Event is one graph mutation notification.
type Event struct {
	Kind      Kind           `json:"kind"`
	Timestamp int64          `json:"timestamp"`
	Node      string         `json:"node"`
	Pin       string         `json:"pin"`
	PeerNode  string         `json:"peer_node,omitempty"`
	PeerPin   string         `json:"peer_pin,omitempty"`
	Count     int            `json:"count,omitempty"`
	Detail    map[string]any `json:"detail,omitempty"`
}

// NewEvent creates an event stamped with the current time.
func NewEvent(kind Kind, node, pin string) *Event {
	return &Event{Kind: kind, Timestamp: time.Now().UnixNano(), Node: node, Pin: pin}
}

// Subscription delivers events for one in-process subscriber. Slow
// subscribers drop events rather than stall the mutation path.
type Subscription struct {
	ch        chan *Event
	hub       *Hub
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// Events returns the subscriber's delivery channel.
func (s *Subscription) Events() <-chan *Event { return s.ch }

// Unsubscribe detaches the subscription and closes its channel.
func (s *Subscription) Unsubscribe() {
	s.hub.remove(s)
	s.close()
}

func (s *Subscription) close() {
	s.closeOnce.Do(func() {
		s.cancel()
		close(s.ch)
	})
}

// Hub is the in-process event fan-out point.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[*Subscription]bool
	closed      bool
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subscribers: make(map[*Subscription]bool)}
}

// Subscribe registers an in-process subscriber. The subscription ends when
// ctx is cancelled, Unsubscribe is called, or the hub closes.
func (h *Hub) Subscribe(ctx context.Context) *Subscription {
	subCtx, cancel := context.WithCancel(ctx)
	sub := &Subscription{
		ch:     make(chan *Event, 128),
		hub:    h,
		cancel: cancel,
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		sub.close()
		return sub
	}
	h.subscribers[sub] = true
	h.mu.Unlock()

	go func() {
		<-subCtx.Done()
		h.remove(sub)
	}()
	return sub
}

// Publish delivers the event to every subscriber. Non-blocking: a full
// subscriber buffer drops the event for that subscriber only.
func (h *Hub) Publish(event *Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	for sub := range h.subscribers {
		select {
		case sub.ch <- event:
		default:
		}
	}
}

// Close shuts the hub down and closes all subscriber channels.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	subs := make([]*Subscription, 0, len(h.subscribers))
	for sub := range h.subscribers {
		subs = append(subs, sub)
	}
	h.subscribers = make(map[*Subscription]bool)
	h.mu.Unlock()

	for _, sub := range subs {
		sub.close()
	}
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	delete(h.subscribers, sub)
	h.mu.Unlock()
}
