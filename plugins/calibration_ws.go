package plugins

import (
	"log/slog"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	"github.com/linht/rx-filter-cal/rxcal"
)

// subscriberBuffer bounds the events queued for one slow client
const subscriberBuffer = 256

// Subscriber is one websocket client following calibration progress
type Subscriber struct {
	ID     string
	Events chan rxcal.Event
	Closed bool
}

// EventHub fans calibration events out to websocket clients. Publish never
// blocks; a client that falls behind loses events.
type EventHub struct {
	subs   map[string]*Subscriber
	subsMu sync.RWMutex
	log    *slog.Logger
}

// NewEventHub creates an empty hub
func NewEventHub() *EventHub {
	return &EventHub{
		subs: make(map[string]*Subscriber),
		log:  slog.Default().With("component", "events"),
	}
}

// Publish hands ev to every subscriber
func (h *EventHub) Publish(ev rxcal.Event) {
	h.subsMu.RLock()
	defer h.subsMu.RUnlock()

	for _, sub := range h.subs {
		select {
		case sub.Events <- ev:
		default:
			h.log.Warn("Dropping event for slow subscriber", "subscriber", sub.ID, "kind", ev.Kind)
		}
	}
}

// Subscribe registers a new subscriber
func (h *EventHub) Subscribe() *Subscriber {
	sub := &Subscriber{
		ID:     uuid.New().String(),
		Events: make(chan rxcal.Event, subscriberBuffer),
	}

	h.subsMu.Lock()
	h.subs[sub.ID] = sub
	h.subsMu.Unlock()

	return sub
}

// Unsubscribe removes a subscriber and closes its channel
func (h *EventHub) Unsubscribe(id string) {
	h.subsMu.Lock()
	defer h.subsMu.Unlock()
	h.closeUnsafe(id)
}

// Len returns the number of subscribers
func (h *EventHub) Len() int {
	h.subsMu.RLock()
	defer h.subsMu.RUnlock()
	return len(h.subs)
}

// Close drops every subscriber
func (h *EventHub) Close() {
	h.subsMu.Lock()
	defer h.subsMu.Unlock()

	for id := range h.subs {
		h.closeUnsafe(id)
	}
}

func (h *EventHub) closeUnsafe(id string) {
	sub, ok := h.subs[id]
	if !ok || sub.Closed {
		return
	}
	sub.Closed = true
	close(sub.Events)
	delete(h.subs, id)
}

// handleWebSocket streams events until the client goes away
func (p *CalibrationPlugin) handleWebSocket(c *websocket.Conn) {
	sub := p.hub.Subscribe()
	defer p.hub.Unsubscribe(sub.ID)

	slog.Info("Event stream opened", "subscriber", sub.ID)
	if err := c.WriteJSON(fiber.Map{"kind": "hello", "subscriber": sub.ID}); err != nil {
		return
	}

	// Reader only detects the close, clients send nothing
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev, ok := <-sub.Events:
			if !ok {
				return
			}
			if err := c.WriteJSON(ev); err != nil {
				return
			}
		case <-done:
			slog.Info("Event stream closed", "subscriber", sub.ID)
			return
		}
	}
}
