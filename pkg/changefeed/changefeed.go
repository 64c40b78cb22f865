// Package changefeed broadcasts committed engine mutations to WebSocket
// subscribers. The feed is strictly best-effort: it is never on the
// durability path, and a subscriber that falls behind is disconnected
// rather than allowed to slow down a publish.
package changefeed

import (
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// EventType distinguishes the two mutations the engine can publish.
type EventType string

const (
	// EventPut marks a committed put.
	EventPut EventType = "put"
	// EventRemove marks a committed remove.
	EventRemove EventType = "remove"
)

// Event is one committed mutation, in commit order.
type Event struct {
	Op    EventType `json:"op"`
	Key   string    `json:"key"`
	Value []byte    `json:"value,omitempty"`
}

// subscriberBuffer bounds how far a subscriber may lag before it is
// dropped; mutation throughput must never be gated on a slow reader.
const subscriberBuffer = 64

// Hub fans committed events out to every connected WebSocket client.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[int64]chan Event
	nextID      int64
	closed      bool
}

// NewHub returns an empty, ready-to-use Hub.
func NewHub() *Hub {
	return &Hub{subscribers: make(map[int64]chan Event)}
}

// Publish fans ev out to every current subscriber without blocking. A
// subscriber whose buffer is already full is dropped rather than stalling
// the caller.
func (h *Hub) Publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, ch := range h.subscribers {
		select {
		case ch <- ev:
		default:
			log.Printf("changefeed: subscriber %d can't keep up, dropping", id)
			delete(h.subscribers, id)
			close(ch)
		}
	}
}

func (h *Hub) subscribe() (int64, chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextID
	h.nextID++
	ch := make(chan Event, subscriberBuffer)
	h.subscribers[id] = ch
	return id, ch
}

func (h *Hub) unsubscribe(id int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subscribers[id]; ok {
		delete(h.subscribers, id)
		close(ch)
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServeWS upgrades the request to a WebSocket and streams events to it
// until the connection closes or the subscriber falls too far behind.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("changefeed: upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	id, ch := h.subscribe()
	defer h.unsubscribe(id)

	// Drain and discard anything the client sends; the feed is read-only
	// but a dead TCP connection is only ever discovered by trying to read.
	go func() {
		for {
			if _, _, err := conn.NextReader(); err != nil {
				conn.Close()
				return
			}
		}
	}()

	for ev := range ch {
		if err := conn.WriteJSON(ev); err != nil {
			return
		}
	}
}

// Close disconnects every subscriber. Safe to call once, at server
// shutdown.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subscribers {
		delete(h.subscribers, id)
		close(ch)
	}
}
