// Package events delivers analysis changes to live subscribers over SSE.
package events

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	domain "github.com/bryanwahyu/imageproof/internal/domain/analyses"
)

const (
	clientBuffer      = 16
	heartbeatInterval = 15 * time.Second
)

// Client is one open subscription. Outbound is closed by Hub.Unsubscribe.
type Client struct {
	ID       uuid.UUID
	OwnerID  string
	Outbound chan domain.Event
	done     chan struct{}
}

// Hub fans events out to the subscriptions of their owner.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{clients: make(map[string]map[*Client]struct{})}
}

// Subscribe registers a new client for owner.
func (h *Hub) Subscribe(owner string) *Client {
	c := &Client{
		ID:       uuid.New(),
		OwnerID:  owner,
		Outbound: make(chan domain.Event, clientBuffer),
		done:     make(chan struct{}),
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[owner]
	if !ok {
		set = make(map[*Client]struct{})
		h.clients[owner] = set
	}
	set[c] = struct{}{}
	zap.L().Debug("sse client subscribed", zap.String("client", c.ID.String()), zap.String("owner", owner))
	return c
}

// Unsubscribe removes the client and closes its channels. Safe to call twice.
func (h *Hub) Unsubscribe(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.OwnerID]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.clients, c.OwnerID)
	}
	close(c.done)
	close(c.Outbound)
}

// Close ends every open stream. Used on server shutdown, which otherwise
// waits for SSE handlers that never return on their own.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for owner, set := range h.clients {
		for c := range set {
			close(c.done)
			close(c.Outbound)
		}
		delete(h.clients, owner)
	}
}

// Subscribers reports the number of open clients for owner.
func (h *Hub) Subscribers(owner string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[owner])
}

// Broadcast delivers ev to its owner's clients, dropping it for any client
// whose buffer is full.
func (h *Hub) Broadcast(ev domain.Event) {
	if ev.OwnerID == "" {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients[ev.OwnerID] {
		select {
		case c.Outbound <- ev:
		default:
			zap.L().Warn("dropping sse event; client buffer full",
				zap.String("client", c.ID.String()),
				zap.String("type", string(ev.Type)),
			)
		}
	}
}

// Serve streams events to the client until the request ends.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, c *Client) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-c.done:
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case ev, ok := <-c.Outbound:
			if !ok {
				return
			}
			raw, err := json.Marshal(ev)
			if err != nil {
				zap.L().Warn("marshal sse event failed", zap.Error(err))
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, raw)
			flusher.Flush()
		}
	}
}
