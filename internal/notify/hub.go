package notify

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const clientBuffer = 32

// Client is one SSE connection subscribed to a channel
type Client struct {
	ID       uuid.UUID
	Channel  string
	outbound chan Message
	done     chan struct{}
	once     sync.Once
}

// Hub routes messages to the SSE clients subscribed to their channel
type Hub struct {
	mu            sync.RWMutex
	subscriptions map[string]map[*Client]struct{}
	heartbeat     time.Duration
}

func NewHub() *Hub {
	return &Hub{
		subscriptions: make(map[string]map[*Client]struct{}),
		heartbeat:     15 * time.Second,
	}
}

// Subscribe registers a new client on channelID
func (h *Hub) Subscribe(channelID string) *Client {
	client := &Client{
		ID:       uuid.New(),
		Channel:  strings.TrimSpace(channelID),
		outbound: make(chan Message, clientBuffer),
		done:     make(chan struct{}),
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.subscriptions[client.Channel]
	if !ok {
		clients = make(map[*Client]struct{})
		h.subscriptions[client.Channel] = clients
	}
	clients[client] = struct{}{}

	log.Debug().Str("clientId", client.ID.String()).Str("channel", client.Channel).Msg("SSE client subscribed")
	return client
}

// Unsubscribe removes the client and stops its stream
func (h *Hub) Unsubscribe(client *Client) {
	h.mu.Lock()
	if clients, ok := h.subscriptions[client.Channel]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.subscriptions, client.Channel)
		}
	}
	h.mu.Unlock()

	client.once.Do(func() { close(client.done) })
}

// Subscribers returns the number of clients listening on channelID
func (h *Hub) Subscribers(channelID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscriptions[channelID])
}

// Notify implements Notifier for in-process delivery
func (h *Hub) Notify(channelID, event string, payload any) {
	if channelID == "" {
		return
	}
	msg, err := newMessage(channelID, event, payload)
	if err != nil {
		log.Warn().Err(err).Str("event", event).Msg("Failed to encode notification")
		return
	}
	h.Broadcast(msg)
}

// Broadcast hands msg to every client of its channel without blocking.
// Messages for unknown channels are dropped.
func (h *Hub) Broadcast(msg Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.subscriptions[msg.Channel] {
		select {
		case c.outbound <- msg:
		default:
			log.Warn().Str("clientId", c.ID.String()).Str("event", msg.Event).Msg("Dropping SSE message; outbound buffer full")
		}
	}
}

// Stream writes the client's messages as server-sent events until the
// request ends or the client is unsubscribed
func (h *Hub) Stream(w http.ResponseWriter, r *http.Request, client *Client) {
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

	fmt.Fprintf(w, "event: connected\ndata: {\"channelId\":%q}\n\n", client.Channel)
	flusher.Flush()

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-client.done:
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case msg := <-client.outbound:
			data := msg.Data
			if len(data) == 0 {
				data = []byte("{}")
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.Event, data)
			flusher.Flush()
		}
	}
}
