package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/dukerupert/chorepoints/internal/event"
)

// Message is the notification sent to a family's connected clients.
type Message struct {
	Type     string         `json:"type"`
	Entity   string         `json:"entity"`
	Action   string         `json:"action"`
	ID       int64          `json:"id,omitempty"`
	FamilyID int64          `json:"family_id"`
	Extra    map[string]any `json:"extra,omitempty"`
}

// NewMessage creates a Message with the Type field derived from entity and action.
func NewMessage(familyID int64, entity, action string, id int64, extra map[string]any) Message {
	return Message{
		Type:     fmt.Sprintf("%s_%s", entity, action),
		Entity:   entity,
		Action:   action,
		ID:       id,
		FamilyID: familyID,
		Extra:    extra,
	}
}

// FromEvent converts a committed event. "chore_approved" becomes entity
// "chore", action "approved", with the subject id as ID.
func FromEvent(e event.Event) Message {
	entity, action, _ := strings.Cut(string(e.Type), "_")
	extra := map[string]any{
		"event_id":    e.ID,
		"member_id":   e.MemberID,
		"actor_id":    e.ActorID,
		"occurred_at": e.OccurredAt,
	}
	if e.Points != 0 {
		extra["points"] = e.Points
	}
	for k, v := range e.Data {
		extra[k] = v
	}
	return NewMessage(e.FamilyID, entity, action, e.SubjectID, extra)
}

// Hub tracks connected clients per family. A message only reaches clients
// of its own family.
type Hub struct {
	mu       sync.RWMutex
	families map[int64]map[*Client]struct{}
	logger   *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		families: make(map[int64]map[*Client]struct{}),
		logger:   logger,
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	clients, ok := h.families[c.familyID]
	if !ok {
		clients = make(map[*Client]struct{})
		h.families[c.familyID] = clients
	}
	clients[c] = struct{}{}
	h.mu.Unlock()
}

// Unregister removes a client from the hub and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if clients, ok := h.families[c.familyID]; ok {
		if _, ok := clients[c]; ok {
			delete(clients, c)
			close(c.send)
		}
		if len(clients) == 0 {
			delete(h.families, c.familyID)
		}
	}
	h.mu.Unlock()
}

// Broadcast sends a message to every client of msg.FamilyID.
func (h *Hub) Broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal broadcast", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.families[msg.FamilyID] {
		select {
		case c.send <- data:
		default:
			// Slow client; drop rather than block the publisher.
			h.logger.Warn("dropped message", "family_id", msg.FamilyID, "user_id", c.userID, "type", msg.Type)
		}
	}
}

// Publish implements event.Publisher.
func (h *Hub) Publish(_ context.Context, e event.Event) {
	h.Broadcast(FromEvent(e))
}

// ClientCount returns the number of connected clients across all families.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, clients := range h.families {
		n += len(clients)
	}
	return n
}
