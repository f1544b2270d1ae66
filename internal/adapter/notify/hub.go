package notify

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/rl1809/warehouse-flow/internal/core/domain"
)

type EventKind string

const (
	EventRender EventKind = "render"
	EventNotice EventKind = "notice"
)

// Event is what connected clients receive.
type Event struct {
	Kind       EventKind         `json:"kind"`
	Collection domain.Collection `json:"collection,omitempty"`
	Notice     *domain.Notice    `json:"notice,omitempty"`
}

type client struct {
	userID string
	events chan Event
}

// Hub fans render and notice events out to subscribed clients. Slow
// clients miss events instead of blocking the publisher.
type Hub struct {
	logger *zap.Logger
	buffer int

	mu      sync.RWMutex
	nextID  int
	clients map[int]*client
}

func NewHub(logger *zap.Logger, buffer int) *Hub {
	if buffer <= 0 {
		buffer = 16
	}
	return &Hub{logger: logger, buffer: buffer, clients: make(map[int]*client)}
}

// Subscribe registers a client. Notices addressed to other users are not
// delivered to it.
func (h *Hub) Subscribe(userID string) (<-chan Event, func()) {
	c := &client{userID: userID, events: make(chan Event, h.buffer)}

	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.clients[id] = c
	h.mu.Unlock()

	var once sync.Once
	return c.events, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.clients, id)
			h.mu.Unlock()
			close(c.events)
		})
	}
}

func (h *Hub) Render(ctx context.Context, c domain.Collection) {
	h.broadcast(Event{Kind: EventRender, Collection: c}, "")
}

func (h *Hub) Notify(ctx context.Context, notice domain.Notice) {
	if notice.Level == domain.NoticeError {
		h.logger.Info("notice",
			zap.String("user", notice.UserID),
			zap.String("operation", notice.Operation),
			zap.String("message", notice.Message),
		)
	}
	if notice.UserID == "" {
		return
	}
	n := notice
	h.broadcast(Event{Kind: EventNotice, Notice: &n}, notice.UserID)
}

// broadcast sends to every client, or only to userID's clients when set.
func (h *Hub) broadcast(ev Event, userID string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		if userID != "" && c.userID != userID {
			continue
		}
		select {
		case c.events <- ev:
		default:
			h.logger.Debug("dropping event for slow client", zap.String("user", c.userID), zap.String("kind", string(ev.Kind)))
		}
	}
}

func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
