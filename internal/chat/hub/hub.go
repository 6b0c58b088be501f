// Package hub fans live-channel events out to every client connected to a
// ticket's room. The registry is transport-agnostic; the websocket glue in
// this package adapts it to fiber connections.
package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-chat/internal/chat"
	"github.com/spec-kit/ticket-chat/internal/domain"
)

const (
	sendBufferSize = 256
	onlineKeyTTL   = 24 * time.Hour
)

// Session represents one connected client.
type Session struct {
	ID       string
	UserID   string
	Username string
	Role     domain.Role
	send     chan chat.Envelope
	closeOne sync.Once
}

// Outbox is the channel the connection's write pump drains.
func (s *Session) Outbox() <-chan chat.Envelope {
	return s.send
}

func (s *Session) close() {
	s.closeOne.Do(func() { close(s.send) })
}

// Hub tracks room membership and broadcasts envelopes to members. An
// optional Redis client mirrors per-room online users so the REST side can
// report who is reachable over the live channel.
type Hub struct {
	logger *zap.Logger
	redis  *redis.Client
	buffer int

	mu    sync.RWMutex
	rooms map[string]map[*Session]struct{}
}

// Option configures the hub.
type Option func(*Hub)

// WithSendBuffer overrides the per-session outbox size.
func WithSendBuffer(n int) Option {
	return func(h *Hub) { h.buffer = n }
}

// WithRedis enables the online-users mirror.
func WithRedis(client *redis.Client) Option {
	return func(h *Hub) { h.redis = client }
}

// New creates an empty hub.
func New(logger *zap.Logger, opts ...Option) *Hub {
	h := &Hub{
		logger: logger,
		buffer: sendBufferSize,
		rooms:  make(map[string]map[*Session]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// NewSession allocates a session for a freshly upgraded connection.
func (h *Hub) NewSession(id, userID, username string, role domain.Role) *Session {
	return &Session{
		ID:       id,
		UserID:   userID,
		Username: username,
		Role:     role,
		send:     make(chan chat.Envelope, h.buffer),
	}
}

// Join adds the session to a ticket's room. Joining twice is a no-op.
func (h *Hub) Join(s *Session, ticketID string) {
	h.mu.Lock()
	members, ok := h.rooms[ticketID]
	if !ok {
		members = make(map[*Session]struct{})
		h.rooms[ticketID] = members
	}
	members[s] = struct{}{}
	h.mu.Unlock()

	h.mirrorJoin(ticketID, s)
}

// Leave removes the session from a room; leaving a room the session is not
// in is a no-op.
func (h *Hub) Leave(s *Session, ticketID string) {
	h.mu.Lock()
	if members, ok := h.rooms[ticketID]; ok {
		delete(members, s)
		if len(members) == 0 {
			delete(h.rooms, ticketID)
		}
	}
	h.mu.Unlock()

	h.mirrorLeave(ticketID, s)
}

// Drop disconnects the session from every room and closes its outbox.
func (h *Hub) Drop(s *Session) {
	h.mu.Lock()
	var left []string
	for ticketID, members := range h.rooms {
		if _, ok := members[s]; ok {
			delete(members, s)
			left = append(left, ticketID)
			if len(members) == 0 {
				delete(h.rooms, ticketID)
			}
		}
	}
	h.mu.Unlock()

	for _, ticketID := range left {
		h.mirrorLeave(ticketID, s)
	}
	s.close()
}

// Broadcast delivers the envelope to every member of the room except the
// sessions listed in except. A member whose outbox is full is dropped: a
// stalled reader must not block the room.
func (h *Hub) Broadcast(ticketID string, env chat.Envelope, except ...*Session) {
	skip := make(map[*Session]struct{}, len(except))
	for _, s := range except {
		skip[s] = struct{}{}
	}

	h.mu.RLock()
	members := make([]*Session, 0, len(h.rooms[ticketID]))
	for s := range h.rooms[ticketID] {
		if _, skipped := skip[s]; !skipped {
			members = append(members, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range members {
		select {
		case s.send <- env:
		default:
			h.logger.Warn("outbox full, dropping session",
				zap.String("session_id", s.ID),
				zap.String("ticket_id", ticketID))
			h.Drop(s)
		}
	}
}

// HandleControl routes a client-to-server envelope. Typing events are
// relayed to the rest of the room; join and leave mutate membership.
func (h *Hub) HandleControl(s *Session, env chat.Envelope) {
	switch env.Kind {
	case chat.EventJoinRoom:
		h.Join(s, env.TicketID)
	case chat.EventLeaveRoom:
		h.Leave(s, env.TicketID)
	case chat.EventTyping, chat.EventStopTyping:
		h.Broadcast(env.TicketID, env, s)
	default:
		h.logger.Debug("ignoring unexpected client event", zap.String("kind", string(env.Kind)))
	}
}

// RoomSize reports the number of connected members, for health reporting.
func (h *Hub) RoomSize(ticketID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[ticketID])
}

func onlineKey(ticketID string) string {
	return fmt.Sprintf("chat:room:%s:online", ticketID)
}

func (h *Hub) mirrorJoin(ticketID string, s *Session) {
	if h.redis == nil {
		return
	}
	ctx := context.Background()
	info, err := json.Marshal(map[string]string{
		"user_id":  s.UserID,
		"username": s.Username,
		"role":     string(s.Role),
	})
	if err != nil {
		return
	}
	key := onlineKey(ticketID)
	if err := h.redis.HSet(ctx, key, s.UserID, info).Err(); err != nil {
		h.logger.Warn("mirror join", zap.Error(err))
		return
	}
	h.redis.Expire(ctx, key, onlineKeyTTL)
}

func (h *Hub) mirrorLeave(ticketID string, s *Session) {
	if h.redis == nil {
		return
	}

	// Another session for the same user may still be in the room.
	h.mu.RLock()
	stillPresent := false
	for member := range h.rooms[ticketID] {
		if member.UserID == s.UserID {
			stillPresent = true
			break
		}
	}
	h.mu.RUnlock()
	if stillPresent {
		return
	}

	if err := h.redis.HDel(context.Background(), onlineKey(ticketID), s.UserID).Err(); err != nil {
		h.logger.Warn("mirror leave", zap.Error(err))
	}
}
