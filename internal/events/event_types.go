package events

import (
	"time"

	"github.com/spec-kit/ticket-chat/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated       EventType = "ticket_created"
	EventTicketStatusChanged EventType = "ticket_status_changed"
	EventTicketForwarded     EventType = "ticket_forwarded"
	EventTicketClosed        EventType = "ticket_closed"
	EventTicketMessageAdded  EventType = "ticket_message_added"
)

// Actor encapsulates actor metadata for an event.
type Actor struct {
	UserID string      `json:"user_id"`
	Role   domain.Role `json:"role"`
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	TicketID  string    `json:"ticket_id"`
	Actor     Actor     `json:"actor"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	Type    domain.TicketType    `json:"type"`
	Urgency domain.TicketUrgency `json:"urgency"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
	Reason    string              `json:"reason,omitempty"`
}

// TicketForwardedPayload payload.
type TicketForwardedPayload struct {
	AssigneeID   string `json:"assignee_id"`
	AssigneeName string `json:"assignee_name"`
}

// TicketClosedPayload payload.
type TicketClosedPayload struct {
	CreatorID string    `json:"creator_id"`
	ClosedAt  time.Time `json:"closed_at"`
}

// TicketMessageAddedPayload payload.
type TicketMessageAddedPayload struct {
	Message domain.ChatMessage `json:"message"`
}
