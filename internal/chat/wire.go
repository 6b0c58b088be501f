// Package chat defines the wire protocol shared by the server-side room hub
// and the client-side transport: one JSON envelope per frame, tagged with an
// event kind.
package chat

import (
	"encoding/json"
	"time"

	"github.com/spec-kit/ticket-chat/internal/domain"
)

// EventKind tags envelope payloads.
type EventKind string

const (
	// Control events, client to server.
	EventJoinRoom   EventKind = "joinRoom"
	EventLeaveRoom  EventKind = "leaveRoom"
	EventTyping     EventKind = "typing"
	EventStopTyping EventKind = "stopTyping"

	// Broadcast events, server to clients.
	EventNewMessage      EventKind = "newMessage"
	EventTicketClosed    EventKind = "ticketClosed"
	EventTicketForwarded EventKind = "ticketForwarded"
)

// Envelope is the single frame format on the live channel. Data holds the
// kind-specific payload, still encoded, so subscribers decode only what they
// handle.
type Envelope struct {
	Kind     EventKind       `json:"kind"`
	TicketID string          `json:"ticket_id"`
	Data     json.RawMessage `json:"data,omitempty"`
}

// TypingPayload accompanies typing and stopTyping events.
type TypingPayload struct {
	TicketID string `json:"ticket_id"`
	UserID   string `json:"user_id"`
	Username string `json:"username,omitempty"`
}

// MessagePayload accompanies newMessage events.
type MessagePayload struct {
	ID          string              `json:"id"`
	TicketID    string              `json:"ticket_id"`
	SenderID    string              `json:"sender_id"`
	SenderRole  domain.Role         `json:"sender_role"`
	Body        string              `json:"body,omitempty"`
	Attachments []domain.Attachment `json:"attachments,omitempty"`
	IsSystem    bool                `json:"is_system,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
}

// TicketEventPayload accompanies ticketClosed and ticketForwarded events.
type TicketEventPayload struct {
	TicketID   string  `json:"ticket_id"`
	AssigneeID *string `json:"assignee_id,omitempty"`
}

// NewEnvelope marshals payload into an envelope for the given kind.
func NewEnvelope(kind EventKind, ticketID string, payload any) (Envelope, error) {
	env := Envelope{Kind: kind, TicketID: ticketID}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Envelope{}, err
		}
		env.Data = data
	}
	return env, nil
}

// MessageFromPayload converts a wire payload into the domain model.
func MessageFromPayload(p MessagePayload) domain.ChatMessage {
	return domain.ChatMessage{
		ID:          p.ID,
		TicketID:    p.TicketID,
		SenderID:    p.SenderID,
		SenderRole:  p.SenderRole,
		Body:        p.Body,
		Attachments: p.Attachments,
		IsSystem:    p.IsSystem,
		CreatedAt:   p.CreatedAt,
	}
}

// PayloadFromMessage converts a confirmed domain message into its wire form.
func PayloadFromMessage(m domain.ChatMessage) MessagePayload {
	return MessagePayload{
		ID:          m.ID,
		TicketID:    m.TicketID,
		SenderID:    m.SenderID,
		SenderRole:  m.SenderRole,
		Body:        m.Body,
		Attachments: m.Attachments,
		IsSystem:    m.IsSystem,
		CreatedAt:   m.CreatedAt,
	}
}
