package dto

import (
	"time"

	"github.com/spec-kit/ticket-chat/internal/domain"
)

// TicketResponse is the wire form of a ticket, shared by the server
// handlers and the REST client.
type TicketResponse struct {
	ID           string               `json:"id"`
	SequenceNo   string               `json:"sequence_no"`
	CreatorID    string               `json:"creator_id"`
	AssigneeID   *string              `json:"assignee_id,omitempty"`
	Type         domain.TicketType    `json:"type"`
	Urgency      domain.TicketUrgency `json:"urgency"`
	Status       domain.TicketStatus  `json:"status"`
	CancelReason *string              `json:"cancel_reason,omitempty"`
	Rating       *int                 `json:"rating,omitempty"`
	RegisteredBy *string              `json:"registered_by,omitempty"`
	RegisteredAt *time.Time           `json:"registered_at,omitempty"`
	CreatedAt    time.Time            `json:"created_at"`
	UpdatedAt    time.Time            `json:"updated_at"`
	ClosedAt     *time.Time           `json:"closed_at,omitempty"`
}

// MessageResponse is the wire form of one thread entry.
type MessageResponse struct {
	ID          string              `json:"id"`
	TicketID    string              `json:"ticket_id"`
	SenderID    string              `json:"sender_id"`
	SenderRole  domain.Role         `json:"sender_role"`
	Body        string              `json:"body,omitempty"`
	Attachments []domain.Attachment `json:"attachments,omitempty"`
	IsSystem    bool                `json:"is_system,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
}

// MessagePage is one page of a ticket's history.
type MessagePage struct {
	Items      []MessageResponse `json:"items"`
	NextCursor string            `json:"next_cursor,omitempty"`
}

// CreateTicketRequest opens a new ticket.
type CreateTicketRequest struct {
	Type    domain.TicketType    `json:"type"`
	Urgency domain.TicketUrgency `json:"urgency"`
	Subject string               `json:"subject"`
}

// UpdateStatusRequest drives PUT /tickets/:id/status.
type UpdateStatusRequest struct {
	Target domain.TicketStatus `json:"target"`
	Reason string              `json:"reason,omitempty"`
}

// UpdateAssigneeRequest drives PUT /tickets/:id/assignee.
type UpdateAssigneeRequest struct {
	AssigneeID string `json:"assignee_id"`
}

// RatingRequest submits the post-resolution rating.
type RatingRequest struct {
	Rating int `json:"rating"`
}

// TicketFromResponse converts the wire form back to the domain model.
func TicketFromResponse(r TicketResponse) domain.Ticket {
	return domain.Ticket{
		ID:           r.ID,
		SequenceNo:   r.SequenceNo,
		CreatorID:    r.CreatorID,
		AssigneeID:   r.AssigneeID,
		Type:         r.Type,
		Urgency:      r.Urgency,
		Status:       r.Status,
		CancelReason: r.CancelReason,
		Rating:       r.Rating,
		RegisteredBy: r.RegisteredBy,
		RegisteredAt: r.RegisteredAt,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
		ClosedAt:     r.ClosedAt,
	}
}

// TicketToResponse converts a domain ticket to its wire form.
func TicketToResponse(t *domain.Ticket) TicketResponse {
	return TicketResponse{
		ID:           t.ID,
		SequenceNo:   t.SequenceNo,
		CreatorID:    t.CreatorID,
		AssigneeID:   t.AssigneeID,
		Type:         t.Type,
		Urgency:      t.Urgency,
		Status:       t.Status,
		CancelReason: t.CancelReason,
		Rating:       t.Rating,
		RegisteredBy: t.RegisteredBy,
		RegisteredAt: t.RegisteredAt,
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
		ClosedAt:     t.ClosedAt,
	}
}

// MessageFromResponse converts the wire form back to the domain model.
func MessageFromResponse(r MessageResponse) domain.ChatMessage {
	return domain.ChatMessage{
		ID:          r.ID,
		TicketID:    r.TicketID,
		SenderID:    r.SenderID,
		SenderRole:  r.SenderRole,
		Body:        r.Body,
		Attachments: r.Attachments,
		IsSystem:    r.IsSystem,
		CreatedAt:   r.CreatedAt,
	}
}

// MessageToResponse converts a domain message to its wire form.
func MessageToResponse(m *domain.ChatMessage) MessageResponse {
	return MessageResponse{
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
