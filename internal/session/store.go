package session

import (
	"context"

	"github.com/spec-kit/ticket-chat/internal/chat"
	"github.com/spec-kit/ticket-chat/internal/chat/transport"
	"github.com/spec-kit/ticket-chat/internal/domain"
)

// Actor identifies the local participant driving a session.
type Actor struct {
	ID   string
	Name string
	Role domain.Role
}

// Store is the durable ticket/message boundary. The production
// implementation lives in internal/client/rest; tests substitute fakes.
type Store interface {
	GetTicket(ctx context.Context, ticketID string) (*domain.Ticket, error)
	ListMessages(ctx context.Context, ticketID, cursor string) ([]domain.ChatMessage, string, error)
	CreateMessage(ctx context.Context, ticketID, body string, attachments []domain.Attachment) (*domain.ChatMessage, error)
	UpdateStatus(ctx context.Context, ticketID string, target domain.TicketStatus, reason string) (*domain.Ticket, error)
	UpdateAssignee(ctx context.Context, ticketID, assigneeID string) (*domain.Ticket, error)
	CloseTicket(ctx context.Context, ticketID string) (*domain.Ticket, error)
}

// Transport is the live-channel surface the coordinator drives.
type Transport interface {
	Connect(ctx context.Context) error
	JoinRoom(ticketID string)
	LeaveRoom(ticketID string)
	Subscribe(kind chat.EventKind, handler transport.Handler) func()
	SendTyping(ticketID, userID, username string)
	SendStopTyping(ticketID, userID string)
	State() transport.State
}
