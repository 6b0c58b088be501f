package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/ticket-chat/internal/domain"
	"github.com/spec-kit/ticket-chat/internal/events"
	"github.com/spec-kit/ticket-chat/internal/lifecycle"
	"github.com/spec-kit/ticket-chat/internal/repository"
	apperrors "github.com/spec-kit/ticket-chat/pkg/util"
)

// TicketService coordinates ticket workflows.
type TicketService struct {
	tickets    repository.TicketRepository
	messages   repository.MessageRepository
	users      repository.UserRepository
	dispatcher events.Dispatcher
}

// TicketDependencies bundles repositories for the ticket service.
type TicketDependencies struct {
	TicketRepo  repository.TicketRepository
	MessageRepo repository.MessageRepository
	UserRepo    repository.UserRepository
	Dispatcher  events.Dispatcher
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	return &TicketService{
		tickets:    deps.TicketRepo,
		messages:   deps.MessageRepo,
		users:      deps.UserRepo,
		dispatcher: deps.Dispatcher,
	}
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	Type    domain.TicketType
	Urgency domain.TicketUrgency
	Subject string
}

// Create opens a new ticket for the actor. A non-empty subject becomes the
// first message of the conversation.
func (s *TicketService) Create(ctx context.Context, actor *domain.User, input TicketCreateInput) (*domain.Ticket, error) {
	if input.Type == "" || input.Urgency == "" {
		return nil, apperrors.NewValidationError("type and urgency are required", nil)
	}

	ticket := &domain.Ticket{
		CreatorID: actor.ID,
		Type:      input.Type,
		Urgency:   input.Urgency,
		Status:    domain.TicketStatusOpen,
	}
	if actor.Role == domain.RoleStaff {
		// Staff registering a ticket on behalf of a walk-in customer.
		name := actor.Name
		now := time.Now()
		ticket.RegisteredBy = &name
		ticket.RegisteredAt = &now
	}

	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}

	if strings.TrimSpace(input.Subject) != "" {
		msg := &domain.ChatMessage{
			TicketID:   ticket.ID,
			SenderID:   actor.ID,
			SenderRole: actor.Role,
			Body:       input.Subject,
		}
		if err := s.messages.Create(ctx, msg); err != nil {
			return nil, apperrors.MapError(err)
		}
	}

	s.publish(ctx, events.EventTicketCreated, ticket.ID, actor, events.TicketCreatedPayload{
		Type:    ticket.Type,
		Urgency: ticket.Urgency,
	})
	return ticket, nil
}

// Get loads a ticket the actor is allowed to see. Customers see only their
// own tickets; staff see everything.
func (s *TicketService) Get(ctx context.Context, actor *domain.User, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"id": ticketID})
		}
		return nil, apperrors.MapError(err)
	}
	if actor.Role != domain.RoleStaff && ticket.CreatorID != actor.ID {
		return nil, apperrors.NewForbidden("not your ticket")
	}
	return ticket, nil
}

// List returns the actor's tickets, optionally filtered by status.
func (s *TicketService) List(ctx context.Context, actor *domain.User, statuses []domain.TicketStatus, limit, offset int) ([]domain.Ticket, error) {
	filter := repository.TicketFilter{Statuses: statuses, Limit: limit, Offset: offset}
	if actor.Role != domain.RoleStaff {
		filter.CreatorID = &actor.ID
	}
	tickets, err := s.tickets.ListWithFilter(ctx, filter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return tickets, nil
}

// AddMessage appends a message to an active ticket's conversation.
func (s *TicketService) AddMessage(ctx context.Context, actor *domain.User, ticketID, body string, attachments []domain.Attachment) (*domain.ChatMessage, error) {
	msg := domain.ChatMessage{Body: body, Attachments: attachments}
	if !msg.HasContent() {
		return nil, apperrors.NewValidationError("message needs text or an attachment", nil)
	}

	ticket, err := s.Get(ctx, actor, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.Status.IsTerminal() {
		return nil, apperrors.NewConflict("ticket conversation is closed", map[string]any{"status": ticket.Status})
	}

	msg.TicketID = ticket.ID
	msg.SenderID = actor.ID
	msg.SenderRole = actor.Role
	if err := s.messages.Create(ctx, &msg); err != nil {
		return nil, apperrors.MapError(err)
	}

	s.publish(ctx, events.EventTicketMessageAdded, ticket.ID, actor, events.TicketMessageAddedPayload{Message: msg})
	return &msg, nil
}

// ListMessages returns one page of the conversation.
func (s *TicketService) ListMessages(ctx context.Context, actor *domain.User, ticketID, cursor string, limit int) ([]domain.ChatMessage, string, error) {
	if _, err := s.Get(ctx, actor, ticketID); err != nil {
		return nil, "", err
	}
	msgs, next, err := s.messages.ListByTicket(ctx, ticketID, cursor, limit)
	if err != nil {
		return nil, "", apperrors.MapError(err)
	}
	return msgs, next, nil
}

// UpdateStatus applies a status transition, persists it, records the
// derived system message and publishes the matching events.
func (s *TicketService) UpdateStatus(ctx context.Context, actor *domain.User, ticketID string, target domain.TicketStatus, reason string) (*domain.Ticket, error) {
	ticket, err := s.Get(ctx, actor, ticketID)
	if err != nil {
		return nil, err
	}

	assigneeName := ""
	if target == domain.TicketStatusInProgress {
		assigneeName = actor.Name
	}
	result, err := lifecycle.Apply(ticket.Status, lifecycle.Transition{
		Target:       target,
		Actor:        actor.Role,
		ActorName:    actor.Name,
		Reason:       reason,
		AssigneeName: assigneeName,
	})
	if err != nil {
		if errors.Is(err, lifecycle.ErrInvalidTransition) {
			return nil, apperrors.NewInvalidTransition(err.Error(), map[string]any{
				"from": ticket.Status, "to": target,
			})
		}
		if errors.Is(err, lifecycle.ErrReasonRequired) {
			return nil, apperrors.NewValidationError("cancellation requires a reason", nil)
		}
		return nil, apperrors.MapError(err)
	}

	oldStatus := ticket.Status
	ticket.Status = result.Status
	if target == domain.TicketStatusInProgress && ticket.AssigneeID == nil {
		ticket.AssigneeID = &actor.ID
	}
	if target == domain.TicketStatusCancelled {
		ticket.CancelReason = &reason
	}
	if ticket.Status.IsTerminal() {
		now := time.Now()
		ticket.ClosedAt = &now
	}
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}

	if result.SystemMessage != "" {
		sysMsg := &domain.ChatMessage{
			TicketID:   ticket.ID,
			SenderID:   actor.ID,
			SenderRole: actor.Role,
			Body:       result.SystemMessage,
			IsSystem:   true,
		}
		if err := s.messages.Create(ctx, sysMsg); err != nil {
			return nil, apperrors.MapError(err)
		}
		s.publish(ctx, events.EventTicketMessageAdded, ticket.ID, actor, events.TicketMessageAddedPayload{Message: *sysMsg})
	}

	s.publish(ctx, events.EventTicketStatusChanged, ticket.ID, actor, events.TicketStatusChangedPayload{
		OldStatus: oldStatus,
		NewStatus: ticket.Status,
		Reason:    reason,
	})
	if ticket.Status == domain.TicketStatusClosed {
		s.publish(ctx, events.EventTicketClosed, ticket.ID, actor, events.TicketClosedPayload{
			CreatorID: ticket.CreatorID,
			ClosedAt:  *ticket.ClosedAt,
		})
	}
	return ticket, nil
}

// Forward reassigns the ticket to another staff member without touching
// the status, leaving a system message in the conversation.
func (s *TicketService) Forward(ctx context.Context, actor *domain.User, ticketID, assigneeID string) (*domain.Ticket, error) {
	if actor.Role != domain.RoleStaff {
		return nil, apperrors.NewForbidden("staff required")
	}

	ticket, err := s.Get(ctx, actor, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.Status.IsTerminal() {
		return nil, apperrors.NewInvalidTransition("ticket already finished", map[string]any{"status": ticket.Status})
	}

	assignee, err := s.users.GetByID(ctx, assigneeID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("assignee", map[string]any{"id": assigneeID})
		}
		return nil, apperrors.MapError(err)
	}
	if assignee.Role != domain.RoleStaff {
		return nil, apperrors.NewValidationError("assignee must be staff", nil)
	}

	ticket.AssigneeID = &assignee.ID
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}

	sysMsg := &domain.ChatMessage{
		TicketID:   ticket.ID,
		SenderID:   actor.ID,
		SenderRole: actor.Role,
		Body:       lifecycle.ForwardMessage(assignee.Name),
		IsSystem:   true,
	}
	if err := s.messages.Create(ctx, sysMsg); err != nil {
		return nil, apperrors.MapError(err)
	}

	s.publish(ctx, events.EventTicketMessageAdded, ticket.ID, actor, events.TicketMessageAddedPayload{Message: *sysMsg})
	s.publish(ctx, events.EventTicketForwarded, ticket.ID, actor, events.TicketForwardedPayload{
		AssigneeID:   assignee.ID,
		AssigneeName: assignee.Name,
	})
	return ticket, nil
}

// Close finishes a resolved or completed ticket.
func (s *TicketService) Close(ctx context.Context, actor *domain.User, ticketID string) (*domain.Ticket, error) {
	return s.UpdateStatus(ctx, actor, ticketID, domain.TicketStatusClosed, "")
}

// SubmitRating records the creator's one-time rating of a closed ticket.
func (s *TicketService) SubmitRating(ctx context.Context, actor *domain.User, ticketID string, rating int) (*domain.Ticket, error) {
	if rating < 1 || rating > 5 {
		return nil, apperrors.NewValidationError("rating must be between 1 and 5", map[string]any{"rating": rating})
	}

	ticket, err := s.Get(ctx, actor, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.CreatorID != actor.ID {
		return nil, apperrors.NewForbidden("only the ticket creator may rate")
	}
	if ticket.Status != domain.TicketStatusClosed {
		return nil, apperrors.NewConflict("ticket is not closed", map[string]any{"status": ticket.Status})
	}
	if ticket.Rating != nil {
		return nil, apperrors.NewConflict("ticket already rated", nil)
	}

	ticket.Rating = &rating
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}
	return ticket, nil
}

func (s *TicketService) publish(ctx context.Context, eventType events.EventType, ticketID string, actor *domain.User, payload any) {
	if s.dispatcher == nil {
		return
	}
	_ = s.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		TicketID:  ticketID,
		Actor:     events.Actor{UserID: actor.ID, Role: actor.Role},
		Timestamp: time.Now(),
		Payload:   payload,
	})
}
