package worker

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-chat/internal/chat"
	"github.com/spec-kit/ticket-chat/internal/chat/hub"
	"github.com/spec-kit/ticket-chat/internal/events"
	"github.com/spec-kit/ticket-chat/internal/repository"
	"github.com/spec-kit/ticket-chat/internal/service"
)

// NotificationWorker bridges domain events onto the live channel and the
// unread counters backing the poll fallback.
type NotificationWorker struct {
	hub           *hub.Hub
	notifications *service.NotificationService
	tickets       repository.TicketRepository
	logger        *zap.Logger
}

// NewNotificationWorker constructs the worker.
func NewNotificationWorker(h *hub.Hub, notifications *service.NotificationService, tickets repository.TicketRepository, logger *zap.Logger) *NotificationWorker {
	return &NotificationWorker{hub: h, notifications: notifications, tickets: tickets, logger: logger}
}

// Start registers the worker on the dispatcher.
func (w *NotificationWorker) Start(dispatcher events.Dispatcher) {
	if dispatcher == nil {
		return
	}
	dispatcher.Subscribe(events.EventTicketMessageAdded, w.handleMessageAdded)
	dispatcher.Subscribe(events.EventTicketClosed, w.handleTicketClosed)
	dispatcher.Subscribe(events.EventTicketForwarded, w.handleTicketForwarded)
}

func (w *NotificationWorker) handleMessageAdded(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketMessageAddedPayload)
	if !ok {
		return nil
	}

	env, err := chat.NewEnvelope(chat.EventNewMessage, event.TicketID, chat.PayloadFromMessage(payload.Message))
	if err != nil {
		return err
	}
	w.hub.Broadcast(event.TicketID, env)

	// Unread counters cover participants who are not in the room; clients
	// clear their own counter when they fetch the conversation.
	ticket, err := w.tickets.GetByID(ctx, event.TicketID)
	if err != nil {
		w.logger.Warn("unread fan-out skipped", zap.String("ticket_id", event.TicketID), zap.Error(err))
		return nil
	}
	for _, recipient := range recipients(ticket.CreatorID, ticket.AssigneeID) {
		if recipient == payload.Message.SenderID {
			continue
		}
		w.notifications.IncrementUnread(ctx, recipient, event.TicketID)
	}
	return nil
}

func (w *NotificationWorker) handleTicketClosed(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketClosedPayload)
	if !ok {
		return nil
	}
	env, err := chat.NewEnvelope(chat.EventTicketClosed, event.TicketID, chat.TicketEventPayload{
		TicketID: event.TicketID,
	})
	if err != nil {
		return err
	}
	w.hub.Broadcast(event.TicketID, env)
	if event.Actor.UserID != payload.CreatorID {
		w.notifications.IncrementUnread(ctx, payload.CreatorID, event.TicketID)
	}
	return nil
}

func (w *NotificationWorker) handleTicketForwarded(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketForwardedPayload)
	if !ok {
		return nil
	}
	env, err := chat.NewEnvelope(chat.EventTicketForwarded, event.TicketID, chat.TicketEventPayload{
		TicketID:   event.TicketID,
		AssigneeID: &payload.AssigneeID,
	})
	if err != nil {
		return err
	}
	w.hub.Broadcast(event.TicketID, env)
	w.notifications.IncrementUnread(ctx, payload.AssigneeID, event.TicketID)
	return nil
}

func recipients(creatorID string, assigneeID *string) []string {
	out := []string{creatorID}
	if assigneeID != nil && *assigneeID != creatorID {
		out = append(out, *assigneeID)
	}
	return out
}
