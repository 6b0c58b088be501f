// Package session orchestrates one ticket's live view: it owns the ticket's
// status and message thread, drives the chat transport, and reconciles
// optimistic local state with the durable store.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-chat/internal/chat"
	"github.com/spec-kit/ticket-chat/internal/chat/presence"
	"github.com/spec-kit/ticket-chat/internal/chat/reconcile"
	"github.com/spec-kit/ticket-chat/internal/domain"
	"github.com/spec-kit/ticket-chat/internal/lifecycle"
)

// Phase is the coordinator's own lifecycle.
type Phase string

const (
	PhaseIdle    Phase = "idle"
	PhaseLoading Phase = "loading"
	PhaseActive  Phase = "active"
	PhaseLeaving Phase = "leaving"
)

// Coordinator is the single API the UI consumes for one open ticket. One
// coordinator per process is active at a time; Open gates re-entry.
type Coordinator struct {
	actor     Actor
	store     Store
	transport Transport
	logger    *zap.Logger

	// ratingPrompt fires once when a ticketClosed event arrives for a
	// ticket the local actor created.
	ratingPrompt func(ticketID string)

	mu            sync.Mutex
	phase         Phase
	epoch         int
	ticket        *domain.Ticket
	thread        *reconcile.Thread
	presence      *presence.Tracker
	unsubscribers []func()
	pendingSystem map[string]string
	ratingFired   bool
	presenceOpts  []presence.Option
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithRatingPrompt installs the rating side-effect consumer.
func WithRatingPrompt(fn func(ticketID string)) Option {
	return func(c *Coordinator) { c.ratingPrompt = fn }
}

// WithPresenceOptions forwards options to the per-session presence tracker.
func WithPresenceOptions(opts ...presence.Option) Option {
	return func(c *Coordinator) { c.presenceOpts = opts }
}

// NewCoordinator creates an idle coordinator for the given local actor.
func NewCoordinator(actor Actor, store Store, tr Transport, logger *zap.Logger, opts ...Option) *Coordinator {
	c := &Coordinator{
		actor:     actor,
		store:     store,
		transport: tr,
		logger:    logger,
		phase:     PhaseIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Phase returns the coordinator's current phase.
func (c *Coordinator) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Open loads the ticket and its first message page, joins the chat room and
// subscribes to live events. Calling Open again for the same ticket while
// active is a no-op. The room join is best-effort and happens before the
// durable fetch, so a slow metadata load does not block live messages.
func (c *Coordinator) Open(ctx context.Context, ticketID string) error {
	c.mu.Lock()
	switch c.phase {
	case PhaseActive:
		if c.ticket != nil && c.ticket.ID == ticketID {
			c.mu.Unlock()
			return nil
		}
		c.mu.Unlock()
		return fmt.Errorf("%w: another ticket session is active", ErrSessionNotActive)
	case PhaseLoading, PhaseLeaving:
		c.mu.Unlock()
		return fmt.Errorf("%w: session is %s", ErrSessionNotActive, c.phase)
	}
	c.phase = PhaseLoading
	c.epoch++
	epoch := c.epoch
	c.thread = reconcile.NewThread(c.actor.ID)
	c.presence = presence.NewTracker(c.actor.ID, c.presenceOpts...)
	c.pendingSystem = make(map[string]string)
	c.ratingFired = false
	c.mu.Unlock()

	// Connection failures surface through the transport's state observable,
	// not here.
	if err := c.transport.Connect(ctx); err != nil {
		c.logger.Warn("live channel unavailable, continuing with store only", zap.Error(err))
	}
	c.subscribeAll()
	c.transport.JoinRoom(ticketID)

	ticket, err := c.store.GetTicket(ctx, ticketID)
	if err == nil {
		var history []domain.ChatMessage
		history, _, err = c.store.ListMessages(ctx, ticketID, "")
		if err == nil {
			c.mu.Lock()
			if c.epoch != epoch {
				c.mu.Unlock()
				return fmt.Errorf("%w: session was left during load", ErrSessionNotActive)
			}
			c.ticket = ticket
			c.thread.Reset(history)
			c.phase = PhaseActive
			c.mu.Unlock()
			return nil
		}
	}

	c.teardown(ticketID, epoch)
	return fmt.Errorf("%w: %v", ErrTicketLoad, err)
}

// Send validates content, appends an optimistic entry, persists the message
// and reconciles the temp entry in place. A failed send removes the
// optimistic entry so retrying the identical call appears exactly once.
func (c *Coordinator) Send(ctx context.Context, text string, attachments []domain.Attachment) (*domain.ChatMessage, error) {
	c.mu.Lock()
	if c.phase != PhaseActive {
		c.mu.Unlock()
		return nil, ErrSessionNotActive
	}
	draft := domain.ChatMessage{
		TicketID:    c.ticket.ID,
		SenderRole:  c.actor.Role,
		Body:        text,
		Attachments: attachments,
	}
	if !draft.HasContent() {
		c.mu.Unlock()
		return nil, ErrEmptyMessage
	}
	ticketID := c.ticket.ID
	epoch := c.epoch
	thread := c.thread
	c.mu.Unlock()

	tempID := thread.AppendOptimistic(draft)

	confirmed, err := c.store.CreateMessage(ctx, ticketID, text, attachments)
	if err != nil {
		if c.sameEpoch(epoch) {
			thread.RejectOptimistic(tempID)
		}
		return nil, fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	if !c.sameEpoch(epoch) {
		// Session was left mid-flight; the write stands, the local result
		// is discarded.
		return confirmed, nil
	}
	thread.ResolveOptimistic(tempID, *confirmed)
	return confirmed, nil
}

// ChangeStatus runs the transition through the state machine, flips the
// local status optimistically, emits the system message locally and then
// persists. Failure rolls both back.
func (c *Coordinator) ChangeStatus(ctx context.Context, target domain.TicketStatus, reason string) error {
	c.mu.Lock()
	if c.phase != PhaseActive {
		c.mu.Unlock()
		return ErrSessionNotActive
	}
	result, err := lifecycle.Apply(c.ticket.Status, lifecycle.Transition{
		Target:    target,
		Actor:     c.actor.Role,
		ActorName: c.actor.Name,
		Reason:    reason,
	})
	if err != nil {
		c.mu.Unlock()
		return err
	}
	ticketID := c.ticket.ID
	previous := c.ticket.Status
	c.ticket.Status = result.Status
	epoch := c.epoch
	thread := c.thread
	var sysTempID string
	if result.SystemMessage != "" {
		sysTempID = c.emitSystemLocked(thread, ticketID, result.SystemMessage)
	}
	c.mu.Unlock()

	updated, storeErr := c.store.UpdateStatus(ctx, ticketID, target, reason)
	if storeErr != nil {
		if c.sameEpoch(epoch) {
			c.mu.Lock()
			c.ticket.Status = previous
			if sysTempID != "" {
				delete(c.pendingSystem, result.SystemMessage)
			}
			c.mu.Unlock()
			if sysTempID != "" {
				thread.RejectOptimistic(sysTempID)
			}
		}
		return fmt.Errorf("%w: %v", ErrStatusChangeFailed, storeErr)
	}
	if c.sameEpoch(epoch) {
		c.mu.Lock()
		c.ticket = updated
		c.mu.Unlock()
	}
	return nil
}

// Forward reassigns the ticket to another staff member without changing its
// status. The assignee's display name feeds the optimistic system message so
// the server's broadcast of the same text resolves it instead of duplicating
// it. Awaiting indicators tied to the previous assignee are reset.
func (c *Coordinator) Forward(ctx context.Context, assigneeID, assigneeName string) error {
	c.mu.Lock()
	if c.phase != PhaseActive {
		c.mu.Unlock()
		return ErrSessionNotActive
	}
	if c.actor.Role != domain.RoleStaff || c.ticket.Status.IsTerminal() {
		c.mu.Unlock()
		return fmt.Errorf("%w: forward on %s as %s", lifecycle.ErrInvalidTransition, c.ticket.Status, c.actor.Role)
	}
	ticketID := c.ticket.ID
	previous := c.ticket.AssigneeID
	c.ticket.AssigneeID = &assigneeID
	epoch := c.epoch
	thread := c.thread
	message := lifecycle.ForwardMessage(assigneeName)
	sysTempID := c.emitSystemLocked(thread, ticketID, message)
	c.presence.Reset()
	c.mu.Unlock()

	updated, err := c.store.UpdateAssignee(ctx, ticketID, assigneeID)
	if err != nil {
		if c.sameEpoch(epoch) {
			c.mu.Lock()
			c.ticket.AssigneeID = previous
			delete(c.pendingSystem, message)
			c.mu.Unlock()
			thread.RejectOptimistic(sysTempID)
		}
		return fmt.Errorf("%w: %v", ErrStatusChangeFailed, err)
	}
	if c.sameEpoch(epoch) {
		c.mu.Lock()
		c.ticket = updated
		c.mu.Unlock()
	}
	return nil
}

// Close closes the ticket; legal only from RESOLVED or COMPLETED.
func (c *Coordinator) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.phase != PhaseActive {
		c.mu.Unlock()
		return ErrSessionNotActive
	}
	current := c.ticket.Status
	if !lifecycle.CanTransition(current, domain.TicketStatusClosed, c.actor.Role) {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", lifecycle.ErrInvalidTransition, current, domain.TicketStatusClosed)
	}
	ticketID := c.ticket.ID
	c.ticket.Status = domain.TicketStatusClosed
	epoch := c.epoch
	c.mu.Unlock()

	updated, err := c.store.CloseTicket(ctx, ticketID)
	if err != nil {
		if c.sameEpoch(epoch) {
			c.mu.Lock()
			c.ticket.Status = current
			c.mu.Unlock()
		}
		return fmt.Errorf("%w: %v", ErrStatusChangeFailed, err)
	}
	if c.sameEpoch(epoch) {
		c.mu.Lock()
		c.ticket = updated
		c.mu.Unlock()
	}
	return nil
}

// Leave ends the session. It always leaves the chat room, whatever phase the
// session is in, so room membership can never leak. Results of in-flight
// operations are discarded.
func (c *Coordinator) Leave() {
	c.mu.Lock()
	if c.phase == PhaseIdle {
		c.mu.Unlock()
		return
	}
	c.phase = PhaseLeaving
	var ticketID string
	if c.ticket != nil {
		ticketID = c.ticket.ID
	}
	epoch := c.epoch
	c.mu.Unlock()

	c.teardown(ticketID, epoch)
}

// Typing signals that the local actor is composing a message.
func (c *Coordinator) Typing() {
	c.mu.Lock()
	if c.phase != PhaseActive {
		c.mu.Unlock()
		return
	}
	ticketID := c.ticket.ID
	c.mu.Unlock()
	c.transport.SendTyping(ticketID, c.actor.ID, c.actor.Name)
}

// StopTyping signals that the local actor stopped composing.
func (c *Coordinator) StopTyping() {
	c.mu.Lock()
	if c.phase != PhaseActive {
		c.mu.Unlock()
		return
	}
	ticketID := c.ticket.ID
	c.mu.Unlock()
	c.transport.SendStopTyping(ticketID, c.actor.ID)
}

// OnExternalActivitySignal is the single coupling point with the
// notification fallback: it forces a metadata and message refresh so polled
// activity is never missed while the live channel is down.
func (c *Coordinator) OnExternalActivitySignal(ctx context.Context, ticketID string) {
	c.mu.Lock()
	if c.phase != PhaseActive || c.ticket == nil || c.ticket.ID != ticketID {
		c.mu.Unlock()
		return
	}
	epoch := c.epoch
	thread := c.thread
	c.mu.Unlock()

	ticket, err := c.store.GetTicket(ctx, ticketID)
	if err != nil {
		c.logger.Warn("refresh: ticket fetch failed", zap.Error(err))
		return
	}
	history, _, err := c.store.ListMessages(ctx, ticketID, "")
	if err != nil {
		c.logger.Warn("refresh: message fetch failed", zap.Error(err))
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch {
		return
	}
	// Carry unconfirmed optimistic entries across the reset.
	var pending []domain.ChatMessage
	for _, msg := range thread.Messages() {
		if msg.IsTemp {
			pending = append(pending, msg)
		}
	}
	c.ticket = ticket
	thread.Reset(history)
	for _, msg := range pending {
		thread.Restore(msg)
	}
}

// Ticket returns a copy of the current ticket metadata.
func (c *Coordinator) Ticket() (domain.Ticket, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ticket == nil {
		return domain.Ticket{}, false
	}
	return *c.ticket, true
}

// Messages returns the current ordered thread snapshot.
func (c *Coordinator) Messages() []domain.ChatMessage {
	c.mu.Lock()
	thread := c.thread
	c.mu.Unlock()
	if thread == nil {
		return nil
	}
	return thread.Messages()
}

// OtherTyping reports whether the other party is typing, with one
// representative name for the indicator.
func (c *Coordinator) OtherTyping() (string, bool) {
	c.mu.Lock()
	tracker := c.presence
	c.mu.Unlock()
	if tracker == nil {
		return "", false
	}
	return tracker.TypingParticipant()
}

func (c *Coordinator) sameEpoch(epoch int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch == epoch
}

// emitSystemLocked appends an optimistic system message and records it so
// the server's broadcast of the same text resolves rather than duplicates
// it. Caller holds mu.
func (c *Coordinator) emitSystemLocked(thread *reconcile.Thread, ticketID, text string) string {
	tempID := thread.AppendOptimistic(domain.ChatMessage{
		TicketID:   ticketID,
		SenderRole: c.actor.Role,
		Body:       text,
		IsSystem:   true,
	})
	c.pendingSystem[text] = tempID
	return tempID
}

func (c *Coordinator) subscribeAll() {
	subs := []func(){
		c.transport.Subscribe(chat.EventNewMessage, c.onNewMessage),
		c.transport.Subscribe(chat.EventTyping, c.onTyping),
		c.transport.Subscribe(chat.EventStopTyping, c.onStopTyping),
		c.transport.Subscribe(chat.EventTicketClosed, c.onTicketClosed),
		c.transport.Subscribe(chat.EventTicketForwarded, c.onTicketForwarded),
	}
	c.mu.Lock()
	c.unsubscribers = subs
	c.mu.Unlock()
}

func (c *Coordinator) onNewMessage(env chat.Envelope) {
	var payload chat.MessagePayload
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		c.logger.Warn("bad newMessage payload", zap.Error(err))
		return
	}

	c.mu.Lock()
	if c.ticket == nil || c.ticket.ID != payload.TicketID {
		c.mu.Unlock()
		return
	}
	thread := c.thread
	tracker := c.presence
	var resolveTempID string
	if payload.IsSystem {
		if tempID, ok := c.pendingSystem[payload.Body]; ok {
			resolveTempID = tempID
			delete(c.pendingSystem, payload.Body)
		}
	}
	c.mu.Unlock()

	msg := chat.MessageFromPayload(payload)
	if resolveTempID != "" {
		thread.ResolveOptimistic(resolveTempID, msg)
	} else {
		thread.IngestRemote(msg)
	}
	if tracker != nil && !msg.IsSystem {
		// A delivered message implies the sender stopped typing.
		tracker.OnStopTyping(msg.SenderID)
	}
}

func (c *Coordinator) onTyping(env chat.Envelope) {
	var payload chat.TypingPayload
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		return
	}
	c.mu.Lock()
	tracker := c.presence
	match := c.ticket != nil && c.ticket.ID == payload.TicketID
	c.mu.Unlock()
	if tracker != nil && match {
		tracker.OnTyping(payload.UserID, payload.Username)
	}
}

func (c *Coordinator) onStopTyping(env chat.Envelope) {
	var payload chat.TypingPayload
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		return
	}
	c.mu.Lock()
	tracker := c.presence
	c.mu.Unlock()
	if tracker != nil {
		tracker.OnStopTyping(payload.UserID)
	}
}

func (c *Coordinator) onTicketClosed(env chat.Envelope) {
	c.mu.Lock()
	if c.ticket == nil || c.ticket.ID != env.TicketID {
		c.mu.Unlock()
		return
	}
	c.ticket.Status = domain.TicketStatusClosed
	fireRating := false
	if c.ticket.CreatorID == c.actor.ID && !c.ratingFired && c.ratingPrompt != nil {
		c.ratingFired = true
		fireRating = true
	}
	ticketID := c.ticket.ID
	c.mu.Unlock()

	if fireRating {
		c.ratingPrompt(ticketID)
	}
}

func (c *Coordinator) onTicketForwarded(env chat.Envelope) {
	var payload chat.TicketEventPayload
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		return
	}
	c.mu.Lock()
	if c.ticket == nil || c.ticket.ID != env.TicketID {
		c.mu.Unlock()
		return
	}
	c.ticket.AssigneeID = payload.AssigneeID
	tracker := c.presence
	c.mu.Unlock()

	if tracker != nil {
		tracker.Reset()
	}
}

// teardown unsubscribes, leaves the room and returns the coordinator to
// idle. It runs for both failed loads and normal leaves.
func (c *Coordinator) teardown(ticketID string, epoch int) {
	c.mu.Lock()
	unsubs := c.unsubscribers
	c.unsubscribers = nil
	if c.epoch == epoch {
		c.epoch++
	}
	c.phase = PhaseIdle
	c.ticket = nil
	c.thread = nil
	c.presence = nil
	c.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
	if ticketID != "" {
		c.transport.LeaveRoom(ticketID)
	}
}
