// Package lifecycle enforces legal ticket status transitions and derives
// the system-message text a transition should leave in the conversation.
// It is pure: callers persist the result and emit events themselves.
package lifecycle

import (
	"errors"
	"fmt"

	"github.com/spec-kit/ticket-chat/internal/domain"
)

// ErrInvalidTransition signals an illegal status change. Not retryable with
// the same arguments.
var ErrInvalidTransition = errors.New("invalid status transition")

// ErrReasonRequired signals a cancellation without a reason string.
var ErrReasonRequired = errors.New("cancellation requires a reason")

var allowedTransitions = map[domain.TicketStatus][]domain.TicketStatus{
	domain.TicketStatusOpen:       {domain.TicketStatusInProgress},
	domain.TicketStatusInProgress: {domain.TicketStatusWaiting, domain.TicketStatusConfirmed, domain.TicketStatusResolved, domain.TicketStatusCompleted},
	domain.TicketStatusWaiting:    {domain.TicketStatusInProgress, domain.TicketStatusResolved, domain.TicketStatusCompleted},
	domain.TicketStatusConfirmed:  {domain.TicketStatusResolved, domain.TicketStatusCompleted},
	domain.TicketStatusResolved:   {domain.TicketStatusClosed},
	domain.TicketStatusCompleted:  {domain.TicketStatusClosed},
	domain.TicketStatusClosed:     {},
	domain.TicketStatusCancelled:  {},
}

// Transition describes a requested status change.
type Transition struct {
	Target       domain.TicketStatus
	Actor        domain.Role
	ActorName    string
	Reason       string
	AssigneeName string
}

// Result is the outcome of a legal transition.
type Result struct {
	Status domain.TicketStatus
	// SystemMessage is conversation text to emit alongside the change,
	// empty when the transition is silent.
	SystemMessage string
}

// CanTransition reports whether the actor may move a ticket from current to
// target. Cancellation is open to both parties from any non-terminal state,
// and customers may close their own resolved ticket; every other transition
// is staff-driven.
func CanTransition(current, target domain.TicketStatus, actor domain.Role) bool {
	if target == domain.TicketStatusCancelled {
		return !current.IsTerminal()
	}
	if actor != domain.RoleStaff {
		if target != domain.TicketStatusClosed {
			return false
		}
		if current != domain.TicketStatusResolved && current != domain.TicketStatusCompleted {
			return false
		}
	}
	for _, candidate := range allowedTransitions[current] {
		if candidate == target {
			return true
		}
	}
	return false
}

// Apply validates the transition and returns the new status plus any system
// message to emit. It fails with ErrInvalidTransition for illegal pairs and
// ErrReasonRequired for a cancellation without a reason.
func Apply(current domain.TicketStatus, t Transition) (Result, error) {
	if !CanTransition(current, t.Target, t.Actor) {
		return Result{}, fmt.Errorf("%w: %s -> %s as %s", ErrInvalidTransition, current, t.Target, t.Actor)
	}
	if t.Target == domain.TicketStatusCancelled && t.Reason == "" {
		return Result{}, ErrReasonRequired
	}
	return Result{Status: t.Target, SystemMessage: systemMessage(t)}, nil
}

// ForwardMessage is the system text emitted when a ticket is reassigned.
// Forwarding never changes the status, so it bypasses Apply.
func ForwardMessage(assigneeName string) string {
	return fmt.Sprintf("Ticket wurde weitergeleitet an %s", assigneeName)
}

func systemMessage(t Transition) string {
	switch t.Target {
	case domain.TicketStatusInProgress:
		if t.AssigneeName != "" {
			return fmt.Sprintf("Ticket wurde übernommen von %s", t.AssigneeName)
		}
		return "Ticket ist jetzt in Bearbeitung"
	case domain.TicketStatusWaiting:
		return "Warten auf Rückmeldung des Kunden"
	case domain.TicketStatusResolved, domain.TicketStatusCompleted:
		return "Ticket wurde gelöst"
	case domain.TicketStatusClosed:
		return "Ticket wurde geschlossen"
	case domain.TicketStatusCancelled:
		return fmt.Sprintf("Ticket wurde storniert: %s", t.Reason)
	default:
		return ""
	}
}
