package lifecycle

import (
	"errors"
	"testing"

	"github.com/spec-kit/ticket-chat/internal/domain"
)

func TestApplyLegalTransitions(t *testing.T) {
	cases := []struct {
		name    string
		current domain.TicketStatus
		target  domain.TicketStatus
		actor   domain.Role
	}{
		{"assignment", domain.TicketStatusOpen, domain.TicketStatusInProgress, domain.RoleStaff},
		{"awaiting customer", domain.TicketStatusInProgress, domain.TicketStatusWaiting, domain.RoleStaff},
		{"confirm", domain.TicketStatusInProgress, domain.TicketStatusConfirmed, domain.RoleStaff},
		{"resume", domain.TicketStatusWaiting, domain.TicketStatusInProgress, domain.RoleStaff},
		{"resolve", domain.TicketStatusInProgress, domain.TicketStatusResolved, domain.RoleStaff},
		{"complete from confirmed", domain.TicketStatusConfirmed, domain.TicketStatusCompleted, domain.RoleStaff},
		{"close resolved", domain.TicketStatusResolved, domain.TicketStatusClosed, domain.RoleStaff},
		{"close completed", domain.TicketStatusCompleted, domain.TicketStatusClosed, domain.RoleStaff},
		{"customer self-close", domain.TicketStatusResolved, domain.TicketStatusClosed, domain.RoleCustomer},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := Apply(tc.current, Transition{Target: tc.target, Actor: tc.actor})
			if err != nil {
				t.Fatalf("Apply(%s -> %s): %v", tc.current, tc.target, err)
			}
			if res.Status != tc.target {
				t.Fatalf("status = %s, want %s", res.Status, tc.target)
			}
		})
	}
}

func TestApplyRejectsIllegalTransitions(t *testing.T) {
	cases := []struct {
		name    string
		current domain.TicketStatus
		target  domain.TicketStatus
		actor   domain.Role
	}{
		{"close from open", domain.TicketStatusOpen, domain.TicketStatusClosed, domain.RoleStaff},
		{"skip assignment", domain.TicketStatusOpen, domain.TicketStatusResolved, domain.RoleStaff},
		{"reopen closed", domain.TicketStatusClosed, domain.TicketStatusInProgress, domain.RoleStaff},
		{"cancel terminal", domain.TicketStatusCancelled, domain.TicketStatusCancelled, domain.RoleStaff},
		{"cancel closed", domain.TicketStatusClosed, domain.TicketStatusCancelled, domain.RoleCustomer},
		{"customer assigns", domain.TicketStatusOpen, domain.TicketStatusInProgress, domain.RoleCustomer},
		{"customer resolves", domain.TicketStatusInProgress, domain.TicketStatusResolved, domain.RoleCustomer},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Apply(tc.current, Transition{Target: tc.target, Actor: tc.actor, Reason: "x"})
			if !errors.Is(err, ErrInvalidTransition) {
				t.Fatalf("Apply(%s -> %s) err = %v, want ErrInvalidTransition", tc.current, tc.target, err)
			}
		})
	}
}

func TestCancellationFromAnyNonTerminalState(t *testing.T) {
	nonTerminal := []domain.TicketStatus{
		domain.TicketStatusOpen,
		domain.TicketStatusInProgress,
		domain.TicketStatusWaiting,
		domain.TicketStatusConfirmed,
		domain.TicketStatusResolved,
		domain.TicketStatusCompleted,
	}
	for _, current := range nonTerminal {
		for _, actor := range []domain.Role{domain.RoleCustomer, domain.RoleStaff} {
			res, err := Apply(current, Transition{Target: domain.TicketStatusCancelled, Actor: actor, Reason: "no longer needed"})
			if err != nil {
				t.Fatalf("cancel from %s as %s: %v", current, actor, err)
			}
			if res.Status != domain.TicketStatusCancelled {
				t.Fatalf("status = %s, want CANCELLED", res.Status)
			}
		}
	}
}

func TestCancellationRequiresReason(t *testing.T) {
	_, err := Apply(domain.TicketStatusOpen, Transition{Target: domain.TicketStatusCancelled, Actor: domain.RoleCustomer})
	if !errors.Is(err, ErrReasonRequired) {
		t.Fatalf("err = %v, want ErrReasonRequired", err)
	}
}

func TestSystemMessages(t *testing.T) {
	res, err := Apply(domain.TicketStatusOpen, Transition{
		Target:       domain.TicketStatusInProgress,
		Actor:        domain.RoleStaff,
		AssigneeName: "Anna",
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.SystemMessage == "" {
		t.Fatal("expected system message for assignment")
	}

	if msg := ForwardMessage("Jonas"); msg != "Ticket wurde weitergeleitet an Jonas" {
		t.Fatalf("ForwardMessage = %q", msg)
	}
}
