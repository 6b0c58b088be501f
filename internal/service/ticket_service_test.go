package service

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/ticket-chat/internal/domain"
	"github.com/spec-kit/ticket-chat/internal/events"
	"github.com/spec-kit/ticket-chat/internal/repository"
	apperrors "github.com/spec-kit/ticket-chat/pkg/util"
)

type fakeTicketRepo struct {
	tickets map[string]*domain.Ticket
	nextID  int
}

func newFakeTicketRepo() *fakeTicketRepo {
	return &fakeTicketRepo{tickets: make(map[string]*domain.Ticket)}
}

func (r *fakeTicketRepo) Create(ctx context.Context, ticket *domain.Ticket) error {
	r.nextID++
	ticket.ID = "ticket-" + strconv.Itoa(r.nextID)
	ticket.SequenceNo = "T-" + strconv.Itoa(r.nextID)
	stored := *ticket
	r.tickets[ticket.ID] = &stored
	return nil
}

func (r *fakeTicketRepo) Update(ctx context.Context, ticket *domain.Ticket) error {
	if _, ok := r.tickets[ticket.ID]; !ok {
		return pgx.ErrNoRows
	}
	stored := *ticket
	r.tickets[ticket.ID] = &stored
	return nil
}

func (r *fakeTicketRepo) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	ticket, ok := r.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *ticket
	return &copied, nil
}

func (r *fakeTicketRepo) ListWithFilter(ctx context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	out := make([]domain.Ticket, 0)
	for _, t := range r.tickets {
		if filter.CreatorID != nil && t.CreatorID != *filter.CreatorID {
			continue
		}
		out = append(out, *t)
	}
	return out, nil
}

type fakeMessageRepo struct {
	messages []domain.ChatMessage
	nextID   int
}

func (r *fakeMessageRepo) Create(ctx context.Context, msg *domain.ChatMessage) error {
	r.nextID++
	msg.ID = "msg-" + strconv.Itoa(r.nextID)
	r.messages = append(r.messages, *msg)
	return nil
}

func (r *fakeMessageRepo) ListByTicket(ctx context.Context, ticketID, cursor string, limit int) ([]domain.ChatMessage, string, error) {
	out := make([]domain.ChatMessage, 0)
	for _, m := range r.messages {
		if m.TicketID == ticketID {
			out = append(out, m)
		}
	}
	return out, "", nil
}

func (r *fakeMessageRepo) CountByTicket(ctx context.Context, ticketID string) (int, error) {
	count := 0
	for _, m := range r.messages {
		if m.TicketID == ticketID {
			count++
		}
	}
	return count, nil
}

type fakeUserRepo struct {
	users map[string]*domain.User
}

func (r *fakeUserRepo) Create(ctx context.Context, user *domain.User) error {
	r.users[user.ID] = user
	return nil
}

func (r *fakeUserRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	user, ok := r.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return user, nil
}

func (r *fakeUserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	for _, u := range r.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *fakeUserRepo) SavePushToken(ctx context.Context, userID, token, platform string) error {
	return nil
}

var (
	customer = &domain.User{ID: "cust-1", Name: "Karin", Role: domain.RoleCustomer}
	agent    = &domain.User{ID: "staff-1", Name: "Jonas", Role: domain.RoleStaff}
	agentTwo = &domain.User{ID: "staff-2", Name: "Mara", Role: domain.RoleStaff}
)

func newService(t *testing.T) (*TicketService, *fakeTicketRepo, *fakeMessageRepo) {
	t.Helper()
	tickets := newFakeTicketRepo()
	messages := &fakeMessageRepo{}
	users := &fakeUserRepo{users: map[string]*domain.User{
		customer.ID: customer,
		agent.ID:    agent,
		agentTwo.ID: agentTwo,
	}}
	svc := NewTicketService(TicketDependencies{
		TicketRepo:  tickets,
		MessageRepo: messages,
		UserRepo:    users,
		Dispatcher:  events.NewInMemoryDispatcher(),
	})
	return svc, tickets, messages
}

func createOpenTicket(t *testing.T, svc *TicketService) *domain.Ticket {
	t.Helper()
	ticket, err := svc.Create(context.Background(), customer, TicketCreateInput{
		Type:    domain.TicketTypeRepair,
		Urgency: domain.TicketUrgencyNormal,
		Subject: "Display flackert",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return ticket
}

func TestCreateTicketStartsOpenWithSubjectMessage(t *testing.T) {
	svc, _, messages := newService(t)
	ticket := createOpenTicket(t, svc)

	if ticket.Status != domain.TicketStatusOpen {
		t.Fatalf("status = %s, want OPEN", ticket.Status)
	}
	if len(messages.messages) != 1 || messages.messages[0].Body != "Display flackert" {
		t.Fatalf("subject not recorded as first message: %+v", messages.messages)
	}
}

func TestCustomerCannotSeeForeignTicket(t *testing.T) {
	svc, _, _ := newService(t)
	ticket := createOpenTicket(t, svc)

	other := &domain.User{ID: "cust-2", Role: domain.RoleCustomer}
	_, err := svc.Get(context.Background(), other, ticket.ID)
	var domainErr *apperrors.DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != "FORBIDDEN" {
		t.Fatalf("expected FORBIDDEN, got %v", err)
	}
}

func TestUpdateStatusTakesOverAndLeavesSystemMessage(t *testing.T) {
	svc, _, messages := newService(t)
	ticket := createOpenTicket(t, svc)

	updated, err := svc.UpdateStatus(context.Background(), agent, ticket.ID, domain.TicketStatusInProgress, "")
	if err != nil {
		t.Fatalf("update status: %v", err)
	}
	if updated.Status != domain.TicketStatusInProgress {
		t.Fatalf("status = %s", updated.Status)
	}
	if updated.AssigneeID == nil || *updated.AssigneeID != agent.ID {
		t.Fatalf("assignee not set: %v", updated.AssigneeID)
	}

	last := messages.messages[len(messages.messages)-1]
	if !last.IsSystem || last.Body != "Ticket wurde übernommen von Jonas" {
		t.Fatalf("unexpected system message: %+v", last)
	}
}

func TestUpdateStatusRejectsIllegalTransition(t *testing.T) {
	svc, _, _ := newService(t)
	ticket := createOpenTicket(t, svc)

	_, err := svc.UpdateStatus(context.Background(), agent, ticket.ID, domain.TicketStatusClosed, "")
	var domainErr *apperrors.DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != "INVALID_TRANSITION" {
		t.Fatalf("expected INVALID_TRANSITION, got %v", err)
	}
}

func TestCancellationRequiresReason(t *testing.T) {
	svc, _, _ := newService(t)
	ticket := createOpenTicket(t, svc)

	_, err := svc.UpdateStatus(context.Background(), customer, ticket.ID, domain.TicketStatusCancelled, "")
	var domainErr *apperrors.DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != "VALIDATION_FAILED" {
		t.Fatalf("expected VALIDATION_FAILED, got %v", err)
	}

	updated, err := svc.UpdateStatus(context.Background(), customer, ticket.ID, domain.TicketStatusCancelled, "doch kein Defekt")
	if err != nil {
		t.Fatalf("cancel with reason: %v", err)
	}
	if updated.CancelReason == nil || *updated.CancelReason != "doch kein Defekt" {
		t.Fatalf("cancel reason not stored: %v", updated.CancelReason)
	}
	if updated.ClosedAt == nil {
		t.Fatal("terminal status should set closed_at")
	}
}

func TestAddMessageRejectedOnFinishedTicket(t *testing.T) {
	svc, tickets, _ := newService(t)
	ticket := createOpenTicket(t, svc)

	stored := tickets.tickets[ticket.ID]
	stored.Status = domain.TicketStatusClosed

	_, err := svc.AddMessage(context.Background(), customer, ticket.ID, "hallo?", nil)
	var domainErr *apperrors.DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != "CONFLICT" {
		t.Fatalf("expected CONFLICT, got %v", err)
	}
}

func TestAddMessageRequiresContent(t *testing.T) {
	svc, _, _ := newService(t)
	ticket := createOpenTicket(t, svc)

	_, err := svc.AddMessage(context.Background(), customer, ticket.ID, "   ", nil)
	var domainErr *apperrors.DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != "VALIDATION_FAILED" {
		t.Fatalf("expected VALIDATION_FAILED, got %v", err)
	}

	if _, err := svc.AddMessage(context.Background(), customer, ticket.ID, "", []domain.Attachment{{URL: "https://files/x.png"}}); err != nil {
		t.Fatalf("attachment-only message rejected: %v", err)
	}
}

func TestForwardUpdatesAssigneeWithoutStatusChange(t *testing.T) {
	svc, _, messages := newService(t)
	ticket := createOpenTicket(t, svc)

	if _, err := svc.UpdateStatus(context.Background(), agent, ticket.ID, domain.TicketStatusInProgress, ""); err != nil {
		t.Fatalf("take over: %v", err)
	}
	forwarded, err := svc.Forward(context.Background(), agent, ticket.ID, agentTwo.ID)
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	if forwarded.Status != domain.TicketStatusInProgress {
		t.Fatalf("forward changed status to %s", forwarded.Status)
	}
	if forwarded.AssigneeID == nil || *forwarded.AssigneeID != agentTwo.ID {
		t.Fatalf("assignee = %v", forwarded.AssigneeID)
	}

	last := messages.messages[len(messages.messages)-1]
	if !last.IsSystem || last.Body != "Ticket wurde weitergeleitet an Mara" {
		t.Fatalf("unexpected forward message: %+v", last)
	}
}

func TestForwardRejectsCustomerAndNonStaffAssignee(t *testing.T) {
	svc, _, _ := newService(t)
	ticket := createOpenTicket(t, svc)

	if _, err := svc.Forward(context.Background(), customer, ticket.ID, agent.ID); err == nil {
		t.Fatal("customer forward allowed")
	}
	if _, err := svc.Forward(context.Background(), agent, ticket.ID, customer.ID); err == nil {
		t.Fatal("forward to customer allowed")
	}
}

func TestRatingOnlyOnceByCreatorAfterClose(t *testing.T) {
	svc, tickets, _ := newService(t)
	ticket := createOpenTicket(t, svc)

	if _, err := svc.SubmitRating(context.Background(), customer, ticket.ID, 5); err == nil {
		t.Fatal("rating accepted before close")
	}

	stored := tickets.tickets[ticket.ID]
	stored.Status = domain.TicketStatusClosed

	if _, err := svc.SubmitRating(context.Background(), agent, ticket.ID, 5); err == nil {
		t.Fatal("rating accepted from non-creator")
	}
	rated, err := svc.SubmitRating(context.Background(), customer, ticket.ID, 4)
	if err != nil {
		t.Fatalf("rating: %v", err)
	}
	if rated.Rating == nil || *rated.Rating != 4 {
		t.Fatalf("rating not stored: %v", rated.Rating)
	}
	if _, err := svc.SubmitRating(context.Background(), customer, ticket.ID, 2); err == nil {
		t.Fatal("second rating accepted")
	}
}
