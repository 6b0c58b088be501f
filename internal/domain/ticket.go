package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen       TicketStatus = "OPEN"
	TicketStatusInProgress TicketStatus = "IN_PROGRESS"
	TicketStatusWaiting    TicketStatus = "WAITING"
	TicketStatusConfirmed  TicketStatus = "CONFIRMED"
	TicketStatusResolved   TicketStatus = "RESOLVED"
	TicketStatusCompleted  TicketStatus = "COMPLETED"
	TicketStatusClosed     TicketStatus = "CLOSED"
	TicketStatusCancelled  TicketStatus = "CANCELLED"
)

// IsTerminal reports whether no further transitions are possible.
func (s TicketStatus) IsTerminal() bool {
	return s == TicketStatusClosed || s == TicketStatusCancelled
}

// TicketType categorizes the customer's request.
type TicketType string

const (
	TicketTypeRepair       TicketType = "REPAIR"
	TicketTypeInspection   TicketType = "INSPECTION"
	TicketTypeConsultation TicketType = "CONSULTATION"
	TicketTypeMaintenance  TicketType = "MAINTENANCE"
	TicketTypeComplaint    TicketType = "COMPLAINT"
	TicketTypeInquiry      TicketType = "INQUIRY"
	TicketTypeFeedback     TicketType = "FEEDBACK"
	TicketTypeOther        TicketType = "OTHER"
)

// TicketUrgency enumerates SLA urgency.
type TicketUrgency string

const (
	TicketUrgencyLow    TicketUrgency = "LOW"
	TicketUrgencyNormal TicketUrgency = "NORMAL"
	TicketUrgencyMedium TicketUrgency = "MEDIUM"
	TicketUrgencyHigh   TicketUrgency = "HIGH"
	TicketUrgencyUrgent TicketUrgency = "URGENT"
)

// Ticket is the aggregate for customer support requests.
//
// AssigneeID is nil only while the ticket is OPEN; assignment and the move
// to IN_PROGRESS always happen together.
type Ticket struct {
	ID           string
	SequenceNo   string
	CreatorID    string
	AssigneeID   *string
	Type         TicketType
	Urgency      TicketUrgency
	Status       TicketStatus
	CancelReason *string
	Rating       *int
	RegisteredBy *string
	RegisteredAt *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
	ClosedAt     *time.Time
}
