package repository

import (
	"context"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-chat/internal/domain"
)

// TicketFilter captures list parameters.
type TicketFilter struct {
	CreatorID  *string
	AssigneeID *string
	Statuses   []domain.TicketStatus
	Limit      int
	Offset     int
}

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	Update(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (creator_user_id, assignee_user_id, type, urgency, status, registered_by, registered_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING id, sequence_no, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		ticket.CreatorID,
		ticket.AssigneeID,
		ticket.Type,
		ticket.Urgency,
		ticket.Status,
		ticket.RegisteredBy,
		ticket.RegisteredAt,
	).Scan(&ticket.ID, &ticket.SequenceNo, &ticket.CreatedAt, &ticket.UpdatedAt)
}

func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        UPDATE tickets SET assignee_user_id=$1, status=$2, cancel_reason=$3, rating=$4,
            closed_at=$5, updated_at=NOW()
        WHERE id=$6`
	cmd, err := r.pool.Exec(ctx, query,
		ticket.AssigneeID,
		ticket.Status,
		ticket.CancelReason,
		ticket.Rating,
		ticket.ClosedAt,
		ticket.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	const query = `
        SELECT id, sequence_no, creator_user_id, assignee_user_id, type, urgency, status,
               cancel_reason, rating, registered_by, registered_at, created_at, updated_at, closed_at
        FROM tickets WHERE id=$1`
	var ticket domain.Ticket
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&ticket.ID,
		&ticket.SequenceNo,
		&ticket.CreatorID,
		&ticket.AssigneeID,
		&ticket.Type,
		&ticket.Urgency,
		&ticket.Status,
		&ticket.CancelReason,
		&ticket.Rating,
		&ticket.RegisteredBy,
		&ticket.RegisteredAt,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&ticket.ClosedAt,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (r *ticketRepository) ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	query := `
        SELECT id, sequence_no, creator_user_id, assignee_user_id, type, urgency, status,
               cancel_reason, rating, registered_by, registered_at, created_at, updated_at, closed_at
        FROM tickets WHERE 1=1`
	args := make([]any, 0, 4)
	idx := 1

	if filter.CreatorID != nil {
		query += ` AND creator_user_id=$` + strconv.Itoa(idx)
		args = append(args, *filter.CreatorID)
		idx++
	}
	if filter.AssigneeID != nil {
		query += ` AND assignee_user_id=$` + strconv.Itoa(idx)
		args = append(args, *filter.AssigneeID)
		idx++
	}
	if len(filter.Statuses) > 0 {
		query += ` AND status = ANY($` + strconv.Itoa(idx) + `)`
		statuses := make([]string, 0, len(filter.Statuses))
		for _, s := range filter.Statuses {
			statuses = append(statuses, string(s))
		}
		args = append(args, statuses)
		idx++
	}

	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT $` + strconv.Itoa(idx)
		args = append(args, filter.Limit)
		idx++
	}
	if filter.Offset > 0 {
		query += ` OFFSET $` + strconv.Itoa(idx)
		args = append(args, filter.Offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tickets := make([]domain.Ticket, 0)
	for rows.Next() {
		var ticket domain.Ticket
		if err := rows.Scan(
			&ticket.ID,
			&ticket.SequenceNo,
			&ticket.CreatorID,
			&ticket.AssigneeID,
			&ticket.Type,
			&ticket.Urgency,
			&ticket.Status,
			&ticket.CancelReason,
			&ticket.Rating,
			&ticket.RegisteredBy,
			&ticket.RegisteredAt,
			&ticket.CreatedAt,
			&ticket.UpdatedAt,
			&ticket.ClosedAt,
		); err != nil {
			return nil, err
		}
		tickets = append(tickets, ticket)
	}
	return tickets, rows.Err()
}
