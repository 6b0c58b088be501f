package session

import "errors"

var (
	// ErrSessionNotActive is a programming error: an operation was invoked
	// outside the active phase.
	ErrSessionNotActive = errors.New("session not active")

	// ErrEmptyMessage rejects a send with neither text nor attachments. Not
	// retryable until the content changes.
	ErrEmptyMessage = errors.New("message needs text or attachments")

	// ErrSendFailed is transient; re-invoking Send with the same content is
	// the expected retry path.
	ErrSendFailed = errors.New("message could not be delivered")

	// ErrStatusChangeFailed is transient; the optimistic status has already
	// been rolled back when it surfaces.
	ErrStatusChangeFailed = errors.New("status change could not be persisted")

	// ErrTicketLoad is transient; retry by calling Open again.
	ErrTicketLoad = errors.New("ticket could not be loaded")
)
