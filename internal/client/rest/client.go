// Package rest implements the durable ticket/message store boundary the
// session coordinator consumes, speaking the service's own HTTP API.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"github.com/spec-kit/ticket-chat/internal/api/dto"
	"github.com/spec-kit/ticket-chat/internal/domain"
)

const defaultTimeout = 15 * time.Second

// Client talks to the ticket service. It satisfies session.Store and
// notify.UnreadSource.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient substitutes the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// NewClient creates a client for the given base URL and bearer token.
func NewClient(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type dataEnvelope struct {
	Data json.RawMessage `json:"data"`
}

// GetTicket fetches ticket metadata.
func (c *Client) GetTicket(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	var resp dto.TicketResponse
	if err := c.doJSON(ctx, http.MethodGet, "/tickets/"+ticketID, nil, &resp); err != nil {
		return nil, err
	}
	ticket := dto.TicketFromResponse(resp)
	return &ticket, nil
}

// ListMessages fetches one history page; an empty cursor means the first.
func (c *Client) ListMessages(ctx context.Context, ticketID, cursor string) ([]domain.ChatMessage, string, error) {
	path := "/tickets/" + ticketID + "/messages"
	if cursor != "" {
		path += "?cursor=" + url.QueryEscape(cursor)
	}
	var page dto.MessagePage
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &page); err != nil {
		return nil, "", err
	}
	messages := make([]domain.ChatMessage, 0, len(page.Items))
	for _, item := range page.Items {
		messages = append(messages, dto.MessageFromResponse(item))
	}
	return messages, page.NextCursor, nil
}

// CreateMessage persists a message, text and attachment references as a
// multipart form.
func (c *Client) CreateMessage(ctx context.Context, ticketID, body string, attachments []domain.Attachment) (*domain.ChatMessage, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if err := writer.WriteField("body", body); err != nil {
		return nil, err
	}
	for _, att := range attachments {
		encoded, err := json.Marshal(att)
		if err != nil {
			return nil, err
		}
		if err := writer.WriteField("attachments", string(encoded)); err != nil {
			return nil, err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/tickets/"+ticketID+"/messages", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	var resp dto.MessageResponse
	if err := c.send(req, &resp); err != nil {
		return nil, err
	}
	msg := dto.MessageFromResponse(resp)
	return &msg, nil
}

// UpdateStatus persists a status transition.
func (c *Client) UpdateStatus(ctx context.Context, ticketID string, target domain.TicketStatus, reason string) (*domain.Ticket, error) {
	var resp dto.TicketResponse
	err := c.doJSON(ctx, http.MethodPut, "/tickets/"+ticketID+"/status",
		dto.UpdateStatusRequest{Target: target, Reason: reason}, &resp)
	if err != nil {
		return nil, err
	}
	ticket := dto.TicketFromResponse(resp)
	return &ticket, nil
}

// UpdateAssignee forwards the ticket to another staff member.
func (c *Client) UpdateAssignee(ctx context.Context, ticketID, assigneeID string) (*domain.Ticket, error) {
	var resp dto.TicketResponse
	err := c.doJSON(ctx, http.MethodPut, "/tickets/"+ticketID+"/assignee",
		dto.UpdateAssigneeRequest{AssigneeID: assigneeID}, &resp)
	if err != nil {
		return nil, err
	}
	ticket := dto.TicketFromResponse(resp)
	return &ticket, nil
}

// CloseTicket closes a resolved or completed ticket.
func (c *Client) CloseTicket(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	var resp dto.TicketResponse
	if err := c.doJSON(ctx, http.MethodPost, "/tickets/"+ticketID+"/close", nil, &resp); err != nil {
		return nil, err
	}
	ticket := dto.TicketFromResponse(resp)
	return &ticket, nil
}

// SubmitRating records the post-resolution rating.
func (c *Client) SubmitRating(ctx context.Context, ticketID string, rating int) error {
	return c.doJSON(ctx, http.MethodPost, "/tickets/"+ticketID+"/rating",
		dto.RatingRequest{Rating: rating}, nil)
}

// UnreadCounts polls per-ticket unread message counts.
func (c *Client) UnreadCounts(ctx context.Context) (map[string]int, error) {
	var resp dto.UnreadCountResponse
	if err := c.doJSON(ctx, http.MethodGet, "/notifications/unread-count", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Counts, nil
}

// RegisterPushToken registers a device token for push delivery.
func (c *Client) RegisterPushToken(ctx context.Context, token, platform string) error {
	return c.doJSON(ctx, http.MethodPost, "/notifications/push-token",
		dto.PushTokenRequest{Token: token, Platform: platform}, nil)
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, out)
}

func (c *Client) send(req *http.Request, out any) error {
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s %s: status %d: %s", req.Method, req.URL.Path, resp.StatusCode, bytes.TrimSpace(data))
	}
	if out == nil {
		return nil
	}

	var envelope dataEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return err
	}
	return json.Unmarshal(envelope.Data, out)
}
