// Package client assembles the pieces a ticket-chat client process needs:
// the REST store, the live websocket transport, the session coordinator and
// the polling fallback, configured from the same env knobs the server uses.
package client

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-chat/internal/chat/presence"
	"github.com/spec-kit/ticket-chat/internal/chat/transport"
	"github.com/spec-kit/ticket-chat/internal/client/rest"
	"github.com/spec-kit/ticket-chat/internal/config"
	"github.com/spec-kit/ticket-chat/internal/notify"
	"github.com/spec-kit/ticket-chat/internal/session"
)

var (
	_ session.Store       = (*rest.Client)(nil)
	_ notify.UnreadSource = (*rest.Client)(nil)
	_ session.Transport   = (*transport.Client)(nil)
)

// Chat owns one authenticated client's connection to the ticket service.
type Chat struct {
	Store       *rest.Client
	Transport   *transport.Client
	Coordinator *session.Coordinator
	poller      *notify.Poller
}

// Params collects what New needs beyond config.
type Params struct {
	BaseURL string
	WSURL   string
	Token   string
	Actor   session.Actor
	// RatingPrompt is invoked once when a ticket owned by the actor is
	// closed while its session is open.
	RatingPrompt func(ticketID string)
}

// New builds the client stack. Nothing connects until the coordinator's
// Open is called; Run starts the polling fallback.
func New(cfg config.ChatConfig, params Params, logger *zap.Logger) *Chat {
	store := rest.NewClient(params.BaseURL, params.Token)

	header := http.Header{}
	header.Set("Authorization", "Bearer "+params.Token)
	tr := transport.NewClient(params.WSURL, logger,
		transport.WithHeader(header),
		transport.WithRetry(cfg.ReconnectAttempts, cfg.ReconnectDelay()))

	opts := []session.Option{
		session.WithPresenceOptions(presence.WithTTL(cfg.TypingTTL())),
	}
	if params.RatingPrompt != nil {
		opts = append(opts, session.WithRatingPrompt(params.RatingPrompt))
	}
	coordinator := session.NewCoordinator(params.Actor, store, tr, logger, opts...)

	poller := notify.NewPoller(store, coordinator, tr, logger,
		notify.WithInterval(cfg.PollInterval()))

	return &Chat{
		Store:       store,
		Transport:   tr,
		Coordinator: coordinator,
		poller:      poller,
	}
}

// Run drives the polling fallback until the context is cancelled.
func (c *Chat) Run(ctx context.Context) {
	c.poller.Run(ctx)
}

// Shutdown leaves any open session and closes the live channel.
func (c *Chat) Shutdown() {
	c.Coordinator.Leave()
	_ = c.Transport.Close()
}
