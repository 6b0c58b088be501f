// Package notify implements the polling fallback that keeps a client
// informed while the live channel is not delivering events, for example
// with the app backgrounded or after the reconnect budget ran out.
package notify

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-chat/internal/chat/transport"
)

// DefaultInterval is how often the unread-count endpoint is polled.
const DefaultInterval = 30 * time.Second

// UnreadSource reports unread message counts per ticket, normally the REST
// client's /notifications/unread-count call.
type UnreadSource interface {
	UnreadCounts(ctx context.Context) (map[string]int, error)
}

// Signaler is the single coupling point back into the core: the session
// coordinator's external-activity hook.
type Signaler interface {
	OnExternalActivitySignal(ctx context.Context, ticketID string)
}

// ConnectionStater exposes the live channel's state so polling can pause
// while events are flowing anyway.
type ConnectionStater interface {
	State() transport.State
}

// Poller periodically compares unread counts and signals the coordinator
// for every ticket whose count grew. It only acts while the live channel is
// not connected.
type Poller struct {
	source   UnreadSource
	signaler Signaler
	conn     ConnectionStater
	logger   *zap.Logger
	interval time.Duration

	last map[string]int
}

// Option configures a Poller.
type Option func(*Poller)

// WithInterval overrides the poll cadence.
func WithInterval(d time.Duration) Option {
	return func(p *Poller) { p.interval = d }
}

// NewPoller wires the fallback together.
func NewPoller(source UnreadSource, signaler Signaler, conn ConnectionStater, logger *zap.Logger, opts ...Option) *Poller {
	p := &Poller{
		source:   source,
		signaler: signaler,
		conn:     conn,
		logger:   logger,
		interval: DefaultInterval,
		last:     make(map[string]int),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run polls until the context is cancelled.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Poll(ctx)
		}
	}
}

// Poll performs one comparison round. Exported so app lifecycle hooks can
// force a check, for instance on foregrounding.
func (p *Poller) Poll(ctx context.Context) {
	if p.conn.State() == transport.StateConnected {
		return
	}

	counts, err := p.source.UnreadCounts(ctx)
	if err != nil {
		p.logger.Warn("unread-count poll failed", zap.Error(err))
		return
	}

	for ticketID, count := range counts {
		if count > p.last[ticketID] {
			p.signaler.OnExternalActivitySignal(ctx, ticketID)
		}
	}
	p.last = counts
}
