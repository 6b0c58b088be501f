// Package transport manages the one live-channel connection a client
// process holds, with logical rooms layered on top of it.
package transport

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-chat/internal/chat"
)

// State describes the connection as observed by the UI indicator.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
)

const (
	defaultRetryAttempts = 5
	defaultRetryDelay    = time.Second
)

// Conn is the subset of a websocket connection the client uses. gorilla's
// *websocket.Conn satisfies it; tests substitute an in-memory pipe.
type Conn interface {
	ReadJSON(v any) error
	WriteJSON(v any) error
	Close() error
}

// Dialer establishes a Conn. The default dials with gorilla's DefaultDialer.
type Dialer func(ctx context.Context, url string, header http.Header) (Conn, error)

func gorillaDialer(ctx context.Context, url string, header http.Header) (Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Handler consumes a broadcast envelope.
type Handler func(chat.Envelope)

type subscription struct {
	id      int
	handler Handler
}

type stateSubscription struct {
	id      int
	handler func(State)
}

// Client is the logical live-channel connection. Room memberships survive
// reconnects: they are remembered and silently rejoined.
type Client struct {
	url           string
	header        http.Header
	logger        *zap.Logger
	dial          Dialer
	retryAttempts int
	retryDelay    time.Duration

	mu         sync.Mutex
	conn       Conn
	state      State
	generation int
	rooms      map[string]struct{}
	subs       map[chat.EventKind][]subscription
	stateSubs  []stateSubscription
	nextSubID  int
}

// Option configures a Client.
type Option func(*Client)

// WithDialer injects the connection factory.
func WithDialer(d Dialer) Option {
	return func(c *Client) { c.dial = d }
}

// WithHeader sets handshake headers, typically the bearer token.
func WithHeader(h http.Header) Option {
	return func(c *Client) { c.header = h }
}

// WithRetry overrides the fixed reconnect budget.
func WithRetry(attempts int, delay time.Duration) Option {
	return func(c *Client) {
		c.retryAttempts = attempts
		c.retryDelay = delay
	}
}

// NewClient creates a disconnected client for the given websocket URL.
func NewClient(url string, logger *zap.Logger, opts ...Option) *Client {
	c := &Client{
		url:           url,
		logger:        logger,
		dial:          gorillaDialer,
		retryAttempts: defaultRetryAttempts,
		retryDelay:    defaultRetryDelay,
		state:         StateDisconnected,
		rooms:         make(map[string]struct{}),
		subs:          make(map[chat.EventKind][]subscription),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect establishes the connection, retrying up to the fixed budget with a
// fixed delay between attempts. It is idempotent: calling it while connected
// is a no-op. After the budget is exhausted the client stays disconnected
// until Connect is called again.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateConnected || c.state == StateConnecting {
		c.mu.Unlock()
		return nil
	}
	c.setStateLocked(StateConnecting)
	c.mu.Unlock()

	conn, err := c.dialWithRetry(ctx)
	if err != nil {
		c.mu.Lock()
		c.setStateLocked(StateDisconnected)
		c.mu.Unlock()
		return err
	}

	c.adopt(conn)
	return nil
}

// Close tears the connection down and forgets all room memberships.
func (c *Client) Close() error {
	c.mu.Lock()
	c.generation++
	conn := c.conn
	c.conn = nil
	c.rooms = make(map[string]struct{})
	c.setStateLocked(StateDisconnected)
	c.mu.Unlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// JoinRoom registers interest in a ticket's room. Safe to call repeatedly;
// connection failures surface through the state observable, never here.
func (c *Client) JoinRoom(ticketID string) {
	c.mu.Lock()
	c.rooms[ticketID] = struct{}{}
	conn := c.connIfConnected()
	c.mu.Unlock()

	if conn != nil {
		c.writeControl(conn, chat.EventJoinRoom, ticketID, nil)
	}
}

// LeaveRoom drops room membership. Leaving a room the client is not in is a
// no-op.
func (c *Client) LeaveRoom(ticketID string) {
	c.mu.Lock()
	_, member := c.rooms[ticketID]
	delete(c.rooms, ticketID)
	conn := c.connIfConnected()
	c.mu.Unlock()

	if member && conn != nil {
		c.writeControl(conn, chat.EventLeaveRoom, ticketID, nil)
	}
}

// SendTyping emits a typing control event for the room.
func (c *Client) SendTyping(ticketID, userID, username string) {
	c.mu.Lock()
	conn := c.connIfConnected()
	c.mu.Unlock()
	if conn != nil {
		c.writeControl(conn, chat.EventTyping, ticketID, chat.TypingPayload{
			TicketID: ticketID,
			UserID:   userID,
			Username: username,
		})
	}
}

// SendStopTyping emits a stop-typing control event for the room.
func (c *Client) SendStopTyping(ticketID, userID string) {
	c.mu.Lock()
	conn := c.connIfConnected()
	c.mu.Unlock()
	if conn != nil {
		c.writeControl(conn, chat.EventStopTyping, ticketID, chat.TypingPayload{
			TicketID: ticketID,
			UserID:   userID,
		})
	}
}

// Subscribe registers a handler for an event kind and returns its
// unsubscribe function. Handlers for one kind run in subscription order.
func (c *Client) Subscribe(kind chat.EventKind, handler Handler) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextSubID++
	id := c.nextSubID
	c.subs[kind] = append(c.subs[kind], subscription{id: id, handler: handler})

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		list := c.subs[kind]
		for i := range list {
			if list[i].id == id {
				c.subs[kind] = append(list[:i], list[i+1:]...)
				return
			}
		}
	}
}

// SubscribeState observes connection-state changes.
func (c *Client) SubscribeState(handler func(State)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextSubID++
	id := c.nextSubID
	c.stateSubs = append(c.stateSubs, stateSubscription{id: id, handler: handler})

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i := range c.stateSubs {
			if c.stateSubs[i].id == id {
				c.stateSubs = append(c.stateSubs[:i], c.stateSubs[i+1:]...)
				return
			}
		}
	}
}

func (c *Client) connIfConnected() Conn {
	if c.state != StateConnected {
		return nil
	}
	return c.conn
}

func (c *Client) writeControl(conn Conn, kind chat.EventKind, ticketID string, payload any) {
	env, err := chat.NewEnvelope(kind, ticketID, payload)
	if err != nil {
		c.logger.Error("encode control event", zap.Error(err))
		return
	}
	if err := conn.WriteJSON(env); err != nil {
		c.logger.Warn("write control event", zap.String("kind", string(kind)), zap.Error(err))
	}
}

func (c *Client) dialWithRetry(ctx context.Context) (Conn, error) {
	var lastErr error
	for attempt := 1; attempt <= c.retryAttempts; attempt++ {
		conn, err := c.dial(ctx, c.url, c.header)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		c.logger.Warn("dial failed",
			zap.Int("attempt", attempt),
			zap.Int("budget", c.retryAttempts),
			zap.Error(err))
		if attempt == c.retryAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.retryDelay):
		}
	}
	return nil, lastErr
}

// adopt installs a fresh connection, rejoins remembered rooms and starts the
// read pump.
func (c *Client) adopt(conn Conn) {
	c.mu.Lock()
	c.generation++
	gen := c.generation
	c.conn = conn
	c.setStateLocked(StateConnected)
	rooms := make([]string, 0, len(c.rooms))
	for id := range c.rooms {
		rooms = append(rooms, id)
	}
	c.mu.Unlock()

	for _, id := range rooms {
		c.writeControl(conn, chat.EventJoinRoom, id, nil)
	}

	go c.readPump(conn, gen)
}

func (c *Client) readPump(conn Conn, gen int) {
	for {
		var env chat.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			c.mu.Lock()
			stale := gen != c.generation
			c.mu.Unlock()
			if stale {
				return
			}
			c.logger.Warn("live channel read failed", zap.Error(err))
			c.reconnect(gen)
			return
		}
		c.dispatch(env)
	}
}

func (c *Client) dispatch(env chat.Envelope) {
	c.mu.Lock()
	handlers := append([]subscription(nil), c.subs[env.Kind]...)
	c.mu.Unlock()

	for _, sub := range handlers {
		sub.handler(env)
	}
}

// reconnect runs the bounded retry loop after an unexpected drop. Room
// memberships are kept and rejoined silently; exhaustion leaves the client
// disconnected until an explicit Connect call.
func (c *Client) reconnect(gen int) {
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.setStateLocked(StateReconnecting)
	c.mu.Unlock()

	conn, err := c.dialWithRetry(context.Background())
	if err != nil {
		c.logger.Warn("reconnect budget exhausted", zap.Error(err))
		c.mu.Lock()
		if gen == c.generation {
			c.setStateLocked(StateDisconnected)
		}
		c.mu.Unlock()
		return
	}

	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		_ = conn.Close()
		return
	}
	c.mu.Unlock()

	c.adopt(conn)
}

// setStateLocked updates the state and notifies observers. Caller holds mu.
func (c *Client) setStateLocked(next State) {
	if c.state == next {
		return
	}
	c.state = next
	observers := append([]stateSubscription(nil), c.stateSubs...)
	go func() {
		for _, sub := range observers {
			sub.handler(next)
		}
	}()
}
