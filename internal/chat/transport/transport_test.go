package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-chat/internal/chat"
)

type fakeConn struct {
	incoming chan chat.Envelope
	closed   chan struct{}
	once     sync.Once

	mu      sync.Mutex
	written []chat.Envelope
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		incoming: make(chan chat.Envelope, 16),
		closed:   make(chan struct{}),
	}
}

func (c *fakeConn) ReadJSON(v any) error {
	select {
	case env := <-c.incoming:
		*(v.(*chat.Envelope)) = env
		return nil
	case <-c.closed:
		return errors.New("connection closed")
	}
}

func (c *fakeConn) WriteJSON(v any) error {
	env, ok := v.(chat.Envelope)
	if !ok {
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(data, &env); err != nil {
			return err
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written = append(c.written, env)
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) writtenKinds() []chat.EventKind {
	c.mu.Lock()
	defer c.mu.Unlock()
	kinds := make([]chat.EventKind, 0, len(c.written))
	for _, env := range c.written {
		kinds = append(kinds, env.Kind)
	}
	return kinds
}

type fakeDialer struct {
	mu       sync.Mutex
	attempts int
	failures int
	conns    []*fakeConn
}

func (d *fakeDialer) dial(_ context.Context, _ string, _ http.Header) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.attempts++
	if d.attempts <= d.failures {
		return nil, errors.New("dial refused")
	}
	conn := newFakeConn()
	d.conns = append(d.conns, conn)
	return conn, nil
}

func (d *fakeDialer) conn(i int) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i >= len(d.conns) {
		return nil
	}
	return d.conns[i]
}

func newTestClient(t *testing.T, d *fakeDialer) *Client {
	t.Helper()
	return NewClient("ws://example.test/ws", zap.NewNop(),
		WithDialer(d.dial),
		WithRetry(3, time.Millisecond))
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestConnectIsIdempotent(t *testing.T) {
	dialer := &fakeDialer{}
	client := newTestClient(t, dialer)

	if err := client.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := client.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := client.State(); got != StateConnected {
		t.Fatalf("state = %s, want connected", got)
	}
	dialer.mu.Lock()
	attempts := dialer.attempts
	dialer.mu.Unlock()
	if attempts != 1 {
		t.Fatalf("attempts = %d, want 1", attempts)
	}
}

func TestConnectRetriesWithinBudget(t *testing.T) {
	dialer := &fakeDialer{failures: 2}
	client := newTestClient(t, dialer)

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("expected success on third attempt: %v", err)
	}
	dialer.mu.Lock()
	attempts := dialer.attempts
	dialer.mu.Unlock()
	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3", attempts)
	}
}

func TestConnectBudgetExhaustion(t *testing.T) {
	dialer := &fakeDialer{failures: 100}
	client := newTestClient(t, dialer)

	if err := client.Connect(context.Background()); err == nil {
		t.Fatal("expected error after budget exhaustion")
	}
	if got := client.State(); got != StateDisconnected {
		t.Fatalf("state = %s, want disconnected", got)
	}
}

func TestJoinRoomBeforeConnectIsReplayed(t *testing.T) {
	dialer := &fakeDialer{}
	client := newTestClient(t, dialer)

	client.JoinRoom("t-1")
	if err := client.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}

	conn := dialer.conn(0)
	waitFor(t, func() bool {
		for _, kind := range conn.writtenKinds() {
			if kind == chat.EventJoinRoom {
				return true
			}
		}
		return false
	}, "joinRoom not replayed on connect")
}

func TestLeaveRoomNotMemberIsNoop(t *testing.T) {
	dialer := &fakeDialer{}
	client := newTestClient(t, dialer)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}

	client.LeaveRoom("t-unknown")
	if kinds := dialer.conn(0).writtenKinds(); len(kinds) != 0 {
		t.Fatalf("unexpected control events: %v", kinds)
	}
}

func TestSubscribersRunInSubscriptionOrder(t *testing.T) {
	dialer := &fakeDialer{}
	client := newTestClient(t, dialer)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}

	var mu sync.Mutex
	var order []string
	client.Subscribe(chat.EventNewMessage, func(chat.Envelope) {
		mu.Lock()
		order = append(order, "first")
		mu.Unlock()
	})
	unsub := client.Subscribe(chat.EventNewMessage, func(chat.Envelope) {
		mu.Lock()
		order = append(order, "second")
		mu.Unlock()
	})

	dialer.conn(0).incoming <- chat.Envelope{Kind: chat.EventNewMessage, TicketID: "t-1"}
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 2
	}, "handlers not invoked")

	mu.Lock()
	if order[0] != "first" || order[1] != "second" {
		t.Fatalf("order = %v", order)
	}
	mu.Unlock()

	unsub()
	dialer.conn(0).incoming <- chat.Envelope{Kind: chat.EventNewMessage, TicketID: "t-1"}
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 3
	}, "remaining handler not invoked after unsubscribe")
}

func TestReconnectRejoinsRoomsSilently(t *testing.T) {
	dialer := &fakeDialer{}
	client := newTestClient(t, dialer)

	if err := client.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	client.JoinRoom("t-7")

	// Drop the first connection; the read pump should redial and rejoin.
	_ = dialer.conn(0).Close()

	waitFor(t, func() bool { return dialer.conn(1) != nil }, "no reconnect dial")
	waitFor(t, func() bool {
		for _, kind := range dialer.conn(1).writtenKinds() {
			if kind == chat.EventJoinRoom {
				return true
			}
		}
		return false
	}, "room not rejoined after reconnect")
	waitFor(t, func() bool { return client.State() == StateConnected }, "state not restored")
}

func TestStateObserver(t *testing.T) {
	dialer := &fakeDialer{}
	client := newTestClient(t, dialer)

	var mu sync.Mutex
	var states []State
	client.SubscribeState(func(s State) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	})

	if err := client.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, s := range states {
			if s == StateConnected {
				return true
			}
		}
		return false
	}, "connected state not observed")
}
