package notify

import (
	"context"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-chat/internal/chat/transport"
)

type fakeSource struct {
	mu     sync.Mutex
	counts map[string]int
}

func (f *fakeSource) UnreadCounts(context.Context) (map[string]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]int, len(f.counts))
	for k, v := range f.counts {
		out[k] = v
	}
	return out, nil
}

type fakeSignaler struct {
	mu      sync.Mutex
	signals []string
}

func (f *fakeSignaler) OnExternalActivitySignal(_ context.Context, ticketID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signals = append(f.signals, ticketID)
}

type fixedState struct{ state transport.State }

func (f fixedState) State() transport.State { return f.state }

func TestPollSignalsOnCountIncrease(t *testing.T) {
	source := &fakeSource{counts: map[string]int{"t-1": 0}}
	signaler := &fakeSignaler{}
	poller := NewPoller(source, signaler, fixedState{transport.StateDisconnected}, zap.NewNop())

	poller.Poll(context.Background())
	if len(signaler.signals) != 0 {
		t.Fatalf("signal fired without activity: %v", signaler.signals)
	}

	source.mu.Lock()
	source.counts["t-1"] = 2
	source.mu.Unlock()
	poller.Poll(context.Background())

	if len(signaler.signals) != 1 || signaler.signals[0] != "t-1" {
		t.Fatalf("signals = %v, want [t-1]", signaler.signals)
	}

	// Unchanged counts do not re-signal.
	poller.Poll(context.Background())
	if len(signaler.signals) != 1 {
		t.Fatalf("re-signalled without new activity: %v", signaler.signals)
	}
}

func TestPollPausesWhileConnected(t *testing.T) {
	source := &fakeSource{counts: map[string]int{"t-1": 5}}
	signaler := &fakeSignaler{}
	poller := NewPoller(source, signaler, fixedState{transport.StateConnected}, zap.NewNop())

	poller.Poll(context.Background())
	if len(signaler.signals) != 0 {
		t.Fatalf("poller acted while live channel connected: %v", signaler.signals)
	}
}
