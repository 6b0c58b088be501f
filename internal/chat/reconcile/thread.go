// Package reconcile maintains the single ordered message list for one
// ticket, merging the initial history page, locally optimistic sends and
// live remote messages.
package reconcile

import (
	"sync"

	"github.com/google/uuid"

	"github.com/spec-kit/ticket-chat/internal/domain"
)

// Thread is the source of truth for a ticket's conversation as rendered
// locally. Optimistic entries keep their list position when confirmed, so a
// renderer never sees a reordering jump.
type Thread struct {
	mu           sync.RWMutex
	localActorID string
	entries      []domain.ChatMessage
	seen         map[string]struct{}
}

// NewThread creates an empty thread for the given local actor identity.
func NewThread(localActorID string) *Thread {
	return &Thread{
		localActorID: localActorID,
		seen:         make(map[string]struct{}),
	}
}

// Reset replaces the thread contents with a freshly loaded history page.
func (t *Thread) Reset(history []domain.ChatMessage) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append([]domain.ChatMessage(nil), history...)
	t.seen = make(map[string]struct{}, len(history))
	for _, msg := range history {
		if msg.ID != "" {
			t.seen[msg.ID] = struct{}{}
		}
	}
}

// AppendOptimistic assigns a temporary ID to the draft, appends it to the
// tail and returns the ID for later resolution.
func (t *Thread) AppendOptimistic(draft domain.ChatMessage) string {
	tempID := "tmp-" + uuid.NewString()
	draft.TempID = tempID
	draft.IsTemp = true
	draft.SenderID = t.localActorID

	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append(t.entries, draft)
	return tempID
}

// Restore re-appends a previously appended optimistic entry without
// minting a new temp ID, so an in-flight send can still resolve it after
// the thread was reset underneath it.
func (t *Thread) Restore(msg domain.ChatMessage) {
	if !msg.IsTemp || msg.TempID == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append(t.entries, msg)
}

// ResolveOptimistic replaces the temp entry in place with the confirmed
// server message, preserving its position. Unknown temp IDs are ignored.
func (t *Thread) ResolveOptimistic(tempID string, confirmed domain.ChatMessage) {
	confirmed.TempID = tempID
	confirmed.IsTemp = false

	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.entries {
		if t.entries[i].IsTemp && t.entries[i].TempID == tempID {
			t.entries[i] = confirmed
			if confirmed.ID != "" {
				t.seen[confirmed.ID] = struct{}{}
			}
			return
		}
	}
}

// RejectOptimistic removes the temp entry entirely. Calling it again with
// the same ID is a no-op.
func (t *Thread) RejectOptimistic(tempID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.entries {
		if t.entries[i].IsTemp && t.entries[i].TempID == tempID {
			t.entries = append(t.entries[:i], t.entries[i+1:]...)
			return
		}
	}
}

// IngestRemote appends a live-received message. Messages authored by the
// local actor arrive back only through ResolveOptimistic, so they are
// dropped here; confirmed IDs already present are dropped too, which keeps
// delivery exactly-once-perceived across reconnects.
func (t *Thread) IngestRemote(msg domain.ChatMessage) {
	if msg.SenderID == t.localActorID && !msg.IsSystem {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if msg.ID != "" {
		if _, dup := t.seen[msg.ID]; dup {
			return
		}
		t.seen[msg.ID] = struct{}{}
	}
	t.entries = append(t.entries, msg)
}

// Messages returns a snapshot of the ordered thread.
func (t *Thread) Messages() []domain.ChatMessage {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]domain.ChatMessage(nil), t.entries...)
}

// Len returns the current number of entries.
func (t *Thread) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}
