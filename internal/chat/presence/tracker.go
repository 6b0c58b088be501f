// Package presence derives "the other party is typing" from raw typing and
// stop-typing events.
package presence

import (
	"sync"
	"time"
)

// DefaultTTL is how long a typing signal stays alive without renewal.
const DefaultTTL = 3 * time.Second

type typingState struct {
	name     string
	deadline time.Time
}

// Tracker keeps per-participant typing state for one room. A typing event
// (re)arms a TTL deadline; an explicit stop event wins immediately. Expiry
// is evaluated against the injected clock, so tests drive time directly.
type Tracker struct {
	mu      sync.Mutex
	localID string
	ttl     time.Duration
	now     func() time.Time
	typing  map[string]typingState
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithTTL overrides the typing expiry window.
func WithTTL(ttl time.Duration) Option {
	return func(t *Tracker) { t.ttl = ttl }
}

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// NewTracker creates a tracker that ignores the local actor's own events.
func NewTracker(localID string, opts ...Option) *Tracker {
	t := &Tracker{
		localID: localID,
		ttl:     DefaultTTL,
		now:     time.Now,
		typing:  make(map[string]typingState),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// OnTyping marks the participant as typing and restarts their expiry window.
func (t *Tracker) OnTyping(participantID, name string) {
	if participantID == t.localID {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.typing[participantID] = typingState{name: name, deadline: t.now().Add(t.ttl)}
}

// OnStopTyping clears the participant's typing state immediately.
func (t *Tracker) OnStopTyping(participantID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.typing, participantID)
}

// Reset drops all typing state, for room changes and assignee forwards.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.typing = make(map[string]typingState)
}

// IsAnyOtherTyping reports whether at least one other participant has an
// unexpired typing signal.
func (t *Tracker) IsAnyOtherTyping() bool {
	_, ok := t.representative()
	return ok
}

// TypingParticipant returns the name of one currently typing participant for
// a "X is typing" indicator. Multiple simultaneous typers are not
// distinguished.
func (t *Tracker) TypingParticipant() (string, bool) {
	return t.representative()
}

func (t *Tracker) representative() (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	for id, state := range t.typing {
		if now.Before(state.deadline) {
			return state.name, true
		}
		delete(t.typing, id)
	}
	return "", false
}
