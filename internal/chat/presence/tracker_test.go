package presence

import (
	"testing"
	"time"
)

type fakeClock struct {
	current time.Time
}

func (c *fakeClock) now() time.Time { return c.current }

func (c *fakeClock) advance(d time.Duration) { c.current = c.current.Add(d) }

func newTestTracker() (*Tracker, *fakeClock) {
	clock := &fakeClock{current: time.Unix(1700000000, 0)}
	return NewTracker("local", WithClock(clock.now)), clock
}

func TestTypingExpiresAfterTTL(t *testing.T) {
	tracker, clock := newTestTracker()

	tracker.OnTyping("staff-1", "Anna")
	if !tracker.IsAnyOtherTyping() {
		t.Fatal("expected typing after event")
	}

	clock.advance(DefaultTTL - time.Millisecond)
	if !tracker.IsAnyOtherTyping() {
		t.Fatal("typing expired before TTL")
	}

	clock.advance(2 * time.Millisecond)
	if tracker.IsAnyOtherTyping() {
		t.Fatal("typing did not expire after TTL")
	}
}

func TestTypingRenewal(t *testing.T) {
	tracker, clock := newTestTracker()

	tracker.OnTyping("staff-1", "Anna")
	clock.advance(2 * time.Second)
	tracker.OnTyping("staff-1", "Anna")
	clock.advance(2 * time.Second)

	if !tracker.IsAnyOtherTyping() {
		t.Fatal("renewed typing signal expired too early")
	}
}

func TestStopTypingWinsImmediately(t *testing.T) {
	tracker, _ := newTestTracker()

	tracker.OnTyping("staff-1", "Anna")
	tracker.OnStopTyping("staff-1")
	if tracker.IsAnyOtherTyping() {
		t.Fatal("stop event did not clear typing state")
	}
}

func TestLocalActorEventsIgnored(t *testing.T) {
	tracker, _ := newTestTracker()

	tracker.OnTyping("local", "Me")
	if tracker.IsAnyOtherTyping() {
		t.Fatal("local actor's own typing should not count")
	}
}

func TestRepresentativeTyper(t *testing.T) {
	tracker, _ := newTestTracker()

	tracker.OnTyping("staff-1", "Anna")
	name, ok := tracker.TypingParticipant()
	if !ok || name != "Anna" {
		t.Fatalf("TypingParticipant = %q, %v", name, ok)
	}

	tracker.Reset()
	if _, ok := tracker.TypingParticipant(); ok {
		t.Fatal("reset did not clear typing state")
	}
}
