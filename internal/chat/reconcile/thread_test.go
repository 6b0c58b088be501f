package reconcile

import (
	"testing"
	"time"

	"github.com/spec-kit/ticket-chat/internal/domain"
)

const localActor = "user-1"

func confirmed(id, sender, body string) domain.ChatMessage {
	return domain.ChatMessage{
		ID:         id,
		TicketID:   "t-1",
		SenderID:   sender,
		SenderRole: domain.RoleCustomer,
		Body:       body,
		CreatedAt:  time.Now(),
	}
}

func TestOptimisticRoundTrip(t *testing.T) {
	thread := NewThread(localActor)
	thread.Reset([]domain.ChatMessage{confirmed("m-1", "staff-1", "hello")})

	tempID := thread.AppendOptimistic(domain.ChatMessage{TicketID: "t-1", Body: "hi there"})
	if thread.Len() != 2 {
		t.Fatalf("len = %d, want 2", thread.Len())
	}
	msgs := thread.Messages()
	if !msgs[1].IsTemp || msgs[1].TempID != tempID {
		t.Fatalf("tail entry not the optimistic draft: %+v", msgs[1])
	}

	server := confirmed("m-2", localActor, "hi there")
	thread.ResolveOptimistic(tempID, server)

	msgs = thread.Messages()
	if len(msgs) != 2 {
		t.Fatalf("len after resolve = %d, want 2", len(msgs))
	}
	got := msgs[1]
	if got.IsTemp {
		t.Fatal("resolved entry still marked temp")
	}
	if got.ID != "m-2" || got.Body != "hi there" {
		t.Fatalf("resolved entry = %+v, want confirmed content", got)
	}
}

func TestResolvePreservesPosition(t *testing.T) {
	thread := NewThread(localActor)
	tempID := thread.AppendOptimistic(domain.ChatMessage{Body: "first"})
	thread.IngestRemote(confirmed("m-9", "staff-1", "second"))

	thread.ResolveOptimistic(tempID, confirmed("m-10", localActor, "first"))

	msgs := thread.Messages()
	if msgs[0].ID != "m-10" || msgs[1].ID != "m-9" {
		t.Fatalf("order changed on resolve: %s, %s", msgs[0].ID, msgs[1].ID)
	}
}

func TestRejectIdempotence(t *testing.T) {
	thread := NewThread(localActor)
	tempID := thread.AppendOptimistic(domain.ChatMessage{Body: "doomed"})
	thread.AppendOptimistic(domain.ChatMessage{Body: "survives"})

	thread.RejectOptimistic(tempID)
	if thread.Len() != 1 {
		t.Fatalf("len after reject = %d, want 1", thread.Len())
	}
	thread.RejectOptimistic(tempID)
	if thread.Len() != 1 {
		t.Fatalf("second reject removed an entry, len = %d", thread.Len())
	}
	if thread.Messages()[0].Body != "survives" {
		t.Fatal("wrong entry removed")
	}
}

func TestIngestRemoteDropsOwnMessages(t *testing.T) {
	thread := NewThread(localActor)
	thread.IngestRemote(confirmed("m-1", localActor, "echoed back"))
	if thread.Len() != 0 {
		t.Fatalf("own message appended, len = %d", thread.Len())
	}

	thread.IngestRemote(confirmed("m-2", "staff-1", "from staff"))
	if thread.Len() != 1 {
		t.Fatalf("remote message dropped, len = %d", thread.Len())
	}
}

func TestIngestRemoteDeduplicatesByServerID(t *testing.T) {
	thread := NewThread(localActor)
	msg := confirmed("m-5", "staff-1", "once")
	thread.IngestRemote(msg)
	thread.IngestRemote(msg)
	if thread.Len() != 1 {
		t.Fatalf("duplicate confirmed ID appended, len = %d", thread.Len())
	}
}

func TestIngestRemoteKeepsSystemMessages(t *testing.T) {
	thread := NewThread(localActor)
	sys := confirmed("m-7", localActor, "Ticket wurde geschlossen")
	sys.IsSystem = true
	thread.IngestRemote(sys)
	if thread.Len() != 1 {
		t.Fatal("system message dropped")
	}
}
