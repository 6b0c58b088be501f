package domain

import (
	"strings"
	"time"
)

// ChatMessage captures one entry in a ticket's conversation thread.
//
// A message created optimistically on the client carries a locally generated
// TempID and IsTemp=true until the durable store confirms it, at which point
// ID is the server-assigned identity and TempID is retained only so the
// confirmed entry can be matched back to its optimistic placeholder.
type ChatMessage struct {
	ID          string
	TempID      string
	TicketID    string
	SenderID    string
	SenderRole  Role
	Body        string
	Attachments []Attachment
	IsSystem    bool
	IsTemp      bool
	CreatedAt   time.Time
}

// Attachment references an uploaded file by URL.
type Attachment struct {
	URL      string `json:"url"`
	MimeType string `json:"mime_type"`
}

// HasContent reports whether the message carries text or at least one
// attachment. User-authored messages must satisfy exactly this predicate;
// system messages always carry synthesized text and no attachments.
func (m ChatMessage) HasContent() bool {
	return strings.TrimSpace(m.Body) != "" || len(m.Attachments) > 0
}
