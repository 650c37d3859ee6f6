package docstore

import "time"

// Status is the client-local delivery state of a message. It is never
// persisted: the store only knows whether a document exists.
type Status string

const (
	StatusSending Status = "sending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

// AttachmentKind is the closed set of supported attachment payloads.
type AttachmentKind string

const (
	AttachmentImage AttachmentKind = "image"
	AttachmentFile  AttachmentKind = "file"
)

// Attachment is a reference to an uploaded file carried by a message.
type Attachment struct {
	URL  string         `bson:"url"`
	Name string         `bson:"name,omitempty"`
	Kind AttachmentKind `bson:"kind,omitempty"`
}

// Conversation is a two-or-more-party message thread.
// The typing map holds "typing since" timestamps per user id; readers
// must treat entries older than the typing TTL as stale.
type Conversation struct {
	ID           string               `bson:"_id,omitempty"`
	Participants []string             `bson:"participants"`
	Title        string               `bson:"title,omitempty"`
	LastMessage  string               `bson:"lastMessage,omitempty"`
	LastUpdated  time.Time            `bson:"lastUpdated,omitempty"`
	Typing       map[string]time.Time `bson:"typing,omitempty"`
}

// Message is a single conversation entry. ID is store-assigned once
// persisted and empty while an optimistic copy is pending. ClientID is
// always present and correlates a pending copy with its persisted form.
type Message struct {
	ID             string       `bson:"_id,omitempty"`
	ConversationID string       `bson:"conversationId"`
	SenderID       string       `bson:"senderId"`
	ClientID       string       `bson:"clientId"`
	Text           string       `bson:"text,omitempty"`
	Attachments    []Attachment `bson:"attachments,omitempty"`
	CreatedAt      time.Time    `bson:"createdAt"`
	ReadBy         []string     `bson:"readBy"`
	ReadAt         time.Time    `bson:"readAt,omitempty"`
	Urgent         bool         `bson:"urgent,omitempty"`

	// Client-local view only.
	Status Status `bson:"-"`
}

// ReadByContains reports whether userID has acknowledged the message.
func (m *Message) ReadByContains(userID string) bool {
	for _, id := range m.ReadBy {
		if id == userID {
			return true
		}
	}
	return false
}

// Preview returns the denormalized conversation preview for the message.
func (m *Message) Preview() string {
	if m.Text != "" {
		return m.Text
	}
	if len(m.Attachments) > 0 {
		return "[attachment]"
	}
	return ""
}

// Presence is the coarse per-user online flag, set on app
// foreground/background transitions.
type Presence struct {
	UserID     string    `bson:"_id"`
	Online     bool      `bson:"online"`
	LastActive time.Time `bson:"lastActive"`
}
