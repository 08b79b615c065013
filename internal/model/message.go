package model

import "time"

type ContentType string

const (
	ContentTypeText  ContentType = "text"
	ContentTypeImage ContentType = "image"
	ContentTypeFile  ContentType = "file"
)

// Attachment is the reference produced by the attachment pipeline and carried
// by image/file messages. URL points at the object store.
type Attachment struct {
	URL       string `json:"url"`
	Name      string `json:"name"`
	SizeBytes int64  `json:"size_bytes"`
}

// Message is an immutable entry in a conversation's append-only log.
// CreatedAt is assigned once by the persistence layer; the only mutation a
// message ever sees is a new entry in ReadBy (which never shrinks).
type Message struct {
	ID             string               `json:"id"`
	ConversationID string               `json:"conversation_id"`
	SenderID       string               `json:"sender_id"`
	ContentType    ContentType          `json:"content_type"`
	Content        string               `json:"content"`
	Attachment     *Attachment          `json:"attachment,omitempty"`
	ReadBy         map[string]time.Time `json:"read_by,omitempty"`
	CreatedAt      time.Time            `json:"created_at"`
}

// ReadByUser reports whether the given user has acknowledged the message.
func (m *Message) ReadByUser(userID string) bool {
	_, ok := m.ReadBy[userID]
	return ok
}

// ReadByOther reports whether anyone besides the given user has acknowledged
// the message. Drives the read indicator on the sender's own bubbles.
func (m *Message) ReadByOther(userID string) bool {
	for uid := range m.ReadBy {
		if uid != userID {
			return true
		}
	}
	return false
}

// LessMessage is the total display order: CreatedAt ascending, ID as the
// tie-break for exact timestamp collisions.
func LessMessage(a, b *Message) bool {
	if a.CreatedAt.Equal(b.CreatedAt) {
		return a.ID < b.ID
	}
	return a.CreatedAt.Before(b.CreatedAt)
}
