package gateway

import (
	"github.com/portalchat/internal/chat"
	"github.com/portalchat/internal/model"
)

type EventType string

// Client -> server events.
const (
	EventOpenContact      EventType = "open_contact"
	EventOpenConversation EventType = "open_conversation"
	EventCompose          EventType = "compose"
	EventSendMessage      EventType = "send_message"
	EventSendAttachment   EventType = "send_attachment"
	EventMarkRead         EventType = "mark_read"
)

// Server -> client events.
const (
	EventContacts             EventType = "contacts"
	EventConversationOpened   EventType = "conversation_opened"
	EventMessages             EventType = "messages"
	EventSendFailed           EventType = "send_failed"
	EventConversationNotFound EventType = "conversation_not_found"
	EventError                EventType = "error"
)

// IncomingEvent is what the browser sends over the socket.
type IncomingEvent struct {
	Type           EventType `json:"type"`
	ContactID      string    `json:"contact_id,omitempty"`
	ConversationID string    `json:"conversation_id,omitempty"`
	Content        string    `json:"content,omitempty"`
	MessageID      string    `json:"message_id,omitempty"`

	// For send_attachment: the reference returned by the upload endpoint.
	AttachmentURL  string `json:"attachment_url,omitempty"`
	AttachmentName string `json:"attachment_name,omitempty"`
	AttachmentSize int64  `json:"attachment_size,omitempty"`
	AttachmentKind string `json:"attachment_kind,omitempty"` // image or file
}

// OutgoingEvent is what the server pushes to the browser.
type OutgoingEvent struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload"`
}

type ContactsPayload struct {
	Contacts []model.Contact `json:"contacts"`
	// ContactRole is the role of every listed counterpart, so the client can
	// label the directory without inspecting entries.
	ContactRole   model.Role `json:"contact_role"`
	NewlyAppeared []string   `json:"newly_appeared,omitempty"`
}

type ConversationOpenedPayload struct {
	ConversationID string `json:"conversation_id"`
	Draft          string `json:"draft,omitempty"`
}

type MessagesPayload struct {
	ConversationID string             `json:"conversation_id"`
	Messages       []chat.MessageView `json:"messages"`
}

type SendFailedPayload struct {
	ConversationID string `json:"conversation_id"`
	RestoredDraft  string `json:"restored_draft,omitempty"`
	Reason         string `json:"reason"`
}

type ConversationNotFoundPayload struct {
	ConversationID string `json:"conversation_id"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}
