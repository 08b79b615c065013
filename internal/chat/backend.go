// Package chat is the client-facing messaging core: per-conversation message
// store, contact directory, conversation registry and the session controller
// that composes them. It only talks to collaborators through the interfaces
// below; the concrete Postgres/Redis/MinIO wiring lives elsewhere.
package chat

import (
	"context"
	"errors"

	"github.com/portalchat/internal/model"
)

// WindowSize is the bounded recent-history view: the newest N messages of a
// conversation. Anything older silently falls out of view once superseded.
const WindowSize = 50

var (
	ErrEmptyMessage   = errors.New("message is empty")
	ErrNoConversation = errors.New("no conversation open")
	ErrSendInFlight   = errors.New("send already in flight for this content")
	ErrClosed         = errors.New("store is closed")
)

// MessageBackend is the persistence collaborator for one conversation's log.
type MessageBackend interface {
	// LatestMessages returns the newest `limit` messages, newest first.
	LatestMessages(ctx context.Context, conversationID string, limit int) ([]model.Message, error)
	// AppendMessage persists a message; the backend assigns CreatedAt and
	// writes it back into m.
	AppendMessage(ctx context.Context, m *model.Message) error
	// MarkRead adds userID to the message's readBy map. Narrow update, no
	// read-modify-write by the caller.
	MarkRead(ctx context.Context, messageID, userID string) error
	// GetConversation resolves a conversation id (repository.ErrNotFound for
	// stale links).
	GetConversation(ctx context.Context, id string) (*model.Conversation, error)
}

// SnapshotFeed re-delivers the complete newest-N window (newest first) every
// time anything in the conversation changes. The channel closes on ctx
// cancellation; a closed subscription never delivers again.
type SnapshotFeed interface {
	Snapshots(ctx context.Context, conversationID string, limit int) (<-chan []model.Message, error)
}

// ConversationBackend is the idempotent create-or-get collaborator: the same
// pair yields the same conversation across concurrent callers.
type ConversationBackend interface {
	// FindByPair returns the pair's conversation without creating one
	// (repository.ErrNotFound when the pair never talked).
	FindByPair(ctx context.Context, studentID, advisorID string) (*model.Conversation, error)
	CreateOrGet(ctx context.Context, studentID, advisorID string) (*model.Conversation, error)
}

// DirectoryBackend computes the eligible counterpart list for a user,
// enriched with conversation id, last-message preview and unread count,
// already ordered (lastMessageAt descending, conversation-less contacts
// appended).
type DirectoryBackend interface {
	Counterparts(ctx context.Context, userID string, role model.Role) ([]model.Contact, error)
}

// ConversationFeed signals whenever any conversation involving userID
// changes; the directory reacts by re-querying, never by patching.
type ConversationFeed interface {
	Changes(ctx context.Context, userID string) (<-chan struct{}, error)
}
