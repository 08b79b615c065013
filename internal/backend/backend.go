// Package backend composes the repositories, the change feed and push
// notifications into the collaborator surface the chat core consumes. Every
// write here follows the same shape: persist, then signal the feed so live
// subscribers re-query.
package backend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/portalchat/internal/feed"
	"github.com/portalchat/internal/logger"
	"github.com/portalchat/internal/model"
	"github.com/portalchat/internal/repository"
)

// ErrNotEligible rejects conversation creation between users without an
// active advising assignment.
var ErrNotEligible = errors.New("users are not assigned to each other")

// Notifier delivers out-of-band notifications to a user's devices.
// Best-effort by contract.
type Notifier interface {
	Notify(ctx context.Context, userID, title, body string)
}

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, string, string, string) {}

type conversationStore interface {
	CreateOrGet(ctx context.Context, studentID, advisorID string) (*model.Conversation, error)
	GetByID(ctx context.Context, id string) (*model.Conversation, error)
	FindByPair(ctx context.Context, studentID, advisorID string) (*model.Conversation, error)
	TouchLastMessage(ctx context.Context, id string, t time.Time) error
}

type messageStore interface {
	Append(ctx context.Context, m *model.Message) error
	Latest(ctx context.Context, conversationID string, limit int) ([]model.Message, error)
	GetByID(ctx context.Context, id string) (*model.Message, error)
	AddReadBy(ctx context.Context, messageID, userID string) (string, bool, error)
}

type directoryStore interface {
	Counterparts(ctx context.Context, userID string, role model.Role) ([]model.Contact, error)
	IsEligible(ctx context.Context, studentID, advisorID string) (bool, error)
}

type changeFeed interface {
	ConversationChanged(ctx context.Context, conversationID string, participantIDs ...string)
}

type Backend struct {
	conversations conversationStore
	messages      messageStore
	directory     directoryStore
	feed          changeFeed
	notifier      Notifier
}

func New(
	conversations *repository.ConversationRepository,
	messages *repository.MessageRepository,
	directory *repository.DirectoryRepository,
	pub *feed.Publisher,
	notifier Notifier,
) *Backend {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &Backend{
		conversations: conversations,
		messages:      messages,
		directory:     directory,
		feed:          pub,
		notifier:      notifier,
	}
}

// LatestMessages returns the newest `limit` messages, newest first.
func (b *Backend) LatestMessages(ctx context.Context, conversationID string, limit int) ([]model.Message, error) {
	return b.messages.Latest(ctx, conversationID, limit)
}

// AppendMessage persists the message, bumps the conversation's activity
// timestamp and signals both participants. The counterpart additionally gets
// a push notification; its failure never fails the send.
func (b *Backend) AppendMessage(ctx context.Context, m *model.Message) error {
	conv, err := b.conversations.GetByID(ctx, m.ConversationID)
	if err != nil {
		return fmt.Errorf("backend append conv=%s: %w", m.ConversationID, err)
	}
	if m.SenderID != conv.StudentID && m.SenderID != conv.AdvisorID {
		return repository.ErrNotFound
	}

	if err := b.messages.Append(ctx, m); err != nil {
		return fmt.Errorf("backend append conv=%s: %w", m.ConversationID, err)
	}
	if err := b.conversations.TouchLastMessage(ctx, conv.ID, m.CreatedAt); err != nil {
		// Ordering in the directory self-heals on the next message.
		logger.Errorf("backend touch conv=%s: %v", conv.ID, err)
	}

	b.feed.ConversationChanged(ctx, conv.ID, conv.StudentID, conv.AdvisorID)

	counterpart := conv.Counterpart(m.SenderID)
	go b.notifier.Notify(context.WithoutCancel(ctx), counterpart, "New message", notificationBody(m))
	return nil
}

// MarkRead records a read receipt and, if the row changed, signals the
// conversation so the sender's read indicator updates live. Only the
// counterpart of a message may acknowledge it; receipts are best-effort, so
// an own, unknown or foreign message is a silent no-op.
func (b *Backend) MarkRead(ctx context.Context, messageID, userID string) error {
	m, err := b.messages.GetByID(ctx, messageID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("backend mark read msg=%s: %w", messageID, err)
	}
	if m.SenderID == userID {
		return nil
	}
	conv, err := b.conversations.GetByID(ctx, m.ConversationID)
	if err != nil {
		return fmt.Errorf("backend mark read msg=%s: %w", messageID, err)
	}
	if userID != conv.StudentID && userID != conv.AdvisorID {
		return nil
	}

	_, updated, err := b.messages.AddReadBy(ctx, messageID, userID)
	if err != nil {
		return fmt.Errorf("backend mark read msg=%s: %w", messageID, err)
	}
	if updated {
		b.feed.ConversationChanged(ctx, conv.ID, conv.StudentID, conv.AdvisorID)
	}
	return nil
}

// GetConversation resolves a conversation id.
func (b *Backend) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	return b.conversations.GetByID(ctx, id)
}

// FindByPair returns the pair's conversation without creating one
// (repository.ErrNotFound when the pair never talked).
func (b *Backend) FindByPair(ctx context.Context, studentID, advisorID string) (*model.Conversation, error) {
	return b.conversations.FindByPair(ctx, studentID, advisorID)
}

// CreateOrGet returns the pair's single conversation, creating it on first
// contact. Eligibility is checked against the assignment table; a fresh
// conversation signals both user channels so the counterpart's directory
// picks it up without a refresh.
func (b *Backend) CreateOrGet(ctx context.Context, studentID, advisorID string) (*model.Conversation, error) {
	eligible, err := b.directory.IsEligible(ctx, studentID, advisorID)
	if err != nil {
		return nil, fmt.Errorf("backend create-or-get: %w", err)
	}
	if !eligible {
		return nil, ErrNotEligible
	}

	conv, err := b.conversations.CreateOrGet(ctx, studentID, advisorID)
	if err != nil {
		return nil, fmt.Errorf("backend create-or-get: %w", err)
	}
	if conv.CreatedAt.Equal(conv.LastMessageAt) {
		b.feed.ConversationChanged(ctx, conv.ID, conv.StudentID, conv.AdvisorID)
	}
	return conv, nil
}

// Counterparts returns the enriched contact list for userID.
func (b *Backend) Counterparts(ctx context.Context, userID string, role model.Role) ([]model.Contact, error) {
	return b.directory.Counterparts(ctx, userID, role)
}

const notifyBodyRunes = 120

func notificationBody(m *model.Message) string {
	switch m.ContentType {
	case model.ContentTypeImage:
		return "Sent you an image"
	case model.ContentTypeFile:
		return "Sent you a file"
	default:
		runes := []rune(m.Content)
		if len(runes) <= notifyBodyRunes {
			return m.Content
		}
		return string(runes[:notifyBodyRunes-1]) + "…"
	}
}
