package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/portalchat/internal/logger"
	"github.com/portalchat/internal/model"
	"github.com/portalchat/internal/repository"
)

// Sink receives session output. One implementation per transport: the
// websocket client pushes these straight to the browser.
type Sink interface {
	// ContactsChanged delivers the refreshed counterpart list plus the ids
	// that appeared since the previous refresh.
	ContactsChanged(contacts []model.Contact, newlyAppeared []string)
	// ConversationOpened confirms a switch; subsequent MessagesChanged calls
	// belong to this conversation until the next ConversationOpened.
	ConversationOpened(conversationID string)
	// MessagesChanged delivers the full visible window in display order.
	MessagesChanged(conversationID string, messages []model.Message)
	// SendFailed reports a retracted message; restoredDraft holds the input
	// handed back for editing.
	SendFailed(conversationID, restoredDraft, reason string)
	// ConversationNotFound reports a stale or foreign conversation link.
	ConversationNotFound(conversationID string)
}

// SessionDeps are the collaborators one session composes.
type SessionDeps struct {
	Backend       MessageBackend
	Snapshots     SnapshotFeed
	Conversations ConversationBackend
	Directory     DirectoryBackend
	DirectoryFeed ConversationFeed
}

// Session is the per-user controller: it owns the directory, the registry
// and at most one open message store, and routes every outcome to the sink.
// All exported methods are safe for concurrent use.
type Session struct {
	userID string
	role   model.Role
	deps   SessionDeps
	sink   Sink

	directory *Directory
	registry  *Registry

	mu      sync.Mutex
	store   *Store
	drafts  map[string]string // conversation id -> unsent input
	sending map[string]string // conversation id -> content currently in flight
	closed  bool
}

func NewSession(deps SessionDeps, userID string, role model.Role, sink Sink) *Session {
	s := &Session{
		userID:  userID,
		role:    role,
		deps:    deps,
		sink:    sink,
		drafts:  make(map[string]string),
		sending: make(map[string]string),
	}
	s.directory = NewDirectory(deps.Directory, deps.DirectoryFeed, userID, role, sink.ContactsChanged)
	s.registry = NewRegistry(deps.Conversations)
	return s
}

// Start subscribes to directory changes and performs the initial load. The
// subscription comes first: a change landing between the two would otherwise
// stay invisible until the next signal.
func (s *Session) Start(ctx context.Context) error {
	if err := s.directory.Watch(ctx); err != nil {
		return fmt.Errorf("session start user=%s: %w", s.userID, err)
	}
	if _, err := s.directory.Refresh(ctx); err != nil {
		return fmt.Errorf("session start user=%s: %w", s.userID, err)
	}
	return nil
}

// OpenContact resolves the contact's conversation (creating it on first
// contact) and opens it.
func (s *Session) OpenContact(ctx context.Context, contactID string) error {
	c, ok := s.directory.Contact(contactID)
	if !ok {
		return fmt.Errorf("session open contact %s: %w", contactID, repository.ErrNotFound)
	}
	convID, err := s.registry.ResolveContact(ctx, s.userID, s.role, c)
	if err != nil {
		return err
	}
	return s.OpenConversation(ctx, convID)
}

// OpenConversation switches the session to the given conversation. The
// previous store is torn down first so its late snapshots cannot leak into
// the new thread. Unknown ids and conversations the user is not part of are
// both reported as not found.
func (s *Session) OpenConversation(ctx context.Context, conversationID string) error {
	conv, err := s.deps.Backend.GetConversation(ctx, conversationID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.sink.ConversationNotFound(conversationID)
			return nil
		}
		return fmt.Errorf("session open conv=%s: %w", conversationID, err)
	}
	if conv.StudentID != s.userID && conv.AdvisorID != s.userID {
		s.sink.ConversationNotFound(conversationID)
		return nil
	}

	store := NewStore(s.deps.Backend, s.deps.Snapshots, conversationID, s.userID, func(msgs []model.Message) {
		s.sink.MessagesChanged(conversationID, msgs)
	})

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	prev := s.store
	s.store = store
	s.mu.Unlock()

	if prev != nil {
		prev.Close()
	}

	if err := store.Open(ctx); err != nil {
		s.mu.Lock()
		if s.store == store {
			s.store = nil
		}
		s.mu.Unlock()
		return err
	}

	s.sink.ConversationOpened(conversationID)
	return nil
}

// SubmitText validates and sends the composed text. The draft is cleared
// optimistically; on failure it is restored and the sink notified, so the
// user keeps their input without retyping.
func (s *Session) SubmitText(ctx context.Context, text string) error {
	content := trimMessage(text)
	if content == "" {
		return ErrEmptyMessage
	}

	s.mu.Lock()
	store := s.store
	if store == nil {
		s.mu.Unlock()
		return ErrNoConversation
	}
	convID := store.ConversationID()
	if s.sending[convID] == content {
		s.mu.Unlock()
		return ErrSendInFlight
	}
	s.sending[convID] = content
	delete(s.drafts, convID)
	s.mu.Unlock()

	err := store.Send(ctx, model.ContentTypeText, content, nil)

	s.mu.Lock()
	if s.sending[convID] == content {
		delete(s.sending, convID)
	}
	if err != nil && s.drafts[convID] == "" {
		s.drafts[convID] = content
	}
	s.mu.Unlock()

	if err != nil {
		logger.Errorf("session send user=%s conv=%s: %v", s.userID, convID, err)
		s.sink.SendFailed(convID, content, "message could not be sent")
		return err
	}
	return nil
}

// SubmitAttachment sends an already-uploaded attachment as a message of the
// given variant. Content carries the display name so text-only surfaces have
// something to show.
func (s *Session) SubmitAttachment(ctx context.Context, att *model.Attachment, kind model.ContentType) error {
	if att == nil || att.URL == "" {
		return ErrEmptyMessage
	}

	s.mu.Lock()
	store := s.store
	s.mu.Unlock()
	if store == nil {
		return ErrNoConversation
	}
	convID := store.ConversationID()

	if err := store.Send(ctx, kind, att.Name, att); err != nil {
		logger.Errorf("session send attachment user=%s conv=%s: %v", s.userID, convID, err)
		s.sink.SendFailed(convID, "", "attachment could not be sent")
		return err
	}
	return nil
}

// MarkRead acknowledges one message in the open conversation. Best-effort,
// like every receipt.
func (s *Session) MarkRead(ctx context.Context, messageID string) {
	s.mu.Lock()
	store := s.store
	s.mu.Unlock()
	if store == nil || messageID == "" {
		return
	}
	store.MarkRead(ctx, messageID)
}

// SetDraft stores the unsent input of the currently open conversation.
func (s *Session) SetDraft(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.store == nil {
		return
	}
	convID := s.store.ConversationID()
	if text == "" {
		delete(s.drafts, convID)
		return
	}
	s.drafts[convID] = text
}

// Draft returns the saved input of the currently open conversation.
func (s *Session) Draft() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.store == nil {
		return ""
	}
	return s.drafts[s.store.ConversationID()]
}

// Contacts returns the latest directory state.
func (s *Session) Contacts() []model.Contact {
	return s.directory.Contacts()
}

// Messages returns the visible window of the open conversation, or nil.
func (s *Session) Messages() []model.Message {
	s.mu.Lock()
	store := s.store
	s.mu.Unlock()
	if store == nil {
		return nil
	}
	return store.Messages()
}

// ConversationID returns the open conversation's id, or "".
func (s *Session) ConversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.store == nil {
		return ""
	}
	return s.store.ConversationID()
}

// Close tears down the store and the directory watch. Idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	store := s.store
	s.store = nil
	s.mu.Unlock()

	if store != nil {
		store.Close()
	}
	s.directory.Close()
}
