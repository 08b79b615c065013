package chat

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/portalchat/internal/logger"
	"github.com/portalchat/internal/model"
)

// Store owns the ordered message window of exactly one conversation. It
// merges a bounded initial fetch with a live snapshot subscription: once the
// subscription has delivered, its latest snapshot is authoritative and a
// late-arriving initial fetch must not stomp it — the fetch is only a
// first-paint latency optimization.
//
// Sender-side message lifecycle: composed -> sending (optimistic, visible)
// -> persisted (confirmed by snapshot) or failed (retracted). Reader-side:
// seen on render, then acknowledged best-effort via MarkRead.
type Store struct {
	conversationID string
	userID         string
	backend        MessageBackend
	feed           SnapshotFeed
	limit          int

	mu          sync.Mutex
	window      []model.Message // authoritative entries, chronological
	pending     []model.Message // optimistic echoes not yet seen in a snapshot
	sawSnapshot bool
	acked       map[string]struct{} // message ids we already sent a receipt for
	closed      bool
	cancel      context.CancelFunc

	// onChange receives a sorted copy of the visible window after every
	// mutation. Called outside the store lock.
	onChange func([]model.Message)
}

// NewStore binds a store to one conversation for its whole lifetime; switch
// conversations by closing this store and constructing a new one.
func NewStore(backend MessageBackend, feed SnapshotFeed, conversationID, userID string, onChange func([]model.Message)) *Store {
	if onChange == nil {
		onChange = func([]model.Message) {}
	}
	return &Store{
		conversationID: conversationID,
		userID:         userID,
		backend:        backend,
		feed:           feed,
		limit:          WindowSize,
		acked:          make(map[string]struct{}),
		onChange:       onChange,
	}
}

// Open starts the initial bounded load and the live subscription and returns
// immediately; data arrives asynchronously via onChange.
func (s *Store) Open(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)

	snaps, err := s.feed.Snapshots(ctx, s.conversationID, s.limit)
	if err != nil {
		cancel()
		return fmt.Errorf("store open conv=%s: %w", s.conversationID, err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		cancel()
		return ErrClosed
	}
	s.cancel = cancel
	s.mu.Unlock()

	go func() {
		msgs, err := s.backend.LatestMessages(ctx, s.conversationID, s.limit)
		if err != nil {
			if ctx.Err() == nil {
				logger.Errorf("store initial fetch conv=%s: %v", s.conversationID, err)
			}
			return
		}
		s.applyInitialFetch(msgs)
	}()

	go func() {
		for snap := range snaps {
			s.applySnapshot(ctx, snap)
		}
	}()

	return nil
}

// applyInitialFetch installs the first-paint window unless a subscription
// snapshot already won the race.
func (s *Store) applyInitialFetch(newestFirst []model.Message) {
	s.mu.Lock()
	if s.closed || s.sawSnapshot {
		s.mu.Unlock()
		return
	}
	s.window = chronological(newestFirst)
	s.prunePendingLocked()
	visible := s.visibleLocked()
	s.mu.Unlock()

	s.onChange(visible)
}

// applySnapshot replaces the whole visible window with the delivered
// re-materialization and fires best-effort read receipts for counterpart
// messages not yet acknowledged by this user.
func (s *Store) applySnapshot(ctx context.Context, newestFirst []model.Message) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.sawSnapshot = true
	s.window = chronological(newestFirst)
	s.prunePendingLocked()

	var toAck []string
	for i := range s.window {
		m := &s.window[i]
		if m.SenderID == s.userID || m.ReadByUser(s.userID) {
			continue
		}
		if _, done := s.acked[m.ID]; done {
			continue
		}
		s.acked[m.ID] = struct{}{}
		toAck = append(toAck, m.ID)
	}
	visible := s.visibleLocked()
	s.mu.Unlock()

	// Fire-and-forget: receipt failures are logged, never surfaced, and do
	// not block rendering.
	for _, id := range toAck {
		go s.MarkRead(ctx, id)
	}

	s.onChange(visible)
}

// Send appends an optimistic local echo, persists the message, and retracts
// the echo if persistence fails so the caller can restore the user's input.
func (s *Store) Send(ctx context.Context, contentType model.ContentType, content string, att *model.Attachment) error {
	m := model.Message{
		ID:             uuid.New().String(),
		ConversationID: s.conversationID,
		SenderID:       s.userID,
		ContentType:    contentType,
		Content:        content,
		Attachment:     att,
		CreatedAt:      time.Now().UTC(),
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.pending = append(s.pending, m)
	visible := s.visibleLocked()
	s.mu.Unlock()
	s.onChange(visible)

	if err := s.backend.AppendMessage(ctx, &m); err != nil {
		s.retract(m.ID)
		return fmt.Errorf("store send conv=%s: %w", s.conversationID, err)
	}
	return nil
}

// retract removes a failed optimistic echo from view.
func (s *Store) retract(messageID string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	kept := s.pending[:0]
	for _, p := range s.pending {
		if p.ID != messageID {
			kept = append(kept, p)
		}
	}
	s.pending = kept
	visible := s.visibleLocked()
	s.mu.Unlock()
	s.onChange(visible)
}

// MarkRead acknowledges one message for the current user. Best-effort: the
// error is swallowed after logging, because a lost receipt is not
// user-actionable and does not affect the visible thread.
func (s *Store) MarkRead(ctx context.Context, messageID string) {
	if err := s.backend.MarkRead(ctx, messageID, s.userID); err != nil {
		if ctx.Err() == nil {
			logger.Errorf("store mark read msg=%s user=%s: %v", messageID, s.userID, err)
		}
	}
}

// Messages returns a copy of the current visible window in display order.
func (s *Store) Messages() []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visibleLocked()
}

// ConversationID returns the conversation this store is bound to.
func (s *Store) ConversationID() string {
	return s.conversationID
}

// Close cancels the live subscription. Idempotent; after Close no snapshot,
// fetch result or retraction mutates the store or fires onChange.
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// visibleLocked merges the authoritative window with pending optimistic
// echoes into the total display order.
func (s *Store) visibleLocked() []model.Message {
	out := make([]model.Message, 0, len(s.window)+len(s.pending))
	out = append(out, s.window...)
	out = append(out, s.pending...)
	sort.SliceStable(out, func(i, j int) bool {
		return model.LessMessage(&out[i], &out[j])
	})
	return out
}

// prunePendingLocked drops optimistic echoes that the authoritative window
// now contains, keyed by message id.
func (s *Store) prunePendingLocked() {
	if len(s.pending) == 0 {
		return
	}
	present := make(map[string]struct{}, len(s.window))
	for i := range s.window {
		present[s.window[i].ID] = struct{}{}
	}
	kept := s.pending[:0]
	for _, p := range s.pending {
		if _, ok := present[p.ID]; !ok {
			kept = append(kept, p)
		}
	}
	s.pending = kept
}

// chronological reverses a newest-first slice into display order and
// collapses duplicate ids.
func chronological(newestFirst []model.Message) []model.Message {
	seen := make(map[string]struct{}, len(newestFirst))
	out := make([]model.Message, 0, len(newestFirst))
	for i := len(newestFirst) - 1; i >= 0; i-- {
		m := newestFirst[i]
		if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}
		out = append(out, m)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return model.LessMessage(&out[i], &out[j])
	})
	return out
}
