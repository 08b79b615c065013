package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/portalchat/internal/model"
	"github.com/portalchat/internal/repository"
)

// Registry resolves a (student, advisor) pair to its single conversation.
// The backend guarantees idempotency across processes; the registry adds
// single-flight collapsing so concurrent local opens of the same contact
// share one backend call instead of racing.
type Registry struct {
	backend ConversationBackend

	mu       sync.Mutex
	inflight map[string]*resolveCall
}

type resolveCall struct {
	done chan struct{}
	conv *model.Conversation
	err  error
}

func NewRegistry(backend ConversationBackend) *Registry {
	return &Registry{
		backend:  backend,
		inflight: make(map[string]*resolveCall),
	}
}

// Resolve returns the pair's conversation, creating it on first contact.
// An existing pair resolves with a plain lookup; only a genuinely new pair
// pays the create. Concurrent callers for the same pair wait on one shared
// backend call.
func (r *Registry) Resolve(ctx context.Context, studentID, advisorID string) (*model.Conversation, error) {
	key := studentID + "/" + advisorID

	r.mu.Lock()
	if call, ok := r.inflight[key]; ok {
		r.mu.Unlock()
		select {
		case <-call.done:
			return call.conv, call.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	call := &resolveCall{done: make(chan struct{})}
	r.inflight[key] = call
	r.mu.Unlock()

	conv, err := r.backend.FindByPair(ctx, studentID, advisorID)
	if errors.Is(err, repository.ErrNotFound) {
		conv, err = r.backend.CreateOrGet(ctx, studentID, advisorID)
	}
	if err != nil {
		err = fmt.Errorf("registry resolve %s: %w", key, err)
	}

	call.conv, call.err = conv, err
	r.mu.Lock()
	delete(r.inflight, key)
	r.mu.Unlock()
	close(call.done)

	return conv, err
}

// ResolveContact resolves via a directory entry, skipping the backend round
// trip when the entry already carries a conversation id.
func (r *Registry) ResolveContact(ctx context.Context, userID string, role model.Role, c model.Contact) (string, error) {
	if c.ConversationID != "" {
		return c.ConversationID, nil
	}
	studentID, advisorID := userID, c.ID
	if role == model.RoleAdvisor {
		studentID, advisorID = c.ID, userID
	}
	conv, err := r.Resolve(ctx, studentID, advisorID)
	if err != nil {
		return "", err
	}
	return conv.ID, nil
}
