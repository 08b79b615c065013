package chat

import (
	"context"
	"fmt"
	"sync"

	"github.com/portalchat/internal/logger"
	"github.com/portalchat/internal/model"
)

// Directory holds the current counterpart list for one user. It never patches
// entries in place: every change signal triggers a full re-query, so ordering
// and aggregates always come from the backend in one consistent read.
type Directory struct {
	userID  string
	role    model.Role
	backend DirectoryBackend
	feed    ConversationFeed

	mu       sync.Mutex
	contacts []model.Contact
	known    map[string]struct{} // contact ids seen by the previous refresh
	cancel   context.CancelFunc

	// onChange receives the refreshed list plus the ids that appeared since
	// the previous refresh. Called outside the directory lock.
	onChange func(contacts []model.Contact, newlyAppeared []string)
}

func NewDirectory(backend DirectoryBackend, feed ConversationFeed, userID string, role model.Role, onChange func([]model.Contact, []string)) *Directory {
	if onChange == nil {
		onChange = func([]model.Contact, []string) {}
	}
	return &Directory{
		userID:   userID,
		role:     role,
		backend:  backend,
		feed:     feed,
		onChange: onChange,
	}
}

// Refresh re-queries the full counterpart list and reports which contacts are
// new relative to the previous refresh. The very first refresh reports none:
// there is no baseline to have "appeared" against.
func (d *Directory) Refresh(ctx context.Context) ([]model.Contact, error) {
	contacts, err := d.backend.Counterparts(ctx, d.userID, d.role)
	if err != nil {
		return nil, fmt.Errorf("directory refresh user=%s: %w", d.userID, err)
	}

	d.mu.Lock()
	var newly []string
	if d.known != nil {
		for i := range contacts {
			if _, ok := d.known[contacts[i].ID]; !ok {
				newly = append(newly, contacts[i].ID)
			}
		}
	}
	known := make(map[string]struct{}, len(contacts))
	for i := range contacts {
		known[contacts[i].ID] = struct{}{}
	}
	d.known = known
	d.contacts = contacts
	out := d.contactsLocked()
	d.mu.Unlock()

	d.onChange(out, newly)
	return out, nil
}

// Watch subscribes to the change feed and refreshes on every signal. A failed
// refresh is logged and skipped; the next signal retries naturally.
func (d *Directory) Watch(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)

	changes, err := d.feed.Changes(ctx, d.userID)
	if err != nil {
		cancel()
		return fmt.Errorf("directory watch user=%s: %w", d.userID, err)
	}

	d.mu.Lock()
	d.cancel = cancel
	d.mu.Unlock()

	go func() {
		for range changes {
			if _, err := d.Refresh(ctx); err != nil && ctx.Err() == nil {
				logger.Errorf("directory watch refresh user=%s: %v", d.userID, err)
			}
		}
	}()
	return nil
}

// Contacts returns a copy of the last refreshed list.
func (d *Directory) Contacts() []model.Contact {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.contactsLocked()
}

// Contact looks up one entry by counterpart id.
func (d *Directory) Contact(id string) (model.Contact, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.contacts {
		if d.contacts[i].ID == id {
			return d.contacts[i], true
		}
	}
	return model.Contact{}, false
}

// Close stops the watch subscription. Idempotent.
func (d *Directory) Close() {
	d.mu.Lock()
	cancel := d.cancel
	d.cancel = nil
	d.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (d *Directory) contactsLocked() []model.Contact {
	out := make([]model.Contact, len(d.contacts))
	copy(out, d.contacts)
	return out
}
