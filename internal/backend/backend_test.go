package backend

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/portalchat/internal/model"
	"github.com/portalchat/internal/repository"
)

type fakeMessageStore struct {
	mu       sync.Mutex
	byID     map[string]*model.Message
	readsBy  []string // "messageID:userID" per AddReadBy call
	readDone map[string]bool
}

func newFakeMessageStore() *fakeMessageStore {
	return &fakeMessageStore{byID: make(map[string]*model.Message), readDone: make(map[string]bool)}
}

func (f *fakeMessageStore) Append(ctx context.Context, m *model.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m.CreatedAt = time.Now().UTC()
	f.byID[m.ID] = m
	return nil
}

func (f *fakeMessageStore) Latest(ctx context.Context, conversationID string, limit int) ([]model.Message, error) {
	return nil, nil
}

func (f *fakeMessageStore) GetByID(ctx context.Context, id string) (*model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (f *fakeMessageStore) AddReadBy(ctx context.Context, messageID, userID string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readsBy = append(f.readsBy, messageID+":"+userID)
	m, ok := f.byID[messageID]
	key := messageID + ":" + userID
	if !ok || f.readDone[key] {
		return "", false, nil
	}
	f.readDone[key] = true
	return m.ConversationID, true, nil
}

type fakeConvStore struct {
	byID map[string]*model.Conversation
}

func (f *fakeConvStore) CreateOrGet(ctx context.Context, studentID, advisorID string) (*model.Conversation, error) {
	return nil, repository.ErrNotFound
}

func (f *fakeConvStore) GetByID(ctx context.Context, id string) (*model.Conversation, error) {
	c, ok := f.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (f *fakeConvStore) FindByPair(ctx context.Context, studentID, advisorID string) (*model.Conversation, error) {
	for _, c := range f.byID {
		if c.StudentID == studentID && c.AdvisorID == advisorID {
			cp := *c
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeConvStore) TouchLastMessage(ctx context.Context, id string, t time.Time) error {
	return nil
}

type recordFeed struct {
	mu      sync.Mutex
	signals []string
}

func (f *recordFeed) ConversationChanged(ctx context.Context, conversationID string, participantIDs ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signals = append(f.signals, conversationID)
}

func (f *recordFeed) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.signals)
}

func markReadFixture() (*Backend, *fakeMessageStore, *recordFeed) {
	msgs := newFakeMessageStore()
	msgs.byID["m1"] = &model.Message{
		ID:             "m1",
		ConversationID: "c1",
		SenderID:       "bob",
		ContentType:    model.ContentTypeText,
		Content:        "hi",
	}
	convs := &fakeConvStore{byID: map[string]*model.Conversation{
		"c1": {ID: "c1", StudentID: "alice", AdvisorID: "bob"},
	}}
	fd := &recordFeed{}
	return &Backend{
		conversations: convs,
		messages:      msgs,
		feed:          fd,
		notifier:      noopNotifier{},
	}, msgs, fd
}

func TestMarkReadCounterpartSignalsOnce(t *testing.T) {
	b, msgs, fd := markReadFixture()

	require.NoError(t, b.MarkRead(context.Background(), "m1", "alice"))
	assert.Equal(t, []string{"m1:alice"}, msgs.readsBy)
	assert.Equal(t, 1, fd.count())

	// Re-acknowledging an already read message must not signal again.
	require.NoError(t, b.MarkRead(context.Background(), "m1", "alice"))
	assert.Equal(t, 1, fd.count())
}

func TestMarkReadIgnoresOwnMessage(t *testing.T) {
	b, msgs, fd := markReadFixture()

	require.NoError(t, b.MarkRead(context.Background(), "m1", "bob"))
	assert.Empty(t, msgs.readsBy, "senders must not acknowledge their own messages")
	assert.Zero(t, fd.count())
}

func TestMarkReadIgnoresNonParticipant(t *testing.T) {
	b, msgs, fd := markReadFixture()

	require.NoError(t, b.MarkRead(context.Background(), "m1", "mallory"))
	assert.Empty(t, msgs.readsBy)
	assert.Zero(t, fd.count())
}

func TestMarkReadUnknownMessageIsNoop(t *testing.T) {
	b, msgs, fd := markReadFixture()

	require.NoError(t, b.MarkRead(context.Background(), "ghost", "alice"))
	assert.Empty(t, msgs.readsBy)
	assert.Zero(t, fd.count())
}

func TestNotificationBodyTruncatesOnRuneBoundary(t *testing.T) {
	m := &model.Message{ContentType: model.ContentTypeText, Content: strings.Repeat("ü", 200)}

	body := notificationBody(m)
	assert.True(t, utf8.ValidString(body))
	assert.Equal(t, notifyBodyRunes, utf8.RuneCountInString(body))
	assert.Equal(t, strings.Repeat("ü", notifyBodyRunes-1)+"…", body)

	short := &model.Message{ContentType: model.ContentTypeText, Content: "hello"}
	assert.Equal(t, "hello", notificationBody(short))
}

func TestNotificationBodyAttachmentVariants(t *testing.T) {
	img := &model.Message{ContentType: model.ContentTypeImage, Content: "photo.png"}
	assert.Equal(t, "Sent you an image", notificationBody(img))

	file := &model.Message{ContentType: model.ContentTypeFile, Content: "notes.pdf"}
	assert.Equal(t, "Sent you a file", notificationBody(file))
}
