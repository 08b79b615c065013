package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/portalchat/internal/model"
)

type sinkMessages struct {
	conversationID string
	messages       []model.Message
}

type sinkFailure struct {
	conversationID string
	restoredDraft  string
}

type recordSink struct {
	contacts chan dirUpdate
	opened   chan string
	messages chan sinkMessages
	failed   chan sinkFailure
	notFound chan string
}

func newRecordSink() *recordSink {
	return &recordSink{
		contacts: make(chan dirUpdate, 16),
		opened:   make(chan string, 16),
		messages: make(chan sinkMessages, 32),
		failed:   make(chan sinkFailure, 16),
		notFound: make(chan string, 16),
	}
}

func (s *recordSink) ContactsChanged(contacts []model.Contact, newly []string) {
	s.contacts <- dirUpdate{contacts: contacts, newly: newly}
}

func (s *recordSink) ConversationOpened(conversationID string) {
	s.opened <- conversationID
}

func (s *recordSink) MessagesChanged(conversationID string, messages []model.Message) {
	s.messages <- sinkMessages{conversationID: conversationID, messages: messages}
}

func (s *recordSink) SendFailed(conversationID, restoredDraft, reason string) {
	s.failed <- sinkFailure{conversationID: conversationID, restoredDraft: restoredDraft}
}

func (s *recordSink) ConversationNotFound(conversationID string) {
	s.notFound <- conversationID
}

func recv[T any](t *testing.T, ch chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
		var zero T
		return zero
	}
}

func sessionFixture(be *fakeBackend, feed *fakeFeed) (*Session, *recordSink) {
	sink := newRecordSink()
	deps := SessionDeps{
		Backend:       be,
		Snapshots:     feed,
		Conversations: newFakeConvBackend(),
		Directory:     &fakeDirectoryBackend{lists: [][]model.Contact{{}}},
		DirectoryFeed: &fakeUserFeed{ch: make(chan struct{}, 1)},
	}
	return NewSession(deps, "alice", model.RoleStudent, sink), sink
}

func seedConversation(be *fakeBackend, id, studentID, advisorID string) {
	if be.convs == nil {
		be.convs = make(map[string]*model.Conversation)
	}
	be.convs[id] = &model.Conversation{
		ID:        id,
		StudentID: studentID,
		AdvisorID: advisorID,
		CreatedAt: time.Now().UTC(),
	}
}

func TestSessionSubmitTextWithoutConversation(t *testing.T) {
	s, _ := sessionFixture(&fakeBackend{}, newFakeFeed())
	defer s.Close()

	err := s.SubmitText(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrNoConversation)
}

func TestSessionSubmitTextRejectsWhitespace(t *testing.T) {
	be := &fakeBackend{}
	seedConversation(be, "c1", "alice", "bob")
	s, sink := sessionFixture(be, newFakeFeed())
	defer s.Close()

	require.NoError(t, s.OpenConversation(context.Background(), "c1"))
	recv(t, sink.opened, "conversation opened")

	assert.ErrorIs(t, s.SubmitText(context.Background(), ""), ErrEmptyMessage)
	assert.ErrorIs(t, s.SubmitText(context.Background(), "   \n\t"), ErrEmptyMessage)
	assert.Empty(t, be.appended)
}

func TestSessionOpenConversationNotFound(t *testing.T) {
	s, sink := sessionFixture(&fakeBackend{}, newFakeFeed())
	defer s.Close()

	require.NoError(t, s.OpenConversation(context.Background(), "ghost"))
	assert.Equal(t, "ghost", recv(t, sink.notFound, "not-found notice"))
}

func TestSessionOpenForeignConversationNotFound(t *testing.T) {
	be := &fakeBackend{}
	seedConversation(be, "c9", "carol", "dave")
	s, sink := sessionFixture(be, newFakeFeed())
	defer s.Close()

	require.NoError(t, s.OpenConversation(context.Background(), "c9"))
	assert.Equal(t, "c9", recv(t, sink.notFound, "not-found notice"))
}

func TestSessionSendFailureRestoresDraft(t *testing.T) {
	be := &fakeBackend{appendErr: errors.New("db down")}
	seedConversation(be, "c1", "alice", "bob")
	s, sink := sessionFixture(be, newFakeFeed())
	defer s.Close()

	require.NoError(t, s.OpenConversation(context.Background(), "c1"))
	recv(t, sink.opened, "conversation opened")

	err := s.SubmitText(context.Background(), "important question")
	require.Error(t, err)

	failure := recv(t, sink.failed, "send failure")
	assert.Equal(t, "c1", failure.conversationID)
	assert.Equal(t, "important question", failure.restoredDraft)
	assert.Equal(t, "important question", s.Draft())
}

func TestSessionSendSuccessClearsDraft(t *testing.T) {
	be := &fakeBackend{}
	seedConversation(be, "c1", "alice", "bob")
	s, sink := sessionFixture(be, newFakeFeed())
	defer s.Close()

	require.NoError(t, s.OpenConversation(context.Background(), "c1"))
	recv(t, sink.opened, "conversation opened")

	s.SetDraft("hel")
	s.SetDraft("hello")
	require.NoError(t, s.SubmitText(context.Background(), "hello"))
	assert.Empty(t, s.Draft())
	require.Len(t, be.appended, 1)
	assert.Equal(t, "hello", be.appended[0].Content)
}

func TestSessionDuplicateSendInFlight(t *testing.T) {
	be := &fakeBackend{appendGate: make(chan struct{})}
	seedConversation(be, "c1", "alice", "bob")
	s, sink := sessionFixture(be, newFakeFeed())
	defer s.Close()

	require.NoError(t, s.OpenConversation(context.Background(), "c1"))
	recv(t, sink.opened, "conversation opened")

	firstDone := make(chan error, 1)
	go func() {
		firstDone <- s.SubmitText(context.Background(), "hello")
	}()

	// The optimistic echo appears once the first submit is in flight.
	deadline := time.After(2 * time.Second)
	for {
		var u sinkMessages
		select {
		case u = <-sink.messages:
		case <-deadline:
			t.Fatal("timed out waiting for the optimistic echo")
		}
		if len(u.messages) == 1 {
			break
		}
	}

	assert.ErrorIs(t, s.SubmitText(context.Background(), "hello"), ErrSendInFlight)

	close(be.appendGate)
	require.NoError(t, <-firstDone)
}

func TestSessionSwitchTearsDownPreviousStore(t *testing.T) {
	be := &fakeBackend{}
	seedConversation(be, "c1", "alice", "bob")
	seedConversation(be, "c2", "alice", "bob")
	feed := newFakeFeed()
	s, sink := sessionFixture(be, feed)
	defer s.Close()

	require.NoError(t, s.OpenConversation(context.Background(), "c1"))
	assert.Equal(t, "c1", recv(t, sink.opened, "first open"))

	require.NoError(t, s.OpenConversation(context.Background(), "c2"))
	assert.Equal(t, "c2", recv(t, sink.opened, "second open"))

	// Push to both feeds: only the active conversation may reach the sink.
	// Empty windows from the open sequence's initial fetches are skipped.
	feed.channel("c1") <- []model.Message{msg("old", "bob", time.Now().UTC())}
	feed.channel("c2") <- []model.Message{msg("new", "bob", time.Now().UTC())}

	deadline := time.After(2 * time.Second)
	for {
		var update sinkMessages
		select {
		case update = <-sink.messages:
		case <-deadline:
			t.Fatal("timed out waiting for messages of the active conversation")
		}
		if len(update.messages) == 0 {
			// Empty first-paint window from an initial fetch; skip.
			continue
		}
		assert.Equal(t, "c2", update.conversationID, "closed store must not publish")
		assert.Equal(t, []string{"new"}, ids(update.messages))
		return
	}
}

type startOrder struct {
	mu     sync.Mutex
	events []string
}

func (o *startOrder) record(ev string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, ev)
}

func (o *startOrder) snapshot() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]string, len(o.events))
	copy(out, o.events)
	return out
}

type orderedUserFeed struct {
	order *startOrder
	ch    chan struct{}
}

func (f *orderedUserFeed) Changes(ctx context.Context, userID string) (<-chan struct{}, error) {
	f.order.record("subscribe")
	return f.ch, nil
}

type orderedDirectoryBackend struct {
	order *startOrder
}

func (b *orderedDirectoryBackend) Counterparts(ctx context.Context, userID string, role model.Role) ([]model.Contact, error) {
	b.order.record("query")
	return nil, nil
}

func TestSessionStartSubscribesBeforeInitialLoad(t *testing.T) {
	order := &startOrder{}
	deps := SessionDeps{
		Backend:       &fakeBackend{},
		Snapshots:     newFakeFeed(),
		Conversations: newFakeConvBackend(),
		Directory:     &orderedDirectoryBackend{order: order},
		DirectoryFeed: &orderedUserFeed{order: order, ch: make(chan struct{}, 1)},
	}
	s := NewSession(deps, "alice", model.RoleStudent, newRecordSink())
	defer s.Close()

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, []string{"subscribe", "query"}, order.snapshot(),
		"a change landing between subscribe and load must not be lost")
}

func TestSessionOpenContactResolvesAndOpens(t *testing.T) {
	be := &fakeBackend{}
	seedConversation(be, "conv-a1", "alice", "a1")
	convBE := newFakeConvBackend()
	convBE.byPair["alice/a1"] = be.convs["conv-a1"]

	sink := newRecordSink()
	deps := SessionDeps{
		Backend:       be,
		Snapshots:     newFakeFeed(),
		Conversations: convBE,
		Directory: &fakeDirectoryBackend{lists: [][]model.Contact{
			{contact("a1")},
		}},
		DirectoryFeed: &fakeUserFeed{ch: make(chan struct{}, 1)},
	}
	s := NewSession(deps, "alice", model.RoleStudent, sink)
	defer s.Close()

	require.NoError(t, s.Start(context.Background()))
	recv(t, sink.contacts, "initial contact list")

	require.NoError(t, s.OpenContact(context.Background(), "a1"))
	assert.Equal(t, "conv-a1", recv(t, sink.opened, "conversation opened"))
	assert.Equal(t, "conv-a1", s.ConversationID())
}
