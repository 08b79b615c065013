package chat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/portalchat/internal/model"
	"github.com/portalchat/internal/repository"
)

type fakeConvBackend struct {
	mu     sync.Mutex
	calls  int
	pairs  [][2]string
	gate   chan struct{} // when non-nil, CreateOrGet blocks until closed
	byPair map[string]*model.Conversation
}

func newFakeConvBackend() *fakeConvBackend {
	return &fakeConvBackend{byPair: make(map[string]*model.Conversation)}
}

func (f *fakeConvBackend) FindByPair(ctx context.Context, studentID, advisorID string) (*model.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.byPair[studentID+"/"+advisorID]; ok {
		return c, nil
	}
	return nil, repository.ErrNotFound
}

func (f *fakeConvBackend) CreateOrGet(ctx context.Context, studentID, advisorID string) (*model.Conversation, error) {
	f.mu.Lock()
	f.calls++
	f.pairs = append(f.pairs, [2]string{studentID, advisorID})
	f.mu.Unlock()

	if f.gate != nil {
		<-f.gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	key := studentID + "/" + advisorID
	if c, ok := f.byPair[key]; ok {
		return c, nil
	}
	c := &model.Conversation{
		ID:        uuid.New().String(),
		StudentID: studentID,
		AdvisorID: advisorID,
		CreatedAt: time.Now().UTC(),
	}
	f.byPair[key] = c
	return c, nil
}

func (f *fakeConvBackend) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestRegistryResolveIdempotent(t *testing.T) {
	be := newFakeConvBackend()
	r := NewRegistry(be)

	first, err := r.Resolve(context.Background(), "s1", "a1")
	require.NoError(t, err)
	second, err := r.Resolve(context.Background(), "s1", "a1")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)

	other, err := r.Resolve(context.Background(), "s2", "a1")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID)
}

func TestRegistryResolveExistingPairSkipsCreate(t *testing.T) {
	be := newFakeConvBackend()
	be.byPair["s1/a1"] = &model.Conversation{
		ID:        "conv-7",
		StudentID: "s1",
		AdvisorID: "a1",
		CreatedAt: time.Now().UTC(),
	}
	r := NewRegistry(be)

	conv, err := r.Resolve(context.Background(), "s1", "a1")
	require.NoError(t, err)
	assert.Equal(t, "conv-7", conv.ID)
	assert.Zero(t, be.callCount(), "an existing pair must resolve without a create")
}

func TestRegistryConcurrentResolveSharesOneCall(t *testing.T) {
	be := newFakeConvBackend()
	be.gate = make(chan struct{})
	r := NewRegistry(be)

	results := make(chan *model.Conversation, 2)
	go func() {
		c, err := r.Resolve(context.Background(), "s1", "a1")
		require.NoError(t, err)
		results <- c
	}()

	// Wait until the first call holds the in-flight slot, then join it.
	require.Eventually(t, func() bool { return be.callCount() == 1 },
		2*time.Second, 10*time.Millisecond)
	go func() {
		c, err := r.Resolve(context.Background(), "s1", "a1")
		require.NoError(t, err)
		results <- c
	}()

	time.Sleep(50 * time.Millisecond)
	close(be.gate)

	first := <-results
	second := <-results
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, be.callCount(), "second caller must join the in-flight resolve")
}

func TestRegistryResolveContactShortcut(t *testing.T) {
	be := newFakeConvBackend()
	r := NewRegistry(be)

	id, err := r.ResolveContact(context.Background(), "s1", model.RoleStudent,
		model.Contact{ID: "a1", ConversationID: "conv-42"})
	require.NoError(t, err)
	assert.Equal(t, "conv-42", id)
	assert.Zero(t, be.callCount())
}

func TestRegistryResolveContactRoleMapping(t *testing.T) {
	be := newFakeConvBackend()
	r := NewRegistry(be)

	// An advisor opening a student contact: the contact is the student side.
	_, err := r.ResolveContact(context.Background(), "adv1", model.RoleAdvisor,
		model.Contact{ID: "stu1"})
	require.NoError(t, err)

	require.Len(t, be.pairs, 1)
	assert.Equal(t, [2]string{"stu1", "adv1"}, be.pairs[0])
}
