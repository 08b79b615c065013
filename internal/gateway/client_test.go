package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/portalchat/internal/model"
)

func TestContactsChangedLabelsCounterpartRole(t *testing.T) {
	c := &Client{
		send: make(chan OutgoingEvent, 1),
		done: make(chan struct{}),
		role: model.RoleStudent,
	}

	c.ContactsChanged([]model.Contact{{ID: "a1"}}, []string{"a1"})

	ev := <-c.send
	assert.Equal(t, EventContacts, ev.Type)
	p, ok := ev.Payload.(ContactsPayload)
	require.True(t, ok)
	assert.Equal(t, model.RoleAdvisor, p.ContactRole)
	assert.Equal(t, []string{"a1"}, p.NewlyAppeared)

	a := &Client{
		send: make(chan OutgoingEvent, 1),
		done: make(chan struct{}),
		role: model.RoleAdvisor,
	}
	a.ContactsChanged(nil, nil)
	assert.Equal(t, model.RoleStudent, (<-a.send).Payload.(ContactsPayload).ContactRole)
}
