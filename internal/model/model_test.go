package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAccentColorClosedSet(t *testing.T) {
	for _, a := range []Accent{AccentBlue, AccentRed, AccentGreen, AccentAmber, AccentViolet} {
		assert.NotEqual(t, "#6b7280", a.Color(), "known accent %q must have its own color", a)
	}
	assert.Equal(t, "#6b7280", AccentNone.Color())
	assert.Equal(t, "#6b7280", Accent("magenta").Color(), "unknown accents fall back to neutral")
}

func TestRoleCounterpart(t *testing.T) {
	assert.Equal(t, RoleAdvisor, RoleStudent.Counterpart())
	assert.Equal(t, RoleStudent, RoleAdvisor.Counterpart())
}

func TestLessMessageTotalOrder(t *testing.T) {
	now := time.Now().UTC()
	a := &Message{ID: "a", CreatedAt: now}
	b := &Message{ID: "b", CreatedAt: now}
	later := &Message{ID: "0", CreatedAt: now.Add(time.Millisecond)}

	assert.True(t, LessMessage(a, b), "equal timestamps break the tie by id")
	assert.False(t, LessMessage(b, a))
	assert.True(t, LessMessage(a, later))
	assert.False(t, LessMessage(later, a), "timestamp dominates id")
}

func TestMessageReadBy(t *testing.T) {
	m := &Message{ID: "m", SenderID: "alice", ReadBy: map[string]time.Time{"bob": time.Now()}}
	assert.True(t, m.ReadByUser("bob"))
	assert.False(t, m.ReadByUser("alice"))
	assert.True(t, m.ReadByOther("alice"))
	assert.False(t, m.ReadByOther("bob"))
}
