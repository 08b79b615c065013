package model

import "time"

type Role string

const (
	RoleStudent Role = "student"
	RoleAdvisor Role = "advisor"
)

// Counterpart returns the role a user of this role talks to.
func (r Role) Counterpart() Role {
	if r == RoleStudent {
		return RoleAdvisor
	}
	return RoleStudent
}

// Accent is the role-specific color tag shown next to a contact. The set is
// closed: new accents only exist once added here and to Color().
type Accent string

const (
	AccentNone   Accent = ""
	AccentBlue   Accent = "blue"
	AccentRed    Accent = "red"
	AccentGreen  Accent = "green"
	AccentAmber  Accent = "amber"
	AccentViolet Accent = "violet"
)

// Color maps an accent to its display color. Unknown values get the neutral
// gray rather than crashing the contact list.
func (a Accent) Color() string {
	switch a {
	case AccentBlue:
		return "#2563eb"
	case AccentRed:
		return "#dc2626"
	case AccentGreen:
		return "#16a34a"
	case AccentAmber:
		return "#d97706"
	case AccentViolet:
		return "#7c3aed"
	}
	return "#6b7280"
}

// Contact is a counterpart user as seen by the current user: a projection
// over the eligibility list and the user's conversations, recomputed on every
// directory refresh and never persisted on its own.
type Contact struct {
	ID                 string     `json:"id"`
	DisplayName        string     `json:"display_name"`
	Email              string     `json:"email"`
	AvatarURL          string     `json:"avatar_url,omitempty"`
	Accent             Accent     `json:"accent,omitempty"`
	ConversationID     string     `json:"conversation_id,omitempty"`
	LastMessagePreview string     `json:"last_message_preview,omitempty"`
	LastMessageAt      *time.Time `json:"last_message_at,omitempty"`
	UnreadCount        int        `json:"unread_count"`
}
