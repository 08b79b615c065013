package model

import "time"

// User is a portal account row. Identity and authentication live in the
// surrounding portal; this subsystem only reads users to build contacts.
type User struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	Email       string    `json:"email"`
	AvatarURL   string    `json:"avatar_url"`
	Role        Role      `json:"role"`
	Accent      Accent    `json:"accent"`
	CreatedAt   time.Time `json:"created_at"`
}
