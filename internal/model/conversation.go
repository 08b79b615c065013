package model

import "time"

// Conversation is the single durable thread between one student and one
// advisor. At most one exists per pair; creation is idempotent (the database
// enforces pair uniqueness, so concurrent creators converge on one id).
type Conversation struct {
	ID            string    `json:"id"`
	StudentID     string    `json:"student_id"`
	AdvisorID     string    `json:"advisor_id"`
	CreatedAt     time.Time `json:"created_at"`
	LastMessageAt time.Time `json:"last_message_at"`
}

// Counterpart returns the participant that is not userID.
func (c *Conversation) Counterpart(userID string) string {
	if c.StudentID == userID {
		return c.AdvisorID
	}
	return c.StudentID
}
