package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/portalchat/internal/logger"
	"github.com/portalchat/internal/model"
)

// DirectoryRepository answers the role-scoped eligibility question ("which
// counterparts may this user talk to") enriched with conversation state. The
// assignment table is maintained by the rest of the portal; this subsystem
// only reads it.
type DirectoryRepository struct {
	pool *pgxpool.Pool
}

func NewDirectoryRepository(pool *pgxpool.Pool) *DirectoryRepository {
	return &DirectoryRepository{pool: pool}
}

// Counterparts returns the eligible contacts for userID. Contacts with a
// conversation come first, ordered by last_message_at descending; contacts
// without one follow, alphabetically. Callers must not re-sort.
func (r *DirectoryRepository) Counterparts(ctx context.Context, userID string, role model.Role) ([]model.Contact, error) {
	defer logger.DeferLogDuration("dir.Counterparts", time.Now())()

	// Same query shape for both roles, with the assignment edge flipped.
	self, other := "student_id", "advisor_id"
	if role == model.RoleAdvisor {
		self, other = "advisor_id", "student_id"
	}
	sql := fmt.Sprintf(
		`SELECT u.id, u.display_name, u.email, u.avatar_url, u.accent,
		        COALESCE(c.id::text, ''), c.last_message_at,
		        COALESCE(lm.content, ''), COALESCE(un.cnt, 0)
		 FROM advisor_assignments aa
		 JOIN users u ON u.id = aa.%[2]s
		 LEFT JOIN conversations c ON c.%[1]s = aa.%[1]s AND c.%[2]s = aa.%[2]s
		 LEFT JOIN LATERAL (
		     SELECT content FROM messages
		     WHERE conversation_id = c.id
		     ORDER BY created_at DESC, id DESC
		     LIMIT 1
		 ) lm ON c.id IS NOT NULL
		 LEFT JOIN LATERAL (
		     SELECT COUNT(*) AS cnt FROM messages m
		     WHERE m.conversation_id = c.id AND m.sender_id = u.id AND NOT (m.read_by ? $1)
		 ) un ON c.id IS NOT NULL
		 WHERE aa.%[1]s = $1
		 ORDER BY c.last_message_at DESC NULLS LAST, u.display_name`,
		self, other)

	rows, err := r.pool.Query(ctx, sql, userID)
	if err != nil {
		return nil, fmt.Errorf("dirRepo.Counterparts query: %w", err)
	}
	defer rows.Close()

	contacts := make([]model.Contact, 0, 16)
	for rows.Next() {
		var ct model.Contact
		var lastAt *time.Time
		var preview string
		if err := rows.Scan(&ct.ID, &ct.DisplayName, &ct.Email, &ct.AvatarURL, &ct.Accent,
			&ct.ConversationID, &lastAt, &preview, &ct.UnreadCount); err != nil {
			return nil, fmt.Errorf("dirRepo.Counterparts scan: %w", err)
		}
		ct.LastMessageAt = lastAt
		ct.LastMessagePreview = truncatePreview(preview)
		contacts = append(contacts, ct)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("dirRepo.Counterparts rows: %w", err)
	}
	return contacts, nil
}

// GetUser loads one portal account.
func (r *DirectoryRepository) GetUser(ctx context.Context, id string) (*model.User, error) {
	defer logger.DeferLogDuration("dir.GetUser", time.Now())()
	u := &model.User{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, display_name, email, avatar_url, role, accent, created_at
		 FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.DisplayName, &u.Email, &u.AvatarURL, &u.Role, &u.Accent, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("dirRepo.GetUser: %w", err)
	}
	return u, nil
}

// IsEligible reports whether the pair has an active assignment, i.e. whether
// the two users are allowed to share a conversation.
func (r *DirectoryRepository) IsEligible(ctx context.Context, studentID, advisorID string) (bool, error) {
	defer logger.DeferLogDuration("dir.IsEligible", time.Now())()
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM advisor_assignments WHERE student_id = $1 AND advisor_id = $2)`,
		studentID, advisorID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("dirRepo.IsEligible: %w", err)
	}
	return exists, nil
}

const previewRunes = 80

func truncatePreview(s string) string {
	runes := []rune(s)
	if len(runes) <= previewRunes {
		return s
	}
	return string(runes[:previewRunes-1]) + "…"
}
