package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/portalchat/internal/logger"
	"github.com/portalchat/internal/model"
)

type MessageRepository struct {
	pool *pgxpool.Pool
}

func NewMessageRepository(pool *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{pool: pool}
}

// Append persists a message. created_at is assigned by the database and
// written back into m, so callers see the authoritative timestamp.
func (r *MessageRepository) Append(ctx context.Context, m *model.Message) error {
	defer logger.DeferLogDuration("msg.Append", time.Now())()
	var url, name string
	var size int64
	if m.Attachment != nil {
		url, name, size = m.Attachment.URL, m.Attachment.Name, m.Attachment.SizeBytes
	}
	err := r.pool.QueryRow(ctx,
		`INSERT INTO messages (id, conversation_id, sender_id, content_type, content,
		                       attachment_url, attachment_name, attachment_size, read_by, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, '{}'::jsonb, now())
		 RETURNING created_at`,
		m.ID, m.ConversationID, m.SenderID, m.ContentType, m.Content, url, name, size,
	).Scan(&m.CreatedAt)
	if err != nil {
		return fmt.Errorf("msgRepo.Append: %w", err)
	}
	return nil
}

// Latest returns the newest `limit` messages of a conversation, newest first.
func (r *MessageRepository) Latest(ctx context.Context, conversationID string, limit int) ([]model.Message, error) {
	defer logger.DeferLogDuration("msg.Latest", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT id, conversation_id, sender_id, content_type, content,
		        attachment_url, attachment_name, attachment_size, read_by, created_at
		 FROM messages
		 WHERE conversation_id = $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT $2`, conversationID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("msgRepo.Latest query: %w", err)
	}
	defer rows.Close()

	messages := make([]model.Message, 0, limit)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("msgRepo.Latest scan: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("msgRepo.Latest rows: %w", err)
	}
	return messages, nil
}

func (r *MessageRepository) GetByID(ctx context.Context, id string) (*model.Message, error) {
	defer logger.DeferLogDuration("msg.GetByID", time.Now())()
	row := r.pool.QueryRow(ctx,
		`SELECT id, conversation_id, sender_id, content_type, content,
		        attachment_url, attachment_name, attachment_size, read_by, created_at
		 FROM messages WHERE id = $1`, id,
	)
	m, err := scanMessage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("msgRepo.GetByID: %w", err)
	}
	return &m, nil
}

// AddReadBy adds userID to a message's read_by map in a single narrow update.
// The map only grows: an existing entry is never overwritten or removed. It
// returns the message's conversation id and whether the row actually changed,
// so the caller knows whether a change signal is warranted.
func (r *MessageRepository) AddReadBy(ctx context.Context, messageID, userID string) (string, bool, error) {
	defer logger.DeferLogDuration("msg.AddReadBy", time.Now())()
	var conversationID string
	err := r.pool.QueryRow(ctx,
		`UPDATE messages
		 SET read_by = read_by || jsonb_build_object($2::text, to_jsonb(now()))
		 WHERE id = $1 AND NOT (read_by ? $2)
		 RETURNING conversation_id`,
		messageID, userID,
	).Scan(&conversationID)
	if errors.Is(err, pgx.ErrNoRows) {
		// Already read, or the message does not exist. Either way no change.
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("msgRepo.AddReadBy: %w", err)
	}
	return conversationID, true, nil
}

// UnreadCount counts messages in the conversation sent by someone else and
// not yet acknowledged by userID.
func (r *MessageRepository) UnreadCount(ctx context.Context, conversationID, userID string) (int, error) {
	defer logger.DeferLogDuration("msg.UnreadCount", time.Now())()
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM messages
		 WHERE conversation_id = $1 AND sender_id != $2 AND NOT (read_by ? $2)`,
		conversationID, userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("msgRepo.UnreadCount: %w", err)
	}
	return count, nil
}

func scanMessage(row pgx.Row) (model.Message, error) {
	var m model.Message
	var url, name string
	var size int64
	var readBy []byte
	err := row.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.ContentType, &m.Content,
		&url, &name, &size, &readBy, &m.CreatedAt)
	if err != nil {
		return m, err
	}
	if url != "" || name != "" {
		m.Attachment = &model.Attachment{URL: url, Name: name, SizeBytes: size}
	}
	if len(readBy) > 0 {
		if err := json.Unmarshal(readBy, &m.ReadBy); err != nil {
			return m, fmt.Errorf("read_by unmarshal: %w", err)
		}
	}
	return m, nil
}
