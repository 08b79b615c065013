package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/portalchat/internal/logger"
	"github.com/portalchat/internal/model"
)

var ErrNotFound = errors.New("not found")

type ConversationRepository struct {
	pool *pgxpool.Pool
}

func NewConversationRepository(pool *pgxpool.Pool) *ConversationRepository {
	return &ConversationRepository{pool: pool}
}

// CreateOrGet returns the conversation for the pair, creating it if missing.
// The UNIQUE (student_id, advisor_id) constraint makes this idempotent:
// concurrent callers for the same pair all receive the same row.
func (r *ConversationRepository) CreateOrGet(ctx context.Context, studentID, advisorID string) (*model.Conversation, error) {
	defer logger.DeferLogDuration("conv.CreateOrGet", time.Now())()
	c := &model.Conversation{}
	err := r.pool.QueryRow(ctx,
		`INSERT INTO conversations (id, student_id, advisor_id, created_at, last_message_at)
		 VALUES ($1, $2, $3, now(), now())
		 ON CONFLICT (student_id, advisor_id)
		 DO UPDATE SET student_id = EXCLUDED.student_id
		 RETURNING id, student_id, advisor_id, created_at, last_message_at`,
		uuid.New().String(), studentID, advisorID,
	).Scan(&c.ID, &c.StudentID, &c.AdvisorID, &c.CreatedAt, &c.LastMessageAt)
	if err != nil {
		return nil, fmt.Errorf("convRepo.CreateOrGet: %w", err)
	}
	return c, nil
}

func (r *ConversationRepository) GetByID(ctx context.Context, id string) (*model.Conversation, error) {
	defer logger.DeferLogDuration("conv.GetByID", time.Now())()
	c := &model.Conversation{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, student_id, advisor_id, created_at, last_message_at
		 FROM conversations WHERE id = $1`, id,
	).Scan(&c.ID, &c.StudentID, &c.AdvisorID, &c.CreatedAt, &c.LastMessageAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("convRepo.GetByID: %w", err)
	}
	return c, nil
}

// FindByPair returns the conversation for the pair without creating one.
func (r *ConversationRepository) FindByPair(ctx context.Context, studentID, advisorID string) (*model.Conversation, error) {
	defer logger.DeferLogDuration("conv.FindByPair", time.Now())()
	c := &model.Conversation{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, student_id, advisor_id, created_at, last_message_at
		 FROM conversations WHERE student_id = $1 AND advisor_id = $2`,
		studentID, advisorID,
	).Scan(&c.ID, &c.StudentID, &c.AdvisorID, &c.CreatedAt, &c.LastMessageAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("convRepo.FindByPair: %w", err)
	}
	return c, nil
}

// TouchLastMessage bumps last_message_at, which drives directory ordering.
func (r *ConversationRepository) TouchLastMessage(ctx context.Context, id string, t time.Time) error {
	defer logger.DeferLogDuration("conv.TouchLastMessage", time.Now())()
	_, err := r.pool.Exec(ctx,
		`UPDATE conversations SET last_message_at = $1 WHERE id = $2 AND last_message_at < $1`,
		t, id,
	)
	if err != nil {
		return fmt.Errorf("convRepo.TouchLastMessage: %w", err)
	}
	return nil
}
