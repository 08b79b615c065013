package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/portalchat/internal/logger"
)

// PushSubscription is a browser Web Push subscription for one user.
type PushSubscription struct {
	UserID   string `json:"user_id"`
	Endpoint string `json:"endpoint"`
	P256dh   string `json:"p256dh"`
	Auth     string `json:"auth"`
}

type PushSubRepository struct {
	pool *pgxpool.Pool
}

func NewPushSubRepository(pool *pgxpool.Pool) *PushSubRepository {
	return &PushSubRepository{pool: pool}
}

func (r *PushSubRepository) Save(ctx context.Context, s *PushSubscription) error {
	defer logger.DeferLogDuration("pushSub.Save", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO push_subscriptions (user_id, endpoint, p256dh, auth, created_at)
		 VALUES ($1, $2, $3, $4, now())
		 ON CONFLICT (user_id, endpoint) DO UPDATE SET p256dh = $3, auth = $4`,
		s.UserID, s.Endpoint, s.P256dh, s.Auth,
	)
	if err != nil {
		return fmt.Errorf("pushSubRepo.Save: %w", err)
	}
	return nil
}

func (r *PushSubRepository) Delete(ctx context.Context, userID, endpoint string) error {
	defer logger.DeferLogDuration("pushSub.Delete", time.Now())()
	_, err := r.pool.Exec(ctx,
		`DELETE FROM push_subscriptions WHERE user_id = $1 AND endpoint = $2`,
		userID, endpoint,
	)
	if err != nil {
		return fmt.Errorf("pushSubRepo.Delete: %w", err)
	}
	return nil
}

func (r *PushSubRepository) ListByUser(ctx context.Context, userID string) ([]PushSubscription, error) {
	defer logger.DeferLogDuration("pushSub.ListByUser", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT user_id, endpoint, p256dh, auth FROM push_subscriptions WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("pushSubRepo.ListByUser query: %w", err)
	}
	defer rows.Close()

	subs := make([]PushSubscription, 0, 4)
	for rows.Next() {
		var s PushSubscription
		if err := rows.Scan(&s.UserID, &s.Endpoint, &s.P256dh, &s.Auth); err != nil {
			return nil, fmt.Errorf("pushSubRepo.ListByUser scan: %w", err)
		}
		subs = append(subs, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pushSubRepo.ListByUser rows: %w", err)
	}
	return subs, nil
}
