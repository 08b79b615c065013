package feed

import (
	"context"
	"fmt"

	"github.com/portalchat/internal/logger"
	"github.com/portalchat/internal/model"
)

// MessageSource is the bounded point-in-time read the live query re-runs on
// every change signal. *repository.MessageRepository satisfies it.
type MessageSource interface {
	Latest(ctx context.Context, conversationID string, limit int) ([]model.Message, error)
}

// LiveQuery turns per-conversation change signals into full re-materialized
// snapshots of the newest N messages, newest first. This is the subscription
// primitive the message store consumes: every delivery is a complete window,
// never a delta.
type LiveQuery struct {
	sub    *Subscriber
	source MessageSource
}

func NewLiveQuery(sub *Subscriber, source MessageSource) *LiveQuery {
	return &LiveQuery{sub: sub, source: source}
}

// Snapshots subscribes to the conversation and emits the current newest
// `limit` messages after every change. The channel closes when ctx is
// cancelled. Query failures are logged and skipped; the next signal retries.
func (q *LiveQuery) Snapshots(ctx context.Context, conversationID string, limit int) (<-chan []model.Message, error) {
	signals, err := q.sub.ConversationChanges(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("livequery subscribe conv=%s: %w", conversationID, err)
	}

	out := make(chan []model.Message, 1)
	go func() {
		defer close(out)
		for range signals {
			msgs, err := q.source.Latest(ctx, conversationID, limit)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				logger.Errorf("livequery refresh conv=%s: %v", conversationID, err)
				continue
			}
			select {
			case out <- msgs:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
