// Package feed carries "something changed" signals between the persistence
// layer and live subscribers over Redis pub/sub. The signals deliberately
// carry no payload: subscribers re-derive state with a fresh bounded query,
// trading efficiency for correctness simplicity.
package feed

import (
	"context"
	"fmt"

	"github.com/portalchat/internal/logger"
	"github.com/redis/go-redis/v9"
)

const (
	conversationChannelPrefix = "chat:conv:"
	userChannelPrefix         = "chat:user:"
)

// Publisher announces conversation changes.
type Publisher struct {
	cli *redis.Client
}

func NewPublisher(cli *redis.Client) *Publisher {
	return &Publisher{cli: cli}
}

// ConversationChanged signals the conversation channel plus each
// participant's user channel. Best-effort: a lost signal only delays the next
// snapshot until the following change, so failures are logged, not returned.
func (p *Publisher) ConversationChanged(ctx context.Context, conversationID string, participantIDs ...string) {
	if err := p.cli.Publish(ctx, conversationChannelPrefix+conversationID, "changed").Err(); err != nil {
		logger.Errorf("feed publish conv=%s: %v", conversationID, err)
	}
	for _, uid := range participantIDs {
		if err := p.cli.Publish(ctx, userChannelPrefix+uid, conversationID).Err(); err != nil {
			logger.Errorf("feed publish user=%s: %v", uid, err)
		}
	}
}

// Subscriber exposes change signals as channels that close on ctx cancel.
type Subscriber struct {
	cli *redis.Client
}

func NewSubscriber(cli *redis.Client) *Subscriber {
	return &Subscriber{cli: cli}
}

// Changes delivers a signal whenever any conversation involving userID
// changes. Signals are coalesced: a slow consumer sees at least one signal
// for any burst of changes.
func (s *Subscriber) Changes(ctx context.Context, userID string) (<-chan struct{}, error) {
	return s.subscribe(ctx, userChannelPrefix+userID)
}

// ConversationChanges delivers a signal whenever the given conversation
// changes (new message, read receipt).
func (s *Subscriber) ConversationChanges(ctx context.Context, conversationID string) (<-chan struct{}, error) {
	return s.subscribe(ctx, conversationChannelPrefix+conversationID)
}

func (s *Subscriber) subscribe(ctx context.Context, channel string) (<-chan struct{}, error) {
	sub := s.cli.Subscribe(ctx, channel)
	// Receive confirms the subscription is established before we return, so
	// no signal published after this call is missed.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("feed subscribe %s: %w", channel, err)
	}

	out := make(chan struct{}, 1)
	msgs := sub.Channel()
	go func() {
		defer close(out)
		defer func() {
			if err := sub.Close(); err != nil {
				logger.Errorf("feed unsubscribe %s: %v", channel, err)
			}
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- struct{}{}:
				default:
					// A signal is already pending; coalesce.
				}
			}
		}
	}()
	return out, nil
}
