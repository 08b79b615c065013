// Package push delivers Web Push notifications to users' browsers. It is a
// best-effort side channel: a failed delivery is logged and otherwise
// invisible to the messaging flow.
package push

import (
	"context"
	"encoding/json"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/portalchat/internal/logger"
	"github.com/portalchat/internal/repository"
)

const sendTimeout = 10 * time.Second

// Notifier fans one notification out to every registered subscription of the
// target user. With nil VAPID options (keys not configured) it is a no-op.
type Notifier struct {
	subs  *repository.PushSubRepository
	vapid *webpush.Options
}

func NewNotifier(subs *repository.PushSubRepository, keys *VAPIDKeys) *Notifier {
	var opts *webpush.Options
	if keys != nil && keys.PublicKey != "" && keys.PrivateKey != "" {
		opts = &webpush.Options{
			Subscriber:      "portalchat",
			VAPIDPublicKey:  keys.PublicKey,
			VAPIDPrivateKey: keys.PrivateKey,
			TTL:             30,
		}
	}
	return &Notifier{subs: subs, vapid: opts}
}

// Notify pushes title/body to all of userID's devices. Gone subscriptions
// (410/404 from the push service) are pruned on the spot.
func (n *Notifier) Notify(ctx context.Context, userID, title, body string) {
	if n.vapid == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	subs, err := n.subs.ListByUser(ctx, userID)
	if err != nil {
		logger.Errorf("push notify list user=%s: %v", userID, err)
		return
	}
	if len(subs) == 0 {
		return
	}

	payload, _ := json.Marshal(map[string]string{"title": title, "body": body})
	for i := range subs {
		sub := &subs[i]
		wpSub := &webpush.Subscription{
			Endpoint: sub.Endpoint,
			Keys:     webpush.Keys{P256dh: sub.P256dh, Auth: sub.Auth},
		}
		resp, err := webpush.SendNotificationWithContext(ctx, payload, wpSub, n.vapid)
		if err != nil {
			logger.Errorf("push send user=%s: %v", userID, err)
			continue
		}
		resp.Body.Close()
		if resp.StatusCode == 410 || resp.StatusCode == 404 {
			if err := n.subs.Delete(ctx, userID, sub.Endpoint); err != nil {
				logger.Errorf("push prune user=%s: %v", userID, err)
			}
		}
	}
}
