package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/setvote/setvote/internal/domain"
)

// Notifier broadcasts committed tally changes over Redis Pub/Sub, one
// channel per show. Delivery is at-most-once: subscribers that miss a
// message re-fetch current counts.
type Notifier struct {
	client *redis.Client
	prefix string
}

func NewNotifier(client *redis.Client, prefix string) *Notifier {
	if prefix == "" {
		prefix = "setvote:shows"
	}
	return &Notifier{client: client, prefix: prefix}
}

func (n *Notifier) channel(showID domain.ShowID) string {
	return fmt.Sprintf("%s:%s:votes", n.prefix, showID)
}

func (n *Notifier) PublishVoteUpdate(ctx context.Context, showID domain.ShowID, update domain.VoteUpdate) error {
	payload, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("redis notifier: marshal update: %w", err)
	}
	if err := n.client.Publish(ctx, n.channel(showID), payload).Err(); err != nil {
		return fmt.Errorf("redis notifier: publish: %w", err)
	}
	return nil
}

// Subscription delivers decoded vote updates for one show until closed.
type Subscription struct {
	sub    *redis.PubSub
	Ch     <-chan domain.VoteUpdate
	cancel context.CancelFunc
}

func (s *Subscription) Close() {
	s.cancel()
	_ = s.sub.Close()
}

// Subscribe opens a subscription for a show's vote updates. Malformed
// payloads are skipped rather than tearing the stream down.
func (n *Notifier) Subscribe(ctx context.Context, showID domain.ShowID) *Subscription {
	sub := n.client.Subscribe(ctx, n.channel(showID))

	subCtx, cancel := context.WithCancel(ctx)
	ch := make(chan domain.VoteUpdate, 16)

	go func() {
		defer close(ch)
		msgCh := sub.Channel()
		for {
			select {
			case msg, ok := <-msgCh:
				if !ok {
					return
				}
				var update domain.VoteUpdate
				if err := json.Unmarshal([]byte(msg.Payload), &update); err != nil {
					continue
				}
				select {
				case ch <- update:
				case <-subCtx.Done():
					return
				}
			case <-subCtx.Done():
				return
			}
		}
	}()

	return &Subscription{sub: sub, Ch: ch, cancel: cancel}
}

var _ domain.Notifier = (*Notifier)(nil)
