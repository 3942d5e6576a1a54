package realtime

import (
	"context"
	"strings"

	"github.com/redis/go-redis/v9"

	"legal-doc-intelligence/internal/logger"
)

// Subscriber is the API-process side of the bridge: one PSubscribe
// loop per process forwards every matter's published events to
// whichever local WebSocket connections are registered for it.
// Grounded on legal-gateway's pubsub.Channel() forwarding loop,
// adapted from SSE writes to Manager.BroadcastToMatter.
type Subscriber struct {
	rdb     *redis.Client
	manager *Manager
}

func NewSubscriber(rdb *redis.Client, manager *Manager) *Subscriber {
	return &Subscriber{rdb: rdb, manager: manager}
}

// Run blocks, forwarding events until ctx is cancelled or the
// subscription errors out.
func (s *Subscriber) Run(ctx context.Context) error {
	pubsub := s.rdb.PSubscribe(ctx, channelPrefix+"*"+channelSuffix)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			matterID := matterIDFromChannel(msg.Channel)
			if matterID == "" {
				continue
			}
			sent := s.manager.BroadcastToMatter(matterID, []byte(msg.Payload))
			logger.Debug("realtime event forwarded", "matter_id", matterID, "connections", sent)
		}
	}
}

func matterIDFromChannel(channel string) string {
	if !strings.HasPrefix(channel, channelPrefix) || !strings.HasSuffix(channel, channelSuffix) {
		return ""
	}
	return strings.TrimSuffix(strings.TrimPrefix(channel, channelPrefix), channelSuffix)
}
