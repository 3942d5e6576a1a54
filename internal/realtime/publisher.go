package realtime

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
)

const channelPrefix = "matter:"
const channelSuffix = ":events"

func channelFor(matterID string) string {
	return channelPrefix + matterID + channelSuffix
}

// Publisher is the worker-process side of the bridge: it never holds a
// WebSocket connection itself, it just publishes onto the matter's
// Redis channel. Grounded on legal-gateway's rdb.Publish/publishEvent
// pattern, narrowed to the single matter-scoped channel this system
// needs instead of a handful of global topic names.
type Publisher struct {
	rdb *redis.Client
}

func NewPublisher(rdb *redis.Client) *Publisher {
	return &Publisher{rdb: rdb}
}

func (p *Publisher) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.rdb.Publish(ctx, channelFor(ev.MatterID), payload).Err()
}
