package lifecycle

import (
	"context"
	"encoding/json"
	"time"

	"github.com/team-telnyx/demo-conference-node/internal/core/event"
	"github.com/team-telnyx/demo-conference-node/internal/domain"
	"github.com/team-telnyx/demo-conference-node/pkg/logger"
	"github.com/team-telnyx/demo-conference-node/pkg/redis"
	"go.uber.org/zap"
)

const sinkTimeout = 5 * time.Second

// SnapshotSource provides the current conference state.
type SnapshotSource interface {
	Snapshot() domain.Snapshot
}

// RedisMirror keeps the latest conference snapshot in Redis and fans
// lifecycle events out on a channel.
type RedisMirror struct {
	redis   redis.RedisServiceInterface
	source  SnapshotSource
	key     string
	channel string
}

// NewRedisMirror creates a mirror writing to conference:snapshot:{app}.
func NewRedisMirror(client redis.RedisServiceInterface, source SnapshotSource, app, channel string) *RedisMirror {
	return &RedisMirror{
		redis:   client,
		source:  source,
		key:     client.GenerateKey(redis.CONFERENCE_SNAPSHOT, app),
		channel: channel,
	}
}

// Register subscribes the mirror to every lifecycle event.
func (m *RedisMirror) Register(bus event.EventBus) error {
	return bus.SubscribeAll(m.Handle)
}

// Handle writes the snapshot then publishes evt.
func (m *RedisMirror) Handle(evt *event.ConferenceEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
	defer cancel()

	snap := m.source.Snapshot()
	if snap.Active() {
		data, err := json.Marshal(snap)
		if err != nil {
			logger.Error(ctx, "Failed to marshal conference snapshot", zap.Error(err))
			return
		}
		if err := m.redis.SetValue(ctx, m.key, string(data), 0); err != nil {
			logger.Warn(ctx, "Failed to mirror conference snapshot", zap.String("key", m.key), zap.Error(err))
		}
	} else if err := m.redis.DelValue(ctx, m.key); err != nil {
		logger.Warn(ctx, "Failed to clear conference snapshot", zap.String("key", m.key), zap.Error(err))
	}

	if err := m.redis.Publish(ctx, m.channel, evt); err != nil {
		logger.Warn(ctx, "Failed to publish lifecycle event",
			zap.String("channel", m.channel),
			zap.String("type", string(evt.Type)),
			zap.Error(err))
	}
}
