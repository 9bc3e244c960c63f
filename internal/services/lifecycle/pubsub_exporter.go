package lifecycle

import (
	"context"

	"github.com/team-telnyx/demo-conference-node/internal/core/event"
	"github.com/team-telnyx/demo-conference-node/pkg/logger"
	"github.com/team-telnyx/demo-conference-node/pkg/pubsub"
	"go.uber.org/zap"
)

// PubSubExporter forwards lifecycle events to a Pub/Sub topic.
type PubSubExporter struct {
	publisher pubsub.Publisher
	app       string
}

func NewPubSubExporter(publisher pubsub.Publisher, app string) *PubSubExporter {
	return &PubSubExporter{publisher: publisher, app: app}
}

// Register subscribes the exporter to every lifecycle event.
func (e *PubSubExporter) Register(bus event.EventBus) error {
	return bus.SubscribeAll(e.Handle)
}

// Handle publishes evt with its type and app as attributes.
func (e *PubSubExporter) Handle(evt *event.ConferenceEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
	defer cancel()

	attrs := map[string]string{
		"event_type":    string(evt.Type),
		"app":           e.app,
		"conference_id": evt.ConferenceID,
	}
	if err := e.publisher.Publish(ctx, evt, attrs); err != nil {
		logger.Warn(ctx, "Failed to export lifecycle event", zap.String("type", string(evt.Type)), zap.Error(err))
	}
}
