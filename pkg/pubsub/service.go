package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"
	"github.com/google/uuid"
	"github.com/team-telnyx/demo-conference-node/pkg/logger"
	"go.uber.org/zap"
)

type PubSubConfig struct {
	ProjectID string
	TopicName string
	PubID     string
}

// Publisher is the part of PubSubService used by exporters.
type Publisher interface {
	Publish(ctx context.Context, payload interface{}, attrs map[string]string) error
	Close() error
}

type PubSubService struct {
	client *pubsub.Client
	topic  *pubsub.Topic
	config *PubSubConfig
}

func NewPubSubService(ctx context.Context, cfg *PubSubConfig) (*PubSubService, error) {
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("PubSub project ID is required")
	}
	if cfg.TopicName == "" {
		return nil, fmt.Errorf("PubSub topic name is required")
	}

	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create PubSub client: %w", err)
	}

	topic := client.Topic(cfg.TopicName)
	exists, err := topic.Exists(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to check if topic exists: %w", err)
	}

	if !exists {
		logger.Base().Info("Topic does not exist, creating", zap.String("topic", cfg.TopicName))
		topic, err = client.CreateTopic(ctx, cfg.TopicName)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to create topic %s: %w", cfg.TopicName, err)
		}
		logger.Base().Info("Topic created successfully", zap.String("topic", cfg.TopicName))
	}

	return &PubSubService{
		client: client,
		topic:  topic,
		config: cfg,
	}, nil
}

// Publish sends payload as JSON and waits for the server ack. The "name"
// attribute is always set to "<pub_id>:<uuid>".
func (p *PubSubService) Publish(ctx context.Context, payload interface{}, attrs map[string]string) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal pubsub payload: %w", err)
	}

	taskID := uuid.New().String()
	attributes := make(map[string]string, len(attrs)+1)
	for k, v := range attrs {
		attributes[k] = v
	}
	attributes["name"] = fmt.Sprintf("%s:%s", p.config.PubID, taskID)

	result := p.topic.Publish(ctx, &pubsub.Message{
		Attributes: attributes,
		Data:       data,
	})
	if _, err := result.Get(ctx); err != nil {
		logger.Base().Error("Failed to publish message", zap.String("topic", p.config.TopicName), zap.String("task_id", taskID), zap.Error(err))
		return fmt.Errorf("failed to publish message: %w", err)
	}

	logger.Base().Debug("Published message", zap.String("topic", p.config.TopicName), zap.String("task_id", taskID))
	return nil
}

func (p *PubSubService) Close() error {
	if p.topic != nil {
		p.topic.Stop()
	}
	if p.client != nil {
		return p.client.Close()
	}
	return nil
}
