package mq

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/newsdesk/apiserver/config"
)

// NewFromConfig picks the broker named by cfg.Backend.
func NewFromConfig(ctx context.Context, cfg config.MQConfig, logger *slog.Logger) (*MQ, error) {
	var backend Backend
	switch cfg.Backend {
	case "rabbitmq":
		client, err := NewRabbitMQClient(cfg.RabbitMQ)
		if err != nil {
			return nil, fmt.Errorf("rabbitmq: %w", err)
		}
		backend = client
	case "pubsub":
		client, err := NewPubSubClient(ctx, cfg.PubSub)
		if err != nil {
			return nil, fmt.Errorf("pubsub: %w", err)
		}
		backend = client
	case "":
		backend = NewLogBackend(logger)
	default:
		return nil, fmt.Errorf("unknown mq backend %q", cfg.Backend)
	}
	return New(backend, cfg.Channel), nil
}
