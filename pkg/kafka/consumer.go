package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/modelmeta/hf-crawler/cfg"
	"github.com/modelmeta/hf-crawler/pkg/log"
	"github.com/segmentio/kafka-go"
)

// Consumer reads model messages from a Kafka topic and dispatches
// them to a handler registered per message key.
type Consumer struct {
	Config   *cfg.Config
	Logger   log.Logger
	reader   *kafka.Reader
	handlers map[string]func([]byte) error
}

func NewConsumer(config *cfg.Config, logger log.Logger, topic, groupID string) (*Consumer, error) {
	if len(config.Kafka.Brokers) == 0 {
		return nil, fmt.Errorf("no kafka brokers configured")
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        config.Kafka.Brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       10e3,
		MaxBytes:       10e6,
		MaxWait:        time.Second,
		StartOffset:    kafka.FirstOffset,
		RetentionTime:  7 * 24 * time.Hour,
		CommitInterval: time.Second,
	})

	return &Consumer{
		Config:   config,
		Logger:   logger,
		reader:   reader,
		handlers: make(map[string]func([]byte) error),
	}, nil
}

func (c *Consumer) RegisterHandler(key string, handler func([]byte) error) {
	c.handlers[key] = handler
}

// Start blocks reading messages until the context is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return c.reader.Close()
		default:
			message, err := c.reader.ReadMessage(ctx)
			if err != nil {
				if err == context.Canceled || err == context.DeadlineExceeded {
					return nil
				}
				c.Logger.Error(ctx, "Error reading message: %v", err)
				continue
			}

			key := string(message.Key)
			handler, exists := c.handlers[key]
			if !exists {
				c.Logger.Warn(ctx, "No handler registered for message with key: %s", key)
				continue
			}
			if err := handler(message.Value); err != nil {
				c.Logger.Error(ctx, "Error handling message with key %s: %v", key, err)
			}
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
