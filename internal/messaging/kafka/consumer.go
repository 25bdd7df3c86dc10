package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Consumer читает события хранилищ других экземпляров и передаёт их локальному получателю
// (обычно websocket-ленте). Собственные события экземпляра пропускаются по заголовку origin.
type Consumer struct {
	consumer sarama.ConsumerGroup
	topics   []string
	origin   string
	sink     domain.EventPublisher
	logger   *log.Entry
	wg       sync.WaitGroup
}

// NewConsumer создаёт consumer group, который доставляет события в sink.
func NewConsumer(brokers []string, groupID, topic, origin string, sink domain.EventPublisher) (*Consumer, error) {
	config := sarama.NewConfig()
	config.Consumer.Group.Rebalance.Strategy = sarama.NewBalanceStrategyRoundRobin()
	config.Consumer.Offsets.Initial = sarama.OffsetNewest
	config.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(brokers, groupID, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer: %w", err)
	}
	if topic == "" {
		topic = TopicStoreEvents
	}

	return &Consumer{
		consumer: group,
		topics:   []string{topic},
		origin:   origin,
		sink:     sink,
		logger:   log.WithField("component", "kafka-consumer"),
	}, nil
}

// Start запускает чтение в фоне до отмены ctx или Stop.
func (c *Consumer) Start(ctx context.Context) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			// Consume возвращается при каждом rebalance.
			if err := c.consumer.Consume(ctx, c.topics, c); err != nil {
				c.logger.WithError(err).Error("error from consumer")
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for err := range c.consumer.Errors() {
			c.logger.WithError(err).Error("consumer error")
		}
	}()

	c.logger.WithField("topics", c.topics).Info("kafka consumer started")
}

// Stop закрывает consumer group и ждёт завершения горутин.
func (c *Consumer) Stop() error {
	if err := c.consumer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka consumer: %w", err)
	}
	c.wg.Wait()
	c.logger.Info("kafka consumer stopped")
	return nil
}

// Setup вызывается при старте consumer session
func (c *Consumer) Setup(sarama.ConsumerGroupSession) error { return nil }

// Cleanup вызывается при завершении consumer session
func (c *Consumer) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim обрабатывает сообщения партиции. Лента best-effort: сообщение
// помечается обработанным даже при ошибке разбора или доставки.
func (c *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok || message == nil {
				return nil
			}
			c.handle(session.Context(), message)
			session.MarkMessage(message, "")
		case <-session.Context().Done():
			return nil
		}
	}
}

func (c *Consumer) handle(ctx context.Context, message *sarama.ConsumerMessage) {
	fields := log.Fields{
		"topic":     message.Topic,
		"partition": message.Partition,
		"offset":    message.Offset,
	}
	if c.origin != "" && headerValue(message, HeaderOrigin) == c.origin {
		return
	}

	env, err := ParseEnvelope(message)
	if err != nil {
		c.logger.WithError(err).WithFields(fields).Warn("skipping malformed store event")
		return
	}
	if err := c.sink.Publish(ctx, env.Event()); err != nil {
		c.logger.WithError(err).WithFields(fields).Warn("failed to deliver store event")
	}
}

// ParseEnvelope разбирает Envelope из сообщения.
func ParseEnvelope(message *sarama.ConsumerMessage) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(message.Value, &env); err != nil {
		return nil, fmt.Errorf("failed to unmarshal store event: %w", err)
	}
	if env.EventType == "" {
		return nil, fmt.Errorf("store event has no event_type")
	}
	return &env, nil
}

func headerValue(message *sarama.ConsumerMessage, key string) string {
	for _, header := range message.Headers {
		if header != nil && string(header.Key) == key {
			return string(header.Value)
		}
	}
	return ""
}
