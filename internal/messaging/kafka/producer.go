package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Producer публикует события в Kafka синхронно.
type Producer struct {
	producer sarama.SyncProducer
	topic    string
	origin   string
	logger   *log.Entry
}

// NewProducer создаёт idempotent-producer для topic. origin помечает сообщения этого экземпляра.
func NewProducer(brokers []string, topic, origin string) (*Producer, error) {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Idempotent = true
	config.Net.MaxOpenRequests = 1

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}
	return newProducer(producer, topic, origin), nil
}

func newProducer(producer sarama.SyncProducer, topic, origin string) *Producer {
	if topic == "" {
		topic = TopicStoreEvents
	}
	return &Producer{
		producer: producer,
		topic:    topic,
		origin:   origin,
		logger:   log.WithField("component", "kafka-producer"),
	}
}

// Topic возвращает топик публикации.
func (p *Producer) Topic() string { return p.topic }

// Publish реализует domain.EventPublisher.
func (p *Producer) Publish(ctx context.Context, event domain.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	env, err := NewEnvelope(event, p.origin)
	if err != nil {
		return err
	}
	return p.PublishEnvelope(env)
}

// PublishEnvelope отправляет готовый конверт в топик producer.
func (p *Producer) PublishEnvelope(env *Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic:     p.topic,
		Key:       sarama.StringEncoder(env.Key()),
		Value:     sarama.ByteEncoder(data),
		Timestamp: time.Now(),
		Headers: []sarama.RecordHeader{
			{Key: []byte(HeaderEventID), Value: []byte(env.EventID)},
			{Key: []byte(HeaderEventType), Value: []byte(env.EventType)},
			{Key: []byte(HeaderOrigin), Value: []byte(env.Origin)},
		},
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		p.logger.WithError(err).WithFields(log.Fields{
			"topic":      p.topic,
			"event_type": env.EventType,
			"key":        env.Key(),
		}).Error("failed to send message to kafka")
		return fmt.Errorf("failed to send message: %w", err)
	}

	p.logger.WithFields(log.Fields{
		"topic":     p.topic,
		"event_id":  env.EventID,
		"partition": partition,
		"offset":    offset,
	}).Debug("message sent to kafka")
	return nil
}

// Close закрывает producer
func (p *Producer) Close() error {
	if err := p.producer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka producer: %w", err)
	}
	return nil
}

var _ domain.EventPublisher = (*Producer)(nil)
