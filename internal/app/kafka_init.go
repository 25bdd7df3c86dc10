package app

import (
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
)

// initKafkaProducer создаёт producer, если brokers не пустой.
// Возвращает nil, nil при пустом списке брокеров.
func initKafkaProducer(brokers []string, topic, origin string, logger *log.Entry) (*kafka.Producer, error) {
	if len(brokers) == 0 {
		return nil, nil
	}

	producer, err := kafka.NewProducer(brokers, topic, origin)
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
		return nil, err
	}

	logger.WithFields(log.Fields{"brokers": brokers, "topic": producer.Topic()}).Info("kafka producer initialized")
	return producer, nil
}

// initKafkaConsumer подписывает sink на события других экземпляров.
func initKafkaConsumer(brokers []string, groupID, topic, origin string, sink domain.EventPublisher, logger *log.Entry) (*kafka.Consumer, error) {
	if len(brokers) == 0 {
		return nil, nil
	}

	consumer, err := kafka.NewConsumer(brokers, groupID, topic, origin, sink)
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka consumer, feed relay disabled")
		return nil, err
	}

	logger.WithFields(log.Fields{"brokers": brokers, "group": groupID}).Info("kafka consumer initialized")
	return consumer, nil
}

// closeKafka останавливает consumer и закрывает producer; nil пропускаются.
func closeKafka(producer *kafka.Producer, consumer *kafka.Consumer, logger *log.Entry) {
	if consumer != nil {
		if err := consumer.Stop(); err != nil {
			logger.WithError(err).Warn("failed to stop kafka consumer")
		}
	}
	if producer == nil {
		return
	}

	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
	} else {
		logger.Info("kafka producer closed")
	}
}
