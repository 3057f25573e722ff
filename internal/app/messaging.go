package app

import (
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/workshop/internal/domain"
	"github.com/vladislavdragonenkov/workshop/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/workshop/internal/service/outbox"
	"github.com/vladislavdragonenkov/workshop/internal/version"
)

// outboxPublishers — куда воркер outbox отправляет события и записи, исчерпавшие попытки.
type outboxPublishers struct {
	events   domain.OutboxPublisher
	dlq      domain.OutboxPublisher
	producer *kafka.Producer
}

// initKafkaProducer инициализирует Kafka producer если brokers не пустой.
// Возвращает nil, nil если brokers пустой.
func initKafkaProducer(brokers []string, logger *log.Entry) (*kafka.Producer, error) {
	if len(brokers) == 0 {
		return nil, nil
	}

	producer, err := kafka.NewProducer(kafka.ProducerConfig{
		Brokers:  brokers,
		ClientID: version.Service,
		Logger:   logger.WithField("component", "kafka-producer"),
	})
	if err != nil {
		return nil, err
	}

	logger.WithField("brokers", brokers).Info("kafka producer initialized")
	return producer, nil
}

// initOutboxPublishers выбирает транспорт событий. Если брокеры не заданы или недоступны,
// события пишутся в лог, а отсутствие Kafka видно в health как degraded.
func initOutboxPublishers(cfg Config, logger *log.Entry) (outboxPublishers, error) {
	producer, err := initKafkaProducer(cfg.Brokers(), logger)
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
	}
	if producer == nil {
		return outboxPublishers{events: outbox.NewLogPublisher(logger.WithField("component", "outbox-log"))}, err
	}
	return outboxPublishers{
		events:   kafka.NewOutboxPublisher(producer, cfg.KafkaTopic),
		dlq:      kafka.NewDLQPublisher(producer),
		producer: producer,
	}, nil
}

// closeKafka закрывает Kafka producer если он не nil.
func closeKafka(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}

	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
	} else {
		logger.Info("kafka producer closed")
	}
}
