package repository

import (
	"context"

	"CoinSage/internal/domain/models"
	pkgkafka "CoinSage/pkg/kafka"
)

// KafkaForecastPublisher pushes forecasts to a Kafka topic keyed by symbol.
type KafkaForecastPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

func NewKafkaForecastPublisher(producer *pkgkafka.Producer, topic string) *KafkaForecastPublisher {
	return &KafkaForecastPublisher{producer: producer, topic: topic}
}

func (p *KafkaForecastPublisher) Publish(ctx context.Context, f models.Forecast) error {
	return p.producer.Publish(ctx, p.topic, []byte(f.Symbol), f)
}

func (p *KafkaForecastPublisher) Close() error {
	return p.producer.Close()
}
