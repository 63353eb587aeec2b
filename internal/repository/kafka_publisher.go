package repository

import (
	"context"
	"fmt"

	"github.com/sony/gobreaker"

	"EstateDesk/internal/domain/models"
	"EstateDesk/internal/domain/repository"
	pkgkafka "EstateDesk/pkg/kafka"
	xlogger "EstateDesk/pkg/logger"
)

var _ repository.UpdatePublisher = (*KafkaUpdatePublisher)(nil)

// batchWriter is the part of pkg/kafka.Producer the publisher needs.
type batchWriter interface {
	PublishBatch(ctx context.Context, topic string, messages []pkgkafka.Message) error
	Close() error
}

// KafkaUpdatePublisher writes market updates keyed by property id or ticker
// symbol, so every key stays ordered within its partition.
type KafkaUpdatePublisher struct {
	producer batchWriter
	topic    string
	breaker  *gobreaker.CircuitBreaker
}

func NewKafkaUpdatePublisher(producer batchWriter, topic string, logger *xlogger.Logger) *KafkaUpdatePublisher {
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &KafkaUpdatePublisher{
		producer: producer,
		topic:    topic,
		breaker:  newBreaker("kafka:"+topic, logger),
	}
}

func (p *KafkaUpdatePublisher) Publish(ctx context.Context, u *models.MarketUpdate) error {
	return p.PublishBatch(ctx, []*models.MarketUpdate{u})
}

func (p *KafkaUpdatePublisher) PublishBatch(ctx context.Context, updates []*models.MarketUpdate) error {
	msgs := make([]pkgkafka.Message, 0, len(updates))
	for _, u := range updates {
		if u == nil {
			continue
		}
		msgs = append(msgs, pkgkafka.Message{Key: []byte(u.Key), Value: u})
	}
	if len(msgs) == 0 {
		return nil
	}
	_, err := p.breaker.Execute(func() (interface{}, error) {
		return nil, p.producer.PublishBatch(ctx, p.topic, msgs)
	})
	if err != nil {
		return fmt.Errorf("publish %d updates: %w", len(msgs), err)
	}
	return nil
}

func (p *KafkaUpdatePublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
