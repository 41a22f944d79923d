package repository

import (
	"context"
	"encoding/json"

	"campus-coin/internal/domain"
	"campus-coin/pkg/rabbitmq"
)

type eventProducer struct {
	mq *rabbitmq.RabbitMQ
}

func NewEventProducer(mq *rabbitmq.RabbitMQ) domain.EventProducer {
	return &eventProducer{mq: mq}
}

func (p *eventProducer) PublishLedgerEvent(ctx context.Context, event domain.LedgerEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.mq.Publish(ctx, body)
}
