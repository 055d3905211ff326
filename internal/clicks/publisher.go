package clicks

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shortloop/gateway/internal/model"
)

// Publisher sends click messages to the durable RabbitMQ click queue for
// the analytics worker to consume.
type Publisher struct {
	ch    *amqp.Channel
	queue string
}

// NewPublisher wraps an open channel. The queue must already be declared
// (see infra.NewBrokerConnection).
func NewPublisher(ch *amqp.Channel, queue string) *Publisher {
	return &Publisher{ch: ch, queue: queue}
}

// Publish sends one click with persistent delivery. The publish gets a
// small bounded budget so a wedged broker cannot back the dispatcher up
// indefinitely.
func (p *Publisher) Publish(ctx context.Context, click model.RawClick) error {
	body, err := json.Marshal(click)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return p.ch.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    click.OccurredAt,
		Body:         body,
	})
}

var _ Sink = (*Publisher)(nil)
