package clicks

import (
	"context"
	"encoding/json"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shortloop/gateway/internal/model"
)

// Consumer drains the RabbitMQ click queue into the Recorder. Runs in the
// analytics worker binary.
type Consumer struct {
	ch       *amqp.Channel
	queue    string
	recorder *Recorder
	logger   *slog.Logger
}

// NewConsumer creates a consumer over an open channel.
func NewConsumer(ch *amqp.Channel, queue string, recorder *Recorder, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{ch: ch, queue: queue, recorder: recorder, logger: logger}
}

// Run consumes until ctx is cancelled or the delivery channel closes.
// Unparsable messages are rejected without requeue; a failed record is
// requeued once by the broker and dropped on the second failure.
func (c *Consumer) Run(ctx context.Context) error {
	deliveries, err := c.ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return amqp.ErrClosed
			}
			c.handle(ctx, d)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, d amqp.Delivery) {
	var raw model.RawClick
	if err := json.Unmarshal(d.Body, &raw); err != nil {
		c.logger.Error("dropping unparsable click message", slog.String("error", err.Error()))
		_ = d.Nack(false, false)
		return
	}

	if _, err := c.recorder.Record(ctx, raw); err != nil {
		c.logger.Error("click record failed",
			slog.String("code", raw.ShortCode),
			slog.String("error", err.Error()))
		_ = d.Nack(false, !d.Redelivered)
		return
	}
	_ = d.Ack(false)
}
