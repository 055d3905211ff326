package testutil

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/testcontainers/testcontainers-go"
	rabbitTC "github.com/testcontainers/testcontainers-go/modules/rabbitmq"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestBroker holds test message broker resources
type TestBroker struct {
	Conn      *amqp.Connection
	Channel   *amqp.Channel
	container *rabbitTC.RabbitMQContainer
}

// SetupTestBroker creates a new test RabbitMQ container with an open channel
func SetupTestBroker(ctx context.Context) (*TestBroker, error) {
	container, err := rabbitTC.Run(ctx,
		"rabbitmq:4-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Server startup complete").
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		return nil, err
	}

	connString, err := container.AmqpURL(ctx)
	if err != nil {
		if terr := container.Terminate(ctx); terr != nil {
			err = terr
		}
		return nil, err
	}

	conn, err := amqp.Dial(connString)
	if err != nil {
		if terr := container.Terminate(ctx); terr != nil {
			err = terr
		}
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		if terr := container.Terminate(ctx); terr != nil {
			err = terr
		}
		return nil, err
	}

	return &TestBroker{Conn: conn, Channel: ch, container: container}, nil
}

// Container returns the underlying rabbitmq container for direct access.
func (t *TestBroker) Container() *rabbitTC.RabbitMQContainer {
	return t.container
}

// Teardown closes connections and terminates container
func (t *TestBroker) Teardown(ctx context.Context) {
	if t.Channel != nil {
		t.Channel.Close()
	}
	if t.Conn != nil {
		t.Conn.Close()
	}
	if t.container != nil {
		if err := t.container.Terminate(ctx); err != nil {
			return
		}
	}
}
