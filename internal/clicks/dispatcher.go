package clicks

import (
	"context"
	"log/slog"

	"github.com/shortloop/gateway/internal/model"
)

// Sink consumes click messages leaving the dispatcher: an AMQP publisher
// in the queued deployment, the recorder directly in dev mode.
type Sink interface {
	Publish(ctx context.Context, click model.RawClick) error
}

// Dispatcher decouples the redirect path from click handling. Enqueue is
// non-blocking: when the buffer is full the click is dropped and counted,
// never waited on. A separate goroutine drains the buffer into the sink.
type Dispatcher struct {
	ch     chan model.RawClick
	sink   Sink
	logger *slog.Logger
	onDrop func()
}

// NewDispatcher creates a dispatcher with the given buffer capacity.
func NewDispatcher(sink Sink, buffer int, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if buffer <= 0 {
		buffer = 1024
	}
	return &Dispatcher{
		ch:     make(chan model.RawClick, buffer),
		sink:   sink,
		logger: logger,
	}
}

// SetDropHook registers a callback fired for each dropped click, wired to
// metrics by the server.
func (d *Dispatcher) SetDropHook(hook func()) {
	d.onDrop = hook
}

// Enqueue offers a click to the buffer and reports acceptance. It never
// blocks the caller.
func (d *Dispatcher) Enqueue(click model.RawClick) bool {
	select {
	case d.ch <- click:
		return true
	default:
		if d.onDrop != nil {
			d.onDrop()
		}
		return false
	}
}

// Run drains the buffer into the sink until ctx is cancelled. Publish
// failures are logged and the click is lost; recording is best-effort by
// contract.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case click := <-d.ch:
			if err := d.sink.Publish(ctx, click); err != nil {
				d.logger.Error("click publish failed",
					slog.String("code", click.ShortCode),
					slog.String("error", err.Error()))
			}
		case <-ctx.Done():
			return
		}
	}
}
