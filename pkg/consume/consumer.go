// Package consume implements on-demand single-message pulls with manual ack.
package consume

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/getbunnyd/bunnyd/pkg/broker"
	"github.com/getbunnyd/bunnyd/pkg/config"
	"github.com/getbunnyd/bunnyd/pkg/headers"
	"github.com/getbunnyd/bunnyd/pkg/identity"
	"github.com/getbunnyd/bunnyd/pkg/metrics"
	"github.com/getbunnyd/bunnyd/pkg/parser"
)

// ErrEmpty is returned when the queue holds no message.
var ErrEmpty = errors.New("queue empty")

// Getter is the slice of the connection pane a consumer uses.
type Getter interface {
	Get(queue string) (amqp.Delivery, bool, error)
}

// Message is one pulled delivery, held unacked until the HTTP response is
// serialized.
type Message struct {
	Body          []byte
	ContentType   string
	CorrelationID string
	MessageCount  int
	Redelivered   bool

	// PassThrough carries the X-Bunny-* headers stored on the AMQP message.
	PassThrough http.Header

	delivery amqp.Delivery
}

// Ack acknowledges the delivery. Called after the response is serialized; an
// ack failure means the message is lost to HTTP and is only logged.
func (m *Message) Ack() error {
	return m.delivery.Ack(false)
}

// Consumer pulls single messages from one queue.
type Consumer struct {
	queue string
	guard *identity.Guard
	ch    Getter
	log   *slog.Logger
	met   *metrics.Set
}

// New builds a consumer for one configured queue.
func New(cfg config.ConsumerConfig, guard *identity.Guard, ch Getter, log *slog.Logger, met *metrics.Set) *Consumer {
	return &Consumer{
		queue: cfg.Queue,
		guard: guard,
		ch:    ch,
		log:   log.With("queue", cfg.Queue),
		met:   met,
	}
}

// Queue returns the queue this consumer is bound to.
func (c *Consumer) Queue() string { return c.queue }

// Guard returns the route's identity guard.
func (c *Consumer) Guard() *identity.Guard { return c.guard }

// ConsumeOne issues a non-waiting basic.get. It returns ErrEmpty when the
// queue has nothing to deliver; otherwise the message comes back unacked with
// its original content type and pass-through headers.
func (c *Consumer) ConsumeOne() (*Message, error) {
	delivery, ok, err := c.ch.Get(c.queue)
	if err != nil {
		return nil, fmt.Errorf("basic.get on %q failed: %w", c.queue, err)
	}
	if !ok {
		c.met.ConsumeTotal.Inc(c.queue, "empty")
		return nil, fmt.Errorf("%w: %s", ErrEmpty, c.queue)
	}

	contentType := delivery.ContentType
	if contentType == "" {
		contentType = parser.MediaTypeBinary
	}

	passThrough := http.Header{}
	headers.Apply(passThrough, delivery.Headers)

	c.met.ConsumeTotal.Inc(c.queue, "delivered")
	c.log.Debug("message pulled", "deliveryTag", delivery.DeliveryTag, "remaining", delivery.MessageCount)

	return &Message{
		Body:          delivery.Body,
		ContentType:   contentType,
		CorrelationID: delivery.CorrelationId,
		MessageCount:  int(delivery.MessageCount),
		Redelivered:   delivery.Redelivered,
		PassThrough:   passThrough,
		delivery:      delivery,
	}, nil
}

// Ensure the pane satisfies the getter slice.
var _ Getter = (*broker.Pane)(nil)
