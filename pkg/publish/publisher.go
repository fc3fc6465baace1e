// Package publish owns a queue's outbound path from HTTP into the broker.
package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/getbunnyd/bunnyd/pkg/broker"
	"github.com/getbunnyd/bunnyd/pkg/config"
	"github.com/getbunnyd/bunnyd/pkg/headers"
	"github.com/getbunnyd/bunnyd/pkg/identity"
	"github.com/getbunnyd/bunnyd/pkg/metrics"
	"github.com/getbunnyd/bunnyd/pkg/parser"
)

// ErrBrokerRejected is returned when the broker negatively confirms a publish
// or the channel errors during it.
var ErrBrokerRejected = errors.New("broker rejected publish")

// AppID identifies the proxy in published message properties.
const AppID = "bunnyd"

// Channel is the slice of the connection pane a publisher uses.
type Channel interface {
	Publish(ctx context.Context, queue string, msg amqp.Publishing) error
	PublishWithConfirm(ctx context.Context, queue string, msg amqp.Publishing) error
}

// Result is the publish endpoint's success payload.
type Result struct {
	ContentLengthBytes int  `json:"contentLengthBytes"`
	Confirmed          bool `json:"confirmed"`
}

// Publisher translates HTTP publish requests into broker publishes for one
// queue.
type Publisher struct {
	queue   string
	confirm bool
	parser  parser.Parser
	guard   *identity.Guard
	ch      Channel
	log     *slog.Logger
	met     *metrics.Set

	inFlight atomic.Int64
}

// New builds a publisher for one configured queue.
func New(cfg config.PublisherConfig, p parser.Parser, guard *identity.Guard, ch Channel, log *slog.Logger, met *metrics.Set) *Publisher {
	return &Publisher{
		queue:   cfg.Queue,
		confirm: cfg.Confirm,
		parser:  p,
		guard:   guard,
		ch:      ch,
		log:     log.With("queue", cfg.Queue),
		met:     met,
	}
}

// Queue returns the queue this publisher is bound to.
func (p *Publisher) Queue() string { return p.queue }

// Guard returns the route's identity guard.
func (p *Publisher) Guard() *identity.Guard { return p.guard }

// InFlight returns the number of publishes awaiting a broker outcome.
func (p *Publisher) InFlight() int { return int(p.inFlight.Load()) }

// Send parses the body, shapes AMQP properties from the request headers, and
// publishes. For confirm publishers it blocks until the broker confirms; a
// negative confirm or channel error surfaces as ErrBrokerRejected.
func (p *Publisher) Send(ctx context.Context, hdr http.Header, body []byte) (Result, error) {
	payload, err := p.parser.ParseInbound(hdr.Get("Content-Type"), body)
	if err != nil {
		return Result{}, err
	}

	msg := amqp.Publishing{
		ContentType:   payload.ContentType,
		CorrelationId: hdr.Get(headers.CorrelationID),
		MessageId:     uuid.NewString(),
		Timestamp:     time.Now(),
		AppId:         AppID,
		DeliveryMode:  amqp.Persistent,
		Headers:       headers.PassThrough(hdr),
		Body:          payload.Body,
	}

	p.inFlight.Add(1)
	p.met.MessagesInFlight.Inc(p.queue)
	defer func() {
		p.inFlight.Add(-1)
		p.met.MessagesInFlight.Dec(p.queue)
	}()

	if p.confirm {
		if err := p.ch.PublishWithConfirm(ctx, p.queue, msg); err != nil {
			p.met.PublishTotal.Inc(p.queue, "rejected")
			p.log.Error("publish not confirmed", "error", err, "messageId", msg.MessageId)
			return Result{}, fmt.Errorf("%w: %v", ErrBrokerRejected, err)
		}
		p.met.PublishTotal.Inc(p.queue, "confirmed")
		p.log.Debug("publish confirmed", "bytes", len(payload.Body), "messageId", msg.MessageId)
		return Result{ContentLengthBytes: len(payload.Body), Confirmed: true}, nil
	}

	if err := p.ch.Publish(ctx, p.queue, msg); err != nil {
		p.met.PublishTotal.Inc(p.queue, "failed")
		p.log.Error("publish failed", "error", err, "messageId", msg.MessageId)
		return Result{}, fmt.Errorf("%w: %v", ErrBrokerRejected, err)
	}
	p.met.PublishTotal.Inc(p.queue, "sent")
	p.log.Debug("publish sent", "bytes", len(payload.Body), "messageId", msg.MessageId)
	return Result{ContentLengthBytes: len(payload.Body), Confirmed: false}, nil
}

// Ensure the pane satisfies the channel slice.
var _ Channel = (*broker.Pane)(nil)
