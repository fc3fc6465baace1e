// Package broker owns the AMQP connection and its two channels.
//
// The pane holds exactly one connection, one regular channel, and one channel
// in publisher-confirm mode. It is the only component that touches the AMQP
// client directly; publishers, consumers, and subscribers hold non-owning
// references through small interfaces. The connection is never re-opened:
// an unexpected close is surfaced to the lifecycle coordinator and is fatal.
package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrPublishNacked is returned when the broker negatively acknowledges a
// confirmed publish.
var ErrPublishNacked = errors.New("broker negatively acknowledged publish")

// Pane is the AMQP connection pane.
type Pane struct {
	conn    *amqp.Connection
	regular *amqp.Channel
	confirm *amqp.Channel

	// regularMu serializes publishes, gets, and consumer management on the
	// regular channel, which is shared between non-confirm publishers,
	// consumers, and subscriber registration.
	regularMu sync.Mutex

	closed    chan *amqp.Error
	closeOnce sync.Once
	log       *slog.Logger
}

// Dial connects to the broker and opens both channels. The confirm channel is
// put into publisher-confirm mode immediately.
func Dial(url string, log *slog.Logger) (*Pane, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to broker: %w", err)
	}

	regular, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open regular channel: %w", err)
	}

	confirm, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open confirm channel: %w", err)
	}
	if err := confirm.Confirm(false); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to enable publisher confirms: %w", err)
	}

	p := &Pane{
		conn:    conn,
		regular: regular,
		confirm: confirm,
		closed:  make(chan *amqp.Error, 1),
		log:     log,
	}

	go p.watchClose(
		conn.NotifyClose(make(chan *amqp.Error, 1)),
		regular.NotifyClose(make(chan *amqp.Error, 1)),
		confirm.NotifyClose(make(chan *amqp.Error, 1)),
	)

	return p, nil
}

// watchClose forwards the first abnormal close event. Graceful closes deliver
// nil on the notification channels and are not forwarded.
func (p *Pane) watchClose(conn, regular, confirm <-chan *amqp.Error) {
	var amqpErr *amqp.Error
	var source string
	select {
	case amqpErr = <-conn:
		source = "connection"
	case amqpErr = <-regular:
		source = "channel"
	case amqpErr = <-confirm:
		source = "confirm channel"
	}
	if amqpErr == nil {
		return
	}
	p.log.Error("broker closed unexpectedly", "source", source, "error", amqpErr)
	select {
	case p.closed <- amqpErr:
	default:
	}
}

// NotifyUnexpectedClose returns a channel that delivers the first abnormal
// connection or channel close.
func (p *Pane) NotifyUnexpectedClose() <-chan *amqp.Error {
	return p.closed
}

// AssertQueue passively asserts that the queue exists. The proxy never
// creates queues; a missing queue is a startup fatal.
func (p *Pane) AssertQueue(name string) error {
	p.regularMu.Lock()
	defer p.regularMu.Unlock()
	if _, err := p.regular.QueueDeclarePassive(name, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue %q is not available: %w", name, err)
	}
	return nil
}

// Publish sends a message on the regular channel without awaiting a confirm.
func (p *Pane) Publish(ctx context.Context, queue string, msg amqp.Publishing) error {
	p.regularMu.Lock()
	defer p.regularMu.Unlock()
	if err := p.regular.PublishWithContext(ctx, "", queue, false, false, msg); err != nil {
		return fmt.Errorf("publish to %q failed: %w", queue, err)
	}
	return nil
}

// PublishWithConfirm sends a message on the confirm channel and blocks until
// the broker acks or nacks it, or the context ends. Confirms are matched to
// publishes in FIFO order by the broker.
func (p *Pane) PublishWithConfirm(ctx context.Context, queue string, msg amqp.Publishing) error {
	confirmation, err := p.confirm.PublishWithDeferredConfirmWithContext(ctx, "", queue, false, false, msg)
	if err != nil {
		return fmt.Errorf("publish to %q failed: %w", queue, err)
	}

	acked, err := confirmation.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("awaiting confirm for %q: %w", queue, err)
	}
	if !acked {
		return fmt.Errorf("%w: queue %q", ErrPublishNacked, queue)
	}
	return nil
}

// Get pulls at most one message from the queue without waiting. The delivery
// requires a manual ack or nack.
func (p *Pane) Get(queue string) (amqp.Delivery, bool, error) {
	p.regularMu.Lock()
	defer p.regularMu.Unlock()
	return p.regular.Get(queue, false)
}

// Subscribe sets the channel prefetch and registers a manual-ack consumer on
// the regular channel. With a non-global Qos the prefetch bounds each
// consumer separately.
func (p *Pane) Subscribe(queue, consumerTag string, prefetch int) (<-chan amqp.Delivery, error) {
	p.regularMu.Lock()
	defer p.regularMu.Unlock()

	if err := p.regular.Qos(prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("failed to set prefetch for %q: %w", queue, err)
	}
	deliveries, err := p.regular.Consume(queue, consumerTag, false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to register consumer on %q: %w", queue, err)
	}
	return deliveries, nil
}

// CancelConsumer cancels a consumer registered with Subscribe. Deliveries
// already in flight stay unacked until their owner resolves them.
func (p *Pane) CancelConsumer(consumerTag string) error {
	p.regularMu.Lock()
	defer p.regularMu.Unlock()
	return p.regular.Cancel(consumerTag, false)
}

// Close shuts the channels and the connection down. Safe to call more than
// once; later calls are no-ops.
func (p *Pane) Close() error {
	var err error
	p.closeOnce.Do(func() {
		_ = p.regular.Close()
		_ = p.confirm.Close()
		err = p.conn.Close()
	})
	return err
}
