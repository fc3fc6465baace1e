// Package subscribe maintains prefetch-bounded pushes of broker deliveries to
// HTTP targets.
//
// Each subscriber owns one AMQP consumer and one pull-loop goroutine. Every
// delivery runs a small state machine: POST the message to the target, and on
// failure retry with backoff until the attempt budget is spent, then nack the
// delivery back onto the queue for broker-side redelivery.
package subscribe

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/getbunnyd/bunnyd/pkg/broker"
	"github.com/getbunnyd/bunnyd/pkg/config"
	"github.com/getbunnyd/bunnyd/pkg/headers"
	"github.com/getbunnyd/bunnyd/pkg/metrics"
	"github.com/getbunnyd/bunnyd/pkg/parser"
)

// userAgent identifies the proxy on outbound pushes.
const userAgent = "bunnyd"

// Channel is the slice of the connection pane a subscriber uses.
type Channel interface {
	Subscribe(queue, consumerTag string, prefetch int) (<-chan amqp.Delivery, error)
	CancelConsumer(consumerTag string) error
}

// Subscriber pushes deliveries from one queue to one target URL.
type Subscriber struct {
	cfg    config.SubscriberConfig
	parser parser.Parser
	ch     Channel
	client *http.Client
	log    *slog.Logger
	met    *metrics.Set

	tag        string
	inFlight   atomic.Int64
	running    atomic.Bool
	hardCtx    context.Context
	hardCancel context.CancelFunc
	cancelOnce sync.Once
	wg         sync.WaitGroup
}

// New builds a subscriber for one configured queue/target pair.
func New(cfg config.SubscriberConfig, p parser.Parser, ch Channel, log *slog.Logger, met *metrics.Set) *Subscriber {
	hardCtx, hardCancel := context.WithCancel(context.Background())
	return &Subscriber{
		cfg:        cfg,
		parser:     p,
		ch:         ch,
		client:     &http.Client{},
		log:        log.With("queue", cfg.Queue, "target", cfg.Target),
		met:        met,
		tag:        fmt.Sprintf("bunnyd-%s-%s", cfg.Queue, uuid.NewString()[:8]),
		hardCtx:    hardCtx,
		hardCancel: hardCancel,
	}
}

// Queue returns the queue this subscriber is bound to.
func (s *Subscriber) Queue() string { return s.cfg.Queue }

// ConsumerTag returns the AMQP consumer tag owned by this subscriber.
func (s *Subscriber) ConsumerTag() string { return s.tag }

// InFlight returns the number of deliveries between receipt and ack/requeue.
func (s *Subscriber) InFlight() int { return int(s.inFlight.Load()) }

// Running reports whether the pull loop is active.
func (s *Subscriber) Running() bool { return s.running.Load() }

// Start sets the channel prefetch, registers the consumer, and launches the
// pull loop. Starting is a one-way transition; a stopped subscriber stays
// stopped for the life of the process.
func (s *Subscriber) Start() error {
	deliveries, err := s.ch.Subscribe(s.cfg.Queue, s.tag, s.cfg.Prefetch)
	if err != nil {
		return fmt.Errorf("failed to start subscriber for %q: %w", s.cfg.Queue, err)
	}

	s.running.Store(true)
	s.wg.Add(1)
	go s.loop(deliveries)

	s.log.Info("subscriber started", "consumerTag", s.tag, "prefetch", s.cfg.Prefetch)
	return nil
}

// Stop cancels the AMQP consumer so no new deliveries arrive. With hard=false
// in-flight pushes run to their natural end; with hard=true outstanding POSTs
// are cancelled and their deliveries nacked back onto the queue.
func (s *Subscriber) Stop(hard bool) {
	s.cancelOnce.Do(func() {
		if err := s.ch.CancelConsumer(s.tag); err != nil {
			s.log.Warn("failed to cancel consumer", "consumerTag", s.tag, "error", err)
		}
	})
	if hard {
		s.hardCancel()
	}
}

// Wait blocks until the pull loop and all per-delivery workers have finished.
func (s *Subscriber) Wait() {
	s.wg.Wait()
}

// loop fans deliveries out to per-delivery workers. The broker stops sending
// once prefetch deliveries are unacked, which bounds worker concurrency. The
// deliveries channel closes on consumer cancel or broker-side channel close.
func (s *Subscriber) loop(deliveries <-chan amqp.Delivery) {
	defer s.wg.Done()
	defer s.running.Store(false)

	for delivery := range deliveries {
		s.wg.Add(1)
		go func(d amqp.Delivery) {
			defer s.wg.Done()
			s.handle(d)
		}(delivery)
	}
	s.log.Info("subscriber stopped pulling", "consumerTag", s.tag)
}

// handle runs one delivery through the push state machine.
func (s *Subscriber) handle(d amqp.Delivery) {
	s.inFlight.Add(1)
	s.met.PushInFlight.Inc(s.cfg.Queue)
	defer func() {
		s.inFlight.Add(-1)
		s.met.PushInFlight.Dec(s.cfg.Queue)
	}()

	contentType, body, err := s.parser.RenderOutbound(d.Body)
	if err != nil {
		s.log.Error("stored message cannot be rendered, requeueing", "deliveryTag", d.DeliveryTag, "error", err)
		s.nackRequeue(d)
		return
	}

	for attempt := 1; ; attempt++ {
		s.met.PushAttempts.Inc(s.cfg.Queue)
		err := s.post(d, contentType, body)
		if err == nil {
			if err := d.Ack(false); err != nil {
				s.log.Error("failed to ack delivered push", "deliveryTag", d.DeliveryTag, "error", err)
			}
			s.met.PushTotal.Inc(s.cfg.Queue, "acked")
			return
		}

		s.log.Warn("push attempt failed", "deliveryTag", d.DeliveryTag, "attempt", attempt, "error", err)

		if attempt > s.cfg.Retries {
			break
		}
		select {
		case <-time.After(Delay(s.cfg.Backoff, s.cfg.RetryDelay(), attempt)):
		case <-s.hardCtx.Done():
			s.nackRequeue(d)
			return
		}
	}

	s.nackRequeue(d)
}

// post issues one POST attempt with the configured deadline. Network errors,
// deadline expiry, and non-2xx statuses are all failures.
func (s *Subscriber) post(d amqp.Delivery, contentType string, body []byte) error {
	ctx, cancel := context.WithTimeout(s.hardCtx, s.cfg.Timeout())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.Target, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set(headers.Redelivered, strconv.FormatBool(d.Redelivered))
	if d.CorrelationId != "" {
		req.Header.Set(headers.CorrelationID, d.CorrelationId)
	}
	headers.Apply(req.Header, d.Headers)

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("target answered %s", resp.Status)
	}
	return nil
}

func (s *Subscriber) nackRequeue(d amqp.Delivery) {
	if err := d.Nack(false, true); err != nil {
		s.log.Error("failed to nack delivery", "deliveryTag", d.DeliveryTag, "error", err)
	}
	s.met.PushTotal.Inc(s.cfg.Queue, "requeued")
}

// Ensure the pane satisfies the channel slice.
var _ Channel = (*broker.Pane)(nil)
