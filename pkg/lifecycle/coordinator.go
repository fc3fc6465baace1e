// Package lifecycle coordinates startup-to-exit transitions of the proxy.
//
// The coordinator owns the two process-wide flags. pendingShutdown marks a
// graceful drain: subscribers stop pulling, in-flight pushes finish under a
// bounded poll budget, then the broker connection and HTTP server close.
// errorShutdown marks an unexpected broker close: subscribers stop hard,
// nothing drains, and the process exits non-zero.
package lifecycle

import (
	"context"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Drain budget for graceful shutdown.
const (
	drainAttempts = 5
	drainInterval = time.Second
)

// Subscription is the coordinator's view of a subscriber.
type Subscription interface {
	Queue() string
	Stop(hard bool)
	InFlight() int
}

// InFlightView exposes a publisher's in-flight counter.
type InFlightView interface {
	Queue() string
	InFlight() int
}

// Broker is the coordinator's view of the connection pane.
type Broker interface {
	NotifyUnexpectedClose() <-chan *amqp.Error
	Close() error
}

// Coordinator drives the shutdown sequence.
type Coordinator struct {
	pendingShutdown Flag
	errorShutdown   Flag

	subscribers []Subscription
	publishers  []InFlightView
	broker      Broker

	// shutdownHTTP stops accepting and drains in-flight HTTP requests.
	shutdownHTTP func(context.Context) error

	log *slog.Logger

	// pollInterval is drainInterval unless shortened by tests.
	pollInterval time.Duration
}

// New builds a coordinator over the proxy's components.
func New(subs []Subscription, pubs []InFlightView, b Broker, shutdownHTTP func(context.Context) error, log *slog.Logger) *Coordinator {
	return &Coordinator{
		subscribers:  subs,
		publishers:   pubs,
		broker:       b,
		shutdownHTTP: shutdownHTTP,
		log:          log,
		pollInterval: drainInterval,
	}
}

// ShuttingDown reports whether a shutdown (graceful or error) has begun. The
// HTTP layer answers 503 on work routes once this is true.
func (c *Coordinator) ShuttingDown() bool {
	return c.pendingShutdown.IsSet() || c.errorShutdown.IsSet()
}

// ErrorShutdown reports whether the process is going down due to an
// unexpected broker close.
func (c *Coordinator) ErrorShutdown() bool {
	return c.errorShutdown.IsSet()
}

// Run blocks until the context is cancelled (shutdown signal) or the broker
// closes unexpectedly, then performs the corresponding shutdown sequence.
// The returned exit code is zero only for a clean, signal-driven shutdown.
func (c *Coordinator) Run(ctx context.Context) int {
	select {
	case <-ctx.Done():
		c.gracefulShutdown()
		return 0
	case amqpErr := <-c.broker.NotifyUnexpectedClose():
		if c.pendingShutdown.IsSet() {
			// Close raced with a graceful shutdown already in progress.
			return 0
		}
		c.failShutdown(amqpErr)
		return 1
	}
}

// gracefulShutdown drains in-flight work before closing the broker
// connection and the HTTP server. Re-entry is a no-op.
func (c *Coordinator) gracefulShutdown() {
	if !c.pendingShutdown.Set() {
		return
	}
	c.log.Info("graceful shutdown started")

	for _, sub := range c.subscribers {
		sub.Stop(false)
	}

	for attempt := 1; attempt <= drainAttempts; attempt++ {
		inFlight := c.totalInFlight()
		if inFlight == 0 {
			break
		}
		c.log.Info("waiting for in-flight work", "inFlight", inFlight, "attempt", attempt)
		time.Sleep(c.pollInterval)
	}
	if remaining := c.totalInFlight(); remaining > 0 {
		c.log.Warn("drain budget spent, closing anyway", "inFlight", remaining)
	}

	if err := c.broker.Close(); err != nil {
		c.log.Error("failed to close broker connection", "error", err)
	}
	c.stopHTTP()
	c.log.Info("graceful shutdown complete")
}

// failShutdown tears the proxy down after an unexpected broker close.
func (c *Coordinator) failShutdown(amqpErr *amqp.Error) {
	if !c.errorShutdown.Set() {
		return
	}
	c.log.Error("broker connection lost, shutting down", "error", amqpErr)

	for _, sub := range c.subscribers {
		sub.Stop(true)
	}
	if err := c.broker.Close(); err != nil {
		c.log.Error("failed to close broker connection", "error", err)
	}
	c.stopHTTP()
}

func (c *Coordinator) stopHTTP() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.shutdownHTTP(ctx); err != nil {
		c.log.Error("HTTP shutdown failed", "error", err)
	}
}

// totalInFlight sums subscriber pushes and publisher messages still awaiting
// an outcome.
func (c *Coordinator) totalInFlight() int {
	total := 0
	for _, sub := range c.subscribers {
		total += sub.InFlight()
	}
	for _, pub := range c.publishers {
		total += pub.InFlight()
	}
	return total
}
