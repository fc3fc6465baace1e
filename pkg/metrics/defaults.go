package metrics

// Set bundles the proxy's metric series. Components receive the whole set and
// touch only the series they own.
type Set struct {
	// PublishTotal counts accepted publishes by queue and outcome
	// (confirmed, rejected, sent, failed).
	PublishTotal *Counter

	// ConsumeTotal counts single-message gets by queue and outcome
	// (delivered, empty).
	ConsumeTotal *Counter

	// PushTotal counts terminal subscriber push outcomes by queue
	// (acked, requeued).
	PushTotal *Counter

	// PushAttempts counts individual POST attempts by queue.
	PushAttempts *Counter

	// MessagesInFlight tracks publisher in-flight messages by queue.
	MessagesInFlight *Gauge

	// PushInFlight tracks subscriber in-flight push requests by queue.
	PushInFlight *Gauge
}

// NewSet registers the proxy's metric series on the given registry.
func NewSet(r *Registry) *Set {
	return &Set{
		PublishTotal:     r.NewCounter("bunnyd_publish_total", "Accepted publishes by outcome.", "queue", "outcome"),
		ConsumeTotal:     r.NewCounter("bunnyd_consume_total", "Single-message consumes by outcome.", "queue", "outcome"),
		PushTotal:        r.NewCounter("bunnyd_push_total", "Terminal subscriber push outcomes.", "queue", "outcome"),
		PushAttempts:     r.NewCounter("bunnyd_push_attempts_total", "Individual subscriber POST attempts.", "queue"),
		MessagesInFlight: r.NewGauge("bunnyd_messages_in_flight", "Publisher messages awaiting broker outcome.", "queue"),
		PushInFlight:     r.NewGauge("bunnyd_push_in_flight", "Subscriber pushes between receipt and ack/requeue.", "queue"),
	}
}

// NopSet returns a Set backed by a throwaway registry, for tests and
// components constructed without metrics wiring.
func NopSet() *Set {
	return NewSet(NewRegistry())
}
