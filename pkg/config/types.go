// Package config provides configuration types and loading for the proxy.
package config

import "time"

// ContentType selects how a route shapes message bodies.
type ContentType string

// Supported content types.
const (
	ContentTypeBinary ContentType = "binary"
	ContentTypeJSON   ContentType = "json"
)

// BackoffStrategy selects how subscriber retry delays grow between attempts.
type BackoffStrategy string

// Supported backoff strategies.
const (
	BackoffFixed       BackoffStrategy = "fixed"
	BackoffLinear      BackoffStrategy = "linear"
	BackoffExponential BackoffStrategy = "exponential"
)

// Identity is a named credential. Queues restrict publish/consume access to a
// set of identity names; the token is compared in constant time.
type Identity struct {
	Name  string `yaml:"name"`
	Token string `yaml:"token"`
}

// PublisherConfig declares one publish endpoint bound to a queue.
type PublisherConfig struct {
	// Queue is the broker queue name, also the URL path segment.
	Queue string `yaml:"queue"`

	// ContentType is binary or json. Defaults to binary.
	ContentType ContentType `yaml:"contentType"`

	// Schema is an optional inline JSON Schema, valid only with json.
	Schema map[string]any `yaml:"schema,omitempty"`

	// Confirm publishes on the confirm channel and awaits a broker confirm
	// before answering the HTTP request.
	Confirm bool `yaml:"confirm"`

	// Identities restricts access to these identity names. Empty means open.
	Identities []string `yaml:"identities"`
}

// ConsumerConfig declares one on-demand consume endpoint bound to a queue.
type ConsumerConfig struct {
	Queue string `yaml:"queue"`

	// Identities restricts access to these identity names. Empty means open.
	Identities []string `yaml:"identities"`
}

// SubscriberConfig declares one push subscription from a queue to a target URL.
type SubscriberConfig struct {
	Queue string `yaml:"queue"`

	// Target is the absolute http(s) URL deliveries are POSTed to.
	Target string `yaml:"target"`

	// ContentType shapes outbound rendering. Defaults to binary.
	ContentType ContentType `yaml:"contentType"`

	// Prefetch bounds concurrently held unacked deliveries. Defaults to 1.
	Prefetch int `yaml:"prefetch"`

	// TimeoutMs is the per-POST deadline in milliseconds. Defaults to 2000.
	TimeoutMs int `yaml:"timeoutMs"`

	// Retries is how many times a failed POST is retried before the delivery
	// is nacked back onto the queue.
	Retries int `yaml:"retries"`

	// Backoff is fixed, linear, or exponential. Defaults to fixed.
	Backoff BackoffStrategy `yaml:"backoff"`

	// RetryDelayMs is the backoff base delay in milliseconds. Zero retries
	// immediately.
	RetryDelayMs int `yaml:"retryDelayMs"`
}

// Timeout returns the per-POST deadline as a duration.
func (s SubscriberConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutMs) * time.Millisecond
}

// RetryDelay returns the backoff base delay as a duration.
func (s SubscriberConfig) RetryDelay() time.Duration {
	return time.Duration(s.RetryDelayMs) * time.Millisecond
}

// Config is the proxy's YAML configuration, loaded once at startup and
// immutable afterwards.
type Config struct {
	Publishers  []PublisherConfig  `yaml:"publishers"`
	Consumers   []ConsumerConfig   `yaml:"consumers"`
	Subscribers []SubscriberConfig `yaml:"subscribers"`
	Identities  []Identity         `yaml:"identities"`
}
