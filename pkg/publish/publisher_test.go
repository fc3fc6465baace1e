package publish

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getbunnyd/bunnyd/pkg/config"
	"github.com/getbunnyd/bunnyd/pkg/identity"
	"github.com/getbunnyd/bunnyd/pkg/logging"
	"github.com/getbunnyd/bunnyd/pkg/metrics"
	"github.com/getbunnyd/bunnyd/pkg/parser"
)

type fakeChannel struct {
	mu         sync.Mutex
	published  []amqp.Publishing
	confirmErr error
	publishErr error

	// inFlightDuringPublish captures the publisher's counter mid-publish.
	observe func()
}

func (f *fakeChannel) Publish(_ context.Context, _ string, msg amqp.Publishing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.observe != nil {
		f.observe()
	}
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, msg)
	return nil
}

func (f *fakeChannel) PublishWithConfirm(_ context.Context, _ string, msg amqp.Publishing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.observe != nil {
		f.observe()
	}
	if f.confirmErr != nil {
		return f.confirmErr
	}
	f.published = append(f.published, msg)
	return nil
}

func newPublisher(t *testing.T, cfg config.PublisherConfig, ch Channel) *Publisher {
	t.Helper()
	p, err := parser.New(cfg.ContentType, cfg.Schema)
	require.NoError(t, err)
	guard := identity.NewGuard(identity.NewStore(nil), cfg.Identities)
	return New(cfg, p, guard, ch, logging.Nop(), metrics.NopSet())
}

func TestSend_ConfirmedJSON(t *testing.T) {
	ch := &fakeChannel{}
	pub := newPublisher(t, config.PublisherConfig{Queue: "jsonq", ContentType: config.ContentTypeJSON, Confirm: true}, ch)

	hdr := http.Header{}
	hdr.Set("Content-Type", "application/json")
	res, err := pub.Send(context.Background(), hdr, []byte(`{"ok":true}`))
	require.NoError(t, err)

	assert.Equal(t, Result{ContentLengthBytes: 11, Confirmed: true}, res)
	require.Len(t, ch.published, 1)
	msg := ch.published[0]
	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, AppID, msg.AppId)
	assert.Equal(t, uint8(amqp.Persistent), msg.DeliveryMode)
	assert.NotEmpty(t, msg.MessageId)
	assert.JSONEq(t, `{"ok":true}`, string(msg.Body))
}

func TestSend_NonConfirmBinary(t *testing.T) {
	ch := &fakeChannel{}
	pub := newPublisher(t, config.PublisherConfig{Queue: "binq", ContentType: config.ContentTypeBinary}, ch)

	hdr := http.Header{}
	hdr.Set("Content-Type", "application/octet-stream")
	res, err := pub.Send(context.Background(), hdr, []byte("binarystuff"))
	require.NoError(t, err)

	assert.Equal(t, Result{ContentLengthBytes: 11, Confirmed: false}, res)
	require.Len(t, ch.published, 1)
	assert.Equal(t, []byte("binarystuff"), ch.published[0].Body)
	assert.Equal(t, "application/octet-stream", ch.published[0].ContentType)
}

func TestSend_HeaderShaping(t *testing.T) {
	ch := &fakeChannel{}
	pub := newPublisher(t, config.PublisherConfig{Queue: "jsonq", ContentType: config.ContentTypeJSON, Confirm: true}, ch)

	hdr := http.Header{}
	hdr.Set("Content-Type", "application/json")
	hdr.Set("X-Bunny-CorrelationID", "corr-7")
	hdr.Set("X-Bunny-Identity", "Bob")
	hdr.Set("X-Bunny-Token", "secret")
	hdr.Set("X-Bunny-Trace", "t1")

	_, err := pub.Send(context.Background(), hdr, []byte(`{}`))
	require.NoError(t, err)

	msg := ch.published[0]
	assert.Equal(t, "corr-7", msg.CorrelationId)
	assert.Equal(t, "t1", msg.Headers["x-bunny-trace"])
	assert.NotContains(t, msg.Headers, "x-bunny-identity")
	assert.NotContains(t, msg.Headers, "x-bunny-token")
	assert.NotContains(t, msg.Headers, "x-bunny-correlationid")
}

func TestSend_NegativeConfirmIsBrokerRejected(t *testing.T) {
	ch := &fakeChannel{confirmErr: errors.New("nacked")}
	pub := newPublisher(t, config.PublisherConfig{Queue: "jsonq", ContentType: config.ContentTypeJSON, Confirm: true}, ch)

	hdr := http.Header{}
	hdr.Set("Content-Type", "application/json")
	_, err := pub.Send(context.Background(), hdr, []byte(`{}`))
	assert.ErrorIs(t, err, ErrBrokerRejected)
	assert.Zero(t, pub.InFlight())
}

func TestSend_SynchronousPublishError(t *testing.T) {
	ch := &fakeChannel{publishErr: errors.New("channel gone")}
	pub := newPublisher(t, config.PublisherConfig{Queue: "binq", ContentType: config.ContentTypeBinary}, ch)

	hdr := http.Header{}
	hdr.Set("Content-Type", "application/octet-stream")
	_, err := pub.Send(context.Background(), hdr, []byte("x"))
	assert.ErrorIs(t, err, ErrBrokerRejected)
	assert.Zero(t, pub.InFlight())
}

func TestSend_ParserFailureSkipsPublish(t *testing.T) {
	ch := &fakeChannel{}
	pub := newPublisher(t, config.PublisherConfig{Queue: "jsonq", ContentType: config.ContentTypeJSON}, ch)

	hdr := http.Header{}
	hdr.Set("Content-Type", "application/octet-stream")
	_, err := pub.Send(context.Background(), hdr, []byte("binarystuff"))
	assert.ErrorIs(t, err, parser.ErrUnsupportedContentType)
	assert.Empty(t, ch.published)
	assert.Zero(t, pub.InFlight())
}

func TestSend_InFlightCounter(t *testing.T) {
	ch := &fakeChannel{}
	var pub *Publisher
	seen := -1
	ch.observe = func() { seen = pub.InFlight() }
	pub = newPublisher(t, config.PublisherConfig{Queue: "binq", ContentType: config.ContentTypeBinary}, ch)

	hdr := http.Header{}
	hdr.Set("Content-Type", "application/octet-stream")
	_, err := pub.Send(context.Background(), hdr, []byte("x"))
	require.NoError(t, err)

	assert.Equal(t, 1, seen, "counter should be held during the publish")
	assert.Zero(t, pub.InFlight(), "counter must return to zero on exit")
}
