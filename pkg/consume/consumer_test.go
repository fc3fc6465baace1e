package consume

import (
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getbunnyd/bunnyd/pkg/config"
	"github.com/getbunnyd/bunnyd/pkg/identity"
	"github.com/getbunnyd/bunnyd/pkg/logging"
	"github.com/getbunnyd/bunnyd/pkg/metrics"
)

type fakeAcker struct {
	acked   []uint64
	nacked  []uint64
	requeue bool
	ackErr  error
}

func (f *fakeAcker) Ack(tag uint64, _ bool) error {
	if f.ackErr != nil {
		return f.ackErr
	}
	f.acked = append(f.acked, tag)
	return nil
}

func (f *fakeAcker) Nack(tag uint64, _ bool, requeue bool) error {
	f.nacked = append(f.nacked, tag)
	f.requeue = requeue
	return nil
}

func (f *fakeAcker) Reject(tag uint64, requeue bool) error {
	return f.Nack(tag, false, requeue)
}

type fakeGetter struct {
	delivery amqp.Delivery
	ok       bool
	err      error
}

func (f *fakeGetter) Get(string) (amqp.Delivery, bool, error) {
	return f.delivery, f.ok, f.err
}

func newConsumer(g Getter) *Consumer {
	guard := identity.NewGuard(identity.NewStore(nil), nil)
	return New(config.ConsumerConfig{Queue: "nonconfirm"}, guard, g, logging.Nop(), metrics.NopSet())
}

func TestConsumeOne_Empty(t *testing.T) {
	c := newConsumer(&fakeGetter{ok: false})
	_, err := c.ConsumeOne()
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestConsumeOne_GetError(t *testing.T) {
	c := newConsumer(&fakeGetter{err: errors.New("channel gone")})
	_, err := c.ConsumeOne()
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrEmpty)
}

func TestConsumeOne_Delivered(t *testing.T) {
	acker := &fakeAcker{}
	c := newConsumer(&fakeGetter{
		ok: true,
		delivery: amqp.Delivery{
			Acknowledger:  acker,
			DeliveryTag:   42,
			Body:          []byte("elevenbytes"),
			ContentType:   "application/octet-stream",
			CorrelationId: "corr-1",
			MessageCount:  0,
			Redelivered:   true,
			Headers:       amqp.Table{"x-bunny-trace": "t1", "x-bunny-identity": "Bob"},
		},
	})

	msg, err := c.ConsumeOne()
	require.NoError(t, err)

	assert.Equal(t, []byte("elevenbytes"), msg.Body)
	assert.Equal(t, "application/octet-stream", msg.ContentType)
	assert.Equal(t, "corr-1", msg.CorrelationID)
	assert.Equal(t, 0, msg.MessageCount)
	assert.True(t, msg.Redelivered)
	assert.Equal(t, "t1", msg.PassThrough.Get("x-bunny-trace"))
	assert.Empty(t, msg.PassThrough.Get("x-bunny-identity"))

	// Message is unacked until the handler serializes the response.
	assert.Empty(t, acker.acked)
	require.NoError(t, msg.Ack())
	assert.Equal(t, []uint64{42}, acker.acked)
}

func TestConsumeOne_MissingContentTypeDefaultsToBinary(t *testing.T) {
	c := newConsumer(&fakeGetter{
		ok:       true,
		delivery: amqp.Delivery{Acknowledger: &fakeAcker{}, Body: []byte("x")},
	})

	msg, err := c.ConsumeOne()
	require.NoError(t, err)
	assert.Equal(t, "application/octet-stream", msg.ContentType)
}

func TestMessage_AckFailureSurfaces(t *testing.T) {
	acker := &fakeAcker{ackErr: errors.New("connection reset")}
	c := newConsumer(&fakeGetter{
		ok:       true,
		delivery: amqp.Delivery{Acknowledger: acker, DeliveryTag: 7, Body: []byte("x")},
	})

	msg, err := c.ConsumeOne()
	require.NoError(t, err)
	assert.Error(t, msg.Ack())
}
