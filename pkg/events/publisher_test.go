package events

import (
	"context"
	"errors"
	"sync"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChannel struct {
	mu        sync.Mutex
	published []string
	err       error
	closed    bool
}

func (c *fakeChannel) PublishWithContext(_ context.Context, _, key string, _, _ bool, _ amqp.Publishing) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.published = append(c.published, key)
	return nil
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

type fakeBroker struct {
	dials    int
	channels []*fakeChannel
	notify   []chan *amqp.Error
	dialErr  error
}

func (b *fakeBroker) dial() (*rabbitSession, error) {
	b.dials++
	if b.dialErr != nil {
		return nil, b.dialErr
	}
	ch := &fakeChannel{}
	connClosed := make(chan *amqp.Error, 1)
	b.channels = append(b.channels, ch)
	b.notify = append(b.notify, connClosed)
	return &rabbitSession{ch: ch, conn: nopCloser{}, connClosed: connClosed, chClosed: make(chan *amqp.Error, 1)}, nil
}

func newFakePublisher(t *testing.T, b *fakeBroker) *RabbitPublisher {
	t.Helper()
	p := &RabbitPublisher{exchange: "servicebay.events", dial: b.dial}
	sess, err := p.dial()
	require.NoError(t, err)
	p.sess = sess
	return p
}

func TestRabbitPublisherRedialsAfterBrokerClose(t *testing.T) {
	broker := &fakeBroker{}
	p := newFakePublisher(t, broker)
	ctx := context.Background()

	require.NoError(t, p.Publish(ctx, RoutingReminderDue, ReminderDue{ReminderID: "r1"}))
	assert.Equal(t, 1, broker.dials)

	// broker restart closes the connection
	broker.notify[0] <- amqp.ErrClosed

	require.NoError(t, p.Publish(ctx, RoutingReminderDue, ReminderDue{ReminderID: "r2"}))
	assert.Equal(t, 2, broker.dials)
	assert.True(t, broker.channels[0].closed)
	assert.Equal(t, []string{RoutingReminderDue}, broker.channels[1].published)
}

func TestRabbitPublisherRetriesOnceOnClosedChannel(t *testing.T) {
	broker := &fakeBroker{}
	p := newFakePublisher(t, broker)
	broker.channels[0].err = amqp.ErrClosed

	require.NoError(t, p.Publish(context.Background(), RoutingReminderDue, ReminderDue{ReminderID: "r1"}))
	assert.Equal(t, 2, broker.dials)
	assert.Len(t, broker.channels[1].published, 1)
}

func TestRabbitPublisherReportsDialFailure(t *testing.T) {
	broker := &fakeBroker{}
	p := newFakePublisher(t, broker)
	broker.notify[0] <- amqp.ErrClosed
	broker.dialErr = errors.New("connection refused")

	err := p.Publish(context.Background(), RoutingReminderDue, ReminderDue{ReminderID: "r1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, broker.dialErr)

	// the next publish tries again once the broker is back
	broker.dialErr = nil
	require.NoError(t, p.Publish(context.Background(), RoutingReminderDue, ReminderDue{ReminderID: "r2"}))
	require.NoError(t, p.Close())
}
