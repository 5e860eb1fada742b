// Package events hands domain events to a message broker.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"servicebay/internal/util"
)

// RoutingReminderDue is the routing key for reminders whose time has come.
const RoutingReminderDue = "reminder.due"

// Publisher delivers an event payload under a routing key.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
	Close() error
}

// RabbitPublisher publishes JSON messages to a durable topic exchange. A
// connection or channel closed by the broker is re-dialed on the next Publish.
type RabbitPublisher struct {
	exchange string
	dial     func() (*rabbitSession, error)

	mu   sync.Mutex
	sess *rabbitSession
}

type rabbitChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// rabbitSession is one dialed connection with its publishing channel.
type rabbitSession struct {
	ch         rabbitChannel
	conn       io.Closer
	connClosed <-chan *amqp.Error
	chClosed   <-chan *amqp.Error
}

func (s *rabbitSession) alive() bool {
	select {
	case <-s.connClosed:
		return false
	case <-s.chClosed:
		return false
	default:
		return true
	}
}

func (s *rabbitSession) close() error {
	return errors.Join(s.ch.Close(), s.conn.Close())
}

// NewRabbitPublisher dials the broker and declares the exchange.
func NewRabbitPublisher(url, exchange string) (*RabbitPublisher, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, errors.New("rabbitmq url required")
	}
	exchange = strings.TrimSpace(exchange)
	if exchange == "" {
		exchange = "servicebay.events"
	}
	p := &RabbitPublisher{
		exchange: exchange,
		dial:     func() (*rabbitSession, error) { return dialRabbit(url, exchange) },
	}
	sess, err := p.dial()
	if err != nil {
		return nil, err
	}
	p.sess = sess
	return p, nil
}

func dialRabbit(url, exchange string) (*rabbitSession, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return &rabbitSession{
		ch:         ch,
		conn:       conn,
		connClosed: conn.NotifyClose(make(chan *amqp.Error, 1)),
		chClosed:   ch.NotifyClose(make(chan *amqp.Error, 1)),
	}, nil
}

// Publish sends payload as a persistent JSON message. A publish that fails
// on a closed channel is retried once on a fresh connection.
func (p *RabbitPublisher) Publish(ctx context.Context, routingKey string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    util.NewID(),
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for attempt := 0; ; attempt++ {
		sess, err := p.session()
		if err != nil {
			return err
		}
		err = sess.ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, msg)
		if err == nil || !errors.Is(err, amqp.ErrClosed) || attempt > 0 {
			return err
		}
		p.drop()
	}
}

// session returns the live session, re-dialing when the broker closed it.
// Callers hold p.mu.
func (p *RabbitPublisher) session() (*rabbitSession, error) {
	if p.sess != nil && p.sess.alive() {
		return p.sess, nil
	}
	p.drop()
	sess, err := p.dial()
	if err != nil {
		return nil, fmt.Errorf("reconnect rabbitmq: %w", err)
	}
	p.sess = sess
	return sess, nil
}

func (p *RabbitPublisher) drop() {
	if p.sess == nil {
		return
	}
	_ = p.sess.close()
	p.sess = nil
}

// Close closes the channel and connection.
func (p *RabbitPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sess == nil {
		return nil
	}
	err := p.sess.close()
	p.sess = nil
	return err
}

// LogPublisher writes events to the structured log. Used when no broker is
// configured.
type LogPublisher struct {
	Logger *slog.Logger
}

func (p LogPublisher) Publish(ctx context.Context, routingKey string, payload any) error {
	logger := p.Logger
	if logger == nil {
		logger = util.LoggerFromContext(ctx)
	}
	logger.InfoContext(ctx, "event published", "routing_key", routingKey, "payload", payload)
	return nil
}

func (LogPublisher) Close() error { return nil }
