package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"github.com/mmynk/groupledger/internal/ledger"
	"github.com/mmynk/groupledger/internal/models"
)

const publishTimeout = 5 * time.Second

// channel is the part of *amqp091.Channel the publisher uses.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	Close() error
}

// Publisher sends audit events to a durable direct exchange. A channel
// that fails with an AMQP error is dropped and reopened on the next publish.
type Publisher struct {
	open       func() (channel, error)
	ch         channel
	exchange   string
	routingKey string

	mu sync.Mutex
}

var _ ledger.Recorder = (*Publisher)(nil)

// NewPublisher dials url and declares the exchange. The first connection is
// made eagerly so a bad URL fails at startup.
func NewPublisher(url, exchange, routingKey string) (*Publisher, error) {
	p := &Publisher{exchange: exchange, routingKey: routingKey}
	p.open = func() (channel, error) {
		s, err := dial(url, exchange)
		if err != nil {
			return nil, err
		}
		return s, nil
	}

	ch, err := p.open()
	if err != nil {
		return nil, err
	}
	p.ch = ch
	return p, nil
}

func newPublisherWithChannel(ch channel, exchange, routingKey string) *Publisher {
	return &Publisher{ch: ch, exchange: exchange, routingKey: routingKey}
}

// session is a channel that owns its connection.
type session struct {
	*amqp091.Channel
	conn *amqp091.Connection
}

func (s *session) Close() error {
	s.Channel.Close()
	return s.conn.Close()
}

func dial(url, exchange string) (*session, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to dial AMQP: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		exchange, // name
		"direct", // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	closed := conn.NotifyClose(make(chan *amqp091.Error, 1))
	go func() {
		if err, ok := <-closed; ok {
			slog.Warn("AMQP connection closed", "exchange", exchange, "error", err)
		}
	}()

	return &session{Channel: ch, conn: conn}, nil
}

func (p *Publisher) Record(ctx context.Context, entry *models.TransactionHistory) error {
	return p.publish(ctx, NewTransactionEvent(entry))
}

func (p *Publisher) CancelExpense(ctx context.Context, expenseID, cancelledBy string) error {
	return p.publish(ctx, NewCancelEvent(expenseID, cancelledBy))
}

func (p *Publisher) publish(ctx context.Context, event *Event) error {
	body, err := event.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	msg := amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		Timestamp:    event.Timestamp,
		Type:         event.Kind,
		Body:         body,
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.send(ctx, msg)
	var amqpErr *amqp091.Error
	if err != nil && p.open != nil && errors.As(err, &amqpErr) {
		slog.Warn("AMQP channel lost, reopening", "kind", event.Kind, "error", err)
		if p.ch != nil {
			p.ch.Close()
			p.ch = nil
		}
		err = p.send(ctx, msg)
	}
	if err != nil {
		return fmt.Errorf("failed to publish %s event: %w", event.Kind, err)
	}

	slog.DebugContext(ctx, "Published audit event",
		"kind", event.Kind,
		"exchange", p.exchange,
		"routing_key", p.routingKey,
	)
	return nil
}

// send publishes on the current channel, opening one first if the last
// was dropped. Callers hold p.mu.
func (p *Publisher) send(ctx context.Context, msg amqp091.Publishing) error {
	if p.ch == nil {
		if p.open == nil {
			return amqp091.ErrClosed
		}
		ch, err := p.open()
		if err != nil {
			return err
		}
		p.ch = ch
	}
	return p.ch.PublishWithContext(
		ctx,
		p.exchange,   // exchange
		p.routingKey, // routing key
		false,        // mandatory
		false,        // immediate
		msg,
	)
}

// Close closes the channel and its connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch == nil {
		return nil
	}
	err := p.ch.Close()
	p.ch = nil
	return err
}
