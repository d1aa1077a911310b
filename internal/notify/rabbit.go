package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/99degreesdevs/emuna-back/internal/logging"
	amqp "github.com/rabbitmq/amqp091-go"
)

// RabbitPublisher keeps one connection and channel open and redials when
// the broker drops them.
type RabbitPublisher struct {
	url   string
	queue string
	log   *slog.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// DialRabbit connects to url and declares queue as durable.
func DialRabbit(url, queue string, log *slog.Logger) (*RabbitPublisher, error) {
	p := &RabbitPublisher{url: url, queue: queue, log: logging.OrDefault(log)}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.connect(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *RabbitPublisher) connect() error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("rabbitmq dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("rabbitmq channel: %w", err)
	}
	if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("rabbitmq declare %s: %w", p.queue, err)
	}
	p.conn, p.ch = conn, ch
	return nil
}

// Send publishes m as a persistent JSON message on the queue.
func (p *RabbitPublisher) Send(ctx context.Context, m Message) error {
	body, err := m.encode()
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch == nil || p.ch.IsClosed() || p.conn.IsClosed() {
		p.log.Warn("rabbitmq channel closed, redialing", "queue", p.queue)
		p.closeLocked()
		if err := p.connect(); err != nil {
			return err
		}
	}
	return p.ch.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    m.EventID,
		Type:         m.Kind,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
}

func (p *RabbitPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closeLocked()
}

func (p *RabbitPublisher) closeLocked() error {
	var err error
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		err = p.conn.Close()
		p.conn = nil
	}
	return err
}
