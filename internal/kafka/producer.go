package kafka

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/99degreesdevs/emuna-back/internal/logging"
	"github.com/segmentio/kafka-go"
)

var (
	ErrProducerClosed     = errors.New("kafka: producer closed")
	ErrProducerBufferFull = errors.New("kafka: producer buffer full")
)

// Producer buffers messages in an inbox drained by one goroutine, so request
// paths never block on the broker. A full inbox is reported, not waited on.
type Producer struct {
	w       MessageWriter
	topic   string
	log     *slog.Logger
	mu      sync.RWMutex
	closed  bool
	inbox   chan kafka.Message
	closeCh chan struct{}
}

// MessageWriter is the part of *kafka.Writer the producer needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

func NewProducer(brokers []string, topic string, buf int, log *slog.Logger) *Producer {
	return newProducer(NewWriter(brokers, topic), topic, buf, log)
}

// NewWriter is a synchronous writer hashing keys to partitions.
func NewWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
}

func newProducer(w MessageWriter, topic string, buf int, log *slog.Logger) *Producer {
	return &Producer{
		w:       w,
		topic:   topic,
		log:     logging.OrDefault(log),
		inbox:   make(chan kafka.Message, buf),
		closeCh: make(chan struct{}),
	}
}

func (p *Producer) Topic() string { return p.topic }

// Start runs the writer loop until Close is called and the inbox is drained.
func (p *Producer) Start() {
	go func() {
		defer close(p.closeCh)
		for m := range p.inbox {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := p.w.WriteMessages(ctx, m); err != nil {
				p.log.Error("kafka write failed", "topic", p.topic, "key", string(m.Key), "err", err)
			}
			cancel()
		}
		if err := p.w.Close(); err != nil {
			p.log.Warn("kafka writer close", "topic", p.topic, "err", err)
		}
	}()
}

func (p *Producer) Publish(key, value []byte, headers ...kafka.Header) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrProducerClosed
	}
	m := kafka.Message{
		Key:     key,
		Value:   value,
		Time:    time.Now(),
		Headers: headers,
	}
	select {
	case p.inbox <- m:
		return nil
	default:
		p.log.Warn("kafka producer buffer full", "topic", p.topic, "key", string(key))
		return ErrProducerBufferFull
	}
}

// Close stops accepting messages; the loop flushes what is queued and exits.
func (p *Producer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.inbox)
	}
}

// WaitClosed blocks until the loop has flushed and closed the writer.
func (p *Producer) WaitClosed() { <-p.closeCh }
