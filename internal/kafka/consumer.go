package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/99degreesdevs/emuna-back/internal/logging"
	"github.com/segmentio/kafka-go"
)

// ErrPoisonMessage stops a consumer whose handler keeps failing on a message
// that could not be dead-lettered. Its offset and every later offset of the
// partition stay uncommitted.
var ErrPoisonMessage = errors.New("kafka: message failed after retries")

// Handler returns nil when m is done with and its offset may be committed.
type Handler func(ctx context.Context, m kafka.Message) error

// Reader is the part of *kafka.Reader the consumer needs.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	r           Reader
	workers     int
	maxAttempts int
	backoff     time.Duration
	deadLetter  MessageWriter
	log         *slog.Logger
}

func NewConsumer(brokers []string, group, topic string, workers int, log *slog.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit
	})
	return newConsumer(r, workers, log)
}

func newConsumer(r Reader, workers int, log *slog.Logger) *Consumer {
	if workers <= 0 {
		workers = 1
	}
	return &Consumer{r: r, workers: workers, maxAttempts: 5, backoff: 200 * time.Millisecond, log: logging.OrDefault(log)}
}

// WithDeadLetter makes the consumer park messages that exhaust their
// retries on w and move on. w must write synchronously (see NewWriter) so a
// message is committed only once the broker has the copy. Without one, such
// a message stops the consumer.
func (c *Consumer) WithDeadLetter(w MessageWriter) *Consumer {
	c.deadLetter = w
	return c
}

// DeadLetterTopic names the parking topic of topic.
func DeadLetterTopic(topic string) string { return topic + ".dlq" }

// Start consumes until ctx is done. Each partition is pinned to one worker
// and handled in offset order, so a commit never skips an unfinished
// message. It returns an ErrPoisonMessage error when a message can neither
// be handled nor dead-lettered.
func (c *Consumer) Start(ctx context.Context, h Handler) error {
	defer c.r.Close()
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	lanes := make([]chan kafka.Message, c.workers)
	var wg sync.WaitGroup
	for i := range lanes {
		lanes[i] = make(chan kafka.Message, 64)
		wg.Add(1)
		go func(in <-chan kafka.Message) {
			defer wg.Done()
			for m := range in {
				if ctx.Err() != nil {
					continue // drain; uncommitted messages are fetched again
				}
				if err := c.process(ctx, h, m); err != nil {
					cancel(err)
					return
				}
			}
		}(lanes[i])
	}
	defer func() {
		for _, l := range lanes {
			close(l)
		}
		wg.Wait()
	}()

	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return stopCause(ctx)
			}
			return err
		}
		select {
		case lanes[m.Partition%c.workers] <- m:
		case <-ctx.Done():
			return stopCause(ctx)
		}
	}
}

func stopCause(ctx context.Context) error {
	if cause := context.Cause(ctx); errors.Is(cause, ErrPoisonMessage) {
		return cause
	}
	return nil
}

// process retries h with exponential backoff and commits on success. A
// message that still fails goes to the dead-letter writer and is committed;
// if that is not possible an ErrPoisonMessage error is returned. On shutdown
// nothing is committed and the message is redelivered.
func (c *Consumer) process(ctx context.Context, h Handler, m kafka.Message) error {
	delay := c.backoff
	var err error
	for attempt := 1; ; attempt++ {
		if err = h(ctx, m); err == nil {
			c.commit(ctx, m)
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}
		if attempt >= c.maxAttempts {
			break
		}
		c.log.Warn("kafka handler failed, retrying", "topic", m.Topic, "offset", m.Offset, "attempt", attempt, "err", err)
		select {
		case <-time.After(delay):
			delay *= 2
		case <-ctx.Done():
			return nil
		}
	}

	if c.deadLetter != nil {
		derr := c.park(ctx, m, err)
		if derr == nil {
			c.log.Error("kafka message dead-lettered", "topic", m.Topic, "partition", m.Partition,
				"offset", m.Offset, "attempts", c.maxAttempts, "err", err)
			c.commit(ctx, m)
			return nil
		}
		c.log.Error("kafka dead-letter write failed", "topic", m.Topic, "offset", m.Offset, "err", derr)
	}
	c.log.Error("kafka handler gave up, stopping consumer", "topic", m.Topic, "partition", m.Partition,
		"offset", m.Offset, "attempts", c.maxAttempts, "err", err)
	return fmt.Errorf("%w: topic %s partition %d offset %d: %v", ErrPoisonMessage, m.Topic, m.Partition, m.Offset, err)
}

func (c *Consumer) park(ctx context.Context, m kafka.Message, cause error) error {
	headers := append([]kafka.Header{}, m.Headers...)
	headers = append(headers,
		kafka.Header{Key: "x-original-topic", Value: []byte(m.Topic)},
		kafka.Header{Key: "x-original-partition", Value: []byte(strconv.Itoa(m.Partition))},
		kafka.Header{Key: "x-original-offset", Value: []byte(strconv.FormatInt(m.Offset, 10))},
		kafka.Header{Key: "x-error", Value: []byte(cause.Error())},
	)
	wctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return c.deadLetter.WriteMessages(wctx, kafka.Message{Key: m.Key, Value: m.Value, Headers: headers})
}

func (c *Consumer) commit(ctx context.Context, m kafka.Message) {
	if ctx.Err() != nil {
		return
	}
	if err := c.r.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
		c.log.Error("kafka commit failed", "topic", m.Topic, "offset", m.Offset, "err", err)
	}
}
