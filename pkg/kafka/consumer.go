package kafka

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// Handler is a function that processes a Kafka event. Returning a non-nil
// error signals the transport layer to retry; returning nil acknowledges the
// message.
type Handler func(ctx context.Context, event *Event) error

// ConsumerConfig holds Kafka consumer configuration.
type ConsumerConfig struct {
	Brokers  []string
	GroupID  string
	Topic    string
	MinBytes int
	MaxBytes int

	// MaxRetries bounds handler attempts per message before the message is
	// routed to the DLQ (if configured) and committed. Zero means the
	// default of 3.
	MaxRetries int

	// RetryBackoff is the base backoff between attempts; attempt n waits
	// n * RetryBackoff. Zero means the default of 100ms.
	RetryBackoff time.Duration
}

// Consumer wraps the kafka-go reader for consuming events. It implements the
// transport-side retry policy: handler failures are retried with backoff,
// and messages that exhaust all attempts are dead-lettered and committed so
// a poison message cannot wedge the partition.
type Consumer struct {
	reader     *kafka.Reader
	logger     *slog.Logger
	handler    Handler
	dlq        *DLQProducer
	maxRetries int
	backoff    time.Duration
	closeOnce  sync.Once
}

// NewConsumer creates a new Kafka consumer for a specific topic and group.
// dlq may be nil, in which case exhausted messages are dropped after logging.
func NewConsumer(cfg ConsumerConfig, handler Handler, dlq *DLQProducer, logger *slog.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: cfg.MinBytes,
		MaxBytes: cfg.MaxBytes,
	})

	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	backoff := cfg.RetryBackoff
	if backoff <= 0 {
		backoff = 100 * time.Millisecond
	}

	return &Consumer{
		reader:     r,
		logger:     logger,
		handler:    handler,
		dlq:        dlq,
		maxRetries: maxRetries,
		backoff:    backoff,
	}
}

// Start begins consuming messages. It blocks until the context is canceled.
func (c *Consumer) Start(ctx context.Context) error {
	cfg := c.reader.Config()
	c.logger.Info("consumer started",
		slog.String("topic", cfg.Topic),
		slog.String("group", cfg.GroupID),
	)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("consumer stopping", slog.String("topic", cfg.Topic))
			return c.Close()
		default:
			msg, err := c.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				c.logger.Error("failed to fetch message", slog.String("error", err.Error()))
				continue
			}

			ConsumerMessagesReceived.WithLabelValues(msg.Topic, cfg.GroupID).Inc()
			c.process(ctx, msg)
		}
	}
}

// process runs one message through unmarshal, retried handling, DLQ routing,
// and commit. Malformed payloads are committed without retry: they can never
// succeed, so redelivering them is pure waste.
func (c *Consumer) process(ctx context.Context, msg kafka.Message) {
	group := c.reader.Config().GroupID

	event, err := UnmarshalEvent(msg.Value)
	if err != nil {
		c.logger.Warn("dropping malformed message",
			slog.String("error", err.Error()),
			slog.String("topic", msg.Topic),
			slog.Int("partition", msg.Partition),
			slog.Int64("offset", msg.Offset),
		)
		ConsumerMessagesFailed.WithLabelValues(msg.Topic, group).Inc()
		c.commit(ctx, msg)
		return
	}

	start := time.Now()
	lastErr := RetryHandler(ctx, c.handler, event, c.maxRetries, c.backoff, c.logger.With(
		slog.String("topic", msg.Topic),
		slog.Int("partition", msg.Partition),
		slog.Int64("offset", msg.Offset),
	))
	ConsumerProcessingDuration.WithLabelValues(msg.Topic, group).Observe(time.Since(start).Seconds())

	if lastErr != nil {
		c.logger.Error("handler failed after all retries",
			slog.String("event_type", event.EventType),
			slog.String("aggregate_id", event.AggregateID),
			slog.String("error", lastErr.Error()),
			slog.String("topic", msg.Topic),
			slog.Int("partition", msg.Partition),
			slog.Int64("offset", msg.Offset),
			slog.Int("retries", c.maxRetries),
		)
		ConsumerMessagesFailed.WithLabelValues(msg.Topic, group).Inc()

		if c.dlq != nil {
			if dlqErr := c.dlq.Publish(ctx, msg, lastErr, group); dlqErr != nil {
				// Leave the message uncommitted so it is redelivered; losing
				// it entirely is worse than processing it twice.
				c.logger.Error("failed to dead-letter message, leaving uncommitted",
					slog.String("error", dlqErr.Error()),
				)
				return
			}
			ConsumerDLQPublished.WithLabelValues(msg.Topic, group).Inc()
		}

		c.commit(ctx, msg)
		return
	}

	ConsumerMessagesProcessed.WithLabelValues(msg.Topic, group).Inc()
	c.commit(ctx, msg)
}

func (c *Consumer) commit(ctx context.Context, msg kafka.Message) {
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		c.logger.Error("failed to commit message",
			slog.String("topic", msg.Topic),
			slog.Int64("offset", msg.Offset),
			slog.String("error", err.Error()),
		)
	}
}

// RetryHandler invokes handler up to maxRetries times with linear backoff
// (attempt n waits n * backoff). It returns nil on the first success, the
// last error once attempts are exhausted, or early if ctx is canceled.
func RetryHandler(ctx context.Context, handler Handler, event *Event, maxRetries int, backoff time.Duration, logger *slog.Logger) error {
	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		lastErr = handler(ctx, event)
		if lastErr == nil {
			return nil
		}

		logger.Warn("handler failed, will retry",
			slog.String("event_type", event.EventType),
			slog.String("aggregate_id", event.AggregateID),
			slog.String("error", lastErr.Error()),
			slog.Int("attempt", attempt),
			slog.Int("max_retries", maxRetries),
		)

		if attempt < maxRetries {
			select {
			case <-ctx.Done():
				return lastErr
			case <-time.After(time.Duration(attempt) * backoff):
			}
		}
	}
	return lastErr
}

// Close closes the consumer. It is safe to call multiple times.
func (c *Consumer) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.reader.Close()
	})
	return err
}
