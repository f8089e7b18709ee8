// Package events publishes dispatch outcome events to RabbitMQ.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/MrSnakeDoc/dispatchprobe/internal/logger"
)

// Publisher emits events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, key string, env Envelope) error
	Close() error
}

// ConnectionOptions controls the broker connection.
type ConnectionOptions struct {
	URL           string
	Exchange      string
	RetryAttempts int
	Delay         time.Duration
	MaxDelay      time.Duration
}

type rmqPublisher struct {
	conn     *amqp.Connection
	exchange string
	log      logger.Logger
}

// New dials the broker, declares a durable topic exchange and returns a
// publisher using confirm mode.
func New(ctx context.Context, opts ConnectionOptions, log logger.Logger) (Publisher, error) {
	conn, err := DialWithRetry(ctx, opts, log)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.ExchangeDeclare(opts.Exchange, "topic", true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", opts.Exchange, err)
	}

	return &rmqPublisher{conn: conn, exchange: opts.Exchange, log: log}, nil
}

// DialWithRetry connects with exponential backoff, giving up after
// RetryAttempts or when ctx is cancelled.
func DialWithRetry(ctx context.Context, opts ConnectionOptions, log logger.Logger) (*amqp.Connection, error) {
	attempts := opts.RetryAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	sleep := opts.Delay
	for i := 1; i <= attempts; i++ {
		conn, err := amqp.Dial(opts.URL)
		if err == nil {
			if i > 1 {
				log.Info("rabbitmq connected", logger.Int("attempt", i))
			}
			return conn, nil
		}
		lastErr = err

		if i == attempts {
			break
		}

		log.Warn("rabbitmq dial failed",
			logger.Int("attempt", i),
			logger.Duration("sleep", sleep),
			logger.Error(err))

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, errors.New("dial cancelled: " + ctx.Err().Error())
		case <-timer.C:
		}

		sleep *= 2
		if opts.MaxDelay > 0 && sleep > opts.MaxDelay {
			sleep = opts.MaxDelay
		}
	}

	return nil, fmt.Errorf("failed to connect to rabbitmq after %d attempts: %w", attempts, lastErr)
}

// Publish sends env and waits for the broker confirmation.
func (r *rmqPublisher) Publish(ctx context.Context, key string, env Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	ch, err := r.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Confirm(false); err != nil {
		return fmt.Errorf("failed to enable confirm mode: %w", err)
	}

	msgID := env.Meta.ID
	if msgID == "" {
		msgID = uuid.NewString()
	}
	cid := ""
	if env.Meta.CorrelationID != nil {
		cid = *env.Meta.CorrelationID
	}

	confirm, err := ch.PublishWithDeferredConfirmWithContext(
		ctx, r.exchange, key, false, false,
		amqp.Publishing{
			ContentType:   "application/json",
			DeliveryMode:  amqp.Persistent,
			MessageId:     msgID,
			CorrelationId: cid,
			Timestamp:     env.Meta.Time,
			Type:          env.Meta.Type,
			Body:          body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", key, err)
	}

	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to confirm %s: %w", key, err)
	}
	if !acked {
		return fmt.Errorf("broker nacked %s", key)
	}

	r.log.Debug("event published",
		logger.String("key", key),
		logger.String("exchange", r.exchange),
		logger.String("id", msgID))
	return nil
}

// Ping reports whether the connection is still open.
func (r *rmqPublisher) Ping(_ context.Context) error {
	if r.conn.IsClosed() {
		return errors.New("rabbitmq connection closed")
	}
	return nil
}

func (r *rmqPublisher) Close() error {
	return r.conn.Close()
}

// NopPublisher drops every event. It is used when no broker is configured.
type NopPublisher struct {
	log logger.Logger
}

// NewNop returns a publisher that only logs at debug level.
func NewNop(log logger.Logger) *NopPublisher {
	return &NopPublisher{log: log}
}

func (p *NopPublisher) Publish(_ context.Context, key string, _ Envelope) error {
	p.log.Debug("no event broker configured, skipped publish", logger.String("key", key))
	return nil
}

func (p *NopPublisher) Close() error { return nil }
