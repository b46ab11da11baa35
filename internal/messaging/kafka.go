package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/temcen/homeser/internal/config"
)

const (
	EventOrderCreated       = "order.created"
	EventOrderStatusChanged = "order.status_changed"
	EventPaymentCompleted   = "payment.completed"
	EventPaymentFailed      = "payment.failed"
	EventPaymentRefunded    = "payment.refunded"
	EventPaymentDisputed    = "payment.disputed"
	EventReviewCreated      = "review.created"
	// Consumed by the mailer, which owns delivery of the reset link.
	EventPasswordResetRequested = "user.password_reset_requested"

	dlqSuffix  = ".dlq"
	maxRetries = 3
)

type Event struct {
	ID         uuid.UUID       `json:"id"`
	Type       string          `json:"type"`
	UserID     int64           `json:"user_id"`
	Payload    json.RawMessage `json:"payload"`
	Timestamp  time.Time       `json:"timestamp"`
	RetryCount int             `json:"retry_count"`
}

func NewEvent(eventType string, userID int64, payload any) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}
	return Event{
		ID:        uuid.New(),
		Type:      eventType,
		UserID:    userID,
		Payload:   raw,
		Timestamp: time.Now().UTC(),
	}, nil
}

// Handler reacts to a delivered event.
type Handler func(ctx context.Context, event Event) error

// EventBus publishes domain events to Kafka. Without brokers it delivers
// to the registered handlers in-process instead.
type EventBus struct {
	brokers   []string
	writer    *kafka.Writer
	reader    *kafka.Reader
	topics    map[string]string
	logger    *logrus.Logger
	baseDelay time.Duration

	mu       sync.RWMutex
	handlers []Handler
}

func NewEventBus(cfg *config.Config, logger *logrus.Logger) *EventBus {
	bus := &EventBus{
		topics: map[string]string{
			"order":   cfg.Kafka.Topics.Orders,
			"payment": cfg.Kafka.Topics.Payments,
			"review":  cfg.Kafka.Topics.Reviews,
			"user":    cfg.Kafka.Topics.Users,
		},
		logger:    logger,
		baseDelay: time.Second,
	}

	if !cfg.Kafka.Enabled || len(cfg.Kafka.Brokers) == 0 {
		logger.Info("Kafka disabled, events are delivered in-process")
		return bus
	}

	bus.brokers = cfg.Kafka.Brokers
	bus.writer = &kafka.Writer{
		Addr:         kafka.TCP(cfg.Kafka.Brokers...),
		Balancer:     &kafka.Hash{}, // Key by user id so a user's events stay ordered
		RequiredAcks: kafka.RequireOne,
		Async:        false,
		BatchTimeout: 10 * time.Millisecond,
		BatchSize:    100,
	}

	// Every instance needs every order/payment event to reach its own
	// websocket clients, so the group id is per host.
	host, _ := os.Hostname()
	bus.reader = kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Kafka.Brokers,
		GroupID:        "homeser-notify-" + host,
		GroupTopics:    []string{cfg.Kafka.Topics.Orders, cfg.Kafka.Topics.Payments},
		MinBytes:       1,
		MaxBytes:       10e6, // 10MB
		CommitInterval: time.Second,
		StartOffset:    kafka.LastOffset,
	})

	return bus
}

func (b *EventBus) Enabled() bool {
	return b.writer != nil
}

// Subscribe registers a handler for delivered events.
func (b *EventBus) Subscribe(h Handler) {
	b.mu.Lock()
	b.handlers = append(b.handlers, h)
	b.mu.Unlock()
}

func (b *EventBus) topicFor(eventType string) string {
	prefix, _, _ := strings.Cut(eventType, ".")
	return b.topics[prefix]
}

// Publish never fails the caller's request: errors are logged and returned
// for callers that care.
func (b *EventBus) Publish(ctx context.Context, event Event) error {
	if b.writer == nil {
		b.dispatch(ctx, event)
		return nil
	}

	topic := b.topicFor(event.Type)
	if topic == "" {
		return fmt.Errorf("no topic for event type %q", event.Type)
	}

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	message := kafka.Message{
		Topic: topic,
		Key:   []byte(strconv.FormatInt(event.UserID, 10)),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(event.ID.String())},
			{Key: "event_type", Value: []byte(event.Type)},
			{Key: "timestamp", Value: []byte(event.Timestamp.Format(time.RFC3339))},
		},
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := b.writer.WriteMessages(ctx, message); err != nil {
		b.logger.WithError(err).WithField("event_type", event.Type).Error("Failed to publish event to Kafka")
		return fmt.Errorf("failed to write event to Kafka: %w", err)
	}

	b.logger.WithFields(logrus.Fields{
		"event_id":   event.ID,
		"event_type": event.Type,
		"topic":      topic,
	}).Debug("Event published to Kafka")

	return nil
}

func (b *EventBus) dispatch(ctx context.Context, event Event) {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers...)
	b.mu.RUnlock()

	for _, h := range handlers {
		if err := b.processWithRetry(ctx, event, h); err != nil {
			b.logger.WithError(err).WithField("event_type", event.Type).Error("Event handler failed")
		}
	}
}

// Consume reads events from Kafka until ctx is cancelled. It is a no-op
// when the bus runs in-process.
func (b *EventBus) Consume(ctx context.Context) error {
	if b.reader == nil {
		<-ctx.Done()
		return ctx.Err()
	}

	for {
		message, err := b.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			b.logger.WithError(err).Error("Failed to read event from Kafka")
			continue
		}

		var event Event
		if err := json.Unmarshal(message.Value, &event); err != nil {
			b.logger.WithError(err).Error("Failed to unmarshal Kafka event")
			continue
		}

		b.mu.RLock()
		handlers := append([]Handler(nil), b.handlers...)
		b.mu.RUnlock()

		for _, h := range handlers {
			if err := b.processWithRetry(ctx, event, h); err != nil {
				b.logger.WithError(err).WithField("event_id", event.ID).Error("Failed to process event after retries")
				if dlqErr := b.sendToDLQ(ctx, message.Topic, event, err); dlqErr != nil {
					b.logger.WithError(dlqErr).Error("Failed to send event to DLQ")
				}
			}
		}
	}
}

func (b *EventBus) processWithRetry(ctx context.Context, event Event, handler Handler) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			// Exponential backoff
			delay := b.baseDelay * time.Duration(1<<uint(attempt-1))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		event.RetryCount = attempt
		err := handler(ctx, event)
		if err == nil {
			return nil
		}

		b.logger.WithError(err).WithFields(logrus.Fields{
			"event_id": event.ID,
			"attempt":  attempt,
		}).Warn("Event handling failed")

		if attempt == maxRetries {
			return fmt.Errorf("max retries exceeded: %w", err)
		}
	}

	return fmt.Errorf("unexpected retry loop exit")
}

func (b *EventBus) sendToDLQ(ctx context.Context, topic string, event Event, originalError error) error {
	dlqBytes, err := json.Marshal(map[string]interface{}{
		"original_event": event,
		"error":          originalError.Error(),
		"dlq_timestamp":  time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal DLQ message: %w", err)
	}

	message := kafka.Message{
		Topic: topic + dlqSuffix,
		Key:   []byte(event.ID.String()),
		Value: dlqBytes,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(event.ID.String())},
			{Key: "original_topic", Value: []byte(topic)},
			{Key: "error", Value: []byte(originalError.Error())},
		},
	}

	if err := b.writer.WriteMessages(ctx, message); err != nil {
		return fmt.Errorf("failed to write event to DLQ: %w", err)
	}
	return nil
}

// Ping dials the first broker; used by the health check.
func (b *EventBus) Ping(ctx context.Context) error {
	if b.writer == nil {
		return nil
	}
	conn, err := kafka.DialContext(ctx, "tcp", b.brokers[0])
	if err != nil {
		return err
	}
	return conn.Close()
}

func (b *EventBus) Close() error {
	var errs []string

	if b.writer != nil {
		if err := b.writer.Close(); err != nil {
			errs = append(errs, fmt.Sprintf("producer: %v", err))
		}
	}
	if b.reader != nil {
		if err := b.reader.Close(); err != nil {
			errs = append(errs, fmt.Sprintf("consumer: %v", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors closing event bus: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Stats returns Kafka reader metrics for monitoring.
func (b *EventBus) Stats() map[string]interface{} {
	if b.reader == nil {
		return map[string]interface{}{"enabled": false}
	}
	stats := b.reader.Stats()
	return map[string]interface{}{
		"enabled":       true,
		"consumer_lag":  stats.Lag,
		"messages_read": stats.Messages,
		"rebalances":    stats.Rebalances,
		"errors":        stats.Errors,
	}
}
