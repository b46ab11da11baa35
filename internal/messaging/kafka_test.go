package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/temcen/homeser/internal/config"
)

func testBus(t *testing.T) *EventBus {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	cfg := &config.Config{}
	cfg.Kafka.Topics.Orders = "homeser.orders"
	cfg.Kafka.Topics.Payments = "homeser.payments"
	cfg.Kafka.Topics.Reviews = "homeser.reviews"
	cfg.Kafka.Topics.Users = "homeser.users"

	bus := NewEventBus(cfg, logger)
	bus.baseDelay = time.Millisecond
	return bus
}

func TestNewEvent(t *testing.T) {
	event, err := NewEvent(EventOrderCreated, 7, map[string]any{"order_id": "abc", "total": 105.0})
	require.NoError(t, err)

	assert.Equal(t, EventOrderCreated, event.Type)
	assert.Equal(t, int64(7), event.UserID)
	assert.JSONEq(t, `{"order_id":"abc","total":105}`, string(event.Payload))
	assert.False(t, event.Timestamp.IsZero())

	_, err = NewEvent(EventOrderCreated, 7, make(chan int))
	assert.Error(t, err)
}

func TestEventBus_TopicRouting(t *testing.T) {
	bus := testBus(t)

	assert.Equal(t, "homeser.orders", bus.topicFor(EventOrderStatusChanged))
	assert.Equal(t, "homeser.payments", bus.topicFor(EventPaymentFailed))
	assert.Equal(t, "homeser.reviews", bus.topicFor(EventReviewCreated))
	assert.Equal(t, "homeser.payments", bus.topicFor(EventPaymentRefunded))
	assert.Equal(t, "homeser.users", bus.topicFor(EventPasswordResetRequested))
	assert.Empty(t, bus.topicFor("unknown.thing"))
}

func TestEventBus_InProcessDelivery(t *testing.T) {
	bus := testBus(t)
	require.False(t, bus.Enabled())

	var got []Event
	bus.Subscribe(func(_ context.Context, e Event) error {
		got = append(got, e)
		return nil
	})

	event, err := NewEvent(EventPaymentCompleted, 3, map[string]string{"tran_id": "t1"})
	require.NoError(t, err)
	require.NoError(t, bus.Publish(context.Background(), event))

	require.Len(t, got, 1)
	assert.Equal(t, event.ID, got[0].ID)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(got[0].Payload, &payload))
	assert.Equal(t, "t1", payload["tran_id"])
}

func TestEventBus_RetryThenGiveUp(t *testing.T) {
	bus := testBus(t)

	attempts := 0
	err := bus.processWithRetry(context.Background(), Event{Type: EventOrderCreated}, func(context.Context, Event) error {
		attempts++
		return errors.New("boom")
	})
	require.Error(t, err)
	assert.Equal(t, maxRetries+1, attempts)

	attempts = 0
	err = bus.processWithRetry(context.Background(), Event{}, func(_ context.Context, e Event) error {
		attempts++
		if e.RetryCount < 2 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestEventBus_ConsumeDisabledReturnsOnCancel(t *testing.T) {
	bus := testBus(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, bus.Consume(ctx), context.Canceled)
	assert.NoError(t, bus.Close())
	assert.Equal(t, false, bus.Stats()["enabled"])
}
