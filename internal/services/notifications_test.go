package services

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/temcen/homeser/internal/messaging"
)

func TestNotificationHub_PublishSubscribe(t *testing.T) {
	hub := NewNotificationHub(testLogger())

	a := hub.Subscribe(1, ChannelOrders)
	b := hub.Subscribe(1, ChannelOrders)
	other := hub.Subscribe(2, ChannelOrders)
	payments := hub.Subscribe(1, ChannelPayments)

	assert.Equal(t, 2, hub.Publish(1, ChannelOrders, []byte("hello")))
	assert.Equal(t, []byte("hello"), <-a.C)
	assert.Equal(t, []byte("hello"), <-b.C)
	assert.Empty(t, other.C)
	assert.Empty(t, payments.C)

	a.Close()
	a.Close()
	assert.Equal(t, 1, hub.SubscriberCount(1, ChannelOrders))

	_, open := <-a.C
	assert.False(t, open)
}

func TestNotificationHub_DropsSlowSubscriber(t *testing.T) {
	hub := NewNotificationHub(testLogger())
	sub := hub.Subscribe(1, ChannelOrders)

	for i := 0; i < subscriberBuffer; i++ {
		require.Equal(t, 1, hub.Publish(1, ChannelOrders, []byte("x")))
	}
	assert.Equal(t, 0, hub.Publish(1, ChannelOrders, []byte("overflow")))
	assert.Equal(t, 0, hub.SubscriberCount(1, ChannelOrders))

	drained := 0
	for range sub.C {
		drained++
	}
	assert.Equal(t, subscriberBuffer, drained)

	// Closing after the hub dropped it is safe.
	sub.Close()
}

func TestNotificationHub_HandleEvent(t *testing.T) {
	hub := NewNotificationHub(testLogger())
	orders := hub.Subscribe(5, ChannelOrders)
	payments := hub.Subscribe(5, ChannelPayments)

	event, err := messaging.NewEvent(messaging.EventPaymentCompleted, 5, map[string]string{"tran_id": "t"})
	require.NoError(t, err)
	require.NoError(t, hub.HandleEvent(context.Background(), event))

	require.Len(t, payments.C, 1)
	assert.Empty(t, orders.C)

	var n Notification
	require.NoError(t, json.Unmarshal(<-payments.C, &n))
	assert.Equal(t, messaging.EventPaymentCompleted, n.Type)
	assert.JSONEq(t, `{"tran_id":"t"}`, string(n.Data))

	review, err := messaging.NewEvent(messaging.EventReviewCreated, 5, nil)
	require.NoError(t, err)
	require.NoError(t, hub.HandleEvent(context.Background(), review))
	assert.Empty(t, orders.C)
	assert.Empty(t, payments.C)
}

func TestNotificationHub_Concurrent(t *testing.T) {
	hub := NewNotificationHub(testLogger())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			sub := hub.Subscribe(id%3, ChannelOrders)
			hub.Publish(id%3, ChannelOrders, []byte("m"))
			sub.Close()
		}(int64(i))
	}
	wg.Wait()

	for id := int64(0); id < 3; id++ {
		assert.Equal(t, 0, hub.SubscriberCount(id, ChannelOrders))
	}
}
