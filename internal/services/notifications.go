package services

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/temcen/homeser/internal/messaging"
)

const (
	ChannelOrders   = "orders"
	ChannelPayments = "payments"

	subscriberBuffer = 16
)

type Notification struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

type Subscription struct {
	C <-chan []byte

	hub *NotificationHub
	key subscriberKey
	ch  chan []byte
}

func (s *Subscription) Close() {
	s.hub.unsubscribe(s.key, s.ch)
}

type subscriberKey struct {
	userID  int64
	channel string
}

// NotificationHub fans messages out to the websocket connections of a user.
type NotificationHub struct {
	mu          sync.Mutex
	subscribers map[subscriberKey]map[chan []byte]struct{}
	logger      *logrus.Logger
}

func NewNotificationHub(logger *logrus.Logger) *NotificationHub {
	return &NotificationHub{
		subscribers: make(map[subscriberKey]map[chan []byte]struct{}),
		logger:      logger,
	}
}

func (h *NotificationHub) Subscribe(userID int64, channel string) *Subscription {
	key := subscriberKey{userID: userID, channel: channel}
	ch := make(chan []byte, subscriberBuffer)

	h.mu.Lock()
	if h.subscribers[key] == nil {
		h.subscribers[key] = make(map[chan []byte]struct{})
	}
	h.subscribers[key][ch] = struct{}{}
	h.mu.Unlock()

	return &Subscription{C: ch, hub: h, key: key, ch: ch}
}

func (h *NotificationHub) unsubscribe(key subscriberKey, ch chan []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.subscribers[key]
	if !ok {
		return
	}
	if _, ok := subs[ch]; !ok {
		return
	}
	delete(subs, ch)
	close(ch)
	if len(subs) == 0 {
		delete(h.subscribers, key)
	}
}

// Publish delivers msg without blocking. A subscriber whose buffer is full
// is dropped and its channel closed.
func (h *NotificationHub) Publish(userID int64, channel string, msg []byte) int {
	key := subscriberKey{userID: userID, channel: channel}

	h.mu.Lock()
	defer h.mu.Unlock()

	delivered := 0
	for ch := range h.subscribers[key] {
		select {
		case ch <- msg:
			delivered++
		default:
			h.logger.WithField("user_id", userID).Warn("Dropping slow notification subscriber")
			delete(h.subscribers[key], ch)
			close(ch)
		}
	}
	if len(h.subscribers[key]) == 0 {
		delete(h.subscribers, key)
	}
	return delivered
}

func (h *NotificationHub) SubscriberCount(userID int64, channel string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers[subscriberKey{userID: userID, channel: channel}])
}

// HandleEvent relays order and payment events to the owning user's sockets.
func (h *NotificationHub) HandleEvent(_ context.Context, event messaging.Event) error {
	var channel string
	switch {
	case strings.HasPrefix(event.Type, "order."):
		channel = ChannelOrders
	case strings.HasPrefix(event.Type, "payment."):
		channel = ChannelPayments
	default:
		return nil
	}

	msg, err := json.Marshal(Notification{
		Type:      event.Type,
		Data:      event.Payload,
		Timestamp: event.Timestamp,
	})
	if err != nil {
		return err
	}

	h.Publish(event.UserID, channel, msg)
	return nil
}
