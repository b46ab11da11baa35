package services

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/temcen/homeser/internal/messaging"
)

type EventPublisher interface {
	Publish(ctx context.Context, event messaging.Event) error
}

// publishEvent is fire-and-forget: failures are logged, never returned.
func publishEvent(ctx context.Context, bus EventPublisher, logger *logrus.Logger, eventType string, userID int64, payload any) {
	if bus == nil {
		return
	}
	event, err := messaging.NewEvent(eventType, userID, payload)
	if err != nil {
		logger.WithError(err).WithField("event_type", eventType).Error("Failed to build event")
		return
	}
	if err := bus.Publish(ctx, event); err != nil {
		logger.WithError(err).WithField("event_type", eventType).Warn("Failed to publish event")
	}
}
