package interfaces

import (
	"context"
	"errors"

	"home-monitor/internal/alarms/notify"
	"home-monitor/internal/readings/application/events"
)

// AlarmStateChangedConsumer adapts alarm state change events into the notifier.
type AlarmStateChangedConsumer struct {
	notifier *notify.Notifier
}

// NewAlarmStateChangedConsumer constructs a consumer.
func NewAlarmStateChangedConsumer(notifier *notify.Notifier) (*AlarmStateChangedConsumer, error) {
	if notifier == nil {
		return nil, errors.New("alarms consumer: nil notifier")
	}
	return &AlarmStateChangedConsumer{notifier: notifier}, nil
}

// Consume handles an alarm state change event.
func (c *AlarmStateChangedConsumer) Consume(ctx context.Context, event events.AlarmStateChanged) error {
	return c.notifier.Notify(ctx, event)
}
