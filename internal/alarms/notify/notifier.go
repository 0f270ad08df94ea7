package notify

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	catalog "home-monitor/internal/catalog/domain"
	"home-monitor/internal/observability/metrics"
	"home-monitor/internal/readings/application/events"
)

// humanTimeFormat is the timestamp layout used in message bodies.
const humanTimeFormat = "02 Jan 15:04:05 PM"

// ParameterReader loads the display view of a parameter.
type ParameterReader interface {
	GetDisplay(ctx context.Context, id int64) (*catalog.ParameterDisplay, error)
}

// Notifier turns alarm state change events into outbound messages.
//
// Delivery is best effort and reads the parameter row as it stands at send
// time: an alarm cleared between commit and delivery produces no message.
type Notifier struct {
	params   ParameterReader
	channel  Channel
	template *Template
	logger   *zap.Logger
}

// NewNotifier constructs an alarm notifier.
func NewNotifier(params ParameterReader, channel Channel, template *Template, logger *zap.Logger) (*Notifier, error) {
	if params == nil {
		return nil, errors.New("alarm notifier: nil parameter reader")
	}
	if channel == nil {
		return nil, errors.New("alarm notifier: nil channel")
	}
	if template == nil {
		defaultTemplate, err := NewTemplate("")
		if err != nil {
			return nil, err
		}
		template = defaultTemplate
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{
		params:   params,
		channel:  channel,
		template: template,
		logger:   logger,
	}, nil
}

// Notify renders and delivers a message for the event. A parameter whose
// alarm is no longer active at delivery time is skipped without error.
func (n *Notifier) Notify(ctx context.Context, event events.AlarmStateChanged) error {
	display, err := n.params.GetDisplay(ctx, event.ParameterID)
	if err != nil {
		metrics.IncNotification(metrics.ResultError)
		return fmt.Errorf("alarm notifier: load parameter %d: %w", event.ParameterID, err)
	}
	if !display.AlarmActive {
		n.logger.Info("alarm notifier: alarm no longer active, skipping",
			zap.Int64("parameter_id", event.ParameterID))
		metrics.IncNotification(metrics.ResultSkipped)
		return nil
	}

	// The message reflects the row as it stands now, so the time line comes
	// from the row's alarm timestamp, not from when the event was scheduled.
	stateTime := event.OccurredAt
	if display.AlarmUpdatedAt != nil {
		stateTime = *display.AlarmUpdatedAt
	}
	data := TemplateData{
		Parameter:    display.Name,
		Device:       display.DeviceName,
		Status:       statusLabel(event.Active),
		TriggerValue: formatValue(event.Value, display.Unit),
		Time:         stateTime.UTC().Format(humanTimeFormat),
	}
	content, err := n.template.Render(data)
	if err != nil {
		metrics.IncNotification(metrics.ResultError)
		return fmt.Errorf("alarm notifier: render: %w", err)
	}
	if err := n.channel.Send(ctx, content); err != nil {
		metrics.IncNotification(metrics.ResultError)
		return fmt.Errorf("alarm notifier: send: %w", err)
	}

	n.logger.Info("alarm notifier: delivered",
		zap.Int64("parameter_id", event.ParameterID),
		zap.Bool("active", event.Active))
	metrics.IncNotification(metrics.ResultSuccess)
	return nil
}

func statusLabel(active bool) string {
	if active {
		return "activated"
	}
	return "deactivated"
}

func formatValue(value float64, unit string) string {
	if unit == "" {
		return fmt.Sprintf("%g", value)
	}
	return fmt.Sprintf("%g%s", value, unit)
}
