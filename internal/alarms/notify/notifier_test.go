package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	catalog "home-monitor/internal/catalog/domain"
	"home-monitor/internal/readings/application/events"
)

type stubParamReader struct {
	display *catalog.ParameterDisplay
	err     error
}

func (s stubParamReader) GetDisplay(_ context.Context, _ int64) (*catalog.ParameterDisplay, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.display, nil
}

type recordingChannel struct {
	sent []string
}

func (c *recordingChannel) Send(_ context.Context, content string) error {
	c.sent = append(c.sent, content)
	return nil
}

func activeDisplay() *catalog.ParameterDisplay {
	return &catalog.ParameterDisplay{
		ID:          7,
		Name:        "Temperature",
		Unit:        "C",
		DeviceName:  "Greenhouse Sensor",
		AlarmActive: true,
	}
}

func TestNotifyRendersMessage(t *testing.T) {
	channel := &recordingChannel{}
	notifier, err := NewNotifier(stubParamReader{display: activeDisplay()}, channel, nil, nil)
	if err != nil {
		t.Fatalf("NewNotifier: %v", err)
	}

	event := events.AlarmStateChanged{
		ParameterID: 7,
		Value:       32.5,
		Active:      true,
		OccurredAt:  time.Date(2026, 3, 1, 14, 30, 0, 0, time.UTC),
	}
	if err := notifier.Notify(context.Background(), event); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(channel.sent) != 1 {
		t.Fatalf("sent = %d messages, want 1", len(channel.sent))
	}

	content := channel.sent[0]
	for _, want := range []string{
		"Alarm Triggered: Temperature",
		"Temperature on Greenhouse Sensor.",
		"Alarm activated.",
		"Trigger: 32.5C.",
		"At: 01 Mar 14:30:00 PM",
	} {
		if !strings.Contains(content, want) {
			t.Fatalf("message missing %q:\n%s", want, content)
		}
	}
}

func TestNotifyUsesRowTimeWhenAvailable(t *testing.T) {
	display := activeDisplay()
	rowTime := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	display.AlarmUpdatedAt = &rowTime

	channel := &recordingChannel{}
	notifier, err := NewNotifier(stubParamReader{display: display}, channel, nil, nil)
	if err != nil {
		t.Fatalf("NewNotifier: %v", err)
	}

	event := events.AlarmStateChanged{
		ParameterID: 7,
		Value:       32.5,
		Active:      true,
		OccurredAt:  time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC),
	}
	if err := notifier.Notify(context.Background(), event); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(channel.sent) != 1 {
		t.Fatalf("sent = %d messages, want 1", len(channel.sent))
	}
	content := channel.sent[0]
	if !strings.Contains(content, "At: 01 May 10:00:00 AM") {
		t.Fatalf("message should carry the row's alarm time:\n%s", content)
	}
	if strings.Contains(content, "01 Apr") {
		t.Fatalf("message should not carry the event time:\n%s", content)
	}
}

func TestNotifySkipsWhenAlarmNoLongerActive(t *testing.T) {
	display := activeDisplay()
	display.AlarmActive = false
	channel := &recordingChannel{}
	notifier, err := NewNotifier(stubParamReader{display: display}, channel, nil, nil)
	if err != nil {
		t.Fatalf("NewNotifier: %v", err)
	}

	event := events.AlarmStateChanged{ParameterID: 7, Value: 32.5, Active: true, OccurredAt: time.Now().UTC()}
	if err := notifier.Notify(context.Background(), event); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(channel.sent) != 0 {
		t.Fatalf("expected no delivery for a cleared alarm, got %d", len(channel.sent))
	}
}

func TestNotifyPropagatesLookupError(t *testing.T) {
	notifier, err := NewNotifier(stubParamReader{err: catalog.ErrNotFound}, &recordingChannel{}, nil, nil)
	if err != nil {
		t.Fatalf("NewNotifier: %v", err)
	}
	event := events.AlarmStateChanged{ParameterID: 99}
	if err := notifier.Notify(context.Background(), event); err == nil {
		t.Fatal("expected error when the parameter cannot be loaded")
	}
}

func TestWebhookChannelPayload(t *testing.T) {
	payloadCh := make(chan webhookPayload, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		var payload webhookPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		payloadCh <- payload
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	channel, err := NewWebhookChannel(server.URL)
	if err != nil {
		t.Fatalf("NewWebhookChannel: %v", err)
	}
	if err := channel.Send(context.Background(), "Alarm Triggered: Temperature"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case payload := <-payloadCh:
		if payload.MsgType != "text" {
			t.Fatalf("msgtype = %q, want text", payload.MsgType)
		}
		if payload.Text.Content != "Alarm Triggered: Temperature" {
			t.Fatalf("content = %q", payload.Text.Content)
		}
	case <-time.After(time.Second):
		t.Fatal("webhook payload not received")
	}
}

func TestWebhookChannelNon2xxIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	channel, err := NewWebhookChannel(server.URL)
	if err != nil {
		t.Fatalf("NewWebhookChannel: %v", err)
	}
	if err := channel.Send(context.Background(), "anything"); err == nil {
		t.Fatal("expected error on non-2xx response")
	}
}

func TestCustomTemplate(t *testing.T) {
	tpl, err := NewTemplate("{{.Parameter}}|{{.Status}}|{{.TriggerValue}}")
	if err != nil {
		t.Fatalf("NewTemplate: %v", err)
	}
	content, err := tpl.Render(TemplateData{Parameter: "Temperature", Status: "activated", TriggerValue: "32.5C"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if content != "Temperature|activated|32.5C" {
		t.Fatalf("content = %q", content)
	}
}
