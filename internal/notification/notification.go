// Package notification delivers materialized alerts to external channels.
// Delivery is best-effort: failures are logged and counted, never retried
// indefinitely, and never block alert creation.
package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/DentaMind/SmartDentalAI-sub000/internal/alerts"
	"github.com/DentaMind/SmartDentalAI-sub000/internal/metrics"
	"github.com/DentaMind/SmartDentalAI-sub000/internal/models"
)

// Channel delivers one alert to one destination kind.
type Channel interface {
	Name() string
	Notify(ctx context.Context, alert *models.SecurityAlert) error
}

// Dispatcher fans alerts out to every configured channel, filtered by a
// minimum severity.
type Dispatcher struct {
	channels    []Channel
	minSeverity models.Severity
}

// NewDispatcher creates a dispatcher over the given channels.
func NewDispatcher(minSeverity models.Severity, channels ...Channel) *Dispatcher {
	return &Dispatcher{channels: channels, minSeverity: minSeverity}
}

// Dispatch delivers each alert at or above the minimum severity to every
// channel. Channel failures are logged and do not stop delivery to the rest.
func (d *Dispatcher) Dispatch(ctx context.Context, created []*models.SecurityAlert) {
	for _, alert := range created {
		if models.SeverityRank(alert.Severity) > models.SeverityRank(d.minSeverity) {
			continue
		}
		for _, ch := range d.channels {
			if err := ch.Notify(ctx, alert); err != nil {
				log.Printf("notification via %s failed for alert %s: %v", ch.Name(), alert.ID, err)
				metrics.NotificationErrors.WithLabelValues(ch.Name()).Inc()
				continue
			}
			metrics.NotificationsSent.WithLabelValues(ch.Name()).Inc()
		}
	}
}

// WebhookChannel posts alerts as JSON to every registered subscription whose
// own minimum severity admits the alert.
type WebhookChannel struct {
	repo   alerts.WebhookRepository
	client *http.Client
}

// NewWebhookChannel creates a webhook channel over the subscription
// repository.
func NewWebhookChannel(repo alerts.WebhookRepository, timeout time.Duration) *WebhookChannel {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookChannel{
		repo:   repo,
		client: &http.Client{Timeout: timeout},
	}
}

func (c *WebhookChannel) Name() string { return "webhook" }

// Notify posts the alert to each matching subscription. Delivery continues
// past individual endpoint failures; the first error is returned so the
// dispatcher can count it.
func (c *WebhookChannel) Notify(ctx context.Context, alert *models.SecurityAlert) error {
	subs, err := c.repo.ListSubscriptions(ctx)
	if err != nil {
		return fmt.Errorf("failed to list webhook subscriptions: %w", err)
	}

	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	var firstErr error
	for _, sub := range subs {
		if models.SeverityRank(alert.Severity) > models.SeverityRank(sub.MinSeverity) {
			continue
		}
		if err := c.post(ctx, sub.URL, payload); err != nil {
			log.Printf("webhook delivery to %s failed: %v", sub.URL, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (c *WebhookChannel) post(ctx context.Context, url string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to deliver webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook endpoint returned %d", resp.StatusCode)
	}
	return nil
}

// LogChannel writes alerts to the process log. Always configured so high
// severity findings are visible even with no webhooks registered.
type LogChannel struct{}

func NewLogChannel() *LogChannel { return &LogChannel{} }

func (c *LogChannel) Name() string { return "log" }

func (c *LogChannel) Notify(ctx context.Context, alert *models.SecurityAlert) error {
	log.Printf("SECURITY ALERT [%s/%s] %s (id=%s)",
		alert.Severity, alert.Category, alert.Description, alert.ID)
	return nil
}
