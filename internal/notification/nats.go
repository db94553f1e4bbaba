package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/DentaMind/SmartDentalAI-sub000/internal/models"
)

// NATSChannel publishes alerts onto a NATS subject so downstream consumers
// (SIEM forwarders, incident tooling) can subscribe without polling the API.
type NATSChannel struct {
	conn    *nats.Conn
	subject string
}

// NewNATSChannel connects to the NATS server and returns a channel
// publishing to the given subject.
func NewNATSChannel(url, subject string) (*NATSChannel, error) {
	conn, err := nats.Connect(url,
		nats.Name("dental-sentinel"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &NATSChannel{conn: conn, subject: subject}, nil
}

func (c *NATSChannel) Name() string { return "nats" }

// Notify publishes the alert as JSON.
func (c *NATSChannel) Notify(ctx context.Context, alert *models.SecurityAlert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}
	if err := c.conn.Publish(c.subject, payload); err != nil {
		return fmt.Errorf("failed to publish alert: %w", err)
	}
	return nil
}

// Close drains and closes the connection.
func (c *NATSChannel) Close() {
	if c.conn != nil {
		c.conn.Close()
	}
}
