// Package alerts owns the persisted security-alert lifecycle: materializing
// anomalies into alert records, operator-driven status transitions, listing,
// export, and the periodic digest.
package alerts

import (
	"context"
	"errors"

	"github.com/DentaMind/SmartDentalAI-sub000/internal/models"
)

// ErrAlertNotFound indicates the requested alert does not exist.
var ErrAlertNotFound = errors.New("alert not found")

// Repository is the alert persistence contract.
type Repository interface {
	CreateAlert(ctx context.Context, alert *models.SecurityAlert) error
	GetAlertByID(ctx context.Context, id string) (*models.SecurityAlert, error)
	ListAlerts(ctx context.Context, req *models.ListAlertsRequest) ([]*models.SecurityAlert, int, error)
	UpdateAlert(ctx context.Context, alert *models.SecurityAlert) error

	// CountsByField returns alert counts for the digest, keyed by the given
	// field (severity, category or status), within [from, to).
	CountsByField(ctx context.Context, field string, req *models.ListAlertsRequest) (map[string]int, error)
}

// WebhookRepository persists webhook subscriptions for alert notifications.
type WebhookRepository interface {
	CreateSubscription(ctx context.Context, sub *models.WebhookSubscription) error
	DeleteSubscription(ctx context.Context, id string) error
	ListSubscriptions(ctx context.Context) ([]*models.WebhookSubscription, error)
}

// ErrSubscriptionNotFound indicates the webhook subscription does not exist.
var ErrSubscriptionNotFound = errors.New("webhook subscription not found")
