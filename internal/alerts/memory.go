package alerts

import (
	"context"
	"sort"
	"sync"

	"github.com/DentaMind/SmartDentalAI-sub000/internal/models"
)

// MemoryRepository is an in-memory Repository and WebhookRepository for tests
// and local development.
type MemoryRepository struct {
	mu     sync.RWMutex
	alerts map[string]*models.SecurityAlert
	subs   map[string]*models.WebhookSubscription
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		alerts: make(map[string]*models.SecurityAlert),
		subs:   make(map[string]*models.WebhookSubscription),
	}
}

func copyAlert(a *models.SecurityAlert) *models.SecurityAlert {
	cp := *a
	return &cp
}

// CreateAlert stores a new alert.
func (r *MemoryRepository) CreateAlert(ctx context.Context, a *models.SecurityAlert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts[a.ID] = copyAlert(a)
	return nil
}

// GetAlertByID retrieves one alert.
func (r *MemoryRepository) GetAlertByID(ctx context.Context, id string) (*models.SecurityAlert, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.alerts[id]
	if !ok {
		return nil, ErrAlertNotFound
	}
	return copyAlert(a), nil
}

func matchesFilter(a *models.SecurityAlert, req *models.ListAlertsRequest) bool {
	if req.Category != "" && string(a.Category) != req.Category {
		return false
	}
	if req.Severity != "" && string(a.Severity) != req.Severity {
		return false
	}
	if req.Status != "" && a.Status != req.Status {
		return false
	}
	if req.UserID != "" && (a.UserID == nil || *a.UserID != req.UserID) {
		return false
	}
	if req.IPAddress != "" && (a.IPAddress == nil || *a.IPAddress != req.IPAddress) {
		return false
	}
	if req.PatientID != "" && (a.PatientID == nil || *a.PatientID != req.PatientID) {
		return false
	}
	if !req.From.IsZero() && a.CreatedAt.Before(req.From) {
		return false
	}
	if !req.To.IsZero() && !a.CreatedAt.Before(req.To) {
		return false
	}
	return true
}

func (r *MemoryRepository) filtered(req *models.ListAlertsRequest) []*models.SecurityAlert {
	matched := []*models.SecurityAlert{}
	for _, a := range r.alerts {
		if matchesFilter(a, req) {
			matched = append(matched, copyAlert(a))
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	return matched
}

// ListAlerts retrieves a filtered, paginated listing ordered newest first.
func (r *MemoryRepository) ListAlerts(ctx context.Context, req *models.ListAlertsRequest) ([]*models.SecurityAlert, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := r.filtered(req)
	total := len(matched)

	start := (req.Page - 1) * req.Limit
	if start >= total {
		return []*models.SecurityAlert{}, total, nil
	}
	end := start + req.Limit
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

// UpdateAlert persists alert changes.
func (r *MemoryRepository) UpdateAlert(ctx context.Context, a *models.SecurityAlert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.alerts[a.ID]; !ok {
		return ErrAlertNotFound
	}
	r.alerts[a.ID] = copyAlert(a)
	return nil
}

// CountsByField returns alert counts grouped by severity, category or status.
func (r *MemoryRepository) CountsByField(ctx context.Context, field string, req *models.ListAlertsRequest) (map[string]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[string]int)
	for _, a := range r.filtered(req) {
		switch field {
		case "severity":
			counts[string(a.Severity)]++
		case "category":
			counts[string(a.Category)]++
		case "status":
			counts[a.Status]++
		}
	}
	return counts, nil
}

// CreateSubscription registers a webhook destination.
func (r *MemoryRepository) CreateSubscription(ctx context.Context, sub *models.WebhookSubscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *sub
	r.subs[sub.ID] = &cp
	return nil
}

// DeleteSubscription removes a webhook destination.
func (r *MemoryRepository) DeleteSubscription(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.subs[id]; !ok {
		return ErrSubscriptionNotFound
	}
	delete(r.subs, id)
	return nil
}

// ListSubscriptions returns all registered webhook destinations.
func (r *MemoryRepository) ListSubscriptions(ctx context.Context) ([]*models.WebhookSubscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	subs := []*models.WebhookSubscription{}
	for _, sub := range r.subs {
		cp := *sub
		subs = append(subs, &cp)
	}
	sort.Slice(subs, func(i, j int) bool {
		return subs[i].CreatedAt.Before(subs[j].CreatedAt)
	})
	return subs, nil
}
