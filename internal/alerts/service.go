package alerts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/DentaMind/SmartDentalAI-sub000/internal/metrics"
	"github.com/DentaMind/SmartDentalAI-sub000/internal/models"
)

// ErrInvalidTransition indicates a status change the lifecycle does not
// allow.
var ErrInvalidTransition = errors.New("invalid alert status transition")

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// validTransitions encodes the operator-driven lifecycle:
// open -> investigating -> resolved, or open -> dismissed.
var validTransitions = map[string][]string{
	models.AlertStatusOpen:          {models.AlertStatusInvestigating, models.AlertStatusDismissed},
	models.AlertStatusInvestigating: {models.AlertStatusResolved},
}

// Service implements alert materialization and the operator lifecycle.
type Service struct {
	repo Repository
}

// NewService creates an alert service over the given repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Materialize persists an anomaly as a new open alert and returns the
// created record.
func (s *Service) Materialize(ctx context.Context, a models.Anomaly) (*models.SecurityAlert, error) {
	now := time.Now().UTC()
	alert := &models.SecurityAlert{
		ID:          uuid.Must(uuid.NewV7()).String(),
		Category:    a.Type,
		Severity:    a.Severity,
		Status:      models.AlertStatusOpen,
		Description: a.Description,
		Details:     a.Details,
		UserID:      optional(a.UserID),
		IPAddress:   optional(a.IPAddress),
		PatientID:   optional(a.PatientID),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.CreateAlert(ctx, alert); err != nil {
		return nil, err
	}
	metrics.AlertsCreated.WithLabelValues(string(alert.Severity)).Inc()
	return alert, nil
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

// Get retrieves one alert by ID.
func (s *Service) Get(ctx context.Context, id string) (*models.SecurityAlert, error) {
	return s.repo.GetAlertByID(ctx, id)
}

// List retrieves a filtered, paginated alert listing.
func (s *Service) List(ctx context.Context, req *models.ListAlertsRequest) (*models.ListAlertsResponse, error) {
	if req.Page < 1 {
		req.Page = 1
	}
	if req.Limit < 1 {
		req.Limit = defaultPageSize
	}
	if req.Limit > maxPageSize {
		req.Limit = maxPageSize
	}

	alerts, total, err := s.repo.ListAlerts(ctx, req)
	if err != nil {
		return nil, err
	}

	totalPages := total / req.Limit
	if total%req.Limit > 0 {
		totalPages++
	}
	return &models.ListAlertsResponse{
		Alerts: alerts,
		Pagination: models.Pagination{
			Page:       req.Page,
			Limit:      req.Limit,
			Total:      total,
			TotalPages: totalPages,
		},
	}, nil
}

// UpdateStatus applies an operator status transition.
func (s *Service) UpdateStatus(ctx context.Context, id string, req *models.UpdateAlertStatusRequest) (*models.SecurityAlert, error) {
	alert, err := s.repo.GetAlertByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if !transitionAllowed(alert.Status, req.Status) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, alert.Status, req.Status)
	}

	now := time.Now().UTC()
	alert.Status = req.Status
	alert.UpdatedAt = now
	if req.ResolutionNotes != nil {
		alert.ResolutionNotes = req.ResolutionNotes
	}
	if req.Status == models.AlertStatusResolved || req.Status == models.AlertStatusDismissed {
		alert.ResolvedAt = &now
	}

	if err := s.repo.UpdateAlert(ctx, alert); err != nil {
		return nil, err
	}
	return alert, nil
}

func transitionAllowed(from, to string) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Escalate marks an alert as escalated. Escalation is orthogonal to the
// status lifecycle and is idempotent.
func (s *Service) Escalate(ctx context.Context, id string) (*models.SecurityAlert, error) {
	alert, err := s.repo.GetAlertByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if alert.Escalated {
		return alert, nil
	}

	alert.Escalated = true
	alert.UpdatedAt = time.Now().UTC()
	if err := s.repo.UpdateAlert(ctx, alert); err != nil {
		return nil, err
	}
	return alert, nil
}

// Categories returns the alert category catalog.
func (s *Service) Categories() []models.AlertCategory {
	return models.AlertCategories()
}

// Digest summarizes alert volume and resolution over [from, to).
func (s *Service) Digest(ctx context.Context, from, to time.Time) (*models.Digest, error) {
	req := &models.ListAlertsRequest{From: from, To: to}

	byStatus, err := s.repo.CountsByField(ctx, "status", req)
	if err != nil {
		return nil, err
	}
	bySeverityRaw, err := s.repo.CountsByField(ctx, "severity", req)
	if err != nil {
		return nil, err
	}
	byCategoryRaw, err := s.repo.CountsByField(ctx, "category", req)
	if err != nil {
		return nil, err
	}

	highReq := *req
	highReq.Severity = string(models.SeverityHigh)
	highByStatus, err := s.repo.CountsByField(ctx, "status", &highReq)
	if err != nil {
		return nil, err
	}

	digest := &models.Digest{
		From:       from,
		To:         to,
		BySeverity: make(map[models.Severity]int, len(bySeverityRaw)),
		ByCategory: make(map[models.AnomalyType]int, len(byCategoryRaw)),
		ByStatus:   byStatus,
		OpenHigh:   highByStatus[models.AlertStatusOpen],
	}
	for k, v := range bySeverityRaw {
		digest.BySeverity[models.Severity(k)] = v
	}
	for k, v := range byCategoryRaw {
		digest.ByCategory[models.AnomalyType(k)] = v
	}
	for _, v := range byStatus {
		digest.Total += v
	}
	if digest.Total > 0 {
		closed := byStatus[models.AlertStatusResolved] + byStatus[models.AlertStatusDismissed]
		digest.ResolutionRate = float64(closed) / float64(digest.Total)
	}
	return digest, nil
}
