package detect

import (
	"context"
	"fmt"

	"github.com/DentaMind/SmartDentalAI-sub000/internal/audit"
	"github.com/DentaMind/SmartDentalAI-sub000/internal/config"
	"github.com/DentaMind/SmartDentalAI-sub000/internal/models"
)

// FailedLoginDetector flags credential-stuffing patterns: repeated failed
// authentication attempts grouped by source IP and, separately, by target
// user account.
type FailedLoginDetector struct {
	store audit.Store
	cfg   config.DetectionConfig
}

func NewFailedLoginDetector(store audit.Store, cfg config.DetectionConfig) *FailedLoginDetector {
	return &FailedLoginDetector{store: store, cfg: cfg}
}

func (d *FailedLoginDetector) Name() string { return NameFailedLogins }

func (d *FailedLoginDetector) Detect(ctx context.Context, w Window) ([]models.Anomaly, error) {
	base := audit.Filter{
		From:          w.From,
		To:            w.To,
		PathPrefix:    d.cfg.AuthPathPrefix,
		MinStatusCode: 400,
	}

	byIP, err := d.store.CountGroupedBy(ctx, base, []audit.Dimension{audit.DimensionIP})
	if err != nil {
		return nil, fmt.Errorf("failed to group login failures by IP: %w", err)
	}

	userFilter := base
	userFilter.AuthenticatedOnly = true
	byUser, err := d.store.CountGroupedBy(ctx, userFilter, []audit.Dimension{audit.DimensionUser})
	if err != nil {
		return nil, fmt.Errorf("failed to group login failures by user: %w", err)
	}

	var anomalies []models.Anomaly
	for _, st := range byIP {
		if st.IP == "" || st.Count < int64(d.cfg.FailedLogins) {
			continue
		}
		elapsed := st.Span().Minutes()
		severity := models.SeverityMedium
		if st.Count > int64(d.cfg.FailedLoginHighCount) {
			severity = models.SeverityHigh
		}
		anomalies = append(anomalies, models.Anomaly{
			Type:     models.AnomalyFailedLoginsIP,
			Severity: severity,
			Description: fmt.Sprintf("%d failed login attempts from IP %s within %.1f minutes",
				st.Count, st.IP, elapsed),
			IPAddress: st.IP,
			Details: map[string]interface{}{
				"count":           st.Count,
				"first_attempt":   st.First,
				"last_attempt":    st.Last,
				"elapsed_minutes": elapsed,
				"rapid_fire":      elapsed < d.cfg.RapidFireMinutes,
			},
		})
	}

	for _, st := range byUser {
		if st.Count < int64(d.cfg.FailedLogins) {
			continue
		}
		elapsed := st.Span().Minutes()
		severity := models.SeverityMedium
		if st.Count > int64(d.cfg.FailedLoginHighCount) || elapsed < d.cfg.RapidFireMinutes {
			severity = models.SeverityHigh
		}
		anomalies = append(anomalies, models.Anomaly{
			Type:     models.AnomalyFailedLoginsUser,
			Severity: severity,
			Description: fmt.Sprintf("%d failed login attempts against account %s within %.1f minutes",
				st.Count, st.UserID, elapsed),
			UserID: st.UserID,
			Details: map[string]interface{}{
				"count":           st.Count,
				"first_attempt":   st.First,
				"last_attempt":    st.Last,
				"elapsed_minutes": elapsed,
				"rapid_fire":      elapsed < d.cfg.RapidFireMinutes,
			},
		})
	}

	return anomalies, nil
}
