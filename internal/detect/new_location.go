package detect

import (
	"context"
	"fmt"

	"github.com/DentaMind/SmartDentalAI-sub000/internal/audit"
	"github.com/DentaMind/SmartDentalAI-sub000/internal/baseline"
	"github.com/DentaMind/SmartDentalAI-sub000/internal/config"
	"github.com/DentaMind/SmartDentalAI-sub000/internal/models"
)

// NewLocationDetector flags logins from IP addresses a user has never used
// during the reference period. Users with no IP history are skipped: without
// a baseline there is no notion of "new", and flagging first-ever logins
// would be pure noise.
type NewLocationDetector struct {
	store audit.Store
	calc  *baseline.Calculator
	cfg   config.DetectionConfig
}

func NewNewLocationDetector(store audit.Store, calc *baseline.Calculator, cfg config.DetectionConfig) *NewLocationDetector {
	return &NewLocationDetector{store: store, calc: calc, cfg: cfg}
}

func (d *NewLocationDetector) Name() string { return NameNewLocation }

func (d *NewLocationDetector) Detect(ctx context.Context, w Window) ([]models.Anomaly, error) {
	f := audit.Filter{From: w.From, To: w.To, AuthenticatedOnly: true}
	stats, err := d.store.CountGroupedBy(ctx, f,
		[]audit.Dimension{audit.DimensionUser, audit.DimensionIP})
	if err != nil {
		return nil, fmt.Errorf("failed to group activity by user and IP: %w", err)
	}

	phiFilter := f
	phiFilter.PHIOnly = true
	phiStats, err := d.store.CountGroupedBy(ctx, phiFilter,
		[]audit.Dimension{audit.DimensionUser, audit.DimensionIP})
	if err != nil {
		return nil, fmt.Errorf("failed to group PHI access by user and IP: %w", err)
	}
	touchedPHI := make(map[audit.Group]bool, len(phiStats))
	for _, st := range phiStats {
		touchedPHI[st.Group] = true
	}

	ref := baseline.ReferencePeriod(w.From, d.cfg.BaselineDays)

	var anomalies []models.Anomaly
	for _, st := range stats {
		if st.IP == "" {
			continue
		}
		known, err := d.calc.KnownIPs(ctx, st.UserID, ref)
		if err != nil {
			return nil, fmt.Errorf("failed to load IP history for user %s: %w", st.UserID, err)
		}
		if len(known) == 0 {
			continue
		}
		if contains(known, st.IP) {
			continue
		}

		severity := models.SeverityMedium
		if touchedPHI[st.Group] {
			severity = models.SeverityHigh
		}
		anomalies = append(anomalies, models.Anomaly{
			Type:     models.AnomalyNewIPAddress,
			Severity: severity,
			Description: fmt.Sprintf("user %s active from previously unseen IP %s (%d requests)",
				st.UserID, st.IP, st.Count),
			UserID:    st.UserID,
			IPAddress: st.IP,
			Details: map[string]interface{}{
				"request_count": st.Count,
				"known_ips":     len(known),
				"phi_accessed":  touchedPHI[st.Group],
				"first_seen":    st.First,
				"last_seen":     st.Last,
			},
		})
	}

	return anomalies, nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
