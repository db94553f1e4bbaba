package detect

import (
	"context"
	"fmt"

	"github.com/DentaMind/SmartDentalAI-sub000/internal/audit"
	"github.com/DentaMind/SmartDentalAI-sub000/internal/config"
	"github.com/DentaMind/SmartDentalAI-sub000/internal/models"
)

// UnusualHoursDetector flags PHI access during the configured night window.
// The hour range wraps past midnight, so start=22 end=6 covers 22:00-05:59.
type UnusualHoursDetector struct {
	store audit.Store
	cfg   config.DetectionConfig
}

func NewUnusualHoursDetector(store audit.Store, cfg config.DetectionConfig) *UnusualHoursDetector {
	return &UnusualHoursDetector{store: store, cfg: cfg}
}

func (d *UnusualHoursDetector) Name() string { return NameUnusualHours }

func (d *UnusualHoursDetector) Detect(ctx context.Context, w Window) ([]models.Anomaly, error) {
	hours := audit.HourWindow{Start: d.cfg.UnusualHoursStart, End: d.cfg.UnusualHoursEnd}
	f := audit.Filter{
		From:              w.From,
		To:                w.To,
		PHIOnly:           true,
		AuthenticatedOnly: true,
		Hours:             &hours,
	}
	stats, err := d.store.DistinctCountGroupedBy(ctx, f,
		[]audit.Dimension{audit.DimensionUser}, audit.DimensionPatient)
	if err != nil {
		return nil, fmt.Errorf("failed to count after-hours PHI access: %w", err)
	}

	var anomalies []models.Anomaly
	for _, st := range stats {
		if st.Count <= int64(d.cfg.UnusualHoursMinEvents) {
			continue
		}
		severity := models.SeverityMedium
		if st.DistinctCount > int64(d.cfg.UnusualHoursHighPatients) {
			severity = models.SeverityHigh
		}
		anomalies = append(anomalies, models.Anomaly{
			Type:     models.AnomalyUnusualHours,
			Severity: severity,
			Description: fmt.Sprintf("user %s accessed PHI %d times between %02d:00 and %02d:00 (%d distinct patients)",
				st.UserID, st.Count, hours.Start, hours.End, st.DistinctCount),
			UserID: st.UserID,
			Details: map[string]interface{}{
				"event_count":       st.Count,
				"distinct_patients": st.DistinctCount,
				"window_start_hour": hours.Start,
				"window_end_hour":   hours.End,
				"first_event":       st.First,
				"last_event":        st.Last,
			},
		})
	}

	return anomalies, nil
}
