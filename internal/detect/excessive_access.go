package detect

import (
	"context"
	"errors"
	"fmt"

	"github.com/DentaMind/SmartDentalAI-sub000/internal/audit"
	"github.com/DentaMind/SmartDentalAI-sub000/internal/baseline"
	"github.com/DentaMind/SmartDentalAI-sub000/internal/config"
	"github.com/DentaMind/SmartDentalAI-sub000/internal/models"
)

// ExcessiveAccessDetector flags users touching an abnormal number of distinct
// patient records. It compares against the role baseline when one exists and
// falls back to an absolute threshold otherwise, so new or low-volume roles
// keep detection coverage.
type ExcessiveAccessDetector struct {
	store audit.Store
	calc  *baseline.Calculator
	cfg   config.DetectionConfig
}

func NewExcessiveAccessDetector(store audit.Store, calc *baseline.Calculator, cfg config.DetectionConfig) *ExcessiveAccessDetector {
	return &ExcessiveAccessDetector{store: store, calc: calc, cfg: cfg}
}

func (d *ExcessiveAccessDetector) Name() string { return NameExcessiveAccess }

func (d *ExcessiveAccessDetector) Detect(ctx context.Context, w Window) ([]models.Anomaly, error) {
	f := audit.Filter{
		From:              w.From,
		To:                w.To,
		PatientsOnly:      true,
		AuthenticatedOnly: true,
	}
	stats, err := d.store.DistinctCountGroupedBy(ctx, f,
		[]audit.Dimension{audit.DimensionUser, audit.DimensionRole}, audit.DimensionPatient)
	if err != nil {
		return nil, fmt.Errorf("failed to count patient access per user: %w", err)
	}

	ref := baseline.ReferencePeriod(w.From, d.cfg.BaselineDays)

	var anomalies []models.Anomaly
	for _, st := range stats {
		count := st.DistinctCount
		if count <= int64(d.cfg.PatientAccessFloor) {
			continue
		}

		rb, err := d.calc.RoleBaseline(ctx, st.Role, ref)
		if err != nil && !errors.Is(err, baseline.ErrNoBaseline) {
			return nil, fmt.Errorf("failed to compute role baseline for %q: %w", st.Role, err)
		}

		if rb != nil {
			z, ok := rb.ZScore(float64(count))
			if ok {
				if z > d.cfg.StdDevMultiplier {
					anomalies = append(anomalies, d.statistical(st, z, rb))
				}
				continue
			}
			// Flat role history: z-score undefined, use the absolute fallback.
		}

		if count >= int64(d.cfg.PatientAccessThreshold) {
			anomalies = append(anomalies, d.absolute(st))
		}
	}

	return anomalies, nil
}

func (d *ExcessiveAccessDetector) statistical(st audit.GroupStat, z float64, rb *baseline.Stats) models.Anomaly {
	severity := models.SeverityMedium
	if z > d.cfg.HighZScore || st.DistinctCount > int64(d.cfg.PatientAccessHighCount) {
		severity = models.SeverityHigh
	}
	return models.Anomaly{
		Type:     models.AnomalyExcessiveAccess,
		Severity: severity,
		Description: fmt.Sprintf("user %s (%s) accessed %d distinct patients, %.1f standard deviations above the role norm of %.1f",
			st.UserID, st.Role, st.DistinctCount, z, rb.Mean),
		UserID: st.UserID,
		Details: map[string]interface{}{
			"role":              st.Role,
			"distinct_patients": st.DistinctCount,
			"z_score":           z,
			"role_mean":         rb.Mean,
			"role_stddev":       rb.StdDev,
			"baseline_samples":  rb.Samples,
		},
	}
}

func (d *ExcessiveAccessDetector) absolute(st audit.GroupStat) models.Anomaly {
	severity := models.SeverityMedium
	if st.DistinctCount > int64(d.cfg.PatientAccessHighCount) {
		severity = models.SeverityHigh
	}
	return models.Anomaly{
		Type:     models.AnomalyManyPatients,
		Severity: severity,
		Description: fmt.Sprintf("user %s (%s) accessed %d distinct patients with no role baseline available",
			st.UserID, st.Role, st.DistinctCount),
		UserID: st.UserID,
		Details: map[string]interface{}{
			"role":              st.Role,
			"distinct_patients": st.DistinctCount,
			"threshold":         d.cfg.PatientAccessThreshold,
		},
	}
}
