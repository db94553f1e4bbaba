package detect

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/DentaMind/SmartDentalAI-sub000/internal/audit"
	"github.com/DentaMind/SmartDentalAI-sub000/internal/baseline"
	"github.com/DentaMind/SmartDentalAI-sub000/internal/config"
	"github.com/DentaMind/SmartDentalAI-sub000/internal/models"
)

// BehavioralDriftDetector compares each active user's window behavior against
// their own historical daily baseline across five dimensions. A drifting user
// is flagged once, with every anomalous dimension listed and the strongest
// one (by |z|) named in the description.
type BehavioralDriftDetector struct {
	store audit.Store
	calc  *baseline.Calculator
	cfg   config.DetectionConfig
}

func NewBehavioralDriftDetector(store audit.Store, calc *baseline.Calculator, cfg config.DetectionConfig) *BehavioralDriftDetector {
	return &BehavioralDriftDetector{store: store, calc: calc, cfg: cfg}
}

func (d *BehavioralDriftDetector) Name() string { return NameBehavioralDrift }

type driftDimension struct {
	name     string
	observed float64
	stats    baseline.Stats
}

func (d *BehavioralDriftDetector) Detect(ctx context.Context, w Window) ([]models.Anomaly, error) {
	aggs, err := d.store.WindowAggregates(ctx, w.From, w.To)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate user activity: %w", err)
	}

	ref := baseline.ReferencePeriod(w.From, d.cfg.BaselineDays)

	var anomalies []models.Anomaly
	for _, agg := range aggs {
		ub, err := d.calc.UserBaseline(ctx, agg.UserID, ref)
		if errors.Is(err, baseline.ErrNoBaseline) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to compute baseline for user %s: %w", agg.UserID, err)
		}

		dims := []driftDimension{
			{"request_count", agg.RequestCount, ub.RequestCount},
			{"distinct_patients", agg.DistinctPatients, ub.DistinctPatients},
			{"phi_access_count", agg.PHIAccessCount, ub.PHIAccessCount},
			{"error_count", agg.ErrorCount, ub.ErrorCount},
			{"avg_duration_ms", agg.AvgDurationMS, ub.AvgDurationMS},
		}

		var (
			flagged  []map[string]interface{}
			primary  string
			primaryZ float64
			maxAbsZ  float64
		)
		for _, dim := range dims {
			z, ok := dim.stats.ZScore(dim.observed)
			if !ok || math.Abs(z) <= d.cfg.StdDevMultiplier {
				continue
			}
			flagged = append(flagged, map[string]interface{}{
				"dimension": dim.name,
				"observed":  dim.observed,
				"mean":      dim.stats.Mean,
				"stddev":    dim.stats.StdDev,
				"z_score":   z,
			})
			if math.Abs(z) > maxAbsZ {
				maxAbsZ = math.Abs(z)
				primary = dim.name
				primaryZ = z
			}
		}
		if len(flagged) == 0 {
			continue
		}

		severity := models.SeverityMedium
		if len(flagged) >= d.cfg.DriftHighDimensions || maxAbsZ > d.cfg.HighZScore {
			severity = models.SeverityHigh
		}
		anomalies = append(anomalies, models.Anomaly{
			Type:     models.AnomalyBehavioralDrift,
			Severity: severity,
			Description: fmt.Sprintf("user %s (%s) deviates from their baseline in %d dimension(s), most strongly %s (z=%.1f)",
				agg.UserID, agg.Role, len(flagged), primary, primaryZ),
			UserID: agg.UserID,
			Details: map[string]interface{}{
				"role":                 agg.Role,
				"anomalous_dimensions": flagged,
				"primary_dimension":    primary,
				"primary_z_score":      primaryZ,
			},
		})
	}

	return anomalies, nil
}
