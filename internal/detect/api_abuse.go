package detect

import (
	"context"
	"fmt"

	"github.com/DentaMind/SmartDentalAI-sub000/internal/audit"
	"github.com/DentaMind/SmartDentalAI-sub000/internal/config"
	"github.com/DentaMind/SmartDentalAI-sub000/internal/models"
)

// APIAbuseDetector runs two independent checks: high-frequency calls against
// a single endpoint, and broad fast endpoint coverage (the scraping
// signature). Health and metrics paths are excluded from both.
type APIAbuseDetector struct {
	store audit.Store
	cfg   config.DetectionConfig
}

func NewAPIAbuseDetector(store audit.Store, cfg config.DetectionConfig) *APIAbuseDetector {
	return &APIAbuseDetector{store: store, cfg: cfg}
}

func (d *APIAbuseDetector) Name() string { return NameAPIAbuse }

func (d *APIAbuseDetector) Detect(ctx context.Context, w Window) ([]models.Anomaly, error) {
	f := audit.Filter{From: w.From, To: w.To, ExcludePaths: d.cfg.HealthPaths}

	rateStats, err := d.store.CountGroupedBy(ctx, f,
		[]audit.Dimension{audit.DimensionUser, audit.DimensionIP, audit.DimensionPath})
	if err != nil {
		return nil, fmt.Errorf("failed to group calls by endpoint: %w", err)
	}

	var anomalies []models.Anomaly
	for _, st := range rateStats {
		elapsed := st.Span().Minutes()
		if elapsed < 1 {
			elapsed = 1
		}
		rate := float64(st.Count) / elapsed
		if rate <= d.cfg.RatePerMinute {
			continue
		}
		severity := models.SeverityMedium
		if rate > d.cfg.RatePerMinuteHigh {
			severity = models.SeverityHigh
		}
		anomalies = append(anomalies, models.Anomaly{
			Type:     models.AnomalyAPIAbuse,
			Severity: severity,
			Description: fmt.Sprintf("%s hit %s %d times (%.1f calls/min)",
				callerLabel(st), st.Path, st.Count, rate),
			UserID:    st.UserID,
			IPAddress: st.IP,
			Details: map[string]interface{}{
				"path":             st.Path,
				"count":            st.Count,
				"calls_per_minute": rate,
				"elapsed_minutes":  elapsed,
			},
		})
	}

	scrapeStats, err := d.store.DistinctCountGroupedBy(ctx, f,
		[]audit.Dimension{audit.DimensionUser, audit.DimensionIP}, audit.DimensionPath)
	if err != nil {
		return nil, fmt.Errorf("failed to count distinct endpoints: %w", err)
	}
	for _, st := range scrapeStats {
		elapsed := st.Span().Minutes()
		if st.DistinctCount <= int64(d.cfg.ScrapeEndpointCount) || elapsed >= d.cfg.ScrapeWindowMinutes {
			continue
		}
		anomalies = append(anomalies, models.Anomaly{
			Type:     models.AnomalyAPIScraping,
			Severity: models.SeverityHigh,
			Description: fmt.Sprintf("%s touched %d distinct endpoints in %.1f minutes",
				callerLabel(st), st.DistinctCount, elapsed),
			UserID:    st.UserID,
			IPAddress: st.IP,
			Details: map[string]interface{}{
				"distinct_endpoints": st.DistinctCount,
				"request_count":      st.Count,
				"elapsed_minutes":    elapsed,
			},
		})
	}

	return anomalies, nil
}

func callerLabel(st audit.GroupStat) string {
	if st.UserID != "" {
		return fmt.Sprintf("user %s from %s", st.UserID, st.IP)
	}
	return fmt.Sprintf("anonymous client %s", st.IP)
}
