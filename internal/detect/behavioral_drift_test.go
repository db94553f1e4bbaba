package detect

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DentaMind/SmartDentalAI-sub000/internal/audit"
	"github.com/DentaMind/SmartDentalAI-sub000/internal/baseline"
	"github.com/DentaMind/SmartDentalAI-sub000/internal/models"
)

func newDrift(store *audit.MemoryStore) *BehavioralDriftDetector {
	cfg := testCfg()
	return NewBehavioralDriftDetector(store, baseline.NewCalculator(store, cfg.BaselineMinSamples), cfg)
}

// seedUserDays writes one reference day per entry of requests: the user makes
// requests[i] plain calls on historical day i.
func seedUserDays(store *audit.MemoryStore, w Window, userID string, requests []int) {
	for i, n := range requests {
		day := w.From.AddDate(0, 0, -(i + 2))
		for r := 0; r < n; r++ {
			store.Append(models.AuditLogEntry{
				Timestamp:  day.Add(time.Duration(r) * time.Minute),
				UserID:     userID,
				UserRole:   "hygienist",
				IPAddress:  "10.0.0.3",
				HTTPMethod: "GET",
				Path:       "/api/appointments",
				StatusCode: 200,
			})
		}
	}
}

func TestBehavioralDriftFlagsRequestSpike(t *testing.T) {
	w := testWindow()
	store := audit.NewMemoryStore(nil)
	// Baseline request counts 10, 12, 14, 12: mean 12, stddev ~1.41. The
	// patient and error dimensions are flat at zero and must stay silent.
	seedUserDays(store, w, "hyg9", []int{10, 12, 14, 12})

	for r := 0; r < 40; r++ {
		store.Append(models.AuditLogEntry{
			Timestamp:  w.From.Add(time.Duration(r) * time.Minute),
			UserID:     "hyg9",
			UserRole:   "hygienist",
			IPAddress:  "10.0.0.3",
			HTTPMethod: "GET",
			Path:       "/api/appointments",
			StatusCode: 200,
		})
	}

	anomalies, err := newDrift(store).Detect(context.Background(), w)
	require.NoError(t, err)

	require.Len(t, anomalies, 1)
	a := anomalies[0]
	assert.Equal(t, models.AnomalyBehavioralDrift, a.Type)
	assert.Equal(t, models.SeverityHigh, a.Severity, "|z| far above 5")
	assert.Equal(t, "hyg9", a.UserID)
	assert.Equal(t, "request_count", a.Details["primary_dimension"])

	flagged := a.Details["anomalous_dimensions"].([]map[string]interface{})
	require.Len(t, flagged, 1, "flat zero-stddev dimensions never flag")
	assert.Equal(t, "request_count", flagged[0]["dimension"])
}

func TestBehavioralDriftSkipsUsersWithoutBaseline(t *testing.T) {
	w := testWindow()
	store := audit.NewMemoryStore(nil)
	// Only window activity, no reference history.
	for r := 0; r < 50; r++ {
		store.Append(models.AuditLogEntry{
			Timestamp:  w.From.Add(time.Duration(r) * time.Minute),
			UserID:     "fresh1",
			UserRole:   "dentist",
			IPAddress:  "10.0.0.4",
			HTTPMethod: "GET",
			Path:       "/api/appointments",
			StatusCode: 200,
		})
	}

	anomalies, err := newDrift(store).Detect(context.Background(), w)
	require.NoError(t, err)
	assert.Empty(t, anomalies)
}

func TestBehavioralDriftStableBehaviorStaysQuiet(t *testing.T) {
	w := testWindow()
	store := audit.NewMemoryStore(nil)
	seedUserDays(store, w, "hyg9", []int{10, 12, 14, 12})

	// Window activity inside the normal band.
	for r := 0; r < 13; r++ {
		store.Append(models.AuditLogEntry{
			Timestamp:  w.From.Add(time.Duration(r) * time.Minute),
			UserID:     "hyg9",
			UserRole:   "hygienist",
			IPAddress:  "10.0.0.3",
			HTTPMethod: "GET",
			Path:       "/api/appointments",
			StatusCode: 200,
		})
	}

	anomalies, err := newDrift(store).Detect(context.Background(), w)
	require.NoError(t, err)
	assert.Empty(t, anomalies)
}
