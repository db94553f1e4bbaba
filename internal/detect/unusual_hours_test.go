package detect

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DentaMind/SmartDentalAI-sub000/internal/audit"
	"github.com/DentaMind/SmartDentalAI-sub000/internal/models"
)

func phiAccess(ts time.Time, userID, patientID string) models.AuditLogEntry {
	return models.AuditLogEntry{
		Timestamp:   ts,
		UserID:      userID,
		UserRole:    "dentist",
		IPAddress:   "10.0.0.9",
		HTTPMethod:  "GET",
		Path:        "/api/patients/" + patientID + "/chart",
		StatusCode:  200,
		PatientID:   patientID,
		IsPHIAccess: true,
	}
}

func TestUnusualHoursWraparound(t *testing.T) {
	w := testWindow()
	store := audit.NewMemoryStore(nil)

	// Two events at 23:30 and two at 05:30 both land inside the 22..6
	// window; four events cross the minimum.
	lateNight := w.From.Add(23*time.Hour + 30*time.Minute)
	earlyMorning := w.From.Add(5*time.Hour + 30*time.Minute)
	store.Append(
		phiAccess(lateNight, "night1", "p1"),
		phiAccess(lateNight.Add(time.Minute), "night1", "p1"),
		phiAccess(earlyMorning, "night1", "p2"),
		phiAccess(earlyMorning.Add(time.Minute), "night1", "p2"),
	)

	// Noon activity never counts, however much there is.
	noon := w.From.Add(12 * time.Hour)
	for i := 0; i < 8; i++ {
		store.Append(phiAccess(noon.Add(time.Duration(i)*time.Minute), "day1", fmt.Sprintf("p%d", i)))
	}

	d := NewUnusualHoursDetector(store, testCfg())
	anomalies, err := d.Detect(context.Background(), w)
	require.NoError(t, err)

	require.Len(t, anomalies, 1)
	a := anomalies[0]
	assert.Equal(t, models.AnomalyUnusualHours, a.Type)
	assert.Equal(t, "night1", a.UserID)
	assert.Equal(t, models.SeverityMedium, a.Severity)
	assert.Equal(t, int64(4), a.Details["event_count"])
	assert.Equal(t, int64(2), a.Details["distinct_patients"])
}

func TestUnusualHoursHighOnManyPatients(t *testing.T) {
	w := testWindow()
	store := audit.NewMemoryStore(nil)

	base := w.From.Add(23 * time.Hour)
	for i := 0; i < 6; i++ {
		store.Append(phiAccess(base.Add(time.Duration(i)*time.Minute), "night2", fmt.Sprintf("p%d", i)))
	}

	d := NewUnusualHoursDetector(store, testCfg())
	anomalies, err := d.Detect(context.Background(), w)
	require.NoError(t, err)

	require.Len(t, anomalies, 1)
	assert.Equal(t, models.SeverityHigh, anomalies[0].Severity, "six distinct patients after hours")
}

func TestUnusualHoursBelowMinimumEvents(t *testing.T) {
	w := testWindow()
	store := audit.NewMemoryStore(nil)

	base := w.From.Add(23 * time.Hour)
	for i := 0; i < 3; i++ {
		store.Append(phiAccess(base.Add(time.Duration(i)*time.Minute), "night3", "p1"))
	}

	d := NewUnusualHoursDetector(store, testCfg())
	anomalies, err := d.Detect(context.Background(), w)
	require.NoError(t, err)
	assert.Empty(t, anomalies, "three events does not cross the > 3 minimum")
}
