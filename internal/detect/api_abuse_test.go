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

func apiCall(ts time.Time, userID, ip, path string) models.AuditLogEntry {
	return models.AuditLogEntry{
		Timestamp:  ts,
		UserID:     userID,
		IPAddress:  ip,
		HTTPMethod: "GET",
		Path:       path,
		StatusCode: 200,
	}
}

func TestAPIAbuseHighFrequency(t *testing.T) {
	w := testWindow()

	tests := []struct {
		name         string
		calls        int
		span         time.Duration
		wantAnomaly  bool
		wantSeverity models.Severity
	}{
		{"normal traffic", 50, 10 * time.Minute, false, ""},
		{"above rate", 120, 3 * time.Minute, true, models.SeverityMedium},
		{"hammering", 350, 3 * time.Minute, true, models.SeverityHigh},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := audit.NewMemoryStore(nil)
			step := tt.span / time.Duration(tt.calls)
			for i := 0; i < tt.calls; i++ {
				store.Append(apiCall(w.From.Add(time.Duration(i)*step), "bot1", "203.0.113.50", "/api/patients"))
			}

			d := NewAPIAbuseDetector(store, testCfg())
			anomalies, err := d.Detect(context.Background(), w)
			require.NoError(t, err)

			if !tt.wantAnomaly {
				assert.Empty(t, anomalies)
				return
			}
			require.Len(t, anomalies, 1)
			a := anomalies[0]
			assert.Equal(t, models.AnomalyAPIAbuse, a.Type)
			assert.Equal(t, tt.wantSeverity, a.Severity)
			assert.Equal(t, "/api/patients", a.Details["path"])
		})
	}
}

func TestAPIAbuseShortBurstUsesMinimumElapsed(t *testing.T) {
	w := testWindow()
	store := audit.NewMemoryStore(nil)
	// 25 calls in 10 seconds: with a raw elapsed time the rate would
	// explode, with the 1-minute floor it is 25/min and stays quiet.
	for i := 0; i < 25; i++ {
		store.Append(apiCall(w.From.Add(time.Duration(i)*400*time.Millisecond), "bot2", "203.0.113.51", "/api/claims"))
	}

	d := NewAPIAbuseDetector(store, testCfg())
	anomalies, err := d.Detect(context.Background(), w)
	require.NoError(t, err)
	assert.Empty(t, anomalies)
}

func TestAPIScraping(t *testing.T) {
	w := testWindow()
	store := audit.NewMemoryStore(nil)
	// 25 distinct endpoints in under five minutes, one call each.
	for i := 0; i < 25; i++ {
		store.Append(apiCall(w.From.Add(time.Duration(i)*10*time.Second), "", "198.51.100.77",
			fmt.Sprintf("/api/patients/%d", i)))
	}

	d := NewAPIAbuseDetector(store, testCfg())
	anomalies, err := d.Detect(context.Background(), w)
	require.NoError(t, err)

	require.Len(t, anomalies, 1)
	a := anomalies[0]
	assert.Equal(t, models.AnomalyAPIScraping, a.Type)
	assert.Equal(t, models.SeverityHigh, a.Severity)
	assert.Equal(t, "198.51.100.77", a.IPAddress)
	assert.Equal(t, int64(25), a.Details["distinct_endpoints"])
}

func TestAPIScrapingSlowCrawlNotFlagged(t *testing.T) {
	w := testWindow()
	store := audit.NewMemoryStore(nil)
	// Same endpoint breadth spread over an hour: not the scraping signature.
	for i := 0; i < 25; i++ {
		store.Append(apiCall(w.From.Add(time.Duration(i)*150*time.Second), "", "198.51.100.78",
			fmt.Sprintf("/api/patients/%d", i)))
	}

	d := NewAPIAbuseDetector(store, testCfg())
	anomalies, err := d.Detect(context.Background(), w)
	require.NoError(t, err)
	assert.Empty(t, anomalies)
}

func TestAPIAbuseIgnoresHealthPaths(t *testing.T) {
	w := testWindow()
	store := audit.NewMemoryStore(nil)
	for i := 0; i < 500; i++ {
		store.Append(apiCall(w.From.Add(time.Duration(i)*time.Second), "", "10.0.0.1", "/healthz"))
	}

	d := NewAPIAbuseDetector(store, testCfg())
	anomalies, err := d.Detect(context.Background(), w)
	require.NoError(t, err)
	assert.Empty(t, anomalies)
}
