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

func loginFailure(ts time.Time, ip, userID string) models.AuditLogEntry {
	return models.AuditLogEntry{
		Timestamp:  ts,
		UserID:     userID,
		IPAddress:  ip,
		HTTPMethod: "POST",
		Path:       "/api/auth/login",
		StatusCode: 401,
	}
}

func TestFailedLoginsByIP(t *testing.T) {
	w := testWindow()

	tests := []struct {
		name         string
		count        int
		spacing      time.Duration
		wantAnomaly  bool
		wantSeverity models.Severity
	}{
		{"below threshold", 4, 30 * time.Second, false, ""},
		{"at threshold rapid", 6, 30 * time.Second, true, models.SeverityMedium},
		{"above high count", 12, 30 * time.Second, true, models.SeverityHigh},
		{"slow spread stays medium", 8, 90 * time.Minute, true, models.SeverityMedium},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := audit.NewMemoryStore(nil)
			for i := 0; i < tt.count; i++ {
				store.Append(loginFailure(w.From.Add(time.Hour+time.Duration(i)*tt.spacing), "203.0.113.7", ""))
			}

			d := NewFailedLoginDetector(store, testCfg())
			anomalies, err := d.Detect(context.Background(), w)
			require.NoError(t, err)

			if !tt.wantAnomaly {
				assert.Empty(t, anomalies)
				return
			}
			require.Len(t, anomalies, 1)
			a := anomalies[0]
			assert.Equal(t, models.AnomalyFailedLoginsIP, a.Type)
			assert.Equal(t, tt.wantSeverity, a.Severity)
			assert.Equal(t, "203.0.113.7", a.IPAddress)
			assert.Equal(t, int64(tt.count), a.Details["count"])
		})
	}
}

func TestFailedLoginsByUserRapidFire(t *testing.T) {
	w := testWindow()
	store := audit.NewMemoryStore(nil)
	// Six failures against one account from six different IPs inside two
	// minutes: no single IP crosses the threshold, the account does.
	for i := 0; i < 6; i++ {
		ip := fmt.Sprintf("198.51.100.%d", i+1)
		store.Append(loginFailure(w.From.Add(time.Duration(i)*20*time.Second), ip, "drsmith"))
	}

	d := NewFailedLoginDetector(store, testCfg())
	anomalies, err := d.Detect(context.Background(), w)
	require.NoError(t, err)

	require.Len(t, anomalies, 1)
	a := anomalies[0]
	assert.Equal(t, models.AnomalyFailedLoginsUser, a.Type)
	assert.Equal(t, models.SeverityHigh, a.Severity, "rapid-fire account attack escalates")
	assert.Equal(t, "drsmith", a.UserID)
	assert.Equal(t, true, a.Details["rapid_fire"])
}

func TestFailedLoginsIgnoresSuccessesAndOtherPaths(t *testing.T) {
	w := testWindow()
	store := audit.NewMemoryStore(nil)
	for i := 0; i < 10; i++ {
		ts := w.From.Add(time.Duration(i) * time.Minute)
		// Successful logins and failures off the auth path never count.
		store.Append(models.AuditLogEntry{
			Timestamp: ts, IPAddress: "203.0.113.7", HTTPMethod: "POST",
			Path: "/api/auth/login", StatusCode: 200,
		})
		store.Append(models.AuditLogEntry{
			Timestamp: ts, IPAddress: "203.0.113.7", HTTPMethod: "GET",
			Path: "/api/patients/p1", StatusCode: 404,
		})
	}

	d := NewFailedLoginDetector(store, testCfg())
	anomalies, err := d.Detect(context.Background(), w)
	require.NoError(t, err)
	assert.Empty(t, anomalies)
}
