package alerts

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DentaMind/SmartDentalAI-sub000/internal/models"
)

func testAnomaly(userID string, severity models.Severity) models.Anomaly {
	return models.Anomaly{
		Type:        models.AnomalyExcessiveAccess,
		Severity:    severity,
		Description: "user accessed too many patients",
		UserID:      userID,
		Details:     map[string]interface{}{"distinct_patients": 35},
	}
}

func TestMaterialize(t *testing.T) {
	svc := NewService(NewMemoryRepository())

	alert, err := svc.Materialize(context.Background(), testAnomaly("dentist1", models.SeverityMedium))
	require.NoError(t, err)

	assert.NotEmpty(t, alert.ID)
	assert.Equal(t, models.AlertStatusOpen, alert.Status)
	assert.Equal(t, models.AnomalyExcessiveAccess, alert.Category)
	assert.Equal(t, models.SeverityMedium, alert.Severity)
	require.NotNil(t, alert.UserID)
	assert.Equal(t, "dentist1", *alert.UserID)
	assert.Nil(t, alert.IPAddress, "empty identifiers stay null")
	assert.False(t, alert.Escalated)

	got, err := svc.Get(context.Background(), alert.ID)
	require.NoError(t, err)
	assert.Equal(t, alert.ID, got.ID)
}

func TestGetUnknownAlert(t *testing.T) {
	svc := NewService(NewMemoryRepository())

	_, err := svc.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrAlertNotFound)
}

func TestStatusLifecycle(t *testing.T) {
	tests := []struct {
		name    string
		path    []string
		wantErr bool
	}{
		{"investigate then resolve", []string{models.AlertStatusInvestigating, models.AlertStatusResolved}, false},
		{"dismiss directly", []string{models.AlertStatusDismissed}, false},
		{"resolve without investigating", []string{models.AlertStatusResolved}, true},
		{"reopen after dismissal", []string{models.AlertStatusDismissed, models.AlertStatusOpen}, true},
		{"dismiss while investigating", []string{models.AlertStatusInvestigating, models.AlertStatusDismissed}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(NewMemoryRepository())
			alert, err := svc.Materialize(context.Background(), testAnomaly("u1", models.SeverityHigh))
			require.NoError(t, err)

			var lastErr error
			for _, status := range tt.path {
				_, lastErr = svc.UpdateStatus(context.Background(), alert.ID,
					&models.UpdateAlertStatusRequest{Status: status})
				if lastErr != nil {
					break
				}
			}

			if tt.wantErr {
				assert.ErrorIs(t, lastErr, ErrInvalidTransition)
				return
			}
			require.NoError(t, lastErr)
		})
	}
}

func TestResolveSetsResolvedAtAndNotes(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	alert, err := svc.Materialize(context.Background(), testAnomaly("u1", models.SeverityHigh))
	require.NoError(t, err)

	_, err = svc.UpdateStatus(context.Background(), alert.ID,
		&models.UpdateAlertStatusRequest{Status: models.AlertStatusInvestigating})
	require.NoError(t, err)

	notes := "confirmed benign, after-hours emergency case"
	updated, err := svc.UpdateStatus(context.Background(), alert.ID,
		&models.UpdateAlertStatusRequest{Status: models.AlertStatusResolved, ResolutionNotes: &notes})
	require.NoError(t, err)

	assert.Equal(t, models.AlertStatusResolved, updated.Status)
	require.NotNil(t, updated.ResolvedAt)
	require.NotNil(t, updated.ResolutionNotes)
	assert.Equal(t, notes, *updated.ResolutionNotes)
}

func TestUpdateStatusUnknownAlert(t *testing.T) {
	svc := NewService(NewMemoryRepository())

	_, err := svc.UpdateStatus(context.Background(), "missing",
		&models.UpdateAlertStatusRequest{Status: models.AlertStatusInvestigating})
	assert.ErrorIs(t, err, ErrAlertNotFound)
}

func TestEscalateIsIdempotent(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	alert, err := svc.Materialize(context.Background(), testAnomaly("u1", models.SeverityHigh))
	require.NoError(t, err)

	first, err := svc.Escalate(context.Background(), alert.ID)
	require.NoError(t, err)
	assert.True(t, first.Escalated)

	second, err := svc.Escalate(context.Background(), alert.ID)
	require.NoError(t, err)
	assert.True(t, second.Escalated)
}

func TestListFiltersAndPaginates(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := svc.Materialize(ctx, testAnomaly(fmt.Sprintf("user-%d", i), models.SeverityMedium))
		require.NoError(t, err)
	}
	_, err := svc.Materialize(ctx, testAnomaly("vip", models.SeverityHigh))
	require.NoError(t, err)

	resp, err := svc.List(ctx, &models.ListAlertsRequest{Severity: "high"})
	require.NoError(t, err)
	require.Len(t, resp.Alerts, 1)
	require.NotNil(t, resp.Alerts[0].UserID)
	assert.Equal(t, "vip", *resp.Alerts[0].UserID)

	page1, err := svc.List(ctx, &models.ListAlertsRequest{Page: 1, Limit: 4})
	require.NoError(t, err)
	assert.Len(t, page1.Alerts, 4)
	assert.Equal(t, 6, page1.Pagination.Total)
	assert.Equal(t, 2, page1.Pagination.TotalPages)

	page2, err := svc.List(ctx, &models.ListAlertsRequest{Page: 2, Limit: 4})
	require.NoError(t, err)
	assert.Len(t, page2.Alerts, 2)
}

func TestDigest(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	ctx := context.Background()

	_, err := svc.Materialize(ctx, testAnomaly("u1", models.SeverityHigh))
	require.NoError(t, err)
	_, err = svc.Materialize(ctx, testAnomaly("u2", models.SeverityMedium))
	require.NoError(t, err)
	dismissed, err := svc.Materialize(ctx, testAnomaly("u3", models.SeverityMedium))
	require.NoError(t, err)

	_, err = svc.UpdateStatus(ctx, dismissed.ID,
		&models.UpdateAlertStatusRequest{Status: models.AlertStatusDismissed})
	require.NoError(t, err)

	from := time.Now().UTC().Add(-time.Hour)
	to := time.Now().UTC().Add(time.Hour)
	digest, err := svc.Digest(ctx, from, to)
	require.NoError(t, err)

	assert.Equal(t, 3, digest.Total)
	assert.Equal(t, 1, digest.BySeverity[models.SeverityHigh])
	assert.Equal(t, 2, digest.BySeverity[models.SeverityMedium])
	assert.Equal(t, 3, digest.ByCategory[models.AnomalyExcessiveAccess])
	assert.Equal(t, 1, digest.OpenHigh)
	assert.InDelta(t, 1.0/3.0, digest.ResolutionRate, 0.001)
}
