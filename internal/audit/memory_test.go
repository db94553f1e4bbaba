package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DentaMind/SmartDentalAI-sub000/internal/models"
)

var base = time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)

func entry(offset time.Duration, user, ip, path string, status int) models.AuditLogEntry {
	return models.AuditLogEntry{
		Timestamp:  base.Add(offset),
		UserID:     user,
		IPAddress:  ip,
		HTTPMethod: "GET",
		Path:       path,
		StatusCode: status,
	}
}

func TestHourWindowContains(t *testing.T) {
	tests := []struct {
		name   string
		window HourWindow
		hour   int
		want   bool
	}{
		{"daytime window includes start", HourWindow{Start: 9, End: 17}, 9, true},
		{"daytime window excludes end", HourWindow{Start: 9, End: 17}, 17, false},
		{"daytime window excludes night", HourWindow{Start: 9, End: 17}, 3, false},
		{"wraparound includes late evening", HourWindow{Start: 22, End: 6}, 23, true},
		{"wraparound includes early morning", HourWindow{Start: 22, End: 6}, 5, true},
		{"wraparound includes midnight", HourWindow{Start: 22, End: 6}, 0, true},
		{"wraparound excludes end hour", HourWindow{Start: 22, End: 6}, 6, false},
		{"wraparound excludes afternoon", HourWindow{Start: 22, End: 6}, 14, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.window.Contains(tt.hour))
		})
	}
}

func TestCountGroupedByHalfOpenRange(t *testing.T) {
	store := NewMemoryStore([]models.AuditLogEntry{
		entry(0, "u1", "10.0.0.1", "/api/patients", 200),
		entry(time.Hour, "u1", "10.0.0.1", "/api/patients", 200),
		entry(2*time.Hour, "u1", "10.0.0.1", "/api/patients", 200),
	})

	// Exactly one hour: the entry at the upper bound is excluded.
	stats, err := store.CountGroupedBy(context.Background(),
		Filter{From: base, To: base.Add(time.Hour)}, []Dimension{DimensionUser})
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, int64(1), stats[0].Count)
}

func TestCountGroupedByFilters(t *testing.T) {
	store := NewMemoryStore([]models.AuditLogEntry{
		entry(time.Minute, "", "203.0.113.9", "/api/auth/login", 401),
		entry(2*time.Minute, "", "203.0.113.9", "/api/auth/login", 401),
		entry(3*time.Minute, "u1", "10.0.0.1", "/api/auth/login", 200),
		entry(4*time.Minute, "u1", "10.0.0.1", "/api/patients/p1", 200),
		entry(5*time.Minute, "u1", "10.0.0.1", "/healthz", 200),
	})

	f := Filter{
		From:          base,
		To:            base.Add(time.Hour),
		PathPrefix:    "/api/auth",
		MinStatusCode: 400,
	}
	stats, err := store.CountGroupedBy(context.Background(), f, []Dimension{DimensionIP})
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, "203.0.113.9", stats[0].IP)
	assert.Equal(t, int64(2), stats[0].Count)
	assert.Equal(t, time.Minute, stats[0].Span())

	f = Filter{
		From:         base,
		To:           base.Add(time.Hour),
		ExcludePaths: []string{"/healthz"},
	}
	stats, err = store.CountGroupedBy(context.Background(), f, []Dimension{DimensionUser})
	require.NoError(t, err)
	total := int64(0)
	for _, st := range stats {
		total += st.Count
	}
	assert.Equal(t, int64(4), total)
}

func TestDistinctCountGroupedBy(t *testing.T) {
	entries := []models.AuditLogEntry{
		entry(time.Minute, "u1", "10.0.0.1", "/api/patients/p1", 200),
		entry(2*time.Minute, "u1", "10.0.0.1", "/api/patients/p2", 200),
		entry(3*time.Minute, "u1", "10.0.0.1", "/api/patients/p2", 200),
		entry(4*time.Minute, "u2", "10.0.0.2", "/api/schedule", 200),
	}
	entries[0].PatientID = "p1"
	entries[1].PatientID = "p2"
	entries[2].PatientID = "p2"
	store := NewMemoryStore(entries)

	stats, err := store.DistinctCountGroupedBy(context.Background(),
		Filter{From: base, To: base.Add(time.Hour)},
		[]Dimension{DimensionUser}, DimensionPatient)
	require.NoError(t, err)
	require.Len(t, stats, 2)

	byUser := map[string]GroupStat{}
	for _, st := range stats {
		byUser[st.UserID] = st
	}
	assert.Equal(t, int64(3), byUser["u1"].Count)
	assert.Equal(t, int64(2), byUser["u1"].DistinctCount)

	// u2 has events but no patient_id values, so the distinct count is zero.
	assert.Equal(t, int64(1), byUser["u2"].Count)
	assert.Equal(t, int64(0), byUser["u2"].DistinctCount)
}

func TestUserDailyAggregates(t *testing.T) {
	entries := []models.AuditLogEntry{
		{Timestamp: base.Add(9 * time.Hour), UserID: "u1", PatientID: "p1", IsPHIAccess: true, StatusCode: 200, DurationMS: 100},
		{Timestamp: base.Add(10 * time.Hour), UserID: "u1", PatientID: "p2", IsPHIAccess: true, StatusCode: 200, DurationMS: 300},
		{Timestamp: base.Add(11 * time.Hour), UserID: "u1", StatusCode: 500, DurationMS: 50},
		{Timestamp: base.AddDate(0, 0, 1).Add(9 * time.Hour), UserID: "u1", PatientID: "p1", IsPHIAccess: true, StatusCode: 200, DurationMS: 80},
		{Timestamp: base.Add(9 * time.Hour), UserID: "u2", StatusCode: 200, DurationMS: 10},
	}
	store := NewMemoryStore(entries)

	days, err := store.UserDailyAggregates(context.Background(), "u1", base, base.AddDate(0, 0, 7))
	require.NoError(t, err)
	require.Len(t, days, 2)

	first := days[0]
	assert.Equal(t, base, first.Date)
	assert.Equal(t, 3.0, first.RequestCount)
	assert.Equal(t, 2.0, first.DistinctPatients)
	assert.Equal(t, 2.0, first.PHIAccessCount)
	assert.Equal(t, 1.0, first.ErrorCount)
	assert.InDelta(t, 150.0, first.AvgDurationMS, 0.001)

	assert.True(t, days[1].Date.After(first.Date))
	assert.Equal(t, 1.0, days[1].RequestCount)
}

func TestWindowAggregatesSkipsAnonymous(t *testing.T) {
	store := NewMemoryStore([]models.AuditLogEntry{
		{Timestamp: base.Add(time.Hour), UserID: "u1", UserRole: "dentist", StatusCode: 200},
		{Timestamp: base.Add(2 * time.Hour), UserID: "u1", UserRole: "dentist", StatusCode: 200},
		{Timestamp: base.Add(time.Hour), IPAddress: "203.0.113.1", StatusCode: 401},
	})

	aggs, err := store.WindowAggregates(context.Background(), base, base.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, aggs, 1)
	assert.Equal(t, "u1", aggs[0].UserID)
	assert.Equal(t, "dentist", aggs[0].Role)
	assert.Equal(t, 2.0, aggs[0].RequestCount)
}

func TestRoleUserDayDistinctPatients(t *testing.T) {
	mk := func(offset time.Duration, user, patient string) models.AuditLogEntry {
		return models.AuditLogEntry{
			Timestamp: base.Add(offset), UserID: user, UserRole: "hygienist",
			PatientID: patient, StatusCode: 200,
		}
	}
	store := NewMemoryStore([]models.AuditLogEntry{
		mk(9*time.Hour, "h1", "p1"),
		mk(10*time.Hour, "h1", "p2"),
		mk(24*time.Hour+9*time.Hour, "h1", "p1"),
		mk(9*time.Hour, "h2", "p3"),
		// Different role, must not contribute.
		{Timestamp: base.Add(9 * time.Hour), UserID: "d1", UserRole: "dentist", PatientID: "p9", StatusCode: 200},
	})

	samples, err := store.RoleUserDayDistinctPatients(context.Background(), "hygienist", base, base.AddDate(0, 0, 7))
	require.NoError(t, err)
	assert.ElementsMatch(t, []float64{2, 1, 1}, samples)
}

func TestUserIPs(t *testing.T) {
	store := NewMemoryStore([]models.AuditLogEntry{
		entry(time.Hour, "u1", "10.0.0.2", "/api/schedule", 200),
		entry(2*time.Hour, "u1", "10.0.0.1", "/api/schedule", 200),
		entry(3*time.Hour, "u1", "10.0.0.1", "/api/schedule", 200),
		entry(time.Hour, "u2", "10.0.0.9", "/api/schedule", 200),
	})

	ips, err := store.UserIPs(context.Background(), "u1", base, base.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, ips)
}

func TestAggregateHonorsCanceledContext(t *testing.T) {
	store := NewMemoryStore(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.CountGroupedBy(ctx, Filter{From: base, To: base.Add(time.Hour)}, []Dimension{DimensionUser})
	assert.Error(t, err)
}
