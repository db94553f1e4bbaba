package alerts

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSuppressor(t *testing.T, window time.Duration) (*Suppressor, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewSuppressor(client, window), mr
}

func TestSuppressorDeduplicatesWithinWindow(t *testing.T) {
	s, _ := newTestSuppressor(t, 24*time.Hour)
	ctx := context.Background()

	seen, err := s.Seen(ctx, "excessive_patient_access", "dentist1", "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, seen, "first occurrence passes through")

	require.NoError(t, s.Mark(ctx, "excessive_patient_access", "dentist1", "10.0.0.1"))

	seen, err = s.Seen(ctx, "excessive_patient_access", "dentist1", "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, seen, "marked repeat within the window is suppressed")
}

func TestSuppressorSeenDoesNotRecord(t *testing.T) {
	s, _ := newTestSuppressor(t, 24*time.Hour)
	ctx := context.Background()

	// Checking alone must leave no trace: an anomaly whose alert failed to
	// persist stays eligible on the next scan.
	for i := 0; i < 3; i++ {
		seen, err := s.Seen(ctx, "failed_logins_ip", "", "203.0.113.7")
		require.NoError(t, err)
		assert.False(t, seen)
	}
}

func TestSuppressorDistinguishesIdentities(t *testing.T) {
	s, _ := newTestSuppressor(t, 24*time.Hour)
	ctx := context.Background()

	require.NoError(t, s.Mark(ctx, "excessive_patient_access", "dentist1", "10.0.0.1"))

	// Different user, category or IP is a different fingerprint.
	seen, err := s.Seen(ctx, "excessive_patient_access", "dentist2", "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, seen)

	seen, err = s.Seen(ctx, "new_ip_address", "dentist1", "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestSuppressorExpiry(t *testing.T) {
	s, mr := newTestSuppressor(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, s.Mark(ctx, "api_abuse", "", "203.0.113.5"))

	mr.FastForward(2 * time.Minute)

	seen, err := s.Seen(ctx, "api_abuse", "", "203.0.113.5")
	require.NoError(t, err)
	assert.False(t, seen, "fingerprint expires with the window")
}

func TestSuppressorDisabledWithoutClient(t *testing.T) {
	s := NewSuppressor(nil, time.Hour)
	ctx := context.Background()

	require.NoError(t, s.Mark(ctx, "api_abuse", "u1", "1.2.3.4"))
	seen, err := s.Seen(ctx, "api_abuse", "u1", "1.2.3.4")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestFingerprintStablePerDay(t *testing.T) {
	day := time.Date(2025, 6, 10, 8, 0, 0, 0, time.UTC)
	later := day.Add(10 * time.Hour)
	nextDay := day.Add(24 * time.Hour)

	assert.Equal(t,
		Fingerprint("api_abuse", "u1", "1.2.3.4", day),
		Fingerprint("api_abuse", "u1", "1.2.3.4", later))
	assert.NotEqual(t,
		Fingerprint("api_abuse", "u1", "1.2.3.4", day),
		Fingerprint("api_abuse", "u1", "1.2.3.4", nextDay))
}
