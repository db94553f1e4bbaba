package alerts

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Suppressor deduplicates alerts across repeated scans of overlapping
// windows. Anomalies are fingerprinted by category, user, IP and UTC day;
// a fingerprint seen within the suppression window is dropped instead of
// materialized again.
type Suppressor struct {
	client *redis.Client
	window time.Duration
}

// NewSuppressor creates a Redis-backed suppressor. A nil client disables
// suppression entirely.
func NewSuppressor(client *redis.Client, window time.Duration) *Suppressor {
	return &Suppressor{client: client, window: window}
}

// Fingerprint is the dedup key for an anomaly identity on a given day.
func Fingerprint(category, userID, ip string, day time.Time) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%s",
		category, userID, ip, day.UTC().Format("2006-01-02"))))
	return hex.EncodeToString(sum[:])
}

func (s *Suppressor) key(category, userID, ip string) string {
	return "sentinel:suppress:" + Fingerprint(category, userID, ip, time.Now())
}

// Seen reports whether the fingerprint is already recorded within the
// suppression window. It never records anything itself: callers record via
// Mark once the alert has actually persisted, so a failed materialization
// stays retryable. Redis errors surface to the caller so alert creation can
// proceed best-effort.
func (s *Suppressor) Seen(ctx context.Context, category, userID, ip string) (bool, error) {
	if s.client == nil {
		return false, nil
	}

	n, err := s.client.Exists(ctx, s.key(category, userID, ip)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check suppression fingerprint: %w", err)
	}
	return n > 0, nil
}

// Mark records the fingerprint for the suppression window.
func (s *Suppressor) Mark(ctx context.Context, category, userID, ip string) error {
	if s.client == nil {
		return nil
	}

	if err := s.client.SetNX(ctx, s.key(category, userID, ip), 1, s.window).Err(); err != nil {
		return fmt.Errorf("failed to record suppression fingerprint: %w", err)
	}
	return nil
}
