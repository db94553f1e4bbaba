package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DentaMind/SmartDentalAI-sub000/internal/alerts"
	"github.com/DentaMind/SmartDentalAI-sub000/internal/audit"
	"github.com/DentaMind/SmartDentalAI-sub000/internal/config"
	"github.com/DentaMind/SmartDentalAI-sub000/internal/models"
	"github.com/DentaMind/SmartDentalAI-sub000/internal/scan"
)

func newTestScheduler(t *testing.T, mutate func(*config.Config), sink DigestSink) *Scheduler {
	t.Helper()

	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Suppression.Enabled = false
	if mutate != nil {
		mutate(cfg)
	}
	mgr := config.NewManager(cfg)

	alertSvc := alerts.NewService(alerts.NewMemoryRepository())
	scanSvc := scan.NewService(mgr, audit.NewMemoryStore(nil), alertSvc, nil, nil)

	return NewScheduler(mgr, scanSvc, alertSvc, sink)
}

func TestSchedulerRunsScans(t *testing.T) {
	s := newTestScheduler(t, func(cfg *config.Config) {
		cfg.Scan.Interval = 20 * time.Millisecond
	}, nil)

	require.NoError(t, s.Start(context.Background()))
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, s.Stop())

	metrics := s.GetMetrics()
	assert.GreaterOrEqual(t, metrics["scans_run"].(int64), int64(1))
	assert.Equal(t, int64(0), metrics["scan_errors"].(int64))
}

func TestSchedulerRunsDigests(t *testing.T) {
	var digests atomic.Int32
	sink := func(ctx context.Context, d *models.Digest) {
		digests.Add(1)
	}
	s := newTestScheduler(t, func(cfg *config.Config) {
		cfg.Scan.Enabled = false
		cfg.Digest.Enabled = true
		cfg.Digest.Interval = 20 * time.Millisecond
	}, sink)

	require.NoError(t, s.Start(context.Background()))
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, s.Stop())

	assert.GreaterOrEqual(t, digests.Load(), int32(1))
}

func TestSchedulerLifecycleErrors(t *testing.T) {
	s := newTestScheduler(t, nil, nil)

	require.Error(t, s.Stop(), "stop before start")

	require.NoError(t, s.Start(context.Background()))
	require.Error(t, s.Start(context.Background()), "double start")
	require.NoError(t, s.Stop())
}
