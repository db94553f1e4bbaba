// Package scheduler drives periodic background work: the recurring detection
// scan and the alert digest. On-demand scans through the API stay available
// while the scheduler runs.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/DentaMind/SmartDentalAI-sub000/internal/config"
	"github.com/DentaMind/SmartDentalAI-sub000/internal/models"
	"github.com/DentaMind/SmartDentalAI-sub000/internal/scan"
)

// DigestSource produces the periodic digest.
type DigestSource interface {
	Digest(ctx context.Context, from, to time.Time) (*models.Digest, error)
}

// DigestSink receives the produced digest.
type DigestSink func(ctx context.Context, digest *models.Digest)

// Scheduler runs scans and digests on their configured intervals.
type Scheduler struct {
	mu       sync.RWMutex
	cfg      *config.Manager
	scans    *scan.Service
	digests  DigestSource
	sink     DigestSink
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup

	metrics *Metrics
}

// Metrics tracks scheduler activity.
type Metrics struct {
	mu             sync.RWMutex
	ScansRun       int64
	ScanErrors     int64
	DigestsRun     int64
	DigestErrors   int64
	LastScanTime   time.Time
	LastDigestTime time.Time
}

// NewScheduler creates a scheduler. The digest sink may be nil when digests
// are disabled.
func NewScheduler(cfg *config.Manager, scans *scan.Service, digests DigestSource, sink DigestSink) *Scheduler {
	return &Scheduler{
		cfg:     cfg,
		scans:   scans,
		digests: digests,
		sink:    sink,
		metrics: &Metrics{},
	}
}

// Start begins the background loops.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already running")
	}
	s.running = true
	s.stopChan = make(chan struct{})
	s.mu.Unlock()

	cfg := s.cfg.Snapshot()
	if cfg.Scan.Enabled {
		log.Printf("scan scheduler starting (interval: %s, lookback: %s)", cfg.Scan.Interval, cfg.Scan.Lookback)
		s.wg.Add(1)
		go s.runScans(ctx, cfg.Scan.Interval)
	}
	if cfg.Digest.Enabled && s.digests != nil && s.sink != nil {
		log.Printf("digest scheduler starting (interval: %s)", cfg.Digest.Interval)
		s.wg.Add(1)
		go s.runDigests(ctx, cfg.Digest.Interval)
	}
	return nil
}

// Stop gracefully stops the background loops.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler not running")
	}
	s.running = false
	close(s.stopChan)
	s.mu.Unlock()

	s.wg.Wait()
	log.Printf("scheduler stopped")
	return nil
}

func (s *Scheduler) runScans(ctx context.Context, interval time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.executeScan(ctx)
		}
	}
}

func (s *Scheduler) executeScan(ctx context.Context) {
	s.metrics.mu.Lock()
	s.metrics.ScansRun++
	s.metrics.LastScanTime = time.Now().UTC()
	s.metrics.mu.Unlock()

	result, err := s.scans.Run(ctx, &models.ScanRequest{})
	if err != nil {
		log.Printf("scheduled scan failed: %v", err)
		s.metrics.mu.Lock()
		s.metrics.ScanErrors++
		s.metrics.mu.Unlock()
		return
	}
	if len(result.DetectorFailures) > 0 {
		log.Printf("scheduled scan completed with %d detector failures", len(result.DetectorFailures))
	}
}

func (s *Scheduler) runDigests(ctx context.Context, interval time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.executeDigest(ctx)
		}
	}
}

func (s *Scheduler) executeDigest(ctx context.Context) {
	s.metrics.mu.Lock()
	s.metrics.DigestsRun++
	s.metrics.LastDigestTime = time.Now().UTC()
	s.metrics.mu.Unlock()

	cfg := s.cfg.Snapshot()
	to := time.Now().UTC()
	from := to.AddDate(0, 0, -cfg.Digest.PeriodDays)

	digest, err := s.digests.Digest(ctx, from, to)
	if err != nil {
		log.Printf("digest generation failed: %v", err)
		s.metrics.mu.Lock()
		s.metrics.DigestErrors++
		s.metrics.mu.Unlock()
		return
	}
	s.sink(ctx, digest)
}

// GetMetrics returns a snapshot of scheduler metrics.
func (s *Scheduler) GetMetrics() map[string]interface{} {
	s.metrics.mu.RLock()
	defer s.metrics.mu.RUnlock()

	return map[string]interface{}{
		"scans_run":        s.metrics.ScansRun,
		"scan_errors":      s.metrics.ScanErrors,
		"digests_run":      s.metrics.DigestsRun,
		"digest_errors":    s.metrics.DigestErrors,
		"last_scan_time":   s.metrics.LastScanTime.Format(time.RFC3339),
		"last_digest_time": s.metrics.LastDigestTime.Format(time.RFC3339),
	}
}
