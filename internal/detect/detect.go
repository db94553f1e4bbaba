// Package detect holds the audit-log anomaly detectors and the engine that
// fans them out over a time window. Detectors are stateless and read-only:
// each issues its own aggregation queries and computes in isolation, so they
// run concurrently without locking.
package detect

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/DentaMind/SmartDentalAI-sub000/internal/audit"
	"github.com/DentaMind/SmartDentalAI-sub000/internal/baseline"
	"github.com/DentaMind/SmartDentalAI-sub000/internal/config"
	"github.com/DentaMind/SmartDentalAI-sub000/internal/metrics"
	"github.com/DentaMind/SmartDentalAI-sub000/internal/models"
)

// Window is the analysis time range, half-open [From, To).
type Window struct {
	From time.Time
	To   time.Time
}

// Minutes returns the window length in minutes.
func (w Window) Minutes() float64 {
	return w.To.Sub(w.From).Minutes()
}

// Detector is one stateless detection algorithm.
type Detector interface {
	Name() string
	Detect(ctx context.Context, w Window) ([]models.Anomaly, error)
}

// Detector names, used for targeted scans.
const (
	NameFailedLogins    = "failed_logins"
	NameExcessiveAccess = "excessive_access"
	NameUnusualHours    = "unusual_hours"
	NameBehavioralDrift = "behavioral_drift"
	NameNewLocation     = "new_location"
	NameAPIAbuse        = "api_abuse"
)

// Report is the merged outcome of one detection run. Failures record
// detectors that could not complete, so operators can distinguish "no
// anomalies" from "detector unavailable".
type Report struct {
	Anomalies []models.Anomaly
	Failures  []models.DetectorFailure
}

// Engine runs the detector set over a window. Build a fresh Engine per scan:
// it owns a per-run baseline Calculator whose memoization must not outlive
// the run, and it captures a single configuration snapshot.
type Engine struct {
	detectors []Detector
	timeout   time.Duration
	workers   int
}

// NewEngine builds the full detector set over the given store with the given
// thresholds.
func NewEngine(store audit.Store, cfg config.DetectionConfig) *Engine {
	calc := baseline.NewCalculator(store, cfg.BaselineMinSamples)

	workers := cfg.MaxConcurrentDetectors
	if workers < 1 {
		workers = 1
	}
	timeout := cfg.DetectorTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Engine{
		detectors: []Detector{
			NewFailedLoginDetector(store, cfg),
			NewExcessiveAccessDetector(store, calc, cfg),
			NewUnusualHoursDetector(store, cfg),
			NewBehavioralDriftDetector(store, calc, cfg),
			NewNewLocationDetector(store, calc, cfg),
			NewAPIAbuseDetector(store, cfg),
		},
		timeout: timeout,
		workers: workers,
	}
}

// Detectors returns the detector set.
func (e *Engine) Detectors() []Detector {
	return e.detectors
}

// Detector returns the named detector, or nil if unknown.
func (e *Engine) Detector(name string) Detector {
	for _, d := range e.detectors {
		if d.Name() == name {
			return d
		}
	}
	return nil
}

// DetectAll fans the detector set out over the window with bounded
// concurrency, joins the results in detector registration order, and
// stable-sorts them by severity (high first). A failing detector contributes
// a Failure entry instead of aborting the run.
func (e *Engine) DetectAll(ctx context.Context, w Window) Report {
	results := make([][]models.Anomaly, len(e.detectors))
	failures := make([]*models.DetectorFailure, len(e.detectors))

	var wg sync.WaitGroup
	sem := make(chan struct{}, e.workers)
	for i, d := range e.detectors {
		wg.Add(1)
		go func(i int, d Detector) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			dctx, cancel := context.WithTimeout(ctx, e.timeout)
			defer cancel()

			anomalies, err := d.Detect(dctx, w)
			if err != nil {
				log.Printf("detector %s failed: %v", d.Name(), err)
				metrics.DetectorErrors.WithLabelValues(d.Name()).Inc()
				failures[i] = &models.DetectorFailure{
					Detector: d.Name(),
					Error:    err.Error(),
				}
				return
			}
			results[i] = anomalies
		}(i, d)
	}
	wg.Wait()

	var report Report
	for i := range e.detectors {
		report.Anomalies = append(report.Anomalies, results[i]...)
		if failures[i] != nil {
			report.Failures = append(report.Failures, *failures[i])
		}
	}

	sortBySeverity(report.Anomalies)
	for _, a := range report.Anomalies {
		metrics.AnomaliesTotal.WithLabelValues(string(a.Type), string(a.Severity)).Inc()
	}
	return report
}

// DetectOne runs a single named detector over the window.
func (e *Engine) DetectOne(ctx context.Context, w Window, name string) ([]models.Anomaly, error) {
	d := e.Detector(name)
	if d == nil {
		return nil, fmt.Errorf("unknown detector %q", name)
	}

	dctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	anomalies, err := d.Detect(dctx, w)
	if err != nil {
		return nil, err
	}
	sortBySeverity(anomalies)
	return anomalies, nil
}

// sortBySeverity orders anomalies high -> medium -> low, preserving detector
// emission order among equals.
func sortBySeverity(anomalies []models.Anomaly) {
	sort.SliceStable(anomalies, func(i, j int) bool {
		return models.SeverityRank(anomalies[i].Severity) < models.SeverityRank(anomalies[j].Severity)
	})
}
