// Package scan orchestrates one detection run end to end: detector fan-out,
// suppression, alert materialization and notification.
package scan

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/DentaMind/SmartDentalAI-sub000/internal/alerts"
	"github.com/DentaMind/SmartDentalAI-sub000/internal/audit"
	"github.com/DentaMind/SmartDentalAI-sub000/internal/config"
	"github.com/DentaMind/SmartDentalAI-sub000/internal/detect"
	"github.com/DentaMind/SmartDentalAI-sub000/internal/metrics"
	"github.com/DentaMind/SmartDentalAI-sub000/internal/models"
	"github.com/DentaMind/SmartDentalAI-sub000/internal/notification"
)

// ErrInvalidRequest marks scan failures caused by the request itself (bad
// window, unknown detector) as opposed to faults in the stores.
var ErrInvalidRequest = errors.New("invalid scan request")

// Service runs scans against the audit store and turns findings into alerts.
type Service struct {
	cfg        *config.Manager
	store      audit.Store
	alerts     *alerts.Service
	suppressor *alerts.Suppressor
	dispatcher *notification.Dispatcher
}

// NewService wires a scan service. The config manager is read per run so
// threshold changes apply without a restart.
func NewService(cfg *config.Manager, store audit.Store, alertSvc *alerts.Service,
	suppressor *alerts.Suppressor, dispatcher *notification.Dispatcher) *Service {
	return &Service{
		cfg:        cfg,
		store:      store,
		alerts:     alertSvc,
		suppressor: suppressor,
		dispatcher: dispatcher,
	}
}

// Window resolves a scan request into a concrete time window. Explicit
// from/to wins, then a trailing window in hours, then the configured
// lookback.
func (s *Service) Window(req *models.ScanRequest) (detect.Window, error) {
	now := time.Now().UTC()

	if req.From != nil || req.To != nil {
		if req.From == nil || req.To == nil {
			return detect.Window{}, fmt.Errorf("%w: from and to must be provided together", ErrInvalidRequest)
		}
		if !req.From.Before(*req.To) {
			return detect.Window{}, fmt.Errorf("%w: from must precede to", ErrInvalidRequest)
		}
		return detect.Window{From: req.From.UTC(), To: req.To.UTC()}, nil
	}

	if req.WindowHours < 0 {
		return detect.Window{}, fmt.Errorf("%w: window_hours must be positive", ErrInvalidRequest)
	}
	if req.WindowHours > 0 {
		return detect.Window{From: now.Add(-time.Duration(req.WindowHours) * time.Hour), To: now}, nil
	}

	lookback := s.cfg.Snapshot().Scan.Lookback
	if lookback <= 0 {
		lookback = 24 * time.Hour
	}
	return detect.Window{From: now.Add(-lookback), To: now}, nil
}

// Run executes one scan. Detection failures degrade to partial results;
// alert persistence failures abort the run.
func (s *Service) Run(ctx context.Context, req *models.ScanRequest) (*models.ScanResult, error) {
	w, err := s.Window(req)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	cfg := s.cfg.Snapshot()
	engine := detect.NewEngine(s.store, cfg.Detection)

	var report detect.Report
	if req.Detector != "" {
		if engine.Detector(req.Detector) == nil {
			return nil, fmt.Errorf("%w: unknown detector %q", ErrInvalidRequest, req.Detector)
		}
		anomalies, err := engine.DetectOne(ctx, w, req.Detector)
		if err != nil {
			return nil, err
		}
		report.Anomalies = anomalies
	} else {
		report = engine.DetectAll(ctx, w)
	}

	result := &models.ScanResult{
		From:             w.From,
		To:               w.To,
		Anomalies:        report.Anomalies,
		DetectorFailures: report.Failures,
	}

	suppress := cfg.Suppression.Enabled && s.suppressor != nil
	var created []*models.SecurityAlert
	for _, a := range report.Anomalies {
		if suppress {
			seen, err := s.suppressor.Seen(ctx, string(a.Type), a.UserID, a.IPAddress)
			if err != nil {
				// Suppression is advisory: on Redis failure the alert is
				// still created.
				log.Printf("suppression check failed: %v", err)
			} else if seen {
				result.Suppressed++
				metrics.AlertsSuppressed.Inc()
				continue
			}
		}

		alert, err := s.alerts.Materialize(ctx, a)
		if err != nil {
			return nil, fmt.Errorf("failed to materialize alert: %w", err)
		}
		created = append(created, alert)

		// The fingerprint is recorded only once the alert has persisted;
		// a run aborted by a store error can be rescanned without losing
		// the finding to suppression.
		if suppress {
			if err := s.suppressor.Mark(ctx, string(a.Type), a.UserID, a.IPAddress); err != nil {
				log.Printf("suppression record failed: %v", err)
			}
		}
	}
	result.AlertsCreated = len(created)

	if s.dispatcher != nil {
		s.dispatcher.Dispatch(ctx, created)
	}

	metrics.ScansTotal.Inc()
	metrics.ScanDuration.Observe(time.Since(start).Seconds())
	log.Printf("scan complete: window=[%s, %s) anomalies=%d created=%d suppressed=%d failures=%d",
		w.From.Format(time.RFC3339), w.To.Format(time.RFC3339),
		len(result.Anomalies), result.AlertsCreated, result.Suppressed, len(result.DetectorFailures))
	return result, nil
}
