package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Detection metrics
	ScansTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sentinel_scans_total",
			Help: "Total number of detection scans executed",
		},
	)

	ScanDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sentinel_scan_duration_seconds",
			Help:    "Duration of detection scans in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	AnomaliesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_anomalies_total",
			Help: "Total anomalies detected, by type and severity",
		},
		[]string{"type", "severity"},
	)

	DetectorErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_detector_errors_total",
			Help: "Total detector failures, by detector",
		},
		[]string{"detector"},
	)

	// Alert metrics
	AlertsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_alerts_created_total",
			Help: "Total security alerts materialized, by severity",
		},
		[]string{"severity"},
	)

	AlertsSuppressed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sentinel_alerts_suppressed_total",
			Help: "Total anomalies suppressed by the dedup fingerprint store",
		},
	)

	// Notification metrics
	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_notifications_sent_total",
			Help: "Total notifications delivered, by channel",
		},
		[]string{"channel"},
	)

	NotificationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_notification_errors_total",
			Help: "Total notification delivery failures, by channel",
		},
		[]string{"channel"},
	)
)
