package models

import "time"

// AuditLogEntry is one immutable record from the platform's HTTP audit log.
// Entries are written by the request-handling layer and are read-only here.
type AuditLogEntry struct {
	Timestamp   time.Time `json:"timestamp"`
	UserID      string    `json:"user_id,omitempty"` // empty for anonymous requests
	UserRole    string    `json:"user_role,omitempty"`
	IPAddress   string    `json:"ip_address"`
	HTTPMethod  string    `json:"http_method"`
	Path        string    `json:"path"`
	StatusCode  int       `json:"status_code"`
	DurationMS  float64   `json:"duration_ms"`
	PatientID   string    `json:"patient_id,omitempty"`
	IsPHIAccess bool      `json:"is_phi_access"`
	UserAgent   string    `json:"user_agent,omitempty"`
}

// Severity levels for anomalies and alerts.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// SeverityRank returns the sort rank for a severity (high first).
func SeverityRank(s Severity) int {
	switch s {
	case SeverityHigh:
		return 0
	case SeverityMedium:
		return 1
	default:
		return 2
	}
}

// AnomalyType identifies the detector finding kind. These values double as
// the alert categories exposed to API clients.
type AnomalyType string

const (
	AnomalyFailedLoginsIP   AnomalyType = "multiple_failed_logins"
	AnomalyFailedLoginsUser AnomalyType = "user_multiple_failed_logins"
	AnomalyExcessiveAccess  AnomalyType = "excessive_patient_access"
	AnomalyManyPatients     AnomalyType = "many_patients_accessed"
	AnomalyUnusualHours     AnomalyType = "unusual_hours_access"
	AnomalyBehavioralDrift  AnomalyType = "behavioral_anomaly"
	AnomalyNewIPAddress     AnomalyType = "new_ip_address"
	AnomalyAPIAbuse         AnomalyType = "api_abuse"
	AnomalyAPIScraping      AnomalyType = "api_scraping"
)

// Anomaly is the value object produced by a detector. It is created fresh on
// every detection run and never mutated.
type Anomaly struct {
	Type        AnomalyType            `json:"type"`
	Severity    Severity               `json:"severity"`
	Description string                 `json:"description"`
	Details     map[string]interface{} `json:"details"`
	UserID      string                 `json:"user_id,omitempty"`
	IPAddress   string                 `json:"ip_address,omitempty"`
	PatientID   string                 `json:"patient_id,omitempty"`
}

// Alert lifecycle statuses. Transitions are operator-driven:
// open -> investigating -> resolved, or open -> dismissed.
const (
	AlertStatusOpen          = "open"
	AlertStatusInvestigating = "investigating"
	AlertStatusResolved      = "resolved"
	AlertStatusDismissed     = "dismissed"
)

// SecurityAlert is the persisted record created from an Anomaly.
type SecurityAlert struct {
	ID              string                 `json:"id"`
	Category        AnomalyType            `json:"category"`
	Severity        Severity               `json:"severity"`
	Status          string                 `json:"status"`
	Description     string                 `json:"description"`
	Details         map[string]interface{} `json:"details,omitempty"`
	UserID          *string                `json:"user_id,omitempty"`
	IPAddress       *string                `json:"ip_address,omitempty"`
	PatientID       *string                `json:"patient_id,omitempty"`
	Escalated       bool                   `json:"escalated"`
	ResolutionNotes *string                `json:"resolution_notes,omitempty"`
	CreatedAt       time.Time              `json:"created_at"`
	UpdatedAt       time.Time              `json:"updated_at"`
	ResolvedAt      *time.Time             `json:"resolved_at,omitempty"`
}

// AlertCategory describes one alert category for operator triage.
type AlertCategory struct {
	Category        AnomalyType `json:"category"`
	Description     string      `json:"description"`
	HIPAARelevant   bool        `json:"hipaa_relevant"`
	TypicalSeverity Severity    `json:"typical_severity"`
}

// AlertCategories is the catalog exposed at /api/v1/alerts/categories.
func AlertCategories() []AlertCategory {
	return []AlertCategory{
		{AnomalyFailedLoginsIP, "Repeated failed logins from a single IP address", false, SeverityHigh},
		{AnomalyFailedLoginsUser, "Repeated failed logins against a single account", false, SeverityMedium},
		{AnomalyExcessiveAccess, "Patient record access far above the role baseline", true, SeverityHigh},
		{AnomalyManyPatients, "Patient record access above the absolute threshold", true, SeverityMedium},
		{AnomalyUnusualHours, "PHI access during unusual hours", true, SeverityMedium},
		{AnomalyBehavioralDrift, "User behavior deviating from their own baseline", true, SeverityMedium},
		{AnomalyNewIPAddress, "Login from an IP address never seen for this user", false, SeverityMedium},
		{AnomalyAPIAbuse, "Sustained high-frequency API calls", false, SeverityHigh},
		{AnomalyAPIScraping, "Broad, fast endpoint coverage (scraping signature)", true, SeverityHigh},
	}
}

// DailyUserAggregate is one day of per-user activity, the unit of the
// behavioral baseline.
type DailyUserAggregate struct {
	Date             time.Time `json:"date"`
	RequestCount     float64   `json:"request_count"`
	DistinctPatients float64   `json:"distinct_patients"`
	PHIAccessCount   float64   `json:"phi_access_count"`
	ErrorCount       float64   `json:"error_count"`
	AvgDurationMS    float64   `json:"avg_duration_ms"`
}

// UserWindowAggregate is the same five dimensions computed over the analysis
// window for one active user.
type UserWindowAggregate struct {
	UserID           string  `json:"user_id"`
	Role             string  `json:"role"`
	RequestCount     float64 `json:"request_count"`
	DistinctPatients float64 `json:"distinct_patients"`
	PHIAccessCount   float64 `json:"phi_access_count"`
	ErrorCount       float64 `json:"error_count"`
	AvgDurationMS    float64 `json:"avg_duration_ms"`
}

// ListAlertsRequest carries alert list/export filters.
type ListAlertsRequest struct {
	Category  string
	Severity  string
	Status    string
	UserID    string
	IPAddress string
	PatientID string
	From      time.Time
	To        time.Time
	Page      int
	Limit     int
}

// ListAlertsResponse is a paginated alert listing.
type ListAlertsResponse struct {
	Alerts     []*SecurityAlert `json:"alerts"`
	Pagination Pagination       `json:"pagination"`
}

// Pagination describes the page window of a listing.
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// UpdateAlertStatusRequest is the payload for status transitions.
type UpdateAlertStatusRequest struct {
	Status          string  `json:"status"`
	ResolutionNotes *string `json:"resolution_notes,omitempty"`
}

// ScanRequest triggers an on-demand detection run. Either an explicit
// from/to range or a trailing window in hours.
type ScanRequest struct {
	From        *time.Time `json:"from,omitempty"`
	To          *time.Time `json:"to,omitempty"`
	WindowHours int        `json:"window_hours,omitempty"`
	Detector    string     `json:"detector,omitempty"` // empty runs all detectors
}

// DetectorFailure records a detector that could not complete a scan.
type DetectorFailure struct {
	Detector string `json:"detector"`
	Error    string `json:"error"`
}

// ScanResult summarizes one detection run.
type ScanResult struct {
	From             time.Time         `json:"from"`
	To               time.Time         `json:"to"`
	Anomalies        []Anomaly         `json:"anomalies"`
	AlertsCreated    int               `json:"alerts_created"`
	Suppressed       int               `json:"suppressed"`
	DetectorFailures []DetectorFailure `json:"detector_failures,omitempty"`
}

// Digest summarizes alert volume and resolution over a period.
type Digest struct {
	From           time.Time           `json:"from"`
	To             time.Time           `json:"to"`
	Total          int                 `json:"total"`
	BySeverity     map[Severity]int    `json:"by_severity"`
	ByCategory     map[AnomalyType]int `json:"by_category"`
	ByStatus       map[string]int      `json:"by_status"`
	OpenHigh       int                 `json:"open_high"`
	ResolutionRate float64             `json:"resolution_rate"`
}

// WebhookSubscription is a registered webhook destination for alert
// notifications.
type WebhookSubscription struct {
	ID          string    `json:"id"`
	URL         string    `json:"url"`
	MinSeverity Severity  `json:"min_severity"`
	CreatedAt   time.Time `json:"created_at"`
}
