// Package handlers implements the operator API over the alert lifecycle and
// on-demand scans.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/DentaMind/SmartDentalAI-sub000/internal/alerts"
	"github.com/DentaMind/SmartDentalAI-sub000/internal/httputil"
	"github.com/DentaMind/SmartDentalAI-sub000/internal/models"
	"github.com/DentaMind/SmartDentalAI-sub000/internal/scan"
)

// Handler holds the operator API dependencies.
type Handler struct {
	alerts   *alerts.Service
	scans    *scan.Service
	webhooks alerts.WebhookRepository
}

// NewHandler creates the operator API handler set.
func NewHandler(alertSvc *alerts.Service, scanSvc *scan.Service, webhooks alerts.WebhookRepository) *Handler {
	return &Handler{alerts: alertSvc, scans: scanSvc, webhooks: webhooks}
}

// HealthCheck handles GET /healthz.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func parseListRequest(r *http.Request) (*models.ListAlertsRequest, error) {
	q := r.URL.Query()
	req := &models.ListAlertsRequest{
		Category:  q.Get("category"),
		Severity:  q.Get("severity"),
		Status:    q.Get("status"),
		UserID:    q.Get("user_id"),
		IPAddress: q.Get("ip"),
		PatientID: q.Get("patient_id"),
	}

	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, fmt.Errorf("invalid from timestamp")
		}
		req.From = t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, fmt.Errorf("invalid to timestamp")
		}
		req.To = t
	}
	if v := q.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid page")
		}
		req.Page = n
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid limit")
		}
		req.Limit = n
	}
	return req, nil
}

// ListAlerts handles GET /api/v1/alerts.
func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	req, err := parseListRequest(r)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.alerts.List(r.Context(), req)
	if err != nil {
		log.Printf("failed to list alerts: %v", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to list alerts")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// ExportAlerts handles GET /api/v1/alerts/export.
func (h *Handler) ExportAlerts(w http.ResponseWriter, r *http.Request) {
	req, err := parseListRequest(r)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		format = alerts.FormatJSON
	}
	contentType := alerts.ContentType(format)
	if contentType == "" {
		httputil.WriteError(w, http.StatusBadRequest, fmt.Sprintf("unsupported export format %q", format))
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", "attachment; filename=alerts."+format)
	if err := h.alerts.ExportAlerts(r.Context(), w, req, format); err != nil {
		log.Printf("failed to export alerts: %v", err)
	}
}

// AlertDigest handles GET /api/v1/alerts/digest.
func (h *Handler) AlertDigest(w http.ResponseWriter, r *http.Request) {
	days := 7
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			httputil.WriteError(w, http.StatusBadRequest, "invalid days")
			return
		}
		days = n
	}

	to := time.Now().UTC()
	digest, err := h.alerts.Digest(r.Context(), to.AddDate(0, 0, -days), to)
	if err != nil {
		log.Printf("failed to build digest: %v", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to build digest")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, digest)
}

// AlertCategories handles GET /api/v1/alerts/categories.
func (h *Handler) AlertCategories(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, h.alerts.Categories())
}

// GetAlert handles GET /api/v1/alerts/{id}.
func (h *Handler) GetAlert(w http.ResponseWriter, r *http.Request, id string) {
	alert, err := h.alerts.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, alerts.ErrAlertNotFound) {
			httputil.WriteError(w, http.StatusNotFound, "alert not found")
			return
		}
		log.Printf("failed to get alert %s: %v", id, err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to get alert")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, alert)
}

// UpdateAlertStatus handles PUT /api/v1/alerts/{id}/status.
func (h *Handler) UpdateAlertStatus(w http.ResponseWriter, r *http.Request, id string) {
	var req models.UpdateAlertStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	alert, err := h.alerts.UpdateStatus(r.Context(), id, &req)
	if err != nil {
		switch {
		case errors.Is(err, alerts.ErrAlertNotFound):
			httputil.WriteError(w, http.StatusNotFound, "alert not found")
		case errors.Is(err, alerts.ErrInvalidTransition):
			httputil.WriteError(w, http.StatusConflict, err.Error())
		default:
			log.Printf("failed to update alert %s: %v", id, err)
			httputil.WriteError(w, http.StatusInternalServerError, "failed to update alert")
		}
		return
	}
	httputil.WriteJSON(w, http.StatusOK, alert)
}

// EscalateAlert handles POST /api/v1/alerts/{id}/escalate.
func (h *Handler) EscalateAlert(w http.ResponseWriter, r *http.Request, id string) {
	alert, err := h.alerts.Escalate(r.Context(), id)
	if err != nil {
		if errors.Is(err, alerts.ErrAlertNotFound) {
			httputil.WriteError(w, http.StatusNotFound, "alert not found")
			return
		}
		log.Printf("failed to escalate alert %s: %v", id, err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to escalate alert")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, alert)
}

// TriggerScan handles POST /api/v1/scan.
func (h *Handler) TriggerScan(w http.ResponseWriter, r *http.Request) {
	req := &models.ScanRequest{}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(req); err != nil {
			httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	result, err := h.scans.Run(r.Context(), req)
	if err != nil {
		if errors.Is(err, scan.ErrInvalidRequest) {
			httputil.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Printf("scan failed: %v", err)
		httputil.WriteError(w, http.StatusInternalServerError, "scan failed")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

type createWebhookRequest struct {
	URL         string          `json:"url"`
	MinSeverity models.Severity `json:"min_severity"`
}

// ListWebhooks handles GET /api/v1/webhooks.
func (h *Handler) ListWebhooks(w http.ResponseWriter, r *http.Request) {
	subs, err := h.webhooks.ListSubscriptions(r.Context())
	if err != nil {
		log.Printf("failed to list webhooks: %v", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to list webhooks")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, subs)
}

// CreateWebhook handles POST /api/v1/webhooks.
func (h *Handler) CreateWebhook(w http.ResponseWriter, r *http.Request) {
	var req createWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !strings.HasPrefix(req.URL, "http://") && !strings.HasPrefix(req.URL, "https://") {
		httputil.WriteError(w, http.StatusBadRequest, "url must be an http(s) endpoint")
		return
	}
	switch req.MinSeverity {
	case models.SeverityLow, models.SeverityMedium, models.SeverityHigh:
	case "":
		req.MinSeverity = models.SeverityHigh
	default:
		httputil.WriteError(w, http.StatusBadRequest, "invalid min_severity")
		return
	}

	sub := &models.WebhookSubscription{
		ID:          uuid.Must(uuid.NewV7()).String(),
		URL:         req.URL,
		MinSeverity: req.MinSeverity,
		CreatedAt:   time.Now().UTC(),
	}
	if err := h.webhooks.CreateSubscription(r.Context(), sub); err != nil {
		log.Printf("failed to create webhook: %v", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to create webhook")
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, sub)
}

// DeleteWebhook handles DELETE /api/v1/webhooks/{id}.
func (h *Handler) DeleteWebhook(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.webhooks.DeleteSubscription(r.Context(), id); err != nil {
		if errors.Is(err, alerts.ErrSubscriptionNotFound) {
			httputil.WriteError(w, http.StatusNotFound, "webhook subscription not found")
			return
		}
		log.Printf("failed to delete webhook %s: %v", id, err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to delete webhook")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
