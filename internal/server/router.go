// Package server wires the operator API routes and middleware.
package server

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/DentaMind/SmartDentalAI-sub000/internal/handlers"
	"github.com/DentaMind/SmartDentalAI-sub000/internal/middleware"
)

// NewRouter constructs a ServeMux with the operator API routes registered and
// the middleware chain applied. JWT auth is enabled when jwtSecret is
// non-empty.
func NewRouter(h *handlers.Handler, jwtSecret string) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", h.HealthCheck)
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/api/v1/alerts", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			h.ListAlerts(w, r)
		} else {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/api/v1/alerts/", func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/api/v1/alerts/")

		switch {
		case rest == "export" && r.Method == http.MethodGet:
			h.ExportAlerts(w, r)
		case rest == "digest" && r.Method == http.MethodGet:
			h.AlertDigest(w, r)
		case rest == "categories" && r.Method == http.MethodGet:
			h.AlertCategories(w, r)
		case strings.HasSuffix(rest, "/status") && r.Method == http.MethodPut:
			h.UpdateAlertStatus(w, r, strings.TrimSuffix(rest, "/status"))
		case strings.HasSuffix(rest, "/escalate") && r.Method == http.MethodPost:
			h.EscalateAlert(w, r, strings.TrimSuffix(rest, "/escalate"))
		case rest != "" && !strings.Contains(rest, "/") && r.Method == http.MethodGet:
			h.GetAlert(w, r, rest)
		default:
			http.Error(w, "Not found", http.StatusNotFound)
		}
	})

	mux.HandleFunc("/api/v1/scan", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			h.TriggerScan(w, r)
		} else {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/api/v1/webhooks", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			h.ListWebhooks(w, r)
		case http.MethodPost:
			h.CreateWebhook(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/api/v1/webhooks/", func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/api/v1/webhooks/")
		if id == "" || strings.Contains(id, "/") || r.Method != http.MethodDelete {
			http.Error(w, "Not found", http.StatusNotFound)
			return
		}
		h.DeleteWebhook(w, r, id)
	})

	cors := middleware.CORS(middleware.CORSConfig{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	})

	var handler http.Handler = mux
	handler = middleware.BearerAuth(jwtSecret, "/healthz", "/metrics")(handler)
	handler = cors(handler)
	handler = middleware.RequestID(handler)
	return handler
}
