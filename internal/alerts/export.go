package alerts

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/DentaMind/SmartDentalAI-sub000/internal/models"
)

// Export formats supported by ExportAlerts.
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
	FormatYAML = "yaml"
)

// ContentType returns the response content type for an export format, or ""
// when the format is unknown.
func ContentType(format string) string {
	switch format {
	case FormatJSON:
		return "application/json"
	case FormatCSV:
		return "text/csv"
	case FormatYAML:
		return "application/yaml"
	}
	return ""
}

// ExportAlerts writes every alert matching the filter to w in the given
// format, ignoring pagination.
func (s *Service) ExportAlerts(ctx context.Context, w io.Writer, req *models.ListAlertsRequest, format string) error {
	req.Page = 1
	req.Limit = maxPageSize

	var all []*models.SecurityAlert
	for {
		alerts, total, err := s.repo.ListAlerts(ctx, req)
		if err != nil {
			return err
		}
		all = append(all, alerts...)
		if len(all) >= total || len(alerts) == 0 {
			break
		}
		req.Page++
	}

	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(all)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(all)
	case FormatCSV:
		return writeCSV(w, all)
	}
	return fmt.Errorf("unsupported export format %q", format)
}

func writeCSV(w io.Writer, alerts []*models.SecurityAlert) error {
	cw := csv.NewWriter(w)
	header := []string{
		"id", "category", "severity", "status", "description",
		"user_id", "ip_address", "patient_id", "escalated",
		"resolution_notes", "created_at", "updated_at", "resolved_at",
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	deref := func(v *string) string {
		if v == nil {
			return ""
		}
		return *v
	}
	for _, a := range alerts {
		resolvedAt := ""
		if a.ResolvedAt != nil {
			resolvedAt = a.ResolvedAt.Format(time.RFC3339)
		}
		record := []string{
			a.ID, string(a.Category), string(a.Severity), a.Status, a.Description,
			deref(a.UserID), deref(a.IPAddress), deref(a.PatientID),
			strconv.FormatBool(a.Escalated), deref(a.ResolutionNotes),
			a.CreatedAt.Format(time.RFC3339), a.UpdatedAt.Format(time.RFC3339), resolvedAt,
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV record: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
