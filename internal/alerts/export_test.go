package alerts

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DentaMind/SmartDentalAI-sub000/internal/models"
)

func TestExportJSON(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	ctx := context.Background()

	_, err := svc.Materialize(ctx, testAnomaly("u1", models.SeverityHigh))
	require.NoError(t, err)
	_, err = svc.Materialize(ctx, testAnomaly("u2", models.SeverityMedium))
	require.NoError(t, err)

	var buf bytes.Buffer
	err = svc.ExportAlerts(ctx, &buf, &models.ListAlertsRequest{}, FormatJSON)
	require.NoError(t, err)

	var exported []*models.SecurityAlert
	require.NoError(t, json.Unmarshal(buf.Bytes(), &exported))
	assert.Len(t, exported, 2)
}

func TestExportCSVRespectsFilter(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	ctx := context.Background()

	_, err := svc.Materialize(ctx, testAnomaly("u1", models.SeverityHigh))
	require.NoError(t, err)
	_, err = svc.Materialize(ctx, testAnomaly("u2", models.SeverityMedium))
	require.NoError(t, err)

	var buf bytes.Buffer
	err = svc.ExportAlerts(ctx, &buf, &models.ListAlertsRequest{Severity: "high"}, FormatCSV)
	require.NoError(t, err)

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2, "header plus one matching alert")
	assert.Equal(t, "id", records[0][0])
	assert.Equal(t, "high", records[1][2])
}

func TestExportUnsupportedFormat(t *testing.T) {
	svc := NewService(NewMemoryRepository())

	var buf bytes.Buffer
	err := svc.ExportAlerts(context.Background(), &buf, &models.ListAlertsRequest{}, "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported export format")
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "application/json", ContentType(FormatJSON))
	assert.Equal(t, "text/csv", ContentType(FormatCSV))
	assert.Equal(t, "application/yaml", ContentType(FormatYAML))
	assert.Equal(t, "", ContentType("xml"))
}
