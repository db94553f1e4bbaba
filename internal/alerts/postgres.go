package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/DentaMind/SmartDentalAI-sub000/internal/models"
)

// PostgresRepository implements Repository and WebhookRepository using
// PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL repository.
func NewPostgresRepository(ctx context.Context, connString string) (*PostgresRepository, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	config.MaxConns = 10

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresRepository{pool: pool}, nil
}

// NewPostgresRepositoryFromPool wraps an existing pool.
func NewPostgresRepositoryFromPool(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Close releases the connection pool.
func (r *PostgresRepository) Close() {
	r.pool.Close()
}

// CreateAlert persists a new alert.
func (r *PostgresRepository) CreateAlert(ctx context.Context, a *models.SecurityAlert) error {
	details, err := json.Marshal(a.Details)
	if err != nil {
		return fmt.Errorf("failed to marshal alert details: %w", err)
	}

	query := `
		INSERT INTO security_alerts (
			id, category, severity, status, description, details,
			user_id, ip_address, patient_id, escalated, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err = r.pool.Exec(ctx, query,
		a.ID, a.Category, a.Severity, a.Status, a.Description, details,
		a.UserID, a.IPAddress, a.PatientID, a.Escalated, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create alert: %w", err)
	}
	return nil
}

const alertColumns = `
	id, category, severity, status, description, details,
	user_id, ip_address, patient_id, escalated, resolution_notes,
	created_at, updated_at, resolved_at
`

func scanAlert(row pgx.Row) (*models.SecurityAlert, error) {
	a := &models.SecurityAlert{}
	var details []byte
	err := row.Scan(
		&a.ID, &a.Category, &a.Severity, &a.Status, &a.Description, &details,
		&a.UserID, &a.IPAddress, &a.PatientID, &a.Escalated, &a.ResolutionNotes,
		&a.CreatedAt, &a.UpdatedAt, &a.ResolvedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(details) > 0 {
		if err := json.Unmarshal(details, &a.Details); err != nil {
			return nil, fmt.Errorf("failed to unmarshal alert details: %w", err)
		}
	}
	return a, nil
}

// GetAlertByID retrieves one alert.
func (r *PostgresRepository) GetAlertByID(ctx context.Context, id string) (*models.SecurityAlert, error) {
	query := fmt.Sprintf("SELECT %s FROM security_alerts WHERE id = $1", alertColumns)
	a, err := scanAlert(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAlertNotFound
		}
		return nil, fmt.Errorf("failed to get alert: %w", err)
	}
	return a, nil
}

func buildAlertWhere(req *models.ListAlertsRequest) (string, []interface{}) {
	clauses := []string{"1=1"}
	args := []interface{}{}
	pos := 1

	add := func(clause string, value interface{}) {
		clauses = append(clauses, fmt.Sprintf(clause, pos))
		args = append(args, value)
		pos++
	}
	if req.Category != "" {
		add("category = $%d", req.Category)
	}
	if req.Severity != "" {
		add("severity = $%d", req.Severity)
	}
	if req.Status != "" {
		add("status = $%d", req.Status)
	}
	if req.UserID != "" {
		add("user_id = $%d", req.UserID)
	}
	if req.IPAddress != "" {
		add("ip_address = $%d", req.IPAddress)
	}
	if req.PatientID != "" {
		add("patient_id = $%d", req.PatientID)
	}
	if !req.From.IsZero() {
		add("created_at >= $%d", req.From)
	}
	if !req.To.IsZero() {
		add("created_at < $%d", req.To)
	}

	return "WHERE " + strings.Join(clauses, " AND "), args
}

// ListAlerts retrieves a filtered, paginated alert listing ordered newest
// first.
func (r *PostgresRepository) ListAlerts(ctx context.Context, req *models.ListAlertsRequest) ([]*models.SecurityAlert, int, error) {
	where, args := buildAlertWhere(req)

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM security_alerts %s", where)
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count alerts: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT %s FROM security_alerts
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, alertColumns, where, len(args)+1, len(args)+2)
	args = append(args, req.Limit, (req.Page-1)*req.Limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	alerts := []*models.SecurityAlert{}
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to read alerts: %w", err)
	}
	return alerts, total, nil
}

// UpdateAlert persists status, escalation and resolution changes.
func (r *PostgresRepository) UpdateAlert(ctx context.Context, a *models.SecurityAlert) error {
	query := `
		UPDATE security_alerts
		SET status = $2, escalated = $3, resolution_notes = $4,
		    updated_at = $5, resolved_at = $6
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query,
		a.ID, a.Status, a.Escalated, a.ResolutionNotes, a.UpdatedAt, a.ResolvedAt)
	if err != nil {
		return fmt.Errorf("failed to update alert: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlertNotFound
	}
	return nil
}

var digestFields = map[string]bool{
	"severity": true,
	"category": true,
	"status":   true,
}

// CountsByField returns alert counts grouped by the given column.
func (r *PostgresRepository) CountsByField(ctx context.Context, field string, req *models.ListAlertsRequest) (map[string]int, error) {
	if !digestFields[field] {
		return nil, fmt.Errorf("unsupported digest field %q", field)
	}
	where, args := buildAlertWhere(req)

	query := fmt.Sprintf("SELECT %s, COUNT(*) FROM security_alerts %s GROUP BY %s", field, where, field)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to count alerts by %s: %w", field, err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return nil, fmt.Errorf("failed to scan alert counts: %w", err)
		}
		counts[key] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read alert counts: %w", err)
	}
	return counts, nil
}

// CreateSubscription registers a webhook destination.
func (r *PostgresRepository) CreateSubscription(ctx context.Context, sub *models.WebhookSubscription) error {
	query := `
		INSERT INTO webhook_subscriptions (id, url, min_severity, created_at)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := r.pool.Exec(ctx, query, sub.ID, sub.URL, sub.MinSeverity, sub.CreatedAt); err != nil {
		return fmt.Errorf("failed to create webhook subscription: %w", err)
	}
	return nil
}

// DeleteSubscription removes a webhook destination.
func (r *PostgresRepository) DeleteSubscription(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, "DELETE FROM webhook_subscriptions WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete webhook subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSubscriptionNotFound
	}
	return nil
}

// ListSubscriptions returns all registered webhook destinations.
func (r *PostgresRepository) ListSubscriptions(ctx context.Context) ([]*models.WebhookSubscription, error) {
	rows, err := r.pool.Query(ctx,
		"SELECT id, url, min_severity, created_at FROM webhook_subscriptions ORDER BY created_at")
	if err != nil {
		return nil, fmt.Errorf("failed to list webhook subscriptions: %w", err)
	}
	defer rows.Close()

	subs := []*models.WebhookSubscription{}
	for rows.Next() {
		sub := &models.WebhookSubscription{}
		if err := rows.Scan(&sub.ID, &sub.URL, &sub.MinSeverity, &sub.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan webhook subscription: %w", err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read webhook subscriptions: %w", err)
	}
	return subs, nil
}
