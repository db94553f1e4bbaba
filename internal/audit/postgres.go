package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/DentaMind/SmartDentalAI-sub000/internal/models"
)

// PostgresStore implements Store over the platform's audit_log table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgreSQL-backed audit store.
func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
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

	return &PostgresStore{pool: pool}, nil
}

// NewPostgresStoreFromPool wraps an existing pool.
func NewPostgresStoreFromPool(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

var dimensionColumns = map[Dimension]string{
	DimensionUser:    "user_id",
	DimensionRole:    "user_role",
	DimensionIP:      "ip_address",
	DimensionPath:    "path",
	DimensionPatient: "patient_id",
}

// buildWhere translates a Filter into a WHERE clause and its arguments.
func buildWhere(f Filter) (string, []interface{}) {
	clauses := []string{"timestamp >= $1", "timestamp < $2"}
	args := []interface{}{f.From, f.To}
	pos := 3

	if f.PathPrefix != "" {
		clauses = append(clauses, fmt.Sprintf("path LIKE $%d", pos))
		args = append(args, f.PathPrefix+"%")
		pos++
	}
	for _, p := range f.ExcludePaths {
		clauses = append(clauses, fmt.Sprintf("path NOT LIKE $%d", pos))
		args = append(args, p+"%")
		pos++
	}
	if f.MinStatusCode > 0 {
		clauses = append(clauses, fmt.Sprintf("status_code >= $%d", pos))
		args = append(args, f.MinStatusCode)
		pos++
	}
	if f.PHIOnly {
		clauses = append(clauses, "is_phi_access")
	}
	if f.PatientsOnly {
		clauses = append(clauses, "patient_id IS NOT NULL")
	}
	if f.AuthenticatedOnly {
		clauses = append(clauses, "user_id IS NOT NULL")
	}
	if f.Hours != nil {
		op := "AND"
		if f.Hours.Start > f.Hours.End { // wraps past midnight
			op = "OR"
		}
		// Hours bucket in UTC regardless of the session time zone, matching
		// the other backends.
		clauses = append(clauses, fmt.Sprintf(
			"(EXTRACT(HOUR FROM timestamp AT TIME ZONE 'UTC') >= $%d %s EXTRACT(HOUR FROM timestamp AT TIME ZONE 'UTC') < $%d)",
			pos, op, pos+1))
		args = append(args, f.Hours.Start, f.Hours.End)
		pos += 2
	}

	return "WHERE " + strings.Join(clauses, " AND "), args
}

// CountGroupedBy counts entries matching f, grouped by the given dimensions.
func (s *PostgresStore) CountGroupedBy(ctx context.Context, f Filter, by []Dimension) ([]GroupStat, error) {
	return s.grouped(ctx, f, by, "")
}

// DistinctCountGroupedBy additionally computes a distinct count per bucket.
func (s *PostgresStore) DistinctCountGroupedBy(ctx context.Context, f Filter, by []Dimension, distinct Dimension) ([]GroupStat, error) {
	return s.grouped(ctx, f, by, distinct)
}

func (s *PostgresStore) grouped(ctx context.Context, f Filter, by []Dimension, distinct Dimension) ([]GroupStat, error) {
	groupCols := make([]string, 0, len(by))
	for _, d := range by {
		col, ok := dimensionColumns[d]
		if !ok {
			return nil, fmt.Errorf("unknown grouping dimension %q", d)
		}
		groupCols = append(groupCols, fmt.Sprintf("COALESCE(%s, '')", col))
	}

	distinctExpr := "0"
	if distinct != "" {
		col, ok := dimensionColumns[distinct]
		if !ok {
			return nil, fmt.Errorf("unknown distinct dimension %q", distinct)
		}
		distinctExpr = fmt.Sprintf("COUNT(DISTINCT %s)", col)
	}

	where, args := buildWhere(f)
	query := fmt.Sprintf(`
		SELECT %s, COUNT(*), %s, MIN(timestamp), MAX(timestamp)
		FROM audit_log
		%s
		GROUP BY %s
		ORDER BY COUNT(*) DESC
	`, strings.Join(groupCols, ", "), distinctExpr, where, strings.Join(groupCols, ", "))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate audit log: %w", err)
	}
	defer rows.Close()

	stats := []GroupStat{}
	for rows.Next() {
		var st GroupStat
		dests := make([]interface{}, 0, len(by)+4)
		fields := make([]*string, len(by))
		for i := range by {
			fields[i] = new(string)
			dests = append(dests, fields[i])
		}
		dests = append(dests, &st.Count, &st.DistinctCount, &st.First, &st.Last)
		if err := rows.Scan(dests...); err != nil {
			return nil, fmt.Errorf("failed to scan aggregation row: %w", err)
		}
		for i, d := range by {
			switch d {
			case DimensionUser:
				st.UserID = *fields[i]
			case DimensionRole:
				st.Role = *fields[i]
			case DimensionIP:
				st.IP = *fields[i]
			case DimensionPath:
				st.Path = *fields[i]
			}
		}
		stats = append(stats, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read aggregation rows: %w", err)
	}
	return stats, nil
}

// UserDailyAggregates returns one aggregate per UTC day of user activity.
func (s *PostgresStore) UserDailyAggregates(ctx context.Context, userID string, from, to time.Time) ([]models.DailyUserAggregate, error) {
	query := `
		SELECT
			date_trunc('day', timestamp AT TIME ZONE 'UTC') AS day,
			COUNT(*),
			COUNT(DISTINCT patient_id),
			COUNT(*) FILTER (WHERE is_phi_access),
			COUNT(*) FILTER (WHERE status_code >= 400),
			COALESCE(AVG(duration_ms), 0)
		FROM audit_log
		WHERE user_id = $1 AND timestamp >= $2 AND timestamp < $3
		GROUP BY 1
		ORDER BY 1
	`
	rows, err := s.pool.Query(ctx, query, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily aggregates: %w", err)
	}
	defer rows.Close()

	aggs := []models.DailyUserAggregate{}
	for rows.Next() {
		var a models.DailyUserAggregate
		if err := rows.Scan(&a.Date, &a.RequestCount, &a.DistinctPatients,
			&a.PHIAccessCount, &a.ErrorCount, &a.AvgDurationMS); err != nil {
			return nil, fmt.Errorf("failed to scan daily aggregate: %w", err)
		}
		aggs = append(aggs, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read daily aggregates: %w", err)
	}
	return aggs, nil
}

// WindowAggregates returns one aggregate per user active in the window.
func (s *PostgresStore) WindowAggregates(ctx context.Context, from, to time.Time) ([]models.UserWindowAggregate, error) {
	query := `
		SELECT
			user_id,
			COALESCE(MAX(user_role), ''),
			COUNT(*),
			COUNT(DISTINCT patient_id),
			COUNT(*) FILTER (WHERE is_phi_access),
			COUNT(*) FILTER (WHERE status_code >= 400),
			COALESCE(AVG(duration_ms), 0)
		FROM audit_log
		WHERE user_id IS NOT NULL AND timestamp >= $1 AND timestamp < $2
		GROUP BY user_id
		ORDER BY user_id
	`
	rows, err := s.pool.Query(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query window aggregates: %w", err)
	}
	defer rows.Close()

	aggs := []models.UserWindowAggregate{}
	for rows.Next() {
		var a models.UserWindowAggregate
		if err := rows.Scan(&a.UserID, &a.Role, &a.RequestCount, &a.DistinctPatients,
			&a.PHIAccessCount, &a.ErrorCount, &a.AvgDurationMS); err != nil {
			return nil, fmt.Errorf("failed to scan window aggregate: %w", err)
		}
		aggs = append(aggs, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read window aggregates: %w", err)
	}
	return aggs, nil
}

// RoleUserDayDistinctPatients returns per-(user, day) distinct-patient counts
// for the role.
func (s *PostgresStore) RoleUserDayDistinctPatients(ctx context.Context, role string, from, to time.Time) ([]float64, error) {
	query := `
		SELECT COUNT(DISTINCT patient_id)
		FROM audit_log
		WHERE user_role = $1
		  AND user_id IS NOT NULL
		  AND patient_id IS NOT NULL
		  AND timestamp >= $2 AND timestamp < $3
		GROUP BY user_id, date_trunc('day', timestamp AT TIME ZONE 'UTC')
	`
	rows, err := s.pool.Query(ctx, query, role, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query role samples: %w", err)
	}
	defer rows.Close()

	samples := []float64{}
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan role sample: %w", err)
		}
		samples = append(samples, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read role samples: %w", err)
	}
	return samples, nil
}

// UserIPs returns the distinct IPs seen for the user in the range.
func (s *PostgresStore) UserIPs(ctx context.Context, userID string, from, to time.Time) ([]string, error) {
	query := `
		SELECT DISTINCT ip_address
		FROM audit_log
		WHERE user_id = $1 AND ip_address <> '' AND timestamp >= $2 AND timestamp < $3
		ORDER BY ip_address
	`
	rows, err := s.pool.Query(ctx, query, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query user IPs: %w", err)
	}
	defer rows.Close()

	ips := []string{}
	for rows.Next() {
		var ip string
		if err := rows.Scan(&ip); err != nil {
			return nil, fmt.Errorf("failed to scan user IP: %w", err)
		}
		ips = append(ips, ip)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read user IPs: %w", err)
	}
	return ips, nil
}
