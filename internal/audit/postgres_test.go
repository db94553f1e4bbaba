package audit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBuildWhereTimeRange(t *testing.T) {
	from := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)

	where, args := buildWhere(Filter{From: from, To: to})
	assert.Equal(t, "WHERE timestamp >= $1 AND timestamp < $2", where)
	assert.Equal(t, []interface{}{from, to}, args)
}

func TestBuildWhereFilters(t *testing.T) {
	from := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)
	f := Filter{
		From:              from,
		To:                from.Add(time.Hour),
		PathPrefix:        "/api/auth",
		MinStatusCode:     400,
		AuthenticatedOnly: true,
	}

	where, args := buildWhere(f)
	assert.Contains(t, where, "path LIKE $3")
	assert.Contains(t, where, "status_code >= $4")
	assert.Contains(t, where, "user_id IS NOT NULL")
	assert.Equal(t, []interface{}{f.From, f.To, "/api/auth%", 400}, args)
}

func TestBuildWhereHoursBucketInUTC(t *testing.T) {
	from := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)

	// Wraparound window joins the bounds with OR; hour extraction pins the
	// time zone so the clause matches the other backends regardless of the
	// DB session setting.
	where, args := buildWhere(Filter{
		From:  from,
		To:    from.Add(24 * time.Hour),
		Hours: &HourWindow{Start: 22, End: 6},
	})
	assert.Contains(t, where,
		"(EXTRACT(HOUR FROM timestamp AT TIME ZONE 'UTC') >= $3 OR EXTRACT(HOUR FROM timestamp AT TIME ZONE 'UTC') < $4)")
	assert.Equal(t, []interface{}{from, from.Add(24 * time.Hour), 22, 6}, args)

	// A daytime window joins with AND.
	where, _ = buildWhere(Filter{
		From:  from,
		To:    from.Add(24 * time.Hour),
		Hours: &HourWindow{Start: 9, End: 17},
	})
	assert.Contains(t, where,
		"(EXTRACT(HOUR FROM timestamp AT TIME ZONE 'UTC') >= $3 AND EXTRACT(HOUR FROM timestamp AT TIME ZONE 'UTC') < $4)")
}
