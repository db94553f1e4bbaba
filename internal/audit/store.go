// Package audit is the read-only query interface over the platform's
// append-only HTTP audit log. Detectors express their aggregations through
// the Store contract so the backing store (PostgreSQL, OpenSearch, memory)
// can be swapped without touching detector logic.
package audit

import (
	"context"
	"time"

	"github.com/DentaMind/SmartDentalAI-sub000/internal/models"
)

// Dimension is an audit-log field usable as a grouping or distinct key.
type Dimension string

const (
	DimensionUser    Dimension = "user_id"
	DimensionRole    Dimension = "user_role"
	DimensionIP      Dimension = "ip_address"
	DimensionPath    Dimension = "path"
	DimensionPatient Dimension = "patient_id"
)

// HourWindow selects entries by hour of day. When Start > End the window
// wraps past midnight (22..6 covers 22:00-23:59 and 00:00-05:59).
type HourWindow struct {
	Start int
	End   int
}

// Contains reports whether the given hour falls inside the window.
func (h HourWindow) Contains(hour int) bool {
	if h.Start <= h.End {
		return hour >= h.Start && hour < h.End
	}
	return hour >= h.Start || hour < h.End
}

// Filter restricts the audit entries an aggregation runs over. The time
// range is half-open: [From, To).
type Filter struct {
	From time.Time
	To   time.Time

	PathPrefix        string
	ExcludePaths      []string // prefix match
	MinStatusCode     int
	PHIOnly           bool
	PatientsOnly      bool // entries with a patient_id
	AuthenticatedOnly bool // entries with a user_id
	Hours             *HourWindow
}

// Group is a composite grouping key. Only the fields named in the grouping
// dimensions are populated.
type Group struct {
	UserID string
	Role   string
	IP     string
	Path   string
}

// GroupStat is one aggregation bucket: the event count (and optionally a
// distinct count) plus the first/last timestamps seen in the bucket.
type GroupStat struct {
	Group
	Count         int64
	DistinctCount int64
	First         time.Time
	Last          time.Time
}

// Span returns the elapsed time between the first and last event in the
// bucket.
func (g GroupStat) Span() time.Duration {
	return g.Last.Sub(g.First)
}

// Store is the Log Query Interface. Implementations must treat the audit log
// as read-only and respect the caller's context deadline.
type Store interface {
	// CountGroupedBy counts entries matching f, grouped by the given
	// dimensions.
	CountGroupedBy(ctx context.Context, f Filter, by []Dimension) ([]GroupStat, error)

	// DistinctCountGroupedBy additionally computes the distinct count of one
	// dimension per bucket. Entries with an empty distinct value are counted
	// but contribute nothing to the distinct count.
	DistinctCountGroupedBy(ctx context.Context, f Filter, by []Dimension, distinct Dimension) ([]GroupStat, error)

	// UserDailyAggregates returns one aggregate per UTC day on which the
	// user was active in [from, to).
	UserDailyAggregates(ctx context.Context, userID string, from, to time.Time) ([]models.DailyUserAggregate, error)

	// WindowAggregates returns one aggregate per user active in [from, to).
	WindowAggregates(ctx context.Context, from, to time.Time) ([]models.UserWindowAggregate, error)

	// RoleUserDayDistinctPatients returns the distinct-patient count of every
	// (user, UTC day) cell for the role in [from, to). These samples feed the
	// role baseline.
	RoleUserDayDistinctPatients(ctx context.Context, role string, from, to time.Time) ([]float64, error)

	// UserIPs returns the distinct IP addresses the user appeared from in
	// [from, to).
	UserIPs(ctx context.Context, userID string, from, to time.Time) ([]string, error)
}
