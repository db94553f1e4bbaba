package audit

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/DentaMind/SmartDentalAI-sub000/internal/models"
)

// MemoryStore is an in-memory Store over a fixed entry slice. Used in tests
// and for local development with seeded data.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []models.AuditLogEntry
}

// NewMemoryStore creates a MemoryStore holding the given entries.
func NewMemoryStore(entries []models.AuditLogEntry) *MemoryStore {
	return &MemoryStore{entries: entries}
}

// Append adds entries to the store.
func (s *MemoryStore) Append(entries ...models.AuditLogEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entries...)
}

func (s *MemoryStore) matches(f Filter, e models.AuditLogEntry) bool {
	if e.Timestamp.Before(f.From) || !e.Timestamp.Before(f.To) {
		return false
	}
	if f.PathPrefix != "" && !strings.HasPrefix(e.Path, f.PathPrefix) {
		return false
	}
	for _, p := range f.ExcludePaths {
		if strings.HasPrefix(e.Path, p) {
			return false
		}
	}
	if f.MinStatusCode > 0 && e.StatusCode < f.MinStatusCode {
		return false
	}
	if f.PHIOnly && !e.IsPHIAccess {
		return false
	}
	if f.PatientsOnly && e.PatientID == "" {
		return false
	}
	if f.AuthenticatedOnly && e.UserID == "" {
		return false
	}
	if f.Hours != nil && !f.Hours.Contains(e.Timestamp.Hour()) {
		return false
	}
	return true
}

func dimensionValue(d Dimension, e models.AuditLogEntry) string {
	switch d {
	case DimensionUser:
		return e.UserID
	case DimensionRole:
		return e.UserRole
	case DimensionIP:
		return e.IPAddress
	case DimensionPath:
		return e.Path
	case DimensionPatient:
		return e.PatientID
	}
	return ""
}

func groupKey(by []Dimension, e models.AuditLogEntry) Group {
	var g Group
	for _, d := range by {
		switch d {
		case DimensionUser:
			g.UserID = e.UserID
		case DimensionRole:
			g.Role = e.UserRole
		case DimensionIP:
			g.IP = e.IPAddress
		case DimensionPath:
			g.Path = e.Path
		}
	}
	return g
}

// CountGroupedBy counts matching entries per group.
func (s *MemoryStore) CountGroupedBy(ctx context.Context, f Filter, by []Dimension) ([]GroupStat, error) {
	return s.aggregate(ctx, f, by, "")
}

// DistinctCountGroupedBy counts matching entries and distinct values per group.
func (s *MemoryStore) DistinctCountGroupedBy(ctx context.Context, f Filter, by []Dimension, distinct Dimension) ([]GroupStat, error) {
	return s.aggregate(ctx, f, by, distinct)
}

func (s *MemoryStore) aggregate(ctx context.Context, f Filter, by []Dimension, distinct Dimension) ([]GroupStat, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := make(map[Group]*GroupStat)
	distinctSets := make(map[Group]map[string]struct{})
	for _, e := range s.entries {
		if !s.matches(f, e) {
			continue
		}
		key := groupKey(by, e)
		st, ok := stats[key]
		if !ok {
			st = &GroupStat{Group: key, First: e.Timestamp, Last: e.Timestamp}
			stats[key] = st
		}
		st.Count++
		if e.Timestamp.Before(st.First) {
			st.First = e.Timestamp
		}
		if e.Timestamp.After(st.Last) {
			st.Last = e.Timestamp
		}
		if distinct != "" {
			if v := dimensionValue(distinct, e); v != "" {
				set, ok := distinctSets[key]
				if !ok {
					set = make(map[string]struct{})
					distinctSets[key] = set
				}
				set[v] = struct{}{}
			}
		}
	}

	out := make([]GroupStat, 0, len(stats))
	for key, st := range stats {
		st.DistinctCount = int64(len(distinctSets[key]))
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out, nil
}

// UserDailyAggregates buckets one user's activity by UTC day.
func (s *MemoryStore) UserDailyAggregates(ctx context.Context, userID string, from, to time.Time) ([]models.DailyUserAggregate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	type bucket struct {
		agg      models.DailyUserAggregate
		patients map[string]struct{}
		duration float64
	}
	days := make(map[time.Time]*bucket)
	f := Filter{From: from, To: to}
	for _, e := range s.entries {
		if e.UserID != userID || !s.matches(f, e) {
			continue
		}
		day := e.Timestamp.UTC().Truncate(24 * time.Hour)
		b, ok := days[day]
		if !ok {
			b = &bucket{agg: models.DailyUserAggregate{Date: day}, patients: make(map[string]struct{})}
			days[day] = b
		}
		b.agg.RequestCount++
		b.duration += e.DurationMS
		if e.PatientID != "" {
			b.patients[e.PatientID] = struct{}{}
		}
		if e.IsPHIAccess {
			b.agg.PHIAccessCount++
		}
		if e.StatusCode >= 400 {
			b.agg.ErrorCount++
		}
	}

	out := make([]models.DailyUserAggregate, 0, len(days))
	for _, b := range days {
		b.agg.DistinctPatients = float64(len(b.patients))
		if b.agg.RequestCount > 0 {
			b.agg.AvgDurationMS = b.duration / b.agg.RequestCount
		}
		out = append(out, b.agg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// WindowAggregates computes per-user aggregates over the window.
func (s *MemoryStore) WindowAggregates(ctx context.Context, from, to time.Time) ([]models.UserWindowAggregate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	type bucket struct {
		agg      models.UserWindowAggregate
		patients map[string]struct{}
		duration float64
	}
	users := make(map[string]*bucket)
	f := Filter{From: from, To: to, AuthenticatedOnly: true}
	for _, e := range s.entries {
		if !s.matches(f, e) {
			continue
		}
		b, ok := users[e.UserID]
		if !ok {
			b = &bucket{agg: models.UserWindowAggregate{UserID: e.UserID}, patients: make(map[string]struct{})}
			users[e.UserID] = b
		}
		if e.UserRole != "" {
			b.agg.Role = e.UserRole
		}
		b.agg.RequestCount++
		b.duration += e.DurationMS
		if e.PatientID != "" {
			b.patients[e.PatientID] = struct{}{}
		}
		if e.IsPHIAccess {
			b.agg.PHIAccessCount++
		}
		if e.StatusCode >= 400 {
			b.agg.ErrorCount++
		}
	}

	out := make([]models.UserWindowAggregate, 0, len(users))
	for _, b := range users {
		b.agg.DistinctPatients = float64(len(b.patients))
		if b.agg.RequestCount > 0 {
			b.agg.AvgDurationMS = b.duration / b.agg.RequestCount
		}
		out = append(out, b.agg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

// RoleUserDayDistinctPatients returns distinct-patient counts per (user, day)
// cell for the role.
func (s *MemoryStore) RoleUserDayDistinctPatients(ctx context.Context, role string, from, to time.Time) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	type cell struct {
		user string
		day  time.Time
	}
	cells := make(map[cell]map[string]struct{})
	f := Filter{From: from, To: to, PatientsOnly: true, AuthenticatedOnly: true}
	for _, e := range s.entries {
		if e.UserRole != role || !s.matches(f, e) {
			continue
		}
		key := cell{user: e.UserID, day: e.Timestamp.UTC().Truncate(24 * time.Hour)}
		set, ok := cells[key]
		if !ok {
			set = make(map[string]struct{})
			cells[key] = set
		}
		set[e.PatientID] = struct{}{}
	}

	out := make([]float64, 0, len(cells))
	for _, set := range cells {
		out = append(out, float64(len(set)))
	}
	return out, nil
}

// UserIPs returns the distinct IPs seen for the user in the range.
func (s *MemoryStore) UserIPs(ctx context.Context, userID string, from, to time.Time) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	set := make(map[string]struct{})
	f := Filter{From: from, To: to}
	for _, e := range s.entries {
		if e.UserID != userID || e.IPAddress == "" || !s.matches(f, e) {
			continue
		}
		set[e.IPAddress] = struct{}{}
	}

	out := make([]string, 0, len(set))
	for ip := range set {
		out = append(out, ip)
	}
	sort.Strings(out)
	return out, nil
}
