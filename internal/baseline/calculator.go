// Package baseline computes the historical statistics detectors compare
// against. All baselines are derived from a trailing reference period that
// ends where the analysis window begins, so the behavior under scrutiny can
// never contaminate its own baseline.
package baseline

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/DentaMind/SmartDentalAI-sub000/internal/audit"
	"github.com/DentaMind/SmartDentalAI-sub000/internal/models"
)

// ErrNoBaseline indicates the reference period holds too few samples to form
// a usable statistic. Callers skip the statistical check or fall back to an
// absolute threshold.
var ErrNoBaseline = errors.New("no baseline available")

// Stats is a (mean, stddev) summary over a sample set.
type Stats struct {
	Mean    float64
	StdDev  float64
	Samples int
}

// UserStats holds per-dimension statistics of one user's daily behavior.
type UserStats struct {
	RequestCount     Stats
	DistinctPatients Stats
	PHIAccessCount   Stats
	ErrorCount       Stats
	AvgDurationMS    Stats
}

// Period is the reference time range a baseline is computed over.
type Period struct {
	From time.Time
	To   time.Time
}

// ReferencePeriod returns the trailing reference period of the given length
// ending at the start of the analysis window.
func ReferencePeriod(windowStart time.Time, days int) Period {
	return Period{From: windowStart.AddDate(0, 0, -days), To: windowStart}
}

// Calculator computes role and user baselines, memoizing each result for the
// lifetime of one detection run. Detectors running concurrently share a
// single Calculator; a fresh one is created per scan.
type Calculator struct {
	store      audit.Store
	minSamples int

	mu    sync.Mutex
	roles map[string]*roleEntry
	users map[string]*userEntry
	ips   map[string]*ipEntry
}

type roleEntry struct {
	stats *Stats
	err   error
}

type userEntry struct {
	stats *UserStats
	err   error
}

type ipEntry struct {
	ips []string
	err error
}

// NewCalculator creates a Calculator over the given store. minSamples is the
// minimum number of daily aggregates required before a baseline is usable.
func NewCalculator(store audit.Store, minSamples int) *Calculator {
	if minSamples < 1 {
		minSamples = 1
	}
	return &Calculator{
		store:      store,
		minSamples: minSamples,
		roles:      make(map[string]*roleEntry),
		users:      make(map[string]*userEntry),
		ips:        make(map[string]*ipEntry),
	}
}

// RoleBaseline returns the distinct-patients-per-user-day statistic for a
// role over the reference period. Returns ErrNoBaseline when fewer than
// minSamples user-day cells exist.
func (c *Calculator) RoleBaseline(ctx context.Context, role string, ref Period) (*Stats, error) {
	c.mu.Lock()
	if e, ok := c.roles[role]; ok {
		c.mu.Unlock()
		return e.stats, e.err
	}
	c.mu.Unlock()

	samples, err := c.store.RoleUserDayDistinctPatients(ctx, role, ref.From, ref.To)
	if err == nil && len(samples) < c.minSamples {
		err = ErrNoBaseline
	}
	var stats *Stats
	if err == nil {
		stats = summarize(samples)
	}

	c.mu.Lock()
	c.roles[role] = &roleEntry{stats: stats, err: err}
	c.mu.Unlock()
	return stats, err
}

// UserBaseline returns per-dimension statistics of the user's daily behavior
// over the reference period. Returns ErrNoBaseline when the user has fewer
// than minSamples active days.
func (c *Calculator) UserBaseline(ctx context.Context, userID string, ref Period) (*UserStats, error) {
	c.mu.Lock()
	if e, ok := c.users[userID]; ok {
		c.mu.Unlock()
		return e.stats, e.err
	}
	c.mu.Unlock()

	days, err := c.store.UserDailyAggregates(ctx, userID, ref.From, ref.To)
	if err == nil && len(days) < c.minSamples {
		err = ErrNoBaseline
	}
	var stats *UserStats
	if err == nil {
		stats = summarizeUser(days)
	}

	c.mu.Lock()
	c.users[userID] = &userEntry{stats: stats, err: err}
	c.mu.Unlock()
	return stats, err
}

// KnownIPs returns the user's historical IP set over the reference period.
// An empty set is not an error: it means the user has no history.
func (c *Calculator) KnownIPs(ctx context.Context, userID string, ref Period) ([]string, error) {
	c.mu.Lock()
	if e, ok := c.ips[userID]; ok {
		c.mu.Unlock()
		return e.ips, e.err
	}
	c.mu.Unlock()

	ips, err := c.store.UserIPs(ctx, userID, ref.From, ref.To)

	c.mu.Lock()
	c.ips[userID] = &ipEntry{ips: ips, err: err}
	c.mu.Unlock()
	return ips, err
}

// ZScore returns how many standard deviations observed sits from the
// baseline, and whether the comparison is valid. A dimension with zero
// stddev (flat history) is never comparable: flagging it would divide by
// zero or turn any change into an anomaly.
func (s Stats) ZScore(observed float64) (float64, bool) {
	if s.StdDev == 0 || s.Samples == 0 {
		return 0, false
	}
	return (observed - s.Mean) / s.StdDev, true
}

func summarize(samples []float64) *Stats {
	n := float64(len(samples))
	if n == 0 {
		return &Stats{}
	}
	var sum float64
	for _, v := range samples {
		sum += v
	}
	mean := sum / n

	var sq float64
	for _, v := range samples {
		d := v - mean
		sq += d * d
	}
	return &Stats{Mean: mean, StdDev: math.Sqrt(sq / n), Samples: len(samples)}
}

func summarizeUser(days []models.DailyUserAggregate) *UserStats {
	pick := func(get func(models.DailyUserAggregate) float64) *Stats {
		samples := make([]float64, len(days))
		for i, d := range days {
			samples[i] = get(d)
		}
		return summarize(samples)
	}
	return &UserStats{
		RequestCount:     *pick(func(d models.DailyUserAggregate) float64 { return d.RequestCount }),
		DistinctPatients: *pick(func(d models.DailyUserAggregate) float64 { return d.DistinctPatients }),
		PHIAccessCount:   *pick(func(d models.DailyUserAggregate) float64 { return d.PHIAccessCount }),
		ErrorCount:       *pick(func(d models.DailyUserAggregate) float64 { return d.ErrorCount }),
		AvgDurationMS:    *pick(func(d models.DailyUserAggregate) float64 { return d.AvgDurationMS }),
	}
}
