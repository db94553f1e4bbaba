// audit-seeder fills the audit_log table with synthetic traffic for local
// development. It writes a baseline of normal staff activity plus a few
// injectable incident patterns so every detector has something to find.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	connString = flag.String("db", "postgres://sentinel@localhost:5432/dental_audit?sslmode=disable", "PostgreSQL connection string")
	days       = flag.Int("days", 35, "Days of history to generate")
	staff      = flag.Int("staff", 12, "Number of staff users")
	perDay     = flag.Int("per-day", 400, "Approximate requests per day")
	incidents  = flag.String("incidents", "bruteforce,scrape,nightowl,snoop", "Comma-separated incident patterns to inject")
	batchSize  = flag.Int("batch-size", 500, "Rows per insert batch")
)

type staffUser struct {
	ID   string
	Role string
	IPs  []string
}

type row struct {
	ts         time.Time
	userID     string
	userRole   string
	ip         string
	method     string
	path       string
	status     int
	durationMS float64
	patientID  string
	phi        bool
	userAgent  string
}

var roles = []string{"dentist", "hygienist", "receptionist", "billing"}

var apiPaths = []struct {
	method string
	path   string
	phi    bool
}{
	{"GET", "/api/patients/%s", true},
	{"GET", "/api/patients/%s/chart", true},
	{"GET", "/api/patients/%s/xrays", true},
	{"POST", "/api/patients/%s/notes", true},
	{"GET", "/api/appointments", false},
	{"POST", "/api/appointments", false},
	{"GET", "/api/billing/invoices", false},
	{"GET", "/api/schedule/today", false},
}

func main() {
	flag.Parse()
	gofakeit.Seed(time.Now().UnixNano())

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, *connString)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}

	users := makeStaff(*staff)
	patients := makePatients(200)
	now := time.Now().UTC()
	start := now.AddDate(0, 0, -*days)

	log.Printf("Seeding %d days of audit traffic for %d staff users...", *days, *staff)

	var rows []row
	for day := 0; day < *days; day++ {
		dayStart := start.AddDate(0, 0, day)
		rows = append(rows, normalDay(dayStart, users, patients, *perDay)...)
	}
	for _, incident := range splitList(*incidents) {
		rows = append(rows, injectIncident(incident, now, users, patients)...)
	}

	inserted := 0
	for len(rows) > 0 {
		n := min(*batchSize, len(rows))
		if err := insertBatch(ctx, pool, rows[:n]); err != nil {
			log.Fatalf("Failed to insert batch: %v", err)
		}
		inserted += n
		rows = rows[n:]
		if inserted%5000 < n {
			log.Printf("Progress: %d rows inserted", inserted)
		}
	}

	log.Printf("Seeding complete: %d rows", inserted)
}

func makeStaff(n int) []staffUser {
	users := make([]staffUser, n)
	for i := range users {
		ips := make([]string, 1+rand.Intn(2))
		for j := range ips {
			ips[j] = gofakeit.IPv4Address()
		}
		users[i] = staffUser{
			ID:   fmt.Sprintf("%s-%d", roles[i%len(roles)], i+1),
			Role: roles[i%len(roles)],
			IPs:  ips,
		}
	}
	return users
}

func makePatients(n int) []string {
	patients := make([]string, n)
	for i := range patients {
		patients[i] = fmt.Sprintf("pat-%05d", 10000+i)
	}
	return patients
}

// normalDay produces business-hours traffic with a realistic error rate.
func normalDay(dayStart time.Time, users []staffUser, patients []string, count int) []row {
	rows := make([]row, 0, count)
	for i := 0; i < count; i++ {
		u := users[rand.Intn(len(users))]
		ep := apiPaths[rand.Intn(len(apiPaths))]

		// 8am to 6pm local clinic hours.
		ts := dayStart.Add(8*time.Hour +
			time.Duration(rand.Int63n(int64(10*time.Hour))))

		r := row{
			ts:         ts,
			userID:     u.ID,
			userRole:   u.Role,
			ip:         u.IPs[rand.Intn(len(u.IPs))],
			method:     ep.method,
			status:     200,
			durationMS: 20 + rand.Float64()*180,
			phi:        ep.phi,
			userAgent:  gofakeit.UserAgent(),
		}
		if ep.phi {
			r.patientID = patients[rand.Intn(len(patients))]
			r.path = fmt.Sprintf(ep.path, r.patientID)
		} else {
			r.path = ep.path
		}
		if rand.Float32() < 0.03 {
			r.status = []int{400, 403, 404, 500}[rand.Intn(4)]
		}
		rows = append(rows, r)
	}
	return rows
}

func injectIncident(name string, now time.Time, users []staffUser, patients []string) []row {
	switch name {
	case "bruteforce":
		// Credential stuffing burst from one external address.
		attacker := gofakeit.IPv4Address()
		rows := make([]row, 0, 15)
		base := now.Add(-2 * time.Hour)
		for i := 0; i < 15; i++ {
			rows = append(rows, row{
				ts:         base.Add(time.Duration(i) * 12 * time.Second),
				ip:         attacker,
				method:     "POST",
				path:       "/api/auth/login",
				status:     401,
				durationMS: 35,
				userAgent:  "curl/8.5.0",
			})
		}
		return rows
	case "scrape":
		// One session walking many distinct endpoints quickly.
		u := users[0]
		rows := make([]row, 0, 30)
		base := now.Add(-90 * time.Minute)
		for i := 0; i < 30; i++ {
			rows = append(rows, row{
				ts:         base.Add(time.Duration(i) * 7 * time.Second),
				userID:     u.ID,
				userRole:   u.Role,
				ip:         gofakeit.IPv4Address(),
				method:     "GET",
				path:       fmt.Sprintf("/api/export/table-%02d", i),
				status:     200,
				durationMS: 150,
				userAgent:  "python-requests/2.32",
			})
		}
		return rows
	case "nightowl":
		// PHI access at 2am across several patients.
		u := users[1]
		night := time.Date(now.Year(), now.Month(), now.Day(), 2, 10, 0, 0, time.UTC).Add(-24 * time.Hour)
		rows := make([]row, 0, 8)
		for i := 0; i < 8; i++ {
			pid := patients[rand.Intn(len(patients))]
			rows = append(rows, row{
				ts:         night.Add(time.Duration(i) * 3 * time.Minute),
				userID:     u.ID,
				userRole:   u.Role,
				ip:         u.IPs[0],
				method:     "GET",
				path:       "/api/patients/" + pid + "/chart",
				status:     200,
				durationMS: 90,
				patientID:  pid,
				phi:        true,
				userAgent:  gofakeit.UserAgent(),
			})
		}
		return rows
	case "snoop":
		// A receptionist opening far more charts than the role baseline.
		u := users[2]
		base := now.Add(-6 * time.Hour)
		rows := make([]row, 0, 60)
		for i := 0; i < 60; i++ {
			pid := patients[(i*3)%len(patients)]
			rows = append(rows, row{
				ts:         base.Add(time.Duration(i) * 4 * time.Minute),
				userID:     u.ID,
				userRole:   u.Role,
				ip:         u.IPs[0],
				method:     "GET",
				path:       "/api/patients/" + pid,
				status:     200,
				durationMS: 60,
				patientID:  pid,
				phi:        true,
				userAgent:  gofakeit.UserAgent(),
			})
		}
		return rows
	default:
		log.Printf("Unknown incident pattern %q, skipping", name)
		return nil
	}
}

func insertBatch(ctx context.Context, pool *pgxpool.Pool, rows []row) error {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO audit_log (
				timestamp, user_id, user_role, ip_address, http_method,
				path, status_code, duration_ms, patient_id, is_phi_access, user_agent
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			r.ts, nullable(r.userID), nullable(r.userRole), r.ip, r.method,
			r.path, r.status, r.durationMS, nullable(r.patientID), r.phi, nullable(r.userAgent),
		)
	}
	return pool.SendBatch(ctx, batch).Close()
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func splitList(s string) []string {
	var out []string
	current := ""
	for _, c := range s {
		if c == ',' {
			if current != "" {
				out = append(out, current)
				current = ""
			}
			continue
		}
		current += string(c)
	}
	if current != "" {
		out = append(out, current)
	}
	return out
}
