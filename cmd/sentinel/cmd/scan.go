package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/DentaMind/SmartDentalAI-sub000/internal/alerts"
	"github.com/DentaMind/SmartDentalAI-sub000/internal/config"
	"github.com/DentaMind/SmartDentalAI-sub000/internal/models"
	"github.com/DentaMind/SmartDentalAI-sub000/internal/scan"
)

var (
	scanHours    int
	scanFrom     string
	scanTo       string
	scanDetector string
	scanDryRun   bool
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run one detection scan and print the result as JSON",
	Long: `scan runs the detection engine once against the configured audit store
and prints the resulting anomalies. Alerts are materialized in PostgreSQL
unless --dry-run is given, in which case findings are only printed.`,
	RunE: runScan,
}

func init() {
	scanCmd.Flags().IntVar(&scanHours, "hours", 0, "scan the trailing N hours (default: configured lookback)")
	scanCmd.Flags().StringVar(&scanFrom, "from", "", "window start (RFC3339), requires --to")
	scanCmd.Flags().StringVar(&scanTo, "to", "", "window end (RFC3339), requires --from")
	scanCmd.Flags().StringVar(&scanDetector, "detector", "", "run a single detector by name")
	scanCmd.Flags().BoolVar(&scanDryRun, "dry-run", false, "print findings without persisting alerts")
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	mgr := config.NewManager(cfg)

	req := &models.ScanRequest{WindowHours: scanHours, Detector: scanDetector}
	if scanFrom != "" {
		t, err := time.Parse(time.RFC3339, scanFrom)
		if err != nil {
			return fmt.Errorf("invalid --from: %w", err)
		}
		req.From = &t
	}
	if scanTo != "" {
		t, err := time.Parse(time.RFC3339, scanTo)
		if err != nil {
			return fmt.Errorf("invalid --to: %w", err)
		}
		req.To = &t
	}

	ctx := context.Background()
	connString := cfg.Database.Postgres.ConnString()

	store, closeStore, err := newAuditStore(ctx, cfg, connString)
	if err != nil {
		return err
	}
	defer closeStore()

	var repo alerts.Repository
	if scanDryRun {
		repo = alerts.NewMemoryRepository()
	} else {
		pg, err := alerts.NewPostgresRepository(ctx, connString)
		if err != nil {
			return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}
		defer pg.Close()
		repo = pg
	}
	alertSvc := alerts.NewService(repo)

	var suppressor *alerts.Suppressor
	if !scanDryRun && cfg.Redis.Enabled {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("invalid redis url: %w", err)
		}
		client := redis.NewClient(opts)
		defer client.Close()
		suppressor = alerts.NewSuppressor(client, cfg.Suppression.Window)
	}

	svc := scan.NewService(mgr, store, alertSvc, suppressor, nil)
	result, err := svc.Run(ctx, req)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
