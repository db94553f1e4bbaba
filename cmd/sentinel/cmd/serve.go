package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/DentaMind/SmartDentalAI-sub000/internal/alerts"
	"github.com/DentaMind/SmartDentalAI-sub000/internal/audit"
	"github.com/DentaMind/SmartDentalAI-sub000/internal/config"
	"github.com/DentaMind/SmartDentalAI-sub000/internal/handlers"
	"github.com/DentaMind/SmartDentalAI-sub000/internal/logging"
	"github.com/DentaMind/SmartDentalAI-sub000/internal/models"
	"github.com/DentaMind/SmartDentalAI-sub000/internal/notification"
	"github.com/DentaMind/SmartDentalAI-sub000/internal/scan"
	"github.com/DentaMind/SmartDentalAI-sub000/internal/scheduler"
	"github.com/DentaMind/SmartDentalAI-sub000/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the sentinel HTTP service and background scanner",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	mgr, err := config.LoadManager(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg := mgr.Snapshot()

	logger := logging.New(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format)
	logging.SetDefault(logger)

	connString := cfg.Database.Postgres.ConnString()

	log.Println("Running database migrations...")
	m, err := migrate.New("file://migrations", connString)
	if err != nil {
		return fmt.Errorf("failed to initialize migrations: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	log.Println("Database migrations completed")

	ctx := context.Background()

	store, closeStore, err := newAuditStore(ctx, cfg, connString)
	if err != nil {
		return err
	}
	defer closeStore()

	repo, err := alerts.NewPostgresRepository(ctx, connString)
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	defer repo.Close()
	alertSvc := alerts.NewService(repo)

	var suppressor *alerts.Suppressor
	if cfg.Redis.Enabled {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("invalid redis url: %w", err)
		}
		client := redis.NewClient(opts)
		defer client.Close()
		suppressor = alerts.NewSuppressor(client, cfg.Suppression.Window)
	}

	channels := []notification.Channel{
		notification.NewLogChannel(),
		notification.NewWebhookChannel(repo, cfg.Notification.WebhookTimeout),
	}
	if cfg.NATS.Enabled {
		nc, err := notification.NewNATSChannel(cfg.NATS.URL, cfg.NATS.Subject)
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		defer nc.Close()
		channels = append(channels, nc)
	}
	dispatcher := notification.NewDispatcher(models.Severity(cfg.Notification.MinSeverity), channels...)

	scanSvc := scan.NewService(mgr, store, alertSvc, suppressor, dispatcher)

	sched := scheduler.NewScheduler(mgr, scanSvc, alertSvc, logDigest)
	schedCtx, schedCancel := context.WithCancel(ctx)
	defer schedCancel()
	if err := sched.Start(schedCtx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	handler := handlers.NewHandler(alertSvc, scanSvc, repo)
	router := server.NewRouter(handler, cfg.Auth.JWTSecret)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Printf("Sentinel service listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	if err := sched.Stop(); err != nil {
		log.Printf("Scheduler stop: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Server.WriteTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Println("Server stopped gracefully")
	return nil
}

// newAuditStore builds the audit-log query backend selected in config.
func newAuditStore(ctx context.Context, cfg *config.Config, connString string) (audit.Store, func(), error) {
	switch cfg.Storage.Backend {
	case "postgres", "":
		store, err := audit.NewPostgresStore(ctx, connString)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to PostgreSQL audit store: %w", err)
		}
		return store, store.Close, nil
	case "opensearch":
		store, err := audit.NewOpenSearchStore(audit.OpenSearchOptions{
			URL:      cfg.Storage.OpenSearch.URL,
			Username: cfg.Storage.OpenSearch.Username,
			Password: cfg.Storage.OpenSearch.Password,
			Insecure: cfg.Storage.OpenSearch.Insecure,
			Index:    cfg.Storage.OpenSearch.Index,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create OpenSearch audit store: %w", err)
		}
		return store, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

func logDigest(ctx context.Context, digest *models.Digest) {
	log.Printf("ALERT DIGEST %s to %s: %d alerts (%d open high), resolution rate %.0f%%",
		digest.From.Format("2006-01-02"), digest.To.Format("2006-01-02"),
		digest.Total, digest.OpenHigh, digest.ResolutionRate*100)
}
