package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the audit sentinel service
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Storage      StorageConfig      `mapstructure:"storage"`
	Auth         AuthConfig         `mapstructure:"auth"`
	NATS         NATSConfig         `mapstructure:"nats"`
	Detection    DetectionConfig    `mapstructure:"detection"`
	Suppression  SuppressionConfig  `mapstructure:"suppression"`
	Scan         ScanConfig         `mapstructure:"scan"`
	Digest       DigestConfig       `mapstructure:"digest"`
	Notification NotificationConfig `mapstructure:"notification"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// PostgresConfig holds PostgreSQL connection settings
type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`
}

// ConnString builds a pgx connection string.
func (p PostgresConfig) ConnString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.Database, p.SSLMode)
}

// RedisConfig holds Redis configuration for suppression state
type RedisConfig struct {
	URL     string `mapstructure:"url"`
	Enabled bool   `mapstructure:"enabled"`
}

// StorageConfig selects and configures the audit-log query backend.
// Backend is one of "postgres" or "opensearch".
type StorageConfig struct {
	Backend    string           `mapstructure:"backend"`
	OpenSearch OpenSearchConfig `mapstructure:"opensearch"`
}

// OpenSearchConfig holds OpenSearch connection settings
type OpenSearchConfig struct {
	URL      string `mapstructure:"url"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Insecure bool   `mapstructure:"insecure"`
	Index    string `mapstructure:"index"`
}

// AuthConfig holds operator API authentication settings. Auth is disabled
// when the secret is empty.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

// NATSConfig holds the optional NATS alert fan-out settings
type NATSConfig struct {
	URL     string `mapstructure:"url"`
	Enabled bool   `mapstructure:"enabled"`
	Subject string `mapstructure:"subject"`
}

// DetectionConfig holds every detector threshold. All cutoffs live here so
// detection can be tuned without redeploying.
type DetectionConfig struct {
	FailedLogins             int     `mapstructure:"failed_logins"`
	FailedLoginHighCount     int     `mapstructure:"failed_login_high_count"`
	RapidFireMinutes         float64 `mapstructure:"rapid_fire_minutes"`
	PatientAccessFloor       int     `mapstructure:"patient_access_floor"`
	PatientAccessThreshold   int     `mapstructure:"patient_access_threshold"`
	PatientAccessHighCount   int     `mapstructure:"patient_access_high_count"`
	StdDevMultiplier         float64 `mapstructure:"std_dev_multiplier"`
	HighZScore               float64 `mapstructure:"high_z_score"`
	UnusualHoursStart        int     `mapstructure:"unusual_hours_start"`
	UnusualHoursEnd          int     `mapstructure:"unusual_hours_end"`
	UnusualHoursMinEvents    int     `mapstructure:"unusual_hours_min_events"`
	UnusualHoursHighPatients int     `mapstructure:"unusual_hours_high_patients"`
	DriftHighDimensions      int     `mapstructure:"drift_high_dimensions"`
	RatePerMinute            float64 `mapstructure:"rate_per_minute"`
	RatePerMinuteHigh        float64 `mapstructure:"rate_per_minute_high"`
	ScrapeEndpointCount      int     `mapstructure:"scrape_endpoint_count"`
	ScrapeWindowMinutes      float64 `mapstructure:"scrape_window_minutes"`
	BaselineDays             int     `mapstructure:"baseline_days"`
	BaselineMinSamples       int     `mapstructure:"baseline_min_samples"`
	AuthPathPrefix           string  `mapstructure:"auth_path_prefix"`

	HealthPaths            []string      `mapstructure:"health_paths"`
	DetectorTimeout        time.Duration `mapstructure:"detector_timeout"`
	MaxConcurrentDetectors int           `mapstructure:"max_concurrent_detectors"`
}

// SuppressionConfig controls alert deduplication across overlapping scans
type SuppressionConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Window  time.Duration `mapstructure:"window"`
}

// ScanConfig controls the periodic background scan
type ScanConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
	Lookback time.Duration `mapstructure:"lookback"`
}

// DigestConfig controls the periodic digest notification
type DigestConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Interval   time.Duration `mapstructure:"interval"`
	PeriodDays int           `mapstructure:"period_days"`
}

// NotificationConfig controls alert notification delivery
type NotificationConfig struct {
	WebhookTimeout time.Duration `mapstructure:"webhook_timeout"`
	MinSeverity    string        `mapstructure:"min_severity"`
}

// LoggingConfig controls log level and format
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8096)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "60s")

	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "sentinel")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.postgres.database", "dental_audit")
	v.SetDefault("database.postgres.sslmode", "disable")

	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.enabled", true)

	v.SetDefault("storage.backend", "postgres")
	v.SetDefault("storage.opensearch.url", "https://localhost:9200")
	v.SetDefault("storage.opensearch.username", "admin")
	v.SetDefault("storage.opensearch.password", "")
	v.SetDefault("storage.opensearch.insecure", true)
	v.SetDefault("storage.opensearch.index", "dental-audit-*")

	v.SetDefault("auth.jwt_secret", "")

	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.subject", "sentinel.alerts.high")

	v.SetDefault("detection.failed_logins", 5)
	v.SetDefault("detection.failed_login_high_count", 10)
	v.SetDefault("detection.rapid_fire_minutes", 5.0)
	v.SetDefault("detection.patient_access_floor", 5)
	v.SetDefault("detection.patient_access_threshold", 20)
	v.SetDefault("detection.patient_access_high_count", 50)
	v.SetDefault("detection.std_dev_multiplier", 3.0)
	v.SetDefault("detection.high_z_score", 5.0)
	v.SetDefault("detection.unusual_hours_start", 22)
	v.SetDefault("detection.unusual_hours_end", 6)
	v.SetDefault("detection.unusual_hours_min_events", 3)
	v.SetDefault("detection.unusual_hours_high_patients", 5)
	v.SetDefault("detection.drift_high_dimensions", 3)
	v.SetDefault("detection.rate_per_minute", 30.0)
	v.SetDefault("detection.rate_per_minute_high", 100.0)
	v.SetDefault("detection.scrape_endpoint_count", 20)
	v.SetDefault("detection.scrape_window_minutes", 5.0)
	v.SetDefault("detection.baseline_days", 30)
	v.SetDefault("detection.baseline_min_samples", 3)
	v.SetDefault("detection.auth_path_prefix", "/api/auth")
	v.SetDefault("detection.health_paths", []string{"/healthz", "/health", "/ping", "/metrics"})
	v.SetDefault("detection.detector_timeout", "30s")
	v.SetDefault("detection.max_concurrent_detectors", 3)

	v.SetDefault("suppression.enabled", true)
	v.SetDefault("suppression.window", "24h")

	v.SetDefault("scan.enabled", true)
	v.SetDefault("scan.interval", "1h")
	v.SetDefault("scan.lookback", "24h")

	v.SetDefault("digest.enabled", false)
	v.SetDefault("digest.interval", "24h")
	v.SetDefault("digest.period_days", 7)

	v.SetDefault("notification.webhook_timeout", "10s")
	v.SetDefault("notification.min_severity", "high")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Load reads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Environment variables override file config
	v.SetEnvPrefix("SENTINEL")
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}
