package config

import (
	"fmt"
	"log"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Manager owns the live configuration snapshot. Detection thresholds are
// hot-reloadable: when the config file changes on disk the snapshot is
// replaced atomically, and every scan reads a fresh snapshot. Callers never
// hold a reference across scans.
type Manager struct {
	mu  sync.RWMutex
	cfg *Config
	v   *viper.Viper
}

// NewManager wraps an already-loaded config. Used when no file watching is
// wanted (tests, one-shot scans).
func NewManager(cfg *Config) *Manager {
	return &Manager{cfg: cfg}
}

// LoadManager loads configuration from configPath and starts watching the
// file for changes when a path is given.
func LoadManager(configPath string) (*Manager, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	v.SetEnvPrefix("SENTINEL")
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	m := &Manager{cfg: &cfg, v: v}
	if configPath != "" {
		v.OnConfigChange(func(fsnotify.Event) { m.reload() })
		v.WatchConfig()
	}
	return m, nil
}

func (m *Manager) reload() {
	var cfg Config
	if err := m.v.Unmarshal(&cfg); err != nil {
		log.Printf("config reload failed, keeping previous snapshot: %v", err)
		return
	}
	m.mu.Lock()
	m.cfg = &cfg
	m.mu.Unlock()
	log.Printf("configuration reloaded")
}

// Snapshot returns the current configuration. The returned value is
// immutable; a reload swaps the pointer rather than mutating it.
func (m *Manager) Snapshot() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// Detection returns the current detection thresholds.
func (m *Manager) Detection() DetectionConfig {
	return m.Snapshot().Detection
}
