// Package sysconfig stores the tunable system configuration exposed on the
// admin surface. Values live in Redis so api and worker agree; when Redis
// is unreachable the in-memory copy serves reads.
package sysconfig

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/redis/go-redis/v9"
)

const redisKey = "schooltrack:system-config"

// Config is the admin-tunable system configuration.
type Config struct {
	AutoBackupEnabled   bool   `json:"auto_backup_enabled"`
	BackupFrequency     string `json:"backup_frequency"`
	SessionTimeout      int    `json:"session_timeout"`
	MaxLoginAttempts    int    `json:"max_login_attempts"`
	NFCScanTimeout      int    `json:"nfc_scan_timeout"`
	EnableNotifications bool   `json:"enable_notifications"`
}

// Defaults returns the configuration used until an admin changes it.
func Defaults() Config {
	return Config{
		AutoBackupEnabled:   true,
		BackupFrequency:     "daily",
		SessionTimeout:      30,
		MaxLoginAttempts:    5,
		NFCScanTimeout:      10,
		EnableNotifications: true,
	}
}

// Store reads and writes the system configuration.
type Store struct {
	rdb *redis.Client

	mu     sync.Mutex
	cached Config
}

// NewStore creates a store; rdb may be nil in dev setups.
func NewStore(rdb *redis.Client) *Store {
	return &Store{rdb: rdb, cached: Defaults()}
}

// Get returns the current configuration.
func (s *Store) Get(ctx context.Context) Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rdb != nil {
		if data, err := s.rdb.Get(ctx, redisKey).Bytes(); err == nil {
			var cfg Config
			if err := json.Unmarshal(data, &cfg); err == nil {
				s.cached = cfg
			}
		}
	}
	return s.cached
}

// Set persists a new configuration.
func (s *Store) Set(ctx context.Context, cfg Config) error {
	s.mu.Lock()
	s.cached = cfg
	s.mu.Unlock()
	if s.rdb == nil {
		return nil
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, redisKey, data, 0).Err()
}
