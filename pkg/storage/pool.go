package storage

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// PoolConfig sizes the *sql.DB behind a store. Every scheduler instance
// holds one connection per in-flight claim or progress write, and the HTTP
// surface adds one per open stream poll.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// Preset names accepted by database.pool.
const (
	PoolDefault         = "default"
	PoolHighConcurrency = "high-concurrency"
	PoolLowLatency      = "low-latency"
	PoolConstrained     = "constrained"
)

var poolPresets = map[string]PoolConfig{
	PoolDefault:         {MaxOpenConns: 25, MaxIdleConns: 10, ConnMaxLifetime: 5 * time.Minute, ConnMaxIdleTime: time.Minute},
	PoolHighConcurrency: {MaxOpenConns: 100, MaxIdleConns: 25, ConnMaxLifetime: 10 * time.Minute, ConnMaxIdleTime: 2 * time.Minute},
	PoolLowLatency:      {MaxOpenConns: 50, MaxIdleConns: 40, ConnMaxLifetime: 15 * time.Minute, ConnMaxIdleTime: 5 * time.Minute},
	PoolConstrained:     {MaxOpenConns: 10, MaxIdleConns: 5, ConnMaxLifetime: 3 * time.Minute, ConnMaxIdleTime: 30 * time.Second},
}

// DefaultPoolConfig returns the pool settings used when none are configured.
func DefaultPoolConfig() PoolConfig { return poolPresets[PoolDefault] }

// HighConcurrencyPoolConfig suits several scheduler instances plus a busy
// HTTP surface sharing one database.
func HighConcurrencyPoolConfig() PoolConfig { return poolPresets[PoolHighConcurrency] }

// LowLatencyPoolConfig keeps most connections warm so progress writes and
// status polls do not wait on connection setup.
func LowLatencyPoolConfig() PoolConfig { return poolPresets[PoolLowLatency] }

// ResourceConstrainedPoolConfig suits a database with a low connection limit.
func ResourceConstrainedPoolConfig() PoolConfig { return poolPresets[PoolConstrained] }

// SingleConnPoolConfig pins the pool to one connection that is never
// recycled. SQLite needs it: writes serialize anyway, and every new
// connection to ":memory:" opens an empty database.
func SingleConnPoolConfig() PoolConfig {
	return PoolConfig{MaxOpenConns: 1, MaxIdleConns: 1}
}

// PresetPoolConfig resolves a database.pool value. Unknown names fall back
// to DefaultPoolConfig.
func PresetPoolConfig(name string) PoolConfig {
	if c, ok := poolPresets[name]; ok {
		return c
	}
	return DefaultPoolConfig()
}

// PoolOption adjusts a PoolConfig.
type PoolOption interface {
	applyPool(*PoolConfig)
}

type poolOptionFunc func(*PoolConfig)

func (f poolOptionFunc) applyPool(c *PoolConfig) { f(c) }

// WithPoolConfig replaces every field. Later options still apply on top.
func WithPoolConfig(c PoolConfig) PoolOption {
	return poolOptionFunc(func(dst *PoolConfig) { *dst = c })
}

// MaxOpenConns caps open connections. Zero means unlimited.
func MaxOpenConns(n int) PoolOption {
	return poolOptionFunc(func(c *PoolConfig) { c.MaxOpenConns = n })
}

// MaxIdleConns caps idle connections.
func MaxIdleConns(n int) PoolOption {
	return poolOptionFunc(func(c *PoolConfig) { c.MaxIdleConns = n })
}

// ConnMaxLifetime recycles connections older than d. Zero disables it.
func ConnMaxLifetime(d time.Duration) PoolOption {
	return poolOptionFunc(func(c *PoolConfig) { c.ConnMaxLifetime = d })
}

// ConnMaxIdleTime closes connections idle longer than d. Zero disables it.
func ConnMaxIdleTime(d time.Duration) PoolOption {
	return poolOptionFunc(func(c *PoolConfig) { c.ConnMaxIdleTime = d })
}

// ConfigurePool applies DefaultPoolConfig plus opts to db's connection pool.
func ConfigurePool(db *gorm.DB, opts ...PoolOption) error {
	cfg := DefaultPoolConfig()
	for _, opt := range opts {
		opt.applyPool(&cfg)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get underlying *sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	return nil
}

// NewGormStoreWithPool configures db's pool and wraps it in a store.
//
//	store, err := NewGormStoreWithPool(db,
//	    WithPoolConfig(HighConcurrencyPoolConfig()),
//	    MaxOpenConns(60),
//	)
func NewGormStoreWithPool(db *gorm.DB, opts ...PoolOption) (*GormStore, error) {
	if err := ConfigurePool(db, opts...); err != nil {
		return nil, err
	}
	return NewGormStore(db), nil
}
