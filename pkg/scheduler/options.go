package scheduler

import (
	"time"

	"go.uber.org/zap"

	"github.com/jdziat/sitepipe/pkg/internal/retry"
	"github.com/jdziat/sitepipe/pkg/schedule"
	"github.com/jdziat/sitepipe/pkg/security"
)

// Defaults
const (
	DefaultBatchSize   = 5
	DefaultPacing      = 1500 * time.Millisecond
	DefaultLease       = 10 * time.Minute
	DefaultMaxAttempts = 3
	DefaultInterval    = time.Minute
)

// Option configures a Scheduler.
type Option interface {
	Apply(*Config)
}

type optionFunc func(*Config)

func (f optionFunc) Apply(c *Config) { f(c) }

// Config holds scheduler configuration.
type Config struct {
	BatchSize int
	Pacing    time.Duration
	Lease     time.Duration
	// HeartbeatInterval defaults to a third of Lease.
	HeartbeatInterval time.Duration
	MaxAttempts       int
	WorkerID          string
	Schedule          schedule.Schedule
	ClaimRetry        retry.Config
	StoreRetry        retry.Config
	Logger            *zap.Logger
}

// WithBatchSize sets how many jobs one tick claims.
// Values are clamped to [1, security.MaxBatchSize].
func WithBatchSize(n int) Option {
	return optionFunc(func(c *Config) {
		c.BatchSize = security.ClampBatchSize(n)
	})
}

// WithPacing sets the delay between jobs of one batch.
func WithPacing(d time.Duration) Option {
	return optionFunc(func(c *Config) {
		if d >= 0 {
			c.Pacing = d
		}
	})
}

// WithLease sets how long a claim stays valid without a heartbeat.
func WithLease(d time.Duration) Option {
	return optionFunc(func(c *Config) {
		if d > 0 {
			c.Lease = d
		}
	})
}

// WithHeartbeatInterval sets how often a running job's lease is extended.
func WithHeartbeatInterval(d time.Duration) Option {
	return optionFunc(func(c *Config) {
		if d > 0 {
			c.HeartbeatInterval = d
		}
	})
}

// WithMaxAttempts sets how many claims a job gets before an expired lease
// fails it instead of requeueing it.
func WithMaxAttempts(n int) Option {
	return optionFunc(func(c *Config) {
		if n > 0 {
			c.MaxAttempts = n
		}
	})
}

// WithWorkerID sets the identity recorded on claimed jobs.
func WithWorkerID(id string) Option {
	return optionFunc(func(c *Config) {
		if id != "" {
			c.WorkerID = id
		}
	})
}

// WithSchedule sets the periodic trigger used by Start.
func WithSchedule(s schedule.Schedule) Option {
	return optionFunc(func(c *Config) {
		if s != nil {
			c.Schedule = s
		}
	})
}

// WithClaimRetry sets the backoff for claiming a batch.
func WithClaimRetry(r retry.Config) Option {
	return optionFunc(func(c *Config) {
		c.ClaimRetry = r
	})
}

// WithStoreRetry sets the backoff for lease writes.
func WithStoreRetry(r retry.Config) Option {
	return optionFunc(func(c *Config) {
		c.StoreRetry = r
	})
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return optionFunc(func(c *Config) {
		if l != nil {
			c.Logger = l
		}
	})
}
