package pipeline

import (
	"time"

	"go.uber.org/zap"

	"github.com/jdziat/sitepipe/pkg/core"
	"github.com/jdziat/sitepipe/pkg/internal/retry"
	"github.com/jdziat/sitepipe/pkg/progress"
)

// DefaultStageTimeout bounds one collaborator call.
const DefaultStageTimeout = 60 * time.Second

// Tracker receives live progress for a job. *progress.Broadcaster
// satisfies it; a job without an open session is skipped silently.
type Tracker interface {
	Publish(id string, delta progress.Delta) error
}

// Config holds executor configuration.
type Config struct {
	StageTimeout time.Duration
	Tracker      Tracker
	Emitter      core.Emitter
	StoreRetry   retry.Config
	Logger       *zap.Logger
}

// Option configures an Executor.
type Option interface {
	Apply(*Config)
}

type optionFunc func(*Config)

func (f optionFunc) Apply(c *Config) { f(c) }

// WithStageTimeout sets the per-stage collaborator timeout.
func WithStageTimeout(d time.Duration) Option {
	return optionFunc(func(c *Config) {
		if d > 0 {
			c.StageTimeout = d
		}
	})
}

// WithTracker publishes stage transitions to t.
func WithTracker(t Tracker) Option {
	return optionFunc(func(c *Config) {
		c.Tracker = t
	})
}

// WithEmitter sends StageFinished events to e.
func WithEmitter(e core.Emitter) Option {
	return optionFunc(func(c *Config) {
		c.Emitter = e
	})
}

// WithStoreRetry sets the backoff used for progress and terminal writes.
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
