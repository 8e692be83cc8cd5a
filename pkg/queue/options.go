package queue

import (
	"context"

	"go.uber.org/zap"

	"github.com/jdziat/sitepipe/pkg/core"
	"github.com/jdziat/sitepipe/pkg/progress"
)

// DefaultEventBuffer is the per-subscriber buffer of Events channels.
const DefaultEventBuffer = 100

// Notifier announces newly enqueued jobs to other processes.
type Notifier interface {
	NotifyEnqueued(ctx context.Context, job *core.Job) error
}

// SessionOpener opens live progress sessions. *progress.Broadcaster
// satisfies it.
type SessionOpener interface {
	Open(id string) *progress.Session
}

// Config holds queue configuration.
type Config struct {
	Notifier    Notifier
	Sessions    SessionOpener
	EventBuffer int
	Logger      *zap.Logger
}

// Option configures a Queue.
type Option interface {
	Apply(*Config)
}

type optionFunc func(*Config)

func (f optionFunc) Apply(c *Config) { f(c) }

// WithNotifier publishes an announcement after every successful submit.
func WithNotifier(n Notifier) Option {
	return optionFunc(func(c *Config) {
		c.Notifier = n
	})
}

// WithSessions opens a progress session for submissions that ask to be
// tracked.
func WithSessions(s SessionOpener) Option {
	return optionFunc(func(c *Config) {
		c.Sessions = s
	})
}

// WithEventBuffer sets the buffer of channels returned by Events.
func WithEventBuffer(n int) Option {
	return optionFunc(func(c *Config) {
		if n > 0 {
			c.EventBuffer = n
		}
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
