// Package api provides the HTTP surface for submitting jobs, reading their
// state and streaming their live progress.
package api

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/jdziat/sitepipe/pkg/progress"
	"github.com/jdziat/sitepipe/pkg/scheduler"
)

// Defaults
const (
	DefaultHeartbeat    = 15 * time.Second
	DefaultPollInterval = 2 * time.Second
	DefaultStreamBuffer = 32
)

// Sessions is the live progress side used by the stream endpoint.
// *progress.Broadcaster satisfies it.
type Sessions interface {
	OpenSeeded(id string, seed progress.Snapshot) *progress.Session
	Subscribe(id string, sink progress.Sink) (uint64, error)
	Unsubscribe(id string, subID uint64)
}

// Ticker runs one scheduler pass on demand. *scheduler.Scheduler satisfies it.
type Ticker interface {
	Tick(ctx context.Context) scheduler.TickResult
}

// Option configures the HTTP handler.
type Option interface {
	apply(*config)
}

type optionFunc func(*config)

func (f optionFunc) apply(c *config) { f(c) }

type config struct {
	sessions     Sessions
	ticker       Ticker
	metrics      http.Handler
	heartbeat    time.Duration
	pollInterval time.Duration
	streamBuffer int
	logger       *zap.Logger
}

// WithSessions enables live progress streaming. Without it the stream
// endpoint polls the store.
func WithSessions(s Sessions) Option {
	return optionFunc(func(c *config) {
		c.sessions = s
	})
}

// WithTicker enables POST /scheduler/tick.
func WithTicker(t Ticker) Option {
	return optionFunc(func(c *config) {
		c.ticker = t
	})
}

// WithMetrics serves h on GET /metrics.
func WithMetrics(h http.Handler) Option {
	return optionFunc(func(c *config) {
		c.metrics = h
	})
}

// WithHeartbeat sets how often idle streams receive a comment line.
// Default: 15s.
func WithHeartbeat(d time.Duration) Option {
	return optionFunc(func(c *config) {
		if d > 0 {
			c.heartbeat = d
		}
	})
}

// WithPollInterval sets how often a stream checks the store for a terminal
// status it may have missed. Default: 2s.
func WithPollInterval(d time.Duration) Option {
	return optionFunc(func(c *config) {
		if d > 0 {
			c.pollInterval = d
		}
	})
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return optionFunc(func(c *config) {
		if l != nil {
			c.logger = l
		}
	})
}
