package progress

import (
	"time"

	"go.uber.org/zap"
)

// Defaults
const (
	DefaultTTL           = time.Hour
	DefaultSweepInterval = time.Minute
	DefaultDrainGrace    = 30 * time.Second
	DefaultRelayTimeout  = 2 * time.Second
	DefaultSendTimeout   = 500 * time.Millisecond
)

// Config holds broadcaster configuration.
type Config struct {
	TTL           time.Duration
	SweepInterval time.Duration
	DrainGrace    time.Duration
	Relay         Relay
	RelayTimeout  time.Duration
	SendTimeout   time.Duration
	Logger        *zap.Logger
}

// Option configures a Broadcaster.
type Option interface {
	Apply(*Config)
}

type optionFunc func(*Config)

func (f optionFunc) Apply(c *Config) { f(c) }

// WithTTL sets how long a session may go without updates before it is swept.
func WithTTL(d time.Duration) Option {
	return optionFunc(func(c *Config) {
		if d > 0 {
			c.TTL = d
		}
	})
}

// WithSweepInterval sets how often Start sweeps expired sessions.
func WithSweepInterval(d time.Duration) Option {
	return optionFunc(func(c *Config) {
		if d > 0 {
			c.SweepInterval = d
		}
	})
}

// WithDrainGrace sets how long a terminal session without subscribers is
// kept for late joiners.
func WithDrainGrace(d time.Duration) Option {
	return optionFunc(func(c *Config) {
		if d >= 0 {
			c.DrainGrace = d
		}
	})
}

// WithRelay forwards every local publish to r.
func WithRelay(r Relay) Option {
	return optionFunc(func(c *Config) {
		c.Relay = r
	})
}

// WithSendTimeout bounds how long one subscriber write may take before the
// subscriber is dropped as slow.
func WithSendTimeout(d time.Duration) Option {
	return optionFunc(func(c *Config) {
		if d > 0 {
			c.SendTimeout = d
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
