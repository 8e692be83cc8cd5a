package metrics

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jdziat/sitepipe/pkg/core"
)

// EventSource is the queue side the collector listens to.
type EventSource interface {
	Events() <-chan core.Event
	Unsubscribe(<-chan core.Event)
}

// StatusCounter reports how many jobs sit in each status.
type StatusCounter interface {
	CountByStatus(ctx context.Context) (map[core.JobStatus]int64, error)
}

// SessionCounter reports how many progress sessions are live.
type SessionCounter interface {
	Len() int
}

// Collector subscribes to queue events and periodically snapshots job
// counts into Metrics.
type Collector struct {
	metrics  *Metrics
	events   EventSource
	counts   StatusCounter
	sessions SessionCounter
	interval time.Duration
	logger   *zap.Logger

	// ready is closed once the collector has subscribed to events.
	ready     chan struct{}
	readyOnce sync.Once
}

// CollectorOption configures the Collector.
type CollectorOption interface {
	apply(*Collector)
}

type collectorOptionFunc func(*Collector)

func (f collectorOptionFunc) apply(c *Collector) { f(c) }

// WithStatusCounter enables the per-status job gauge.
func WithStatusCounter(s StatusCounter) CollectorOption {
	return collectorOptionFunc(func(c *Collector) {
		c.counts = s
	})
}

// WithSessionCounter enables the live session gauge.
func WithSessionCounter(s SessionCounter) CollectorOption {
	return collectorOptionFunc(func(c *Collector) {
		c.sessions = s
	})
}

// WithSnapshotInterval sets how often gauges are refreshed.
func WithSnapshotInterval(d time.Duration) CollectorOption {
	return collectorOptionFunc(func(c *Collector) {
		if d > 0 {
			c.interval = d
		}
	})
}

// WithCollectorLogger sets the logger.
func WithCollectorLogger(l *zap.Logger) CollectorOption {
	return collectorOptionFunc(func(c *Collector) {
		if l != nil {
			c.logger = l
		}
	})
}

// NewCollector creates a new Collector.
func NewCollector(m *Metrics, events EventSource, opts ...CollectorOption) *Collector {
	c := &Collector{
		metrics:  m,
		events:   events,
		interval: 15 * time.Second,
		logger:   zap.NewNop(),
		ready:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt.apply(c)
	}
	return c
}

// WaitReady blocks until the collector has subscribed to events.
func (c *Collector) WaitReady() {
	<-c.ready
}

// Start consumes events and refreshes gauges until ctx is cancelled.
func (c *Collector) Start(ctx context.Context) {
	events := c.events.Events()
	defer c.events.Unsubscribe(events)

	c.readyOnce.Do(func() { close(c.ready) })
	c.snapshot(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			c.Observe(e)
		case <-ticker.C:
			c.snapshot(ctx)
		}
	}
}

// Observe records a single event.
func (c *Collector) Observe(e core.Event) {
	m := c.metrics
	switch ev := e.(type) {
	case *core.JobEnqueued:
		m.JobsEnqueued.Inc()
	case *core.JobCompleted:
		m.JobsFinished.WithLabelValues(string(core.StatusCompleted)).Inc()
		m.JobDuration.Observe(ev.Duration.Seconds())
	case *core.JobFailed:
		m.JobsFinished.WithLabelValues(string(core.StatusFailed)).Inc()
	case *core.StageFinished:
		m.StagesFinished.WithLabelValues(string(ev.Stage), string(ev.Outcome)).Inc()
		m.StageDuration.WithLabelValues(string(ev.Stage)).Observe(ev.Duration.Seconds())
	case *core.TickCompleted:
		m.Ticks.Inc()
		m.TickProcessed.Observe(float64(ev.Processed))
		m.JobsRecovered.Add(float64(ev.Recovered))
	}
}

func (c *Collector) snapshot(ctx context.Context) {
	if c.sessions != nil {
		c.metrics.ProgressSessions.Set(float64(c.sessions.Len()))
	}
	if c.counts == nil {
		return
	}
	counts, err := c.counts.CountByStatus(ctx)
	if err != nil {
		c.logger.Debug("status snapshot failed", zap.Error(err))
		return
	}
	for status, n := range counts {
		c.metrics.JobsByStatus.WithLabelValues(string(status)).Set(float64(n))
	}
}
