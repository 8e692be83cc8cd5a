package progress

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/jdziat/sitepipe/pkg/core"
)

// Sink receives session snapshots. Returning an error unsubscribes the sink,
// and so does a Send that blocks past the broadcaster's send timeout.
// Sinks that also implement io.Closer are closed when they are dropped.
type Sink interface {
	Send(Snapshot) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Snapshot) error

// Send calls f.
func (f SinkFunc) Send(s Snapshot) error { return f(s) }

// ChannelSink buffers snapshots for a reader on another goroutine, such as a
// streaming HTTP response. Send never blocks: a full buffer reports
// core.ErrSlowSubscriber and the broadcaster drops the sink.
type ChannelSink struct {
	mu     sync.Mutex
	ch     chan Snapshot
	closed bool
}

var _ io.Closer = (*ChannelSink)(nil)

// NewChannelSink creates a sink holding up to buffer pending snapshots.
func NewChannelSink(buffer int) *ChannelSink {
	if buffer < 1 {
		buffer = 1
	}
	return &ChannelSink{ch: make(chan Snapshot, buffer)}
}

// Send implements Sink.
func (s *ChannelSink) Send(snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return core.ErrSubscriberClosed
	}
	select {
	case s.ch <- snap:
		return nil
	default:
		return core.ErrSlowSubscriber
	}
}

// C returns the channel of delivered snapshots. It is closed with the sink.
func (s *ChannelSink) C() <-chan Snapshot {
	return s.ch
}

// Close stops delivery. It is safe to call more than once.
func (s *ChannelSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		s.closed = true
		close(s.ch)
	}
	return nil
}

// deliverWithin writes one snapshot and gives up after d. A sink still
// blocked at that point reports core.ErrSlowSubscriber; its goroutine
// finishes on its own and the result is discarded.
func deliverWithin(sink Sink, snap Snapshot, d time.Duration) error {
	done := make(chan error, 1)
	go func() { done <- deliver(sink, snap) }()

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case err := <-done:
		return err
	case <-timer.C:
		return core.ErrSlowSubscriber
	}
}

// deliver writes one snapshot, turning a panic in the sink into an error.
func deliver(sink Sink, snap Snapshot) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("subscriber panic: %v", r)
		}
	}()
	return sink.Send(snap)
}

func closeSink(sink Sink) {
	if c, ok := sink.(io.Closer); ok {
		_ = c.Close()
	}
}
