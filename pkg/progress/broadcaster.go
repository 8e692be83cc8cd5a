package progress

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jdziat/sitepipe/pkg/core"
)

// Session is one live progress record. All access goes through its mutex, so
// a merge and the broadcast that follows it are never interleaved with
// another publish or a subscribe.
type Session struct {
	id          string
	mu          sync.Mutex
	state       Snapshot
	subscribers map[uint64]Sink
	nextSubID   uint64
	lastUpdate  time.Time
}

// ID returns the session identifier (the job ID).
func (s *Session) ID() string { return s.id }

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// Subscribers returns the number of live subscribers.
func (s *Session) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subscribers)
}

// Broadcaster is the process-wide registry of progress sessions.
type Broadcaster struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	config   Config
	logger   *zap.Logger
}

// New creates a Broadcaster.
func New(opts ...Option) *Broadcaster {
	cfg := Config{
		TTL:           DefaultTTL,
		SweepInterval: DefaultSweepInterval,
		DrainGrace:    DefaultDrainGrace,
		RelayTimeout:  DefaultRelayTimeout,
		SendTimeout:   DefaultSendTimeout,
		Logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt.Apply(&cfg)
	}
	return &Broadcaster{
		sessions: make(map[string]*Session),
		config:   cfg,
		logger:   cfg.Logger.Named("progress"),
	}
}

// Open returns the session for id, creating it if needed.
func (b *Broadcaster) Open(id string) *Session {
	return b.open(id, nil)
}

// OpenSeeded returns the session for id. When the session does not exist yet
// it is created from seed, typically a snapshot rebuilt from the job's stored
// history, so a late joiner does not start from an all-pending state. An
// existing session is returned unchanged.
func (b *Broadcaster) OpenSeeded(id string, seed Snapshot) *Session {
	return b.open(id, &seed)
}

func (b *Broadcaster) open(id string, seed *Snapshot) *Session {
	b.mu.RLock()
	s, ok := b.sessions[id]
	b.mu.RUnlock()
	if ok {
		return s
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok := b.sessions[id]; ok {
		return s
	}

	now := time.Now()
	state := Snapshot{Status: SessionOpen}
	if seed != nil {
		state = seed.clone()
	}
	state.SessionID = id
	state.TotalSteps = len(core.Stages)
	state.UpdatedAt = now
	if state.Agents == nil {
		state.Agents = make(map[core.Stage]AgentStatus, len(core.Stages))
	}
	for _, stage := range core.Stages {
		if _, ok := state.Agents[stage]; !ok {
			state.Agents[stage] = AgentStatus{Status: core.StepPending}
		}
	}

	s = &Session{
		id:          id,
		state:       state,
		subscribers: make(map[uint64]Sink),
		lastUpdate:  now,
	}
	b.sessions[id] = s
	return s
}

// Get returns the session for id without creating it.
func (b *Broadcaster) Get(id string) (*Session, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s, ok := b.sessions[id]
	return s, ok
}

// Snapshot returns the current state of a session.
func (b *Broadcaster) Snapshot(id string) (Snapshot, error) {
	s, ok := b.Get(id)
	if !ok {
		return Snapshot{}, core.ErrSessionNotFound
	}
	return s.Snapshot(), nil
}

// Len returns the number of open sessions.
func (b *Broadcaster) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.sessions)
}

// Subscribe registers sink on a session and immediately sends it the current
// snapshot. If that first write fails or does not return within the send
// timeout the sink is not registered.
func (b *Broadcaster) Subscribe(id string, sink Sink) (uint64, error) {
	s, ok := b.Get(id)
	if !ok {
		return 0, core.ErrSessionNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := deliverWithin(sink, s.state.clone(), b.config.SendTimeout); err != nil {
		closeSink(sink)
		return 0, err
	}
	s.nextSubID++
	subID := s.nextSubID
	s.subscribers[subID] = sink
	return subID, nil
}

// Unsubscribe removes a sink. Unknown sessions or ids are ignored.
func (b *Broadcaster) Unsubscribe(id string, subID uint64) {
	s, ok := b.Get(id)
	if !ok {
		return
	}

	s.mu.Lock()
	sink, ok := s.subscribers[subID]
	delete(s.subscribers, subID)
	s.mu.Unlock()

	if ok {
		closeSink(sink)
	}
}

// Publish merges delta into the session and writes the resulting snapshot to
// every subscriber before returning. A subscriber whose write fails or times
// out is dropped; the others still receive the snapshot.
//
// With a relay configured the delta is forwarded even when this process has
// no local session, so a worker process that never opens sessions still
// feeds the processes its watchers are connected to.
func (b *Broadcaster) Publish(id string, delta Delta) error {
	err := b.apply(id, delta, false)
	if b.config.Relay == nil {
		return err
	}
	if err != nil && !errors.Is(err, core.ErrSessionNotFound) {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.config.RelayTimeout)
	defer cancel()
	if err := b.config.Relay.Forward(ctx, id, delta); err != nil {
		b.logger.Warn("relay forward failed",
			zap.String("session_id", id),
			zap.Error(err),
		)
	}
	return nil
}

// ApplyRemote merges a delta received from another process. The session is
// opened if needed so local late joiners still see the remote state.
func (b *Broadcaster) ApplyRemote(id string, delta Delta) {
	_ = b.apply(id, delta, true)
}

func (b *Broadcaster) apply(id string, delta Delta, open bool) error {
	var s *Session
	if open {
		s = b.Open(id)
	} else {
		var ok bool
		if s, ok = b.Get(id); !ok {
			return core.ErrSessionNotFound
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Terminal {
		return nil
	}
	merge(&s.state, delta)
	s.lastUpdate = s.state.UpdatedAt

	b.fanOut(s, s.state.clone())
	return nil
}

// fanOut writes snap to every subscriber concurrently and waits at most the
// send timeout for each. Subscribers that fail or are still blocked are
// dropped. The caller holds s.mu.
func (b *Broadcaster) fanOut(s *Session, snap Snapshot) {
	if len(s.subscribers) == 0 {
		return
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		failed = make(map[uint64]error)
	)
	for subID, sink := range s.subscribers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := deliverWithin(sink, snap, b.config.SendTimeout); err != nil {
				mu.Lock()
				failed[subID] = err
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	for subID, err := range failed {
		b.logger.Debug("dropping subscriber",
			zap.String("session_id", s.id),
			zap.Uint64("subscriber", subID),
			zap.Error(err),
		)
		sink := s.subscribers[subID]
		delete(s.subscribers, subID)
		closeSink(sink)
	}
}

// merge folds delta into state. Percent never moves backwards.
//
// Stages run strictly in order and a failed stage ends the job, so a delta
// for one stage settles every earlier stage still shown as pending or
// running. That covers deltas the session never saw, such as those
// published before it was opened.
func merge(state *Snapshot, delta Delta) {
	if delta.Stage != "" {
		for _, stage := range core.Stages {
			if stage == delta.Stage {
				break
			}
			if a := state.Agents[stage]; a.Status == core.StepPending || a.Status == core.StepRunning {
				state.Agents[stage] = AgentStatus{Status: core.StepCompleted, Message: a.Message, Degraded: a.Degraded}
			}
		}
		state.Agents[delta.Stage] = AgentStatus{
			Status:   delta.StageStatus,
			Message:  delta.Message,
			Degraded: delta.Degraded,
		}
		if state.Status == SessionOpen {
			state.Status = SessionRunning
		}
	}
	if delta.Status != "" {
		state.Status = delta.Status
	}
	if delta.Error != "" {
		state.Error = delta.Error
	}

	completed := 0
	for _, stage := range core.Stages {
		if state.Agents[stage].Status != core.StepCompleted {
			break
		}
		completed++
	}
	state.CompletedSteps = completed

	percent := core.OverallPercent(completed)
	if state.Status == SessionCompleted {
		percent = 100
	}
	if percent > state.Percent {
		state.Percent = percent
	}

	state.Terminal = state.Status.IsTerminal()
	state.Sequence++
	state.UpdatedAt = time.Now()
}

// Close removes a session and closes its subscribers.
func (b *Broadcaster) Close(id string) {
	b.mu.Lock()
	s, ok := b.sessions[id]
	delete(b.sessions, id)
	b.mu.Unlock()

	if ok {
		s.closeSubscribers()
	}
}

func (s *Session) closeSubscribers() {
	s.mu.Lock()
	subs := s.subscribers
	s.subscribers = make(map[uint64]Sink)
	s.mu.Unlock()

	for _, sink := range subs {
		closeSink(sink)
	}
}

// Sweep removes sessions idle for longer than the TTL, and terminal sessions
// that have no subscribers left after the drain grace. It returns the number
// of removed sessions.
func (b *Broadcaster) Sweep(now time.Time) int {
	var expired []*Session

	b.mu.Lock()
	for id, s := range b.sessions {
		s.mu.Lock()
		idle := now.Sub(s.lastUpdate)
		drained := s.state.Terminal && len(s.subscribers) == 0 && idle >= b.config.DrainGrace
		s.mu.Unlock()

		if idle > b.config.TTL || drained {
			delete(b.sessions, id)
			expired = append(expired, s)
		}
	}
	b.mu.Unlock()

	for _, s := range expired {
		s.closeSubscribers()
	}
	if len(expired) > 0 {
		b.logger.Debug("swept progress sessions", zap.Int("count", len(expired)))
	}
	return len(expired)
}

// Start sweeps sessions on the configured interval until ctx is cancelled.
func (b *Broadcaster) Start(ctx context.Context) error {
	ticker := time.NewTicker(b.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			b.Sweep(now)
		}
	}
}
