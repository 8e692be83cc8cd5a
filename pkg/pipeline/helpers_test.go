package pipeline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/jdziat/sitepipe/pkg/core"
	"github.com/jdziat/sitepipe/pkg/internal/retry"
	"github.com/jdziat/sitepipe/pkg/storage"
)

func newTestStore(t *testing.T) *storage.GormStore {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	s := storage.NewGormStore(db)
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

// claimed enqueues key and claims it so it is ready for Run.
func claimed(t *testing.T, s core.Store, key string, payload string) *core.Job {
	t.Helper()
	ctx := context.Background()
	var raw []byte
	if payload != "" {
		raw = []byte(payload)
	}
	_, err := s.Enqueue(ctx, key, raw)
	require.NoError(t, err)
	jobs, err := s.ClaimNextBatch(ctx, 1, "test-worker", time.Minute)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	return jobs[0]
}

var noRetry = retry.Config{MaxAttempts: 1}

// fakeGenerator answers every generative stage with a valid reply and
// counts calls per stage.
type fakeGenerator struct {
	mu    sync.Mutex
	calls map[core.Stage]int
	// override replaces the reply for one stage.
	override map[core.Stage]func(ctx context.Context) (string, error)
}

func newFakeGenerator() *fakeGenerator {
	return &fakeGenerator{
		calls:    make(map[core.Stage]int),
		override: make(map[core.Stage]func(ctx context.Context) (string, error)),
	}
}

func (g *fakeGenerator) Generate(ctx context.Context, p Prompt) (string, error) {
	g.mu.Lock()
	g.calls[p.Stage]++
	fn := g.override[p.Stage]
	g.mu.Unlock()
	if fn != nil {
		return fn(ctx)
	}

	switch p.Stage {
	case core.StageStrategy:
		return `Here you go: {"audience":"founders","tone":"bold","valueProposition":"Foo ships.","sections":["About","Work"]}`, nil
	case core.StageDesign:
		return `{"palette":{"primary":"#111111","secondary":"#222222","accent":"#333333","background":"#FFFFFF","text":"#000000"},` +
			`"typography":{"heading":"Georgia","body":"Arial"},"layout":"grid"}`, nil
	case core.StageContent:
		return `{"headline":"Foo","tagline":"Foo ships.","sections":[{"heading":"About","body":"We ship."},` +
			`{"heading":"Work","body":"Lots."}],"callToAction":"Say hi"}`, nil
	}
	return "", fmt.Errorf("unexpected stage %s", p.Stage)
}

func (g *fakeGenerator) Calls(stage core.Stage) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[stage]
}

func (g *fakeGenerator) TotalCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, c := range g.calls {
		n += c
	}
	return n
}

type countingPublisher struct {
	calls atomic.Int32
}

func (p *countingPublisher) Publish(_ context.Context, req DeployRequest) (Deploy, error) {
	p.calls.Add(1)
	return Deploy{Deployed: true, URL: "https://sites.example/" + req.Key + "/index.html"}, nil
}

// flakyStore fails every progress write.
type flakyStore struct {
	*storage.GormStore
	attempts atomic.Int32
}

func (f *flakyStore) RecordProgress(context.Context, *core.ProgressStep) error {
	f.attempts.Add(1)
	return fmt.Errorf("%w: connection refused", core.ErrStoreUnavailable)
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []core.Event
}

func (r *recordingEmitter) Emit(e core.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingEmitter) stageOutcomes() map[core.Stage]core.StageOutcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[core.Stage]core.StageOutcome)
	for _, e := range r.events {
		if sf, ok := e.(*core.StageFinished); ok {
			out[sf.Stage] = sf.Outcome
		}
	}
	return out
}

func replaceStage(stages []Stage, s Stage) []Stage {
	out := append([]Stage(nil), stages...)
	out[s.Name().Index()] = s
	return out
}
