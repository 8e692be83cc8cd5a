package sitepipe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/jdziat/sitepipe/api"
	"github.com/jdziat/sitepipe/pkg/collab"
	"github.com/jdziat/sitepipe/pkg/metrics"
	"github.com/jdziat/sitepipe/pkg/notify"
	"github.com/jdziat/sitepipe/pkg/pipeline"
	"github.com/jdziat/sitepipe/pkg/progress"
	"github.com/jdziat/sitepipe/pkg/queue"
	"github.com/jdziat/sitepipe/pkg/schedule"
	"github.com/jdziat/sitepipe/pkg/scheduler"
	"github.com/jdziat/sitepipe/pkg/storage"
)

// App is a fully wired sitepipe process.
type App struct {
	Config      *Config
	Store       *GormStore
	Queue       *Queue
	Broadcaster *Broadcaster
	Executor    *Executor
	Scheduler   *Scheduler
	Metrics     *metrics.Metrics
	Collector   *metrics.Collector
	Handler     http.Handler

	db         *gorm.DB
	logger     *zap.Logger
	publisher  message.Publisher
	subscriber message.Subscriber
	listener   *notify.Listener
	redis      *redis.Client
	relay      *progress.RedisRelay
}

// AppOption configures New.
type AppOption interface {
	applyApp(*appConfig)
}

type appOptionFunc func(*appConfig)

func (f appOptionFunc) applyApp(c *appConfig) { f(c) }

type appConfig struct {
	collaborators *pipeline.Collaborators
	db            *gorm.DB
}

// WithCollaborators replaces the collaborators built from Config.
func WithCollaborators(c pipeline.Collaborators) AppOption {
	return appOptionFunc(func(ac *appConfig) {
		ac.collaborators = &c
	})
}

// WithDB uses an existing connection instead of opening one from Config.
func WithDB(db *gorm.DB) AppOption {
	return appOptionFunc(func(ac *appConfig) {
		ac.db = db
	})
}

// New connects the store, migrates it and wires every component.
func New(ctx context.Context, cfg *Config, logger *zap.Logger, opts ...AppOption) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var ac appConfig
	for _, opt := range opts {
		opt.applyApp(&ac)
	}

	a := &App{Config: cfg, logger: logger}
	ok := false
	defer func() {
		if !ok {
			_ = a.Close()
		}
	}()

	if err := a.openStore(ctx, ac.db); err != nil {
		return nil, err
	}
	if err := a.openProgress(ctx); err != nil {
		return nil, err
	}
	if err := a.openNotify(); err != nil {
		return nil, err
	}

	a.Queue = queue.New(a.Store,
		queue.WithNotifier(notify.NewNotifier(a.publisher, logger)),
		queue.WithSessions(a.Broadcaster),
		queue.WithLogger(logger),
	)

	collabs := ac.collaborators
	if collabs == nil {
		built, err := a.buildCollaborators()
		if err != nil {
			return nil, err
		}
		collabs = &built
	}

	executor, err := pipeline.NewExecutor(a.Store, pipeline.DefaultStages(*collabs),
		pipeline.WithStageTimeout(cfg.Pipeline.StageTimeout),
		pipeline.WithTracker(a.Broadcaster),
		pipeline.WithEmitter(a.Queue),
		pipeline.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}
	a.Executor = executor

	trigger, err := schedule.Parse(cfg.Scheduler.Trigger)
	if err != nil {
		return nil, fmt.Errorf("scheduler trigger: %w", err)
	}
	a.Scheduler = scheduler.New(a.Queue, a.Executor,
		scheduler.WithBatchSize(cfg.Scheduler.BatchSize),
		scheduler.WithPacing(cfg.Scheduler.Pacing),
		scheduler.WithLease(cfg.Scheduler.Lease),
		scheduler.WithMaxAttempts(cfg.Scheduler.MaxAttempts),
		scheduler.WithSchedule(trigger),
		scheduler.WithLogger(logger),
	)

	listener, err := notify.NewListener(a.subscriber, func(context.Context, notify.Enqueued) error {
		a.Scheduler.Trigger()
		return nil
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("notify listener: %w", err)
	}
	a.listener = listener

	a.Metrics = metrics.New(nil)
	a.Collector = metrics.NewCollector(a.Metrics, a.Queue,
		metrics.WithStatusCounter(a.Store),
		metrics.WithSessionCounter(a.Broadcaster),
		metrics.WithCollectorLogger(logger),
	)

	a.Handler = api.Handler(a.Queue,
		api.WithSessions(a.Broadcaster),
		api.WithTicker(a.Scheduler),
		api.WithMetrics(a.Metrics.Handler()),
		api.WithHeartbeat(cfg.Server.Heartbeat),
		api.WithLogger(logger),
	)

	ok = true
	return a, nil
}

func (a *App) openStore(ctx context.Context, db *gorm.DB) error {
	cfg := a.Config.Database
	if db == nil {
		var err error
		if db, err = storage.Open(cfg.Driver, cfg.DSN, a.logger); err != nil {
			return err
		}
	}
	a.db = db

	pool := storage.PresetPoolConfig(cfg.Pool)
	if db.Dialector.Name() == storage.DriverSQLite {
		pool = storage.SingleConnPoolConfig()
	}
	store, err := storage.NewGormStoreWithPool(db, storage.WithPoolConfig(pool))
	if err != nil {
		return fmt.Errorf("configure pool: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	a.Store = store
	return nil
}

func (a *App) openProgress(ctx context.Context) error {
	cfg := a.Config.Progress
	opts := []progress.Option{
		progress.WithTTL(cfg.TTL),
		progress.WithSweepInterval(cfg.SweepInterval),
		progress.WithDrainGrace(cfg.DrainGrace),
		progress.WithLogger(a.logger),
	}
	if cfg.RedisAddr != "" {
		a.redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		a.relay = progress.NewRedisRelay(a.redis, a.logger)
		opts = append(opts, progress.WithRelay(a.relay))
	}
	a.Broadcaster = progress.New(opts...)
	return nil
}

func (a *App) openNotify() error {
	if url := a.Config.Notify.AMQPURL; url != "" {
		pub, sub, err := notify.NewAMQP(url, a.logger)
		if err != nil {
			return fmt.Errorf("amqp: %w", err)
		}
		a.publisher, a.subscriber = pub, sub
		return nil
	}
	ch := notify.NewGoChannel(a.logger)
	a.publisher, a.subscriber = ch, ch
	return nil
}

func (a *App) buildCollaborators() (pipeline.Collaborators, error) {
	cfg := a.Config
	c := pipeline.Collaborators{
		Analyzer: collab.NewSiteInspector(
			collab.WithScheme(cfg.Inspector.Scheme),
			collab.WithHTTPClient(&http.Client{Timeout: cfg.Inspector.Timeout}),
			collab.WithInspectorLogger(a.logger),
		),
		Renderer: pipeline.TemplateRenderer{},
	}

	if cfg.Generator.APIKey != "" {
		gen, err := collab.NewClaudeGenerator(collab.ClaudeConfig{
			APIKey:    cfg.Generator.APIKey,
			Model:     cfg.Generator.Model,
			MaxTokens: cfg.Generator.MaxTokens,
			BaseURL:   cfg.Generator.BaseURL,
			Logger:    a.logger,
		})
		if err != nil {
			return c, fmt.Errorf("generator: %w", err)
		}
		c.Generator = gen
	} else {
		a.logger.Warn("no generator API key; strategy, design and content use fallbacks")
	}

	if cfg.Deploy.Endpoint != "" {
		pub, err := collab.NewObjectPublisher(collab.ObjectStoreConfig{
			Endpoint:        cfg.Deploy.Endpoint,
			AccessKeyID:     cfg.Deploy.AccessKeyID,
			SecretAccessKey: cfg.Deploy.SecretAccessKey,
			UseSSL:          cfg.Deploy.UseSSL,
			Region:          cfg.Deploy.Region,
			Bucket:          cfg.Deploy.Bucket,
			PublicBaseURL:   cfg.Deploy.PublicBaseURL,
			Logger:          a.logger,
		})
		if err != nil {
			return c, fmt.Errorf("deploy: %w", err)
		}
		c.Publisher = pub
	}
	return c, nil
}

// Run serves the HTTP API and runs the background loops until ctx is
// cancelled or one of them fails. The periodic scheduler only runs when
// scheduler.enabled is set; enqueue notifications and POST /scheduler/tick
// still trigger ticks.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:              a.Config.Server.Addr,
		Handler:           a.Handler,
		ReadHeaderTimeout: a.Config.Server.ReadHeaderTimeout,
	}

	g.Go(func() error {
		a.logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	a.runBackground(ctx, g)
	return g.Wait()
}

// RunWorker runs only the background loops, for processes that do not
// serve HTTP.
func (a *App) RunWorker(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	a.runBackground(ctx, g)
	return g.Wait()
}

func (a *App) runBackground(ctx context.Context, g *errgroup.Group) {
	g.Go(func() error { return a.Broadcaster.Start(ctx) })
	g.Go(func() error {
		a.Collector.Start(ctx)
		return nil
	})
	g.Go(func() error {
		if err := a.listener.Run(ctx); err != nil && ctx.Err() == nil {
			return fmt.Errorf("notify listener: %w", err)
		}
		return nil
	})
	if a.relay != nil {
		g.Go(func() error {
			if err := a.relay.Run(ctx, a.Broadcaster); err != nil && ctx.Err() == nil {
				return fmt.Errorf("progress relay: %w", err)
			}
			return nil
		})
	}
	if a.Config.Scheduler.Enabled {
		g.Go(func() error {
			if err := a.Scheduler.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
}

// Close releases every connection the app opened. It is safe to call on a
// partially constructed App.
func (a *App) Close() error {
	var errs []error
	if a.listener != nil {
		errs = append(errs, a.listener.Close())
	}
	closers := []io.Closer{a.publisher, a.subscriber}
	if closers[0] == closers[1] {
		closers = closers[:1]
	}
	for _, c := range closers {
		if c != nil {
			errs = append(errs, c.Close())
		}
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.db != nil {
		if sqlDB, err := a.db.DB(); err == nil {
			errs = append(errs, sqlDB.Close())
		}
	}
	return errors.Join(errs...)
}
