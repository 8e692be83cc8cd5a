package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/jdziat/sitepipe/pkg/queue"
)

type server struct {
	queue  *queue.Queue
	config config
	logger *zap.Logger
}

// Handler creates an http.Handler serving the job API. It speaks HTTP/1.1
// and cleartext HTTP/2 so many streams can share one connection.
//
// Usage:
//
//	srv := &http.Server{Addr: ":8080", Handler: api.Handler(q, api.WithSessions(b))}
func Handler(q *queue.Queue, opts ...Option) http.Handler {
	return h2c.NewHandler(NewRouter(q, opts...), &http2.Server{})
}

// NewRouter builds the gin engine behind Handler.
func NewRouter(q *queue.Queue, opts ...Option) *gin.Engine {
	cfg := config{
		heartbeat:    DefaultHeartbeat,
		pollInterval: DefaultPollInterval,
		streamBuffer: DefaultStreamBuffer,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt.apply(&cfg)
	}

	s := &server{queue: q, config: cfg, logger: cfg.logger.Named("api")}

	r := gin.New()
	r.Use(recoveryMiddleware(s.logger), loggerMiddleware(s.logger))

	r.POST("/jobs", s.submitJob)
	r.GET("/jobs", s.listJobs)
	r.GET("/jobs/:id", s.getJob)
	r.GET("/jobs/:id/stream", s.streamJob)
	r.POST("/scheduler/tick", s.tick)
	r.GET("/healthz", s.health)
	if cfg.metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.metrics))
	}
	return r
}
