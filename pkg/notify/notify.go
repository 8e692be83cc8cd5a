package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-amqp/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"go.uber.org/zap"

	"github.com/jdziat/sitepipe/pkg/core"
)

// TopicJobEnqueued carries one Enqueued message per submitted job.
const TopicJobEnqueued = "sitepipe.jobs.enqueued"

// Enqueued is the body of a TopicJobEnqueued message.
type Enqueued struct {
	JobID      string    `json:"jobId"`
	Key        string    `json:"key"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
}

// Notifier publishes enqueue announcements.
type Notifier struct {
	publisher message.Publisher
	logger    *zap.Logger
}

// NewNotifier creates a notifier over publisher.
func NewNotifier(publisher message.Publisher, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{publisher: publisher, logger: logger}
}

// NotifyEnqueued publishes an Enqueued message for job.
func (n *Notifier) NotifyEnqueued(ctx context.Context, job *core.Job) error {
	body, err := json.Marshal(Enqueued{JobID: job.ID, Key: job.Key, EnqueuedAt: job.CreatedAt})
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), body)
	msg.SetContext(ctx)
	middleware.SetCorrelationID(job.ID, msg)

	if err := n.publisher.Publish(TopicJobEnqueued, msg); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}
	n.logger.Debug("enqueue notification published", zap.String("job_id", job.ID))
	return nil
}

// HandlerFunc reacts to one announcement.
type HandlerFunc func(ctx context.Context, e Enqueued) error

// Listener consumes announcements through a watermill router.
type Listener struct {
	router *message.Router
}

// NewListener routes TopicJobEnqueued messages from subscriber to fn.
// Handler errors are retried a few times before the message is dropped.
func NewListener(subscriber message.Subscriber, fn HandlerFunc, logger *zap.Logger) (*Listener, error) {
	wmLogger := NewLoggerAdapter(logger)
	router, err := message.NewRouter(message.RouterConfig{}, wmLogger)
	if err != nil {
		return nil, err
	}

	router.AddMiddleware(
		middleware.Recoverer,
		middleware.CorrelationID,
		middleware.Retry{
			MaxRetries:      3,
			InitialInterval: 100 * time.Millisecond,
			Logger:          wmLogger,
		}.Middleware,
	)

	router.AddNoPublisherHandler(
		"sitepipe_enqueued",
		TopicJobEnqueued,
		subscriber,
		func(msg *message.Message) error {
			var e Enqueued
			if err := json.Unmarshal(msg.Payload, &e); err != nil {
				// Malformed messages are acknowledged and dropped.
				wmLogger.Error("malformed notification", err, watermill.LogFields{"message_uuid": msg.UUID})
				return nil
			}
			return fn(msg.Context(), e)
		},
	)

	return &Listener{router: router}, nil
}

// Run blocks until ctx is cancelled.
func (l *Listener) Run(ctx context.Context) error {
	return l.router.Run(ctx)
}

// Running is closed once the router is consuming.
func (l *Listener) Running() chan struct{} {
	return l.router.Running()
}

// Close stops the router.
func (l *Listener) Close() error {
	return l.router.Close()
}

// NewGoChannel returns an in-process pub/sub for single-binary setups.
func NewGoChannel(logger *zap.Logger) *gochannel.GoChannel {
	return gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, NewLoggerAdapter(logger))
}

// NewAMQP connects a durable-queue publisher and subscriber to url.
func NewAMQP(url string, logger *zap.Logger) (message.Publisher, message.Subscriber, error) {
	wmLogger := NewLoggerAdapter(logger)

	publisher, err := amqp.NewPublisher(amqp.NewDurableQueueConfig(url), wmLogger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create amqp publisher: %w", err)
	}

	subConfig := amqp.NewDurableQueueConfig(url)
	subConfig.Consume.NoRequeueOnNack = true
	subscriber, err := amqp.NewSubscriber(subConfig, wmLogger)
	if err != nil {
		_ = publisher.Close()
		return nil, nil, fmt.Errorf("failed to create amqp subscriber: %w", err)
	}
	return publisher, subscriber, nil
}
