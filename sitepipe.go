// Package sitepipe provides a durable, domain-keyed job pipeline that turns
// a hostname into a generated and deployed site.
//
// This is the main package users should import. It re-exports the public
// types from the pkg/ packages and wires them together from a Config.
//
// Basic usage:
//
//	cfg, _ := sitepipe.LoadConfig("")
//	app, _ := sitepipe.New(ctx, cfg, logger)
//	defer app.Close()
//
//	// Submit a job
//	job, _ := app.Queue.Submit(ctx, sitepipe.SubmitRequest{Key: "example.com"})
//
//	// Serve the HTTP API and run the scheduler until ctx is cancelled
//	app.Run(ctx)
package sitepipe

import (
	"gorm.io/gorm"

	"github.com/spf13/viper"

	"github.com/jdziat/sitepipe/pkg/config"
	"github.com/jdziat/sitepipe/pkg/core"
	"github.com/jdziat/sitepipe/pkg/pipeline"
	"github.com/jdziat/sitepipe/pkg/progress"
	"github.com/jdziat/sitepipe/pkg/queue"
	"github.com/jdziat/sitepipe/pkg/scheduler"
	"github.com/jdziat/sitepipe/pkg/security"
	"github.com/jdziat/sitepipe/pkg/storage"
)

// Type aliases
type (
	// Job represents one unit of pipeline work tied to a key.
	Job = core.Job

	// JobStatus represents the current state of a job.
	JobStatus = core.JobStatus

	// JobFilter narrows ListRecent.
	JobFilter = core.JobFilter

	// Stage names one step of the pipeline.
	Stage = core.Stage

	// ProgressStep is one append-only progress record.
	ProgressStep = core.ProgressStep

	// Store defines the persistence layer for jobs.
	Store = core.Store

	// Event is the interface for all queue events.
	Event = core.Event

	// Queue validates submissions and exposes job state.
	Queue = queue.Queue

	// SubmitRequest is the input to Queue.Submit.
	SubmitRequest = queue.SubmitRequest

	// JobView is a job with its progress history.
	JobView = queue.JobView

	// Executor runs the fixed stage sequence for one job.
	Executor = pipeline.Executor

	// StageError reports the stage that failed a job.
	StageError = pipeline.StageError

	// Broadcaster fans live progress out to subscribers.
	Broadcaster = progress.Broadcaster

	// Snapshot is the cumulative state of a progress session.
	Snapshot = progress.Snapshot

	// Scheduler claims and runs queued jobs.
	Scheduler = scheduler.Scheduler

	// TickResult counts what one scheduler pass did.
	TickResult = scheduler.TickResult

	// Config is the full service configuration.
	Config = config.Config

	// GormStore implements Store using GORM.
	GormStore = storage.GormStore
)

// Status constants
const (
	StatusQueued     = core.StatusQueued
	StatusProcessing = core.StatusProcessing
	StatusCompleted  = core.StatusCompleted
	StatusFailed     = core.StatusFailed
)

// Stage constants, in pipeline order.
const (
	StageDomainAnalysis = core.StageDomainAnalysis
	StageStrategy       = core.StageStrategy
	StageDesign         = core.StageDesign
	StageContent        = core.StageContent
	StageBuild          = core.StageBuild
	StageDeploy         = core.StageDeploy
)

// Security limits
const (
	MaxKeyLength   = security.MaxKeyLength
	MaxPayloadSize = security.MaxPayloadSize
	MaxBatchSize   = security.MaxBatchSize
)

// Error variables
var (
	ErrInvalidKey       = core.ErrInvalidKey
	ErrKeyRequired      = core.ErrKeyRequired
	ErrKeyTooLong       = core.ErrKeyTooLong
	ErrPayloadTooLarge  = core.ErrPayloadTooLarge
	ErrInvalidPayload   = core.ErrInvalidPayload
	ErrInvalidStatus    = core.ErrInvalidStatus
	ErrJobNotFound      = core.ErrJobNotFound
	ErrStoreUnavailable = core.ErrStoreUnavailable
	ErrSessionNotFound  = core.ErrSessionNotFound
)

// Stages returns the pipeline order.
func Stages() []Stage {
	return append([]Stage(nil), core.Stages...)
}

// IsValidation reports whether err was caused by bad submission input.
func IsValidation(err error) bool {
	return core.IsValidation(err)
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) *GormStore {
	return storage.NewGormStore(db)
}

// LoadConfig reads configuration from file (optional), .env files and
// SITEPIPE_ environment variables.
func LoadConfig(file string) (*Config, error) {
	if err := config.LoadEnvFiles(); err != nil {
		return nil, err
	}
	return config.Load(viper.New(), file)
}
