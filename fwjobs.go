// Package fwjobs runs firmware analyses with bounded, reject-on-full
// concurrency and stores their parsed reports.
//
// This is the main package users should import. It re-exports the public
// types from the pkg/ packages for a clean API surface.
//
// Basic usage:
//
//	store, _ := fwjobs.Open("fwjobs.db")
//	store.Migrate(ctx)
//
//	svc, _ := fwjobs.NewService(store,
//	    fwjobs.WithWorkers(4),
//	    fwjobs.WithDirs("/var/lib/fwjobs/active", "/var/lib/fwjobs/logs"),
//	)
//	defer svc.Shutdown(true)
//
//	h, err := svc.Submit(ctx, fwjobs.Submission{Name: "router"}, "firmware.zip")
//	if errors.Is(err, fwjobs.ErrAdmissionRejected) {
//	    // every worker is busy
//	}
//	err = h.Wait(ctx)
package fwjobs

import (
	"github.com/jdziat/firmware-jobs/pkg/config"
	"github.com/jdziat/firmware-jobs/pkg/core"
	"github.com/jdziat/firmware-jobs/pkg/pool"
	"github.com/jdziat/firmware-jobs/pkg/report"
	"github.com/jdziat/firmware-jobs/pkg/security"
	"github.com/jdziat/firmware-jobs/pkg/service"
	"github.com/jdziat/firmware-jobs/pkg/storage"
	"github.com/jdziat/firmware-jobs/pkg/supervisor"
)

// Type aliases
type (
	// Job is one firmware analysis request and its tracked lifecycle.
	Job = core.Job

	// Result is the parsed report of a finished Job.
	Result = core.Result

	// ResultFields is the typed projection of an analysis report.
	ResultFields = core.ResultFields

	// JobStatus represents the current state of a job.
	JobStatus = core.JobStatus

	// Outcome is the terminal state of one run.
	Outcome = core.Outcome

	// OutcomeKind classifies how a run ended.
	OutcomeKind = core.OutcomeKind

	// Storage defines the persistence layer for jobs and results.
	Storage = core.Storage

	// Event is the interface for all service events.
	Event = core.Event

	JobSubmitted = core.JobSubmitted
	JobRejected  = core.JobRejected
	JobStarted   = core.JobStarted
	JobFinished  = core.JobFinished
	JobProgress  = core.JobProgress

	// LaunchError indicates the analysis tool could not be started.
	LaunchError = core.LaunchError

	// ParseError indicates a report that could not be turned into a Result.
	ParseError = core.ParseError

	// Service is the execution core.
	Service = service.Service

	// Option configures a Service.
	Option = service.Option

	// Submission is the caller-supplied metadata of one analysis.
	Submission = supervisor.Submission

	// Invocation is the fixed prefix of every analysis command.
	Invocation = supervisor.Invocation

	// Handle tracks one admitted work item.
	Handle = pool.Handle

	// Config is the file-based configuration.
	Config = config.Config

	// GormStorage implements Storage using GORM.
	GormStorage = storage.GormStorage
)

// Status constants
const (
	StatusPending  = core.StatusPending
	StatusRunning  = core.StatusRunning
	StatusFinished = core.StatusFinished
	StatusFailed   = core.StatusFailed
)

// Outcome kinds
const (
	OutcomeLaunchError = core.OutcomeLaunchError
	OutcomeNoReport    = core.OutcomeNoReport
	OutcomeParseError  = core.OutcomeParseError
	OutcomeSucceeded   = core.OutcomeSucceeded
)

// Security limits
const (
	MaxJobIDLength        = security.MaxJobIDLength
	MaxFlagsLength        = security.MaxFlagsLength
	MaxWorkers            = security.MaxWorkers
	MaxErrorMessageLength = security.MaxErrorMessageLength
)

// Error variables
var (
	ErrAdmissionRejected   = core.ErrAdmissionRejected
	ErrPoolClosed          = core.ErrPoolClosed
	ErrMalformedSubmission = core.ErrMalformedSubmission
	ErrInvalidJobID        = core.ErrInvalidJobID
	ErrInvalidFlags        = core.ErrInvalidFlags
	ErrReportMissing       = core.ErrReportMissing
	ErrJobNotFound         = core.ErrJobNotFound
	ErrResultNotFound      = core.ErrResultNotFound
	ErrJobAlreadyFinished  = core.ErrJobAlreadyFinished
	ErrStagingExists       = supervisor.ErrStagingExists
)

// Service options
var (
	WithWorkers    = service.WithWorkers
	WithDirs       = service.WithDirs
	WithInvocation = service.WithInvocation
	WithReportName = service.WithReportName
	WithTailing    = service.WithTailing
	WithWaitDelay  = service.WithWaitDelay
	WithSweep      = service.WithSweep
	WithLogger     = service.WithLogger
)

// Open connects to a database by DSN. See storage.Dialector for the
// accepted forms.
func Open(dsn string) (*GormStorage, error) {
	return storage.Open(dsn)
}

// NewService wires an execution core on top of s.
func NewService(s Storage, opts ...Option) (*Service, error) {
	return service.New(s, opts...)
}

// LoadConfig reads an INI configuration file on top of the defaults.
func LoadConfig(path string) (Config, error) {
	return config.Load(path)
}

// ParseReport parses an aggregator report into result fields.
func ParseReport(b []byte) (ResultFields, error) {
	return report.ParseResult(b)
}
