package core

import "context"

// Storage defines the persistence layer for jobs and results.
type Storage interface {
	// Migrate creates the necessary database tables.
	Migrate(ctx context.Context) error

	// Job lifecycle
	CreateJob(ctx context.Context, job *Job) error
	GetJob(ctx context.Context, jobID string) (*Job, error)
	UpdateJob(ctx context.Context, job *Job) error
	SetPID(ctx context.Context, jobID string, pid int) error
	FinishJob(ctx context.Context, jobID string, update FinishUpdate) error

	// Results
	CreateResult(ctx context.Context, result *Result) error
	GetResult(ctx context.Context, jobID string) (*Result, error)

	// Queries
	ListJobs(ctx context.Context, status JobStatus, limit int) ([]*Job, error)
}
