package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jdziat/firmware-jobs/pkg/core"
	"github.com/jdziat/firmware-jobs/pkg/pool"
	"github.com/jdziat/firmware-jobs/pkg/runner"
	"github.com/jdziat/firmware-jobs/pkg/security"
)

// Submitter admits work without blocking. *pool.Pool implements it.
type Submitter interface {
	Submit(ctx context.Context, name string, work pool.Work) (*pool.Handle, error)
}

// Executor runs one analysis to completion. *runner.Runner implements it.
type Executor interface {
	Run(ctx context.Context, cmd runner.Command, jobID, workDir string) core.Outcome
	LogDir(jobID string) string
}

// Tailer follows the log of one job until it is finished.
type Tailer interface {
	Follow(ctx context.Context, jobID string) error
}

// Submission is the caller-supplied metadata of one analysis.
// An empty ID is replaced by a random UUID.
type Submission struct {
	ID      string
	Name    string
	Version string
	Notes   string
	Flags   string
}

// Supervisor stages artifacts and submits analyses to the pool.
type Supervisor struct {
	storage    core.Storage
	submitter  Submitter
	executor   Executor
	activeRoot string
	invocation Invocation
	tailer     Tailer
	emit       core.Emitter
	logger     *slog.Logger
	now        func() time.Time
}

// New creates a Supervisor staging artifacts under activeRoot.
func New(storage core.Storage, submitter Submitter, executor Executor, activeRoot string, inv Invocation, opts ...Option) *Supervisor {
	s := &Supervisor{
		storage:    storage,
		submitter:  submitter,
		executor:   executor,
		activeRoot: activeRoot,
		invocation: inv,
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt.apply(s)
	}
	return s
}

// SubmitAnalysis stages artifact and admits its analysis. It never waits
// for the analysis to run. The returned handle completes when the job has
// been finalized; its error is the outcome error.
//
// Errors: core.ErrInvalidJobID and core.ErrInvalidFlags for bad metadata,
// core.ErrMalformedSubmission when the artifact does not stage to exactly
// one entry, core.ErrAdmissionRejected when the pool is saturated and
// core.ErrPoolClosed during shutdown.
func (s *Supervisor) SubmitAnalysis(ctx context.Context, sub Submission, artifact string) (*pool.Handle, error) {
	id := sub.ID
	if id == "" {
		id = uuid.New().String()
	}
	if err := security.ValidateJobID(id); err != nil {
		return nil, fmt.Errorf("%w: %q", err, id)
	}
	flags, err := security.ValidateFlags(sub.Flags)
	if err != nil {
		return nil, err
	}

	logger := s.logger.With("job_id", id)
	workDir := filepath.Join(s.activeRoot, id)

	image, err := Stage(artifact, workDir)
	if err != nil {
		if !errors.Is(err, ErrStagingExists) {
			s.removeWorkDir(logger, workDir)
		}
		if errors.Is(err, core.ErrMalformedSubmission) {
			logger.Error("uploaded artifact is not processable, expected exactly one top-level entry", "artifact", artifact, "error", err)
		} else {
			logger.Error("staging artifact", "artifact", artifact, "error", err)
		}
		s.emit.Emit(&core.JobRejected{JobID: id, Error: err, Timestamp: s.now()})
		return nil, err
	}

	logDir := s.executor.LogDir(id)
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		s.removeWorkDir(logger, workDir)
		return nil, fmt.Errorf("creating log directory: %w", err)
	}

	cmd := BuildCommand(s.invocation, image, logDir, flags)
	job := &core.Job{
		ID:        id,
		Name:      sub.Name,
		Version:   sub.Version,
		Notes:     sub.Notes,
		Flags:     strings.Join(flags, " "),
		Status:    core.StatusPending,
		WorkDir:   workDir,
		LogDir:    logDir,
		Command:   cmd.String(),
		StartedAt: s.now(),
	}
	if err := s.storage.CreateJob(ctx, job); err != nil {
		s.removeWorkDir(logger, workDir)
		return nil, fmt.Errorf("persisting job: %w", err)
	}

	handle, err := s.submitter.Submit(ctx, "analysis "+id, func(ctx context.Context) error {
		return s.executor.Run(ctx, cmd, id, workDir).Error()
	})
	if err != nil {
		s.reject(ctx, logger, job, err)
		return nil, err
	}
	logger.Info("analysis submitted", "command", job.Command)
	s.emit.Emit(&core.JobSubmitted{Job: job, Timestamp: s.now()})

	if s.tailer != nil {
		_, err := s.submitter.Submit(ctx, "logtail "+id, func(ctx context.Context) error {
			return s.tailer.Follow(ctx, id)
		})
		if err != nil {
			logger.Warn("log reader not started", "error", err)
		}
	}
	return handle, nil
}

// reject finalizes a persisted job that never reached a worker.
func (s *Supervisor) reject(ctx context.Context, logger *slog.Logger, job *core.Job, cause error) {
	logger.Error("analysis not admitted", "error", cause)
	s.removeWorkDir(logger, job.WorkDir)

	ended := s.now()
	err := s.storage.FinishJob(context.WithoutCancel(ctx), job.ID, core.FinishUpdate{
		EndedAt:  ended,
		Duration: ended.Sub(job.StartedAt),
		Status:   core.StatusFailed,
		Outcome:  core.OutcomeRejected,
		Error:    cause.Error(),
	})
	if err != nil {
		logger.Error("finalizing rejected job", "error", err)
	}
	s.emit.Emit(&core.JobRejected{JobID: job.ID, Error: cause, Timestamp: ended})
}

func (s *Supervisor) removeWorkDir(logger *slog.Logger, dir string) {
	if err := os.RemoveAll(dir); err != nil {
		logger.Error("removing staging directory", "dir", dir, "error", err)
	}
}
