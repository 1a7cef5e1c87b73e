package runner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/jdziat/firmware-jobs/pkg/core"
	"github.com/jdziat/firmware-jobs/pkg/report"
)

// Runner executes analysis processes and records their outcome in storage.
type Runner struct {
	storage    core.Storage
	logRoot    string
	reportName string
	emit       core.Emitter
	logger     *slog.Logger
	waitDelay  time.Duration
	tailLines  int
	now        func() time.Time
}

// New creates a Runner that looks for reports under logRoot.
func New(storage core.Storage, logRoot string, opts ...Option) *Runner {
	r := &Runner{
		storage:    storage,
		logRoot:    logRoot,
		reportName: DefaultReportName,
		logger:     slog.Default(),
		waitDelay:  5 * time.Second,
		tailLines:  20,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt.apply(r)
	}
	return r
}

// LogDir returns <log root>/<job id>.
func (r *Runner) LogDir(jobID string) string {
	return filepath.Join(r.logRoot, jobID)
}

// ReportPath returns <log root>/<job id>/<report name>.
func (r *Runner) ReportPath(jobID string) string {
	return filepath.Join(r.LogDir(jobID), r.reportName)
}

// Run executes cmd for jobID and blocks until the process has exited and
// the job is finalized. workDir, when non-empty, is removed afterwards.
// ctx is only used for storage calls; the process is never cancelled.
func (r *Runner) Run(ctx context.Context, cmd Command, jobID, workDir string) (out core.Outcome) {
	ctx = context.WithoutCancel(ctx)
	logger := r.logger.With("job_id", jobID)
	started := r.now()
	out = core.Outcome{Kind: core.OutcomeLaunchError}

	defer r.finalize(ctx, logger, jobID, started, &out)
	defer func() {
		if rec := recover(); rec != nil {
			err := fmt.Errorf("panic: %v", rec)
			logger.Error("analysis run panicked", "error", err)
			out.Err = errors.Join(out.Err, err)
		}
	}()
	if workDir != "" {
		defer r.cleanup(logger, workDir)
	}

	logger.Info("starting analysis", "command", cmd.String())

	exitCode, err := r.execute(ctx, logger, cmd, jobID)
	if err != nil {
		out.Err = err
		return out
	}

	// Until ingestion completes the run counts as a failed ingestion.
	out = core.Outcome{Kind: core.OutcomeParseError, ExitCode: exitCode}
	out = r.ingest(ctx, logger, cmd, jobID)
	out.ExitCode = exitCode
	return out
}

// execute starts the process, records its pid and waits for it to exit.
// Only a failure to start is returned as an error.
func (r *Runner) execute(ctx context.Context, logger *slog.Logger, cmd Command, jobID string) (int, error) {
	c := exec.Command(cmd.Path, cmd.Args...)
	c.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		c.Env = append(os.Environ(), cmd.Env...)
	}
	setProcessGroup(c)

	sink := newOutputSink(logger, r.tailLines)
	c.Stdout = sink
	c.Stderr = sink
	c.WaitDelay = r.waitDelay

	if err := c.Start(); err != nil {
		sink.Close()
		logger.Error("analysis process could not be started", "command", cmd.String(), "error", err)
		return -1, &core.LaunchError{Command: cmd.String(), Err: err}
	}

	pid := c.Process.Pid
	r.recordStart(ctx, logger, jobID, pid)

	waitErr := c.Wait()
	if err := killProcessGroup(pid); err != nil {
		logger.Warn("cleaning up process group", "pgid", pid, "error", err)
	}
	sink.Close()

	exitCode := -1
	if c.ProcessState != nil {
		exitCode = c.ProcessState.ExitCode()
	}

	var exitErr *exec.ExitError
	switch {
	case waitErr == nil:
		logger.Info("analysis process exited", "pid", pid, "exit_code", exitCode)
	case errors.As(waitErr, &exitErr):
		logger.Warn("analysis process exited with error", "pid", pid, "exit_code", exitCode, "output_tail", sink.Tail())
	case errors.Is(waitErr, exec.ErrWaitDelay):
		logger.Warn("analysis output still open after exit", "pid", pid, "exit_code", exitCode)
	default:
		logger.Error("waiting for analysis process", "pid", pid, "error", waitErr)
	}
	return exitCode, nil
}

// recordStart stores the pid and announces the start. A started process is
// always waited on, so panics here are logged instead of unwinding.
func (r *Runner) recordStart(ctx context.Context, logger *slog.Logger, jobID string, pid int) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("recording process start panicked", "pid", pid, "error", fmt.Errorf("panic: %v", rec))
		}
	}()
	if err := r.storage.SetPID(ctx, jobID, pid); err != nil {
		logger.Error("recording process id", "pid", pid, "error", err)
	}
	r.emit.Emit(&core.JobStarted{JobID: jobID, PID: pid, Timestamp: r.now()})
}

// ingest parses and stores the report if the run produced one.
func (r *Runner) ingest(ctx context.Context, logger *slog.Logger, cmd Command, jobID string) core.Outcome {
	path := r.ReportPath(jobID)

	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) || (err == nil && !info.Mode().IsRegular()) {
		logger.Warn("report not generated, analysis was probably not successful", "report", path)
		return core.Outcome{Kind: core.OutcomeNoReport, Err: fmt.Errorf("%w: %s", core.ErrReportMissing, path)}
	}

	b, err := os.ReadFile(path)
	if err != nil {
		logger.Error("reading report", "report", path, "error", err)
		return core.Outcome{Kind: core.OutcomeParseError, Err: &core.ParseError{Err: err}}
	}

	fields, err := report.ParseResult(b)
	if err != nil {
		logger.Error("parsing report", "report", path, "error", err)
		return core.Outcome{Kind: core.OutcomeParseError, Err: err}
	}
	fields.EmbaCommand = cmd.String()

	result := &core.Result{JobID: jobID, ResultFields: fields}
	if err := r.storage.CreateResult(ctx, result); err != nil {
		logger.Error("storing result", "error", err)
		return core.Outcome{Kind: core.OutcomeParseError, Err: fmt.Errorf("storing result: %w", err)}
	}

	logger.Info("report ingested", "report", path, "result_id", result.ID)
	return core.Outcome{Kind: core.OutcomeSucceeded, Result: result}
}

func (r *Runner) cleanup(logger *slog.Logger, workDir string) {
	if err := os.RemoveAll(workDir); err != nil {
		logger.Error("removing working directory", "dir", workDir, "error", err)
	}
}

// finalize writes the end state of the job exactly once and announces it.
func (r *Runner) finalize(ctx context.Context, logger *slog.Logger, jobID string, started time.Time, out *core.Outcome) {
	ended := r.now()
	duration := ended.Sub(started)

	update := core.FinishUpdate{
		StartedAt: started,
		EndedAt:   ended,
		Duration:  duration,
		Status:    out.Status(),
		Outcome:   out.Kind.String(),
	}
	if err := out.Error(); err != nil {
		update.Error = err.Error()
	}

	if err := r.storage.FinishJob(ctx, jobID, update); err != nil {
		logger.Error("finalizing job", "error", err)
	}

	r.emit.Emit(&core.JobFinished{JobID: jobID, Outcome: *out, Duration: duration, Timestamp: ended})
	logger.Info("analysis finished", "outcome", out.Kind.String(), "duration", duration)
}
