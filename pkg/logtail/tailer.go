package logtail

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jdziat/firmware-jobs/pkg/core"
)

// DefaultLogName is the main log written by the analysis tool.
const DefaultLogName = "emba.log"

// Option configures a Tailer.
type Option interface {
	apply(*Tailer)
}

type optionFunc func(*Tailer)

func (f optionFunc) apply(t *Tailer) { f(t) }

// WithInterval sets the polling interval. Default: 2s.
func WithInterval(d time.Duration) Option {
	return optionFunc(func(t *Tailer) {
		if d > 0 {
			t.interval = d
		}
	})
}

// WithLogName overrides the followed file name.
func WithLogName(name string) Option {
	return optionFunc(func(t *Tailer) {
		t.logName = name
	})
}

// WithEmitter sets the receiver of JobProgress events.
func WithEmitter(emit core.Emitter) Option {
	return optionFunc(func(t *Tailer) {
		t.emit = emit
	})
}

// WithLogger sets the tailer logger.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(t *Tailer) {
		t.logger = l
	})
}

// Tailer follows tool logs by polling.
type Tailer struct {
	storage  core.Storage
	logRoot  string
	logName  string
	interval time.Duration
	emit     core.Emitter
	logger   *slog.Logger
}

// New creates a Tailer reading logs under logRoot. storage is consulted to
// find out when a job has finished.
func New(storage core.Storage, logRoot string, opts ...Option) *Tailer {
	t := &Tailer{
		storage:  storage,
		logRoot:  logRoot,
		logName:  DefaultLogName,
		interval: 2 * time.Second,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt.apply(t)
	}
	return t
}

// LogPath returns <log root>/<job id>/<log name>.
func (t *Tailer) LogPath(jobID string) string {
	return filepath.Join(t.logRoot, jobID, t.logName)
}

// Follow reads the log of jobID until the job is finished or ctx ends.
// It returns core.ErrJobNotFound if the job record disappears.
func (t *Tailer) Follow(ctx context.Context, jobID string) error {
	f := &follower{
		path:   t.LogPath(jobID),
		jobID:  jobID,
		emit:   t.emit,
		logger: t.logger.With("job_id", jobID),
	}

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		finished, err := t.finished(ctx, jobID)
		if err != nil {
			return err
		}
		f.drain()
		if finished {
			f.flush()
			f.logger.Debug("log reader done", "log", f.path, "lines", f.lines)
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (t *Tailer) finished(ctx context.Context, jobID string) (bool, error) {
	job, err := t.storage.GetJob(ctx, jobID)
	if errors.Is(err, core.ErrJobNotFound) {
		return false, err
	}
	if err != nil {
		t.logger.Warn("log reader could not load job", "job_id", jobID, "error", err)
		return false, nil
	}
	return job.Finished, nil
}

// follower holds the read position in one log file.
type follower struct {
	path    string
	jobID   string
	emit    core.Emitter
	logger  *slog.Logger
	offset  int64
	partial []byte
	phase   string
	lines   int
}

// drain reads everything appended since the last call. A file that does
// not exist yet is not an error.
func (f *follower) drain() {
	file, err := os.Open(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return
	}
	if err != nil {
		f.logger.Warn("opening tool log", "log", f.path, "error", err)
		return
	}
	defer file.Close()

	if info, err := file.Stat(); err == nil && info.Size() < f.offset {
		// Truncated or replaced: start over.
		f.offset = 0
		f.partial = nil
	}
	if _, err := file.Seek(f.offset, io.SeekStart); err != nil {
		f.logger.Warn("seeking tool log", "log", f.path, "error", err)
		return
	}

	b, err := io.ReadAll(file)
	if err != nil {
		f.logger.Warn("reading tool log", "log", f.path, "error", err)
	}
	f.offset += int64(len(b))

	data := append(f.partial, b...)
	for {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			break
		}
		f.line(string(data[:i]))
		data = data[i+1:]
	}
	f.partial = append([]byte(nil), data...)
}

// flush handles a final line without a trailing newline.
func (f *follower) flush() {
	if len(f.partial) > 0 {
		f.line(string(f.partial))
		f.partial = nil
	}
}

func (f *follower) line(raw string) {
	f.lines++
	p, ok := Match(raw)
	if !ok {
		return
	}
	if p.Phase != "" {
		f.phase = p.Phase
	}
	f.emit.Emit(&core.JobProgress{
		JobID:     f.jobID,
		Phase:     f.phase,
		Module:    p.Module,
		Line:      p.Line,
		Timestamp: time.Now(),
	})
}
