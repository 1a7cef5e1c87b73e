package supervisor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdziat/firmware-jobs/pkg/core"
	"github.com/jdziat/firmware-jobs/pkg/pool"
	"github.com/jdziat/firmware-jobs/pkg/runner"
	"github.com/jdziat/firmware-jobs/pkg/storage"
)

type fakeExecutor struct {
	logRoot string
	release chan struct{}
	outcome core.Outcome

	mu    sync.Mutex
	calls []runner.Command
	dirs  []string
}

func (f *fakeExecutor) Run(_ context.Context, cmd runner.Command, _ string, workDir string) core.Outcome {
	f.mu.Lock()
	f.calls = append(f.calls, cmd)
	f.dirs = append(f.dirs, workDir)
	f.mu.Unlock()
	if f.release != nil {
		<-f.release
	}
	return f.outcome
}

func (f *fakeExecutor) LogDir(jobID string) string {
	return filepath.Join(f.logRoot, jobID)
}

func (f *fakeExecutor) Calls() []runner.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]runner.Command(nil), f.calls...)
}

type fakeTailer struct {
	mu  sync.Mutex
	ids []string
}

func (f *fakeTailer) Follow(_ context.Context, jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = append(f.ids, jobID)
	return nil
}

func (f *fakeTailer) IDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ids...)
}

type fixture struct {
	store      *storage.GormStorage
	pool       *pool.Pool
	exec       *fakeExecutor
	activeRoot string
	events     []core.Event
	mu         sync.Mutex
	sup        *Supervisor
}

func newFixture(t *testing.T, workers int, opts ...Option) *fixture {
	t.Helper()
	root := t.TempDir()

	store, err := storage.Open(filepath.Join(root, "jobs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Migrate(context.Background()))

	p := pool.New(workers)
	t.Cleanup(func() { p.Shutdown(true) })

	f := &fixture{
		store:      store,
		pool:       p,
		exec:       &fakeExecutor{logRoot: filepath.Join(root, "logs"), outcome: core.Outcome{Kind: core.OutcomeSucceeded}},
		activeRoot: filepath.Join(root, "active"),
	}
	emit := func(ev core.Event) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.events = append(f.events, ev)
	}
	opts = append([]Option{WithEmitter(emit)}, opts...)
	inv := Invocation{ToolDir: "/opt/emba", Command: "./emba.sh", Sudo: true}
	f.sup = New(store, p, f.exec, f.activeRoot, inv, opts...)
	return f
}

func (f *fixture) Events() []core.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]core.Event(nil), f.events...)
}

func TestSubmitAnalysis_Success(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 2)

	h, err := f.sup.SubmitAnalysis(ctx, Submission{
		ID:      "job-1",
		Name:    "openwrt",
		Version: "23.05",
		Flags:   "-s  -z",
	}, writePlain(t, "fw.bin", "x"))
	require.NoError(t, err)
	require.NoError(t, h.Wait(ctx))

	calls := f.exec.Calls()
	require.Len(t, calls, 1)
	image := filepath.Join(f.activeRoot, "job-1", "fw.bin")
	logDir := f.exec.LogDir("job-1")
	assert.Equal(t, []string{"./emba.sh", "-f", image, "-l", logDir, "-s", "-z"}, calls[0].Args)
	assert.Equal(t, filepath.Join(f.activeRoot, "job-1"), f.exec.dirs[0])
	assert.DirExists(t, logDir)

	job, err := f.store.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, "openwrt", job.Name)
	assert.Equal(t, "-s -z", job.Flags)
	assert.Equal(t, calls[0].String(), job.Command)
	assert.Equal(t, logDir, job.LogDir)

	events := f.Events()
	require.Len(t, events, 1)
	assert.IsType(t, &core.JobSubmitted{}, events[0])
}

func TestSubmitAnalysis_GeneratesID(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1)

	h, err := f.sup.SubmitAnalysis(ctx, Submission{}, writePlain(t, "fw.bin", "x"))
	require.NoError(t, err)
	require.NoError(t, h.Wait(ctx))

	jobs, err := f.store.ListJobs(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Len(t, jobs[0].ID, 36)
}

func TestSubmitAnalysis_HandleCarriesOutcomeError(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1)
	f.exec.outcome = core.Outcome{Kind: core.OutcomeNoReport}

	h, err := f.sup.SubmitAnalysis(ctx, Submission{ID: "job-1"}, writePlain(t, "fw.bin", "x"))
	require.NoError(t, err)
	assert.ErrorIs(t, h.Wait(ctx), core.ErrReportMissing)
}

func TestSubmitAnalysis_TwoTopLevelEntriesRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 2)

	src := writeZip(t, archiveEntry{Name: "a.bin", Body: "a"}, archiveEntry{Name: "b.bin", Body: "b"})
	h, err := f.sup.SubmitAnalysis(ctx, Submission{ID: "job-1"}, src)

	assert.Nil(t, h)
	assert.ErrorIs(t, err, core.ErrMalformedSubmission)
	assert.NoDirExists(t, filepath.Join(f.activeRoot, "job-1"))
	assert.Zero(t, f.pool.Gate().Outstanding(), "gate state unchanged")
	assert.Empty(t, f.exec.Calls())

	_, err = f.store.GetJob(ctx, "job-1")
	assert.ErrorIs(t, err, core.ErrJobNotFound)

	events := f.Events()
	require.Len(t, events, 1)
	assert.IsType(t, &core.JobRejected{}, events[0])
}

func TestSubmitAnalysis_InvalidMetadata(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1)
	src := writePlain(t, "fw.bin", "x")

	_, err := f.sup.SubmitAnalysis(ctx, Submission{ID: "../etc"}, src)
	assert.ErrorIs(t, err, core.ErrInvalidJobID)

	_, err = f.sup.SubmitAnalysis(ctx, Submission{ID: "job-1", Flags: "-s; rm -rf /"}, src)
	assert.ErrorIs(t, err, core.ErrInvalidFlags)

	assert.NoDirExists(t, filepath.Join(f.activeRoot, "job-1"))
	assert.Zero(t, f.pool.Gate().Outstanding())
}

func TestSubmitAnalysis_DuplicateIDKeepsRunningStaging(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 2)
	f.exec.release = make(chan struct{})

	h, err := f.sup.SubmitAnalysis(ctx, Submission{ID: "job-1"}, writePlain(t, "fw.bin", "x"))
	require.NoError(t, err)

	_, err = f.sup.SubmitAnalysis(ctx, Submission{ID: "job-1"}, writePlain(t, "other.bin", "y"))
	assert.ErrorIs(t, err, ErrStagingExists)
	assert.FileExists(t, filepath.Join(f.activeRoot, "job-1", "fw.bin"))

	close(f.exec.release)
	require.NoError(t, h.Wait(ctx))
}

func TestSubmitAnalysis_AdmissionRejectedFinalizesJob(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1)
	f.exec.release = make(chan struct{})

	h, err := f.sup.SubmitAnalysis(ctx, Submission{ID: "job-1"}, writePlain(t, "fw.bin", "x"))
	require.NoError(t, err)

	_, err = f.sup.SubmitAnalysis(ctx, Submission{ID: "job-2"}, writePlain(t, "fw.bin", "x"))
	assert.ErrorIs(t, err, core.ErrAdmissionRejected)
	assert.NoDirExists(t, filepath.Join(f.activeRoot, "job-2"))

	job, err := f.store.GetJob(ctx, "job-2")
	require.NoError(t, err)
	assert.True(t, job.Finished)
	assert.Equal(t, core.StatusFailed, job.Status)
	assert.Equal(t, core.OutcomeRejected, job.Outcome)
	assert.Contains(t, job.LastError, "queue full")

	close(f.exec.release)
	require.NoError(t, h.Wait(ctx))
	assert.Len(t, f.exec.Calls(), 1)
}

func TestSubmitAnalysis_PoolClosed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1)
	f.pool.Shutdown(true)

	_, err := f.sup.SubmitAnalysis(ctx, Submission{ID: "job-1"}, writePlain(t, "fw.bin", "x"))
	assert.ErrorIs(t, err, core.ErrPoolClosed)
	assert.Zero(t, f.pool.Gate().Outstanding())

	job, err := f.store.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, core.OutcomeRejected, job.Outcome)
}

func TestSubmitAnalysis_SubmitsTailer(t *testing.T) {
	ctx := context.Background()
	tailer := &fakeTailer{}
	f := newFixture(t, 2, WithTailer(tailer))

	h, err := f.sup.SubmitAnalysis(ctx, Submission{ID: "job-1"}, writePlain(t, "fw.bin", "x"))
	require.NoError(t, err)
	require.NoError(t, h.Wait(ctx))

	assert.Eventually(t, func() bool {
		return len(tailer.IDs()) == 1 && f.pool.Gate().Outstanding() == 0
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"job-1"}, tailer.IDs())
}

func TestSubmitAnalysis_TailerRejectionIsNotFatal(t *testing.T) {
	ctx := context.Background()
	tailer := &fakeTailer{}
	f := newFixture(t, 1, WithTailer(tailer))
	f.exec.release = make(chan struct{})

	h, err := f.sup.SubmitAnalysis(ctx, Submission{ID: "job-1"}, writePlain(t, "fw.bin", "x"))
	require.NoError(t, err, "analysis admitted even though the tailer is not")
	require.NotNil(t, h)

	close(f.exec.release)
	require.NoError(t, h.Wait(ctx))
	assert.Empty(t, tailer.IDs())
}

func TestSubmitAnalysis_StorageFailureRemovesStaging(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1)
	require.NoError(t, f.store.Close())

	_, err := f.sup.SubmitAnalysis(ctx, Submission{ID: "job-1"}, writePlain(t, "fw.bin", "x"))
	require.Error(t, err)
	assert.False(t, errors.Is(err, core.ErrAdmissionRejected))
	assert.NoDirExists(t, filepath.Join(f.activeRoot, "job-1"))
	assert.Empty(t, f.exec.Calls())

	_, statErr := os.Stat(f.exec.LogDir("job-1"))
	assert.NoError(t, statErr, "log directory is created before the job is persisted")
}
