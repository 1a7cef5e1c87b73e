package sweep

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdziat/firmware-jobs/pkg/core"
	"github.com/jdziat/firmware-jobs/pkg/schedule"
	"github.com/jdziat/firmware-jobs/pkg/storage"
)

func newStore(t *testing.T) *storage.GormStorage {
	t.Helper()
	s, err := storage.Open(filepath.Join(t.TempDir(), "jobs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func mkStaging(t *testing.T, root, id string, age time.Duration) string {
	t.Helper()
	dir := filepath.Join(root, id)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "fw.bin"), []byte("x"), 0o644))
	old := time.Now().Add(-age)
	require.NoError(t, os.Chtimes(dir, old, old))
	return dir
}

func TestSweep(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	root := t.TempDir()

	for _, id := range []string{"running", "finished"} {
		require.NoError(t, store.CreateJob(ctx, &core.Job{ID: id}))
	}
	require.NoError(t, store.FinishJob(ctx, "finished", core.FinishUpdate{Status: core.StatusFinished}))

	running := mkStaging(t, root, "running", 48*time.Hour)
	finished := mkStaging(t, root, "finished", 48*time.Hour)
	orphan := mkStaging(t, root, "orphan", 48*time.Hour)
	fresh := mkStaging(t, root, "fresh", time.Minute)
	require.NoError(t, os.WriteFile(filepath.Join(root, "stray.txt"), []byte("x"), 0o644))

	s := New(store, root, WithMaxAge(24*time.Hour))
	removed, err := s.Sweep(ctx)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{finished, orphan}, removed)
	assert.DirExists(t, running)
	assert.DirExists(t, fresh)
	assert.NoDirExists(t, finished)
	assert.NoDirExists(t, orphan)
	assert.FileExists(t, filepath.Join(root, "stray.txt"))
}

func TestSweep_MissingRoot(t *testing.T) {
	s := New(newStore(t), filepath.Join(t.TempDir(), "nope"))
	removed, err := s.Sweep(context.Background())
	assert.NoError(t, err)
	assert.Empty(t, removed)
}

func TestStartStop(t *testing.T) {
	store := newStore(t)
	root := t.TempDir()
	orphan := mkStaging(t, root, "orphan", 2*time.Hour)

	s := New(store, root,
		WithSchedule(schedule.Every(20*time.Millisecond)),
		WithMaxAge(time.Hour),
	)
	s.Start(context.Background())
	defer s.Stop()

	assert.Eventually(t, func() bool {
		_, err := os.Stat(orphan)
		return os.IsNotExist(err)
	}, 5*time.Second, 20*time.Millisecond)
}

func TestStop_WithoutStart(t *testing.T) {
	s := New(nil, t.TempDir())
	assert.NotPanics(t, s.Stop)
}
