package watch

import (
	"os"
	"path/filepath"
	"slices"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaths(t *testing.T) {
	root := t.TempDir()
	gitDir := filepath.Join(root, ".git")
	require.NoError(t, os.MkdirAll(filepath.Join(gitDir, "refs", "heads"), 0o755))

	got := slices.Sorted(Paths(root, gitDir))
	want := []string{root, gitDir, filepath.Join(gitDir, "refs", "heads")}
	slices.Sort(want)
	assert.Equal(t, want, got)
}

func TestPathsSkipsMissing(t *testing.T) {
	root := t.TempDir()
	got := slices.Collect(Paths(root, filepath.Join(root, "missing")))
	assert.Equal(t, []string{root}, got)
}

func TestShouldIgnore(t *testing.T) {
	assert.True(t, shouldIgnore("/repo/.git/index.lock"))
	assert.True(t, shouldIgnore("/repo/.git/fsmonitor.IPC"))
	assert.False(t, shouldIgnore("/repo/.git/index"))
	assert.False(t, shouldIgnore("/repo/main.go"))
}

func TestWatcherCoalescesEvents(t *testing.T) {
	root := t.TempDir()
	var calls atomic.Int32
	w, err := New(root, "", 50*time.Millisecond, nil, func() { calls.Add(1) })
	require.NoError(t, err)
	defer w.Close()

	for i := range 5 {
		require.NoError(t, os.WriteFile(filepath.Join(root, "f.txt"), []byte{byte(i)}, 0o644))
	}
	assert.Eventually(t, func() bool { return calls.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}

func TestWatcherIgnoresLockFiles(t *testing.T) {
	root := t.TempDir()
	var calls atomic.Int32
	w, err := New(root, "", 20*time.Millisecond, nil, func() { calls.Add(1) })
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(filepath.Join(root, "index.lock"), nil, 0o644))
	time.Sleep(150 * time.Millisecond)
	assert.Zero(t, calls.Load())
}

func TestCloseTwice(t *testing.T) {
	w, err := New(t.TempDir(), "", DefaultDelay, nil, func() {})
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
}
