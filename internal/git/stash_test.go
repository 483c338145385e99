package git

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStashCreateNothingToStash(t *testing.T) {
	r := newRepo(t)
	commitFiles(t, r, "initial", map[string]string{"a.txt": "1\n"})
	writeFile(t, r, "untracked.txt", "u\n")

	_, err := r.StashCreate("")
	require.ErrorIs(t, err, ErrNothingToStash)
	assert.True(t, IsAdvisory(err))
}

func TestStashCreateOnUnbornBranch(t *testing.T) {
	r := newRepo(t)
	writeFile(t, r, "a.txt", "1\n")
	require.NoError(t, r.Stage("a.txt"))
	_, err := r.StashCreate("")
	assert.ErrorIs(t, err, ErrRefNotFound)
}

func TestStashRoundTrip(t *testing.T) {
	r := newRepo(t)
	commitFiles(t, r, "initial", map[string]string{"a.txt": "1\n"})
	writeFile(t, r, "a.txt", "2\n")
	writeFile(t, r, "b.txt", "b\n")
	require.NoError(t, r.Stage("b.txt"))
	writeFile(t, r, "keep.txt", "untracked\n")

	id, err := r.StashCreate("wip")
	require.NoError(t, err)
	assert.Len(t, id, 40)
	assert.Equal(t, "1\n", readFile(t, r, "a.txt"))
	assert.False(t, fileExists(r, "b.txt"))
	assert.Equal(t, "untracked\n", readFile(t, r, "keep.txt"), "untracked files stay in place")

	st, err := r.Status()
	require.NoError(t, err)
	assert.Empty(t, st.Staged)
	assert.Empty(t, st.Unstaged)
	assert.Equal(t, []string{"keep.txt"}, st.Untracked)

	entries, err := r.StashList()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, StashEntry{
		Index:   0,
		ID:      id,
		Message: "On main: wip",
		Branch:  "main",
		When:    entries[0].When,
	}, entries[0])

	outcome, err := r.StashApply(id)
	require.NoError(t, err)
	assert.Equal(t, StashApplied, outcome)
	assert.Equal(t, "2\n", readFile(t, r, "a.txt"))
	assert.Equal(t, "b\n", readFile(t, r, "b.txt"))

	st, err = r.Status()
	require.NoError(t, err)
	assert.Equal(t, []ChangeEntry{{Path: "b.txt", Kind: ChangeAdded, Additions: 1}}, st.Staged)
	assert.Equal(t, []ChangeEntry{{Path: "a.txt", Kind: ChangeModified, Additions: 1, Deletions: 1}}, st.Unstaged)

	again, err := r.StashApply(id[:8])
	require.NoError(t, err)
	assert.Equal(t, StashAlreadyApplied, again)

	entries, err = r.StashList()
	require.NoError(t, err)
	assert.Len(t, entries, 1, "apply keeps the entry")
}

func TestStashCreateKeepsRecreatedFile(t *testing.T) {
	r := newRepo(t)
	commitFiles(t, r, "initial", map[string]string{"a.txt": "1\n", "b.txt": "b\n"})
	removeFile(t, r, "a.txt")
	require.NoError(t, r.Stage("a.txt"))
	writeFile(t, r, "a.txt", "precious\n")
	before, err := r.Status()
	require.NoError(t, err)
	require.Equal(t, []string{"a.txt"}, before.Untracked)

	_, err = r.StashCreate("")
	require.ErrorIs(t, err, ErrUncommittedChanges)
	assert.True(t, IsAdvisory(err))
	assert.ErrorContains(t, err, "a.txt")
	assert.Equal(t, "precious\n", readFile(t, r, "a.txt"))

	after, err := r.Status()
	require.NoError(t, err)
	assert.Equal(t, before, after)
	entries, err := r.StashList()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStashCreateRestoresWorktreeWhenLogWriteFails(t *testing.T) {
	r := newRepo(t)
	commitFiles(t, r, "initial", map[string]string{"a.txt": "1\n"})
	writeFile(t, r, "a.txt", "2\n")
	writeFile(t, r, "b.txt", "b\n")
	require.NoError(t, r.Stage("b.txt"))
	before, err := r.Status()
	require.NoError(t, err)
	// a directory where the stash log should be makes it unreadable
	require.NoError(t, os.MkdirAll(filepath.Join(r.GitDir(), "logs", "refs", "stash", "x"), 0o755))

	_, err = r.StashCreate("wip")
	require.ErrorIs(t, err, ErrRepositoryUnavailable)
	assert.Equal(t, "2\n", readFile(t, r, "a.txt"))
	assert.Equal(t, "b\n", readFile(t, r, "b.txt"))
	after, err := r.Status()
	require.NoError(t, err)
	assert.Equal(t, before, after)
	_, err = r.Git().Reference(stashRef, false)
	assert.ErrorIs(t, err, plumbing.ErrReferenceNotFound)
}

func TestStashDefaultMessage(t *testing.T) {
	r := newRepo(t)
	head := commitFiles(t, r, "initial commit", map[string]string{"a.txt": "1\n"})
	writeFile(t, r, "a.txt", "2\n")

	_, err := r.StashCreate("")
	require.NoError(t, err)
	entries, err := r.StashList()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "WIP on main: "+head[:7]+" initial commit", entries[0].Message)
}

func TestStashListNewestFirst(t *testing.T) {
	r := newRepo(t)
	commitFiles(t, r, "initial", map[string]string{"a.txt": "1\n"})
	writeFile(t, r, "a.txt", "first\n")
	first, err := r.StashCreate("first")
	require.NoError(t, err)
	writeFile(t, r, "a.txt", "second\n")
	second, err := r.StashCreate("second")
	require.NoError(t, err)

	entries, err := r.StashList()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, second, entries[0].ID)
	assert.Equal(t, 0, entries[0].Index)
	assert.Equal(t, first, entries[1].ID)
	assert.Equal(t, 1, entries[1].Index)

	entry, _, err := r.findStash("stash@{1}")
	require.NoError(t, err)
	assert.Equal(t, first, entry.ID)
}

func TestStashListEmpty(t *testing.T) {
	r := newRepo(t)
	entries, err := r.StashList()
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.NotNil(t, entries)
}

func TestStashApplyNotFound(t *testing.T) {
	r := newRepo(t)
	commitFiles(t, r, "initial", map[string]string{"a.txt": "1\n"})
	writeFile(t, r, "a.txt", "2\n")
	id, err := r.StashCreate("only")
	require.NoError(t, err)

	for _, q := range []string{"deadbeef", "stash@{3}", ""} {
		_, err := r.StashApply(q)
		require.ErrorIs(t, err, ErrStashNotFound, q)
		var notFound *StashNotFoundError
		require.True(t, errors.As(err, &notFound))
		require.Len(t, notFound.Available, 1)
		assert.Equal(t, id, notFound.Available[0].ID)
		assert.Contains(t, err.Error(), "stash@{0} "+id[:7]+" On main: only")
	}
}

func TestStashApplyConflictWritesNothing(t *testing.T) {
	r := newRepo(t)
	commitFiles(t, r, "initial", map[string]string{"a.txt": "1\n"})
	writeFile(t, r, "a.txt", "2\n")
	id, err := r.StashCreate("")
	require.NoError(t, err)
	writeFile(t, r, "a.txt", "3\n")

	_, err = r.StashApply(id)
	require.ErrorIs(t, err, ErrStashConflict)
	var conflict *StashConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, []string{"a.txt"}, conflict.Paths)
	assert.Equal(t, "3\n", readFile(t, r, "a.txt"))
}

func TestStashApplyOnTopOfUnrelatedChanges(t *testing.T) {
	r := newRepo(t)
	commitFiles(t, r, "initial", map[string]string{"a.txt": "1\n", "b.txt": "1\n"})
	writeFile(t, r, "a.txt", "2\n")
	id, err := r.StashCreate("")
	require.NoError(t, err)
	writeFile(t, r, "b.txt", "2\n")

	outcome, err := r.StashApply(id)
	require.NoError(t, err)
	assert.Equal(t, StashApplied, outcome)
	assert.Equal(t, "2\n", readFile(t, r, "a.txt"))
	assert.Equal(t, "2\n", readFile(t, r, "b.txt"))
}

func TestStashDrop(t *testing.T) {
	r := newRepo(t)
	commitFiles(t, r, "initial", map[string]string{"a.txt": "1\n"})
	writeFile(t, r, "a.txt", "first\n")
	first, err := r.StashCreate("first")
	require.NoError(t, err)
	writeFile(t, r, "a.txt", "second\n")
	_, err = r.StashCreate("second")
	require.NoError(t, err)

	require.NoError(t, r.StashDrop("stash@{0}"))
	entries, err := r.StashList()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, first, entries[0].ID)
	assert.Equal(t, 0, entries[0].Index)

	ref, err := r.Git().Reference(stashRef, true)
	require.NoError(t, err)
	assert.Equal(t, first, ref.Hash().String())

	require.NoError(t, r.StashDrop(first))
	entries, err = r.StashList()
	require.NoError(t, err)
	assert.Empty(t, entries)
	_, err = r.Git().Reference(stashRef, true)
	assert.ErrorIs(t, err, plumbing.ErrReferenceNotFound)

	assert.ErrorIs(t, r.StashDrop(first), ErrStashNotFound)
}

func TestStashIDsAreNeverReused(t *testing.T) {
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	r := newRepo(t, WithClock(func() time.Time { return fixed }))
	commitFiles(t, r, "initial", map[string]string{"a.txt": "1\n"})

	writeFile(t, r, "a.txt", "2\n")
	first, err := r.StashCreate("same")
	require.NoError(t, err)
	require.NoError(t, r.StashDrop(first))

	writeFile(t, r, "a.txt", "2\n")
	second, err := r.StashCreate("same")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestStashBranch(t *testing.T) {
	assert.Equal(t, "main", stashBranch("WIP on main: abc1234 subject"))
	assert.Equal(t, "feature/x", stashBranch("On feature/x: message"))
	assert.Equal(t, "(no branch)", stashBranch("On (no branch): message"))
	assert.Empty(t, stashBranch("something else"))
}
