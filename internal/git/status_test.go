package git

import (
	"path/filepath"
	"testing"
	"time"

	gitlib "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusCleanRepository(t *testing.T) {
	r := newRepo(t)
	commitFiles(t, r, "initial", map[string]string{"a.txt": "one\n"})

	st, err := r.Status()
	require.NoError(t, err)
	assert.True(t, st.Clean())
	assert.Empty(t, st.Staged)
	assert.Empty(t, st.Unstaged)
	assert.Empty(t, st.Untracked)
}

func TestStatusUnbornRepository(t *testing.T) {
	r := newRepo(t)
	writeFile(t, r, "new.txt", "x\n")

	st, err := r.Status()
	require.NoError(t, err)
	assert.Empty(t, st.Staged)
	assert.Empty(t, st.Unstaged)
	assert.Equal(t, []string{"new.txt"}, st.Untracked)
}

func TestStatusPartitions(t *testing.T) {
	r := newRepo(t)
	commitFiles(t, r, "initial", map[string]string{
		"a.txt": "one\n",
		"b.txt": "one\n",
		"c.txt": "one\n",
	})
	writeFile(t, r, "a.txt", "one\ntwo\n")
	require.NoError(t, r.Stage("a.txt"))
	writeFile(t, r, "b.txt", "uno\n")
	removeFile(t, r, "c.txt")
	writeFile(t, r, "d.txt", "new\n")
	writeFile(t, r, "e.txt", "added\n")
	require.NoError(t, r.Stage("e.txt"))

	st, err := reopen(t, r).Status()
	require.NoError(t, err)
	assert.Equal(t, []ChangeEntry{
		{Path: "a.txt", Kind: ChangeModified, Additions: 1},
		{Path: "e.txt", Kind: ChangeAdded, Additions: 1},
	}, st.Staged)
	assert.Equal(t, []ChangeEntry{
		{Path: "b.txt", Kind: ChangeModified, Additions: 1, Deletions: 1},
		{Path: "c.txt", Kind: ChangeDeleted, Deletions: 1},
	}, st.Unstaged)
	assert.Equal(t, []string{"d.txt"}, st.Untracked)
}

func TestStatusSameFileStagedAndUnstaged(t *testing.T) {
	r := newRepo(t)
	commitFiles(t, r, "initial", map[string]string{"a.txt": "v1\n"})
	writeFile(t, r, "a.txt", "v2\n")
	require.NoError(t, r.Stage("a.txt"))
	writeFile(t, r, "a.txt", "v3\n")

	st, err := r.Status()
	require.NoError(t, err)
	require.Len(t, st.Staged, 1)
	require.Len(t, st.Unstaged, 1)
	assert.Equal(t, "a.txt", st.Staged[0].Path)
	assert.Equal(t, "a.txt", st.Unstaged[0].Path)
	assert.Empty(t, st.Untracked)
}

func TestStatusStagedDeletionThatReappears(t *testing.T) {
	r := newRepo(t)
	commitFiles(t, r, "initial", map[string]string{"a.txt": "v1\n"})
	removeFile(t, r, "a.txt")
	require.NoError(t, r.Stage("a.txt"))
	writeFile(t, r, "a.txt", "back\n")

	st, err := r.Status()
	require.NoError(t, err)
	require.Len(t, st.Staged, 1)
	assert.Equal(t, ChangeDeleted, st.Staged[0].Kind)
	assert.Equal(t, []string{"a.txt"}, st.Untracked)
	assert.Empty(t, st.Unstaged, "an untracked path is never also unstaged")
}

func TestStatusStagedAdditionMissingFromDisk(t *testing.T) {
	r := newRepo(t)
	commitFiles(t, r, "initial", map[string]string{"a.txt": "v1\n"})
	writeFile(t, r, "n.txt", "new\n")
	require.NoError(t, r.Stage("n.txt"))
	removeFile(t, r, "n.txt")

	st, err := r.Status()
	require.NoError(t, err)
	assert.Equal(t, []ChangeEntry{{Path: "n.txt", Kind: ChangeAdded, Additions: 1}}, st.Staged)
	assert.Equal(t, []ChangeEntry{{Path: "n.txt", Kind: ChangeDeleted, Deletions: 1}}, st.Unstaged)
	assert.Empty(t, st.Untracked)
}

func TestStatusStagedRename(t *testing.T) {
	r := newRepo(t)
	commitFiles(t, r, "initial", map[string]string{"old.txt": "same content\n"})
	removeFile(t, r, "old.txt")
	writeFile(t, r, "new.txt", "same content\n")
	require.NoError(t, r.Stage("old.txt"))
	require.NoError(t, r.Stage("new.txt"))

	st, err := r.Status()
	require.NoError(t, err)
	require.Len(t, st.Staged, 1)
	assert.Equal(t, "new.txt", st.Staged[0].Path)
	assert.Equal(t, "old.txt", st.Staged[0].OldPath)
	assert.Equal(t, ChangeRenamed, st.Staged[0].Kind)
	assert.Empty(t, st.Unstaged)
	assert.Empty(t, st.Untracked)
}

func TestStatusHonoursGitignore(t *testing.T) {
	r := newRepo(t)
	commitFiles(t, r, "initial", map[string]string{".gitignore": "*.log\nbuild/\n"})
	writeFile(t, r, "debug.log", "noise\n")
	writeFile(t, r, "build/out.bin", "bin\n")
	writeFile(t, r, "src/main.go", "package main\n")

	st, err := r.Status()
	require.NoError(t, err)
	assert.Equal(t, []string{"src/main.go"}, st.Untracked)
}

func TestStatusSkipsNestedRepository(t *testing.T) {
	r := newRepo(t)
	commitFiles(t, r, "initial", map[string]string{"a.txt": "1\n"})
	_, err := gitlib.PlainInit(filepath.Join(r.Path(), "vendor", "lib"), false)
	require.NoError(t, err)
	writeFile(t, r, "vendor/lib/lib.go", "package lib\n")
	writeFile(t, r, "new.txt", "x\n")

	st, err := r.Status()
	require.NoError(t, err)
	assert.Empty(t, st.Staged)
	assert.Empty(t, st.Unstaged)
	assert.Equal(t, []string{"new.txt"}, st.Untracked)
}

// addGitlink records sub as a submodule at commit in the index and gives it
// a checkout with one file.
func addGitlink(t *testing.T, r *Repository, sub string, commit plumbing.Hash) {
	t.Helper()
	idx, err := r.readIndex()
	require.NoError(t, err)
	setIndexEntry(idx, sub, blobRef{Mode: filemode.Submodule, Hash: commit}, 0, time.Now())
	require.NoError(t, r.writeIndex(idx))
	writeFile(t, r, sub+"/.git", "gitdir: ../.git/modules/"+sub+"\n")
	writeFile(t, r, sub+"/file.txt", "inside\n")
}

func TestStatusWithSubmodule(t *testing.T) {
	r := newRepo(t)
	commitFiles(t, r, "initial", map[string]string{"a.txt": "1\n"})
	commit := plumbing.NewHash("0123456789abcdef0123456789abcdef01234567")
	addGitlink(t, r, "sub", commit)

	st, err := reopen(t, r).Status()
	require.NoError(t, err)
	assert.Equal(t, []ChangeEntry{{Path: "sub", Kind: ChangeAdded}}, st.Staged)
	assert.Empty(t, st.Unstaged)
	assert.Empty(t, st.Untracked)

	_, err = r.Commit("add submodule")
	require.NoError(t, err)
	r = reopen(t, r)
	st, err = r.Status()
	require.NoError(t, err)
	assert.True(t, st.Clean(), "a checked out submodule is not a local change: %+v", st)
	assert.NoError(t, r.ensureClean("pull", ""))

	head, err := r.headSnapshot()
	require.NoError(t, err)
	assert.Equal(t, blobRef{Mode: filemode.Submodule, Hash: commit}, head["sub"])
	// moving away from and back to the gitlink leaves the checkout alone
	without := head.clone()
	delete(without, "sub")
	require.NoError(t, r.moveWorktree(head, without))
	require.NoError(t, r.moveWorktree(without, head))
	assert.Equal(t, "inside\n", readFile(t, r, "sub/file.txt"))
}

func TestStatusPartitionsAreDisjointPerList(t *testing.T) {
	r := newRepo(t)
	commitFiles(t, r, "initial", map[string]string{"a.txt": "1\n", "b.txt": "1\n"})
	writeFile(t, r, "a.txt", "2\n")
	require.NoError(t, r.Stage("a.txt"))
	writeFile(t, r, "a.txt", "3\n")
	writeFile(t, r, "b.txt", "2\n")
	writeFile(t, r, "c.txt", "1\n")

	st, err := r.Status()
	require.NoError(t, err)
	seen := map[string]int{}
	for _, e := range st.Staged {
		seen["staged:"+e.Path]++
	}
	for _, e := range st.Unstaged {
		seen["unstaged:"+e.Path]++
	}
	for _, p := range st.Untracked {
		seen["untracked:"+p]++
	}
	for key, n := range seen {
		assert.Equal(t, 1, n, key)
	}
	for _, p := range st.Untracked {
		assert.NotContains(t, seen, "unstaged:"+p)
	}
}
