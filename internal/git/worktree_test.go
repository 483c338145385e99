package git

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStageRejectsPathsOutsideWorktree(t *testing.T) {
	r := newRepo(t)
	for _, p := range []string{"", "../escape.txt", ".git/config", "."} {
		err := r.Stage(p)
		var opErr *OpError
		require.ErrorAs(t, err, &opErr, "path %q", p)
		assert.Equal(t, "stage", opErr.Op)
	}
}

func TestStageAbsolutePath(t *testing.T) {
	r := newRepo(t)
	writeFile(t, r, "dir/a.txt", "x\n")
	require.NoError(t, r.Stage(filepath.Join(r.Path(), "dir", "a.txt")))

	st, err := r.Status()
	require.NoError(t, err)
	require.Len(t, st.Staged, 1)
	assert.Equal(t, "dir/a.txt", st.Staged[0].Path)
}

func TestStageDirectory(t *testing.T) {
	r := newRepo(t)
	writeFile(t, r, "dir/a.txt", "a\n")
	writeFile(t, r, "dir/sub/b.txt", "b\n")
	require.NoError(t, r.Stage("dir"))

	st, err := r.Status()
	require.NoError(t, err)
	require.Len(t, st.Staged, 2)
	assert.Equal(t, "dir/a.txt", st.Staged[0].Path)
	assert.Equal(t, "dir/sub/b.txt", st.Staged[1].Path)
	assert.Empty(t, st.Untracked)
}

func TestStageDeletion(t *testing.T) {
	r := newRepo(t)
	commitFiles(t, r, "initial", map[string]string{"a.txt": "x\n"})
	removeFile(t, r, "a.txt")
	require.NoError(t, r.Stage("a.txt"))

	st, err := r.Status()
	require.NoError(t, err)
	assert.Equal(t, []ChangeEntry{{Path: "a.txt", Kind: ChangeDeleted, Deletions: 1}}, st.Staged)
	assert.Empty(t, st.Unstaged)
}

func TestStageUnknownMissingFile(t *testing.T) {
	r := newRepo(t)
	commitFiles(t, r, "initial", map[string]string{"a.txt": "x\n"})
	err := r.Stage("nope.txt")
	assert.ErrorContains(t, err, "did not match")
}

func TestUnstageRestoresHeadVersion(t *testing.T) {
	r := newRepo(t)
	commitFiles(t, r, "initial", map[string]string{"a.txt": "1\n"})
	writeFile(t, r, "a.txt", "2\n")
	require.NoError(t, r.Stage("a.txt"))
	require.NoError(t, r.Unstage("a.txt"))

	st, err := r.Status()
	require.NoError(t, err)
	assert.Empty(t, st.Staged)
	assert.Equal(t, []ChangeEntry{{Path: "a.txt", Kind: ChangeModified, Additions: 1, Deletions: 1}}, st.Unstaged)
	assert.Equal(t, "2\n", readFile(t, r, "a.txt"), "the worktree is not touched")
}

func TestUnstageNewFileMakesItUntracked(t *testing.T) {
	r := newRepo(t)
	commitFiles(t, r, "initial", map[string]string{"a.txt": "1\n"})
	writeFile(t, r, "n.txt", "new\n")
	require.NoError(t, r.Stage("n.txt"))
	require.NoError(t, r.Unstage("n.txt"))

	st, err := r.Status()
	require.NoError(t, err)
	assert.Empty(t, st.Staged)
	assert.Equal(t, []string{"n.txt"}, st.Untracked)
}

func TestCommitRequiresMessage(t *testing.T) {
	r := newRepo(t)
	writeFile(t, r, "a.txt", "1\n")
	require.NoError(t, r.Stage("a.txt"))
	_, err := r.Commit("  \n")
	assert.ErrorContains(t, err, "empty commit message")
}

func TestCommitWithNothingStaged(t *testing.T) {
	r := newRepo(t)
	commitFiles(t, r, "initial", map[string]string{"a.txt": "1\n"})
	writeFile(t, r, "a.txt", "2\n")

	_, err := r.Commit("nothing staged")
	require.ErrorIs(t, err, ErrNothingStaged)
	assert.True(t, IsAdvisory(err))
	assert.Contains(t, err.Error(), "hint: stage changes first")
}

func TestCommitUsesFallbackIdentity(t *testing.T) {
	r := newRepo(t, WithIdentity("Jane Doe", "jane@example.com"))
	id := commitFiles(t, r, "initial", map[string]string{"a.txt": "1\n"})

	commits, err := r.Commits(1, 0)
	require.NoError(t, err)
	require.Len(t, commits, 1)
	assert.Equal(t, id, commits[0].ID)
	assert.Equal(t, "Jane Doe", commits[0].Author)
	assert.Equal(t, "jane@example.com", commits[0].Email)
}

func TestCommitPrefersRepositoryIdentity(t *testing.T) {
	r := newRepo(t, WithIdentity("Fallback", "fallback@example.com"))
	cfg, err := r.Git().Config()
	require.NoError(t, err)
	cfg.User.Name = "Repo User"
	cfg.User.Email = "repo@example.com"
	require.NoError(t, r.Git().SetConfig(cfg))

	commitFiles(t, r, "initial", map[string]string{"a.txt": "1\n"})
	commits, err := r.Commits(1, 0)
	require.NoError(t, err)
	assert.Equal(t, "Repo User", commits[0].Author)
}

func TestOpenMissingRepository(t *testing.T) {
	_, err := Open(t.TempDir())
	require.ErrorIs(t, err, ErrRepositoryUnavailable)
	var opErr *OpError
	require.True(t, errors.As(err, &opErr))
	assert.Equal(t, "open", opErr.Op)
}

func TestOpenFromSubdirectory(t *testing.T) {
	r := newRepo(t)
	writeFile(t, r, "sub/dir/a.txt", "x\n")
	sub, err := Open(filepath.Join(r.Path(), "sub", "dir"), testOptions()...)
	require.NoError(t, err)
	assert.Equal(t, r.Path(), sub.Path())
}

func TestLocate(t *testing.T) {
	r := newRepo(t)
	writeFile(t, r, "sub/dir/a.txt", "x\n")
	root, gitDir, err := Locate(filepath.Join(r.Path(), "sub", "dir"))
	require.NoError(t, err)
	assert.Equal(t, r.Path(), root)
	assert.Equal(t, r.GitDir(), gitDir)

	_, _, err = Locate(t.TempDir())
	require.ErrorIs(t, err, ErrRepositoryUnavailable)
}

func TestLocateFollowsGitFile(t *testing.T) {
	r := newRepo(t)
	linked := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(linked, ".git"), []byte("gitdir: "+r.GitDir()+"\n"), 0o644))
	root, gitDir, err := Locate(linked)
	require.NoError(t, err)
	assert.Equal(t, linked, root)
	assert.Equal(t, r.GitDir(), gitDir)

	require.NoError(t, os.WriteFile(filepath.Join(linked, ".git"), []byte("garbage\n"), 0o644))
	_, _, err = Locate(linked)
	require.ErrorIs(t, err, ErrRepositoryUnavailable)
}
