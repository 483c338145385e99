package git

import (
	"testing"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createBranch(t *testing.T, r *Repository, name, id string) {
	t.Helper()
	ref := plumbing.NewHashReference(plumbing.NewBranchReferenceName(name), plumbing.NewHash(id))
	require.NoError(t, r.Git().Storer.SetReference(ref))
}

func TestBranchesListsLocalThenRemote(t *testing.T) {
	_, b, _ := publishedPair(t, map[string]string{"a.txt": "a\n"})
	head, err := b.Head()
	require.NoError(t, err)
	createBranch(t, b, "feature", head.Hash)

	branches, err := b.Branches()
	require.NoError(t, err)
	require.Len(t, branches, 3)
	assert.Equal(t, Branch{Name: "feature", Hash: head.Hash}, branches[0])
	assert.Equal(t, Branch{Name: "main", IsCurrent: true, Hash: head.Hash}, branches[1])
	assert.Equal(t, Branch{Name: "origin/main", IsRemote: true, Hash: head.Hash}, branches[2])
}

func TestCheckoutLocalBranch(t *testing.T) {
	r := newRepo(t)
	first := commitFiles(t, r, "first", map[string]string{"a.txt": "1\n"})
	createBranch(t, r, "feature", first)
	commitFiles(t, r, "second", map[string]string{"a.txt": "2\n", "b.txt": "b\n"})

	require.NoError(t, r.Checkout("feature"))
	head, err := r.Head()
	require.NoError(t, err)
	assert.Equal(t, "feature", head.Branch)
	assert.Equal(t, first, head.Hash)
	assert.Equal(t, "1\n", readFile(t, r, "a.txt"))
	assert.False(t, fileExists(r, "b.txt"))

	st, err := r.Status()
	require.NoError(t, err)
	assert.True(t, st.Clean())
}

func TestCheckoutRemoteBranchCreatesTrackingBranch(t *testing.T) {
	_, b, _ := publishedPair(t, map[string]string{"a.txt": "a\n"})
	head, err := b.Head()
	require.NoError(t, err)
	remoteRef := plumbing.NewHashReference(plumbing.NewRemoteReferenceName(DefaultRemote, "topic"), plumbing.NewHash(head.Hash))
	require.NoError(t, b.Git().Storer.SetReference(remoteRef))

	require.NoError(t, b.Checkout("topic"))
	state, err := b.Head()
	require.NoError(t, err)
	assert.Equal(t, "topic", state.Branch)

	up, ok, err := b.Upstream()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, Upstream{Remote: DefaultRemote, Branch: "topic"}, up)
}

func TestCheckoutRevisionDetachesHead(t *testing.T) {
	r := newRepo(t)
	first := commitFiles(t, r, "first", map[string]string{"a.txt": "1\n"})
	commitFiles(t, r, "second", map[string]string{"a.txt": "2\n"})

	require.NoError(t, r.Checkout(first[:10]))
	head, err := r.Head()
	require.NoError(t, err)
	assert.True(t, head.Detached)
	assert.Equal(t, "detached", head.Name())
	assert.Equal(t, first, head.Hash)
	assert.Equal(t, "1\n", readFile(t, r, "a.txt"))
}

func TestCheckoutRefusesDirtyWorktree(t *testing.T) {
	r := newRepo(t)
	first := commitFiles(t, r, "first", map[string]string{"a.txt": "1\n"})
	createBranch(t, r, "feature", first)
	commitFiles(t, r, "second", map[string]string{"a.txt": "2\n"})
	writeFile(t, r, "a.txt", "local edit\n")

	err := r.Checkout("feature")
	require.ErrorIs(t, err, ErrUncommittedChanges)
	assert.True(t, IsAdvisory(err))
	assert.Equal(t, "local edit\n", readFile(t, r, "a.txt"))
	head, err := r.Head()
	require.NoError(t, err)
	assert.Equal(t, "main", head.Branch)
}

func TestCheckoutRefusesToClobberUntrackedFile(t *testing.T) {
	r := newRepo(t)
	first := commitFiles(t, r, "first", map[string]string{"a.txt": "1\n"})
	commitFiles(t, r, "add new", map[string]string{"new.txt": "committed\n"})
	createBranch(t, r, "feature", mustHead(t, r))
	require.NoError(t, r.Checkout(first))
	writeFile(t, r, "new.txt", "mine\n")

	err := r.Checkout("feature")
	require.ErrorIs(t, err, ErrUncommittedChanges)
	assert.ErrorContains(t, err, "new.txt")
	assert.Equal(t, "mine\n", readFile(t, r, "new.txt"))
}

func TestCheckoutUnknownReference(t *testing.T) {
	r := newRepo(t)
	commitFiles(t, r, "first", map[string]string{"a.txt": "1\n"})
	err := r.Checkout("does-not-exist")
	require.ErrorIs(t, err, ErrRefNotFound)
	assert.ErrorIs(t, r.Checkout(""), ErrRefNotFound)
}

func mustHead(t *testing.T, r *Repository) string {
	t.Helper()
	head, err := r.Head()
	require.NoError(t, err)
	return head.Hash
}
