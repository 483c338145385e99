package git

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOpErrorMessage(t *testing.T) {
	cause := errors.New("connection refused")
	err := &OpError{
		Op:      "fetch",
		Remote:  "origin",
		URL:     "https://example.com/r.git",
		Refspec: "+refs/heads/main:refs/remotes/origin/main",
		Kind:    ErrNetworkFailure,
		Err:     cause,
		Hint:    "retry later",
	}
	assert.Equal(t,
		"fetch remote=origin url=https://example.com/r.git refspec=+refs/heads/main:refs/remotes/origin/main: "+
			"network failure: connection refused (hint: retry later)",
		err.Error())
	assert.ErrorIs(t, err, ErrNetworkFailure)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrRefNotFound)
}

func TestOpErrorWithoutCause(t *testing.T) {
	err := &OpError{Op: "checkout", Ref: "topic", Kind: ErrRefNotFound}
	assert.Equal(t, "checkout (topic): reference not found", err.Error())
	assert.ErrorIs(t, fmt.Errorf("wrapped: %w", err), ErrRefNotFound)
}

func TestUnavailableKeepsExistingOpError(t *testing.T) {
	inner := &OpError{Op: "stage", Kind: ErrNothingStaged}
	assert.Same(t, inner, unavailable("commit", inner))

	err := unavailable("log", errors.New("disk gone"))
	assert.ErrorIs(t, err, ErrRepositoryUnavailable)
	assert.ErrorContains(t, err, "disk gone")
}

func TestIsAdvisory(t *testing.T) {
	assert.True(t, IsAdvisory(&OpError{Op: "commit", Kind: ErrNothingStaged}))
	assert.True(t, IsAdvisory(&OpError{Op: "stash", Kind: ErrNothingToStash}))
	assert.True(t, IsAdvisory(&OpError{Op: "pull", Kind: ErrUncommittedChanges}))
	assert.False(t, IsAdvisory(&OpError{Op: "push", Kind: ErrPushRejected}))
	assert.False(t, IsAdvisory(&MergeConflictError{Branch: "origin/main", Paths: []string{"a"}}))
	assert.False(t, IsAdvisory(nil))
}

func TestStashNotFoundErrorMessage(t *testing.T) {
	err := &StashNotFoundError{Query: "abc"}
	assert.Equal(t, `stash "abc" not found; no stashes available`, err.Error())
	assert.ErrorIs(t, err, ErrStashNotFound)

	err = &StashNotFoundError{
		Query:     "ab",
		Ambiguous: true,
		Available: []StashEntry{{Index: 0, ID: "ab12345678", Message: "On main: x"}},
	}
	assert.Equal(t, "stash \"ab\" is ambiguous; available:\n  stash@{0} ab12345 On main: x", err.Error())
}

func TestConflictErrorsUnwrap(t *testing.T) {
	merge := &MergeConflictError{Branch: "origin/main", Paths: []string{"a.txt", "b.txt"}}
	assert.ErrorIs(t, merge, ErrMergeConflict)
	assert.Contains(t, merge.Error(), "a.txt, b.txt")

	stash := &StashConflictError{ID: "0123456789abcdef", Paths: []string{"a.txt"}}
	assert.ErrorIs(t, stash, ErrStashConflict)
	assert.Contains(t, stash.Error(), "apply stash 0123456")
}
