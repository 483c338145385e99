package git

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrRepositoryUnavailable   = errors.New("repository unavailable")
	ErrRefNotFound             = errors.New("reference not found")
	ErrNothingStaged           = errors.New("nothing staged")
	ErrNothingToStash          = errors.New("nothing to stash")
	ErrUncommittedChanges      = errors.New("uncommitted changes")
	ErrAuthenticationExhausted = errors.New("authentication exhausted")
	ErrNetworkFailure          = errors.New("network failure")
	ErrPushRejected            = errors.New("push rejected")
	ErrMergeConflict           = errors.New("merge conflict")
	ErrStashConflict           = errors.New("stash conflict")
	ErrStashNotFound           = errors.New("stash not found")
)

// OpError attaches the operation context to a failure. Kind is one of the
// package sentinels; Err is the underlying cause, if any.
type OpError struct {
	Op      string
	Path    string
	Ref     string
	Remote  string
	URL     string
	Refspec string
	Hint    string
	Kind    error
	Err     error
}

func (e *OpError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.Path != "" {
		fmt.Fprintf(&b, " %s", e.Path)
	}
	if e.Ref != "" {
		fmt.Fprintf(&b, " (%s)", e.Ref)
	}
	if e.Remote != "" {
		fmt.Fprintf(&b, " remote=%s", e.Remote)
	}
	if e.URL != "" {
		fmt.Fprintf(&b, " url=%s", e.URL)
	}
	if e.Refspec != "" {
		fmt.Fprintf(&b, " refspec=%s", e.Refspec)
	}
	if e.Kind != nil {
		fmt.Fprintf(&b, ": %v", e.Kind)
	}
	if e.Err != nil && e.Err != e.Kind {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if e.Hint != "" {
		fmt.Fprintf(&b, " (hint: %s)", e.Hint)
	}
	return b.String()
}

func (e *OpError) Unwrap() []error {
	var errs []error
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil && e.Err != e.Kind {
		errs = append(errs, e.Err)
	}
	return errs
}

func unavailable(op string, err error) error {
	var opErr *OpError
	if errors.As(err, &opErr) {
		return err
	}
	return &OpError{Op: op, Kind: ErrRepositoryUnavailable, Err: err}
}

// StashNotFoundError lists what could have been meant.
type StashNotFoundError struct {
	Query     string
	Ambiguous bool
	Available []StashEntry
}

func (e *StashNotFoundError) Error() string {
	var b strings.Builder
	if e.Ambiguous {
		fmt.Fprintf(&b, "stash %q is ambiguous", e.Query)
	} else {
		fmt.Fprintf(&b, "stash %q not found", e.Query)
	}
	if len(e.Available) == 0 {
		b.WriteString("; no stashes available")
		return b.String()
	}
	b.WriteString("; available:")
	for _, st := range e.Available {
		fmt.Fprintf(&b, "\n  stash@{%d} %s %s", st.Index, st.ShortID(), st.Message)
	}
	return b.String()
}

func (e *StashNotFoundError) Unwrap() error { return ErrStashNotFound }

type MergeConflictError struct {
	Branch string
	Paths  []string
}

func (e *MergeConflictError) Error() string {
	return fmt.Sprintf("merge %s: conflicts in %s (hint: resolve the conflicting paths and commit)",
		e.Branch, strings.Join(e.Paths, ", "))
}

func (e *MergeConflictError) Unwrap() error { return ErrMergeConflict }

type StashConflictError struct {
	ID    string
	Paths []string
}

func (e *StashConflictError) Error() string {
	return fmt.Sprintf("apply stash %s: conflicts in %s (hint: commit or discard local edits to these paths)",
		shortHash(e.ID), strings.Join(e.Paths, ", "))
}

func (e *StashConflictError) Unwrap() error { return ErrStashConflict }

// IsAdvisory reports precondition failures that callers should surface as
// notices rather than faults.
func IsAdvisory(err error) bool {
	return errors.Is(err, ErrNothingStaged) ||
		errors.Is(err, ErrNothingToStash) ||
		errors.Is(err, ErrUncommittedChanges)
}
