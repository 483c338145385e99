package git

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	gitlib "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
)

// AheadBehind counts the commits reachable from HEAD but not from the
// upstream remote-tracking ref and the other way around. Without an
// upstream, or before the first fetch, both are zero.
func (r *Repository) AheadBehind() (ahead, behind int, err error) {
	head, err := r.Head()
	if err != nil {
		return 0, 0, err
	}
	if head.Detached || head.Unborn {
		return 0, 0, nil
	}
	up, ok, err := r.upstreamOf(head.Branch)
	if err != nil || !ok {
		return 0, 0, err
	}
	ref, err := r.repo.Reference(plumbing.NewRemoteReferenceName(up.Remote, up.Branch), true)
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, unavailable("ahead/behind", err)
	}
	local, err := r.reachable(plumbing.NewHash(head.Hash))
	if err != nil {
		return 0, 0, unavailable("ahead/behind", err)
	}
	remote, err := r.reachable(ref.Hash())
	if err != nil {
		return 0, 0, unavailable("ahead/behind", err)
	}
	return local.Difference(remote).Cardinality(), remote.Difference(local).Cardinality(), nil
}

func (r *Repository) reachable(from plumbing.Hash) (mapset.Set[plumbing.Hash], error) {
	seen := mapset.NewThreadUnsafeSet[plumbing.Hash]()
	queue := []plumbing.Hash{from}
	for len(queue) > 0 {
		h := queue[0]
		queue = queue[1:]
		if !seen.Add(h) {
			continue
		}
		c, err := r.repo.CommitObject(h)
		if err != nil {
			return nil, fmt.Errorf("read commit %s: %w", shortHash(h.String()), err)
		}
		queue = append(queue, c.ParentHashes...)
	}
	return seen, nil
}

// target is the remote side of the current branch.
type target struct {
	branch       string
	remote       string
	remoteBranch string
	url          string
}

func (t target) trackingRef() plumbing.ReferenceName {
	return plumbing.NewRemoteReferenceName(t.remote, t.remoteBranch)
}

func (t target) fetchRefspec() config.RefSpec {
	return config.RefSpec(fmt.Sprintf("+%s:%s", plumbing.NewBranchReferenceName(t.remoteBranch), t.trackingRef()))
}

func (t target) pushRefspec() config.RefSpec {
	return config.RefSpec(fmt.Sprintf("%s:%s", plumbing.NewBranchReferenceName(t.branch), plumbing.NewBranchReferenceName(t.remoteBranch)))
}

// syncTarget resolves the upstream of the current branch, defaulting to the
// configured remote and a branch of the same name.
func (r *Repository) syncTarget(op string) (target, error) {
	branch, err := r.currentBranch(op)
	if err != nil {
		return target{}, err
	}
	t := target{branch: branch.Short(), remote: r.remote, remoteBranch: branch.Short()}
	if up, ok, err := r.upstreamOf(t.branch); err != nil {
		return target{}, err
	} else if ok {
		t.remote, t.remoteBranch = up.Remote, up.Branch
	}
	remote, err := r.repo.Remote(t.remote)
	if err != nil {
		return target{}, &OpError{Op: op, Remote: t.remote, Kind: ErrRefNotFound, Err: err, Hint: "add the remote first"}
	}
	if urls := remote.Config().URLs; len(urls) > 0 {
		t.url = urls[0]
	}
	return t, nil
}

// networkError maps a transport failure into the error taxonomy, keeping the
// remote, URL and refspec for diagnosis.
func networkError(op string, t target, refspec config.RefSpec, err error) error {
	e := &OpError{Op: op, Remote: t.remote, URL: t.url, Refspec: refspec.String(), Err: err}
	switch {
	case errors.Is(err, ErrAuthenticationExhausted):
		e.Kind = ErrAuthenticationExhausted
		e.Hint = "check credentials"
	case errors.Is(err, gitlib.NoMatchingRefSpecError{}), errors.Is(err, transport.ErrEmptyRemoteRepository):
		e.Kind = ErrRefNotFound
		e.Ref = t.remote + "/" + t.remoteBranch
		e.Hint = "push the branch first"
	case strings.Contains(err.Error(), "non-fast-forward update"):
		e.Kind = ErrPushRejected
		e.Hint = "pull first"
	default:
		e.Kind = ErrNetworkFailure
	}
	return e
}

// Fetch updates the remote-tracking ref of the current branch. The worktree,
// index and local branch are not touched.
func (r *Repository) Fetch(ctx context.Context) (FetchResult, error) {
	t, err := r.syncTarget("fetch")
	if err != nil {
		return FetchResult{}, err
	}
	refspec := t.fetchRefspec()
	res := FetchResult{Remote: t.remote, URL: t.url, Refspec: refspec.String(), RemoteRef: t.remote + "/" + t.remoteBranch}
	var before plumbing.Hash
	if ref, err := r.repo.Reference(t.trackingRef(), true); err == nil {
		before = ref.Hash()
	}
	r.log.Info("fetch start", slog.String("remote", t.remote), slog.String("url", t.url), slog.String("refspec", res.Refspec))
	remote, err := r.repo.Remote(t.remote)
	if err != nil {
		return FetchResult{}, &OpError{Op: "fetch", Remote: t.remote, Kind: ErrRefNotFound, Err: err}
	}
	err = r.negotiator().run(ctx, initialChallenge(t.url, r.sshUser), func(auth transport.AuthMethod) error {
		return remote.FetchContext(ctx, &gitlib.FetchOptions{
			RemoteName: t.remote,
			RefSpecs:   []config.RefSpec{refspec},
			Auth:       auth,
		})
	})
	if err != nil && !errors.Is(err, gitlib.NoErrAlreadyUpToDate) {
		r.log.Warn("fetch failed", slog.String("remote", t.remote), slog.Any("error", err))
		return FetchResult{}, networkError("fetch", t, refspec, err)
	}
	ref, err := r.repo.Reference(t.trackingRef(), true)
	if err != nil {
		return FetchResult{}, &OpError{Op: "fetch", Remote: t.remote, Ref: res.RemoteRef, Kind: ErrRefNotFound, Err: err}
	}
	res.Hash = ref.Hash().String()
	res.Updated = ref.Hash() != before
	r.log.Info("fetch done", slog.String("ref", res.RemoteRef), slog.String("hash", shortHash(res.Hash)),
		slog.Bool("updated", res.Updated))
	return res, nil
}

// Pull fetches and then integrates the remote-tracking commit into the
// current branch: nothing when already contained, a fast-forward when HEAD
// is an ancestor, a two-parent merge commit otherwise. Merge conflicts abort
// before anything is written to the worktree, index or refs.
func (r *Repository) Pull(ctx context.Context) (PullResult, error) {
	fetch, err := r.Fetch(ctx)
	if err != nil {
		return PullResult{}, err
	}
	res := PullResult{Fetch: fetch}
	branch, err := r.currentBranch("pull")
	if err != nil {
		return PullResult{}, err
	}
	theirs, err := r.repo.CommitObject(plumbing.NewHash(fetch.Hash))
	if err != nil {
		return PullResult{}, unavailable("pull", err)
	}
	ours, err := r.headCommit()
	if err != nil {
		return PullResult{}, unavailable("pull", err)
	}
	if ours != nil && ours.Hash == theirs.Hash {
		r.log.Info("pull: already up to date")
		return r.pullResult(res, PullUpToDate, ours.Hash, "already up to date"), nil
	}
	if err := r.ensureClean("pull", "commit or stash your changes first"); err != nil {
		r.log.Info("pull refused", slog.Any("error", err))
		return PullResult{}, err
	}
	if ours == nil {
		return r.fastForward(res, branch, nil, theirs)
	}
	if contained, err := theirs.IsAncestor(ours); err != nil {
		return PullResult{}, unavailable("pull", err)
	} else if contained {
		r.log.Info("pull: local branch already contains remote")
		return r.pullResult(res, PullUpToDate, ours.Hash, "already up to date"), nil
	}
	if ff, err := ours.IsAncestor(theirs); err != nil {
		return PullResult{}, unavailable("pull", err)
	} else if ff {
		return r.fastForward(res, branch, ours, theirs)
	}
	return r.mergeCommit(res, branch, ours, theirs)
}

func (r *Repository) pullResult(res PullResult, outcome PullOutcome, head plumbing.Hash, msg string) PullResult {
	res.Outcome = outcome
	res.Head = head.String()
	res.Message = msg
	return res
}

func (r *Repository) fastForward(res PullResult, branch plumbing.ReferenceName, ours, theirs *object.Commit) (PullResult, error) {
	r.log.Info("pull: fast-forward", slog.String("to", shortHash(theirs.Hash.String())))
	from := snapshot{}
	if ours != nil {
		var err error
		if from, err = r.commitSnapshot(ours); err != nil {
			return PullResult{}, unavailable("pull", err)
		}
	}
	to, err := r.commitSnapshot(theirs)
	if err != nil {
		return PullResult{}, unavailable("pull", err)
	}
	if err := r.advance("pull", branch, ours, theirs.Hash, from, to); err != nil {
		return PullResult{}, err
	}
	return r.pullResult(res, PullFastForward, theirs.Hash, "fast-forward to "+shortHash(theirs.Hash.String())), nil
}

func (r *Repository) mergeCommit(res PullResult, branch plumbing.ReferenceName, ours, theirs *object.Commit) (PullResult, error) {
	name := res.Fetch.RemoteRef
	r.log.Info("pull: three-way merge", slog.String("ours", shortHash(ours.Hash.String())),
		slog.String("theirs", shortHash(theirs.Hash.String())))
	bases, err := ours.MergeBase(theirs)
	if err != nil {
		return PullResult{}, unavailable("pull", err)
	}
	base := snapshot{}
	if len(bases) > 0 {
		if base, err = r.commitSnapshot(bases[0]); err != nil {
			return PullResult{}, unavailable("pull", err)
		}
	}
	oursSnap, err := r.commitSnapshot(ours)
	if err != nil {
		return PullResult{}, unavailable("pull", err)
	}
	theirsSnap, err := r.commitSnapshot(theirs)
	if err != nil {
		return PullResult{}, unavailable("pull", err)
	}
	merged, conflicts, err := r.mergeSnapshots(base, oursSnap, theirsSnap)
	if err != nil {
		return PullResult{}, unavailable("pull", err)
	}
	if len(conflicts) > 0 {
		r.log.Warn("pull: merge conflict", slog.Any("paths", conflicts))
		return PullResult{}, &MergeConflictError{Branch: name, Paths: conflicts}
	}
	tree, err := r.writeTree(merged)
	if err != nil {
		return PullResult{}, unavailable("pull", err)
	}
	sig := r.signature()
	commit := &object.Commit{
		Author:       sig,
		Committer:    sig,
		Message:      fmt.Sprintf("Merge branch '%s'\n", name),
		TreeHash:     tree,
		ParentHashes: []plumbing.Hash{ours.Hash, theirs.Hash},
	}
	h, err := r.writeCommit(commit)
	if err != nil {
		return PullResult{}, unavailable("pull", err)
	}
	if err := r.advance("pull", branch, ours, h, oursSnap, merged); err != nil {
		return PullResult{}, err
	}
	r.log.Info("pull: merged", slog.String("commit", shortHash(h.String())))
	return r.pullResult(res, PullMerged, h, fmt.Sprintf("Merge branch '%s'", name)), nil
}

// advance moves the worktree and index from one snapshot to the other and
// then the branch ref from old to next. A failure at any step restores the
// worktree so the repository is left as it was.
func (r *Repository) advance(op string, branch plumbing.ReferenceName, old *object.Commit, next plumbing.Hash, from, to snapshot) error {
	if err := r.guardUntracked(op, from, to); err != nil {
		return err
	}
	if err := r.moveWorktree(from, to); err != nil {
		r.restoreWorktree(to, from)
		return unavailable(op, err)
	}
	var prev *plumbing.Reference
	if old != nil {
		prev = plumbing.NewHashReference(branch, old.Hash)
	}
	if err := r.repo.Storer.CheckAndSetReference(plumbing.NewHashReference(branch, next), prev); err != nil {
		r.restoreWorktree(to, from)
		return unavailable(op, fmt.Errorf("update %s: %w", branch.Short(), err))
	}
	return nil
}

func (r *Repository) restoreWorktree(from, to snapshot) {
	if err := r.moveWorktree(from, to); err != nil {
		r.log.Error("restore worktree", slog.Any("error", err))
	}
}

// Push sends the current branch to the same branch name on the remote and,
// once that succeeded, records the remote branch as upstream if the branch
// had none.
func (r *Repository) Push(ctx context.Context) (PushResult, error) {
	t, err := r.syncTarget("push")
	if err != nil {
		return PushResult{}, err
	}
	head, err := r.Head()
	if err != nil {
		return PushResult{}, err
	}
	if head.Unborn {
		return PushResult{}, &OpError{Op: "push", Ref: t.branch, Kind: ErrRefNotFound, Hint: "commit first"}
	}
	_, hasUpstream, err := r.upstreamOf(t.branch)
	if err != nil {
		return PushResult{}, err
	}
	t.remoteBranch = t.branch
	refspec := t.pushRefspec()
	res := PushResult{Remote: t.remote, URL: t.url, Refspec: refspec.String(), Head: head.Hash}
	remote, err := r.repo.Remote(t.remote)
	if err != nil {
		return PushResult{}, &OpError{Op: "push", Remote: t.remote, Kind: ErrRefNotFound, Err: err}
	}
	r.log.Info("push start", slog.String("remote", t.remote), slog.String("url", t.url), slog.String("refspec", res.Refspec))
	err = r.negotiator().run(ctx, initialChallenge(t.url, r.sshUser), func(auth transport.AuthMethod) error {
		return remote.PushContext(ctx, &gitlib.PushOptions{
			RemoteName: t.remote,
			RefSpecs:   []config.RefSpec{refspec},
			Auth:       auth,
		})
	})
	switch {
	case errors.Is(err, gitlib.NoErrAlreadyUpToDate):
		res.UpToDate = true
	case err != nil:
		r.log.Warn("push failed", slog.String("remote", t.remote), slog.Any("error", err))
		return PushResult{}, networkError("push", t, refspec, err)
	}
	if !hasUpstream {
		if err := r.setUpstream(t.branch, t.remote, t.branch); err != nil {
			return res, err
		}
		res.UpstreamSet = true
	}
	r.log.Info("push done", slog.Bool("up_to_date", res.UpToDate), slog.Bool("upstream_set", res.UpstreamSet))
	return res, nil
}
