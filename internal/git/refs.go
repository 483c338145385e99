package git

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	gitlib "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
)

// Branches lists local branches followed by remote-tracking branches, each
// group sorted by name. Symbolic remote refs such as origin/HEAD are skipped.
func (r *Repository) Branches() ([]Branch, error) {
	head, err := r.Head()
	if err != nil {
		return nil, err
	}
	refs, err := r.repo.References()
	if err != nil {
		return nil, unavailable("list branches", err)
	}
	defer refs.Close()
	var local, remote []Branch
	err = refs.ForEach(func(ref *plumbing.Reference) error {
		if ref.Type() != plumbing.HashReference {
			return nil
		}
		name := ref.Name()
		switch {
		case name.IsBranch():
			short := name.Short()
			local = append(local, Branch{
				Name:      short,
				IsCurrent: !head.Detached && short == head.Branch,
				Hash:      ref.Hash().String(),
			})
		case name.IsRemote():
			short := name.Short()
			if strings.HasSuffix(short, "/HEAD") {
				return nil
			}
			remote = append(remote, Branch{Name: short, IsRemote: true, Hash: ref.Hash().String()})
		}
		return nil
	})
	if err != nil {
		return nil, unavailable("list branches", err)
	}
	sort.Slice(local, func(i, j int) bool { return local[i].Name < local[j].Name })
	sort.Slice(remote, func(i, j int) bool { return remote[i].Name < remote[j].Name })
	return append(local, remote...), nil
}

// Checkout moves HEAD to name and rewrites the worktree to match. name is
// tried as a local branch, then as a branch of the configured remote (a local
// tracking branch is created), then as any revision, which detaches HEAD.
// A dirty worktree is refused rather than overwritten.
func (r *Repository) Checkout(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return &OpError{Op: "checkout", Kind: ErrRefNotFound, Err: errors.New("reference not specified")}
	}
	opts, err := r.checkoutTarget(name)
	if err != nil {
		return err
	}
	if err := r.ensureClean("checkout", "commit or stash your changes first"); err != nil {
		return err
	}
	target, err := r.repo.CommitObject(opts.Hash)
	if err != nil {
		return &OpError{Op: "checkout", Ref: name, Kind: ErrRefNotFound, Err: err}
	}
	current, err := r.headSnapshot()
	if err != nil {
		return unavailable("checkout", err)
	}
	next, err := r.commitSnapshot(target)
	if err != nil {
		return unavailable("checkout", err)
	}
	if err := r.guardUntracked("checkout", current, next); err != nil {
		return err
	}
	if opts.Branch != "" && !opts.Create {
		// switching to an existing branch resolves through the ref
		opts.Hash = plumbing.ZeroHash
	}
	opts.Force = true
	if err := r.wt.Checkout(opts); err != nil {
		return unavailable("checkout "+name, err)
	}
	if opts.Create {
		if err := r.setUpstream(opts.Branch.Short(), r.remote, opts.Branch.Short()); err != nil {
			return err
		}
	}
	r.log.Debug("checked out", slog.String("ref", name), slog.String("commit", shortHash(target.Hash.String())))
	return nil
}

func (r *Repository) checkoutTarget(name string) (*gitlib.CheckoutOptions, error) {
	local := plumbing.NewBranchReferenceName(name)
	if ref, err := r.repo.Reference(local, true); err == nil {
		return &gitlib.CheckoutOptions{Branch: local, Hash: ref.Hash()}, nil
	}
	remote := plumbing.NewRemoteReferenceName(r.remote, name)
	if ref, err := r.repo.Reference(remote, true); err == nil {
		return &gitlib.CheckoutOptions{Branch: local, Hash: ref.Hash(), Create: true}, nil
	}
	h, err := r.repo.ResolveRevision(plumbing.Revision(name))
	if err != nil {
		return nil, &OpError{Op: "checkout", Ref: name, Kind: ErrRefNotFound, Err: err}
	}
	return &gitlib.CheckoutOptions{Hash: *h}, nil
}

// ensureClean fails with ErrUncommittedChanges when anything is staged or
// modified. Untracked files do not count.
func (r *Repository) ensureClean(op, hint string) error {
	st, err := r.Status()
	if err != nil {
		return err
	}
	if len(st.Staged) == 0 && len(st.Unstaged) == 0 {
		return nil
	}
	paths := make([]string, 0, len(st.Staged)+len(st.Unstaged))
	for _, e := range st.Staged {
		paths = append(paths, e.Path)
	}
	for _, e := range st.Unstaged {
		paths = append(paths, e.Path)
	}
	return &OpError{
		Op:   op,
		Kind: ErrUncommittedChanges,
		Err:  fmt.Errorf("changed: %s", strings.Join(dedupe(paths), ", ")),
		Hint: hint,
	}
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, s := range in {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

func (r *Repository) setUpstream(branch, remote, remoteBranch string) error {
	cfg, err := r.repo.Config()
	if err != nil {
		return unavailable("set upstream", err)
	}
	cfg.Branches[branch] = &config.Branch{
		Name:   branch,
		Remote: remote,
		Merge:  plumbing.NewBranchReferenceName(remoteBranch),
	}
	if err := r.repo.SetConfig(cfg); err != nil {
		return unavailable("set upstream", err)
	}
	r.log.Debug("upstream set", slog.String("branch", branch), slog.String("upstream", remote+"/"+remoteBranch))
	return nil
}
