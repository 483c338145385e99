package service

import (
	"context"

	"github.com/thiagokokada/gitcore/internal/git"
	"github.com/thiagokokada/gitcore/internal/logging"
)

// RepoSummary is what a client shows right after opening a repository.
type RepoSummary struct {
	Path          string           `json:"path" yaml:"path"`
	CurrentBranch string           `json:"current_branch" yaml:"current_branch"`
	Detached      bool             `json:"detached" yaml:"detached"`
	Head          string           `json:"head,omitempty" yaml:"head,omitempty"`
	Branches      []git.Branch     `json:"branches" yaml:"branches"`
	RecentCommits []git.CommitInfo `json:"recent_commits" yaml:"recent_commits"`
	Ahead         int              `json:"ahead" yaml:"ahead"`
	Behind        int              `json:"behind" yaml:"behind"`
	Upstream      *git.Upstream    `json:"upstream,omitempty" yaml:"upstream,omitempty"`
	RemoteURL     string           `json:"remote_url,omitempty" yaml:"remote_url,omitempty"`
}

func (s *Service) Open(ctx context.Context, path string) (RepoSummary, error) {
	var sum RepoSummary
	err := s.with(ctx, path, readAccess, nil, func(r *git.Repository) error {
		head, err := r.Head()
		if err != nil {
			return err
		}
		sum.Path = r.Path()
		sum.CurrentBranch = head.Name()
		sum.Detached = head.Detached
		sum.Head = head.Hash
		if sum.Branches, err = r.Branches(); err != nil {
			return err
		}
		if sum.RecentCommits, err = r.Commits(s.cfg.RecentLimit, 0); err != nil {
			return err
		}
		if sum.Ahead, sum.Behind, err = r.AheadBehind(); err != nil {
			return err
		}
		up, ok, err := r.Upstream()
		if err != nil {
			return err
		}
		if ok {
			sum.Upstream = &up
		}
		sum.RemoteURL, _ = r.RemoteURL()
		return nil
	})
	return sum, err
}

// ListCommits walks history from HEAD; limit <= 0 uses the configured
// default.
func (s *Service) ListCommits(ctx context.Context, path string, limit, offset int) ([]git.CommitInfo, error) {
	if limit <= 0 {
		limit = s.cfg.CommitLimit
	}
	var out []git.CommitInfo
	err := s.with(ctx, path, readAccess, nil, func(r *git.Repository) (err error) {
		out, err = r.Commits(limit, offset)
		return err
	})
	return out, err
}

func (s *Service) Checkout(ctx context.Context, path, ref string) error {
	return s.with(ctx, path, writeAccess, nil, func(r *git.Repository) error {
		return r.Checkout(ref)
	})
}

func (s *Service) Status(ctx context.Context, path string) (git.Status, error) {
	var st git.Status
	err := s.with(ctx, path, readAccess, nil, func(r *git.Repository) (err error) {
		st, err = r.Status()
		return err
	})
	return st, err
}

func (s *Service) Stage(ctx context.Context, path, file string) error {
	return s.with(ctx, path, writeAccess, nil, func(r *git.Repository) error {
		return r.Stage(file)
	})
}

func (s *Service) Unstage(ctx context.Context, path, file string) error {
	return s.with(ctx, path, writeAccess, nil, func(r *git.Repository) error {
		return r.Unstage(file)
	})
}

func (s *Service) Commit(ctx context.Context, path, message string) (string, error) {
	var id string
	err := s.with(ctx, path, writeAccess, nil, func(r *git.Repository) (err error) {
		id, err = r.Commit(message)
		return err
	})
	return id, err
}

func (s *Service) AheadBehind(ctx context.Context, path string) (ahead, behind int, err error) {
	err = s.with(ctx, path, readAccess, nil, func(r *git.Repository) (err error) {
		ahead, behind, err = r.AheadBehind()
		return err
	})
	return ahead, behind, err
}

// Fetch, Pull and Push take an optional sink receiving one event per step.

func (s *Service) Fetch(ctx context.Context, path string, sink func(logging.Event)) (git.FetchResult, error) {
	var res git.FetchResult
	err := s.with(ctx, path, writeAccess, s.eventLogger(sink), func(r *git.Repository) (err error) {
		res, err = r.Fetch(ctx)
		return err
	})
	return res, err
}

func (s *Service) Pull(ctx context.Context, path string, sink func(logging.Event)) (git.PullResult, error) {
	var res git.PullResult
	err := s.with(ctx, path, writeAccess, s.eventLogger(sink), func(r *git.Repository) (err error) {
		res, err = r.Pull(ctx)
		return err
	})
	return res, err
}

func (s *Service) Push(ctx context.Context, path string, sink func(logging.Event)) (git.PushResult, error) {
	var res git.PushResult
	err := s.with(ctx, path, writeAccess, s.eventLogger(sink), func(r *git.Repository) (err error) {
		res, err = r.Push(ctx)
		return err
	})
	return res, err
}

func (s *Service) Diff(ctx context.Context, path, commit, file string) (string, error) {
	return s.readText(ctx, path, func(r *git.Repository) (string, error) { return r.CommitDiff(commit, file) })
}

func (s *Service) StagedDiff(ctx context.Context, path, file string) (string, error) {
	return s.readText(ctx, path, func(r *git.Repository) (string, error) { return r.StagedDiff(file) })
}

func (s *Service) UnstagedDiff(ctx context.Context, path, file string) (string, error) {
	return s.readText(ctx, path, func(r *git.Repository) (string, error) { return r.UnstagedDiff(file) })
}

func (s *Service) FileContent(ctx context.Context, path, file string) (string, error) {
	return s.readText(ctx, path, func(r *git.Repository) (string, error) { return r.FileContent(file) })
}

func (s *Service) UntrackedContent(ctx context.Context, path, file string) (string, error) {
	return s.readText(ctx, path, func(r *git.Repository) (string, error) { return r.UntrackedContent(file) })
}

func (s *Service) readText(ctx context.Context, path string, fn func(*git.Repository) (string, error)) (string, error) {
	var out string
	err := s.with(ctx, path, readAccess, nil, func(r *git.Repository) (err error) {
		out, err = fn(r)
		return err
	})
	return out, err
}

func (s *Service) StashList(ctx context.Context, path string) ([]git.StashEntry, error) {
	var out []git.StashEntry
	err := s.with(ctx, path, readAccess, nil, func(r *git.Repository) (err error) {
		out, err = r.StashList()
		return err
	})
	return out, err
}

func (s *Service) StashCreate(ctx context.Context, path, message string) (string, error) {
	var id string
	err := s.with(ctx, path, writeAccess, nil, func(r *git.Repository) (err error) {
		id, err = r.StashCreate(message)
		return err
	})
	return id, err
}

func (s *Service) StashApply(ctx context.Context, path, id string) (git.StashApplyOutcome, error) {
	var out git.StashApplyOutcome
	err := s.with(ctx, path, writeAccess, nil, func(r *git.Repository) (err error) {
		out, err = r.StashApply(id)
		return err
	})
	return out, err
}

func (s *Service) StashDrop(ctx context.Context, path, id string) error {
	return s.with(ctx, path, writeAccess, nil, func(r *git.Repository) error {
		return r.StashDrop(id)
	})
}

// Locate returns the worktree root and git directory of the repository
// containing path. Nothing inside the repository is read, so no lock is taken.
func (s *Service) Locate(path string) (root, gitDir string, err error) {
	return git.Locate(path)
}

func (s *Service) Branches(ctx context.Context, path string) ([]git.Branch, error) {
	var out []git.Branch
	err := s.with(ctx, path, readAccess, nil, func(r *git.Repository) (err error) {
		out, err = r.Branches()
		return err
	})
	return out, err
}
