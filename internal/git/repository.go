package git

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5"
	gitlib "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage/filesystem"
)

const (
	DefaultRemote        = "origin"
	DefaultBranch        = "main"
	DefaultIdentityName  = "gitcore"
	DefaultIdentityEmail = "gitcore@localhost"
	DefaultSSHUser       = "git"
)

// Repository is an opened handle on one repository: object store, index,
// refs and worktree. A handle is meant for a single operation; callers
// serialize access per path (see internal/repolock).
type Repository struct {
	repo   *gitlib.Repository
	wt     *gitlib.Worktree
	root   string
	gitDir billy.Filesystem

	log        *slog.Logger
	identity   Signature
	remote     string
	sshUser    string
	helper     CredentialHelper
	strategies []Strategy
	now        func() time.Time
}

type Option func(*Repository)

func WithLogger(l *slog.Logger) Option {
	return func(r *Repository) {
		if l != nil {
			r.log = l
		}
	}
}

// WithIdentity sets the identity used when the repository configuration has
// no user.name / user.email.
func WithIdentity(name, email string) Option {
	return func(r *Repository) {
		if name != "" {
			r.identity.Name = name
		}
		if email != "" {
			r.identity.Email = email
		}
	}
}

func WithRemote(name string) Option {
	return func(r *Repository) {
		if name != "" {
			r.remote = name
		}
	}
}

func WithSSHUser(user string) Option {
	return func(r *Repository) {
		if user != "" {
			r.sshUser = user
		}
	}
}

// WithCredentialHelper sets the helper consulted for username/password
// challenges. A nil helper disables that strategy.
func WithCredentialHelper(h CredentialHelper) Option {
	return func(r *Repository) { r.helper = h }
}

// WithStrategies replaces the credential negotiation chain.
func WithStrategies(strategies ...Strategy) Option {
	return func(r *Repository) { r.strategies = strategies }
}

func WithClock(now func() time.Time) Option {
	return func(r *Repository) {
		if now != nil {
			r.now = now
		}
	}
}

func newRepository(repo *gitlib.Repository, opts []Option) (*Repository, error) {
	r := &Repository{
		repo:     repo,
		log:      slog.Default(),
		identity: Signature{Name: DefaultIdentityName, Email: DefaultIdentityEmail},
		remote:   DefaultRemote,
		sshUser:  DefaultSSHUser,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("open worktree: %w", err)
	}
	r.wt = wt
	r.root = wt.Filesystem.Root()
	st, ok := repo.Storer.(*filesystem.Storage)
	if !ok {
		return nil, errors.New("repository storage is not on disk")
	}
	r.gitDir = st.Filesystem()
	return r, nil
}

// Locate finds the worktree root and git directory of the repository
// containing path by looking for .git upwards, reading nothing but that entry.
// A .git file holding a "gitdir:" line is followed.
func Locate(path string) (root, gitDir string, err error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", "", unavailable("open", err)
	}
	for dir := abs; ; dir = filepath.Dir(dir) {
		dot := filepath.Join(dir, gitlib.GitDirName)
		info, err := os.Stat(dot)
		switch {
		case err == nil && info.IsDir():
			return dir, dot, nil
		case err == nil:
			target, err := readGitFile(dot)
			if err != nil {
				return "", "", &OpError{Op: "open", Path: abs, Kind: ErrRepositoryUnavailable, Err: err}
			}
			if !filepath.IsAbs(target) {
				target = filepath.Join(dir, target)
			}
			return dir, filepath.Clean(target), nil
		case !errors.Is(err, os.ErrNotExist):
			return "", "", &OpError{Op: "open", Path: abs, Kind: ErrRepositoryUnavailable, Err: err}
		}
		if parent := filepath.Dir(dir); parent == dir {
			return "", "", &OpError{Op: "open", Path: abs, Kind: ErrRepositoryUnavailable, Err: gitlib.ErrRepositoryNotExists}
		}
	}
}

func readGitFile(p string) (string, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", p, err)
	}
	line, _, _ := strings.Cut(string(data), "\n")
	target, ok := strings.CutPrefix(strings.TrimSpace(line), "gitdir:")
	if !ok {
		return "", fmt.Errorf("%s: missing gitdir line", p)
	}
	return strings.TrimSpace(target), nil
}

// Open opens the repository containing path, walking up to find .git.
func Open(path string, opts ...Option) (*Repository, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, unavailable("open", err)
	}
	repo, err := gitlib.PlainOpenWithOptions(abs, &gitlib.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, &OpError{Op: "open", Path: abs, Kind: ErrRepositoryUnavailable, Err: err}
	}
	r, err := newRepository(repo, opts)
	if err != nil {
		return nil, &OpError{Op: "open", Path: abs, Kind: ErrRepositoryUnavailable, Err: err}
	}
	return r, nil
}

// Init creates a repository with a worktree at path whose unborn HEAD points
// at refs/heads/main.
func Init(path string, opts ...Option) (*Repository, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, unavailable("init", err)
	}
	repo, err := gitlib.PlainInitWithOptions(abs, &gitlib.PlainInitOptions{
		InitOptions: gitlib.InitOptions{DefaultBranch: plumbing.NewBranchReferenceName(DefaultBranch)},
	})
	if err != nil {
		return nil, &OpError{Op: "init", Path: abs, Kind: ErrRepositoryUnavailable, Err: err}
	}
	return newRepository(repo, opts)
}

func (r *Repository) Path() string { return r.root }

// GitDir returns the on-disk location of the repository metadata.
func (r *Repository) GitDir() string { return r.gitDir.Root() }

func (r *Repository) Remote() string { return r.remote }

// Git exposes the underlying go-git repository for read-only inspection.
func (r *Repository) Git() *gitlib.Repository { return r.repo }

func (r *Repository) Head() (HeadState, error) {
	ref, err := r.repo.Storer.Reference(plumbing.HEAD)
	if err != nil {
		return HeadState{}, unavailable("read HEAD", err)
	}
	if ref.Type() == plumbing.SymbolicReference {
		state := HeadState{Branch: ref.Target().Short()}
		resolved, err := r.repo.Reference(ref.Target(), true)
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			state.Unborn = true
			return state, nil
		}
		if err != nil {
			return HeadState{}, unavailable("resolve HEAD", err)
		}
		state.Hash = resolved.Hash().String()
		return state, nil
	}
	return HeadState{Hash: ref.Hash().String(), Detached: true}, nil
}

// headCommit returns nil without error on an unborn branch.
func (r *Repository) headCommit() (*object.Commit, error) {
	ref, err := r.repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve HEAD: %w", err)
	}
	c, err := r.repo.CommitObject(ref.Hash())
	if err != nil {
		return nil, fmt.Errorf("read HEAD commit: %w", err)
	}
	return c, nil
}

func (r *Repository) headTree() (*object.Tree, error) {
	c, err := r.headCommit()
	if err != nil || c == nil {
		return nil, err
	}
	tree, err := c.Tree()
	if err != nil {
		return nil, fmt.Errorf("read HEAD tree: %w", err)
	}
	return tree, nil
}

// currentBranch returns the checked out branch reference name, failing on a
// detached HEAD.
func (r *Repository) currentBranch(op string) (plumbing.ReferenceName, error) {
	ref, err := r.repo.Storer.Reference(plumbing.HEAD)
	if err != nil {
		return "", unavailable(op, err)
	}
	if ref.Type() != plumbing.SymbolicReference || !ref.Target().IsBranch() {
		return "", &OpError{Op: op, Ref: "HEAD", Kind: ErrRefNotFound, Hint: "check out a branch first"}
	}
	return ref.Target(), nil
}

// signature resolves the committer identity from repository config, then the
// user's global config, then the configured fallback.
func (r *Repository) signature() object.Signature {
	sig := object.Signature{Name: r.identity.Name, Email: r.identity.Email, When: r.now()}
	cfg, err := r.repo.ConfigScoped(config.GlobalScope)
	if err != nil {
		r.log.Debug("global config unavailable", slog.Any("error", err))
		cfg, err = r.repo.Config()
		if err != nil {
			return sig
		}
	}
	if name := strings.TrimSpace(cfg.User.Name); name != "" {
		sig.Name = name
	}
	if email := strings.TrimSpace(cfg.User.Email); email != "" {
		sig.Email = email
	}
	return sig
}

// Upstream returns the tracking relationship of the current branch. ok is
// false when there is none or HEAD is detached.
func (r *Repository) Upstream() (Upstream, bool, error) {
	head, err := r.Head()
	if err != nil {
		return Upstream{}, false, err
	}
	if head.Detached || head.Branch == "" {
		return Upstream{}, false, nil
	}
	return r.upstreamOf(head.Branch)
}

func (r *Repository) upstreamOf(branch string) (Upstream, bool, error) {
	cfg, err := r.repo.Config()
	if err != nil {
		return Upstream{}, false, unavailable("read config", err)
	}
	b, ok := cfg.Branches[branch]
	if !ok || b.Remote == "" || b.Merge == "" {
		return Upstream{}, false, nil
	}
	return Upstream{Remote: b.Remote, Branch: b.Merge.Short()}, true, nil
}

// RemoteURL returns the first URL of the configured remote, if any.
func (r *Repository) RemoteURL() (string, bool) {
	remote, err := r.repo.Remote(r.remote)
	if err != nil {
		return "", false
	}
	urls := remote.Config().URLs
	if len(urls) == 0 {
		return "", false
	}
	return urls[0], true
}
