// Package service exposes the repository operations to callers by path.
// Every call opens a fresh handle under the repository lock: shared for
// reads, exclusive for anything that writes the index, refs or worktree.
package service

import (
	"context"
	"log/slog"

	"github.com/thiagokokada/gitcore/internal/config"
	"github.com/thiagokokada/gitcore/internal/git"
	"github.com/thiagokokada/gitcore/internal/git/credhelper"
	"github.com/thiagokokada/gitcore/internal/logging"
	"github.com/thiagokokada/gitcore/internal/repolock"
)

type Service struct {
	cfg        *config.Config
	log        *slog.Logger
	locks      *repolock.Locker
	strategies []git.Strategy
	helper     func(dir string) git.CredentialHelper
}

type Option func(*Service)

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithStrategies replaces the credential chain of every repository handle.
func WithStrategies(strategies ...git.Strategy) Option {
	return func(s *Service) { s.strategies = strategies }
}

func New(cfg *config.Config, opts ...Option) *Service {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	s := &Service{cfg: cfg, log: slog.Default(), locks: repolock.New()}
	if cfg.Auth.CredentialHelper {
		s.helper = func(dir string) git.CredentialHelper { return credhelper.New(dir) }
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Config() *config.Config { return s.cfg }

func (s *Service) options(dir string, log *slog.Logger) []git.Option {
	opts := []git.Option{
		git.WithLogger(log),
		git.WithIdentity(s.cfg.Identity.Name, s.cfg.Identity.Email),
		git.WithRemote(s.cfg.Remote),
		git.WithSSHUser(s.cfg.Auth.SSHUser),
	}
	if s.helper != nil {
		opts = append(opts, git.WithCredentialHelper(s.helper(dir)))
	}
	if s.strategies != nil {
		opts = append(opts, git.WithStrategies(s.strategies...))
	}
	return opts
}

type access int

const (
	readAccess access = iota
	writeAccess
)

// with locks the repository containing path and runs fn on a fresh handle.
func (s *Service) with(ctx context.Context, path string, mode access, log *slog.Logger, fn func(*git.Repository) error) error {
	if log == nil {
		log = s.log
	}
	root, gitDir, err := git.Locate(path)
	if err != nil {
		return err
	}
	key, err := repolock.Key(root)
	if err != nil {
		return err
	}
	lock := s.locks.Read
	if mode == writeAccess {
		lock = s.locks.Write
	}
	release, err := lock(ctx, key, gitDir)
	if err != nil {
		return err
	}
	defer release()
	// config, refs and the index are only read once the lock is held
	repo, err := git.Open(root, s.options(root, log)...)
	if err != nil {
		return err
	}
	return fn(repo)
}

// eventLogger adds the realtime sink, when there is one, to the service logger.
func (s *Service) eventLogger(sink func(logging.Event)) *slog.Logger {
	if sink == nil {
		return s.log
	}
	return logging.WithEvents(s.log, slog.LevelInfo, sink)
}
