// Package cmd contains the gitcore command tree.
package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/thiagokokada/gitcore/internal/config"
	"github.com/thiagokokada/gitcore/internal/git"
	"github.com/thiagokokada/gitcore/internal/logging"
	"github.com/thiagokokada/gitcore/internal/service"
)

const (
	exitOK       = 0
	exitError    = 1
	exitAdvisory = 2
)

// app carries what every command needs once the root flags are parsed.
type app struct {
	stdout io.Writer
	stderr io.Writer

	configPath string
	repo       string
	output     string
	verbose    bool
	noColor    bool

	v    *viper.Viper
	cfg  *config.Config
	log  *slog.Logger
	svc  *service.Service
	opts []service.Option
}

func Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx)
}

// Main runs the command line and returns the process exit code: 2 for unmet
// preconditions (nothing staged, nothing to stash, uncommitted changes in the
// way), 1 for anything else, merge and stash conflicts included.
func Main() int {
	return exitCode(Run(), os.Stderr)
}

func exitCode(err error, stderr io.Writer) int {
	if err == nil {
		return exitOK
	}
	fmt.Fprintf(stderr, "gitcore: %v\n", err)
	if git.IsAdvisory(err) {
		return exitAdvisory
	}
	return exitError
}

func newRootCmd(stdout, stderr io.Writer, opts ...service.Option) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr, opts: opts, v: viper.New()}
	root := &cobra.Command{
		Use:           "gitcore",
		Short:         "Inspect and synchronise git repositories",
		Long:          "gitcore reports working tree status, synchronises branches with their remote and manages stashes, without shelling out to git.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return a.setup()
		},
	}
	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "config file (default is the user config dir)")
	flags.StringVarP(&a.repo, "repo", "C", ".", "repository path")
	flags.StringVarP(&a.output, "output", "o", "", "output format: text, json or yaml")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")
	flags.BoolVar(&a.noColor, "no-color", false, "disable colored output")
	_ = a.v.BindPFlag("output", flags.Lookup("output"))

	root.AddCommand(
		newOpenCmd(a),
		newLogCmd(a),
		newCheckoutCmd(a),
		newStatusCmd(a),
		newStageCmd(a),
		newUnstageCmd(a),
		newCommitCmd(a),
		newAheadBehindCmd(a),
		newFetchCmd(a),
		newPullCmd(a),
		newPushCmd(a),
		newDiffCmd(a),
		newShowCmd(a),
		newStashCmd(a),
		newWatchCmd(a),
		newConfigCmd(a),
		newVersionCmd(a),
	)
	return root
}

func (a *app) setup() error {
	path := a.configPath
	if path == "" {
		var err error
		if path, err = config.DefaultPath(); err != nil {
			return err
		}
		a.configPath = path
	}
	cfg, err := config.Resolve(a.v, path)
	if err != nil {
		return err
	}
	a.cfg = cfg
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	if a.verbose {
		level = slog.LevelDebug
	}
	a.log = slog.New(logging.NewConsoleHandler(a.stderr, level))
	a.svc = service.New(cfg, append([]service.Option{service.WithLogger(a.log)}, a.opts...)...)
	return nil
}

// fallbackSetup leaves the app usable with default settings after setup
// failed, keeping a valid --output.
func (a *app) fallbackSetup() {
	cfg := config.DefaultConfig()
	if a.output != "" {
		cfg.Output = a.output
		if cfg.Validate() != nil {
			cfg.Output = config.DefaultConfig().Output
		}
	}
	a.cfg = cfg
	a.log = slog.New(logging.NewConsoleHandler(a.stderr, slog.LevelInfo))
}

// colored reports whether stdout is a terminal that should get ANSI codes.
func (a *app) colored() bool {
	if a.noColor || strings.TrimSpace(os.Getenv("NO_COLOR")) != "" {
		return false
	}
	f, ok := a.stdout.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
