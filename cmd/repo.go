package cmd

import (
	"fmt"
	"io"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/cobra"

	"github.com/thiagokokada/gitcore/internal/git"
	"github.com/thiagokokada/gitcore/internal/service"
)

func newOpenCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "open",
		Short: "Summarise the repository: branch, tracking state and recent commits",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sum, err := a.svc.Open(cmd.Context(), a.repo)
			if err != nil {
				return err
			}
			return a.render(sum, func(w io.Writer, p palette) error {
				writeSummary(w, p, sum)
				return nil
			})
		},
	}
}

func writeSummary(w io.Writer, p palette, sum service.RepoSummary) {
	fmt.Fprintf(w, "Repository %s\n", sum.Path)
	if sum.Detached {
		fmt.Fprintf(w, "HEAD detached at %s\n", p.hash.Sprint(shortID(sum.Head)))
	} else {
		fmt.Fprintf(w, "On branch %s, %s\n", p.branch.Sprint(sum.CurrentBranch),
			trackingLine(sum.Ahead, sum.Behind, sum.Upstream))
	}
	if sum.RemoteURL != "" {
		fmt.Fprintf(w, "Remote %s\n", sum.RemoteURL)
	}
	if len(sum.Branches) > 0 {
		p.header.Fprintln(w, "Branches:")
		for _, b := range sum.Branches {
			marker := " "
			name := b.Name
			if b.IsCurrent {
				marker = "*"
				name = p.branch.Sprint(name)
			}
			fmt.Fprintf(w, "%s %s %s\n", marker, name, p.hash.Sprint(shortID(b.Hash)))
		}
	}
	if len(sum.RecentCommits) > 0 {
		p.header.Fprintln(w, "Recent commits:")
		writeCommits(w, p, sum.RecentCommits, branchLabels(sum.Branches))
	}
}

func shortID(id string) string {
	if len(id) > 7 {
		return id[:7]
	}
	return id
}

func newLogCmd(a *app) *cobra.Command {
	var (
		limit, offset int
		grep          string
	)
	cmd := &cobra.Command{
		Use:   "log",
		Short: "List commits reachable from HEAD, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			commits, err := a.svc.ListCommits(cmd.Context(), a.repo, limit, offset)
			if err != nil {
				return err
			}
			commits = filterCommits(commits, grep)
			branches, err := a.svc.Branches(cmd.Context(), a.repo)
			if err != nil {
				return err
			}
			return a.render(commits, func(w io.Writer, p palette) error {
				writeCommits(w, p, commits, branchLabels(branches))
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "number of commits (default from config)")
	cmd.Flags().IntVar(&offset, "skip", 0, "skip this many commits first")
	cmd.Flags().StringVar(&grep, "grep", "", "only show commits whose id, subject or author contains this text")
	return cmd
}

func newCheckoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "checkout <branch|revision>",
		Short: "Switch to a local or remote branch, or detach at a revision",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.svc.Checkout(cmd.Context(), a.repo, args[0]); err != nil {
				return err
			}
			a.log.Info("checked out", "ref", args[0])
			return nil
		},
	}
}

func newStatusCmd(a *app) *cobra.Command {
	var patterns []string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show staged, unstaged and untracked changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, pat := range patterns {
				if !doublestar.ValidatePattern(pat) {
					return fmt.Errorf("invalid pattern %q", pat)
				}
			}
			st, err := a.svc.Status(cmd.Context(), a.repo)
			if err != nil {
				return err
			}
			st = filterStatus(st, patterns)
			return a.render(st, func(w io.Writer, p palette) error {
				writeStatus(w, p, st)
				return nil
			})
		},
	}
	cmd.Flags().StringArrayVarP(&patterns, "path", "p", nil, "only show paths matching this glob (repeatable, ** allowed)")
	return cmd
}

// filterStatus keeps the entries whose path matches any of patterns. No
// patterns keeps everything.
func filterStatus(st git.Status, patterns []string) git.Status {
	if len(patterns) == 0 {
		return st
	}
	match := func(path string) bool {
		for _, pat := range patterns {
			if ok, _ := doublestar.Match(pat, path); ok {
				return true
			}
		}
		return false
	}
	keep := func(entries []git.ChangeEntry) []git.ChangeEntry {
		out := []git.ChangeEntry{}
		for _, e := range entries {
			if match(e.Path) || (e.OldPath != "" && match(e.OldPath)) {
				out = append(out, e)
			}
		}
		return out
	}
	out := git.Status{Staged: keep(st.Staged), Unstaged: keep(st.Unstaged), Untracked: []string{}}
	for _, path := range st.Untracked {
		if match(path) {
			out.Untracked = append(out.Untracked, path)
		}
	}
	return out
}

func newStageCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stage <path>...",
		Short: "Record the worktree version of paths in the index",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, path := range args {
				if err := a.svc.Stage(cmd.Context(), a.repo, path); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func newUnstageCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "unstage <path>...",
		Short: "Reset the index entry of paths to HEAD",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, path := range args {
				if err := a.svc.Unstage(cmd.Context(), a.repo, path); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func newCommitCmd(a *app) *cobra.Command {
	var message string
	cmd := &cobra.Command{
		Use:   "commit",
		Short: "Commit the staged changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, err := a.svc.Commit(cmd.Context(), a.repo, message)
			if err != nil {
				return err
			}
			out := struct {
				ID string `json:"id" yaml:"id"`
			}{id}
			return a.render(out, func(w io.Writer, p palette) error {
				fmt.Fprintf(w, "committed %s\n", p.hash.Sprint(shortID(id)))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&message, "message", "m", "", "commit message")
	_ = cmd.MarkFlagRequired("message")
	return cmd
}

func newAheadBehindCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ahead-behind",
		Short: "Count commits not shared between HEAD and its upstream",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ahead, behind, err := a.svc.AheadBehind(cmd.Context(), a.repo)
			if err != nil {
				return err
			}
			out := struct {
				Ahead  int `json:"ahead" yaml:"ahead"`
				Behind int `json:"behind" yaml:"behind"`
			}{ahead, behind}
			return a.render(out, func(w io.Writer, _ palette) error {
				fmt.Fprintf(w, "ahead %d, behind %d\n", ahead, behind)
				return nil
			})
		},
	}
}
