package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/thiagokokada/gitcore/internal/highlight"
)

func newDiffCmd(a *app) *cobra.Command {
	var (
		staged   bool
		commit   string
		noSyntax bool
		style    string
	)
	cmd := &cobra.Command{
		Use:   "diff [path]",
		Example: "  gitcore diff main.go\n  gitcore diff --staged main.go\n  gitcore diff --commit HEAD~1",
		Short: "Show unstaged changes, staged changes (--staged) or a commit (--commit)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var file string
			if len(args) == 1 {
				file = args[0]
			}
			if staged && commit != "" {
				return fmt.Errorf("--staged and --commit are mutually exclusive")
			}
			if commit == "" && file == "" {
				return fmt.Errorf("a path is required unless --commit is given")
			}
			var (
				text string
				err  error
			)
			switch {
			case commit != "":
				text, err = a.svc.Diff(cmd.Context(), a.repo, commit, file)
			case staged:
				text, err = a.svc.StagedDiff(cmd.Context(), a.repo, file)
			default:
				text, err = a.svc.UnstagedDiff(cmd.Context(), a.repo, file)
			}
			if err != nil {
				return err
			}
			out := struct {
				Diff string `json:"diff" yaml:"diff"`
			}{text}
			return a.render(out, func(w io.Writer, _ palette) error {
				return highlight.New(style, a.colored(), !noSyntax).Diff(w, text)
			})
		},
	}
	cmd.Flags().BoolVar(&staged, "staged", false, "diff the index against HEAD")
	cmd.Flags().StringVar(&commit, "commit", "", "diff a commit against its first parent")
	cmd.Flags().BoolVar(&noSyntax, "nosyntax", false, "disable syntax highlighting")
	cmd.Flags().StringVar(&style, "style", highlight.DefaultStyle, "chroma style for syntax highlighting")
	return cmd
}

func newShowCmd(a *app) *cobra.Command {
	var untracked bool
	cmd := &cobra.Command{
		Use:   "show <path>",
		Short: "Print the committed content of a file, or its worktree content with --untracked",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				text string
				err  error
			)
			if untracked {
				text, err = a.svc.UntrackedContent(cmd.Context(), a.repo, args[0])
			} else {
				text, err = a.svc.FileContent(cmd.Context(), a.repo, args[0])
			}
			if err != nil {
				return err
			}
			out := struct {
				Path    string `json:"path" yaml:"path"`
				Content string `json:"content" yaml:"content"`
			}{args[0], text}
			return a.render(out, func(w io.Writer, _ palette) error {
				_, err := io.WriteString(w, text)
				if err == nil && text != "" && !strings.HasSuffix(text, "\n") {
					_, err = io.WriteString(w, "\n")
				}
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&untracked, "untracked", false, "read the file from the worktree")
	return cmd
}
