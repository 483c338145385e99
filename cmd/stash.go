package cmd

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/thiagokokada/gitcore/internal/git"
)

func newStashCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stash",
		Short: "Save, list, apply and drop stashed changes",
	}
	cmd.AddCommand(newStashListCmd(a), newStashCreateCmd(a), newStashApplyCmd(a), newStashDropCmd(a))
	return cmd
}

func newStashListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stashes, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			entries, err := a.svc.StashList(cmd.Context(), a.repo)
			if err != nil {
				return err
			}
			if entries == nil {
				entries = []git.StashEntry{}
			}
			return a.render(entries, func(w io.Writer, p palette) error {
				for _, e := range entries {
					fmt.Fprintf(w, "stash@{%d} %s %s %s\n", e.Index, p.hash.Sprint(e.ShortID()), e.Message,
						p.dim.Sprintf("(%s)", humanize.Time(e.When)))
				}
				return nil
			})
		},
	}
}

func newStashCreateCmd(a *app) *cobra.Command {
	var message string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Save staged and unstaged changes and reset the worktree to HEAD",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, err := a.svc.StashCreate(cmd.Context(), a.repo, message)
			if err != nil {
				return err
			}
			out := struct {
				ID string `json:"id" yaml:"id"`
			}{id}
			return a.render(out, func(w io.Writer, p palette) error {
				fmt.Fprintf(w, "saved %s\n", p.hash.Sprint(shortID(id)))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&message, "message", "m", "", "stash message")
	return cmd
}

func newStashApplyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "apply [stash]",
		Short: "Apply a stash by id, id prefix or stash@{n} (default stash@{0})",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := stashQuery(args)
			outcome, err := a.svc.StashApply(cmd.Context(), a.repo, query)
			if err != nil {
				return err
			}
			out := struct {
				Stash   string                `json:"stash" yaml:"stash"`
				Outcome git.StashApplyOutcome `json:"outcome" yaml:"outcome"`
			}{query, outcome}
			return a.render(out, func(w io.Writer, _ palette) error {
				if outcome == git.StashAlreadyApplied {
					fmt.Fprintf(w, "%s is already applied\n", query)
				} else {
					fmt.Fprintf(w, "applied %s\n", query)
				}
				return nil
			})
		},
	}
}

func newStashDropCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "drop [stash]",
		Short: "Remove a stash entry (default stash@{0})",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := stashQuery(args)
			if err := a.svc.StashDrop(cmd.Context(), a.repo, query); err != nil {
				return err
			}
			a.log.Info("dropped stash", "stash", query)
			return nil
		},
	}
}

func stashQuery(args []string) string {
	if len(args) == 1 {
		return args[0]
	}
	return "stash@{0}"
}
