package cmd

import (
	"fmt"
	"io"
	"sync"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/thiagokokada/gitcore/internal/git"
	"github.com/thiagokokada/gitcore/internal/logging"
)

// eventSink streams progress events to stdout ahead of the result when
// realtime is set: one JSON object per line for json output, plain lines
// otherwise.
func (a *app) eventSink(realtime bool) func(logging.Event) {
	if !realtime {
		return nil
	}
	var mu sync.Mutex
	return func(ev logging.Event) {
		mu.Lock()
		defer mu.Unlock()
		if a.cfg.Output == "json" {
			if data, err := json.Marshal(ev); err == nil {
				fmt.Fprintf(a.stdout, "%s\n", data)
			}
			return
		}
		fmt.Fprintf(a.stdout, "%s %-5s %s\n", ev.Timestamp.Format("15:04:05.000"), ev.Level, ev.Message)
	}
}

func newFetchCmd(a *app) *cobra.Command {
	var realtime bool
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch the current branch from its remote",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := a.svc.Fetch(cmd.Context(), a.repo, a.eventSink(realtime))
			if err != nil {
				return err
			}
			return a.render(res, func(w io.Writer, p palette) error {
				writeFetch(w, p, res)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&realtime, "realtime", false, "print progress events as they happen")
	return cmd
}

func writeFetch(w io.Writer, p palette, res git.FetchResult) {
	if !res.Updated {
		fmt.Fprintf(w, "%s already up to date\n", res.RemoteRef)
		return
	}
	fmt.Fprintf(w, "%s updated to %s\n", res.RemoteRef, p.hash.Sprint(shortID(res.Hash)))
}

func newPullCmd(a *app) *cobra.Command {
	var realtime bool
	cmd := &cobra.Command{
		Use:   "pull",
		Short: "Fetch, then fast-forward or merge the current branch",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := a.svc.Pull(cmd.Context(), a.repo, a.eventSink(realtime))
			if err != nil {
				return err
			}
			return a.render(res, func(w io.Writer, p palette) error {
				switch res.Outcome {
				case git.PullUpToDate:
					fmt.Fprintln(w, "Already up to date.")
				case git.PullFastForward:
					fmt.Fprintf(w, "Fast-forward to %s\n", p.hash.Sprint(shortID(res.Head)))
				case git.PullMerged:
					fmt.Fprintf(w, "%s %s\n", p.hash.Sprint(shortID(res.Head)), res.Message)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&realtime, "realtime", false, "print progress events as they happen")
	return cmd
}

func newPushCmd(a *app) *cobra.Command {
	var realtime bool
	cmd := &cobra.Command{
		Use:   "push",
		Short: "Push the current branch, setting its upstream on first push",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := a.svc.Push(cmd.Context(), a.repo, a.eventSink(realtime))
			if err != nil {
				return err
			}
			return a.render(res, func(w io.Writer, p palette) error {
				if res.UpToDate {
					fmt.Fprintln(w, "Everything up-to-date")
				} else {
					fmt.Fprintf(w, "%s -> %s %s\n", res.Refspec, res.URL, p.hash.Sprint(shortID(res.Head)))
				}
				if res.UpstreamSet {
					fmt.Fprintf(w, "upstream set to %s\n", res.Remote)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&realtime, "realtime", false, "print progress events as they happen")
	return cmd
}
