package cmd

import (
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/thiagokokada/gitcore/internal/git"
	"github.com/thiagokokada/gitcore/internal/watch"
)

type watchReport struct {
	Time   time.Time  `json:"time"`
	Branch string     `json:"branch"`
	Ahead  int        `json:"ahead"`
	Behind int        `json:"behind"`
	Status git.Status `json:"status"`
}

func newWatchCmd(a *app) *cobra.Command {
	var delay time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print a status line whenever the repository changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			root, gitDir, err := a.svc.Locate(a.repo)
			if err != nil {
				return err
			}
			var mu sync.Mutex
			report := func() {
				mu.Lock()
				defer mu.Unlock()
				if ctx.Err() != nil {
					return
				}
				rep, err := a.snapshot(cmd)
				if err != nil {
					a.log.Error("watch refresh", "error", err)
					return
				}
				a.writeReport(rep)
			}
			report()
			w, err := watch.New(root, gitDir, delay, a.log, report)
			if err != nil {
				return err
			}
			defer w.Close()
			<-ctx.Done()
			return nil
		},
	}
	cmd.Flags().DurationVar(&delay, "delay", watch.DefaultDelay, "quiet period before refreshing")
	return cmd
}

func (a *app) snapshot(cmd *cobra.Command) (watchReport, error) {
	ctx := cmd.Context()
	rep := watchReport{Time: time.Now()}
	sum, err := a.svc.Open(ctx, a.repo)
	if err != nil {
		return rep, err
	}
	rep.Branch, rep.Ahead, rep.Behind = sum.CurrentBranch, sum.Ahead, sum.Behind
	rep.Status, err = a.svc.Status(ctx, a.repo)
	return rep, err
}

func (a *app) writeReport(rep watchReport) {
	if a.cfg.Output == "json" {
		if data, err := json.Marshal(rep); err == nil {
			fmt.Fprintf(a.stdout, "%s\n", data)
		}
		return
	}
	p := newPalette(a.colored())
	fmt.Fprintf(a.stdout, "%s %s ahead %d, behind %d: %s\n", p.dim.Sprint(rep.Time.Format("15:04:05")),
		p.branch.Sprint(rep.Branch), rep.Ahead, rep.Behind, statusSummary(rep.Status))
}
