package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/thiagokokada/gitcore/internal/buildinfo"
	"github.com/thiagokokada/gitcore/internal/git/credhelper"
)

type versionReport struct {
	buildinfo.Info `yaml:",inline"`
	Git            string `json:"git,omitempty" yaml:"git,omitempty"`
	GitError       string `json:"git_error,omitempty" yaml:"git_error,omitempty"`
}

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		// a broken config file must not hide the version
		PersistentPreRunE: func(*cobra.Command, []string) error {
			if err := a.setup(); err != nil {
				a.fallbackSetup()
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			report := versionReport{Info: buildinfo.Read()}
			// git is only needed by the credential helper
			if v, err := credhelper.GitVersion(cmd.Context()); err != nil {
				report.GitError = err.Error()
			} else {
				report.Git = v.String()
			}
			return a.render(report, func(w io.Writer, p palette) error {
				fmt.Fprintf(w, "gitcore %s\n", report.Info)
				if report.GitError != "" {
					fmt.Fprintf(w, "git credential helper unavailable: %s\n", report.GitError)
					return nil
				}
				fmt.Fprintf(w, "git %s (credential helper)\n", report.Git)
				return nil
			})
		},
	}
}
