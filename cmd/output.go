package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/thiagokokada/gitcore/internal/git"
)

// render writes v as JSON or YAML, or calls text for the human format.
func (a *app) render(v any, text func(w io.Writer, p palette) error) error {
	switch a.cfg.Output {
	case "json":
		enc := json.NewEncoder(a.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(a.stdout)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return text(a.stdout, newPalette(a.colored()))
	}
}

type palette struct {
	branch *color.Color
	hash   *color.Color
	added  *color.Color
	del    *color.Color
	header *color.Color
	dim    *color.Color
}

func newPalette(enabled bool) palette {
	p := palette{
		branch: color.New(color.FgGreen, color.Bold),
		hash:   color.New(color.FgYellow),
		added:  color.New(color.FgGreen),
		del:    color.New(color.FgRed),
		header: color.New(color.Bold),
		dim:    color.New(color.Faint),
	}
	for _, c := range []*color.Color{p.branch, p.hash, p.added, p.del, p.header, p.dim} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

// writeCommits prints one line per commit, with the branches pointing at it
// in brackets after the graph.
func writeCommits(w io.Writer, p palette, commits []git.CommitInfo, labels map[string][]string) {
	for _, c := range commits {
		graph := strings.TrimRight(c.Graph, " ")
		if graph == "" {
			graph = "*"
		}
		subject := c.Message
		if len(subject) > 80 {
			subject = subject[:77] + "..."
		}
		fmt.Fprintf(w, "%s %s%s %s %s\n", graph, p.hash.Sprint(c.ShortID), p.branch.Sprint(labelSuffix(labels[c.ID])),
			subject, p.dim.Sprintf("(%s, %s)", c.Author, humanize.Time(c.When)))
	}
}

func branchLabels(branches []git.Branch) map[string][]string {
	labels := map[string][]string{}
	for _, b := range branches {
		labels[b.Hash] = append(labels[b.Hash], b.Name)
	}
	return labels
}

func labelSuffix(labels []string) string {
	if len(labels) == 0 {
		return ""
	}
	return fmt.Sprintf(" [%s]", strings.Join(labels, ", "))
}

// filterCommits keeps commits whose id, subject, author or email contains
// query, ignoring case.
func filterCommits(commits []git.CommitInfo, query string) []git.CommitInfo {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return commits
	}
	filtered := []git.CommitInfo{}
	for _, c := range commits {
		text := strings.ToLower(strings.Join([]string{c.ID, c.Message, c.Author, c.Email}, "\n"))
		if strings.Contains(text, q) {
			filtered = append(filtered, c)
		}
	}
	return filtered
}

func writeChanges(w io.Writer, p palette, title string, entries []git.ChangeEntry, c *color.Color) {
	if len(entries) == 0 {
		return
	}
	p.header.Fprintf(w, "%s:\n", title)
	for _, e := range entries {
		name := e.Path
		if e.OldPath != "" {
			name = e.OldPath + " -> " + e.Path
		}
		fmt.Fprintf(w, "  %s %s %s\n", c.Sprintf("%-9s", e.Kind), name,
			p.dim.Sprintf("+%d -%d", e.Additions, e.Deletions))
	}
}

func writeStatus(w io.Writer, p palette, st git.Status) {
	if st.Clean() {
		fmt.Fprintln(w, "nothing to commit, working tree clean")
		return
	}
	writeChanges(w, p, "Staged", st.Staged, p.added)
	writeChanges(w, p, "Unstaged", st.Unstaged, p.del)
	if len(st.Untracked) > 0 {
		p.header.Fprintln(w, "Untracked:")
		for _, path := range st.Untracked {
			fmt.Fprintf(w, "  %s\n", p.del.Sprint(path))
		}
	}
}

func statusSummary(st git.Status) string {
	var parts []string
	add := func(n int, what string) {
		if n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, what))
		}
	}
	add(len(st.Staged), "staged")
	add(len(st.Unstaged), "unstaged")
	add(len(st.Untracked), "untracked")
	if len(parts) == 0 {
		return "clean"
	}
	return strings.Join(parts, ", ")
}

func trackingLine(ahead, behind int, up *git.Upstream) string {
	if up == nil {
		return "no upstream"
	}
	switch {
	case ahead == 0 && behind == 0:
		return fmt.Sprintf("up to date with %s", up)
	case behind == 0:
		return fmt.Sprintf("ahead of %s by %s", up, plural(ahead, "commit"))
	case ahead == 0:
		return fmt.Sprintf("behind %s by %s", up, plural(behind, "commit"))
	}
	return fmt.Sprintf("diverged from %s: %d ahead, %d behind", up, ahead, behind)
}

func plural(n int, word string) string {
	if n == 1 {
		return "1 " + word
	}
	return fmt.Sprintf("%s %ss", humanize.Comma(int64(n)), word)
}
