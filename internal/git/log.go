package git

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"

	gitlib "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

const DefaultCommitLimit = 50

const commitDateLayout = "2006-01-02 15:04:05"

// Commits walks history from HEAD newest first, skipping offset commits and
// returning at most limit. A limit <= 0 means DefaultCommitLimit.
func (r *Repository) Commits(limit, offset int) ([]CommitInfo, error) {
	if limit <= 0 {
		limit = DefaultCommitLimit
	}
	if offset < 0 {
		offset = 0
	}
	r.log.Debug("log walk", slog.Int("limit", limit), slog.Int("offset", offset))
	ref, err := r.repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return []CommitInfo{}, nil
	}
	if err != nil {
		return nil, unavailable("log", fmt.Errorf("resolve HEAD: %w", err))
	}
	iter, err := r.repo.Log(&gitlib.LogOptions{From: ref.Hash(), Order: gitlib.LogOrderCommitterTime})
	if err != nil {
		return nil, unavailable("log", fmt.Errorf("read commits: %w", err))
	}
	defer iter.Close()

	// skipped commits still occupy graph columns
	var graph lanes
	out := make([]CommitInfo, 0, limit)
	seen := 0
	for len(out) < limit {
		c, err := iter.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, unavailable("log", fmt.Errorf("iterate commits: %w", err))
		}
		line := graph.draw(c)
		seen++
		if seen <= offset {
			continue
		}
		info := newCommitInfo(c)
		info.Graph = line
		out = append(out, info)
	}
	r.log.Debug("log walk done", slog.Int("returned", len(out)), slog.String("head", refName(ref)))
	return out, nil
}

func newCommitInfo(c *object.Commit) CommitInfo {
	id := c.Hash.String()
	parents := make([]string, 0, len(c.ParentHashes))
	for _, p := range c.ParentHashes {
		parents = append(parents, p.String())
	}
	return CommitInfo{
		ID:      id,
		ShortID: shortHash(id),
		Message: firstLine(c.Message),
		Author:  c.Author.Name,
		Email:   c.Author.Email,
		Date:    c.Committer.When.Format(commitDateLayout),
		When:    c.Committer.When,
		Parents: parents,
	}
}

func firstLine(msg string) string {
	return strings.SplitN(strings.TrimSpace(msg), "\n", 2)[0]
}

func refName(ref *plumbing.Reference) string {
	name := ref.Name().Short()
	if name == "" {
		name = ref.Name().String()
	}
	return name
}

// lanes holds the commit each graph column is waiting for, left to right.
type lanes []plumbing.Hash

// draw returns the graph line for c, which must come in log order, and moves
// its column on to c's parents.
func (l *lanes) draw(c *object.Commit) string {
	col := slices.Index(*l, c.Hash)
	if col < 0 {
		*l = slices.Insert(*l, 0, c.Hash)
		col = 0
	}
	marks := make([]string, len(*l))
	for i := range marks {
		marks[i] = "|"
	}
	marks[col] = "*"
	l.follow(col, c.ParentHashes)
	return strings.Join(marks, " ")
}

func (l *lanes) follow(col int, parents []plumbing.Hash) {
	cur := *l
	if len(parents) == 0 {
		*l = slices.Delete(cur, col, col+1)
		return
	}
	first := parents[0]
	cur[col] = first
	for i, p := range parents[1:] {
		if !slices.Contains(cur, p) {
			cur = slices.Insert(cur, min(col+i+1, len(cur)), p)
		}
	}
	// columns converging on the same parent merge into the leftmost one
	for i := len(cur) - 1; i > col; i-- {
		if cur[i] == first {
			cur = slices.Delete(cur, i, i+1)
		}
	}
	*l = cur
}
