package git

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5/util"
	"github.com/go-git/go-git/v5/plumbing"
)

// reflogEntry is one line of a ref log, oldest first in the file.
type reflogEntry struct {
	Old     plumbing.Hash
	New     plumbing.Hash
	Name    string
	Email   string
	When    time.Time
	Message string
}

func (e reflogEntry) String() string {
	return fmt.Sprintf("%s %s %s <%s> %d %s\t%s\n",
		e.Old, e.New, e.Name, e.Email, e.When.Unix(), e.When.Format("-0700"), e.Message)
}

func parseReflogLine(line string) (reflogEntry, error) {
	head, msg, _ := strings.Cut(line, "\t")
	fields := strings.SplitN(head, " ", 3)
	if len(fields) < 3 {
		return reflogEntry{}, fmt.Errorf("malformed reflog line %q", line)
	}
	e := reflogEntry{Old: plumbing.NewHash(fields[0]), New: plumbing.NewHash(fields[1]), Message: msg}
	ident := fields[2]
	lt, gt := strings.LastIndex(ident, "<"), strings.LastIndex(ident, ">")
	if lt < 0 || gt < lt {
		return reflogEntry{}, fmt.Errorf("malformed reflog identity %q", ident)
	}
	e.Name = strings.TrimSpace(ident[:lt])
	e.Email = ident[lt+1 : gt]
	stamp := strings.Fields(ident[gt+1:])
	if len(stamp) != 2 {
		return reflogEntry{}, fmt.Errorf("malformed reflog timestamp %q", ident)
	}
	sec, err := strconv.ParseInt(stamp[0], 10, 64)
	if err != nil {
		return reflogEntry{}, fmt.Errorf("malformed reflog timestamp %q: %w", stamp[0], err)
	}
	loc := time.UTC
	if tz, err := time.Parse("-0700", stamp[1]); err == nil {
		loc = tz.Location()
	}
	e.When = time.Unix(sec, 0).In(loc)
	return e, nil
}

func reflogPath(ref plumbing.ReferenceName) string {
	return path.Join("logs", ref.String())
}

// readReflog returns the log of ref, oldest first. A missing log is empty.
func (r *Repository) readReflog(ref plumbing.ReferenceName) ([]reflogEntry, error) {
	data, err := util.ReadFile(r.gitDir, reflogPath(ref))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read reflog %s: %w", ref.Short(), err)
	}
	var out []reflogEntry
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		if sc.Text() == "" {
			continue
		}
		e, err := parseReflogLine(sc.Text())
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read reflog %s: %w", ref.Short(), err)
	}
	return out, nil
}

// writeReflog replaces the log of ref through a rename, so readers never see
// a partial file.
func (r *Repository) writeReflog(ref plumbing.ReferenceName, entries []reflogEntry) error {
	p := reflogPath(ref)
	if len(entries) == 0 {
		if err := r.gitDir.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove reflog %s: %w", ref.Short(), err)
		}
		return nil
	}
	var buf bytes.Buffer
	for _, e := range entries {
		buf.WriteString(e.String())
	}
	if err := r.gitDir.MkdirAll(path.Dir(p), 0o755); err != nil {
		return fmt.Errorf("create reflog dir: %w", err)
	}
	tmp := p + ".lock"
	if err := util.WriteFile(r.gitDir, tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write reflog %s: %w", ref.Short(), err)
	}
	if err := r.gitDir.Rename(tmp, p); err != nil {
		_ = r.gitDir.Remove(tmp)
		return fmt.Errorf("write reflog %s: %w", ref.Short(), err)
	}
	return nil
}
