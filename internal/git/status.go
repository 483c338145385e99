package git

import (
	"errors"
	"io/fs"
	"log/slog"
	"path"
	"path/filepath"
	"sort"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/go-git/go-billy/v5/util"
	gitlib "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// Status partitions every changed path into staged, unstaged and untracked.
// It reconciles go-git's per-path flags with two independent diffs (HEAD to
// index, index to worktree) because no single one of them is complete: the
// flag view, for instance, loses a staged deletion once the file reappears.
func (r *Repository) Status() (Status, error) {
	v, err := r.collectViews()
	if err != nil {
		return Status{}, unavailable("status", err)
	}
	p := newPartition()
	p.applyFlags(v, r.log)
	p.applyStaged(diffHeadIndex(v.head, v.index))
	p.applyWorktree(diffIndexWorktree(v.index, v.disk, v.untracked))
	p.tieBreak(v)
	st, err := p.result(r, v)
	if err != nil {
		return Status{}, unavailable("status", err)
	}
	return st, nil
}

type statusViews struct {
	flags     gitlib.Status
	head      snapshot
	index     snapshot
	disk      map[string]diskFile
	untracked []string
	ignored   gitignore.Matcher
	// submodules and nested repositories, whose content is not ours to report
	nested []string
}

func (v *statusViews) gitlink(p string) bool {
	return v.index[p].Mode == filemode.Submodule || v.head[p].Mode == filemode.Submodule
}

func (v *statusViews) insideNested(p string) bool {
	for _, n := range v.nested {
		if strings.HasPrefix(p, n+"/") {
			return true
		}
	}
	return false
}

func (r *Repository) collectViews() (*statusViews, error) {
	flags, err := r.wt.Status()
	if err != nil {
		return nil, err
	}
	head, err := r.headSnapshot()
	if err != nil {
		return nil, err
	}
	idx, err := r.readIndex()
	if err != nil {
		return nil, err
	}
	v := &statusViews{flags: flags, head: head, index: indexSnapshot(idx), disk: map[string]diskFile{}}
	for _, s := range []snapshot{v.head, v.index} {
		for p, ref := range s {
			if ref.Mode == filemode.Submodule {
				v.nested = append(v.nested, p)
			}
		}
	}
	patterns, err := gitignore.ReadPatterns(r.wt.Filesystem, nil)
	if err != nil {
		return nil, err
	}
	patterns = append(patterns, r.wt.Excludes...)
	v.ignored = gitignore.NewMatcher(patterns)
	if err := r.scanWorktree(v); err != nil {
		return nil, err
	}
	return v, nil
}

// scanWorktree reads every tracked or untracked-but-not-ignored file.
// Submodules and directories holding their own .git are not entered.
func (r *Repository) scanWorktree(v *statusViews) error {
	trackedDirs := map[string]bool{}
	for p := range v.index {
		for dir := filepath.ToSlash(filepath.Dir(p)); dir != "."; dir = filepath.ToSlash(filepath.Dir(dir)) {
			trackedDirs[dir] = true
		}
	}
	return util.Walk(r.wt.Filesystem, ".", func(name string, info fs.FileInfo, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		p := filepath.ToSlash(name)
		if p == "." {
			return nil
		}
		parts := strings.Split(p, "/")
		if info.IsDir() {
			if p == gitlib.GitDirName {
				return filepath.SkipDir
			}
			if v.gitlink(p) {
				return filepath.SkipDir
			}
			if _, err := r.wt.Filesystem.Lstat(path.Join(p, gitlib.GitDirName)); err == nil {
				v.nested = append(v.nested, p)
				return filepath.SkipDir
			}
			if v.ignored.Match(parts, true) && !trackedDirs[p] {
				return filepath.SkipDir
			}
			return nil
		}
		_, tracked := v.index[p]
		if !tracked && v.ignored.Match(parts, false) {
			return nil
		}
		d, ok, err := r.readDisk(p)
		if err != nil || !ok {
			return err
		}
		v.disk[p] = d
		if !tracked {
			v.untracked = append(v.untracked, p)
		}
		return nil
	})
}

type partition struct {
	staged    map[string]*ChangeEntry
	unstaged  map[string]*ChangeEntry
	untracked mapset.Set[string]
}

func newPartition() *partition {
	return &partition{
		staged:    map[string]*ChangeEntry{},
		unstaged:  map[string]*ChangeEntry{},
		untracked: mapset.NewThreadUnsafeSet[string](),
	}
}

// add inserts e unless the path is already listed.
func add(list map[string]*ChangeEntry, e ChangeEntry) bool {
	if _, ok := list[e.Path]; ok {
		return false
	}
	list[e.Path] = &e
	return true
}

func stagingKind(code gitlib.StatusCode) (ChangeKind, bool) {
	switch code {
	case gitlib.Added:
		return ChangeAdded, true
	case gitlib.Modified:
		return ChangeModified, true
	case gitlib.Deleted:
		return ChangeDeleted, true
	case gitlib.Renamed:
		return ChangeRenamed, true
	case gitlib.Copied:
		return ChangeCopied, true
	case gitlib.UpdatedButUnmerged:
		return ChangeUnknown, true
	}
	return "", false
}

func worktreeKind(code gitlib.StatusCode) (ChangeKind, bool) {
	switch code {
	case gitlib.Modified:
		return ChangeModified, true
	case gitlib.Deleted:
		return ChangeDeleted, true
	case gitlib.UpdatedButUnmerged:
		return ChangeUnknown, true
	}
	return "", false
}

// applyFlags takes go-git's per-path codes. Paths inside a submodule or a
// nested repository are dropped, and a submodule only reports staged changes
// to the commit it records.
func (p *partition) applyFlags(v *statusViews, log *slog.Logger) {
	for path, fst := range v.flags {
		if v.insideNested(path) {
			continue
		}
		log.Debug("status delta",
			slog.String("path", path),
			slog.String("staging", string(fst.Staging)),
			slog.String("worktree", string(fst.Worktree)),
		)
		if kind, ok := stagingKind(fst.Staging); ok {
			add(p.staged, ChangeEntry{Path: path, Kind: kind})
		}
		if v.gitlink(path) {
			continue
		}
		if fst.Worktree == gitlib.Untracked {
			p.untracked.Add(path)
			continue
		}
		if kind, ok := worktreeKind(fst.Worktree); ok {
			add(p.unstaged, ChangeEntry{Path: path, Kind: kind})
		}
	}
}

func (p *partition) applyStaged(changes []ChangeEntry) {
	for _, ch := range changes {
		if add(p.staged, ch) {
			continue
		}
		if ch.Kind != ChangeRenamed {
			continue
		}
		// the flag view reports a rename as delete + add
		existing := p.staged[ch.Path]
		existing.Kind = ChangeRenamed
		existing.OldPath = ch.OldPath
		if old, ok := p.staged[ch.OldPath]; ok && old.Kind == ChangeDeleted {
			delete(p.staged, ch.OldPath)
		}
	}
}

func (p *partition) applyWorktree(changes []ChangeEntry, untracked []string) {
	for _, ch := range changes {
		add(p.unstaged, ch)
	}
	p.untracked.Append(untracked...)
}

// tieBreak settles a staged deletion whose file reappeared in the worktree:
// it stays staged-deleted and the new file is untracked when HEAD tracks the
// path, otherwise the path is only untracked. Untracked paths are never also
// reported as unstaged.
func (p *partition) tieBreak(v *statusViews) {
	for path, e := range p.staged {
		if e.Kind != ChangeDeleted {
			continue
		}
		if _, onDisk := v.disk[path]; !onDisk {
			continue
		}
		if _, inIndex := v.index[path]; inIndex {
			continue
		}
		if _, tracked := v.head[path]; !tracked {
			delete(p.staged, path)
		}
		p.untracked.Add(path)
	}
	p.untracked.Each(func(path string) bool {
		delete(p.unstaged, path)
		return false
	})
}

func (p *partition) result(r *Repository, v *statusViews) (Status, error) {
	load := r.readBlob
	st := Status{
		Staged:    make([]ChangeEntry, 0, len(p.staged)),
		Unstaged:  make([]ChangeEntry, 0, len(p.unstaged)),
		Untracked: p.untracked.ToSlice(),
	}
	for _, e := range p.staged {
		from := v.head[e.Path]
		if e.OldPath != "" {
			from = v.head[e.OldPath]
		}
		if e.Kind == ChangeAdded || e.Kind == ChangeCopied {
			from = blobRef{}
		}
		to := v.index[e.Path]
		if e.Kind == ChangeDeleted {
			to = blobRef{}
		}
		if from.Mode == filemode.Submodule || to.Mode == filemode.Submodule {
			// a gitlink names a commit, there are no lines to count
			st.Staged = append(st.Staged, *e)
			continue
		}
		ls, err := r.statBetween(from.Hash, to.Hash, load)
		if err != nil {
			return Status{}, err
		}
		e.Additions, e.Deletions = ls.Additions, ls.Deletions
		st.Staged = append(st.Staged, *e)
	}
	for _, e := range p.unstaged {
		from := v.index[e.Path].Hash
		var to plumbing.Hash
		if d, ok := v.disk[e.Path]; ok && e.Kind != ChangeDeleted {
			to = d.hash()
		}
		disk := v.disk[e.Path]
		ls, err := r.statBetween(from, to, func(h plumbing.Hash) ([]byte, error) {
			if h == to {
				return disk.Data, nil
			}
			return load(h)
		})
		if err != nil {
			return Status{}, err
		}
		e.Additions, e.Deletions = ls.Additions, ls.Deletions
		st.Unstaged = append(st.Unstaged, *e)
	}
	sortEntries(st.Staged)
	sortEntries(st.Unstaged)
	sort.Strings(st.Untracked)
	return st, nil
}

func sortEntries(entries []ChangeEntry) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
}

// diffHeadIndex compares the HEAD tree with the index. A deleted and an added
// path carrying the same blob are folded into a rename.
func diffHeadIndex(head, index snapshot) []ChangeEntry {
	var out []ChangeEntry
	var deleted, added []string
	for _, p := range index.paths() {
		ref := index[p]
		old, ok := head[p]
		switch {
		case !ok:
			added = append(added, p)
		case old != ref:
			out = append(out, ChangeEntry{Path: p, Kind: ChangeModified})
		}
	}
	for _, p := range head.paths() {
		if _, ok := index[p]; !ok {
			deleted = append(deleted, p)
		}
	}
	renamedFrom := map[string]bool{}
	for _, p := range added {
		kind, oldPath := ChangeAdded, ""
		for _, d := range deleted {
			if !renamedFrom[d] && head[d].Hash == index[p].Hash {
				kind, oldPath = ChangeRenamed, d
				renamedFrom[d] = true
				break
			}
		}
		out = append(out, ChangeEntry{Path: p, OldPath: oldPath, Kind: kind})
	}
	for _, d := range deleted {
		if !renamedFrom[d] {
			out = append(out, ChangeEntry{Path: d, Kind: ChangeDeleted})
		}
	}
	return out
}

// diffIndexWorktree compares index entries with the files read from disk.
func diffIndexWorktree(index snapshot, disk map[string]diskFile, untracked []string) ([]ChangeEntry, []string) {
	var out []ChangeEntry
	for _, p := range index.paths() {
		if index[p].Mode == filemode.Submodule {
			continue
		}
		d, ok := disk[p]
		if !ok {
			out = append(out, ChangeEntry{Path: p, Kind: ChangeDeleted})
			continue
		}
		if d.ref() != index[p] {
			out = append(out, ChangeEntry{Path: p, Kind: ChangeModified})
		}
	}
	return out, untracked
}
