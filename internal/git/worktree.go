package git

import (
	"errors"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"strings"
	"time"

	gitlib "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	gitindex "github.com/go-git/go-git/v5/plumbing/format/index"
)

// relPath normalizes a caller supplied file path to a slash separated path
// relative to the worktree root. Paths escaping the worktree or pointing into
// .git are rejected.
func (r *Repository) relPath(file string) (string, error) {
	file = strings.TrimSpace(file)
	if file == "" {
		return "", errors.New("file not specified")
	}
	if filepath.IsAbs(file) {
		rel, err := filepath.Rel(r.root, file)
		if err != nil {
			return "", fmt.Errorf("resolve %s: %w", file, err)
		}
		file = rel
	}
	p := path.Clean(filepath.ToSlash(file))
	if p == "." || p == ".." || strings.HasPrefix(p, "../") || strings.HasPrefix(p, "/") {
		return "", fmt.Errorf("path %s is outside the repository", file)
	}
	if p == gitlib.GitDirName || strings.HasPrefix(p, gitlib.GitDirName+"/") {
		return "", fmt.Errorf("path %s is inside the repository metadata", file)
	}
	return p, nil
}

func setIndexEntry(idx *gitindex.Index, p string, ref blobRef, size int64, when time.Time) {
	e, err := idx.Entry(p)
	if err != nil {
		e = idx.Add(p)
	}
	e.Hash = ref.Hash
	e.Mode = ref.Mode
	e.Size = uint32(size)
	e.ModifiedAt = when
	e.Stage = gitindex.Merged
}

func (r *Repository) writeIndex(idx *gitindex.Index) error {
	if err := r.repo.Storer.SetIndex(idx); err != nil {
		return fmt.Errorf("write index: %w", err)
	}
	return nil
}

// moveWorktree rewrites the worktree and index entries that differ between
// from and to. Paths outside both snapshots are left alone, and so is the
// checkout of a submodule: only its index entry moves.
func (r *Repository) moveWorktree(from, to snapshot) error {
	idx, err := r.readIndex()
	if err != nil {
		return err
	}
	for _, p := range from.paths() {
		if _, ok := to[p]; ok {
			continue
		}
		if from[p].Mode != filemode.Submodule {
			if err := r.removeDisk(p); err != nil {
				return err
			}
		}
		_, _ = idx.Remove(p)
	}
	now := r.now()
	for _, p := range to.paths() {
		ref := to[p]
		if old, ok := from[p]; ok && old == ref {
			continue
		}
		var size int64
		if ref.Mode != filemode.Submodule {
			if size, err = r.writeDisk(p, ref); err != nil {
				return err
			}
		}
		setIndexEntry(idx, p, ref, size, now)
	}
	return r.writeIndex(idx)
}

// Stage records the worktree state of file in the index. A file missing from
// the worktree has its deletion staged. Directories are added recursively,
// honouring .gitignore.
func (r *Repository) Stage(file string) error {
	p, err := r.relPath(file)
	if err != nil {
		return &OpError{Op: "stage", Path: file, Err: err}
	}
	if info, err := r.wt.Filesystem.Lstat(p); err == nil && info.IsDir() {
		if err := r.wt.AddWithOptions(&gitlib.AddOptions{Path: p}); err != nil {
			return unavailable("stage "+p, err)
		}
		r.log.Debug("staged directory", slog.String("path", p))
		return nil
	}
	idx, err := r.readIndex()
	if err != nil {
		return unavailable("stage", err)
	}
	disk, ok, err := r.readDisk(p)
	if err != nil {
		return unavailable("stage", err)
	}
	if !ok {
		if _, err := idx.Remove(p); err != nil {
			return &OpError{Op: "stage", Path: p, Err: fmt.Errorf("pathspec did not match any file")}
		}
		r.log.Debug("staged deletion", slog.String("path", p))
		return unavailableIfErr("stage", r.writeIndex(idx))
	}
	h, err := r.writeBlob(disk.Data)
	if err != nil {
		return unavailable("stage", err)
	}
	setIndexEntry(idx, p, blobRef{Mode: disk.Mode, Hash: h}, disk.Size, r.now())
	r.log.Debug("staged file", slog.String("path", p), slog.String("blob", shortHash(h.String())))
	return unavailableIfErr("stage", r.writeIndex(idx))
}

// Unstage resets the index entry of file to its HEAD version, or drops it
// when HEAD does not have the file.
func (r *Repository) Unstage(file string) error {
	p, err := r.relPath(file)
	if err != nil {
		return &OpError{Op: "unstage", Path: file, Err: err}
	}
	head, err := r.headSnapshot()
	if err != nil {
		return unavailable("unstage", err)
	}
	idx, err := r.readIndex()
	if err != nil {
		return unavailable("unstage", err)
	}
	ref, tracked := head[p]
	if !tracked {
		if _, err := idx.Remove(p); err != nil {
			return nil
		}
		r.log.Debug("unstaged new file", slog.String("path", p))
		return unavailableIfErr("unstage", r.writeIndex(idx))
	}
	var size int64
	if blob, err := r.repo.BlobObject(ref.Hash); err == nil {
		size = blob.Size
	}
	// a zero mtime forces the next status to rehash the file
	setIndexEntry(idx, p, ref, size, time.Time{})
	r.log.Debug("unstaged file", slog.String("path", p))
	return unavailableIfErr("unstage", r.writeIndex(idx))
}

// Commit records the index as a new commit on HEAD.
func (r *Repository) Commit(message string) (string, error) {
	if strings.TrimSpace(message) == "" {
		return "", &OpError{Op: "commit", Err: errors.New("empty commit message")}
	}
	head, err := r.headSnapshot()
	if err != nil {
		return "", unavailable("commit", err)
	}
	idx, err := r.readIndex()
	if err != nil {
		return "", unavailable("commit", err)
	}
	if indexSnapshot(idx).equal(head) {
		return "", &OpError{Op: "commit", Kind: ErrNothingStaged, Hint: "stage changes first"}
	}
	sig := r.signature()
	h, err := r.wt.Commit(message, &gitlib.CommitOptions{Author: &sig, Committer: &sig})
	if err != nil {
		return "", unavailable("commit", err)
	}
	r.log.Debug("committed", slog.String("hash", h.String()))
	return h.String(), nil
}

func unavailableIfErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return unavailable(op, err)
}

// guardUntracked refuses to move the worktree from current to target when
// that would overwrite an untracked file with different content.
func (r *Repository) guardUntracked(op string, current, target snapshot) error {
	var clobbered []string
	for _, p := range target.paths() {
		if _, tracked := current[p]; tracked || target[p].Mode == filemode.Submodule {
			continue
		}
		d, ok, err := r.readDisk(p)
		if err != nil {
			return unavailable(op, err)
		}
		if ok && d.ref() != target[p] {
			clobbered = append(clobbered, p)
		}
	}
	if len(clobbered) == 0 {
		return nil
	}
	return untrackedInTheWay(op, clobbered)
}

func untrackedInTheWay(op string, paths []string) error {
	return &OpError{
		Op:   op,
		Kind: ErrUncommittedChanges,
		Err:  fmt.Errorf("untracked files would be overwritten: %s", strings.Join(paths, ", ")),
		Hint: "move or remove them first",
	}
}
