package git

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
)

const stashRef = plumbing.ReferenceName("refs/stash")

// StashCreate records the index and the tracked worktree files as a stash
// entry and resets both to HEAD. Untracked files are left in place; a file
// whose deletion is staged but which exists again on disk blocks the stash,
// since resetting to HEAD would overwrite it. The returned id is the full
// hash of the stash commit.
func (r *Repository) StashCreate(message string) (string, error) {
	head, err := r.headCommit()
	if err != nil {
		return "", unavailable("stash", err)
	}
	if head == nil {
		return "", &OpError{Op: "stash", Ref: "HEAD", Kind: ErrRefNotFound, Hint: "commit first"}
	}
	st, err := r.Status()
	if err != nil {
		return "", err
	}
	if len(st.Staged) == 0 && len(st.Unstaged) == 0 {
		return "", &OpError{Op: "stash", Kind: ErrNothingToStash}
	}
	headSnap, err := r.commitSnapshot(head)
	if err != nil {
		return "", unavailable("stash", err)
	}
	idx, err := r.readIndex()
	if err != nil {
		return "", unavailable("stash", err)
	}
	idxSnap := indexSnapshot(idx)
	if err := r.guardRecreated("stash", headSnap, idxSnap); err != nil {
		return "", err
	}
	wtSnap, err := r.worktreeSnapshot(idxSnap)
	if err != nil {
		return "", unavailable("stash", err)
	}

	state, err := r.Head()
	if err != nil {
		return "", unavailable("stash", err)
	}
	branch := state.Branch
	if state.Detached {
		branch = "(no branch)"
	}
	subject := fmt.Sprintf("%s %s", shortHash(head.Hash.String()), firstLine(head.Message))
	sig := r.signature()

	indexTree, err := r.writeTree(idxSnap)
	if err != nil {
		return "", unavailable("stash", err)
	}
	indexCommit, err := r.writeCommit(&object.Commit{
		Author:       sig,
		Committer:    sig,
		Message:      fmt.Sprintf("index on %s: %s\n", branch, subject),
		TreeHash:     indexTree,
		ParentHashes: []plumbing.Hash{head.Hash},
	})
	if err != nil {
		return "", unavailable("stash", err)
	}
	wtTree, err := r.writeTree(wtSnap)
	if err != nil {
		return "", unavailable("stash", err)
	}
	msg := fmt.Sprintf("WIP on %s: %s", branch, subject)
	if m := strings.TrimSpace(message); m != "" {
		msg = fmt.Sprintf("On %s: %s", branch, firstLine(m))
	}
	wip := &object.Commit{
		Author:       sig,
		Committer:    sig,
		Message:      msg + "\n",
		TreeHash:     wtTree,
		ParentHashes: []plumbing.Hash{head.Hash, indexCommit},
	}
	// an identical stash made within the same second would hash the same;
	// ids are never handed out twice
	for r.hasObject(encodedHash(wip)) {
		wip.Author.When = wip.Author.When.Add(time.Second)
		wip.Committer.When = wip.Author.When
	}
	id, err := r.writeCommit(wip)
	if err != nil {
		return "", unavailable("stash", err)
	}

	// the worktree goes back to HEAD before the entry becomes visible, and is
	// put back if anything after that fails
	undo := func() {
		r.restoreWorktree(headSnap, wtSnap)
		if err := r.resetIndex(idxSnap); err != nil {
			r.log.Error("restore index", slog.Any("error", err))
		}
	}
	if err := r.moveWorktree(wtSnap, headSnap); err != nil {
		undo()
		return "", unavailable("stash", err)
	}
	if err := r.resetIndex(headSnap); err != nil {
		undo()
		return "", unavailable("stash", err)
	}
	if err := r.pushStash(id, sig, wip.Committer.When, msg); err != nil {
		undo()
		return "", unavailable("stash", err)
	}
	r.log.Debug("stash created", slog.String("id", id.String()), slog.String("message", msg))
	return id.String(), nil
}

// pushStash appends id to the stash log and points refs/stash at it.
func (r *Repository) pushStash(id plumbing.Hash, sig object.Signature, when time.Time, msg string) error {
	log, err := r.readReflog(stashRef)
	if err != nil {
		return err
	}
	prev := plumbing.ZeroHash
	if len(log) > 0 {
		prev = log[len(log)-1].New
	}
	next := append(log, reflogEntry{Old: prev, New: id, Name: sig.Name, Email: sig.Email, When: when, Message: msg})
	if err := r.writeReflog(stashRef, next); err != nil {
		return err
	}
	if err := r.repo.Storer.SetReference(plumbing.NewHashReference(stashRef, id)); err != nil {
		if rerr := r.writeReflog(stashRef, log); rerr != nil {
			r.log.Error("restore stash log", slog.Any("error", rerr))
		}
		return fmt.Errorf("update %s: %w", stashRef, err)
	}
	return nil
}

// guardRecreated refuses when a path HEAD tracks has its deletion staged but
// exists on disk again: that file is untracked and resetting to HEAD would
// replace it.
func (r *Repository) guardRecreated(op string, head, index snapshot) error {
	var recreated []string
	for _, p := range head.paths() {
		if _, staged := index[p]; staged {
			continue
		}
		_, onDisk, err := r.readDisk(p)
		if err != nil {
			return unavailable(op, err)
		}
		if onDisk {
			recreated = append(recreated, p)
		}
	}
	if len(recreated) == 0 {
		return nil
	}
	return untrackedInTheWay(op, recreated)
}

func encodedHash(c *object.Commit) plumbing.Hash {
	obj := &plumbing.MemoryObject{}
	if err := c.Encode(obj); err != nil {
		return plumbing.ZeroHash
	}
	return obj.Hash()
}

// worktreeSnapshot reads the paths of tracked from disk, storing their
// content as blobs. Paths missing from the worktree are left out; submodule
// entries are carried over from tracked unchanged.
func (r *Repository) worktreeSnapshot(tracked snapshot) (snapshot, error) {
	out := snapshot{}
	for _, p := range tracked.paths() {
		if tracked[p].Mode == filemode.Submodule {
			out[p] = tracked[p]
			continue
		}
		d, ok, err := r.readDisk(p)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		ref := d.ref()
		if !r.hasObject(ref.Hash) {
			if _, err := r.writeBlob(d.Data); err != nil {
				return nil, err
			}
		}
		out[p] = ref
	}
	return out, nil
}

// resetIndex makes the stage-0 index entries equal target. Entries already
// matching keep their stat data.
func (r *Repository) resetIndex(target snapshot) error {
	idx, err := r.readIndex()
	if err != nil {
		return err
	}
	current := indexSnapshot(idx)
	for p := range current {
		if _, ok := target[p]; !ok {
			_, _ = idx.Remove(p)
		}
	}
	for p, ref := range target {
		if cur, ok := current[p]; ok && cur == ref {
			continue
		}
		var size int64
		if blob, err := r.repo.BlobObject(ref.Hash); err == nil {
			size = blob.Size
		}
		setIndexEntry(idx, p, ref, size, time.Time{})
	}
	return r.writeIndex(idx)
}

// StashList returns the stash entries most recent first. Index is the
// position in this listing and changes as entries come and go.
func (r *Repository) StashList() ([]StashEntry, error) {
	log, err := r.readReflog(stashRef)
	if err != nil {
		return nil, unavailable("stash list", err)
	}
	if len(log) == 0 {
		ref, err := r.repo.Reference(stashRef, true)
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return []StashEntry{}, nil
		}
		if err != nil {
			return nil, unavailable("stash list", err)
		}
		c, err := r.repo.CommitObject(ref.Hash())
		if err != nil {
			return nil, unavailable("stash list", err)
		}
		log = []reflogEntry{{New: c.Hash, When: c.Committer.When, Message: firstLine(c.Message)}}
	}
	out := make([]StashEntry, 0, len(log))
	for i := len(log) - 1; i >= 0; i-- {
		e := log[i]
		out = append(out, StashEntry{
			Index:   len(out),
			ID:      e.New.String(),
			Message: e.Message,
			Branch:  stashBranch(e.Message),
			When:    e.When,
		})
	}
	return out, nil
}

var stashMessageRe = regexp.MustCompile(`^(?:WIP on|On) (.+?): `)

func stashBranch(msg string) string {
	if m := stashMessageRe.FindStringSubmatch(msg); m != nil {
		return m[1]
	}
	return ""
}

var stashOrdinalRe = regexp.MustCompile(`^stash@\{(\d+)\}$`)

// findStash resolves a full id, a unique id prefix or a stash@{n} ordinal.
func (r *Repository) findStash(query string) (StashEntry, []StashEntry, error) {
	entries, err := r.StashList()
	if err != nil {
		return StashEntry{}, nil, err
	}
	q := strings.ToLower(strings.TrimSpace(query))
	notFound := &StashNotFoundError{Query: query, Available: entries}
	if q == "" {
		return StashEntry{}, entries, notFound
	}
	if m := stashOrdinalRe.FindStringSubmatch(q); m != nil {
		n, _ := strconv.Atoi(m[1])
		if n < len(entries) {
			return entries[n], entries, nil
		}
		return StashEntry{}, entries, notFound
	}
	var match *StashEntry
	for i := range entries {
		e := &entries[i]
		if e.ID == q {
			return *e, entries, nil
		}
		if !strings.HasPrefix(e.ID, q) {
			continue
		}
		if match != nil && match.ID != e.ID {
			notFound.Ambiguous = true
			return StashEntry{}, entries, notFound
		}
		match = e
	}
	if match == nil {
		return StashEntry{}, entries, notFound
	}
	return *match, entries, nil
}

// StashApply re-applies a stash entry on top of the current worktree and
// index. The entry is kept. Changes already present count as applied;
// overlapping local edits fail with a StashConflictError and nothing is
// written.
func (r *Repository) StashApply(query string) (StashApplyOutcome, error) {
	entry, _, err := r.findStash(query)
	if err != nil {
		return "", err
	}
	wip, err := r.repo.CommitObject(plumbing.NewHash(entry.ID))
	if err != nil {
		return "", unavailable("stash apply", err)
	}
	if wip.NumParents() < 2 {
		return "", unavailable("stash apply", fmt.Errorf("stash %s is not a stash commit", entry.ShortID()))
	}
	base, err := wip.Parent(0)
	if err != nil {
		return "", unavailable("stash apply", err)
	}
	indexCommit, err := wip.Parent(1)
	if err != nil {
		return "", unavailable("stash apply", err)
	}
	baseSnap, err := r.commitSnapshot(base)
	if err != nil {
		return "", unavailable("stash apply", err)
	}
	wipSnap, err := r.commitSnapshot(wip)
	if err != nil {
		return "", unavailable("stash apply", err)
	}
	stagedSnap, err := r.commitSnapshot(indexCommit)
	if err != nil {
		return "", unavailable("stash apply", err)
	}

	idx, err := r.readIndex()
	if err != nil {
		return "", unavailable("stash apply", err)
	}
	curIndex := indexSnapshot(idx)
	touched := curIndex.clone()
	for _, s := range []snapshot{baseSnap, wipSnap, stagedSnap} {
		for p, ref := range s {
			if _, ok := touched[p]; !ok {
				touched[p] = ref
			}
		}
	}
	curWorktree, err := r.worktreeSnapshot(touched)
	if err != nil {
		return "", unavailable("stash apply", err)
	}

	if changesPresent(baseSnap, wipSnap, curWorktree) && changesPresent(baseSnap, stagedSnap, curIndex) {
		r.log.Debug("stash already applied", slog.String("id", entry.ID))
		return StashAlreadyApplied, nil
	}

	mergedWorktree, conflicts, err := r.mergeSnapshots(baseSnap, curWorktree, wipSnap)
	if err != nil {
		return "", unavailable("stash apply", err)
	}
	mergedIndex, indexConflicts, err := r.mergeSnapshots(baseSnap, curIndex, stagedSnap)
	if err != nil {
		return "", unavailable("stash apply", err)
	}
	conflicts = append(conflicts, indexConflicts...)
	if len(conflicts) > 0 {
		r.log.Warn("stash apply conflict", slog.String("id", entry.ID), slog.Any("paths", conflicts))
		return "", &StashConflictError{ID: entry.ID, Paths: dedupe(conflicts)}
	}
	if err := r.moveWorktree(curWorktree, mergedWorktree); err != nil {
		r.restoreWorktree(mergedWorktree, curWorktree)
		return "", unavailable("stash apply", err)
	}
	if err := r.resetIndex(mergedIndex); err != nil {
		r.restoreWorktree(mergedWorktree, curWorktree)
		if rerr := r.resetIndex(curIndex); rerr != nil {
			r.log.Error("restore index", slog.Any("error", rerr))
		}
		return "", unavailable("stash apply", err)
	}
	r.log.Debug("stash applied", slog.String("id", entry.ID))
	return StashApplied, nil
}

// changesPresent reports whether every path that differs between base and
// next already has its next state in current.
func changesPresent(base, next, current snapshot) bool {
	for p, ref := range next {
		if b, ok := base[p]; ok && b == ref {
			continue
		}
		if cur, ok := current[p]; !ok || cur != ref {
			return false
		}
	}
	for p := range base {
		if _, ok := next[p]; ok {
			continue
		}
		if _, ok := current[p]; ok {
			return false
		}
	}
	return true
}

// StashDrop removes an entry from the stash log. The stash commit stays in
// the object store, so its id is never produced again.
func (r *Repository) StashDrop(query string) error {
	entry, _, err := r.findStash(query)
	if err != nil {
		return err
	}
	log, err := r.readReflog(stashRef)
	if err != nil {
		return unavailable("stash drop", err)
	}
	id := plumbing.NewHash(entry.ID)
	kept := log[:0]
	for _, e := range log {
		if e.New != id {
			kept = append(kept, e)
		}
	}
	// re-chain old ids so the log stays well formed
	for i := range kept {
		if i == 0 {
			kept[i].Old = plumbing.ZeroHash
			continue
		}
		kept[i].Old = kept[i-1].New
	}
	if err := r.writeReflog(stashRef, kept); err != nil {
		return unavailable("stash drop", err)
	}
	if len(kept) == 0 {
		if err := r.repo.Storer.RemoveReference(stashRef); err != nil {
			return unavailable("stash drop", err)
		}
	} else if err := r.repo.Storer.SetReference(plumbing.NewHashReference(stashRef, kept[len(kept)-1].New)); err != nil {
		return unavailable("stash drop", err)
	}
	r.log.Debug("stash dropped", slog.String("id", entry.ID))
	return nil
}
